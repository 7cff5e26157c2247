package ports

import "go.trai.ch/mason/internal/core/domain"

// LoadResult is the outcome of the configuration phase: the full work graph
// plus everything the configuration cache needs to decide whether a snapshot
// of it is still valid.
type LoadResult struct {
	Graph *domain.Graph
	// ConfigFiles lists every build file that was read, in read order.
	ConfigFiles []string
	// EnvReads records environment variables consulted during configuration
	// and the values observed.
	EnvReads map[string]string
}

// ConfigLoader loads the build configuration for a workspace.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the configuration from the given working directory and
	// returns the configured work graph.
	Load(cwd string) (*LoadResult, error)
}
