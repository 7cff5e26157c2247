// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/mason/internal/core/domain"
)

// Executor invokes a node's action. The action is opaque to the engine: it
// either completes or throws, and failures are wrapped into the node's FAILED
// state by the caller.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Execute runs the node's action. The env parameter carries additional
	// environment variables in "KEY=VALUE" form, layered over the process
	// environment.
	Execute(ctx context.Context, node *domain.Node, env []string) error
}
