package ports

// InputResolver resolves declared input patterns to concrete file paths.
//
//go:generate go run go.uber.org/mock/mockgen -source=resolver.go -destination=mocks/mock_resolver.go -package=mocks
type InputResolver interface {
	// ResolveInputs expands the given patterns relative to root and returns
	// the sorted, de-duplicated list of matching paths.
	ResolveInputs(patterns []string, root string) ([]string, error)
}
