package ports

import "go.trai.ch/mason/internal/core/domain"

// PropertyFingerprint pairs a declared input property with its fingerprint.
// Order matters: the composite cache key folds fingerprints in declaration
// order.
type PropertyFingerprint struct {
	Property string
	Value    string
}

// Fingerprinter computes content-derived identities for node inputs and
// outputs. Implementations must be deterministic across runs and machines:
// identical logical content always yields the identical fingerprint,
// independent of filesystem timestamps.
//
//go:generate go run go.uber.org/mock/mockgen -source=fingerprinter.go -destination=mocks/mock_fingerprinter.go -package=mocks
type Fingerprinter interface {
	// FingerprintInputs fingerprints every declared input of the node in
	// declaration order, applying each property's normalization strategy.
	FingerprintInputs(node *domain.Node, root string) ([]PropertyFingerprint, error)

	// FingerprintOutputs fingerprints the node's declared outputs as they
	// currently exist on disk. Missing outputs fingerprint as a distinct
	// missing marker rather than erroring.
	FingerprintOutputs(node *domain.Node, root string) (map[string]string, error)

	// CacheKey derives the composite build cache key from the node's
	// implementation identity and its input fingerprints.
	CacheKey(node *domain.Node, inputs []PropertyFingerprint) string
}
