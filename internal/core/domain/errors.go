package domain

import "go.trai.ch/zerr"

var (
	// ErrNodeAlreadyExists is returned when adding a node with a name that
	// is already present in the graph.
	ErrNodeAlreadyExists = zerr.New("node already exists")

	// ErrMissingDependency is returned when a node references a dependency
	// that does not exist in the graph.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrCycleDetected is returned when hard dependencies form a cycle.
	// This is fatal and aborts the build before any execution.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrNodeNotFound is returned when a requested node is not in the graph.
	ErrNodeNotFound = zerr.New("node not found")

	// ErrNoTargetsSpecified is returned when a run is requested without any
	// target nodes.
	ErrNoTargetsSpecified = zerr.New("no targets specified")

	// ErrBuildExecutionFailed is the engine-level failure aggregating one or
	// more node failures; main maps it to a non-zero exit code.
	ErrBuildExecutionFailed = zerr.New("build execution failed")

	// ErrNodeExecutionFailed marks a single node whose action threw.
	// Dependents become ineligible; the node is not retried.
	ErrNodeExecutionFailed = zerr.New("node execution failed")

	// ErrConfigurationCacheProblem is raised when the serialized closure of
	// the work graph would cross an isolation boundary. Fatal by default.
	ErrConfigurationCacheProblem = zerr.New("configuration cache problem")

	// ErrCacheIO marks a corrupt or unreadable cache entry. Recoverable: the
	// engine treats it as a cache miss and re-executes.
	ErrCacheIO = zerr.New("cache i/o error")

	// ErrCacheConfigFinalized is returned when mutating CacheConfigurations
	// after FinalizeConfigurations has been called.
	ErrCacheConfigFinalized = zerr.New("cache configuration is finalized")
)
