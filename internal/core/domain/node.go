package domain

// Normalization selects how a declared input contributes to a node's
// fingerprint.
type Normalization string

const (
	// NormalizationAbsolutePath fingerprints entries by absolute path,
	// entry type and content.
	NormalizationAbsolutePath Normalization = "ABSOLUTE_PATH"
	// NormalizationRelativePath fingerprints entries by their path relative
	// to the workspace root, entry type and content.
	NormalizationRelativePath Normalization = "RELATIVE_PATH"
	// NormalizationNameOnly fingerprints entries by base name and content,
	// ignoring their location.
	NormalizationNameOnly Normalization = "NAME_ONLY"
	// NormalizationContentOnly fingerprints the unordered multiset of entry
	// contents, ignoring paths entirely.
	NormalizationContentOnly Normalization = "CONTENT_ONLY"
	// NormalizationNone excludes the input from fingerprinting.
	NormalizationNone Normalization = "NONE"
)

// InputProperty is a single declared input of a work node. Exactly one of
// Patterns or Value is set: file inputs carry glob patterns, scalar inputs
// carry a stable string encoding of their value.
type InputProperty struct {
	Name          InternedString
	Patterns      []InternedString
	Value         string
	Normalization Normalization
}

// IsFileInput reports whether the property refers to files on disk.
func (p InputProperty) IsFileInput() bool {
	return len(p.Patterns) > 0
}

// Predicate gates node execution. A node with a non-empty predicate runs only
// when the named environment variable matches the expected value. An empty
// predicate always passes.
type Predicate struct {
	EnvVar InternedString
	Equals string
	Negate bool
	// Constant holds a statically known result, set by the loader for
	// literal predicates so the graph builder can filter early.
	Constant *bool
}

// Evaluate resolves the predicate against the given environment.
func (p Predicate) Evaluate(env map[string]string) bool {
	if p.Constant != nil {
		return *p.Constant
	}
	if p.EnvVar.String() == "" {
		return true
	}
	ok := env[p.EnvVar.String()] == p.Equals
	if p.Negate {
		return !ok
	}
	return ok
}

// SourcePos records where a node was defined, for error reports.
type SourcePos struct {
	File InternedString
	Line int
}

// Node is a schedulable unit of build work. Identity is immutable after graph
// assembly; execution state lives in ExecutionRecord, not here.
type Node struct {
	Name    InternedString
	Command []string
	// ActionName references an in-process action registered with the
	// execution engine instead of a command. Nodes carrying one cannot be
	// serialized into the configuration cache.
	ActionName string
	// Tool overrides the executable resolved for Command[0]. See
	// execution.effectiveTool for the full precedence cascade.
	Tool        string
	Environment map[string]string
	WorkingDir  InternedString

	Inputs  []InputProperty
	Outputs []InternedString

	// DependsOn are hard edges: dependents never start before these reach a
	// terminal successful state. MustRunAfter edges order execution without
	// implying requirement and are dropped when they would close a cycle.
	// ShouldRunAfter edges only bias dispatch order among simultaneously
	// ready nodes.
	DependsOn      []InternedString
	MustRunAfter   []InternedString
	ShouldRunAfter []InternedString

	OnlyIf Predicate

	// Cacheable nodes may publish their outputs to the shared build cache.
	Cacheable bool
	// ParallelSafe nodes may run concurrently with other nodes; nodes
	// without the marker are serialized relative to each other.
	ParallelSafe bool
	// Locks names resources the node uses exclusively while running.
	Locks []InternedString

	Pos SourcePos
}

// ImplementationIdentity returns the stable identity of the node's action,
// part of the composite cache key. Two nodes with the same command, tool and
// working directory are interchangeable for caching purposes.
func (n *Node) ImplementationIdentity() []string {
	id := make([]string, 0, len(n.Command)+2)
	id = append(id, n.Command...)
	id = append(id, n.Tool, n.WorkingDir.String())
	return id
}
