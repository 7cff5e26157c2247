// Package graphbuild assembles the execution plan for a requested target
// set from the fully configured work graph.
package graphbuild

import (
	"slices"

	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/zerr"
)

// Plan is the schedulable subset of the configured graph: the transitive
// hard closure of the requested targets, the ordering edges that survived
// cycle pruning, and the dispatch hints.
type Plan struct {
	// Graph contains exactly the included nodes and their hard edges,
	// validated acyclic.
	Graph *domain.Graph
	// SoftEdges maps a node to the included nodes it must run after.
	// Accepted only when they do not close a cycle.
	SoftEdges map[domain.InternedString][]domain.InternedString
	// Hints maps a node to the included nodes it should run after. Hints
	// bias dispatch order among simultaneously ready nodes, nothing more.
	Hints map[domain.InternedString][]domain.InternedString
}

// Builder produces execution plans.
type Builder struct{}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build resolves the requested targets against the configured graph.
// Nodes whose gating predicate is statically false are excluded early; their
// predicate never becomes true, so neither they nor edges to them matter.
// A hard-edge cycle is fatal. A must-run-after edge that would close a cycle
// is dropped silently.
func (b *Builder) Build(full *domain.Graph, targets []string) (*Plan, error) {
	if len(targets) == 0 {
		return nil, domain.ErrNoTargetsSpecified
	}

	included, err := b.collectClosure(full, targets)
	if err != nil {
		return nil, err
	}

	plan, err := b.assemble(full, included)
	if err != nil {
		return nil, err
	}

	return plan, nil
}

func (b *Builder) collectClosure(full *domain.Graph, targets []string) (map[domain.InternedString]bool, error) {
	included := make(map[domain.InternedString]bool)
	var stack []domain.InternedString

	for _, target := range targets {
		name := domain.NewInternedString(target)
		if _, ok := full.Node(name); !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrNodeNotFound, target), "node", target)
		}
		stack = append(stack, name)
	}

	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if included[name] {
			continue
		}

		node, ok := full.Node(name)
		if !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrMissingDependency, name.String()), "dependency", name.String())
		}
		if staticallyExcluded(&node) {
			continue
		}

		included[name] = true
		stack = append(stack, node.DependsOn...)
	}

	return included, nil
}

func (b *Builder) assemble(full *domain.Graph, included map[domain.InternedString]bool) (*Plan, error) {
	pruned := domain.NewGraph()

	names := make([]domain.InternedString, 0, len(included))
	for name := range included {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b domain.InternedString) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		default:
			return 0
		}
	})

	for _, name := range names {
		node, _ := full.Node(name)
		node.DependsOn = filterIncluded(node.DependsOn, included)
		if err := pruned.AddNode(&node); err != nil {
			return nil, err
		}
	}

	if err := pruned.Validate(); err != nil {
		return nil, err
	}

	plan := &Plan{
		Graph:     pruned,
		SoftEdges: make(map[domain.InternedString][]domain.InternedString),
		Hints:     make(map[domain.InternedString][]domain.InternedString),
	}

	// Soft edges are accepted one at a time against the hard edges plus the
	// edges accepted so far, so two soft edges can never smuggle in a cycle
	// between them.
	accepted := make(map[domain.InternedString][]domain.InternedString)
	for _, name := range names {
		node, _ := full.Node(name)
		for _, after := range filterIncluded(node.MustRunAfter, included) {
			if reaches(pruned, accepted, name, after) {
				continue
			}
			accepted[name] = append(accepted[name], after)
			plan.SoftEdges[name] = append(plan.SoftEdges[name], after)
		}
		if hints := filterIncluded(node.ShouldRunAfter, included); len(hints) > 0 {
			plan.Hints[name] = hints
		}
	}

	return plan, nil
}

// reaches reports whether target is reachable from start over hard edges
// plus the soft edges accepted so far. An edge start->after closes a cycle
// exactly when start is reachable from after.
func reaches(g *domain.Graph, soft map[domain.InternedString][]domain.InternedString, target, start domain.InternedString) bool {
	if start == target {
		return true
	}
	seen := make(map[domain.InternedString]bool)
	stack := []domain.InternedString{start}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[u] {
			continue
		}
		seen[u] = true

		node, ok := g.Node(u)
		if ok {
			for _, dep := range node.DependsOn {
				if dep == target {
					return true
				}
				stack = append(stack, dep)
			}
		}
		for _, dep := range soft[u] {
			if dep == target {
				return true
			}
			stack = append(stack, dep)
		}
	}
	return false
}

func staticallyExcluded(node *domain.Node) bool {
	return node.OnlyIf.Constant != nil && !*node.OnlyIf.Constant
}

func filterIncluded(edges []domain.InternedString, included map[domain.InternedString]bool) []domain.InternedString {
	var result []domain.InternedString
	for _, edge := range edges {
		if included[edge] {
			result = append(result, edge)
		}
	}
	return result
}
