package graphbuild_test

import (
	"errors"
	"slices"
	"testing"

	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/engine/graphbuild"
)

func graphOf(t *testing.T, nodes ...domain.Node) *domain.Graph {
	t.Helper()
	g := domain.NewGraph()
	for i := range nodes {
		if err := g.AddNode(&nodes[i]); err != nil {
			t.Fatalf("failed to add node %s: %v", nodes[i].Name.String(), err)
		}
	}
	return g
}

func hardNode(name string, deps ...string) domain.Node {
	return domain.Node{
		Name:      domain.NewInternedString(name),
		DependsOn: domain.InternStrings(deps),
	}
}

func planNames(plan *graphbuild.Plan) []string {
	names := make([]string, 0, plan.Graph.NodeCount())
	for _, n := range plan.Graph.Names() {
		names = append(names, n.String())
	}
	return names
}

func TestBuilder_TransitiveClosure(t *testing.T) {
	g := graphOf(t,
		hardNode("lib"),
		hardNode("compile", "lib"),
		hardNode("test", "compile"),
		hardNode("unrelated"),
	)

	plan, err := graphbuild.NewBuilder().Build(g, []string{"test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := planNames(plan); !slices.Equal(got, []string{"compile", "lib", "test"}) {
		t.Errorf("expected closure [compile lib test], got %v", got)
	}
}

func TestBuilder_NoTargets(t *testing.T) {
	g := graphOf(t, hardNode("a"))

	_, err := graphbuild.NewBuilder().Build(g, nil)
	if !errors.Is(err, domain.ErrNoTargetsSpecified) {
		t.Errorf("expected ErrNoTargetsSpecified, got %v", err)
	}
}

func TestBuilder_UnknownTarget(t *testing.T) {
	g := graphOf(t, hardNode("a"))

	_, err := graphbuild.NewBuilder().Build(g, []string{"phantom"})
	if !errors.Is(err, domain.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestBuilder_HardCycleIsFatal(t *testing.T) {
	g := graphOf(t, hardNode("a", "b"), hardNode("b", "a"))

	_, err := graphbuild.NewBuilder().Build(g, []string{"a"})
	if !errors.Is(err, domain.ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestBuilder_StaticallyFalsePredicateExcluded(t *testing.T) {
	no := false
	gated := hardNode("gated")
	gated.OnlyIf = domain.Predicate{Constant: &no}

	g := graphOf(t,
		gated,
		hardNode("build", "gated"),
	)

	plan, err := graphbuild.NewBuilder().Build(g, []string{"build"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := planNames(plan); !slices.Equal(got, []string{"build"}) {
		t.Errorf("expected only [build], got %v", got)
	}

	node, _ := plan.Graph.Node(domain.NewInternedString("build"))
	if len(node.DependsOn) != 0 {
		t.Errorf("expected edge to excluded node removed, got %v", node.DependsOn)
	}
}

func TestBuilder_SoftEdgeKept(t *testing.T) {
	b := hardNode("b")
	b.MustRunAfter = domain.InternStrings([]string{"a"})

	g := graphOf(t, hardNode("a"), b)

	plan, err := graphbuild.NewBuilder().Build(g, []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	soft := plan.SoftEdges[domain.NewInternedString("b")]
	if len(soft) != 1 || soft[0].String() != "a" {
		t.Errorf("expected soft edge b->a, got %v", soft)
	}
}

func TestBuilder_CyclicSoftEdgeDroppedSilently(t *testing.T) {
	// Hard: b depends on a. Soft: a must run after b. The soft edge would
	// close a cycle and is dropped without error.
	a := hardNode("a")
	a.MustRunAfter = domain.InternStrings([]string{"b"})

	g := graphOf(t, a, hardNode("b", "a"))

	plan, err := graphbuild.NewBuilder().Build(g, []string{"b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if soft := plan.SoftEdges[domain.NewInternedString("a")]; len(soft) != 0 {
		t.Errorf("expected cyclic soft edge dropped, got %v", soft)
	}
}

func TestBuilder_SoftEdgePairCannotCycle(t *testing.T) {
	// Two soft edges in opposite directions: only the first survives.
	a := hardNode("a")
	a.MustRunAfter = domain.InternStrings([]string{"b"})
	b := hardNode("b")
	b.MustRunAfter = domain.InternStrings([]string{"a"})

	g := graphOf(t, a, b)

	plan, err := graphbuild.NewBuilder().Build(g, []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := len(plan.SoftEdges[domain.NewInternedString("a")]) +
		len(plan.SoftEdges[domain.NewInternedString("b")])
	if total != 1 {
		t.Errorf("expected exactly one surviving soft edge, got %d", total)
	}
}

func TestBuilder_SoftEdgeToExcludedNodeDropped(t *testing.T) {
	b := hardNode("b")
	b.MustRunAfter = domain.InternStrings([]string{"outside"})

	g := graphOf(t, hardNode("outside"), b)

	plan, err := graphbuild.NewBuilder().Build(g, []string{"b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if soft := plan.SoftEdges[domain.NewInternedString("b")]; len(soft) != 0 {
		t.Errorf("expected soft edge to unincluded node dropped, got %v", soft)
	}
}

func TestBuilder_Hints(t *testing.T) {
	b := hardNode("b")
	b.ShouldRunAfter = domain.InternStrings([]string{"a"})

	g := graphOf(t, hardNode("a"), b)

	plan, err := graphbuild.NewBuilder().Build(g, []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hints := plan.Hints[domain.NewInternedString("b")]
	if len(hints) != 1 || hints[0].String() != "a" {
		t.Errorf("expected hint b->a, got %v", hints)
	}
}
