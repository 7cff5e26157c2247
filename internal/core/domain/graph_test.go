package domain_test

import (
	"slices"
	"testing"

	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/zerr"
)

func node(name string, deps ...string) domain.Node {
	return domain.Node{
		Name:      domain.NewInternedString(name),
		DependsOn: domain.InternStrings(deps),
	}
}

func buildGraph(t *testing.T, nodes ...domain.Node) *domain.Graph {
	t.Helper()
	g := domain.NewGraph()
	for i := range nodes {
		if err := g.AddNode(&nodes[i]); err != nil {
			t.Fatalf("failed to add node %s: %v", nodes[i].Name.String(), err)
		}
	}
	return g
}

func TestGraph_AddNode(t *testing.T) {
	g := domain.NewGraph()
	n := node("compile")

	if err := g.AddNode(&n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := g.AddNode(&n); err == nil {
		t.Error("expected error when adding duplicate node, got nil")
	} else {
		zErr, ok := err.(*zerr.Error)
		if !ok {
			t.Fatalf("expected *zerr.Error, got %T", err)
		}
		meta := zErr.Metadata()
		if name, ok := meta["node"].(string); !ok || name != "compile" {
			t.Errorf("expected metadata node=compile, got %v", meta["node"])
		}
	}
}

func TestGraph_Validate_Cycle(t *testing.T) {
	g := buildGraph(t, node("A", "B"), node("B", "A"))

	err := g.Validate()
	if err == nil {
		t.Fatal("expected error for cycle, got nil")
	}

	zErr, ok := err.(*zerr.Error)
	if !ok {
		t.Fatalf("expected *zerr.Error, got %T", err)
	}
	meta := zErr.Metadata()
	if cycle, ok := meta["cycle"].(string); !ok || cycle == "" {
		t.Errorf("expected metadata cycle to be non-empty string, got %v", meta["cycle"])
	}
}

func TestGraph_Validate_MissingDependency(t *testing.T) {
	g := buildGraph(t, node("A", "phantom"))

	err := g.Validate()
	if err == nil {
		t.Fatal("expected error for missing dependency, got nil")
	}
}

func TestGraph_Validate_DisconnectedComponents(t *testing.T) {
	g := buildGraph(t, node("A", "B"), node("B"), node("X", "Y"), node("Y"))

	if err := g.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestGraph_Walk_Diamond(t *testing.T) {
	// D -> B -> A, D -> C -> A: A first, D last, B and C in between.
	g := buildGraph(t, node("A"), node("B", "A"), node("C", "A"), node("D", "B", "C"))

	if err := g.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	order := make([]string, 0, 4)
	for n := range g.Walk() {
		order = append(order, n.Name.String())
	}

	if len(order) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(order))
	}
	if order[0] != "A" || order[3] != "D" {
		t.Errorf("unexpected execution order: %v", order)
	}

	pos := func(name string) int { return slices.Index(order, name) }
	if pos("B") < pos("A") || pos("C") < pos("A") || pos("D") < pos("B") || pos("D") < pos("C") {
		t.Errorf("order violates dependencies: %v", order)
	}
}

func TestGraph_Dependents(t *testing.T) {
	g := buildGraph(t, node("A"), node("B", "A"), node("C", "A"))

	if err := g.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	dependents := g.Dependents(domain.NewInternedString("A"))
	names := make([]string, 0, len(dependents))
	for _, d := range dependents {
		names = append(names, d.String())
	}
	slices.Sort(names)

	if !slices.Equal(names, []string{"B", "C"}) {
		t.Errorf("expected dependents [B C], got %v", names)
	}
}

func TestGraph_HasHardPath(t *testing.T) {
	g := buildGraph(t, node("A"), node("B", "A"), node("C", "B"), node("X"))

	cases := []struct {
		from, to string
		want     bool
	}{
		{"C", "A", true},
		{"C", "B", true},
		{"A", "C", false},
		{"X", "A", false},
		{"A", "A", true},
	}
	for _, tc := range cases {
		got := g.HasHardPath(domain.NewInternedString(tc.from), domain.NewInternedString(tc.to))
		if got != tc.want {
			t.Errorf("HasHardPath(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestGraph_Names_Sorted(t *testing.T) {
	g := buildGraph(t, node("zeta"), node("alpha"), node("mid"))

	names := make([]string, 0, 3)
	for _, n := range g.Names() {
		names = append(names, n.String())
	}

	if !slices.Equal(names, []string{"alpha", "mid", "zeta"}) {
		t.Errorf("expected sorted names, got %v", names)
	}
}
