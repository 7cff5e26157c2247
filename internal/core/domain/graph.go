// Package domain contains the core domain models for the work graph and its
// execution state.
package domain

import (
	"iter"
	"slices"

	"go.trai.ch/zerr"
)

// Graph is a dependency graph of work nodes. Hard edges must form a DAG;
// Validate enforces this and fixes a topological execution order.
type Graph struct {
	nodes          map[InternedString]Node
	dependents     map[InternedString][]InternedString
	executionOrder []InternedString
}

// NewGraph creates a new empty Graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[InternedString]Node),
		dependents: make(map[InternedString][]InternedString),
	}
}

// AddNode adds a node to the graph. It returns an error if a node with the
// same name already exists.
func (g *Graph) AddNode(n *Node) error {
	if _, exists := g.nodes[n.Name]; exists {
		return zerr.With(zerr.Wrap(ErrNodeAlreadyExists, n.Name.String()), "node", n.Name.String())
	}
	g.nodes[n.Name] = *n
	return nil
}

// Node returns the node with the given name.
func (g *Graph) Node(name InternedString) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Names returns all node names in sorted order.
func (g *Graph) Names() []InternedString {
	names := make([]InternedString, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	slices.SortFunc(names, compareInterned)
	return names
}

// Dependents returns the nodes that hard-depend on the given node.
// Populated by Validate.
func (g *Graph) Dependents(name InternedString) []InternedString {
	return g.dependents[name]
}

// Validate checks that hard dependencies form a DAG and populates the
// execution order and the reverse-dependency index. A hard-edge cycle is
// fatal; the error metadata names the participating nodes.
func (g *Graph) Validate() error {
	g.executionOrder = make([]InternedString, 0, len(g.nodes))
	g.dependents = make(map[InternedString][]InternedString, len(g.nodes))
	visited := make(map[InternedString]int) // 0 unvisited, 1 on path, 2 done
	var path []InternedString

	var visit func(u InternedString) error
	visit = func(u InternedString) error {
		visited[u] = 1
		path = append(path, u)

		node, exists := g.nodes[u]
		if !exists {
			return zerr.With(zerr.Wrap(ErrMissingDependency, u.String()), "dependency", u.String())
		}

		for _, dep := range node.DependsOn {
			if visited[dep] == 1 {
				return g.cycleError(path, dep)
			}
			if visited[dep] == 0 {
				if err := visit(dep); err != nil {
					return err
				}
			}
			g.dependents[dep] = append(g.dependents[dep], u)
		}

		visited[u] = 2
		path = path[:len(path)-1]
		g.executionOrder = append(g.executionOrder, u)
		return nil
	}

	// Sorted roots keep the execution order stable across runs; the
	// configuration cache serializes it.
	for _, name := range g.Names() {
		if visited[name] == 0 {
			if err := visit(name); err != nil {
				return err
			}
		}
	}

	return nil
}

// HasHardPath reports whether a chain of hard edges leads from a node to
// target. Used to decide whether a soft edge would close a cycle.
func (g *Graph) HasHardPath(from, to InternedString) bool {
	if from == to {
		return true
	}
	seen := make(map[InternedString]bool)
	stack := []InternedString{from}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[u] {
			continue
		}
		seen[u] = true
		node, ok := g.nodes[u]
		if !ok {
			continue
		}
		for _, dep := range node.DependsOn {
			if dep == to {
				return true
			}
			stack = append(stack, dep)
		}
	}
	return false
}

func (g *Graph) cycleError(path []InternedString, dep InternedString) error {
	cyclePath := ""
	startIdx := 0
	for i, node := range path {
		if node == dep {
			startIdx = i
			break
		}
	}
	for i := startIdx; i < len(path); i++ {
		cyclePath += path[i].String() + " -> "
	}
	cyclePath += dep.String()
	return zerr.With(zerr.Wrap(ErrCycleDetected, cyclePath), "cycle", cyclePath)
}

// Walk returns an iterator that yields nodes in execution order.
// It assumes Validate() has been called and returned nil.
func (g *Graph) Walk() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for _, name := range g.executionOrder {
			if !yield(g.nodes[name]) {
				return
			}
		}
	}
}

func compareInterned(a, b InternedString) int {
	as, bs := a.String(), b.String()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}
