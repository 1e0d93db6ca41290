// Package dag builds and runs the component dependency graph. Components
// declare the tables they read and publish; edges are derived from those
// declarations and verified when the graph is built.
package dag

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
)

var (
	// ErrCycle is returned when the declared inputs and outputs form a cycle.
	ErrCycle = errors.New("dependency cycle")
	// ErrDuplicateOutput is returned when two nodes publish the same table.
	ErrDuplicateOutput = errors.New("table produced by more than one node")
	// ErrUnresolvedInput is returned when a node reads a table nothing provides.
	ErrUnresolvedInput = errors.New("unresolved input")
	// ErrDuplicateNode is returned when two nodes share a name.
	ErrDuplicateNode = errors.New("duplicate node")
)

// RunFunc computes a node's output tables from its declared inputs.
type RunFunc func(ctx context.Context, in mart.Dataset) ([]mart.Table, error)

// Node is one component of the graph.
type Node struct {
	Name    string
	Inputs  []string
	Outputs []string
	// Critical nodes fail the whole run when they fail.
	Critical bool
	Run      RunFunc
}

// Graph is a validated, acyclic set of nodes.
type Graph struct {
	order      []Node
	index      map[string]int
	producer   map[string]string
	upstream   map[string][]string
	downstream map[string][]string
	sources    map[string]bool
}

// New validates nodes against each other, the source tables and the mart
// catalog, and returns the graph in a deterministic topological order.
func New(sources []string, nodes ...Node) (*Graph, error) {
	g := &Graph{
		index:      make(map[string]int, len(nodes)),
		producer:   make(map[string]string),
		upstream:   make(map[string][]string, len(nodes)),
		downstream: make(map[string][]string, len(nodes)),
		sources:    make(map[string]bool, len(sources)),
	}
	for _, s := range sources {
		if _, err := mart.Lookup(s); err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
		g.sources[s] = true
	}

	byName := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("node with empty name: %w", ErrDuplicateNode)
		}
		if _, dup := byName[n.Name]; dup {
			return nil, fmt.Errorf("%s: %w", n.Name, ErrDuplicateNode)
		}
		if n.Run == nil {
			return nil, fmt.Errorf("node %s has no run function", n.Name)
		}
		byName[n.Name] = n
		for _, out := range n.Outputs {
			if _, err := mart.Lookup(out); err != nil {
				return nil, fmt.Errorf("node %s output: %w", n.Name, err)
			}
			if prev, dup := g.producer[out]; dup {
				return nil, fmt.Errorf("%s by %s and %s: %w", out, prev, n.Name, ErrDuplicateOutput)
			}
			if g.sources[out] {
				return nil, fmt.Errorf("%s is a source table, rewritten by %s: %w", out, n.Name, ErrDuplicateOutput)
			}
			g.producer[out] = n.Name
		}
	}

	for _, n := range nodes {
		seen := map[string]bool{}
		for _, in := range n.Inputs {
			if g.sources[in] {
				continue
			}
			p, ok := g.producer[in]
			if !ok {
				return nil, fmt.Errorf("node %s reads %s: %w", n.Name, in, ErrUnresolvedInput)
			}
			if p == n.Name {
				return nil, fmt.Errorf("node %s reads its own output %s: %w", n.Name, in, ErrCycle)
			}
			if !seen[p] {
				seen[p] = true
				g.upstream[n.Name] = append(g.upstream[n.Name], p)
				g.downstream[p] = append(g.downstream[p], n.Name)
			}
		}
	}
	for name := range g.downstream {
		sort.Strings(g.downstream[name])
	}

	order, err := topoSort(byName, g.upstream, g.downstream)
	if err != nil {
		return nil, err
	}
	g.order = order
	for i, n := range order {
		g.index[n.Name] = i
	}
	return g, nil
}

// topoSort is Kahn's algorithm with ready nodes taken in name order.
func topoSort(nodes map[string]Node, upstream, downstream map[string][]string) ([]Node, error) {
	indegree := make(map[string]int, len(nodes))
	var ready []string
	for name := range nodes {
		indegree[name] = len(upstream[name])
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]Node, 0, len(nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, nodes[name])
		var next []string
		for _, d := range downstream[name] {
			indegree[d]--
			if indegree[d] == 0 {
				next = append(next, d)
			}
		}
		ready = append(ready, next...)
		sort.Strings(ready)
	}

	if len(order) != len(nodes) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("nodes %v: %w", stuck, ErrCycle)
	}
	return order, nil
}

// Nodes returns the nodes in topological order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.order))
	copy(out, g.order)
	return out
}

// Node returns the named node.
func (g *Graph) Node(name string) (Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return Node{}, false
	}
	return g.order[i], true
}

// Upstream returns the direct upstream nodes of name.
func (g *Graph) Upstream(name string) []string {
	return append([]string(nil), g.upstream[name]...)
}

// Producer returns the node publishing table, or "" for sources and unknown tables.
func (g *Graph) Producer(table string) string {
	return g.producer[table]
}

// Dependents returns every node that transitively depends on name, in
// topological order.
func (g *Graph) Dependents(name string) []string {
	seen := map[string]bool{}
	stack := append([]string(nil), g.downstream[name]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.downstream[n]...)
	}
	out := make([]string, 0, len(seen))
	for _, n := range g.order {
		if seen[n.Name] {
			out = append(out, n.Name)
		}
	}
	return out
}

// Critical returns the set of critical node names.
func (g *Graph) Critical() map[string]bool {
	out := map[string]bool{}
	for _, n := range g.order {
		if n.Critical {
			out[n.Name] = true
		}
	}
	return out
}

// Sources returns the source table names, sorted.
func (g *Graph) Sources() []string {
	out := make([]string, 0, len(g.sources))
	for s := range g.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
