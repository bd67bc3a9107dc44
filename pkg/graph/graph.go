// Package graph builds the directed dependency graph over registered
// modules and answers adjacency and cycle queries.
package graph

import (
	"fmt"
	"sort"

	"github.com/modguard/modguard/pkg/domain"
	"github.com/modguard/modguard/pkg/registry"
)

// Builder accumulates dependency edges between registered modules. Edge
// order is preserved so reports stay stable across runs with the same
// input.
type Builder struct {
	reg   *registry.Registry
	edges []domain.DependencyEdge
	seen  map[domain.DependencyEdge]struct{}
	// forward adjacency, from -> set of to
	forward map[string][]string
	reverse map[string][]string
}

// NewBuilder creates a Builder over the given registry.
func NewBuilder(reg *registry.Registry) *Builder {
	return &Builder{
		reg:     reg,
		seen:    make(map[domain.DependencyEdge]struct{}),
		forward: make(map[string][]string),
		reverse: make(map[string][]string),
	}
}

// AddEdge records that from imports to. Both endpoints must be registered;
// otherwise domain.ErrUnknownModule is returned. Duplicate edges collapse
// to the first occurrence.
func (b *Builder) AddEdge(from, to string) error {
	if !b.reg.Has(from) {
		return fmt.Errorf("%w: edge source %s", domain.ErrUnknownModule, from)
	}
	if !b.reg.Has(to) {
		return fmt.Errorf("%w: edge target %s (imported by %s)", domain.ErrUnknownModule, to, from)
	}

	edge := domain.DependencyEdge{From: from, To: to}
	if _, dup := b.seen[edge]; dup {
		return nil
	}
	b.seen[edge] = struct{}{}
	b.edges = append(b.edges, edge)
	b.forward[from] = append(b.forward[from], to)
	b.reverse[to] = append(b.reverse[to], from)
	return nil
}

// Edges returns all edges in insertion order.
func (b *Builder) Edges() []domain.DependencyEdge {
	out := make([]domain.DependencyEdge, len(b.edges))
	copy(out, b.edges)
	return out
}

// DependenciesOf returns the modules that name imports, in insertion order.
func (b *Builder) DependenciesOf(name string) []string {
	return append([]string(nil), b.forward[name]...)
}

// Dependents returns the modules importing name, in insertion order.
func (b *Builder) Dependents(name string) []string {
	return append([]string(nil), b.reverse[name]...)
}

// Len returns the number of distinct edges.
func (b *Builder) Len() int {
	return len(b.edges)
}

// Cycles returns every elementary dependency cycle as a slice of module
// names, each listed from its lexically smallest member, the result sorted
// for determinism. Uses Johnson's circuit enumeration: for each start node
// in lexical order, elementary circuits through it are walked within the
// subgraph of lexically larger nodes, so overlapping cycles that share
// edges or nodes are each reported. Cycles are advisory findings, not rule
// violations.
func (b *Builder) Cycles() [][]string {
	starts := make([]string, 0, len(b.forward))
	for node := range b.forward {
		starts = append(starts, node)
	}
	sort.Strings(starts)

	var cycles [][]string
	for _, start := range starts {
		blocked := make(map[string]bool)
		// blockMap[n] holds nodes to unblock when n unblocks.
		blockMap := make(map[string]map[string]struct{})
		stack := []string{}

		var unblock func(node string)
		unblock = func(node string) {
			blocked[node] = false
			for dep := range blockMap[node] {
				delete(blockMap[node], dep)
				if blocked[dep] {
					unblock(dep)
				}
			}
		}

		var circuit func(node string) bool
		circuit = func(node string) bool {
			found := false
			stack = append(stack, node)
			blocked[node] = true

			for _, next := range b.forward[node] {
				if next < start {
					// covered when next was the start node
					continue
				}
				if next == start {
					cycles = append(cycles, append([]string(nil), stack...))
					found = true
					continue
				}
				if !blocked[next] && circuit(next) {
					found = true
				}
			}

			if found {
				unblock(node)
			} else {
				for _, next := range b.forward[node] {
					if next < start {
						continue
					}
					if blockMap[next] == nil {
						blockMap[next] = make(map[string]struct{})
					}
					blockMap[next][node] = struct{}{}
				}
			}

			stack = stack[:len(stack)-1]
			return found
		}

		circuit(start)
	}

	sort.Slice(cycles, func(i, j int) bool {
		return fmt.Sprint(cycles[i]) < fmt.Sprint(cycles[j])
	})
	return cycles
}
