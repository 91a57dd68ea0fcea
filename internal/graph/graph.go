package graph

import (
	"sort"

	"sma/internal/mapping"
	"sma/internal/vocab"
)

// Edge is one undirected equivalence edge, carrying the aggregate
// confidence of the mapping that contributed it. Parallel edges from
// different predicates are kept.
type Edge struct {
	A, B       int32
	Key        mapping.TripleKey
	Confidence float64
}

// Equivalence is an undirected multigraph over the equivalence subset
// of a mapping collection. Nodes are interned references appearing as
// subject or object of a mapping whose predicate is in the
// equivalence set.
type Equivalence struct {
	interner  *Interner
	edges     []Edge
	adjacency map[int32][]int
	uf        *unionFind
}

// BuildEquivalence constructs the equivalence graph from a collection.
// predicates defaults to {exactMatch, equivalentTo} when empty.
func BuildEquivalence(ix *mapping.Index, predicates []vocab.Reference) *Equivalence {
	if len(predicates) == 0 {
		predicates = vocab.EquivalenceSet()
	}
	allowed := make(map[vocab.Reference]bool, len(predicates))
	for _, p := range predicates {
		allowed[p.Key()] = true
	}

	g := &Equivalence{
		interner:  NewInterner(),
		adjacency: make(map[int32][]int),
	}
	for _, m := range ix.Mappings() {
		if !allowed[m.Predicate.Key()] {
			continue
		}
		key := m.Key()
		a := g.interner.Intern(m.Subject)
		b := g.interner.Intern(m.Object)
		idx := len(g.edges)
		g.edges = append(g.edges, Edge{A: a, B: b, Key: key, Confidence: ix.AggregateConfidence(key)})
		g.adjacency[a] = append(g.adjacency[a], idx)
		g.adjacency[b] = append(g.adjacency[b], idx)
	}

	g.uf = newUnionFind(g.interner.Len())
	for _, e := range g.edges {
		g.uf.union(e.A, e.B)
	}
	return g
}

// Interner exposes the graph's reference interner.
func (g *Equivalence) Interner() *Interner {
	return g.interner
}

// NumNodes returns the number of references in the graph.
func (g *Equivalence) NumNodes() int {
	return g.interner.Len()
}

// NumEdges returns the number of equivalence edges.
func (g *Equivalence) NumEdges() int {
	return len(g.edges)
}

// Component is one connected component. Members are sorted by CURIE;
// the root is the lexicographically smallest member so component
// identity is stable across runs.
type Component struct {
	Root    vocab.Reference
	Members []vocab.Reference
}

// Components computes the connected components, ordered by root CURIE.
func (g *Equivalence) Components() []Component {
	groups := make(map[int32][]int32)
	for id := int32(0); id < int32(g.interner.Len()); id++ {
		root := g.uf.find(id)
		groups[root] = append(groups[root], id)
	}

	components := make([]Component, 0, len(groups))
	for _, ids := range groups {
		members := make([]vocab.Reference, len(ids))
		for i, id := range ids {
			members[i] = g.interner.Reference(id)
		}
		order := make([]int, len(ids))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool {
			return vocab.CompareCURIE(members[order[a]], members[order[b]]) < 0
		})
		sortedMembers := make([]vocab.Reference, len(ids))
		for i, o := range order {
			sortedMembers[i] = members[o]
		}
		components = append(components, Component{
			Root:    sortedMembers[0],
			Members: sortedMembers,
		})
	}
	sort.Slice(components, func(i, j int) bool {
		return vocab.CompareCURIE(components[i].Root, components[j].Root) < 0
	})
	return components
}

// SameComponent reports whether two references were connected.
func (g *Equivalence) SameComponent(a, b vocab.Reference) bool {
	ia, ok := g.interner.Lookup(a)
	if !ok {
		return false
	}
	ib, ok := g.interner.Lookup(b)
	if !ok {
		return false
	}
	return g.uf.find(ia) == g.uf.find(ib)
}

// Path returns the edges of a shortest path between two references in
// the same component, or nil when none exists. Breadth-first; used to
// summarize provenance for priority mappings.
func (g *Equivalence) Path(from, to vocab.Reference) []Edge {
	src, ok := g.interner.Lookup(from)
	if !ok {
		return nil
	}
	dst, ok := g.interner.Lookup(to)
	if !ok {
		return nil
	}
	if src == dst {
		return nil
	}

	prev := make(map[int32]int) // node -> edge index used to reach it
	visited := map[int32]bool{src: true}
	queue := []int32{src}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, edgeIdx := range g.adjacency[node] {
			e := g.edges[edgeIdx]
			next := e.A
			if next == node {
				next = e.B
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = edgeIdx
			if next == dst {
				return g.tracePath(src, dst, prev)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func (g *Equivalence) tracePath(src, dst int32, prev map[int32]int) []Edge {
	var path []Edge
	for node := dst; node != src; {
		edgeIdx := prev[node]
		e := g.edges[edgeIdx]
		path = append(path, e)
		if e.A == node {
			node = e.B
		} else {
			node = e.A
		}
	}
	// reverse into src -> dst order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
