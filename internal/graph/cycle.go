package graph

import (
	"sort"

	"github.com/groblegark/kdeps/internal/model"
)

// blockGraph is the blocking subgraph with edges pointing blocker -> blocked.
// A pair is present when either side's field records it, so an edit that
// wrote only one side still constrains ordering.
type blockGraph struct {
	next map[string][]string
	prev map[string][]string
}

func newBlockGraph(edges []model.Edge) *blockGraph {
	g := &blockGraph{
		next: make(map[string][]string),
		prev: make(map[string][]string),
	}
	seen := make(map[[2]string]bool)
	for _, e := range edges {
		if !e.Relation.Blocking() {
			continue
		}
		c := e.Canonical()
		key := [2]string{c.Source, c.Target}
		if seen[key] {
			continue
		}
		seen[key] = true
		g.next[c.Source] = append(g.next[c.Source], c.Target)
		g.prev[c.Target] = append(g.prev[c.Target], c.Source)
	}
	for _, ids := range g.next {
		sort.Strings(ids)
	}
	for _, ids := range g.prev {
		sort.Strings(ids)
	}
	return g
}

// blockers returns the direct blockers of id.
func (g *blockGraph) blockers(id string) []string {
	return g.prev[id]
}

// dependents returns the issues id directly blocks.
func (g *blockGraph) dependents(id string) []string {
	return g.next[id]
}

// path returns the shortest blocking path from -> ... -> to, or nil when to
// is unreachable. Breadth-first with a visited set, so work is bounded by
// the number of issues and no recursion is involved.
func (g *blockGraph) path(from, to string) []string {
	if from == to {
		return []string{from}
	}
	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.next[cur] {
			if _, seen := parent[n]; seen {
				continue
			}
			parent[n] = cur
			if n == to {
				var p []string
				for at := to; at != from; at = parent[at] {
					p = append(p, at)
				}
				p = append(p, from)
				for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
					p[i], p[j] = p[j], p[i]
				}
				return p
			}
			queue = append(queue, n)
		}
	}
	return nil
}

// reach returns root and every issue it transitively blocks, in
// breadth-first order.
func (g *blockGraph) reach(root string) []string {
	seen := map[string]bool{root: true}
	order := []string{root}
	for i := 0; i < len(order); i++ {
		for _, n := range g.next[order[i]] {
			if !seen[n] {
				seen[n] = true
				order = append(order, n)
			}
		}
	}
	return order
}

// wouldCycle reports the cycle that blocker blocks blocked would close: a
// path from blocked back to blocker, ending where it started.
func (g *blockGraph) wouldCycle(blocker, blocked string) *CycleError {
	p := g.path(blocked, blocker)
	if p == nil {
		return nil
	}
	return &CycleError{Path: append(p, blocked)}
}

// withDiff returns edges with added rows appended and removed rows dropped.
func withDiff(edges, added, removed []model.Edge) []model.Edge {
	drop := make(map[model.Edge]bool, len(removed))
	for _, e := range removed {
		drop[e] = true
	}
	out := make([]model.Edge, 0, len(edges)+len(added))
	for _, e := range edges {
		if !drop[e] {
			out = append(out, e)
		}
	}
	return append(out, added...)
}
