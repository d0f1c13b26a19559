package graph

import (
	"container/heap"
	"context"
	"sort"

	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/store"
)

// snapshot catches the index up and returns every issue with the rows.
func (e *Engine) snapshot(ctx context.Context) ([]*model.Issue, []model.Edge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.refresh(ctx); err != nil {
		return nil, nil, err
	}
	edges, err := e.index.Edges(ctx)
	if err != nil {
		return nil, nil, err
	}
	issues, err := store.LoadAll(ctx, e.store)
	if err != nil {
		return nil, nil, err
	}
	return issues, edges, nil
}

// Ready returns the issues that can be worked on now, those neither blocked
// nor closed, highest priority first and then by ascending id. The catch-up
// in snapshot has already settled the status of hand-edited dependents.
func (e *Engine) Ready(ctx context.Context) (ready []*model.Issue, err error) {
	ctx, span := e.start(ctx, "graph.Ready")
	defer func() { endSpan(span, err) }()

	issues, _, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		if issue.Status == model.StatusBlocked || issue.Status == model.StatusClosed {
			continue
		}
		ready = append(ready, issue)
	}
	sort.SliceStable(ready, func(i, j int) bool { return before(ready[i], ready[j]) })
	return ready, nil
}

// Topo orders every non-closed issue so that each blocker precedes the
// issues it blocks. Among issues that are free at the same time the higher
// priority comes first, then the lower id. Closed issues neither appear nor
// constrain the order.
func (e *Engine) Topo(ctx context.Context) (order []*model.Issue, err error) {
	ctx, span := e.start(ctx, "graph.Topo")
	defer func() { endSpan(span, err) }()

	issues, edges, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return topoSort(issues, newBlockGraph(edges))
}

func topoSort(issues []*model.Issue, g *blockGraph) ([]*model.Issue, error) {
	open := make(map[string]*model.Issue)
	for _, issue := range issues {
		if issue.Status != model.StatusClosed {
			open[issue.ID] = issue
		}
	}

	indegree := make(map[string]int, len(open))
	for id := range open {
		for _, b := range g.blockers(id) {
			if _, ok := open[b]; ok {
				indegree[id]++
			}
		}
	}

	frontier := &issueHeap{}
	for id, issue := range open {
		if indegree[id] == 0 {
			heap.Push(frontier, issue)
		}
	}

	order := make([]*model.Issue, 0, len(open))
	for frontier.Len() > 0 {
		issue := heap.Pop(frontier).(*model.Issue)
		order = append(order, issue)
		for _, dep := range g.dependents(issue.ID) {
			if _, ok := open[dep]; !ok {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				heap.Push(frontier, open[dep])
			}
		}
	}

	if len(order) < len(open) {
		var residual []string
		for id := range open {
			if indegree[id] > 0 {
				residual = append(residual, id)
			}
		}
		sort.Strings(residual)
		return nil, &CycleError{Path: residual}
	}
	return order, nil
}

// DepSet lists an issue's relationships as recorded in the index.
type DepSet struct {
	ID        string   `json:"id"`
	Blocks    []string `json:"blocks"`
	DependsOn []string `json:"depends_on"`
	ParentOf  []string `json:"parent_of"`
	RelatesTo []string `json:"relates_to"`
}

// Deps returns the relationships of one issue. Blocking relationships are
// read from both directions, so an edge recorded on either issue shows on
// both.
func (e *Engine) Deps(ctx context.Context, id string) (deps *DepSet, err error) {
	ctx, span := e.start(ctx, "graph.Deps")
	defer func() { endSpan(span, err) }()

	if err := e.requireExists(ctx, id); err != nil {
		return nil, err
	}
	_, edges, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	g := newBlockGraph(edges)
	deps = &DepSet{
		ID:        id,
		Blocks:    nonNil(g.dependents(id)),
		DependsOn: nonNil(g.blockers(id)),
		ParentOf:  []string{},
		RelatesTo: []string{},
	}
	for _, row := range edges {
		if row.Source != id {
			continue
		}
		switch row.Relation {
		case model.ParentOf:
			deps.ParentOf = append(deps.ParentOf, row.Target)
		case model.RelatesTo:
			deps.RelatesTo = append(deps.RelatesTo, row.Target)
		}
	}
	return deps, nil
}

// Edges returns every indexed row, sorted.
func (e *Engine) Edges(ctx context.Context) (edges []model.Edge, err error) {
	ctx, span := e.start(ctx, "graph.Edges")
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.refresh(ctx); err != nil {
		return nil, err
	}
	return e.index.Edges(ctx)
}

// before orders by priority descending, then id ascending.
func before(a, b *model.Issue) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	return a.ID < b.ID
}

type issueHeap []*model.Issue

func (h issueHeap) Len() int           { return len(h) }
func (h issueHeap) Less(i, j int) bool { return before(h[i], h[j]) }
func (h issueHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *issueHeap) Push(x any)        { *h = append(*h, x.(*model.Issue)) }
func (h *issueHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return append([]string(nil), ids...)
}
