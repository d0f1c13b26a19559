// Package index maintains the persisted edge index: the de-duplicated set of
// every (source, relation, target) row derivable from issue relationship
// fields.
package index

import (
	"context"
	"fmt"

	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/store"
)

// Backend persists the edge set together with the store stamp it reflects.
type Backend interface {
	// Load returns the persisted edges and stamp. ok is false when no index
	// has been written yet.
	Load(ctx context.Context) (edges []model.Edge, stamp string, ok bool, err error)

	// Apply adds and removes rows and records stamp, all or nothing.
	Apply(ctx context.Context, add, remove []model.Edge, stamp string) error

	// Replace discards the persisted content and writes edges and stamp.
	Replace(ctx context.Context, edges []model.Edge, stamp string) error
}

// Index is an in-memory view of a Backend. It is not safe for concurrent
// mutation; callers serialize writes.
type Index struct {
	backend Backend

	loaded bool
	exists bool
	edges  map[model.Edge]struct{}
	stamp  string
}

// New returns an Index over backend. Nothing is read until first use.
func New(backend Backend) *Index {
	return &Index{backend: backend}
}

func (ix *Index) ensure(ctx context.Context) error {
	if ix.loaded {
		return nil
	}
	edges, stamp, ok, err := ix.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load edge index: %w", err)
	}
	ix.edges = toSet(edges)
	ix.stamp = stamp
	ix.exists = ok
	ix.loaded = true
	return nil
}

// Invalidate drops the in-memory view so the next call reloads the backend.
func (ix *Index) Invalidate() {
	ix.loaded = false
	ix.edges = nil
	ix.stamp = ""
	ix.exists = false
}

// State reports the stamp the index was last written with and whether a
// persisted index exists at all.
func (ix *Index) State(ctx context.Context) (stamp string, exists bool, err error) {
	if err := ix.ensure(ctx); err != nil {
		return "", false, err
	}
	return ix.stamp, ix.exists, nil
}

// Edges returns every row, sorted.
func (ix *Index) Edges(ctx context.Context) ([]model.Edge, error) {
	if err := ix.ensure(ctx); err != nil {
		return nil, err
	}
	return fromSet(ix.edges), nil
}

// Has reports whether the row is indexed.
func (ix *Index) Has(ctx context.Context, e model.Edge) (bool, error) {
	if err := ix.ensure(ctx); err != nil {
		return false, err
	}
	_, ok := ix.edges[e]
	return ok, nil
}

// Len returns the number of rows.
func (ix *Index) Len(ctx context.Context) (int, error) {
	if err := ix.ensure(ctx); err != nil {
		return 0, err
	}
	return len(ix.edges), nil
}

// Add indexes rows not already present and records stamp.
func (ix *Index) Add(ctx context.Context, stamp string, edges ...model.Edge) error {
	return ix.Apply(ctx, Diff{Added: edges}, stamp)
}

// Remove drops rows that are present and records stamp.
func (ix *Index) Remove(ctx context.Context, stamp string, edges ...model.Edge) error {
	return ix.Apply(ctx, Diff{Removed: edges}, stamp)
}

// Apply writes a diff through to the backend, then updates the in-memory
// view. A backend failure leaves the view unloaded.
func (ix *Index) Apply(ctx context.Context, d Diff, stamp string) error {
	if err := ix.ensure(ctx); err != nil {
		return err
	}
	var add, remove []model.Edge
	for _, e := range dedupe(d.Added) {
		if _, ok := ix.edges[e]; !ok {
			add = append(add, e)
		}
	}
	for _, e := range dedupe(d.Removed) {
		if _, ok := ix.edges[e]; ok {
			remove = append(remove, e)
		}
	}
	if err := ix.backend.Apply(ctx, add, remove, stamp); err != nil {
		ix.Invalidate()
		return fmt.Errorf("write edge index: %w", err)
	}
	for _, e := range add {
		ix.edges[e] = struct{}{}
	}
	for _, e := range remove {
		delete(ix.edges, e)
	}
	ix.stamp = stamp
	ix.exists = true
	return nil
}

// Replace discards all rows and writes edges, as a rebuild from scratch.
func (ix *Index) Replace(ctx context.Context, edges []model.Edge, stamp string) error {
	edges = dedupe(edges)
	if err := ix.backend.Replace(ctx, edges, stamp); err != nil {
		ix.Invalidate()
		return fmt.Errorf("replace edge index: %w", err)
	}
	ix.edges = toSet(edges)
	ix.stamp = stamp
	ix.exists = true
	ix.loaded = true
	return nil
}

// Diff describes how a rebuilt edge set differs from the index.
type Diff struct {
	Added   []model.Edge `json:"added,omitempty"`
	Removed []model.Edge `json:"removed,omitempty"`
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffAgainst compares rebuilt with the current rows. Added holds rows only
// in rebuilt; Removed holds rows only in the index.
func (ix *Index) DiffAgainst(ctx context.Context, rebuilt []model.Edge) (Diff, error) {
	if err := ix.ensure(ctx); err != nil {
		return Diff{}, err
	}
	return Compare(fromSet(ix.edges), rebuilt), nil
}

// Compare returns the diff that turns current into want.
func Compare(current, want []model.Edge) Diff {
	cur, next := toSet(current), toSet(want)
	var d Diff
	for e := range next {
		if _, ok := cur[e]; !ok {
			d.Added = append(d.Added, e)
		}
	}
	for e := range cur {
		if _, ok := next[e]; !ok {
			d.Removed = append(d.Removed, e)
		}
	}
	model.SortEdges(d.Added)
	model.SortEdges(d.Removed)
	return d
}

// Build derives the complete edge set from every issue's relationship
// fields.
func Build(ctx context.Context, s store.Store) ([]model.Edge, error) {
	issues, err := store.LoadAll(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("scan issues: %w", err)
	}
	var edges []model.Edge
	for _, issue := range issues {
		for _, e := range model.EdgesFrom(issue) {
			// A hand-edited field may name an id no issue can have.
			if model.ValidateID(e.Target) == nil {
				edges = append(edges, e)
			}
		}
	}
	return dedupe(edges), nil
}

func toSet(edges []model.Edge) map[model.Edge]struct{} {
	set := make(map[model.Edge]struct{}, len(edges))
	for _, e := range edges {
		set[e] = struct{}{}
	}
	return set
}

func fromSet(set map[model.Edge]struct{}) []model.Edge {
	edges := make([]model.Edge, 0, len(set))
	for e := range set {
		edges = append(edges, e)
	}
	model.SortEdges(edges)
	return edges
}

func dedupe(edges []model.Edge) []model.Edge {
	if len(edges) == 0 {
		return nil
	}
	return fromSet(toSet(edges))
}
