// Package graph is the dependency engine: it validates and applies edge
// mutations, keeps the edge index in step with issue fields, drives the
// automatic blocked/open state machine and answers ready, topo and export
// queries.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/groblegark/kdeps/internal/events"
	"github.com/groblegark/kdeps/internal/idgen"
	"github.com/groblegark/kdeps/internal/index"
	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/store"
)

const tracerName = "github.com/groblegark/kdeps/internal/graph"

// Engine owns the edge index for one issue store. All operations are
// serialized; each mutation runs to completion before the next starts.
type Engine struct {
	mu        sync.Mutex
	store     store.Store
	index     *index.Index
	publisher events.Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the event publisher. The default discards events.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New returns an Engine over s whose edge index is kept in ix.
func New(s store.Store, ix *index.Index, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		index:     ix,
		publisher: &events.NoopPublisher{},
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the underlying issue store.
func (e *Engine) Store() store.Store {
	return e.store
}

// Result describes the outcome of AddEdge or RemoveEdge.
type Result struct {
	Edge    model.Edge     `json:"edge"`
	Changed bool           `json:"changed"`
	Status  []StatusChange `json:"status_changes,omitempty"`
}

// AddEdge records source -relation-> target. A depends_on request is stored
// as the equivalent blocks edge. Every check completes before anything is
// written: self reference, then missing issues, then the relation name,
// then cycles in the blocking subgraph. Adding an edge that already exists
// succeeds with Changed false.
func (e *Engine) AddEdge(ctx context.Context, source, relation, target string) (res *Result, err error) {
	ctx, span := e.start(ctx, "graph.AddEdge",
		attribute.String("edge.source", source),
		attribute.String("edge.relation", relation),
		attribute.String("edge.target", target))
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	edge, err := e.validateEdge(ctx, source, relation, target)
	if err != nil {
		return nil, err
	}
	if _, err := e.refresh(ctx); err != nil {
		return nil, err
	}
	edges, err := e.index.Edges(ctx)
	if err != nil {
		return nil, err
	}
	if edge.Relation == model.Blocks {
		if cyc := newBlockGraph(edges).wouldCycle(edge.Source, edge.Target); cyc != nil {
			return nil, cyc
		}
	}

	rows := edge.WithInverse()
	after := newBlockGraph(withDiff(edges, rows, nil))
	res = &Result{Edge: edge}
	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		for _, row := range rows {
			changed, err := addToField(ctx, tx, row)
			if err != nil {
				return err
			}
			res.Changed = res.Changed || changed
		}
		if edge.Relation == model.Blocks {
			sc, err := reevaluate(ctx, tx, after, edge.Target)
			if err != nil {
				return err
			}
			res.Status = appendChange(res.Status, sc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add edge %s: %w", edge, err)
	}

	e.syncIndex(ctx, index.Diff{Added: rows})
	if res.Changed {
		e.publish(ctx, events.TopicEdgeAdded, events.EdgeAdded{Edge: edge})
	}
	e.publishStatus(ctx, res.Status, edge.Source)
	return res, nil
}

// RemoveEdge deletes source -relation-> target and its inverse row. Removing
// an edge that does not exist fails with ErrEdgeNotFound and writes nothing.
func (e *Engine) RemoveEdge(ctx context.Context, source, relation, target string) (res *Result, err error) {
	ctx, span := e.start(ctx, "graph.RemoveEdge",
		attribute.String("edge.source", source),
		attribute.String("edge.relation", relation),
		attribute.String("edge.target", target))
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	edge, err := e.validateEdge(ctx, source, relation, target)
	if err != nil {
		return nil, err
	}
	if _, err := e.refresh(ctx); err != nil {
		return nil, err
	}
	edges, err := e.index.Edges(ctx)
	if err != nil {
		return nil, err
	}

	rows := edge.WithInverse()
	present := false
	for _, row := range rows {
		ok, err := e.index.Has(ctx, row)
		if err != nil {
			return nil, err
		}
		present = present || ok
	}
	if !present {
		return nil, fmt.Errorf("%s: %w", edge, ErrEdgeNotFound)
	}

	after := newBlockGraph(withDiff(edges, nil, rows))
	res = &Result{Edge: edge}
	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		for _, row := range rows {
			changed, err := removeFromField(ctx, tx, row)
			if err != nil {
				return err
			}
			res.Changed = res.Changed || changed
		}
		if edge.Relation == model.Blocks {
			sc, err := reevaluate(ctx, tx, after, edge.Target)
			if err != nil {
				return err
			}
			res.Status = appendChange(res.Status, sc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove edge %s: %w", edge, err)
	}

	e.syncIndex(ctx, index.Diff{Removed: rows})
	e.publish(ctx, events.TopicEdgeRemoved, events.EdgeRemoved{Edge: edge})
	e.publishStatus(ctx, res.Status, edge.Source)
	return res, nil
}

// SetStatus writes an owner-requested status and re-evaluates every issue
// the changed issue directly blocks. A non-closed status requested for an
// issue that still has an unresolved blocker lands as blocked.
func (e *Engine) SetStatus(ctx context.Context, id string, status model.Status) (changes []StatusChange, err error) {
	ctx, span := e.start(ctx, "graph.SetStatus",
		attribute.String("issue.id", id),
		attribute.String("issue.status", string(status)))
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !status.IsValid() {
		return nil, fmt.Errorf("status %q: %w", status, ErrInvalidArgument)
	}
	if err := e.requireExists(ctx, id); err != nil {
		return nil, err
	}
	if _, err := e.refresh(ctx); err != nil {
		return nil, err
	}
	edges, err := e.index.Edges(ctx)
	if err != nil {
		return nil, err
	}
	g := newBlockGraph(edges)

	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		cur, err := tx.GetField(ctx, id, model.FieldStatus)
		if err != nil {
			return err
		}
		next := status
		if next != model.StatusClosed {
			statuses, err := blockerStatuses(ctx, tx, g.blockers(id))
			if err != nil {
				return err
			}
			if RecomputeStatus(model.StatusOpen, statuses) == model.StatusBlocked {
				next = model.StatusBlocked
			}
		}
		if next != model.Status(cur) {
			if err := tx.SetFields(ctx, id, map[string]string{model.FieldStatus: string(next)}); err != nil {
				return err
			}
			changes = append(changes, StatusChange{ID: id, From: model.Status(cur), To: next})
		}

		for _, dep := range g.dependents(id) {
			ok, err := tx.Exists(ctx, dep)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			sc, err := reevaluate(ctx, tx, g, dep)
			if err != nil {
				return err
			}
			changes = appendChange(changes, sc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set status of %s: %w", id, err)
	}

	e.syncIndex(ctx, index.Diff{})
	e.publishStatus(ctx, changes, id)
	return changes, nil
}

// Close marks an issue closed and cascades to its dependents.
func (e *Engine) Close(ctx context.Context, id string) ([]StatusChange, error) {
	return e.SetStatus(ctx, id, model.StatusClosed)
}

// Reopen moves an issue back to open, or blocked if a blocker is unresolved.
func (e *Engine) Reopen(ctx context.Context, id string) ([]StatusChange, error) {
	return e.SetStatus(ctx, id, model.StatusOpen)
}

// CreateIssue validates and stores a new issue. An empty ID is filled with
// a generated one. Relationship fields must be empty; edges are added
// through AddEdge.
func (e *Engine) CreateIssue(ctx context.Context, issue *model.Issue) (err error) {
	ctx, span := e.start(ctx, "graph.CreateIssue", attribute.String("issue.id", issue.ID))
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if issue.ID == "" {
		id, err := idgen.Default.Unique(func(id string) (bool, error) {
			return e.store.Exists(ctx, id)
		})
		if err != nil {
			return fmt.Errorf("create issue: %w", err)
		}
		issue.ID = id
	}
	if issue.Status == "" {
		issue.Status = model.StatusOpen
	}
	if issue.Priority == "" {
		issue.Priority = model.PriorityMedium
	}
	if err := model.ValidateIssue(issue); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	for _, r := range model.Relations {
		if len(issue.Related(r)) > 0 {
			return fmt.Errorf("%w: %s must be empty on create", ErrInvalidArgument, r.Field())
		}
	}
	if err := e.store.CreateIssue(ctx, issue); err != nil {
		if errors.Is(err, store.ErrExists) {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		return fmt.Errorf("create issue: %w", err)
	}
	e.syncIndex(ctx, index.Diff{})
	e.publish(ctx, events.TopicIssueCreated, events.IssueCreated{Issue: issue})
	return nil
}

// Issue loads one issue.
func (e *Engine) Issue(ctx context.Context, id string) (*model.Issue, error) {
	if err := e.requireExists(ctx, id); err != nil {
		return nil, err
	}
	return store.LoadIssue(ctx, e.store, id)
}

// RebuildResult summarizes a rebuild or catch-up.
type RebuildResult struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Total   int `json:"total"`
}

// Rebuild regenerates the index from every issue's fields, discarding its
// prior content, and reports how the rebuilt set differs from the old one.
func (e *Engine) Rebuild(ctx context.Context) (res *RebuildResult, err error) {
	ctx, span := e.start(ctx, "graph.Rebuild")
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	d, total, err := e.rebuild(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.settleBlocked(ctx, d); err != nil {
		return nil, err
	}
	res = &RebuildResult{Added: len(d.Added), Removed: len(d.Removed), Total: total}
	e.logger.Info("edge index rebuilt", "added", res.Added, "removed", res.Removed, "total", res.Total)
	e.publish(ctx, events.TopicIndexRebuilt, events.IndexChanged(*res))
	return res, nil
}

// Refresh catches the index up with the store if the store changed since
// the index was last written. It is run before every query and mutation.
func (e *Engine) Refresh(ctx context.Context) (res *RebuildResult, err error) {
	ctx, span := e.start(ctx, "graph.Refresh")
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.refresh(ctx)
	if err != nil {
		return nil, err
	}
	n, err := e.index.Len(ctx)
	if err != nil {
		return nil, err
	}
	return &RebuildResult{Added: len(d.Added), Removed: len(d.Removed), Total: n}, nil
}

// refresh compares the store stamp with the stamp recorded in the index and
// applies only the difference between the index and a fresh build.
func (e *Engine) refresh(ctx context.Context) (index.Diff, error) {
	stamp, err := e.store.Stamp(ctx)
	if err != nil {
		return index.Diff{}, fmt.Errorf("stamp store: %w", err)
	}
	recorded, exists, err := e.index.State(ctx)
	if err != nil {
		e.logger.Warn("edge index unreadable, rebuilding", "error", err)
		d, _, err := e.rebuild(ctx)
		if err != nil {
			return index.Diff{}, err
		}
		return d, e.settleBlocked(ctx, d)
	}
	if exists && recorded == stamp {
		return index.Diff{}, nil
	}

	rebuilt, err := index.Build(ctx, e.store)
	if err != nil {
		return index.Diff{}, err
	}
	d, err := e.index.DiffAgainst(ctx, rebuilt)
	if err != nil {
		return index.Diff{}, err
	}
	if !exists && len(rebuilt) == 0 {
		return d, nil
	}
	if err := e.index.Apply(ctx, d, stamp); err != nil {
		return index.Diff{}, err
	}
	if d.Empty() {
		return d, nil
	}
	n, err := e.index.Len(ctx)
	if err != nil {
		return index.Diff{}, err
	}
	e.logger.Info("edge index caught up", "added", len(d.Added), "removed", len(d.Removed))
	e.publish(ctx, events.TopicIndexCaughtUp, events.IndexChanged{Added: len(d.Added), Removed: len(d.Removed), Total: n})
	return d, e.settleBlocked(ctx, d)
}

// settleBlocked re-evaluates the target of every blocking row in d, so a
// dependency added or dropped by hand blocks or unblocks its target the way
// AddEdge and RemoveEdge would.
func (e *Engine) settleBlocked(ctx context.Context, d index.Diff) error {
	targets := blockedTargets(d)
	if len(targets) == 0 {
		return nil
	}
	edges, err := e.index.Edges(ctx)
	if err != nil {
		return err
	}
	g := newBlockGraph(edges)
	var changes []StatusChange
	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		for _, id := range targets {
			sc, err := reevaluate(ctx, tx, g, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			changes = appendChange(changes, sc)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("re-evaluate status: %w", err)
	}
	if len(changes) == 0 {
		return nil
	}
	e.syncIndex(ctx, index.Diff{})
	e.logger.Info("status re-evaluated after catch-up", "changed", len(changes))
	e.publishStatus(ctx, changes, "")
	return nil
}

// blockedTargets lists, once each and sorted, the blocked side of every
// blocking row added or removed by d.
func blockedTargets(d index.Diff) []string {
	var ids []string
	for _, rows := range [][]model.Edge{d.Added, d.Removed} {
		for _, row := range rows {
			if row.Relation.Blocking() {
				ids = append(ids, row.Canonical().Target)
			}
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (e *Engine) rebuild(ctx context.Context) (index.Diff, int, error) {
	stamp, err := e.store.Stamp(ctx)
	if err != nil {
		return index.Diff{}, 0, fmt.Errorf("stamp store: %w", err)
	}
	rebuilt, err := index.Build(ctx, e.store)
	if err != nil {
		return index.Diff{}, 0, err
	}
	d, err := e.index.DiffAgainst(ctx, rebuilt)
	if err != nil {
		d = index.Compare(nil, rebuilt)
	}
	if err := e.index.Replace(ctx, rebuilt, stamp); err != nil {
		return index.Diff{}, 0, err
	}
	return d, len(rebuilt), nil
}

// syncIndex applies a committed mutation's rows to the index and records
// the new store stamp. A failure here leaves the old stamp in place, so the
// next refresh repairs the index from the store.
func (e *Engine) syncIndex(ctx context.Context, d index.Diff) {
	if _, exists, err := e.index.State(ctx); err == nil && !exists && d.Empty() {
		return
	}
	stamp, err := e.store.Stamp(ctx)
	if err != nil {
		e.logger.Warn("failed to stamp store after write", "error", err)
		e.index.Invalidate()
		return
	}
	if err := e.index.Apply(ctx, d, stamp); err != nil {
		e.logger.Warn("edge index update failed, will catch up on next read", "error", err)
	}
}

func (e *Engine) validateEdge(ctx context.Context, source, relation, target string) (model.Edge, error) {
	if source == target {
		return model.Edge{}, fmt.Errorf("%s: %w", source, ErrSelfReference)
	}
	var missing []string
	for _, id := range []string{source, target} {
		ok, err := e.store.Exists(ctx, id)
		if err != nil {
			return model.Edge{}, fmt.Errorf("check issue %s: %w", id, err)
		}
		if !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return model.Edge{}, &NotFoundError{IDs: missing}
	}
	r, err := model.ParseRelation(relation)
	if err != nil {
		return model.Edge{}, fmt.Errorf("%w: %q (want blocks, depends_on, parent_of or relates_to)", ErrInvalidRelation, relation)
	}
	return model.Edge{Source: source, Relation: r, Target: target}.Canonical(), nil
}

func (e *Engine) requireExists(ctx context.Context, id string) error {
	ok, err := e.store.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check issue %s: %w", id, err)
	}
	if !ok {
		return &NotFoundError{IDs: []string{id}}
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, topic string, event any) {
	if err := e.publisher.Publish(ctx, topic, event); err != nil {
		e.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func (e *Engine) publishStatus(ctx context.Context, changes []StatusChange, cause string) {
	for _, c := range changes {
		e.publish(ctx, events.TopicStatusChanged, events.StatusChanged{IssueID: c.ID, From: c.From, To: c.To, Cause: cause})
	}
}

func (e *Engine) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// reevaluate applies RecomputeStatus to id using the blockers recorded in g.
func reevaluate(ctx context.Context, tx store.Store, g *blockGraph, id string) (*StatusChange, error) {
	cur, err := tx.GetField(ctx, id, model.FieldStatus)
	if err != nil {
		return nil, err
	}
	statuses, err := blockerStatuses(ctx, tx, g.blockers(id))
	if err != nil {
		return nil, err
	}
	next := RecomputeStatus(model.Status(cur), statuses)
	if next == model.Status(cur) {
		return nil, nil
	}
	if err := tx.SetFields(ctx, id, map[string]string{model.FieldStatus: string(next)}); err != nil {
		return nil, err
	}
	return &StatusChange{ID: id, From: model.Status(cur), To: next}, nil
}

// blockerStatuses reads the status of each blocker. A blocker that no longer
// exists counts as unresolved.
func blockerStatuses(ctx context.Context, tx store.Store, ids []string) ([]model.Status, error) {
	statuses := make([]model.Status, 0, len(ids))
	for _, id := range ids {
		s, err := tx.GetField(ctx, id, model.FieldStatus)
		if errors.Is(err, store.ErrNotFound) {
			statuses = append(statuses, model.StatusOpen)
			continue
		}
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, model.Status(s))
	}
	return statuses, nil
}

func addToField(ctx context.Context, tx store.Store, row model.Edge) (bool, error) {
	field := row.Relation.Field()
	raw, err := tx.GetField(ctx, row.Source, field)
	if err != nil {
		return false, err
	}
	ids, changed := model.AddToList(model.ParseList(raw), row.Target)
	if !changed {
		return false, nil
	}
	return true, tx.SetFields(ctx, row.Source, map[string]string{field: model.FormatList(ids)})
}

func removeFromField(ctx context.Context, tx store.Store, row model.Edge) (bool, error) {
	field := row.Relation.Field()
	raw, err := tx.GetField(ctx, row.Source, field)
	if err != nil {
		return false, err
	}
	ids, found := model.RemoveFromList(model.ParseList(raw), row.Target)
	if !found {
		return false, nil
	}
	return true, tx.SetFields(ctx, row.Source, map[string]string{field: model.FormatList(ids)})
}

func appendChange(changes []StatusChange, sc *StatusChange) []StatusChange {
	if sc == nil {
		return changes
	}
	return append(changes, *sc)
}
