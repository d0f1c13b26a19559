package client

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/model"
)

var _ GraphClient = (*LocalClient)(nil)

// LocalClient drives an engine in the same process. It is what kd uses when
// no server is configured.
type LocalClient struct {
	engine *graph.Engine
	close  func() error
}

// NewLocalClient wraps engine. closeFn, if non-nil, runs on Close and
// normally releases the engine's store.
func NewLocalClient(engine *graph.Engine, closeFn func() error) *LocalClient {
	return &LocalClient{engine: engine, close: closeFn}
}

// Engine returns the wrapped engine.
func (c *LocalClient) Engine() *graph.Engine { return c.engine }

func (c *LocalClient) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

func (c *LocalClient) AddEdge(ctx context.Context, source, relation, target string) (*graph.Result, error) {
	return c.engine.AddEdge(ctx, source, relation, target)
}

func (c *LocalClient) RemoveEdge(ctx context.Context, source, relation, target string) (*graph.Result, error) {
	return c.engine.RemoveEdge(ctx, source, relation, target)
}

func (c *LocalClient) Edges(ctx context.Context) ([]model.Edge, error) {
	return c.engine.Edges(ctx)
}

func (c *LocalClient) Deps(ctx context.Context, id string) (*graph.DepSet, error) {
	return c.engine.Deps(ctx, id)
}

func (c *LocalClient) Rebuild(ctx context.Context) (*graph.RebuildResult, error) {
	return c.engine.Rebuild(ctx)
}

func (c *LocalClient) Ready(ctx context.Context) ([]*model.Issue, error) {
	return c.engine.Ready(ctx)
}

func (c *LocalClient) Topo(ctx context.Context) ([]*model.Issue, error) {
	return c.engine.Topo(ctx)
}

func (c *LocalClient) Export(ctx context.Context, format graph.Format, root string) (string, error) {
	var buf bytes.Buffer
	if err := c.engine.Export(ctx, &buf, format, root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (c *LocalClient) CreateIssue(ctx context.Context, req *CreateIssueRequest) (*model.Issue, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", graph.ErrInvalidArgument)
	}
	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", graph.ErrInvalidArgument, err)
	}
	issue := &model.Issue{ID: req.ID, Title: req.Title, Priority: priority}
	if err := c.engine.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

func (c *LocalClient) Issue(ctx context.Context, id string) (*model.Issue, error) {
	return c.engine.Issue(ctx, id)
}

func (c *LocalClient) SetStatus(ctx context.Context, id string, status model.Status) ([]graph.StatusChange, error) {
	return c.engine.SetStatus(ctx, id, status)
}

// Health reports ok once the store answers a stamp query.
func (c *LocalClient) Health(ctx context.Context) (string, error) {
	if _, err := c.engine.Store().Stamp(ctx); err != nil {
		return "", fmt.Errorf("store: %w", err)
	}
	return "ok", nil
}
