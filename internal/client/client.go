// Package client provides a transport-agnostic interface to the dependency
// graph, with in-process, HTTP/JSON and gRPC implementations. Every
// implementation returns the typed errors of package graph, so callers test
// failures with errors.Is and errors.As regardless of transport.
package client

import (
	"context"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/model"
)

// GraphClient is the interface every kd command uses.
type GraphClient interface {
	// Edges
	AddEdge(ctx context.Context, source, relation, target string) (*graph.Result, error)
	RemoveEdge(ctx context.Context, source, relation, target string) (*graph.Result, error)
	Edges(ctx context.Context) ([]model.Edge, error)
	Deps(ctx context.Context, id string) (*graph.DepSet, error)
	Rebuild(ctx context.Context) (*graph.RebuildResult, error)

	// Queries
	Ready(ctx context.Context) ([]*model.Issue, error)
	Topo(ctx context.Context) ([]*model.Issue, error)
	Export(ctx context.Context, format graph.Format, root string) (string, error)

	// Issues
	CreateIssue(ctx context.Context, req *CreateIssueRequest) (*model.Issue, error)
	Issue(ctx context.Context, id string) (*model.Issue, error)
	SetStatus(ctx context.Context, id string, status model.Status) ([]graph.StatusChange, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// CreateIssueRequest holds parameters for creating an issue. ID is
// generated when empty; Priority defaults to medium.
type CreateIssueRequest struct {
	ID       string
	Title    string
	Priority string
}
