// Package server exposes the dependency graph engine over HTTP/JSON, gRPC
// and a server-sent event stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/rpc"
)

// GraphServer serves one graph engine to both transports.
type GraphServer struct {
	engine *graph.Engine
	hub    *Hub
	logger *slog.Logger
}

// NewGraphServer returns a GraphServer for engine. hub should be the same
// hub the engine publishes to; when nil a private hub is created and the
// event stream stays silent.
func NewGraphServer(engine *graph.Engine, hub *Hub) *GraphServer {
	if hub == nil {
		hub = NewHub()
	}
	return &GraphServer{
		engine: engine,
		hub:    hub,
		logger: slog.Default(),
	}
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

func validateEdge(r *rpc.EdgeRequest) error {
	switch {
	case strings.TrimSpace(r.Source) == "":
		return inputError("source is required")
	case strings.TrimSpace(r.Relation) == "":
		return inputError("relation is required")
	case strings.TrimSpace(r.Target) == "":
		return inputError("target is required")
	}
	return nil
}

func (s *GraphServer) createIssue(ctx context.Context, req *rpc.CreateIssueRequest) (*model.Issue, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, inputError("title is required")
	}
	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		return nil, inputError(err.Error())
	}
	issue := &model.Issue{ID: req.ID, Title: req.Title, Priority: priority}
	if err := s.engine.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *GraphServer) setStatus(ctx context.Context, id, status string) (*rpc.StatusResponse, error) {
	if id == "" {
		return nil, inputError("id is required")
	}
	if status == "" {
		return nil, inputError("status is required")
	}
	changes, err := s.engine.SetStatus(ctx, id, model.Status(status))
	if err != nil {
		return nil, err
	}
	if changes == nil {
		changes = []graph.StatusChange{}
	}
	return &rpc.StatusResponse{Changes: changes}, nil
}

// errorKind classifies err for the wire, treating inputError as
// invalid_argument.
func errorKind(err error) string {
	var ie inputError
	if errors.As(err, &ie) {
		return graph.KindInvalidArgument
	}
	return graph.ErrorKind(err)
}
