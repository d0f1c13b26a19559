package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/rpc"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *GraphServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/edges", s.handleAddEdge)
	mux.HandleFunc("DELETE /v1/edges", s.handleRemoveEdge)
	mux.HandleFunc("GET /v1/deps", s.handleListEdges)
	mux.HandleFunc("GET /v1/deps/{id}", s.handleGetDeps)
	mux.HandleFunc("POST /v1/index/rebuild", s.handleRebuild)
	mux.HandleFunc("GET /v1/ready", s.handleReady)
	mux.HandleFunc("GET /v1/topo", s.handleTopo)
	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("POST /v1/issues", s.handleCreateIssue)
	mux.HandleFunc("GET /v1/issues/{id}", s.handleGetIssue)
	mux.HandleFunc("PUT /v1/issues/{id}/status", s.handleSetStatus)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *GraphServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, rpc.ErrorBody{Error: message})
}

// writeGraphError maps an engine error to its HTTP status. Internal errors
// are logged and reported without detail.
func (s *GraphServer) writeGraphError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errorKind(err)
	status := httpStatus(kind)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeJSON(w, status, rpc.ErrorBody{Error: err.Error(), Kind: kind, IDs: graph.ErrorIDs(err)})
}

func httpStatus(kind string) int {
	switch kind {
	case graph.KindSelfReference, graph.KindInvalidRelation, graph.KindInvalidArgument:
		return http.StatusBadRequest
	case graph.KindNotFound, graph.KindEdgeNotFound:
		return http.StatusNotFound
	case graph.KindCycleDetected:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return inputError("invalid JSON body")
	}
	return nil
}

// handleAddEdge handles POST /v1/edges.
func (s *GraphServer) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	var req rpc.EdgeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	if err := validateEdge(&req); err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	res, err := s.engine.AddEdge(r.Context(), req.Source, req.Relation, req.Target)
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Changed {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// handleRemoveEdge handles DELETE /v1/edges. The edge is read from the
// source, relation and target query parameters.
func (s *GraphServer) handleRemoveEdge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := rpc.EdgeRequest{Source: q.Get("source"), Relation: q.Get("relation"), Target: q.Get("target")}
	if err := validateEdge(&req); err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	res, err := s.engine.RemoveEdge(r.Context(), req.Source, req.Relation, req.Target)
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListEdges handles GET /v1/deps.
func (s *GraphServer) handleListEdges(w http.ResponseWriter, r *http.Request) {
	edges, err := s.engine.Edges(r.Context())
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	if edges == nil {
		edges = []model.Edge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"edges": edges})
}

// handleGetDeps handles GET /v1/deps/{id}.
func (s *GraphServer) handleGetDeps(w http.ResponseWriter, r *http.Request) {
	deps, err := s.engine.Deps(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

// handleRebuild handles POST /v1/index/rebuild.
func (s *GraphServer) handleRebuild(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Rebuild(r.Context())
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleReady handles GET /v1/ready.
func (s *GraphServer) handleReady(w http.ResponseWriter, r *http.Request) {
	issues, err := s.engine.Ready(r.Context())
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": nonNilIssues(issues)})
}

// handleTopo handles GET /v1/topo.
func (s *GraphServer) handleTopo(w http.ResponseWriter, r *http.Request) {
	issues, err := s.engine.Topo(r.Context())
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": nonNilIssues(issues)})
}

// handleExport handles GET /v1/export?format=text|dot|mermaid&root=<id>.
func (s *GraphServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := graph.ParseFormat(q.Get("format"))
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := s.engine.Export(r.Context(), &buf, format, q.Get("root")); err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", exportContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func exportContentType(f graph.Format) string {
	switch f {
	case graph.FormatDOT:
		return "text/vnd.graphviz; charset=utf-8"
	case graph.FormatMermaid:
		return "text/vnd.mermaid; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

// handleCreateIssue handles POST /v1/issues.
func (s *GraphServer) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var req rpc.CreateIssueRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	issue, err := s.createIssue(r.Context(), &req)
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

// handleGetIssue handles GET /v1/issues/{id}.
func (s *GraphServer) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.engine.Issue(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// handleSetStatus handles PUT /v1/issues/{id}/status.
func (s *GraphServer) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req rpc.StatusRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	resp, err := s.setStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func nonNilIssues(issues []*model.Issue) []*model.Issue {
	if issues == nil {
		return []*model.Issue{}
	}
	return issues
}
