package rpc

import "github.com/groblegark/kdeps/internal/graph"

// EdgeRequest names one edge for AddEdge and RemoveEdge.
type EdgeRequest struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

// IDRequest addresses a single issue.
type IDRequest struct {
	ID string `json:"id"`
}

// CreateIssueRequest is the body of an issue creation. ID is generated when
// empty.
type CreateIssueRequest struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
	Priority string `json:"priority,omitempty"`
}

// StatusRequest sets an issue status. ID is taken from the URL over HTTP.
type StatusRequest struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
}

// StatusResponse lists every status write a request caused.
type StatusResponse struct {
	Changes []graph.StatusChange `json:"changes"`
}

// ExportRequest selects an export format and optional root.
type ExportRequest struct {
	Format string `json:"format,omitempty"`
	Root   string `json:"root,omitempty"`
}

// ExportResponse carries the rendered graph.
type ExportResponse struct {
	Output string `json:"output"`
}

// ErrorBody is the JSON shape of every HTTP error response.
type ErrorBody struct {
	Error string   `json:"error"`
	Kind  string   `json:"kind,omitempty"`
	IDs   []string `json:"ids,omitempty"`
}
