package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/rpc"
)

var _ GraphClient = (*HTTPClient)(nil)

// maxErrorBody caps how much of an error response is kept for the message.
const maxErrorBody = 4 << 10

// HTTPClient talks to the /v1 HTTP/JSON API of kd serve.
type HTTPClient struct {
	base  string
	token string
	hc    *http.Client
}

// NewHTTPClient targets baseURL, e.g. "http://localhost:8080". A non-empty
// token is sent as a bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		hc:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) AddEdge(ctx context.Context, source, relation, target string) (*graph.Result, error) {
	req := rpc.EdgeRequest{Source: source, Relation: relation, Target: target}
	return call[*graph.Result](ctx, c, http.MethodPost, "/v1/edges", req)
}

func (c *HTTPClient) RemoveEdge(ctx context.Context, source, relation, target string) (*graph.Result, error) {
	q := url.Values{"source": {source}, "relation": {relation}, "target": {target}}
	return call[*graph.Result](ctx, c, http.MethodDelete, "/v1/edges?"+q.Encode(), nil)
}

func (c *HTTPClient) Edges(ctx context.Context) ([]model.Edge, error) {
	resp, err := call[struct {
		Edges []model.Edge `json:"edges"`
	}](ctx, c, http.MethodGet, "/v1/deps", nil)
	return resp.Edges, err
}

func (c *HTTPClient) Deps(ctx context.Context, id string) (*graph.DepSet, error) {
	return call[*graph.DepSet](ctx, c, http.MethodGet, issuePath("/v1/deps", id), nil)
}

func (c *HTTPClient) Rebuild(ctx context.Context) (*graph.RebuildResult, error) {
	return call[*graph.RebuildResult](ctx, c, http.MethodPost, "/v1/index/rebuild", nil)
}

func (c *HTTPClient) Ready(ctx context.Context) ([]*model.Issue, error) {
	return c.issueList(ctx, "/v1/ready")
}

func (c *HTTPClient) Topo(ctx context.Context) ([]*model.Issue, error) {
	return c.issueList(ctx, "/v1/topo")
}

func (c *HTTPClient) issueList(ctx context.Context, path string) ([]*model.Issue, error) {
	resp, err := call[struct {
		Issues []*model.Issue `json:"issues"`
	}](ctx, c, http.MethodGet, path, nil)
	return resp.Issues, err
}

// Export returns the rendered graph as served, without JSON decoding.
func (c *HTTPClient) Export(ctx context.Context, format graph.Format, root string) (string, error) {
	q := url.Values{}
	if format != "" {
		q.Set("format", string(format))
	}
	if root != "" {
		q.Set("root", root)
	}
	path := "/v1/export"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	body, err := c.send(ctx, http.MethodGet, path, nil)
	return string(body), err
}

func (c *HTTPClient) CreateIssue(ctx context.Context, req *CreateIssueRequest) (*model.Issue, error) {
	body := rpc.CreateIssueRequest{ID: req.ID, Title: req.Title, Priority: req.Priority}
	return call[*model.Issue](ctx, c, http.MethodPost, "/v1/issues", body)
}

func (c *HTTPClient) Issue(ctx context.Context, id string) (*model.Issue, error) {
	return call[*model.Issue](ctx, c, http.MethodGet, issuePath("/v1/issues", id), nil)
}

func (c *HTTPClient) SetStatus(ctx context.Context, id string, status model.Status) ([]graph.StatusChange, error) {
	resp, err := call[rpc.StatusResponse](ctx, c, http.MethodPut, issuePath("/v1/issues", id)+"/status", rpc.StatusRequest{Status: string(status)})
	return resp.Changes, err
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	resp, err := call[struct {
		Status string `json:"status"`
	}](ctx, c, http.MethodGet, "/v1/health", nil)
	return resp.Status, err
}

func issuePath(prefix, id string) string {
	return prefix + "/" + url.PathEscape(id)
}

// APIError is an HTTP failure that carries no graph error kind, such as a
// rejected token or a proxy error page.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// call sends body as JSON and decodes the JSON response into a T.
func call[T any](ctx context.Context, c *HTTPClient, method, path string, body any) (T, error) {
	var out T
	data, err := c.send(ctx, method, path, body)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return out, nil
}

// send performs one request and returns the response body. Error responses
// that name a graph error kind are rebuilt as that typed error.
func (c *HTTPClient) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "kd")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusBadRequest {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading %s %s response: %w", method, path, err)
		}
		return data, nil
	}
	return nil, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb rpc.ErrorBody
	if err := json.Unmarshal(data, &eb); err != nil || eb.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if eb.Kind != "" {
		return graph.ErrorFromKind(eb.Kind, eb.Error, eb.IDs)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: eb.Error}
}
