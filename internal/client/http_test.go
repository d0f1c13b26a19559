package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	method string
	path   string
	query  string
	auth   string
	agent  string
	body   string

	statusCode   int
	contentType  string
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.EscapedPath()
	h.query = r.URL.RawQuery
	h.auth = r.Header.Get("Authorization")
	h.agent = r.Header.Get("User-Agent")
	data, _ := io.ReadAll(r.Body)
	h.body = string(data)

	ct := h.contentType
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	}
	_, _ = io.WriteString(w, h.responseBody)
}

func newTestClient(t *testing.T, h http.Handler, token string) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", token)
}

func TestHTTPClient_Requests(t *testing.T) {
	for _, tc := range []struct {
		name      string
		call      func(c *HTTPClient) error
		response  string
		wantVerb  string
		wantPath  string
		wantQuery string
		wantBody  string
	}{
		{
			name:     "add edge",
			call:     func(c *HTTPClient) error { _, err := c.AddEdge(context.Background(), "a", "blocks", "b"); return err },
			response: `{"edge":{"source":"a","relation":"blocks","target":"b"},"changed":true}`,
			wantVerb: http.MethodPost, wantPath: "/v1/edges",
			wantBody: `{"source":"a","relation":"blocks","target":"b"}`,
		},
		{
			name:     "remove edge",
			call:     func(c *HTTPClient) error { _, err := c.RemoveEdge(context.Background(), "a", "relates_to", "b"); return err },
			response: `{"edge":{"source":"a","relation":"relates_to","target":"b"},"changed":true}`,
			wantVerb: http.MethodDelete, wantPath: "/v1/edges",
			wantQuery: "relation=relates_to&source=a&target=b",
		},
		{
			name:     "deps escapes id",
			call:     func(c *HTTPClient) error { _, err := c.Deps(context.Background(), "a b"); return err },
			response: `{"id":"a b"}`,
			wantVerb: http.MethodGet, wantPath: "/v1/deps/a%20b",
		},
		{
			name:     "export",
			call:     func(c *HTTPClient) error { _, err := c.Export(context.Background(), "dot", "root-1"); return err },
			response: "digraph kd {\n}\n",
			wantVerb: http.MethodGet, wantPath: "/v1/export",
			wantQuery: "format=dot&root=root-1",
		},
		{
			name:     "set status",
			call:     func(c *HTTPClient) error { _, err := c.SetStatus(context.Background(), "kd-1", "closed"); return err },
			response: `{"changes":[]}`,
			wantVerb: http.MethodPut, wantPath: "/v1/issues/kd-1/status",
			wantBody: `{"status":"closed"}`,
		},
		{
			name:     "rebuild",
			call:     func(c *HTTPClient) error { _, err := c.Rebuild(context.Background()); return err },
			response: `{"added":0,"removed":0,"total":0}`,
			wantVerb: http.MethodPost, wantPath: "/v1/index/rebuild",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := &testHandler{responseBody: tc.response}
			c := newTestClient(t, h, "tok")
			if err := tc.call(c); err != nil {
				t.Fatalf("call: %v", err)
			}
			if h.method != tc.wantVerb || h.path != tc.wantPath || h.query != tc.wantQuery {
				t.Fatalf("request = %s %s?%s, want %s %s?%s", h.method, h.path, h.query, tc.wantVerb, tc.wantPath, tc.wantQuery)
			}
			if tc.wantBody != "" && h.body != tc.wantBody {
				t.Fatalf("body = %s, want %s", h.body, tc.wantBody)
			}
			if h.auth != "Bearer tok" || h.agent != "kd" {
				t.Fatalf("authorization = %q, user agent = %q", h.auth, h.agent)
			}
		})
	}
}

func TestHTTPClient_APIError(t *testing.T) {
	for _, tc := range []struct {
		name string
		h    *testHandler
		want string
	}{
		{"json without kind", &testHandler{statusCode: http.StatusUnauthorized, responseBody: `{"error":"invalid token"}`}, "HTTP 401: invalid token"},
		{"plain text", &testHandler{statusCode: http.StatusBadGateway, contentType: "text/plain", responseBody: "upstream down\n"}, "HTTP 502: upstream down"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.h, "")
			_, err := c.Ready(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if err.Error() != tc.want {
				t.Fatalf("error = %q, want %q", err.Error(), tc.want)
			}
		})
	}
}

func TestHTTPClient_BadResponse(t *testing.T) {
	c := newTestClient(t, &testHandler{responseBody: "<html>proxy</html>"}, "")
	if _, err := c.Rebuild(context.Background()); err == nil || !strings.Contains(err.Error(), "decoding POST /v1/index/rebuild response") {
		t.Fatalf("error = %v", err)
	}
}

func TestHTTPClient_KindError(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusConflict,
		responseBody: `{"error":"dependency cycle detected: a -> b -> a","kind":"cycle_detected","ids":["a","b","a"]}`,
	}
	c := newTestClient(t, h, "")
	_, err := c.AddEdge(context.Background(), "b", "blocks", "a")
	if err == nil || err.Error() != "dependency cycle detected: a -> b -> a" {
		t.Fatalf("error = %v", err)
	}
}
