package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/spf13/afero"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/index"
	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/rpc"
	"github.com/groblegark/kdeps/internal/store/filestore"
)

type testServer struct {
	srv     *GraphServer
	engine  *graph.Engine
	hub     *Hub
	handler http.Handler
}

// newTestServer serves an in-memory graph holding one open issue per id.
func newTestServer(t *testing.T, ids ...string) *testServer {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := filestore.New(fs, "/repo/.kd/issues")
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	hub := NewHub()
	t.Cleanup(func() { _ = hub.Close() })
	engine := graph.New(s, index.New(index.NewFileBackend(fs, "/repo/.kd/edges")), graph.WithPublisher(hub))
	for _, id := range ids {
		if err := engine.CreateIssue(context.Background(), &model.Issue{ID: id, Title: "Issue " + id}); err != nil {
			t.Fatalf("CreateIssue(%s): %v", id, err)
		}
	}
	srv := NewGraphServer(engine, hub)
	return &testServer{srv: srv, engine: engine, hub: hub, handler: srv.NewHTTPHandler("")}
}

func TestErrorKind_InputError(t *testing.T) {
	if got := errorKind(inputError("title is required")); got != graph.KindInvalidArgument {
		t.Fatalf("errorKind = %q, want %q", got, graph.KindInvalidArgument)
	}
	if got := errorKind(graph.ErrCycleDetected); got != graph.KindCycleDetected {
		t.Fatalf("errorKind = %q, want %q", got, graph.KindCycleDetected)
	}
}

func TestValidateEdge(t *testing.T) {
	for _, tc := range []struct {
		req  rpc.EdgeRequest
		want string
	}{
		{rpc.EdgeRequest{Relation: "blocks", Target: "b"}, "source is required"},
		{rpc.EdgeRequest{Source: "a", Target: "b"}, "relation is required"},
		{rpc.EdgeRequest{Source: "a", Relation: "blocks", Target: " "}, "target is required"},
		{rpc.EdgeRequest{Source: "a", Relation: "blocks", Target: "b"}, ""},
	} {
		err := validateEdge(&tc.req)
		got := ""
		if err != nil {
			got = err.Error()
		}
		if got != tc.want {
			t.Errorf("validate(%+v) = %q, want %q", tc.req, got, tc.want)
		}
	}
}
