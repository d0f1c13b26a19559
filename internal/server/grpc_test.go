package server

import (
	"context"
	"errors"
	"net"
	"reflect"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/rpc"
)

// dialTestGRPC serves ts over an in-memory listener and returns a client.
func dialTestGRPC(t *testing.T, ts *testServer, token string) *rpc.GraphServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(ts.srv, token)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return rpc.NewGraphServiceClient(conn)
}

func TestGRPC_EdgeLifecycle(t *testing.T) {
	ts := newTestServer(t, "a", "b")
	c := dialTestGRPC(t, ts, "")
	ctx := context.Background()

	var added graph.Result
	if err := c.Call(ctx, rpc.MethodAddEdge, rpc.EdgeRequest{Source: "b", Relation: "depends_on", Target: "a"}, &added); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if want := (model.Edge{Source: "a", Relation: model.Blocks, Target: "b"}); added.Edge != want || !added.Changed {
		t.Fatalf("unexpected result %+v", added)
	}

	var deps graph.DepSet
	if err := c.Call(ctx, rpc.MethodDeps, rpc.IDRequest{ID: "a"}, &deps); err != nil {
		t.Fatalf("Deps: %v", err)
	}
	if !reflect.DeepEqual(deps.Blocks, []string{"b"}) {
		t.Fatalf("deps = %+v", deps)
	}

	var ready struct {
		Issues []*model.Issue `json:"issues"`
	}
	if err := c.Call(ctx, rpc.MethodReady, nil, &ready); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if len(ready.Issues) != 1 || ready.Issues[0].ID != "a" {
		t.Fatalf("ready = %+v", ready.Issues)
	}

	var export rpc.ExportResponse
	if err := c.Call(ctx, rpc.MethodExport, rpc.ExportRequest{Format: "mermaid"}, &export); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasPrefix(export.Output, "flowchart TD") {
		t.Fatalf("mermaid output = %q", export.Output)
	}

	var removed graph.Result
	if err := c.Call(ctx, rpc.MethodRemoveEdge, rpc.EdgeRequest{Source: "a", Relation: "blocks", Target: "b"}, &removed); err != nil {
		t.Fatalf("RemoveEdge: %v", err)
	}
	if len(removed.Status) != 1 || removed.Status[0].To != model.StatusOpen {
		t.Fatalf("expected b to reopen, got %+v", removed.Status)
	}
}

func TestGRPC_TypedErrors(t *testing.T) {
	ts := newTestServer(t, "a", "b")
	c := dialTestGRPC(t, ts, "")
	ctx := context.Background()
	if err := c.Call(ctx, rpc.MethodAddEdge, rpc.EdgeRequest{Source: "a", Relation: "blocks", Target: "b"}, nil); err != nil {
		t.Fatal(err)
	}

	err := c.Call(ctx, rpc.MethodAddEdge, rpc.EdgeRequest{Source: "b", Relation: "blocks", Target: "a"}, nil)
	var ce *graph.CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *graph.CycleError", err)
	}
	if want := []string{"a", "b", "a"}; !reflect.DeepEqual(ce.Path, want) {
		t.Fatalf("path = %v, want %v", ce.Path, want)
	}

	err = c.Call(ctx, rpc.MethodAddEdge, rpc.EdgeRequest{Source: "x", Relation: "blocks", Target: "y"}, nil)
	var nf *graph.NotFoundError
	if !errors.As(err, &nf) || !reflect.DeepEqual(nf.IDs, []string{"x", "y"}) {
		t.Fatalf("error = %v, want NotFoundError{x y}", err)
	}

	err = c.Call(ctx, rpc.MethodRemoveEdge, rpc.EdgeRequest{Source: "a", Relation: "relates_to", Target: "b"}, nil)
	if !errors.Is(err, graph.ErrEdgeNotFound) {
		t.Fatalf("error = %v, want ErrEdgeNotFound", err)
	}

	err = c.Call(ctx, rpc.MethodGetIssue, rpc.IDRequest{}, nil)
	if !errors.Is(err, graph.ErrInvalidArgument) {
		t.Fatalf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestGRPC_Issues(t *testing.T) {
	ts := newTestServer(t, "a")
	c := dialTestGRPC(t, ts, "")
	ctx := context.Background()

	var created model.Issue
	if err := c.Call(ctx, rpc.MethodCreateIssue, rpc.CreateIssueRequest{ID: "kd-docs", Title: "Docs"}, &created); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if err := c.Call(ctx, rpc.MethodAddEdge, rpc.EdgeRequest{Source: "a", Relation: "blocks", Target: "kd-docs"}, nil); err != nil {
		t.Fatal(err)
	}

	var resp rpc.StatusResponse
	if err := c.Call(ctx, rpc.MethodSetStatus, rpc.StatusRequest{ID: "a", Status: "closed"}, &resp); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	want := []graph.StatusChange{
		{ID: "a", From: model.StatusOpen, To: model.StatusClosed},
		{ID: "kd-docs", From: model.StatusBlocked, To: model.StatusOpen},
	}
	if !reflect.DeepEqual(resp.Changes, want) {
		t.Fatalf("changes = %+v, want %+v", resp.Changes, want)
	}

	var got model.Issue
	if err := c.Call(ctx, rpc.MethodGetIssue, rpc.IDRequest{ID: "kd-docs"}, &got); err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if got.Status != model.StatusOpen || !reflect.DeepEqual(got.DependsOn, []string{"a"}) {
		t.Fatalf("issue = %+v", got)
	}
}

func TestGRPC_Auth(t *testing.T) {
	ts := newTestServer(t, "a")
	c := dialTestGRPC(t, ts, "secret")
	ctx := context.Background()

	var health map[string]string
	if err := c.Call(ctx, rpc.MethodHealth, nil, &health); err != nil || health["status"] != "ok" {
		t.Fatalf("Health = %v, %v", health, err)
	}

	err := c.Call(ctx, rpc.MethodTopo, nil, nil)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer secret")
	if err := c.Call(authed, rpc.MethodTopo, nil, nil); err != nil {
		t.Fatalf("Topo with token: %v", err)
	}
}
