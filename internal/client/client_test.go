package client

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/index"
	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/server"
	"github.com/groblegark/kdeps/internal/store/filestore"
)

const testToken = "s3cret"

func newEngine(t *testing.T) *graph.Engine {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := filestore.New(fs, "/repo/.kd/issues")
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	return graph.New(s, index.New(index.NewFileBackend(fs, "/repo/.kd/edges")))
}

// transports returns one client per transport, each over a fresh graph.
func transports(t *testing.T) map[string]GraphClient {
	t.Helper()
	out := map[string]GraphClient{}

	out["local"] = NewLocalClient(newEngine(t), nil)

	httpSrv := httptest.NewServer(server.NewGraphServer(newEngine(t), nil).NewHTTPHandler(testToken))
	t.Cleanup(httpSrv.Close)
	out["http"] = NewHTTPClient(httpSrv.URL, testToken)

	lis := bufconn.Listen(1 << 20)
	gs := server.NewGRPCServer(server.NewGraphServer(newEngine(t), nil), testToken)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)
	gc, err := NewGRPCClient("passthrough:///bufnet", testToken,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("NewGRPCClient: %v", err)
	}
	out["grpc"] = gc

	for _, c := range out {
		t.Cleanup(func() { _ = c.Close() })
	}
	return out
}

func ids(issues []*model.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.ID)
	}
	return out
}

func TestClients_Workflow(t *testing.T) {
	for name, c := range transports(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if status, err := c.Health(ctx); err != nil || status != "ok" {
				t.Fatalf("Health = %q, %v", status, err)
			}
			for _, req := range []*CreateIssueRequest{
				{ID: "api", Title: "Design API", Priority: "high"},
				{ID: "impl", Title: "Implement"},
				{ID: "docs", Title: "Write docs", Priority: "low"},
			} {
				if _, err := c.CreateIssue(ctx, req); err != nil {
					t.Fatalf("CreateIssue(%s): %v", req.ID, err)
				}
			}
			gen, err := c.CreateIssue(ctx, &CreateIssueRequest{Title: "Generated"})
			if err != nil || !strings.HasPrefix(gen.ID, "kd-") {
				t.Fatalf("CreateIssue generated = %+v, %v", gen, err)
			}

			res, err := c.AddEdge(ctx, "impl", "depends_on", "api")
			if err != nil {
				t.Fatalf("AddEdge: %v", err)
			}
			if want := (model.Edge{Source: "api", Relation: model.Blocks, Target: "impl"}); res.Edge != want {
				t.Fatalf("edge = %v, want %v", res.Edge, want)
			}
			if _, err := c.AddEdge(ctx, "impl", "blocks", "docs"); err != nil {
				t.Fatalf("AddEdge: %v", err)
			}

			ready, err := c.Ready(ctx)
			if err != nil {
				t.Fatalf("Ready: %v", err)
			}
			if got := ids(ready); !reflect.DeepEqual(got, []string{"api", gen.ID}) {
				t.Fatalf("ready = %v", got)
			}
			topo, err := c.Topo(ctx)
			if err != nil {
				t.Fatalf("Topo: %v", err)
			}
			if got := ids(topo); !reflect.DeepEqual(got, []string{"api", "impl", gen.ID, "docs"}) {
				t.Fatalf("topo = %v", got)
			}

			deps, err := c.Deps(ctx, "impl")
			if err != nil {
				t.Fatalf("Deps: %v", err)
			}
			if !reflect.DeepEqual(deps.DependsOn, []string{"api"}) || !reflect.DeepEqual(deps.Blocks, []string{"docs"}) {
				t.Fatalf("deps = %+v", deps)
			}
			edges, err := c.Edges(ctx)
			if err != nil || len(edges) != 4 {
				t.Fatalf("Edges = %v, %v", edges, err)
			}

			out, err := c.Export(ctx, graph.FormatText, "api")
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			if out != "api blocks impl\nimpl blocks docs\n" {
				t.Fatalf("export = %q", out)
			}

			changes, err := c.SetStatus(ctx, "api", model.StatusClosed)
			if err != nil {
				t.Fatalf("SetStatus: %v", err)
			}
			want := []graph.StatusChange{
				{ID: "api", From: model.StatusOpen, To: model.StatusClosed},
				{ID: "impl", From: model.StatusBlocked, To: model.StatusOpen},
			}
			if !reflect.DeepEqual(changes, want) {
				t.Fatalf("changes = %+v", changes)
			}
			issue, err := c.Issue(ctx, "impl")
			if err != nil || issue.Status != model.StatusOpen {
				t.Fatalf("Issue = %+v, %v", issue, err)
			}

			if _, err := c.RemoveEdge(ctx, "docs", "depends_on", "impl"); err != nil {
				t.Fatalf("RemoveEdge: %v", err)
			}
			rb, err := c.Rebuild(ctx)
			if err != nil || rb.Total != 2 {
				t.Fatalf("Rebuild = %+v, %v", rb, err)
			}
		})
	}
}

func TestClients_TypedErrors(t *testing.T) {
	for name, c := range transports(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"a", "b"} {
				if _, err := c.CreateIssue(ctx, &CreateIssueRequest{ID: id, Title: id}); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := c.AddEdge(ctx, "a", "blocks", "b"); err != nil {
				t.Fatal(err)
			}

			_, err := c.AddEdge(ctx, "b", "blocks", "a")
			var ce *graph.CycleError
			if !errors.As(err, &ce) || !reflect.DeepEqual(ce.Path, []string{"a", "b", "a"}) {
				t.Fatalf("cycle error = %v", err)
			}
			_, err = c.AddEdge(ctx, "a", "blocks", "a")
			if !errors.Is(err, graph.ErrSelfReference) {
				t.Fatalf("self error = %v", err)
			}
			_, err = c.AddEdge(ctx, "a", "blocks", "ghost")
			var nf *graph.NotFoundError
			if !errors.As(err, &nf) || !reflect.DeepEqual(nf.IDs, []string{"ghost"}) {
				t.Fatalf("not found error = %v", err)
			}
			_, err = c.AddEdge(ctx, "a", "mentions", "b")
			if !errors.Is(err, graph.ErrInvalidRelation) {
				t.Fatalf("relation error = %v", err)
			}
			_, err = c.RemoveEdge(ctx, "a", "parent_of", "b")
			if !errors.Is(err, graph.ErrEdgeNotFound) {
				t.Fatalf("edge error = %v", err)
			}
			_, err = c.CreateIssue(ctx, &CreateIssueRequest{Title: " "})
			if !errors.Is(err, graph.ErrInvalidArgument) {
				t.Fatalf("create error = %v", err)
			}
			_, err = c.Issue(ctx, "ghost")
			if !errors.Is(err, graph.ErrNotFound) {
				t.Fatalf("issue error = %v", err)
			}
		})
	}
}
