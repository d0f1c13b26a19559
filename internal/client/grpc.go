package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/rpc"
)

var _ GraphClient = (*GRPCClient)(nil)

// GRPCClient implements GraphClient using the gRPC transport.
type GRPCClient struct {
	conn   *grpc.ClientConn
	client *rpc.GraphServiceClient
}

// NewGRPCClient connects to the given gRPC address and returns a client.
// When token is non-empty it is sent as a bearer token on every call.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerToken(token)))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{
		conn:   conn,
		client: rpc.NewGraphServiceClient(conn),
	}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// bearerToken attaches an Authorization header to each call. It does not
// require transport security, matching the plaintext server listener.
type bearerToken string

func (t bearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

func (bearerToken) RequireTransportSecurity() bool { return false }

// --- Edges ---

func (c *GRPCClient) AddEdge(ctx context.Context, source, relation, target string) (*graph.Result, error) {
	var res graph.Result
	req := rpc.EdgeRequest{Source: source, Relation: relation, Target: target}
	if err := c.client.Call(ctx, rpc.MethodAddEdge, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GRPCClient) RemoveEdge(ctx context.Context, source, relation, target string) (*graph.Result, error) {
	var res graph.Result
	req := rpc.EdgeRequest{Source: source, Relation: relation, Target: target}
	if err := c.client.Call(ctx, rpc.MethodRemoveEdge, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GRPCClient) Edges(ctx context.Context) ([]model.Edge, error) {
	var resp struct {
		Edges []model.Edge `json:"edges"`
	}
	if err := c.client.Call(ctx, rpc.MethodListEdges, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Edges, nil
}

func (c *GRPCClient) Deps(ctx context.Context, id string) (*graph.DepSet, error) {
	var deps graph.DepSet
	if err := c.client.Call(ctx, rpc.MethodDeps, rpc.IDRequest{ID: id}, &deps); err != nil {
		return nil, err
	}
	return &deps, nil
}

func (c *GRPCClient) Rebuild(ctx context.Context) (*graph.RebuildResult, error) {
	var res graph.RebuildResult
	if err := c.client.Call(ctx, rpc.MethodRebuild, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Queries ---

func (c *GRPCClient) Ready(ctx context.Context) ([]*model.Issue, error) {
	return c.issues(ctx, rpc.MethodReady)
}

func (c *GRPCClient) Topo(ctx context.Context) ([]*model.Issue, error) {
	return c.issues(ctx, rpc.MethodTopo)
}

func (c *GRPCClient) issues(ctx context.Context, method string) ([]*model.Issue, error) {
	var resp struct {
		Issues []*model.Issue `json:"issues"`
	}
	if err := c.client.Call(ctx, method, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Issues, nil
}

func (c *GRPCClient) Export(ctx context.Context, format graph.Format, root string) (string, error) {
	var resp rpc.ExportResponse
	req := rpc.ExportRequest{Format: string(format), Root: root}
	if err := c.client.Call(ctx, rpc.MethodExport, req, &resp); err != nil {
		return "", err
	}
	return resp.Output, nil
}

// --- Issues ---

func (c *GRPCClient) CreateIssue(ctx context.Context, req *CreateIssueRequest) (*model.Issue, error) {
	var issue model.Issue
	in := rpc.CreateIssueRequest{ID: req.ID, Title: req.Title, Priority: req.Priority}
	if err := c.client.Call(ctx, rpc.MethodCreateIssue, in, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *GRPCClient) Issue(ctx context.Context, id string) (*model.Issue, error) {
	var issue model.Issue
	if err := c.client.Call(ctx, rpc.MethodGetIssue, rpc.IDRequest{ID: id}, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *GRPCClient) SetStatus(ctx context.Context, id string, status model.Status) ([]graph.StatusChange, error) {
	var resp rpc.StatusResponse
	req := rpc.StatusRequest{ID: id, Status: string(status)}
	if err := c.client.Call(ctx, rpc.MethodSetStatus, req, &resp); err != nil {
		return nil, err
	}
	return resp.Changes, nil
}

// --- Health ---

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.client.Call(ctx, rpc.MethodHealth, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
