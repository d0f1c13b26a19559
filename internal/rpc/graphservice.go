// Package rpc defines the kd.v1.GraphService gRPC contract. Requests and
// responses travel as google.protobuf.Struct messages carrying the same JSON
// shapes the HTTP API uses, so both transports share one set of Go types.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "kd.v1.GraphService"

// Method names.
const (
	MethodAddEdge     = "AddEdge"
	MethodRemoveEdge  = "RemoveEdge"
	MethodListEdges   = "ListEdges"
	MethodDeps        = "Deps"
	MethodRebuild     = "Rebuild"
	MethodReady       = "Ready"
	MethodTopo        = "Topo"
	MethodExport      = "Export"
	MethodCreateIssue = "CreateIssue"
	MethodGetIssue    = "GetIssue"
	MethodSetStatus   = "SetStatus"
	MethodHealth      = "Health"
)

// FullMethod returns the "/service/method" path for name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// GraphServiceServer is the server API for kd.v1.GraphService.
type GraphServiceServer interface {
	AddEdge(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveEdge(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEdges(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Deps(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Rebuild(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ready(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Topo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Export(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateIssue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetIssue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(GraphServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GraphServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(GraphServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes kd.v1.GraphService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GraphServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodAddEdge, GraphServiceServer.AddEdge),
		unary(MethodRemoveEdge, GraphServiceServer.RemoveEdge),
		unary(MethodListEdges, GraphServiceServer.ListEdges),
		unary(MethodDeps, GraphServiceServer.Deps),
		unary(MethodRebuild, GraphServiceServer.Rebuild),
		unary(MethodReady, GraphServiceServer.Ready),
		unary(MethodTopo, GraphServiceServer.Topo),
		unary(MethodExport, GraphServiceServer.Export),
		unary(MethodCreateIssue, GraphServiceServer.CreateIssue),
		unary(MethodGetIssue, GraphServiceServer.GetIssue),
		unary(MethodSetStatus, GraphServiceServer.SetStatus),
		unary(MethodHealth, GraphServiceServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kd/v1/graph.proto",
}

// RegisterGraphServiceServer registers srv on s.
func RegisterGraphServiceServer(s grpc.ServiceRegistrar, srv GraphServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// GraphServiceClient calls kd.v1.GraphService with plain Go values.
type GraphServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewGraphServiceClient returns a client over cc.
func NewGraphServiceClient(cc grpc.ClientConnInterface) *GraphServiceClient {
	return &GraphServiceClient{cc: cc}
}

// Call encodes req, invokes method and decodes the reply into resp, which
// may be nil. Status errors carrying a graph error kind are converted back
// into typed graph errors.
func (c *GraphServiceClient) Call(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	in, err := Encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return FromStatus(err)
	}
	if resp == nil {
		return nil
	}
	return Decode(out, resp)
}

// Encode converts v to a Struct through its JSON form. A nil v encodes as
// an empty Struct.
func Encode(v any) (*structpb.Struct, error) {
	st := new(structpb.Struct)
	if v == nil {
		return st, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	if err := protojson.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return st, nil
}

// Decode fills v from st through its JSON form.
func Decode(st *structpb.Struct, v any) error {
	data, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
