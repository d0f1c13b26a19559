package server

import (
	"bytes"
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/rpc"
)

var _ rpc.GraphServiceServer = (*GraphServer)(nil)

// NewGRPCServer creates a gRPC server with standard interceptors and
// registers the GraphService. When authToken is non-empty every call except
// Health must carry a bearer token.
func NewGRPCServer(s *GraphServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
	)
	rpc.RegisterGraphServiceServer(srv, s)
	return srv
}

// handle decodes the request, runs fn and encodes its result, converting
// errors into status errors.
func handle[Req any](ctx context.Context, s *GraphServer, in *structpb.Struct, fn func(context.Context, *Req) (any, error)) (*structpb.Struct, error) {
	req := new(Req)
	if err := rpc.Decode(in, req); err != nil {
		return nil, rpc.ToStatus(graph.KindInvalidArgument, inputError(err.Error()))
	}
	resp, err := fn(ctx, req)
	if err != nil {
		kind := errorKind(err)
		if kind == "" {
			s.logger.Error("rpc failed", "error", err)
		}
		return nil, rpc.ToStatus(kind, err)
	}
	out, err := rpc.Encode(resp)
	if err != nil {
		s.logger.Error("rpc encode failed", "error", err)
		return nil, rpc.ToStatus("", err)
	}
	return out, nil
}

func (s *GraphServer) AddEdge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req *rpc.EdgeRequest) (any, error) {
		if err := validateEdge(req); err != nil {
			return nil, err
		}
		return s.engine.AddEdge(ctx, req.Source, req.Relation, req.Target)
	})
}

func (s *GraphServer) RemoveEdge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req *rpc.EdgeRequest) (any, error) {
		if err := validateEdge(req); err != nil {
			return nil, err
		}
		return s.engine.RemoveEdge(ctx, req.Source, req.Relation, req.Target)
	})
}

func (s *GraphServer) ListEdges(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, _ *struct{}) (any, error) {
		edges, err := s.engine.Edges(ctx)
		if err != nil {
			return nil, err
		}
		if edges == nil {
			edges = []model.Edge{}
		}
		return map[string]any{"edges": edges}, nil
	})
}

func (s *GraphServer) Deps(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req *rpc.IDRequest) (any, error) {
		if req.ID == "" {
			return nil, inputError("id is required")
		}
		return s.engine.Deps(ctx, req.ID)
	})
}

func (s *GraphServer) Rebuild(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, _ *struct{}) (any, error) {
		return s.engine.Rebuild(ctx)
	})
}

func (s *GraphServer) Ready(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, _ *struct{}) (any, error) {
		issues, err := s.engine.Ready(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"issues": nonNilIssues(issues)}, nil
	})
}

func (s *GraphServer) Topo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, _ *struct{}) (any, error) {
		issues, err := s.engine.Topo(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"issues": nonNilIssues(issues)}, nil
	})
}

func (s *GraphServer) Export(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req *rpc.ExportRequest) (any, error) {
		format, err := graph.ParseFormat(req.Format)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := s.engine.Export(ctx, &buf, format, req.Root); err != nil {
			return nil, err
		}
		return rpc.ExportResponse{Output: buf.String()}, nil
	})
}

func (s *GraphServer) CreateIssue(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req *rpc.CreateIssueRequest) (any, error) {
		return s.createIssue(ctx, req)
	})
}

func (s *GraphServer) GetIssue(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req *rpc.IDRequest) (any, error) {
		if req.ID == "" {
			return nil, inputError("id is required")
		}
		return s.engine.Issue(ctx, req.ID)
	})
}

func (s *GraphServer) SetStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req *rpc.StatusRequest) (any, error) {
		return s.setStatus(ctx, req.ID, req.Status)
	})
}

// Health returns the service health status.
func (s *GraphServer) Health(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(context.Context, *struct{}) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})
}
