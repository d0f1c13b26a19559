package rpc

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/groblegark/kdeps/internal/graph"
)

// CodeForKind maps a graph error kind to a gRPC status code.
func CodeForKind(kind string) codes.Code {
	switch kind {
	case graph.KindSelfReference, graph.KindInvalidRelation, graph.KindInvalidArgument:
		return codes.InvalidArgument
	case graph.KindNotFound, graph.KindEdgeNotFound:
		return codes.NotFound
	case graph.KindCycleDetected:
		return codes.FailedPrecondition
	}
	return codes.Internal
}

// ToStatus converts a classified error into a status error whose detail
// carries the kind and the ids attached to it.
func ToStatus(kind string, err error) error {
	code := CodeForKind(kind)
	if code == codes.Internal {
		return status.Error(codes.Internal, "internal server error")
	}
	ids := make([]any, 0, len(graph.ErrorIDs(err)))
	for _, id := range graph.ErrorIDs(err) {
		ids = append(ids, id)
	}
	st := status.New(code, err.Error())
	detail, derr := structpb.NewStruct(map[string]any{"kind": kind, "ids": ids})
	if derr != nil {
		return st.Err()
	}
	if withDetail, derr := st.WithDetails(detail); derr == nil {
		st = withDetail
	}
	return st.Err()
}

// FromStatus rebuilds a typed graph error from a status error. Errors that
// carry no kind detail are returned unchanged.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		detail, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := detail.GetFields()
		kind := fields["kind"].GetStringValue()
		if kind == "" {
			continue
		}
		var ids []string
		for _, v := range fields["ids"].GetListValue().GetValues() {
			ids = append(ids, v.GetStringValue())
		}
		return graph.ErrorFromKind(kind, st.Message(), ids)
	}
	return err
}
