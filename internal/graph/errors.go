package graph

import (
	"errors"
	"strings"

	"github.com/groblegark/kdeps/internal/store"
)

// Sentinel errors. Typed errors below unwrap to these so callers can test
// with errors.Is.
var (
	ErrSelfReference   = errors.New("an issue cannot depend on itself")
	ErrNotFound        = store.ErrNotFound
	ErrInvalidRelation = errors.New("invalid relation")
	ErrCycleDetected   = errors.New("dependency cycle detected")
	ErrEdgeNotFound    = errors.New("edge not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// NotFoundError names every id that does not exist.
type NotFoundError struct {
	IDs []string
}

func (e *NotFoundError) Error() string {
	return "issue not found: " + strings.Join(e.IDs, ", ")
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// CycleError carries the blocking path that the rejected edge would close,
// or the residual issues when an existing cycle prevents ordering.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return ErrCycleDetected.Error()
	}
	return ErrCycleDetected.Error() + ": " + strings.Join(e.Path, " -> ")
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// Error kinds, stable strings used on the wire.
const (
	KindSelfReference   = "self_reference"
	KindNotFound        = "not_found"
	KindInvalidRelation = "invalid_relation"
	KindCycleDetected   = "cycle_detected"
	KindEdgeNotFound    = "edge_not_found"
	KindInvalidArgument = "invalid_argument"
)

// ErrorKind classifies err for transport. It returns "" for internal errors.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSelfReference):
		return KindSelfReference
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidRelation):
		return KindInvalidRelation
	case errors.Is(err, ErrCycleDetected):
		return KindCycleDetected
	case errors.Is(err, ErrEdgeNotFound):
		return KindEdgeNotFound
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	}
	return ""
}

// ErrorIDs returns the ids attached to a typed error.
func ErrorIDs(err error) []string {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.IDs
	}
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce.Path
	}
	return nil
}

// kindError keeps the server's message while unwrapping to a sentinel.
type kindError struct {
	msg      string
	sentinel error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.sentinel }

// ErrorFromKind rebuilds a typed error received over the wire.
func ErrorFromKind(kind, msg string, ids []string) error {
	switch kind {
	case KindNotFound:
		if len(ids) > 0 {
			return &NotFoundError{IDs: ids}
		}
		return &kindError{msg: msg, sentinel: ErrNotFound}
	case KindCycleDetected:
		return &CycleError{Path: ids}
	case KindSelfReference:
		return &kindError{msg: msg, sentinel: ErrSelfReference}
	case KindInvalidRelation:
		return &kindError{msg: msg, sentinel: ErrInvalidRelation}
	case KindEdgeNotFound:
		return &kindError{msg: msg, sentinel: ErrEdgeNotFound}
	case KindInvalidArgument:
		return &kindError{msg: msg, sentinel: ErrInvalidArgument}
	}
	return errors.New(msg)
}
