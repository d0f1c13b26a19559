package graph

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestErrorKind(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("disk on fire"), ""},
		{fmt.Errorf("a: %w", ErrSelfReference), KindSelfReference},
		{&NotFoundError{IDs: []string{"x"}}, KindNotFound},
		{fmt.Errorf("wrap: %w", &NotFoundError{IDs: []string{"x"}}), KindNotFound},
		{fmt.Errorf("%w: bogus", ErrInvalidRelation), KindInvalidRelation},
		{&CycleError{Path: []string{"a", "b", "a"}}, KindCycleDetected},
		{fmt.Errorf("a blocks b: %w", ErrEdgeNotFound), KindEdgeNotFound},
		{fmt.Errorf("%w: bad", ErrInvalidArgument), KindInvalidArgument},
	} {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestErrorFromKind_RoundTrip(t *testing.T) {
	for _, err := range []error{
		fmt.Errorf("a: %w", ErrSelfReference),
		&NotFoundError{IDs: []string{"x", "y"}},
		fmt.Errorf("%w: bogus", ErrInvalidRelation),
		&CycleError{Path: []string{"a", "b", "a"}},
		fmt.Errorf("a blocks b: %w", ErrEdgeNotFound),
		fmt.Errorf("%w: bad", ErrInvalidArgument),
	} {
		kind := ErrorKind(err)
		back := ErrorFromKind(kind, err.Error(), ErrorIDs(err))
		if ErrorKind(back) != kind {
			t.Errorf("kind %q did not survive: got %q", kind, ErrorKind(back))
		}
		if back.Error() != err.Error() {
			t.Errorf("message changed: %q -> %q", err.Error(), back.Error())
		}
		if !reflect.DeepEqual(ErrorIDs(back), ErrorIDs(err)) {
			t.Errorf("ids changed: %v -> %v", ErrorIDs(err), ErrorIDs(back))
		}
	}

	if err := ErrorFromKind("", "boom", nil); ErrorKind(err) != "" || err.Error() != "boom" {
		t.Errorf("unknown kind = %v", err)
	}
}

func TestCycleErrorMessage(t *testing.T) {
	err := &CycleError{Path: []string{"a", "b", "a"}}
	if got, want := err.Error(), "dependency cycle detected: a -> b -> a"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrCycleDetected) {
		t.Error("CycleError should unwrap to ErrCycleDetected")
	}
}
