package graph

import (
	"testing"

	"github.com/groblegark/kdeps/internal/model"
)

func TestRecomputeStatus(t *testing.T) {
	const (
		open    = model.StatusOpen
		blocked = model.StatusBlocked
		closed  = model.StatusClosed
	)
	for _, tc := range []struct {
		name     string
		current  model.Status
		blockers []model.Status
		want     model.Status
	}{
		{"no blockers stays open", open, nil, open},
		{"open blocker blocks", open, []model.Status{open}, blocked},
		{"in progress blocker blocks", model.StatusInProgress, []model.Status{model.StatusInProgress}, blocked},
		{"closed blocker does not block", open, []model.Status{closed}, open},
		{"one of two unresolved", blocked, []model.Status{closed, open}, blocked},
		{"all resolved unblocks", blocked, []model.Status{closed, closed}, open},
		{"blocked without blockers reopens", blocked, nil, open},
		{"closed is terminal", closed, []model.Status{open}, closed},
		{"deferred kept when resolved", model.StatusDeferred, []model.Status{closed}, model.StatusDeferred},
		{"review kept when resolved", model.StatusReview, nil, model.StatusReview},
		{"review blocked by open", model.StatusReview, []model.Status{blocked}, blocked},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := RecomputeStatus(tc.current, tc.blockers); got != tc.want {
				t.Errorf("RecomputeStatus(%s, %v) = %s, want %s", tc.current, tc.blockers, got, tc.want)
			}
		})
	}
}
