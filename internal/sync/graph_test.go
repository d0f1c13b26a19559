package sync

import (
	"context"
	"testing"

	"github.com/spf13/afero"

	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/store"
	"github.com/groblegark/kdeps/internal/store/filestore"
)

// fakeGraph serves a fixed edge list over an in-memory file store.
type fakeGraph struct {
	store *filestore.FileStore
	edges []model.Edge
	err   error
}

func (g *fakeGraph) Store() store.Store { return g.store }

func (g *fakeGraph) Edges(context.Context) ([]model.Edge, error) {
	return g.edges, g.err
}

func newFakeGraph(t *testing.T, ids ...string) *fakeGraph {
	t.Helper()
	s, err := filestore.New(afero.NewMemMapFs(), "/issues")
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		issue := &model.Issue{ID: id, Title: "Issue " + id, Status: model.StatusOpen, Priority: model.PriorityMedium}
		if err := s.CreateIssue(context.Background(), issue); err != nil {
			t.Fatal(err)
		}
	}
	return &fakeGraph{store: s}
}
