package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/store"
)

// Graph is what an export reads: the issue store and the caught-up edge
// index. *graph.Engine satisfies it.
type Graph interface {
	Store() store.Store
	Edges(ctx context.Context) ([]model.Edge, error)
}

// exportVersion is the header version of the JSONL format.
const exportVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	IssueCount int       `json:"issue_count"`
	EdgeCount  int       `json:"edge_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every issue, sorted by id, followed by every index
// row, as JSONL to w.
func ExportJSONL(ctx context.Context, g Graph, w io.Writer) error {
	// Edges first: reading them catches the index up with the store.
	edges, err := g.Edges(ctx)
	if err != nil {
		return fmt.Errorf("list edges: %w", err)
	}
	issues, err := store.LoadAll(ctx, g.Store())
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    exportVersion,
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		IssueCount: len(issues),
		EdgeCount:  len(edges),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, issue := range issues {
		if err := enc.Encode(record{Type: "issue", Data: issue}); err != nil {
			return fmt.Errorf("encode issue %s: %w", issue.ID, err)
		}
	}

	for _, e := range edges {
		if err := enc.Encode(record{Type: "edge", Data: e}); err != nil {
			return fmt.Errorf("encode edge %s: %w", e, err)
		}
	}

	return nil
}
