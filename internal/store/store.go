// Package store defines the issue persistence contract the dependency graph
// consumes.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/groblegark/kdeps/internal/model"
)

// ErrNotFound is returned when an issue id does not exist.
var ErrNotFound = errors.New("issue not found")

// ErrExists is returned when creating an issue whose id is taken.
var ErrExists = errors.New("issue already exists")

// Store defines the persistence interface for issues.
type Store interface {
	// Exists reports whether an issue with the given id is stored.
	Exists(ctx context.Context, id string) (bool, error)

	// GetField reads one named field. Unset fields read as "".
	GetField(ctx context.Context, id, name string) (string, error)

	// SetFields rewrites the named fields of one issue atomically.
	SetFields(ctx context.Context, id string, fields map[string]string) error

	// ListIDs returns every issue id in ascending order.
	ListIDs(ctx context.Context) ([]string, error)

	// CreateIssue persists a new issue.
	CreateIssue(ctx context.Context, issue *model.Issue) error

	// Stamp fingerprints the stored relationship data. It changes whenever
	// any issue is created or any field is rewritten, including edits made
	// outside this process.
	Stamp(ctx context.Context) (string, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

// LoadIssue reads every field of an issue.
func LoadIssue(ctx context.Context, s Store, id string) (*model.Issue, error) {
	fields := make(map[string]string, len(model.Fields))
	for _, name := range model.Fields {
		v, err := s.GetField(ctx, id, name)
		if err != nil {
			return nil, fmt.Errorf("read %s of %s: %w", name, id, err)
		}
		fields[name] = v
	}
	return model.IssueFromFields(id, fields), nil
}

// LoadAll reads every stored issue, ordered by id.
func LoadAll(ctx context.Context, s Store) ([]*model.Issue, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	issues := make([]*model.Issue, 0, len(ids))
	for _, id := range ids {
		issue, err := LoadIssue(ctx, s, id)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, nil
}
