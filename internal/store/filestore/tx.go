package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/store"
)

// txStore stages writes in memory. Reads see staged content first.
type txStore struct {
	parent  *FileStore
	staged  map[string][]byte
	created map[string]bool
	order   []string
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func newTxStore(parent *FileStore) *txStore {
	return &txStore{
		parent:  parent,
		staged:  make(map[string][]byte),
		created: make(map[string]bool),
	}
}

func newHeader() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func (t *txStore) Exists(ctx context.Context, id string) (bool, error) {
	if _, ok := t.staged[id]; ok {
		return true, nil
	}
	return t.parent.Exists(ctx, id)
}

func (t *txStore) GetField(ctx context.Context, id, name string) (string, error) {
	doc, err := t.load(id)
	if err != nil {
		return "", err
	}
	return doc.get(name), nil
}

func (t *txStore) SetFields(ctx context.Context, id string, fields map[string]string) error {
	doc, err := t.load(id)
	if err != nil {
		return err
	}
	// Sorted so that newly appended keys land in a stable order.
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc.set(name, fields[name])
	}
	content, err := doc.render()
	if err != nil {
		return fmt.Errorf("issue %s: %w", id, err)
	}
	t.stage(id, content)
	return nil
}

func (t *txStore) CreateIssue(ctx context.Context, issue *model.Issue) error {
	exists, err := t.Exists(ctx, issue.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s: %w", issue.ID, store.ErrExists)
	}
	content, err := renderIssue(issue)
	if err != nil {
		return fmt.Errorf("issue %s: %w", issue.ID, err)
	}
	t.stage(issue.ID, content)
	t.created[issue.ID] = true
	return nil
}

func (t *txStore) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := t.parent.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	for id := range t.created {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Stamp reports the committed state; staged writes are not yet visible.
func (t *txStore) Stamp(ctx context.Context) (string, error) {
	return t.parent.Stamp(ctx)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (t *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

// Close is a no-op for a transaction store.
func (t *txStore) Close() error {
	return nil
}

func (t *txStore) stage(id string, content []byte) {
	if _, ok := t.staged[id]; !ok {
		t.order = append(t.order, id)
	}
	t.staged[id] = content
}

func (t *txStore) load(id string) (*document, error) {
	if content, ok := t.staged[id]; ok {
		return parseDocument(content)
	}
	return t.parent.load(id)
}

type undo struct {
	path    string
	prev    []byte
	existed bool
}

// commit writes staged files in staging order. If a write fails, files
// written earlier in the same commit are put back.
func (t *txStore) commit(ctx context.Context) error {
	var done []undo
	for _, id := range t.order {
		if err := ctx.Err(); err != nil {
			t.rollback(done)
			return err
		}
		path := t.parent.Path(id)
		prev, err := afero.ReadFile(t.parent.fs, path)
		existed := err == nil
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			t.rollback(done)
			return fmt.Errorf("read issue %s: %w", id, err)
		}
		if err := t.parent.writeAtomic(path, t.staged[id]); err != nil {
			t.rollback(done)
			return fmt.Errorf("write issue %s: %w", id, err)
		}
		done = append(done, undo{path: path, prev: prev, existed: existed})
	}
	return nil
}

func (t *txStore) rollback(done []undo) {
	for i := len(done) - 1; i >= 0; i-- {
		u := done[i]
		var err error
		if u.existed {
			err = t.parent.writeAtomic(u.path, u.prev)
		} else {
			err = t.parent.fs.Remove(u.path)
		}
		if err != nil {
			slog.Warn("failed to restore issue file after aborted commit", "path", u.path, "error", err)
		}
	}
}
