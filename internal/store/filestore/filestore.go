// Package filestore implements store.Store as one header-block file per issue.
package filestore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/store"
)

const (
	fileExt   = ".md"
	dirPerms  = 0o755
	filePerms = 0o644
)

// FileStore keeps each issue in <dir>/<id>.md.
type FileStore struct {
	fs  afero.Fs
	dir string
}

// Compile-time check that FileStore implements store.Store.
var _ store.Store = (*FileStore)(nil)

// New returns a FileStore rooted at dir on fs, creating the directory.
// Use afero.NewOsFs() for real files or afero.NewMemMapFs() in tests.
func New(fs afero.Fs, dir string) (*FileStore, error) {
	if err := fs.MkdirAll(dir, dirPerms); err != nil {
		return nil, fmt.Errorf("create issue directory: %w", err)
	}
	return &FileStore{fs: fs, dir: dir}, nil
}

// Open returns a FileStore over the operating system filesystem.
func Open(dir string) (*FileStore, error) {
	return New(afero.NewOsFs(), dir)
}

// Dir returns the directory holding the issue files.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the file path for an issue id.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// IDFromPath maps an issue file path back to its id. The boolean is false
// for paths that are not issue files, including names that are not valid ids.
func IDFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	id := strings.TrimSuffix(name, fileExt)
	if model.ValidateID(id) != nil {
		return "", false
	}
	return id, true
}

func (s *FileStore) Exists(ctx context.Context, id string) (bool, error) {
	if model.ValidateID(id) != nil {
		return false, nil
	}
	ok, err := afero.Exists(s.fs, s.Path(id))
	if err != nil {
		return false, fmt.Errorf("stat issue %s: %w", id, err)
	}
	return ok, nil
}

func (s *FileStore) GetField(ctx context.Context, id, name string) (string, error) {
	doc, err := s.load(id)
	if err != nil {
		return "", err
	}
	return doc.get(name), nil
}

func (s *FileStore) SetFields(ctx context.Context, id string, fields map[string]string) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.SetFields(ctx, id, fields)
	})
}

func (s *FileStore) CreateIssue(ctx context.Context, issue *model.Issue) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.CreateIssue(ctx, issue)
	})
}

func (s *FileStore) ListIDs(ctx context.Context) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read issue directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := IDFromPath(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Stamp hashes every issue file name and content with BLAKE3. Any edit to
// any file, by this process or another, yields a new stamp.
func (s *FileStore) Stamp(ctx context.Context) (string, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return "", err
	}
	h := blake3.New()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		content, err := afero.ReadFile(s.fs, s.Path(id))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("read issue %s: %w", id, err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00", id, len(content))
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RunInTransaction stages every write made through tx and commits them when
// fn returns nil. A failed commit restores the files already written.
func (s *FileStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx := newTxStore(s)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close is a no-op; the store holds no open handles.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read(id string) ([]byte, error) {
	content, err := afero.ReadFile(s.fs, s.Path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("read issue %s: %w", id, err)
	}
	return content, nil
}

func (s *FileStore) load(id string) (*document, error) {
	if err := model.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	content, err := s.read(id)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(content)
	if err != nil {
		return nil, fmt.Errorf("issue %s: %w", id, err)
	}
	return doc, nil
}

// writeAtomic writes content to a temp file in the same directory and renames
// it over path.
func (s *FileStore) writeAtomic(path string, content []byte) error {
	f, err := afero.TempFile(s.fs, filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(content); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Chmod(tmp, filePerms); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func renderIssue(issue *model.Issue) ([]byte, error) {
	doc := &document{header: newHeader()}
	values := issue.FieldValues()
	for _, name := range model.Fields {
		doc.set(name, values[name])
	}
	return doc.render()
}
