package index

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/groblegark/kdeps/internal/model"
)

const stampPrefix = "# stamp "

// FileBackend stores the index as a flat text file with one
// "source relation target" row per line, preceded by a stamp comment.
type FileBackend struct {
	fs   afero.Fs
	path string
}

// Compile-time check that FileBackend implements Backend.
var _ Backend = (*FileBackend)(nil)

// NewFileBackend returns a backend writing to path on fs.
func NewFileBackend(fs afero.Fs, path string) *FileBackend {
	return &FileBackend{fs: fs, path: path}
}

// Path returns the index file location.
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Load(ctx context.Context) ([]model.Edge, string, bool, error) {
	content, err := afero.ReadFile(b.fs, b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", false, nil
		}
		return nil, "", false, fmt.Errorf("read %s: %w", b.path, err)
	}

	var (
		edges []model.Edge
		stamp string
	)
	// Comments only make up the header; once rows start every line is a row.
	sc := bufio.NewScanner(bytes.NewReader(content))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		header := edges == nil
		switch {
		case line == "":
		case header && strings.HasPrefix(line, stampPrefix):
			stamp = strings.TrimSpace(strings.TrimPrefix(line, stampPrefix))
		case header && strings.HasPrefix(line, "#"):
		default:
			e, err := model.ParseEdge(line)
			if err != nil {
				return nil, "", false, fmt.Errorf("%s:%d: %w", b.path, n, err)
			}
			edges = append(edges, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, "", false, fmt.Errorf("read %s: %w", b.path, err)
	}
	return edges, stamp, true, nil
}

func (b *FileBackend) Apply(ctx context.Context, add, remove []model.Edge, stamp string) error {
	current, _, _, err := b.Load(ctx)
	if err != nil {
		return err
	}
	set := toSet(current)
	for _, e := range remove {
		delete(set, e)
	}
	for _, e := range add {
		set[e] = struct{}{}
	}
	return b.write(fromSet(set), stamp)
}

func (b *FileBackend) Replace(ctx context.Context, edges []model.Edge, stamp string) error {
	return b.write(dedupe(edges), stamp)
}

func (b *FileBackend) write(edges []model.Edge, stamp string) error {
	var buf bytes.Buffer
	buf.WriteString("# kd edge index\n")
	buf.WriteString(stampPrefix + stamp + "\n")
	for _, e := range edges {
		buf.WriteString(e.String())
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(b.path)
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	f, err := afero.TempFile(b.fs, dir, "."+filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := b.fs.Rename(tmp, b.path); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// MemoryBackend keeps the index in process memory. It is used when no
// persistent location is configured and in tests.
type MemoryBackend struct {
	Edges  []model.Edge
	Stamp  string
	Exists bool

	// FailApply, when set, is returned by Apply and Replace.
	FailApply error
}

// Compile-time check that MemoryBackend implements Backend.
var _ Backend = (*MemoryBackend)(nil)

func (m *MemoryBackend) Load(ctx context.Context) ([]model.Edge, string, bool, error) {
	return append([]model.Edge(nil), m.Edges...), m.Stamp, m.Exists, nil
}

func (m *MemoryBackend) Apply(ctx context.Context, add, remove []model.Edge, stamp string) error {
	if m.FailApply != nil {
		return m.FailApply
	}
	set := toSet(m.Edges)
	for _, e := range remove {
		delete(set, e)
	}
	for _, e := range add {
		set[e] = struct{}{}
	}
	m.Edges, m.Stamp, m.Exists = fromSet(set), stamp, true
	return nil
}

func (m *MemoryBackend) Replace(ctx context.Context, edges []model.Edge, stamp string) error {
	if m.FailApply != nil {
		return m.FailApply
	}
	m.Edges, m.Stamp, m.Exists = dedupe(edges), stamp, true
	return nil
}
