package postgres

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func TestQueryExists(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("kd-a").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("kd-b").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	if ok, err := queryExists(context.Background(), db, "kd-a"); err != nil || !ok {
		t.Errorf("queryExists(kd-a) = %v, %v", ok, err)
	}
	if ok, err := queryExists(context.Background(), db, "kd-b"); err != nil || ok {
		t.Errorf("queryExists(kd-b) = %v, %v", ok, err)
	}
}

func TestQueryGetField(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT blocks FROM issues WHERE id = \\$1").WithArgs("kd-a").
		WillReturnRows(sqlmock.NewRows([]string{"blocks"}).AddRow("kd-b,kd-c"))
	mock.ExpectQuery("SELECT extra ->> \\$2 FROM issues WHERE id = \\$1").WithArgs("kd-a", "assignee").
		WillReturnRows(sqlmock.NewRows([]string{"assignee"}).AddRow(nil))

	got, err := queryGetField(context.Background(), db, "kd-a", model.FieldBlocks)
	if err != nil || got != "kd-b,kd-c" {
		t.Errorf("blocks = %q, %v", got, err)
	}
	got, err = queryGetField(context.Background(), db, "kd-a", "assignee")
	if err != nil || got != "" {
		t.Errorf("unset extra field = %q, %v", got, err)
	}
}

func TestQueryGetField_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT status FROM issues WHERE id = \\$1").WithArgs("nonexistent").
		WillReturnError(sql.ErrNoRows)

	_, err := queryGetField(context.Background(), db, "nonexistent", model.FieldStatus)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestQuerySetFields(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE issues SET depends_on = \$2, status = \$3, extra = extra \|\| \$4::jsonb WHERE id = \$1`).
		WithArgs("kd-b", "kd-a", "blocked", `{"assignee":"sam"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := querySetFields(context.Background(), db, "kd-b", map[string]string{
		model.FieldStatus:    "blocked",
		model.FieldDependsOn: "kd-a",
		"assignee":           "sam",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQuerySetFields_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE issues SET status = \\$2 WHERE id = \\$1").
		WithArgs("nonexistent", "open").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := querySetFields(context.Background(), db, "nonexistent", map[string]string{model.FieldStatus: "open"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestQuerySetFields_Empty(t *testing.T) {
	db, _ := newMockDB(t)
	if err := querySetFields(context.Background(), db, "kd-a", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryListIDs(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT id FROM issues ORDER BY id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("kd-a").AddRow("kd-b"))

	ids, err := queryListIDs(context.Background(), db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"kd-a", "kd-b"}) {
		t.Errorf("ids = %v", ids)
	}
}

func TestQueryCreateIssue(t *testing.T) {
	db, mock := newMockDB(t)
	issue := &model.Issue{
		ID: "kd-a", Title: "First", Status: model.StatusOpen, Priority: model.PriorityHigh,
	}
	mock.ExpectExec("INSERT INTO issues").
		WithArgs("kd-a", "First", "open", "high", "", "", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryCreateIssue(context.Background(), db, issue); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryCreateIssue_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	issue := &model.Issue{ID: "kd-a", Title: "First", Status: model.StatusOpen, Priority: model.PriorityMedium}
	mock.ExpectExec("INSERT INTO issues").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := queryCreateIssue(context.Background(), db, issue)
	if !errors.Is(err, store.ErrExists) {
		t.Fatalf("expected store.ErrExists, got %v", err)
	}
}

func TestQueryStamp(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT count\\(\\*\\)").
		WillReturnRows(sqlmock.NewRows([]string{"count", "max", "md5"}).
			AddRow(2, "2026-01-02 03:04:05+00", "abc123"))

	got, err := queryStamp(context.Background(), db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "2:2026-01-02 03:04:05+00:abc123"; got != want {
		t.Errorf("stamp = %q, want %q", got, want)
	}
}

func TestRunInTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	s := &Store{db: db, q: db}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE issues SET blocks = \\$2 WHERE id = \\$1").
		WithArgs("kd-a", "kd-b").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE issues SET depends_on = \\$2 WHERE id = \\$1").
		WithArgs("kd-b", "kd-a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		if err := tx.SetFields(context.Background(), "kd-a", map[string]string{model.FieldBlocks: "kd-b"}); err != nil {
			return err
		}
		return tx.SetFields(context.Background(), "kd-b", map[string]string{model.FieldDependsOn: "kd-a"})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunInTransaction_RollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	s := &Store{db: db, q: db}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE issues SET blocks = \\$2 WHERE id = \\$1").
		WithArgs("kd-a", "kd-b").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE issues SET depends_on = \\$2 WHERE id = \\$1").
		WithArgs("kd-b", "kd-a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		if err := tx.SetFields(context.Background(), "kd-a", map[string]string{model.FieldBlocks: "kd-b"}); err != nil {
			return err
		}
		return tx.SetFields(context.Background(), "kd-b", map[string]string{model.FieldDependsOn: "kd-a"})
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestRunInTransaction_Nested(t *testing.T) {
	db, mock := newMockDB(t)
	s := &Store{db: db, q: db}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE issues SET status = \\$2 WHERE id = \\$1").
		WithArgs("kd-a", "blocked").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return tx.RunInTransaction(context.Background(), func(inner store.Store) error {
			if inner != tx {
				t.Error("nested call should reuse the open transaction")
			}
			return inner.SetFields(context.Background(), "kd-a", map[string]string{model.FieldStatus: "blocked"})
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (&Store{}).Close(); err != nil {
		t.Errorf("closing a transaction-scoped store: %v", err)
	}
}

func TestIndexBackend_LoadMissing(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT stamp FROM edge_index_meta").WillReturnError(sql.ErrNoRows)

	edges, stamp, ok, err := NewIndexBackend(db).Load(context.Background())
	if err != nil || ok || stamp != "" || edges != nil {
		t.Fatalf("Load() = %v, %q, %v, %v", edges, stamp, ok, err)
	}
}

func TestIndexBackend_Load(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT stamp FROM edge_index_meta").
		WillReturnRows(sqlmock.NewRows([]string{"stamp"}).AddRow("s1"))
	mock.ExpectQuery("SELECT source, relation, target FROM edge_index").
		WillReturnRows(sqlmock.NewRows([]string{"source", "relation", "target"}).
			AddRow("kd-a", "blocks", "kd-b").
			AddRow("kd-b", "depends_on", "kd-a"))

	edges, stamp, ok, err := NewIndexBackend(db).Load(context.Background())
	if err != nil || !ok || stamp != "s1" {
		t.Fatalf("Load() = %q, %v, %v", stamp, ok, err)
	}
	want := []model.Edge{
		{Source: "kd-a", Relation: model.Blocks, Target: "kd-b"},
		{Source: "kd-b", Relation: model.DependsOn, Target: "kd-a"},
	}
	if !reflect.DeepEqual(edges, want) {
		t.Errorf("edges = %v, want %v", edges, want)
	}
}

func TestIndexBackend_LoadCorrupt(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT stamp FROM edge_index_meta").
		WillReturnRows(sqlmock.NewRows([]string{"stamp"}).AddRow("s1"))
	mock.ExpectQuery("SELECT source, relation, target FROM edge_index").
		WillReturnRows(sqlmock.NewRows([]string{"source", "relation", "target"}).
			AddRow("kd-a", "duplicates", "kd-b"))

	if _, _, _, err := NewIndexBackend(db).Load(context.Background()); err == nil {
		t.Fatal("expected an error for an unknown relation")
	}
}

func TestIndexBackend_Apply(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM edge_index WHERE").
		WithArgs("kd-a", "relates_to", "kd-c").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO edge_index").
		WithArgs("kd-a", "blocks", "kd-b").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO edge_index_meta").
		WithArgs("s2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewIndexBackend(db).Apply(context.Background(),
		[]model.Edge{{Source: "kd-a", Relation: model.Blocks, Target: "kd-b"}},
		[]model.Edge{{Source: "kd-a", Relation: model.RelatesTo, Target: "kd-c"}},
		"s2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIndexBackend_ReplaceRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM edge_index").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO edge_index").
		WithArgs("kd-a", "parent_of", "kd-b").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := NewIndexBackend(db).Replace(context.Background(),
		[]model.Edge{{Source: "kd-a", Relation: model.ParentOf, Target: "kd-b"}}, "s3")
	if err == nil {
		t.Fatal("expected an error")
	}
}
