package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/store"
)

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// columnFor maps a field name to its column. Only known fields have columns;
// everything else lives in the extra jsonb document.
func columnFor(name string) (string, bool) {
	if model.IsField(name) {
		return name, true
	}
	return "", false
}

func queryExists(ctx context.Context, db executor, id string) (bool, error) {
	var ok bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM issues WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check issue %s: %w", id, err)
	}
	return ok, nil
}

func queryGetField(ctx context.Context, db executor, id, name string) (string, error) {
	var (
		v   sql.NullString
		err error
	)
	if col, ok := columnFor(name); ok {
		err = db.QueryRowContext(ctx, `SELECT `+col+` FROM issues WHERE id = $1`, id).Scan(&v)
	} else {
		err = db.QueryRowContext(ctx, `SELECT extra ->> $2 FROM issues WHERE id = $1`, id, name).Scan(&v)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get %s of %s: %w", name, id, err)
	}
	return v.String, nil
}

// querySetFields rewrites the given fields in a single UPDATE. Column
// assignments come first in name order, then one jsonb merge for the rest.
func querySetFields(ctx context.Context, db executor, id string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		sets  []string
		args  = []any{id}
		extra = map[string]string{}
	)
	nextArg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	for _, name := range names {
		if col, ok := columnFor(name); ok {
			sets = append(sets, col+" = "+nextArg(fields[name]))
			continue
		}
		extra[name] = fields[name]
	}
	if len(extra) > 0 {
		doc, err := json.Marshal(extra)
		if err != nil {
			return fmt.Errorf("encode extra fields: %w", err)
		}
		sets = append(sets, "extra = extra || "+nextArg(string(doc))+"::jsonb")
	}

	res, err := db.ExecContext(ctx, `UPDATE issues SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update issue %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	return nil
}

func queryListIDs(ctx context.Context, db executor) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM issues ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func queryCreateIssue(ctx context.Context, db executor, issue *model.Issue) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO issues (
			id, title, status, priority, blocks, depends_on, parent_of, relates_to
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		issue.ID,
		issue.Title,
		string(issue.Status),
		string(issue.Priority),
		model.FormatList(issue.Blocks),
		model.FormatList(issue.DependsOn),
		model.FormatList(issue.ParentOf),
		model.FormatList(issue.RelatesTo),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", issue.ID, store.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("insert issue %s: %w", issue.ID, err)
	}
	return nil
}

// queryStamp fingerprints the issues table. Row count and the newest
// updated_at catch creates and trigger-stamped updates; the digest of the
// relationship columns catches edits that preserve both.
func queryStamp(ctx context.Context, db executor) (string, error) {
	var (
		count  int64
		latest sql.NullString
		digest string
	)
	err := db.QueryRowContext(ctx, `
		SELECT count(*),
		       max(updated_at)::text,
		       md5(coalesce(string_agg(
		           id || '|' || blocks || '|' || depends_on || '|' || parent_of || '|' || relates_to,
		           E'\n' ORDER BY id), ''))
		FROM issues`).Scan(&count, &latest, &digest)
	if err != nil {
		return "", fmt.Errorf("stamp issues: %w", err)
	}
	return fmt.Sprintf("%d:%s:%s", count, latest.String, digest), nil
}
