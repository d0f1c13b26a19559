package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/groblegark/kdeps/internal/index"
	"github.com/groblegark/kdeps/internal/model"
)

// IndexBackend persists the edge index in the edge_index table next to the
// issues it describes.
type IndexBackend struct {
	db *sql.DB
}

// Compile-time check that IndexBackend implements index.Backend.
var _ index.Backend = (*IndexBackend)(nil)

// NewIndexBackend returns an index backend sharing db.
func NewIndexBackend(db *sql.DB) *IndexBackend {
	return &IndexBackend{db: db}
}

func (b *IndexBackend) Load(ctx context.Context) ([]model.Edge, string, bool, error) {
	var stamp string
	err := b.db.QueryRowContext(ctx, `SELECT stamp FROM edge_index_meta WHERE id = 1`).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("read index stamp: %w", err)
	}
	rows, err := b.db.QueryContext(ctx, `SELECT source, relation, target FROM edge_index ORDER BY source, relation, target`)
	if err != nil {
		return nil, "", false, fmt.Errorf("read index: %w", err)
	}
	edges, err := scanEdges(rows)
	if err != nil {
		return nil, "", false, fmt.Errorf("read index: %w", err)
	}
	return edges, stamp, true, nil
}

func (b *IndexBackend) Apply(ctx context.Context, add, remove []model.Edge, stamp string) error {
	return b.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range remove {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM edge_index WHERE source = $1 AND relation = $2 AND target = $3`,
				e.Source, e.Relation.String(), e.Target); err != nil {
				return fmt.Errorf("delete %s: %w", e, err)
			}
		}
		if err := insertEdges(ctx, tx, add); err != nil {
			return err
		}
		return writeStamp(ctx, tx, stamp)
	})
}

func (b *IndexBackend) Replace(ctx context.Context, edges []model.Edge, stamp string) error {
	return b.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM edge_index`); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
		if err := insertEdges(ctx, tx, edges); err != nil {
			return err
		}
		return writeStamp(ctx, tx, stamp)
	})
}

func (b *IndexBackend) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertEdges(ctx context.Context, db executor, edges []model.Edge) error {
	for _, e := range edges {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO edge_index (source, relation, target) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			e.Source, e.Relation.String(), e.Target); err != nil {
			return fmt.Errorf("insert %s: %w", e, err)
		}
	}
	return nil
}

func writeStamp(ctx context.Context, db executor, stamp string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO edge_index_meta (id, stamp) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET stamp = EXCLUDED.stamp`, stamp)
	if err != nil {
		return fmt.Errorf("write index stamp: %w", err)
	}
	return nil
}
