// Package postgres keeps issues in a PostgreSQL table and the edge index in
// two side tables of the same database.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a store.Store over a connection pool, or over one open
// transaction when handed to a RunInTransaction callback.
type Store struct {
	db *sql.DB // nil inside a transaction
	q  executor
}

var _ store.Store = (*Store)(nil)

// Open connects to databaseURL and applies pending schema migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, q: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	drv, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: "kd_schema_migrations"})
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// DB returns the pool for the index backend. It is nil inside a
// transaction.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	return queryExists(ctx, s.q, id)
}

func (s *Store) GetField(ctx context.Context, id, name string) (string, error) {
	return queryGetField(ctx, s.q, id, name)
}

func (s *Store) SetFields(ctx context.Context, id string, fields map[string]string) error {
	return querySetFields(ctx, s.q, id, fields)
}

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	return queryListIDs(ctx, s.q)
}

func (s *Store) CreateIssue(ctx context.Context, issue *model.Issue) error {
	return queryCreateIssue(ctx, s.q, issue)
}

func (s *Store) Stamp(ctx context.Context) (string, error) {
	return queryStamp(ctx, s.q)
}

// RunInTransaction runs fn against a transaction that commits when fn
// returns nil. Nested calls join the outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Store{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close releases the pool. Closing a transaction-scoped Store does nothing.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
