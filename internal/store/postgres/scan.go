package postgres

import (
	"database/sql"
	"fmt"

	"github.com/groblegark/kdeps/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEdge scans a single source, relation, target row.
func scanEdge(row scannable) (model.Edge, error) {
	var source, relation, target string
	if err := row.Scan(&source, &relation, &target); err != nil {
		return model.Edge{}, err
	}
	r, err := model.ParseRelation(relation)
	if err != nil {
		return model.Edge{}, fmt.Errorf("edge %s %s %s: %w", source, relation, target, err)
	}
	return model.Edge{Source: source, Relation: r, Target: target}, nil
}

// scanEdges scans all rows into edges.
func scanEdges(rows *sql.Rows) ([]model.Edge, error) {
	defer rows.Close()
	var edges []model.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
