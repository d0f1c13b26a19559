package model

import (
	"fmt"
	"sort"
	"strings"
)

// Relation is the kind of a directed edge between two issues.
type Relation int

const (
	Blocks Relation = iota + 1
	DependsOn
	ParentOf
	RelatesTo
)

// Relations lists every known relation in canonical order.
var Relations = []Relation{Blocks, DependsOn, ParentOf, RelatesTo}

var relationNames = map[Relation]string{
	Blocks:    "blocks",
	DependsOn: "depends_on",
	ParentOf:  "parent_of",
	RelatesTo: "relates_to",
}

// inverses maps bidirectional relations to the row stored on the other issue.
// Relations absent from this table have no inverse row.
var inverses = map[Relation]Relation{
	Blocks:    DependsOn,
	DependsOn: Blocks,
}

// String returns the wire name of the relation.
func (r Relation) String() string {
	if name, ok := relationNames[r]; ok {
		return name
	}
	return fmt.Sprintf("relation(%d)", int(r))
}

// IsValid reports whether r is one of the known relations.
func (r Relation) IsValid() bool {
	_, ok := relationNames[r]
	return ok
}

// Field returns the issue field that stores edges of this relation.
func (r Relation) Field() string {
	return r.String()
}

// Inverse returns the relation stored on the target side, if any.
func (r Relation) Inverse() (Relation, bool) {
	inv, ok := inverses[r]
	return inv, ok
}

// Blocking reports whether the relation participates in the blocking subgraph.
func (r Relation) Blocking() bool {
	return r == Blocks || r == DependsOn
}

// MarshalText implements encoding.TextMarshaler.
func (r Relation) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid relation %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Relation) UnmarshalText(b []byte) error {
	parsed, err := ParseRelation(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRelation resolves a relation name. Hyphenated spellings are accepted.
func ParseRelation(s string) (Relation, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for r, n := range relationNames {
		if n == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown relation %q", s)
}

// Edge is one directed row of the edge index.
type Edge struct {
	Source   string   `json:"source"`
	Relation Relation `json:"relation"`
	Target   string   `json:"target"`
}

// String renders the edge as "source relation target".
func (e Edge) String() string {
	return e.Source + " " + e.Relation.String() + " " + e.Target
}

// Inverse returns the row stored on the target side, if the relation has one.
func (e Edge) Inverse() (Edge, bool) {
	inv, ok := e.Relation.Inverse()
	if !ok {
		return Edge{}, false
	}
	return Edge{Source: e.Target, Relation: inv, Target: e.Source}, true
}

// WithInverse returns the edge followed by its inverse row, if any.
func (e Edge) WithInverse() []Edge {
	if inv, ok := e.Inverse(); ok {
		return []Edge{e, inv}
	}
	return []Edge{e}
}

// Canonical rewrites a depends_on edge as the equivalent blocks edge.
func (e Edge) Canonical() Edge {
	if e.Relation == DependsOn {
		return Edge{Source: e.Target, Relation: Blocks, Target: e.Source}
	}
	return e
}

// ParseEdge parses a "source relation target" line.
func ParseEdge(line string) (Edge, error) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return Edge{}, fmt.Errorf("malformed edge %q", line)
	}
	r, err := ParseRelation(parts[1])
	if err != nil {
		return Edge{}, err
	}
	return Edge{Source: parts[0], Relation: r, Target: parts[2]}, nil
}

// SortEdges orders edges by source, relation, then target.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Relation != b.Relation {
			return a.Relation < b.Relation
		}
		return a.Target < b.Target
	})
}
