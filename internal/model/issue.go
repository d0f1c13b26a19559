package model

import (
	"fmt"
	"strings"
)

// Status represents the current state of an issue.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusBlocked    Status = "blocked"
	StatusDeferred   Status = "deferred"
	StatusClosed     Status = "closed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusReview, StatusBlocked, StatusDeferred, StatusClosed:
		return true
	}
	return false
}

// Priority is the ordinal urgency of an issue.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// IsValid checks whether the priority is a known value.
func (p Priority) IsValid() bool {
	return p.Rank() >= 0
}

// Rank orders priorities from 0 (low) to 3 (critical). Unknown values rank -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return -1
}

// ParsePriority converts a string to a Priority. An empty string yields medium.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid priority %q (want low, medium, high or critical)", s)
	}
	return p, nil
}

// Issue field names as stored in the issue header block.
const (
	FieldTitle     = "title"
	FieldStatus    = "status"
	FieldPriority  = "priority"
	FieldBlocks    = "blocks"
	FieldDependsOn = "depends_on"
	FieldParentOf  = "parent_of"
	FieldRelatesTo = "relates_to"
)

// Fields lists every field an issue carries, in header order.
var Fields = []string{
	FieldTitle, FieldStatus, FieldPriority,
	FieldBlocks, FieldDependsOn, FieldParentOf, FieldRelatesTo,
}

// IsField reports whether name is a known issue field.
func IsField(name string) bool {
	for _, f := range Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Issue is the subset of an issue record the dependency graph reads and writes.
type Issue struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Status    Status   `json:"status"`
	Priority  Priority `json:"priority"`
	Blocks    []string `json:"blocks,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
	ParentOf  []string `json:"parent_of,omitempty"`
	RelatesTo []string `json:"relates_to,omitempty"`
}

// Related returns the ids stored under the field for relation r.
func (i *Issue) Related(r Relation) []string {
	switch r {
	case Blocks:
		return i.Blocks
	case DependsOn:
		return i.DependsOn
	case ParentOf:
		return i.ParentOf
	case RelatesTo:
		return i.RelatesTo
	}
	return nil
}

// FieldValues renders the issue as the string field map the store persists.
func (i *Issue) FieldValues() map[string]string {
	return map[string]string{
		FieldTitle:     i.Title,
		FieldStatus:    string(i.Status),
		FieldPriority:  string(i.Priority),
		FieldBlocks:    FormatList(i.Blocks),
		FieldDependsOn: FormatList(i.DependsOn),
		FieldParentOf:  FormatList(i.ParentOf),
		FieldRelatesTo: FormatList(i.RelatesTo),
	}
}

// IssueFromFields builds an Issue from stored field values.
func IssueFromFields(id string, fields map[string]string) *Issue {
	return &Issue{
		ID:        id,
		Title:     fields[FieldTitle],
		Status:    Status(fields[FieldStatus]),
		Priority:  Priority(fields[FieldPriority]),
		Blocks:    ParseList(fields[FieldBlocks]),
		DependsOn: ParseList(fields[FieldDependsOn]),
		ParentOf:  ParseList(fields[FieldParentOf]),
		RelatesTo: ParseList(fields[FieldRelatesTo]),
	}
}

// EdgesFrom derives every edge implied by the issue's relationship fields.
// Each field yields rows with the issue as source, so a consistent blocks
// pair contributes (a blocks b) from a and (b depends_on a) from b.
func EdgesFrom(i *Issue) []Edge {
	var edges []Edge
	for _, r := range Relations {
		for _, target := range i.Related(r) {
			edges = append(edges, Edge{Source: i.ID, Relation: r, Target: target})
		}
	}
	return edges
}

// ParseList splits a comma-separated id list, trimming blanks and dropping
// duplicates while keeping first-seen order.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(s, ",") {
		id := strings.TrimSpace(part)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// FormatList joins ids into the stored comma-separated form.
func FormatList(ids []string) string {
	return strings.Join(ids, ",")
}

// AddToList appends id unless already present. The boolean reports a change.
func AddToList(ids []string, id string) ([]string, bool) {
	for _, existing := range ids {
		if existing == id {
			return ids, false
		}
	}
	return append(ids, id), true
}

// RemoveFromList drops id. The boolean reports whether it was present.
func RemoveFromList(ids []string, id string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	found := false
	for _, existing := range ids {
		if existing == id {
			found = true
			continue
		}
		out = append(out, existing)
	}
	return out, found
}
