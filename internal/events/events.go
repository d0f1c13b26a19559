package events

import (
	"context"

	"github.com/groblegark/kdeps/internal/model"
)

// Event topic constants
const (
	TopicEdgeAdded     = "kd.edge.added"
	TopicEdgeRemoved   = "kd.edge.removed"
	TopicIssueCreated  = "kd.issue.created"
	TopicStatusChanged = "kd.issue.status"
	TopicIndexRebuilt  = "kd.index.rebuilt"
	TopicIndexCaughtUp = "kd.index.caught_up"
)

// TopicAll matches every kd topic (NATS wildcard syntax).
const TopicAll = "kd.>"

// Event types

type EdgeAdded struct {
	Edge model.Edge `json:"edge"`
}

type EdgeRemoved struct {
	Edge model.Edge `json:"edge"`
}

type IssueCreated struct {
	Issue *model.Issue `json:"issue"`
}

// StatusChanged is emitted for every status write, including the automatic
// blocked/open transitions made by the cascade.
type StatusChanged struct {
	IssueID string       `json:"issue_id"`
	From    model.Status `json:"from"`
	To      model.Status `json:"to"`
	Cause   string       `json:"cause,omitempty"` // id of the issue or edge that triggered it
}

// IndexChanged reports an index rebuild or a staleness catch-up.
type IndexChanged struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Total   int `json:"total"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
