package graph

import "github.com/groblegark/kdeps/internal/model"

// RecomputeStatus derives an issue's status from its current status and the
// statuses of its direct blockers.
//
//   - closed is terminal and never changes.
//   - any blocker that is not closed makes the issue blocked.
//   - once every blocker is closed, a blocked issue reopens; other statuses
//     set by the owner are left alone.
func RecomputeStatus(current model.Status, blockers []model.Status) model.Status {
	if current == model.StatusClosed {
		return current
	}
	for _, s := range blockers {
		if s != model.StatusClosed {
			return model.StatusBlocked
		}
	}
	if current == model.StatusBlocked {
		return model.StatusOpen
	}
	return current
}

// StatusChange records one status write made by the engine.
type StatusChange struct {
	ID   string       `json:"id"`
	From model.Status `json:"from"`
	To   model.Status `json:"to"`
}
