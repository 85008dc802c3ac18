package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "mppchs/pkg/domain"
)

// Action tags an audit entry. Entries are append-only and never mutated.
type Action string

const (
	ActionDraftCreated Action = "draft_created"
	ActionSubmitted    Action = "submitted"
	ActionApproved     Action = "approved"
	ActionRejected     Action = "rejected"
	ActionNeedsInfo    Action = "needs_info"
)

// ItemAction returns the tag for a per-item review decision, e.g. "item_approved".
func ItemAction(status string) Action {
	return Action("item_" + status)
}

// Event records one successful change request transition.
type Event struct {
	ID              uuid.UUID
	ChangeRequestID id.ChangeRequestID
	Action          Action
	ActorID         id.UserID
	Note            string
	RequestID       string // correlation id from the HTTP request context
	Timestamp       time.Time
}

// Store persists audit entries. Append participates in the caller's
// transaction when one is carried in ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByChangeRequest(ctx context.Context, changeRequestID id.ChangeRequestID) ([]Event, error)
}

// NewEvent fills in the id and defaults the timestamp.
func NewEvent(changeRequestID id.ChangeRequestID, action Action, actor id.UserID, note string, at time.Time) Event {
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		ID:              uuid.New(),
		ChangeRequestID: changeRequestID,
		Action:          action,
		ActorID:         actor,
		Note:            note,
		Timestamp:       at,
	}
}
