package models

import (
	"time"

	id "mppchs/pkg/domain"
)

// DependentChangeLogEntry persists one dependent action of a request so the
// readable diff can be shown later without recomputation.
type DependentChangeLogEntry struct {
	ID              int64              `json:"id"`
	ChangeRequestID id.ChangeRequestID `json:"change_request_id"`
	// DependentID is zero for adds of new dependents.
	DependentID  id.DependentID     `json:"dependent_id,omitempty"`
	Action       DependentAction    `json:"action"`
	Relationship string             `json:"relationship"`
	IsAlive      *bool              `json:"is_alive,omitempty"`
	HealthStatus string             `json:"health_status"`
	Before       *DependentSnapshot `json:"payload_before,omitempty"`
	After        *DependentSnapshot `json:"payload_after,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// NewDependentLogEntries projects the dependent actions of a diff into log
// rows, in diff order.
func NewDependentLogEntries(requestID id.ChangeRequestID, changes []DependentChange, now time.Time) []DependentChangeLogEntry {
	out := make([]DependentChangeLogEntry, 0, len(changes))
	for _, c := range changes {
		entry := DependentChangeLogEntry{
			ChangeRequestID: requestID,
			Action:          c.Action(),
			CreatedAt:       now,
		}
		if depID, ok := c.Identity().DependentID(); ok {
			entry.DependentID = depID
		}
		var display DependentSnapshot
		switch ch := c.(type) {
		case DependentAdd:
			after := ch.After
			entry.After = &after
			display = after
		case DependentUpdate:
			before, after := ch.Before, ch.After
			entry.Before, entry.After = &before, &after
			display = after
		case DependentRemove:
			before := ch.Before
			entry.Before = &before
			display = before
		}
		alive := display.IsAlive
		entry.Relationship = display.Relationship
		entry.IsAlive = &alive
		entry.HealthStatus = display.HealthStatus
		out = append(out, entry)
	}
	return out
}
