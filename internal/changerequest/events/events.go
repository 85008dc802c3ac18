// Package events publishes fire-and-forget change request lifecycle
// notifications. Publishing never fails a transition; delivery errors are
// logged by the publisher.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
)

// Type names a lifecycle notification.
type Type string

const (
	TypeDraftSaved   Type = "draft_saved"
	TypeSubmitted    Type = "submitted"
	TypeApproved     Type = "approved"
	TypeRejected     Type = "rejected"
	TypeNeedsInfo    Type = "needs_info"
	TypeItemReviewed Type = "item_reviewed"
)

// Event is the notification payload.
type Event struct {
	ID              uuid.UUID          `json:"id"`
	Type            Type               `json:"type"`
	ChangeRequestID id.ChangeRequestID `json:"change_request_id"`
	BeneficiaryID   id.BeneficiaryID   `json:"beneficiary_id"`
	ReferenceNo     string             `json:"reference_no"`
	Status          models.Status      `json:"status"`
	RevisionNo      int                `json:"revision_no"`
	ActorID         id.UserID          `json:"actor_id"`
	ItemID          id.ChangeItemID    `json:"item_id,omitempty"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

//go:generate mockgen -source=events.go -destination=mocks/publisher-mocks.go -package=mocks Publisher

// Publisher delivers events without reporting failure to the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// New builds an event describing cr's current state.
func New(t Type, cr *models.ChangeRequest, actor id.UserID, at time.Time) Event {
	return Event{
		ID:              uuid.New(),
		Type:            t,
		ChangeRequestID: cr.ID,
		BeneficiaryID:   cr.BeneficiaryID,
		ReferenceNo:     cr.ReferenceNo,
		Status:          cr.Status,
		RevisionNo:      cr.RevisionNo,
		ActorID:         actor,
		OccurredAt:      at,
	}
}
