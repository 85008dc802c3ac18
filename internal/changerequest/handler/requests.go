package handler

import (
	"strings"
	"time"

	"mppchs/internal/changerequest/models"
	"mppchs/internal/changerequest/service"
	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
	"mppchs/pkg/platform/audit"
)

// maxNoteLength bounds reviewer comments and item notes.
const maxNoteLength = 2000

// DecisionRequest is the optional body of approve, reject and request-info.
type DecisionRequest struct {
	Comment string `json:"comment"`
}

func (r *DecisionRequest) Validate() error {
	r.Comment = strings.TrimSpace(r.Comment)
	if len(r.Comment) > maxNoteLength {
		return dErrors.New(dErrors.CodeValidation, "comment is too long")
	}
	return nil
}

// ItemReviewRequest is the body of an item review.
type ItemReviewRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// Parse validates the request and returns the item status.
func (r *ItemReviewRequest) Parse() (models.ItemStatus, error) {
	r.Note = strings.TrimSpace(r.Note)
	if len(r.Note) > maxNoteLength {
		return "", dErrors.New(dErrors.CodeValidation, "note is too long")
	}
	return models.ParseItemStatus(strings.ToLower(strings.TrimSpace(r.Status)))
}

type listResponse struct {
	ChangeRequests []service.RequestSummary `json:"change_requests"`
}

type activeResponse struct {
	ChangeRequest *service.RequestSummary `json:"change_request"`
}

type syncResponse struct {
	Entries int `json:"entries"`
}

type auditEntryResponse struct {
	ID        string       `json:"id"`
	Action    audit.Action `json:"action"`
	ActorID   id.UserID    `json:"actor_id"`
	Note      string       `json:"note,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

type auditResponse struct {
	Entries []auditEntryResponse `json:"entries"`
}

func toAuditResponse(entries []audit.Event) auditResponse {
	out := auditResponse{Entries: make([]auditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, auditEntryResponse{
			ID:        e.ID.String(),
			Action:    e.Action,
			ActorID:   e.ActorID,
			Note:      e.Note,
			Timestamp: e.Timestamp,
		})
	}
	return out
}
