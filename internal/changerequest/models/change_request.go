package models

import (
	"fmt"
	"time"

	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
)

// Status is the lifecycle state of a change request.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusNeedsInfo Status = "needs_info"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// OpenStatuses are the states counted by the one-open-request-per-beneficiary
// rule.
var OpenStatuses = []Status{StatusDraft, StatusPending, StatusNeedsInfo}

// IsOpen reports whether the status is non-terminal.
func (s Status) IsOpen() bool {
	return s == StatusDraft || s == StatusPending || s == StatusNeedsInfo
}

func (s Status) IsValid() bool {
	return s.IsOpen() || s == StatusApproved || s == StatusRejected
}

func (s Status) String() string { return string(s) }

// ChangeRequest is one proposed edit cycle for a beneficiary.
//
// Invariants:
//   - At most one request per beneficiary is open (draft, pending, needs_info)
//   - approved and rejected are terminal
//   - RevisionNo increases on every draft save and on resubmission from needs_info
//   - SubmissionNo is fixed at creation
type ChangeRequest struct {
	ID                  id.ChangeRequestID  `json:"id"`
	BeneficiaryID       id.BeneficiaryID    `json:"beneficiary_id"`
	UserID              id.UserID           `json:"user_id"`
	ReferenceNo         string              `json:"reference_no"`
	SubmissionNo        int                 `json:"submission_no"`
	RevisionNo          int                 `json:"revision_no"`
	Status              Status              `json:"status"`
	RequestedAt         *time.Time          `json:"requested_at,omitempty"`
	ReviewedAt          *time.Time          `json:"reviewed_at,omitempty"`
	ReviewerID          id.UserID           `json:"reviewer_id,omitempty"`
	ReviewComment       string              `json:"review_comment,omitempty"`
	Before              BeneficiarySnapshot `json:"payload_before"`
	After               BeneficiarySnapshot `json:"payload_after"`
	Summary             Summary             `json:"summary_diff"`
	UndertakingAccepted bool                `json:"undertaking_accepted"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// ReferenceNumber formats the human reference for a submission lineage.
func ReferenceNumber(beneficiaryID id.BeneficiaryID, submissionNo int) string {
	return fmt.Sprintf("CR-%d-%04d", beneficiaryID, submissionNo)
}

// DraftInput is the payload of a draft save.
type DraftInput struct {
	Before              BeneficiarySnapshot
	After               BeneficiarySnapshot
	Summary             Summary
	UndertakingAccepted bool
}

// NewDraft creates revision 1 of a new lineage.
func NewDraft(beneficiaryID id.BeneficiaryID, userID id.UserID, submissionNo int, in DraftInput, now time.Time) *ChangeRequest {
	return &ChangeRequest{
		BeneficiaryID:       beneficiaryID,
		UserID:              userID,
		ReferenceNo:         ReferenceNumber(beneficiaryID, submissionNo),
		SubmissionNo:        submissionNo,
		RevisionNo:          1,
		Status:              StatusDraft,
		Before:              in.Before,
		After:               in.After,
		Summary:             in.Summary,
		UndertakingAccepted: in.UndertakingAccepted,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func invalidTransition(op string, from Status) error {
	return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("cannot %s a %s change request", op, from))
}

// CanRevise reports whether the draft may be edited in place.
func (r *ChangeRequest) CanRevise() error {
	if r.Status == StatusDraft || r.Status == StatusNeedsInfo {
		return nil
	}
	return invalidTransition("edit", r.Status)
}

// ApplyRevision replaces the payload and bumps the revision. Status is kept,
// so a needs_info request stays in needs_info until resubmitted.
func (r *ChangeRequest) ApplyRevision(userID id.UserID, in DraftInput, now time.Time) error {
	if err := r.CanRevise(); err != nil {
		return err
	}
	r.UserID = userID
	r.Before = in.Before
	r.After = in.After
	r.Summary = in.Summary
	r.UndertakingAccepted = in.UndertakingAccepted
	r.RevisionNo++
	r.UpdatedAt = now
	return nil
}

// CanSubmit reports whether the request may move to pending.
func (r *ChangeRequest) CanSubmit() error {
	if r.Status != StatusDraft && r.Status != StatusNeedsInfo {
		return invalidTransition("submit", r.Status)
	}
	if !r.UndertakingAccepted {
		return dErrors.New(dErrors.CodeValidation, "undertaking must be accepted before submission")
	}
	return nil
}

// ApplySubmit moves the request to pending. Resubmission from needs_info
// counts as a new revision.
func (r *ChangeRequest) ApplySubmit(now time.Time) error {
	if err := r.CanSubmit(); err != nil {
		return err
	}
	if r.Status == StatusNeedsInfo {
		r.RevisionNo++
	}
	r.Status = StatusPending
	r.RequestedAt = &now
	r.UpdatedAt = now
	return nil
}

func (r *ChangeRequest) CanApprove() error {
	if r.Status != StatusPending {
		return invalidTransition("approve", r.Status)
	}
	return nil
}

func (r *ChangeRequest) ApplyApprove(reviewer id.UserID, comment string, now time.Time) error {
	if err := r.CanApprove(); err != nil {
		return err
	}
	r.review(StatusApproved, reviewer, comment, now)
	return nil
}

func (r *ChangeRequest) CanReject() error {
	if r.Status != StatusPending && r.Status != StatusNeedsInfo {
		return invalidTransition("reject", r.Status)
	}
	return nil
}

func (r *ChangeRequest) ApplyReject(reviewer id.UserID, comment string, now time.Time) error {
	if err := r.CanReject(); err != nil {
		return err
	}
	r.review(StatusRejected, reviewer, comment, now)
	return nil
}

func (r *ChangeRequest) CanRequestInfo() error {
	if r.Status != StatusPending {
		return invalidTransition("request information on", r.Status)
	}
	return nil
}

func (r *ChangeRequest) ApplyRequestInfo(reviewer id.UserID, comment string, now time.Time) error {
	if err := r.CanRequestInfo(); err != nil {
		return err
	}
	r.review(StatusNeedsInfo, reviewer, comment, now)
	return nil
}

// CanReviewItems reports whether individual items may be reviewed.
func (r *ChangeRequest) CanReviewItems() error {
	if r.Status != StatusPending && r.Status != StatusNeedsInfo {
		return invalidTransition("review items of", r.Status)
	}
	return nil
}

func (r *ChangeRequest) review(to Status, reviewer id.UserID, comment string, now time.Time) {
	r.Status = to
	r.ReviewerID = reviewer
	r.ReviewComment = comment
	r.ReviewedAt = &now
	r.UpdatedAt = now
}
