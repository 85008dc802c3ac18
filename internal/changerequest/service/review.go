package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mppchs/internal/changerequest/events"
	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
	"mppchs/pkg/platform/audit"
	"mppchs/pkg/requestcontext"
)

// Approve applies the request's after payload to the live records and marks
// it approved, all in one transaction. The status is checked again under the
// row lock so that of two concurrent approvals exactly one commits; the
// other gets InvalidState and writes nothing. Any failure while applying
// rolls everything back and the request stays pending.
func (s *Service) Approve(ctx context.Context, requestID id.ChangeRequestID, reviewerID id.UserID, comment string) (cr *models.ChangeRequest, err error) {
	ctx, finish := s.begin(ctx, "approve", requestAttr(requestID))
	defer finish(&err)

	current, err := s.stores.Requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, translate(err, "change request")
	}
	if err := current.CanApprove(); err != nil {
		return nil, err
	}
	if err := s.conflicts.Check(ctx, current.BeneficiaryID, current.Before, current.After); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st Stores) error {
		locked, err := st.Requests.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			return translate(err, "change request")
		}
		if err := locked.CanApprove(); err != nil {
			return err
		}
		result, err := s.applier.Apply(ctx, st.Live, locked, reviewerID, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeApplyFailed, "failed to apply change request")
		}
		if err := locked.ApplyApprove(reviewerID, comment, now); err != nil {
			return err
		}
		if err := st.Requests.Update(ctx, locked); err != nil {
			return translate(err, "change request")
		}
		if err := appendAudit(ctx, st, requestID, audit.ActionApproved, reviewerID, comment, now); err != nil {
			return err
		}
		if err := refreshSummary(ctx, st, locked); err != nil {
			return dErrors.Wrap(err, dErrors.CodeApplyFailed, "failed to refresh beneficiary summary")
		}
		s.logger.InfoContext(ctx, "change request applied",
			"change_request_id", requestID,
			"beneficiary_id", locked.BeneficiaryID,
			"fields_applied", result.FieldsApplied,
			"dependents_added", result.DependentsAdded,
			"dependents_updated", result.DependentsUpdated,
			"dependents_removed", result.DependentsRemoved,
		)
		cr = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "change request approved",
		"change_request_id", cr.ID,
		"beneficiary_id", cr.BeneficiaryID,
		"actor_id", reviewerID,
	)
	s.afterCommit(ctx, cr, false, events.New(events.TypeApproved, cr, reviewerID, now))
	return cr, nil
}

// Reject closes a pending or needs_info request without touching live data.
func (s *Service) Reject(ctx context.Context, requestID id.ChangeRequestID, reviewerID id.UserID, comment string) (cr *models.ChangeRequest, err error) {
	ctx, finish := s.begin(ctx, "reject", requestAttr(requestID))
	defer finish(&err)

	cr, err = s.review(ctx, requestID, reviewerID, comment, reviewStep{
		check:  (*models.ChangeRequest).CanReject,
		apply:  (*models.ChangeRequest).ApplyReject,
		action: audit.ActionRejected,
		event:  events.TypeRejected,
	})
	return cr, err
}

// RequestMoreInfo returns a pending request to the beneficiary for edits.
func (s *Service) RequestMoreInfo(ctx context.Context, requestID id.ChangeRequestID, reviewerID id.UserID, comment string) (cr *models.ChangeRequest, err error) {
	ctx, finish := s.begin(ctx, "request_info", requestAttr(requestID))
	defer finish(&err)

	cr, err = s.review(ctx, requestID, reviewerID, comment, reviewStep{
		check:  (*models.ChangeRequest).CanRequestInfo,
		apply:  (*models.ChangeRequest).ApplyRequestInfo,
		action: audit.ActionNeedsInfo,
		event:  events.TypeNeedsInfo,
	})
	return cr, err
}

// reviewStep describes a reviewer transition that only touches the request.
type reviewStep struct {
	check  func(*models.ChangeRequest) error
	apply  func(*models.ChangeRequest, id.UserID, string, time.Time) error
	action audit.Action
	event  events.Type
}

func (s *Service) review(ctx context.Context, requestID id.ChangeRequestID, reviewerID id.UserID, comment string, step reviewStep) (*models.ChangeRequest, error) {
	current, err := s.stores.Requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, translate(err, "change request")
	}
	if err := step.check(current); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var cr *models.ChangeRequest
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st Stores) error {
		locked, err := st.Requests.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			return translate(err, "change request")
		}
		if err := step.apply(locked, reviewerID, comment, now); err != nil {
			return err
		}
		if err := st.Requests.Update(ctx, locked); err != nil {
			return translate(err, "change request")
		}
		cr = locked
		return appendAudit(ctx, st, requestID, step.action, reviewerID, comment, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "change request reviewed",
		"change_request_id", cr.ID,
		"beneficiary_id", cr.BeneficiaryID,
		"actor_id", reviewerID,
		"status", cr.Status,
	)
	s.afterCommit(ctx, cr, true, events.New(step.event, cr, reviewerID, now))
	return cr, nil
}

// ReviewItem records a reviewer decision on one ledger item. Item decisions
// are advisory: they never change the request status or what Approve
// applies.
func (s *Service) ReviewItem(ctx context.Context, requestID id.ChangeRequestID, itemID id.ChangeItemID, status models.ItemStatus, reviewerID id.UserID, note string) (item *models.ChangeItem, err error) {
	ctx, finish := s.begin(ctx, "review_item", requestAttr(requestID), attribute.Int64("change_item_id", int64(itemID)))
	defer finish(&err)

	now := requestcontext.Now(ctx)
	var cr *models.ChangeRequest
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st Stores) error {
		locked, err := st.Requests.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			return translate(err, "change request")
		}
		if err := locked.CanReviewItems(); err != nil {
			return err
		}
		found, err := st.Items.FindItem(ctx, requestID, itemID)
		if err != nil {
			return translate(err, "change item")
		}
		found.ApplyReview(status, reviewerID, note, now)
		if err := st.Items.UpdateItem(ctx, found); err != nil {
			return translate(err, "change item")
		}
		cr, item = locked, found
		return appendAudit(ctx, st, requestID, audit.ItemAction(string(status)), reviewerID, note, now)
	})
	if err != nil {
		return nil, err
	}

	event := events.New(events.TypeItemReviewed, cr, reviewerID, now)
	event.ItemID = item.ID
	s.afterCommit(ctx, cr, false, event)
	return item, nil
}
