package service

import (
	"context"
	"errors"

	"mppchs/internal/changerequest/diff"
	"mppchs/internal/changerequest/events"
	"mppchs/internal/changerequest/ledger"
	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
	"mppchs/pkg/platform/audit"
	"mppchs/pkg/platform/sentinel"
	"mppchs/pkg/requestcontext"
)

// DraftRequest is a beneficiary's proposed profile. Dependents carry their
// persisted id, a client temp id for new rows, and a removed flag.
type DraftRequest struct {
	After               models.BeneficiarySnapshot `json:"after"`
	UndertakingAccepted bool                       `json:"undertaking_accepted"`
}

// SaveDraft creates the beneficiary's open request or revises it in place.
// The payload is validated and conflict checked before anything is written.
// A new lineage is audited as draft_created; revisions are not audited.
func (s *Service) SaveDraft(ctx context.Context, beneficiaryID id.BeneficiaryID, userID id.UserID, req DraftRequest) (cr *models.ChangeRequest, err error) {
	ctx, finish := s.begin(ctx, "save_draft", beneficiaryAttr(beneficiaryID))
	defer finish(&err)

	before, err := s.snapshots.FindByBeneficiaryID(ctx, beneficiaryID)
	if err != nil {
		return nil, translate(err, "beneficiary")
	}
	after := req.After.Normalized().KeepStoredSensitive(before.Normalized())
	if err := after.Validate(); err != nil {
		return nil, err
	}
	d := diff.Compute(before, after)
	if d.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "no changes")
	}
	if err := s.conflicts.Check(ctx, beneficiaryID, before, after); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	input := models.DraftInput{
		Before:              before,
		After:               after,
		Summary:             d.Summary(),
		UndertakingAccepted: req.UndertakingAccepted,
	}
	created := false
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st Stores) error {
		active, err := st.Requests.FindActive(ctx, beneficiaryID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			active = nil
		case err != nil:
			return translate(err, "change request")
		}

		var previous []models.ChangeItem
		if active != nil {
			if err := active.ApplyRevision(userID, input, now); err != nil {
				return err
			}
			if err := st.Requests.Update(ctx, active); err != nil {
				return translate(err, "change request")
			}
			if previous, err = st.Items.ListItems(ctx, active.ID); err != nil {
				return translate(err, "change items")
			}
			cr = active
		} else {
			maxNo, err := st.Requests.MaxSubmissionNo(ctx, beneficiaryID)
			if err != nil {
				return translate(err, "change request")
			}
			cr = models.NewDraft(beneficiaryID, userID, maxNo+1, input, now)
			if err := st.Requests.Create(ctx, cr); err != nil {
				return translate(err, "change request")
			}
			created = true
		}

		items := ledger.Rebuild(s.policy, previous, ledger.Build(cr.ID, d, now))
		if _, err := st.Items.ReplaceItems(ctx, cr.ID, items); err != nil {
			return translate(err, "change items")
		}
		logs := models.NewDependentLogEntries(cr.ID, d.Dependents, now)
		if err := st.Logs.ReplaceLogs(ctx, cr.ID, logs); err != nil {
			return translate(err, "dependent change log")
		}
		if created {
			return appendAudit(ctx, st, cr.ID, audit.ActionDraftCreated, userID, "", now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "change request draft saved",
		"change_request_id", cr.ID,
		"beneficiary_id", beneficiaryID,
		"actor_id", userID,
		"revision_no", cr.RevisionNo,
		"created", created,
	)
	s.afterCommit(ctx, cr, true, events.New(events.TypeDraftSaved, cr, userID, now))
	return cr, nil
}

// SubmitDraft moves the beneficiary's draft (or needs_info request) to
// pending. Identifier conflicts are checked again because other requests
// may have reserved the same values since the draft was saved.
func (s *Service) SubmitDraft(ctx context.Context, beneficiaryID id.BeneficiaryID, requestID id.ChangeRequestID, userID id.UserID) (cr *models.ChangeRequest, err error) {
	ctx, finish := s.begin(ctx, "submit", beneficiaryAttr(beneficiaryID), requestAttr(requestID))
	defer finish(&err)

	current, err := s.loadOwned(ctx, beneficiaryID, requestID)
	if err != nil {
		return nil, err
	}
	if err := current.CanSubmit(); err != nil {
		return nil, err
	}
	if err := s.conflicts.Check(ctx, beneficiaryID, current.Before, current.After); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st Stores) error {
		locked, err := st.Requests.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			return translate(err, "change request")
		}
		if err := locked.ApplySubmit(now); err != nil {
			return err
		}
		if err := st.Requests.Update(ctx, locked); err != nil {
			return translate(err, "change request")
		}
		cr = locked
		return appendAudit(ctx, st, requestID, audit.ActionSubmitted, userID, "", now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "change request submitted",
		"change_request_id", cr.ID,
		"beneficiary_id", beneficiaryID,
		"actor_id", userID,
		"reference_no", cr.ReferenceNo,
	)
	s.afterCommit(ctx, cr, true, events.New(events.TypeSubmitted, cr, userID, now))
	return cr, nil
}
