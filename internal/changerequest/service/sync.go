package service

import (
	"context"

	"mppchs/internal/changerequest/diff"
	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
	"mppchs/pkg/requestcontext"
)

// SyncDependentDiffs rewrites a request's dependent change log from its
// stored snapshots and returns the number of rows written. It backfills
// requests saved before the log existed and is not a lifecycle transition,
// so it is not audited.
func (s *Service) SyncDependentDiffs(ctx context.Context, requestID id.ChangeRequestID) (n int, err error) {
	ctx, finish := s.begin(ctx, "sync_dependent_diffs", requestAttr(requestID))
	defer finish(&err)

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st Stores) error {
		cr, err := st.Requests.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			return translate(err, "change request")
		}
		changes := diff.Dependents(cr.Before.Normalized().Dependents, cr.After.Normalized().Dependents)
		entries := models.NewDependentLogEntries(cr.ID, changes, now)
		if err := st.Logs.ReplaceLogs(ctx, cr.ID, entries); err != nil {
			return translate(err, "dependent change log")
		}
		n = len(entries)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "dependent change log synced",
		"change_request_id", requestID,
		"entries", n,
	)
	return n, nil
}
