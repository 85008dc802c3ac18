//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	bmodels "mppchs/internal/beneficiary/models"
	bstore "mppchs/internal/beneficiary/store"
	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
	"mppchs/pkg/platform/sentinel"
	txcontext "mppchs/pkg/platform/tx"
	"mppchs/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	ctx   context.Context
	now   time.Time
	store *PostgresStore
	ben   []id.BeneficiaryID
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.pg.TruncateTables(s.ctx,
		"dependent_change_logs", "change_items", "change_requests", "dependents", "beneficiaries"))

	live := bstore.NewPostgres(s.pg.DB)
	s.ben = nil
	for _, name := range []string{"Sunita Devi", "Ramesh Kumar", "Asha Bai"} {
		b := &bmodels.Beneficiary{FullName: name, CreatedAt: s.now, UpdatedAt: s.now}
		s.Require().NoError(live.Create(s.ctx, b))
		s.ben = append(s.ben, b.ID)
	}
}

func (s *PostgresStoreSuite) draft(beneficiaryID id.BeneficiaryID, submissionNo int) *models.ChangeRequest {
	cr := models.NewDraft(beneficiaryID, 1, submissionNo, models.DraftInput{
		After:   models.BeneficiarySnapshot{City: "Indore"},
		Summary: models.Summary{BeneficiaryFields: 1},
	}, s.now)
	s.Require().NoError(s.store.Create(s.ctx, cr))
	return cr
}

func (s *PostgresStoreSuite) TestOneOpenRequestPerBeneficiary() {
	first := s.draft(s.ben[0], 1)
	err := s.store.Create(s.ctx, models.NewDraft(s.ben[0], 1, 2, models.DraftInput{}, s.now))
	s.ErrorIs(err, sentinel.ErrConflict)

	first.Status = models.StatusRejected
	s.Require().NoError(s.store.Update(s.ctx, first))
	s.draft(s.ben[0], 2)

	active, err := s.store.FindActive(s.ctx, s.ben[0])
	s.Require().NoError(err)
	s.Equal(2, active.SubmissionNo)
	s.Equal("Indore", active.After.City)

	highest, err := s.store.MaxSubmissionNo(s.ctx, s.ben[0])
	s.Require().NoError(err)
	s.Equal(2, highest)

	list, err := s.store.ListByBeneficiary(s.ctx, s.ben[0])
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(2, list[0].SubmissionNo)
}

func (s *PostgresStoreSuite) TestFindActiveNotFound() {
	_, err := s.store.FindActive(s.ctx, s.ben[1])
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByID(s.ctx, 999)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListOpenExcludesBeneficiaryAndDrafts() {
	a := s.draft(s.ben[0], 1)
	a.Status = models.StatusPending
	s.Require().NoError(s.store.Update(s.ctx, a))
	s.draft(s.ben[1], 1)
	c := s.draft(s.ben[2], 1)
	c.Status = models.StatusNeedsInfo
	s.Require().NoError(s.store.Update(s.ctx, c))

	open, err := s.store.ListOpen(s.ctx, []models.Status{models.StatusPending, models.StatusNeedsInfo}, s.ben[0])
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal(c.ID, open[0].ID)
}

func (s *PostgresStoreSuite) TestCounters() {
	a := s.draft(s.ben[0], 1)
	now := s.now
	a.Status, a.RequestedAt = models.StatusApproved, &now
	s.Require().NoError(s.store.Update(s.ctx, a))
	b := s.draft(s.ben[0], 2)
	b.Status, b.RequestedAt = models.StatusPending, &now
	s.Require().NoError(s.store.Update(s.ctx, b))

	counters, err := s.store.Counters(s.ctx, s.ben[0])
	s.Require().NoError(err)
	s.Equal(Counters{Submitted: 2, Approved: 1}, counters)
}

func (s *PostgresStoreSuite) TestItemsAndLogs() {
	cr := s.draft(s.ben[0], 1)
	items, err := s.store.ReplaceItems(s.ctx, cr.ID, []models.ChangeItem{
		{ChangeRequestID: cr.ID, EntityType: models.EntityBeneficiary, FieldKey: "city", OldValue: "Bhopal", NewValue: "Indore", Status: models.ItemPending, CreatedAt: s.now},
	})
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.False(items[0].ID.IsNil())

	item, err := s.store.FindItem(s.ctx, cr.ID, items[0].ID)
	s.Require().NoError(err)
	item.ApplyReview(models.ItemApproved, 900, "ok", s.now)
	s.Require().NoError(s.store.UpdateItem(s.ctx, item))

	stored, err := s.store.ListItems(s.ctx, cr.ID)
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.Equal(models.ItemApproved, stored[0].Status)
	s.Equal(id.UserID(900), stored[0].ReviewerID)

	_, err = s.store.FindItem(s.ctx, cr.ID, 9999)
	s.ErrorIs(err, sentinel.ErrNotFound)

	changes := []models.DependentChange{models.DependentAdd{After: models.DependentSnapshot{
		Identity: models.Ephemeral("t1"), FullName: "Meera", Relationship: "daughter", IsAlive: true,
	}}}
	s.Require().NoError(s.store.ReplaceLogs(s.ctx, cr.ID, models.NewDependentLogEntries(cr.ID, changes, s.now)))
	logs, err := s.store.ListLogs(s.ctx, cr.ID)
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(models.ActionAdd, logs[0].Action)
}

func (s *PostgresStoreSuite) TestWritesJoinCallerTransaction() {
	tx, err := s.pg.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	ctx := txcontext.WithTx(s.ctx, tx)

	cr := models.NewDraft(s.ben[0], 1, 1, models.DraftInput{}, s.now)
	s.Require().NoError(s.store.Create(ctx, cr))
	s.Require().NoError(tx.Rollback())

	_, err = s.store.FindByID(s.ctx, cr.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
