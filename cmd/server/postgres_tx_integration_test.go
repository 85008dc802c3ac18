//go:build integration

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	bmodels "mppchs/internal/beneficiary/models"
	"mppchs/internal/beneficiary/snapshot"
	bstore "mppchs/internal/beneficiary/store"
	"mppchs/internal/changerequest/apply"
	"mppchs/internal/changerequest/conflict"
	"mppchs/internal/changerequest/models"
	"mppchs/internal/changerequest/service"
	crstore "mppchs/internal/changerequest/store"
	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
	"mppchs/pkg/platform/audit"
	auditpostgres "mppchs/pkg/platform/audit/store/postgres"
	"mppchs/pkg/platform/crypto"
	"mppchs/pkg/requestcontext"
	"mppchs/pkg/testutil/containers"
)

type brokenEncrypter struct{}

func (brokenEncrypter) Encrypt(string) (string, error) { return "", errors.New("kms unavailable") }

// PostgresFlowSuite runs the change request service against Postgres
// through the SQL transaction runner.
type PostgresFlowSuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	ctx      context.Context
	cipher   *crypto.Cipher
	live     *bstore.PostgresStore
	requests *crstore.PostgresStore
	audits   *auditpostgres.Store
	ben      *bmodels.Beneficiary
}

func TestPostgresFlowSuite(t *testing.T) {
	suite.Run(t, new(PostgresFlowSuite))
}

func (s *PostgresFlowSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	cipher, err := crypto.New(make([]byte, crypto.KeySize))
	s.Require().NoError(err)
	s.cipher = cipher
	s.live = bstore.NewPostgres(s.pg.DB)
	s.requests = crstore.NewPostgres(s.pg.DB)
	s.audits = auditpostgres.New(s.pg.DB)
}

func (s *PostgresFlowSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	s.Require().NoError(s.pg.TruncateTables(s.ctx,
		"change_request_audit", "dependent_change_logs", "change_items", "change_requests", "dependents", "beneficiaries"))

	ct, err := s.cipher.Encrypt("111122223333")
	s.Require().NoError(err)
	s.ben = &bmodels.Beneficiary{
		FullName: "Sunita Devi", City: "Bhopal", State: "Madhya Pradesh",
		Aadhaar:   bmodels.Sealed{Ciphertext: ct, Masked: crypto.Mask("111122223333", 4)},
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.live.Create(s.ctx, s.ben))
}

func (s *PostgresFlowSuite) service(applier service.Applier) *service.Service {
	stores := storesOf(s.live, s.requests, s.audits)
	return service.New(stores,
		newPostgresTx(s.pg.DB, stores, 5*time.Second),
		snapshot.NewProvider(s.live, s.cipher),
		conflict.New(s.live, s.requests, s.cipher),
		applier,
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *PostgresFlowSuite) pendingRequest(svc *service.Service) *models.ChangeRequest {
	after, err := snapshot.NewProvider(s.live, s.cipher).FindByBeneficiaryID(s.ctx, s.ben.ID)
	s.Require().NoError(err)
	after.City = "Indore"
	after.Dependents = append(after.Dependents, models.DependentSnapshot{
		Identity:      models.Ephemeral("t1"),
		FullName:      "Meera",
		Relationship:  "daughter",
		IsAlive:       true,
		AadhaarNumber: "222233334444",
	})

	cr, err := svc.SaveDraft(s.ctx, s.ben.ID, 7, service.DraftRequest{After: after, UndertakingAccepted: true})
	s.Require().NoError(err)
	cr, err = svc.SubmitDraft(s.ctx, s.ben.ID, cr.ID, 7)
	s.Require().NoError(err)
	return cr
}

func (s *PostgresFlowSuite) TestApproveAppliesInOneTransaction() {
	svc := s.service(apply.New(s.cipher))
	cr := s.pendingRequest(svc)

	approved, err := svc.Approve(s.ctx, cr.ID, 900, "verified")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, approved.Status)

	b, err := s.live.FindByID(s.ctx, s.ben.ID)
	s.Require().NoError(err)
	s.Equal("Indore", b.City)
	s.Equal(1, b.Summary.Approved)

	deps, err := s.live.ListDependents(s.ctx, s.ben.ID, true)
	s.Require().NoError(err)
	s.Require().Len(deps, 1)
	s.Equal("Meera", deps[0].FullName)

	entries, err := s.audits.ListByChangeRequest(s.ctx, cr.ID)
	s.Require().NoError(err)
	var actions []audit.Action
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	s.Equal([]audit.Action{audit.ActionDraftCreated, audit.ActionSubmitted, audit.ActionApproved}, actions)
}

func (s *PostgresFlowSuite) TestApplyFailureRollsBack() {
	cr := s.pendingRequest(s.service(apply.New(s.cipher)))

	_, err := s.service(apply.New(brokenEncrypter{})).Approve(s.ctx, cr.ID, 900, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeApplyFailed))

	stored, err := s.requests.FindByID(s.ctx, cr.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status)

	b, err := s.live.FindByID(s.ctx, s.ben.ID)
	s.Require().NoError(err)
	s.Equal("Bhopal", b.City)

	deps, err := s.live.ListDependents(s.ctx, s.ben.ID, false)
	s.Require().NoError(err)
	s.Empty(deps)
}

func (s *PostgresFlowSuite) TestConcurrentApproveAppliesOnce() {
	svc := s.service(apply.New(s.cipher))
	cr := s.pendingRequest(svc)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Approve(s.ctx, cr.ID, id.UserID(900+i), ""); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), succeeded.Load())

	deps, err := s.live.ListDependents(s.ctx, s.ben.ID, false)
	s.Require().NoError(err)
	s.Len(deps, 1)
}

func (s *PostgresFlowSuite) TestCancelledContextTimesOut() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	tx := newPostgresTx(s.pg.DB, storesOf(s.live, s.requests, s.audits), time.Second)
	err := tx.RunInTx(ctx, func(context.Context, service.Stores) error { return nil })
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}
