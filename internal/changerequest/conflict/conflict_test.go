package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	bmodels "mppchs/internal/beneficiary/models"
	bstore "mppchs/internal/beneficiary/store"
	"mppchs/internal/changerequest/models"
	"mppchs/internal/platform/metrics"
	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
	"mppchs/pkg/platform/crypto"
)

type openRequestsFunc func(ctx context.Context, statuses []models.Status, exclude id.BeneficiaryID) ([]*models.ChangeRequest, error)

func (f openRequestsFunc) ListOpen(ctx context.Context, statuses []models.Status, exclude id.BeneficiaryID) ([]*models.ChangeRequest, error) {
	return f(ctx, statuses, exclude)
}

type DetectorSuite struct {
	suite.Suite
	ctx      context.Context
	live     *bstore.InMemoryStore
	cipher   *crypto.Cipher
	open     []*models.ChangeRequest
	metrics  *metrics.Metrics
	detector *Detector
	self     *bmodels.Beneficiary
}

func TestDetectorSuite(t *testing.T) {
	suite.Run(t, new(DetectorSuite))
}

func (s *DetectorSuite) SetupTest() {
	s.ctx = context.Background()
	s.live = bstore.NewInMemory()
	cipher, err := crypto.New(make([]byte, crypto.KeySize))
	s.Require().NoError(err)
	s.cipher = cipher
	s.open = nil
	s.metrics = metrics.New(prometheus.NewRegistry())
	open := openRequestsFunc(func(_ context.Context, _ []models.Status, exclude id.BeneficiaryID) ([]*models.ChangeRequest, error) {
		var out []*models.ChangeRequest
		for _, r := range s.open {
			if r.BeneficiaryID != exclude {
				out = append(out, r)
			}
		}
		return out, nil
	})
	s.detector = New(s.live, open, s.cipher, WithMetrics(s.metrics))
	s.self = s.seedBeneficiary("111122223333", "")
}

func (s *DetectorSuite) seal(v string, visible int) bmodels.Sealed {
	ct, err := s.cipher.Encrypt(v)
	s.Require().NoError(err)
	return bmodels.Sealed{Ciphertext: ct, Masked: crypto.Mask(v, visible)}
}

func (s *DetectorSuite) seedBeneficiary(aadhaar, pan string) *bmodels.Beneficiary {
	b := &bmodels.Beneficiary{FullName: "Seeded", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if aadhaar != "" {
		b.Aadhaar = s.seal(aadhaar, 4)
	}
	if pan != "" {
		b.PAN = s.seal(pan, 3)
	}
	s.Require().NoError(s.live.Create(s.ctx, b))
	return b
}

func (s *DetectorSuite) snapshot() models.BeneficiarySnapshot {
	return models.BeneficiarySnapshot{FullName: "Self", AadhaarNumber: "111122223333"}
}

func (s *DetectorSuite) requireConflict(err error, field string, source Source) {
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	ce, ok := AsError(err)
	s.Require().True(ok)
	s.Equal(field, ce.Field)
	s.Equal(source, ce.Source)
}

func (s *DetectorSuite) TestLiveCollisionIsAlreadyRegistered() {
	s.seedBeneficiary("999988887777", "")
	after := s.snapshot()
	after.AadhaarNumber = "9999 8888 7777"

	err := s.detector.Check(s.ctx, s.self.ID, s.snapshot(), after)
	s.requireConflict(err, "aadhaar_number", SourceLive)
	s.Contains(dErrors.Message(err), "already registered")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Conflicts.WithLabelValues("aadhaar_number", "live")))
}

func (s *DetectorSuite) TestSuffixOnlyMatchIsAccepted() {
	s.seedBeneficiary("000000007777", "")
	after := s.snapshot()
	after.AadhaarNumber = "999988887777"

	s.NoError(s.detector.Check(s.ctx, s.self.ID, s.snapshot(), after))
}

func (s *DetectorSuite) TestPendingRequestCollision() {
	s.open = []*models.ChangeRequest{{
		BeneficiaryID: 500,
		Status:        models.StatusPending,
		After: models.BeneficiarySnapshot{Dependents: []models.DependentSnapshot{
			{FullName: "Other", Relationship: "son", AadhaarNumber: "555566667777", IsAlive: true},
		}},
	}}
	after := s.snapshot()
	after.AadhaarNumber = "555566667777"

	err := s.detector.Check(s.ctx, s.self.ID, s.snapshot(), after)
	s.requireConflict(err, "aadhaar_number", SourcePending)
	s.Contains(dErrors.Message(err), "pending change request")
}

func (s *DetectorSuite) TestLiveCheckedBeforePending() {
	s.seedBeneficiary("555566667777", "")
	s.open = []*models.ChangeRequest{{BeneficiaryID: 500, After: models.BeneficiarySnapshot{AadhaarNumber: "555566667777"}}}
	after := s.snapshot()
	after.AadhaarNumber = "555566667777"

	s.requireConflict(s.detector.Check(s.ctx, s.self.ID, s.snapshot(), after), "aadhaar_number", SourceLive)
}

func (s *DetectorSuite) TestTaxIDOnlyAgainstBeneficiaries() {
	s.seedBeneficiary("", "ABCDE1234F")
	after := s.snapshot()
	after.PANNumber = "abcde1234f"

	s.requireConflict(s.detector.Check(s.ctx, s.self.ID, s.snapshot(), after), "pan_number", SourceLive)
}

func (s *DetectorSuite) TestDependentCollidesWithLiveDependent() {
	other := s.seedBeneficiary("", "")
	s.Require().NoError(s.live.InsertDependent(s.ctx, &bmodels.Dependent{
		BeneficiaryID: other.ID, FullName: "Kid", IsActive: true, IsAlive: true,
		Aadhaar: s.seal("444455556666", 4),
	}))
	after := s.snapshot()
	after.Dependents = []models.DependentSnapshot{
		{Identity: models.Ephemeral("t1"), FullName: "New", Relationship: "son", AadhaarNumber: "444455556666", IsAlive: true},
	}

	s.requireConflict(s.detector.Check(s.ctx, s.self.ID, s.snapshot(), after), "dependents[0].aadhaar_number", SourceLive)
}

func (s *DetectorSuite) TestOwnRowsAreNotCollisions() {
	s.Require().NoError(s.live.InsertDependent(s.ctx, &bmodels.Dependent{
		BeneficiaryID: s.self.ID, FullName: "Kid", IsActive: true, IsAlive: true,
		Aadhaar: s.seal("444455556666", 4),
	}))
	after := s.snapshot()
	after.Dependents = []models.DependentSnapshot{
		{Identity: models.Ephemeral("t1"), FullName: "Kid again", Relationship: "son", AadhaarNumber: "444455556666", IsAlive: true},
	}

	s.NoError(s.detector.Check(s.ctx, s.self.ID, s.snapshot(), after))
}

func (s *DetectorSuite) TestUnchangedValuesAreTrusted() {
	s.seedBeneficiary("111122223333", "")
	s.NoError(s.detector.Check(s.ctx, s.self.ID, s.snapshot(), s.snapshot()))
}

func (s *DetectorSuite) TestDuplicateWithinSubmission() {
	after := s.snapshot()
	after.Dependents = []models.DependentSnapshot{
		{Identity: models.Ephemeral("t1"), FullName: "A", Relationship: "son", AadhaarNumber: "777788889999", IsAlive: true},
		{Identity: models.Ephemeral("t2"), FullName: "B", Relationship: "son", AadhaarNumber: "777788889999", IsAlive: true},
	}
	s.requireConflict(s.detector.Check(s.ctx, s.self.ID, s.snapshot(), after), "dependents[1].aadhaar_number", SourceDuplicate)

	after.Dependents[1].Removed = true
	s.NoError(s.detector.Check(s.ctx, s.self.ID, s.snapshot(), after))
}

func (s *DetectorSuite) TestDuplicateOnRecordDoesNotBlockUnrelatedEdits() {
	legacy := s.snapshot()
	legacy.City = "Bhopal"
	legacy.Dependents = []models.DependentSnapshot{
		{Identity: models.Persisted(3), FullName: "Kid", Relationship: "son", AadhaarNumber: "111122223333", IsAlive: true},
	}

	s.Run("city edit passes", func() {
		after := legacy
		after.City = "Indore"
		s.NoError(s.detector.Check(s.ctx, s.self.ID, legacy, after))
	})

	s.Run("new row reusing the value is still caught", func() {
		after := legacy
		after.Dependents = append(append([]models.DependentSnapshot{}, legacy.Dependents...), models.DependentSnapshot{
			Identity: models.Ephemeral("t1"), FullName: "Twin", Relationship: "son", AadhaarNumber: "111122223333", IsAlive: true,
		})
		s.requireConflict(s.detector.Check(s.ctx, s.self.ID, legacy, after), "dependents[1].aadhaar_number", SourceDuplicate)
	})

	s.Run("own id changed onto a dependent's is still caught", func() {
		before := legacy
		before.AadhaarNumber = "555566667777"
		s.requireConflict(s.detector.Check(s.ctx, s.self.ID, before, legacy), "dependents[0].aadhaar_number", SourceDuplicate)
	})
}

func (s *DetectorSuite) TestStoreFailurePropagates() {
	failing := openRequestsFunc(func(context.Context, []models.Status, id.BeneficiaryID) ([]*models.ChangeRequest, error) {
		return nil, errors.New("connection refused")
	})
	d := New(s.live, failing, s.cipher)
	after := s.snapshot()
	after.AadhaarNumber = "123412341234"

	err := d.Check(s.ctx, s.self.ID, s.snapshot(), after)
	s.Require().Error(err)
	s.False(dErrors.HasCode(err, dErrors.CodeConflict))
}
