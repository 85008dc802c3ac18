package apply

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	bmodels "mppchs/internal/beneficiary/models"
	bstore "mppchs/internal/beneficiary/store"
	"mppchs/internal/changerequest/models"
	"mppchs/pkg/platform/crypto"
)

type failingEncrypter struct{}

func (failingEncrypter) Encrypt(string) (string, error) { return "", errors.New("kms unavailable") }

type ApplierSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	live    *bstore.InMemoryStore
	cipher  *crypto.Cipher
	applier *Applier
	ben     *bmodels.Beneficiary
	son     *bmodels.Dependent
}

func TestApplierSuite(t *testing.T) {
	suite.Run(t, new(ApplierSuite))
}

func (s *ApplierSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.live = bstore.NewInMemory()
	cipher, err := crypto.New(make([]byte, crypto.KeySize))
	s.Require().NoError(err)
	s.cipher = cipher
	s.applier = New(cipher)

	s.ben = &bmodels.Beneficiary{FullName: "Sunita Devi", City: "Bhopal", CreatedAt: s.now, UpdatedAt: s.now}
	s.ben.Aadhaar = s.sealed("123456789012")
	s.Require().NoError(s.live.Create(s.ctx, s.ben))
	s.son = &bmodels.Dependent{BeneficiaryID: s.ben.ID, FullName: "Ravi", Relationship: "son", City: "Bhopal", IsAlive: true, IsActive: true}
	s.Require().NoError(s.live.InsertDependent(s.ctx, s.son))
}

func (s *ApplierSuite) sealed(v string) bmodels.Sealed {
	ct, err := s.cipher.Encrypt(v)
	s.Require().NoError(err)
	return bmodels.Sealed{Ciphertext: ct, Masked: crypto.Mask(v, 4)}
}

func (s *ApplierSuite) before() models.BeneficiarySnapshot {
	return models.BeneficiarySnapshot{
		FullName:      "Sunita Devi",
		City:          "Bhopal",
		AadhaarNumber: "123456789012",
		Dependents: []models.DependentSnapshot{
			{Identity: models.Persisted(s.son.ID), FullName: "Ravi", Relationship: "son", City: "Bhopal", IsAlive: true},
		},
	}
}

func (s *ApplierSuite) request(after models.BeneficiarySnapshot) *models.ChangeRequest {
	return &models.ChangeRequest{ID: 1, BeneficiaryID: s.ben.ID, Status: models.StatusPending, Before: s.before(), After: after}
}

func (s *ApplierSuite) TestAppliesFieldsAndAddsDependent() {
	after := s.before()
	after.City = "Indore"
	after.Dependents = append(after.Dependents, models.DependentSnapshot{
		Identity: models.Ephemeral("t1"), FullName: "Meera", Relationship: "daughter", IsAlive: true, AadhaarNumber: "222233334444",
	})

	res, err := s.applier.Apply(s.ctx, s.live, s.request(after), 9, s.now)
	s.Require().NoError(err)
	s.Equal(1, res.DependentsAdded)

	b, err := s.live.FindByID(s.ctx, s.ben.ID)
	s.Require().NoError(err)
	s.Equal("Indore", b.City)
	s.Equal(s.now, b.UpdatedAt)

	deps, err := s.live.ListDependents(s.ctx, s.ben.ID, true)
	s.Require().NoError(err)
	s.Require().Len(deps, 2)
	added := deps[1]
	s.Equal("Meera", added.FullName)
	s.True(added.IsActive)
	s.Equal("XXXXXXXX4444", added.Aadhaar.Masked)
	plain, err := s.cipher.Decrypt(added.Aadhaar.Ciphertext)
	s.Require().NoError(err)
	s.Equal("222233334444", plain)
}

func (s *ApplierSuite) TestReencryptsSensitiveFields() {
	after := s.before()
	after.AadhaarNumber = "9999 8888 7777"
	after.PANNumber = "abcde1234f"

	_, err := s.applier.Apply(s.ctx, s.live, s.request(after), 9, s.now)
	s.Require().NoError(err)

	b, err := s.live.FindByID(s.ctx, s.ben.ID)
	s.Require().NoError(err)
	s.Equal("XXXXXXXX7777", b.Aadhaar.Masked)
	s.Equal("XXXXXXX34F", b.PAN.Masked)
	plain, err := s.cipher.Decrypt(b.PAN.Ciphertext)
	s.Require().NoError(err)
	s.Equal("ABCDE1234F", plain)
}

func (s *ApplierSuite) TestEmptySensitiveValueKeepsStored() {
	after := s.before()
	after.AadhaarNumber = ""
	_, err := s.applier.Apply(s.ctx, s.live, s.request(after), 9, s.now)
	s.Require().NoError(err)

	b, err := s.live.FindByID(s.ctx, s.ben.ID)
	s.Require().NoError(err)
	s.Equal(s.ben.Aadhaar, b.Aadhaar)
}

func (s *ApplierSuite) TestRemoveSoftDeletes() {
	after := s.before()
	after.Dependents = nil

	res, err := s.applier.Apply(s.ctx, s.live, s.request(after), 9, s.now)
	s.Require().NoError(err)
	s.Equal(1, res.DependentsRemoved)

	d, err := s.live.FindDependent(s.ctx, s.son.ID)
	s.Require().NoError(err, "removed dependents are kept")
	s.False(d.IsActive)
	s.Require().NotNil(d.DeletedAt)
	s.EqualValues(9, d.DeletedBy)
}

func (s *ApplierSuite) TestUpdateRestoresSoftDeleted() {
	s.son.IsActive = false
	deletedAt := s.now.Add(-time.Hour)
	s.son.DeletedAt = &deletedAt
	s.Require().NoError(s.live.UpdateDependent(s.ctx, s.son))

	after := s.before()
	after.Dependents[0].City = "Indore"
	res, err := s.applier.Apply(s.ctx, s.live, s.request(after), 9, s.now)
	s.Require().NoError(err)
	s.Equal(1, res.DependentsUpdated)

	d, err := s.live.FindDependent(s.ctx, s.son.ID)
	s.Require().NoError(err)
	s.True(d.IsActive)
	s.Equal("Indore", d.City)
	s.Nil(d.DeletedAt)
	s.Require().NotNil(d.RestoredAt)
	s.EqualValues(9, d.RestoredBy)
}

func (s *ApplierSuite) TestForeignDependentFails() {
	other := &bmodels.Beneficiary{FullName: "Other"}
	s.Require().NoError(s.live.Create(s.ctx, other))
	foreign := &bmodels.Dependent{BeneficiaryID: other.ID, FullName: "X", Relationship: "son", IsActive: true}
	s.Require().NoError(s.live.InsertDependent(s.ctx, foreign))

	after := s.before()
	after.Dependents = append(after.Dependents, models.DependentSnapshot{
		Identity: models.Persisted(foreign.ID), FullName: "Hijack", Relationship: "son", IsAlive: true,
	})
	_, err := s.applier.Apply(s.ctx, s.live, s.request(after), 9, s.now)
	s.ErrorIs(err, ErrForeignDependent)
}

func (s *ApplierSuite) TestEncryptionFailureAborts() {
	after := s.before()
	after.AadhaarNumber = "999988887777"
	_, err := New(failingEncrypter{}).Apply(s.ctx, s.live, s.request(after), 9, s.now)
	s.Error(err)
}
