// Package snapshot builds the canonical plaintext view of a beneficiary
// that change requests are diffed against.
package snapshot

import (
	"context"
	"fmt"

	bmodels "mppchs/internal/beneficiary/models"
	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
)

// Reader is the subset of the beneficiary store the provider reads.
type Reader interface {
	FindByID(ctx context.Context, beneficiaryID id.BeneficiaryID) (*bmodels.Beneficiary, error)
	ListDependents(ctx context.Context, beneficiaryID id.BeneficiaryID, activeOnly bool) ([]*bmodels.Dependent, error)
}

type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Provider decrypts live rows into snapshots.
type Provider struct {
	reader    Reader
	decrypter Decrypter
}

func NewProvider(reader Reader, decrypter Decrypter) *Provider {
	return &Provider{reader: reader, decrypter: decrypter}
}

// FindByBeneficiaryID returns the current beneficiary with its active
// dependents, normalized. Store errors are returned wrapped so callers can
// match sentinel.ErrNotFound.
func (p *Provider) FindByBeneficiaryID(ctx context.Context, beneficiaryID id.BeneficiaryID) (models.BeneficiarySnapshot, error) {
	b, err := p.reader.FindByID(ctx, beneficiaryID)
	if err != nil {
		return models.BeneficiarySnapshot{}, fmt.Errorf("loading beneficiary %s: %w", beneficiaryID, err)
	}
	deps, err := p.reader.ListDependents(ctx, beneficiaryID, true)
	if err != nil {
		return models.BeneficiarySnapshot{}, fmt.Errorf("loading dependents of %s: %w", beneficiaryID, err)
	}

	snap := models.BeneficiarySnapshot{
		FullName:     b.FullName,
		Gender:       b.Gender,
		DateOfBirth:  b.DateOfBirth,
		MobileNumber: b.MobileNumber,
		Email:        b.Email,
		AddressLine1: b.AddressLine1,
		AddressLine2: b.AddressLine2,
		City:         b.City,
		District:     b.District,
		State:        b.State,
		PinCode:      b.PinCode,
		BankName:     b.BankName,
		BankBranch:   b.BankBranch,
		IFSCCode:     b.IFSCCode,
	}
	for _, f := range []struct {
		dst    *string
		sealed bmodels.Sealed
		name   string
	}{
		{&snap.BankAccountNumber, b.BankAccount, "bank_account_number"},
		{&snap.AadhaarNumber, b.Aadhaar, "aadhaar_number"},
		{&snap.PANNumber, b.PAN, "pan_number"},
	} {
		if *f.dst, err = p.open(f.sealed); err != nil {
			return models.BeneficiarySnapshot{}, fmt.Errorf("decrypting %s: %w", f.name, err)
		}
	}

	snap.Dependents = make([]models.DependentSnapshot, 0, len(deps))
	for _, d := range deps {
		aadhaar, err := p.open(d.Aadhaar)
		if err != nil {
			return models.BeneficiarySnapshot{}, fmt.Errorf("decrypting dependent %s aadhaar_number: %w", d.ID, err)
		}
		snap.Dependents = append(snap.Dependents, models.DependentSnapshot{
			Identity:      models.Persisted(d.ID),
			FullName:      d.FullName,
			Relationship:  d.Relationship,
			Gender:        d.Gender,
			DateOfBirth:   d.DateOfBirth,
			City:          d.City,
			IsAlive:       d.IsAlive,
			HealthStatus:  d.HealthStatus,
			AadhaarNumber: aadhaar,
		})
	}
	return snap.Normalized(), nil
}

func (p *Provider) open(s bmodels.Sealed) (string, error) {
	if s.IsZero() {
		return "", nil
	}
	return p.decrypter.Decrypt(s.Ciphertext)
}
