// Package apply merges an approved change request into the live beneficiary
// and dependent records. Callers run Apply inside a transaction; any error
// means the transaction must be rolled back.
package apply

import (
	"context"
	"errors"
	"fmt"
	"time"

	bmodels "mppchs/internal/beneficiary/models"
	"mppchs/internal/changerequest/diff"
	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
	"mppchs/pkg/platform/crypto"
	"mppchs/pkg/platform/sentinel"
)

// LiveStore is the subset of the beneficiary store the applier writes to.
type LiveStore interface {
	FindByID(ctx context.Context, beneficiaryID id.BeneficiaryID) (*bmodels.Beneficiary, error)
	Update(ctx context.Context, b *bmodels.Beneficiary) error
	FindDependent(ctx context.Context, dependentID id.DependentID) (*bmodels.Dependent, error)
	InsertDependent(ctx context.Context, d *bmodels.Dependent) error
	UpdateDependent(ctx context.Context, d *bmodels.Dependent) error
}

type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// ErrForeignDependent is returned when a payload references a dependent
// owned by another beneficiary.
var ErrForeignDependent = errors.New("dependent belongs to another beneficiary")

// Result counts what an application wrote.
type Result struct {
	FieldsApplied     int
	DependentsAdded   int
	DependentsUpdated int
	DependentsRemoved int
}

type Applier struct {
	enc Encrypter
}

func New(enc Encrypter) *Applier {
	return &Applier{enc: enc}
}

// Apply writes cr's after payload onto live storage through store, which
// must be bound to the caller's transaction. Ciphertext is always derived
// here from plaintext and never taken from the payload.
func (a *Applier) Apply(ctx context.Context, store LiveStore, cr *models.ChangeRequest, actor id.UserID, now time.Time) (Result, error) {
	var res Result
	after := cr.After.Normalized()

	b, err := store.FindByID(ctx, cr.BeneficiaryID)
	if err != nil {
		return res, fmt.Errorf("loading beneficiary %s: %w", cr.BeneficiaryID, err)
	}
	n, err := a.projectBeneficiary(b, after)
	if err != nil {
		return res, err
	}
	res.FieldsApplied = n
	b.UpdatedAt = now
	if err := store.Update(ctx, b); err != nil {
		return res, fmt.Errorf("updating beneficiary %s: %w", b.ID, err)
	}

	for _, change := range diff.Compute(cr.Before, after).Dependents {
		switch c := change.(type) {
		case models.DependentRemove:
			if err := a.remove(ctx, store, cr.BeneficiaryID, c, actor, now); err != nil {
				return res, err
			}
			res.DependentsRemoved++
		case models.DependentAdd:
			if err := a.add(ctx, store, cr.BeneficiaryID, c, actor, now); err != nil {
				return res, err
			}
			res.DependentsAdded++
		case models.DependentUpdate:
			if err := a.update(ctx, store, cr.BeneficiaryID, c.Before.Identity, c.After, actor, now); err != nil {
				return res, err
			}
			res.DependentsUpdated++
		}
	}
	return res, nil
}

// projectBeneficiary copies whitelisted fields onto the live row. Sensitive
// fields are resealed only when the payload carries a value.
func (a *Applier) projectBeneficiary(b *bmodels.Beneficiary, after models.BeneficiarySnapshot) (int, error) {
	plain := map[string]*string{
		"full_name":     &b.FullName,
		"gender":        &b.Gender,
		"date_of_birth": &b.DateOfBirth,
		"mobile_number": &b.MobileNumber,
		"email":         &b.Email,
		"address_line1": &b.AddressLine1,
		"address_line2": &b.AddressLine2,
		"city":          &b.City,
		"district":      &b.District,
		"state":         &b.State,
		"pin_code":      &b.PinCode,
		"bank_name":     &b.BankName,
		"bank_branch":   &b.BankBranch,
		"ifsc_code":     &b.IFSCCode,
	}
	sealed := map[string]*bmodels.Sealed{
		"bank_account_number": &b.BankAccount,
		"aadhaar_number":      &b.Aadhaar,
		"pan_number":          &b.PAN,
	}

	applied := 0
	for _, f := range models.BeneficiaryFields {
		v := f.Get(&after)
		if f.Sensitive == nil {
			dst, ok := plain[f.Key]
			if !ok {
				return 0, fmt.Errorf("no live column for %s", f.Key)
			}
			*dst = v
			applied++
			continue
		}
		if v == "" {
			continue
		}
		s, err := a.seal(v, f.Sensitive.Visible)
		if err != nil {
			return 0, fmt.Errorf("sealing %s: %w", f.Key, err)
		}
		*sealed[f.Key] = s
		applied++
	}
	return applied, nil
}

func (a *Applier) seal(plaintext string, visible int) (bmodels.Sealed, error) {
	ct, err := a.enc.Encrypt(plaintext)
	if err != nil {
		return bmodels.Sealed{}, err
	}
	return bmodels.Sealed{Ciphertext: ct, Masked: crypto.Mask(plaintext, visible)}, nil
}

func (a *Applier) remove(ctx context.Context, store LiveStore, owner id.BeneficiaryID, c models.DependentRemove, actor id.UserID, now time.Time) error {
	depID, ok := c.Before.Identity.DependentID()
	if !ok {
		return fmt.Errorf("remove without persisted dependent id")
	}
	d, err := a.owned(ctx, store, owner, depID)
	if err != nil {
		return err
	}
	if !d.IsActive {
		return nil
	}
	if err := d.SoftDelete(actor, now); err != nil {
		return err
	}
	if err := store.UpdateDependent(ctx, d); err != nil {
		return fmt.Errorf("removing dependent %s: %w", depID, err)
	}
	return nil
}

// add inserts a new dependent. An add carrying the persisted id of this
// beneficiary's soft-deleted dependent restores that row instead.
func (a *Applier) add(ctx context.Context, store LiveStore, owner id.BeneficiaryID, c models.DependentAdd, actor id.UserID, now time.Time) error {
	if depID, ok := c.After.Identity.DependentID(); ok {
		existing, err := store.FindDependent(ctx, depID)
		switch {
		case err == nil && existing.BeneficiaryID == owner:
			return a.update(ctx, store, owner, c.After.Identity, c.After, actor, now)
		case err == nil:
			return fmt.Errorf("adding dependent %s: %w", depID, ErrForeignDependent)
		case !errors.Is(err, sentinel.ErrNotFound):
			return fmt.Errorf("loading dependent %s: %w", depID, err)
		}
	}

	d := &bmodels.Dependent{
		BeneficiaryID: owner,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.mergeDependent(d, c.After); err != nil {
		return err
	}
	if err := store.InsertDependent(ctx, d); err != nil {
		return fmt.Errorf("inserting dependent: %w", err)
	}
	return nil
}

func (a *Applier) update(ctx context.Context, store LiveStore, owner id.BeneficiaryID, identity models.Identity, after models.DependentSnapshot, actor id.UserID, now time.Time) error {
	depID, ok := identity.DependentID()
	if !ok {
		return fmt.Errorf("update without persisted dependent id")
	}
	d, err := a.owned(ctx, store, owner, depID)
	if err != nil {
		return err
	}
	if err := a.mergeDependent(d, after); err != nil {
		return err
	}
	d.Restore(actor, now)
	d.UpdatedAt = now
	if err := store.UpdateDependent(ctx, d); err != nil {
		return fmt.Errorf("updating dependent %s: %w", depID, err)
	}
	return nil
}

func (a *Applier) owned(ctx context.Context, store LiveStore, owner id.BeneficiaryID, depID id.DependentID) (*bmodels.Dependent, error) {
	d, err := store.FindDependent(ctx, depID)
	if err != nil {
		return nil, fmt.Errorf("loading dependent %s: %w", depID, err)
	}
	if d.BeneficiaryID != owner {
		return nil, fmt.Errorf("dependent %s: %w", depID, ErrForeignDependent)
	}
	return d, nil
}

func (a *Applier) mergeDependent(d *bmodels.Dependent, after models.DependentSnapshot) error {
	d.FullName = after.FullName
	d.Relationship = after.Relationship
	d.Gender = after.Gender
	d.DateOfBirth = after.DateOfBirth
	d.City = after.City
	d.IsAlive = after.IsAlive
	d.HealthStatus = after.HealthStatus
	if after.AadhaarNumber == "" {
		return nil
	}
	f, _ := models.DependentField("aadhaar_number")
	s, err := a.seal(after.AadhaarNumber, f.Sensitive.Visible)
	if err != nil {
		return fmt.Errorf("sealing dependent aadhaar_number: %w", err)
	}
	d.Aadhaar = s
	return nil
}
