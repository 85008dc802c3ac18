package models

import (
	"time"

	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
)

// Sealed is a sensitive value as stored: ciphertext plus its masked form.
// Masked doubles as the shortlist key for uniqueness checks.
type Sealed struct {
	Ciphertext string `json:"-"`
	Masked     string `json:"masked"`
}

// IsZero reports whether no value is stored.
func (s Sealed) IsZero() bool {
	return s.Ciphertext == ""
}

// ChangeRequestSummary holds the denormalized change request pointers and
// counters shown on the beneficiary record.
type ChangeRequestSummary struct {
	LastRequestID  id.ChangeRequestID `json:"last_change_request_id,omitempty"`
	LastStatus     string             `json:"last_change_request_status,omitempty"`
	LastReviewerID id.UserID          `json:"last_change_request_reviewer_id,omitempty"`
	LastAt         *time.Time         `json:"last_change_request_at,omitempty"`
	Submitted      int                `json:"change_requests_submitted"`
	Approved       int                `json:"change_requests_approved"`
}

// Beneficiary is the live, authoritative profile. Only the approval path
// writes profile fields after registration.
type Beneficiary struct {
	ID           id.BeneficiaryID
	FullName     string
	Gender       string
	DateOfBirth  string
	MobileNumber string
	Email        string
	AddressLine1 string
	AddressLine2 string
	City         string
	District     string
	State        string
	PinCode      string
	BankName     string
	BankBranch   string
	IFSCCode     string
	BankAccount  Sealed
	Aadhaar      Sealed
	PAN          Sealed
	Summary      ChangeRequestSummary
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Dependent is a family member linked to a beneficiary.
//
// Invariants:
//   - Dependents are never physically deleted; removal clears IsActive and
//     stamps DeletedAt/DeletedBy
//   - Restoring a removed dependent stamps RestoredAt/RestoredBy and clears
//     the deletion markers
type Dependent struct {
	ID            id.DependentID
	BeneficiaryID id.BeneficiaryID
	FullName      string
	Relationship  string
	Gender        string
	DateOfBirth   string
	City          string
	IsAlive       bool
	HealthStatus  string
	Aadhaar       Sealed
	IsActive      bool
	DeletedAt     *time.Time
	DeletedBy     id.UserID
	RestoredAt    *time.Time
	RestoredBy    id.UserID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SoftDelete deactivates the dependent. Restore markers are cleared.
func (d *Dependent) SoftDelete(actor id.UserID, now time.Time) error {
	if !d.IsActive {
		return dErrors.New(dErrors.CodeInvalidState, "dependent is already removed")
	}
	d.IsActive = false
	d.DeletedAt = &now
	d.DeletedBy = actor
	d.RestoredAt = nil
	d.RestoredBy = 0
	d.UpdatedAt = now
	return nil
}

// Restore reactivates a soft-deleted dependent. A no-op on active rows.
func (d *Dependent) Restore(actor id.UserID, now time.Time) {
	if d.IsActive {
		return
	}
	d.IsActive = true
	d.DeletedAt = nil
	d.DeletedBy = 0
	d.RestoredAt = &now
	d.RestoredBy = actor
	d.UpdatedAt = now
}

// IdentifierKind names a uniqueness-checked sensitive identifier namespace.
type IdentifierKind string

const (
	// NationalID is shared by beneficiaries and dependents.
	NationalID IdentifierKind = "national_id"
	// TaxID applies to beneficiaries only.
	TaxID IdentifierKind = "tax_id"
)

// Candidate is a live row whose masked identifier matched a shortlist query.
// DependentID is zero for beneficiary rows.
type Candidate struct {
	BeneficiaryID id.BeneficiaryID
	DependentID   id.DependentID
	Ciphertext    string
}
