package models

import (
	"encoding/json"
	"strconv"
	"strings"

	bmodels "mppchs/internal/beneficiary/models"
	id "mppchs/pkg/domain"
	"mppchs/pkg/platform/crypto"
)

// BeneficiarySnapshot is a flattened, point-in-time view of a beneficiary's
// editable attributes and active dependents. Sensitive values are plaintext;
// snapshots are never written to the live tables directly.
type BeneficiarySnapshot struct {
	FullName          string              `json:"full_name" validate:"omitempty,max=120"`
	Gender            string              `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth       string              `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	MobileNumber      string              `json:"mobile_number" validate:"omitempty,mobile"`
	Email             string              `json:"email" validate:"omitempty,email"`
	AddressLine1      string              `json:"address_line1" validate:"omitempty,max=200"`
	AddressLine2      string              `json:"address_line2" validate:"omitempty,max=200"`
	City              string              `json:"city" validate:"omitempty,max=80"`
	District          string              `json:"district" validate:"omitempty,max=80"`
	State             string              `json:"state" validate:"omitempty,max=80"`
	PinCode           string              `json:"pin_code" validate:"omitempty,pincode"`
	BankName          string              `json:"bank_name" validate:"omitempty,max=120"`
	BankBranch        string              `json:"bank_branch" validate:"omitempty,max=120"`
	IFSCCode          string              `json:"ifsc_code" validate:"omitempty,ifsc"`
	BankAccountNumber string              `json:"bank_account_number" validate:"omitempty,numeric,min=9,max=18"`
	AadhaarNumber     string              `json:"aadhaar_number" validate:"omitempty,aadhaar"`
	PANNumber         string              `json:"pan_number" validate:"omitempty,pan"`
	Dependents        []DependentSnapshot `json:"dependents" validate:"dive"`
}

// DependentSnapshot is one dependent row within a snapshot. Removed marks a
// row the editor kept in the after list but flagged for removal.
type DependentSnapshot struct {
	Identity      Identity `json:"-"`
	Removed       bool     `json:"-"`
	FullName      string   `json:"full_name" validate:"max=120"`
	Relationship  string   `json:"relationship" validate:"omitempty,relationship"`
	Gender        string   `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth   string   `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	City          string   `json:"city" validate:"omitempty,max=80"`
	IsAlive       bool     `json:"is_alive"`
	HealthStatus  string   `json:"health_status" validate:"omitempty,max=120"`
	AadhaarNumber string   `json:"aadhaar_number" validate:"omitempty,aadhaar"`
}

type dependentJSON struct {
	ID      int64  `json:"id,omitempty"`
	TempID  string `json:"temp_id,omitempty"`
	Removed bool   `json:"removed,omitempty"`
	dependentFields
}

// dependentFields strips DependentSnapshot's methods so encoding/json uses
// the struct tags instead of recursing into MarshalJSON.
type dependentFields DependentSnapshot

func (d DependentSnapshot) MarshalJSON() ([]byte, error) {
	out := dependentJSON{Removed: d.Removed, dependentFields: dependentFields(d)}
	if depID, ok := d.Identity.DependentID(); ok {
		out.ID = int64(depID)
	}
	if temp, ok := d.Identity.TempID(); ok {
		out.TempID = temp
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads id/temp_id into Identity. A row with both keeps the
// persisted id. IsAlive defaults to true when absent.
func (d *DependentSnapshot) UnmarshalJSON(data []byte) error {
	in := dependentJSON{dependentFields: dependentFields{IsAlive: true}}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*d = DependentSnapshot(in.dependentFields)
	d.Removed = in.Removed
	switch {
	case in.ID > 0:
		d.Identity = Persisted(id.DependentID(in.ID))
	case in.TempID != "":
		d.Identity = Ephemeral(in.TempID)
	}
	return nil
}

// Sensitivity describes how a sensitive field is stored and checked.
type Sensitivity struct {
	// Visible is the number of trailing characters kept by the mask.
	Visible int
	// Kind is the uniqueness namespace; empty when not uniqueness-checked.
	Kind bmodels.IdentifierKind
}

// Field is one whitelisted editable attribute of T.
type Field[T any] struct {
	Key       string
	Label     string
	Get       func(*T) string
	Set       func(*T, string)
	Normalize func(string) string
	Sensitive *Sensitivity
}

// Display renders v for review screens, masking sensitive values.
func (f Field[T]) Display(v string) string {
	if f.Sensitive == nil || v == "" {
		return v
	}
	return crypto.Mask(v, f.Sensitive.Visible)
}

func trimmed(v string) string { return strings.TrimSpace(v) }

func collapsed(v string) string { return strings.Join(strings.Fields(v), " ") }

func lower(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

var (
	nationalID = &Sensitivity{Visible: 4, Kind: bmodels.NationalID}
	taxID      = &Sensitivity{Visible: 3, Kind: bmodels.TaxID}
	bankAcct   = &Sensitivity{Visible: 4}
)

// BeneficiaryFields is the fixed whitelist of editable beneficiary
// attributes, in display order.
var BeneficiaryFields = []Field[BeneficiarySnapshot]{
	{Key: "full_name", Label: "Full name", Normalize: collapsed,
		Get: func(s *BeneficiarySnapshot) string { return s.FullName }, Set: func(s *BeneficiarySnapshot, v string) { s.FullName = v }},
	{Key: "gender", Label: "Gender", Normalize: lower,
		Get: func(s *BeneficiarySnapshot) string { return s.Gender }, Set: func(s *BeneficiarySnapshot, v string) { s.Gender = v }},
	{Key: "date_of_birth", Label: "Date of birth", Normalize: trimmed,
		Get: func(s *BeneficiarySnapshot) string { return s.DateOfBirth }, Set: func(s *BeneficiarySnapshot, v string) { s.DateOfBirth = v }},
	{Key: "mobile_number", Label: "Mobile number", Normalize: crypto.DigitsOnly,
		Get: func(s *BeneficiarySnapshot) string { return s.MobileNumber }, Set: func(s *BeneficiarySnapshot, v string) { s.MobileNumber = v }},
	{Key: "email", Label: "Email", Normalize: lower,
		Get: func(s *BeneficiarySnapshot) string { return s.Email }, Set: func(s *BeneficiarySnapshot, v string) { s.Email = v }},
	{Key: "address_line1", Label: "Address line 1", Normalize: collapsed,
		Get: func(s *BeneficiarySnapshot) string { return s.AddressLine1 }, Set: func(s *BeneficiarySnapshot, v string) { s.AddressLine1 = v }},
	{Key: "address_line2", Label: "Address line 2", Normalize: collapsed,
		Get: func(s *BeneficiarySnapshot) string { return s.AddressLine2 }, Set: func(s *BeneficiarySnapshot, v string) { s.AddressLine2 = v }},
	{Key: "city", Label: "City", Normalize: collapsed,
		Get: func(s *BeneficiarySnapshot) string { return s.City }, Set: func(s *BeneficiarySnapshot, v string) { s.City = v }},
	{Key: "district", Label: "District", Normalize: collapsed,
		Get: func(s *BeneficiarySnapshot) string { return s.District }, Set: func(s *BeneficiarySnapshot, v string) { s.District = v }},
	{Key: "state", Label: "State", Normalize: collapsed,
		Get: func(s *BeneficiarySnapshot) string { return s.State }, Set: func(s *BeneficiarySnapshot, v string) { s.State = v }},
	{Key: "pin_code", Label: "PIN code", Normalize: crypto.DigitsOnly,
		Get: func(s *BeneficiarySnapshot) string { return s.PinCode }, Set: func(s *BeneficiarySnapshot, v string) { s.PinCode = v }},
	{Key: "bank_name", Label: "Bank name", Normalize: collapsed,
		Get: func(s *BeneficiarySnapshot) string { return s.BankName }, Set: func(s *BeneficiarySnapshot, v string) { s.BankName = v }},
	{Key: "bank_branch", Label: "Bank branch", Normalize: collapsed,
		Get: func(s *BeneficiarySnapshot) string { return s.BankBranch }, Set: func(s *BeneficiarySnapshot, v string) { s.BankBranch = v }},
	{Key: "ifsc_code", Label: "IFSC code", Normalize: crypto.UpperAlnum,
		Get: func(s *BeneficiarySnapshot) string { return s.IFSCCode }, Set: func(s *BeneficiarySnapshot, v string) { s.IFSCCode = v }},
	{Key: "bank_account_number", Label: "Bank account number", Normalize: crypto.DigitsOnly, Sensitive: bankAcct,
		Get: func(s *BeneficiarySnapshot) string { return s.BankAccountNumber }, Set: func(s *BeneficiarySnapshot, v string) { s.BankAccountNumber = v }},
	{Key: "aadhaar_number", Label: "Aadhaar number", Normalize: crypto.DigitsOnly, Sensitive: nationalID,
		Get: func(s *BeneficiarySnapshot) string { return s.AadhaarNumber }, Set: func(s *BeneficiarySnapshot, v string) { s.AadhaarNumber = v }},
	{Key: "pan_number", Label: "PAN", Normalize: crypto.UpperAlnum, Sensitive: taxID,
		Get: func(s *BeneficiarySnapshot) string { return s.PANNumber }, Set: func(s *BeneficiarySnapshot, v string) { s.PANNumber = v }},
}

// DependentFields is the fixed attribute set compared for dependent updates.
var DependentFields = []Field[DependentSnapshot]{
	{Key: "full_name", Label: "Full name", Normalize: collapsed,
		Get: func(d *DependentSnapshot) string { return d.FullName }, Set: func(d *DependentSnapshot, v string) { d.FullName = v }},
	{Key: "relationship", Label: "Relationship", Normalize: lower,
		Get: func(d *DependentSnapshot) string { return d.Relationship }, Set: func(d *DependentSnapshot, v string) { d.Relationship = v }},
	{Key: "gender", Label: "Gender", Normalize: lower,
		Get: func(d *DependentSnapshot) string { return d.Gender }, Set: func(d *DependentSnapshot, v string) { d.Gender = v }},
	{Key: "date_of_birth", Label: "Date of birth", Normalize: trimmed,
		Get: func(d *DependentSnapshot) string { return d.DateOfBirth }, Set: func(d *DependentSnapshot, v string) { d.DateOfBirth = v }},
	{Key: "city", Label: "City", Normalize: collapsed,
		Get: func(d *DependentSnapshot) string { return d.City }, Set: func(d *DependentSnapshot, v string) { d.City = v }},
	{Key: "is_alive", Label: "Alive", Normalize: trimmed,
		Get: func(d *DependentSnapshot) string { return strconv.FormatBool(d.IsAlive) },
		Set: func(d *DependentSnapshot, v string) { d.IsAlive, _ = strconv.ParseBool(v) }},
	{Key: "health_status", Label: "Health status", Normalize: collapsed,
		Get: func(d *DependentSnapshot) string { return d.HealthStatus }, Set: func(d *DependentSnapshot, v string) { d.HealthStatus = v }},
	{Key: "aadhaar_number", Label: "Aadhaar number", Normalize: crypto.DigitsOnly, Sensitive: nationalID,
		Get: func(d *DependentSnapshot) string { return d.AadhaarNumber }, Set: func(d *DependentSnapshot, v string) { d.AadhaarNumber = v }},
}

// BeneficiaryField looks up a beneficiary field by key.
func BeneficiaryField(key string) (Field[BeneficiarySnapshot], bool) {
	for _, f := range BeneficiaryFields {
		if f.Key == key {
			return f, true
		}
	}
	return Field[BeneficiarySnapshot]{}, false
}

// DependentField looks up a dependent field by key.
func DependentField(key string) (Field[DependentSnapshot], bool) {
	for _, f := range DependentFields {
		if f.Key == key {
			return f, true
		}
	}
	return Field[DependentSnapshot]{}, false
}

// Normalized returns a copy with every whitelisted field normalized.
func (s BeneficiarySnapshot) Normalized() BeneficiarySnapshot {
	out := s
	for _, f := range BeneficiaryFields {
		f.Set(&out, f.Normalize(f.Get(&s)))
	}
	out.Dependents = make([]DependentSnapshot, len(s.Dependents))
	for i, d := range s.Dependents {
		out.Dependents[i] = d.Normalized()
	}
	return out
}

// Normalized returns a copy with every dependent field normalized.
func (d DependentSnapshot) Normalized() DependentSnapshot {
	out := d
	for _, f := range DependentFields {
		f.Set(&out, f.Normalize(f.Get(&d)))
	}
	return out
}

// ActiveDependents returns the rows not flagged for removal.
func (s BeneficiarySnapshot) ActiveDependents() []DependentSnapshot {
	out := make([]DependentSnapshot, 0, len(s.Dependents))
	for _, d := range s.Dependents {
		if !d.Removed {
			out = append(out, d)
		}
	}
	return out
}

// KeepStoredSensitive returns s with every blank sensitive value filled in
// from stored. A blank sensitive field never clears what is on record, so
// the filled-in snapshot diffs, reviews and applies the same way. Dependent
// rows are matched on persisted id.
func (s BeneficiarySnapshot) KeepStoredSensitive(stored BeneficiarySnapshot) BeneficiarySnapshot {
	out := s
	for _, f := range BeneficiaryFields {
		if f.Sensitive != nil && f.Get(&out) == "" {
			f.Set(&out, f.Get(&stored))
		}
	}

	prior := make(map[Identity]DependentSnapshot, len(stored.Dependents))
	for _, d := range stored.Dependents {
		if d.Identity.Kind() == IdentityPersisted {
			prior[d.Identity] = d
		}
	}
	out.Dependents = make([]DependentSnapshot, len(s.Dependents))
	for i, d := range s.Dependents {
		if old, ok := prior[d.Identity]; ok {
			for _, f := range DependentFields {
				if f.Sensitive != nil && f.Get(&d) == "" {
					f.Set(&d, f.Get(&old))
				}
			}
		}
		out.Dependents[i] = d
	}
	return out
}
