package domain

import (
	"strconv"
	"strings"

	dErrors "mppchs/pkg/domain-errors"
)

// Typed identifiers. All persisted rows use positive bigserial keys; the zero
// value means "unset". Distinct types keep a dependent id from being passed
// where a beneficiary id is expected.
type (
	BeneficiaryID   int64
	DependentID     int64
	UserID          int64
	ChangeRequestID int64
	ChangeItemID    int64
)

func (id BeneficiaryID) String() string   { return strconv.FormatInt(int64(id), 10) }
func (id DependentID) String() string     { return strconv.FormatInt(int64(id), 10) }
func (id UserID) String() string          { return strconv.FormatInt(int64(id), 10) }
func (id ChangeRequestID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id ChangeItemID) String() string    { return strconv.FormatInt(int64(id), 10) }

func (id BeneficiaryID) IsNil() bool   { return id <= 0 }
func (id DependentID) IsNil() bool     { return id <= 0 }
func (id UserID) IsNil() bool          { return id <= 0 }
func (id ChangeRequestID) IsNil() bool { return id <= 0 }
func (id ChangeItemID) IsNil() bool    { return id <= 0 }

// maxIDLength bounds input before parsing; int64 needs at most 19 digits.
const maxIDLength = 19

func parseID(s, kind string) (int64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	if len(s) > maxIDLength || strings.TrimSpace(s) != s {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return v, nil
}

// ParseBeneficiaryID parses a beneficiary id from external input.
func ParseBeneficiaryID(s string) (BeneficiaryID, error) {
	v, err := parseID(s, "beneficiary id")
	return BeneficiaryID(v), err
}

// ParseDependentID parses a dependent id from external input.
func ParseDependentID(s string) (DependentID, error) {
	v, err := parseID(s, "dependent id")
	return DependentID(v), err
}

// ParseUserID parses a user id from external input.
func ParseUserID(s string) (UserID, error) {
	v, err := parseID(s, "user id")
	return UserID(v), err
}

// ParseChangeRequestID parses a change request id from external input.
func ParseChangeRequestID(s string) (ChangeRequestID, error) {
	v, err := parseID(s, "change request id")
	return ChangeRequestID(v), err
}

// ParseChangeItemID parses a change item id from external input.
func ParseChangeItemID(s string) (ChangeItemID, error) {
	v, err := parseID(s, "change item id")
	return ChangeItemID(v), err
}
