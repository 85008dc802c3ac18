package models

import (
	"strconv"

	id "mppchs/pkg/domain"
)

// IdentityKind discriminates the Identity variants.
type IdentityKind uint8

const (
	IdentityNone IdentityKind = iota
	// IdentityPersisted is a live dependent row id.
	IdentityPersisted
	// IdentityEphemeral is a client-assigned temporary id for a new dependent.
	IdentityEphemeral
	// IdentityPositional is the fallback for rows carrying neither id; it is
	// assigned by the diff engine from the row's position in the after list.
	IdentityPositional
)

// Identity reconciles dependents across snapshots. It is comparable and
// usable as a map key; two identities are equal only within the same kind.
type Identity struct {
	kind      IdentityKind
	persisted id.DependentID
	ephemeral string
	position  int
}

func Persisted(dependentID id.DependentID) Identity {
	return Identity{kind: IdentityPersisted, persisted: dependentID}
}

func Ephemeral(tempID string) Identity {
	return Identity{kind: IdentityEphemeral, ephemeral: tempID}
}

// Positional identifies the index-th (zero based) row of an after list.
func Positional(index int) Identity {
	return Identity{kind: IdentityPositional, position: index}
}

func (i Identity) Kind() IdentityKind { return i.kind }

func (i Identity) IsZero() bool { return i.kind == IdentityNone }

// DependentID returns the persisted id, if this is a persisted identity.
func (i Identity) DependentID() (id.DependentID, bool) {
	return i.persisted, i.kind == IdentityPersisted
}

// TempID returns the temporary id, if this is an ephemeral identity.
func (i Identity) TempID() (string, bool) {
	return i.ephemeral, i.kind == IdentityEphemeral
}

// Position returns the row index, if this is a positional identity.
func (i Identity) Position() (int, bool) {
	return i.position, i.kind == IdentityPositional
}

// String renders the identity as a ledger entity identifier.
func (i Identity) String() string {
	switch i.kind {
	case IdentityPersisted:
		return i.persisted.String()
	case IdentityEphemeral:
		return i.ephemeral
	case IdentityPositional:
		return "row-" + strconv.Itoa(i.position+1)
	default:
		return ""
	}
}
