// Package diff computes the structural difference between two beneficiary
// snapshots. It is pure and deterministic: output order depends only on the
// field whitelist and on dependent identities, never on input order.
package diff

import (
	"cmp"
	"slices"

	"mppchs/internal/changerequest/models"
)

// Compute returns the field-level beneficiary diff and the set-level
// dependent diff between before and after. Both snapshots are normalized
// before comparison.
func Compute(before, after models.BeneficiarySnapshot) models.Diff {
	b, a := before.Normalized(), after.Normalized()
	return models.Diff{
		Beneficiary: BeneficiaryFields(b, a),
		Dependents:  Dependents(b.Dependents, a.Dependents),
	}
}

// BeneficiaryFields compares the whitelisted attributes in whitelist order.
func BeneficiaryFields(before, after models.BeneficiarySnapshot) []models.FieldChange {
	var out []models.FieldChange
	for _, f := range models.BeneficiaryFields {
		bv, av := f.Normalize(f.Get(&before)), f.Normalize(f.Get(&after))
		if bv != av {
			out = append(out, models.FieldChange{Field: f.Key, Before: bv, After: av})
		}
	}
	return out
}

// DependentFields compares the fixed dependent attribute set.
func DependentFields(before, after models.DependentSnapshot) []models.FieldChange {
	var out []models.FieldChange
	for _, f := range models.DependentFields {
		bv, av := f.Normalize(f.Get(&before)), f.Normalize(f.Get(&after))
		if bv != av {
			out = append(out, models.FieldChange{Field: f.Key, Before: bv, After: av})
		}
	}
	return out
}

// Dependents reconciles two rosters by identity.
//
// Before rows are keyed by persisted id only; rows without one cannot match
// anything and are ignored. After rows are keyed by persisted id, else temp
// id, else their position. A before key that is missing from after, or whose
// after row is flagged removed, yields a remove. An after key with no before
// match yields an add. Matching keys yield an update only when some
// attribute differs. After rows are expected to carry distinct identities;
// BeneficiarySnapshot.Validate rejects rosters that repeat one.
func Dependents(before, after []models.DependentSnapshot) []models.DependentChange {
	beforeByID := make(map[models.Identity]models.DependentSnapshot, len(before))
	for _, d := range before {
		if d.Identity.Kind() == models.IdentityPersisted {
			beforeByID[d.Identity] = d
		}
	}

	afterByID := make(map[models.Identity]models.DependentSnapshot, len(after))
	afterOrder := make([]models.Identity, 0, len(after))
	for i, d := range after {
		key := d.Identity
		if key.IsZero() {
			key = models.Positional(i)
			d.Identity = key
		}
		if _, dup := afterByID[key]; !dup {
			afterOrder = append(afterOrder, key)
		}
		afterByID[key] = d
	}

	var changes []models.DependentChange
	for key, b := range beforeByID {
		a, ok := afterByID[key]
		if !ok || a.Removed {
			changes = append(changes, models.DependentRemove{Before: b})
		}
	}
	for _, key := range afterOrder {
		a := afterByID[key]
		b, ok := beforeByID[key]
		switch {
		case !ok && a.Removed:
			// removing something that never existed
		case !ok:
			changes = append(changes, models.DependentAdd{After: a})
		case !a.Removed:
			if fields := DependentFields(b, a); len(fields) > 0 {
				changes = append(changes, models.DependentUpdate{Before: b, After: a, Changes: fields})
			}
		}
	}
	sortChanges(changes)
	return changes
}

// sortChanges orders removes, then updates, then adds; within an action by
// identity kind and value.
func sortChanges(changes []models.DependentChange) {
	rank := map[models.DependentAction]int{
		models.ActionRemove: 0,
		models.ActionUpdate: 1,
		models.ActionAdd:    2,
	}
	slices.SortStableFunc(changes, func(x, y models.DependentChange) int {
		if c := cmp.Compare(rank[x.Action()], rank[y.Action()]); c != 0 {
			return c
		}
		return compareIdentity(x.Identity(), y.Identity())
	})
}

func compareIdentity(x, y models.Identity) int {
	if c := cmp.Compare(x.Kind(), y.Kind()); c != 0 {
		return c
	}
	switch x.Kind() {
	case models.IdentityPersisted:
		xid, _ := x.DependentID()
		yid, _ := y.DependentID()
		return cmp.Compare(xid, yid)
	case models.IdentityPositional:
		xp, _ := x.Position()
		yp, _ := y.Position()
		return cmp.Compare(xp, yp)
	default:
		return cmp.Compare(x.String(), y.String())
	}
}

// FromLogEntries rebuilds dependent changes from persisted log rows. Rows
// whose payloads are missing for their action are skipped.
func FromLogEntries(entries []models.DependentChangeLogEntry) []models.DependentChange {
	changes := make([]models.DependentChange, 0, len(entries))
	for i, e := range entries {
		switch e.Action {
		case models.ActionAdd:
			if e.After == nil {
				continue
			}
			after := *e.After
			if after.Identity.IsZero() {
				after.Identity = models.Positional(i)
			}
			changes = append(changes, models.DependentAdd{After: after})
		case models.ActionUpdate:
			if e.Before == nil || e.After == nil {
				continue
			}
			changes = append(changes, models.DependentUpdate{
				Before:  *e.Before,
				After:   *e.After,
				Changes: DependentFields(*e.Before, *e.After),
			})
		case models.ActionRemove:
			if e.Before == nil {
				continue
			}
			changes = append(changes, models.DependentRemove{Before: *e.Before})
		}
	}
	return changes
}
