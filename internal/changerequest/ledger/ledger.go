// Package ledger expands a structural diff into flat, independently
// reviewable change items.
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
)

const (
	KeyDependentAdd    = "dependent:add"
	KeyDependentRemove = "dependent:remove"
)

// RebuildPolicy decides what happens to earlier item reviews when a draft is
// re-saved and its ledger rebuilt.
type RebuildPolicy string

const (
	// RebuildReplace discards every prior item and its review state.
	RebuildReplace RebuildPolicy = "replace"
	// RebuildPreserve carries status, note and reviewer over to rebuilt items
	// describing exactly the same change. Items showing a masked value are
	// always re-reviewed since two different identifiers can mask alike.
	RebuildPreserve RebuildPolicy = "preserve"
)

// ParseRebuildPolicy reads a configured policy; empty means RebuildReplace.
func ParseRebuildPolicy(s string) (RebuildPolicy, error) {
	switch p := RebuildPolicy(s); p {
	case "":
		return RebuildReplace, nil
	case RebuildReplace, RebuildPreserve:
		return p, nil
	default:
		return "", fmt.Errorf("unknown ledger rebuild policy %q", s)
	}
}

// DependentFieldKey is the field key of one changed attribute of a dependent.
func DependentFieldKey(identifier, attribute string) string {
	return "dependent:" + identifier + ":" + attribute
}

// Build expands d into pending items owned by requestID. Sensitive values
// are rendered masked.
func Build(requestID id.ChangeRequestID, d models.Diff, now time.Time) []models.ChangeItem {
	items := make([]models.ChangeItem, 0, len(d.Beneficiary)+len(d.Dependents))
	for _, fc := range d.Beneficiary {
		f, ok := models.BeneficiaryField(fc.Field)
		if !ok {
			continue
		}
		items = append(items, models.ChangeItem{
			ChangeRequestID: requestID,
			EntityType:      models.EntityBeneficiary,
			FieldKey:        f.Key,
			Label:           f.Label,
			OldValue:        f.Display(fc.Before),
			NewValue:        f.Display(fc.After),
			Status:          models.ItemPending,
			CreatedAt:       now,
		})
	}

	for _, change := range d.Dependents {
		identifier := change.Identity().String()
		base := models.ChangeItem{
			ChangeRequestID:  requestID,
			EntityType:       models.EntityDependent,
			EntityIdentifier: identifier,
			Status:           models.ItemPending,
			CreatedAt:        now,
		}
		switch c := change.(type) {
		case models.DependentAdd:
			item := base
			item.FieldKey = KeyDependentAdd
			item.Label = "Add dependent " + c.After.FullName
			item.NewValue = project(c.After)
			items = append(items, item)
		case models.DependentRemove:
			item := base
			item.FieldKey = KeyDependentRemove
			item.Label = "Remove dependent " + c.Before.FullName
			item.OldValue = project(c.Before)
			items = append(items, item)
		case models.DependentUpdate:
			for _, fc := range c.Changes {
				f, ok := models.DependentField(fc.Field)
				if !ok {
					continue
				}
				item := base
				item.FieldKey = DependentFieldKey(identifier, f.Key)
				item.Label = c.Before.FullName + ": " + f.Label
				item.OldValue = f.Display(fc.Before)
				item.NewValue = f.Display(fc.After)
				items = append(items, item)
			}
		}
	}
	return items
}

// project renders a dependent row as compact JSON of its display fields,
// with sensitive values masked.
func project(d models.DependentSnapshot) string {
	view := make(map[string]string, len(models.DependentFields))
	for _, f := range models.DependentFields {
		if v := f.Get(&d); v != "" {
			view[f.Key] = f.Display(v)
		}
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return d.FullName
	}
	return string(raw)
}

// Rebuild returns the items to persist for a re-saved draft given the
// items currently stored.
func Rebuild(policy RebuildPolicy, previous, fresh []models.ChangeItem) []models.ChangeItem {
	if policy != RebuildPreserve || len(previous) == 0 {
		return fresh
	}
	out := make([]models.ChangeItem, len(fresh))
	for i, item := range fresh {
		out[i] = item
		if showsMasked(item) {
			continue
		}
		for _, old := range previous {
			if old.Status != models.ItemPending && old.SameChange(item) {
				out[i].Status = old.Status
				out[i].Note = old.Note
				out[i].ReviewerID = old.ReviewerID
				out[i].ReviewedAt = old.ReviewedAt
				break
			}
		}
	}
	return out
}

// showsMasked reports whether item renders a sensitive value, which makes
// its old and new values unfit for telling two changes apart.
func showsMasked(item models.ChangeItem) bool {
	switch {
	case item.EntityType == models.EntityBeneficiary:
		f, ok := models.BeneficiaryField(item.FieldKey)
		return ok && f.Sensitive != nil
	case item.FieldKey == KeyDependentAdd || item.FieldKey == KeyDependentRemove:
		return projectsSensitive(item.NewValue) || projectsSensitive(item.OldValue)
	default:
		attr := item.FieldKey[strings.LastIndex(item.FieldKey, ":")+1:]
		f, ok := models.DependentField(attr)
		return ok && f.Sensitive != nil
	}
}

// projectsSensitive reports whether a project() rendering holds a sensitive
// attribute. Unparseable values count as sensitive.
func projectsSensitive(raw string) bool {
	if raw == "" {
		return false
	}
	var view map[string]string
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return true
	}
	for _, f := range models.DependentFields {
		if f.Sensitive != nil && view[f.Key] != "" {
			return true
		}
	}
	return false
}
