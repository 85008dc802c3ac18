package models

import (
	"time"

	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
)

// EntityType names the record a ChangeItem refers to.
type EntityType string

const (
	EntityBeneficiary EntityType = "beneficiary"
	EntityDependent   EntityType = "dependent"
)

// ItemStatus is the advisory review state of a single ChangeItem. It never
// changes what approval applies.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemApproved  ItemStatus = "approved"
	ItemRejected  ItemStatus = "rejected"
	ItemNeedsInfo ItemStatus = "needs_info"
)

// ParseItemStatus validates a reviewer-supplied item status.
func ParseItemStatus(s string) (ItemStatus, error) {
	switch st := ItemStatus(s); st {
	case ItemPending, ItemApproved, ItemRejected, ItemNeedsInfo:
		return st, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "invalid item status: "+s)
	}
}

// ChangeItem is one independently reviewable line of the ledger.
type ChangeItem struct {
	ID               id.ChangeItemID    `json:"id"`
	ChangeRequestID  id.ChangeRequestID `json:"change_request_id"`
	EntityType       EntityType         `json:"entity_type"`
	EntityIdentifier string             `json:"entity_identifier,omitempty"`
	FieldKey         string             `json:"field_key"`
	Label            string             `json:"label"`
	OldValue         string             `json:"old_value"`
	NewValue         string             `json:"new_value"`
	Status           ItemStatus         `json:"status"`
	ReviewerID       id.UserID          `json:"reviewer_id,omitempty"`
	ReviewedAt       *time.Time         `json:"reviewed_at,omitempty"`
	Note             string             `json:"note,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// ApplyReview records a reviewer decision on the item.
func (i *ChangeItem) ApplyReview(status ItemStatus, reviewer id.UserID, note string, now time.Time) {
	i.Status = status
	i.ReviewerID = reviewer
	i.Note = note
	if status == ItemPending {
		i.ReviewedAt = nil
		return
	}
	i.ReviewedAt = &now
}

// SameChange reports whether two items describe the same edit.
func (i ChangeItem) SameChange(other ChangeItem) bool {
	return i.EntityType == other.EntityType &&
		i.EntityIdentifier == other.EntityIdentifier &&
		i.FieldKey == other.FieldKey &&
		i.OldValue == other.OldValue &&
		i.NewValue == other.NewValue
}

// ItemStats aggregates item statuses for progress display.
type ItemStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	NeedsInfo int `json:"needs_info"`
}

func ComputeItemStats(items []ChangeItem) ItemStats {
	stats := ItemStats{Total: len(items)}
	for _, it := range items {
		switch it.Status {
		case ItemApproved:
			stats.Approved++
		case ItemRejected:
			stats.Rejected++
		case ItemNeedsInfo:
			stats.NeedsInfo++
		default:
			stats.Pending++
		}
	}
	return stats
}
