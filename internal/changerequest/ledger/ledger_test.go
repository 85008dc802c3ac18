package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mppchs/internal/changerequest/diff"
	"mppchs/internal/changerequest/models"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func snapshot() models.BeneficiarySnapshot {
	return models.BeneficiarySnapshot{
		FullName:      "Sunita Devi",
		City:          "Bhopal",
		AadhaarNumber: "123456789012",
		Dependents: []models.DependentSnapshot{
			{Identity: models.Persisted(1), FullName: "Ravi", Relationship: "son", City: "Bhopal", IsAlive: true},
			{Identity: models.Persisted(2), FullName: "Gita", Relationship: "mother", IsAlive: true},
		},
	}
}

func TestBuild(t *testing.T) {
	before := snapshot()
	after := snapshot()
	after.City = "Indore"
	after.AadhaarNumber = "999988887777"
	after.Dependents = []models.DependentSnapshot{
		{Identity: models.Persisted(1), FullName: "Ravi", Relationship: "son", City: "Indore", IsAlive: true},
		{Identity: models.Ephemeral("t1"), FullName: "Meera", Relationship: "daughter", IsAlive: true, AadhaarNumber: "111122223333"},
	}

	items := Build(5, diff.Compute(before, after), now)
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.FieldKey
		assert.Equal(t, models.ItemPending, it.Status)
		assert.EqualValues(t, 5, it.ChangeRequestID)
	}
	assert.Equal(t, []string{
		"city",
		"aadhaar_number",
		KeyDependentRemove,
		"dependent:1:city",
		KeyDependentAdd,
	}, keys)

	t.Run("sensitive values are masked", func(t *testing.T) {
		assert.Equal(t, "XXXXXXXX9012", items[1].OldValue)
		assert.Equal(t, "XXXXXXXX7777", items[1].NewValue)
		assert.NotContains(t, items[4].NewValue, "111122223333")
		assert.Contains(t, items[4].NewValue, "3333")
	})

	t.Run("dependent items carry identifiers", func(t *testing.T) {
		assert.Equal(t, "2", items[2].EntityIdentifier)
		assert.Equal(t, "t1", items[4].EntityIdentifier)
		assert.Contains(t, items[2].OldValue, `"full_name":"Gita"`)
	})
}

func TestBuild_EndToEndShape(t *testing.T) {
	before := snapshot()
	after := snapshot()
	after.City = "Indore"
	after.Dependents = append(after.Dependents, models.DependentSnapshot{
		Identity: models.Ephemeral("t1"), FullName: "Meera", Relationship: "daughter", IsAlive: true,
	})
	items := Build(1, diff.Compute(before, after), now)
	require.Len(t, items, 2)
	assert.Equal(t, models.EntityBeneficiary, items[0].EntityType)
	assert.Equal(t, "city", items[0].FieldKey)
	assert.Equal(t, KeyDependentAdd, items[1].FieldKey)
}

func TestRebuild(t *testing.T) {
	reviewedAt := now.Add(-time.Hour)
	previous := []models.ChangeItem{
		{FieldKey: "city", EntityType: models.EntityBeneficiary, OldValue: "Bhopal", NewValue: "Indore",
			Status: models.ItemApproved, ReviewerID: 9, ReviewedAt: &reviewedAt, Note: "ok"},
		{FieldKey: "email", EntityType: models.EntityBeneficiary, OldValue: "", NewValue: "a@b.in",
			Status: models.ItemRejected, ReviewerID: 9, ReviewedAt: &reviewedAt},
	}
	fresh := []models.ChangeItem{
		{FieldKey: "city", EntityType: models.EntityBeneficiary, OldValue: "Bhopal", NewValue: "Indore", Status: models.ItemPending},
		{FieldKey: "email", EntityType: models.EntityBeneficiary, OldValue: "", NewValue: "c@d.in", Status: models.ItemPending},
	}

	t.Run("replace discards reviews", func(t *testing.T) {
		out := Rebuild(RebuildReplace, previous, fresh)
		assert.Equal(t, models.ItemPending, out[0].Status)
		assert.Equal(t, models.ItemPending, out[1].Status)
	})

	t.Run("preserve keeps reviews of identical changes", func(t *testing.T) {
		out := Rebuild(RebuildPreserve, previous, fresh)
		assert.Equal(t, models.ItemApproved, out[0].Status)
		assert.Equal(t, "ok", out[0].Note)
		assert.Equal(t, models.ItemPending, out[1].Status, "edited value needs re-review")
		assert.Equal(t, models.ItemPending, fresh[0].Status, "input not mutated")
	})
}

func TestRebuild_PreserveRereviewsMaskedValues(t *testing.T) {
	before := snapshot()
	reviewedAt := now.Add(-time.Hour)
	review := func(items []models.ChangeItem) []models.ChangeItem {
		for i := range items {
			items[i].ApplyReview(models.ItemApproved, 9, "verified document", reviewedAt)
		}
		return items
	}

	first := snapshot()
	first.AadhaarNumber = "111122223333"
	first.City = "Indore"
	first.Dependents[0].AadhaarNumber = "444455556666"
	first.Dependents = append(first.Dependents, models.DependentSnapshot{
		Identity: models.Ephemeral("t1"), FullName: "Meera", Relationship: "daughter", IsAlive: true, AadhaarNumber: "777788883333",
	})
	previous := review(Build(5, diff.Compute(before, first), now))

	second := snapshot()
	second.AadhaarNumber = "555566663333"
	second.City = "Indore"
	second.Dependents[0].AadhaarNumber = "999900006666"
	second.Dependents = append(second.Dependents, models.DependentSnapshot{
		Identity: models.Ephemeral("t1"), FullName: "Meera", Relationship: "daughter", IsAlive: true, AadhaarNumber: "121288883333",
	})
	fresh := Build(5, diff.Compute(before, second), now)

	out := Rebuild(RebuildPreserve, previous, fresh)
	byKey := map[string]models.ChangeItem{}
	for _, it := range out {
		byKey[it.FieldKey] = it
	}
	require.Equal(t, previous[1].NewValue, byKey["aadhaar_number"].NewValue, "masks collide")

	assert.Equal(t, models.ItemApproved, byKey["city"].Status)
	assert.Equal(t, models.ItemPending, byKey["aadhaar_number"].Status)
	assert.Empty(t, byKey["aadhaar_number"].Note)
	assert.Equal(t, models.ItemPending, byKey["dependent:1:aadhaar_number"].Status)
	assert.Equal(t, models.ItemPending, byKey[KeyDependentAdd].Status)
}

func TestParseRebuildPolicy(t *testing.T) {
	p, err := ParseRebuildPolicy("")
	require.NoError(t, err)
	assert.Equal(t, RebuildReplace, p)
	p, err = ParseRebuildPolicy("preserve")
	require.NoError(t, err)
	assert.Equal(t, RebuildPreserve, p)
	_, err = ParseRebuildPolicy("merge")
	assert.Error(t, err)
}
