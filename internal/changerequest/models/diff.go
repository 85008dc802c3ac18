package models

// FieldChange is one differing scalar attribute. Before and After are
// normalized plaintext.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// DependentAction tags a DependentChange variant for storage and display.
type DependentAction string

const (
	ActionAdd    DependentAction = "add"
	ActionUpdate DependentAction = "update"
	ActionRemove DependentAction = "remove"
)

// DependentChange is one set-level difference in the dependent roster.
// Implementations are DependentAdd, DependentUpdate and DependentRemove;
// callers switch on the concrete type.
type DependentChange interface {
	Identity() Identity
	Action() DependentAction
	isDependentChange()
}

// DependentAdd carries a dependent present only in the after roster.
type DependentAdd struct {
	After DependentSnapshot
}

// DependentUpdate carries a dependent present in both rosters with at least
// one differing attribute.
type DependentUpdate struct {
	Before  DependentSnapshot
	After   DependentSnapshot
	Changes []FieldChange
}

// DependentRemove carries a before row that is absent from, or flagged
// removed in, the after roster.
type DependentRemove struct {
	Before DependentSnapshot
}

func (c DependentAdd) Identity() Identity    { return c.After.Identity }
func (c DependentUpdate) Identity() Identity { return c.Before.Identity }
func (c DependentRemove) Identity() Identity { return c.Before.Identity }

func (DependentAdd) Action() DependentAction    { return ActionAdd }
func (DependentUpdate) Action() DependentAction { return ActionUpdate }
func (DependentRemove) Action() DependentAction { return ActionRemove }

func (DependentAdd) isDependentChange()    {}
func (DependentUpdate) isDependentChange() {}
func (DependentRemove) isDependentChange() {}

// Diff is the structural difference between two snapshots.
type Diff struct {
	Beneficiary []FieldChange
	Dependents  []DependentChange
}

// IsEmpty reports whether the diff carries no change at all.
func (d Diff) IsEmpty() bool {
	return len(d.Beneficiary) == 0 && len(d.Dependents) == 0
}

// Summary is the count projection stored as summary_diff.
type Summary struct {
	BeneficiaryFields int `json:"beneficiary_fields"`
	DependentsAdded   int `json:"dependents_added"`
	DependentsUpdated int `json:"dependents_updated"`
	DependentsRemoved int `json:"dependents_removed"`
}

func (d Diff) Summary() Summary {
	s := Summary{BeneficiaryFields: len(d.Beneficiary)}
	for _, c := range d.Dependents {
		switch c.(type) {
		case DependentAdd:
			s.DependentsAdded++
		case DependentUpdate:
			s.DependentsUpdated++
		case DependentRemove:
			s.DependentsRemoved++
		}
	}
	return s
}

// Total is the number of changed beneficiary fields plus dependent actions.
func (s Summary) Total() int {
	return s.BeneficiaryFields + s.DependentsAdded + s.DependentsUpdated + s.DependentsRemoved
}
