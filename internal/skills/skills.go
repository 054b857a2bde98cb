package skills

import "fmt"

// Skill identifies one of the clinical workflows that can be active at a time.
type Skill int

const (
	None Skill = iota
	ClinicalNote
	DrugDispatch
	Scheduling
)

func (s Skill) String() string {
	switch s {
	case ClinicalNote:
		return "clinical_note"
	case DrugDispatch:
		return "drug_dispatch"
	case Scheduling:
		return "scheduling"
	default:
		return "none"
	}
}

// All lists the selectable skills, excluding None.
func All() []Skill { return []Skill{ClinicalNote, DrugDispatch, Scheduling} }

// Storage is the slice of the local store a reducer persists into. The three
// reducers use disjoint collections and never share one.
type Storage interface {
	Add(collection, id string, v interface{}) error
	Update(collection, id string, v interface{}) error
	Delete(collection, id string) error
	Get(collection, id string, v interface{}) error
	GetAll(collection string, fn func(id string, data []byte) error) error
}

// ValidationError reports a commit attempted with required fields missing.
// The draft is left untouched when it is returned.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %v", e.Missing)
}
