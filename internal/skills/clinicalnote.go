package skills

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/connorodea/medscribd/internal/router"
	"github.com/connorodea/medscribd/internal/store"
)

// NoteSaved is the status of every committed clinical note.
const NoteSaved = "saved"

// NoteDraft is the in-progress clinical note being filled by voice.
type NoteDraft struct {
	PatientName     string `json:"patientName"`
	MRN             string `json:"mrn"`
	DateOfBirth     string `json:"dateOfBirth"`
	Gender          string `json:"gender"`
	VisitDate       string `json:"visitDate"`
	VisitTime       string `json:"visitTime"`
	VisitType       string `json:"visitType"`
	Provider        string `json:"provider"`
	ChiefComplaint  string `json:"chiefComplaint"`
	PresentIllness  string `json:"presentIllness"`
	ReviewOfSystems string `json:"reviewOfSystems"`
	PhysicalExam    string `json:"physicalExam"`
	Assessment      string `json:"assessment"`
	Plan            string `json:"plan"`
	OtherNotes      string `json:"otherNotes"`
}

// ClinicalNoteRecord is a saved clinical note.
type ClinicalNoteRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	NoteDraft
	Status string `json:"status"`
}

// ClinicalNoteReducer owns the note draft and the saved list.
type ClinicalNoteReducer struct {
	mu      sync.Mutex
	storage Storage
	draft   NoteDraft
}

// NewClinicalNoteReducer constructs the reducer with an empty draft.
func NewClinicalNoteReducer(storage Storage) *ClinicalNoteReducer {
	return &ClinicalNoteReducer{storage: storage}
}

// Draft returns a snapshot of the current draft.
func (r *ClinicalNoteReducer) Draft() NoteDraft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draft
}

// Clear resets the draft unconditionally.
func (r *ClinicalNoteReducer) Clear() {
	r.mu.Lock()
	r.draft = NoteDraft{}
	r.mu.Unlock()
}

// Commit validates patient identity plus the chief complaint, persists a new
// ClinicalNoteRecord and resets the draft. On failure the draft is untouched.
func (r *ClinicalNoteReducer) Commit() (ClinicalNoteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var missing []string
	if strings.TrimSpace(r.draft.PatientName) == "" {
		missing = append(missing, "patientName")
	}
	if strings.TrimSpace(r.draft.MRN) == "" {
		missing = append(missing, "mrn")
	}
	if strings.TrimSpace(r.draft.ChiefComplaint) == "" {
		missing = append(missing, "chiefComplaint")
	}
	if len(missing) > 0 {
		return ClinicalNoteRecord{}, &ValidationError{Missing: missing}
	}

	rec := ClinicalNoteRecord{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		NoteDraft: r.draft,
		Status:    NoteSaved,
	}
	if err := r.storage.Add(store.ClinicalNotes, rec.ID, rec); err != nil {
		return ClinicalNoteRecord{}, fmt.Errorf("clinicalnote: persist: %w", err)
	}
	r.draft = NoteDraft{}
	return rec, nil
}

// Notes lists saved notes newest-first.
func (r *ClinicalNoteReducer) Notes() ([]ClinicalNoteRecord, error) {
	var out []ClinicalNoteRecord
	err := r.storage.GetAll(store.ClinicalNotes, func(id string, data []byte) error {
		var rec ClinicalNoteRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode note %s: %w", id, err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a saved note by id.
func (r *ClinicalNoteReducer) Delete(id string) error {
	return r.storage.Delete(store.ClinicalNotes, id)
}

func (r *ClinicalNoteReducer) setField(mutate func(d *NoteDraft)) {
	r.mu.Lock()
	mutate(&r.draft)
	r.mu.Unlock()
}

func (r *ClinicalNoteReducer) stringSetter(field string, assign func(d *NoteDraft, v string)) router.Handler {
	return func(args json.RawMessage) error {
		var p map[string]string
		if err := json.Unmarshal(args, &p); err != nil {
			return err
		}
		v := strings.TrimSpace(p[field])
		if v == "" {
			return fmt.Errorf("%s is required", field)
		}
		r.setField(func(d *NoteDraft) { assign(d, v) })
		return nil
	}
}

// Handlers is the clinical-note function surface.
func (r *ClinicalNoteReducer) Handlers() router.HandlerSet {
	return router.HandlerSet{
		"set_patient_name":      r.stringSetter("name", func(d *NoteDraft, v string) { d.PatientName = v }),
		"set_mrn":               r.stringSetter("mrn", func(d *NoteDraft, v string) { d.MRN = v }),
		"set_date_of_birth":     r.stringSetter("dateOfBirth", func(d *NoteDraft, v string) { d.DateOfBirth = v }),
		"set_gender":            r.stringSetter("gender", func(d *NoteDraft, v string) { d.Gender = v }),
		"set_visit_date":        r.stringSetter("date", func(d *NoteDraft, v string) { d.VisitDate = v }),
		"set_visit_time":        r.stringSetter("time", func(d *NoteDraft, v string) { d.VisitTime = v }),
		"set_visit_type":        r.stringSetter("visitType", func(d *NoteDraft, v string) { d.VisitType = v }),
		"set_provider_name":     r.stringSetter("provider", func(d *NoteDraft, v string) { d.Provider = v }),
		"set_chief_complaint":   r.stringSetter("complaint", func(d *NoteDraft, v string) { d.ChiefComplaint = v }),
		"set_present_illness":   r.stringSetter("illness", func(d *NoteDraft, v string) { d.PresentIllness = v }),
		"set_review_of_systems": r.stringSetter("systems", func(d *NoteDraft, v string) { d.ReviewOfSystems = v }),
		"set_physical_exam":     r.stringSetter("exam", func(d *NoteDraft, v string) { d.PhysicalExam = v }),
		"set_assessment":        r.stringSetter("assessment", func(d *NoteDraft, v string) { d.Assessment = v }),
		"set_plan":              r.stringSetter("plan", func(d *NoteDraft, v string) { d.Plan = v }),
		"other_notes":           r.stringSetter("notes", func(d *NoteDraft, v string) { d.OtherNotes = v }),
		"save_note": func(args json.RawMessage) error {
			_, err := r.Commit()
			return err
		},
		"clear_note": func(args json.RawMessage) error {
			r.Clear()
			return nil
		},
	}
}
