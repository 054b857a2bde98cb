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

// Dispatch statuses.
const (
	DispatchPending    = "pending"
	DispatchDispatched = "dispatched"
)

// PrescriptionDraft is the in-progress prescription being filled by voice.
// Frequency is optional; everything else is required to dispatch.
type PrescriptionDraft struct {
	PatientName string `json:"patientName"`
	MRN         string `json:"mrn"`
	Medication  string `json:"medication"`
	Dosage      string `json:"dosage"`
	Frequency   string `json:"frequency"`
	Pharmacy    string `json:"pharmacy"`
}

// DrugDispatchRecord is a committed prescription dispatch.
type DrugDispatchRecord struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	PatientName string    `json:"patientName"`
	MRN         string    `json:"mrn"`
	Medication  string    `json:"medication"`
	Dosage      string    `json:"dosage"`
	Frequency   string    `json:"frequency"`
	Pharmacy    string    `json:"pharmacy"`
	Status      string    `json:"status"`
}

// DrugDispatchReducer owns the prescription draft and the committed list.
type DrugDispatchReducer struct {
	mu      sync.Mutex
	storage Storage
	draft   PrescriptionDraft
}

// NewDrugDispatchReducer constructs the reducer with an empty draft.
func NewDrugDispatchReducer(storage Storage) *DrugDispatchReducer {
	return &DrugDispatchReducer{storage: storage}
}

// Draft returns a snapshot of the current draft.
func (r *DrugDispatchReducer) Draft() PrescriptionDraft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draft
}

// Clear resets the draft unconditionally.
func (r *DrugDispatchReducer) Clear() {
	r.mu.Lock()
	r.draft = PrescriptionDraft{}
	r.mu.Unlock()
}

// Commit validates required fields, persists a new DrugDispatchRecord with
// status pending and resets the draft. On failure the draft is untouched.
func (r *DrugDispatchReducer) Commit() (DrugDispatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"patientName", r.draft.PatientName},
		{"mrn", r.draft.MRN},
		{"medication", r.draft.Medication},
		{"dosage", r.draft.Dosage},
		{"pharmacy", r.draft.Pharmacy},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return DrugDispatchRecord{}, &ValidationError{Missing: missing}
	}

	rec := DrugDispatchRecord{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		PatientName: r.draft.PatientName,
		MRN:         r.draft.MRN,
		Medication:  r.draft.Medication,
		Dosage:      r.draft.Dosage,
		Frequency:   r.draft.Frequency,
		Pharmacy:    r.draft.Pharmacy,
		Status:      DispatchPending,
	}
	if err := r.storage.Add(store.DrugDispatch, rec.ID, rec); err != nil {
		return DrugDispatchRecord{}, fmt.Errorf("drugdispatch: persist: %w", err)
	}
	r.draft = PrescriptionDraft{}
	return rec, nil
}

// Dispatches lists committed records newest-first.
func (r *DrugDispatchReducer) Dispatches() ([]DrugDispatchRecord, error) {
	var out []DrugDispatchRecord
	err := r.storage.GetAll(store.DrugDispatch, func(id string, data []byte) error {
		var rec DrugDispatchRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode dispatch %s: %w", id, err)
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

// UpdateStatus toggles a record between pending and dispatched, preserving
// its identifier and creation timestamp.
func (r *DrugDispatchReducer) UpdateStatus(id, status string) error {
	switch status {
	case DispatchPending, DispatchDispatched:
	default:
		return fmt.Errorf("drugdispatch: invalid status %q", status)
	}
	var rec DrugDispatchRecord
	if err := r.storage.Get(store.DrugDispatch, id, &rec); err != nil {
		return err
	}
	rec.Status = status
	return r.storage.Update(store.DrugDispatch, id, rec)
}

// Delete removes a committed record by id.
func (r *DrugDispatchReducer) Delete(id string) error {
	return r.storage.Delete(store.DrugDispatch, id)
}

func (r *DrugDispatchReducer) setField(mutate func(d *PrescriptionDraft)) {
	r.mu.Lock()
	mutate(&r.draft)
	r.mu.Unlock()
}

func (r *DrugDispatchReducer) stringSetter(field string, assign func(d *PrescriptionDraft, v string)) router.Handler {
	return func(args json.RawMessage) error {
		var p map[string]string
		if err := json.Unmarshal(args, &p); err != nil {
			return err
		}
		v := strings.TrimSpace(p[field])
		if v == "" {
			return fmt.Errorf("%s is required", field)
		}
		r.setField(func(d *PrescriptionDraft) { assign(d, v) })
		return nil
	}
}

// Handlers is the drug-dispatch function surface.
func (r *DrugDispatchReducer) Handlers() router.HandlerSet {
	return router.HandlerSet{
		"set_patient_name": r.stringSetter("name", func(d *PrescriptionDraft, v string) { d.PatientName = v }),
		"set_mrn":          r.stringSetter("mrn", func(d *PrescriptionDraft, v string) { d.MRN = v }),
		"set_medication":   r.stringSetter("medication", func(d *PrescriptionDraft, v string) { d.Medication = v }),
		"set_dosage":       r.stringSetter("dosage", func(d *PrescriptionDraft, v string) { d.Dosage = v }),
		"set_frequency":    r.stringSetter("frequency", func(d *PrescriptionDraft, v string) { d.Frequency = v }),
		"set_pharmacy":     r.stringSetter("pharmacy", func(d *PrescriptionDraft, v string) { d.Pharmacy = v }),
		"dispatch_prescription": func(args json.RawMessage) error {
			_, err := r.Commit()
			return err
		},
		"clear_prescription": func(args json.RawMessage) error {
			r.Clear()
			return nil
		},
	}
}
