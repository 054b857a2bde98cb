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

// MinAppointmentMinutes is the floor for appointment duration. Shorter
// requests are clamped, not rejected.
const MinAppointmentMinutes = 30

// Appointment statuses.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
)

// AppointmentDraft is the in-progress appointment being filled by voice.
type AppointmentDraft struct {
	PatientName string `json:"patientName"`
	MRN         string `json:"mrn"`
	Type        string `json:"type"`
	Datetime    string `json:"datetime"`
	Duration    int    `json:"duration"`
	Notes       string `json:"notes"`
}

// Appointment is a committed, identifier-bearing scheduling record.
type Appointment struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	PatientName string    `json:"patientName"`
	MRN         string    `json:"mrn"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Duration    int       `json:"duration"`
	Notes       string    `json:"notes"`
	Status      string    `json:"status"`
}

// SchedulingReducer owns the appointment draft and the committed list.
type SchedulingReducer struct {
	mu      sync.Mutex
	storage Storage
	draft   AppointmentDraft
}

// NewSchedulingReducer constructs the reducer with an empty draft.
func NewSchedulingReducer(storage Storage) *SchedulingReducer {
	return &SchedulingReducer{storage: storage, draft: emptyAppointmentDraft()}
}

func emptyAppointmentDraft() AppointmentDraft {
	return AppointmentDraft{Duration: MinAppointmentMinutes}
}

// Draft returns a snapshot of the current draft.
func (r *SchedulingReducer) Draft() AppointmentDraft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draft
}

// Clear resets the draft unconditionally. Calling it twice is the same as once.
func (r *SchedulingReducer) Clear() {
	r.mu.Lock()
	r.draft = emptyAppointmentDraft()
	r.mu.Unlock()
}

// Commit validates required fields, persists a new Appointment and resets the
// draft. On failure the draft is left exactly as it was.
func (r *SchedulingReducer) Commit() (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var missing []string
	if strings.TrimSpace(r.draft.PatientName) == "" {
		missing = append(missing, "patientName")
	}
	if strings.TrimSpace(r.draft.MRN) == "" {
		missing = append(missing, "mrn")
	}
	if strings.TrimSpace(r.draft.Type) == "" {
		missing = append(missing, "type")
	}
	if strings.TrimSpace(r.draft.Datetime) == "" {
		missing = append(missing, "datetime")
	}
	if len(missing) > 0 {
		return Appointment{}, &ValidationError{Missing: missing}
	}

	ts, err := parseDatetime(r.draft.Datetime)
	if err != nil {
		return Appointment{}, fmt.Errorf("scheduling: %w", err)
	}
	duration := r.draft.Duration
	if duration < MinAppointmentMinutes {
		duration = MinAppointmentMinutes
	}

	appt := Appointment{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		PatientName: r.draft.PatientName,
		MRN:         r.draft.MRN,
		Type:        r.draft.Type,
		Timestamp:   ts,
		Duration:    duration,
		Notes:       r.draft.Notes,
		Status:      AppointmentScheduled,
	}
	if err := r.storage.Add(store.Appointments, appt.ID, appt); err != nil {
		return Appointment{}, fmt.Errorf("scheduling: persist: %w", err)
	}
	r.draft = emptyAppointmentDraft()
	return appt, nil
}

// Appointments lists committed appointments newest-first.
func (r *SchedulingReducer) Appointments() ([]Appointment, error) {
	var out []Appointment
	err := r.storage.GetAll(store.Appointments, func(id string, data []byte) error {
		var a Appointment
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("decode appointment %s: %w", id, err)
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// UpdateStatus changes a committed appointment's status, preserving its
// identifier and creation timestamp.
func (r *SchedulingReducer) UpdateStatus(id, status string) error {
	switch status {
	case AppointmentScheduled, AppointmentCompleted, AppointmentCancelled:
	default:
		return fmt.Errorf("scheduling: invalid status %q", status)
	}
	var a Appointment
	if err := r.storage.Get(store.Appointments, id, &a); err != nil {
		return err
	}
	a.Status = status
	return r.storage.Update(store.Appointments, id, a)
}

// Delete removes a committed appointment by id.
func (r *SchedulingReducer) Delete(id string) error {
	return r.storage.Delete(store.Appointments, id)
}

func (r *SchedulingReducer) setField(mutate func(d *AppointmentDraft)) {
	r.mu.Lock()
	mutate(&r.draft)
	r.mu.Unlock()
}

// Handlers is the scheduling function surface. Voice and manual edits go
// through the same setters, so they are indistinguishable to the reducer.
func (r *SchedulingReducer) Handlers() router.HandlerSet {
	return router.HandlerSet{
		"set_patient_name": func(args json.RawMessage) error {
			var p struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return err
			}
			if strings.TrimSpace(p.Name) == "" {
				return fmt.Errorf("name is required")
			}
			r.setField(func(d *AppointmentDraft) { d.PatientName = p.Name })
			return nil
		},
		"set_mrn": func(args json.RawMessage) error {
			var p struct {
				MRN string `json:"mrn"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return err
			}
			if strings.TrimSpace(p.MRN) == "" {
				return fmt.Errorf("mrn is required")
			}
			r.setField(func(d *AppointmentDraft) { d.MRN = p.MRN })
			return nil
		},
		"set_appointment_type": func(args json.RawMessage) error {
			var p struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return err
			}
			if strings.TrimSpace(p.Type) == "" {
				return fmt.Errorf("type is required")
			}
			r.setField(func(d *AppointmentDraft) { d.Type = p.Type })
			return nil
		},
		"set_appointment_datetime": func(args json.RawMessage) error {
			var p struct {
				Datetime string `json:"datetime"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return err
			}
			if _, err := parseDatetime(p.Datetime); err != nil {
				return err
			}
			r.setField(func(d *AppointmentDraft) { d.Datetime = p.Datetime })
			return nil
		},
		"set_appointment_duration": func(args json.RawMessage) error {
			var p struct {
				Duration int `json:"duration"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return err
			}
			if p.Duration <= 0 {
				return fmt.Errorf("duration must be positive")
			}
			if p.Duration < MinAppointmentMinutes {
				p.Duration = MinAppointmentMinutes
			}
			r.setField(func(d *AppointmentDraft) { d.Duration = p.Duration })
			return nil
		},
		"set_appointment_notes": func(args json.RawMessage) error {
			var p struct {
				Notes string `json:"notes"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return err
			}
			r.setField(func(d *AppointmentDraft) { d.Notes = p.Notes })
			return nil
		},
		"schedule_appointment": func(args json.RawMessage) error {
			// confirm flag is a dummy parameter
			_, err := r.Commit()
			return err
		},
		"clear_appointment": func(args json.RawMessage) error {
			r.Clear()
			return nil
		},
	}
}

// parseDatetime accepts the formats the agent emits for appointment times.
func parseDatetime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable datetime %q", s)
}
