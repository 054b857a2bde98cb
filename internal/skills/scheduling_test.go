package skills

import (
	"errors"
	"testing"
)

func TestSchedulingCommitMissingFields(t *testing.T) {
	r := NewSchedulingReducer(newMemStorage())

	_, err := r.Commit()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Missing) != 4 {
		t.Fatalf("expected 4 missing fields, got %v", verr.Missing)
	}
	// Draft must be untouched after a failed commit.
	if d := r.Draft(); d != emptyAppointmentDraft() {
		t.Fatalf("draft changed after failed commit: %+v", d)
	}
}

func TestSchedulingHandlersFillDraftAndCommit(t *testing.T) {
	st := newMemStorage()
	r := NewSchedulingReducer(st)
	h := r.Handlers()

	steps := []struct {
		fn   string
		args string
	}{
		{"set_patient_name", `{"name":"Jane Doe"}`},
		{"set_mrn", `{"mrn":"MRN-1001"}`},
		{"set_appointment_type", `{"type":"Follow-up"}`},
		{"set_appointment_datetime", `{"datetime":"2026-09-15T10:30:00"}`},
		{"set_appointment_notes", `{"notes":"bring prior labs"}`},
	}
	for _, s := range steps {
		if err := h[s.fn](raw(s.args)); err != nil {
			t.Fatalf("%s failed: %v", s.fn, err)
		}
	}

	if err := h["schedule_appointment"](raw(`{"confirm":true}`)); err != nil {
		t.Fatalf("schedule_appointment failed: %v", err)
	}

	// Draft resets after a successful commit.
	if d := r.Draft(); d != emptyAppointmentDraft() {
		t.Fatalf("draft not reset after commit: %+v", d)
	}

	appts, err := r.Appointments()
	if err != nil {
		t.Fatalf("list appointments: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(appts))
	}
	a := appts[0]
	if a.PatientName != "Jane Doe" || a.MRN != "MRN-1001" || a.Type != "Follow-up" {
		t.Fatalf("unexpected appointment: %+v", a)
	}
	if a.Status != AppointmentScheduled {
		t.Fatalf("expected status %q, got %q", AppointmentScheduled, a.Status)
	}
	if a.Duration != MinAppointmentMinutes {
		t.Fatalf("expected default duration %d, got %d", MinAppointmentMinutes, a.Duration)
	}
	if a.ID == "" || a.CreatedAt.IsZero() {
		t.Fatalf("missing id or createdAt: %+v", a)
	}
}

func TestSchedulingDurationClamp(t *testing.T) {
	r := NewSchedulingReducer(newMemStorage())
	h := r.Handlers()

	if err := h["set_appointment_duration"](raw(`{"duration":15}`)); err != nil {
		t.Fatalf("set duration 15: %v", err)
	}
	if d := r.Draft().Duration; d != 30 {
		t.Fatalf("expected 15 clamped to 30, got %d", d)
	}

	if err := h["set_appointment_duration"](raw(`{"duration":45}`)); err != nil {
		t.Fatalf("set duration 45: %v", err)
	}
	if d := r.Draft().Duration; d != 45 {
		t.Fatalf("expected 45, got %d", d)
	}

	if err := h["set_appointment_duration"](raw(`{"duration":0}`)); err == nil {
		t.Fatalf("expected error for non-positive duration")
	}
}

func TestSchedulingCommitFailureKeepsDraft(t *testing.T) {
	st := newMemStorage()
	st.failAdd = true
	r := NewSchedulingReducer(st)
	h := r.Handlers()

	_ = h["set_patient_name"](raw(`{"name":"Jane Doe"}`))
	_ = h["set_mrn"](raw(`{"mrn":"MRN-1001"}`))
	_ = h["set_appointment_type"](raw(`{"type":"Initial"}`))
	_ = h["set_appointment_datetime"](raw(`{"datetime":"2026-09-15T10:30"}`))

	before := r.Draft()
	if _, err := r.Commit(); err == nil {
		t.Fatalf("expected commit to fail with storage down")
	}
	if r.Draft() != before {
		t.Fatalf("draft changed after failed persist")
	}
}

func TestSchedulingListNewestFirst(t *testing.T) {
	r := NewSchedulingReducer(newMemStorage())
	h := r.Handlers()

	commit := func(datetime string) {
		t.Helper()
		_ = h["set_patient_name"](raw(`{"name":"Jane Doe"}`))
		_ = h["set_mrn"](raw(`{"mrn":"MRN-1001"}`))
		_ = h["set_appointment_type"](raw(`{"type":"Follow-up"}`))
		_ = h["set_appointment_datetime"](raw(`{"datetime":"` + datetime + `"}`))
		if _, err := r.Commit(); err != nil {
			t.Fatalf("commit %s: %v", datetime, err)
		}
	}
	commit("2026-01-02T10:00")
	commit("2026-03-02T10:00")

	appts, err := r.Appointments()
	if err != nil {
		t.Fatalf("list appointments: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(appts))
	}
	if !appts[0].Timestamp.After(appts[1].Timestamp) {
		t.Fatalf("expected newest first, got %v then %v", appts[0].Timestamp, appts[1].Timestamp)
	}
}

func TestSchedulingUpdateStatus(t *testing.T) {
	r := NewSchedulingReducer(newMemStorage())
	h := r.Handlers()
	_ = h["set_patient_name"](raw(`{"name":"Jane Doe"}`))
	_ = h["set_mrn"](raw(`{"mrn":"MRN-1001"}`))
	_ = h["set_appointment_type"](raw(`{"type":"Initial"}`))
	_ = h["set_appointment_datetime"](raw(`{"datetime":"2026-09-15T10:30"}`))
	appt, err := r.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := r.UpdateStatus(appt.ID, "done"); err == nil {
		t.Fatalf("expected error for invalid status")
	}
	if err := r.UpdateStatus(appt.ID, AppointmentCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}

	appts, _ := r.Appointments()
	if appts[0].Status != AppointmentCompleted {
		t.Fatalf("expected status completed, got %q", appts[0].Status)
	}
	if appts[0].ID != appt.ID || !appts[0].CreatedAt.Equal(appt.CreatedAt) {
		t.Fatalf("status update must preserve id and createdAt")
	}
}

func TestSchedulingClearIsIdempotent(t *testing.T) {
	r := NewSchedulingReducer(newMemStorage())
	h := r.Handlers()
	_ = h["set_patient_name"](raw(`{"name":"Jane Doe"}`))

	r.Clear()
	r.Clear()
	if d := r.Draft(); d != emptyAppointmentDraft() {
		t.Fatalf("expected empty draft, got %+v", d)
	}
}

func TestSchedulingRejectsBadDatetime(t *testing.T) {
	r := NewSchedulingReducer(newMemStorage())
	h := r.Handlers()
	if err := h["set_appointment_datetime"](raw(`{"datetime":"next tuesday"}`)); err == nil {
		t.Fatalf("expected error for unparseable datetime")
	}
	if d := r.Draft().Datetime; d != "" {
		t.Fatalf("draft datetime set despite error: %q", d)
	}
}
