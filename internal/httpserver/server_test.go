package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/connorodea/medscribd/internal/session"
	"github.com/connorodea/medscribd/internal/skills"
	"github.com/connorodea/medscribd/internal/store"
)

type fakeVoice struct {
	models []string
}

func (f *fakeVoice) UpdateSpeak(model string) error {
	f.models = append(f.models, model)
	return nil
}

type fakeSwitcher struct {
	switched []skills.Skill
	cancels  int
}

func (f *fakeSwitcher) Switch(sk skills.Skill) error {
	f.switched = append(f.switched, sk)
	return nil
}

func (f *fakeSwitcher) Cancel() error {
	f.cancels++
	return nil
}

func newTestServer(t *testing.T) (*fakeSwitcher, *skills.SchedulingReducer, *session.Session, http.Handler) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sess := session.New()
	sw := &fakeSwitcher{}
	scheduling := skills.NewSchedulingReducer(st)

	e := New()
	Handlers{
		Session:      sess,
		Switcher:     sw,
		Scheduling:   scheduling,
		DrugDispatch: skills.NewDrugDispatchReducer(st),
		ClinicalNote: skills.NewClinicalNoteReducer(st),
	}.Register(e)
	return sw, scheduling, sess, e
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	_, _, _, h := newTestServer(t)
	w := do(h, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSessionView(t *testing.T) {
	_, _, sess, h := newTestServer(t)
	sess.Connected()
	sess.SetActiveSkill(skills.Scheduling)
	sess.ObserveTranscript("start scheduling")

	w := do(h, http.MethodGet, "/api/session", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var view map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view["status"] != "sleeping" || view["activeSkill"] != "scheduling" {
		t.Fatalf("unexpected view: %v", view)
	}
	if view["lastTranscript"] != "start scheduling" {
		t.Fatalf("expected transcript in view, got %q", view["lastTranscript"])
	}
}

func TestListenAndSleep(t *testing.T) {
	_, _, sess, h := newTestServer(t)
	sess.Connected()

	if w := do(h, http.MethodPost, "/api/session/listen", ""); w.Code != http.StatusOK {
		t.Fatalf("listen: expected 200, got %d", w.Code)
	}
	if !sess.AllowsAudio() {
		t.Fatalf("expected listening after listen action")
	}

	if w := do(h, http.MethodPost, "/api/session/sleep", ""); w.Code != http.StatusOK {
		t.Fatalf("sleep: expected 200, got %d", w.Code)
	}
	if sess.AllowsAudio() {
		t.Fatalf("expected sleeping after sleep action")
	}
}

func TestActivateSkill(t *testing.T) {
	sw, _, _, h := newTestServer(t)

	w := do(h, http.MethodPost, "/api/session/skill", `{"skill":"drug_dispatch"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(sw.switched) != 1 || sw.switched[0] != skills.DrugDispatch {
		t.Fatalf("expected drug dispatch switch, got %v", sw.switched)
	}

	if w := do(h, http.MethodPost, "/api/session/skill", `{"skill":"bogus"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown skill, got %d", w.Code)
	}

	if w := do(h, http.MethodDelete, "/api/session/skill", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for cancel, got %d", w.Code)
	}
	if sw.cancels != 1 {
		t.Fatalf("expected 1 cancel, got %d", sw.cancels)
	}
}

func TestAppointmentLifecycle(t *testing.T) {
	_, scheduling, _, h := newTestServer(t)

	hs := scheduling.Handlers()
	for fn, args := range map[string]string{
		"set_patient_name":         `{"name":"Jane Doe"}`,
		"set_mrn":                  `{"mrn":"MRN-1"}`,
		"set_appointment_type":     `{"type":"Initial"}`,
		"set_appointment_datetime": `{"datetime":"2026-09-15T10:30"}`,
	} {
		if err := hs[fn](json.RawMessage(args)); err != nil {
			t.Fatalf("%s: %v", fn, err)
		}
	}
	appt, err := scheduling.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	w := do(h, http.MethodGet, "/api/appointments", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var list []skills.Appointment
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != appt.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	if w := do(h, http.MethodPatch, "/api/appointments/"+appt.ID, `{"status":"bogus"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", w.Code)
	}
	if w := do(h, http.MethodPatch, "/api/appointments/"+appt.ID, `{"status":"completed"}`); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(h, http.MethodDelete, "/api/appointments/"+appt.ID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for delete, got %d", w.Code)
	}

	w = do(h, http.MethodGet, "/api/appointments", "")
	list = nil
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 0 {
		t.Fatalf("expected empty list after delete, got %d", len(list))
	}
}

func TestChangeVoice(t *testing.T) {
	voice := &fakeVoice{}
	e := New()
	Handlers{Session: session.New(), Switcher: &fakeSwitcher{}, Voice: voice}.Register(e)

	w := do(e, http.MethodPost, "/api/session/voice", `{"model":"aura-2-orion-en"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(voice.models) != 1 || voice.models[0] != "aura-2-orion-en" {
		t.Fatalf("expected voice change recorded, got %v", voice.models)
	}

	if w := do(e, http.MethodPost, "/api/session/voice", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without model, got %d", w.Code)
	}
	if len(voice.models) != 1 {
		t.Fatalf("rejected request must not change the voice, got %v", voice.models)
	}
}

func TestChangeVoiceUnconfigured(t *testing.T) {
	e := New()
	Handlers{Session: session.New(), Switcher: &fakeSwitcher{}}.Register(e)

	if w := do(e, http.MethodPost, "/api/session/voice", `{"model":"aura-2-orion-en"}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a connected agent, got %d", w.Code)
	}
}

func TestExportUnconfigured(t *testing.T) {
	_, _, _, h := newTestServer(t)
	w := do(h, http.MethodPost, "/api/export", `{"clinical_note":"x","note_type":"soap","format":"pdf"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without export service, got %d", w.Code)
	}
}
