package httpserver

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/connorodea/medscribd/internal/noteapi"
	"github.com/connorodea/medscribd/internal/session"
	"github.com/connorodea/medscribd/internal/skills"
)

// New creates a configured Echo server instance.
func New() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	return e
}

// SkillSwitcher is the slice of the coordinator the HTTP surface needs:
// explicit skill activation and cancellation alongside the voice commands.
type SkillSwitcher interface {
	Switch(sk skills.Skill) error
	Cancel() error
}

// VoiceChanger switches the agent's synthesis voice mid-session.
type VoiceChanger interface {
	UpdateSpeak(model string) error
}

// Handlers bundles the session view and record operations behind REST routes.
type Handlers struct {
	Session      *session.Session
	Switcher     SkillSwitcher
	Voice        VoiceChanger
	Scheduling   *skills.SchedulingReducer
	DrugDispatch *skills.DrugDispatchReducer
	ClinicalNote *skills.ClinicalNoteReducer
	NoteAPI      *noteapi.Client
}

// Register mounts all routes on the server.
func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	e.GET("/api/session", h.sessionView)
	e.POST("/api/session/listen", h.startListening)
	e.POST("/api/session/sleep", h.startSleeping)
	e.POST("/api/session/skill", h.activateSkill)
	e.DELETE("/api/session/skill", h.cancelSkill)
	e.POST("/api/session/voice", h.changeVoice)

	e.GET("/api/appointments", h.listAppointments)
	e.PATCH("/api/appointments/:id", h.updateAppointment)
	e.DELETE("/api/appointments/:id", h.deleteAppointment)

	e.GET("/api/dispatches", h.listDispatches)
	e.PATCH("/api/dispatches/:id", h.updateDispatch)
	e.DELETE("/api/dispatches/:id", h.deleteDispatch)

	e.GET("/api/notes", h.listNotes)
	e.DELETE("/api/notes/:id", h.deleteNote)

	e.POST("/api/export", h.exportNote)
	e.POST("/api/uploads", h.uploadRecording)
	e.POST("/api/uploads/process", h.processUpload)
}

func (h Handlers) startListening(c echo.Context) error {
	h.Session.StartListening()
	return h.sessionView(c)
}

func (h Handlers) startSleeping(c echo.Context) error {
	h.Session.StartSleeping()
	return h.sessionView(c)
}

func (h Handlers) sessionView(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":         h.Session.Status().String(),
		"activeSkill":    h.Session.ActiveSkill().String(),
		"lastTranscript": h.Session.LastTranscript(),
	})
}

func (h Handlers) activateSkill(c echo.Context) error {
	var req struct {
		Skill string `json:"skill"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	sk, ok := parseSkill(req.Skill)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown skill " + req.Skill})
	}
	if err := h.Switcher.Switch(sk); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"activeSkill": sk.String()})
}

func (h Handlers) cancelSkill(c echo.Context) error {
	if err := h.Switcher.Cancel(); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h Handlers) changeVoice(c echo.Context) error {
	if h.Voice == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "voice agent not connected"})
	}
	var req struct {
		Model string `json:"model"`
	}
	if err := c.Bind(&req); err != nil || req.Model == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "model is required"})
	}
	if err := h.Voice.UpdateSpeak(req.Model); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"model": req.Model})
}

func parseSkill(name string) (skills.Skill, bool) {
	for _, sk := range skills.All() {
		if sk.String() == name {
			return sk, true
		}
	}
	return skills.None, false
}

func (h Handlers) listAppointments(c echo.Context) error {
	records, err := h.Scheduling.Appointments()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, records)
}

func (h Handlers) updateAppointment(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.Scheduling.UpdateStatus(c.Param("id"), req.Status); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h Handlers) deleteAppointment(c echo.Context) error {
	if err := h.Scheduling.Delete(c.Param("id")); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h Handlers) listDispatches(c echo.Context) error {
	records, err := h.DrugDispatch.Dispatches()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, records)
}

func (h Handlers) updateDispatch(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.DrugDispatch.UpdateStatus(c.Param("id"), req.Status); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h Handlers) deleteDispatch(c echo.Context) error {
	if err := h.DrugDispatch.Delete(c.Param("id")); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h Handlers) listNotes(c echo.Context) error {
	records, err := h.ClinicalNote.Notes()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, records)
}

func (h Handlers) deleteNote(c echo.Context) error {
	if err := h.ClinicalNote.Delete(c.Param("id")); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h Handlers) exportNote(c echo.Context) error {
	if h.NoteAPI == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "export service not configured"})
	}
	var req noteapi.ExportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	doc, err := h.NoteAPI.Export(c.Request().Context(), req)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	contentType := "application/octet-stream"
	switch req.Format {
	case "pdf":
		contentType = "application/pdf"
	case "md":
		contentType = "text/markdown"
	case "docx":
		contentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return c.Blob(http.StatusOK, contentType, doc)
}

func (h Handlers) uploadRecording(c echo.Context) error {
	if h.NoteAPI == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "upload service not configured"})
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing file field"})
	}
	f, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	storedAs, err := h.NoteAPI.Upload(c.Request().Context(), fileHeader.Filename, data)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"storedAs": storedAs})
}

func (h Handlers) processUpload(c echo.Context) error {
	if h.NoteAPI == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "upload service not configured"})
	}
	var req noteapi.ProcessRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	result, err := h.NoteAPI.Process(c.Request().Context(), req)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}
