package noteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Client talks to the upload/transcription/note-generation API and the
// export API. These are external collaborators on a plain request/response
// path, separate from the real-time agent connection.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

// New constructs a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		BaseURL:    baseURL,
	}
}

// WordTimestamp is one word-level timing in a transcript.
type WordTimestamp struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word,omitempty"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
}

// CodingSuggestion is one ICD-10 or CPT suggestion.
type CodingSuggestion struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Confidence  string `json:"confidence"`
}

// ProcessRequest asks for a structured note from a previously-uploaded file.
type ProcessRequest struct {
	StoredAs       string `json:"storedAs"`
	TemplateID     string `json:"templateId"`
	PatientContext string `json:"patientContext"`
	NoteType       string `json:"noteType"`
}

// ProcessResult carries the transcript, note and coding suggestions.
type ProcessResult struct {
	Transcript         string             `json:"transcript"`
	WordTimestamps     []WordTimestamp    `json:"word_timestamps,omitempty"`
	ClinicalNote       string             `json:"clinical_note,omitempty"`
	VerificationNeeded []string           `json:"verification_needed,omitempty"`
	ICD10              []CodingSuggestion `json:"icd10,omitempty"`
	CPT                []CodingSuggestion `json:"cpt,omitempty"`
}

// ExportRequest asks for a downloadable document from a finished note.
type ExportRequest struct {
	ClinicalNote   string   `json:"clinical_note"`
	Verification   []string `json:"verification_needed,omitempty"`
	NoteType       string   `json:"note_type"`
	PatientContext string   `json:"patient_context,omitempty"`
	Format         string   `json:"format"` // pdf, docx or md
}

// Upload sends one recorded file and returns the server-side key to process.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	if c.BaseURL == "" {
		return "", fmt.Errorf("noteapi: base url missing")
	}
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("files", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("noteapi upload error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var out struct {
		Saved []struct {
			StoredAs string `json:"storedAs"`
		} `json:"saved"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Saved) == 0 {
		return "", fmt.Errorf("noteapi upload: no saved file in response")
	}
	return out.Saved[0].StoredAs, nil
}

// Process turns an uploaded file into a transcript and structured note.
func (c *Client) Process(ctx context.Context, req ProcessRequest) (ProcessResult, error) {
	var result ProcessResult
	if err := c.postJSON(ctx, "/api/process-upload", req, &result); err != nil {
		return ProcessResult{}, err
	}
	return result, nil
}

// Export renders a finished note into the requested format and returns the
// document bytes.
func (c *Client) Export(ctx context.Context, req ExportRequest) ([]byte, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("noteapi: base url missing")
	}
	switch req.Format {
	case "pdf", "docx", "md":
	default:
		return nil, fmt.Errorf("noteapi export: unsupported format %q", req.Format)
	}
	reqBody, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/export", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("noteapi export error: status=%d body=%s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	if c.BaseURL == "" {
		return fmt.Errorf("noteapi: base url missing")
	}
	reqBody, _ := json.Marshal(in)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("noteapi error: status=%d body=%s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
