package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/config"
	"docqa/internal/app"
	"docqa/internal/domain"
	"docqa/internal/usecase"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	rt, err := app.New(config.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	mgr := usecase.NewSessionManager(rt.NewSession, nil)
	t.Cleanup(mgr.Close)
	return NewApp(mgr, rt.Generator(), Options{BodyLimit: 1 << 20})
}

func doJSON(t *testing.T, a *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func createSession(t *testing.T, a *fiber.App) string {
	t.Helper()
	resp, body := doJSON(t, a, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var s SessionResponse
	require.NoError(t, json.Unmarshal(body, &s))
	require.NotEmpty(t, s.ID)
	return s.ID
}

func TestAPI_HealthCheck(t *testing.T) {
	a := newTestApp(t)
	resp, _ := doJSON(t, a, http.MethodGet, "/check/healthy", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, a, http.MethodGet, "/check/ready", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "extractive")
}

func TestAPI_IngestAskAndClear(t *testing.T) {
	a := newTestApp(t)
	id := createSession(t, a)
	base := "/api/v1/sessions/" + id

	resp, body := doJSON(t, a, http.MethodPost, base+"/documents", TextDocumentParams{
		Name: "travel.txt",
		Text: "Rail travel must be booked through the travel desk at least two weeks ahead.",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var ingest IngestResponse
	require.NoError(t, json.Unmarshal(body, &ingest))
	assert.Equal(t, 1, ingest.Chunks)

	resp, body = doJSON(t, a, http.MethodPost, base+"/ask", AskParams{Question: "How is rail travel booked?"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	var answer AnswerResponse
	require.NoError(t, json.Unmarshal(body, &answer))
	assert.True(t, answer.Grounded)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, ingest.DocumentID, answer.Citations[0].DocumentID)

	resp, body = doJSON(t, a, http.MethodGet, base+"/stats", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"document_count":1`)
	assert.Contains(t, string(body), `"chunk_count":1`)

	resp, _ = doJSON(t, a, http.MethodDelete, base+"/corpus", nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, a, http.MethodPost, base+"/ask", AskParams{Question: "How is rail travel booked?"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &answer))
	assert.False(t, answer.Grounded)
	assert.Equal(t, usecase.NoGroundingText, answer.Text)
}

func TestAPI_MultipartBatchReportsPerFileOutcome(t *testing.T) {
	a := newTestApp(t)
	id := createSession(t, a)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range map[string]string{
		"good.txt":   "Visitors must wear a badge.",
		"broken.pdf": "definitely not a pdf",
	} {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := a.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusMultiStatus, resp.StatusCode)

	var batch BatchIngestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&batch))
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	for _, r := range batch.Results {
		if r.Name == "broken.pdf" {
			require.NotNil(t, r.Error)
			assert.Equal(t, "extraction_error", r.Error.Kind)
		}
	}
}

func TestAPI_ErrorMapping(t *testing.T) {
	a := newTestApp(t)
	id := createSession(t, a)
	base := "/api/v1/sessions/" + id

	resp, body := doJSON(t, a, http.MethodPost, base+"/ask", AskParams{Question: ""})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "Question")

	resp, _ = doJSON(t, a, http.MethodPost, base+"/ask", map[string]any{"question": "q", "top_k": -1})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = doJSON(t, a, http.MethodPost, "/api/v1/sessions/missing/ask", AskParams{Question: "q"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "not_found")

	resp, _ = doJSON(t, a, http.MethodDelete, base+"/documents/nope", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, base+"/ask", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	raw, err := a.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, raw.StatusCode)
}

func TestAPI_SessionLifecycle(t *testing.T) {
	a := newTestApp(t)
	id := createSession(t, a)
	createSession(t, a)

	resp, body := doJSON(t, a, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list []SessionResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 2)

	resp, _ = doJSON(t, a, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, a, http.MethodGet, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fiber.ErrMethodNotAllowed, fiber.StatusMethodNotAllowed},
		{io.EOF, fiber.StatusInternalServerError},
		{NewError(fiber.StatusTeapot, "tea", "short and stout"), fiber.StatusTeapot},
		{fmt.Errorf("generate answer: %w", domain.ErrGenerationRejected), fiber.StatusBadGateway},
		{fmt.Errorf("embed: %w", domain.ErrEmbeddingUnavailable), fiber.StatusServiceUnavailable},
		{domain.NewExtractionError("a.pdf", domain.FormatPDF, "password-protected", nil), fiber.StatusUnprocessableEntity},
		{domain.InvalidInput("top_k must not be negative"), fiber.StatusBadRequest},
		{domain.ErrSessionClosed, fiber.StatusGone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, FromError(tt.err).Code, tt.err.Error())
	}
}
