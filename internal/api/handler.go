package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"docqa/internal/domain"
	"docqa/internal/port"
	"docqa/internal/usecase"
)

// SessionHandler serves the session, document and question endpoints.
type SessionHandler struct {
	sessions *usecase.SessionManager
	timeout  time.Duration
}

// NewSessionHandler creates a handler. timeout bounds each ask or ingest
// request; zero leaves them unbounded.
func NewSessionHandler(sessions *usecase.SessionManager, timeout time.Duration) *SessionHandler {
	return &SessionHandler{sessions: sessions, timeout: timeout}
}

func (h *SessionHandler) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx := c.UserContext()
	if h.timeout > 0 {
		return context.WithTimeout(ctx, h.timeout)
	}
	return context.WithCancel(ctx)
}

func (h *SessionHandler) session(c *fiber.Ctx) (*usecase.Session, error) {
	return h.sessions.Get(c.Params("id"))
}

func sessionResponse(s *usecase.Session) SessionResponse {
	stats := s.CorpusStats()
	return SessionResponse{
		ID:        s.ID(),
		CreatedAt: s.CreatedAt(),
		Documents: stats.DocumentCount,
		Chunks:    stats.ChunkCount,
	}
}

func (h *SessionHandler) HandleCreateSession(c *fiber.Ctx) error {
	s, err := h.sessions.Create()
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sessionResponse(s))
}

func (h *SessionHandler) HandleListSessions(c *fiber.Ctx) error {
	sessions := h.sessions.List()
	out := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = sessionResponse(s)
	}
	return c.JSON(out)
}

func (h *SessionHandler) HandleGetSession(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(sessionResponse(s))
}

func (h *SessionHandler) HandleDeleteSession(c *fiber.Ctx) error {
	if err := h.sessions.Destroy(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleUpload ingests either multipart files (fields "file" or "files") or a
// JSON text document.
func (h *SessionHandler) HandleUpload(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return h.uploadFiles(ctx, c, s)
	}

	var params TextDocumentParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	res, err := s.IngestText(ctx, params.Name, params.Text)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(newIngestResponse(params.Name, res, nil))
}

func (h *SessionHandler) uploadFiles(ctx context.Context, c *fiber.Ctx, s *usecase.Session) error {
	form, err := c.MultipartForm()
	if err != nil {
		return ErrBadRequest()
	}
	var headers []*multipart.FileHeader
	headers = append(headers, form.File["file"]...)
	headers = append(headers, form.File["files"]...)
	if len(headers) == 0 {
		return NewValidationError(map[string]string{"file": "failed on 'required' tag"})
	}

	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		format, _ := domain.FormatFromName(fh.Filename)
		uploads = append(uploads, domain.Upload{Name: fh.Filename, Format: format, Data: data})
	}

	outcomes := s.IngestBatch(ctx, uploads)
	resp := BatchIngestResponse{Results: make([]IngestResponse, len(outcomes))}
	for i, o := range outcomes {
		resp.Results[i] = newIngestResponse(o.Name, o.Result, o.Err)
		if o.Err != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}

	status := fiber.StatusCreated
	switch {
	case resp.Succeeded == 0 && len(outcomes) == 1:
		return outcomes[0].Err
	case resp.Failed > 0:
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(resp)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *SessionHandler) HandleListDocuments(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(s.Documents())
}

func (h *SessionHandler) HandleDeleteDocument(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	if err := s.RemoveDocument(c.Params("docID")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) HandleAsk(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var params AskParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	answer, err := s.Ask(ctx, params.Question, params.TopK)
	if err != nil {
		return err
	}
	return c.JSON(AnswerResponse{Answer: answer, Timestamp: time.Now().UTC()})
}

func (h *SessionHandler) HandleRetrieve(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var params RetrieveParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	chunks, err := s.Retrieve(ctx, params.Query, params.TopK)
	if err != nil {
		return err
	}
	return c.JSON(usecase.ToResults(chunks))
}

func (h *SessionHandler) HandleStats(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(s.CorpusStats())
}

func (h *SessionHandler) HandleClearCorpus(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	if err := s.ClearCorpus(); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CheckHandler serves liveness and readiness probes.
type CheckHandler struct {
	generator port.Generator
}

func NewCheckHandler(generator port.Generator) *CheckHandler {
	return &CheckHandler{generator: generator}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// HandleReady pings the generator when it supports it.
func (h *CheckHandler) HandleReady(c *fiber.Ctx) error {
	p, ok := h.generator.(port.Pinger)
	if !ok {
		return c.JSON(fiber.Map{"status": "ready", "model": h.generator.ModelName()})
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return NewError(fiber.StatusServiceUnavailable, "generation_unavailable", err.Error())
	}
	return c.JSON(fiber.Map{"status": "ready", "model": h.generator.ModelName()})
}
