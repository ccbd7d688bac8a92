package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"docqa/internal/logging"
	"docqa/internal/port"
	"docqa/internal/usecase"
)

// Options configures the HTTP shell.
type Options struct {
	BodyLimit      int
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewApp builds the fiber application with every route registered.
func NewApp(sessions *usecase.SessionManager, generator port.Generator, opts Options) *fiber.App {
	logger := logging.OrDiscard(opts.Logger)
	cfg := fiber.Config{
		ErrorHandler:          NewErrorHandler(logger),
		DisableStartupMessage: true,
	}
	if opts.BodyLimit > 0 {
		cfg.BodyLimit = opts.BodyLimit
	}

	var (
		app            = fiber.New(cfg)
		checkHandler   = NewCheckHandler(generator)
		sessionHandler = NewSessionHandler(sessions, opts.RequestTimeout)
		check          = app.Group("/check")
		apiv1          = app.Group("/api/v1")
		session        = apiv1.Group("/sessions/:id")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	check.Get("/ready", checkHandler.HandleReady)

	apiv1.Post("/sessions", sessionHandler.HandleCreateSession)
	apiv1.Get("/sessions", sessionHandler.HandleListSessions)
	apiv1.Get("/sessions/:id", sessionHandler.HandleGetSession)
	apiv1.Delete("/sessions/:id", sessionHandler.HandleDeleteSession)

	session.Post("/documents", sessionHandler.HandleUpload)
	session.Get("/documents", sessionHandler.HandleListDocuments)
	session.Delete("/documents/:docID", sessionHandler.HandleDeleteDocument)
	session.Post("/ask", sessionHandler.HandleAsk)
	session.Post("/retrieve", sessionHandler.HandleRetrieve)
	session.Get("/stats", sessionHandler.HandleStats)
	session.Delete("/corpus", sessionHandler.HandleClearCorpus)

	return app
}

// Server runs the HTTP shell until stopped.
type Server struct {
	listenAddr string
	app        *fiber.App
	sessions   *usecase.SessionManager
	logger     *slog.Logger
}

func NewServer(addr string, sessions *usecase.SessionManager, generator port.Generator, opts Options) *Server {
	return &Server{
		listenAddr: addr,
		app:        NewApp(sessions, generator, opts),
		sessions:   sessions,
		logger:     logging.OrDiscard(opts.Logger),
	}
}

// Run blocks serving requests.
func (s *Server) Run() error {
	s.logger.Info("server listening", "addr", s.listenAddr)
	return s.app.Listen(s.listenAddr)
}

// Stop drains in-flight requests and destroys every session.
func (s *Server) Stop(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.sessions.Close()
	s.logger.Info("server stopped")
	return err
}
