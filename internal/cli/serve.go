package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"docqa/internal/api"
	"docqa/internal/usecase"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question-answering HTTP API",
	Long: `Start an HTTP server exposing sessions, document upload, questions and
corpus statistics. Sessions live in memory until deleted or the server stops.

Examples:
  docqa serve
  docqa serve --addr :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config()
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	sessions := usecase.NewSessionManager(rt.NewSession, logger)
	server := api.NewServer(addr, sessions, rt.Generator(), api.Options{
		BodyLimit: cfg.Server.BodyLimitMB << 20,
		// Embedding and generation each get the full retry allowance.
		RequestTimeout: 2 * time.Duration(cfg.Resilience.MaxAttempts) * cfg.CallTimeout(),
		Logger:         logger,
	})

	errc := make(chan error, 1)
	go func() {
		errc <- server.Run()
	}()

	select {
	case err := <-errc:
		sessions.Close()
		return err
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
