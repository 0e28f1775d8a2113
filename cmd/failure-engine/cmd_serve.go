package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunobozic/poll-automation-sub004/internal/httpapi"
	"github.com/brunobozic/poll-automation-sub004/internal/logging"
)

var serveFlags struct {
	listen string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the failure capture and dashboard HTTP API",
	Long: `Starts the HTTP API: POST /api/failures runs an analysis cycle,
GET /api/dashboard aggregates recent activity, GET /health reports engine
and analyzer availability, and GET /metrics exposes Prometheus metrics.`,
	RunE: runServeHTTP,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.listen, "listen", "", "Listen address (overrides config)")
}

func runServeHTTP(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := rt.cfg.ListenAddr
	if serveFlags.listen != "" {
		addr = serveFlags.listen
	}

	var opts []httpapi.Option
	if rt.llm != nil {
		opts = append(opts, httpapi.WithAnalyzerCheck(rt.llm.Ping))
	}
	api := httpapi.NewServer(rt.engine, opts...)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New("http")
	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving failure engine API", "addr", addr, "analyzer_configured", rt.llm != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
