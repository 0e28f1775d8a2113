// Package httpapi is the REST surface over the failure engine: capture,
// dashboard, health, and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunobozic/poll-automation-sub004/internal/engine"
	"github.com/brunobozic/poll-automation-sub004/internal/failure"
	"github.com/brunobozic/poll-automation-sub004/internal/logging"
	"github.com/brunobozic/poll-automation-sub004/internal/store"
)

// maxBodyBytes bounds capture payloads; page snapshots can be large but a
// context should never reach tens of megabytes.
const maxBodyBytes = 16 << 20

// AnalyzerCheck probes the analyzer service for the health endpoint. A nil
// check means no analyzer is configured and the fallback classifies
// everything.
type AnalyzerCheck func(ctx context.Context) error

// Server wires the engine behind a gorilla/mux router.
type Server struct {
	engine        *engine.Engine
	router        *mux.Router
	logger        *slog.Logger
	analyzerCheck AnalyzerCheck
}

// Option configures a Server.
type Option func(*Server)

// WithAnalyzerCheck registers an analyzer availability probe for /health.
func WithAnalyzerCheck(check AnalyzerCheck) Option {
	return func(s *Server) { s.analyzerCheck = check }
}

// NewServer builds the REST surface over the engine.
func NewServer(e *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine: e,
		router: mux.NewRouter(),
		logger: logging.New("httpapi"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/failures", s.postFailure).Methods("POST")
	s.router.HandleFunc("/api/dashboard", s.getDashboard).Methods("GET")
	s.router.HandleFunc("/health", s.getHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// postFailure handles POST /api/failures: one capture context in, one
// cycle summary out.
func (s *Server) postFailure(w http.ResponseWriter, r *http.Request) {
	var fctx failure.FailureContext
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&fctx); err != nil {
		respondError(w, http.StatusBadRequest, "invalid failure context: "+err.Error())
		return
	}
	if !fctx.FailureType.Valid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown failure_type %q", fctx.FailureType))
		return
	}
	if fctx.ErrorMessage == "" && fctx.FailedSelector == "" {
		respondError(w, http.StatusBadRequest, "failure context carries neither error_message nor failed_selector")
		return
	}

	sum, err := s.engine.CaptureAndAnalyzeFailure(r.Context(), &fctx)
	if err != nil {
		if errors.Is(err, store.ErrPersistence) {
			s.logger.Error("capture failed", "error", err)
			respondError(w, http.StatusServiceUnavailable, "scenario persistence failure")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, sum)
}

// getDashboard handles GET /api/dashboard?window=7d.
func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	window := engine.DefaultDashboardWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := parseWindow(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		window = d
	}
	d, err := s.engine.GetFailureDashboard(r.Context(), window)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type healthResponse struct {
	Status   string       `json:"status"`
	Analyzer string       `json:"analyzer"`
	Stats    *store.Stats `json:"stats,omitempty"`
}

// getHealth handles GET /health. The service is healthy as long as the
// store answers; a down analyzer only degrades classification quality.
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Analyzer: "not_configured"}
	if s.analyzerCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.analyzerCheck(ctx); err != nil {
			resp.Analyzer = "unavailable"
		} else {
			resp.Analyzer = "available"
		}
	}
	stats, err := s.engine.Stats()
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Analyzer: resp.Analyzer})
		return
	}
	resp.Stats = stats
	respondJSON(w, http.StatusOK, resp)
}

// parseWindow accepts Go durations ("168h") plus a day suffix ("7d").
func parseWindow(raw string) (time.Duration, error) {
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid window %q", raw)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid window %q", raw)
	}
	return d, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
