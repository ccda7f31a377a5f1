package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"consultbook/internal/availability"
	"consultbook/internal/config"
	"consultbook/internal/metrics"
	"consultbook/internal/models"
	"consultbook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultCalendarDays = 31

// SheetsRebuilder schedules a full rewrite of the consultations sheet.
type SheetsRebuilder interface {
	EnqueueRebuild(ctx context.Context, from, to time.Time) error
}

// WorkbookWriter renders consultations as an xlsx workbook.
type WorkbookWriter interface {
	WriteTo(w io.Writer, consultations []*models.Consultation, from, to time.Time) error
}

// HTTPDeps are the services the HTTP API is built on.
type HTTPDeps struct {
	Engine          *availability.Engine
	Sessions        *service.SessionService
	Consultations   *service.ConsultationService
	Exporter        WorkbookWriter
	SheetsRebuild   SheetsRebuilder
	Checks          []ReadinessCheck
	MaxCalendarDays int
}

// HTTPServer exposes the booking calendar, visitor sessions and the manager API.
type HTTPServer struct {
	deps   HTTPDeps
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps HTTPDeps, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "http").Logger()
	if deps.MaxCalendarDays <= 0 {
		deps.MaxCalendarDays = 90
	}

	srv := &HTTPServer{deps: deps, auth: NewHTTPAuth(*cfg), logger: &l}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.HandleFunc("GET /readyz", srv.handleReadyz)

	mux.HandleFunc("GET /api/v1/booking/options", srv.handleOptions)
	mux.HandleFunc("GET /api/v1/booking/dates", srv.handleDates)
	mux.HandleFunc("GET /api/v1/booking/slots", srv.handleSlots)

	mux.HandleFunc("POST /api/v1/sessions", srv.handleStartSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", srv.handleGetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", srv.handleDeleteSession)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/date", srv.handleSelectDate)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/time", srv.handleSelectTime)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/duration", srv.handleSelectDuration)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/contact", srv.handleSetContact)
	mux.HandleFunc("POST /api/v1/sessions/{id}/submit", srv.handleSubmit)

	mux.HandleFunc("GET /api/v1/consultations", srv.handleListConsultations)
	mux.HandleFunc("GET /api/v1/consultations/export", srv.handleExportConsultations)
	mux.HandleFunc("GET /api/v1/consultations/by-reference/{reference}", srv.handleGetConsultation)
	mux.HandleFunc("PUT /api/v1/consultations/{id}/status", srv.handleUpdateStatus)
	mux.HandleFunc("POST /api/v1/consultations/sheets/rebuild", srv.handleRebuildSheet)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped router.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	results, ready := runChecks(r.Context(), s.deps.Checks)
	code := http.StatusOK
	state := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		state = "not_ready"
	}
	writeJSON(w, code, map[string]any{"status": state, "checks": results})
}

// loggingMiddleware назначает request id, пишет access log и считает запросы.
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		reqLogger := s.logger.With().Str("request_id", requestID).Logger()
		r = r.WithContext(reqLogger.WithContext(r.Context()))

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		// r.Pattern заполняет ServeMux; пустой шаблон значит 404 или отказ middleware
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		ev := reqLogger.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = reqLogger.Error()
		} else if recorder.status >= http.StatusBadRequest {
			ev = reqLogger.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
