// Package api serves the booking form and the staff back office over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/export"
	"salonbook/internal/metrics"
	"salonbook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

type ctxKey struct{}

// HTTPServer exposes the public booking endpoints and the admin API.
type HTTPServer struct {
	cfg          config.APIConfig
	reservations *service.ReservationService
	catalog      *service.CatalogService
	exporter     *export.Exporter
	auth         *HTTPAuth
	server       *http.Server
	logger       *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	reservations *service.ReservationService,
	catalog *service.CatalogService,
	exporter *export.Exporter,
	logger *zerolog.Logger,
) *HTTPServer {
	l := logger.With().Str("component", "http").Logger()
	srv := &HTTPServer{
		cfg:          cfg,
		reservations: reservations,
		catalog:      catalog,
		exporter:     exporter,
		auth:         NewHTTPAuth(cfg),
		logger:       &l,
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           requestIDMiddleware(srv.loggingMiddleware(recoverMiddleware(srv.logger, srv.auth.Wrap(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/drafts", s.handleCreateDraft)
	mux.HandleFunc("POST /api/v1/reservations", s.handleCreateReservation)
	mux.HandleFunc("POST /api/v1/reservations/{id}/verify", s.handleVerifyCode)
	mux.HandleFunc("GET /api/v1/verify", s.handleVerifyToken)
	mux.HandleFunc("GET /api/v1/availability", s.handleCheckAvailability)
	mux.HandleFunc("GET /api/v1/availability/slots", s.handleAvailableSlots)
	mux.HandleFunc("GET /api/v1/services", s.handleServices)
	mux.HandleFunc("GET /api/v1/services/{id}/variants", s.handleVariants)

	mux.HandleFunc("GET /api/v1/admin/reservations", s.handleListReservations)
	mux.HandleFunc("GET /api/v1/admin/reservations/export", s.handleExport)
	mux.HandleFunc("GET /api/v1/admin/reservations/{id}", s.handleGetReservation)
	mux.HandleFunc("PATCH /api/v1/admin/reservations/{id}/status", s.handleUpdateStatus)
	mux.HandleFunc("DELETE /api/v1/admin/reservations/{id}", s.handleDeleteReservation)
	mux.HandleFunc("POST /api/v1/admin/reservations/{id}/addons", s.handleAddAddon)
	mux.HandleFunc("DELETE /api/v1/admin/reservations/{id}/addons/{service_id}", s.handleRemoveAddon)
	mux.HandleFunc("POST /api/v1/admin/drafts/{id}/convert", s.handleConvertDraft)
	mux.HandleFunc("GET /api/v1/admin/closures", s.handleListClosures)
	mux.HandleFunc("POST /api/v1/admin/closures", s.handleAddClosure)
	mux.HandleFunc("DELETE /api/v1/admin/closures/{date}", s.handleRemoveClosure)
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		// the mux fills in the matched pattern on this same request
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.ObserveHTTP(endpoint, recorder.status, dur)

		event := s.logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("request_id", requestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

func recoverMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().Interface("panic", rec).Str("request_id", requestID(r.Context())).Msg("handler panic")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
