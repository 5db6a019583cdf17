// Package api exposes the review workflow as a JSON HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rpattn/accessmap/internal/auth"
	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/inference"
	"github.com/rpattn/accessmap/internal/ingestion"
	"github.com/rpattn/accessmap/internal/learning"
	"github.com/rpattn/accessmap/internal/middleware"
	"github.com/rpattn/accessmap/internal/pipeline"
	"github.com/rpattn/accessmap/internal/repository"
)

const defaultPreviewRows = 20

// Dependencies are the services the API is built on.
type Dependencies struct {
	Pipeline  *pipeline.Pipeline
	Ingestion *ingestion.Service
	Store     *learning.Store
	Generator *inference.Generator
	Mappings  repository.LearnedMappingRepository
	// IngestionLogs is optional; without it the logs endpoint returns 404.
	IngestionLogs repository.IngestionLogRepository
	Logger        *zap.Logger
	// MaxUploadBytes caps request bodies on upload endpoints. Zero disables the cap.
	MaxUploadBytes int64
}

// Server routes HTTP requests to the services.
type Server struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewServer creates the API server.
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Generator == nil {
		deps.Generator = inference.NewGenerator(deps.Logger)
	}
	return &Server{deps: deps, logger: deps.Logger}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/uploads", s.handleUpload)
	mux.HandleFunc("GET /api/uploads/{session}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/uploads/{session}", s.handleDiscardSession)
	mux.HandleFunc("PATCH /api/uploads/{session}/devices", s.handleEditDevices)
	mux.HandleFunc("POST /api/uploads/{session}/confirm", s.handleConfirm)

	mux.Handle("POST /api/ingest/validate", s.limitBody(ingestion.NewHTTPHandler(s.deps.Ingestion)))
	mux.HandleFunc("GET /api/ingest/logs", s.handleIngestionLogs)
	mux.HandleFunc("POST /api/columns/suggest", s.handleSuggestColumns)

	mux.HandleFunc("GET /api/devices/infer", s.handleInferDevice)
	mux.HandleFunc("POST /api/devices/infer", s.handleInferDevices)

	mux.HandleFunc("GET /api/learning/summary", s.handleLearningSummary)
	mux.HandleFunc("GET /api/learning/mappings", s.handleLearnedMappings)
	mux.HandleFunc("DELETE /api/learning/mappings/{fingerprint}", s.handleDeleteLearnedMapping)

	var handler http.Handler = mux
	handler = middleware.DataLoaderMiddleware(s.deps.Mappings)(handler)
	handler = auth.ReviewerMiddleware(handler)
	handler = middleware.LoggingMiddleware(s.logger)(handler)
	handler = middleware.Recoverer(s.logger)(handler)
	return handler
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	if s.deps.MaxUploadBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := err.Error()
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCorrection), errors.Is(err, domain.ErrUnknownRole):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrSaveFailed):
		message = pipeline.ErrSaveFailed.Error()
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
