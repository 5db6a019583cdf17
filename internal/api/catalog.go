package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/middleware"
	"github.com/rpattn/accessmap/internal/schema/mapper"
)

// maxInferBatch bounds how many device ids one request may classify.
const maxInferBatch = 10000

type suggestPayload struct {
	Columns []string `json:"columns"`
}

func (s *Server) handleSuggestColumns(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload suggestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid payload: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, mapper.Suggestions(payload.Columns))
}

func (s *Server) handleInferDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
	if deviceID == "" {
		writeBadRequest(w, "device_id is required")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Generator.GenerateDeviceAttributes(deviceID))
}

type inferPayload struct {
	DeviceIDs []string `json:"device_ids"`
}

func (s *Server) handleInferDevices(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload inferPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid payload: %v", err))
		return
	}
	if len(payload.DeviceIDs) > maxInferBatch {
		writeBadRequest(w, fmt.Sprintf("at most %d device ids per request", maxInferBatch))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Generator.GenerateAll(payload.DeviceIDs))
}

func (s *Server) handleLearningSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Store.Summary())
}

type learnedMappingsResponse struct {
	Mappings []domain.LearnedMapping `json:"mappings"`
	Missing  []string                `json:"missing"`
}

// handleLearnedMappings reads records straight from storage through the
// request-scoped loader, so results reflect other processes' writes.
func (s *Server) handleLearnedMappings(w http.ResponseWriter, r *http.Request) {
	var fingerprints []string
	for _, value := range r.URL.Query()["fingerprint"] {
		for _, fp := range strings.Split(value, ",") {
			if fp = strings.TrimSpace(fp); fp != "" {
				fingerprints = append(fingerprints, fp)
			}
		}
	}
	if len(fingerprints) == 0 {
		writeBadRequest(w, "fingerprint is required")
		return
	}

	loader := middleware.MappingLoaderFromContext(r.Context())
	if loader == nil {
		s.writeError(w, r, fmt.Errorf("mapping loader not configured"))
		return
	}
	found, err := loader.LoadMany(r.Context(), fingerprints)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := learnedMappingsResponse{
		Mappings: make([]domain.LearnedMapping, 0, len(found)),
		Missing:  make([]string, 0),
	}
	seen := make(map[string]bool, len(fingerprints))
	for _, fp := range fingerprints {
		if seen[fp] {
			continue
		}
		seen[fp] = true
		if record, ok := found[fp]; ok {
			resp.Mappings = append(resp.Mappings, record)
		} else {
			resp.Missing = append(resp.Missing, fp)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteLearnedMapping(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Delete(r.Context(), r.PathValue("fingerprint")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

func (s *Server) handleIngestionLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.IngestionLogs == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "ingestion log is not enabled"})
		return
	}

	query := r.URL.Query()
	fileName := strings.TrimSpace(query.Get("file_name"))
	if fileName == "" {
		writeBadRequest(w, "file_name is required")
		return
	}
	limit, err := intParam(query.Get("limit"), defaultLogLimit)
	if err != nil || limit <= 0 || limit > maxLogLimit {
		writeBadRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxLogLimit))
		return
	}
	offset, err := intParam(query.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	entries, err := s.deps.IngestionLogs.List(r.Context(), fileName, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.IngestionLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
