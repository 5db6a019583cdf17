package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/ingestion"
	"github.com/rpattn/accessmap/internal/learning"
	"github.com/rpattn/accessmap/internal/pipeline"
	"github.com/rpattn/accessmap/pkg/validator"
)

type uploadResponse struct {
	SessionID       *uuid.UUID            `json:"session_id"`
	Filename        string                `json:"filename"`
	Fingerprint     string                `json:"fingerprint"`
	Valid           bool                  `json:"valid"`
	Loaded          bool                  `json:"loaded"`
	Mapping         domain.ColumnMapping  `json:"mapping"`
	OriginalColumns []string              `json:"original_columns"`
	Issues          domain.Issues         `json:"issues"`
	TotalRows       int                   `json:"total_rows"`
	Columns         []string              `json:"columns"`
	Preview         [][]string            `json:"preview"`
	Devices         domain.DeviceMappings `json:"devices"`
	Source          learning.Source       `json:"source,omitempty"`
	MatchType       domain.MatchType      `json:"match_type"`
	MatchConfidence float64               `json:"match_confidence"`
}

func newUploadResponse(result pipeline.UploadResult, limit int) uploadResponse {
	preview := ingestion.NewPreviewResponse(result.Ingestion, limit)
	resp := uploadResponse{
		Filename:        result.Ingestion.Filename,
		Fingerprint:     result.Lookup.Fingerprint,
		Valid:           result.Ingestion.Valid,
		Loaded:          result.Ingestion.Loaded,
		Mapping:         result.Ingestion.Mapping,
		OriginalColumns: preview.OriginalColumns,
		Issues:          preview.Issues,
		TotalRows:       preview.TotalRows,
		Columns:         preview.Columns,
		Preview:         preview.Rows,
		Devices:         domain.DeviceMappings{},
		MatchType:       result.Lookup.Match,
		MatchConfidence: result.Lookup.Confidence,
	}
	if session := result.Session; session != nil {
		id := session.ID
		resp.SessionID = &id
		resp.Fingerprint = session.Fingerprint
		resp.Devices = session.Devices
		resp.Source = session.Source
	}
	return resp
}

func previewLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultPreviewRows, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit: %w", err)
	}
	return limit, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	}

	limit, err := previewLimit(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	data, filename, err := ingestion.ReadUpload(r)
	if err != nil {
		var tooLarge *ingestion.UploadTooLargeError
		if errors.As(err, &tooLarge) {
			result := pipeline.UploadResult{Ingestion: s.deps.Ingestion.RejectOversized(r.Context(), tooLarge)}
			writeJSON(w, http.StatusUnprocessableEntity, newUploadResponse(result, limit))
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	var result pipeline.UploadResult
	if raw := r.FormValue("mapping"); raw != "" {
		var manual map[string]string
		if err := json.Unmarshal([]byte(raw), &manual); err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid mapping: %v", err))
			return
		}
		result = s.deps.Pipeline.UploadWithMapping(r.Context(), data, filename, manual)
	} else {
		result = s.deps.Pipeline.Upload(r.Context(), data, filename)
	}

	status := http.StatusCreated
	if result.Session == nil {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, newUploadResponse(result, limit))
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("session"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id: %w", err)
	}
	return id, nil
}

type sessionResponse struct {
	learning.Session
	TotalRows int        `json:"total_rows"`
	Columns   []string   `json:"columns"`
	Preview   [][]string `json:"preview"`
}

func newSessionResponse(session learning.Session, limit int) sessionResponse {
	table := session.Table
	if table == nil {
		table = domain.EmptyTable()
	}
	preview := table.Head(limit)
	return sessionResponse{
		Session:   session,
		TotalRows: len(table.Rows),
		Columns:   preview.Columns,
		Preview:   preview.Rows,
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	limit, err := previewLimit(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	session, err := s.deps.Pipeline.Session(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session, limit))
}

func (s *Server) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.deps.Pipeline.Discard(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type editPayload struct {
	Devices map[string]map[string]any `json:"devices"`
}

type editResponse struct {
	sessionResponse
	Warnings []validator.ValidationError `json:"warnings"`
}

func (s *Server) handleEditDevices(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	defer r.Body.Close()
	var payload editPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid payload: %v", err))
		return
	}
	if len(payload.Devices) == 0 {
		writeBadRequest(w, "devices is required")
		return
	}

	edits := make(map[string]domain.DeviceEdit, len(payload.Devices))
	warnings := make([]validator.ValidationError, 0)
	for deviceID, properties := range payload.Devices {
		edit, result := validator.DecodeEdit(properties)
		if err := result.Err(); err != nil {
			s.writeError(w, r, fmt.Errorf("device %q: %w", deviceID, err))
			return
		}
		edits[deviceID] = edit
		warnings = append(warnings, result.Warnings...)
	}

	session, err := s.deps.Pipeline.Edit(r.Context(), id, edits)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{
		sessionResponse: newSessionResponse(session, defaultPreviewRows),
		Warnings:        warnings,
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	confirmation, err := s.deps.Pipeline.Confirm(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmation)
}
