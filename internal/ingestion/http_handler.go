package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rpattn/accessmap/internal/domain"
)

const defaultPreviewRows = 20

// Handler exposes upload validation as an HTTP endpoint.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a POST endpoint.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

// PreviewResponse is the cleaned preview returned to clients.
type PreviewResponse struct {
	Filename        string               `json:"filename"`
	Valid           bool                 `json:"valid"`
	Loaded          bool                 `json:"loaded"`
	TotalRows       int                  `json:"total_rows"`
	Columns         []string             `json:"columns"`
	OriginalColumns []string             `json:"original_columns"`
	Mapping         domain.ColumnMapping `json:"mapping"`
	Rows            [][]string           `json:"rows"`
	Issues          domain.Issues        `json:"issues"`
}

// NewPreviewResponse trims a result to at most limit rows.
func NewPreviewResponse(result Result, limit int) PreviewResponse {
	if limit <= 0 {
		limit = defaultPreviewRows
	}
	preview := result.Table.Head(limit)
	return PreviewResponse{
		Filename:        result.Filename,
		Valid:           result.Valid,
		Loaded:          result.Loaded,
		TotalRows:       len(result.Table.Rows),
		Columns:         preview.Columns,
		OriginalColumns: result.OriginalColumns,
		Mapping:         result.Mapping,
		Rows:            preview.Rows,
		Issues:          result.Issues,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := defaultPreviewRows
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %v", err))
			return
		}
	}

	data, filename, err := ReadUpload(r)
	if err != nil {
		var tooLarge *UploadTooLargeError
		if errors.As(err, &tooLarge) {
			result := h.service.RejectOversized(r.Context(), tooLarge)
			writeJSON(w, http.StatusUnprocessableEntity, NewPreviewResponse(result, limit))
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.service.Process(r.Context(), data, filename)
	writeJSON(w, http.StatusOK, NewPreviewResponse(result, limit))
}

// UploadTooLargeError reports a request body that was cut off at its cap.
type UploadTooLargeError struct {
	// Size is the declared request length, or Limit+1 when it is unknown.
	Size  int64
	Limit int64
}

func (e *UploadTooLargeError) Error() string {
	return fmt.Sprintf("upload too large: %d bytes exceeds the %d byte limit", e.Size, e.Limit)
}

// ReadUpload pulls the multipart "file" field out of a request. A body over
// an http.MaxBytesReader cap yields *UploadTooLargeError.
func ReadUpload(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, "", uploadError(r, "invalid form data", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", uploadError(r, "file required", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", uploadError(r, "failed to read file", err)
	}
	return data, header.Filename, nil
}

func uploadError(r *http.Request, msg string, err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		size := r.ContentLength
		if size <= maxErr.Limit {
			size = maxErr.Limit + 1
		}
		return &UploadTooLargeError{Size: size, Limit: maxErr.Limit}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
