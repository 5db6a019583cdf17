package domain

import (
	"time"

	"github.com/google/uuid"
)

// IngestionLogEntry captures a validation issue raised while processing an upload.
type IngestionLogEntry struct {
	ID          uuid.UUID `json:"id"`
	FileName    string    `json:"file_name"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Severity    Severity  `json:"severity"`
	Code        string    `json:"code"`
	RowCount    *int      `json:"row_count,omitempty"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}
