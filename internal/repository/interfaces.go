package repository

import (
	"context"
	"regexp"

	"github.com/rpattn/accessmap/internal/domain"
)

// LearnedMappingRepository persists confirmed device mappings keyed by file fingerprint.
type LearnedMappingRepository interface {
	// Save inserts or replaces the record for its fingerprint.
	Save(ctx context.Context, record domain.LearnedMapping) error
	// Get returns domain.ErrNotFound when nothing is stored for fingerprint.
	Get(ctx context.Context, fingerprint string) (domain.LearnedMapping, error)
	GetByFingerprints(ctx context.Context, fingerprints []string) ([]domain.LearnedMapping, error)
	List(ctx context.Context) ([]domain.LearnedMapping, error)
	Delete(ctx context.Context, fingerprint string) error
}

// IngestionLogRepository stores ingestion issues for observability.
type IngestionLogRepository interface {
	Record(ctx context.Context, entry domain.IngestionLogEntry) error
	List(ctx context.Context, fileName string, limit int, offset int) ([]domain.IngestionLogEntry, error)
}

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{1,64}$`)

// ValidFingerprint reports whether fingerprint is a lowercase hex digest.
// File-backed storage uses it in paths, so anything else is rejected.
func ValidFingerprint(fingerprint string) bool {
	return fingerprintPattern.MatchString(fingerprint)
}
