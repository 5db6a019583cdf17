package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rpattn/accessmap/internal/domain"
)

// encodedMapping holds the JSON columns shared by the SQL backends.
type encodedMapping struct {
	mappings []byte
	fileInfo []byte
}

func encodeMapping(record domain.LearnedMapping) (encodedMapping, error) {
	mappings := record.Mappings
	if mappings == nil {
		mappings = domain.DeviceMappings{}
	}
	mappingsJSON, err := json.Marshal(mappings)
	if err != nil {
		return encodedMapping{}, fmt.Errorf("failed to marshal mappings: %w", err)
	}
	fileInfoJSON, err := json.Marshal(record.FileInfo)
	if err != nil {
		return encodedMapping{}, fmt.Errorf("failed to marshal file info: %w", err)
	}
	return encodedMapping{mappings: mappingsJSON, fileInfo: fileInfoJSON}, nil
}

func decodeMapping(record *domain.LearnedMapping, mappingsJSON, fileInfoJSON []byte) error {
	if err := json.Unmarshal(mappingsJSON, &record.Mappings); err != nil {
		return fmt.Errorf("failed to unmarshal mappings for %s: %w", record.Fingerprint, err)
	}
	if err := json.Unmarshal(fileInfoJSON, &record.FileInfo); err != nil {
		return fmt.Errorf("failed to unmarshal file info for %s: %w", record.Fingerprint, err)
	}
	if record.Mappings == nil {
		record.Mappings = domain.DeviceMappings{}
	}
	record.LearnedAt = record.LearnedAt.UTC()
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}
