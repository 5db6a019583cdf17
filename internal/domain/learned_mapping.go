package domain

import "time"

// FileInfo describes the structure of the upload a mapping was learned from.
type FileInfo struct {
	Columns      []string `json:"columns"`
	Shape        [2]int   `json:"shape"`
	DeviceColumn *string  `json:"device_column"`
}

// LearnedMapping is the persisted record of confirmed device attributes for one file fingerprint.
type LearnedMapping struct {
	Fingerprint         string         `json:"fingerprint"`
	Filename            string         `json:"filename"`
	LearnedAt           time.Time      `json:"learned_at"`
	LearnedBy           string         `json:"learned_by,omitempty"`
	DeviceCount         int            `json:"device_count"`
	Mappings            DeviceMappings `json:"mappings"`
	FileInfo            FileInfo       `json:"file_info"`
	HasHumanCorrections bool           `json:"has_human_corrections"`
}

// MatchType describes how a learned mapping relates to a new upload.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchSimilar MatchType = "similar"
	MatchNone    MatchType = "none"
)

// LearnedFile is a one-line summary of a stored mapping.
type LearnedFile struct {
	Fingerprint         string    `json:"fingerprint"`
	Filename            string    `json:"filename"`
	LearnedAt           time.Time `json:"learned_at"`
	DeviceCount         int       `json:"device_count"`
	HasHumanCorrections bool      `json:"has_human_corrections"`
}

// LearningSummary aggregates everything the store knows about.
type LearningSummary struct {
	TotalMappings     int           `json:"total_mappings"`
	TotalDevices      int           `json:"total_devices"`
	CorrectedMappings int           `json:"corrected_mappings"`
	Files             []LearnedFile `json:"files"`
}
