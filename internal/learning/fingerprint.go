// Package learning persists human-confirmed device attributes keyed by a
// content fingerprint of the upload and reapplies them to later uploads of
// the same feed.
package learning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rpattn/accessmap/internal/domain"
)

const (
	fingerprintLength = 16
	sampleDeviceCount = 5
)

var deviceColumnKeywords = []string{"device", "door", "location", "area", "room"}

// DeviceColumn returns the first column whose name mentions a device keyword.
func DeviceColumn(table *domain.Table) (string, bool) {
	if table == nil {
		return "", false
	}
	for _, column := range table.Columns {
		lowered := strings.ToLower(column)
		for _, keyword := range deviceColumnKeywords {
			if strings.Contains(lowered, keyword) {
				return column, true
			}
		}
	}
	return "", false
}

// FileStem is the lowercased base name up to the first dot.
func FileStem(filename string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if idx := strings.Index(base, "."); idx >= 0 {
		base = base[:idx]
	}
	return strings.ToLower(base)
}

type fingerprintInput struct {
	Filename      string   `json:"filename"`
	Columns       []string `json:"columns"`
	Shape         [2]int   `json:"shape"`
	SampleDevices []string `json:"sample_devices"`
}

// Fingerprint identifies an upload by its name stem, structure and a sample
// of device identifiers. Row order does not affect the result.
func Fingerprint(table *domain.Table, filename string) string {
	if table == nil {
		table = domain.EmptyTable()
	}

	columns := append([]string(nil), table.Columns...)
	sort.Strings(columns)

	samples := []string{}
	if column, ok := DeviceColumn(table); ok {
		unique := table.UniqueValues(column)
		if len(unique) > sampleDeviceCount {
			unique = unique[:sampleDeviceCount]
		}
		samples = append(samples, unique...)
	}

	payload, _ := json.Marshal(fingerprintInput{
		Filename:      FileStem(filename),
		Columns:       columns,
		Shape:         table.Shape(),
		SampleDevices: samples,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}

func fileInfo(table *domain.Table) domain.FileInfo {
	info := domain.FileInfo{
		Columns: append([]string{}, table.Columns...),
		Shape:   table.Shape(),
	}
	if column, ok := DeviceColumn(table); ok {
		info.DeviceColumn = &column
	}
	return info
}
