package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/ingestion"
)

type memoryLogRepo struct {
	mu      sync.Mutex
	entries []domain.IngestionLogEntry
}

func (m *memoryLogRepo) Record(_ context.Context, entry domain.IngestionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryLogRepo) List(_ context.Context, fileName string, limit, offset int) ([]domain.IngestionLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.IngestionLogEntry
	for _, entry := range m.entries {
		if entry.FileName == fileName {
			out = append(out, entry)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestIngestionLogs(t *testing.T) {
	logs := &memoryLogRepo{}
	ingest := ingestion.NewService(logs, nil, ingestion.DefaultOptions())
	handler := NewServer(Dependencies{Ingestion: ingest, IngestionLogs: logs}).Handler()

	upload := multipartUpload(t, "/api/ingest/validate", "events.csv", "colour,weight\nred,3\n", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, upload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingest/logs?file_name=events.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var entries []domain.IngestionLogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.NotEmpty(t, entries)
	assert.Equal(t, "events.csv", entries[0].FileName)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingest/logs?file_name=other.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestIngestionLogsBadRequests(t *testing.T) {
	handler := NewServer(Dependencies{IngestionLogs: &memoryLogRepo{}}).Handler()

	for _, target := range []string{
		"/api/ingest/logs",
		"/api/ingest/logs?file_name=a.csv&limit=0",
		"/api/ingest/logs?file_name=a.csv&limit=abc",
		"/api/ingest/logs?file_name=a.csv&offset=-1",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestIngestionLogsDisabled(t *testing.T) {
	handler := NewServer(Dependencies{}).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingest/logs?file_name=a.csv", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
