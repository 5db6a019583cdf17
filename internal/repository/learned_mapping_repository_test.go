package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/accessmap/internal/domain"
)

func sampleRecord(fingerprint string, learnedAt time.Time) domain.LearnedMapping {
	confidence := 0.75
	editedAt := learnedAt.Add(-time.Minute)
	column := "door_id"
	return domain.LearnedMapping{
		Fingerprint: fingerprint,
		Filename:    "events.csv",
		LearnedAt:   learnedAt,
		LearnedBy:   "alex",
		DeviceCount: 2,
		Mappings: domain.DeviceMappings{
			"F01C Staircase C": {
				DeviceID:      "F01C Staircase C",
				DeviceName:    "F01c Staircase C",
				FloorNumber:   1,
				SecurityLevel: 3,
				IsStairwell:   true,
				Confidence:    &confidence,
				AIReasoning:   []string{"Detected stairwell access"},
			},
			"lobby_L1_door": {
				DeviceID:       "lobby_L1_door",
				DeviceName:     "Main Lobby",
				FloorNumber:    1,
				SecurityLevel:  2,
				IsEntry:        true,
				AIReasoning:    []string{"Floor 1 detected"},
				ManuallyEdited: true,
				EditedAt:       &editedAt,
			},
		},
		FileInfo: domain.FileInfo{
			Columns:      []string{"access_result", "door_id", "person_id", "timestamp"},
			Shape:        [2]int{2, 4},
			DeviceColumn: &column,
		},
		HasHumanCorrections: true,
	}
}

// exerciseRepository runs the behaviour every backend must share.
func exerciseRepository(t *testing.T, repo LearnedMappingRepository) {
	t.Helper()
	ctx := context.Background()
	learnedAt := time.Date(2024, 5, 1, 12, 30, 0, 123456000, time.UTC)

	_, err := repo.Get(ctx, "abc123")
	require.ErrorIs(t, err, domain.ErrNotFound)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	record := sampleRecord("abc123", learnedAt)
	require.NoError(t, repo.Save(ctx, record))

	got, err := repo.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, record, got)

	// last write wins
	updated := sampleRecord("abc123", learnedAt.Add(time.Hour))
	updated.LearnedBy = "sam"
	delete(updated.Mappings, "F01C Staircase C")
	updated.DeviceCount = 1
	require.NoError(t, repo.Save(ctx, updated))

	got, err = repo.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	require.NoError(t, repo.Save(ctx, sampleRecord("def456", learnedAt)))

	records, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	batch, err := repo.GetByFingerprints(ctx, []string{"def456", "missing0", "abc123"})
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	empty, err := repo.GetByFingerprints(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.Delete(ctx, "abc123"))
	require.ErrorIs(t, repo.Delete(ctx, "abc123"), domain.ErrNotFound)

	_, err = repo.Get(ctx, "abc123")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFileLearnedMappingRepository(t *testing.T) {
	repo, err := NewFileLearnedMappingRepository(t.TempDir(), nil)
	require.NoError(t, err)

	exerciseRepository(t, repo)
}

func TestFileLearnedMappingRepository_WritesOneDocumentPerFingerprint(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "learned")
	repo, err := NewFileLearnedMappingRepository(dir, nil)
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), sampleRecord("0a1b2c", time.Now().UTC())))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, "mapping_0a1b2c.json", entries[0].Name())
}

func TestFileLearnedMappingRepository_SkipsCorruptDocuments(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileLearnedMappingRepository(dir, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "mapping_bad.json"), []byte("{not json"), 0o644))
	require.NoError(t, repo.Save(context.Background(), sampleRecord("abc", time.Now().UTC())))

	records, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "abc", records[0].Fingerprint)
}

func TestFileLearnedMappingRepository_RejectsPathLikeFingerprints(t *testing.T) {
	repo, err := NewFileLearnedMappingRepository(t.TempDir(), nil)
	require.NoError(t, err)

	record := sampleRecord("../escape", time.Now().UTC())
	assert.Error(t, repo.Save(context.Background(), record))

	_, err = repo.Get(context.Background(), "../escape")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteLearnedMappingRepository(t *testing.T) {
	repo, err := NewSQLiteLearnedMappingRepository(context.Background(), filepath.Join(t.TempDir(), "learning.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	exerciseRepository(t, repo)
}

func TestSQLiteLearnedMappingRepository_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learning.db")
	ctx := context.Background()

	repo, err := NewSQLiteLearnedMappingRepository(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, sampleRecord("abc123", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, repo.Close())

	reopened, err := NewSQLiteLearnedMappingRepository(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, 2, got.DeviceCount)
}

func TestValidFingerprint(t *testing.T) {
	assert.True(t, ValidFingerprint("0123456789abcdef"))
	assert.False(t, ValidFingerprint(""))
	assert.False(t, ValidFingerprint("ABC"))
	assert.False(t, ValidFingerprint("../x"))
}
