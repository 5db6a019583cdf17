package learning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/accessmap/internal/auth"
	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/inference"
	"github.com/rpattn/accessmap/internal/repository"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newFileStore(t *testing.T, dir string) *Store {
	t.Helper()
	repo, err := repository.NewFileLearnedMappingRepository(dir, nil)
	require.NoError(t, err)
	store := NewStore(context.Background(), repo, nil)
	store.now = func() time.Time { return fixedNow }
	return store
}

func inferredDevices(table *domain.Table) domain.DeviceMappings {
	return inference.GenerateAll(table.UniqueValues("door_id"))
}

func TestStore_SaveThenGet(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	table := accessTable()
	devices := inferredDevices(table)

	fingerprint, err := store.SaveMapping(context.Background(), table, "access.csv", devices)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(table, "access.csv"), fingerprint)

	got := store.GetLearnedMapping(table, "access.csv")
	assert.Equal(t, devices, got)

	record, ok := store.Get(fingerprint)
	require.True(t, ok)
	assert.Equal(t, 2, record.DeviceCount)
	assert.Equal(t, fixedNow, record.LearnedAt)
	require.NotNil(t, record.FileInfo.DeviceColumn)
	assert.Equal(t, "door_id", *record.FileInfo.DeviceColumn)
	assert.Equal(t, [2]int{3, 4}, record.FileInfo.Shape)
	assert.False(t, record.HasHumanCorrections)

	// Saving again with the same input is idempotent.
	again, err := store.SaveMapping(context.Background(), table, "access.csv", devices)
	require.NoError(t, err)
	assert.Equal(t, fingerprint, again)
	assert.Equal(t, devices, store.GetLearnedMapping(table, "access.csv"))
	assert.Equal(t, 1, store.Summary().TotalMappings)
}

func TestStore_ReturnedMappingsDoNotAliasCache(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	table := accessTable()

	_, err := store.SaveMapping(context.Background(), table, "access.csv", inferredDevices(table))
	require.NoError(t, err)

	first := store.GetLearnedMapping(table, "access.csv")
	require.NotEmpty(t, first)
	for id, device := range first {
		require.NotNil(t, device.Confidence, id)
		*device.Confidence = 0
	}

	for id, device := range store.GetLearnedMapping(table, "access.csv") {
		require.NotNil(t, device.Confidence, id)
		assert.NotZero(t, *device.Confidence, id)
	}
}

func TestStore_GetLearnedMappingMiss(t *testing.T) {
	store := newFileStore(t, t.TempDir())

	got := store.GetLearnedMapping(accessTable(), "unknown.csv")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_ReloadsFromRepository(t *testing.T) {
	dir := t.TempDir()
	table := accessTable()
	devices := inferredDevices(table)

	_, err := newFileStore(t, dir).SaveMapping(context.Background(), table, "access.csv", devices)
	require.NoError(t, err)

	reopened := newFileStore(t, dir)
	assert.Equal(t, devices, reopened.GetLearnedMapping(table, "access.csv"))
}

func TestStore_Lookup(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	table := accessTable()
	devices := inferredDevices(table)
	_, err := store.SaveMapping(context.Background(), table, "access.csv", devices)
	require.NoError(t, err)

	exact := store.Lookup(table, "access.csv")
	assert.Equal(t, domain.MatchExact, exact.Match)
	assert.Equal(t, 1.0, exact.Confidence)
	assert.Equal(t, devices, exact.Mappings)
	require.NotNil(t, exact.Source)
	assert.Equal(t, "access.csv", exact.Source.Filename)

	grown := table.Clone()
	grown.Rows = append(grown.Rows, []string{"U9", "L3_LOBBY", "Granted", "2024-01-02T08:00:00Z"})
	similar := store.Lookup(grown, "ACCESS.xlsx")
	assert.Equal(t, domain.MatchSimilar, similar.Match)
	assert.Equal(t, 0.8, similar.Confidence)
	assert.Equal(t, devices, similar.Mappings)
	assert.NotEqual(t, exact.Fingerprint, similar.Fingerprint)

	none := store.Lookup(table, "other.csv")
	assert.Equal(t, domain.MatchNone, none.Match)
	assert.Zero(t, none.Confidence)
	assert.Empty(t, none.Mappings)
	assert.Nil(t, none.Source)
}

func TestStore_LookupPrefersNewestSimilar(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	table := accessTable()

	older := domain.DeviceMappings{"A": inference.GenerateDeviceAttributes("A")}
	newer := domain.DeviceMappings{"B": inference.GenerateDeviceAttributes("B")}

	_, err := store.SaveMapping(context.Background(), table, "feed.csv", older)
	require.NoError(t, err)

	shorter := table.Clone()
	shorter.Rows = shorter.Rows[:1]
	store.now = func() time.Time { return fixedNow.Add(time.Hour) }
	_, err = store.SaveMapping(context.Background(), shorter, "feed.csv", newer)
	require.NoError(t, err)

	grown := table.Clone()
	grown.Rows = append(grown.Rows, grown.Rows[0])
	assert.Equal(t, newer, store.Lookup(grown, "feed.csv").Mappings)
}

func TestStore_SaveRecordsReviewerAndCorrections(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	table := accessTable()
	devices := inferredDevices(table)
	edited, err := ApplyEdits(devices, map[string]domain.DeviceEdit{
		"L1_DOOR_MAIN": {FloorNumber: intPtr(3)},
	}, fixedNow)
	require.NoError(t, err)

	ctx := auth.ContextWithReviewer(context.Background(), "  dana ")
	fingerprint, err := store.SaveMapping(ctx, table, "access.csv", edited)
	require.NoError(t, err)

	record, ok := store.Get(fingerprint)
	require.True(t, ok)
	assert.Equal(t, "dana", record.LearnedBy)
	assert.True(t, record.HasHumanCorrections)
	assert.Equal(t, 1, store.Summary().CorrectedMappings)
}

func TestStore_Summary(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	table := accessTable()

	_, err := store.SaveMapping(context.Background(), table, "a.csv", inferredDevices(table))
	require.NoError(t, err)
	store.now = func() time.Time { return fixedNow.Add(time.Minute) }
	_, err = store.SaveMapping(context.Background(), table, "b.csv", domain.DeviceMappings{})
	require.NoError(t, err)

	summary := store.Summary()
	assert.Equal(t, 2, summary.TotalMappings)
	assert.Equal(t, 2, summary.TotalDevices)
	require.Len(t, summary.Files, 2)
	assert.Equal(t, "b.csv", summary.Files[0].Filename)
	assert.Equal(t, "a.csv", summary.Files[1].Filename)
}

func TestStore_Delete(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	table := accessTable()
	fingerprint, err := store.SaveMapping(context.Background(), table, "access.csv", inferredDevices(table))
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), fingerprint))
	assert.Empty(t, store.GetLearnedMapping(table, "access.csv"))

	err = store.Delete(context.Background(), fingerprint)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ConcurrentSaves(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	table := accessTable()
	devices := inferredDevices(table)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.SaveMapping(context.Background(), table, "access.csv", devices)
			assert.NoError(t, err)
			_ = store.Lookup(table, "access.csv")
		}()
	}
	wg.Wait()

	assert.Equal(t, devices, store.GetLearnedMapping(table, "access.csv"))
}

func TestStore_SaveFailurePropagates(t *testing.T) {
	repo := &failingRepo{err: errors.New("disk full")}
	store := NewStore(context.Background(), repo, nil)

	_, err := store.SaveMapping(context.Background(), accessTable(), "access.csv", domain.DeviceMappings{})
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.err)
	assert.Equal(t, 0, store.Summary().TotalMappings)
}

func TestStore_LoadFailureFailsOpen(t *testing.T) {
	store := NewStore(context.Background(), &failingRepo{err: errors.New("unreachable")}, nil)

	assert.Empty(t, store.GetLearnedMapping(accessTable(), "access.csv"))
	assert.Equal(t, domain.MatchNone, store.Lookup(accessTable(), "access.csv").Match)
}

func TestStore_ApplyToStaging(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	staging, err := NewStaging(4)
	require.NoError(t, err)

	table := accessTable()
	inferred := inferredDevices(table)
	session := staging.Stage(Session{Filename: "access.csv", Table: table, Devices: inferred})

	_, applied, err := store.ApplyToStaging(staging, session.ID, table, "access.csv")
	require.NoError(t, err)
	assert.False(t, applied)

	learned := domain.DeviceMappings{"L1_DOOR_MAIN": inference.GenerateDeviceAttributes("L1_DOOR_MAIN")}
	_, err = store.SaveMapping(context.Background(), table, "access.csv", learned)
	require.NoError(t, err)

	result, applied, err := store.ApplyToStaging(staging, session.ID, table, "access.csv")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.MatchExact, result.Match)

	staged, err := staging.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, learned, staged.Devices)
	assert.Equal(t, SourceLearned, staged.Source)
}

type failingRepo struct {
	err error
}

func (r *failingRepo) Save(context.Context, domain.LearnedMapping) error { return r.err }
func (r *failingRepo) Get(context.Context, string) (domain.LearnedMapping, error) {
	return domain.LearnedMapping{}, r.err
}
func (r *failingRepo) GetByFingerprints(context.Context, []string) ([]domain.LearnedMapping, error) {
	return nil, r.err
}
func (r *failingRepo) List(context.Context) ([]domain.LearnedMapping, error) { return nil, r.err }
func (r *failingRepo) Delete(context.Context, string) error                  { return r.err }

func intPtr(v int) *int { return &v }
