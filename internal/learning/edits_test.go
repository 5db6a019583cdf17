package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/inference"
)

func boolPtr(v bool) *bool       { return &v }
func stringPtr(v string) *string { return &v }

func TestApplyEdits(t *testing.T) {
	devices := inference.GenerateAll([]string{"L1_DOOR_MAIN", "L2_SERVER_ROOM"})
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	edited, err := ApplyEdits(devices, map[string]domain.DeviceEdit{
		"L2_SERVER_ROOM": {DeviceName: stringPtr("Data Hall"), SecurityLevel: intPtr(10)},
	}, now)
	require.NoError(t, err)

	got := edited["L2_SERVER_ROOM"]
	assert.Equal(t, "Data Hall", got.DeviceName)
	assert.Equal(t, 10, got.SecurityLevel)
	assert.Equal(t, devices["L2_SERVER_ROOM"].FloorNumber, got.FloorNumber)
	assert.True(t, got.ManuallyEdited)
	assert.Nil(t, got.Confidence)
	require.NotNil(t, got.EditedAt)
	assert.Equal(t, now, *got.EditedAt)

	assert.Equal(t, devices["L1_DOOR_MAIN"], edited["L1_DOOR_MAIN"])
	assert.False(t, devices["L2_SERVER_ROOM"].ManuallyEdited, "input must not be mutated")
}

func TestApplyEdits_FireEscapeImpliesExit(t *testing.T) {
	devices := inference.GenerateAll([]string{"L1_LOBBY"})

	edited, err := ApplyEdits(devices, map[string]domain.DeviceEdit{
		"L1_LOBBY": {IsFireEscape: boolPtr(true), IsExit: boolPtr(false)},
	}, time.Now())
	require.NoError(t, err)

	assert.True(t, edited["L1_LOBBY"].IsFireEscape)
	assert.True(t, edited["L1_LOBBY"].IsExit)
}

func TestApplyEdits_Rejects(t *testing.T) {
	devices := inference.GenerateAll([]string{"L1_LOBBY"})

	cases := []struct {
		name  string
		edits map[string]domain.DeviceEdit
		want  error
	}{
		{name: "floor too high", edits: map[string]domain.DeviceEdit{"L1_LOBBY": {FloorNumber: intPtr(100)}}, want: domain.ErrInvalidCorrection},
		{name: "floor zero", edits: map[string]domain.DeviceEdit{"L1_LOBBY": {FloorNumber: intPtr(0)}}, want: domain.ErrInvalidCorrection},
		{name: "security too high", edits: map[string]domain.DeviceEdit{"L1_LOBBY": {SecurityLevel: intPtr(11)}}, want: domain.ErrInvalidCorrection},
		{name: "blank name", edits: map[string]domain.DeviceEdit{"L1_LOBBY": {DeviceName: stringPtr("  ")}}, want: domain.ErrInvalidCorrection},
		{name: "unknown device", edits: map[string]domain.DeviceEdit{"NOPE": {FloorNumber: intPtr(2)}}, want: domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ApplyEdits(devices, tc.edits, time.Now())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
