package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/accessmap/internal/domain"
)

func TestGenerateDeviceAttributes_Floor(t *testing.T) {
	tests := []struct {
		deviceID string
		want     int
	}{
		{"lobby_L1_door", 1},
		{"office_3F_main", 3},
		{"office_201_door", 2},
		{"5_server_room", 5},
		{"north_wing_floor_12", 12},
		{"office_door_305", 3},
		{"F01C Staircase C", 1},
		{"L0_plant", 1},
		{"L150_roof_3F", 3},
		{"hall12", 12},
		{"Hall2_door", 2},
		{"Panel7", 7},
		{"2FL_main_door", 2},
		{"3Floor_lobby", 3},
		{"", 1},
	}

	for _, tt := range tests {
		t.Run(tt.deviceID, func(t *testing.T) {
			got := GenerateDeviceAttributes(tt.deviceID)
			assert.Equal(t, tt.want, got.FloorNumber)
		})
	}
}

func TestGenerateDeviceAttributes_SecurityLevel(t *testing.T) {
	tests := []struct {
		deviceID string
		want     int
	}{
		{"main_lobby", 2},
		{"elevator_bank_2", 3},
		{"stairwell_b", 3},
		{"office_3F_main", 4},
		{"room_12", 4},
		{"boardroom_east", 5},
		{"fire_exit_north", 6},
		{"ceo_suite", 7},
		{"5_server_room", 8},
		{"vault_door", 9},
		{"xyz", 5},
	}

	for _, tt := range tests {
		t.Run(tt.deviceID, func(t *testing.T) {
			got := GenerateDeviceAttributes(tt.deviceID)
			assert.Equal(t, tt.want, got.SecurityLevel)
		})
	}
}

func TestGenerateDeviceAttributes_AccessFlags(t *testing.T) {
	got := GenerateDeviceAttributes("main_entrance_elevator")
	assert.True(t, got.IsEntry)
	assert.True(t, got.IsElevator)
	assert.False(t, got.IsStairwell)
	assert.False(t, got.IsFireEscape)

	got = GenerateDeviceAttributes("side_door_out")
	assert.True(t, got.IsExit)
	assert.False(t, got.IsEntry, "out should not be read as in")

	got = GenerateDeviceAttributes("stairwell_door_in")
	assert.True(t, got.IsEntry)
	assert.True(t, got.IsStairwell)

	got = GenerateDeviceAttributes("printing_room")
	assert.False(t, got.IsEntry, "in inside a word is not a token")
}

func TestGenerateDeviceAttributes_FireEscapeImpliesExit(t *testing.T) {
	for _, id := range []string{"fire_door_3", "escape_hatch", "emergency_side_exit", "FIRE"} {
		got := GenerateDeviceAttributes(id)
		require.True(t, got.IsFireEscape, id)
		assert.True(t, got.IsExit, id)
	}

	got := GenerateDeviceAttributes("escape_hatch")
	assert.Contains(t, got.AIReasoning, "Fire escape implies exit access")
}

func TestDeviceName(t *testing.T) {
	tests := []struct {
		deviceID string
		want     string
	}{
		{"lobby_L1_door", "Lobby L1 Door"},
		{"office_3f_main", "Office 3F Main"},
		{"server-room-2", "Server Room 2"},
		{"Room101", "Room 101"},
		{"L1", "L1"},
		{"office3f", "Office 3F"},
		{"  spaced__out  ", "Spaced Out"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.deviceID, func(t *testing.T) {
			assert.Equal(t, tt.want, DeviceName(tt.deviceID))
		})
	}
}

func TestGenerateDeviceAttributes_Confidence(t *testing.T) {
	// no floor, no security keyword, no flags: two defaults
	got := GenerateDeviceAttributes("xyz")
	require.NotNil(t, got.Confidence)
	assert.Equal(t, 0.4, *got.Confidence)

	// default floor, stairwell security, stairwell flag
	got = GenerateDeviceAttributes("F01C Staircase C")
	assert.Equal(t, 0.75, *got.Confidence)

	// every stage detected saturates at the ceiling
	got = GenerateDeviceAttributes("L2_main_entrance_elevator_stair_fire_exit")
	assert.Equal(t, domain.MaxConfidence, *got.Confidence)
}

func TestGenerateDeviceAttributes_Properties(t *testing.T) {
	ids := []string{
		"", "x", "lobby_L1_door", "office_3F_main", "5_server_room", "L999",
		"fire_escape_L3", "!!!", "Floor-0", "__", "emergency exit 12F", "日本_3F",
	}

	for _, id := range ids {
		got := GenerateDeviceAttributes(id)
		require.NotNil(t, got.Confidence, id)
		assert.GreaterOrEqual(t, *got.Confidence, domain.MinConfidence, id)
		assert.LessOrEqual(t, *got.Confidence, domain.MaxConfidence, id)
		assert.GreaterOrEqual(t, got.FloorNumber, domain.MinFloor, id)
		assert.LessOrEqual(t, got.FloorNumber, domain.MaxFloor, id)
		assert.GreaterOrEqual(t, got.SecurityLevel, domain.MinSecurityLevel, id)
		assert.LessOrEqual(t, got.SecurityLevel, domain.MaxSecurityLevel, id)
		if got.IsFireEscape {
			assert.True(t, got.IsExit, id)
		}
		assert.False(t, got.ManuallyEdited)
		assert.Equal(t, got, GenerateDeviceAttributes(id), "classification must be deterministic")
	}
}

func TestGenerateDeviceAttributes_EndToEndDevice(t *testing.T) {
	got := GenerateDeviceAttributes("F01C Staircase C")

	assert.Equal(t, "F01C Staircase C", got.DeviceID)
	assert.Equal(t, 1, got.FloorNumber)
	assert.True(t, got.IsStairwell)
	assert.Equal(t, 3, got.SecurityLevel)
	assert.Contains(t, got.AIReasoning, "Generated readable name")
}

func TestGenerateAll(t *testing.T) {
	g := NewGenerator(nil)

	got := g.GenerateAll([]string{"door_b", "door_a", "door_b", "", "  "})

	require.Len(t, got, 2)
	assert.Equal(t, "Door A", got["door_a"].DeviceName)
	assert.Equal(t, "Door B", got["door_b"].DeviceName)
}
