package validator

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rpattn/accessmap/internal/domain"
)

func decodePayload(t *testing.T, payload string) map[string]any {
	t.Helper()
	var properties map[string]any
	if err := json.Unmarshal([]byte(payload), &properties); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	return properties
}

func TestDecodeEdit_AcceptsPartialCorrection(t *testing.T) {
	edit, result := DecodeEdit(decodePayload(t, `{"floor_number": 4, "is_elevator": true, "device_name": " Lift A "}`))
	if !result.IsValid {
		t.Fatalf("expected correction to validate, got errors: %+v", result.Errors)
	}

	if edit.FloorNumber == nil || *edit.FloorNumber != 4 {
		t.Fatalf("expected floor 4, got %v", edit.FloorNumber)
	}
	if edit.IsElevator == nil || !*edit.IsElevator {
		t.Fatalf("expected elevator flag to be set")
	}
	if edit.DeviceName == nil || *edit.DeviceName != "Lift A" {
		t.Fatalf("expected trimmed device name, got %v", edit.DeviceName)
	}
	if edit.SecurityLevel != nil || edit.IsExit != nil {
		t.Fatalf("expected untouched fields to stay nil")
	}
}

func TestDecodeEdit_RejectsOutOfRangeValues(t *testing.T) {
	cases := map[string]string{
		"floor too low":     `{"floor_number": 0}`,
		"floor too high":    `{"floor_number": 100}`,
		"fractional floor":  `{"floor_number": 2.5}`,
		"security too high": `{"security_level": 11}`,
		"string security":   `{"security_level": "high"}`,
		"empty name":        `{"device_name": "   "}`,
		"flag as string":    `{"is_exit": "yes"}`,
		"unknown property":  `{"confidence": 0.9}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, result := DecodeEdit(decodePayload(t, payload))
			if result.IsValid {
				t.Fatalf("expected %s to be rejected", payload)
			}
			if !errors.Is(result.Err(), domain.ErrInvalidCorrection) {
				t.Fatalf("expected ErrInvalidCorrection, got %v", result.Err())
			}
		})
	}
}

func TestDecodeEdit_WarnsWhenFireEscapeIsNotExit(t *testing.T) {
	_, result := DecodeEdit(decodePayload(t, `{"is_fire_escape": true, "is_exit": false}`))
	if !result.IsValid {
		t.Fatalf("expected contradictory flags to be a warning, got %+v", result.Errors)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Field != "is_exit" {
		t.Fatalf("expected one is_exit warning, got %+v", result.Warnings)
	}
}

func TestValidateEdit(t *testing.T) {
	floor := 120
	name := ""
	result := ValidateEdit(domain.DeviceEdit{FloorNumber: &floor, DeviceName: &name})
	if result.IsValid || len(result.Errors) != 2 {
		t.Fatalf("expected two errors, got %+v", result.Errors)
	}

	floor = 12
	if result := ValidateEdit(domain.DeviceEdit{FloorNumber: &floor}); !result.IsValid {
		t.Fatalf("expected floor 12 to pass, got %+v", result.Errors)
	}
}

func TestValidateAttributes(t *testing.T) {
	confidence := 0.75
	valid := domain.DeviceAttributes{
		DeviceID:      "door_1",
		FloorNumber:   1,
		SecurityLevel: 5,
		Confidence:    &confidence,
	}
	if result := ValidateAttributes(valid); !result.IsValid || len(result.Warnings) != 0 {
		t.Fatalf("expected inferred record to validate cleanly, got %+v", result)
	}

	broken := valid
	broken.IsFireEscape = true
	broken.FloorNumber = 0
	if result := ValidateAttributes(broken); result.IsValid || len(result.Errors) != 2 {
		t.Fatalf("expected floor and exit errors, got %+v", result.Errors)
	}

	edited := valid
	edited.ManuallyEdited = true
	edited.Confidence = nil
	if result := ValidateAttributes(edited); !result.IsValid || len(result.Warnings) != 0 {
		t.Fatalf("expected edited record without confidence to validate, got %+v", result)
	}
}
