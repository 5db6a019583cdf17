package domain

import "time"

// Bounds for inferred and corrected device attributes.
const (
	MinFloor             = 1
	MaxFloor             = 99
	DefaultFloor         = 1
	MinSecurityLevel     = 0
	MaxSecurityLevel     = 10
	DefaultSecurityLevel = 5
	MinConfidence        = 0.3
	MaxConfidence        = 0.95
)

// DeviceAttributes is the inferred or human-corrected metadata for one device identifier.
type DeviceAttributes struct {
	DeviceID       string     `json:"device_id"`
	DeviceName     string     `json:"device_name"`
	FloorNumber    int        `json:"floor_number"`
	SecurityLevel  int        `json:"security_level"`
	IsEntry        bool       `json:"is_entry"`
	IsExit         bool       `json:"is_exit"`
	IsElevator     bool       `json:"is_elevator"`
	IsStairwell    bool       `json:"is_stairwell"`
	IsFireEscape   bool       `json:"is_fire_escape"`
	Confidence     *float64   `json:"confidence"`
	AIReasoning    []string   `json:"ai_reasoning"`
	ManuallyEdited bool       `json:"manually_edited"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
}

// ConfidenceValue returns the confidence or zero when it has been cleared.
func (d DeviceAttributes) ConfidenceValue() float64 {
	if d.Confidence == nil {
		return 0
	}
	return *d.Confidence
}

// DeviceMappings is a per-file set of device attributes keyed by device id.
type DeviceMappings map[string]DeviceAttributes

// HasHumanCorrections reports whether any device was edited by a person.
func (m DeviceMappings) HasHumanCorrections() bool {
	for _, device := range m {
		if device.ManuallyEdited {
			return true
		}
	}
	return false
}

// Clone copies the mapping, including reasoning slices and the values
// behind Confidence and EditedAt.
func (m DeviceMappings) Clone() DeviceMappings {
	if m == nil {
		return DeviceMappings{}
	}
	out := make(DeviceMappings, len(m))
	for id, device := range m {
		device.AIReasoning = append([]string(nil), device.AIReasoning...)
		if device.Confidence != nil {
			confidence := *device.Confidence
			device.Confidence = &confidence
		}
		if device.EditedAt != nil {
			editedAt := *device.EditedAt
			device.EditedAt = &editedAt
		}
		out[id] = device
	}
	return out
}

// DeviceEdit carries a human correction. Nil fields are left untouched.
type DeviceEdit struct {
	DeviceName    *string `json:"device_name,omitempty"`
	FloorNumber   *int    `json:"floor_number,omitempty"`
	SecurityLevel *int    `json:"security_level,omitempty"`
	IsEntry       *bool   `json:"is_entry,omitempty"`
	IsExit        *bool   `json:"is_exit,omitempty"`
	IsElevator    *bool   `json:"is_elevator,omitempty"`
	IsStairwell   *bool   `json:"is_stairwell,omitempty"`
	IsFireEscape  *bool   `json:"is_fire_escape,omitempty"`
}
