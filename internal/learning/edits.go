package learning

import (
	"fmt"
	"sort"
	"time"

	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/pkg/validator"
)

// ApplyEdits returns a copy of devices with the edits applied. Every edit is
// validated before anything changes, so a bad edit leaves devices untouched.
func ApplyEdits(devices domain.DeviceMappings, edits map[string]domain.DeviceEdit, now time.Time) (domain.DeviceMappings, error) {
	ids := make([]string, 0, len(edits))
	for id := range edits {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if _, ok := devices[id]; !ok {
			return nil, fmt.Errorf("device %q: %w", id, domain.ErrNotFound)
		}
		if err := validator.ValidateEdit(edits[id]).Err(); err != nil {
			return nil, fmt.Errorf("device %q: %w", id, err)
		}
	}

	out := devices.Clone()
	editedAt := now.UTC()
	for _, id := range ids {
		out[id] = applyEdit(out[id], edits[id], editedAt)
	}
	return out, nil
}

func applyEdit(device domain.DeviceAttributes, edit domain.DeviceEdit, editedAt time.Time) domain.DeviceAttributes {
	if edit.DeviceName != nil {
		device.DeviceName = *edit.DeviceName
	}
	if edit.FloorNumber != nil {
		device.FloorNumber = *edit.FloorNumber
	}
	if edit.SecurityLevel != nil {
		device.SecurityLevel = *edit.SecurityLevel
	}
	if edit.IsEntry != nil {
		device.IsEntry = *edit.IsEntry
	}
	if edit.IsExit != nil {
		device.IsExit = *edit.IsExit
	}
	if edit.IsElevator != nil {
		device.IsElevator = *edit.IsElevator
	}
	if edit.IsStairwell != nil {
		device.IsStairwell = *edit.IsStairwell
	}
	if edit.IsFireEscape != nil {
		device.IsFireEscape = *edit.IsFireEscape
	}
	if device.IsFireEscape {
		device.IsExit = true
	}

	device.ManuallyEdited = true
	device.Confidence = nil
	device.EditedAt = &editedAt
	return device
}
