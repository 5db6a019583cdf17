package validator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rpattn/accessmap/internal/domain"
)

// FieldType is the JSON type a correction property must carry.
type FieldType string

const (
	FieldTypeString  FieldType = "STRING"
	FieldTypeInteger FieldType = "INTEGER"
	FieldTypeBoolean FieldType = "BOOLEAN"
)

// FieldDefinition represents a correctable device attribute
type FieldDefinition struct {
	Type      FieldType `json:"type"`
	Required  bool      `json:"required"`
	Min       *int      `json:"min,omitempty"`
	Max       *int      `json:"max,omitempty"`
	MinLength int       `json:"min_length,omitempty"`
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
}

func (r *ValidationResult) addError(field, message string, value any) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Value: value})
}

func (r *ValidationResult) addWarning(field, message string, value any) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message, Value: value})
}

// Err flattens the result into a single error wrapping domain.ErrInvalidCorrection.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	messages := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		messages[i] = e.Message
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidCorrection, strings.Join(messages, "; "))
}

func newResult() ValidationResult {
	return ValidationResult{
		IsValid:  true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}
}

func intPtr(v int) *int { return &v }

// DeviceEditFields lists the attributes a reviewer may correct.
var DeviceEditFields = map[string]FieldDefinition{
	"device_name":    {Type: FieldTypeString, MinLength: 1},
	"floor_number":   {Type: FieldTypeInteger, Min: intPtr(domain.MinFloor), Max: intPtr(domain.MaxFloor)},
	"security_level": {Type: FieldTypeInteger, Min: intPtr(domain.MinSecurityLevel), Max: intPtr(domain.MaxSecurityLevel)},
	"is_entry":       {Type: FieldTypeBoolean},
	"is_exit":        {Type: FieldTypeBoolean},
	"is_elevator":    {Type: FieldTypeBoolean},
	"is_stairwell":   {Type: FieldTypeBoolean},
	"is_fire_escape": {Type: FieldTypeBoolean},
}

// ValidateProperties validates raw correction properties against field definitions
func ValidateProperties(properties map[string]any, definitions map[string]FieldDefinition) ValidationResult {
	result := newResult()

	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := definitions[name]
		value, exists := properties[name]

		if def.Required && (!exists || value == nil) {
			result.addError(name, fmt.Sprintf("required field '%s' is missing", name), nil)
			continue
		}
		if !exists || value == nil {
			continue
		}

		if err := validateFieldType(name, value, def); err != nil {
			result.addError(name, err.Error(), value)
		}
	}

	extra := make([]string, 0)
	for name := range properties {
		if _, ok := definitions[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		result.addError(name, fmt.Sprintf("property '%s' cannot be corrected", name), properties[name])
	}

	return result
}

func validateFieldType(name string, value any, def FieldDefinition) error {
	switch def.Type {
	case FieldTypeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field '%s' must be a string, got %T", name, value)
		}
		if len(strings.TrimSpace(s)) < def.MinLength {
			return fmt.Errorf("field '%s' must not be empty", name)
		}
	case FieldTypeInteger:
		n, ok := asInteger(value)
		if !ok {
			return fmt.Errorf("field '%s' must be an integer, got %T", name, value)
		}
		if def.Min != nil && n < *def.Min {
			return fmt.Errorf("field '%s' value %d is less than minimum %d", name, n, *def.Min)
		}
		if def.Max != nil && n > *def.Max {
			return fmt.Errorf("field '%s' value %d is greater than maximum %d", name, n, *def.Max)
		}
	case FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field '%s' must be a boolean, got %T", name, value)
		}
	default:
		return fmt.Errorf("unknown field type: %s", def.Type)
	}
	return nil
}

func asInteger(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

// DecodeEdit validates a JSON correction payload and converts it to a DeviceEdit.
func DecodeEdit(properties map[string]any) (domain.DeviceEdit, ValidationResult) {
	result := ValidateProperties(properties, DeviceEditFields)
	if !result.IsValid {
		return domain.DeviceEdit{}, result
	}

	var edit domain.DeviceEdit
	if v, ok := properties["device_name"].(string); ok {
		name := strings.TrimSpace(v)
		edit.DeviceName = &name
	}
	if v, ok := asInteger(properties["floor_number"]); ok {
		edit.FloorNumber = &v
	}
	if v, ok := asInteger(properties["security_level"]); ok {
		edit.SecurityLevel = &v
	}
	edit.IsEntry = boolField(properties, "is_entry")
	edit.IsExit = boolField(properties, "is_exit")
	edit.IsElevator = boolField(properties, "is_elevator")
	edit.IsStairwell = boolField(properties, "is_stairwell")
	edit.IsFireEscape = boolField(properties, "is_fire_escape")

	if edit.IsFireEscape != nil && *edit.IsFireEscape && edit.IsExit != nil && !*edit.IsExit {
		result.addWarning("is_exit", "fire escapes are always exits; is_exit will be set", false)
	}

	return edit, result
}

func boolField(properties map[string]any, name string) *bool {
	v, ok := properties[name].(bool)
	if !ok {
		return nil
	}
	return &v
}

// ValidateEdit checks typed edit values against the same bounds as DecodeEdit.
func ValidateEdit(edit domain.DeviceEdit) ValidationResult {
	result := newResult()
	if edit.DeviceName != nil && strings.TrimSpace(*edit.DeviceName) == "" {
		result.addError("device_name", "field 'device_name' must not be empty", *edit.DeviceName)
	}
	if edit.FloorNumber != nil {
		if err := validateFieldType("floor_number", *edit.FloorNumber, DeviceEditFields["floor_number"]); err != nil {
			result.addError("floor_number", err.Error(), *edit.FloorNumber)
		}
	}
	if edit.SecurityLevel != nil {
		if err := validateFieldType("security_level", *edit.SecurityLevel, DeviceEditFields["security_level"]); err != nil {
			result.addError("security_level", err.Error(), *edit.SecurityLevel)
		}
	}
	return result
}

// ValidateAttributes checks a full attribute record, such as one loaded from storage.
func ValidateAttributes(attrs domain.DeviceAttributes) ValidationResult {
	result := newResult()

	if strings.TrimSpace(attrs.DeviceID) == "" {
		result.addError("device_id", "field 'device_id' must not be empty", attrs.DeviceID)
	}
	if attrs.FloorNumber < domain.MinFloor || attrs.FloorNumber > domain.MaxFloor {
		result.addError("floor_number", fmt.Sprintf("floor %d is outside %d..%d", attrs.FloorNumber, domain.MinFloor, domain.MaxFloor), attrs.FloorNumber)
	}
	if attrs.SecurityLevel < domain.MinSecurityLevel || attrs.SecurityLevel > domain.MaxSecurityLevel {
		result.addError("security_level", fmt.Sprintf("security level %d is outside %d..%d", attrs.SecurityLevel, domain.MinSecurityLevel, domain.MaxSecurityLevel), attrs.SecurityLevel)
	}
	if attrs.IsFireEscape && !attrs.IsExit {
		result.addError("is_exit", "fire escape must also be an exit", attrs.IsExit)
	}

	switch {
	case attrs.ManuallyEdited && attrs.Confidence != nil:
		result.addWarning("confidence", "manually edited devices carry no confidence", *attrs.Confidence)
	case !attrs.ManuallyEdited && attrs.Confidence == nil:
		result.addWarning("confidence", "inferred devices should carry a confidence", nil)
	case attrs.Confidence != nil && (*attrs.Confidence < domain.MinConfidence || *attrs.Confidence > domain.MaxConfidence):
		result.addError("confidence", fmt.Sprintf("confidence %.2f is outside %.2f..%.2f", *attrs.Confidence, domain.MinConfidence, domain.MaxConfidence), *attrs.Confidence)
	}

	return result
}
