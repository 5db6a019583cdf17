package validator

import (
	"fmt"
	"strings"

	"github.com/rpattn/accessmap/internal/domain"
)

// ValidateMapping ensures a column mapping covers every required role. It
// returns the missing required roles alongside the error so callers can
// report them without parsing the message.
func ValidateMapping(mapping domain.ColumnMapping) ([]domain.Role, error) {
	var missing []domain.Role
	for _, role := range mapping.Missing() {
		if role.Required() {
			missing = append(missing, role)
		}
	}

	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, role := range missing {
			names[i] = role.String()
		}
		return missing, fmt.Errorf("required columns not mapped: %s", strings.Join(names, ", "))
	}

	return nil, nil
}

// ValidateManualMapping resolves a human-supplied role -> source column mapping
// against the available columns.
func ValidateManualMapping(manual map[string]string, columns []string) (domain.ColumnMapping, error) {
	available := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		available[column] = struct{}{}
	}

	assignments := make(map[domain.Role]string, len(manual))
	claimedBy := make(map[string]domain.Role, len(manual))

	for name, source := range manual {
		role, err := domain.ParseRole(name)
		if err != nil {
			return domain.ColumnMapping{}, err
		}

		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		if _, ok := available[source]; !ok {
			return domain.ColumnMapping{}, fmt.Errorf("column %q mapped to %s does not exist", source, role)
		}
		if other, ok := claimedBy[source]; ok {
			return domain.ColumnMapping{}, fmt.Errorf("column %q cannot be mapped to both %s and %s", source, other, role)
		}

		claimedBy[source] = role
		assignments[role] = source
	}

	return domain.NewColumnMapping(assignments), nil
}
