// Package mapper suggests how the columns of an uploaded table map onto the
// canonical access-event roles.
package mapper

import (
	"strings"

	"github.com/rpattn/accessmap/internal/domain"
)

// Patterns lists, per role, the case-insensitive substrings tried in priority order.
var Patterns = map[domain.Role][]string{
	domain.RolePersonID: {
		"person_id", "person id", "userid", "user id", "user",
		"employee", "badge", "card", "person", "emp", "id",
	},
	domain.RoleDoorID: {
		"door_id", "device name", "devicename", "device_name", "door",
		"reader", "device", "location", "access_point", "gate", "area", "room", "entry",
	},
	domain.RoleAccessResult: {
		"access_result", "access result", "accessresult", "result",
		"status", "outcome", "decision", "granted", "denied",
	},
	domain.RoleTimestamp: {
		"timestamp", "datetime", "date_time", "event_time", "access_time",
		"time", "date", "when", "occurred",
	},
}

// SuggestMapping assigns source columns to canonical roles.
//
// Roles are visited in canonical order. For each role the patterns are tried in
// order, and for each pattern every column is scanned; the first column not
// already claimed by an earlier role that contains the pattern wins. There is
// no backtracking, so an early greedy claim can leave a later role unmapped.
func SuggestMapping(columns []string) domain.ColumnMapping {
	lowered := make([]string, len(columns))
	for i, column := range columns {
		lowered[i] = strings.ToLower(column)
	}

	claimed := make(map[int]bool, len(columns))
	assignments := make(map[domain.Role]string, len(domain.CanonicalRoles))

	for _, role := range domain.CanonicalRoles {
		idx, ok := match(Patterns[role], lowered, claimed)
		if !ok {
			continue
		}
		claimed[idx] = true
		assignments[role] = columns[idx]
	}

	return domain.NewColumnMapping(assignments)
}

func match(patterns []string, lowered []string, claimed map[int]bool) (int, bool) {
	for _, pattern := range patterns {
		for idx, column := range lowered {
			if claimed[idx] || column == "" {
				continue
			}
			if strings.Contains(column, pattern) {
				return idx, true
			}
		}
	}
	return -1, false
}

// Suggestion summarizes a proposed mapping for a column confirmation step.
type Suggestion struct {
	AvailableColumns []string             `json:"available_columns"`
	CanonicalRoles   []domain.Role        `json:"canonical_roles"`
	Suggested        domain.ColumnMapping `json:"suggested_mapping"`
	Missing          []domain.Role        `json:"missing_roles"`
	MissingRequired  []domain.Role        `json:"missing_required_roles"`
}

// Suggestions builds the column confirmation payload for columns.
func Suggestions(columns []string) Suggestion {
	mapping := SuggestMapping(columns)
	missing := mapping.Missing()

	var required []domain.Role
	for _, role := range missing {
		if role.Required() {
			required = append(required, role)
		}
	}

	available := append([]string{}, columns...)
	return Suggestion{
		AvailableColumns: available,
		CanonicalRoles:   append([]domain.Role(nil), domain.CanonicalRoles...),
		Suggested:        mapping,
		Missing:          nonNil(missing),
		MissingRequired:  nonNil(required),
	}
}

func nonNil(roles []domain.Role) []domain.Role {
	if roles == nil {
		return []domain.Role{}
	}
	return roles
}
