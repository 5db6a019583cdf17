package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Role is one of the canonical column meanings an uploaded table is normalized toward.
type Role string

const (
	RolePersonID     Role = "person_id"
	RoleDoorID       Role = "door_id"
	RoleAccessResult Role = "access_result"
	RoleTimestamp    Role = "timestamp"
)

// CanonicalRoles lists every role in mapping priority order.
var CanonicalRoles = []Role{
	RolePersonID,
	RoleDoorID,
	RoleAccessResult,
	RoleTimestamp,
}

var roleRegistry = map[string]Role{
	string(RolePersonID):     RolePersonID,
	string(RoleDoorID):       RoleDoorID,
	string(RoleAccessResult): RoleAccessResult,
	string(RoleTimestamp):    RoleTimestamp,
}

// ParseRole resolves a role name. Matching ignores case and surrounding space.
func ParseRole(value string) (Role, error) {
	role, ok := roleRegistry[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
	}
	return role, nil
}

// Required reports whether downstream analytics cannot work without the role.
func (r Role) Required() bool {
	return r == RolePersonID || r == RoleDoorID
}

func (r Role) String() string {
	return string(r)
}

// ColumnMapping maps canonical roles to the source column each was matched to.
// The zero value is an empty mapping. It is immutable once constructed.
type ColumnMapping struct {
	sources map[Role]string
}

// NewColumnMapping copies the provided assignments into a new mapping.
func NewColumnMapping(assignments map[Role]string) ColumnMapping {
	sources := make(map[Role]string, len(assignments))
	for role, column := range assignments {
		if column == "" {
			continue
		}
		sources[role] = column
	}
	return ColumnMapping{sources: sources}
}

// Source returns the source column for role, if mapped.
func (m ColumnMapping) Source(role Role) (string, bool) {
	column, ok := m.sources[role]
	return column, ok
}

// Roles returns mapped roles in canonical order.
func (m ColumnMapping) Roles() []Role {
	roles := make([]Role, 0, len(m.sources))
	for _, role := range CanonicalRoles {
		if _, ok := m.sources[role]; ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// Missing returns canonical roles that have no source column.
func (m ColumnMapping) Missing() []Role {
	var missing []Role
	for _, role := range CanonicalRoles {
		if _, ok := m.sources[role]; !ok {
			missing = append(missing, role)
		}
	}
	return missing
}

// Len returns the number of mapped roles.
func (m ColumnMapping) Len() int {
	return len(m.sources)
}

// AsMap returns a copy keyed by role name.
func (m ColumnMapping) AsMap() map[string]string {
	out := make(map[string]string, len(m.sources))
	for role, column := range m.sources {
		out[string(role)] = column
	}
	return out
}

// Renames returns source column -> role name pairs, ordered by source column.
func (m ColumnMapping) Renames() [][2]string {
	pairs := make([][2]string, 0, len(m.sources))
	for role, column := range m.sources {
		pairs = append(pairs, [2]string{column, string(role)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return pairs
}

func (m ColumnMapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.AsMap())
}

func (m *ColumnMapping) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	assignments := make(map[Role]string, len(raw))
	for name, column := range raw {
		role, err := ParseRole(name)
		if err != nil {
			return err
		}
		assignments[role] = column
	}
	*m = NewColumnMapping(assignments)
	return nil
}
