package ingestion

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/schema/validator"
)

var (
	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
		"2006/01/02 15:04:05",
		"2006/01/02",
		"01/02/2006 15:04:05",
		"01/02/2006 15:04",
		"01/02/2006",
		"02/01/2006",
		"02.01.2006 15:04:05",
	}

	resultSynonyms = map[string]string{
		"success":  "Granted",
		"allow":    "Granted",
		"allowed":  "Granted",
		"yes":      "Granted",
		"true":     "Granted",
		"1":        "Granted",
		"pass":     "Granted",
		"fail":     "Denied",
		"false":    "Denied",
		"no":       "Denied",
		"0":        "Denied",
		"block":    "Denied",
		"blocked":  "Denied",
		"reject":   "Denied",
		"rejected": "Denied",
	}

	expectedResults = map[string]struct{}{
		"Granted": {},
		"Denied":  {},
		"Failed":  {},
		"Error":   {},
	}
)

// maxReportedValues caps the sample of offending values attached to an issue.
const maxReportedValues = 10

// normalizeHeaders builds a table from a parsed upload, dropping blank rows
// and cleaning column names.
func normalizeHeaders(raw rawTable) (*domain.Table, domain.Issues) {
	table := domain.NewTable(raw.headers, raw.rows)
	var issues domain.Issues

	table.Filter(func(row []string) bool {
		for _, cell := range row {
			if !domain.IsNull(cell) {
				return true
			}
		}
		return false
	})

	drop := make(map[int]bool)
	for idx, name := range table.Columns {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			name = fmt.Sprintf("unnamed: %d", idx)
			if columnIsNull(table, idx) {
				drop[idx] = true
			}
		}
		table.Columns[idx] = name
	}
	table.DropColumns(drop)

	seen := make(map[string]int, len(table.Columns))
	var duplicates []string
	for idx, name := range table.Columns {
		count := seen[name]
		seen[name] = count + 1
		if count == 0 {
			continue
		}
		renamed := fmt.Sprintf("%s_%d", name, count+1)
		for seen[renamed] > 0 {
			count++
			renamed = fmt.Sprintf("%s_%d", name, count+1)
		}
		seen[renamed] = 1
		table.Columns[idx] = renamed
		duplicates = append(duplicates, renamed)
	}
	if len(duplicates) > 0 {
		issues = append(issues, domain.ValidationIssue{
			Severity: domain.SeverityWarning,
			Code:     domain.IssueDuplicateColumns,
			Message:  fmt.Sprintf("Duplicate column names were renamed: %s", strings.Join(duplicates, ", ")),
			Count:    len(duplicates),
			Values:   duplicates,
		})
	}

	return table, issues
}

func columnIsNull(table *domain.Table, idx int) bool {
	for _, row := range table.Rows {
		if !domain.IsNull(row[idx]) {
			return false
		}
	}
	return true
}

// applyMapping renames mapped columns to their role names. An unmapped
// column that already carries a role name is moved aside as <name>_raw.
func applyMapping(table *domain.Table, mapping domain.ColumnMapping) domain.Issues {
	sources := make(map[string]bool, mapping.Len())
	for _, role := range mapping.Roles() {
		source, _ := mapping.Source(role)
		sources[source] = true
	}

	taken := make(map[string]bool, len(table.Columns))
	for _, column := range table.Columns {
		taken[column] = true
	}

	renames := make(map[string]string, mapping.Len())
	var moved []string
	for _, role := range mapping.Roles() {
		source, _ := mapping.Source(role)
		target := role.String()
		if source == target {
			continue
		}
		if taken[target] && !sources[target] {
			aside := target + "_raw"
			for n := 2; taken[aside]; n++ {
				aside = fmt.Sprintf("%s_raw_%d", target, n)
			}
			taken[aside] = true
			renames[target] = aside
			moved = append(moved, target)
		}
		renames[source] = target
	}

	table.Rename(renames)

	if len(moved) == 0 {
		return nil
	}
	return domain.Issues{{
		Severity: domain.SeverityWarning,
		Code:     domain.IssueRenamedCollision,
		Message:  fmt.Sprintf("Unmapped columns clashing with canonical names were renamed with a _raw suffix: %s", strings.Join(moved, ", ")),
		Count:    len(moved),
		Values:   moved,
	}}
}

func requiredIssues(mapping domain.ColumnMapping) domain.Issues {
	missing, err := validator.ValidateMapping(mapping)
	if err == nil {
		return nil
	}
	values := make([]string, len(missing))
	for i, role := range missing {
		values[i] = role.String()
	}
	return domain.Issues{{
		Severity: domain.SeverityError,
		Code:     domain.IssueMissingRequired,
		Message:  fmt.Sprintf("Missing required columns: %s", strings.Join(values, ", ")),
		Count:    len(missing),
		Values:   values,
	}}
}

// standardizeTimestamps rewrites parseable timestamps as RFC 3339 and drops
// rows whose timestamp cannot be read.
func standardizeTimestamps(table *domain.Table) domain.Issues {
	idx := table.ColumnIndex(domain.RoleTimestamp.String())
	if idx < 0 {
		return nil
	}

	invalid := newValueSample()
	removed := table.Filter(func(row []string) bool {
		ts, err := parseTimestamp(row[idx])
		if err != nil {
			invalid.add(row[idx])
			return false
		}
		row[idx] = ts.Format(time.RFC3339Nano)
		return true
	})
	if removed == 0 {
		return nil
	}

	return domain.Issues{{
		Severity: domain.SeverityWarning,
		Code:     domain.IssueInvalidTimestamps,
		Message:  fmt.Sprintf("Removed %d rows with invalid timestamps", removed),
		Count:    removed,
		Values:   invalid.values(),
	}}
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if domain.IsNull(raw) {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	ts, err := cast.ToTimeE(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp format: %w", err)
	}
	return ts.UTC(), nil
}

// standardizeResults canonicalizes access results and warns about values
// outside the expected vocabulary.
func standardizeResults(table *domain.Table) domain.Issues {
	idx := table.ColumnIndex(domain.RoleAccessResult.String())
	if idx < 0 {
		return nil
	}

	unexpected := newValueSample()
	affected := 0
	for _, row := range table.Rows {
		if domain.IsNull(row[idx]) {
			continue
		}
		row[idx] = NormalizeAccessResult(row[idx])
		if _, ok := expectedResults[row[idx]]; !ok {
			unexpected.add(row[idx])
			affected++
		}
	}
	if affected == 0 {
		return nil
	}

	values := unexpected.values()
	return domain.Issues{{
		Severity: domain.SeverityWarning,
		Code:     domain.IssueUnexpectedResults,
		Message:  fmt.Sprintf("Unexpected access result values: %s", strings.Join(values, ", ")),
		Count:    affected,
		Values:   values,
	}}
}

// NormalizeAccessResult maps a raw access result onto Granted, Denied or a
// title-cased original.
func NormalizeAccessResult(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= len("access ") && strings.EqualFold(value[:len("access ")], "access ") {
		value = strings.TrimSpace(value[len("access "):])
	}
	if canonical, ok := resultSynonyms[strings.ToLower(value)]; ok {
		return canonical
	}
	return cases.Title(language.Und).String(value)
}

func dropCriticalNulls(table *domain.Table) domain.Issues {
	var critical []int
	for _, role := range []domain.Role{domain.RolePersonID, domain.RoleDoorID} {
		if idx := table.ColumnIndex(role.String()); idx >= 0 {
			critical = append(critical, idx)
		}
	}
	if len(critical) == 0 {
		return nil
	}

	removed := table.Filter(func(row []string) bool {
		for _, idx := range critical {
			if domain.IsNull(row[idx]) {
				return false
			}
		}
		return true
	})
	if removed == 0 {
		return nil
	}

	return domain.Issues{{
		Severity: domain.SeverityWarning,
		Code:     domain.IssueCriticalNulls,
		Message:  fmt.Sprintf("Removed %d rows with missing person_id or door_id", removed),
		Count:    removed,
	}}
}

type valueSample struct {
	seen map[string]struct{}
}

func newValueSample() *valueSample {
	return &valueSample{seen: make(map[string]struct{})}
}

func (s *valueSample) add(value string) {
	s.seen[value] = struct{}{}
}

func (s *valueSample) values() []string {
	out := make([]string, 0, len(s.seen))
	for value := range s.seen {
		out = append(out, value)
	}
	sort.Strings(out)
	if len(out) > maxReportedValues {
		out = out[:maxReportedValues]
	}
	return out
}
