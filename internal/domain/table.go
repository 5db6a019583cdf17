package domain

import (
	"sort"
	"strings"
)

var nullMarkers = map[string]struct{}{
	"":     {},
	"nan":  {},
	"nat":  {},
	"null": {},
	"none": {},
	"n/a":  {},
	"na":   {},
	"#n/a": {},
}

// IsNull reports whether a cell carries no usable value.
func IsNull(value string) bool {
	_, ok := nullMarkers[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// Table is a small in-memory tabular data set. Every row has len(Columns) cells.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewTable builds a table, padding or truncating rows to the column count.
func NewTable(columns []string, rows [][]string) *Table {
	t := &Table{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		t.Rows = append(t.Rows, padRow(row, len(columns)))
	}
	return t
}

// EmptyTable returns a table with no columns and no rows.
func EmptyTable() *Table {
	return &Table{Columns: []string{}, Rows: [][]string{}}
}

// Shape returns [rows, columns].
func (t *Table) Shape() [2]int {
	if t == nil {
		return [2]int{0, 0}
	}
	return [2]int{len(t.Rows), len(t.Columns)}
}

// ColumnIndex returns the position of name or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for idx, column := range t.Columns {
		if column == name {
			return idx
		}
	}
	return -1
}

// HasColumn reports whether the table has a column called name.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Column returns a copy of the values in the named column.
func (t *Table) Column(name string) []string {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values
}

// UniqueValues returns the sorted distinct non-null values of a column.
func (t *Table) UniqueValues(name string) []string {
	seen := make(map[string]struct{})
	var unique []string
	for _, value := range t.Column(name) {
		value = strings.TrimSpace(value)
		if IsNull(value) {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		unique = append(unique, value)
	}
	sort.Strings(unique)
	return unique
}

// Rename renames columns in place. Names not present are ignored.
func (t *Table) Rename(renames map[string]string) {
	for idx, column := range t.Columns {
		if target, ok := renames[column]; ok {
			t.Columns[idx] = target
		}
	}
}

// Filter keeps rows for which keep returns true and returns the number removed.
func (t *Table) Filter(keep func(row []string) bool) int {
	kept := t.Rows[:0]
	removed := 0
	for _, row := range t.Rows {
		if keep(row) {
			kept = append(kept, row)
			continue
		}
		removed++
	}
	t.Rows = kept
	return removed
}

// DropColumns removes the columns at the given positions.
func (t *Table) DropColumns(drop map[int]bool) {
	if len(drop) == 0 {
		return
	}
	columns := make([]string, 0, len(t.Columns))
	for idx, column := range t.Columns {
		if !drop[idx] {
			columns = append(columns, column)
		}
	}
	for r, row := range t.Rows {
		cells := make([]string, 0, len(columns))
		for idx, cell := range row {
			if !drop[idx] {
				cells = append(cells, cell)
			}
		}
		t.Rows[r] = cells
	}
	t.Columns = columns
}

// Head returns a copy limited to the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	return NewTable(t.Columns, t.Rows[:n])
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	if t == nil {
		return EmptyTable()
	}
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = append([]string(nil), row...)
	}
	return &Table{Columns: append([]string(nil), t.Columns...), Rows: rows}
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return append([]string(nil), row[:length]...)
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
