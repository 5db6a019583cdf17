package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/rpattn/accessmap/internal/domain"
)

var (
	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	csvDelimiters = []rune{',', ';', '\t', '|'}
)

type textEncoding struct {
	name    string
	decoder encoding.Encoding
}

// Tried in order. A nil decoder means the payload must already be valid UTF-8.
var csvEncodings = []textEncoding{
	{name: "utf-8"},
	{name: "latin-1", decoder: charmap.ISO8859_1},
	{name: "cp1252", decoder: charmap.Windows1252},
	{name: "iso-8859-1", decoder: charmap.ISO8859_1},
}

// rawTable is a parsed upload before header and content cleanup.
type rawTable struct {
	headers []string
	rows    [][]string
}

func parseTable(ext string, payload []byte) (rawTable, domain.Issues, error) {
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".json":
		table, err := parseJSON(payload)
		return table, nil, err
	case ".xlsx", ".xls":
		table, err := parseExcel(payload)
		return table, nil, err
	default:
		return rawTable{}, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (rawTable, domain.Issues, error) {
	payload = bytes.TrimPrefix(payload, byteOrderMark)

	for _, enc := range csvEncodings {
		text, ok := decodeText(payload, enc)
		if !ok {
			continue
		}
		table, err := parseDelimited(text)
		if err != nil {
			continue
		}
		return table, nil, nil
	}

	// Last resort: keep going with replacement characters rather than fail the upload.
	text := strings.ToValidUTF8(string(payload), string(utf8.RuneError))
	table, err := parseDelimited(text)
	if err != nil {
		return rawTable{}, nil, err
	}
	issues := domain.Issues{{
		Severity: domain.SeverityWarning,
		Code:     domain.IssueLossyDecode,
		Message:  "File encoding could not be detected; undecodable bytes were replaced",
	}}
	return table, issues, nil
}

// decodeText rejects decodes that produce C1 control characters, which
// signal that a single-byte charset picked the wrong code page.
func decodeText(payload []byte, enc textEncoding) (string, bool) {
	if enc.decoder == nil {
		if !utf8.Valid(payload) {
			return "", false
		}
		return string(payload), true
	}

	decoded, err := enc.decoder.NewDecoder().Bytes(payload)
	if err != nil {
		return "", false
	}
	for _, r := range string(decoded) {
		if r >= 0x80 && r <= 0x9F {
			return "", false
		}
	}
	return string(decoded), true
}

func parseDelimited(text string) (rawTable, error) {
	var fallback *rawTable
	var lastErr error

	for _, delimiter := range csvDelimiters {
		records, err := readCSV(text, delimiter)
		if err != nil {
			lastErr = err
			continue
		}
		table, err := normalizeRecords(records)
		if err != nil {
			lastErr = err
			continue
		}
		if len(table.headers) > 1 {
			return table, nil
		}
		if fallback == nil {
			fallback = &table
		}
	}

	if fallback != nil {
		return *fallback, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no rows found in file")
	}
	return rawTable{}, lastErr
}

func readCSV(text string, delimiter rune) ([][]string, error) {
	reader := csv.NewReader(bufio.NewReader(strings.NewReader(text)))
	reader.Comma = delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func parseExcel(payload []byte) (rawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return rawTable{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return rawTable{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return rawTable{}, fmt.Errorf("failed to read rows from workbook: %w", err)
	}

	return normalizeRecords(rows)
}

// parseJSON accepts an array of objects, an object wrapping such an array
// under "data", or a single object. Columns keep first-seen key order.
func parseJSON(payload []byte) (rawTable, error) {
	payload = bytes.TrimPrefix(payload, byteOrderMark)
	if !gjson.ValidBytes(payload) {
		return rawTable{}, errors.New("invalid JSON document")
	}

	root := gjson.ParseBytes(payload)
	var records []gjson.Result
	switch {
	case root.IsArray():
		records = root.Array()
	case root.IsObject():
		if data := root.Get("data"); data.IsArray() {
			records = data.Array()
		} else {
			records = []gjson.Result{root}
		}
	default:
		return rawTable{}, errors.New("JSON upload must be an object or an array of objects")
	}

	var headers []string
	index := make(map[string]int)
	objects := make([]map[string]string, 0, len(records))

	for _, record := range records {
		if !record.IsObject() {
			continue
		}
		values := make(map[string]string)
		record.ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			if _, ok := index[name]; !ok {
				index[name] = len(headers)
				headers = append(headers, name)
			}
			values[name] = jsonCell(value)
			return true
		})
		objects = append(objects, values)
	}

	if len(headers) == 0 {
		return rawTable{}, errors.New("no rows found in file")
	}

	rows := make([][]string, len(objects))
	for i, values := range objects {
		row := make([]string, len(headers))
		for name, value := range values {
			row[index[name]] = value
		}
		rows[i] = row
	}

	return rawTable{headers: headers, rows: rows}, nil
}

func jsonCell(value gjson.Result) string {
	switch value.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return value.Str
	case gjson.Number:
		return value.Raw
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	default:
		return value.Raw
	}
}

// normalizeRecords takes the first non-blank record as the header row.
func normalizeRecords(records [][]string) (rawTable, error) {
	var headers []string
	var rows [][]string
	for _, record := range records {
		if isBlankRecord(record) {
			continue
		}
		if headers == nil {
			headers = record
			continue
		}
		rows = append(rows, record)
	}
	if headers == nil {
		return rawTable{}, errors.New("no rows found in file")
	}

	for i := range rows {
		rows[i] = padRow(rows[i], len(headers))
	}
	return rawTable{headers: headers, rows: rows}, nil
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
