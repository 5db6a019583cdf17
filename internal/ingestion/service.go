package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/repository"
	"github.com/rpattn/accessmap/internal/schema/mapper"
	"github.com/rpattn/accessmap/internal/schema/validator"
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Options bounds what the service accepts.
type Options struct {
	MaxSizeBytes      int64
	AllowedExtensions []string
}

// DefaultOptions accepts CSV, JSON and Excel uploads up to 100 MB.
func DefaultOptions() Options {
	return Options{
		MaxSizeBytes:      100 << 20,
		AllowedExtensions: []string{".csv", ".json", ".xlsx", ".xls"},
	}
}

// Service validates and standardizes uploaded access-event tables.
type Service struct {
	logRepo repository.IngestionLogRepository
	logger  *zap.Logger
	opts    Options
}

// NewService creates a new ingestion service. logRepo may be nil.
func NewService(logRepo repository.IngestionLogRepository, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = DefaultOptions().MaxSizeBytes
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = DefaultOptions().AllowedExtensions
	}
	normalized := make([]string, len(opts.AllowedExtensions))
	for i, ext := range opts.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	opts.AllowedExtensions = normalized

	return &Service{logRepo: logRepo, logger: logger, opts: opts}
}

// Result is the outcome of processing one upload. Valid is false when any
// error-severity issue was raised; Loaded is true whenever a table was read,
// so a degraded but usable upload has Loaded set and Valid cleared.
type Result struct {
	Filename        string               `json:"filename"`
	Table           *domain.Table        `json:"table"`
	Mapping         domain.ColumnMapping `json:"mapping"`
	OriginalColumns []string             `json:"original_columns"`
	Issues          domain.Issues        `json:"issues"`
	Valid           bool                 `json:"valid"`
	Loaded          bool                 `json:"loaded"`
}

// ValidateFile checks an upload before it is parsed.
func (s *Service) ValidateFile(size int64, filename string) domain.Issues {
	var issues domain.Issues

	if size == 0 {
		issues = append(issues, domain.ValidationIssue{
			Severity: domain.SeverityError,
			Code:     domain.IssueEmptyFile,
			Message:  "File is empty",
		})
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !s.allowed(ext) {
		issues = append(issues, domain.ValidationIssue{
			Severity: domain.SeverityError,
			Code:     domain.IssueUnsupportedFormat,
			Message:  fmt.Sprintf("File type %q not allowed; accepted types: %s", ext, strings.Join(s.opts.AllowedExtensions, ", ")),
		})
	}

	if size > s.opts.MaxSizeBytes {
		issues = append(issues, tooLargeIssue(size, s.opts.MaxSizeBytes))
	}

	return issues
}

func tooLargeIssue(size, limit int64) domain.ValidationIssue {
	return domain.ValidationIssue{
		Severity: domain.SeverityError,
		Code:     domain.IssueFileTooLarge,
		Message:  fmt.Sprintf("File too large (%d bytes); maximum is %d bytes", size, limit),
	}
}

// RejectOversized builds the result for an upload whose body was cut off
// before it could be read. The file name is unknown at that point.
func (s *Service) RejectOversized(ctx context.Context, tooLarge *UploadTooLargeError) Result {
	limit := s.opts.MaxSizeBytes
	if tooLarge.Limit > 0 && tooLarge.Limit < limit {
		limit = tooLarge.Limit
	}
	result := Result{Table: domain.EmptyTable()}
	return s.finish(ctx, result, domain.Issues{tooLargeIssue(tooLarge.Size, limit)})
}

func (s *Service) allowed(ext string) bool {
	for _, candidate := range s.opts.AllowedExtensions {
		if candidate == ext {
			return true
		}
	}
	return false
}

// Process decodes, cleans and maps an upload onto the canonical roles using
// the suggested column mapping. It never fails: every problem is reported as
// an issue on the result.
func (s *Service) Process(ctx context.Context, raw []byte, filename string) Result {
	return s.process(ctx, raw, filename, nil)
}

// ProcessWithMapping is Process with a human-confirmed role -> column mapping
// in place of the suggested one. Column names refer to the cleaned headers.
func (s *Service) ProcessWithMapping(ctx context.Context, raw []byte, filename string, manual map[string]string) Result {
	if manual == nil {
		manual = map[string]string{}
	}
	return s.process(ctx, raw, filename, manual)
}

func (s *Service) process(ctx context.Context, raw []byte, filename string, manual map[string]string) Result {
	result := Result{
		Filename: filename,
		Table:    domain.EmptyTable(),
	}

	if issues := s.ValidateFile(int64(len(raw)), filename); len(issues) > 0 {
		return s.finish(ctx, result, issues)
	}

	parsed, issues, err := parseTable(strings.ToLower(filepath.Ext(filename)), raw)
	if err != nil {
		issues = append(issues, domain.ValidationIssue{
			Severity: domain.SeverityError,
			Code:     domain.IssueParseFailed,
			Message:  fmt.Sprintf("Could not read %s: %v", filename, err),
		})
		return s.finish(ctx, result, issues)
	}

	table, headerIssues := normalizeHeaders(parsed)
	issues = append(issues, headerIssues...)
	result.Loaded = true
	result.OriginalColumns = append([]string(nil), table.Columns...)

	var mapping domain.ColumnMapping
	if manual != nil {
		mapping, err = validator.ValidateManualMapping(manual, table.Columns)
		if err != nil {
			issues = append(issues, domain.ValidationIssue{
				Severity: domain.SeverityError,
				Code:     domain.IssueInvalidMapping,
				Message:  fmt.Sprintf("Column mapping rejected: %v", err),
			})
			result.Table = table
			return s.finish(ctx, result, issues)
		}
	} else {
		mapping = mapper.SuggestMapping(table.Columns)
	}
	result.Mapping = mapping

	issues = append(issues, applyMapping(table, mapping)...)
	issues = append(issues, requiredIssues(mapping)...)
	issues = append(issues, standardizeTimestamps(table)...)
	issues = append(issues, standardizeResults(table)...)
	issues = append(issues, dropCriticalNulls(table)...)

	if len(table.Rows) == 0 {
		issues = append(issues, domain.ValidationIssue{
			Severity: domain.SeverityWarning,
			Code:     domain.IssueNoRows,
			Message:  "No usable rows remain after cleaning",
		})
	}

	result.Table = table
	return s.finish(ctx, result, issues)
}

func (s *Service) finish(ctx context.Context, result Result, issues domain.Issues) Result {
	if issues == nil {
		issues = domain.Issues{}
	}
	result.Issues = issues
	result.Valid = !issues.HasErrors()

	shape := result.Table.Shape()
	s.logger.Info("Processed upload",
		zap.String("filename", result.Filename),
		zap.Int("rows", shape[0]),
		zap.Int("columns", shape[1]),
		zap.Int("issues", len(issues)),
		zap.Bool("valid", result.Valid))

	for _, issue := range issues {
		s.logIngestionIssue(ctx, result.Filename, issue)
	}
	return result
}

func (s *Service) logIngestionIssue(ctx context.Context, filename string, issue domain.ValidationIssue) {
	if s.logRepo == nil {
		return
	}
	entry := domain.IngestionLogEntry{
		FileName: filename,
		Severity: issue.Severity,
		Code:     issue.Code,
		Message:  issue.Message,
	}
	if issue.Count > 0 {
		count := issue.Count
		entry.RowCount = &count
	}
	if err := s.logRepo.Record(ctx, entry); err != nil {
		s.logger.Warn("Failed to record ingestion issue", zap.String("filename", filename), zap.Error(err))
	}
}

// ApplyManualMapping renames source columns to role names on a copy of table.
// Unknown roles and missing source columns are errors.
func ApplyManualMapping(table *domain.Table, manual map[string]string) (*domain.Table, error) {
	mapping, err := validator.ValidateManualMapping(manual, table.Columns)
	if err != nil {
		return nil, err
	}
	out := table.Clone()
	applyMapping(out, mapping)
	return out, nil
}
