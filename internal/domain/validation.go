package domain

// Severity classifies a validation issue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue codes reported by the upload validator.
const (
	IssueEmptyFile         = "empty_file"
	IssueUnsupportedFormat = "unsupported_format"
	IssueFileTooLarge      = "file_too_large"
	IssueLossyDecode       = "lossy_decode"
	IssueParseFailed       = "parse_failed"
	IssueNoRows            = "no_rows"
	IssueMissingRequired   = "missing_required_column"
	IssueInvalidTimestamps = "invalid_timestamps"
	IssueUnexpectedResults = "unexpected_access_results"
	IssueCriticalNulls     = "missing_critical_values"
	IssueDuplicateColumns  = "duplicate_columns"
	IssueRenamedCollision  = "renamed_column_collision"
	IssueInvalidMapping    = "invalid_manual_mapping"
)

// ValidationIssue is one structured problem found while validating an upload.
type ValidationIssue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Count    int      `json:"count,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// Issues is an ordered list of validation issues.
type Issues []ValidationIssue

// HasErrors reports whether any issue has error severity.
func (i Issues) HasErrors() bool {
	for _, issue := range i {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Messages returns the issue messages in order.
func (i Issues) Messages() []string {
	out := make([]string, 0, len(i))
	for _, issue := range i {
		out = append(out, issue.Message)
	}
	return out
}
