package domain

import "github.com/google/uuid"

// Severity classifies a validation finding. Errors block commit; warnings are
// informational and leave the row committable.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is one finding against one field of a staged row.
type ValidationIssue struct {
	Field      Field    `json:"field"`
	Severity   Severity `json:"severity"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	RawValue   string   `json:"raw_value,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// RawRow is an extracted spreadsheet row before mapping: the 1-based source
// row number (header excluded) and the header to raw value pairs. Superseded
// by a PreviewRow once a mapping is applied.
type RawRow struct {
	RowNumber int               `json:"row_number"`
	Values    map[string]string `json:"values"`
}

// PreviewRow is the staged, typed candidate record derived from one raw row.
type PreviewRow struct {
	ID        uuid.UUID         `json:"id"`
	BatchID   uuid.UUID         `json:"batch_id"`
	RowNumber int               `json:"row_number"`
	Candidate Customer          `json:"candidate"`
	Issues    []ValidationIssue `json:"issues,omitempty"`
	Excluded  bool              `json:"excluded,omitempty"`
}

// HasBlockingErrors reports whether any error-severity issue is attached.
func (r PreviewRow) HasBlockingErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// WarningCount counts warning-severity issues on the row.
func (r PreviewRow) WarningCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityWarning {
			n++
		}
	}
	return n
}
