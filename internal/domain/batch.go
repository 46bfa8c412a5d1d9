package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BatchStatus tracks an import batch through its lifecycle.
type BatchStatus string

const (
	BatchStatusUploaded   BatchStatus = "uploaded"
	BatchStatusMapped     BatchStatus = "mapped"
	BatchStatusValidated  BatchStatus = "validated"
	BatchStatusCommitted  BatchStatus = "committed"
	BatchStatusRolledBack BatchStatus = "rolled_back"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

// Valid reports whether the value is a known batch status.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusUploaded, BatchStatusMapped, BatchStatusValidated,
		BatchStatusCommitted, BatchStatusRolledBack, BatchStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no forward processing is possible from the status.
// A committed batch is terminal for forward processing; rollback is its only
// remaining transition.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusRolledBack, BatchStatusCancelled:
		return true
	default:
		return false
	}
}

// Cancellable reports whether a batch in this status may be cancelled.
// Once a commit has written records, rollback is the only undo path.
func (s BatchStatus) Cancellable() bool {
	switch s {
	case BatchStatusUploaded, BatchStatusMapped, BatchStatusValidated:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the batch state machine. Mapping and validation may
// be re-entered before commit; everything else is one-directional.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	switch next {
	case BatchStatusMapped:
		return s == BatchStatusUploaded || s == BatchStatusMapped || s == BatchStatusValidated
	case BatchStatusValidated:
		return s == BatchStatusMapped || s == BatchStatusValidated
	case BatchStatusCommitted:
		return s == BatchStatusValidated
	case BatchStatusRolledBack:
		return s == BatchStatusCommitted
	case BatchStatusCancelled:
		return s.Cancellable()
	default:
		return false
	}
}

// ImportBatch represents one uploaded file's end-to-end import session.
// Every read or write against a batch is scoped by TenantID.
type ImportBatch struct {
	ID         uuid.UUID   `json:"id"`
	TenantID   uuid.UUID   `json:"tenant_id"`
	UploadedBy uuid.UUID   `json:"uploaded_by"`
	FileName   string      `json:"file_name"`
	FileSize   int64       `json:"file_size"`
	Headers    []string    `json:"headers"`
	TotalRows  int         `json:"total_rows"`
	Status     BatchStatus `json:"status"`

	ValidCount   int `json:"valid_count"`
	WarningCount int `json:"warning_count"`
	ErrorCount   int `json:"error_count"`

	CreatedCount int `json:"created_count"`
	UpdatedCount int `json:"updated_count"`
	SkippedCount int `json:"skipped_count"`
	FailedCount  int `json:"failed_count"`

	CreatedAt   time.Time  `json:"created_at"`
	MappedAt    *time.Time `json:"mapped_at,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	CommittedAt *time.Time `json:"committed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewImportBatch creates a batch in the uploaded state with a sanitized file
// name, recording the file's column order for later mapping passes.
func NewImportBatch(tenantID, uploadedBy uuid.UUID, fileName string, fileSize int64, headers []string, totalRows int) ImportBatch {
	now := time.Now()
	return ImportBatch{
		ID:         uuid.New(),
		TenantID:   tenantID,
		UploadedBy: uploadedBy,
		FileName:   SanitizeFileName(fileName),
		FileSize:   fileSize,
		Headers:    headers,
		TotalRows:  totalRows,
		Status:     BatchStatusUploaded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

const maxFileNameLength = 128

// SanitizeFileName restricts a user supplied file name to a safe character set
// and caps its length, preserving the extension when it has to truncate.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name = strings.Trim(b.String(), ". ")
	if name == "" {
		return "upload"
	}
	if len(name) <= maxFileNameLength {
		return name
	}

	ext := ""
	if idx := strings.LastIndex(name, "."); idx > 0 && len(name)-idx <= 8 {
		ext = name[idx:]
	}
	return name[:maxFileNameLength-len(ext)] + ext
}
