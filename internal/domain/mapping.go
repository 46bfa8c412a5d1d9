package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ColumnMapping binds one source column to one target field, with optional
// per-field transform hints.
type ColumnMapping struct {
	SourceColumn string `json:"source_column"`
	TargetField  Field  `json:"target_field"`
	// DateFormat overrides the accepted date layouts for this column, using Go
	// reference-time syntax.
	DateFormat string `json:"date_format,omitempty"`
}

// MappingConfig is the operator-confirmed column to field correspondence
// applied to a batch's raw rows.
type MappingConfig struct {
	Columns []ColumnMapping `json:"columns"`
}

// Validate rejects configs that reference fields outside the dictionary, map
// the same target twice, or leave a column blank.
func (c MappingConfig) Validate() error {
	if len(c.Columns) == 0 {
		return fmt.Errorf("mapping config has no columns")
	}
	seen := make(map[Field]string, len(c.Columns))
	for _, col := range c.Columns {
		if strings.TrimSpace(col.SourceColumn) == "" {
			return fmt.Errorf("mapping for field %q has an empty source column", col.TargetField)
		}
		if !IsKnownField(col.TargetField) {
			return fmt.Errorf("unknown target field %q", col.TargetField)
		}
		if prev, ok := seen[col.TargetField]; ok {
			return fmt.Errorf("field %q mapped from both %q and %q", col.TargetField, prev, col.SourceColumn)
		}
		seen[col.TargetField] = col.SourceColumn
	}
	return nil
}

// Lookup returns the mapping for a target field, if present.
func (c MappingConfig) Lookup(f Field) (ColumnMapping, bool) {
	for _, col := range c.Columns {
		if col.TargetField == f {
			return col, true
		}
	}
	return ColumnMapping{}, false
}

// MappingTemplate is a tenant-scoped, named mapping config reusable across
// future batches.
type MappingTemplate struct {
	ID        uuid.UUID     `json:"id"`
	TenantID  uuid.UUID     `json:"tenant_id"`
	Name      string        `json:"name"`
	Config    MappingConfig `json:"config"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewMappingTemplate creates a template after checking the config against the
// field dictionary.
func NewMappingTemplate(tenantID uuid.UUID, name string, config MappingConfig) (MappingTemplate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return MappingTemplate{}, fmt.Errorf("template name is required")
	}
	if err := config.Validate(); err != nil {
		return MappingTemplate{}, err
	}
	return MappingTemplate{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		Config:    config,
		CreatedAt: time.Now(),
	}, nil
}

// FieldSuggestion is the suggester's best source column for one target field.
// Purely advisory; the operator's mapping call is authoritative.
type FieldSuggestion struct {
	Field        Field   `json:"field"`
	SourceColumn string  `json:"source_column,omitempty"`
	Confidence   float64 `json:"confidence"`
}
