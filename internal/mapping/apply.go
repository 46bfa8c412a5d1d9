package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/custimport/internal/domain"
	"github.com/rpattn/custimport/internal/intake"
)

// dateLayouts are the accepted date formats, tried in order. A value matching
// none of them is flagged unparsable, never guessed.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Coercion issue codes. The validation engine preserves these when it re-runs
// rule checks over a staged row.
const (
	CodeDateUnparsable   = "date_unparsable"
	CodeNumberUnparsable = "number_unparsable"
)

// IsCoercionIssue reports whether an issue was produced while coercing raw
// values, as opposed to a business-rule finding.
func IsCoercionIssue(code string) bool {
	return code == CodeDateUnparsable || code == CodeNumberUnparsable
}

// Apply produces one typed PreviewRow per raw row by looking up each mapped
// column's value and coercing it to the target field's type. Unmapped fields
// stay empty. Deterministic: applying the same config twice yields the same
// candidate values.
func Apply(tenantID, batchID uuid.UUID, table intake.Table, config domain.MappingConfig) []domain.PreviewRow {
	rows := make([]domain.PreviewRow, 0, len(table.Rows))
	for _, raw := range table.Rows {
		rows = append(rows, applyRow(tenantID, batchID, raw, config))
	}
	return rows
}

func applyRow(tenantID, batchID uuid.UUID, raw domain.RawRow, config domain.MappingConfig) domain.PreviewRow {
	candidate := domain.Customer{TenantID: tenantID}
	var issues []domain.ValidationIssue

	for _, col := range config.Columns {
		value := strings.TrimSpace(raw.Values[col.SourceColumn])
		if value == "" {
			continue
		}
		if issue := CoerceField(&candidate, col, value); issue != nil {
			issues = append(issues, *issue)
		}
	}

	return domain.PreviewRow{
		ID:        uuid.New(),
		BatchID:   batchID,
		RowNumber: raw.RowNumber,
		Candidate: candidate,
		Issues:    issues,
	}
}

// CoerceField writes one raw value onto the candidate, converting it to the
// target field's type. Returns a non-nil issue when the value cannot be
// coerced; the field is then left empty rather than defaulted. Also used at
// commit time to apply operator row edits.
func CoerceField(c *domain.Customer, col domain.ColumnMapping, value string) *domain.ValidationIssue {
	switch col.TargetField {
	case domain.FieldExternalID:
		c.ExternalID = value
	case domain.FieldFirstName:
		c.FirstName = value
	case domain.FieldLastName:
		c.LastName = value
	case domain.FieldEmail:
		c.Email = value
	case domain.FieldPhone:
		c.Phone = NormalizePhone(value)
	case domain.FieldCompany:
		c.Company = value
	case domain.FieldAddressLine:
		c.AddressLine = value
	case domain.FieldCity:
		c.City = value
	case domain.FieldState:
		c.State = value
	case domain.FieldPostalCode:
		c.PostalCode = value
	case domain.FieldCountry:
		c.Country = value
	case domain.FieldNotes:
		c.Notes = value
	case domain.FieldBirthDate:
		parsed, err := ParseDate(value, col.DateFormat)
		if err != nil {
			return &domain.ValidationIssue{
				Field:    domain.FieldBirthDate,
				Severity: domain.SeverityError,
				Code:     CodeDateUnparsable,
				Message:  fmt.Sprintf("%q does not match any accepted date format", value),
				RawValue: value,
			}
		}
		c.BirthDate = &parsed
	case domain.FieldLatitude, domain.FieldLongitude:
		parsed, err := ParseLocalizedNumber(value)
		if err != nil {
			return &domain.ValidationIssue{
				Field:    col.TargetField,
				Severity: domain.SeverityError,
				Code:     CodeNumberUnparsable,
				Message:  fmt.Sprintf("%q is not a number", value),
				RawValue: value,
			}
		}
		if col.TargetField == domain.FieldLatitude {
			c.Latitude = &parsed
		} else {
			c.Longitude = &parsed
		}
	}
	return nil
}

// ParseDate parses with the column's format hint when one is set; the hint is
// an override, so nothing falls back to the accepted layouts. Without a hint
// the layouts are tried in order.
func ParseDate(value string, formatHint string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if formatHint != "" {
		return time.Parse(formatHint, value)
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

// NormalizePhone strips separators, keeping digits and one leading plus. A
// parenthesized trunk zero after an international prefix, as in "+44 (0) 20",
// is dropped; without the prefix the zero is part of the number and stays.
func NormalizePhone(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "+") {
		value = strings.Replace(value, "(0)", "", 1)
	}
	var b strings.Builder
	for i, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseLocalizedNumber accepts plain, comma-decimal ("1 234,56"), and
// thousands-grouped ("1,234.56") notations.
func ParseLocalizedNumber(value string) (float64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), " ", "")
	value = strings.ReplaceAll(value, " ", "")

	lastComma := strings.LastIndex(value, ",")
	lastDot := strings.LastIndex(value, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// The rightmost separator is the decimal mark, the other groups thousands.
		if lastComma > lastDot {
			value = strings.ReplaceAll(value, ".", "")
			value = strings.Replace(value, ",", ".", 1)
		} else {
			value = strings.ReplaceAll(value, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(value, ",") == 1 {
			value = strings.Replace(value, ",", ".", 1)
		} else {
			value = strings.ReplaceAll(value, ",", "")
		}
	}

	return strconv.ParseFloat(value, 64)
}
