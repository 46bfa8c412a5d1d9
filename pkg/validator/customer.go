// Package validator applies the business rules enforced on direct customer
// creation. The import pipeline runs the same engine against every staged row
// so a batch can never commit data the live path would reject.
package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	playground "github.com/go-playground/validator/v10"

	"github.com/rpattn/custimport/internal/domain"
)

// CustomerValidator validates customer records against the shared rule set.
type CustomerValidator struct {
	validate *playground.Validate
	now      func() time.Time
}

// NewCustomerValidator creates a new customer validator.
func NewCustomerValidator() *CustomerValidator {
	return &CustomerValidator{
		validate: playground.New(playground.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// structFields maps the struct field names reported by the validator back to
// dictionary fields.
var structFields = map[string]domain.Field{
	"ExternalID":  domain.FieldExternalID,
	"FirstName":   domain.FieldFirstName,
	"LastName":    domain.FieldLastName,
	"Email":       domain.FieldEmail,
	"Phone":       domain.FieldPhone,
	"Company":     domain.FieldCompany,
	"AddressLine": domain.FieldAddressLine,
	"City":        domain.FieldCity,
	"State":       domain.FieldState,
	"PostalCode":  domain.FieldPostalCode,
	"Country":     domain.FieldCountry,
	"BirthDate":   domain.FieldBirthDate,
	"Latitude":    domain.FieldLatitude,
	"Longitude":   domain.FieldLongitude,
	"Notes":       domain.FieldNotes,
}

const minPhoneDigits = 7

// Validate runs every rule and returns the findings. Idempotent; safe to
// re-run after edits.
func (cv *CustomerValidator) Validate(c domain.Customer) []domain.ValidationIssue {
	issues := []domain.ValidationIssue{}

	if err := cv.validate.Struct(c); err != nil {
		var verrs playground.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				issues = append(issues, cv.issueFromTag(fe, c))
			}
		}
	}

	if c.Phone != "" {
		if digits := countDigits(c.Phone); digits < minPhoneDigits {
			issues = append(issues, domain.ValidationIssue{
				Field:    domain.FieldPhone,
				Severity: domain.SeverityError,
				Code:     "phone_too_short",
				Message:  fmt.Sprintf("phone number has %d digits, at least %d required", digits, minPhoneDigits),
				RawValue: c.Phone,
			})
		}
	}

	if c.BirthDate != nil {
		switch {
		case c.BirthDate.After(cv.now()):
			issues = append(issues, domain.ValidationIssue{
				Field:    domain.FieldBirthDate,
				Severity: domain.SeverityError,
				Code:     "birth_date_in_future",
				Message:  "birth date is in the future",
				RawValue: c.BirthDate.Format("2006-01-02"),
			})
		case c.BirthDate.Year() < 1900:
			issues = append(issues, domain.ValidationIssue{
				Field:    domain.FieldBirthDate,
				Severity: domain.SeverityWarning,
				Code:     "birth_date_suspicious",
				Message:  "birth date is before 1900",
				RawValue: c.BirthDate.Format("2006-01-02"),
			})
		}
	}

	if c.PostalCode != "" && !postalCodeShape(c.PostalCode) {
		issues = append(issues, domain.ValidationIssue{
			Field:    domain.FieldPostalCode,
			Severity: domain.SeverityWarning,
			Code:     "postal_code_shape",
			Message:  "postal code contains unexpected characters",
			RawValue: c.PostalCode,
		})
	}

	if (c.Latitude == nil) != (c.Longitude == nil) {
		issues = append(issues, domain.ValidationIssue{
			Field:    domain.FieldLatitude,
			Severity: domain.SeverityWarning,
			Code:     "coordinate_incomplete",
			Message:  "latitude and longitude should be supplied together",
		})
	}

	return issues
}

// HasErrors reports whether any finding blocks commit.
func HasErrors(issues []domain.ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == domain.SeverityError {
			return true
		}
	}
	return false
}

func (cv *CustomerValidator) issueFromTag(fe playground.FieldError, c domain.Customer) domain.ValidationIssue {
	field, ok := structFields[fe.StructField()]
	if !ok {
		field = domain.Field(strings.ToLower(fe.StructField()))
	}

	issue := domain.ValidationIssue{
		Field:    field,
		Severity: domain.SeverityError,
		RawValue: c.FieldValue(field),
	}

	switch fe.Tag() {
	case "required":
		issue.Code = "required_missing"
		issue.Message = fmt.Sprintf("%s is required", field)
	case "min":
		issue.Code = "too_short"
		issue.Message = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		issue.Code = "too_long"
		issue.Message = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		issue.Code = "email_invalid"
		issue.Message = "not a valid e-mail address"
		if fixed := cv.suggestEmail(c.Email); fixed != "" {
			issue.Suggestion = fixed
		}
	case "latitude":
		issue.Code = "latitude_out_of_range"
		issue.Message = "latitude must be between -90 and 90"
	case "longitude":
		issue.Code = "longitude_out_of_range"
		issue.Message = "longitude must be between -180 and 180"
	default:
		issue.Code = fe.Tag()
		issue.Message = fmt.Sprintf("%s failed %s check", field, fe.Tag())
	}

	return issue
}

// suggestEmail returns a corrected address when trimming and lower-casing is
// all that is wrong with it.
func (cv *CustomerValidator) suggestEmail(raw string) string {
	fixed := strings.ToLower(strings.TrimSpace(raw))
	if fixed == "" || fixed == raw {
		return ""
	}
	if err := cv.validate.Var(fixed, "email"); err != nil {
		return ""
	}
	return fixed
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func postalCodeShape(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == ' ', r == '-':
		default:
			return false
		}
	}
	return true
}
