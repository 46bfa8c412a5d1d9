package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Field identifies a customer attribute that imported columns can map onto.
type Field string

const (
	FieldExternalID  Field = "external_id"
	FieldFirstName   Field = "first_name"
	FieldLastName    Field = "last_name"
	FieldEmail       Field = "email"
	FieldPhone       Field = "phone"
	FieldCompany     Field = "company"
	FieldAddressLine Field = "address_line"
	FieldCity        Field = "city"
	FieldState       Field = "state"
	FieldPostalCode  Field = "postal_code"
	FieldCountry     Field = "country"
	FieldBirthDate   Field = "birth_date"
	FieldLatitude    Field = "latitude"
	FieldLongitude   Field = "longitude"
	FieldNotes       Field = "notes"
)

// KnownFields lists every field the validation engine recognizes, in the order
// suggestions and previews are presented.
func KnownFields() []Field {
	return []Field{
		FieldExternalID,
		FieldFirstName,
		FieldLastName,
		FieldEmail,
		FieldPhone,
		FieldCompany,
		FieldAddressLine,
		FieldCity,
		FieldState,
		FieldPostalCode,
		FieldCountry,
		FieldBirthDate,
		FieldLatitude,
		FieldLongitude,
		FieldNotes,
	}
}

// IsKnownField reports whether f belongs to the field dictionary.
func IsKnownField(f Field) bool {
	for _, known := range KnownFields() {
		if f == known {
			return true
		}
	}
	return false
}

// Customer is the production record the pipeline creates or updates. The same
// struct, with the same validation tags, backs the direct creation path.
type Customer struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	ExternalID string    `json:"external_id,omitempty" validate:"omitempty,max=64"`

	FirstName   string `json:"first_name" validate:"required,min=2,max=128"`
	LastName    string `json:"last_name,omitempty" validate:"omitempty,min=2,max=128"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Phone       string `json:"phone,omitempty"`
	Company     string `json:"company,omitempty" validate:"omitempty,max=256"`
	AddressLine string `json:"address_line,omitempty" validate:"omitempty,max=256"`
	City        string `json:"city,omitempty" validate:"omitempty,max=128"`
	State       string `json:"state,omitempty" validate:"omitempty,max=128"`
	PostalCode  string `json:"postal_code,omitempty" validate:"omitempty,max=16"`
	Country     string `json:"country,omitempty" validate:"omitempty,max=64"`
	Notes       string `json:"notes,omitempty"`

	BirthDate *time.Time `json:"birth_date,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64   `json:"longitude,omitempty" validate:"omitempty,longitude"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCustomer creates a customer owned by the tenant.
func NewCustomer(tenantID uuid.UUID) Customer {
	now := time.Now()
	return Customer{
		ID:        uuid.New(),
		TenantID:  tenantID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FieldValue returns the string form of a mapped field, used for previews and
// the error report export.
func (c Customer) FieldValue(f Field) string {
	switch f {
	case FieldExternalID:
		return c.ExternalID
	case FieldFirstName:
		return c.FirstName
	case FieldLastName:
		return c.LastName
	case FieldEmail:
		return c.Email
	case FieldPhone:
		return c.Phone
	case FieldCompany:
		return c.Company
	case FieldAddressLine:
		return c.AddressLine
	case FieldCity:
		return c.City
	case FieldState:
		return c.State
	case FieldPostalCode:
		return c.PostalCode
	case FieldCountry:
		return c.Country
	case FieldBirthDate:
		if c.BirthDate == nil {
			return ""
		}
		return c.BirthDate.Format("2006-01-02")
	case FieldLatitude:
		if c.Latitude == nil {
			return ""
		}
		return strconv.FormatFloat(*c.Latitude, 'f', -1, 64)
	case FieldLongitude:
		if c.Longitude == nil {
			return ""
		}
		return strconv.FormatFloat(*c.Longitude, 'f', -1, 64)
	case FieldNotes:
		return c.Notes
	default:
		return ""
	}
}
