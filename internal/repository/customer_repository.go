package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/custimport/internal/domain"
)

type customerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository wires the customer store backed by pgxpool.
func NewCustomerRepository(pool *pgxpool.Pool) CustomerRepository {
	return &customerRepository{pool: pool}
}

const customerColumns = `id, tenant_id, external_id, first_name, last_name, email, phone,
	company, address_line, city, state, postal_code, country, notes,
	birth_date, latitude, longitude, created_at, updated_at`

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO customers (`+customerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		customer.ID, customer.TenantID, customer.ExternalID, customer.FirstName, customer.LastName,
		customer.Email, customer.Phone, customer.Company, customer.AddressLine, customer.City,
		customer.State, customer.PostalCode, customer.Country, customer.Notes,
		customer.BirthDate, customer.Latitude, customer.Longitude, customer.CreatedAt, customer.UpdatedAt,
	)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("failed to create customer: %w", err)
	}
	return customer, nil
}

func (r *customerRepository) Update(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET
			external_id = $3, first_name = $4, last_name = $5, email = $6, phone = $7,
			company = $8, address_line = $9, city = $10, state = $11, postal_code = $12,
			country = $13, notes = $14, birth_date = $15, latitude = $16, longitude = $17,
			updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		customer.TenantID, customer.ID, customer.ExternalID, customer.FirstName, customer.LastName,
		customer.Email, customer.Phone, customer.Company, customer.AddressLine, customer.City,
		customer.State, customer.PostalCode, customer.Country, customer.Notes,
		customer.BirthDate, customer.Latitude, customer.Longitude,
	)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("failed to update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", customer.ID, domain.ErrNotFound)
	}
	return customer, nil
}

func (r *customerRepository) Delete(ctx context.Context, tenantID, customerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM customers WHERE tenant_id = $1 AND id = $2`,
		tenantID, customerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %s: %w", customerID, domain.ErrNotFound)
	}
	return nil
}

func (r *customerRepository) GetByID(ctx context.Context, tenantID, customerID uuid.UUID) (domain.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND id = $2`,
		tenantID, customerID,
	)
	return scanCustomer(row, customerID.String())
}

func (r *customerRepository) GetByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (domain.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND external_id = $2`,
		tenantID, externalID,
	)
	return scanCustomer(row, externalID)
}

func (r *customerRepository) FindByNameAddress(ctx context.Context, tenantID uuid.UUID, firstName, lastName, addressLine string) (domain.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers
		 WHERE tenant_id = $1 AND lower(first_name) = lower($2)
		   AND lower(last_name) = lower($3) AND lower(address_line) = lower($4)`,
		tenantID, firstName, lastName, addressLine,
	)
	return scanCustomer(row, firstName+" "+lastName)
}

func (r *customerRepository) Count(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM customers WHERE tenant_id = $1`, tenantID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return count, nil
}

func scanCustomer(row pgx.Row, ref string) (domain.Customer, error) {
	var (
		customer  domain.Customer
		birthDate pgtype.Date
		latitude  pgtype.Float8
		longitude pgtype.Float8
	)
	err := row.Scan(
		&customer.ID, &customer.TenantID, &customer.ExternalID, &customer.FirstName, &customer.LastName,
		&customer.Email, &customer.Phone, &customer.Company, &customer.AddressLine, &customer.City,
		&customer.State, &customer.PostalCode, &customer.Country, &customer.Notes,
		&birthDate, &latitude, &longitude, &customer.CreatedAt, &customer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Customer{}, fmt.Errorf("customer %s: %w", ref, domain.ErrNotFound)
		}
		return domain.Customer{}, fmt.Errorf("failed to scan customer: %w", err)
	}
	if birthDate.Valid {
		customer.BirthDate = &birthDate.Time
	}
	if latitude.Valid {
		customer.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		customer.Longitude = &longitude.Float64
	}
	return customer, nil
}
