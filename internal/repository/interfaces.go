package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/rpattn/custimport/internal/domain"
)

// BatchFilter narrows batch listings.
type BatchFilter struct {
	Status *domain.BatchStatus
	Limit  int
	Offset int
}

// BatchRepository persists import batches and their staged rows. Every method
// that takes a tenant ID scopes its statements to that tenant; a batch owned
// by another tenant surfaces as domain.ErrNotFound.
type BatchRepository interface {
	Create(ctx context.Context, batch domain.ImportBatch) error
	Get(ctx context.Context, tenantID, batchID uuid.UUID) (domain.ImportBatch, error)
	List(ctx context.Context, tenantID uuid.UUID, filter BatchFilter) ([]domain.ImportBatch, int, error)
	Update(ctx context.Context, batch domain.ImportBatch) error

	// TransitionStatus atomically flips a batch from one status to another.
	// Returns domain.ErrInvalidState when the batch is no longer in the
	// expected status; this is the at-most-one-commit guard.
	TransitionStatus(ctx context.Context, tenantID, batchID uuid.UUID, from, to domain.BatchStatus) error

	SaveRawRows(ctx context.Context, batchID uuid.UUID, rows []domain.RawRow) error
	GetRawRows(ctx context.Context, batchID uuid.UUID) ([]domain.RawRow, error)

	// ReplacePreviewRows discards any previously staged preview rows for the
	// batch; re-mapping supersedes earlier stages.
	ReplacePreviewRows(ctx context.Context, batchID uuid.UUID, rows []domain.PreviewRow) error
	GetPreviewRows(ctx context.Context, batchID uuid.UUID) ([]domain.PreviewRow, error)
	PagePreviewRows(ctx context.Context, batchID uuid.UUID, errorsOnly bool, limit, offset int) ([]domain.PreviewRow, int, error)
	UpdatePreviewRows(ctx context.Context, rows []domain.PreviewRow) error
}

// TemplateRepository stores tenant-scoped mapping templates.
type TemplateRepository interface {
	// Create returns domain.ErrDuplicateTemplate when the tenant already owns
	// a template with the same name.
	Create(ctx context.Context, template domain.MappingTemplate) error
	Get(ctx context.Context, tenantID, templateID uuid.UUID) (domain.MappingTemplate, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]domain.MappingTemplate, error)
	Delete(ctx context.Context, tenantID, templateID uuid.UUID) error
}

// CustomerRepository is the customer record store the pipeline commits into.
type CustomerRepository interface {
	Create(ctx context.Context, customer domain.Customer) (domain.Customer, error)
	Update(ctx context.Context, customer domain.Customer) (domain.Customer, error)
	Delete(ctx context.Context, tenantID, customerID uuid.UUID) error
	GetByID(ctx context.Context, tenantID, customerID uuid.UUID) (domain.Customer, error)
	GetByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (domain.Customer, error)
	FindByNameAddress(ctx context.Context, tenantID uuid.UUID, firstName, lastName, addressLine string) (domain.Customer, error)
	Count(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// RollbackRepository stores the reversal log written during commit.
type RollbackRepository interface {
	SaveAll(ctx context.Context, records []domain.RollbackRecord) error
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.RollbackRecord, error)
}
