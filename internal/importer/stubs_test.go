package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/custimport/internal/domain"
	"github.com/rpattn/custimport/internal/repository"
)

// In-memory repositories for service tests.

type stubBatchRepo struct {
	batches  map[uuid.UUID]domain.ImportBatch
	rawRows  map[uuid.UUID][]domain.RawRow
	previews map[uuid.UUID][]domain.PreviewRow
	// failReplacePreview makes staging fail, to exercise the ordering of
	// mapping side effects.
	failReplacePreview bool
}

func newStubBatchRepo() *stubBatchRepo {
	return &stubBatchRepo{
		batches:  make(map[uuid.UUID]domain.ImportBatch),
		rawRows:  make(map[uuid.UUID][]domain.RawRow),
		previews: make(map[uuid.UUID][]domain.PreviewRow),
	}
}

func (r *stubBatchRepo) Create(_ context.Context, batch domain.ImportBatch) error {
	r.batches[batch.ID] = batch
	return nil
}

func (r *stubBatchRepo) Get(_ context.Context, tenantID, batchID uuid.UUID) (domain.ImportBatch, error) {
	batch, ok := r.batches[batchID]
	if !ok || batch.TenantID != tenantID {
		return domain.ImportBatch{}, fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
	}
	return batch, nil
}

func (r *stubBatchRepo) List(_ context.Context, tenantID uuid.UUID, filter repository.BatchFilter) ([]domain.ImportBatch, int, error) {
	var out []domain.ImportBatch
	for _, batch := range r.batches {
		if batch.TenantID != tenantID {
			continue
		}
		if filter.Status != nil && batch.Status != *filter.Status {
			continue
		}
		out = append(out, batch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (r *stubBatchRepo) Update(_ context.Context, batch domain.ImportBatch) error {
	if _, ok := r.batches[batch.ID]; !ok {
		return fmt.Errorf("batch %s: %w", batch.ID, domain.ErrNotFound)
	}
	r.batches[batch.ID] = batch
	return nil
}

func (r *stubBatchRepo) TransitionStatus(_ context.Context, tenantID, batchID uuid.UUID, from, to domain.BatchStatus) error {
	batch, ok := r.batches[batchID]
	if !ok || batch.TenantID != tenantID {
		return fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
	}
	if batch.Status != from {
		return fmt.Errorf("batch %s is not %s: %w", batchID, from, domain.ErrInvalidState)
	}
	batch.Status = to
	r.batches[batchID] = batch
	return nil
}

func (r *stubBatchRepo) SaveRawRows(_ context.Context, batchID uuid.UUID, rows []domain.RawRow) error {
	r.rawRows[batchID] = rows
	return nil
}

func (r *stubBatchRepo) GetRawRows(_ context.Context, batchID uuid.UUID) ([]domain.RawRow, error) {
	return r.rawRows[batchID], nil
}

func (r *stubBatchRepo) ReplacePreviewRows(_ context.Context, batchID uuid.UUID, rows []domain.PreviewRow) error {
	if r.failReplacePreview {
		return fmt.Errorf("storage unavailable")
	}
	r.previews[batchID] = rows
	return nil
}

func (r *stubBatchRepo) GetPreviewRows(_ context.Context, batchID uuid.UUID) ([]domain.PreviewRow, error) {
	return r.previews[batchID], nil
}

func (r *stubBatchRepo) PagePreviewRows(_ context.Context, batchID uuid.UUID, errorsOnly bool, limit, offset int) ([]domain.PreviewRow, int, error) {
	var filtered []domain.PreviewRow
	for _, row := range r.previews[batchID] {
		if errorsOnly && !row.HasBlockingErrors() {
			continue
		}
		filtered = append(filtered, row)
	}
	total := len(filtered)
	if offset > len(filtered) {
		offset = len(filtered)
	}
	filtered = filtered[offset:]
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, total, nil
}

func (r *stubBatchRepo) UpdatePreviewRows(_ context.Context, rows []domain.PreviewRow) error {
	for _, updated := range rows {
		existing := r.previews[updated.BatchID]
		for i := range existing {
			if existing[i].ID == updated.ID {
				existing[i] = updated
			}
		}
	}
	return nil
}

type stubTemplateRepo struct {
	templates map[uuid.UUID]domain.MappingTemplate
}

func newStubTemplateRepo() *stubTemplateRepo {
	return &stubTemplateRepo{templates: make(map[uuid.UUID]domain.MappingTemplate)}
}

func (r *stubTemplateRepo) Create(_ context.Context, template domain.MappingTemplate) error {
	for _, existing := range r.templates {
		if existing.TenantID == template.TenantID && existing.Name == template.Name {
			return fmt.Errorf("template %q: %w", template.Name, domain.ErrDuplicateTemplate)
		}
	}
	r.templates[template.ID] = template
	return nil
}

func (r *stubTemplateRepo) Get(_ context.Context, tenantID, templateID uuid.UUID) (domain.MappingTemplate, error) {
	template, ok := r.templates[templateID]
	if !ok || template.TenantID != tenantID {
		return domain.MappingTemplate{}, fmt.Errorf("template %s: %w", templateID, domain.ErrNotFound)
	}
	return template, nil
}

func (r *stubTemplateRepo) List(_ context.Context, tenantID uuid.UUID) ([]domain.MappingTemplate, error) {
	var out []domain.MappingTemplate
	for _, template := range r.templates {
		if template.TenantID == tenantID {
			out = append(out, template)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *stubTemplateRepo) Delete(_ context.Context, tenantID, templateID uuid.UUID) error {
	template, ok := r.templates[templateID]
	if !ok || template.TenantID != tenantID {
		return fmt.Errorf("template %s: %w", templateID, domain.ErrNotFound)
	}
	delete(r.templates, templateID)
	return nil
}

type stubCustomerRepo struct {
	customers map[uuid.UUID]domain.Customer
	// failCreates makes Create fail for the given external ids, to exercise
	// per-row failure handling.
	failCreates map[string]bool
	failDeletes map[uuid.UUID]bool
}

func newStubCustomerRepo() *stubCustomerRepo {
	return &stubCustomerRepo{
		customers:   make(map[uuid.UUID]domain.Customer),
		failCreates: make(map[string]bool),
		failDeletes: make(map[uuid.UUID]bool),
	}
}

func (r *stubCustomerRepo) Create(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	if r.failCreates[customer.ExternalID] {
		return domain.Customer{}, fmt.Errorf("storage unavailable")
	}
	r.customers[customer.ID] = customer
	return customer, nil
}

func (r *stubCustomerRepo) Update(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	if _, ok := r.customers[customer.ID]; !ok {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", customer.ID, domain.ErrNotFound)
	}
	r.customers[customer.ID] = customer
	return customer, nil
}

func (r *stubCustomerRepo) Delete(_ context.Context, tenantID, customerID uuid.UUID) error {
	if r.failDeletes[customerID] {
		return fmt.Errorf("storage unavailable")
	}
	customer, ok := r.customers[customerID]
	if !ok || customer.TenantID != tenantID {
		return fmt.Errorf("customer %s: %w", customerID, domain.ErrNotFound)
	}
	delete(r.customers, customerID)
	return nil
}

func (r *stubCustomerRepo) GetByID(_ context.Context, tenantID, customerID uuid.UUID) (domain.Customer, error) {
	customer, ok := r.customers[customerID]
	if !ok || customer.TenantID != tenantID {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", customerID, domain.ErrNotFound)
	}
	return customer, nil
}

func (r *stubCustomerRepo) GetByExternalID(_ context.Context, tenantID uuid.UUID, externalID string) (domain.Customer, error) {
	for _, customer := range r.customers {
		if customer.TenantID == tenantID && customer.ExternalID == externalID {
			return customer, nil
		}
	}
	return domain.Customer{}, fmt.Errorf("external id %s: %w", externalID, domain.ErrNotFound)
}

func (r *stubCustomerRepo) FindByNameAddress(_ context.Context, tenantID uuid.UUID, firstName, lastName, addressLine string) (domain.Customer, error) {
	for _, customer := range r.customers {
		if customer.TenantID == tenantID &&
			strings.EqualFold(customer.FirstName, firstName) &&
			strings.EqualFold(customer.LastName, lastName) &&
			strings.EqualFold(customer.AddressLine, addressLine) {
			return customer, nil
		}
	}
	return domain.Customer{}, fmt.Errorf("no match: %w", domain.ErrNotFound)
}

func (r *stubCustomerRepo) Count(_ context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	for _, customer := range r.customers {
		if customer.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

type stubRollbackRepo struct {
	records map[uuid.UUID][]domain.RollbackRecord
}

func newStubRollbackRepo() *stubRollbackRepo {
	return &stubRollbackRepo{records: make(map[uuid.UUID][]domain.RollbackRecord)}
}

func (r *stubRollbackRepo) SaveAll(_ context.Context, records []domain.RollbackRecord) error {
	for _, record := range records {
		r.records[record.BatchID] = append(r.records[record.BatchID], record)
	}
	return nil
}

func (r *stubRollbackRepo) ListByBatch(_ context.Context, batchID uuid.UUID) ([]domain.RollbackRecord, error) {
	records := append([]domain.RollbackRecord(nil), r.records[batchID]...)
	sort.Slice(records, func(i, j int) bool { return records[i].RowNumber < records[j].RowNumber })
	return records, nil
}

var (
	_ repository.BatchRepository    = (*stubBatchRepo)(nil)
	_ repository.TemplateRepository = (*stubTemplateRepo)(nil)
	_ repository.CustomerRepository = (*stubCustomerRepo)(nil)
	_ repository.RollbackRepository = (*stubRollbackRepo)(nil)
)
