// Package importer orchestrates the bulk customer import pipeline: intake,
// mapping, validation, commit, and rollback, with per-batch serialization.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/custimport/internal/audit"
	"github.com/rpattn/custimport/internal/domain"
	"github.com/rpattn/custimport/internal/intake"
	"github.com/rpattn/custimport/internal/mapping"
	"github.com/rpattn/custimport/internal/repository"
	"github.com/rpattn/custimport/pkg/validator"
)

const (
	defaultPreviewPageSize = 50
	suggestionSampleRows   = 20
)

// Service is the pipeline with its dependencies injected at construction.
type Service struct {
	batches   repository.BatchRepository
	templates repository.TemplateRepository
	customers repository.CustomerRepository
	rollbacks repository.RollbackRepository

	matcher         Matcher
	rules           *validator.CustomerValidator
	sink            audit.Sink
	logger          *logrus.Logger
	limits          intake.Limits
	previewPageSize int
	locks           *keyedMutex
	now             func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithMatcher overrides the update-vs-create matching strategy.
func WithMatcher(matcher Matcher) Option {
	return func(s *Service) {
		if matcher != nil {
			s.matcher = matcher
		}
	}
}

// WithLimits overrides the intake ceilings.
func WithLimits(limits intake.Limits) Option {
	return func(s *Service) { s.limits = limits }
}

// WithAuditSink overrides the audit sink.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPreviewPageSize overrides the default preview page size.
func WithPreviewPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.previewPageSize = size
		}
	}
}

// WithClock overrides the service clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the pipeline service.
func NewService(
	batches repository.BatchRepository,
	templates repository.TemplateRepository,
	customers repository.CustomerRepository,
	rollbacks repository.RollbackRepository,
	opts ...Option,
) *Service {
	s := &Service{
		batches:         batches,
		templates:       templates,
		customers:       customers,
		rollbacks:       rollbacks,
		matcher:         ExternalIDMatcher{},
		rules:           validator.NewCustomerValidator(),
		sink:            audit.NopSink{},
		logger:          logrus.New(),
		limits:          intake.DefaultLimits(),
		previewPageSize: defaultPreviewPageSize,
		locks:           newKeyedMutex(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadRequest describes a file upload from an authenticated, tenant-scoped caller.
type UploadRequest struct {
	TenantID   uuid.UUID
	UploadedBy uuid.UUID
	FileName   string
	Payload    []byte
}

// UploadResult returns the new batch plus the first page of extracted rows.
type UploadResult struct {
	Batch   domain.ImportBatch `json:"batch"`
	Headers []string           `json:"headers"`
	Rows    []domain.RawRow    `json:"rows"`
}

// Upload validates and decodes the file, then persists the batch and its raw
// rows. Intake failures reject before any batch state is created.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if req.TenantID == uuid.Nil {
		return UploadResult{}, fmt.Errorf("tenant id is required")
	}

	table, err := intake.Extract(req.FileName, req.Payload, s.limits)
	if err != nil {
		return UploadResult{}, err
	}

	batch := domain.NewImportBatch(req.TenantID, req.UploadedBy, req.FileName, int64(len(req.Payload)), table.Headers, len(table.Rows))
	if err := s.batches.Create(ctx, batch); err != nil {
		return UploadResult{}, err
	}
	if err := s.batches.SaveRawRows(ctx, batch.ID, table.Rows); err != nil {
		return UploadResult{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"batch_id":  batch.ID,
		"tenant_id": batch.TenantID,
		"file_name": batch.FileName,
		"rows":      batch.TotalRows,
	}).Info("batch uploaded")
	s.notify(ctx, audit.EventUploaded, batch, req.UploadedBy, map[string]any{"rows": batch.TotalRows})

	firstPage := table.Rows
	if len(firstPage) > s.previewPageSize {
		firstPage = firstPage[:s.previewPageSize]
	}
	return UploadResult{Batch: batch, Headers: table.Headers, Rows: firstPage}, nil
}

// ListBatches returns a page of the tenant's batches, optionally filtered by status.
func (s *Service) ListBatches(ctx context.Context, tenantID uuid.UUID, filter repository.BatchFilter) ([]domain.ImportBatch, int, error) {
	return s.batches.List(ctx, tenantID, filter)
}

// GetBatch fetches one batch with its current preview page.
func (s *Service) GetBatch(ctx context.Context, tenantID, batchID uuid.UUID) (domain.ImportBatch, []domain.PreviewRow, error) {
	batch, err := s.batches.Get(ctx, tenantID, batchID)
	if err != nil {
		return domain.ImportBatch{}, nil, err
	}
	rows, _, err := s.batches.PagePreviewRows(ctx, batchID, false, s.previewPageSize, 0)
	if err != nil {
		return domain.ImportBatch{}, nil, err
	}
	return batch, rows, nil
}

// GetPreviewPage returns a page of staged rows, optionally only those with
// blocking errors.
func (s *Service) GetPreviewPage(ctx context.Context, tenantID, batchID uuid.UUID, errorsOnly bool, limit, offset int) ([]domain.PreviewRow, int, error) {
	if _, err := s.batches.Get(ctx, tenantID, batchID); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = s.previewPageSize
	}
	return s.batches.PagePreviewRows(ctx, batchID, errorsOnly, limit, offset)
}

// SuggestMapping proposes a source column per target field from the batch's
// headers and a sample of values. Advisory only; the batch is not mutated.
func (s *Service) SuggestMapping(ctx context.Context, tenantID, batchID uuid.UUID) ([]domain.FieldSuggestion, error) {
	batch, err := s.batches.Get(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	rows, err := s.batches.GetRawRows(ctx, batchID)
	if err != nil {
		return nil, err
	}

	// Column order comes from the batch, not from iterating row maps, so the
	// suggester's position tie-break matches the file and stays stable.
	samples := make(map[string][]string)
	for i, row := range rows {
		if i >= suggestionSampleRows {
			break
		}
		for _, header := range batch.Headers {
			samples[header] = append(samples[header], row.Values[header])
		}
	}

	return mapping.Suggest(batch.Headers, samples), nil
}

// ApplyMappingRequest carries an operator-confirmed mapping for one batch.
type ApplyMappingRequest struct {
	TenantID uuid.UUID
	Actor    uuid.UUID
	BatchID  uuid.UUID
	Config   domain.MappingConfig
	// SaveTemplateName, when non-empty, persists the config as a reusable
	// tenant template under that name.
	SaveTemplateName string
}

// ApplyMappingResult returns the staged row count and the first preview page.
type ApplyMappingResult struct {
	Batch      domain.ImportBatch      `json:"batch"`
	MappedRows int                     `json:"mapped_rows"`
	Preview    []domain.PreviewRow     `json:"preview"`
	Template   *domain.MappingTemplate `json:"template,omitempty"`
}

// ApplyMapping stages typed candidate rows from the batch's raw rows.
// Re-mapping is allowed before commit and replaces prior staged rows.
func (s *Service) ApplyMapping(ctx context.Context, req ApplyMappingRequest) (ApplyMappingResult, error) {
	unlock := s.locks.Lock(req.BatchID)
	defer unlock()

	batch, err := s.batches.Get(ctx, req.TenantID, req.BatchID)
	if err != nil {
		return ApplyMappingResult{}, err
	}
	if !batch.Status.CanTransitionTo(domain.BatchStatusMapped) {
		return ApplyMappingResult{}, fmt.Errorf("cannot map batch in status %s: %w", batch.Status, domain.ErrInvalidState)
	}
	if err := req.Config.Validate(); err != nil {
		return ApplyMappingResult{}, err
	}

	var template *domain.MappingTemplate
	if req.SaveTemplateName != "" {
		created, err := domain.NewMappingTemplate(req.TenantID, req.SaveTemplateName, req.Config)
		if err != nil {
			return ApplyMappingResult{}, err
		}
		template = &created
	}

	rawRows, err := s.batches.GetRawRows(ctx, req.BatchID)
	if err != nil {
		return ApplyMappingResult{}, err
	}

	table := intake.Table{Headers: batch.Headers, Rows: rawRows}
	previewRows := mapping.Apply(req.TenantID, req.BatchID, table, req.Config)
	if err := s.batches.ReplacePreviewRows(ctx, req.BatchID, previewRows); err != nil {
		return ApplyMappingResult{}, err
	}

	now := s.now()
	batch.Status = domain.BatchStatusMapped
	batch.MappedAt = &now
	batch.ValidatedAt = nil
	batch.ValidCount, batch.WarningCount, batch.ErrorCount = 0, 0, 0
	if err := s.batches.Update(ctx, batch); err != nil {
		return ApplyMappingResult{}, err
	}

	// The template is persisted only once the mapping itself has landed; a
	// failed staging attempt leaves no template behind.
	if template != nil {
		if err := s.templates.Create(ctx, *template); err != nil {
			return ApplyMappingResult{}, err
		}
	}

	s.notify(ctx, audit.EventMapped, batch, req.Actor, map[string]any{"columns": len(req.Config.Columns)})

	preview := previewRows
	if len(preview) > s.previewPageSize {
		preview = preview[:s.previewPageSize]
	}
	return ApplyMappingResult{Batch: batch, MappedRows: len(previewRows), Preview: preview, Template: template}, nil
}

// ValidationSummary aggregates one validation pass. Rows with any blocking
// error count as errored; rows with only warnings stay committable.
type ValidationSummary struct {
	Batch        domain.ImportBatch `json:"batch"`
	ValidCount   int                `json:"valid_count"`
	WarningCount int                `json:"warning_count"`
	ErrorCount   int                `json:"error_count"`
}

// Validate re-runs the shared business rule set over every staged row.
// Idempotent; safe to re-run after the operator edits the mapping.
func (s *Service) Validate(ctx context.Context, tenantID, actor, batchID uuid.UUID) (ValidationSummary, error) {
	unlock := s.locks.Lock(batchID)
	defer unlock()

	batch, err := s.batches.Get(ctx, tenantID, batchID)
	if err != nil {
		return ValidationSummary{}, err
	}
	if !batch.Status.CanTransitionTo(domain.BatchStatusValidated) {
		return ValidationSummary{}, fmt.Errorf("cannot validate batch in status %s: %w", batch.Status, domain.ErrInvalidState)
	}

	rows, err := s.batches.GetPreviewRows(ctx, batchID)
	if err != nil {
		return ValidationSummary{}, err
	}

	summary := ValidationSummary{}
	for i := range rows {
		rows[i].Issues = s.revalidateRow(rows[i])
		switch {
		case rows[i].HasBlockingErrors():
			summary.ErrorCount++
		case rows[i].WarningCount() > 0:
			summary.WarningCount++
		default:
			summary.ValidCount++
		}
	}

	if err := s.batches.UpdatePreviewRows(ctx, rows); err != nil {
		return ValidationSummary{}, err
	}

	now := s.now()
	batch.Status = domain.BatchStatusValidated
	batch.ValidatedAt = &now
	batch.ValidCount = summary.ValidCount
	batch.WarningCount = summary.WarningCount
	batch.ErrorCount = summary.ErrorCount
	if err := s.batches.Update(ctx, batch); err != nil {
		return ValidationSummary{}, err
	}

	s.notify(ctx, audit.EventValidated, batch, actor, map[string]any{
		"valid":    summary.ValidCount,
		"warnings": summary.WarningCount,
		"errors":   summary.ErrorCount,
	})

	summary.Batch = batch
	return summary, nil
}

// revalidateRow keeps the applier's coercion findings and replaces rule
// findings with a fresh pass.
func (s *Service) revalidateRow(row domain.PreviewRow) []domain.ValidationIssue {
	issues := []domain.ValidationIssue{}
	for _, issue := range row.Issues {
		if mapping.IsCoercionIssue(issue.Code) {
			issues = append(issues, issue)
		}
	}
	return append(issues, s.rules.Validate(row.Candidate)...)
}

// Cancel terminates a batch that has not written anything. Committed batches
// are rejected; rollback is the only undo path once writes have occurred.
func (s *Service) Cancel(ctx context.Context, tenantID, actor, batchID uuid.UUID) error {
	unlock := s.locks.Lock(batchID)
	defer unlock()

	batch, err := s.batches.Get(ctx, tenantID, batchID)
	if err != nil {
		return err
	}
	if !batch.Status.Cancellable() {
		return fmt.Errorf("cannot cancel batch in status %s: %w", batch.Status, domain.ErrInvalidState)
	}
	if err := s.batches.TransitionStatus(ctx, tenantID, batchID, batch.Status, domain.BatchStatusCancelled); err != nil {
		return err
	}

	batch.Status = domain.BatchStatusCancelled
	s.notify(ctx, audit.EventCancelled, batch, actor, nil)
	return nil
}

// ListTemplates returns the tenant's mapping templates.
func (s *Service) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]domain.MappingTemplate, error) {
	return s.templates.List(ctx, tenantID)
}

// GetTemplate fetches one tenant template.
func (s *Service) GetTemplate(ctx context.Context, tenantID, templateID uuid.UUID) (domain.MappingTemplate, error) {
	return s.templates.Get(ctx, tenantID, templateID)
}

// DeleteTemplate removes one tenant template.
func (s *Service) DeleteTemplate(ctx context.Context, tenantID, templateID uuid.UUID) error {
	return s.templates.Delete(ctx, tenantID, templateID)
}

// WriteErrorReport exports every row-level issue for the batch as CSV.
func (s *Service) WriteErrorReport(ctx context.Context, tenantID, batchID uuid.UUID, w io.Writer) error {
	if _, err := s.batches.Get(ctx, tenantID, batchID); err != nil {
		return err
	}
	rows, err := s.batches.GetPreviewRows(ctx, batchID)
	if err != nil {
		return err
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write([]string{"row_number", "field", "severity", "code", "message", "raw_value", "suggestion"}); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, row := range rows {
		for _, issue := range row.Issues {
			record := []string{
				fmt.Sprintf("%d", row.RowNumber),
				string(issue.Field),
				string(issue.Severity),
				issue.Code,
				issue.Message,
				issue.RawValue,
				issue.Suggestion,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write report row: %w", err)
			}
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func (s *Service) notify(ctx context.Context, kind audit.EventKind, batch domain.ImportBatch, actor uuid.UUID, detail map[string]any) {
	s.sink.Notify(ctx, audit.Event{
		Kind:     kind,
		TenantID: batch.TenantID,
		BatchID:  batch.ID,
		Actor:    actor,
		Detail:   detail,
		At:       s.now(),
	})
}
