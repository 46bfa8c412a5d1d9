package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/custimport/internal/domain"
)

type batchRepository struct {
	pool *pgxpool.Pool
}

// NewBatchRepository wires a batch repository backed by pgxpool.
func NewBatchRepository(pool *pgxpool.Pool) BatchRepository {
	return &batchRepository{pool: pool}
}

const batchColumns = `id, tenant_id, uploaded_by, file_name, file_size, headers, total_rows, status,
	valid_count, warning_count, error_count,
	created_count, updated_count, skipped_count, failed_count,
	created_at, mapped_at, validated_at, committed_at, updated_at`

func (r *batchRepository) Create(ctx context.Context, batch domain.ImportBatch) error {
	headers, err := json.Marshal(batch.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal batch headers: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO import_batches (`+batchColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		batch.ID, batch.TenantID, batch.UploadedBy, batch.FileName, batch.FileSize, headers, batch.TotalRows, batch.Status,
		batch.ValidCount, batch.WarningCount, batch.ErrorCount,
		batch.CreatedCount, batch.UpdatedCount, batch.SkippedCount, batch.FailedCount,
		batch.CreatedAt, batch.MappedAt, batch.ValidatedAt, batch.CommittedAt, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

func (r *batchRepository) Get(ctx context.Context, tenantID, batchID uuid.UUID) (domain.ImportBatch, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM import_batches WHERE tenant_id = $1 AND id = $2`,
		tenantID, batchID,
	)
	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportBatch{}, fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
		}
		return domain.ImportBatch{}, fmt.Errorf("failed to get batch: %w", err)
	}
	return batch, nil
}

func (r *batchRepository) List(ctx context.Context, tenantID uuid.UUID, filter BatchFilter) ([]domain.ImportBatch, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + batchColumns + `, COUNT(*) OVER() AS total_count
		 FROM import_batches WHERE tenant_id = $1`
	args := []any{tenantID}
	if filter.Status != nil {
		query += ` AND status = $2`
		args = append(args, *filter.Status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	batches := []domain.ImportBatch{}
	total := 0
	for rows.Next() {
		batch, count, err := scanBatchWithCount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan batch: %w", err)
		}
		total = count
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate batches: %w", err)
	}
	return batches, total, nil
}

func (r *batchRepository) Update(ctx context.Context, batch domain.ImportBatch) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE import_batches SET
			status = $3, total_rows = $4,
			valid_count = $5, warning_count = $6, error_count = $7,
			created_count = $8, updated_count = $9, skipped_count = $10, failed_count = $11,
			mapped_at = $12, validated_at = $13, committed_at = $14, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		batch.TenantID, batch.ID, batch.Status, batch.TotalRows,
		batch.ValidCount, batch.WarningCount, batch.ErrorCount,
		batch.CreatedCount, batch.UpdatedCount, batch.SkippedCount, batch.FailedCount,
		batch.MappedAt, batch.ValidatedAt, batch.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", batch.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *batchRepository) TransitionStatus(ctx context.Context, tenantID, batchID uuid.UUID, from, to domain.BatchStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE import_batches SET status = $4, updated_at = now(),
			committed_at = CASE WHEN $4 = 'committed' THEN now() ELSE committed_at END
		 WHERE tenant_id = $1 AND id = $2 AND status = $3`,
		tenantID, batchID, from, to,
	)
	if err != nil {
		return fmt.Errorf("failed to transition batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the batch is gone or somebody else moved it first.
		if _, getErr := r.Get(ctx, tenantID, batchID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("batch %s is not %s: %w", batchID, from, domain.ErrInvalidState)
	}
	return nil
}

func (r *batchRepository) SaveRawRows(ctx context.Context, batchID uuid.UUID, rows []domain.RawRow) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM import_raw_rows WHERE batch_id = $1`, batchID)
	for _, row := range rows {
		values, err := json.Marshal(row.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal raw row %d: %w", row.RowNumber, err)
		}
		batch.Queue(
			`INSERT INTO import_raw_rows (batch_id, row_number, row_values) VALUES ($1, $2, $3)`,
			batchID, row.RowNumber, values,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save raw rows: %w", err)
	}
	return nil
}

func (r *batchRepository) GetRawRows(ctx context.Context, batchID uuid.UUID) ([]domain.RawRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT row_number, row_values FROM import_raw_rows WHERE batch_id = $1 ORDER BY row_number`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get raw rows: %w", err)
	}
	defer rows.Close()

	out := []domain.RawRow{}
	for rows.Next() {
		var raw domain.RawRow
		var values []byte
		if err := rows.Scan(&raw.RowNumber, &values); err != nil {
			return nil, fmt.Errorf("failed to scan raw row: %w", err)
		}
		if err := json.Unmarshal(values, &raw.Values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raw row %d: %w", raw.RowNumber, err)
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate raw rows: %w", err)
	}
	return out, nil
}

func (r *batchRepository) ReplacePreviewRows(ctx context.Context, batchID uuid.UUID, previewRows []domain.PreviewRow) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM import_preview_rows WHERE batch_id = $1`, batchID)
	for _, row := range previewRows {
		candidate, issues, err := marshalPreviewRow(row)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO import_preview_rows (id, batch_id, row_number, candidate, issues, excluded, has_errors)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			row.ID, batchID, row.RowNumber, candidate, issues, row.Excluded, row.HasBlockingErrors(),
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to replace preview rows: %w", err)
	}
	return nil
}

func (r *batchRepository) GetPreviewRows(ctx context.Context, batchID uuid.UUID) ([]domain.PreviewRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, batch_id, row_number, candidate, issues, excluded
		 FROM import_preview_rows WHERE batch_id = $1 ORDER BY row_number`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get preview rows: %w", err)
	}
	defer rows.Close()
	return collectPreviewRows(rows)
}

func (r *batchRepository) PagePreviewRows(ctx context.Context, batchID uuid.UUID, errorsOnly bool, limit, offset int) ([]domain.PreviewRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, batch_id, row_number, candidate, issues, excluded, COUNT(*) OVER() AS total_count
		 FROM import_preview_rows WHERE batch_id = $1`
	if errorsOnly {
		query += ` AND has_errors`
	}
	query += ` ORDER BY row_number LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, batchID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to page preview rows: %w", err)
	}
	defer rows.Close()

	out := []domain.PreviewRow{}
	total := 0
	for rows.Next() {
		var (
			row       domain.PreviewRow
			candidate []byte
			issues    []byte
		)
		if err := rows.Scan(&row.ID, &row.BatchID, &row.RowNumber, &candidate, &issues, &row.Excluded, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan preview row: %w", err)
		}
		if err := unmarshalPreviewRow(&row, candidate, issues); err != nil {
			return nil, 0, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate preview rows: %w", err)
	}
	return out, total, nil
}

func (r *batchRepository) UpdatePreviewRows(ctx context.Context, previewRows []domain.PreviewRow) error {
	batch := &pgx.Batch{}
	for _, row := range previewRows {
		candidate, issues, err := marshalPreviewRow(row)
		if err != nil {
			return err
		}
		batch.Queue(
			`UPDATE import_preview_rows SET candidate = $2, issues = $3, excluded = $4, has_errors = $5
			 WHERE id = $1`,
			row.ID, candidate, issues, row.Excluded, row.HasBlockingErrors(),
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to update preview rows: %w", err)
	}
	return nil
}

func marshalPreviewRow(row domain.PreviewRow) ([]byte, []byte, error) {
	candidate, err := json.Marshal(row.Candidate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal candidate for row %d: %w", row.RowNumber, err)
	}
	issues, err := json.Marshal(row.Issues)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal issues for row %d: %w", row.RowNumber, err)
	}
	return candidate, issues, nil
}

func unmarshalPreviewRow(row *domain.PreviewRow, candidate, issues []byte) error {
	if err := json.Unmarshal(candidate, &row.Candidate); err != nil {
		return fmt.Errorf("failed to unmarshal candidate for row %d: %w", row.RowNumber, err)
	}
	if len(issues) > 0 {
		if err := json.Unmarshal(issues, &row.Issues); err != nil {
			return fmt.Errorf("failed to unmarshal issues for row %d: %w", row.RowNumber, err)
		}
	}
	return nil
}

func collectPreviewRows(rows pgx.Rows) ([]domain.PreviewRow, error) {
	out := []domain.PreviewRow{}
	for rows.Next() {
		var (
			row       domain.PreviewRow
			candidate []byte
			issues    []byte
		)
		if err := rows.Scan(&row.ID, &row.BatchID, &row.RowNumber, &candidate, &issues, &row.Excluded); err != nil {
			return nil, fmt.Errorf("failed to scan preview row: %w", err)
		}
		if err := unmarshalPreviewRow(&row, candidate, issues); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preview rows: %w", err)
	}
	return out, nil
}

type batchScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row batchScanner) (domain.ImportBatch, error) {
	var (
		batch       domain.ImportBatch
		headers     []byte
		mappedAt    pgtype.Timestamptz
		validatedAt pgtype.Timestamptz
		committedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&batch.ID, &batch.TenantID, &batch.UploadedBy, &batch.FileName, &batch.FileSize, &headers, &batch.TotalRows, &batch.Status,
		&batch.ValidCount, &batch.WarningCount, &batch.ErrorCount,
		&batch.CreatedCount, &batch.UpdatedCount, &batch.SkippedCount, &batch.FailedCount,
		&batch.CreatedAt, &mappedAt, &validatedAt, &committedAt, &batch.UpdatedAt,
	)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &batch.Headers); err != nil {
			return domain.ImportBatch{}, fmt.Errorf("failed to unmarshal batch headers: %w", err)
		}
	}
	if mappedAt.Valid {
		batch.MappedAt = &mappedAt.Time
	}
	if validatedAt.Valid {
		batch.ValidatedAt = &validatedAt.Time
	}
	if committedAt.Valid {
		batch.CommittedAt = &committedAt.Time
	}
	return batch, nil
}

func scanBatchWithCount(rows pgx.Rows) (domain.ImportBatch, int, error) {
	var (
		batch       domain.ImportBatch
		headers     []byte
		mappedAt    pgtype.Timestamptz
		validatedAt pgtype.Timestamptz
		committedAt pgtype.Timestamptz
		total       int
	)
	err := rows.Scan(
		&batch.ID, &batch.TenantID, &batch.UploadedBy, &batch.FileName, &batch.FileSize, &headers, &batch.TotalRows, &batch.Status,
		&batch.ValidCount, &batch.WarningCount, &batch.ErrorCount,
		&batch.CreatedCount, &batch.UpdatedCount, &batch.SkippedCount, &batch.FailedCount,
		&batch.CreatedAt, &mappedAt, &validatedAt, &committedAt, &batch.UpdatedAt,
		&total,
	)
	if err != nil {
		return domain.ImportBatch{}, 0, err
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &batch.Headers); err != nil {
			return domain.ImportBatch{}, 0, fmt.Errorf("failed to unmarshal batch headers: %w", err)
		}
	}
	if mappedAt.Valid {
		batch.MappedAt = &mappedAt.Time
	}
	if validatedAt.Valid {
		batch.ValidatedAt = &validatedAt.Time
	}
	if committedAt.Valid {
		batch.CommittedAt = &committedAt.Time
	}
	return batch, total, nil
}
