package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/custimport/internal/domain"
)

type rollbackRepository struct {
	pool *pgxpool.Pool
}

// NewRollbackRepository wires the reversal log repository backed by pgxpool.
func NewRollbackRepository(pool *pgxpool.Pool) RollbackRepository {
	return &rollbackRepository{pool: pool}
}

func (r *rollbackRepository) SaveAll(ctx context.Context, records []domain.RollbackRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, record := range records {
		var priorState []byte
		if record.PriorState != nil {
			var err error
			priorState, err = json.Marshal(record.PriorState)
			if err != nil {
				return fmt.Errorf("failed to marshal prior state for row %d: %w", record.RowNumber, err)
			}
		}
		batch.Queue(
			`INSERT INTO import_rollback_records (id, batch_id, row_number, kind, customer_id, prior_state, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			record.ID, record.BatchID, record.RowNumber, record.Kind, record.CustomerID, priorState, record.CreatedAt,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save rollback records: %w", err)
	}
	return nil
}

func (r *rollbackRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.RollbackRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, batch_id, row_number, kind, customer_id, prior_state, created_at
		 FROM import_rollback_records WHERE batch_id = $1 ORDER BY row_number`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollback records: %w", err)
	}
	defer rows.Close()

	records := []domain.RollbackRecord{}
	for rows.Next() {
		var (
			record     domain.RollbackRecord
			priorState []byte
		)
		if err := rows.Scan(&record.ID, &record.BatchID, &record.RowNumber, &record.Kind, &record.CustomerID, &priorState, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rollback record: %w", err)
		}
		if len(priorState) > 0 {
			record.PriorState = &domain.Customer{}
			if err := json.Unmarshal(priorState, record.PriorState); err != nil {
				return nil, fmt.Errorf("failed to unmarshal prior state for row %d: %w", record.RowNumber, err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rollback records: %w", err)
	}
	return records, nil
}
