package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/custimport/internal/audit"
	"github.com/rpattn/custimport/internal/domain"
)

// Rollback reverses every write a committed batch made: created customers are
// deleted, updated customers are restored to their captured prior state. The
// status flips to rolled_back before the replay, so a concurrent second
// rollback loses the conditional update. Individual reversal failures are
// collected, not fatal.
func (s *Service) Rollback(ctx context.Context, tenantID, actor, batchID uuid.UUID, reason string) (domain.RollbackResult, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.RollbackResult{}, fmt.Errorf("a rollback reason is required")
	}

	unlock := s.locks.Lock(batchID)
	defer unlock()

	batch, err := s.batches.Get(ctx, tenantID, batchID)
	if err != nil {
		return domain.RollbackResult{}, err
	}
	switch batch.Status {
	case domain.BatchStatusRolledBack:
		return domain.RollbackResult{}, domain.ErrAlreadyRolledBack
	case domain.BatchStatusCommitted:
		// only committed batches can be reversed
	default:
		return domain.RollbackResult{}, fmt.Errorf("cannot roll back batch in status %s: %w", batch.Status, domain.ErrInvalidState)
	}

	if err := s.batches.TransitionStatus(ctx, tenantID, batchID, domain.BatchStatusCommitted, domain.BatchStatusRolledBack); err != nil {
		return domain.RollbackResult{}, err
	}

	records, err := s.rollbacks.ListByBatch(ctx, batchID)
	if err != nil {
		return domain.RollbackResult{}, err
	}

	result := domain.RollbackResult{BatchID: batchID}

	// Replay in reverse commit order so a customer touched twice ends up
	// at its earliest captured state.
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		switch record.Kind {
		case domain.OutcomeCreated:
			if err := s.customers.Delete(ctx, tenantID, record.CustomerID); err != nil {
				result.Failures = append(result.Failures, domain.RollbackFailure{
					RowNumber:  record.RowNumber,
					CustomerID: record.CustomerID,
					Reason:     fmt.Sprintf("delete failed: %v", err),
				})
				continue
			}
			result.Deleted++
		case domain.OutcomeUpdated:
			if record.PriorState == nil {
				result.Failures = append(result.Failures, domain.RollbackFailure{
					RowNumber:  record.RowNumber,
					CustomerID: record.CustomerID,
					Reason:     "rollback record has no prior state",
				})
				continue
			}
			if _, err := s.customers.Update(ctx, *record.PriorState); err != nil {
				result.Failures = append(result.Failures, domain.RollbackFailure{
					RowNumber:  record.RowNumber,
					CustomerID: record.CustomerID,
					Reason:     fmt.Sprintf("restore failed: %v", err),
				})
				continue
			}
			result.Reverted++
		}
	}

	batch.Status = domain.BatchStatusRolledBack
	if err := s.batches.Update(ctx, batch); err != nil {
		return result, err
	}

	s.logger.WithFields(logrus.Fields{
		"batch_id": batchID,
		"deleted":  result.Deleted,
		"reverted": result.Reverted,
		"failures": len(result.Failures),
		"reason":   reason,
	}).Info("batch rolled back")
	s.notify(ctx, audit.EventRolledBack, batch, actor, map[string]any{
		"reason":   reason,
		"deleted":  result.Deleted,
		"reverted": result.Reverted,
		"failures": len(result.Failures),
	})

	return result, nil
}
