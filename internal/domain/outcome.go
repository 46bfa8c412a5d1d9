package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeKind is the per-row result of a commit attempt.
type OutcomeKind string

const (
	OutcomeCreated OutcomeKind = "created"
	OutcomeUpdated OutcomeKind = "updated"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

// CommitOutcome records what happened to one staged row during commit.
type CommitOutcome struct {
	PreviewRowID uuid.UUID `json:"preview_row_id"`

	RowNumber  int         `json:"row_number"`
	Kind       OutcomeKind `json:"kind"`
	CustomerID uuid.UUID   `json:"customer_id,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// CommitResult aggregates per-row outcomes for one commit or dry run.
type CommitResult struct {
	BatchID  uuid.UUID       `json:"batch_id"`
	DryRun   bool            `json:"dry_run"`
	Created  int             `json:"created"`
	Updated  int             `json:"updated"`
	Skipped  int             `json:"skipped"`
	Failed   int             `json:"failed"`
	Outcomes []CommitOutcome `json:"outcomes"`
	Duration time.Duration   `json:"duration"`
}

// Record appends an outcome and bumps the matching counter.
func (r *CommitResult) Record(outcome CommitOutcome) {
	switch outcome.Kind {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, outcome)
}

// RollbackRecord stores enough state to reverse one committed write exactly
// once: the created identifier for creates, the prior field values for updates.
type RollbackRecord struct {
	ID         uuid.UUID   `json:"id"`
	BatchID    uuid.UUID   `json:"batch_id"`
	RowNumber  int         `json:"row_number"`
	Kind       OutcomeKind `json:"kind"`
	CustomerID uuid.UUID   `json:"customer_id"`
	PriorState *Customer   `json:"prior_state,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewCreateRollbackRecord captures a created customer for later deletion.
func NewCreateRollbackRecord(batchID uuid.UUID, rowNumber int, customerID uuid.UUID) RollbackRecord {
	return RollbackRecord{
		ID:         uuid.New(),
		BatchID:    batchID,
		RowNumber:  rowNumber,
		Kind:       OutcomeCreated,
		CustomerID: customerID,
		CreatedAt:  time.Now(),
	}
}

// NewUpdateRollbackRecord captures a customer's pre-update state for later restore.
func NewUpdateRollbackRecord(batchID uuid.UUID, rowNumber int, prior Customer) RollbackRecord {
	snapshot := prior
	return RollbackRecord{
		ID:         uuid.New(),
		BatchID:    batchID,
		RowNumber:  rowNumber,
		Kind:       OutcomeUpdated,
		CustomerID: prior.ID,
		PriorState: &snapshot,
		CreatedAt:  time.Now(),
	}
}

// RollbackFailure reports one reversal that could not be applied.
type RollbackFailure struct {
	RowNumber  int       `json:"row_number"`
	CustomerID uuid.UUID `json:"customer_id"`
	Reason     string    `json:"reason"`
}

// RollbackResult aggregates a rollback replay. Failures are surfaced for
// manual follow-up; the batch still transitions to rolled_back.
type RollbackResult struct {
	BatchID  uuid.UUID         `json:"batch_id"`
	Deleted  int               `json:"deleted"`
	Reverted int               `json:"reverted"`
	Failures []RollbackFailure `json:"failures,omitempty"`
}
