package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/custimport/internal/audit"
	"github.com/rpattn/custimport/internal/domain"
	"github.com/rpattn/custimport/internal/mapping"
	"github.com/rpattn/custimport/pkg/validator"
)

// CommitRequest describes one commit attempt. ExcludedRows and Edits are
// keyed by preview row ID so the caller can reference exactly what it saw in
// the preview.
type CommitRequest struct {
	TenantID uuid.UUID
	Actor    uuid.UUID
	BatchID  uuid.UUID
	// ExcludedRows are skipped without touching customer data.
	ExcludedRows []uuid.UUID
	// Edits are last-minute per-field value overrides, re-coerced and
	// re-validated before the write.
	Edits map[uuid.UUID]map[domain.Field]string
	// DryRun reports what would happen without writing customers or
	// changing batch state.
	DryRun bool
}

// Commit writes the batch's committable rows to customer storage. The batch
// must be validated. The status flip to committed happens before any customer
// write, so a concurrent second commit loses the conditional update and gets
// ErrInvalidState. Per-row failures mark the row failed and continue.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (domain.CommitResult, error) {
	unlock := s.locks.Lock(req.BatchID)
	defer unlock()

	start := s.now()

	batch, err := s.batches.Get(ctx, req.TenantID, req.BatchID)
	if err != nil {
		return domain.CommitResult{}, err
	}
	if batch.Status != domain.BatchStatusValidated {
		return domain.CommitResult{}, fmt.Errorf("cannot commit batch in status %s: %w", batch.Status, domain.ErrInvalidState)
	}

	if !req.DryRun {
		if err := s.batches.TransitionStatus(ctx, req.TenantID, req.BatchID, domain.BatchStatusValidated, domain.BatchStatusCommitted); err != nil {
			return domain.CommitResult{}, err
		}
	}

	rows, err := s.batches.GetPreviewRows(ctx, req.BatchID)
	if err != nil {
		return domain.CommitResult{}, err
	}

	excluded := make(map[uuid.UUID]bool, len(req.ExcludedRows))
	for _, id := range req.ExcludedRows {
		excluded[id] = true
	}

	result := domain.CommitResult{BatchID: req.BatchID, DryRun: req.DryRun}
	var records []domain.RollbackRecord

	for _, row := range rows {
		outcome := s.commitRow(ctx, req, row, excluded[row.ID], &records)
		result.Record(outcome)
	}

	result.Duration = s.now().Sub(start)

	if req.DryRun {
		return result, nil
	}

	if len(records) > 0 {
		if err := s.rollbacks.SaveAll(ctx, records); err != nil {
			// Customers are already written; surface the error rather
			// than pretend rollback is possible.
			s.logger.WithError(err).WithField("batch_id", req.BatchID).Error("failed to persist rollback records")
			return result, fmt.Errorf("commit applied but rollback records were not saved: %w", err)
		}
	}

	now := s.now()
	batch.Status = domain.BatchStatusCommitted
	batch.CommittedAt = &now
	batch.CreatedCount = result.Created
	batch.UpdatedCount = result.Updated
	batch.SkippedCount = result.Skipped
	batch.FailedCount = result.Failed
	if err := s.batches.Update(ctx, batch); err != nil {
		return result, err
	}

	s.logger.WithFields(logrus.Fields{
		"batch_id": req.BatchID,
		"created":  result.Created,
		"updated":  result.Updated,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"duration": result.Duration.String(),
	}).Info("batch committed")
	s.notify(ctx, audit.EventCommitted, batch, req.Actor, map[string]any{
		"created": result.Created,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	})

	return result, nil
}

// commitRow decides and, unless dry-running, applies one row's outcome.
func (s *Service) commitRow(ctx context.Context, req CommitRequest, row domain.PreviewRow, excluded bool, records *[]domain.RollbackRecord) domain.CommitOutcome {
	outcome := domain.CommitOutcome{
		PreviewRowID: row.ID,
		RowNumber:    row.RowNumber,
	}

	if excluded || row.Excluded {
		outcome.Kind = domain.OutcomeSkipped
		outcome.Reason = "excluded by operator"
		return outcome
	}

	candidate := row.Candidate
	issues := row.Issues
	if edits, ok := req.Edits[row.ID]; ok {
		candidate, issues = s.applyEdits(candidate, issues, edits)
	}

	if hasBlockingIssues(issues) {
		outcome.Kind = domain.OutcomeSkipped
		outcome.Reason = "row has blocking errors"
		return outcome
	}

	existing, found, err := s.matcher.Match(ctx, s.customers, candidate)
	if err != nil {
		outcome.Kind = domain.OutcomeFailed
		outcome.Reason = fmt.Sprintf("match lookup failed: %v", err)
		return outcome
	}

	if found {
		outcome.Kind = domain.OutcomeUpdated
		outcome.CustomerID = existing.ID
		if req.DryRun {
			return outcome
		}
		merged := mergeCustomer(existing, candidate, s.now())
		if _, err := s.customers.Update(ctx, merged); err != nil {
			outcome.Kind = domain.OutcomeFailed
			outcome.Reason = fmt.Sprintf("update failed: %v", err)
			return outcome
		}
		*records = append(*records, domain.NewUpdateRollbackRecord(req.BatchID, row.RowNumber, existing))
		return outcome
	}

	outcome.Kind = domain.OutcomeCreated
	if req.DryRun {
		return outcome
	}

	created := candidate
	created.ID = uuid.New()
	created.TenantID = req.TenantID
	created.CreatedAt = s.now()
	created.UpdatedAt = created.CreatedAt
	if _, err := s.customers.Create(ctx, created); err != nil {
		outcome.Kind = domain.OutcomeFailed
		outcome.Reason = fmt.Sprintf("create failed: %v", err)
		return outcome
	}
	outcome.CustomerID = created.ID
	*records = append(*records, domain.NewCreateRollbackRecord(req.BatchID, row.RowNumber, created.ID))
	return outcome
}

// applyEdits coerces each edited value into the candidate and re-runs the
// rule set so an edit cannot smuggle an invalid value past validation.
func (s *Service) applyEdits(candidate domain.Customer, prior []domain.ValidationIssue, edits map[domain.Field]string) (domain.Customer, []domain.ValidationIssue) {
	// Keep coercion issues only for fields the edit did not touch.
	issues := []domain.ValidationIssue{}
	for _, issue := range prior {
		if mapping.IsCoercionIssue(issue.Code) {
			if _, edited := edits[issue.Field]; !edited {
				issues = append(issues, issue)
			}
		}
	}
	for field, value := range edits {
		col := domain.ColumnMapping{TargetField: field}
		if issue := mapping.CoerceField(&candidate, col, value); issue != nil {
			issues = append(issues, *issue)
		}
	}
	return candidate, append(issues, s.rules.Validate(candidate)...)
}

// mergeCustomer overlays the candidate's populated fields onto the stored
// customer. Empty candidate fields leave stored values untouched.
func mergeCustomer(existing, candidate domain.Customer, now time.Time) domain.Customer {
	merged := existing
	if candidate.ExternalID != "" {
		merged.ExternalID = candidate.ExternalID
	}
	if candidate.FirstName != "" {
		merged.FirstName = candidate.FirstName
	}
	if candidate.LastName != "" {
		merged.LastName = candidate.LastName
	}
	if candidate.Email != "" {
		merged.Email = candidate.Email
	}
	if candidate.Phone != "" {
		merged.Phone = candidate.Phone
	}
	if candidate.Company != "" {
		merged.Company = candidate.Company
	}
	if candidate.AddressLine != "" {
		merged.AddressLine = candidate.AddressLine
	}
	if candidate.City != "" {
		merged.City = candidate.City
	}
	if candidate.State != "" {
		merged.State = candidate.State
	}
	if candidate.PostalCode != "" {
		merged.PostalCode = candidate.PostalCode
	}
	if candidate.Country != "" {
		merged.Country = candidate.Country
	}
	if candidate.BirthDate != nil {
		merged.BirthDate = candidate.BirthDate
	}
	if candidate.Latitude != nil {
		merged.Latitude = candidate.Latitude
	}
	if candidate.Longitude != nil {
		merged.Longitude = candidate.Longitude
	}
	if candidate.Notes != "" {
		merged.Notes = candidate.Notes
	}
	merged.UpdatedAt = now
	return merged
}

func hasBlockingIssues(issues []domain.ValidationIssue) bool {
	return validator.HasErrors(issues)
}
