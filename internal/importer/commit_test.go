package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/rpattn/custimport/internal/domain"
)

func TestCommitCreatesAndSkips(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	batchID := env.uploadMapValidate(t)

	result, err := env.service.Commit(ctx, CommitRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if result.Created != 2 || result.Updated != 0 || result.Skipped != 1 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	count, _ := env.customers.Count(ctx, env.tenant)
	if count != 2 {
		t.Errorf("expected 2 customers written, got %d", count)
	}

	batch, _ := env.batches.Get(ctx, env.tenant, batchID)
	if batch.Status != domain.BatchStatusCommitted {
		t.Errorf("expected committed status, got %s", batch.Status)
	}
	if batch.CreatedCount != 2 || batch.SkippedCount != 1 {
		t.Errorf("expected outcome counts on batch, got %+v", batch)
	}

	records, _ := env.rollbacks.ListByBatch(ctx, batchID)
	if len(records) != 2 {
		t.Errorf("expected a rollback record per write, got %d", len(records))
	}
	for _, record := range records {
		if record.Kind != domain.OutcomeCreated {
			t.Errorf("expected create records, got %s", record.Kind)
		}
	}
}

func TestCommitRequiresValidatedBatch(t *testing.T) {
	env := newTestEnv(t)
	batchID := env.uploadAndMap(t)

	_, err := env.service.Commit(context.Background(), CommitRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSecondCommitRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	batchID := env.uploadMapValidate(t)

	req := CommitRequest{TenantID: env.tenant, Actor: env.actor, BatchID: batchID}
	if _, err := env.service.Commit(ctx, req); err != nil {
		t.Fatalf("first Commit failed: %v", err)
	}

	_, err := env.service.Commit(ctx, req)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected second commit rejected, got %v", err)
	}

	count, _ := env.customers.Count(ctx, env.tenant)
	if count != 2 {
		t.Errorf("expected no duplicate writes, got %d customers", count)
	}
}

func TestCommitDryRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	batchID := env.uploadMapValidate(t)

	result, err := env.service.Commit(ctx, CommitRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
		DryRun:   true,
	})
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if !result.DryRun || result.Created != 2 || result.Skipped != 1 {
		t.Errorf("unexpected dry run result: %+v", result)
	}

	count, _ := env.customers.Count(ctx, env.tenant)
	if count != 0 {
		t.Errorf("expected no writes on dry run, got %d", count)
	}
	batch, _ := env.batches.Get(ctx, env.tenant, batchID)
	if batch.Status != domain.BatchStatusValidated {
		t.Errorf("expected batch still validated, got %s", batch.Status)
	}

	// A real commit is still possible afterwards.
	if _, err := env.service.Commit(ctx, CommitRequest{TenantID: env.tenant, Actor: env.actor, BatchID: batchID}); err != nil {
		t.Fatalf("commit after dry run failed: %v", err)
	}
}

func TestCommitUpdatesExistingByExternalID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	existing := domain.Customer{
		ID:         uuid.New(),
		TenantID:   env.tenant,
		ExternalID: "c-1",
		FirstName:  "Alicia",
		Phone:      "+442079460000",
	}
	env.customers.customers[existing.ID] = existing

	batchID := env.uploadMapValidate(t)
	result, err := env.service.Commit(ctx, CommitRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if result.Created != 1 || result.Updated != 1 || result.Skipped != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	updated, _ := env.customers.GetByID(ctx, env.tenant, existing.ID)
	if updated.FirstName != "Alice" {
		t.Errorf("expected name overlaid, got %q", updated.FirstName)
	}
	if updated.Phone != "+442079460000" {
		t.Errorf("expected field not in file untouched, got %q", updated.Phone)
	}

	records, _ := env.rollbacks.ListByBatch(ctx, batchID)
	var updateRecord *domain.RollbackRecord
	for i := range records {
		if records[i].Kind == domain.OutcomeUpdated {
			updateRecord = &records[i]
		}
	}
	if updateRecord == nil || updateRecord.PriorState == nil {
		t.Fatal("expected update record with prior state")
	}
	if updateRecord.PriorState.FirstName != "Alicia" {
		t.Errorf("expected prior state captured, got %+v", updateRecord.PriorState)
	}
}

func TestCommitExcludesRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	batchID := env.uploadMapValidate(t)

	rows, _ := env.batches.GetPreviewRows(ctx, batchID)
	result, err := env.service.Commit(ctx, CommitRequest{
		TenantID:     env.tenant,
		Actor:        env.actor,
		BatchID:      batchID,
		ExcludedRows: []uuid.UUID{rows[0].ID},
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.Created != 1 || result.Skipped != 2 {
		t.Errorf("expected excluded row skipped, got %+v", result)
	}
}

func TestCommitEditsAreRevalidated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	batchID := env.uploadMapValidate(t)

	rows, _ := env.batches.GetPreviewRows(ctx, batchID)
	var badRow domain.PreviewRow
	for _, row := range rows {
		if row.RowNumber == 3 {
			badRow = row
		}
	}

	// Fixing both findings makes the row committable.
	result, err := env.service.Commit(ctx, CommitRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
		Edits: map[uuid.UUID]map[domain.Field]string{
			badRow.ID: {
				domain.FieldFirstName: "Xavier",
				domain.FieldEmail:     "xavier@example.com",
			},
		},
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.Created != 3 || result.Skipped != 0 {
		t.Errorf("expected edit to rescue the row, got %+v", result)
	}
}

func TestCommitEditCannotSmuggleBadValue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	batchID := env.uploadMapValidate(t)

	rows, _ := env.batches.GetPreviewRows(ctx, batchID)
	result, err := env.service.Commit(ctx, CommitRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
		Edits: map[uuid.UUID]map[domain.Field]string{
			rows[0].ID: {domain.FieldEmail: "broken"},
		},
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.Created != 1 || result.Skipped != 2 {
		t.Errorf("expected edited row to fail validation and skip, got %+v", result)
	}
}

func TestCommitRowFailureContinues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.customers.failCreates["c-2"] = true

	batchID := env.uploadMapValidate(t)
	result, err := env.service.Commit(ctx, CommitRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if result.Created != 1 || result.Failed != 1 || result.Skipped != 1 {
		t.Errorf("expected failure isolated to one row, got %+v", result)
	}

	batch, _ := env.batches.Get(ctx, env.tenant, batchID)
	if batch.Status != domain.BatchStatusCommitted {
		t.Errorf("expected batch committed despite row failure, got %s", batch.Status)
	}
	if batch.FailedCount != 1 {
		t.Errorf("expected failed count on batch, got %+v", batch)
	}
}
