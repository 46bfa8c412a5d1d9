package importer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/custimport/internal/domain"
)

type testEnv struct {
	batches   *stubBatchRepo
	templates *stubTemplateRepo
	customers *stubCustomerRepo
	rollbacks *stubRollbackRepo
	service   *Service
	tenant    uuid.UUID
	actor     uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		batches:   newStubBatchRepo(),
		templates: newStubTemplateRepo(),
		customers: newStubCustomerRepo(),
		rollbacks: newStubRollbackRepo(),
		tenant:    uuid.New(),
		actor:     uuid.New(),
	}
	env.service = NewService(env.batches, env.templates, env.customers, env.rollbacks,
		WithClock(func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }),
	)
	return env
}

// sampleCSV has two committable rows and one row that fails validation twice
// over (short name, bad email).
const sampleCSV = "External ID,First Name,Email\n" +
	"c-1,Alice,alice@example.com\n" +
	"c-2,Bob,bob@example.com\n" +
	"c-3,X,not-an-email\n"

func sampleMapping() domain.MappingConfig {
	return domain.MappingConfig{Columns: []domain.ColumnMapping{
		{SourceColumn: "External ID", TargetField: domain.FieldExternalID},
		{SourceColumn: "First Name", TargetField: domain.FieldFirstName},
		{SourceColumn: "Email", TargetField: domain.FieldEmail},
	}}
}

func (env *testEnv) upload(t *testing.T) uuid.UUID {
	t.Helper()
	result, err := env.service.Upload(context.Background(), UploadRequest{
		TenantID:   env.tenant,
		UploadedBy: env.actor,
		FileName:   "customers.csv",
		Payload:    []byte(sampleCSV),
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	return result.Batch.ID
}

func (env *testEnv) uploadAndMap(t *testing.T) uuid.UUID {
	t.Helper()
	batchID := env.upload(t)
	_, err := env.service.ApplyMapping(context.Background(), ApplyMappingRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
		Config:   sampleMapping(),
	})
	if err != nil {
		t.Fatalf("ApplyMapping failed: %v", err)
	}
	return batchID
}

func (env *testEnv) uploadMapValidate(t *testing.T) uuid.UUID {
	t.Helper()
	batchID := env.uploadAndMap(t)
	if _, err := env.service.Validate(context.Background(), env.tenant, env.actor, batchID); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return batchID
}

func TestUploadCreatesBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.service.Upload(ctx, UploadRequest{
		TenantID:   env.tenant,
		UploadedBy: env.actor,
		FileName:   "customers.csv",
		Payload:    []byte(sampleCSV),
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if result.Batch.Status != domain.BatchStatusUploaded {
		t.Errorf("expected uploaded status, got %s", result.Batch.Status)
	}
	if result.Batch.TotalRows != 3 {
		t.Errorf("expected 3 rows, got %d", result.Batch.TotalRows)
	}
	if len(result.Headers) != 3 || len(result.Rows) != 3 {
		t.Errorf("expected header and row echo, got %d headers %d rows", len(result.Headers), len(result.Rows))
	}

	saved, err := env.batches.GetRawRows(ctx, result.Batch.ID)
	if err != nil || len(saved) != 3 {
		t.Errorf("expected 3 raw rows persisted, got %d (%v)", len(saved), err)
	}
}

func TestUploadRejectsBadFileWithoutBatch(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Upload(context.Background(), UploadRequest{
		TenantID:   env.tenant,
		UploadedBy: env.actor,
		FileName:   "customers.xlsx",
		Payload:    []byte("plain text, not a workbook"),
	})
	if !errors.Is(err, domain.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	if len(env.batches.batches) != 0 {
		t.Error("expected no batch state after a rejected upload")
	}
}

func TestSuggestMapping(t *testing.T) {
	env := newTestEnv(t)
	batchID := env.upload(t)

	suggestions, err := env.service.SuggestMapping(context.Background(), env.tenant, batchID)
	if err != nil {
		t.Fatalf("SuggestMapping failed: %v", err)
	}

	var email string
	for _, s := range suggestions {
		if s.Field == domain.FieldEmail {
			email = s.SourceColumn
		}
	}
	if email != "Email" {
		t.Errorf("expected Email column suggested for email, got %q", email)
	}
}

func TestSuggestMappingUsesStoredHeaderOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.service.Upload(ctx, UploadRequest{
		TenantID:   env.tenant,
		UploadedBy: env.actor,
		FileName:   "phones.csv",
		Payload:    []byte("Phone 1,Phone 2\n555-0100,555-0101\n"),
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	batch, err := env.batches.Get(ctx, env.tenant, result.Batch.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := []string{"Phone 1", "Phone 2"}
	if len(batch.Headers) != len(want) {
		t.Fatalf("expected %d persisted headers, got %v", len(want), batch.Headers)
	}
	for i, header := range want {
		if batch.Headers[i] != header {
			t.Errorf("header %d: expected %q, got %q", i, header, batch.Headers[i])
		}
	}

	// Both columns score identically for phone; the file-order tie-break must
	// pick the first column on every run.
	for i := 0; i < 10; i++ {
		suggestions, err := env.service.SuggestMapping(ctx, env.tenant, result.Batch.ID)
		if err != nil {
			t.Fatalf("SuggestMapping failed: %v", err)
		}
		for _, s := range suggestions {
			if s.Field == domain.FieldPhone && s.SourceColumn != "Phone 1" {
				t.Fatalf("expected first column to win the tie, got %q", s.SourceColumn)
			}
		}
	}
}

func TestApplyMappingStagesPreviewRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	batchID := env.upload(t)

	result, err := env.service.ApplyMapping(ctx, ApplyMappingRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
		Config:   sampleMapping(),
	})
	if err != nil {
		t.Fatalf("ApplyMapping failed: %v", err)
	}

	if result.Batch.Status != domain.BatchStatusMapped {
		t.Errorf("expected mapped status, got %s", result.Batch.Status)
	}
	if result.MappedRows != 3 {
		t.Errorf("expected 3 mapped rows, got %d", result.MappedRows)
	}
	if result.Preview[0].Candidate.Email != "alice@example.com" {
		t.Errorf("unexpected first candidate: %+v", result.Preview[0].Candidate)
	}
}

func TestApplyMappingIsRepeatable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	batchID := env.uploadMapValidate(t)

	// Re-map after validation; staged rows are replaced and counts reset.
	result, err := env.service.ApplyMapping(ctx, ApplyMappingRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
		Config:   sampleMapping(),
	})
	if err != nil {
		t.Fatalf("re-mapping failed: %v", err)
	}
	if result.Batch.Status != domain.BatchStatusMapped {
		t.Errorf("expected batch back in mapped, got %s", result.Batch.Status)
	}
	if result.Batch.ValidCount != 0 || result.Batch.ErrorCount != 0 {
		t.Errorf("expected validation counts reset, got %+v", result.Batch)
	}

	rows, _ := env.batches.GetPreviewRows(ctx, batchID)
	if len(rows) != 3 {
		t.Errorf("expected staged rows replaced, got %d", len(rows))
	}
	if rows[0].Candidate.Email != "alice@example.com" {
		t.Errorf("expected identical candidate values on re-apply, got %+v", rows[0].Candidate)
	}
}

func TestApplyMappingRejectsUnknownField(t *testing.T) {
	env := newTestEnv(t)
	batchID := env.upload(t)

	_, err := env.service.ApplyMapping(context.Background(), ApplyMappingRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
		Config: domain.MappingConfig{Columns: []domain.ColumnMapping{
			{SourceColumn: "Email", TargetField: domain.Field("nickname")},
		}},
	})
	if err == nil {
		t.Fatal("expected unknown target field to be rejected")
	}
}

func TestApplyMappingSavesTemplate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	batchID := env.upload(t)

	result, err := env.service.ApplyMapping(ctx, ApplyMappingRequest{
		TenantID:         env.tenant,
		Actor:            env.actor,
		BatchID:          batchID,
		Config:           sampleMapping(),
		SaveTemplateName: "standard export",
	})
	if err != nil {
		t.Fatalf("ApplyMapping failed: %v", err)
	}
	if result.Template == nil || result.Template.Name != "standard export" {
		t.Fatalf("expected saved template, got %+v", result.Template)
	}

	// Same name again is a duplicate.
	_, err = env.service.ApplyMapping(ctx, ApplyMappingRequest{
		TenantID:         env.tenant,
		Actor:            env.actor,
		BatchID:          batchID,
		Config:           sampleMapping(),
		SaveTemplateName: "standard export",
	})
	if !errors.Is(err, domain.ErrDuplicateTemplate) {
		t.Fatalf("expected ErrDuplicateTemplate, got %v", err)
	}
}

func TestApplyMappingFailedStagingLeavesNoTemplate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	batchID := env.upload(t)
	env.batches.failReplacePreview = true

	_, err := env.service.ApplyMapping(ctx, ApplyMappingRequest{
		TenantID:         env.tenant,
		Actor:            env.actor,
		BatchID:          batchID,
		Config:           sampleMapping(),
		SaveTemplateName: "standard export",
	})
	if err == nil {
		t.Fatal("expected staging failure to surface")
	}
	if len(env.templates.templates) != 0 {
		t.Errorf("expected no template after a failed mapping, got %d", len(env.templates.templates))
	}
	batch, _ := env.batches.Get(ctx, env.tenant, batchID)
	if batch.Status != domain.BatchStatusUploaded {
		t.Errorf("expected batch left in uploaded, got %s", batch.Status)
	}
}

func TestValidateCounts(t *testing.T) {
	env := newTestEnv(t)
	batchID := env.uploadAndMap(t)

	summary, err := env.service.Validate(context.Background(), env.tenant, env.actor, batchID)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if summary.ValidCount != 2 || summary.ErrorCount != 1 || summary.WarningCount != 0 {
		t.Errorf("unexpected counts: %+v", summary)
	}
	if summary.Batch.Status != domain.BatchStatusValidated {
		t.Errorf("expected validated status, got %s", summary.Batch.Status)
	}

	// Re-running yields the same counts.
	again, err := env.service.Validate(context.Background(), env.tenant, env.actor, batchID)
	if err != nil {
		t.Fatalf("second Validate failed: %v", err)
	}
	if again.ValidCount != 2 || again.ErrorCount != 1 {
		t.Errorf("expected idempotent validation, got %+v", again)
	}
}

func TestValidatePreservesCoercionIssues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.service.Upload(ctx, UploadRequest{
		TenantID:   env.tenant,
		UploadedBy: env.actor,
		FileName:   "customers.csv",
		Payload:    []byte("First Name,Born\nAlice,not-a-date\n"),
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	batchID := result.Batch.ID

	_, err = env.service.ApplyMapping(ctx, ApplyMappingRequest{
		TenantID: env.tenant,
		Actor:    env.actor,
		BatchID:  batchID,
		Config: domain.MappingConfig{Columns: []domain.ColumnMapping{
			{SourceColumn: "First Name", TargetField: domain.FieldFirstName},
			{SourceColumn: "Born", TargetField: domain.FieldBirthDate},
		}},
	})
	if err != nil {
		t.Fatalf("ApplyMapping failed: %v", err)
	}

	summary, err := env.service.Validate(ctx, env.tenant, env.actor, batchID)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if summary.ErrorCount != 1 {
		t.Fatalf("expected unparsable date to stay blocking, got %+v", summary)
	}

	rows, _ := env.batches.GetPreviewRows(ctx, batchID)
	found := false
	for _, issue := range rows[0].Issues {
		if issue.Code == "date_unparsable" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected coercion issue preserved through validation, got %v", rows[0].Issues)
	}
}

func TestValidateRequiresMappedBatch(t *testing.T) {
	env := newTestEnv(t)
	batchID := env.upload(t)

	_, err := env.service.Validate(context.Background(), env.tenant, env.actor, batchID)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for unmapped batch, got %v", err)
	}
}

func TestCancelLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	batchID := env.upload(t)
	if err := env.service.Cancel(ctx, env.tenant, env.actor, batchID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	batch, _ := env.batches.Get(ctx, env.tenant, batchID)
	if batch.Status != domain.BatchStatusCancelled {
		t.Errorf("expected cancelled, got %s", batch.Status)
	}

	// A committed batch cannot be cancelled.
	committed := env.uploadMapValidate(t)
	if _, err := env.service.Commit(ctx, CommitRequest{TenantID: env.tenant, Actor: env.actor, BatchID: committed}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	err := env.service.Cancel(ctx, env.tenant, env.actor, committed)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for committed batch, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	batchID := env.upload(t)

	otherTenant := uuid.New()
	_, _, err := env.service.GetBatch(context.Background(), otherTenant, batchID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected foreign tenant to see not found, got %v", err)
	}
}

func TestErrorReport(t *testing.T) {
	env := newTestEnv(t)
	batchID := env.uploadMapValidate(t)

	var buf bytes.Buffer
	if err := env.service.WriteErrorReport(context.Background(), env.tenant, batchID, &buf); err != nil {
		t.Fatalf("WriteErrorReport failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !strings.HasPrefix(lines[0], "row_number,field,severity,code") {
		t.Errorf("unexpected report header: %q", lines[0])
	}
	// Row 3 carries two blocking findings.
	if len(lines) != 3 {
		t.Errorf("expected 2 issue lines, got %d: %v", len(lines)-1, lines[1:])
	}
	for _, line := range lines[1:] {
		if !strings.HasPrefix(line, "3,") {
			t.Errorf("expected issues on row 3, got %q", line)
		}
	}
}
