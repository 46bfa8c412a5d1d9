package intake

import (
	"errors"
	"strings"
	"testing"

	"github.com/rpattn/custimport/internal/domain"
)

func TestExtractCSV(t *testing.T) {
	payload := []byte("Email,First Name,Last Name\n" +
		"alice@example.com,Alice,Smith\n" +
		"bob@example.com,Bob,Jones\n")

	table, err := Extract("customers.csv", payload, DefaultLimits())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(table.Headers) != 3 {
		t.Fatalf("expected 3 headers, got %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[0].RowNumber != 1 {
		t.Errorf("expected first data row to be row 1, got %d", table.Rows[0].RowNumber)
	}
	if got := table.Rows[1].Values["Email"]; got != "bob@example.com" {
		t.Errorf("expected bob@example.com, got %q", got)
	}
}

func TestExtractTSV(t *testing.T) {
	payload := []byte("email\tname\nalice@example.com\tAlice\n")

	table, err := Extract("customers.tsv", payload, DefaultLimits())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := table.Rows[0].Values["name"]; got != "Alice" {
		t.Errorf("expected Alice, got %q", got)
	}
}

func TestExtractStripsBOM(t *testing.T) {
	payload := append([]byte{0xEF, 0xBB, 0xBF}, []byte("email\nalice@example.com\n")...)

	table, err := Extract("customers.csv", payload, DefaultLimits())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if table.Headers[0] != "email" {
		t.Errorf("expected BOM stripped from header, got %q", table.Headers[0])
	}
}

func TestExtractSkipsEmptyRecordsAndNumbersRows(t *testing.T) {
	payload := []byte("email\n\nalice@example.com\n,\nbob@example.com\n")

	table, err := Extract("customers.csv", payload, DefaultLimits())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows after skipping blanks, got %d", len(table.Rows))
	}
	if table.Rows[1].RowNumber != 2 {
		t.Errorf("expected row numbering to skip blanks, got %d", table.Rows[1].RowNumber)
	}
}

func TestExtractDeduplicatesHeaders(t *testing.T) {
	payload := []byte("email,email,\nalice@example.com,alt@example.com,x\n")

	table, err := Extract("customers.csv", payload, DefaultLimits())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	want := []string{"email", "email_2", "column_3"}
	for i, header := range want {
		if table.Headers[i] != header {
			t.Errorf("header %d: expected %q, got %q", i, header, table.Headers[i])
		}
	}
	if got := table.Rows[0].Values["email_2"]; got != "alt@example.com" {
		t.Errorf("expected duplicated column addressable, got %q", got)
	}
}

func TestExtractRejectsOversizedFile(t *testing.T) {
	limits := Limits{MaxFileBytes: 10, MaxRows: 100}
	_, err := Extract("customers.csv", []byte("email\nalice@example.com\n"), limits)
	if !errors.Is(err, domain.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestExtractRejectsTooManyRows(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("email\n")
	for i := 0; i < 5; i++ {
		sb.WriteString("a@example.com\n")
	}
	limits := Limits{MaxFileBytes: 1 << 20, MaxRows: 3}

	_, err := Extract("customers.csv", []byte(sb.String()), limits)
	if !errors.Is(err, domain.ErrTooManyRows) {
		t.Fatalf("expected ErrTooManyRows, got %v", err)
	}
}

func TestExtractRejectsMismatchedSignature(t *testing.T) {
	// Plain text payload declared as a workbook.
	_, err := Extract("customers.xlsx", []byte("email\nalice@example.com\n"), DefaultLimits())
	if !errors.Is(err, domain.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}

	// Binary payload declared as text.
	_, err = Extract("customers.csv", []byte{0x00, 0x01, 0x02, 0x03}, DefaultLimits())
	if !errors.Is(err, domain.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestExtractRejectsUnknownExtension(t *testing.T) {
	_, err := Extract("customers.pdf", []byte("whatever"), DefaultLimits())
	if !errors.Is(err, domain.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestExtractRejectsEmptyFile(t *testing.T) {
	_, err := Extract("customers.csv", nil, DefaultLimits())
	if !errors.Is(err, domain.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestExtractRaggedRows(t *testing.T) {
	payload := []byte("email,name\nalice@example.com\nbob@example.com,Bob,extra\n")

	table, err := Extract("customers.csv", payload, DefaultLimits())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := table.Rows[0].Values["name"]; got != "" {
		t.Errorf("expected short row padded with empty, got %q", got)
	}
	if got := table.Rows[1].Values["name"]; got != "Bob" {
		t.Errorf("expected long row truncated to headers, got %q", got)
	}
}
