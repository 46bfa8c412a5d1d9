// Package intake validates uploaded files and extracts their rows before any
// batch state is created.
package intake

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/custimport/internal/domain"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Limits bound how much of an upload the extractor is willing to decode.
type Limits struct {
	MaxFileBytes int64
	MaxRows      int
}

// DefaultLimits returns the ceilings used when configuration supplies none.
func DefaultLimits() Limits {
	return Limits{
		MaxFileBytes: 10 << 20,
		MaxRows:      10000,
	}
}

// Table is an extracted file: ordered header names plus raw rows tagged with
// their 1-based source position (header excluded).
type Table struct {
	Headers []string
	Rows    []domain.RawRow
}

// Extract checks the file signature and size, then decodes the payload into a
// Table. It rejects before full decoding wherever it can: size ahead of any
// parsing, row ceilings while streaming.
func Extract(fileName string, payload []byte, limits Limits) (Table, error) {
	if limits.MaxFileBytes > 0 && int64(len(payload)) > limits.MaxFileBytes {
		return Table{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", domain.ErrTooLarge, len(payload), limits.MaxFileBytes)
	}
	if len(payload) == 0 {
		return Table{}, fmt.Errorf("%w: file is empty", domain.ErrInvalidFormat)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".txt", ".tsv":
		if err := checkDelimitedSignature(payload); err != nil {
			return Table{}, err
		}
		return parseDelimited(payload, ext, limits.MaxRows)
	case ".xlsx":
		if err := checkWorkbookSignature(payload); err != nil {
			return Table{}, err
		}
		return parseWorkbook(payload, limits.MaxRows)
	default:
		return Table{}, fmt.Errorf("%w: unsupported extension %q", domain.ErrInvalidFormat, ext)
	}
}

var (
	zipSignature    = []byte{0x50, 0x4B, 0x03, 0x04}
	legacySignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// checkWorkbookSignature rejects declared spreadsheets whose leading bytes are
// neither the zip container nor the legacy binary container.
func checkWorkbookSignature(payload []byte) error {
	if bytes.HasPrefix(payload, zipSignature) || bytes.HasPrefix(payload, legacySignature) {
		return nil
	}
	detected := mimetype.Detect(payload)
	return fmt.Errorf("%w: declared .xlsx but content is %s", domain.ErrInvalidFormat, detected.String())
}

// checkDelimitedSignature samples the head of a declared text file and rejects
// binary control bytes.
func checkDelimitedSignature(payload []byte) error {
	sample := payload
	if len(sample) > 8192 {
		sample = sample[:8192]
	}
	sample = bytes.TrimPrefix(sample, byteOrderMark)
	for _, b := range sample {
		if b < 0x09 || (b > 0x0D && b < 0x20) || b == 0x7F {
			detected := mimetype.Detect(payload)
			return fmt.Errorf("%w: declared text but content is %s", domain.ErrInvalidFormat, detected.String())
		}
	}
	return nil
}

func parseDelimited(payload []byte, ext string, maxRows int) (Table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1
	if ext == ".tsv" {
		csvReader.Comma = '\t'
	}

	var records [][]string
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err)
		}
		records = append(records, record)
		if maxRows > 0 && len(records) > maxRows+1 { // header row does not count
			return Table{}, fmt.Errorf("%w: more than %d data rows", domain.ErrTooManyRows, maxRows)
		}
	}

	return buildTable(records, maxRows)
}

func parseWorkbook(payload []byte, maxRows int) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		// Legacy binary workbooks clear the signature check but cannot be decoded.
		return Table{}, fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("%w: workbook has no sheets", domain.ErrInvalidFormat)
	}

	iter, err := f.Rows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err)
	}
	defer func() { _ = iter.Close() }()

	var records [][]string
	for iter.Next() {
		row, err := iter.Columns()
		if err != nil {
			return Table{}, fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err)
		}
		records = append(records, row)
		if maxRows > 0 && len(records) > maxRows+1 {
			return Table{}, fmt.Errorf("%w: more than %d data rows", domain.ErrTooManyRows, maxRows)
		}
	}
	if err := iter.Error(); err != nil {
		return Table{}, fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err)
	}

	return buildTable(records, maxRows)
}

// buildTable treats the first non-empty record as the header row and pairs
// every later record with it.
func buildTable(records [][]string, maxRows int) (Table, error) {
	var headers []string
	var rows []domain.RawRow

	for _, record := range records {
		if emptyRecord(record) {
			continue
		}
		if headers == nil {
			headers = normalizeHeaders(record)
			continue
		}
		rowNumber := len(rows) + 1
		values := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(record) {
				values[header] = strings.TrimSpace(record[i])
			} else {
				values[header] = ""
			}
		}
		rows = append(rows, domain.RawRow{RowNumber: rowNumber, Values: values})
		if maxRows > 0 && len(rows) > maxRows {
			return Table{}, fmt.Errorf("%w: more than %d data rows", domain.ErrTooManyRows, maxRows)
		}
	}

	if headers == nil {
		return Table{}, fmt.Errorf("%w: no header row detected", domain.ErrInvalidFormat)
	}

	return Table{Headers: headers, Rows: rows}, nil
}

// normalizeHeaders trims header cells, names blank ones, and de-duplicates
// repeats so row values stay addressable by header.
func normalizeHeaders(record []string) []string {
	headers := make([]string, len(record))
	seen := make(map[string]int)

	for idx, cell := range record {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}
		base := name
		if count := seen[base]; count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base]++
		headers[idx] = name
	}
	return headers
}

func emptyRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
