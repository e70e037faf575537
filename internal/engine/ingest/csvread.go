package ingest

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"
)

const utf8BOM = "\uFEFF"

// finite rejects the NaN and Inf spellings strconv accepts.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// readEntry returns an archive member as text with any UTF-8 BOM removed.
func readEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", unexpectedError(err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", unexpectedError(err)
	}
	if !utf8.Valid(data) {
		return "", ingestionError("Error decoding CSV content: invalid UTF-8 in %s", f.Name)
	}
	return strings.TrimPrefix(string(data), utf8BOM), nil
}

func readRecords(content string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

// table is a header-keyed view over CSV rows. A repeated header resolves to
// its last column.
type table struct {
	columns map[string]int
	rows    [][]string
}

func readTable(content string) (*table, error) {
	records, err := readRecords(content)
	if err != nil {
		return nil, err
	}
	t := &table{columns: make(map[string]int)}
	if len(records) == 0 {
		return t, nil
	}
	for i, name := range records[0] {
		t.columns[name] = i
	}
	t.rows = records[1:]
	return t, nil
}

func (t *table) hasColumn(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// cell reports false when the column is unknown or the row is too short.
func (t *table) cell(row []string, name string) (string, bool) {
	idx, ok := t.columns[name]
	if !ok || idx >= len(row) {
		return "", false
	}
	return row[idx], true
}
