package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// HeaderReader reads row 1 of a workbook sheet for template drift checks.
type HeaderReader struct{}

func (HeaderReader) ReadHeaders(workbookPath, sheet string) ([]string, error) {
	f, err := excelize.OpenFile(workbookPath)
	if err != nil {
		return nil, fmt.Errorf("open workbook %q: %w", workbookPath, err)
	}
	defer f.Close()

	name, ok := resolveSheet(f, sheet)
	if !ok {
		return nil, fmt.Errorf("sheet %q not found in %s", sheet, workbookPath)
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	if len(rows) == 0 {
		return []string{}, nil
	}
	return rows[0], nil
}

// resolveSheet finds sheet by exact name, then without surrounding spaces.
// Month tabs in the shipped workbooks carry trailing spaces on some months.
func resolveSheet(f *excelize.File, sheet string) (string, bool) {
	names := f.GetSheetList()
	for _, name := range names {
		if name == sheet {
			return name, true
		}
	}
	trimmed := strings.TrimSpace(sheet)
	for _, name := range names {
		if strings.TrimSpace(name) == trimmed {
			return name, true
		}
	}
	return "", false
}

// headerMap maps trimmed row 1 codes to 1-based column numbers. Later
// duplicates win.
func headerMap(row []string) map[string]int {
	out := make(map[string]int, len(row))
	for i, cell := range row {
		code := strings.TrimSpace(cell)
		if code == "" {
			continue
		}
		out[code] = i + 1
	}
	return out
}
