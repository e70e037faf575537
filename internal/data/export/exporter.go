package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel/attribute"

	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/shared/observability"
)

const maxScanRows = 10000

var monthTabs = [12]string{
	"Jan ", "Feb ", "Mar ", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// Template describes where one template's payload is written. Workbook is
// relative to the exporter's template directory unless absolute.
type Template struct {
	ID          string
	Workbook    string
	Sheet       string
	MonthTabs   bool
	StartRow    int
	CheckColumn string
	Label       string
}

type Exporter struct {
	mu          sync.RWMutex
	templateDir string
	exportDir   string
	templates   map[string]Template
	now         func() time.Time
}

func NewExporter(templateDir, exportDir string, templates []Template) *Exporter {
	byID := make(map[string]Template, len(templates))
	for _, tpl := range templates {
		byID[tpl.ID] = tpl
	}
	return &Exporter{
		templateDir: templateDir,
		exportDir:   exportDir,
		templates:   byID,
		now:         time.Now,
	}
}

// SetTemplateDir repoints workbook lookups, used on tenant switch.
func (e *Exporter) SetTemplateDir(dir string) {
	e.mu.Lock()
	e.templateDir = dir
	e.mu.Unlock()
}

// WorkbookPath returns the absolute template workbook for a template id.
func (e *Exporter) WorkbookPath(templateID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tpl, ok := e.templates[templateID]
	if !ok {
		return "", false
	}
	if filepath.IsAbs(tpl.Workbook) {
		return tpl.Workbook, true
	}
	return filepath.Join(e.templateDir, tpl.Workbook), true
}

// Export appends payload as one row of a copy of the template workbook and
// returns the written file. Fields without a matching row 1 header are dropped.
func (e *Exporter) Export(templateID string, payload map[string]string, eventDate, reportID string) (string, error) {
	_, span := observability.Tracer.Start(context.Background(), "export.Workbook")
	defer span.End()
	span.SetAttributes(attribute.String("template", templateID), attribute.String("report_id", reportID))

	e.mu.RLock()
	tpl, ok := e.templates[templateID]
	exportDir := e.exportDir
	e.mu.RUnlock()
	if !ok {
		return "", domainerrors.Newf(domainerrors.CodeNotFound, "Unknown template_id: %s", templateID).
			WithContext(domainerrors.CtxTemplate, templateID)
	}

	workbook, _ := e.WorkbookPath(templateID)
	if _, err := os.Stat(workbook); err != nil {
		return "", domainerrors.Newf(domainerrors.CodeNotFound, "%s template not found: %s", tpl.Label, workbook).
			WithContext(domainerrors.CtxTemplate, templateID)
	}

	f, err := excelize.OpenFile(workbook)
	if err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "Export failed").
			WithContext(domainerrors.CtxPath, workbook)
	}
	defer f.Close()

	sheet := tpl.Sheet
	if tpl.MonthTabs {
		sheet = e.monthTab(eventDate)
	}
	name, ok := resolveSheet(f, sheet)
	if !ok {
		if tpl.MonthTabs {
			return "", domainerrors.Newf(domainerrors.CodeNotFound,
				"Month tab '%s' not found in %s template. Available: %v", sheet, tpl.Label, f.GetSheetList()).
				WithContext(domainerrors.CtxTemplate, templateID)
		}
		name = f.GetSheetName(f.GetActiveSheetIndex())
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "Export failed").
			WithContext(domainerrors.CtxTemplate, templateID)
	}
	var headers map[string]int
	if len(rows) > 0 {
		headers = headerMap(rows[0])
	}
	checkCol, ok := headers[tpl.CheckColumn]
	if !ok {
		return "", domainerrors.Newf(domainerrors.CodeValidationError,
			"Missing '%s' header in %s template", tpl.CheckColumn, tpl.Label).
			WithContext(domainerrors.CtxTemplate, templateID)
	}

	row, err := nextRow(f, name, tpl.StartRow, checkCol)
	if err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "Export failed").
			WithContext(domainerrors.CtxTemplate, templateID)
	}

	written := 0
	for field, value := range payload {
		col, ok := headers[field]
		if !ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "Export failed")
		}
		if err := f.SetCellValue(name, cell, cellValue(value)); err != nil {
			return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "Export failed").
				WithContext(domainerrors.CtxField, field)
		}
		written++
	}

	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "create export directory").
			WithContext(domainerrors.CtxPath, exportDir)
	}
	out := filepath.Join(exportDir, e.filename(tpl, eventDate, reportID))
	if err := f.SaveAs(out); err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "Export failed").
			WithContext(domainerrors.CtxPath, out)
	}

	slog.Info("workbook exported", "template", templateID, "report_id", reportID, "path", out, "row", row, "fields", written)
	return out, nil
}

// monthTab picks the tab for a YYYY-MM-DD date, falling back to the current month.
func (e *Exporter) monthTab(date string) string {
	parts := strings.Split(strings.TrimSpace(date), "-")
	if len(parts) >= 2 {
		if month, err := strconv.Atoi(parts[1]); err == nil && month >= 1 && month <= 12 {
			return monthTabs[month-1]
		}
	}
	return monthTabs[e.now().Month()-1]
}

func (e *Exporter) filename(tpl Template, date, reportID string) string {
	if strings.TrimSpace(date) == "" {
		date = e.now().Format("2006-01-02")
	}
	id := reportID
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		id = "unknown"
	}
	return fmt.Sprintf("CanROC_%s_%s_%s.xlsx", tpl.Label, date, id)
}

// nextRow scans the check column from startRow and returns the row after the
// last real value. Placeholder cells ("" or ".") are passed over; a cell that
// was never written ends the scan.
func nextRow(f *excelize.File, sheet string, startRow, col int) (int, error) {
	if startRow < 1 {
		startRow = 1
	}
	last := startRow - 1
	for row := startRow; row < maxScanRows; row++ {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return 0, err
		}
		val, err := f.GetCellValue(sheet, cell)
		if err != nil {
			return 0, err
		}
		trimmed := strings.TrimSpace(val)
		if trimmed != "" && trimmed != "." {
			last = row
			continue
		}
		if val == "" {
			typ, err := f.GetCellType(sheet, cell)
			if err != nil {
				return 0, err
			}
			if typ == excelize.CellTypeUnset {
				break
			}
		}
	}
	return last + 1, nil
}

// cellValue writes plain decimals as numbers. Values with a leading zero
// before another digit, such as ids, stay text.
func cellValue(v string) any {
	s := strings.TrimSpace(v)
	if s == "" || s == "." {
		return v
	}
	digits := strings.TrimPrefix(s, "-")
	if len(digits) > 1 && digits[0] == '0' && digits[1] != '.' {
		return v
	}
	for _, r := range digits {
		if (r < '0' || r > '9') && r != '.' {
			return v
		}
	}
	f, err := cast.ToFloat64E(s)
	if err != nil {
		return v
	}
	return f
}
