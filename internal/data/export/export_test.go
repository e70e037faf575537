package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	domainerrors "cprqa/internal/core/errors"
)

// writeWorkbook creates a workbook whose sheets hold the given cells, keyed
// by sheet name then cell reference.
func writeWorkbook(t *testing.T, path string, sheets map[string]map[string]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for name, cells := range sheets {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for ref, v := range cells {
			require.NoError(t, f.SetCellValue(name, ref, v))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))
	require.NoError(t, f.SaveAs(path))
}

func cellAt(t *testing.T, path, sheet, ref string) string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(sheet, ref)
	require.NoError(t, err)
	return v
}

func pcoSheet() map[string]any {
	return map[string]any{
		"A1": "ptid", "B1": "cr_cmprt1", "C1": "cr_cdpth1", "D1": "cr_duration",
		"B2": "Compression rate minute 1",
		"B4": 110, "B5": ".", "B6": 112, "B7": ".",
	}
}

func newTestExporter(t *testing.T) (*Exporter, string) {
	t.Helper()
	dir := t.TempDir()
	templates := filepath.Join(dir, "templates")
	require.NoError(t, os.MkdirAll(templates, 0o755))

	writeWorkbook(t, filepath.Join(templates, "pco.xlsx"), map[string]map[string]any{
		"Jan ": pcoSheet(),
		"Mar":  pcoSheet(),
	})
	writeWorkbook(t, filepath.Join(templates, "master.xlsx"), map[string]map[string]any{
		"Master": {"A1": "pcofile", "B1": "cr_epdt", "A4": "older-report"},
	})

	e := NewExporter(templates, filepath.Join(dir, "exports"), []Template{
		{ID: "pco", Workbook: "pco.xlsx", Sheet: "Jan ", MonthTabs: true, StartRow: 4, CheckColumn: "cr_cmprt1", Label: "PCO"},
		{ID: "master", Workbook: "master.xlsx", Sheet: "Master", StartRow: 4, CheckColumn: "pcofile", Label: "Master"},
	})
	e.now = func() time.Time { return time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC) }
	return e, dir
}

func TestExportPCOAppendsAfterLastRealRow(t *testing.T) {
	e, dir := newTestExporter(t)

	out, err := e.Export("pco", map[string]string{
		"cr_cmprt1":   "101.2",
		"cr_cdpth1":   ".",
		"ptid":        "0042",
		"not_in_book": "ignored",
	}, "2026-01-14", "5f0c7a52-1111-2222-3333-444455556666")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "exports", "CanROC_PCO_2026-01-14_5f0c7a52.xlsx"), out)
	assert.Equal(t, "101.2", cellAt(t, out, "Jan ", "B7"))
	assert.Equal(t, ".", cellAt(t, out, "Jan ", "C7"))
	assert.Equal(t, "0042", cellAt(t, out, "Jan ", "A7"))
	assert.Equal(t, "112", cellAt(t, out, "Jan ", "B6"))
}

func TestExportMonthTabFallsBackToTrimmedName(t *testing.T) {
	e, _ := newTestExporter(t)

	out, err := e.Export("pco", map[string]string{"cr_cmprt1": "99"}, "2026-03-02", "abc")
	require.NoError(t, err)
	assert.Equal(t, "CanROC_PCO_2026-03-02_abc.xlsx", filepath.Base(out))
	assert.Equal(t, "99", cellAt(t, out, "Mar", "B7"))
}

func TestExportMissingMonthTab(t *testing.T) {
	e, _ := newTestExporter(t)

	_, err := e.Export("pco", map[string]string{"cr_cmprt1": "99"}, "2026-07-02", "abc")
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotFound))
	assert.Contains(t, domainerrors.Message(err), "Month tab 'Jul' not found")
}

func TestExportInvalidDateUsesCurrentMonth(t *testing.T) {
	e, _ := newTestExporter(t)

	out, err := e.Export("pco", map[string]string{"cr_cmprt1": "98"}, "not-a-date", "abc")
	require.NoError(t, err)
	assert.Equal(t, "98", cellAt(t, out, "Jan ", "B7"))
}

func TestExportMaster(t *testing.T) {
	e, _ := newTestExporter(t)

	out, err := e.Export("master", map[string]string{"pcofile": "rpt-1", "cr_epdt": "2026-01-14"}, "", "rpt-1")
	require.NoError(t, err)
	assert.Equal(t, "CanROC_Master_2026-01-20_rpt-1.xlsx", filepath.Base(out))
	assert.Equal(t, "rpt-1", cellAt(t, out, "Master", "A5"))
	assert.Equal(t, "2026-01-14", cellAt(t, out, "Master", "B5"))
}

func TestExportMissingSentinelHeader(t *testing.T) {
	e, dir := newTestExporter(t)
	writeWorkbook(t, filepath.Join(dir, "templates", "master.xlsx"), map[string]map[string]any{
		"Master": {"A1": "cr_epdt"},
	})

	_, err := e.Export("master", map[string]string{"cr_epdt": "2026-01-14"}, "2026-01-14", "rpt-1")
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeValidationError))
	assert.Equal(t, "Missing 'pcofile' header in Master template", domainerrors.Message(err))
}

func TestExportUnknownTemplateAndMissingWorkbook(t *testing.T) {
	e, dir := newTestExporter(t)

	_, err := e.Export("other", nil, "", "x")
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotFound))

	e.SetTemplateDir(filepath.Join(dir, "elsewhere"))
	_, err = e.Export("pco", nil, "", "x")
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotFound))
	assert.Contains(t, domainerrors.Message(err), "PCO template not found")
}

func TestHeaderReader(t *testing.T) {
	_, dir := newTestExporter(t)
	path := filepath.Join(dir, "templates", "pco.xlsx")

	headers, err := HeaderReader{}.ReadHeaders(path, "Jan")
	require.NoError(t, err)
	assert.Equal(t, []string{"ptid", "cr_cmprt1", "cr_cdpth1", "cr_duration"}, headers)

	_, err = HeaderReader{}.ReadHeaders(path, "Dec")
	assert.Error(t, err)

	_, err = HeaderReader{}.ReadHeaders(filepath.Join(dir, "missing.xlsx"), "Jan ")
	assert.Error(t, err)
}

func TestCellValue(t *testing.T) {
	assert.Equal(t, 101.2, cellValue("101.2"))
	assert.Equal(t, float64(-3), cellValue("-3"))
	assert.Equal(t, 0.5, cellValue("0.5"))
	assert.Equal(t, "0042", cellValue("0042"))
	assert.Equal(t, ".", cellValue("."))
	assert.Equal(t, "00:01:10", cellValue("00:01:10"))
	assert.Equal(t, "5 to 6", cellValue("5 to 6"))
}
