package schema

import (
	"fmt"
	"os"
	"strings"
)

// HeaderSource reads row 1 of a worksheet. Empty cells are returned as "".
type HeaderSource interface {
	ReadHeaders(workbookPath, sheet string) ([]string, error)
}

// TemplateRef locates the export workbook a schema is checked against.
type TemplateRef struct {
	TemplateID string
	Workbook   string
	Sheet      string
}

// ValidateAgainstTemplate compares schema field ids with the workbook's row 1
// codes. It is advisory only and never changes the cached definition.
func (c *Cache) ValidateAgainstTemplate(ref TemplateRef, headers HeaderSource) []string {
	var warnings []string

	if _, err := os.Stat(ref.Workbook); err != nil {
		return append(warnings, fmt.Sprintf("CRITICAL: Template file not found: %s", ref.Workbook))
	}

	def, err := c.Get(ref.TemplateID)
	if err != nil {
		return append(warnings, fmt.Sprintf("CRITICAL: Failed to load schema: %v", err))
	}

	row, err := headers.ReadHeaders(ref.Workbook, ref.Sheet)
	if err != nil {
		return append(warnings, fmt.Sprintf("ERROR: Failed to validate against template: %v", err))
	}

	columns := make(map[string]int, len(row))
	order := make([]string, 0, len(row))
	for i, cell := range row {
		code := strings.TrimSpace(cell)
		if code == "" {
			continue
		}
		if _, seen := columns[code]; !seen {
			order = append(order, code)
		}
		columns[code] = i + 1
	}

	for _, id := range def.fieldIDs {
		if _, ok := columns[id]; !ok {
			warnings = append(warnings, fmt.Sprintf("MISSING: Field '%s' in schema but not in Excel Row 1", id))
		}
	}

	for _, code := range order {
		if _, ok := def.fields[code]; ok {
			continue
		}
		if strings.HasPrefix(code, "cr_") || code == "pcofile" || code == "ptid" || code == "ptid2" {
			warnings = append(warnings, fmt.Sprintf("EXTRA: Field '%s' in Excel but not in schema", code))
		}
	}

	for _, id := range def.fieldIDs {
		actual, ok := columns[id]
		expected := def.fields[id].ExcelColumn
		if ok && expected != 0 && expected != actual {
			warnings = append(warnings, fmt.Sprintf("MOVED: Field '%s' expected column %d, found at %d", id, expected, actual))
		}
	}

	return warnings
}

// ValidateAll runs the drift check for each reference, keyed by template id.
func (c *Cache) ValidateAll(refs []TemplateRef, headers HeaderSource) map[string][]string {
	out := make(map[string][]string, len(refs))
	for _, ref := range refs {
		out[ref.TemplateID] = c.ValidateAgainstTemplate(ref, headers)
	}
	return out
}
