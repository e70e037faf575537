package wizard

import (
	"fmt"

	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/shared/util"
)

// Complete is the one hard gate: every statically required field must be
// filled or marked cannot-obtain. On success every untouched field gets the
// missing marker and the state is final.
func (m *Machine) Complete(st *State) error {
	var missing []string
	for _, id := range m.def.RequiredFields() {
		if st.FieldValues[id].State.counts() {
			continue
		}
		label := id
		if field, ok := m.def.Field(id); ok {
			label = field.DisplayLabel()
		}
		missing = append(missing, fmt.Sprintf("Required field '%s' [%s] is not filled", label, id))
	}
	if len(missing) > 0 {
		return domainerrors.Newf(domainerrors.CodeIncomplete, "%d required field(s) are not filled", len(missing)).
			WithContext(domainerrors.CtxTemplate, m.def.TemplateID).
			WithContext(domainerrors.CtxReport, st.ReportID).
			WithDetails(missing...)
	}
	m.count("complete")

	now := m.stamp()
	marker := m.def.MissingMarker()
	if st.FieldValues == nil {
		st.FieldValues = make(map[string]FieldValue)
	}
	for _, id := range m.def.FieldIDs() {
		if _, ok := st.FieldValues[id]; ok {
			continue
		}
		st.FieldValues[id] = FieldValue{
			FieldID:    id,
			Value:      marker,
			Provenance: ProvenanceMissingMarker,
			State:      StateNormalized,
			UpdatedAt:  *now,
		}
	}

	st.Status = StatusComplete
	st.CompletedAt = now
	st.LastSavedAt = now
	st.CompletionPercent = 100
	return nil
}

// ExportPayload returns every touched field's stored value, markers
// included. Untouched fields are absent.
func (m *Machine) ExportPayload(st *State) map[string]string {
	out := make(map[string]string, len(st.FieldValues))
	for id, fv := range st.FieldValues {
		switch fv.State {
		case StateFilled, StateCNO, StateNormalized:
			out[id] = fv.Value
		}
	}
	return out
}

func (m *Machine) Summary(st *State) Summary {
	pages := make([]PageSummary, 0, len(m.def.Pages))
	for _, page := range m.def.Pages {
		status, ok := st.PageStatuses[page.ID]
		if !ok {
			status = PageNotStarted
		}
		filled := 0
		for _, field := range page.Fields {
			if st.FieldValues[field.ID].State.counts() {
				filled++
			}
		}
		pages = append(pages, PageSummary{
			PageID:       page.ID,
			PageName:     page.Name,
			PageLabel:    page.Label,
			Status:       status,
			FieldsFilled: filled,
			FieldsTotal:  len(page.Fields),
			AutoFilled:   page.AutoFilled,
		})
	}

	missing := append([]string{}, st.MissingRequired...)
	return Summary{
		ReportID:          st.ReportID,
		TemplateID:        m.def.TemplateID,
		TemplateName:      m.def.TemplateName,
		Status:            st.Status,
		CurrentPage:       st.CurrentPage,
		TotalPages:        st.TotalPages,
		CompletionPercent: util.Round(st.CompletionPercent, 1),
		MissingRequired:   missing,
		CanComplete:       len(missing) == 0,
		Pages:             pages,
		StartedAt:         st.StartedAt,
		LastSavedAt:       st.LastSavedAt,
		CompletedAt:       st.CompletedAt,
	}
}
