package wizard

import (
	"fmt"
	"strings"

	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/engine/schema"
	"cprqa/internal/shared/observability"
)

// refreshPage recomputes one page's status from its visible fields.
func (m *Machine) refreshPage(st *State, pageID int) {
	page, ok := m.def.Page(pageID)
	if !ok {
		return
	}
	if st.PageStatuses == nil {
		st.PageStatuses = make(map[int]PageStatus)
	}
	if len(page.Fields) == 0 {
		st.PageStatuses[pageID] = PageComplete
		return
	}

	values := st.snapshot()
	var filled, required, requiredFilled int
	for i := range page.Fields {
		field := &page.Fields[i]
		show, req := m.def.EvaluateDependencies(field.ID, values)
		if !show {
			continue
		}
		done := st.FieldValues[field.ID].State.counts()
		if done {
			filled++
		}
		if req {
			required++
			if done {
				requiredFilled++
			}
		}
	}

	// Complete needs at least one required field and every declared field
	// filled, hidden ones included.
	switch {
	case required > 0 && requiredFilled == required && filled == len(page.Fields):
		st.PageStatuses[pageID] = PageComplete
	case filled > 0:
		st.PageStatuses[pageID] = PagePartial
	default:
		st.PageStatuses[pageID] = PageNotStarted
	}
}

// recompute refreshes the percentage, the missing list, every page and the
// overall status. Hidden fields stay in the denominator so toggling a gate
// field never makes the percentage move backwards.
func (m *Machine) recompute(st *State) {
	total := m.def.TotalFields()
	filled := 0
	for _, id := range m.def.FieldIDs() {
		if st.FieldValues[id].State.counts() {
			filled++
		}
	}
	if total > 0 {
		st.CompletionPercent = float64(filled) / float64(total) * 100
	} else {
		st.CompletionPercent = 0
	}

	st.MissingRequired = make([]string, 0, len(m.def.CompletionRules.RequiredFields))
	for _, id := range m.def.RequiredFields() {
		if !st.FieldValues[id].State.counts() {
			st.MissingRequired = append(st.MissingRequired, id)
		}
	}

	for _, page := range m.def.Pages {
		m.refreshPage(st, page.ID)
	}

	switch {
	case len(st.MissingRequired) == 0 && st.CompletionPercent >= m.def.CompletionRules.MinimumCompletion*100:
		st.Status = StatusComplete
	case filled > 0:
		st.Status = StatusInProgress
	default:
		st.Status = StatusNotStarted
	}
}

// SavePage validates and stores one page of input. Field problems are
// returned together as messages and never block the valid fields on the
// same page from being stored. Only an unknown page is an error.
func (m *Machine) SavePage(st *State, pageID int, inputs map[string]Input) ([]string, error) {
	page, ok := m.def.Page(pageID)
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "Page %d not found", pageID).
			WithContext(domainerrors.CtxTemplate, m.def.TemplateID)
	}
	m.count("save_page")

	marker := m.def.MissingMarker()
	values := st.snapshot()
	for id, in := range inputs {
		if in.Value == nil {
			delete(values, id)
			continue
		}
		values[id] = *in.Value
	}

	var problems []string
	for i := range page.Fields {
		field := &page.Fields[i]
		show, required := m.def.EvaluateDependencies(field.ID, values)
		if !show {
			continue
		}

		existing, stored := st.FieldValues[field.ID]
		in, submitted := inputs[field.ID]
		if !submitted {
			if required && !(stored && existing.State.counts()) {
				problems = append(problems, fmt.Sprintf("Field '%s' is required", field.DisplayLabel()))
			}
			continue
		}

		blank := in.Value == nil || isBlank(*in.Value, marker)
		if required && blank {
			if !(stored && existing.State == StateCNO) {
				problems = append(problems, fmt.Sprintf("Field '%s' is required", field.DisplayLabel()))
			}
			continue
		}

		if !blank && field.Type == schema.TypeChoice {
			if msg, bad := invalidChoice(field, *in.Value, marker); bad {
				problems = append(problems, msg)
				continue
			}
		}

		var value any
		if in.Value != nil {
			value = *in.Value
		}
		m.upsert(st, field, value, ProvenanceManual, "")
	}

	st.CurrentPage = pageID
	m.recompute(st)
	if len(problems) > 0 {
		observability.WizardValidationErrorsTotal.WithLabelValues(m.def.TemplateID).Add(float64(len(problems)))
	}
	return problems, nil
}

func isBlank(v, marker string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == marker
}

func invalidChoice(field *schema.Field, value, marker string) (string, bool) {
	allowed := make([]string, 0, len(field.Choices)+1)
	for _, c := range field.Choices {
		if c.Value == value {
			return "", false
		}
		allowed = append(allowed, c.Value)
	}
	allowed = append(allowed, marker)
	return fmt.Sprintf("Invalid value '%s' for field '%s'. Allowed: %s",
		value, field.DisplayLabel(), strings.Join(allowed, ", ")), true
}
