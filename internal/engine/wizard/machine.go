// Package wizard drives one report through a template's pages: autofill,
// per-field edits, page saves and the completion gate.
package wizard

import (
	"time"

	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/engine/schema"
	"cprqa/internal/shared/observability"
)

// Machine applies wizard operations for one loaded definition. It keeps no
// per-report state; every call works on the State passed in.
type Machine struct {
	def *schema.Definition
	now func() time.Time
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func New(def *schema.Definition, opts ...Option) *Machine {
	m := &Machine{def: def, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Definition() *schema.Definition { return m.def }

func (m *Machine) count(op string) {
	observability.WizardOperationsTotal.WithLabelValues(op, m.def.TemplateID).Inc()
}

func (m *Machine) stamp() *time.Time {
	t := m.now()
	return &t
}

// Initialize builds a fresh state and autofills it. Earlier sources win: a
// later map only fills ids no earlier map set. Nil values and ids the
// schema does not declare are skipped.
func (m *Machine) Initialize(reportID string, sources ...map[string]any) *State {
	m.count("initialize")
	now := m.stamp()
	st := &State{
		ReportID:     reportID,
		TemplateID:   m.def.TemplateID,
		CurrentPage:  1,
		TotalPages:   m.def.TotalPages(),
		Status:       StatusInProgress,
		PageStatuses: make(map[int]PageStatus, m.def.TotalPages()),
		StartedAt:    now,
		LastSavedAt:  now,
		FieldValues:  make(map[string]FieldValue),
	}
	for _, page := range m.def.Pages {
		st.PageStatuses[page.ID] = PageNotStarted
	}

	marker := m.def.MissingMarker()
	for _, src := range sources {
		for id, raw := range src {
			if raw == nil {
				continue
			}
			field, ok := m.def.Field(id)
			if !ok {
				continue
			}
			if _, set := st.FieldValues[id]; set {
				continue
			}
			value, state := Normalize(field, raw, marker)
			st.FieldValues[id] = FieldValue{
				FieldID:    id,
				Value:      value,
				Provenance: ProvenanceAutofill,
				State:      state,
				UpdatedAt:  *now,
			}
		}
	}

	m.recompute(st)
	return st
}

// Upsert stores a value for a schema field and refreshes only the page that
// owns it. With ProvenanceCannotObtain the value is ignored and the field's
// cannot-obtain default is stored.
func (m *Machine) Upsert(st *State, fieldID string, value any, prov Provenance, cnoReason string) (FieldValue, error) {
	field, ok := m.def.Field(fieldID)
	if !ok {
		return FieldValue{}, domainerrors.Newf(domainerrors.CodeNotFound, "Unknown field_id: %s", fieldID).
			WithContext(domainerrors.CtxTemplate, m.def.TemplateID)
	}
	m.count("upsert")
	return m.upsert(st, field, value, prov, cnoReason), nil
}

func (m *Machine) upsert(st *State, field *schema.Field, value any, prov Provenance, cnoReason string) FieldValue {
	var fv FieldValue
	if prov == ProvenanceCannotObtain {
		stored, ok := m.def.CnoDefault(field.ID)
		if !ok {
			stored = m.def.MissingMarker()
		}
		fv = FieldValue{Value: stored, State: StateCNO}
	} else {
		fv.Value, fv.State = Normalize(field, value, m.def.MissingMarker())
	}
	fv.FieldID = field.ID
	fv.Provenance = prov
	fv.CnoReason = cnoReason
	now := m.stamp()
	fv.UpdatedAt = *now

	if st.FieldValues == nil {
		st.FieldValues = make(map[string]FieldValue)
	}
	st.FieldValues[field.ID] = fv
	st.LastSavedAt = now
	m.refreshPage(st, field.PageID)
	return fv
}

// MarkCNO records that a value cannot be obtained. The state is untouched
// when the field does not allow it.
func (m *Machine) MarkCNO(st *State, fieldID, reason string) (FieldValue, error) {
	if !m.def.IsCnoAllowed(fieldID) {
		return FieldValue{}, domainerrors.Newf(domainerrors.CodeNotAllowed, "Cannot obtain is not allowed for field %s", fieldID).
			WithContext(domainerrors.CtxField, fieldID).
			WithContext(domainerrors.CtxTemplate, m.def.TemplateID)
	}
	m.count("mark_cno")
	field, _ := m.def.Field(fieldID)
	return m.upsert(st, field, nil, ProvenanceCannotObtain, reason), nil
}

// ClearCNO resets the field to the missing marker as a manual edit.
func (m *Machine) ClearCNO(st *State, fieldID string) (FieldValue, error) {
	field, ok := m.def.Field(fieldID)
	if !ok {
		return FieldValue{}, domainerrors.Newf(domainerrors.CodeNotFound, "Unknown field_id: %s", fieldID)
	}
	m.count("clear_cno")
	return m.upsert(st, field, nil, ProvenanceManual, ""), nil
}
