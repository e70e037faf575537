package schema

func (d *Definition) Field(fieldID string) (*Field, bool) {
	f, ok := d.fields[fieldID]
	return f, ok
}

func (d *Definition) Page(pageID int) (*Page, bool) {
	p, ok := d.pages[pageID]
	return p, ok
}

// FieldIDs returns every field id in declaration order.
func (d *Definition) FieldIDs() []string {
	return append([]string(nil), d.fieldIDs...)
}

// RequiredFields is the static completion list, not the dependency-evaluated one.
func (d *Definition) RequiredFields() []string {
	return append([]string(nil), d.CompletionRules.RequiredFields...)
}

func (d *Definition) TotalPages() int {
	return len(d.Pages)
}

func (d *Definition) TotalFields() int {
	return len(d.fieldIDs)
}

// Choices returns the declared choices, or nil for non-choice fields.
func (d *Definition) Choices(fieldID string) []Choice {
	f, ok := d.fields[fieldID]
	if !ok || f.Type != TypeChoice {
		return nil
	}
	return f.Choices
}

func (d *Definition) Dependencies(fieldID string) []Dependency {
	if f, ok := d.fields[fieldID]; ok {
		return f.Dependencies
	}
	return nil
}

func (d *Definition) IsCnoAllowed(fieldID string) bool {
	f, ok := d.fields[fieldID]
	return ok && f.CnoAllowed
}

func (d *Definition) CnoDefault(fieldID string) (string, bool) {
	f, ok := d.fields[fieldID]
	if !ok || f.CnoDefault == "" {
		return "", false
	}
	return f.CnoDefault, true
}

// CnoFlagField returns the id of the field whose cno_flag_for names fieldID.
func (d *Definition) CnoFlagField(fieldID string) string {
	for _, id := range d.fieldIDs {
		if d.fields[id].CnoFlagFor == fieldID {
			return id
		}
	}
	return ""
}

func (d *Definition) MissingMarker() string {
	return d.Marker
}
