package wizard

import "time"

type Provenance string

const (
	ProvenanceAutofill      Provenance = "zip_autofill"
	ProvenanceManual        Provenance = "wizard_manual"
	ProvenanceCannotObtain  Provenance = "cannot_obtain"
	ProvenanceMissingMarker Provenance = "missing_marker"
)

type FillState string

const (
	StateEmpty      FillState = "empty"
	StateFilled     FillState = "filled"
	StateCNO        FillState = "cno"
	StateNormalized FillState = "normalized"
)

// counts reports whether the value counts toward completion.
func (s FillState) counts() bool {
	return s == StateFilled || s == StateCNO
}

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

type PageStatus string

const (
	PageNotStarted PageStatus = "not_started"
	PagePartial    PageStatus = "partial"
	PageComplete   PageStatus = "complete"
	PageSkipped    PageStatus = "skipped"
)

type FieldValue struct {
	FieldID    string     `json:"field_id"`
	Value      string     `json:"value"`
	Provenance Provenance `json:"provenance"`
	State      FillState  `json:"state"`
	CnoReason  string     `json:"cno_reason,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// State is one report's progress through one template. The caller owns it
// and persists it after every mutating call.
type State struct {
	ReportID          string                `json:"report_id"`
	TemplateID        string                `json:"template_id"`
	CurrentPage       int                   `json:"current_page"`
	TotalPages        int                   `json:"total_pages"`
	Status            Status                `json:"status"`
	PageStatuses      map[int]PageStatus    `json:"page_statuses"`
	StartedAt         *time.Time            `json:"started_at,omitempty"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
	LastSavedAt       *time.Time            `json:"last_saved_at,omitempty"`
	CompletionPercent float64               `json:"completion_percent"`
	FieldValues       map[string]FieldValue `json:"field_values"`
	MissingRequired   []string              `json:"missing_required"`
}

// snapshot is the value view used for dependency evaluation.
func (s *State) snapshot() map[string]string {
	out := make(map[string]string, len(s.FieldValues))
	for id, fv := range s.FieldValues {
		out[id] = fv.Value
	}
	return out
}

type PageSummary struct {
	PageID       int        `json:"page_id"`
	PageName     string     `json:"page_name"`
	PageLabel    string     `json:"page_label"`
	Status       PageStatus `json:"status"`
	FieldsFilled int        `json:"fields_filled"`
	FieldsTotal  int        `json:"fields_total"`
	AutoFilled   bool       `json:"auto_filled"`
}

type Summary struct {
	ReportID          string        `json:"report_id"`
	TemplateID        string        `json:"template_id"`
	TemplateName      string        `json:"template_name"`
	Status            Status        `json:"status"`
	CurrentPage       int           `json:"current_page"`
	TotalPages        int           `json:"total_pages"`
	CompletionPercent float64       `json:"completion_percent"`
	MissingRequired   []string      `json:"missing_required"`
	CanComplete       bool          `json:"can_complete"`
	Pages             []PageSummary `json:"pages"`
	StartedAt         *time.Time    `json:"started_at"`
	LastSavedAt       *time.Time    `json:"last_saved_at"`
	CompletedAt       *time.Time    `json:"completed_at"`
}

// Input is one incoming page value. A nil Value is an explicit clear; a
// field missing from the page map was not submitted at all.
type Input struct {
	Value *string
}

// Set and Clear build page inputs.
func Set(v string) Input { return Input{Value: &v} }

func Clear() Input { return Input{} }
