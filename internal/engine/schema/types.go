package schema

type FieldType string

const (
	TypeText    FieldType = "text"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeChoice  FieldType = "choice"
	TypeDate    FieldType = "date"
	TypeTime    FieldType = "time"
)

type Condition string

const (
	CondEquals    Condition = "equals"
	CondNotEquals Condition = "not_equals"
	CondIn        Condition = "in"
	CondNotEmpty  Condition = "not_empty"
)

type Action string

const (
	ActionShow           Action = "show"
	ActionHide           Action = "hide"
	ActionRequire        Action = "require"
	ActionShowAndRequire Action = "show_and_require"
)

const DefaultDecimals = 2

// Definition is one template's pages and fields. It is read-only once loaded.
type Definition struct {
	TemplateID      string          `json:"template_id" yaml:"template_id"`
	TemplateName    string          `json:"template_name" yaml:"template_name"`
	Version         string          `json:"version,omitempty" yaml:"version,omitempty"`
	Marker          string          `json:"missing_marker,omitempty" yaml:"missing_marker,omitempty"`
	Pages           []Page          `json:"pages" yaml:"pages"`
	CompletionRules CompletionRules `json:"completion_rules" yaml:"completion_rules"`

	fields   map[string]*Field
	fieldIDs []string
	pages    map[int]*Page
}

type CompletionRules struct {
	RequiredFields []string `json:"required_fields" yaml:"required_fields"`
	// MinimumCompletion is a fraction in [0,1].
	MinimumCompletion float64 `json:"minimum_completion_percent" yaml:"minimum_completion_percent"`
}

type Page struct {
	ID         int     `json:"page_id" yaml:"page_id"`
	Name       string  `json:"page_name" yaml:"page_name"`
	Label      string  `json:"page_label" yaml:"page_label"`
	AutoFilled bool    `json:"auto_filled,omitempty" yaml:"auto_filled,omitempty"`
	Fields     []Field `json:"fields" yaml:"fields"`
}

type Field struct {
	ID           string       `json:"field_id" yaml:"field_id"`
	Label        string       `json:"label" yaml:"label"`
	Type         FieldType    `json:"type" yaml:"type"`
	Required     bool         `json:"required,omitempty" yaml:"required,omitempty"`
	Choices      []Choice     `json:"choices,omitempty" yaml:"choices,omitempty"`
	Decimals     *int         `json:"decimals,omitempty" yaml:"decimals,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	CnoAllowed   bool         `json:"cno_allowed,omitempty" yaml:"cno_allowed,omitempty"`
	CnoDefault   string       `json:"cno_default,omitempty" yaml:"cno_default,omitempty"`
	CnoFlagFor   string       `json:"cno_flag_for,omitempty" yaml:"cno_flag_for,omitempty"`
	ExcelColumn  int          `json:"excel_column,omitempty" yaml:"excel_column,omitempty"`

	// PageID is filled in by the loader from the enclosing page.
	PageID int `json:"-" yaml:"-"`
}

type Choice struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Dependency gates a field on another field's current value. Value is a
// scalar for equals/not_equals and a list for in.
type Dependency struct {
	FieldID   string    `json:"field_id" yaml:"field_id"`
	Condition Condition `json:"condition" yaml:"condition"`
	Value     any       `json:"value,omitempty" yaml:"value,omitempty"`
	Action    Action    `json:"action" yaml:"action"`
}

// DisplayLabel returns the label, falling back to the id.
func (f *Field) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

// DecimalPlaces is the precision used when normalizing float values.
func (f *Field) DecimalPlaces() int {
	if f.Decimals != nil && *f.Decimals >= 0 {
		return *f.Decimals
	}
	return DefaultDecimals
}
