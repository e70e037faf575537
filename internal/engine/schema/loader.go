package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	domainerrors "cprqa/internal/core/errors"
)

// LoadFile reads a JSON or YAML definition and validates it. defaultMarker is
// used when the file does not declare its own missing marker.
func LoadFile(path, templateID, defaultMarker string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domainerrors.Newf(domainerrors.CodeNotFound, "Schema file not found: %s", path).
				WithContext(domainerrors.CtxTemplate, templateID)
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "read schema file").
			WithContext(domainerrors.CtxPath, path)
	}
	return Parse(data, filepath.Ext(path), templateID, defaultMarker)
}

// Parse decodes a definition from raw bytes; ext selects the codec.
func Parse(data []byte, ext, templateID, defaultMarker string) (*Definition, error) {
	var def Definition
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "decode schema json").
				WithContext(domainerrors.CtxTemplate, templateID)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "decode schema yaml").
				WithContext(domainerrors.CtxTemplate, templateID)
		}
	default:
		return nil, domainerrors.Newf(domainerrors.CodeValidationError, "unsupported schema format %q", ext).
			WithContext(domainerrors.CtxTemplate, templateID)
	}

	if def.TemplateID == "" {
		def.TemplateID = templateID
	}
	if def.Marker == "" {
		def.Marker = defaultMarker
	}
	if def.Marker == "" {
		def.Marker = "."
	}

	if problems := validate(&def, templateID); len(problems) > 0 {
		return nil, domainerrors.Newf(domainerrors.CodeValidationError, "schema %q is malformed", templateID).
			WithContext(domainerrors.CtxTemplate, templateID).
			WithDetails(problems...)
	}
	def.index()
	return &def, nil
}

func validate(def *Definition, templateID string) []string {
	var problems []string
	if templateID != "" && def.TemplateID != templateID {
		problems = append(problems, fmt.Sprintf("template_id %q does not match %q", def.TemplateID, templateID))
	}
	if len(def.Pages) == 0 {
		problems = append(problems, "schema declares no pages")
	}
	if def.CompletionRules.MinimumCompletion < 0 || def.CompletionRules.MinimumCompletion > 1 {
		problems = append(problems, fmt.Sprintf("minimum_completion_percent %v must be within [0,1]", def.CompletionRules.MinimumCompletion))
	}

	pageIDs := make(map[int]bool, len(def.Pages))
	fieldIDs := make(map[string]bool)
	for _, page := range def.Pages {
		if page.ID <= 0 {
			problems = append(problems, fmt.Sprintf("page %q has invalid page_id %d", page.Name, page.ID))
		}
		if pageIDs[page.ID] {
			problems = append(problems, fmt.Sprintf("duplicate page_id %d", page.ID))
		}
		pageIDs[page.ID] = true

		for _, field := range page.Fields {
			id := strings.TrimSpace(field.ID)
			if id == "" {
				problems = append(problems, fmt.Sprintf("page %d has a field without field_id", page.ID))
				continue
			}
			if fieldIDs[id] {
				problems = append(problems, fmt.Sprintf("duplicate field_id %q", id))
			}
			fieldIDs[id] = true

			switch field.Type {
			case "", TypeText, TypeInteger, TypeFloat, TypeDate, TypeTime:
			case TypeChoice:
				if len(field.Choices) == 0 {
					problems = append(problems, fmt.Sprintf("choice field %q declares no choices", id))
				}
			default:
				problems = append(problems, fmt.Sprintf("field %q has unknown type %q", id, field.Type))
			}
		}
	}

	for _, page := range def.Pages {
		for _, field := range page.Fields {
			for i, dep := range field.Dependencies {
				ref := fmt.Sprintf("field %q dependency %d", field.ID, i)
				if !fieldIDs[dep.FieldID] {
					problems = append(problems, fmt.Sprintf("%s references unknown field %q", ref, dep.FieldID))
				}
				switch dep.Condition {
				case CondEquals, CondNotEquals, CondNotEmpty:
				case CondIn:
					if _, ok := dep.Value.([]any); !ok {
						problems = append(problems, fmt.Sprintf("%s uses 'in' without a list value", ref))
					}
				default:
					problems = append(problems, fmt.Sprintf("%s has unknown condition %q", ref, dep.Condition))
				}
				switch dep.Action {
				case ActionShow, ActionHide, ActionRequire, ActionShowAndRequire:
				default:
					problems = append(problems, fmt.Sprintf("%s has unknown action %q", ref, dep.Action))
				}
			}
			if field.CnoFlagFor != "" && !fieldIDs[field.CnoFlagFor] {
				problems = append(problems, fmt.Sprintf("field %q is a cno flag for unknown field %q", field.ID, field.CnoFlagFor))
			}
		}
	}

	for _, id := range def.CompletionRules.RequiredFields {
		if !fieldIDs[id] {
			problems = append(problems, fmt.Sprintf("required field %q is not declared on any page", id))
		}
	}
	return problems
}

func (d *Definition) index() {
	d.fields = make(map[string]*Field)
	d.pages = make(map[int]*Page, len(d.Pages))
	d.fieldIDs = d.fieldIDs[:0]
	for pi := range d.Pages {
		page := &d.Pages[pi]
		d.pages[page.ID] = page
		for fi := range page.Fields {
			field := &page.Fields[fi]
			field.ID = strings.TrimSpace(field.ID)
			if field.Type == "" {
				field.Type = TypeText
			}
			field.PageID = page.ID
			d.fields[field.ID] = field
			d.fieldIDs = append(d.fieldIDs, field.ID)
		}
	}
}
