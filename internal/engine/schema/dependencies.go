package schema

import (
	"github.com/spf13/cast"
)

// EvaluateDependencies resolves a field's visibility and requiredness against
// a snapshot of current values. A key missing from values is an unset field.
//
// Rules apply in declaration order. show and hide overwrite visibility, so the
// last matching rule wins; require can only turn requiredness on;
// show_and_require sets both from the same condition. Unknown fields are
// visible and optional.
func (d *Definition) EvaluateDependencies(fieldID string, values map[string]string) (shouldShow, isRequired bool) {
	field, ok := d.fields[fieldID]
	if !ok {
		return true, false
	}

	shouldShow = true
	isRequired = field.Required
	for _, dep := range field.Dependencies {
		met := conditionMet(dep, values)
		switch dep.Action {
		case ActionShow:
			shouldShow = met
		case ActionHide:
			shouldShow = !met
		case ActionRequire:
			if met {
				isRequired = true
			}
		case ActionShowAndRequire:
			shouldShow = met
			isRequired = met
		}
	}
	return shouldShow, isRequired
}

func conditionMet(dep Dependency, values map[string]string) bool {
	actual, present := values[dep.FieldID]
	switch dep.Condition {
	case CondEquals:
		return equalsExpected(actual, present, dep.Value)
	case CondNotEquals:
		return !equalsExpected(actual, present, dep.Value)
	case CondIn:
		list, ok := dep.Value.([]any)
		if !ok || !present {
			return false
		}
		for _, item := range list {
			if equalsExpected(actual, true, item) {
				return true
			}
		}
		return false
	case CondNotEmpty:
		return present && actual != ""
	}
	return false
}

// equalsExpected compares by string form so YAML integers match stored text.
func equalsExpected(actual string, present bool, expected any) bool {
	if expected == nil {
		return !present
	}
	if !present {
		return false
	}
	switch expected.(type) {
	case []any, map[string]any:
		return false
	}
	want, err := cast.ToStringE(expected)
	if err != nil {
		return false
	}
	return actual == want
}
