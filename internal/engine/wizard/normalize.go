package wizard

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"cprqa/internal/engine/schema"
)

// Normalize converts a raw value to the stored string form for the field.
// Nil, blank and the marker itself all become the marker in state
// normalized, so autofill never turns a gap into a zero.
func Normalize(field *schema.Field, value any, marker string) (string, FillState) {
	if value == nil {
		return marker, StateNormalized
	}
	text := strings.TrimSpace(cast.ToString(value))
	if text == "" || text == marker {
		return marker, StateNormalized
	}

	fieldType := schema.TypeText
	if field != nil {
		fieldType = field.Type
	}
	switch fieldType {
	case schema.TypeInteger:
		if f, err := cast.ToFloat64E(text); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return strconv.FormatInt(int64(math.Trunc(f)), 10), StateFilled
		}
	case schema.TypeFloat:
		if f, err := cast.ToFloat64E(text); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'f', field.DecimalPlaces(), 64), StateFilled
		}
	}
	return text, StateFilled
}
