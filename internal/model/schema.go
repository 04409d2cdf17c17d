package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FieldKind is the input type of a schema field.
type FieldKind string

const (
	KindText   FieldKind = "text"
	KindNumber FieldKind = "number"
	KindDate   FieldKind = "date"
)

// Field describes one caller-defined column of a tracked collection.  The
// order of fields in a Schema is the column order of the table, the form and
// the export.
type Field struct {
	Key      string    `json:"key" yaml:"key"`
	Label    string    `json:"label" yaml:"label"`
	Kind     FieldKind `json:"kind" yaml:"kind"`
	Required bool      `json:"required" yaml:"required"`
}

// IsNumeric reports whether values of the field are coerced to numbers.
func (f Field) IsNumeric() bool { return f.Kind == KindNumber }

// Schema is the ordered list of fields shared by every record of a collection.
type Schema []Field

// Field looks up a field by key.
func (s Schema) Field(key string) (Field, bool) {
	for _, f := range s {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Keys returns the field keys in schema order.
func (s Schema) Keys() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Key
	}
	return out
}

// TotalRule computes the "Total Stock" column of a collection: the sum of
// the Add fields minus the sum of the Subtract fields.  A rule with no
// fields means the collection has no computed total.
type TotalRule struct {
	Add      []string `json:"add,omitempty" yaml:"add"`
	Subtract []string `json:"subtract,omitempty" yaml:"subtract"`
}

// Enabled reports whether the rule produces a column at all.
func (t TotalRule) Enabled() bool { return len(t.Add)+len(t.Subtract) > 0 }

// Compute evaluates the rule against a record's field values.
func (t TotalRule) Compute(fields map[string]any) float64 {
	var total float64
	for _, k := range t.Add {
		total += CoerceNumber(fields[k])
	}
	for _, k := range t.Subtract {
		total -= CoerceNumber(fields[k])
	}
	return total
}

// CoerceNumber converts a stored or submitted value to a number.  Values that
// cannot be parsed become 0, and so do NaN and infinities.
func CoerceNumber(v any) float64 {
	n := coerce(v)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

func coerce(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case uint64:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// FormatNumber renders a number without a trailing ".0" for integral values.
func FormatNumber(n float64) string { return strconv.FormatFloat(n, 'f', -1, 64) }

// FormatValue renders a field value the way the table shows it.  Missing
// numeric values render as "0", missing text values as "".
func FormatValue(f Field, v any) string {
	if f.IsNumeric() {
		return FormatNumber(CoerceNumber(v))
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64:
		return FormatNumber(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}
