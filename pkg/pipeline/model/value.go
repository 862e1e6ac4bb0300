package model

import (
	"github.com/pkg/errors"
)

// Value is a dynamic field value. The closed set of concrete types is
// nil, bool, int64, float64, string, List and *Fields. Anything else is
// rejected by Normalize.
type Value = any

// List is an ordered sequence of values.
type List = []Value

// ErrValueKind is returned when a value falls outside the closed value domain.
var ErrValueKind = errors.New("unsupported value kind")

// Normalize coerces v into the closed value domain. Integer and float
// widths are widened to int64 and float64, []any and map-like inputs
// are normalized element-wise. It returns ErrValueKind for anything
// that cannot be represented.
func Normalize(v any) (Value, error) {
	switch tv := v.(type) {
	case nil, bool, int64, float64, string:
		return tv, nil
	case int:
		return int64(tv), nil
	case int32:
		return int64(tv), nil
	case uint:
		return int64(tv), nil
	case uint32:
		return int64(tv), nil
	case uint64:
		return int64(tv), nil
	case float32:
		return float64(tv), nil
	case List:
		out := make(List, len(tv))
		for i, elem := range tv {
			norm, err := Normalize(elem)
			if err != nil {
				return nil, err
			}
			out[i] = norm
		}
		return out, nil
	case *Fields:
		return tv, nil
	case map[string]any:
		// Map iteration order is unspecified, so sort for determinism.
		fields := NewFields()
		if err := fields.setSorted(tv); err != nil {
			return nil, err
		}
		return fields, nil
	default:
		return nil, errors.Wrapf(ErrValueKind, "%T", v)
	}
}

// MustNormalize is Normalize for values known to be in-domain. It
// panics on a violation and is meant for literals in tests and codecs.
func MustNormalize(v any) Value {
	norm, err := Normalize(v)
	if err != nil {
		panic(err)
	}
	return norm
}
