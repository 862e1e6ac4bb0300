package script

import (
	"github.com/pkg/errors"
	"go.starlark.net/starlark"

	"github.com/askiada/stelp/pkg/pipeline/model"
)

// toStarlark converts a pipeline value into its Starlark counterpart.
func toStarlark(v model.Value) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case model.List:
		elems := make([]starlark.Value, 0, len(val))
		for _, item := range val {
			conv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			elems = append(elems, conv)
		}
		return starlark.NewList(elems), nil
	case *model.Fields:
		dict := starlark.NewDict(val.Len())
		var convErr error
		val.Range(func(key string, value model.Value) bool {
			conv, err := toStarlark(value)
			if err != nil {
				convErr = err
				return false
			}
			convErr = dict.SetKey(starlark.String(key), conv)
			return convErr == nil
		})
		if convErr != nil {
			return nil, convErr
		}
		return dict, nil
	default:
		return nil, errors.Wrapf(model.ErrValueKind, "cannot expose %T to a script", v)
	}
}

// fromStarlark converts a Starlark value back into the pipeline value
// domain. Dictionary keys must be strings.
func fromStarlark(v starlark.Value) (model.Value, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, errors.Wrapf(model.ErrValueKind, "integer %s overflows int64", val.String())
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		out := make(model.List, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			conv, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		return out, nil
	case starlark.Tuple:
		out := make(model.List, 0, len(val))
		for _, item := range val {
			conv, err := fromStarlark(item)
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		return out, nil
	case *starlark.Dict:
		fields := model.NewFields()
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, errors.Wrapf(model.ErrValueKind, "dict key %s is not a string", item[0].String())
			}
			conv, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			fields.Set(string(key), conv)
		}
		return fields, nil
	default:
		return nil, errors.Wrapf(model.ErrValueKind, "cannot accept %s from a script", v.Type())
	}
}

// fieldsFromStarlark converts a script dictionary into a field
// mapping, rejecting any other type.
func fieldsFromStarlark(v starlark.Value) (*model.Fields, error) {
	conv, err := fromStarlark(v)
	if err != nil {
		return nil, err
	}
	fields, ok := conv.(*model.Fields)
	if !ok {
		return nil, errors.Wrapf(model.ErrValueKind, "expected a dict, got %s", v.Type())
	}
	return fields, nil
}
