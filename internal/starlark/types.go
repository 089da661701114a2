// Package starlark runs the exec bodies of SQL functions and hosts the
// builtins shared with loaded .star libraries.
package starlark

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// TargetInfo describes the database the rewritten SQL is meant for.
// Exposed as the "target" global.
type TargetInfo struct {
	Type     string // "sqlite", "postgres"
	Schema   string // Default schema
	Database string // Database name
}

// ToStarlark converts TargetInfo to a Starlark struct value.
func (t *TargetInfo) ToStarlark() starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("target"), starlark.StringDict{
		"type":     starlark.String(t.Type),
		"schema":   starlark.String(t.Schema),
		"database": starlark.String(t.Database),
	})
}

// GoToStarlark converts a Go value to a Starlark value. Strings, numbers,
// booleans, slices, arrays, maps with string keys and pointers to any of
// them are converted recursively; json.Number keeps its integer form when
// it has one, time.Time becomes an RFC 3339 string and []byte a string.
// Map entries are inserted in key order.
func GoToStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return val, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return starlark.MakeInt64(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", val, err)
		}
		return starlark.Float(f), nil
	case time.Time:
		return starlark.String(val.Format(time.RFC3339Nano)), nil
	case []byte:
		return starlark.String(val), nil
	}
	return reflectToStarlark(reflect.ValueOf(v))
}

func reflectToStarlark(rv reflect.Value) (starlark.Value, error) {
	switch rv.Kind() {
	case reflect.String:
		return starlark.String(rv.String()), nil
	case reflect.Bool:
		return starlark.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return starlark.MakeUint64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return starlark.Float(rv.Float()), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return starlark.None, nil
		}
		return GoToStarlark(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return starlark.NewList(nil), nil
		}
		items := make([]starlark.Value, rv.Len())
		for i := range items {
			item, err := GoToStarlark(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			items[i] = item
		}
		return starlark.NewList(items), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported type: %s (map keys must be strings)", rv.Type())
		}
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int { return strings.Compare(a.String(), b.String()) })
		dict := starlark.NewDict(len(keys))
		for _, k := range keys {
			item, err := GoToStarlark(rv.MapIndex(k).Interface())
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k.String(), err)
			}
			if err := dict.SetKey(starlark.String(k.String()), item); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}
	return nil, fmt.Errorf("unsupported type: %s", rv.Type())
}

// ToGo converts a Starlark value back to a Go value.
// Returns: string, int64, float64, bool, []any, map[string]any, or nil
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			// too large for int64
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *starlark.List:
		return sequenceToGo("list", val)

	case starlark.Tuple:
		return sequenceToGo("tuple", val)

	case *starlark.Dict:
		result := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	default:
		return val.String(), nil
	}
}

func sequenceToGo(kind string, seq starlark.Indexable) ([]any, error) {
	result := make([]any, seq.Len())
	for i := range result {
		gv, err := ToGo(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("%s index %d: %w", kind, i, err)
		}
		result[i] = gv
	}
	return result, nil
}

// ToSQL renders the value of an exec body as SQL text.
// Strings are returned verbatim, None becomes the empty string and
// booleans are lower case. Lists and dicts are rejected.
func ToSQL(v starlark.Value) (string, error) {
	switch val := v.(type) {
	case nil, starlark.NoneType:
		return "", nil
	case starlark.String:
		return string(val), nil
	case starlark.Bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case starlark.Int, starlark.Float:
		return val.String(), nil
	default:
		return "", fmt.Errorf("cannot render %s as SQL", v.Type())
	}
}
