package document

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"
)

// Normalize converts v into the document value set. Go maps become objects
// with sorted keys, integer kinds become int64, byte slices become strings
// and text marshalers (dates and times) become their text form. Anything
// else is routed through encoding/json.
func Normalize(v any) (any, error) {
	switch typed := v.(type) {
	case nil, bool, string, int64, float64:
		return typed, nil
	case int:
		return int64(typed), nil
	case int32:
		return int64(typed), nil
	case float32:
		return float64(typed), nil
	case json.Number:
		return numberValue(typed)
	case []byte:
		return string(typed), nil
	case time.Time:
		return typed.Format(time.RFC3339Nano), nil
	case *Object:
		if typed == nil {
			return nil, nil
		}
		out := NewObject()
		for _, key := range typed.keys {
			value, err := Normalize(typed.values[key])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out.Set(key, value)
		}
		return out, nil
	case map[string]any:
		keys := sortedKeys(typed)
		out := NewObject()
		for _, key := range keys {
			value, err := Normalize(typed[key])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out.Set(key, value)
		}
		return out, nil
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			value, err := Normalize(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = value
		}
		return out, nil
	case encoding.TextMarshaler:
		text, err := typed.MarshalText()
		if err != nil {
			return nil, err
		}
		return string(text), nil
	}
	return normalizeReflect(reflect.ValueOf(v))
}

func normalizeReflect(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return float64(u), nil
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			value, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = value
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("document: unsupported map key type %s", rv.Type().Key())
		}
		plain := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			plain[iter.Key().String()] = iter.Value().Interface()
		}
		return Normalize(plain)
	case reflect.Struct:
		raw, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, fmt.Errorf("document: encode %s: %w", rv.Type(), err)
		}
		return decodeJSON(raw)
	}
	return nil, fmt.Errorf("document: unsupported value of type %s", rv.Type())
}

// Clone deep-copies a document value. Values outside the document set are
// returned unchanged.
func Clone(v any) any {
	switch typed := v.(type) {
	case *Object:
		if typed == nil {
			return typed
		}
		out := &Object{keys: append([]string(nil), typed.keys...), values: make(map[string]any, len(typed.values))}
		for key, value := range typed.values {
			out.values[key] = Clone(value)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = Clone(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[key] = Clone(value)
		}
		return out
	default:
		return v
	}
}

// Equal compares two document values ignoring object key order. Integers and
// floats holding the same number compare equal.
func Equal(a, b any) bool {
	switch left := a.(type) {
	case *Object:
		right, ok := b.(*Object)
		if !ok || left.Len() != right.Len() {
			return false
		}
		equal := true
		left.Range(func(key string, value any) bool {
			other, ok := right.Get(key)
			equal = ok && Equal(value, other)
			return equal
		})
		return equal
	case []any:
		right, ok := b.([]any)
		if !ok || len(left) != len(right) {
			return false
		}
		for i := range left {
			if !Equal(left[i], right[i]) {
				return false
			}
		}
		return true
	}
	if x, ok := AsFloat(a); ok {
		if y, ok := AsFloat(b); ok {
			return x == y
		}
		return false
	}
	if t := reflect.TypeOf(a); t != nil && !t.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// AsFloat reports the numeric value of an int64 or float64.
func AsFloat(v any) (float64, bool) {
	switch typed := v.(type) {
	case int64:
		return float64(typed), true
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	}
	return 0, false
}

// ToPlain converts objects into Go maps recursively, the shape expected by
// libraries that do not know about *Object.
func ToPlain(v any) any {
	switch typed := v.(type) {
	case *Object:
		if typed == nil {
			return nil
		}
		out := make(map[string]any, typed.Len())
		typed.Range(func(key string, value any) bool {
			out[key] = ToPlain(value)
			return true
		})
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = ToPlain(item)
		}
		return out
	default:
		return v
	}
}

// TypeName describes a value for error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int64, int, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case *Object:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func numberValue(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, err
	}
	return f, nil
}
