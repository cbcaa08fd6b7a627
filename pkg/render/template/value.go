package template

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goliatone/go-urlform/pkg/document"
)

// Undefined stands in for a missing value where the dialect tolerates one:
// the operand of `is defined` and the input of the `default` filter.
type Undefined struct {
	Path string
}

// IsUndefined reports whether v is an Undefined marker.
func IsUndefined(v any) bool {
	_, ok := v.(Undefined)
	return ok
}

// Attributer is implemented by runtime values exposing named attributes,
// such as loop state.
type Attributer interface {
	Attr(name string) (any, bool)
}

// Entry is one key/value pair of a mapping.
type Entry struct {
	Key   string
	Value any
}

// Truthy implements template truthiness: none, false, zero, and empty strings,
// sequences and mappings are false.
func Truthy(v any) bool {
	switch typed := v.(type) {
	case nil, Undefined:
		return false
	case bool:
		return typed
	case int64:
		return typed != 0
	case int:
		return typed != 0
	case float64:
		return typed != 0 && !math.IsNaN(typed)
	case string:
		return typed != ""
	case []any:
		return len(typed) > 0
	case *document.Object:
		return typed.Len() > 0
	case map[string]any:
		return len(typed) > 0
	}
	return true
}

// Format renders a value the way `{{ }}` prints it: none prints nothing,
// numbers print in their shortest form, sequences join their items with ","
// and mappings print as compact JSON.
func Format(v any) string {
	switch typed := v.(type) {
	case nil, Undefined:
		return ""
	case string:
		return typed
	case bool:
		if typed {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(typed, 10)
	case int:
		return strconv.Itoa(typed)
	case float64:
		return FormatFloat(typed)
	case []any:
		parts := make([]string, len(typed))
		for i, item := range typed {
			parts[i] = Format(item)
		}
		return strings.Join(parts, ",")
	case *document.Object, map[string]any:
		normalized, err := document.Normalize(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		out, err := document.EncodeJSON(normalized, document.JSONOptions{})
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(out)
	case fmt.Stringer:
		return typed.String()
	}
	return fmt.Sprint(v)
}

// FormatFloat prints a float in its shortest round-tripping form without an
// exponent below 1e21.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.Abs(f) >= 1e21:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToInt converts integral numbers to int.
func ToInt(v any) (int, bool) {
	switch typed := v.(type) {
	case int64:
		return int(typed), true
	case int:
		return typed, true
	case float64:
		if typed == math.Trunc(typed) && !math.IsInf(typed, 0) {
			return int(typed), true
		}
	}
	return 0, false
}

// IsNumber reports whether v is a template number. Booleans are not numbers.
func IsNumber(v any) bool {
	switch v.(type) {
	case int64, int, float64:
		return true
	}
	return false
}

// IsMapping reports whether v is a mapping value.
func IsMapping(v any) bool {
	switch v.(type) {
	case *document.Object, map[string]any:
		return true
	}
	return false
}

// Entries returns the pairs of a mapping in iteration order: insertion order
// for objects, sorted key order for Go maps.
func Entries(v any) ([]Entry, bool) {
	switch typed := v.(type) {
	case *document.Object:
		out := make([]Entry, 0, typed.Len())
		typed.Range(func(key string, value any) bool {
			out = append(out, Entry{Key: key, Value: value})
			return true
		})
		return out, true
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		out := make([]Entry, len(keys))
		for i, key := range keys {
			out[i] = Entry{Key: key, Value: typed[key]}
		}
		return out, true
	}
	return nil, false
}

// Iterate lists the items a for-loop visits: sequence items, mapping keys or
// string characters.
func Iterate(v any) ([]any, error) {
	switch typed := v.(type) {
	case []any:
		return append([]any(nil), typed...), nil
	case string:
		out := make([]any, 0, utf8.RuneCountInString(typed))
		for _, r := range typed {
			out = append(out, string(r))
		}
		return out, nil
	case Undefined:
		return nil, fmt.Errorf("%w: %s", ErrUndefined, typed.Path)
	}
	if entries, ok := Entries(v); ok {
		out := make([]any, len(entries))
		for i, entry := range entries {
			out[i] = entry.Key
		}
		return out, nil
	}
	return nil, fmt.Errorf("value of type %s is not iterable", document.TypeName(v))
}

// Length returns the length of strings, sequences and mappings.
func Length(v any) (int, bool) {
	switch typed := v.(type) {
	case string:
		return utf8.RuneCountInString(typed), true
	case []any:
		return len(typed), true
	case *document.Object:
		return typed.Len(), true
	case map[string]any:
		return len(typed), true
	}
	return 0, false
}

// GetAttr looks key up on v: mapping keys, sequence and string indexes
// (negative indexes count from the end) and Attributer names.
func GetAttr(v any, key any) (any, bool) {
	switch typed := v.(type) {
	case *document.Object:
		name, ok := key.(string)
		if !ok {
			return nil, false
		}
		return typed.Get(name)
	case map[string]any:
		name, ok := key.(string)
		if !ok {
			return nil, false
		}
		value, ok := typed[name]
		return value, ok
	case []any:
		i, ok := index(key, len(typed))
		if !ok {
			return nil, false
		}
		return typed[i], true
	case string:
		runes := []rune(typed)
		i, ok := index(key, len(runes))
		if !ok {
			return nil, false
		}
		return string(runes[i]), true
	case Attributer:
		name, ok := key.(string)
		if !ok {
			return nil, false
		}
		return typed.Attr(name)
	}
	return nil, false
}

func index(key any, length int) (int, bool) {
	if _, isBool := key.(bool); isBool {
		return 0, false
	}
	i, ok := ToInt(key)
	if !ok {
		return 0, false
	}
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, false
	}
	return i, true
}

// Equal compares two values ignoring mapping key order; integers and floats
// with the same value are equal.
func Equal(a, b any) bool {
	if IsUndefined(a) || IsUndefined(b) {
		return IsUndefined(a) && IsUndefined(b)
	}
	return document.Equal(plainMaps(a), plainMaps(b))
}

func plainMaps(v any) any {
	if m, ok := v.(map[string]any); ok {
		if normalized, err := document.Normalize(m); err == nil {
			return normalized
		}
	}
	return v
}

// Compare orders two numbers or two strings.
func Compare(a, b any) (int, error) {
	if IsNumber(a) && IsNumber(b) {
		if x, ok := a.(int64); ok {
			if y, ok := b.(int64); ok {
				switch {
				case x < y:
					return -1, nil
				case x > y:
					return 1, nil
				}
				return 0, nil
			}
		}
		x, _ := document.AsFloat(a)
		y, _ := document.AsFloat(b)
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			return boolRank(x) - boolRank(y), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %s with %s", document.TypeName(a), document.TypeName(b))
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Contains implements the `in` operator.
func Contains(container, item any) (bool, error) {
	switch typed := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("'in <string>' requires a string operand, got %s", document.TypeName(item))
		}
		return strings.Contains(typed, s), nil
	case []any:
		for _, candidate := range typed {
			if Equal(candidate, item) {
				return true, nil
			}
		}
		return false, nil
	case *document.Object:
		key, ok := item.(string)
		return ok && typed.Has(key), nil
	case map[string]any:
		key, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, found := typed[key]
		return found, nil
	}
	return false, fmt.Errorf("value of type %s does not support 'in'", document.TypeName(container))
}
