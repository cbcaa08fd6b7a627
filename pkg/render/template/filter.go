package template

import (
	"fmt"
	"sort"
)

// Args carries the arguments of a filter call: `value | name(a, b, key=c)`
// yields Positional [a, b] and Keyword {key: c}.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// Arg returns the positional argument at index or, failing that, the keyword
// argument called name.
func (a Args) Arg(index int, name string) (any, bool) {
	if index >= 0 && index < len(a.Positional) {
		return a.Positional[index], true
	}
	if name != "" {
		if v, ok := a.Keyword[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// String returns the argument as a string, or fallback when absent.
func (a Args) String(index int, name, fallback string) (string, error) {
	v, ok := a.Arg(index, name)
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %s: expected string, got %T", argName(index, name), v)
	}
	return s, nil
}

// Int returns the argument as an integer, or fallback when absent.
func (a Args) Int(index int, name string, fallback int) (int, error) {
	v, ok := a.Arg(index, name)
	if !ok || v == nil {
		return fallback, nil
	}
	n, ok := ToInt(v)
	if !ok {
		return 0, fmt.Errorf("argument %s: expected integer, got %T", argName(index, name), v)
	}
	return n, nil
}

// Bool returns the truthiness of the argument, or fallback when absent.
func (a Args) Bool(index int, name string, fallback bool) bool {
	v, ok := a.Arg(index, name)
	if !ok {
		return fallback
	}
	return Truthy(v)
}

func argName(index int, name string) string {
	if name != "" {
		return fmt.Sprintf("%d (%s)", index, name)
	}
	return fmt.Sprint(index)
}

// Filter transforms a value inside a template pipeline.
type Filter func(input any, args Args) (any, error)

// FilterTable is an immutable name to filter mapping handed to an engine at
// construction. The zero value is an empty table.
type FilterTable struct {
	filters map[string]Filter
}

// NewFilterTable copies filters into a new table. Nil filters are skipped.
func NewFilterTable(filters map[string]Filter) FilterTable {
	out := make(map[string]Filter, len(filters))
	for name, fn := range filters {
		if name == "" || fn == nil {
			continue
		}
		out[name] = fn
	}
	return FilterTable{filters: out}
}

// Lookup returns the filter registered under name.
func (t FilterTable) Lookup(name string) (Filter, bool) {
	fn, ok := t.filters[name]
	return fn, ok
}

func (t FilterTable) Has(name string) bool {
	_, ok := t.filters[name]
	return ok
}

func (t FilterTable) Len() int {
	return len(t.filters)
}

// Names lists the registered filter names in sorted order.
func (t FilterTable) Names() []string {
	names := make([]string, 0, len(t.filters))
	for name := range t.filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// With returns a copy of the table with fn registered under name.
func (t FilterTable) With(name string, fn Filter) FilterTable {
	out := make(map[string]Filter, len(t.filters)+1)
	for k, v := range t.filters {
		out[k] = v
	}
	if name != "" && fn != nil {
		out[name] = fn
	}
	return FilterTable{filters: out}
}
