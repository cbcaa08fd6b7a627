package jinja

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
)

const maxRange = 100000

func isBuiltin(name string) bool {
	switch name {
	case "range", "dict":
		return true
	}
	return false
}

func callBuiltin(name string, args []any, kwargs []*kwArg) (any, error) {
	switch name {
	case "range":
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("range() takes no keyword arguments")
		}
		return rangeOf(args)
	case "dict":
		if len(args) > 0 {
			return nil, fmt.Errorf("dict() takes keyword arguments only")
		}
		out := document.NewObject()
		for _, kw := range kwargs {
			out.Set(kw.name, kw.value)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown function %q", name)
}

func rangeOf(args []any) (any, error) {
	ints := make([]int64, len(args))
	for i, arg := range args {
		n, ok := integer(arg)
		if !ok {
			return nil, fmt.Errorf("range() expects integers, got %s", document.TypeName(arg))
		}
		ints[i] = n
	}
	var start, stop, step int64 = 0, 0, 1
	switch len(ints) {
	case 1:
		stop = ints[0]
	case 2:
		start, stop = ints[0], ints[1]
	case 3:
		start, stop, step = ints[0], ints[1], ints[2]
	default:
		return nil, fmt.Errorf("range() takes 1 to 3 arguments, got %d", len(args))
	}
	if step == 0 {
		return nil, fmt.Errorf("range() step must not be zero")
	}
	out := []any{}
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		if len(out) == maxRange {
			return nil, fmt.Errorf("range() exceeds %d items", maxRange)
		}
		out = append(out, i)
	}
	return out, nil
}

// callMethod implements the Python-style methods templates call on strings
// and mappings.
func callMethod(x any, name string, args []any, kwargs map[string]any) (any, error) {
	call := template.Args{Positional: args, Keyword: kwargs}
	switch typed := x.(type) {
	case template.Undefined:
		return nil, fmt.Errorf("%w: %s", template.ErrUndefined, typed.Path)
	case string:
		return stringMethod(typed, name, call)
	case *document.Object, map[string]any:
		return mappingMethod(x, name, call)
	case []any:
		return listMethod(typed, name, call)
	}
	return nil, fmt.Errorf("%s has no method %q", document.TypeName(x), name)
}

func stringMethod(s, name string, args template.Args) (any, error) {
	switch name {
	case "upper":
		return strings.ToUpper(s), nil
	case "lower":
		return strings.ToLower(s), nil
	case "strip", "lstrip", "rstrip":
		cutset, err := args.String(0, "chars", "")
		if err != nil {
			return nil, err
		}
		return strip(s, name, cutset), nil
	case "title":
		return titleCase(s), nil
	case "capitalize":
		if s == "" {
			return s, nil
		}
		runes := []rune(strings.ToLower(s))
		runes[0] = unicode.ToUpper(runes[0])
		return string(runes), nil
	case "startswith", "endswith":
		affix, err := args.String(0, "", "")
		if err != nil {
			return nil, err
		}
		if name == "startswith" {
			return strings.HasPrefix(s, affix), nil
		}
		return strings.HasSuffix(s, affix), nil
	case "split":
		sep, err := args.String(0, "sep", "")
		if err != nil {
			return nil, err
		}
		limit, err := args.Int(1, "maxsplit", -1)
		if err != nil {
			return nil, err
		}
		var parts []string
		switch {
		case sep == "":
			parts = strings.Fields(s)
		case limit >= 0:
			parts = strings.SplitN(s, sep, limit+1)
		default:
			parts = strings.Split(s, sep)
		}
		out := make([]any, len(parts))
		for i, part := range parts {
			out[i] = part
		}
		return out, nil
	case "replace":
		old, err := args.String(0, "old", "")
		if err != nil {
			return nil, err
		}
		repl, err := args.String(1, "new", "")
		if err != nil {
			return nil, err
		}
		count, err := args.Int(2, "count", -1)
		if err != nil {
			return nil, err
		}
		return strings.Replace(s, old, repl, count), nil
	case "join":
		items, ok := args.Arg(0, "iterable")
		if !ok {
			return nil, fmt.Errorf("join() needs an iterable")
		}
		list, err := template.Iterate(items)
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = template.Format(item)
		}
		return strings.Join(parts, s), nil
	case "find", "count":
		sub, err := args.String(0, "sub", "")
		if err != nil {
			return nil, err
		}
		if name == "count" {
			return int64(strings.Count(s, sub)), nil
		}
		idx := strings.Index(s, sub)
		if idx < 0 {
			return int64(-1), nil
		}
		return int64(len([]rune(s[:idx]))), nil
	}
	return nil, fmt.Errorf("string has no method %q", name)
}

func strip(s, method, cutset string) string {
	trim := func(r rune) bool {
		if cutset == "" {
			return unicode.IsSpace(r)
		}
		return strings.ContainsRune(cutset, r)
	}
	switch method {
	case "lstrip":
		return strings.TrimLeftFunc(s, trim)
	case "rstrip":
		return strings.TrimRightFunc(s, trim)
	}
	return strings.TrimFunc(s, trim)
}

func titleCase(s string) string {
	runes := []rune(s)
	start := true
	for i, r := range runes {
		if unicode.IsLetter(r) {
			if start {
				runes[i] = unicode.ToUpper(r)
			} else {
				runes[i] = unicode.ToLower(r)
			}
			start = false
			continue
		}
		start = !unicode.IsDigit(r)
	}
	return string(runes)
}

func mappingMethod(m any, name string, args template.Args) (any, error) {
	entries, _ := template.Entries(m)
	switch name {
	case "items":
		out := make([]any, len(entries))
		for i, entry := range entries {
			out[i] = []any{entry.Key, entry.Value}
		}
		return out, nil
	case "keys":
		out := make([]any, len(entries))
		for i, entry := range entries {
			out[i] = entry.Key
		}
		return out, nil
	case "values":
		out := make([]any, len(entries))
		for i, entry := range entries {
			out[i] = entry.Value
		}
		return out, nil
	case "get":
		key, ok := args.Arg(0, "key")
		if !ok {
			return nil, fmt.Errorf("get() needs a key")
		}
		if v, ok := template.GetAttr(m, key); ok {
			return v, nil
		}
		fallback, _ := args.Arg(1, "default")
		return fallback, nil
	}
	return nil, fmt.Errorf("mapping has no method %q", name)
}

func listMethod(list []any, name string, args template.Args) (any, error) {
	switch name {
	case "index", "count":
		item, ok := args.Arg(0, "")
		if !ok {
			return nil, fmt.Errorf("%s() needs an argument", name)
		}
		count := int64(0)
		for i, candidate := range list {
			if !template.Equal(candidate, item) {
				continue
			}
			if name == "index" {
				return int64(i), nil
			}
			count++
		}
		if name == "index" {
			return nil, fmt.Errorf("%s is not in list", template.Format(item))
		}
		return count, nil
	}
	return nil, fmt.Errorf("list has no method %q", name)
}
