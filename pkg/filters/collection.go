package filters

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
)

// attr resolves a dotted attribute path such as "meta.name". Missing
// attributes resolve to nil.
func attr(v any, path string) any {
	for _, part := range strings.Split(path, ".") {
		next, ok := template.GetAttr(v, part)
		if !ok {
			return nil
		}
		v = next
	}
	return v
}

func first(in any, _ template.Args) (any, error) {
	if s, ok := in.(string); ok {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 {
			return "", nil
		}
		return string(r), nil
	}
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("first: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func last(in any, _ template.Args) (any, error) {
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("last: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[len(items)-1], nil
}

func list(in any, _ template.Args) (any, error) {
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return items, nil
}

func reverse(in any, _ template.Args) (any, error) {
	if s, ok := in.(string); ok {
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes), nil
	}
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("reverse: %w", err)
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

// sortKey lowers strings unless the comparison is case sensitive.
func sortKey(v any, caseSensitive bool) any {
	if s, ok := v.(string); ok && !caseSensitive {
		return strings.ToLower(s)
	}
	return v
}

func sortValues(items []any, key func(any) any, descending bool) error {
	var cmpErr error
	sort.SliceStable(items, func(i, j int) bool {
		c, err := template.Compare(key(items[i]), key(items[j]))
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		if descending {
			return c > 0
		}
		return c < 0
	})
	return cmpErr
}

// sortFilter accepts `reverse`, `case_sensitive` and `attribute`.
func sortFilter(in any, args template.Args) (any, error) {
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}
	descending := args.Bool(0, "reverse", false)
	caseSensitive := args.Bool(1, "case_sensitive", false)
	attribute, err := args.String(2, "attribute", "")
	if err != nil {
		return nil, err
	}
	key := func(v any) any {
		if attribute != "" {
			v = attr(v, attribute)
		}
		return sortKey(v, caseSensitive)
	}
	if err := sortValues(items, key, descending); err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}
	return items, nil
}

func unique(in any, args template.Args) (any, error) {
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("unique: %w", err)
	}
	caseSensitive := args.Bool(0, "case_sensitive", false)
	attribute, err := args.String(1, "attribute", "")
	if err != nil {
		return nil, err
	}
	var seen []any
	out := make([]any, 0, len(items))
	for _, item := range items {
		key := item
		if attribute != "" {
			key = attr(item, attribute)
		}
		key = sortKey(key, caseSensitive)
		duplicate := false
		for _, s := range seen {
			if template.Equal(s, key) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		seen = append(seen, key)
		out = append(out, item)
	}
	return out, nil
}

// groupBy maps each distinct attribute value to the items carrying it, in
// order of first occurrence.
func groupBy(in any, args template.Args) (any, error) {
	attribute, err := args.String(0, "attribute", "")
	if err != nil {
		return nil, err
	}
	if attribute == "" {
		return nil, fmt.Errorf("groupby: missing attribute")
	}
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("groupby: %w", err)
	}
	out := document.NewObject()
	for _, item := range items {
		key := template.Format(attr(item, attribute))
		group, _ := out.Get(key)
		members, _ := group.([]any)
		out.Set(key, append(members, item))
	}
	return out, nil
}

func entryPairs(name string, in any) ([]any, error) {
	entries, ok := template.Entries(in)
	if !ok {
		return nil, fmt.Errorf("%s: expected mapping, got %s", name, document.TypeName(in))
	}
	out := make([]any, len(entries))
	for i, entry := range entries {
		out[i] = []any{entry.Key, entry.Value}
	}
	return out, nil
}

func items(in any, _ template.Args) (any, error) {
	return entryPairs("items", in)
}

// dictSort returns [key, value] pairs ordered by key, or by value with
// `by="value"`.
func dictSort(in any, args template.Args) (any, error) {
	pairs, err := entryPairs("dictsort", in)
	if err != nil {
		return nil, err
	}
	caseSensitive := args.Bool(0, "case_sensitive", false)
	by, err := args.String(1, "by", "key")
	if err != nil {
		return nil, err
	}
	descending := args.Bool(2, "reverse", false)

	pos := 0
	switch by {
	case "key":
	case "value":
		pos = 1
	default:
		return nil, fmt.Errorf("dictsort: by must be \"key\" or \"value\", got %q", by)
	}
	key := func(v any) any { return sortKey(v.([]any)[pos], caseSensitive) }
	if err := sortValues(pairs, key, descending); err != nil {
		return nil, fmt.Errorf("dictsort: %w", err)
	}
	return pairs, nil
}

// selectAttr keeps (or with keep=false rejects) items whose attribute passes
// a test, truthiness when no test is named.
func selectAttr(keep bool) template.Filter {
	name := "selectattr"
	if !keep {
		name = "rejectattr"
	}
	return func(in any, args template.Args) (any, error) {
		if len(args.Positional) == 0 {
			return nil, fmt.Errorf("%s: missing attribute", name)
		}
		attribute, ok := args.Positional[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s: attribute must be a string", name)
		}
		items, err := template.Iterate(in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		test := ""
		var testArgs []any
		if len(args.Positional) > 1 {
			if test, ok = args.Positional[1].(string); !ok {
				return nil, fmt.Errorf("%s: test name must be a string", name)
			}
			testArgs = args.Positional[2:]
		}

		out := make([]any, 0, len(items))
		for _, item := range items {
			value := attr(item, attribute)
			pass := template.Truthy(value)
			if test != "" {
				if pass, err = template.RunTest(test, value, testArgs); err != nil {
					return nil, fmt.Errorf("%s: %w", name, err)
				}
			}
			if pass == keep {
				out = append(out, item)
			}
		}
		return out, nil
	}
}

// mapFilter extracts `attribute` from each item or applies the filter named
// by the first argument, forwarding the remaining arguments.
func mapFilter(table template.FilterTable, in any, args template.Args) (any, error) {
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}
	if attribute, ok := args.Keyword["attribute"].(string); ok {
		fallback := args.Keyword["default"]
		out := make([]any, len(items))
		for i, item := range items {
			if out[i] = attr(item, attribute); out[i] == nil {
				out[i] = fallback
			}
		}
		return out, nil
	}
	if len(args.Positional) == 0 {
		return nil, fmt.Errorf("map: expected a filter name or attribute=")
	}
	filterName, ok := args.Positional[0].(string)
	if !ok {
		return nil, fmt.Errorf("map: filter name must be a string")
	}
	fn, ok := table.Lookup(filterName)
	if !ok {
		return nil, fmt.Errorf("map: %w: %s", template.ErrUnknownFilter, filterName)
	}
	rest := template.Args{Positional: args.Positional[1:], Keyword: args.Keyword}
	out := make([]any, len(items))
	for i, item := range items {
		if out[i], err = fn(item, rest); err != nil {
			return nil, fmt.Errorf("map: %w", err)
		}
	}
	return out, nil
}

func sum(in any, args template.Args) (any, error) {
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("sum: %w", err)
	}
	attribute, err := args.String(0, "attribute", "")
	if err != nil {
		return nil, err
	}
	start, _ := args.Arg(1, "start")
	if start == nil {
		start = int64(0)
	}

	var total int64
	var ftotal float64
	isFloat := false
	for i, item := range append([]any{start}, items...) {
		if attribute != "" && i > 0 {
			item = attr(item, attribute)
		}
		switch typed := item.(type) {
		case int64:
			total += typed
		case int:
			total += int64(typed)
		case float64:
			ftotal += typed
			isFloat = true
		default:
			return nil, fmt.Errorf("sum: expected numbers, got %s", document.TypeName(item))
		}
	}
	if isFloat {
		return ftotal + float64(total), nil
	}
	return total, nil
}

// extreme returns min (sign -1) or max (sign 1).
func extreme(sign int) template.Filter {
	name := "max"
	if sign < 0 {
		name = "min"
	}
	return func(in any, args template.Args) (any, error) {
		items, err := template.Iterate(in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		caseSensitive := args.Bool(0, "case_sensitive", false)
		attribute, err := args.String(1, "attribute", "")
		if err != nil {
			return nil, err
		}
		key := func(v any) any {
			if attribute != "" {
				v = attr(v, attribute)
			}
			return sortKey(v, caseSensitive)
		}

		var best any
		for i, item := range items {
			if i == 0 {
				best = item
				continue
			}
			c, err := template.Compare(key(item), key(best))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if c*sign > 0 {
				best = item
			}
		}
		return best, nil
	}
}

// batch splits a sequence into lists of size n, padding the last one with
// the fill argument when given.
func batch(in any, args template.Args) (any, error) {
	size, err := args.Int(0, "linecount", 0)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("batch: size must be positive")
	}
	fill, hasFill := args.Arg(1, "fill_with")
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	var out []any
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunk := append([]any(nil), items[start:end]...)
		for hasFill && len(chunk) < size {
			chunk = append(chunk, fill)
		}
		out = append(out, chunk)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}
