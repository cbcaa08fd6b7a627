package filters

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
)

// defaultFilter replaces an undefined input, or with `boolean=true` any falsy
// input, by its first argument.
func defaultFilter(in any, args template.Args) (any, error) {
	fallback, _ := args.Arg(0, "default_value")
	if template.IsUndefined(in) {
		return fallback, nil
	}
	if args.Bool(1, "boolean", false) && !template.Truthy(in) {
		return fallback, nil
	}
	return in, nil
}

func length(in any, _ template.Args) (any, error) {
	n, ok := template.Length(in)
	if !ok {
		return nil, fmt.Errorf("length: value of type %s has no length", document.TypeName(in))
	}
	return int64(n), nil
}

func join(in any, args template.Args) (any, error) {
	sep, err := args.String(0, "d", "")
	if err != nil {
		return nil, err
	}
	attribute, err := args.String(1, "attribute", "")
	if err != nil {
		return nil, err
	}
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		if attribute != "" {
			item = attr(item, attribute)
		}
		parts[i] = template.Format(item)
	}
	return strings.Join(parts, sep), nil
}

func upper(in any, _ template.Args) (any, error) {
	return strings.ToUpper(template.Format(in)), nil
}

func lower(in any, _ template.Args) (any, error) {
	return strings.ToLower(template.Format(in)), nil
}

func capitalize(in any, _ template.Args) (any, error) {
	s := strings.ToLower(template.Format(in))
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s, nil
	}
	return string(unicode.ToUpper(r)) + s[size:], nil
}

func title(in any, _ template.Args) (any, error) {
	var b strings.Builder
	start := true
	for _, r := range template.Format(in) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if start {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			start = false
		default:
			b.WriteRune(r)
			start = true
		}
	}
	return b.String(), nil
}

func trim(in any, args template.Args) (any, error) {
	chars, err := args.String(0, "chars", "")
	if err != nil {
		return nil, err
	}
	if chars == "" {
		return strings.TrimSpace(template.Format(in)), nil
	}
	return strings.Trim(template.Format(in), chars), nil
}

func replace(in any, args template.Args) (any, error) {
	old, err := args.String(0, "old", "")
	if err != nil {
		return nil, err
	}
	replacement, err := args.String(1, "new", "")
	if err != nil {
		return nil, err
	}
	count, err := args.Int(2, "count", -1)
	if err != nil {
		return nil, err
	}
	return strings.Replace(template.Format(in), old, replacement, count), nil
}

func stringFilter(in any, _ template.Args) (any, error) {
	return template.Format(in), nil
}

func intFilter(in any, args template.Args) (any, error) {
	fallback, err := args.Int(0, "default", 0)
	if err != nil {
		return nil, err
	}
	switch typed := in.(type) {
	case int64:
		return typed, nil
	case int:
		return int64(typed), nil
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return int64(fallback), nil
		}
		return int64(typed), nil
	case bool:
		if typed {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		s := strings.TrimSpace(typed)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), nil
		}
	}
	return int64(fallback), nil
}

func floatFilter(in any, args template.Args) (any, error) {
	fallback := 0.0
	if v, ok := args.Arg(0, "default"); ok {
		if f, ok := document.AsFloat(v); ok {
			fallback = f
		}
	}
	switch typed := in.(type) {
	case bool:
		if typed {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64); err == nil {
			return f, nil
		}
		return fallback, nil
	}
	if f, ok := document.AsFloat(in); ok {
		return f, nil
	}
	return fallback, nil
}

func abs(in any, _ template.Args) (any, error) {
	switch typed := in.(type) {
	case int64:
		if typed < 0 {
			return -typed, nil
		}
		return typed, nil
	case int:
		if typed < 0 {
			return int64(-typed), nil
		}
		return int64(typed), nil
	case float64:
		return math.Abs(typed), nil
	}
	return nil, fmt.Errorf("abs: expected number, got %s", document.TypeName(in))
}

// round accepts `precision` and `method` (common, ceil or floor).
func round(in any, args template.Args) (any, error) {
	f, ok := document.AsFloat(in)
	if !ok {
		return nil, fmt.Errorf("round: expected number, got %s", document.TypeName(in))
	}
	precision, err := args.Int(0, "precision", 0)
	if err != nil {
		return nil, err
	}
	method, err := args.String(1, "method", "common")
	if err != nil {
		return nil, err
	}
	scale := math.Pow(10, float64(precision))
	switch method {
	case "common":
		return math.Round(f*scale) / scale, nil
	case "ceil":
		return math.Ceil(f*scale) / scale, nil
	case "floor":
		return math.Floor(f*scale) / scale, nil
	}
	return nil, fmt.Errorf("round: unknown method %q", method)
}

func escape(in any, _ template.Args) (any, error) {
	return html.EscapeString(template.Format(in)), nil
}

func safe(in any, _ template.Args) (any, error) {
	return in, nil
}

// indent prefixes every line but the first with width spaces. `first=true`
// indents the first line too and `blank=true` indents empty lines.
func indent(in any, args template.Args) (any, error) {
	width, err := args.Int(0, "width", 4)
	if err != nil {
		return nil, err
	}
	first := args.Bool(1, "first", false)
	blank := args.Bool(2, "blank", false)
	pad := strings.Repeat(" ", max(width, 0))

	lines := strings.Split(template.Format(in), "\n")
	for i, line := range lines {
		if i == 0 && !first {
			continue
		}
		if line == "" && !blank {
			continue
		}
		lines[i] = pad + line
	}
	return strings.Join(lines, "\n"), nil
}

func wordCount(in any, _ template.Args) (any, error) {
	return int64(len(strings.Fields(template.Format(in)))), nil
}

// truncate shortens text to `length` runes, cutting at a word boundary
// unless `killwords` is set, and appends `end`.
func truncate(in any, args template.Args) (any, error) {
	limit, err := args.Int(0, "length", 255)
	if err != nil {
		return nil, err
	}
	killwords := args.Bool(1, "killwords", false)
	end, err := args.String(2, "end", "...")
	if err != nil {
		return nil, err
	}

	runes := []rune(template.Format(in))
	if len(runes) <= limit {
		return string(runes), nil
	}
	cut := runes[:max(limit, 0)]
	if !killwords {
		if i := strings.LastIndexFunc(string(cut), unicode.IsSpace); i > 0 {
			return strings.TrimRightFunc(string(cut)[:i], unicode.IsSpace) + end, nil
		}
	}
	return string(cut) + end, nil
}
