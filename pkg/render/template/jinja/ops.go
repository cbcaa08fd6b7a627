package jinja

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
)

var errDivisionByZero = errors.New("division by zero")

// binaryOp evaluates the eager binary operators. Arithmetic follows Python:
// `/` always yields a float, `//` and `%` floor towards negative infinity.
func binaryOp(op string, a, b any) (any, error) {
	for _, v := range []any{a, b} {
		if u, ok := v.(template.Undefined); ok {
			return nil, fmt.Errorf("%w: %s", template.ErrUndefined, u.Path)
		}
	}
	switch op {
	case "==":
		return template.Equal(a, b), nil
	case "!=":
		return !template.Equal(a, b), nil
	case "<", "<=", ">", ">=":
		c, err := template.Compare(a, b)
		if err != nil {
			return nil, err
		}
		switch op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		}
		return c >= 0, nil
	case "in":
		return template.Contains(b, a)
	case "notin":
		ok, err := template.Contains(b, a)
		return !ok, err
	case "~":
		return template.Format(a) + template.Format(b), nil
	case "+":
		if x, ok := a.(string); ok {
			if y, ok := b.(string); ok {
				return x + y, nil
			}
		}
		if x, ok := a.([]any); ok {
			if y, ok := b.([]any); ok {
				return append(append([]any{}, x...), y...), nil
			}
		}
	case "*":
		if out, ok := repeat(a, b); ok {
			return out, nil
		}
		if out, ok := repeat(b, a); ok {
			return out, nil
		}
	}
	return arithmetic(op, a, b)
}

func repeat(seq, count any) (any, bool) {
	n, ok := count.(int64)
	if !ok {
		return nil, false
	}
	n = max(n, 0)
	switch typed := seq.(type) {
	case string:
		return strings.Repeat(typed, int(n)), true
	case []any:
		out := make([]any, 0, len(typed)*int(n))
		for i := int64(0); i < n; i++ {
			out = append(out, typed...)
		}
		return out, true
	}
	return nil, false
}

func integer(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func arithmetic(op string, a, b any) (any, error) {
	if !template.IsNumber(a) || !template.IsNumber(b) {
		return nil, fmt.Errorf("unsupported operand types for %s: %s and %s", op, document.TypeName(a), document.TypeName(b))
	}
	x, xInt := integer(a)
	y, yInt := integer(b)
	if xInt && yInt {
		switch op {
		case "+":
			return x + y, nil
		case "-":
			return x - y, nil
		case "*":
			return x * y, nil
		case "//":
			if y == 0 {
				return nil, errDivisionByZero
			}
			q := x / y
			if (x%y != 0) && ((x < 0) != (y < 0)) {
				q--
			}
			return q, nil
		case "%":
			if y == 0 {
				return nil, errDivisionByZero
			}
			m := x % y
			if m != 0 && ((m < 0) != (y < 0)) {
				m += y
			}
			return m, nil
		case "**":
			if y >= 0 {
				out := int64(1)
				for i := int64(0); i < y; i++ {
					out *= x
				}
				return out, nil
			}
		}
	}

	f, _ := document.AsFloat(a)
	g, _ := document.AsFloat(b)
	switch op {
	case "+":
		return f + g, nil
	case "-":
		return f - g, nil
	case "*":
		return f * g, nil
	case "/":
		if g == 0 {
			return nil, errDivisionByZero
		}
		return f / g, nil
	case "//":
		if g == 0 {
			return nil, errDivisionByZero
		}
		return math.Floor(f / g), nil
	case "%":
		if g == 0 {
			return nil, errDivisionByZero
		}
		return f - g*math.Floor(f/g), nil
	case "**":
		return math.Pow(f, g), nil
	}
	return nil, fmt.Errorf("%w: operator %q", template.ErrUnsupported, op)
}
