package template

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-urlform/pkg/document"
)

type testFunc func(v any, args []any) (bool, error)

var tests = map[string]testFunc{
	"defined":   func(v any, _ []any) (bool, error) { return !IsUndefined(v), nil },
	"undefined": func(v any, _ []any) (bool, error) { return IsUndefined(v), nil },
	"none":      func(v any, _ []any) (bool, error) { return v == nil, nil },
	"boolean": func(v any, _ []any) (bool, error) {
		_, ok := v.(bool)
		return ok, nil
	},
	"true":  func(v any, _ []any) (bool, error) { return v == true, nil },
	"false": func(v any, _ []any) (bool, error) { return v == false, nil },
	"number": func(v any, _ []any) (bool, error) {
		return IsNumber(v), nil
	},
	"integer": func(v any, _ []any) (bool, error) {
		switch v.(type) {
		case int64, int:
			return true, nil
		}
		return false, nil
	},
	"float": func(v any, _ []any) (bool, error) {
		_, ok := v.(float64)
		return ok, nil
	},
	"string": func(v any, _ []any) (bool, error) {
		_, ok := v.(string)
		return ok, nil
	},
	"mapping": func(v any, _ []any) (bool, error) { return IsMapping(v), nil },
	"sequence": func(v any, _ []any) (bool, error) {
		switch v.(type) {
		case []any, string:
			return true, nil
		}
		return IsMapping(v), nil
	},
	"iterable": func(v any, _ []any) (bool, error) {
		switch v.(type) {
		case []any, string:
			return true, nil
		}
		return IsMapping(v), nil
	},
	"odd":         parityTest(1),
	"even":        parityTest(0),
	"divisibleby": divisibleBy,
	"eq":          equalTest,
	"equalto":     equalTest,
	"==":          equalTest,
	"ne": func(v any, args []any) (bool, error) {
		eq, err := equalTest(v, args)
		return !eq, err
	},
	"!=": func(v any, args []any) (bool, error) {
		eq, err := equalTest(v, args)
		return !eq, err
	},
	"lt":          compareTest(func(c int) bool { return c < 0 }),
	"lessthan":    compareTest(func(c int) bool { return c < 0 }),
	"<":           compareTest(func(c int) bool { return c < 0 }),
	"le":          compareTest(func(c int) bool { return c <= 0 }),
	"<=":          compareTest(func(c int) bool { return c <= 0 }),
	"gt":          compareTest(func(c int) bool { return c > 0 }),
	"greaterthan": compareTest(func(c int) bool { return c > 0 }),
	">":           compareTest(func(c int) bool { return c > 0 }),
	"ge":          compareTest(func(c int) bool { return c >= 0 }),
	">=":          compareTest(func(c int) bool { return c >= 0 }),
	"in": func(v any, args []any) (bool, error) {
		if len(args) != 1 {
			return false, fmt.Errorf("test 'in' expects one argument")
		}
		return Contains(args[0], v)
	},
	"sameas": func(v any, args []any) (bool, error) {
		if len(args) != 1 {
			return false, fmt.Errorf("test 'sameas' expects one argument")
		}
		other := args[0]
		if fmt.Sprintf("%T", v) != fmt.Sprintf("%T", other) {
			return false, nil
		}
		switch v.(type) {
		case nil, bool, string, int64, int, float64:
			return v == other, nil
		}
		return false, nil
	},
	"lower": func(v any, _ []any) (bool, error) {
		s, ok := v.(string)
		return ok && s == strings.ToLower(s), nil
	},
	"upper": func(v any, _ []any) (bool, error) {
		s, ok := v.(string)
		return ok && s == strings.ToUpper(s), nil
	},
}

// HasTest reports whether name is a known `is` test.
func HasTest(name string) bool {
	_, ok := tests[name]
	return ok
}

// RunTest evaluates the `is` test called name against v.
func RunTest(name string, v any, args []any) (bool, error) {
	fn, ok := tests[name]
	if !ok {
		return false, fmt.Errorf("unknown test %q", name)
	}
	if name != "defined" && name != "undefined" {
		if u, ok := v.(Undefined); ok {
			return false, fmt.Errorf("%w: %s", ErrUndefined, u.Path)
		}
	}
	return fn(v, args)
}

func parityTest(remainder int) testFunc {
	return func(v any, _ []any) (bool, error) {
		n, ok := ToInt(v)
		if !ok || !IsNumber(v) {
			return false, fmt.Errorf("parity test expects an integer, got %s", document.TypeName(v))
		}
		r := n % 2
		if r < 0 {
			r = -r
		}
		return r == remainder, nil
	}
}

func divisibleBy(v any, args []any) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("test 'divisibleby' expects one argument")
	}
	n, ok := ToInt(v)
	d, okD := ToInt(args[0])
	if !ok || !okD || !IsNumber(v) || !IsNumber(args[0]) {
		return false, fmt.Errorf("test 'divisibleby' expects integers")
	}
	if d == 0 {
		return false, fmt.Errorf("test 'divisibleby': division by zero")
	}
	return n%d == 0, nil
}

func equalTest(v any, args []any) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("equality test expects one argument")
	}
	return Equal(v, args[0]), nil
}

func compareTest(accept func(int) bool) testFunc {
	return func(v any, args []any) (bool, error) {
		if len(args) != 1 {
			return false, fmt.Errorf("comparison test expects one argument")
		}
		c, err := Compare(v, args[0])
		if err != nil {
			return false, err
		}
		return accept(c), nil
	}
}
