package jinja

import (
	"errors"
	"fmt"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
)

// state is the per-render environment behind the helper functions a
// translated template calls. Only the first failure is kept; pongo2 stops at
// the first error anyway.
type state struct {
	engine   *Engine
	template string
	vars     map[string]any
	err      error
}

func newState(e *Engine, name string, vars map[string]any) *state {
	return &state{engine: e, template: name, vars: vars}
}

func (s *state) fail(path string, err error) error {
	var te *template.TemplateError
	if !errors.As(err, &te) {
		te = &template.TemplateError{Template: s.template, Path: path, Err: err}
	}
	if s.err == nil {
		s.err = te
	}
	return te
}

func (s *state) undefined(path string) error {
	return s.fail(path, template.ErrUndefined)
}

// context exposes the helpers to pongo2. Template data stays in the state so
// that context keys are never constrained by pongo2's identifier rules.
func (s *state) context() pongo2.Context {
	return pongo2.Context{
		"__v":      s.lookup,
		"__vs":     s.lookupSoft,
		"__g":      s.get,
		"__gs":     s.getSoft,
		"__lit":    s.literal,
		"__out":    s.output,
		"__t":      template.Truthy,
		"__not":    func(v any) bool { return !template.Truthy(v) },
		"__neg":    s.negate,
		"__and":    logicalAnd,
		"__or":     logicalOr,
		"__op":     s.operator,
		"__f":      s.filter,
		"__kw":     newKwArg,
		"__test":   s.test,
		"__m":      s.method,
		"__fn":     s.builtin,
		"__iter":   s.iterate,
		"__item":   s.item,
		"__loop":   loopOf,
		"__slice":  s.slice,
		"__list":   newList,
		"__dict":   s.dict,
		"__ifelse": ifElse,
	}
}

func (s *state) lookup(name string) (any, error) {
	v, ok := s.vars[name]
	if !ok {
		return nil, s.undefined(name)
	}
	return v, nil
}

func (s *state) lookupSoft(name string) any {
	v, ok := s.vars[name]
	if !ok {
		return template.Undefined{Path: name}
	}
	return v
}

func (s *state) get(x, key, path any) (any, error) {
	p, _ := path.(string)
	if u, ok := x.(template.Undefined); ok {
		return nil, s.undefined(u.Path)
	}
	v, ok := template.GetAttr(x, key)
	if !ok {
		return nil, s.undefined(p)
	}
	return v, nil
}

func (s *state) getSoft(x, key, path any) any {
	p, _ := path.(string)
	if template.IsUndefined(x) {
		return template.Undefined{Path: p}
	}
	v, ok := template.GetAttr(x, key)
	if !ok {
		return template.Undefined{Path: p}
	}
	return v
}

func (s *state) literal(id int) (any, error) {
	v, ok := s.engine.literalAt(id)
	if !ok {
		return nil, s.fail("", fmt.Errorf("unknown literal %d", id))
	}
	return v, nil
}

func (s *state) output(v any) *pongo2.Value {
	return pongo2.AsSafeValue(template.Format(v))
}

func (s *state) negate(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return -n, nil
	case int:
		return -int64(n), nil
	case float64:
		return -n, nil
	}
	return nil, s.fail("", fmt.Errorf("bad operand type for unary -: %s", document.TypeName(v)))
}

func logicalAnd(a, b any) any {
	if !template.Truthy(a) {
		return a
	}
	return b
}

func logicalOr(a, b any) any {
	if template.Truthy(a) {
		return a
	}
	return b
}

func ifElse(cond, then, els any) any {
	if template.Truthy(cond) {
		return then
	}
	return els
}

func (s *state) operator(op string, a, b any) (any, error) {
	v, err := binaryOp(op, a, b)
	if err != nil {
		return nil, s.fail("", err)
	}
	return v, nil
}

// kwArg marks a keyword argument among the positional ones of a helper call.
type kwArg struct {
	name  string
	value any
}

func newKwArg(name string, value any) *kwArg {
	return &kwArg{name: name, value: value}
}

func splitArgs(args []any) ([]any, []*kwArg) {
	var positional []any
	var keywords []*kwArg
	for _, arg := range args {
		if kw, ok := arg.(*kwArg); ok {
			keywords = append(keywords, kw)
			continue
		}
		positional = append(positional, arg)
	}
	return positional, keywords
}

func keywordMap(keywords []*kwArg) map[string]any {
	if len(keywords) == 0 {
		return nil
	}
	out := make(map[string]any, len(keywords))
	for _, kw := range keywords {
		out[kw.name] = kw.value
	}
	return out
}

func (s *state) filter(name string, input any, args ...any) (any, error) {
	fn, ok := s.engine.filters.Lookup(name)
	if !ok {
		return nil, s.fail("", fmt.Errorf("%w %q", template.ErrUnknownFilter, name))
	}
	positional, keywords := splitArgs(args)
	out, err := fn(input, template.Args{Positional: positional, Keyword: keywordMap(keywords)})
	if err != nil {
		return nil, s.fail("", fmt.Errorf("filter %q: %w", name, err))
	}
	return out, nil
}

func (s *state) test(name string, input any, args ...any) (bool, error) {
	ok, err := template.RunTest(name, input, args)
	if err != nil {
		return false, s.fail("", fmt.Errorf("test %q: %w", name, err))
	}
	return ok, nil
}

func (s *state) method(x any, name string, args ...any) (any, error) {
	positional, keywords := splitArgs(args)
	out, err := callMethod(x, name, positional, keywordMap(keywords))
	if err != nil {
		return nil, s.fail("", err)
	}
	return out, nil
}

func (s *state) builtin(name string, args ...any) (any, error) {
	positional, keywords := splitArgs(args)
	out, err := callBuiltin(name, positional, keywords)
	if err != nil {
		return nil, s.fail("", err)
	}
	return out, nil
}

// loopItem is one iteration of a for loop: the unpacked targets and the
// loop variable.
type loopItem struct {
	values []any
	loop   *loopState
}

type loopState struct {
	index  int
	length int
}

func (l *loopState) Attr(name string) (any, bool) {
	switch name {
	case "index":
		return int64(l.index + 1), true
	case "index0":
		return int64(l.index), true
	case "revindex":
		return int64(l.length - l.index), true
	case "revindex0":
		return int64(l.length - l.index - 1), true
	case "first":
		return l.index == 0, true
	case "last":
		return l.index == l.length-1, true
	case "length":
		return int64(l.length), true
	}
	return nil, false
}

func (s *state) iterate(x any, targets int) ([]any, error) {
	var items []any
	if targets > 1 && template.IsMapping(x) {
		entries, _ := template.Entries(x)
		items = make([]any, len(entries))
		for i, entry := range entries {
			items[i] = []any{entry.Key, entry.Value}
		}
	} else {
		var err error
		if items, err = template.Iterate(x); err != nil {
			return nil, s.fail("", err)
		}
	}

	out := make([]any, len(items))
	for i, item := range items {
		values := []any{item}
		if targets > 1 {
			seq, ok := item.([]any)
			if !ok || len(seq) != targets {
				return nil, s.fail("", fmt.Errorf("cannot unpack %s into %d loop variables", document.TypeName(item), targets))
			}
			values = seq
		}
		out[i] = &loopItem{values: values, loop: &loopState{index: i, length: len(items)}}
	}
	return out, nil
}

func (s *state) item(it any, i int) (any, error) {
	li, ok := it.(*loopItem)
	if !ok || i < 0 || i >= len(li.values) {
		return nil, s.fail("", errors.New("invalid loop item"))
	}
	return li.values[i], nil
}

func loopOf(it any) any {
	if li, ok := it.(*loopItem); ok {
		return li.loop
	}
	return nil
}

func (s *state) slice(x, lo, hi any) (any, error) {
	switch typed := x.(type) {
	case []any:
		start, end, err := bounds(lo, hi, len(typed))
		if err != nil {
			return nil, s.fail("", err)
		}
		return append([]any(nil), typed[start:end]...), nil
	case string:
		runes := []rune(typed)
		start, end, err := bounds(lo, hi, len(runes))
		if err != nil {
			return nil, s.fail("", err)
		}
		return string(runes[start:end]), nil
	}
	return nil, s.fail("", fmt.Errorf("cannot slice %s", document.TypeName(x)))
}

func bounds(lo, hi any, length int) (int, int, error) {
	start, err := bound(lo, 0, length)
	if err != nil {
		return 0, 0, err
	}
	end, err := bound(hi, length, length)
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		end = start
	}
	return start, end, nil
}

func bound(v any, fallback, length int) (int, error) {
	if v == nil {
		return fallback, nil
	}
	i, ok := template.ToInt(v)
	if !ok {
		return 0, fmt.Errorf("slice index must be an integer, got %s", document.TypeName(v))
	}
	if i < 0 {
		i += length
	}
	return min(max(i, 0), length), nil
}

func newList(items ...any) []any {
	return append([]any{}, items...)
}

func (s *state) dict(pairs ...any) (any, error) {
	if len(pairs)%2 != 0 {
		return nil, s.fail("", errors.New("dict literal needs key/value pairs"))
	}
	out := document.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			key = template.Format(pairs[i])
		}
		out.Set(key, pairs[i+1])
	}
	return out, nil
}
