package jinja

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-urlform/pkg/render/template"
)

// environment is what the translator needs from the engine.
type environment interface {
	module(name string) (*module, error)
	literal(v any) int
	hasFilter(name string) bool
}

// binding describes a name declared inside a template: target is the pongo2
// identifier holding its value.
type binding struct {
	target    string
	macro     *macroStmt
	namespace map[string]*binding
}

type translator struct {
	env    environment
	mod    *module
	name   string
	out    strings.Builder
	scopes []map[string]*binding
	nextID int
	line   int
}

// translate renders a parsed module as pongo2 source.
func translate(env environment, mod *module) (string, error) {
	t := &translator{env: env, mod: mod, name: mod.name, scopes: []map[string]*binding{{}}}
	for name, m := range mod.macros {
		t.declare(name, &binding{target: mod.macroName(name), macro: m})
	}
	if err := t.block(mod.body); err != nil {
		return "", err
	}
	return t.out.String(), nil
}

func (t *translator) fail(err error) error {
	if _, ok := err.(*template.TemplateError); ok {
		return err
	}
	return &template.TemplateError{Template: t.name, Line: t.line, Err: err}
}

func (t *translator) push() {
	t.scopes = append(t.scopes, map[string]*binding{})
}

func (t *translator) pop() {
	t.scopes = t.scopes[:len(t.scopes)-1]
}

func (t *translator) declare(name string, b *binding) {
	if b == nil {
		b = &binding{target: local(name)}
	}
	t.scopes[len(t.scopes)-1][name] = b
}

func (t *translator) lookup(name string) (*binding, bool) {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if b, ok := t.scopes[i][name]; ok {
			return b, true
		}
	}
	return nil, false
}

func (t *translator) id() int {
	t.nextID++
	return t.nextID
}

func local(name string) string {
	return "v_" + name
}

func (t *translator) lit(v any) string {
	return fmt.Sprintf("__lit(%d)", t.env.literal(v))
}

func (t *translator) block(body []stmt) error {
	for _, s := range body {
		if err := t.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (t *translator) stmt(s stmt) error {
	switch s := s.(type) {
	case *textStmt:
		t.text(s.text, s.raw)
	case *outputStmt:
		t.line = s.line
		return t.output(s.x)
	case *ifStmt:
		for i, branch := range s.branches {
			cond, err := t.cond(branch.cond)
			if err != nil {
				return t.fail(err)
			}
			if i == 0 {
				t.out.WriteString("{% if " + cond + " %}")
			} else {
				t.out.WriteString("{% elif " + cond + " %}")
			}
			if err := t.block(branch.body); err != nil {
				return err
			}
		}
		if s.els != nil {
			t.out.WriteString("{% else %}")
			if err := t.block(s.els); err != nil {
				return err
			}
		}
		t.out.WriteString("{% endif %}")
	case *forStmt:
		return t.forLoop(s)
	case *setStmt:
		return t.set(s)
	case *macroStmt:
		return t.macro(s)
	case *importStmt:
		mod, err := t.importMacros(s.template)
		if err != nil {
			return err
		}
		ns := map[string]*binding{}
		for name, m := range mod.macros {
			ns[name] = &binding{target: mod.macroName(name), macro: m}
		}
		t.declare(s.alias, &binding{target: local(s.alias), namespace: ns})
	case *fromStmt:
		mod, err := t.importMacros(s.template)
		if err != nil {
			return err
		}
		for _, in := range s.names {
			m, ok := mod.macros[in.name]
			if !ok {
				return t.fail(fmt.Errorf("template %q does not define macro %q", s.template, in.name))
			}
			t.declare(in.alias, &binding{target: mod.macroName(in.name), macro: m})
		}
	case *includeStmt:
		if err := checkTemplateName(s.template); err != nil {
			return t.fail(err)
		}
		if s.ignoreMissing {
			t.out.WriteString("{% include " + strconv.Quote(s.template) + " if_exists %}")
			return nil
		}
		if _, err := t.dependency(s.template); err != nil {
			return err
		}
		t.out.WriteString("{% include " + strconv.Quote(s.template) + " %}")
	case *withStmt:
		pairs := make([]string, len(s.names))
		for i, value := range s.values {
			code, err := t.expr(value)
			if err != nil {
				return t.fail(err)
			}
			pairs[i] = local(s.names[i]) + "=" + code
		}
		t.out.WriteString("{% with " + strings.Join(pairs, " ") + " %}")
		t.push()
		for _, name := range s.names {
			t.declare(name, nil)
		}
		if err := t.block(s.body); err != nil {
			return err
		}
		t.pop()
		t.out.WriteString("{% endwith %}")
	case *filterBlockStmt:
		capture, err := t.capture(s.body)
		if err != nil {
			return err
		}
		f := s.filter
		f.x = &capturedExpr{call: capture}
		code, err := t.expr(&f)
		if err != nil {
			return t.fail(err)
		}
		t.out.WriteString("{{ __out(" + code + ") }}")
	default:
		return t.fail(fmt.Errorf("%w: statement %T", template.ErrUnsupported, s))
	}
	return nil
}

// capturedExpr refers to the output of a capture macro.
type capturedExpr struct{ call string }

func (*capturedExpr) isExpr() {}

// capture wraps body in an anonymous macro whose call yields the rendered
// text; pongo2 has no block assignment of its own.
func (t *translator) capture(body []stmt) (string, error) {
	name := fmt.Sprintf("__cap%d", t.id())
	t.out.WriteString("{% macro " + name + "() %}")
	t.push()
	if err := t.block(body); err != nil {
		return "", err
	}
	t.pop()
	t.out.WriteString("{% endmacro %}")
	return name + "()", nil
}

func (t *translator) text(text string, raw bool) {
	if raw && strings.ContainsAny(text, "{}") {
		t.out.WriteString("{% verbatim %}" + text + "{% endverbatim %}")
		return
	}
	// A trailing brace would fuse with the delimiter of the next tag.
	if strings.HasSuffix(text, "{") {
		t.out.WriteString(text[:len(text)-1])
		t.out.WriteString("{{ __out(" + t.lit("{") + ") }}")
		return
	}
	t.out.WriteString(text)
}

func (t *translator) output(x expr) error {
	if c, ok := x.(*condExpr); ok {
		cond, err := t.cond(c.cond)
		if err != nil {
			return t.fail(err)
		}
		t.out.WriteString("{% if " + cond + " %}")
		if err := t.output(c.then); err != nil {
			return err
		}
		if c.els != nil {
			t.out.WriteString("{% else %}")
			if err := t.output(c.els); err != nil {
				return err
			}
		}
		t.out.WriteString("{% endif %}")
		return nil
	}
	code, err := t.expr(x)
	if err != nil {
		return t.fail(err)
	}
	t.out.WriteString("{{ __out(" + code + ") }}")
	return nil
}

func (t *translator) forLoop(s *forStmt) error {
	iter, err := t.expr(s.iter)
	if err != nil {
		return t.fail(err)
	}
	item := fmt.Sprintf("__it%d", t.id())
	t.out.WriteString(fmt.Sprintf("{%% for %s in __iter(%s, %d) %%}", item, iter, len(s.targets)))

	pairs := make([]string, 0, len(s.targets)+1)
	for i, target := range s.targets {
		pairs = append(pairs, fmt.Sprintf("%s=__item(%s, %d)", local(target), item, i))
	}
	pairs = append(pairs, fmt.Sprintf("%s=__loop(%s)", local("loop"), item))
	t.out.WriteString("{% with " + strings.Join(pairs, " ") + " %}")

	t.push()
	for _, target := range s.targets {
		t.declare(target, nil)
	}
	t.declare("loop", nil)
	if err := t.block(s.body); err != nil {
		return err
	}
	t.pop()
	t.out.WriteString("{% endwith %}")

	if s.els != nil {
		t.out.WriteString("{% empty %}")
		if err := t.block(s.els); err != nil {
			return err
		}
	}
	t.out.WriteString("{% endfor %}")
	return nil
}

func (t *translator) set(s *setStmt) error {
	target := local(s.name)
	switch {
	case s.block:
		call, err := t.capture(s.body)
		if err != nil {
			return err
		}
		t.out.WriteString("{% set " + target + " = " + call + " %}")
	case isCond(s.value):
		if err := t.setCond(target, s.value.(*condExpr)); err != nil {
			return err
		}
	default:
		code, err := t.expr(s.value)
		if err != nil {
			return t.fail(err)
		}
		t.out.WriteString("{% set " + target + " = " + code + " %}")
	}
	t.declare(s.name, nil)
	return nil
}

func isCond(x expr) bool {
	_, ok := x.(*condExpr)
	return ok
}

func (t *translator) setCond(target string, c *condExpr) error {
	cond, err := t.cond(c.cond)
	if err != nil {
		return t.fail(err)
	}
	t.out.WriteString("{% if " + cond + " %}")
	if err := t.setBranch(target, c.then); err != nil {
		return err
	}
	t.out.WriteString("{% else %}")
	if err := t.setBranch(target, c.els); err != nil {
		return err
	}
	t.out.WriteString("{% endif %}")
	return nil
}

func (t *translator) setBranch(target string, x expr) error {
	if c, ok := x.(*condExpr); ok {
		return t.setCond(target, c)
	}
	code := t.lit(nil)
	if x != nil {
		var err error
		if code, err = t.expr(x); err != nil {
			return t.fail(err)
		}
	}
	t.out.WriteString("{% set " + target + " = " + code + " %}")
	return nil
}

func (t *translator) macro(s *macroStmt) error {
	target := local(s.name)
	export := ""
	if len(t.scopes) == 1 && t.mod.macros[s.name] == s {
		target = t.mod.macroName(s.name)
		export = " export"
	}
	t.declare(s.name, &binding{target: target, macro: s})

	params := make([]string, len(s.params))
	for i, prm := range s.params {
		params[i] = local(prm.name)
		if prm.def != nil {
			code, err := t.expr(prm.def)
			if err != nil {
				return t.fail(err)
			}
			params[i] += "=" + code
		}
	}
	t.out.WriteString("{% macro " + target + "(" + strings.Join(params, ", ") + ")" + export + " %}")

	t.push()
	for _, prm := range s.params {
		t.declare(prm.name, nil)
	}
	if err := t.block(s.body); err != nil {
		return err
	}
	t.pop()
	t.out.WriteString("{% endmacro %}")
	return nil
}

// importMacros makes the macros of name, and of everything name imports in
// turn, callable from the current template.
func (t *translator) importMacros(name string) (*module, error) {
	var closure []*module
	seen := map[string]bool{}
	var visit func(string) error
	visit = func(n string) error {
		if seen[n] {
			return nil
		}
		seen[n] = true
		mod, err := t.dependency(n)
		if err != nil {
			return err
		}
		for _, dep := range mod.imports {
			if err := visit(dep); err != nil {
				return err
			}
		}
		closure = append(closure, mod)
		return nil
	}
	if err := visit(name); err != nil {
		return nil, err
	}

	for _, mod := range closure {
		if len(mod.macros) == 0 {
			continue
		}
		names := sortedMacros(mod)
		for i, n := range names {
			names[i] = mod.macroName(n)
		}
		t.out.WriteString("{% import " + strconv.Quote(mod.name) + " " + strings.Join(names, ", ") + " %}")
	}
	return closure[len(closure)-1], nil
}

func (t *translator) dependency(name string) (*module, error) {
	if err := checkTemplateName(name); err != nil {
		return nil, t.fail(err)
	}
	mod, err := t.env.module(name)
	if err != nil {
		return nil, t.fail(err)
	}
	return mod, nil
}

func checkTemplateName(name string) error {
	if name == "" || strings.ContainsAny(name, "\"\\\n") {
		return fmt.Errorf("invalid template name %q", name)
	}
	return nil
}

func sortedMacros(mod *module) []string {
	names := make([]string, 0, len(mod.macros))
	for name := range mod.macros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cond translates an expression used as a condition. Boolean operators stay
// in pongo2 so that their right operand is only evaluated when needed.
func (t *translator) cond(x expr) (string, error) {
	switch x := x.(type) {
	case *binaryExpr:
		if x.op == "and" || x.op == "or" {
			left, err := t.cond(x.left)
			if err != nil {
				return "", err
			}
			right, err := t.cond(x.right)
			if err != nil {
				return "", err
			}
			return "(" + left + " " + x.op + " " + right + ")", nil
		}
	case *unaryExpr:
		if x.op == "not" {
			inner, err := t.cond(x.x)
			if err != nil {
				return "", err
			}
			return "(not " + inner + ")", nil
		}
	}
	code, err := t.expr(x)
	if err != nil {
		return "", err
	}
	return "__t(" + code + ")", nil
}

func (t *translator) expr(x expr) (string, error) {
	switch x := x.(type) {
	case *litExpr:
		return t.lit(x.value), nil
	case *capturedExpr:
		return x.call, nil
	case *nameExpr:
		if b, ok := t.lookup(x.name); ok {
			if b.namespace != nil {
				return "", fmt.Errorf("%s is a macro namespace", x.name)
			}
			return b.target, nil
		}
		return "__v(" + strconv.Quote(x.name) + ")", nil
	case *attrExpr:
		if name, ok := x.x.(*nameExpr); ok {
			if b, ok := t.lookup(name.name); ok && b.namespace != nil {
				m, ok := b.namespace[x.name]
				if !ok {
					return "", fmt.Errorf("%s has no macro %q", name.name, x.name)
				}
				return m.target, nil
			}
		}
		base, err := t.expr(x.x)
		if err != nil {
			return "", err
		}
		return "__g(" + base + ", " + strconv.Quote(x.name) + ", " + t.lit(pathOf(x)) + ")", nil
	case *indexExpr:
		base, err := t.expr(x.x)
		if err != nil {
			return "", err
		}
		key, err := t.expr(x.index)
		if err != nil {
			return "", err
		}
		return "__g(" + base + ", " + key + ", " + t.lit(pathOf(x)) + ")", nil
	case *sliceExpr:
		args, err := t.exprs(x.x, x.lo, x.hi)
		if err != nil {
			return "", err
		}
		return "__slice(" + strings.Join(args, ", ") + ")", nil
	case *callExpr:
		return t.call(x)
	case *filterExpr:
		if !t.env.hasFilter(x.name) {
			return "", fmt.Errorf("%w %q", template.ErrUnknownFilter, x.name)
		}
		var input string
		var err error
		if x.name == "default" || x.name == "d" {
			input, err = t.soft(x.x)
		} else {
			input, err = t.expr(x.x)
		}
		if err != nil {
			return "", err
		}
		args, err := t.arguments(x.args, x.kwargs)
		if err != nil {
			return "", err
		}
		return "__f(" + strings.Join(append([]string{strconv.Quote(x.name), input}, args...), ", ") + ")", nil
	case *testExpr:
		if !template.HasTest(x.name) {
			return "", fmt.Errorf("unknown test %q", x.name)
		}
		var input string
		var err error
		if x.name == "defined" || x.name == "undefined" {
			input, err = t.soft(x.x)
		} else {
			input, err = t.expr(x.x)
		}
		if err != nil {
			return "", err
		}
		args, err := t.arguments(x.args, nil)
		if err != nil {
			return "", err
		}
		code := "__test(" + strings.Join(append([]string{strconv.Quote(x.name), input}, args...), ", ") + ")"
		if x.negate {
			code = "__not(" + code + ")"
		}
		return code, nil
	case *unaryExpr:
		inner, err := t.expr(x.x)
		if err != nil {
			return "", err
		}
		if x.op == "not" {
			return "__not(" + inner + ")", nil
		}
		return "__neg(" + inner + ")", nil
	case *binaryExpr:
		left, err := t.expr(x.left)
		if err != nil {
			return "", err
		}
		right, err := t.expr(x.right)
		if err != nil {
			return "", err
		}
		switch x.op {
		case "and":
			return "__and(" + left + ", " + right + ")", nil
		case "or":
			return "__or(" + left + ", " + right + ")", nil
		}
		return "__op(" + strconv.Quote(x.op) + ", " + left + ", " + right + ")", nil
	case *condExpr:
		args, err := t.exprs(x.cond, x.then, x.els)
		if err != nil {
			return "", err
		}
		return "__ifelse(" + strings.Join(args, ", ") + ")", nil
	case *listExpr:
		args, err := t.exprs(x.items...)
		if err != nil {
			return "", err
		}
		return "__list(" + strings.Join(args, ", ") + ")", nil
	case *dictExpr:
		args := make([]string, 0, 2*len(x.keys))
		for i := range x.keys {
			pair, err := t.exprs(x.keys[i], x.values[i])
			if err != nil {
				return "", err
			}
			args = append(args, pair...)
		}
		return "__dict(" + strings.Join(args, ", ") + ")", nil
	}
	return "", fmt.Errorf("%w: expression %T", template.ErrUnsupported, x)
}

// exprs translates a list of expressions; nil entries become none.
func (t *translator) exprs(xs ...expr) ([]string, error) {
	out := make([]string, len(xs))
	for i, x := range xs {
		if x == nil {
			out[i] = t.lit(nil)
			continue
		}
		code, err := t.expr(x)
		if err != nil {
			return nil, err
		}
		out[i] = code
	}
	return out, nil
}

func (t *translator) arguments(args []expr, kwargs []kwarg) ([]string, error) {
	out, err := t.exprs(args...)
	if err != nil {
		return nil, err
	}
	for _, kw := range kwargs {
		code, err := t.expr(kw.value)
		if err != nil {
			return nil, err
		}
		out = append(out, "__kw("+strconv.Quote(kw.name)+", "+code+")")
	}
	return out, nil
}

// soft translates the operand of `is defined` and `default`, where a missing
// variable or key yields an undefined marker instead of failing.
func (t *translator) soft(x expr) (string, error) {
	switch x := x.(type) {
	case *nameExpr:
		if _, ok := t.lookup(x.name); ok {
			return t.expr(x)
		}
		return "__vs(" + strconv.Quote(x.name) + ")", nil
	case *attrExpr:
		if name, ok := x.x.(*nameExpr); ok {
			if b, ok := t.lookup(name.name); ok && b.namespace != nil {
				return t.expr(x)
			}
		}
		base, err := t.soft(x.x)
		if err != nil {
			return "", err
		}
		return "__gs(" + base + ", " + strconv.Quote(x.name) + ", " + t.lit(pathOf(x)) + ")", nil
	case *indexExpr:
		base, err := t.soft(x.x)
		if err != nil {
			return "", err
		}
		key, err := t.expr(x.index)
		if err != nil {
			return "", err
		}
		return "__gs(" + base + ", " + key + ", " + t.lit(pathOf(x)) + ")", nil
	}
	return t.expr(x)
}

func (t *translator) call(x *callExpr) (string, error) {
	switch fn := x.fn.(type) {
	case *attrExpr:
		if name, ok := fn.x.(*nameExpr); ok {
			if b, ok := t.lookup(name.name); ok && b.namespace != nil {
				m, ok := b.namespace[fn.name]
				if !ok {
					return "", fmt.Errorf("%s has no macro %q", name.name, fn.name)
				}
				return t.macroCall(m.target, m.macro, x)
			}
		}
		base, err := t.expr(fn.x)
		if err != nil {
			return "", err
		}
		args, err := t.arguments(x.args, x.kwargs)
		if err != nil {
			return "", err
		}
		return "__m(" + strings.Join(append([]string{base, strconv.Quote(fn.name)}, args...), ", ") + ")", nil
	case *nameExpr:
		if b, ok := t.lookup(fn.name); ok {
			if b.macro != nil {
				return t.macroCall(b.target, b.macro, x)
			}
			return "", fmt.Errorf("%s is not callable", fn.name)
		}
		if !isBuiltin(fn.name) {
			return "", fmt.Errorf("unknown function %q", fn.name)
		}
		args, err := t.arguments(x.args, x.kwargs)
		if err != nil {
			return "", err
		}
		return "__fn(" + strings.Join(append([]string{strconv.Quote(fn.name)}, args...), ", ") + ")", nil
	}
	return "", fmt.Errorf("%w: calling %s", template.ErrUnsupported, pathOf(x.fn))
}

// macroCall maps keyword arguments onto the macro's positional parameters,
// filling skipped parameters with their defaults.
func (t *translator) macroCall(target string, m *macroStmt, x *callExpr) (string, error) {
	if len(x.args) > len(m.params) {
		return "", fmt.Errorf("macro %q takes %d arguments, got %d", m.name, len(m.params), len(x.args))
	}
	slots := make([]expr, len(m.params))
	filled := len(x.args)
	copy(slots, x.args)
	for _, kw := range x.kwargs {
		idx := -1
		for i, prm := range m.params {
			if prm.name == kw.name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return "", fmt.Errorf("macro %q has no parameter %q", m.name, kw.name)
		}
		if idx < len(x.args) {
			return "", fmt.Errorf("macro %q got multiple values for %q", m.name, kw.name)
		}
		slots[idx] = kw.value
		if idx+1 > filled {
			filled = idx + 1
		}
	}
	args := make([]string, filled)
	for i := 0; i < filled; i++ {
		value := slots[i]
		if value == nil {
			value = m.params[i].def
		}
		if value == nil {
			args[i] = t.lit(nil)
			continue
		}
		code, err := t.expr(value)
		if err != nil {
			return "", err
		}
		args[i] = code
	}
	return target + "(" + strings.Join(args, ", ") + ")", nil
}

// pathOf renders an expression for error messages, e.g. data.pixi["name"].
func pathOf(x expr) string {
	switch x := x.(type) {
	case *nameExpr:
		return x.name
	case *attrExpr:
		return pathOf(x.x) + "." + x.name
	case *indexExpr:
		if l, ok := x.index.(*litExpr); ok {
			if s, ok := l.value.(string); ok {
				return pathOf(x.x) + "[" + strconv.Quote(s) + "]"
			}
			return pathOf(x.x) + "[" + template.Format(l.value) + "]"
		}
		return pathOf(x.x) + "[...]"
	case *litExpr:
		return template.Format(x.value)
	case *callExpr:
		return pathOf(x.fn) + "(...)"
	case *filterExpr:
		return pathOf(x.x) + " | " + x.name
	}
	return "(...)"
}
