package jinja

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/goliatone/go-urlform/pkg/render/template"
)

// parseModule parses a template source into a module.
func parseModule(name, src string) (*module, error) {
	segs, err := scan(src)
	if err != nil {
		return nil, wrapSyntax(name, err)
	}
	p := &parser{name: name, segs: segs, deps: map[string]bool{}}
	body, end, _, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if end != "" {
		return nil, p.errorf(p.line(), "unexpected %q", end)
	}

	mod := &module{name: name, body: body, macros: map[string]*macroStmt{}}
	for _, s := range body {
		if m, ok := s.(*macroStmt); ok {
			mod.macros[m.name] = m
		}
	}
	mod.deps = p.depOrder
	mod.imports = p.imports
	return mod, nil
}

func wrapSyntax(name string, err error) error {
	if se, ok := err.(*syntaxError); ok {
		return &template.TemplateError{Template: name, Line: se.line, Err: fmt.Errorf("syntax error: %s", se.msg)}
	}
	return &template.TemplateError{Template: name, Err: err}
}

type parser struct {
	name     string
	segs     []segment
	pos      int
	deps     map[string]bool
	depOrder []string
	imports  []string
}

func (p *parser) line() int {
	if p.pos > 0 && p.pos <= len(p.segs) {
		return p.segs[p.pos-1].line
	}
	return 0
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return &template.TemplateError{Template: p.name, Line: line, Err: fmt.Errorf("syntax error: "+format, args...)}
}

func (p *parser) wrap(line int, err error) error {
	return &template.TemplateError{Template: p.name, Line: line, Err: err}
}

func (p *parser) addDep(name string) {
	if !p.deps[name] {
		p.deps[name] = true
		p.depOrder = append(p.depOrder, name)
	}
}

func (p *parser) addImport(name string) {
	p.addDep(name)
	if !slices.Contains(p.imports, name) {
		p.imports = append(p.imports, name)
	}
}

// parseBody collects statements until one of ends (or the end of input when
// ends is empty). It returns the terminating keyword and the remaining tokens
// of that tag.
func (p *parser) parseBody(ends ...string) ([]stmt, string, *exprParser, error) {
	var body []stmt
	for p.pos < len(p.segs) {
		seg := p.segs[p.pos]
		p.pos++

		switch seg.kind {
		case segText:
			body = append(body, &textStmt{text: seg.text})
		case segRaw:
			body = append(body, &textStmt{text: seg.text, raw: true})
		case segOutput:
			ep, err := newExprParser(seg.text)
			if err != nil {
				return nil, "", nil, p.wrap(seg.line, err)
			}
			x, err := ep.parseExpr()
			if err == nil {
				err = ep.expectEnd()
			}
			if err != nil {
				return nil, "", nil, p.wrap(seg.line, err)
			}
			body = append(body, &outputStmt{x: x, line: seg.line})
		case segTag:
			ep, err := newExprParser(seg.text)
			if err != nil {
				return nil, "", nil, p.wrap(seg.line, err)
			}
			keyword, err := ep.expectName()
			if err != nil {
				return nil, "", nil, p.wrap(seg.line, err)
			}
			for _, end := range ends {
				if keyword == end {
					return body, keyword, ep, nil
				}
			}
			s, err := p.parseTag(keyword, ep, seg.line)
			if err != nil {
				return nil, "", nil, err
			}
			body = append(body, s)
		}
	}
	if len(ends) > 0 {
		return nil, "", nil, p.errorf(p.line(), "missing {%% %s %%}", ends[len(ends)-1])
	}
	return body, "", nil, nil
}

func (p *parser) parseTag(keyword string, ep *exprParser, line int) (stmt, error) {
	fail := func(err error) (stmt, error) {
		if _, ok := err.(*template.TemplateError); ok {
			return nil, err
		}
		return nil, p.wrap(line, err)
	}

	switch keyword {
	case "if":
		return p.parseIf(ep, line)
	case "for":
		return p.parseFor(ep, line)
	case "set":
		name, err := ep.expectName()
		if err != nil {
			return fail(err)
		}
		if ep.peekOp(",") {
			return fail(fmt.Errorf("%w: multiple assignment targets", template.ErrUnsupported))
		}
		if ep.acceptOp("=") {
			value, err := ep.parseExpr()
			if err == nil {
				err = ep.expectEnd()
			}
			if err != nil {
				return fail(err)
			}
			return &setStmt{name: name, value: value}, nil
		}
		if err := ep.expectEnd(); err != nil {
			return fail(err)
		}
		body, _, _, err := p.parseBody("endset")
		if err != nil {
			return nil, err
		}
		return &setStmt{name: name, body: body, block: true}, nil
	case "macro":
		return p.parseMacro(ep, line)
	case "import":
		tpl, err := ep.expectString()
		if err != nil {
			return fail(err)
		}
		if err := ep.expectKeyword("as"); err != nil {
			return fail(err)
		}
		alias, err := ep.expectName()
		if err != nil {
			return fail(err)
		}
		if err := ep.skipContext(); err != nil {
			return fail(err)
		}
		p.addImport(tpl)
		return &importStmt{template: tpl, alias: alias}, nil
	case "from":
		tpl, err := ep.expectString()
		if err != nil {
			return fail(err)
		}
		if err := ep.expectKeyword("import"); err != nil {
			return fail(err)
		}
		var names []importName
		for {
			name, err := ep.expectName()
			if err != nil {
				return fail(err)
			}
			in := importName{name: name, alias: name}
			if ep.acceptKeyword("as") {
				if in.alias, err = ep.expectName(); err != nil {
					return fail(err)
				}
			}
			names = append(names, in)
			if !ep.acceptOp(",") {
				break
			}
		}
		if err := ep.skipContext(); err != nil {
			return fail(err)
		}
		p.addImport(tpl)
		return &fromStmt{template: tpl, names: names}, nil
	case "include":
		tpl, err := ep.expectString()
		if err != nil {
			return fail(err)
		}
		s := &includeStmt{template: tpl}
		if ep.acceptKeyword("ignore") {
			if err := ep.expectKeyword("missing"); err != nil {
				return fail(err)
			}
			s.ignoreMissing = true
		}
		if err := ep.skipContext(); err != nil {
			return fail(err)
		}
		if !s.ignoreMissing {
			p.addDep(tpl)
		}
		return s, nil
	case "with":
		s := &withStmt{}
		for !ep.atEnd() {
			name, err := ep.expectName()
			if err != nil {
				return fail(err)
			}
			if !ep.acceptOp("=") {
				return fail(fmt.Errorf("expected '=' after %q", name))
			}
			value, err := ep.parseExpr()
			if err != nil {
				return fail(err)
			}
			s.names = append(s.names, name)
			s.values = append(s.values, value)
			ep.acceptOp(",")
		}
		body, _, _, err := p.parseBody("endwith")
		if err != nil {
			return nil, err
		}
		s.body = body
		return s, nil
	case "filter":
		name, err := ep.expectName()
		if err != nil {
			return fail(err)
		}
		f := filterExpr{name: name}
		if ep.acceptOp("(") {
			if f.args, f.kwargs, err = ep.parseArgs(); err != nil {
				return fail(err)
			}
		}
		if err := ep.expectEnd(); err != nil {
			return fail(err)
		}
		body, _, _, err := p.parseBody("endfilter")
		if err != nil {
			return nil, err
		}
		return &filterBlockStmt{filter: f, body: body}, nil
	case "extends", "block", "call", "do", "autoescape":
		return fail(fmt.Errorf("%w: {%% %s %%}", template.ErrUnsupported, keyword))
	}
	return nil, p.errorf(line, "unexpected tag %q", keyword)
}

func (p *parser) parseIf(ep *exprParser, line int) (stmt, error) {
	cond, err := ep.parseExpr()
	if err == nil {
		err = ep.expectEnd()
	}
	if err != nil {
		return nil, p.wrap(line, err)
	}
	s := &ifStmt{}
	for {
		body, end, rest, err := p.parseBody("elif", "else", "endif")
		if err != nil {
			return nil, err
		}
		s.branches = append(s.branches, ifBranch{cond: cond, body: body})
		switch end {
		case "elif":
			cond, err = rest.parseExpr()
			if err == nil {
				err = rest.expectEnd()
			}
			if err != nil {
				return nil, p.wrap(p.line(), err)
			}
			continue
		case "else":
			els, _, _, err := p.parseBody("endif")
			if err != nil {
				return nil, err
			}
			s.els = els
		}
		return s, nil
	}
}

func (p *parser) parseFor(ep *exprParser, line int) (stmt, error) {
	s := &forStmt{}
	for {
		name, err := ep.expectName()
		if err != nil {
			return nil, p.wrap(line, err)
		}
		s.targets = append(s.targets, name)
		if !ep.acceptOp(",") {
			break
		}
	}
	if err := ep.expectKeyword("in"); err != nil {
		return nil, p.wrap(line, err)
	}
	iter, err := ep.parseOr()
	if err != nil {
		return nil, p.wrap(line, err)
	}
	if ep.peekKeyword("if") || ep.peekKeyword("recursive") {
		return nil, p.wrap(line, fmt.Errorf("%w: loop filters and recursive loops", template.ErrUnsupported))
	}
	if err := ep.expectEnd(); err != nil {
		return nil, p.wrap(line, err)
	}
	s.iter = iter

	body, end, _, err := p.parseBody("else", "endfor")
	if err != nil {
		return nil, err
	}
	s.body = body
	if end == "else" {
		if s.els, _, _, err = p.parseBody("endfor"); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *parser) parseMacro(ep *exprParser, line int) (stmt, error) {
	name, err := ep.expectName()
	if err != nil {
		return nil, p.wrap(line, err)
	}
	s := &macroStmt{name: name}
	if !ep.acceptOp("(") {
		return nil, p.errorf(line, "expected '(' after macro name")
	}
	for !ep.acceptOp(")") {
		pname, err := ep.expectName()
		if err != nil {
			return nil, p.wrap(line, err)
		}
		prm := param{name: pname}
		if ep.acceptOp("=") {
			if prm.def, err = ep.parseExpr(); err != nil {
				return nil, p.wrap(line, err)
			}
		}
		s.params = append(s.params, prm)
		if ep.acceptOp(")") {
			break
		}
		if !ep.acceptOp(",") {
			return nil, p.errorf(line, "expected ',' or ')' in macro signature")
		}
	}
	if err := ep.expectEnd(); err != nil {
		return nil, p.wrap(line, err)
	}
	body, _, _, err := p.parseBody("endmacro")
	if err != nil {
		return nil, err
	}
	s.body = body
	return s, nil
}

// exprParser is a recursive descent parser over the tokens of one tag or
// output block.
type exprParser struct {
	toks []token
	pos  int
}

func newExprParser(src string) (*exprParser, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	return &exprParser{toks: toks}, nil
}

func (p *exprParser) peek() token {
	return p.toks[p.pos]
}

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) atEnd() bool {
	return p.peek().kind == tokEOF
}

func (p *exprParser) expectEnd() error {
	if !p.atEnd() {
		return fmt.Errorf("unexpected %s", p.peek())
	}
	return nil
}

func (p *exprParser) peekOp(op string) bool {
	t := p.peek()
	return t.kind == tokOp && t.val == op
}

func (p *exprParser) acceptOp(op string) bool {
	if p.peekOp(op) {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) peekKeyword(name string) bool {
	t := p.peek()
	return t.kind == tokName && t.val == name
}

func (p *exprParser) acceptKeyword(name string) bool {
	if p.peekKeyword(name) {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) expectKeyword(name string) error {
	if !p.acceptKeyword(name) {
		return fmt.Errorf("expected %q, got %s", name, p.peek())
	}
	return nil
}

func (p *exprParser) expectName() (string, error) {
	t := p.next()
	if t.kind != tokName {
		return "", fmt.Errorf("expected a name, got %s", t)
	}
	return t.val, nil
}

func (p *exprParser) expectString() (string, error) {
	t := p.next()
	if t.kind != tokString {
		return "", fmt.Errorf("expected a string literal, got %s", t)
	}
	return t.val, nil
}

// skipContext accepts the trailing `with context` / `without context` of
// import and include tags.
func (p *exprParser) skipContext() error {
	if p.acceptKeyword("with") || p.acceptKeyword("without") {
		if err := p.expectKeyword("context"); err != nil {
			return err
		}
	}
	return p.expectEnd()
}

func (p *exprParser) parseExpr() (expr, error) {
	x, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("if") {
		return x, nil
	}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	var els expr
	if p.acceptKeyword("else") {
		if els, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return &condExpr{then: x, cond: cond, els: els}, nil
}

func (p *exprParser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseNot() (expr, error) {
	if p.acceptKeyword("not") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{op: "not", x: x}, nil
	}
	return p.parseCompare()
}

var compareOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *exprParser) parseCompare() (expr, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch t := p.peek(); {
		case t.kind == tokOp && compareOps[t.val]:
			op = t.val
			p.pos++
		case p.peekKeyword("in"):
			op = "in"
			p.pos++
		case p.peekKeyword("not") && p.toks[p.pos+1].kind == tokName && p.toks[p.pos+1].val == "in":
			op = "notin"
			p.pos += 2
		default:
			return left, nil
		}
		right, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: op, left: left, right: right}
	}
}

func (p *exprParser) parseAdd() (expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for p.peekOp("+") || p.peekOp("-") {
		op := p.next().val
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseConcat() (expr, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("~") {
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "~", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseMul() (expr, error) {
	left, err := p.parsePow()
	if err != nil {
		return nil, err
	}
	for p.peekOp("*") || p.peekOp("/") || p.peekOp("//") || p.peekOp("%") {
		op := p.next().val
		right, err := p.parsePow()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parsePow() (expr, error) {
	left, err := p.parseUnary(true)
	if err != nil {
		return nil, err
	}
	for p.acceptOp("**") {
		right, err := p.parseUnary(true)
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "**", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary(withFilters bool) (expr, error) {
	var x expr
	var err error
	switch {
	case p.acceptOp("-"):
		var operand expr
		if operand, err = p.parseUnary(false); err != nil {
			return nil, err
		}
		x = &unaryExpr{op: "-", x: operand}
	case p.acceptOp("+"):
		if x, err = p.parseUnary(false); err != nil {
			return nil, err
		}
	default:
		if x, err = p.parsePrimary(); err != nil {
			return nil, err
		}
		if x, err = p.parsePostfix(x); err != nil {
			return nil, err
		}
	}
	if withFilters {
		return p.parseFilters(x)
	}
	return x, nil
}

func (p *exprParser) parsePrimary() (expr, error) {
	t := p.next()
	switch t.kind {
	case tokName:
		switch t.val {
		case "true", "True":
			return &litExpr{value: true}, nil
		case "false", "False":
			return &litExpr{value: false}, nil
		case "none", "None", "null":
			return &litExpr{value: nil}, nil
		}
		return &nameExpr{name: t.val}, nil
	case tokString:
		s := t.val
		for p.peek().kind == tokString {
			s += p.next().val
		}
		return &litExpr{value: s}, nil
	case tokInt:
		n, err := strconv.ParseInt(t.val, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(t.val, 64)
			if ferr != nil {
				return nil, fmt.Errorf("invalid number %s", t.val)
			}
			return &litExpr{value: f}, nil
		}
		return &litExpr{value: n}, nil
	case tokFloat:
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", t.val)
		}
		return &litExpr{value: f}, nil
	case tokOp:
		switch t.val {
		case "(":
			if p.acceptOp(")") {
				return &listExpr{}, nil
			}
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.peekOp(",") {
				items := []expr{x}
				for p.acceptOp(",") && !p.peekOp(")") {
					item, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					items = append(items, item)
				}
				x = &listExpr{items: items}
			}
			if !p.acceptOp(")") {
				return nil, fmt.Errorf("expected ')', got %s", p.peek())
			}
			return x, nil
		case "[":
			var items []expr
			for !p.acceptOp("]") {
				item, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				items = append(items, item)
				if !p.acceptOp(",") && !p.peekOp("]") {
					return nil, fmt.Errorf("expected ',' or ']', got %s", p.peek())
				}
			}
			return &listExpr{items: items}, nil
		case "{":
			d := &dictExpr{}
			for !p.acceptOp("}") {
				key, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if !p.acceptOp(":") {
					return nil, fmt.Errorf("expected ':' in dict literal, got %s", p.peek())
				}
				value, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				d.keys = append(d.keys, key)
				d.values = append(d.values, value)
				if !p.acceptOp(",") && !p.peekOp("}") {
					return nil, fmt.Errorf("expected ',' or '}', got %s", p.peek())
				}
			}
			return d, nil
		}
	}
	return nil, fmt.Errorf("unexpected %s", t)
}

func (p *exprParser) parsePostfix(x expr) (expr, error) {
	for {
		switch {
		case p.acceptOp("."):
			t := p.next()
			switch t.kind {
			case tokName:
				x = &attrExpr{x: x, name: t.val}
			case tokInt:
				n, _ := strconv.ParseInt(t.val, 10, 64)
				x = &indexExpr{x: x, index: &litExpr{value: n}}
			default:
				return nil, fmt.Errorf("expected attribute name after '.', got %s", t)
			}
		case p.acceptOp("["):
			var lo, hi expr
			var err error
			if !p.peekOp(":") {
				if lo, err = p.parseExpr(); err != nil {
					return nil, err
				}
			}
			if p.acceptOp(":") {
				if !p.peekOp("]") {
					if hi, err = p.parseExpr(); err != nil {
						return nil, err
					}
				}
				if !p.acceptOp("]") {
					return nil, fmt.Errorf("expected ']', got %s", p.peek())
				}
				x = &sliceExpr{x: x, lo: lo, hi: hi}
				continue
			}
			if !p.acceptOp("]") {
				return nil, fmt.Errorf("expected ']', got %s", p.peek())
			}
			x = &indexExpr{x: x, index: lo}
		case p.acceptOp("("):
			args, kwargs, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			x = &callExpr{fn: x, args: args, kwargs: kwargs}
		default:
			return x, nil
		}
	}
}

func (p *exprParser) parseFilters(x expr) (expr, error) {
	for {
		switch {
		case p.acceptOp("|"):
			name, err := p.expectName()
			if err != nil {
				return nil, err
			}
			f := &filterExpr{x: x, name: name}
			if p.acceptOp("(") {
				if f.args, f.kwargs, err = p.parseArgs(); err != nil {
					return nil, err
				}
			}
			x = f
		case p.acceptKeyword("is"):
			t := &testExpr{x: x}
			if p.acceptKeyword("not") {
				t.negate = true
			}
			name, err := p.expectName()
			if err != nil {
				return nil, err
			}
			t.name = name
			switch {
			case p.acceptOp("("):
				args, kwargs, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				if len(kwargs) > 0 {
					return nil, fmt.Errorf("test %q does not accept keyword arguments", name)
				}
				t.args = args
			case p.startsOperand():
				arg, err := p.parseUnary(false)
				if err != nil {
					return nil, err
				}
				t.args = []expr{arg}
			}
			x = t
		default:
			return x, nil
		}
	}
}

// startsOperand reports whether the next token can begin a test argument
// written without parentheses, as in `x is divisibleby 3`.
func (p *exprParser) startsOperand() bool {
	t := p.peek()
	switch t.kind {
	case tokString, tokInt, tokFloat:
		return true
	case tokName:
		switch t.val {
		case "and", "or", "if", "else", "is", "in", "not":
			return false
		}
		return true
	case tokOp:
		return t.val == "[" || t.val == "{"
	}
	return false
}

func (p *exprParser) parseArgs() ([]expr, []kwarg, error) {
	var args []expr
	var kwargs []kwarg
	for !p.acceptOp(")") {
		if t := p.peek(); t.kind == tokName && p.toks[p.pos+1].kind == tokOp && p.toks[p.pos+1].val == "=" {
			p.pos += 2
			value, err := p.parseExpr()
			if err != nil {
				return nil, nil, err
			}
			kwargs = append(kwargs, kwarg{name: t.val, value: value})
		} else {
			if len(kwargs) > 0 {
				return nil, nil, fmt.Errorf("positional argument follows keyword argument")
			}
			value, err := p.parseExpr()
			if err != nil {
				return nil, nil, err
			}
			args = append(args, value)
		}
		if !p.acceptOp(",") && !p.peekOp(")") {
			return nil, nil, fmt.Errorf("expected ',' or ')', got %s", p.peek())
		}
	}
	return args, kwargs, nil
}
