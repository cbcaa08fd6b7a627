package jinja

import "fmt"

type expr interface{ isExpr() }

type (
	litExpr struct{ value any }
	nameExpr struct{ name string }
	attrExpr struct {
		x    expr
		name string
	}
	indexExpr struct{ x, index expr }
	sliceExpr struct{ x, lo, hi expr }
	callExpr  struct {
		fn     expr
		args   []expr
		kwargs []kwarg
	}
	filterExpr struct {
		x      expr
		name   string
		args   []expr
		kwargs []kwarg
	}
	testExpr struct {
		x      expr
		name   string
		args   []expr
		negate bool
	}
	unaryExpr struct {
		op string
		x  expr
	}
	binaryExpr struct {
		op          string
		left, right expr
	}
	condExpr struct{ then, cond, els expr }
	listExpr struct{ items []expr }
	dictExpr struct{ keys, values []expr }
)

type kwarg struct {
	name  string
	value expr
}

func (litExpr) isExpr()    {}
func (nameExpr) isExpr()   {}
func (attrExpr) isExpr()   {}
func (indexExpr) isExpr()  {}
func (sliceExpr) isExpr()  {}
func (callExpr) isExpr()   {}
func (filterExpr) isExpr() {}
func (testExpr) isExpr()   {}
func (unaryExpr) isExpr()  {}
func (binaryExpr) isExpr() {}
func (condExpr) isExpr()   {}
func (listExpr) isExpr()   {}
func (dictExpr) isExpr()   {}

type stmt interface{ isStmt() }

type (
	textStmt struct {
		text string
		raw  bool
	}
	outputStmt struct {
		x    expr
		line int
	}
	ifStmt struct {
		branches []ifBranch
		els      []stmt
	}
	forStmt struct {
		targets   []string
		iter      expr
		body, els []stmt
	}
	setStmt struct {
		name  string
		value expr
		body  []stmt
		block bool
	}
	macroStmt struct {
		name   string
		params []param
		body   []stmt
	}
	importStmt struct {
		template string
		alias    string
	}
	fromStmt struct {
		template string
		names    []importName
	}
	includeStmt struct {
		template      string
		ignoreMissing bool
	}
	withStmt struct {
		names  []string
		values []expr
		body   []stmt
	}
	filterBlockStmt struct {
		filter filterExpr
		body   []stmt
	}
)

type ifBranch struct {
	cond expr
	body []stmt
}

type param struct {
	name string
	def  expr
}

type importName struct {
	name, alias string
}

func (textStmt) isStmt()        {}
func (outputStmt) isStmt()      {}
func (ifStmt) isStmt()          {}
func (forStmt) isStmt()         {}
func (setStmt) isStmt()         {}
func (macroStmt) isStmt()       {}
func (importStmt) isStmt()      {}
func (fromStmt) isStmt()        {}
func (includeStmt) isStmt()     {}
func (withStmt) isStmt()        {}
func (filterBlockStmt) isStmt() {}

// module is a parsed template: its body, the macros it defines at top level
// and the templates it imports or includes. Top-level macros are compiled
// under names unique to the module so that a macro keeps reaching its
// siblings when it runs in an importing template.
type module struct {
	id      int
	name    string
	body    []stmt
	macros  map[string]*macroStmt
	deps    []string
	imports []string
}

func (m *module) macroName(name string) string {
	return fmt.Sprintf("m%d_%s", m.id, name)
}
