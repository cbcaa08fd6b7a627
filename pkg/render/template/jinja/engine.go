package jinja

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
)

const stringTemplateName = "<string>"

// Option configures the engine before construction.
type Option func(*config)

type config struct {
	name    string
	filters template.FilterTable
	logger  *slog.Logger
}

// WithFilters sets the filter table templates may use. The engine knows no
// filters otherwise.
func WithFilters(filters template.FilterTable) Option {
	return func(cfg *config) {
		cfg.filters = filters
	}
}

// WithLogger reports translation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithName names the underlying pongo2 template set.
func WithName(name string) Option {
	return func(cfg *config) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.name = trimmed
		}
	}
}

// Engine renders a fixed set of named templates. Sources are translated to
// pongo2 on first use and the compiled templates are cached; renders share no
// mutable state.
type Engine struct {
	mu        sync.RWMutex
	set       *pongo2.TemplateSet
	templates map[string]*pongo2.Template

	sources map[string]string
	filters template.FilterTable
	logger  *slog.Logger

	modMu    sync.Mutex
	modules  map[string]*module
	code     map[string]string
	failures map[string]error

	litMu    sync.RWMutex
	literals []any
	litIndex map[any]int
}

var _ template.Renderer = (*Engine)(nil)

// New builds an engine over sources, a mapping of template name to text.
func New(sources map[string]string, options ...Option) *Engine {
	cfg := &config{
		name:   "urlform",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(cfg)
	}

	e := &Engine{
		templates: make(map[string]*pongo2.Template),
		sources:   make(map[string]string, len(sources)),
		filters:   cfg.filters,
		logger:    cfg.logger,
		modules:   make(map[string]*module),
		code:      make(map[string]string),
		failures:  make(map[string]error),
		litIndex:  make(map[any]int),
	}
	for name, src := range sources {
		e.sources[name] = src
	}
	e.set = pongo2.NewSet(cfg.name, &sourceLoader{engine: e})
	return e
}

// Has reports whether name is a registered template.
func (e *Engine) Has(name string) bool {
	_, ok := e.sources[name]
	return ok
}

// Names lists the registered templates in sorted order.
func (e *Engine) Names() []string {
	names := make([]string, 0, len(e.sources))
	for name := range e.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render evaluates the template called name against ctx.
func (e *Engine) Render(name string, ctx template.Context) (string, error) {
	if !e.Has(name) {
		return "", &template.TemplateError{Template: name, Err: template.ErrUnknownTemplate}
	}
	tpl, err := e.getTemplate(name)
	if err != nil {
		return "", err
	}
	return e.execute(name, tpl, ctx)
}

// RenderString evaluates an anonymous template. It may import or include the
// registered templates.
func (e *Engine) RenderString(source string, ctx template.Context) (string, error) {
	code, err := e.translateString(source)
	if err != nil {
		return "", err
	}
	tpl, err := e.set.FromString(code)
	if err != nil {
		return "", e.compileError(stringTemplateName, err)
	}
	return e.execute(stringTemplateName, tpl, ctx)
}

// RenderEach renders every named template independently. Successful results
// are returned even when others fail; the failures are joined.
func (e *Engine) RenderEach(names []string, ctx template.Context) (map[string]string, error) {
	out := make(map[string]string, len(names))
	var errs []error
	for _, name := range names {
		rendered, err := e.Render(name, ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[name] = rendered
	}
	return out, errors.Join(errs...)
}

// Check translates and compiles every registered template without rendering
// it, reporting all failures.
func (e *Engine) Check() error {
	var errs []error
	for _, name := range e.Names() {
		if _, err := e.getTemplate(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) execute(name string, tpl *pongo2.Template, ctx template.Context) (string, error) {
	vars, err := normalizeContext(ctx)
	if err != nil {
		return "", &template.TemplateError{Template: name, Err: err}
	}
	st := newState(e, name, vars)

	var buf bytes.Buffer
	err = tpl.ExecuteWriter(st.context(), &buf)
	if st.err != nil {
		return "", st.err
	}
	if err != nil {
		return "", &template.TemplateError{Template: name, Err: unwrapPongo(err)}
	}
	return buf.String(), nil
}

func (e *Engine) getTemplate(name string) (*pongo2.Template, error) {
	e.mu.RLock()
	if tpl, ok := e.templates[name]; ok {
		e.mu.RUnlock()
		return tpl, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if tpl, ok := e.templates[name]; ok {
		return tpl, nil
	}

	if err := e.prepare(name); err != nil {
		e.logger.Warn("template translation failed", "template", name, "error", err)
		return nil, err
	}
	tpl, err := e.set.FromFile(name)
	if err != nil {
		err = e.compileError(name, err)
		e.logger.Warn("template compilation failed", "template", name, "error", err)
		return nil, err
	}

	e.templates[name] = tpl
	return tpl, nil
}

func (e *Engine) compileError(name string, err error) error {
	return &template.TemplateError{Template: name, Err: fmt.Errorf("compile: %w", unwrapPongo(err))}
}

func unwrapPongo(err error) error {
	var perr *pongo2.Error
	if errors.As(err, &perr) && perr.OrigError != nil {
		return perr.OrigError
	}
	return err
}

// prepare translates name and everything it imports or includes, so that
// pongo2 finds them when it resolves those tags at parse time.
func (e *Engine) prepare(name string) error {
	e.modMu.Lock()
	defer e.modMu.Unlock()
	return e.translateLocked(name, nil)
}

func (e *Engine) translateString(source string) (string, error) {
	e.modMu.Lock()
	defer e.modMu.Unlock()

	mod, err := parseModule(stringTemplateName, source)
	if err != nil {
		return "", err
	}
	for _, dep := range mod.deps {
		if err := e.translateLocked(dep, []string{stringTemplateName}); err != nil {
			return "", err
		}
	}
	return translate(compileEnv{e}, mod)
}

func (e *Engine) translateLocked(name string, stack []string) error {
	if err, ok := e.failures[name]; ok {
		return err
	}
	if _, ok := e.code[name]; ok {
		return nil
	}
	if slices.Contains(stack, name) {
		cycle := strings.Join(append(stack, name), " -> ")
		return &template.TemplateError{Template: name, Err: fmt.Errorf("import cycle: %s", cycle)}
	}

	mod, err := e.parseLocked(name)
	if err != nil {
		e.failures[name] = err
		return err
	}
	for _, dep := range mod.deps {
		if err := e.translateLocked(dep, append(stack, name)); err != nil {
			e.failures[name] = err
			return err
		}
	}
	code, err := translate(compileEnv{e}, mod)
	if err != nil {
		e.failures[name] = err
		return err
	}
	e.code[name] = code
	return nil
}

func (e *Engine) parseLocked(name string) (*module, error) {
	if mod, ok := e.modules[name]; ok {
		return mod, nil
	}
	src, ok := e.sources[name]
	if !ok {
		return nil, &template.TemplateError{Template: name, Err: template.ErrUnknownTemplate}
	}
	mod, err := parseModule(name, src)
	if err != nil {
		return nil, err
	}
	mod.id = len(e.modules) + 1
	e.modules[name] = mod
	return mod, nil
}

func (e *Engine) literal(v any) int {
	e.litMu.Lock()
	defer e.litMu.Unlock()
	if id, ok := e.litIndex[v]; ok {
		return id
	}
	e.literals = append(e.literals, v)
	id := len(e.literals) - 1
	e.litIndex[v] = id
	return id
}

func (e *Engine) literalAt(id int) (any, bool) {
	e.litMu.RLock()
	defer e.litMu.RUnlock()
	if id < 0 || id >= len(e.literals) {
		return nil, false
	}
	return e.literals[id], true
}

// compileEnv serves the translator while modMu is held.
type compileEnv struct{ e *Engine }

func (c compileEnv) module(name string) (*module, error) { return c.e.parseLocked(name) }
func (c compileEnv) literal(v any) int                   { return c.e.literal(v) }
func (c compileEnv) hasFilter(name string) bool          { return c.e.filters.Has(name) }

// sourceLoader hands translated sources to pongo2. Names are used verbatim.
type sourceLoader struct {
	engine *Engine
}

func (l *sourceLoader) Abs(_, name string) string {
	return name
}

func (l *sourceLoader) Get(path string) (io.Reader, error) {
	e := l.engine
	e.modMu.Lock()
	defer e.modMu.Unlock()
	if err := e.translateLocked(path, nil); err != nil {
		return nil, err
	}
	return strings.NewReader(e.code[path]), nil
}

// normalizeContext converts template data into the document value set so that
// mappings iterate deterministically.
func normalizeContext(ctx template.Context) (map[string]any, error) {
	out := make(map[string]any, len(ctx))
	for key, value := range ctx {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		converted, err := document.Normalize(value)
		if err != nil {
			return nil, fmt.Errorf("context key %q: %w", key, err)
		}
		out[key] = converted
	}
	return out, nil
}
