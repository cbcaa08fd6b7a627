package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-urlform/internal/loader"
	"github.com/goliatone/go-urlform/pkg/definition"
	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/filters"
	"github.com/goliatone/go-urlform/pkg/merge"
	"github.com/goliatone/go-urlform/pkg/render/template"
	"github.com/goliatone/go-urlform/pkg/render/template/jinja"
	"github.com/goliatone/go-urlform/pkg/source"
	"github.com/goliatone/go-urlform/pkg/validation"
)

// Option configures a Builder.
type Option func(*Builder)

// WithResolver sets the resolver used to load the definition and its
// references. The default reads local files only.
func WithResolver(resolver *source.Resolver) Option {
	return func(b *Builder) {
		if resolver != nil {
			b.resolver = resolver
		}
	}
}

// WithExpandOptions forwards options to the reference expander.
func WithExpandOptions(opts ...definition.ExpandOption) Option {
	return func(b *Builder) {
		b.expandOpts = append(b.expandOpts, opts...)
	}
}

// WithValidator overrides the meta-schema validator.
func WithValidator(validator *validation.Validator) Option {
	return func(b *Builder) {
		b.validator = validator
	}
}

// WithFilterOptions forwards options to the filter table.
func WithFilterOptions(opts ...filters.Option) Option {
	return func(b *Builder) {
		b.filterOpts = append(b.filterOpts, opts...)
	}
}

// WithStrictFilters registers only the optional filter groups the definition
// lists under nunjucks.filters.
func WithStrictFilters() Option {
	return func(b *Builder) {
		b.strictFilters = true
	}
}

// WithLogger reports phase transitions and non-fatal problems.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Builder produces artifacts for one definition. Phase methods must be called
// in order; Render is safe for concurrent use once the builder is Ready.
type Builder struct {
	resolver      *source.Resolver
	expandOpts    []definition.ExpandOption
	validator     *validation.Validator
	filterOpts    []filters.Option
	strictFilters bool
	logger        *slog.Logger

	mu       sync.RWMutex
	state    State
	def      *definition.Definition
	errs     []validation.Error
	initial  map[string]any
	renderer template.Renderer
	checks   []definition.Check
	last     *Artifacts
}

// New constructs an Unloaded builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.resolver == nil {
		b.resolver = source.NewResolver(loader.New(source.NewLoaderOptions()))
	}
	return b
}

// State returns the current phase.
func (b *Builder) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Definition returns the loaded or expanded definition, nil before Load.
func (b *Builder) Definition() *definition.Definition {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.def
}

// ValidationErrors returns the meta-schema errors found by Validate.
func (b *Builder) ValidationErrors() []validation.Error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]validation.Error(nil), b.errs...)
}

// FormErrors returns the per-form resolution failures found by Expand.
func (b *Builder) FormErrors() []error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.def == nil {
		return nil
	}
	return append([]error(nil), b.def.Errors...)
}

// InitialData returns a copy of the per-form data computed by Prepare.
func (b *Builder) InitialData() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.initial))
	for name, value := range b.initial {
		out[name] = document.Clone(value)
	}
	return out
}

// Last returns the most recent successful render, nil before the first.
func (b *Builder) Last() *Artifacts {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}

// Renderer exposes the prepared template engine, nil before Prepare.
func (b *Builder) Renderer() template.Renderer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.renderer
}

func (b *Builder) require(phase string, want State) error {
	if b.state != want {
		return &PhaseError{Phase: phase, Want: want, Got: b.state}
	}
	return nil
}

func (b *Builder) advance(to State) {
	b.logger.Debug("builder phase", "from", b.state.String(), "to", to.String())
	b.state = to
}

// Build runs every phase up to Ready.
func (b *Builder) Build(ctx context.Context, src source.Source, initial map[string]any) error {
	if err := b.Load(ctx, src); err != nil {
		return err
	}
	if err := b.Expand(ctx); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	return b.Prepare(initial)
}

// Load reads the root definition. Parse failures are fatal.
func (b *Builder) Load(ctx context.Context, src source.Source) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.require("load", Unloaded); err != nil {
		return err
	}
	def, err := definition.Load(ctx, b.resolver, src)
	if err != nil {
		return err
	}
	b.def = def
	b.advance(Loaded)
	return nil
}

// Use adopts an already parsed definition in place of Load.
func (b *Builder) Use(def *definition.Definition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.require("use", Unloaded); err != nil {
		return err
	}
	if def == nil {
		return errors.New("artifact: definition is nil")
	}
	b.def = def
	b.advance(Loaded)
	return nil
}

// Expand resolves form references. Per-form failures are collected on the
// definition and logged; they do not stop the transition.
func (b *Builder) Expand(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.require("expand", Loaded); err != nil {
		return err
	}
	opts := append([]definition.ExpandOption{definition.WithLogger(b.logger)}, b.expandOpts...)
	expanded, err := definition.NewExpander(b.resolver, opts...).Expand(ctx, b.def)
	if err != nil {
		return err
	}
	for _, formErr := range expanded.Errors {
		b.logger.Warn("form not fully resolved", "error", formErr)
	}
	b.def = expanded
	b.advance(Expanded)
	return nil
}

// Validate checks the expanded definition against the meta-schema. Errors
// are kept for ValidationErrors and never block the transition.
func (b *Builder) Validate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.require("validate", Expanded); err != nil {
		return err
	}
	validator := b.validator
	if validator == nil {
		var err error
		if validator, err = validation.Default(); err != nil {
			return err
		}
	}
	b.errs = validator.ValidateDefinition(b.def.Root())
	if len(b.errs) > 0 {
		b.logger.Warn("definition has validation errors", "count", len(b.errs))
	}
	b.advance(Validated)
	return nil
}

// Prepare computes each form's initial data as schema defaults, then the
// form's form_data, then initial[form], and compiles the templates. A
// definition without forms or without url and submit_button templates is
// rejected and the builder stays Validated.
func (b *Builder) Prepare(initial map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.require("prepare", Validated); err != nil {
		return err
	}
	if err := b.def.Usable(); err != nil {
		return err
	}

	data := make(map[string]any)
	for _, form := range b.def.Forms() {
		extra, err := document.Normalize(initial[form.Name])
		if err != nil {
			return fmt.Errorf("artifact: initial data for form %q: %w", form.Name, err)
		}
		formData, _ := form.FormData.(*document.Object)
		var fromDef any
		if formData != nil {
			fromDef = formData
		}
		merged := merge.All(merge.SchemaDefaults(form.Schema), fromDef, extra)
		if merged == nil {
			merged = document.NewObject()
		}
		data[form.Name] = merged
	}

	sources := b.def.Templates()
	checks := b.def.Checks()
	for _, check := range checks {
		sources[definition.ChecksPrefix+check.Label] = check.Source
	}

	filterOpts := append([]filters.Option(nil), b.filterOpts...)
	requested := b.def.Filters()
	for _, name := range filters.UnknownGroups(requested) {
		b.logger.Warn("unknown filter group requested", "filter", name, "known", strings.Join(filters.Groups(), ","))
	}
	if b.strictFilters {
		filterOpts = append(filterOpts, filters.WithGroups(requested...))
	}

	engine := jinja.New(sources,
		jinja.WithFilters(filters.Table(filterOpts...)),
		jinja.WithLogger(b.logger),
		jinja.WithName(b.def.Location()),
	)
	if err := engine.Check(); err != nil {
		b.logger.Warn("templates failed to compile", "error", err)
	}

	b.initial = data
	b.renderer = engine
	b.checks = checks
	b.advance(Ready)
	return nil
}

// Render evaluates every artifact template against the definition and the
// form data. Each form's data is merged over its initial data. When any
// template fails the result holds what did render and the error is a
// *RenderError; Last keeps the previous good artifacts.
func (b *Builder) Render(formData map[string]any) (*Artifacts, error) {
	b.mu.RLock()
	if err := b.require("render", Ready); err != nil {
		b.mu.RUnlock()
		return nil, err
	}
	def, renderer, checks := b.def, b.renderer, b.checks
	initial := b.initial
	b.mu.RUnlock()

	data := document.NewObject()
	for _, name := range def.FormNames() {
		live, err := document.Normalize(formData[name])
		if err != nil {
			return nil, fmt.Errorf("artifact: form data for %q: %w", name, err)
		}
		data.Set(name, merge.Merge(initial[name], live))
	}
	for _, name := range sortedKeys(formData) {
		if !data.Has(name) {
			b.logger.Warn("form data for unknown form ignored", "form", name)
		}
	}

	ctx := template.Context{"config": def.Root(), "data": data}
	out, renderErr := renderArtifacts(renderer, def, checks, ctx)
	if renderErr != nil {
		for name, err := range renderErr.Errors {
			b.logger.Warn("template render failed", "template", name, "error", err)
		}
		return out, renderErr
	}

	b.mu.Lock()
	b.last = out
	b.mu.Unlock()
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
