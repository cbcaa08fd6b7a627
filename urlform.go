// Package urlform builds form definitions into the artifacts a page shows:
// a URL, a submit button, download and target names, and check results,
// all re-rendered from templates whenever the form data changes.
//
// The root package wires the pkg/ components together for the common case.
// Use pkg/artifact directly to drive the phases one at a time.
package urlform

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-urlform/internal/loader"
	"github.com/goliatone/go-urlform/pkg/artifact"
	"github.com/goliatone/go-urlform/pkg/definition"
	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/filters"
	"github.com/goliatone/go-urlform/pkg/render/template"
	"github.com/goliatone/go-urlform/pkg/source"
	"github.com/goliatone/go-urlform/pkg/validation"
)

// Definition is a loaded form definition.
type Definition = definition.Definition

// Artifacts are the rendered strings for one state of the form data.
type Artifacts = artifact.Artifacts

// Error types surfaced by the pipeline, re-exported for errors.As.
type (
	ParseError            = document.ParseError
	BadImportError        = source.BadImportError
	ValidationError       = validation.Error
	TemplateError         = template.TemplateError
	MalformedDataURIError = filters.MalformedDataURIError
	FormError             = definition.FormError
	RenderError           = artifact.RenderError
)

// ErrNotReady is returned when rendering before the definition is prepared.
var ErrNotReady = artifact.ErrNotReady

// NewLoader constructs a loader using the internal implementation while
// keeping the concrete type hidden from consumers.
func NewLoader(options ...source.LoaderOption) source.Loader {
	return loader.New(source.NewLoaderOptions(options...))
}

// NewResolver constructs a resolver over NewLoader.
func NewResolver(loaderOptions []source.LoaderOption, options ...source.Option) *source.Resolver {
	return source.NewResolver(NewLoader(loaderOptions...), options...)
}

// Option configures the package-level helpers.
type Option func(*options)

type options struct {
	loaderOpts   []source.LoaderOption
	registry     *source.Registry
	resourcePath string
	logger       *slog.Logger
}

// WithLoaderOptions configures how the root definition and relative
// references are read.
func WithLoaderOptions(opts ...source.LoaderOption) Option {
	return func(o *options) { o.loaderOpts = append(o.loaderOpts, opts...) }
}

// WithRegistry supplies values for `py:` dotted references.
func WithRegistry(registry *source.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithResourcePath resolves relative references against dir instead of the
// definition's directory.
func WithResourcePath(dir string) Option {
	return func(o *options) { o.resourcePath = dir }
}

// WithLogger routes diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newBuilder(opts []Option) *artifact.Builder {
	var cfg options
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	var resolverOpts []source.Option
	if cfg.registry != nil {
		resolverOpts = append(resolverOpts, source.WithRegistry(cfg.registry))
	}
	builderOpts := []artifact.Option{
		artifact.WithResolver(NewResolver(cfg.loaderOpts, resolverOpts...)),
		artifact.WithLogger(cfg.logger),
	}
	if cfg.resourcePath != "" {
		builderOpts = append(builderOpts, artifact.WithExpandOptions(definition.WithResourcePath(cfg.resourcePath)))
	}
	return artifact.New(builderOpts...)
}

// SourceFor classifies a command-line style location as a URL or a file.
func SourceFor(location string) source.Source {
	if source.IsURL(location) {
		return source.FromURL(location)
	}
	return source.FromFile(location)
}

// LoadDefinition loads and expands the definition at path. Per-form
// resolution failures and meta-schema violations are attached to
// Definition.Errors; only an unreadable or unparsable root is an error.
func LoadDefinition(ctx context.Context, path string, opts ...Option) (*Definition, error) {
	b := newBuilder(opts)
	if err := b.Load(ctx, SourceFor(path)); err != nil {
		return nil, err
	}
	if err := b.Expand(ctx); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	def := b.Definition()
	for _, verr := range b.ValidationErrors() {
		def.Errors = append(def.Errors, verr)
	}
	return def, nil
}

// ValidateDefinition checks def against the embedded meta-schema.
func ValidateDefinition(def *Definition) ([]ValidationError, error) {
	validator, err := validation.Default()
	if err != nil {
		return nil, err
	}
	return validator.ValidateDefinition(def.Root()), nil
}

// RenderArtifacts prepares def and renders it once against formData, keyed
// by form name. A *RenderError comes back with whatever did render.
func RenderArtifacts(ctx context.Context, def *Definition, formData map[string]any, opts ...Option) (*Artifacts, error) {
	b := newBuilder(opts)
	if err := b.Use(def); err != nil {
		return nil, err
	}
	if err := b.Expand(ctx); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := b.Prepare(nil); err != nil {
		return nil, err
	}
	return b.Render(formData)
}
