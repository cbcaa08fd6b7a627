package definition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/source"
)

// FormError attaches a resolution failure to the form and field it came from.
type FormError struct {
	Form  string
	Field string
	Err   error
}

func (e *FormError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("definition: form %q: %v", e.Form, e.Err)
	}
	return fmt.Sprintf("definition: form %q field %q: %v", e.Form, e.Field, e.Err)
}

func (e *FormError) Unwrap() error {
	return e.Err
}

// Load reads the root definition. Parse failures are fatal here.
func Load(ctx context.Context, resolver *source.Resolver, src source.Source) (*Definition, error) {
	if resolver == nil {
		return nil, errors.New("definition: resolver is nil")
	}
	resolved, err := resolver.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	root, ok := resolved.Object()
	if !ok {
		return nil, &document.ParseError{
			Source: src.Location(),
			Format: resolved.Format,
			Err:    fmt.Errorf("%w (got %s)", document.ErrNotObject, document.TypeName(resolved.Value)),
		}
	}
	return New(root, src.Location(), source.BaseOf(src)), nil
}

// Expander replaces form references with inline documents.
type Expander struct {
	resolver     *source.Resolver
	resourcePath string
	logger       *slog.Logger
}

// ExpandOption configures an Expander.
type ExpandOption func(*Expander)

// WithResourcePath resolves relative references against dir instead of the
// directory holding the definition.
func WithResourcePath(dir string) ExpandOption {
	return func(e *Expander) {
		e.resourcePath = dir
	}
}

// WithLogger routes resolution warnings to logger.
func WithLogger(logger *slog.Logger) ExpandOption {
	return func(e *Expander) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExpander constructs an Expander backed by resolver.
func NewExpander(resolver *source.Resolver, opts ...ExpandOption) *Expander {
	e := &Expander{
		resolver: resolver,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Expand returns a copy of def where every relative or dotted reference in
// a form's schema, ui_schema, form_data and props is replaced by the
// resolved mapping. URLs and other strings pass through. Failures are
// recorded per form in the result's Errors and leave the field unchanged,
// so one broken form does not block the others. Expanding an expanded
// definition is a no-op.
func (e *Expander) Expand(ctx context.Context, def *Definition) (*Definition, error) {
	if def == nil {
		return nil, errors.New("definition: definition is nil")
	}
	if e.resolver == nil {
		return nil, errors.New("definition: resolver is nil")
	}

	out := def.Clone()
	out.Errors = nil

	base := def.base
	if e.resourcePath != "" {
		base = source.DirBase(e.resourcePath)
	}

	forms := out.object(KeyForms)
	forms.Range(func(name string, value any) bool {
		entry, ok := value.(*document.Object)
		if !ok {
			out.Errors = append(out.Errors, &FormError{Form: name, Err: &source.BadImportError{
				Form:   name,
				Value:  value,
				Reason: "form must be a mapping",
			}})
			return true
		}
		for _, field := range ReferenceFields {
			if err := e.expandField(ctx, base, name, entry, field); err != nil {
				e.logger.Warn("reference not resolved", "form", name, "field", field, "error", err)
				out.Errors = append(out.Errors, &FormError{Form: name, Field: field, Err: err})
			}
		}
		return true
	})
	return out, nil
}

func (e *Expander) expandField(ctx context.Context, base source.Base, form string, entry *document.Object, field string) error {
	value, ok := entry.Get(field)
	if !ok || value == nil {
		return nil
	}
	switch typed := value.(type) {
	case *document.Object:
		return nil
	case string:
		kind := source.Classify(typed)
		if kind != source.ReferenceDotted && kind != source.ReferenceRelative {
			return nil
		}
		resolved, err := e.resolver.Resolve(ctx, typed, base)
		if err != nil {
			var bad *source.BadImportError
			if errors.As(err, &bad) {
				bad.Form, bad.Field = form, field
			}
			return err
		}
		obj, ok := resolved.Object()
		if !ok {
			return &source.BadImportError{
				Reference: typed,
				Form:      form,
				Field:     field,
				Value:     resolved.Value,
				Reason:    fmt.Sprintf("resolved to %s, expected a mapping", document.TypeName(resolved.Value)),
			}
		}
		entry.Set(field, obj)
		return nil
	default:
		return &source.BadImportError{
			Form:   form,
			Field:  field,
			Value:  value,
			Reason: "expected a mapping or a reference string",
		}
	}
}
