package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-urlform/pkg/document"
)

// Resolved is a reference turned into a document value.
type Resolved struct {
	Value    any
	Format   document.Format
	Location string
}

// Object returns the resolved value as a mapping.
func (r Resolved) Object() (*document.Object, bool) {
	obj, ok := r.Value.(*document.Object)
	return obj, ok
}

// Resolver loads the root definition and resolves the references inside it.
type Resolver struct {
	loader   Loader
	registry *Registry
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRegistry supplies the dotted reference table.
func WithRegistry(registry *Registry) Option {
	return func(r *Resolver) {
		r.registry = registry
	}
}

// NewResolver constructs a resolver reading documents through loader.
func NewResolver(loader Loader, opts ...Option) *Resolver {
	r := &Resolver{loader: loader}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.registry == nil {
		r.registry = NewRegistry()
	}
	return r
}

// Registry returns the dotted reference table.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Load reads and parses a root document.
func (r *Resolver) Load(ctx context.Context, src Source) (Resolved, error) {
	if src == nil {
		return Resolved{}, errors.New("source: source is nil")
	}
	return r.loadDocument(ctx, src, "")
}

// Resolve turns a reference into a document. Dotted references go through
// the registry; file paths are read relative to base. URL references return
// ErrDeferredReference.
func (r *Resolver) Resolve(ctx context.Context, ref string, base Base) (Resolved, error) {
	if r == nil {
		return Resolved{}, errors.New("source: resolver is nil")
	}
	switch Classify(ref) {
	case ReferenceDotted:
		return r.resolveDotted(ctx, ref)
	case ReferenceURL:
		return Resolved{}, fmt.Errorf("%w: %s", ErrDeferredReference, ref)
	}

	refPath, fragment := splitRef(ref)
	if refPath == "" {
		return Resolved{}, fmt.Errorf("source: reference %q has no path", ref)
	}
	src, err := base.Join(refPath)
	if err != nil {
		return Resolved{}, err
	}
	return r.loadDocument(ctx, src, fragment)
}

func (r *Resolver) loadDocument(ctx context.Context, src Source, fragment string) (Resolved, error) {
	if r.loader == nil {
		return Resolved{}, errors.New("source: loader is nil")
	}
	format, err := document.FormatFromPath(src.Location())
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, src.Location())
	}
	doc, err := r.loader.Load(ctx, src)
	if err != nil {
		return Resolved{}, err
	}

	var value any
	if strings.HasPrefix(fragment, componentSchemasPrefix) && format != document.FormatTOML {
		value, err = openAPISchema(ctx, doc.Raw(), src.Location(), format, fragment)
		if err != nil {
			return Resolved{}, err
		}
	} else {
		value, err = document.Decode(format, src.Location(), doc.Raw())
		if err != nil {
			return Resolved{}, err
		}
		if fragment != "" {
			value, err = resolvePointer(value, fragment)
			if err != nil {
				return Resolved{}, fmt.Errorf("source: %s#%s: %w", src.Location(), fragment, err)
			}
		}
	}
	location := src.Location()
	if fragment != "" {
		location += "#" + fragment
	}
	return Resolved{Value: value, Format: format, Location: location}, nil
}

func (r *Resolver) resolveDotted(ctx context.Context, ref string) (Resolved, error) {
	name := strings.TrimPrefix(ref, DottedPrefix)
	provider, ok := r.registry.Lookup(name)
	if !ok {
		return Resolved{}, &BadImportError{Reference: ref, Err: ErrUnknownReference}
	}
	raw, err := provider(ctx)
	if err != nil {
		return Resolved{}, &BadImportError{Reference: ref, Err: err}
	}
	value, err := document.Normalize(raw)
	if err != nil {
		return Resolved{}, &BadImportError{Reference: ref, Err: err}
	}
	if _, ok := value.(*document.Object); !ok {
		return Resolved{}, &BadImportError{
			Reference: ref,
			Value:     value,
			Reason:    fmt.Sprintf("resolved to %s, expected a mapping", document.TypeName(value)),
		}
	}
	return Resolved{Value: value, Format: document.FormatJSON, Location: DottedName(ref)}, nil
}

func splitRef(ref string) (string, string) {
	parts := strings.SplitN(ref, "#", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
