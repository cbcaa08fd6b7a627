package template

// Context is the variable scope a template is evaluated against. Values are
// document values (see pkg/document) or plain Go maps and slices.
type Context map[string]any

// Renderer evaluates named templates against a context. Implementations are
// immutable after construction and safe for concurrent use.
type Renderer interface {
	// Render evaluates the template registered under name.
	Render(name string, ctx Context) (string, error)
	// RenderString evaluates an ad-hoc template source.
	RenderString(source string, ctx Context) (string, error)
	// RenderEach evaluates every named template independently. Successful
	// results are returned even when some templates fail; the error then
	// joins one *TemplateError per failure.
	RenderEach(names []string, ctx Context) (map[string]string, error)
	Has(name string) bool
	Names() []string
}
