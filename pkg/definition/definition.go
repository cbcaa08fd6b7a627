package definition

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/source"
)

// Top-level and per-form keys.
const (
	KeyForms       = "forms"
	KeyTemplates   = "templates"
	KeyChecks      = "checks"
	KeyNunjucks    = "nunjucks"
	KeyFilters     = "filters"
	KeyStyle       = "style"
	KeyIframe      = "iframe"
	KeyIframeStyle = "iframe_style"
	KeyTheme       = "theme"
	KeyNoBootstrap = "no_bootstrap"
	KeyID          = "$id"
	KeySchemaURI   = "$schema"

	FieldSchema   = "schema"
	FieldUISchema = "ui_schema"
	FieldFormData = "form_data"
	FieldProps    = "props"
	FieldOrder    = "order"
	FieldRank     = "rank"
)

// Well-known template names.
const (
	TemplateURL              = "url"
	TemplateSubmitButton     = "submit_button"
	TemplateDownloadFilename = "download_filename"
	TemplateSubmitTarget     = "submit_target"
	ChecksPrefix             = "checks/"
)

// ReferenceFields lists the form fields that may hold a reference.
var ReferenceFields = []string{FieldSchema, FieldUISchema, FieldFormData, FieldProps}

// Definition is a parsed definition document. Accessors never mutate the
// underlying document.
type Definition struct {
	root     *document.Object
	location string
	base     source.Base

	// Errors holds per-form resolution failures collected by the Expander.
	Errors []error
}

// New wraps a root document. Relative references resolve against base.
func New(root *document.Object, location string, base source.Base) *Definition {
	if root == nil {
		root = document.NewObject()
	}
	return &Definition{root: root, location: location, base: base}
}

// Root returns the underlying document. Callers must treat it as read-only.
func (d *Definition) Root() *document.Object { return d.root }

// Location identifies where the definition was loaded from.
func (d *Definition) Location() string { return d.location }

// Base is the anchor used for relative references.
func (d *Definition) Base() source.Base { return d.base }

// Clone returns a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	return &Definition{
		root:     d.root.Clone(),
		location: d.location,
		base:     d.base,
		Errors:   append([]error(nil), d.Errors...),
	}
}

// Form is one named form entry.
type Form struct {
	Name     string
	Order    float64
	Schema   any
	UISchema any
	FormData any
	Props    any
}

// Field returns one of the reference fields by key.
func (f Form) Field(key string) any {
	switch key {
	case FieldSchema:
		return f.Schema
	case FieldUISchema:
		return f.UISchema
	case FieldFormData:
		return f.FormData
	case FieldProps:
		return f.Props
	}
	return nil
}

// Forms returns the forms sorted by order, lowest first, with the name as
// tiebreaker. Entries that are not mappings are skipped.
func (d *Definition) Forms() []Form {
	formsObj := d.object(KeyForms)
	forms := make([]Form, 0, formsObj.Len())
	formsObj.Range(func(name string, value any) bool {
		entry, ok := value.(*document.Object)
		if !ok {
			return true
		}
		form := Form{Name: name, Order: orderOf(entry)}
		form.Schema, _ = entry.Get(FieldSchema)
		form.UISchema, _ = entry.Get(FieldUISchema)
		form.FormData, _ = entry.Get(FieldFormData)
		form.Props, _ = entry.Get(FieldProps)
		forms = append(forms, form)
		return true
	})
	sort.SliceStable(forms, func(i, j int) bool {
		if forms[i].Order != forms[j].Order {
			return forms[i].Order < forms[j].Order
		}
		return forms[i].Name < forms[j].Name
	})
	return forms
}

// Form looks up a single form by name.
func (d *Definition) Form(name string) (Form, bool) {
	for _, form := range d.Forms() {
		if form.Name == name {
			return form, true
		}
	}
	return Form{}, false
}

// FormNames returns the form names in display order.
func (d *Definition) FormNames() []string {
	forms := d.Forms()
	names := make([]string, len(forms))
	for i, form := range forms {
		names[i] = form.Name
	}
	return names
}

func orderOf(entry *document.Object) float64 {
	for _, key := range []string{FieldOrder, FieldRank} {
		if value, ok := entry.Get(key); ok {
			if f, ok := document.AsFloat(value); ok {
				return f
			}
		}
	}
	return 0
}

// Templates returns every named template source, checks excluded. List
// templates are concatenated; malformed entries are skipped.
func (d *Definition) Templates() map[string]string {
	out := make(map[string]string)
	d.object(KeyTemplates).Range(func(name string, value any) bool {
		if name == KeyChecks {
			return true
		}
		if text, err := TemplateText(value); err == nil {
			out[name] = text
		}
		return true
	})
	return out
}

// TemplateNames lists template names in document order, checks excluded.
func (d *Definition) TemplateNames() []string {
	var names []string
	for _, name := range d.object(KeyTemplates).Keys() {
		if name != KeyChecks {
			names = append(names, name)
		}
	}
	return names
}

// Template returns a single template source.
func (d *Definition) Template(name string) (string, bool) {
	value, ok := d.object(KeyTemplates).Get(name)
	if !ok || name == KeyChecks {
		return "", false
	}
	text, err := TemplateText(value)
	if err != nil {
		return "", false
	}
	return text, true
}

// Check is a labelled template whose non-blank output marks a failure.
type Check struct {
	Label  string
	Source string
}

// Checks merges top-level checks with templates.checks. Top-level labels
// come first; a label defined in both places takes the templates value.
func (d *Definition) Checks() []Check {
	var checks []Check
	index := make(map[string]int)
	add := func(obj *document.Object) {
		obj.Range(func(label string, value any) bool {
			text, err := TemplateText(value)
			if err != nil {
				return true
			}
			if i, ok := index[label]; ok {
				checks[i].Source = text
				return true
			}
			index[label] = len(checks)
			checks = append(checks, Check{Label: label, Source: text})
			return true
		})
	}
	add(d.object(KeyChecks))
	if nested, ok := d.object(KeyTemplates).Get(KeyChecks); ok {
		obj, _ := nested.(*document.Object)
		add(obj)
	}
	return checks
}

// Filters returns the names listed under nunjucks.filters.
func (d *Definition) Filters() []string {
	value, ok := d.object(KeyNunjucks).Get(KeyFilters)
	if !ok {
		return nil
	}
	list, _ := value.([]any)
	names := make([]string, 0, len(list))
	for _, item := range list {
		if name, ok := item.(string); ok {
			names = append(names, name)
		}
	}
	return names
}

// Style returns the CSS rule tree, or nil.
func (d *Definition) Style() *document.Object {
	return d.object(KeyStyle)
}

// ID returns $id.
func (d *Definition) ID() string { return d.str(KeyID) }

// SchemaURI returns $schema.
func (d *Definition) SchemaURI() string { return d.str(KeySchemaURI) }

// Theme returns the requested theme name.
func (d *Definition) Theme() string { return d.str(KeyTheme) }

// IframeStyle returns extra CSS for the iframe element.
func (d *Definition) IframeStyle() string { return d.str(KeyIframeStyle) }

// Iframe reports whether forms render in an iframe. A style implies it.
func (d *Definition) Iframe() bool {
	return d.boolean(KeyIframe) || d.IframeStyle() != ""
}

// NoBootstrap reports whether the page must not add bootstrap.
func (d *Definition) NoBootstrap() bool { return d.boolean(KeyNoBootstrap) }

// Usable reports structural problems that prevent any rendering.
func (d *Definition) Usable() error {
	var errs []error
	if d.object(KeyForms).Len() == 0 {
		errs = append(errs, errors.New("definition: no forms defined"))
	}
	_, hasURL := d.Template(TemplateURL)
	_, hasButton := d.Template(TemplateSubmitButton)
	if !hasURL && !hasButton {
		errs = append(errs, fmt.Errorf("definition: templates must define %q or %q", TemplateURL, TemplateSubmitButton))
	}
	return errors.Join(errs...)
}

func (d *Definition) object(key string) *document.Object {
	value, _ := d.root.Get(key)
	obj, _ := value.(*document.Object)
	return obj
}

func (d *Definition) str(key string) string {
	value, _ := d.root.Get(key)
	s, _ := value.(string)
	return s
}

func (d *Definition) boolean(key string) bool {
	value, _ := d.root.Get(key)
	b, _ := value.(bool)
	return b
}

// TemplateText concatenates a string or list of strings.
func TemplateText(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case []any:
		var b strings.Builder
		for i, item := range typed {
			s, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("definition: template item %d is %s, expected string", i, document.TypeName(item))
			}
			b.WriteString(s)
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("definition: template is %s, expected string or list of strings", document.TypeName(value))
	}
}
