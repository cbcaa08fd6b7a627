// Package validation checks definitions against the embedded meta-schema
// and exposes the same engine to templates through SchemaErrors.
package validation

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/goliatone/go-urlform/pkg/document"
)

// SchemaVersion names the embedded meta-schema revision.
const SchemaVersion = "v0"

// MetaSchemaURL is the $id of the embedded meta-schema.
const MetaSchemaURL = "https://urlform.dev/schema/v0/form.schema.json"

const adHocSchemaURL = "https://urlform.invalid/schema_errors.json"

//go:embed schema/v0/form.schema.json
var formSchema []byte

// MetaSchema returns the embedded definition meta-schema.
func MetaSchema() []byte {
	return append([]byte(nil), formSchema...)
}

// Error is one structural problem, located by a JSON pointer into the
// validated document.
type Error struct {
	Path    string `json:"path"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Result summarizes a validation run.
type Result struct {
	Valid  bool    `json:"valid"`
	Errors []Error `json:"errors,omitempty"`
}

// NewResult wraps a list of errors.
func NewResult(errs []Error) Result {
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Validator validates definitions against the meta-schema.
type Validator struct {
	schema *jsonschema.Schema
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
	defaultErr       error
)

// Default returns a shared validator compiled once.
func Default() (*Validator, error) {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = New()
	})
	return defaultValidator, defaultErr
}

// New compiles the embedded meta-schema.
func New() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(formSchema))
	if err != nil {
		return nil, fmt.Errorf("validation: decode meta-schema: %w", err)
	}
	schema, err := compile(MetaSchemaURL, doc)
	if err != nil {
		return nil, fmt.Errorf("validation: compile meta-schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateDefinition returns every structural error in doc. It never fails:
// an empty slice means the definition is valid.
func (v *Validator) ValidateDefinition(doc any) []Error {
	if v == nil || v.schema == nil {
		return []Error{{Message: "validator is not initialized"}}
	}
	return validate(v.schema, doc)
}

// SchemaErrors validates doc against an arbitrary schema. A schema that does
// not compile yields a single error with an empty path.
func SchemaErrors(doc, schema any) []Error {
	compiled, err := compile(adHocSchemaURL, document.ToPlain(schema))
	if err != nil {
		return []Error{{Message: cleanMessage(err.Error())}}
	}
	return validate(compiled, doc)
}

func compile(url string, doc any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft7)
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

func validate(schema *jsonschema.Schema, doc any) []Error {
	err := schema.Validate(document.ToPlain(doc))
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []Error{{Message: cleanMessage(err.Error())}}
	}
	errs := leafErrors(verr.DetailedOutput())
	if len(errs) == 0 {
		errs = []Error{{
			Path:    "/" + strings.Join(verr.InstanceLocation, "/"),
			Message: cleanMessage(verr.Error()),
		}}
		if len(verr.InstanceLocation) == 0 {
			errs[0].Path = ""
		}
		errs[0].Field = fieldFromPointer(errs[0].Path)
	}
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Path != errs[j].Path {
			return errs[i].Path < errs[j].Path
		}
		return errs[i].Message < errs[j].Message
	})
	return errs
}

// leafErrors collects the most specific units of a detailed output tree.
// A unit with children only groups its causes; a unit with no children
// names the actual problem.
func leafErrors(root *jsonschema.OutputUnit) []Error {
	if root == nil {
		return nil
	}
	var out []Error
	seen := make(map[Error]struct{})
	var walk func(unit *jsonschema.OutputUnit)
	walk = func(unit *jsonschema.OutputUnit) {
		if len(unit.Errors) > 0 {
			for i := range unit.Errors {
				walk(&unit.Errors[i])
			}
			return
		}
		if unit.Error == nil {
			return
		}
		e := Error{
			Path:    unit.InstanceLocation,
			Field:   fieldFromPointer(unit.InstanceLocation),
			Message: cleanMessage(unit.Error.String()),
		}
		if _, dup := seen[e]; dup {
			return
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	walk(root)
	return out
}

func cleanMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	msg = strings.TrimPrefix(msg, "jsonschema: ")
	return strings.TrimSpace(msg)
}

// fieldFromPointer renders an instance pointer as a dotted path, with array
// indices in brackets: /forms/a/templates/0 becomes forms.a.templates[0].
func fieldFromPointer(pointer string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(pointer), "#")
	trimmed = strings.TrimPrefix(trimmed, "/")
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	for _, part := range strings.Split(trimmed, "/") {
		segment := strings.ReplaceAll(part, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")
		if isNumeric(segment) && b.Len() > 0 {
			b.WriteString("[" + segment + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(segment)
	}
	return b.String()
}

func isNumeric(value string) bool {
	if value == "" {
		return false
	}
	_, err := strconv.Atoi(value)
	return err == nil
}
