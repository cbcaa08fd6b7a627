// Package prompt collects form data interactively by walking a form's JSON
// schema and asking one question per leaf value.
package prompt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/goliatone/go-urlform/pkg/definition"
	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/merge"
	"github.com/goliatone/go-urlform/pkg/render/template"
	"github.com/goliatone/go-urlform/pkg/validation"
)

// MaxDepth bounds schema nesting, including $ref hops.
const MaxDepth = 32

// Option configures Collect.
type Option func(*collector)

// WithLogger routes diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type collector struct {
	driver Driver
	root   *document.Object
	logger *slog.Logger
}

// Collect prompts for every property of schema, offering values from
// defaults and the schema's own default keywords. Values that still violate
// the schema afterwards are reported through the driver, not returned as an
// error.
func Collect(ctx context.Context, driver Driver, schema, defaults any, opts ...Option) (any, error) {
	root, ok := schema.(*document.Object)
	if !ok {
		return nil, fmt.Errorf("prompt: schema must be an object, got %s", document.TypeName(schema))
	}
	c := &collector{
		driver: driver,
		root:   root,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	initial, err := document.Normalize(defaults)
	if err != nil {
		return nil, fmt.Errorf("prompt: defaults: %w", err)
	}
	current := merge.Merge(merge.SchemaDefaults(root), initial)

	value, _, err := c.value(ctx, root, "", "", true, current, 0)
	if err != nil {
		return nil, err
	}
	for _, problem := range validation.SchemaErrors(value, root) {
		c.logger.Warn("collected data does not match the schema", "path", problem.Path, "message", problem.Message)
		if err := driver.Info(ctx, fmt.Sprintf("warning: %s", problem.Error())); err != nil {
			return nil, err
		}
	}
	return value, nil
}

// CollectDefinition runs Collect for every form of def in display order.
// initial holds per-form starting data layered over each form's form_data.
// Forms whose schema is not an inline object are passed through unchanged.
func CollectDefinition(ctx context.Context, driver Driver, def *definition.Definition, initial map[string]any, opts ...Option) (map[string]any, error) {
	out := make(map[string]any, len(def.Forms()))
	for _, form := range def.Forms() {
		seed, err := document.Normalize(initial[form.Name])
		if err != nil {
			return nil, fmt.Errorf("prompt: %s: %w", form.Name, err)
		}
		defaults := merge.Merge(form.FormData, seed)
		if _, ok := form.Schema.(*document.Object); !ok {
			out[form.Name] = defaults
			continue
		}
		if err := driver.Info(ctx, fmt.Sprintf("== %s ==", form.Name)); err != nil {
			return nil, err
		}
		value, err := Collect(ctx, driver, form.Schema, defaults, opts...)
		if err != nil {
			return nil, fmt.Errorf("prompt: %s: %w", form.Name, err)
		}
		out[form.Name] = value
	}
	return out, nil
}

// value prompts for one schema node. The boolean result is false when an
// optional value was left empty and should be omitted.
func (c *collector) value(ctx context.Context, schema *document.Object, path, name string, required bool, current any, depth int) (any, bool, error) {
	if depth > MaxDepth {
		return nil, false, fmt.Errorf("%w at %q", ErrTooDeep, path)
	}
	if target := c.deref(schema); target != nil {
		return c.value(ctx, target, path, name, required, current, depth+1)
	}
	if constant, ok := schema.Get("const"); ok {
		return document.Clone(constant), true, nil
	}

	q := newQuestion(schema, path, name, required)
	if enum, ok := schema.Get("enum"); ok {
		if values, ok := enum.([]any); ok && len(values) > 0 {
			return c.enum(ctx, q, values, current)
		}
	}

	switch schemaType(schema) {
	case "object":
		return c.object(ctx, schema, path, current, depth)
	case "array":
		return c.array(ctx, schema, q, current, depth)
	case "boolean":
		return c.boolean(ctx, q, current)
	case "integer", "number":
		return c.number(ctx, q, schemaType(schema) == "integer", current)
	case "null":
		return nil, true, nil
	default:
		return c.text(ctx, schema, q, current)
	}
}

func (c *collector) deref(schema *document.Object) *document.Object {
	ref, ok := schema.Get("$ref")
	if !ok {
		return nil
	}
	text, _ := ref.(string)
	if !strings.HasPrefix(text, "#") {
		c.logger.Debug("skipping non-local $ref", "ref", text)
		return nil
	}
	var node any = c.root
	for _, part := range strings.Split(strings.TrimPrefix(strings.TrimPrefix(text, "#"), "/"), "/") {
		if part == "" {
			continue
		}
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		obj, ok := node.(*document.Object)
		if !ok {
			return nil
		}
		if node, ok = obj.Get(part); !ok {
			return nil
		}
	}
	target, _ := node.(*document.Object)
	return target
}

func (c *collector) object(ctx context.Context, schema *document.Object, path string, current any, depth int) (any, bool, error) {
	out := document.NewObject()
	if existing, ok := current.(*document.Object); ok {
		out = existing.Clone()
	}
	required := map[string]bool{}
	if list, ok := schema.Get("required"); ok {
		names, _ := list.([]any)
		for _, name := range names {
			if s, ok := name.(string); ok {
				required[s] = true
			}
		}
	}
	props, _ := schema.Get("properties")
	properties, _ := props.(*document.Object)

	var err error
	properties.Range(func(name string, child any) bool {
		childSchema, ok := child.(*document.Object)
		if !ok {
			return true
		}
		existing, _ := out.Get(name)
		var value any
		var keep bool
		value, keep, err = c.value(ctx, childSchema, joinPath(path, name), name, required[name], existing, depth+1)
		if err != nil {
			return false
		}
		if keep {
			out.Set(name, value)
		} else {
			out.Delete(name)
		}
		return true
	})
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (c *collector) array(ctx context.Context, schema *document.Object, q question, current any, depth int) (any, bool, error) {
	itemsValue, _ := schema.Get("items")
	items, _ := itemsValue.(*document.Object)
	if items == nil {
		items = document.NewObject()
	}
	if target := c.deref(items); target != nil {
		items = target
	}
	existing, _ := current.([]any)

	if enum, ok := items.Get("enum"); ok {
		if values, ok := enum.([]any); ok && len(values) > 0 {
			return c.multiSelect(ctx, q, values, existing)
		}
	}

	var out []any
	if len(existing) > 0 {
		keep, err := c.driver.Confirm(ctx, ConfirmConfig{
			Message: fmt.Sprintf("Keep the %d existing %s?", len(existing), plural(len(existing), "item")),
			Default: true,
			Help:    q.help,
		})
		if err != nil {
			return nil, false, err
		}
		if keep {
			out = append(out, document.Clone(existing).([]any)...)
		}
	}

	for {
		if q.rules.maxItems >= 0 && len(out) >= q.rules.maxItems {
			break
		}
		if q.rules.minItems < 0 || len(out) >= q.rules.minItems {
			more, err := c.driver.Confirm(ctx, ConfirmConfig{
				Message: fmt.Sprintf("Add an item to %s?", q.label),
				Help:    q.help,
			})
			if err != nil {
				return nil, false, err
			}
			if !more {
				break
			}
		}
		itemPath := fmt.Sprintf("%s[%d]", q.path, len(out))
		value, keep, err := c.value(ctx, items, itemPath, itemPath, true, nil, depth+1)
		if err != nil {
			return nil, false, err
		}
		if keep {
			out = append(out, value)
		}
	}

	if len(out) == 0 && !q.rules.required {
		return nil, false, nil
	}
	if out == nil {
		out = []any{}
	}
	return out, true, nil
}

func (c *collector) multiSelect(ctx context.Context, q question, values, existing []any) (any, bool, error) {
	options := formatAll(values)
	var defaults []int
	for _, item := range existing {
		if idx := indexOfValue(values, item); idx >= 0 {
			defaults = append(defaults, idx)
		}
	}
	for {
		indices, err := c.driver.MultiSelect(ctx, SelectConfig{
			Message:  q.label,
			Options:  options,
			Defaults: defaults,
			Help:     q.help,
		})
		if err != nil {
			return nil, false, err
		}
		selected := make([]any, 0, len(indices))
		for _, idx := range indices {
			if idx >= 0 && idx < len(values) {
				selected = append(selected, document.Clone(values[idx]))
			}
		}
		if problem := q.rules.checkItems(len(selected)); problem != "" {
			if err := c.invalid(ctx, q, problem); err != nil {
				return nil, false, err
			}
			continue
		}
		return selected, true, nil
	}
}

func (c *collector) enum(ctx context.Context, q question, values []any, current any) (any, bool, error) {
	idx, err := c.driver.Select(ctx, SelectConfig{
		Message:      q.label,
		Options:      formatAll(values),
		DefaultIndex: indexOfValue(values, current),
		Help:         q.help,
	})
	if err != nil {
		return nil, false, err
	}
	if idx < 0 || idx >= len(values) {
		return nil, false, fmt.Errorf("prompt: %s: selection out of range", q.path)
	}
	return document.Clone(values[idx]), true, nil
}

func (c *collector) boolean(ctx context.Context, q question, current any) (any, bool, error) {
	def, _ := current.(bool)
	answer, err := c.driver.Confirm(ctx, ConfirmConfig{Message: q.label, Default: def, Help: q.help})
	if err != nil {
		return nil, false, err
	}
	return answer, true, nil
}

func (c *collector) number(ctx context.Context, q question, integer bool, current any) (any, bool, error) {
	def := ""
	if current != nil {
		if _, ok := document.AsFloat(current); ok {
			def = template.Format(current)
		}
	}
	for {
		input, err := c.driver.Input(ctx, InputConfig{Message: q.label, Default: def, Help: q.help})
		if err != nil {
			return nil, false, err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			if !q.rules.required {
				return nil, false, nil
			}
			if err := c.invalid(ctx, q, "required"); err != nil {
				return nil, false, err
			}
			continue
		}

		var parsed any
		var number float64
		if integer {
			i, perr := strconv.ParseInt(input, 10, 64)
			parsed, number, err = i, float64(i), perr
		} else {
			f, perr := strconv.ParseFloat(input, 64)
			parsed, number, err = f, f, perr
		}
		if err != nil {
			if err := c.invalid(ctx, q, "not a number"); err != nil {
				return nil, false, err
			}
			continue
		}
		if problem := q.rules.checkNumber(number); problem != "" {
			if err := c.invalid(ctx, q, problem); err != nil {
				return nil, false, err
			}
			continue
		}
		return parsed, true, nil
	}
}

func (c *collector) text(ctx context.Context, schema *document.Object, q question, current any) (any, bool, error) {
	def := ""
	if current != nil {
		def = template.Format(current)
	}
	format, _ := schema.Get("format")
	for {
		var input string
		var err error
		switch format {
		case "password":
			input, err = c.driver.Password(ctx, InputConfig{Message: q.label, Default: def, Help: q.help})
		case "textarea":
			input, err = c.driver.TextArea(ctx, TextAreaConfig{Message: q.label, Default: def, Help: q.help})
		default:
			input, err = c.driver.Input(ctx, InputConfig{Message: q.label, Default: def, Help: q.help})
		}
		if err != nil {
			return nil, false, err
		}
		if input == "" && !q.rules.required {
			return nil, false, nil
		}
		if problem := q.rules.checkString(input); problem != "" {
			if err := c.invalid(ctx, q, problem); err != nil {
				return nil, false, err
			}
			continue
		}
		return input, true, nil
	}
}

func (c *collector) invalid(ctx context.Context, q question, problem string) error {
	return c.driver.Info(ctx, fmt.Sprintf("Invalid %s: %s", q.path, problem))
}

type question struct {
	path  string
	label string
	help  string
	rules rules
}

func newQuestion(schema *document.Object, path, name string, required bool) question {
	q := question{path: path, label: name, rules: rulesOf(schema, required)}
	if q.path == "" {
		q.path = "value"
	}
	if title, ok := schema.Get("title"); ok {
		if s, ok := title.(string); ok && s != "" {
			q.label = s
		}
	}
	if q.label == "" {
		q.label = q.path
	}
	if description, ok := schema.Get("description"); ok {
		q.help, _ = description.(string)
	}
	return q
}

// rules are the keywords checked while prompting. Negative bounds are unset.
type rules struct {
	required  bool
	minLength int
	maxLength int
	pattern   *regexp.Regexp
	minimum   *float64
	maximum   *float64
	exclMin   *float64
	exclMax   *float64
	minItems  int
	maxItems  int
}

func rulesOf(schema *document.Object, required bool) rules {
	r := rules{
		required:  required,
		minLength: intKeyword(schema, "minLength"),
		maxLength: intKeyword(schema, "maxLength"),
		minItems:  intKeyword(schema, "minItems"),
		maxItems:  intKeyword(schema, "maxItems"),
		minimum:   floatKeyword(schema, "minimum"),
		maximum:   floatKeyword(schema, "maximum"),
		exclMin:   floatKeyword(schema, "exclusiveMinimum"),
		exclMax:   floatKeyword(schema, "exclusiveMaximum"),
	}
	if pattern, ok := schema.Get("pattern"); ok {
		if s, ok := pattern.(string); ok {
			// Patterns Go cannot compile are left to the final schema check.
			r.pattern, _ = regexp.Compile(s)
		}
	}
	return r
}

func (r rules) checkString(value string) string {
	length := len([]rune(value))
	switch {
	case r.required && value == "":
		return "required"
	case r.minLength >= 0 && length < r.minLength:
		return fmt.Sprintf("must be at least %d characters", r.minLength)
	case r.maxLength >= 0 && length > r.maxLength:
		return fmt.Sprintf("must be at most %d characters", r.maxLength)
	case r.pattern != nil && !r.pattern.MatchString(value):
		return fmt.Sprintf("must match %s", r.pattern)
	}
	return ""
}

func (r rules) checkNumber(value float64) string {
	switch {
	case r.minimum != nil && value < *r.minimum:
		return fmt.Sprintf("must be >= %s", template.FormatFloat(*r.minimum))
	case r.maximum != nil && value > *r.maximum:
		return fmt.Sprintf("must be <= %s", template.FormatFloat(*r.maximum))
	case r.exclMin != nil && value <= *r.exclMin:
		return fmt.Sprintf("must be > %s", template.FormatFloat(*r.exclMin))
	case r.exclMax != nil && value >= *r.exclMax:
		return fmt.Sprintf("must be < %s", template.FormatFloat(*r.exclMax))
	}
	return ""
}

func (r rules) checkItems(count int) string {
	switch {
	case r.minItems >= 0 && count < r.minItems:
		return fmt.Sprintf("select at least %d", r.minItems)
	case r.maxItems >= 0 && count > r.maxItems:
		return fmt.Sprintf("select at most %d", r.maxItems)
	}
	return ""
}

func intKeyword(schema *document.Object, key string) int {
	value, ok := schema.Get(key)
	if !ok {
		return -1
	}
	if n, ok := template.ToInt(value); ok && n >= 0 {
		return n
	}
	return -1
}

func floatKeyword(schema *document.Object, key string) *float64 {
	value, ok := schema.Get(key)
	if !ok {
		return nil
	}
	f, ok := document.AsFloat(value)
	if !ok {
		return nil
	}
	return &f
}

func schemaType(schema *document.Object) string {
	if value, ok := schema.Get("type"); ok {
		switch typed := value.(type) {
		case string:
			return typed
		case []any:
			for _, item := range typed {
				if s, ok := item.(string); ok && s != "null" {
					return s
				}
			}
		}
	}
	switch {
	case schema.Has("properties"):
		return "object"
	case schema.Has("items"):
		return "array"
	}
	return "string"
}

func formatAll(values []any) []string {
	out := make([]string, len(values))
	for i, value := range values {
		out[i] = template.Format(value)
	}
	return out
}

func indexOfValue(values []any, current any) int {
	if current == nil {
		return -1
	}
	for i, value := range values {
		if document.Equal(value, current) {
			return i
		}
	}
	return -1
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
