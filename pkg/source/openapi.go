package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-urlform/pkg/document"
)

const componentSchemasPrefix = "/components/schemas/"

// openAPISchema extracts a component schema from an OpenAPI document. Other
// components it references are hoisted under "definitions" so the result
// is a standalone Draft-7 schema.
func openAPISchema(ctx context.Context, data []byte, location string, format document.Format, fragment string) (any, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	spec, err := loader.LoadFromData(data)
	if err != nil {
		return nil, &document.ParseError{Source: location, Format: format, Err: err}
	}

	name := unescapePointerToken(strings.TrimPrefix(fragment, componentSchemasPrefix))
	root, err := componentSchema(spec, name)
	if err != nil {
		return nil, fmt.Errorf("source: %s: %w", location, err)
	}

	defs := document.NewObject()
	seen := map[string]struct{}{name: {}}
	pending := rewriteComponentRefs(root, seen, nil)
	for len(pending) > 0 {
		next := pending[0]
		pending = pending[1:]
		schema, err := componentSchema(spec, next)
		if err != nil {
			return nil, fmt.Errorf("source: %s: %w", location, err)
		}
		pending = rewriteComponentRefs(schema, seen, pending)
		defs.Set(next, schema)
	}
	if self := "#/definitions/" + name; containsRef(root, self) || containsRef(defs, self) {
		defs.Set(name, root.Clone())
	}
	if defs.Len() > 0 {
		existing, _ := root.Get("definitions")
		if obj, ok := existing.(*document.Object); ok {
			defs.Range(func(key string, value any) bool {
				obj.Set(key, value)
				return true
			})
		} else {
			root.Set("definitions", defs)
		}
	}
	return root, nil
}

func componentSchema(spec *openapi3.T, name string) (*document.Object, error) {
	if spec.Components == nil {
		return nil, fmt.Errorf("component schema %q not found", name)
	}
	ref, ok := spec.Components.Schemas[name]
	if !ok || ref == nil || ref.Value == nil {
		return nil, fmt.Errorf("component schema %q not found", name)
	}
	raw, err := json.Marshal(ref.Value)
	if err != nil {
		return nil, fmt.Errorf("encode component %q: %w", name, err)
	}
	return document.DecodeObject(document.FormatJSON, name, raw)
}

// rewriteComponentRefs points "#/components/schemas/X" refs at
// "#/definitions/X" and queues components not seen yet.
func rewriteComponentRefs(v any, seen map[string]struct{}, pending []string) []string {
	switch typed := v.(type) {
	case *document.Object:
		for _, key := range typed.Keys() {
			value, _ := typed.Get(key)
			if ref, ok := value.(string); ok && key == "$ref" && strings.HasPrefix(ref, "#"+componentSchemasPrefix) {
				target := unescapePointerToken(strings.TrimPrefix(ref, "#"+componentSchemasPrefix))
				typed.Set(key, "#/definitions/"+target)
				if _, ok := seen[target]; !ok {
					seen[target] = struct{}{}
					pending = append(pending, target)
				}
				continue
			}
			pending = rewriteComponentRefs(value, seen, pending)
		}
	case []any:
		for _, item := range typed {
			pending = rewriteComponentRefs(item, seen, pending)
		}
	}
	return pending
}

func containsRef(v any, ref string) bool {
	switch typed := v.(type) {
	case *document.Object:
		found := false
		typed.Range(func(key string, value any) bool {
			if s, ok := value.(string); ok && key == "$ref" && s == ref {
				found = true
			} else {
				found = containsRef(value, ref)
			}
			return !found
		})
		return found
	case []any:
		for _, item := range typed {
			if containsRef(item, ref) {
				return true
			}
		}
	}
	return false
}
