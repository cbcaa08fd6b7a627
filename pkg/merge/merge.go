// Package merge combines default documents with user data.
package merge

import (
	"strings"

	"github.com/goliatone/go-urlform/pkg/document"
)

// Merge combines defaults and overrides into a new value. Mappings merge
// key by key with overrides winning; any other pairing replaces the default
// wholesale, lists included. A nil override never erases a default. Neither
// input is modified and the result shares no containers with them.
func Merge(defaults, overrides any) any {
	if overrides == nil {
		return document.Clone(defaults)
	}
	base, okBase := defaults.(*document.Object)
	over, okOver := overrides.(*document.Object)
	if !okBase || !okOver {
		return document.Clone(overrides)
	}

	out := base.Clone()
	over.Range(func(key string, value any) bool {
		if value == nil {
			if !out.Has(key) {
				out.Set(key, nil)
			}
			return true
		}
		current, _ := out.Get(key)
		out.Set(key, Merge(current, value))
		return true
	})
	return out
}

// All folds Merge over values left to right.
func All(values ...any) any {
	var out any
	for _, value := range values {
		out = Merge(out, value)
	}
	return out
}

const maxRefDepth = 32

// SchemaDefaults builds the document implied by the default keywords of a
// JSON schema. Object schemas collect defaults from their properties, local
// $refs and allOf branches; a default declared on an object overrides the
// defaults of its properties. It returns nil when the schema declares none.
func SchemaDefaults(schema any) any {
	root, ok := schema.(*document.Object)
	if !ok {
		return nil
	}
	return defaultsOf(root, root, 0)
}

func defaultsOf(root, schema *document.Object, depth int) any {
	if schema == nil || depth > maxRefDepth {
		return nil
	}

	var collected any
	if ref, ok := schema.Get("$ref"); ok {
		if target := localRef(root, ref); target != nil {
			collected = Merge(collected, defaultsOf(root, target, depth+1))
		}
	}
	if allOf, ok := schema.Get("allOf"); ok {
		list, _ := allOf.([]any)
		for _, branch := range list {
			if obj, ok := branch.(*document.Object); ok {
				collected = Merge(collected, defaultsOf(root, obj, depth+1))
			}
		}
	}
	if props, ok := schema.Get("properties"); ok {
		if obj, ok := props.(*document.Object); ok {
			fromProps := document.NewObject()
			obj.Range(func(name string, value any) bool {
				child, ok := value.(*document.Object)
				if !ok {
					return true
				}
				if def := defaultsOf(root, child, depth+1); def != nil {
					fromProps.Set(name, def)
				}
				return true
			})
			if fromProps.Len() > 0 {
				collected = Merge(collected, fromProps)
			}
		}
	}
	if def, ok := schema.Get("default"); ok && def != nil {
		collected = Merge(collected, def)
	}
	return collected
}

func localRef(root *document.Object, ref any) *document.Object {
	s, ok := ref.(string)
	if !ok || !strings.HasPrefix(s, "#/") {
		return nil
	}
	var current any = root
	for _, part := range strings.Split(strings.TrimPrefix(s, "#/"), "/") {
		obj, ok := current.(*document.Object)
		if !ok {
			return nil
		}
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		current, ok = obj.Get(part)
		if !ok {
			return nil
		}
	}
	target, _ := current.(*document.Object)
	return target
}
