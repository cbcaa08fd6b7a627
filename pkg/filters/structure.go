package filters

import (
	"fmt"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
	"github.com/goliatone/go-urlform/pkg/validation"
)

// prune drops null values, empty strings and empty containers bottom-up, so a
// mapping emptied by pruning disappears too. Pruning a pruned value is a
// no-op.
func prune(in any, _ template.Args) (any, error) {
	out, _ := pruneValue(in)
	if out == nil {
		switch in.(type) {
		case []any:
			return []any{}, nil
		case *document.Object, map[string]any:
			return document.NewObject(), nil
		}
	}
	return out, nil
}

// pruneValue returns the pruned value and whether anything is left of it.
func pruneValue(v any) (any, bool) {
	switch typed := v.(type) {
	case nil:
		return nil, false
	case string:
		return typed, typed != ""
	case []any:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			if pruned, keep := pruneValue(item); keep {
				out = append(out, pruned)
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	}
	if entries, ok := template.Entries(v); ok {
		out := document.NewObject()
		for _, entry := range entries {
			if pruned, keep := pruneValue(entry.Value); keep {
				out.Set(entry.Key, pruned)
			}
		}
		if out.Len() == 0 {
			return nil, false
		}
		return out, true
	}
	return v, true
}

// fromEntries builds a mapping from [key, value] pairs. A repeated key keeps
// its first position and takes the last value.
func fromEntries(in any, _ template.Args) (any, error) {
	items, err := template.Iterate(in)
	if err != nil {
		return nil, fmt.Errorf("from_entries: %w", err)
	}
	out := document.NewObject()
	for i, item := range items {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("from_entries: item %d is not a [key, value] pair", i)
		}
		key, ok := pair[0].(string)
		if !ok {
			key = template.Format(pair[0])
		}
		out.Set(key, pair[1])
	}
	return out, nil
}

// schemaErrors validates the input against the schema argument and returns a
// list of {path, field, message} mappings, empty when the input is valid.
func schemaErrors(in any, args template.Args) (any, error) {
	schema, ok := args.Arg(0, "schema")
	if !ok {
		return nil, fmt.Errorf("schema_errors: missing schema argument")
	}
	errs := validation.SchemaErrors(in, schema)
	out := make([]any, len(errs))
	for i, e := range errs {
		item := document.NewObject()
		item.Set("path", e.Path)
		item.Set("field", e.Field)
		item.Set("message", e.Message)
		out[i] = item
	}
	return out, nil
}
