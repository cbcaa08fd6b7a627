package filters

import (
	"fmt"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
)

// toJSON accepts `indent` (default 2, zero for compact output) and
// `sort_keys`.
func toJSON(in any, args template.Args) (any, error) {
	indent, err := args.Int(0, "indent", 2)
	if err != nil {
		return nil, err
	}
	if indent < 0 {
		indent = 0
	}
	out, err := document.EncodeJSON(in, document.JSONOptions{
		Indent:   indent,
		SortKeys: args.Bool(1, "sort_keys", false),
	})
	if err != nil {
		return nil, fmt.Errorf("to_json: %w", err)
	}
	return string(out), nil
}

func toYAML(in any, args template.Args) (any, error) {
	indent, err := args.Int(0, "indent", 2)
	if err != nil {
		return nil, err
	}
	out, err := document.EncodeYAML(in, document.YAMLOptions{Indent: indent})
	if err != nil {
		return nil, fmt.Errorf("to_yaml: %w", err)
	}
	return string(out), nil
}

func toTOML(in any, _ template.Args) (any, error) {
	out, err := document.EncodeTOML(in)
	if err != nil {
		return nil, fmt.Errorf("to_toml: %w", err)
	}
	return string(out), nil
}

func fromJSON(in any, _ template.Args) (any, error) {
	return decodeString(document.FormatJSON, "from_json", in)
}

func fromYAML(in any, _ template.Args) (any, error) {
	return decodeString(document.FormatYAML, "from_yaml", in)
}

func fromTOML(in any, _ template.Args) (any, error) {
	return decodeString(document.FormatTOML, "from_toml", in)
}

func decodeString(format document.Format, name string, in any) (any, error) {
	text, ok := in.(string)
	if !ok {
		return nil, fmt.Errorf("%s: expected string, got %s", name, document.TypeName(in))
	}
	return document.Decode(format, name, []byte(text))
}
