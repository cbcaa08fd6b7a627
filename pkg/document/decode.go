package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// maxYAMLNodes bounds alias expansion so hostile documents cannot explode.
const maxYAMLNodes = 1 << 20

// Decode parses data in the given format into a document value. The source
// name only decorates errors.
func Decode(format Format, source string, data []byte) (any, error) {
	var (
		value any
		err   error
	)
	switch format {
	case FormatJSON:
		value, err = decodeJSON(data)
	case FormatYAML:
		value, err = decodeYAML(data)
	case FormatTOML:
		value, err = decodeTOML(data)
	default:
		return nil, fmt.Errorf("document: unsupported format %q", format)
	}
	if err != nil {
		return nil, &ParseError{Source: source, Format: format, Err: err}
	}
	return value, nil
}

// DecodeObject parses data and requires a mapping at the root.
func DecodeObject(format Format, source string, data []byte) (*Object, error) {
	value, err := Decode(format, source, data)
	if err != nil {
		return nil, err
	}
	obj, ok := value.(*Object)
	if !ok {
		return nil, &ParseError{Source: source, Format: format, Err: fmt.Errorf("%w (got %s)", ErrNotObject, TypeName(value))}
	}
	return obj, nil
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	value, err := readJSONValue(dec)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return value, nil
}

func readJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch typed := tok.(type) {
	case json.Delim:
		switch typed {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				value, err := readJSONValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			list := []any{}
			for dec.More() {
				value, err := readJSONValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", typed)
	case json.Number:
		return numberValue(typed)
	default:
		return typed, nil
	}
}

func decodeYAML(data []byte) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 {
		return nil, nil
	}
	w := &yamlWalker{}
	return w.value(&root)
}

type yamlWalker struct {
	visited int
}

func (w *yamlWalker) value(n *yaml.Node) (any, error) {
	w.visited++
	if w.visited > maxYAMLNodes {
		return nil, errors.New("yaml: document expands to too many nodes")
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return w.value(n.Content[0])
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("yaml: line %d: unresolved alias", n.Line)
		}
		return w.value(n.Alias)
	case yaml.MappingNode:
		if tag := n.ShortTag(); tag != "!!map" {
			return nil, fmt.Errorf("yaml: line %d: unsupported tag %s", n.Line, tag)
		}
		return w.mapping(n)
	case yaml.SequenceNode:
		if tag := n.ShortTag(); tag != "!!seq" {
			return nil, fmt.Errorf("yaml: line %d: unsupported tag %s", n.Line, tag)
		}
		list := make([]any, 0, len(n.Content))
		for _, child := range n.Content {
			value, err := w.value(child)
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		}
		return list, nil
	case yaml.ScalarNode:
		return yamlScalar(n)
	}
	return nil, fmt.Errorf("yaml: line %d: unexpected node kind %d", n.Line, n.Kind)
}

func (w *yamlWalker) mapping(n *yaml.Node) (*Object, error) {
	obj := NewObject()
	explicit := make(map[string]struct{})
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valueNode := n.Content[i], n.Content[i+1]
		if keyNode.Kind == yaml.ScalarNode && keyNode.ShortTag() == "!!merge" {
			if err := w.merge(obj, explicit, valueNode); err != nil {
				return nil, err
			}
			continue
		}
		key, err := yamlKey(keyNode)
		if err != nil {
			return nil, err
		}
		value, err := w.value(valueNode)
		if err != nil {
			return nil, err
		}
		obj.Set(key, value)
		explicit[key] = struct{}{}
	}
	return obj, nil
}

// merge applies a << merge key. Explicit keys always win over merged ones.
func (w *yamlWalker) merge(dst *Object, explicit map[string]struct{}, n *yaml.Node) error {
	sources := []*yaml.Node{n}
	if n.Kind == yaml.SequenceNode {
		sources = n.Content
	}
	for _, src := range sources {
		value, err := w.value(src)
		if err != nil {
			return err
		}
		merged, ok := value.(*Object)
		if !ok {
			return fmt.Errorf("yaml: line %d: merge value is not a mapping", n.Line)
		}
		merged.Range(func(key string, value any) bool {
			if _, ok := explicit[key]; ok {
				return true
			}
			if !dst.Has(key) {
				dst.Set(key, value)
			}
			return true
		})
	}
	return nil
}

func yamlKey(n *yaml.Node) (string, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("yaml: line %d: mapping keys must be scalars", n.Line)
	}
	if _, err := yamlScalar(n); err != nil {
		return "", err
	}
	return n.Value, nil
}

func yamlScalar(n *yaml.Node) (any, error) {
	switch tag := n.ShortTag(); tag {
	case "!!str", "!!timestamp":
		return n.Value, nil
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("yaml: line %d: invalid integer %q", n.Line, n.Value)
		}
		return f, nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return f, nil
	case "!!binary":
		var s string
		if err := n.Decode(&s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("yaml: line %d: unsupported tag %s", n.Line, tag)
	}
}

func decodeTOML(data []byte) (any, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return Normalize(raw)
}
