package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// JSONOptions controls EncodeJSON.
type JSONOptions struct {
	// Indent is the number of spaces per level; zero produces compact output.
	Indent int
	// SortKeys orders object keys lexically instead of by insertion.
	SortKeys bool
}

// EncodeJSON serializes v preserving object key order. HTML characters are
// not escaped.
func EncodeJSON(v any, opts JSONOptions) ([]byte, error) {
	value, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	enc := &jsonEncoder{opts: opts}
	enc.strings = json.NewEncoder(&enc.scratch)
	enc.strings.SetEscapeHTML(false)
	if err := enc.write(value, 0); err != nil {
		return nil, err
	}
	return enc.buf.Bytes(), nil
}

type jsonEncoder struct {
	opts    JSONOptions
	buf     bytes.Buffer
	scratch bytes.Buffer
	strings *json.Encoder
}

func (e *jsonEncoder) write(v any, depth int) error {
	switch typed := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case bool:
		e.buf.WriteString(strconv.FormatBool(typed))
	case int64:
		e.buf.WriteString(strconv.FormatInt(typed, 10))
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return fmt.Errorf("document: cannot encode %v as JSON", typed)
		}
		raw, err := json.Marshal(typed)
		if err != nil {
			return err
		}
		e.buf.Write(raw)
	case string:
		e.scratch.Reset()
		if err := e.strings.Encode(typed); err != nil {
			return err
		}
		e.buf.Write(bytes.TrimSuffix(e.scratch.Bytes(), []byte("\n")))
	case []any:
		if len(typed) == 0 {
			e.buf.WriteString("[]")
			return nil
		}
		e.buf.WriteByte('[')
		for i, item := range typed {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			e.newline(depth + 1)
			if err := e.write(item, depth+1); err != nil {
				return err
			}
		}
		e.newline(depth)
		e.buf.WriteByte(']')
	case *Object:
		if typed.Len() == 0 {
			e.buf.WriteString("{}")
			return nil
		}
		keys := typed.Keys()
		if e.opts.SortKeys {
			sort.Strings(keys)
		}
		e.buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			e.newline(depth + 1)
			if err := e.write(key, depth+1); err != nil {
				return err
			}
			e.buf.WriteByte(':')
			if e.opts.Indent > 0 {
				e.buf.WriteByte(' ')
			}
			value, _ := typed.Get(key)
			if err := e.write(value, depth+1); err != nil {
				return err
			}
		}
		e.newline(depth)
		e.buf.WriteByte('}')
	default:
		return fmt.Errorf("document: cannot encode %T as JSON", v)
	}
	return nil
}

func (e *jsonEncoder) newline(depth int) {
	if e.opts.Indent <= 0 {
		return
	}
	e.buf.WriteByte('\n')
	e.buf.WriteString(strings.Repeat(" ", depth*e.opts.Indent))
}

// YAMLOptions controls EncodeYAML.
type YAMLOptions struct {
	// Indent defaults to 2.
	Indent int
}

// EncodeYAML serializes v preserving object key order. Strings containing a
// newline are written in literal block style.
func EncodeYAML(v any, opts YAMLOptions) ([]byte, error) {
	value, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	node, err := yamlNode(value)
	if err != nil {
		return nil, err
	}
	indent := opts.Indent
	if indent <= 0 {
		indent = 2
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(indent)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("document: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("document: encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func yamlNode(v any) (*yaml.Node, error) {
	switch typed := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(typed)}, nil
	case int64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(typed, 10)}, nil
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: yamlFloat(typed)}, nil
	case string:
		return yamlString(typed), nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range typed {
			child, err := yamlNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case *Object:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		var err error
		typed.Range(func(key string, value any) bool {
			var child *yaml.Node
			child, err = yamlNode(value)
			if err != nil {
				return false
			}
			node.Content = append(node.Content, yamlString(key), child)
			return true
		})
		if err != nil {
			return nil, err
		}
		return node, nil
	}
	return nil, fmt.Errorf("document: cannot encode %T as YAML", v)
}

// yaml11Bools are plain scalars a YAML 1.1 reader takes for booleans.
var yaml11Bools = map[string]struct{}{
	"y": {}, "Y": {}, "yes": {}, "Yes": {}, "YES": {},
	"n": {}, "N": {}, "no": {}, "No": {}, "NO": {},
	"on": {}, "On": {}, "ON": {},
	"off": {}, "Off": {}, "OFF": {},
	"true": {}, "True": {}, "TRUE": {},
	"false": {}, "False": {}, "FALSE": {},
}

func yamlString(s string) *yaml.Node {
	node := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.Contains(s, "\n") {
		node.Style = yaml.LiteralStyle
	} else if _, ok := yaml11Bools[s]; ok {
		node.Style = yaml.DoubleQuotedStyle
	}
	return node
}

func yamlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	text := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(text, ".eE") {
		text += ".0"
	}
	return text
}

// EncodeTOML serializes a mapping as TOML. Keys are written in lexical order
// and null values are omitted, TOML having no null.
func EncodeTOML(v any) ([]byte, error) {
	value, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	obj, ok := value.(*Object)
	if !ok {
		return nil, fmt.Errorf("document: toml root must be an object, got %s", TypeName(value))
	}
	plain, err := tomlPlain(obj)
	if err != nil {
		return nil, err
	}
	out, err := toml.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("document: encode toml: %w", err)
	}
	return out, nil
}

var errTOMLNull = errors.New("document: toml arrays cannot hold null")

func tomlPlain(v any) (any, error) {
	switch typed := v.(type) {
	case *Object:
		out := make(map[string]any, typed.Len())
		var err error
		typed.Range(func(key string, value any) bool {
			if value == nil {
				return true
			}
			out[key], err = tomlPlain(value)
			return err == nil
		})
		return out, err
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			if item == nil {
				return nil, errTOMLNull
			}
			value, err := tomlPlain(item)
			if err != nil {
				return nil, err
			}
			out[i] = value
		}
		return out, nil
	default:
		return v, nil
	}
}
