package document

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeJSONPreservesOrderAndIntegers(t *testing.T) {
	value, err := Decode(FormatJSON, "inline", []byte(`{"zeta": 1, "alpha": {"b": 1.5, "a": [true, null, "x"]}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	obj := value.(*Object)
	if diff := cmp.Diff([]string{"zeta", "alpha"}, obj.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	zeta, _ := obj.Get("zeta")
	if _, ok := zeta.(int64); !ok {
		t.Fatalf("expected int64, got %T", zeta)
	}
	want := map[string]any{
		"zeta":  int64(1),
		"alpha": map[string]any{"b": 1.5, "a": []any{true, nil, "x"}},
	}
	if diff := cmp.Diff(want, ToPlain(obj)); diff != "" {
		t.Fatalf("value mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	_, err := Decode(FormatJSON, "bad.json", []byte(`{} {}`))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Source != "bad.json" || parseErr.Format != FormatJSON {
		t.Fatalf("unexpected parse error fields: %+v", parseErr)
	}
}

func TestDecodeYAMLSafeTags(t *testing.T) {
	_, err := Decode(FormatYAML, "evil.yaml", []byte("a: !!python/object:os.system ls\n"))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError for custom tag, got %v", err)
	}

	_, err = Decode(FormatYAML, "evil.yaml", []byte("a: !custom {x: 1}\n"))
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError for local tag, got %v", err)
	}
}

func TestDecodeYAMLAnchorsAndMerge(t *testing.T) {
	src := `
base: &base
  name: demo
  size: 2
item:
  <<: *base
  size: 3
list: [*base]
`
	value, err := Decode(FormatYAML, "", []byte(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{
		"base": map[string]any{"name": "demo", "size": int64(2)},
		"item": map[string]any{"name": "demo", "size": int64(3)},
		"list": []any{map[string]any{"name": "demo", "size": int64(2)}},
	}
	if diff := cmp.Diff(want, ToPlain(value)); diff != "" {
		t.Fatalf("value mismatch (-want +got):\n%s", diff)
	}
	item, _ := value.(*Object).Get("item")
	if diff := cmp.Diff([]string{"name", "size"}, item.(*Object).Keys()); diff != "" {
		t.Fatalf("merged key order mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEmptyYAML(t *testing.T) {
	value, err := Decode(FormatYAML, "", []byte(""))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if value != nil {
		t.Fatalf("expected nil, got %#v", value)
	}
}

func TestDecodeObjectRequiresMapping(t *testing.T) {
	_, err := DecodeObject(FormatJSON, "list.json", []byte(`[1]`))
	if !errors.Is(err, ErrNotObject) {
		t.Fatalf("expected ErrNotObject, got %v", err)
	}
}

func TestEncodeJSONIndentAndOrder(t *testing.T) {
	obj := NewObject()
	obj.Set("b", "<x>")
	obj.Set("a", []any{int64(1), 2.5})
	obj.Set("c", NewObject())

	got, err := EncodeJSON(obj, JSONOptions{Indent: 2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := "{\n  \"b\": \"<x>\",\n  \"a\": [\n    1,\n    2.5\n  ],\n  \"c\": {}\n}"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Fatalf("json mismatch (-want +got):\n%s", diff)
	}

	sorted, err := EncodeJSON(obj, JSONOptions{SortKeys: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if diff := cmp.Diff(`{"a":[1,2.5],"b":"<x>","c":{}}`, string(sorted)); diff != "" {
		t.Fatalf("sorted json mismatch (-want +got):\n%s", diff)
	}
}

func representative() *Object {
	inner := NewObject()
	inner.Set("channels", []any{"conda-forge", "bioconda"})
	inner.Set("platforms", []any{"linux-64"})
	deps := NewObject()
	deps.Set("python", ">=3.10")
	deps.Set("count", int64(3))
	deps.Set("ratio", 0.25)
	deps.Set("enabled", true)
	root := NewObject()
	root.Set("project", inner)
	root.Set("dependencies", deps)
	root.Set("description", "line one\nline two\n")
	root.Set("version", "1.0")
	return root
}

func TestYAMLRoundTrip(t *testing.T) {
	m := representative()
	out, err := EncodeYAML(m, YAMLOptions{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(out), "description: |") {
		t.Fatalf("expected literal block style, got:\n%s", out)
	}
	if !strings.Contains(string(out), `version: "1.0"`) {
		t.Fatalf("expected quoted numeric string, got:\n%s", out)
	}
	back, err := Decode(FormatYAML, "", out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Equal(m, back) {
		t.Fatalf("round trip mismatch:\n%s", cmp.Diff(ToPlain(m), ToPlain(back)))
	}
	if diff := cmp.Diff(m.Keys(), back.(*Object).Keys()); diff != "" {
		t.Fatalf("yaml key order mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeYAMLQuotesYAML11Booleans(t *testing.T) {
	m := NewObject()
	for _, v := range []string{"y", "N", "yes", "Off", "on", "TRUE", "no"} {
		m.Set("k_"+v, v)
	}
	m.Set("y", "key")
	m.Set("plain", "yesterday")

	out, err := EncodeYAML(m, YAMLOptions{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, want := range []string{`k_y: "y"`, `k_N: "N"`, `k_yes: "yes"`, `k_Off: "Off"`, `k_on: "on"`, `k_TRUE: "TRUE"`, `k_no: "no"`, `"y": key`, "plain: yesterday"} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}

	back, err := Decode(FormatYAML, "", out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Equal(m, back) {
		t.Fatalf("round trip mismatch:\n%s", cmp.Diff(ToPlain(m), ToPlain(back)))
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	m := representative()
	out, err := EncodeTOML(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode(FormatTOML, "", out)
	if err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if !Equal(m, back) {
		t.Fatalf("round trip mismatch:\n%s", cmp.Diff(ToPlain(m), ToPlain(back)))
	}
}

func TestEncodeTOMLRequiresObject(t *testing.T) {
	if _, err := EncodeTOML([]any{int64(1)}); err == nil {
		t.Fatalf("expected error for list root")
	}
}

func TestEncodeTOMLDropsNull(t *testing.T) {
	obj := NewObject()
	obj.Set("name", "demo")
	obj.Set("gone", nil)
	out, err := EncodeTOML(obj)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(string(out), "gone") {
		t.Fatalf("expected null key to be dropped:\n%s", out)
	}
}

func TestObjectSetKeepsPosition(t *testing.T) {
	obj := NewObject()
	obj.Set("a", 1)
	obj.Set("b", 2)
	obj.Set("a", 3)
	if diff := cmp.Diff([]string{"a", "b"}, obj.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if !obj.Delete("a") || obj.Has("a") {
		t.Fatalf("expected a to be deleted")
	}
	if diff := cmp.Diff([]string{"b"}, obj.Keys()); diff != "" {
		t.Fatalf("keys mismatch after delete (-want +got):\n%s", diff)
	}
}

func TestNormalizeGoValues(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	value, err := Normalize(map[string]any{
		"z":     []string{"x"},
		"a":     uint8(4),
		"inner": payload{Name: "n", Count: 2},
		"bytes": []byte("raw"),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	obj := value.(*Object)
	if diff := cmp.Diff([]string{"a", "bytes", "inner", "z"}, obj.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	want := map[string]any{
		"a":     int64(4),
		"bytes": "raw",
		"inner": map[string]any{"name": "n", "count": int64(2)},
		"z":     []any{"x"},
	}
	if diff := cmp.Diff(want, ToPlain(obj)); diff != "" {
		t.Fatalf("value mismatch (-want +got):\n%s", diff)
	}
}

func TestEqualIgnoresOrderAndNumericKind(t *testing.T) {
	a := NewObject()
	a.Set("x", int64(1))
	a.Set("y", "s")
	b := NewObject()
	b.Set("y", "s")
	b.Set("x", 1.0)
	if !Equal(a, b) {
		t.Fatalf("expected objects to compare equal")
	}
	b.Set("x", 2.0)
	if Equal(a, b) {
		t.Fatalf("expected objects to differ")
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{
		"a/b.json":        FormatJSON,
		"x.YAML":          FormatYAML,
		"x.yml":           FormatYAML,
		"pixi.toml":       FormatTOML,
		"api.yaml#/a/b":   FormatYAML,
		"schema.json?v=1": FormatJSON,
	}
	for name, want := range cases {
		got, err := FormatFromPath(name)
		if err != nil || got != want {
			t.Fatalf("FormatFromPath(%q) = %q, %v; want %q", name, got, err, want)
		}
	}
	if _, err := FormatFromPath("notes.txt"); err == nil {
		t.Fatalf("expected error for unknown suffix")
	}
}
