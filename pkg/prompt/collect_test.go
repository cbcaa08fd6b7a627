package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-urlform/pkg/definition"
	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/source"
)

type stubDriver struct {
	inputs    []string
	passwords []string
	textAreas []string
	confirm   []bool
	selectIdx []int
	multiIdx  [][]int
	infos     []string
	err       error

	inputPos, passPos, textPos, confirmPos, selectPos, multiPos int
}

func next[T any](values []T, pos *int, kind string) (T, error) {
	var zero T
	if *pos >= len(values) {
		return zero, errors.New("no " + kind + " scripted")
	}
	value := values[*pos]
	*pos++
	return value, nil
}

func (s *stubDriver) Input(_ context.Context, _ InputConfig) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return next(s.inputs, &s.inputPos, "input")
}

func (s *stubDriver) Password(_ context.Context, _ InputConfig) (string, error) {
	return next(s.passwords, &s.passPos, "password")
}

func (s *stubDriver) TextArea(_ context.Context, _ TextAreaConfig) (string, error) {
	return next(s.textAreas, &s.textPos, "textarea")
}

func (s *stubDriver) Confirm(_ context.Context, _ ConfirmConfig) (bool, error) {
	return next(s.confirm, &s.confirmPos, "confirm")
}

func (s *stubDriver) Select(_ context.Context, _ SelectConfig) (int, error) {
	return next(s.selectIdx, &s.selectPos, "select")
}

func (s *stubDriver) MultiSelect(_ context.Context, _ SelectConfig) ([]int, error) {
	return next(s.multiIdx, &s.multiPos, "multiselect")
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infos = append(s.infos, msg)
	return nil
}

func decode(t *testing.T, text string) any {
	t.Helper()
	value, err := document.Decode(document.FormatYAML, "inline", []byte(text))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return value
}

func compact(t *testing.T, v any) string {
	t.Helper()
	raw, err := document.EncodeJSON(v, document.JSONOptions{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(raw)
}

func TestCollectWalksSchema(t *testing.T) {
	schema := decode(t, `
type: object
required: [name]
properties:
  name: {type: string, title: Project name, minLength: 2, default: demo}
  channels:
    type: array
    items: {type: string}
  platform: {enum: [linux-64, osx-arm64]}
  features:
    type: array
    items: {enum: [cuda, mkl]}
  count: {type: integer, minimum: 1}
  debug: {type: boolean}
  kind: {const: app}
`)
	driver := &stubDriver{
		inputs:    []string{"x", "pixi", "conda-forge", "zero", "0", "3"},
		confirm:   []bool{true, false, true},
		selectIdx: []int{1},
		multiIdx:  [][]int{{0}},
	}

	got, err := Collect(context.Background(), driver, schema, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	want := `{"name":"pixi","channels":["conda-forge"],"platform":"osx-arm64","features":["cuda"],"count":3,"debug":true,"kind":"app"}`
	if diff := cmp.Diff(want, compact(t, got)); diff != "" {
		t.Fatalf("collected mismatch (-want +got):\n%s", diff)
	}
	wantInfos := []string{
		"Invalid name: must be at least 2 characters",
		"Invalid count: not a number",
		"Invalid count: must be >= 1",
	}
	if diff := cmp.Diff(wantInfos, driver.infos); diff != "" {
		t.Fatalf("infos mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectOmitsEmptyOptionalValues(t *testing.T) {
	schema := decode(t, `
properties:
  note: {type: string}
  secret: {type: string, format: password}
  size: {type: number}
`)
	driver := &stubDriver{inputs: []string{"", ""}, passwords: []string{"s3"}}

	got, err := Collect(context.Background(), driver, schema, map[string]any{"note": "hi"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if diff := cmp.Diff(`{"secret":"s3"}`, compact(t, got)); diff != "" {
		t.Fatalf("collected mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectKeepsExistingItems(t *testing.T) {
	schema := decode(t, `
type: object
properties:
  channels:
    type: array
    items: {$ref: "#/definitions/channel"}
definitions:
  channel: {type: string, pattern: "^[a-z-]+$"}
`)
	driver := &stubDriver{
		confirm: []bool{true, true, false},
		inputs:  []string{"Bad Name", "bioconda"},
	}

	got, err := Collect(context.Background(), driver, schema, map[string]any{"channels": []any{"conda-forge"}})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if diff := cmp.Diff(`{"channels":["conda-forge","bioconda"]}`, compact(t, got)); diff != "" {
		t.Fatalf("collected mismatch (-want +got):\n%s", diff)
	}
	if len(driver.infos) != 1 || !strings.HasPrefix(driver.infos[0], "Invalid channels[1]: must match") {
		t.Fatalf("unexpected infos %v", driver.infos)
	}
}

func TestCollectReportsSchemaViolations(t *testing.T) {
	schema := decode(t, `{type: object, required: [id], properties: {}}`)
	driver := &stubDriver{}

	got, err := Collect(context.Background(), driver, schema, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if compact(t, got) != "{}" {
		t.Fatalf("unexpected value %s", compact(t, got))
	}
	if len(driver.infos) != 1 || !strings.HasPrefix(driver.infos[0], "warning: ") {
		t.Fatalf("expected one warning, got %v", driver.infos)
	}
}

func TestCollectErrors(t *testing.T) {
	if _, err := Collect(context.Background(), &stubDriver{}, "https://example.com/s.json", nil); err == nil {
		t.Fatalf("expected an error for a non-object schema")
	}

	recursive := decode(t, `{$ref: "#"}`)
	if _, err := Collect(context.Background(), &stubDriver{}, recursive, nil); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("expected ErrTooDeep, got %v", err)
	}

	aborting := &stubDriver{err: ErrAborted}
	schema := decode(t, `{properties: {name: {type: string}}}`)
	if _, err := Collect(context.Background(), aborting, schema, nil); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestCollectDefinition(t *testing.T) {
	root := decode(t, `
forms:
  a:
    schema: {type: object, properties: {n: {type: integer}}}
    form_data: {n: 2}
  b:
    schema: https://example.com/b.schema.json
    form_data: {x: 1}
`).(*document.Object)
	def := definition.New(root, "inline", source.DirBase("."))
	driver := &stubDriver{inputs: []string{"5"}}

	got, err := CollectDefinition(context.Background(), driver, def, map[string]any{"b": map[string]any{"y": 2}})
	if err != nil {
		t.Fatalf("collect definition: %v", err)
	}
	if diff := cmp.Diff(`{"n":5}`, compact(t, got["a"])); diff != "" {
		t.Fatalf("form a mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(`{"x":1,"y":2}`, compact(t, got["b"])); diff != "" {
		t.Fatalf("form b mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"== a =="}, driver.infos); diff != "" {
		t.Fatalf("infos mismatch (-want +got):\n%s", diff)
	}
}
