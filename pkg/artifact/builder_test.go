package artifact_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-urlform/pkg/artifact"
	"github.com/goliatone/go-urlform/pkg/definition"
	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
	"github.com/goliatone/go-urlform/pkg/source"
)

func buildBasic(t *testing.T, opts ...artifact.Option) *artifact.Builder {
	t.Helper()
	b := artifact.New(opts...)
	if err := b.Build(context.Background(), source.FromFile(filepath.Join("testdata", "basic", "urlform.yaml")), nil); err != nil {
		t.Fatalf("build: %v", err)
	}
	if b.State() != artifact.Ready {
		t.Fatalf("expected ready, got %s", b.State())
	}
	return b
}

func inlineDefinition(t *testing.T, src string) *definition.Definition {
	t.Helper()
	root, err := document.DecodeObject(document.FormatYAML, "inline", []byte(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return definition.New(root, "inline.yaml", source.DirBase(t.TempDir()))
}

func prepared(t *testing.T, def *definition.Definition) *artifact.Builder {
	t.Helper()
	b := artifact.New()
	if err := b.Use(def); err != nil {
		t.Fatalf("use: %v", err)
	}
	if err := b.Expand(context.Background()); err != nil {
		t.Fatalf("expand: %v", err)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := b.Prepare(nil); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	return b
}

func TestBuilder_RenderScenario(t *testing.T) {
	b := prepared(t, inlineDefinition(t, `
forms:
  pixi:
    schema: {type: object}
templates:
  url: "data:application/toml,{{ data.pixi.name }}"
  submit_button: Go
`))
	out, err := b.Render(map[string]any{"pixi": map[string]any{"name": "demo"}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.URL != "data:application/toml,demo" {
		t.Fatalf("url = %q", out.URL)
	}
	if out.SubmitButton.Text != "Go" || out.SubmitButton.HTML != "<p>Go</p>" {
		t.Fatalf("submit button = %+v", out.SubmitButton)
	}
	if b.Last() != out {
		t.Fatalf("expected last render to be kept")
	}
}

func TestBuilder_BuildFromFile(t *testing.T) {
	var logs bytes.Buffer
	b := buildBasic(t, artifact.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	if errs := b.FormErrors(); len(errs) != 0 {
		t.Fatalf("unexpected form errors: %v", errs)
	}
	if !strings.Contains(logs.String(), "unknown filter group requested") || !strings.Contains(logs.String(), "bogus") {
		t.Fatalf("expected a warning for the unknown filter group, got:\n%s", logs.String())
	}

	initial := b.InitialData()
	pixi, _ := initial["pixi"].(*document.Object)
	if name, _ := pixi.Get("name"); name != "demo" {
		t.Fatalf("schema default not applied: %v", name)
	}
	extra, _ := initial["extra"].(*document.Object)
	if note, _ := extra.Get("note"); note != "hi" {
		t.Fatalf("inline schema default not applied: %v", note)
	}

	out, err := b.Render(nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	payload, ok := strings.CutPrefix(out.URL, "data:application/toml,")
	if !ok {
		t.Fatalf("unexpected url %q", out.URL)
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		t.Fatalf("unescape: %v", err)
	}
	got, err := document.Decode(document.FormatTOML, "url", []byte(text))
	if err != nil {
		t.Fatalf("decode url payload: %v", err)
	}
	want, _ := document.Decode(document.FormatJSON, "want", []byte(`{"name":"demo","channels":["conda-forge"]}`))
	if !document.Equal(want, got) {
		t.Fatalf("url payload = %s", text)
	}

	if out.SubmitButton.HTML != "<p>Download <strong>demo</strong></p>" {
		t.Fatalf("submit html = %q", out.SubmitButton.HTML)
	}
	if out.DownloadFilename != "demo.toml" {
		t.Fatalf("download filename = %q", out.DownloadFilename)
	}
	above := out.Above["pixi"]
	if strings.Contains(above.HTML, "script") || !strings.Contains(above.HTML, "Fill in") {
		t.Fatalf("above html not sanitized: %q", above.HTML)
	}
	if diff := cmp.Diff([]artifact.CheckResult{{Label: "name required", Passed: true}}, out.Checks); diff != "" {
		t.Fatalf("checks mismatch (-want +got):\n%s", diff)
	}

	failing, err := b.Render(map[string]any{"pixi": map[string]any{"name": ""}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if diff := cmp.Diff([]artifact.CheckResult{{Label: "name required", Message: "a name is required"}}, failing.Failing()); diff != "" {
		t.Fatalf("failing checks mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilder_PrepareMergesInitialData(t *testing.T) {
	b := artifact.New()
	initial := map[string]any{"extra": map[string]any{"note": "given"}}
	if err := b.Build(context.Background(), source.FromFile(filepath.Join("testdata", "basic", "urlform.yaml")), initial); err != nil {
		t.Fatalf("build: %v", err)
	}
	extra, _ := b.InitialData()["extra"].(*document.Object)
	if note, _ := extra.Get("note"); note != "given" {
		t.Fatalf("initial data not merged: %v", note)
	}
}

func TestBuilder_RenderFailureKeepsLast(t *testing.T) {
	b := prepared(t, inlineDefinition(t, `
forms:
  pixi: {schema: {type: object}}
templates:
  url: "{{ data.pixi.name }}{% if data.pixi.fail %}{{ data.pixi.nope }}{% endif %}"
  submit_button: "{{ data.pixi.name }}"
`))

	good, err := b.Render(map[string]any{"pixi": map[string]any{"name": "ok", "fail": false}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	partial, err := b.Render(map[string]any{"pixi": map[string]any{"name": "bad", "fail": true}})
	var renderErr *artifact.RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("expected RenderError, got %v", err)
	}
	if _, ok := renderErr.Errors[definition.TemplateURL]; !ok || len(renderErr.Errors) != 1 {
		t.Fatalf("expected only the url template to fail, got %v", renderErr.Errors)
	}
	if !errors.Is(err, template.ErrUndefined) {
		t.Fatalf("expected ErrUndefined in chain, got %v", err)
	}
	var tplErr *template.TemplateError
	if !errors.As(err, &tplErr) || tplErr.Path != "data.pixi.nope" {
		t.Fatalf("expected template error at data.pixi.nope, got %v", err)
	}
	if partial.SubmitButton.Text != "bad" {
		t.Fatalf("expected the other templates to render, got %+v", partial)
	}
	if b.Last() != good || b.State() != artifact.Ready {
		t.Fatalf("failed render must keep the last good artifacts and the ready state")
	}
}

func TestBuilder_PhaseOrder(t *testing.T) {
	b := artifact.New()
	if _, err := b.Render(nil); !errors.Is(err, artifact.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if err := b.Expand(context.Background()); !errors.Is(err, artifact.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	if err := b.Validate(); !errors.Is(err, artifact.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	if b.State() != artifact.Unloaded {
		t.Fatalf("state changed to %s", b.State())
	}

	if err := b.Load(context.Background(), source.FromFile(filepath.Join("testdata", "missing.yaml"))); err == nil {
		t.Fatalf("expected load error")
	}
	if b.State() != artifact.Unloaded {
		t.Fatalf("failed load changed state to %s", b.State())
	}
}

func TestBuilder_PrepareRejectsUnusableDefinition(t *testing.T) {
	b := artifact.New()
	if err := b.Use(inlineDefinition(t, `templates: {url: x}`)); err != nil {
		t.Fatalf("use: %v", err)
	}
	if err := b.Expand(context.Background()); err != nil {
		t.Fatalf("expand: %v", err)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(b.ValidationErrors()) == 0 {
		t.Fatalf("expected validation errors for a definition without forms")
	}
	if err := b.Prepare(nil); err == nil {
		t.Fatalf("expected prepare to reject a definition without forms")
	}
	if b.State() != artifact.Validated {
		t.Fatalf("state changed to %s", b.State())
	}
}

func TestBuilder_BrokenFormStillRenders(t *testing.T) {
	b := prepared(t, inlineDefinition(t, `
forms:
  good: {schema: {type: object, properties: {a: {default: 1}}}}
  broken: {schema: ./missing.schema.json}
templates:
  url: "{{ data.good.a }}"
  submit_button: go
`))
	if len(b.FormErrors()) != 1 {
		t.Fatalf("expected one form error, got %v", b.FormErrors())
	}
	out, err := b.Render(nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.URL != "1" {
		t.Fatalf("url = %q", out.URL)
	}
}

var hashedName = regexp.MustCompile(`^pixi-schema-[0-9a-f]{8}\.json$`)

func TestBuilder_Deploy(t *testing.T) {
	b := buildBasic(t)
	dir := t.TempDir()

	manifest, err := b.Deploy(dir)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	name := manifest["pixi"]["schema"]
	if !hashedName.MatchString(name) {
		t.Fatalf("unexpected schema file name %q", name)
	}
	if manifest["pixi"]["form_data"] == "" || manifest["extra"]["schema"] == "" {
		t.Fatalf("incomplete manifest: %v", manifest)
	}

	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read deployed schema: %v", err)
	}
	deployed, err := document.Decode(document.FormatJSON, name, raw)
	if err != nil {
		t.Fatalf("decode deployed schema: %v", err)
	}
	form, _ := b.Definition().Form("pixi")
	if !document.Equal(form.Schema, deployed) {
		t.Fatalf("deployed schema differs: %s", raw)
	}

	again, err := b.Deploy(dir)
	if err != nil {
		t.Fatalf("second deploy: %v", err)
	}
	if diff := cmp.Diff(manifest, again); diff != "" {
		t.Fatalf("deploy is not idempotent (-first +second):\n%s", diff)
	}
}

func TestBuilder_DeployRejectsPathLikeFormNames(t *testing.T) {
	for _, form := range []string{"../escape", `..\escape`, "nested/form", ".."} {
		t.Run(form, func(t *testing.T) {
			b := prepared(t, inlineDefinition(t, `
forms:
  '`+form+`':
    schema: {type: object}
templates:
  url: x
  submit_button: Go
`))
			root := t.TempDir()
			dir := filepath.Join(root, "out")
			if _, err := b.Deploy(dir); err == nil {
				t.Fatalf("expected an error for form %q", form)
			}
			entries, err := os.ReadDir(root)
			if err != nil {
				t.Fatalf("read dir: %v", err)
			}
			if len(entries) != 0 {
				t.Fatalf("deploy wrote outside the target: %v", entries)
			}
		})
	}
}

func TestWriteHashedRejectsPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"", "../x.json", "a/b.json", `a\b.json`} {
		if _, err := artifact.WriteHashed(dir, name, []byte("{}")); err == nil {
			t.Fatalf("expected an error for %q", name)
		}
	}
	name, err := artifact.WriteHashed(dir, "ok.json", []byte("{}"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(name, "ok-") {
		t.Fatalf("unexpected name %q", name)
	}
}

func TestBuilder_StyleSheet(t *testing.T) {
	b := buildBasic(t)
	want := "#urljsf-1 {\n--bs-primary: red;\n.card {\n--bs-card-bg: blue;\n}\n}"
	if diff := cmp.Diff(want, b.StyleSheet("urljsf-1")); diff != "" {
		t.Fatalf("stylesheet mismatch (-want +got):\n%s", diff)
	}
}
