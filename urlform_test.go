package urlform_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-urlform"
	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/testsupport"
)

var pixiDefinition = filepath.Join("testdata", "pixi", "urlform.yaml")

func TestLoadDefinition(t *testing.T) {
	def, err := urlform.LoadDefinition(context.Background(), pixiDefinition)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(def.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", def.Errors)
	}
	if diff := cmp.Diff([]string{"pixi"}, def.FormNames()); diff != "" {
		t.Fatalf("forms mismatch (-want +got):\n%s", diff)
	}
	form, _ := def.Form("pixi")
	schema, ok := form.Schema.(*document.Object)
	if !ok {
		t.Fatalf("schema not expanded: %T", form.Schema)
	}
	if title, _ := schema.Get("title"); title != "pixi project" {
		t.Fatalf("unexpected schema title %v", title)
	}
	if _, ok := form.UISchema.(*document.Object); !ok {
		t.Fatalf("ui schema not expanded: %T", form.UISchema)
	}

	verrs, err := urlform.ValidateDefinition(def)
	if err != nil || len(verrs) != 0 {
		t.Fatalf("expected a valid definition, got %v, %v", verrs, err)
	}
}

func TestLoadDefinitionAttachesProblems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urlform.yaml")
	text := `
forms:
  pixi:
    schema: ./missing.schema.json
templates:
  url: "https://example.com"
iframe: "yes"
`
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	def, err := urlform.LoadDefinition(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var formErr *urlform.FormError
	var verr urlform.ValidationError
	var sawForm, sawValidation bool
	for _, e := range def.Errors {
		if errors.As(e, &formErr) {
			sawForm = true
		}
		if errors.As(e, &verr) && verr.Path == "/iframe" {
			sawValidation = true
		}
	}
	if !sawForm || !sawValidation {
		t.Fatalf("expected a form error and an /iframe validation error, got %v", def.Errors)
	}
}

func TestLoadDefinitionParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("forms: [unterminated\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := urlform.LoadDefinition(context.Background(), path)
	var parseErr *urlform.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected a ParseError, got %v", err)
	}
}

func TestRenderArtifacts(t *testing.T) {
	ctx := context.Background()
	def, err := urlform.LoadDefinition(ctx, pixiDefinition)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	out, err := urlform.RenderArtifacts(ctx, def, map[string]any{"pixi": map[string]any{"name": "rattler"}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.DownloadFilename != "rattler.toml" {
		t.Fatalf("download filename = %q", out.DownloadFilename)
	}
	if out.SubmitButton.Text != "Create **rattler**" {
		t.Fatalf("submit button = %q", out.SubmitButton.Text)
	}
	if !strings.HasPrefix(out.URL, "https://github.com/new?filename=pixi.toml&value=") || !strings.Contains(out.URL, "rattler") {
		t.Fatalf("url = %q", out.URL)
	}
	if len(out.Failing()) != 0 {
		t.Fatalf("unexpected failing checks %v", out.Failing())
	}

	out, err = urlform.RenderArtifacts(ctx, def, map[string]any{"pixi": map[string]any{"name": ""}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if failing := out.Failing(); len(failing) != 1 || failing[0].Message != "a name is required" {
		t.Fatalf("expected the name check to fail, got %v", failing)
	}
}

func TestRenderArtifactsTemplateError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urlform.yaml")
	text := `
forms:
  a:
    schema: {type: object}
templates:
  url: "https://example.com/{{ data.a.nope }}"
  submit_button: Go
`
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx := context.Background()
	def, err := urlform.LoadDefinition(ctx, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	out, err := urlform.RenderArtifacts(ctx, def, nil)
	var renderErr *urlform.RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("expected a RenderError, got %v", err)
	}
	var tplErr *urlform.TemplateError
	if !errors.As(err, &tplErr) || tplErr.Path != "data.a.nope" {
		t.Fatalf("expected a TemplateError for data.a.nope, got %v", err)
	}
	if out == nil || out.SubmitButton.Text != "Go" {
		t.Fatalf("expected partial artifacts, got %+v", out)
	}
}

func TestDeployMatchesGolden(t *testing.T) {
	b := testsupport.MustBuild(t, pixiDefinition)
	dir := t.TempDir()
	manifest, err := b.Deploy(dir)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, manifest["pixi"]["schema"]))
	if err != nil {
		t.Fatalf("read deployed schema: %v", err)
	}
	golden := filepath.Join("testdata", "pixi", "golden", "pixi-schema.json")
	if diff := testsupport.CompareGolden(t, golden, raw); diff != "" {
		t.Fatalf("deployed schema mismatch (-want +got):\n%s", diff)
	}
}
