package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/subcommands"

	"github.com/goliatone/go-urlform/pkg/testsupport"
)

var pixiDefinition = filepath.Join("..", "..", "testdata", "pixi", "urlform.yaml")

func runCLI(t *testing.T, ctx context.Context, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(ctx, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestSchemaCommand(t *testing.T) {
	code, stdout, _ := runCLI(t, context.Background(), "schema")
	if code != int(subcommands.ExitSuccess) {
		t.Fatalf("exit code %d", code)
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(stdout), &schema); err != nil {
		t.Fatalf("meta-schema is not JSON: %v", err)
	}
}

func TestCheckCommand(t *testing.T) {
	ctx := context.Background()
	code, stdout, stderr := runCLI(t, ctx, "check", pixiDefinition)
	if code != int(subcommands.ExitSuccess) {
		t.Fatalf("exit code %d, stderr %s", code, stderr)
	}
	if !strings.Contains(stdout, "✓ valid") {
		t.Fatalf("unexpected report:\n%s", stdout)
	}

	broken := writeFile(t, t.TempDir(), "urlform.yaml", `
forms:
  a:
    schema: {type: object}
templates:
  url: x
  submit_button: y
iframe: "yes"
`)
	code, stdout, _ = runCLI(t, ctx, "check", broken)
	if code != int(subcommands.ExitFailure) {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(stdout, "/iframe") {
		t.Fatalf("expected the iframe problem in the report:\n%s", stdout)
	}
}

func TestBuildCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "site")
	cfg := writeFile(t, dir, "config.yaml", "css:\n  compact_headings: true\n")

	code, stdout, stderr := runCLI(t, context.Background(), "-config", cfg, "build", "-o", out, pixiDefinition)
	if code != int(subcommands.ExitSuccess) {
		t.Fatalf("exit code %d, stderr %s", code, stderr)
	}
	for _, want := range []string{"pixi.schema → pixi-schema-", "pixi.ui_schema → pixi-ui-schema-", "stylesheet → "} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in report:\n%s", want, stdout)
		}
	}

	matches, err := filepath.Glob(filepath.Join(out, "pixi-schema-*.json"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one deployed schema, got %v (%v)", matches, err)
	}
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read deployed schema: %v", err)
	}
	golden := filepath.Join("..", "..", "testdata", "pixi", "golden", "pixi-schema.json")
	if diff := testsupport.CompareGolden(t, golden, raw); diff != "" {
		t.Fatalf("deployed schema mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(out, "urljsf", "urljsf.css")); err != nil {
		t.Fatalf("stylesheet not written: %v", err)
	}
}

func TestRenderCommand(t *testing.T) {
	data := filepath.Join("..", "..", "testdata", "pixi", "data.json")
	code, stdout, stderr := runCLI(t, context.Background(), "render", "-json", "-data", data, pixiDefinition)
	if code != int(subcommands.ExitSuccess) {
		t.Fatalf("exit code %d, stderr %s", code, stderr)
	}
	var got struct {
		URL              string `json:"url"`
		DownloadFilename string `json:"download_filename"`
		Checks           []struct {
			Label  string `json:"label"`
			Passed bool   `json:"passed"`
		} `json:"checks"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout)
	}
	if got.DownloadFilename != "rattler.toml" {
		t.Fatalf("download filename = %q", got.DownloadFilename)
	}
	if !strings.Contains(got.URL, "rattler") || !strings.Contains(got.URL, "linux-64") {
		t.Fatalf("url = %q", got.URL)
	}
	if len(got.Checks) != 1 || !got.Checks[0].Passed {
		t.Fatalf("checks = %+v", got.Checks)
	}
}

func TestRenderCommandReport(t *testing.T) {
	code, stdout, _ := runCLI(t, context.Background(), "render", pixiDefinition)
	if code != int(subcommands.ExitSuccess) {
		t.Fatalf("exit code %d", code)
	}
	for _, want := range []string{"download_filename: demo.toml", "✓ name"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in report:\n%s", want, stdout)
		}
	}
}

func TestRenderCommandTemplateError(t *testing.T) {
	def := writeFile(t, t.TempDir(), "urlform.yaml", `
forms:
  a:
    schema: {type: object}
templates:
  url: "https://example.com/{{ data.a.nope }}"
  submit_button: Go
`)
	code, stdout, _ := runCLI(t, context.Background(), "render", def)
	if code != int(subcommands.ExitFailure) {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(stdout, "Template errors") || !strings.Contains(stdout, "data.a.nope") {
		t.Fatalf("expected the template error in the report:\n%s", stdout)
	}
}

func TestServeCommandStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	code, _, stderr := runCLI(t, ctx, "serve", "-addr", "127.0.0.1:0", pixiDefinition)
	if code != int(subcommands.ExitSuccess) {
		t.Fatalf("exit code %d, stderr %s", code, stderr)
	}
}

func TestUsageErrors(t *testing.T) {
	ctx := context.Background()
	if code, _, stderr := runCLI(t, ctx, "check"); code != int(subcommands.ExitUsageError) || !strings.Contains(stderr, "no definition given") {
		t.Fatalf("expected a usage error, got %d: %s", code, stderr)
	}
	if code, _, stderr := runCLI(t, ctx, "-log-level", "loud", "check", pixiDefinition); code != int(subcommands.ExitFailure) || !strings.Contains(stderr, "log_level") {
		t.Fatalf("expected a config error, got %d: %s", code, stderr)
	}
	if code, _, _ := runCLI(t, ctx, "-nope"); code != int(subcommands.ExitUsageError) {
		t.Fatalf("expected a flag error, got %d", code)
	}
}
