package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-urlform/internal/server"
	"github.com/goliatone/go-urlform/pkg/artifact"
	"github.com/goliatone/go-urlform/pkg/definition"
	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/source"
)

const previewDefinition = `
forms:
  pixi:
    schema:
      type: object
      properties:
        name: {type: string, default: demo}
templates:
  url: "https://example.com/{{ data.pixi.name }}{% if data.pixi.boom is defined %}{{ data.pixi.missing }}{% endif %}"
  submit_button: Go
style:
  --bs-primary: red
`

func readyBuilder(t *testing.T) *artifact.Builder {
	t.Helper()
	root, err := document.DecodeObject(document.FormatYAML, "preview.yaml", []byte(previewDefinition))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := artifact.New()
	if err := b.Use(definition.New(root, "preview.yaml", source.DirBase(t.TempDir()))); err != nil {
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

func do(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func TestHealthz(t *testing.T) {
	var logs bytes.Buffer
	srv := server.New(readyBuilder(t), server.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(logs.String(), "path=/healthz") || !strings.Contains(logs.String(), "status=200") {
		t.Fatalf("expected a request log line, got %q", logs.String())
	}
}

func TestForms(t *testing.T) {
	srv := server.New(readyBuilder(t))
	rec := do(t, srv.Handler(), http.MethodGet, "/forms", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var forms []struct {
		Name     string         `json:"name"`
		FormData map[string]any `json:"form_data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &forms); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(forms) != 1 || forms[0].Name != "pixi" {
		t.Fatalf("unexpected forms %+v", forms)
	}
	if diff := cmp.Diff(map[string]any{"name": "demo"}, forms[0].FormData); diff != "" {
		t.Fatalf("form data mismatch (-want +got):\n%s", diff)
	}
}

func TestDefinition(t *testing.T) {
	srv := server.New(readyBuilder(t))
	rec := do(t, srv.Handler(), http.MethodGet, "/definition", "")
	var resp struct {
		Location   string         `json:"location"`
		State      string         `json:"state"`
		Definition map[string]any `json:"definition"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Location != "preview.yaml" || resp.State != artifact.Ready.String() {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, ok := resp.Definition["templates"]; !ok {
		t.Fatalf("definition body missing templates: %v", resp.Definition)
	}
}

func TestRender(t *testing.T) {
	srv := server.New(readyBuilder(t))

	rec := do(t, srv.Handler(), http.MethodPost, "/render", `{"pixi": {"name": "pixi-demo"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var out artifact.Artifacts
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.URL != "https://example.com/pixi-demo" || out.SubmitButton.Text != "Go" {
		t.Fatalf("unexpected artifacts %+v", out)
	}

	rec = do(t, srv.Handler(), http.MethodPost, "/render", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "https://example.com/demo") {
		t.Fatalf("empty body should render the initial data, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRenderFailures(t *testing.T) {
	srv := server.New(readyBuilder(t))

	rec := do(t, srv.Handler(), http.MethodPost, "/render", `{"pixi": {"boom": true}}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	var failure struct {
		Code      string              `json:"code"`
		Templates map[string]string   `json:"templates"`
		Artifacts *artifact.Artifacts `json:"artifacts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &failure); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if failure.Code != "RENDER_FAILED" || failure.Templates[definition.TemplateURL] == "" {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if failure.Artifacts == nil || failure.Artifacts.SubmitButton.Text != "Go" {
		t.Fatalf("expected partial artifacts, got %+v", failure.Artifacts)
	}

	rec = do(t, srv.Handler(), http.MethodPost, "/render", `[1, 2]`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-object body: status = %d", rec.Code)
	}

	idle := server.New(artifact.New())
	if rec := do(t, idle.Handler(), http.MethodPost, "/render", `{}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unready builder: status = %d", rec.Code)
	}
	if rec := do(t, idle.Handler(), http.MethodGet, "/definition", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unloaded definition: status = %d", rec.Code)
	}
}

func TestStyleAndAssets(t *testing.T) {
	hooks := artifact.Hooks{CSS: artifact.CSSOptions{AddBootstrap: true, CompactHeadings: true}}
	srv := server.New(readyBuilder(t), server.WithHooks(hooks))

	rec := do(t, srv.Handler(), http.MethodGet, "/style?id=form-1", "")
	if got := rec.Body.String(); got != "#form-1 {\n--bs-primary: red;\n}" {
		t.Fatalf("style = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Fatalf("content type = %q", ct)
	}

	rec = do(t, srv.Handler(), http.MethodGet, "/assets", "")
	var assets artifact.PageAssets
	if err := json.Unmarshal(rec.Body.Bytes(), &assets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(hooks.OnPageRender(true), assets); diff != "" {
		t.Fatalf("assets mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, srv.Handler(), http.MethodGet, "/"+artifact.StyleAsset, "")
	if !strings.Contains(rec.Body.String(), ".urljsf-form h1,") {
		t.Fatalf("stylesheet = %q", rec.Body.String())
	}
}

func TestSwap(t *testing.T) {
	srv := server.New(artifact.New())
	if rec := do(t, srv.Handler(), http.MethodGet, "/forms", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	srv.Swap(readyBuilder(t))
	if rec := do(t, srv.Handler(), http.MethodGet, "/forms", ""); rec.Code != http.StatusOK {
		t.Fatalf("status after swap = %d", rec.Code)
	}
}

func TestListenAndServeStopsWithContext(t *testing.T) {
	srv := server.New(readyBuilder(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.ListenAndServe(ctx, "127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
}
