package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-urlform/pkg/artifact"
	"github.com/goliatone/go-urlform/pkg/validation"
)

func newPlain(t *testing.T) (*Reporter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	r, err := New(&buf, WithWordWrap(60))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return r, &buf
}

func assertContains(t *testing.T, out string, parts ...string) {
	t.Helper()
	for _, part := range parts {
		if !strings.Contains(out, part) {
			t.Fatalf("expected %q in output:\n%s", part, out)
		}
	}
}

func TestValidation(t *testing.T) {
	r, buf := newPlain(t)
	if !r.Validation("urlform.yaml", nil, nil) {
		t.Fatalf("expected valid")
	}
	assertContains(t, buf.String(), "Definition urlform.yaml", "✓ valid")
	if strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("plain reports must not carry ANSI codes: %q", buf.String())
	}

	r, buf = newPlain(t)
	ok := r.Validation("urlform.yaml",
		[]validation.Error{{Path: "/templates", Message: "missing property 'url'"}, {Message: "root problem"}},
		[]error{errors.New("definition: form pixi: schema: not found")},
	)
	if ok {
		t.Fatalf("expected invalid")
	}
	assertContains(t, buf.String(),
		"✗ /templates missing property 'url'",
		"✗ / root problem",
		"✗ definition: form pixi: schema: not found",
		"3 problems",
	)
}

func TestArtifacts(t *testing.T) {
	r, buf := newPlain(t)
	r.Artifacts(&artifact.Artifacts{
		URL:              "https://example.com/new",
		DownloadFilename: "pixi.toml",
		SubmitButton:     artifact.Fragment{Text: "Download **demo**"},
		Above:            map[string]artifact.Fragment{"pixi": {Text: "Fill in the form"}},
		Checks: []artifact.CheckResult{
			{Label: "name", Passed: true},
			{Label: "channels", Message: "add a channel"},
		},
	}, nil)

	assertContains(t, buf.String(),
		"url: https://example.com/new",
		"download_filename: pixi.toml",
		"submit_button",
		"demo",
		"above_pixi",
		"Fill in the form",
		"✓ name",
		"✗ channels: add a channel",
	)
	if strings.Contains(buf.String(), "submit_target") {
		t.Fatalf("empty fields must be omitted:\n%s", buf.String())
	}
}

func TestArtifactsWithRenderError(t *testing.T) {
	r, buf := newPlain(t)
	renderErr := &artifact.RenderError{Errors: map[string]error{
		"url":         errors.New("template url: data.pixi.nope is undefined"),
		"checks/name":  errors.New("template checks/name: boom"),
	}}
	r.Artifacts(nil, renderErr)
	out := buf.String()
	assertContains(t, out, "Template errors", "✗ checks/name", "✗ url")
	if strings.Index(out, "checks/name") > strings.Index(out, "✗ url") {
		t.Fatalf("template errors must be sorted:\n%s", out)
	}
}

func TestDeployed(t *testing.T) {
	r, buf := newPlain(t)
	r.Deployed("out", artifact.Manifest{"pixi": {"schema": "pixi-schema-0123abcd.json"}}, "out/urljsf/urljsf.css")
	assertContains(t, buf.String(), "Output out", "pixi.schema → pixi-schema-0123abcd.json", "stylesheet → out/urljsf/urljsf.css")

	r, buf = newPlain(t)
	r.Deployed("out", nil, "")
	assertContains(t, buf.String(), "nothing written")
}
