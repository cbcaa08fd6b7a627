package artifact_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-urlform/pkg/artifact"
)

type stubThemeSelector struct {
	selection *theme.Selection
	err       error
	calls     []string
}

func (s *stubThemeSelector) Select(name, variant string, _ ...theme.QueryOption) (*theme.Selection, error) {
	s.calls = append(s.calls, name+"/"+variant)
	return s.selection, s.err
}

func TestHooks_OnBuildComplete(t *testing.T) {
	dir := t.TempDir()
	hooks := artifact.Hooks{CSS: artifact.CSSOptions{
		Variables:       map[string]string{"bs-body-bg": "pst-bg", "a": "b"},
		CompactHeadings: true,
	}}

	path, err := hooks.OnBuildComplete(dir)
	if err != nil {
		t.Fatalf("build complete: %v", err)
	}
	if path != filepath.Join(dir, "urljsf", "urljsf.css") {
		t.Fatalf("unexpected path %q", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	want := strings.Join([]string{
		".urljsf-form, .urljsf-form .list-group, .urljsf-form .card {",
		"  --a: var(--b) !important;",
		"  --bs-body-bg: var(--pst-bg) !important;",
		"}",
		"",
		".urljsf-form h1,",
		".urljsf-form h2,",
		".urljsf-form h3,",
		".urljsf-form h4,",
		".urljsf-form h5,",
		".urljsf-form h6,",
		".urljsf-form h7 {",
		"margin: 0",
		"}",
	}, "\n")
	if diff := cmp.Diff(want, string(raw)); diff != "" {
		t.Fatalf("stylesheet mismatch (-want +got):\n%s", diff)
	}
}

func TestHooks_OnBuildCompleteNothingToWrite(t *testing.T) {
	dir := t.TempDir()
	path, err := artifact.Hooks{}.OnBuildComplete(dir)
	if err != nil || path != "" {
		t.Fatalf("expected no output, got %q, %v", path, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "urljsf")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no directory, got %v", err)
	}
}

func TestHooks_OnPageRender(t *testing.T) {
	if got := (artifact.Hooks{}).OnPageRender(false); len(got.JS) != 0 || len(got.CSS) != 0 {
		t.Fatalf("pages without forms need no assets, got %+v", got)
	}

	assets := artifact.Hooks{CSS: artifact.CSSOptions{AddBootstrap: true}}.OnPageRender(true)
	want := artifact.PageAssets{
		JS: []artifact.Asset{{Path: "urljsf/urljsf.js", Attrs: map[string]string{"type": "module"}}},
		CSS: []artifact.Asset{
			{Path: "urljsf/urljsf.js", Attrs: map[string]string{"rel": "modulepreload"}},
			{Path: "urljsf/bootstrap.min.css"},
		},
	}
	if diff := cmp.Diff(want, assets); diff != "" {
		t.Fatalf("assets mismatch (-want +got):\n%s", diff)
	}

	themed := artifact.Hooks{Theme: "darkly", CSS: artifact.CSSOptions{AddBootstrap: true, CompactHeadings: true}}.OnPageRender(true)
	var paths []string
	for _, asset := range themed.CSS {
		paths = append(paths, asset.Path)
	}
	if diff := cmp.Diff([]string{"urljsf/urljsf.js", "urljsf/themes/darkly.css", "urljsf/urljsf.css"}, paths); diff != "" {
		t.Fatalf("themed css mismatch (-want +got):\n%s", diff)
	}
}

func TestHooks_ThemeSelector(t *testing.T) {
	selector := &stubThemeSelector{selection: &theme.Selection{
		Theme:   "acme",
		Variant: "dark",
		Manifest: &theme.Manifest{
			Name:    "acme",
			Version: "1.0.0",
			Tokens:  map[string]string{"brand": "#123456"},
			Assets: theme.Assets{
				Prefix: "/assets/themes/acme",
				Files:  map[string]string{artifact.ThemeStylesheet: "theme.css"},
			},
		},
	}}
	hooks := artifact.Hooks{
		Theme:        "acme",
		ThemeVariant: "dark",
		Selector:     selector,
		CSS:          artifact.CSSOptions{AddBootstrap: true},
	}

	assets := hooks.OnPageRender(true)
	if got := assets.CSS[1].Path; got != "/assets/themes/acme/theme.css" {
		t.Fatalf("theme stylesheet = %q", got)
	}
	if selector.calls[0] != "acme/dark" {
		t.Fatalf("unexpected selector call %q", selector.calls[0])
	}
	if !strings.Contains(hooks.Stylesheet(), "  --brand: #123456;") {
		t.Fatalf("theme tokens missing from stylesheet:\n%s", hooks.Stylesheet())
	}

	failing := artifact.Hooks{Selector: &stubThemeSelector{err: errors.New("boom")}, CSS: artifact.CSSOptions{AddBootstrap: true}}
	if got := failing.OnPageRender(true).CSS[1].Path; got != "urljsf/bootstrap.min.css" {
		t.Fatalf("expected bootstrap fallback, got %q", got)
	}
}
