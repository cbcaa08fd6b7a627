package artifact

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	theme "github.com/goliatone/go-theme"
)

// RootClass is the CSS class carried by every form container.
const RootClass = "urljsf-form"

// Static asset paths, relative to the site's static directory.
const (
	ScriptAsset     = "urljsf/urljsf.js"
	StyleAsset      = "urljsf/urljsf.css"
	BootstrapAsset  = "urljsf/bootstrap.min.css"
	DefaultTheme    = "bootstrap"
	ThemeStylesheet = "urljsf.stylesheet"
)

// DefaultScopes are the selectors CSS variable overrides apply to.
var DefaultScopes = []string{
	"." + RootClass,
	"." + RootClass + " .list-group",
	"." + RootClass + " .card",
}

// CSSOptions mirrors the `css` section of the host configuration.
type CSSOptions struct {
	// Variables maps a variable name to the variable it aliases:
	// {"bs-body-bg": "pst-color-background"}.
	Variables       map[string]string `yaml:"variables" json:"variables,omitempty"`
	Scopes          []string          `yaml:"scopes" json:"scopes,omitempty"`
	CompactHeadings bool              `yaml:"compact_headings" json:"compact_headings,omitempty"`
	AddBootstrap    bool              `yaml:"add_bootstrap" json:"add_bootstrap,omitempty"`
}

// Asset is a script or stylesheet a page must link.
type Asset struct {
	Path  string            `json:"path"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// PageAssets lists what OnPageRender asks the page shell to add.
type PageAssets struct {
	JS  []Asset `json:"js,omitempty"`
	CSS []Asset `json:"css,omitempty"`
}

// Hooks are the callbacks a static site host invokes around a build. They
// hold no definition state.
type Hooks struct {
	CSS          CSSOptions
	Theme        string
	ThemeVariant string
	// Selector resolves theme stylesheets and tokens. Without one the
	// bundled bootstrap and theme paths are used.
	Selector theme.ThemeSelector
	Logger   *slog.Logger
}

func (h Hooks) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (h Hooks) themeName() string {
	if name := strings.TrimSpace(h.Theme); name != "" {
		return name
	}
	return DefaultTheme
}

func (h Hooks) selection() *theme.Selection {
	if h.Selector == nil {
		return nil
	}
	selection, err := h.Selector.Select(h.themeName(), h.ThemeVariant)
	if err != nil {
		h.logger().Warn("theme selection failed", "theme", h.themeName(), "error", err)
		return nil
	}
	return selection
}

// OnBuildComplete writes the generated stylesheet under staticDir and
// returns its path, or "" when there is nothing to write.
func (h Hooks) OnBuildComplete(staticDir string) (string, error) {
	chunks := h.stylesheetChunks()
	if len(chunks) == 0 {
		return "", nil
	}
	target := filepath.Join(staticDir, filepath.FromSlash(StyleAsset))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("artifact: create %s: %w", filepath.Dir(target), err)
	}
	if err := os.WriteFile(target, []byte(strings.Join(chunks, "\n")), 0o644); err != nil {
		return "", fmt.Errorf("artifact: write %s: %w", target, err)
	}
	h.logger().Debug("stylesheet written", "path", target)
	return target, nil
}

// Stylesheet returns the generated stylesheet text.
func (h Hooks) Stylesheet() string {
	return strings.Join(h.stylesheetChunks(), "\n")
}

func (h Hooks) stylesheetChunks() []string {
	var chunks []string
	chunks = append(chunks, h.variableChunk()...)
	chunks = append(chunks, h.tokenChunk()...)
	chunks = append(chunks, headingChunk(h.CSS)...)
	return chunks
}

func (h Hooks) scopes() []string {
	if len(h.CSS.Scopes) > 0 {
		return h.CSS.Scopes
	}
	return DefaultScopes
}

func (h Hooks) variableChunk() []string {
	return declarationChunk(h.scopes(), h.CSS.Variables, func(name, value string) string {
		return fmt.Sprintf("  --%s: var(--%s) !important;", name, value)
	})
}

// tokenChunk exposes the selected theme's tokens as CSS variables.
func (h Hooks) tokenChunk() []string {
	selection := h.selection()
	if selection == nil {
		return nil
	}
	return declarationChunk(h.scopes(), selection.CSSVariables("--"), func(name, value string) string {
		return fmt.Sprintf("  %s: %s;", name, value)
	})
}

func declarationChunk(scopes []string, values map[string]string, line func(name, value string) string) []string {
	if len(values) == 0 {
		return nil
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{strings.Join(scopes, ", ") + " {"}
	for _, name := range names {
		lines = append(lines, line(name, values[name]))
	}
	lines = append(lines, "}", "")
	return []string{strings.Join(lines, "\n")}
}

func headingChunk(css CSSOptions) []string {
	if !css.CompactHeadings {
		return nil
	}
	selectors := make([]string, 7)
	for i := range selectors {
		selectors[i] = fmt.Sprintf(".%s h%d", RootClass, i+1)
	}
	return []string{strings.Join([]string{strings.Join(selectors, ",\n") + " {", "margin: 0", "}"}, "\n")}
}

// OnPageRender returns the assets a page needs. Pages without a form need
// none.
func (h Hooks) OnPageRender(pageHasForm bool) PageAssets {
	if !pageHasForm {
		return PageAssets{}
	}
	assets := PageAssets{
		JS:  []Asset{{Path: ScriptAsset, Attrs: map[string]string{"type": "module"}}},
		CSS: []Asset{{Path: ScriptAsset, Attrs: map[string]string{"rel": "modulepreload"}}},
	}
	if h.CSS.AddBootstrap {
		assets.CSS = append(assets.CSS, Asset{Path: h.themeStylesheet()})
	}
	if len(h.stylesheetChunks()) > 0 {
		assets.CSS = append(assets.CSS, Asset{Path: StyleAsset})
	}
	return assets
}

func (h Hooks) themeStylesheet() string {
	if selection := h.selection(); selection != nil {
		if path, ok := selection.Asset(ThemeStylesheet); ok {
			return path
		}
	}
	if name := h.themeName(); name != DefaultTheme {
		return "urljsf/themes/" + name + ".css"
	}
	return BootstrapAsset
}
