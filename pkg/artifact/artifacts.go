package artifact

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/goliatone/go-urlform/pkg/definition"
	"github.com/goliatone/go-urlform/pkg/render/template"
)

// Fragment is a rendered markdown template and its sanitized HTML.
type Fragment struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// CheckResult is one evaluated check. A check fails when its template renders
// anything but whitespace; the rendered text is the message.
type CheckResult struct {
	Label   string `json:"label"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Artifacts are the strings a page shows for the current form data.
type Artifacts struct {
	URL              string              `json:"url"`
	SubmitButton     Fragment            `json:"submit_button"`
	DownloadFilename string              `json:"download_filename,omitempty"`
	SubmitTarget     string              `json:"submit_target,omitempty"`
	Above            map[string]Fragment `json:"above,omitempty"`
	Below            map[string]Fragment `json:"below,omitempty"`
	Checks           []CheckResult       `json:"checks,omitempty"`
}

// Failing returns the checks that did not pass.
func (a *Artifacts) Failing() []CheckResult {
	var out []CheckResult
	for _, check := range a.Checks {
		if !check.Passed {
			out = append(out, check)
		}
	}
	return out
}

// RenderError collects the templates that failed in one render.
type RenderError struct {
	Errors map[string]error
}

func (e *RenderError) names() []string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *RenderError) Error() string {
	names := e.names()
	if len(names) == 1 {
		return fmt.Sprintf("artifact: render failed: %v", e.Errors[names[0]])
	}
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = e.Errors[name].Error()
	}
	return fmt.Sprintf("artifact: %d templates failed: %s", len(names), strings.Join(parts, "; "))
}

func (e *RenderError) Unwrap() []error {
	names := e.names()
	errs := make([]error, len(names))
	for i, name := range names {
		errs[i] = e.Errors[name]
	}
	return errs
}

func renderArtifacts(renderer template.Renderer, def *definition.Definition, checks []definition.Check, ctx template.Context) (*Artifacts, *RenderError) {
	out := &Artifacts{}
	failed := map[string]error{}

	render := func(name string) (string, bool) {
		if !renderer.Has(name) {
			return "", false
		}
		text, err := renderer.Render(name, ctx)
		if err != nil {
			failed[name] = err
			return "", false
		}
		return text, true
	}

	if text, ok := render(definition.TemplateURL); ok {
		out.URL = joinLines(text)
	}
	if text, ok := render(definition.TemplateSubmitButton); ok {
		out.SubmitButton = fragment(text)
	}
	if text, ok := render(definition.TemplateDownloadFilename); ok {
		out.DownloadFilename = strings.TrimSpace(text)
	}
	if text, ok := render(definition.TemplateSubmitTarget); ok {
		out.SubmitTarget = strings.TrimSpace(text)
	}

	for _, form := range def.FormNames() {
		if text, ok := render("above_" + form); ok {
			if out.Above == nil {
				out.Above = map[string]Fragment{}
			}
			out.Above[form] = fragment(text)
		}
		if text, ok := render("below_" + form); ok {
			if out.Below == nil {
				out.Below = map[string]Fragment{}
			}
			out.Below[form] = fragment(text)
		}
	}

	for _, check := range checks {
		text, ok := render(definition.ChecksPrefix + check.Label)
		if !ok {
			continue
		}
		message := strings.TrimSpace(text)
		out.Checks = append(out.Checks, CheckResult{Label: check.Label, Passed: message == "", Message: message})
	}

	if len(failed) > 0 {
		return out, &RenderError{Errors: failed}
	}
	return out, nil
}

// joinLines trims every line of a rendered URL and joins them, so long URLs
// can be written across several template lines.
func joinLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "")
}

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
	htmlPolicy   *bluemonday.Policy
)

func fragment(text string) Fragment {
	trimmed := strings.TrimSpace(text)
	return Fragment{Text: trimmed, HTML: sanitizeMarkdown(trimmed)}
}

// sanitizeMarkdown renders markdown to HTML and strips anything outside the
// user generated content policy. Raw HTML in the source survives only if the
// policy allows it.
func sanitizeMarkdown(text string) string {
	if text == "" {
		return ""
	}
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithRendererOptions(html.WithUnsafe()))
		htmlPolicy = bluemonday.UGCPolicy()
	})
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return htmlPolicy.Sanitize(text)
	}
	return strings.TrimSpace(htmlPolicy.Sanitize(buf.String()))
}
