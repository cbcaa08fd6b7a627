// Package report prints command results for a terminal. Markdown fragments
// are rendered with glamour; headings and statuses are styled with lipgloss.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/goliatone/go-urlform/pkg/artifact"
	"github.com/goliatone/go-urlform/pkg/validation"
)

// Option configures a Reporter.
type Option func(*options)

type options struct {
	color    bool
	wordWrap int
}

// WithColor enables ANSI styling. Reports are plain text by default.
func WithColor(enabled bool) Option {
	return func(o *options) { o.color = enabled }
}

// WithWordWrap sets the markdown wrap width.
func WithWordWrap(width int) Option {
	return func(o *options) {
		if width > 0 {
			o.wordWrap = width
		}
	}
}

// Reporter writes styled reports to one writer.
type Reporter struct {
	out      io.Writer
	markdown *glamour.TermRenderer

	title lipgloss.Style
	label lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	muted lipgloss.Style
}

// New builds a reporter for out.
func New(out io.Writer, opts ...Option) (*Reporter, error) {
	cfg := options{wordWrap: 80}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	renderer := lipgloss.NewRenderer(out)
	style := glamour.WithStandardStyle("notty")
	profile := termenv.Ascii
	if cfg.color {
		style = glamour.WithAutoStyle()
		profile = termenv.ColorProfile()
	}
	renderer.SetColorProfile(profile)

	markdown, err := glamour.NewTermRenderer(
		style,
		glamour.WithColorProfile(profile),
		glamour.WithWordWrap(cfg.wordWrap),
	)
	if err != nil {
		return nil, fmt.Errorf("report: markdown renderer: %w", err)
	}

	return &Reporter{
		out:      out,
		markdown: markdown,
		title:    renderer.NewStyle().Bold(true).Underline(true),
		label:    renderer.NewStyle().Bold(true),
		ok:       renderer.NewStyle().Foreground(lipgloss.Color("10")),
		fail:     renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		muted:    renderer.NewStyle().Italic(true).Foreground(lipgloss.Color("8")),
	}, nil
}

func (r *Reporter) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// Validation prints meta-schema and per-form resolution problems and
// reports whether there were none.
func (r *Reporter) Validation(location string, errs []validation.Error, formErrs []error) bool {
	r.printf("%s\n", r.title.Render("Definition "+location))
	if len(errs) == 0 && len(formErrs) == 0 {
		r.printf("%s\n", r.ok.Render("✓ valid"))
		return true
	}
	for _, e := range errs {
		path := e.Path
		if path == "" {
			path = "/"
		}
		r.printf("%s %s %s\n", r.fail.Render("✗"), r.label.Render(path), e.Message)
	}
	for _, err := range formErrs {
		r.printf("%s %s\n", r.fail.Render("✗"), err.Error())
	}
	r.printf("%s\n", r.fail.Render(fmt.Sprintf("%d %s", len(errs)+len(formErrs), plural(len(errs)+len(formErrs), "problem"))))
	return false
}

// Artifacts prints one render. err may be the *artifact.RenderError that
// came with a partial result.
func (r *Reporter) Artifacts(a *artifact.Artifacts, err error) {
	if a == nil {
		a = &artifact.Artifacts{}
	}
	r.printf("%s\n", r.title.Render("Artifacts"))
	r.field("url", a.URL)
	r.field("download_filename", a.DownloadFilename)
	r.field("submit_target", a.SubmitTarget)
	if a.SubmitButton.Text != "" {
		r.printf("%s\n%s", r.label.Render("submit_button"), r.renderMarkdown(a.SubmitButton.Text))
	}
	for _, side := range []struct {
		name      string
		fragments map[string]artifact.Fragment
	}{{"above", a.Above}, {"below", a.Below}} {
		for _, form := range sortedFragmentKeys(side.fragments) {
			r.printf("%s\n%s", r.label.Render(side.name+"_"+form), r.renderMarkdown(side.fragments[form].Text))
		}
	}

	if len(a.Checks) > 0 {
		r.printf("%s\n", r.title.Render("Checks"))
		for _, check := range a.Checks {
			if check.Passed {
				r.printf("%s %s\n", r.ok.Render("✓"), check.Label)
				continue
			}
			r.printf("%s %s: %s\n", r.fail.Render("✗"), check.Label, check.Message)
		}
	}

	var renderErr *artifact.RenderError
	switch {
	case errors.As(err, &renderErr):
		r.printf("%s\n", r.title.Render("Template errors"))
		names := make([]string, 0, len(renderErr.Errors))
		for name := range renderErr.Errors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r.printf("%s %s %v\n", r.fail.Render("✗"), r.label.Render(name), renderErr.Errors[name])
		}
	case err != nil:
		r.printf("%s %v\n", r.fail.Render("✗"), err)
	}
}

// Deployed prints the files written by a build.
func (r *Reporter) Deployed(dir string, manifest artifact.Manifest, stylesheet string) {
	r.printf("%s\n", r.title.Render("Output "+dir))
	forms := make([]string, 0, len(manifest))
	for form := range manifest {
		forms = append(forms, form)
	}
	sort.Strings(forms)
	for _, form := range forms {
		fields := make([]string, 0, len(manifest[form]))
		for field := range manifest[form] {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			r.printf("  %s.%s → %s\n", form, field, manifest[form][field])
		}
	}
	if stylesheet != "" {
		r.printf("  stylesheet → %s\n", stylesheet)
	}
	if len(forms) == 0 && stylesheet == "" {
		r.printf("  %s\n", r.muted.Render("nothing written"))
	}
}

func (r *Reporter) field(name, value string) {
	if value == "" {
		return
	}
	r.printf("%s %s\n", r.label.Render(name+":"), value)
}

func (r *Reporter) renderMarkdown(text string) string {
	rendered, err := r.markdown.Render(text)
	if err != nil {
		return text + "\n"
	}
	if !strings.HasSuffix(rendered, "\n") {
		rendered += "\n"
	}
	return rendered
}

func sortedFragmentKeys(m map[string]artifact.Fragment) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
