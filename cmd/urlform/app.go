package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/goliatone/go-urlform"
	"github.com/goliatone/go-urlform/internal/report"
	"github.com/goliatone/go-urlform/pkg/artifact"
	"github.com/goliatone/go-urlform/pkg/config"
	"github.com/goliatone/go-urlform/pkg/definition"
	"github.com/goliatone/go-urlform/pkg/document"
)

var errNoDefinition = errors.New("no definition given: pass a path or set `definition` in the config file")

type globals struct {
	config   string
	logLevel string
	color    bool
}

// app carries what every subcommand shares.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
	color  bool
}

func newApp(g globals, stdout, stderr io.Writer) (*app, error) {
	cfg := config.Defaults()
	if g.config != "" {
		loaded, err := config.Load(g.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Override(config.Config{LogLevel: g.logLevel}); err != nil {
		return nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
		stdout: stdout,
		stderr: stderr,
		color:  g.color,
	}, nil
}

func (a *app) location(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if a.cfg.Definition != "" {
		return a.cfg.Definition, nil
	}
	return "", errNoDefinition
}

func (a *app) reporter() (*report.Reporter, error) {
	return report.New(a.stdout, report.WithColor(a.color))
}

func (a *app) newBuilder() *artifact.Builder {
	opts := []artifact.Option{
		artifact.WithResolver(urlform.NewResolver(a.cfg.LoaderOptions())),
		artifact.WithLogger(a.logger),
	}
	if a.cfg.ResourcePath != "" {
		opts = append(opts, artifact.WithExpandOptions(definition.WithResourcePath(a.cfg.ResourcePath)))
	}
	return artifact.New(opts...)
}

// load runs the load, expand and validate phases. Validation problems are
// left on the builder for the caller to report.
func (a *app) load(ctx context.Context, location string) (*artifact.Builder, error) {
	b := a.newBuilder()
	if err := b.Load(ctx, urlform.SourceFor(location)); err != nil {
		return nil, err
	}
	if err := b.Expand(ctx); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// prepare loads location all the way to Ready.
func (a *app) prepare(ctx context.Context, location string) (*artifact.Builder, error) {
	b, err := a.load(ctx, location)
	if err != nil {
		return nil, err
	}
	if err := b.Prepare(nil); err != nil {
		return nil, err
	}
	return b, nil
}

// build deploys the expanded forms and the generated stylesheet to dir and
// prints what was written.
func (a *app) build(ctx context.Context, location, dir string, rep *report.Reporter) error {
	b, err := a.prepare(ctx, location)
	if err != nil {
		return err
	}
	rep.Validation(location, b.ValidationErrors(), b.FormErrors())
	manifest, err := b.Deploy(dir)
	if err != nil {
		return err
	}
	stylesheet, err := a.cfg.Hooks(a.logger).OnBuildComplete(dir)
	if err != nil {
		return err
	}
	rep.Deployed(dir, manifest, stylesheet)
	return nil
}

// readData decodes a form data file keyed by form name.
func readData(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	format, err := document.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	obj, err := document.DecodeObject(format, path, raw)
	if err != nil {
		return nil, err
	}
	return obj.Map(), nil
}
