package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-urlform/internal/server"
	"github.com/goliatone/go-urlform/internal/watch"
	"github.com/goliatone/go-urlform/pkg/artifact"
	"github.com/goliatone/go-urlform/pkg/config"
	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/prompt"
	"github.com/goliatone/go-urlform/pkg/source"
	"github.com/goliatone/go-urlform/pkg/validation"
)

type buildCmd struct {
	app          *app
	out          string
	resourcePath string
}

func (*buildCmd) Name() string     { return "build" }
func (*buildCmd) Synopsis() string { return "write the expanded forms and stylesheet to an output directory" }
func (*buildCmd) Usage() string {
	return `build [-o dir] [-resource-path dir] [definition]:
  Load, expand and validate a definition, then write every inline schema,
  ui_schema and form_data as a content-hashed JSON file.
`
}

func (c *buildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "o", "", "output directory (default from config)")
	f.StringVar(&c.resourcePath, "resource-path", "", "directory relative references resolve against")
}

func (c *buildCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	l := loggerFrom(args, c.Name())
	if err := c.app.cfg.Override(config.Config{OutputDir: c.out, ResourcePath: c.resourcePath}); err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}
	location, err := c.app.location(f.Args())
	if err != nil {
		l.Println(err)
		return subcommands.ExitUsageError
	}
	rep, err := c.app.reporter()
	if err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}
	if err := c.app.build(ctx, location, c.app.cfg.OutputDir, rep); err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type renderCmd struct {
	app         *app
	data        string
	interactive bool
	json        bool
}

func (*renderCmd) Name() string     { return "render" }
func (*renderCmd) Synopsis() string { return "render the artifacts for some form data" }
func (*renderCmd) Usage() string {
	return `render [-data file] [-interactive] [-json] [definition]:
  Render the url, submit button, download filename and checks. Form data
  is keyed by form name and layered over each form's initial data.
`
}

func (c *renderCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.data, "data", "", "form data file (json, yaml or toml)")
	f.BoolVar(&c.interactive, "interactive", false, "prompt for the form data")
	f.BoolVar(&c.json, "json", false, "print the artifacts as JSON")
}

func (c *renderCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	l := loggerFrom(args, c.Name())
	location, err := c.app.location(f.Args())
	if err != nil {
		l.Println(err)
		return subcommands.ExitUsageError
	}
	b, err := c.app.prepare(ctx, location)
	if err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}

	var data map[string]any
	if c.data != "" {
		if data, err = readData(c.data); err != nil {
			l.Println(err)
			return subcommands.ExitFailure
		}
	}
	if c.interactive {
		driver := prompt.NewSurveyDriver(c.app.stderr)
		if data, err = prompt.CollectDefinition(ctx, driver, b.Definition(), data, prompt.WithLogger(c.app.logger)); err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				l.Println("aborted")
				return subcommands.ExitFailure
			}
			l.Println(err)
			return subcommands.ExitFailure
		}
	}

	out, err := b.Render(data)
	var renderErr *artifact.RenderError
	if err != nil && !errors.As(err, &renderErr) {
		l.Println(err)
		return subcommands.ExitFailure
	}
	if c.json {
		raw, encErr := document.EncodeJSON(out, document.JSONOptions{Indent: 2})
		if encErr != nil {
			l.Println(encErr)
			return subcommands.ExitFailure
		}
		fmt.Fprintln(c.app.stdout, string(raw))
		if renderErr != nil {
			l.Println(renderErr)
		}
	} else {
		rep, repErr := c.app.reporter()
		if repErr != nil {
			l.Println(repErr)
			return subcommands.ExitFailure
		}
		rep.Artifacts(out, err)
	}
	if renderErr != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type checkCmd struct {
	app *app
}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "validate a definition" }
func (*checkCmd) Usage() string {
	return `check [definition]:
  Print meta-schema violations and unresolved form references. Exits 1
  when there are any.
`
}

func (*checkCmd) SetFlags(*flag.FlagSet) {}

func (c *checkCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	l := loggerFrom(args, c.Name())
	location, err := c.app.location(f.Args())
	if err != nil {
		l.Println(err)
		return subcommands.ExitUsageError
	}
	b, err := c.app.load(ctx, location)
	if err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}
	rep, err := c.app.reporter()
	if err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}
	if !rep.Validation(location, b.ValidationErrors(), b.FormErrors()) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type serveCmd struct {
	app   *app
	addr  string
	watch bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve a JSON preview API for a definition" }
func (*serveCmd) Usage() string {
	return `serve [-addr host:port] [-watch] [definition]:
  Serve /healthz, /definition, /forms, /render and /style until
  interrupted. With -watch the definition is reloaded when its files change.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "listen address (default from config)")
	f.BoolVar(&c.watch, "watch", false, "reload the definition when its files change")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	l := loggerFrom(args, c.Name())
	if err := c.app.cfg.Override(config.Config{Serve: config.ServeConfig{Addr: c.addr}}); err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}
	location, err := c.app.location(f.Args())
	if err != nil {
		l.Println(err)
		return subcommands.ExitUsageError
	}
	if c.watch && source.IsURL(location) {
		l.Printf("cannot watch a remote definition: %s", location)
		return subcommands.ExitUsageError
	}
	b, err := c.app.prepare(ctx, location)
	if err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}

	srv := server.New(b,
		server.WithLogger(c.app.logger),
		server.WithHooks(c.app.cfg.Hooks(c.app.logger)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, c.app.cfg.Serve.Addr)
	})
	if c.watch {
		w := c.app.watcher(location)
		g.Go(func() error {
			return w.Run(gctx, func(ctx context.Context, changed []string) error {
				next, err := c.app.prepare(ctx, location)
				if err != nil {
					return err
				}
				srv.Swap(next)
				c.app.logger.Info("definition reloaded", "changed", changed)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type watchCmd struct {
	app *app
	out string
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "rebuild whenever the definition's files change" }
func (*watchCmd) Usage() string {
	return `watch [-o dir] [definition]:
  Run build once, then again after every batch of changes to the
  definition's directory, until interrupted.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "o", "", "output directory (default from config)")
}

func (c *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	l := loggerFrom(args, c.Name())
	if err := c.app.cfg.Override(config.Config{OutputDir: c.out}); err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}
	location, err := c.app.location(f.Args())
	if err != nil {
		l.Println(err)
		return subcommands.ExitUsageError
	}
	if source.IsURL(location) {
		l.Printf("cannot watch a remote definition: %s", location)
		return subcommands.ExitUsageError
	}
	rep, err := c.app.reporter()
	if err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}

	rebuild := func(ctx context.Context, _ []string) error {
		return c.app.build(ctx, location, c.app.cfg.OutputDir, rep)
	}
	if err := rebuild(ctx, nil); err != nil {
		// Keep watching: the next save may fix it.
		l.Println(err)
	}
	if err := c.app.watcher(location).Run(ctx, rebuild); err != nil {
		l.Println(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type schemaCmd struct {
	app *app
}

func (*schemaCmd) Name() string     { return "schema" }
func (*schemaCmd) Synopsis() string { return "print the definition meta-schema" }
func (*schemaCmd) Usage() string {
	return `schema:
  Print the JSON schema every definition is validated against.
`
}

func (*schemaCmd) SetFlags(*flag.FlagSet) {}

func (c *schemaCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if _, err := c.app.stdout.Write(validation.MetaSchema()); err != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// watcher watches the definition and, when set, the resource directory.
func (a *app) watcher(location string) *watch.Watcher {
	paths := []string{location}
	if a.cfg.ResourcePath != "" {
		paths = append(paths, a.cfg.ResourcePath)
	}
	return watch.New(paths,
		watch.WithDebounce(a.cfg.Watch.Debounce),
		watch.WithLogger(a.logger),
	)
}
