// Command urlform builds, checks, renders and previews form definitions.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "[urlform] ", log.Lmsgprefix)

	top := flag.NewFlagSet("urlform", flag.ContinueOnError)
	top.SetOutput(stderr)
	var g globals
	top.StringVar(&g.config, "config", "", "configuration file (yaml, toml or json)")
	top.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")
	top.BoolVar(&g.color, "color", false, "style reports with ANSI colors")
	if err := top.Parse(args); err != nil {
		return int(subcommands.ExitUsageError)
	}

	a, err := newApp(g, stdout, stderr)
	if err != nil {
		logger.Println(err)
		return int(subcommands.ExitFailure)
	}

	commander := subcommands.NewCommander(top, "urlform")
	commander.Output = stdout
	commander.Error = stderr
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	commander.Register(&buildCmd{app: a}, "")
	commander.Register(&renderCmd{app: a}, "")
	commander.Register(&checkCmd{app: a}, "")
	commander.Register(&serveCmd{app: a}, "")
	commander.Register(&watchCmd{app: a}, "")
	commander.Register(&schemaCmd{app: a}, "")

	return int(commander.Execute(ctx, logger))
}

// loggerFrom pulls the command logger out of the Execute arguments.
func loggerFrom(args []interface{}, name string) *log.Logger {
	for _, arg := range args {
		if l, ok := arg.(*log.Logger); ok {
			return log.New(l.Writer(), fmt.Sprintf("[urlform %s] ", name), l.Flags())
		}
	}
	return log.New(os.Stderr, fmt.Sprintf("[urlform %s] ", name), log.Lmsgprefix)
}
