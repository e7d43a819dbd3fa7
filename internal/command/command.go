// Package command implements the subcommands of the henka binary.
package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mitchellh/cli"

	"github.com/root-talis/henka/v2"
	"github.com/root-talis/henka/v2/config"
	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/migration"
)

const (
	ExitSuccess = 0
	ExitErr     = 1
)

// Env is where commands write. Tests replace it.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
}

func DefaultEnv() Env {
	return Env{Stdout: os.Stdout, Stderr: os.Stderr}
}

// base carries what every subcommand shares: the config flag, output and
// the setup of the migrator.
type base struct {
	env        Env
	flags      *flag.FlagSet
	configFile string
}

func (b *base) init(name string) {
	b.flags = flag.NewFlagSet(name, flag.ContinueOnError)
	b.flags.SetOutput(b.env.Stderr)
	b.flags.StringVar(&b.configFile, "config", "henka.yml", "Config file to load")
	b.flags.StringVar(&b.configFile, "c", "henka.yml", "Config file to load (shorthand)")
}

func (b *base) usage(text string) string {
	var out strings.Builder
	b.flags.SetOutput(&out)
	b.flags.PrintDefaults()
	b.flags.SetOutput(b.env.Stderr)
	return text + "\n\nOptions:\n" + out.String()
}

// run loads the config, builds the migrator and calls fn with it.
func (b *base) run(fn func(ctx context.Context, migrator henka.Henka) error) int {
	conf, err := config.Load(b.configFile)
	if err != nil {
		b.printError(err)
		return ExitErr
	}

	zapLog, err := logger.NewZapWriter(b.env.Stderr, conf.Log.Level)
	if err != nil {
		b.printError(err)
		return ExitErr
	}
	log := logger.NewZap(zapLog)
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logger.Inject(ctx, logger.KV("driver", conf.Driver))

	c, err := setup(ctx, conf, log)
	if err != nil {
		log.Error(ctx, "error setup", logger.KV("error", err))
		b.printError(err)
		return ExitErr
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error(ctx, "error close connections", logger.KV("error", err))
		}
	}()

	if err := fn(ctx, c.migrator); err != nil {
		b.printError(err)
		return ExitErr
	}

	return ExitSuccess
}

func (b *base) printError(err error) {
	var execErr *henka.ExecutionError
	if errors.As(err, &execErr) {
		_, _ = fmt.Fprintf(b.env.Stderr, "failed migration: %s\n", execErr.Migration.ID())
	}
	_, _ = fmt.Fprintf(b.env.Stderr, "error: %s\n", err)
}

func (b *base) printMigrations(verb string, result *henka.Result) {
	prefix := ""
	if result.DryRun {
		prefix = "[dry run] "
	}

	if len(result.Migrations) == 0 {
		_, _ = fmt.Fprintf(b.env.Stdout, "%snothing to do\n", prefix)
		return
	}

	for _, mig := range result.Migrations {
		_, _ = fmt.Fprintf(b.env.Stdout, "%s%s %s\n", prefix, verb, mig.ID())
	}
}

// parseTarget reads a --to value: a bare version or a full migration id.
func parseTarget(value string) (migration.Version, error) {
	if value == "" {
		return 0, nil
	}
	return migration.ParseVersion(value)
}

// Commands returns the command table for cli.CLI.
func Commands(env Env) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"up":     NewUpCmd(env),
		"down":   NewDownCmd(env),
		"status": NewStatusCmd(env),
	}
}
