package command

import (
	"context"
	"errors"
	"strings"

	"github.com/mitchellh/cli"

	"github.com/root-talis/henka/v2"
	"github.com/root-talis/henka/v2/plan"
)

var errConflictingTargets = errors.New("--to, --steps and --all can not be combined")

type DownCmd struct {
	base
	to     string
	steps  uint
	all    bool
	dryRun bool
}

func NewDownCmd(env Env) cli.CommandFactory {
	return func() (cli.Command, error) {
		cmd := &DownCmd{base: base{env: env}}
		cmd.init("down")
		cmd.flags.StringVar(&cmd.to, "to", "", "Revert migrations newer than this version or id")
		cmd.flags.UintVar(&cmd.steps, "steps", 0, "Revert this many migrations (default 1)")
		cmd.flags.BoolVar(&cmd.all, "all", false, "Revert every applied migration")
		cmd.flags.BoolVar(&cmd.dryRun, "dry-run", false, "Simulate the run without touching the database")
		return cmd, nil
	}
}

var _ cli.Command = (*DownCmd)(nil)

func (c *DownCmd) Synopsis() string {
	return "Revert applied migrations"
}

func (c *DownCmd) Help() string {
	return c.usage(strings.TrimSpace(`
Usage: henka down [options]

  Reverts applied migrations, newest first, each in its own transaction.
  Without options only the newest applied migration is reverted.`))
}

func (c *DownCmd) Run(args []string) int {
	if err := c.flags.Parse(args); err != nil {
		return ExitErr
	}

	target, err := c.target()
	if err != nil {
		c.printError(err)
		return ExitErr
	}

	return c.run(func(ctx context.Context, migrator henka.Henka) error {
		var opts []henka.RunOption
		if c.dryRun {
			opts = append(opts, henka.DryRun())
		}

		result, err := migrator.Downgrade(ctx, target, opts...)
		if result != nil {
			c.printMigrations("reverted", result)
		}
		return err
	})
}

func (c *DownCmd) target() (plan.Target, error) {
	set := 0
	if c.to != "" {
		set++
	}
	if c.steps != 0 {
		set++
	}
	if c.all {
		set++
	}
	if set > 1 {
		return plan.Target{}, errConflictingTargets
	}

	switch {
	case c.all:
		return plan.Latest(), nil
	case c.to != "":
		version, err := parseTarget(c.to)
		if err != nil {
			return plan.Target{}, err
		}
		return plan.To(version), nil
	case c.steps != 0:
		return plan.Last(c.steps), nil
	default:
		return plan.Last(1), nil
	}
}
