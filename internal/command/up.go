package command

import (
	"context"
	"strings"

	"github.com/mitchellh/cli"

	"github.com/root-talis/henka/v2"
	"github.com/root-talis/henka/v2/plan"
)

type UpCmd struct {
	base
	to     string
	dryRun bool
}

func NewUpCmd(env Env) cli.CommandFactory {
	return func() (cli.Command, error) {
		cmd := &UpCmd{base: base{env: env}}
		cmd.init("up")
		cmd.flags.StringVar(&cmd.to, "to", "", "Apply migrations up to and including this version or id")
		cmd.flags.BoolVar(&cmd.dryRun, "dry-run", false, "Simulate the run without touching the database")
		return cmd, nil
	}
}

var _ cli.Command = (*UpCmd)(nil)

func (c *UpCmd) Synopsis() string {
	return "Apply pending migrations"
}

func (c *UpCmd) Help() string {
	return c.usage(strings.TrimSpace(`
Usage: henka up [options]

  Applies every pending migration newer than the newest applied one, oldest
  first, each in its own transaction. Stops at the first failure.`))
}

func (c *UpCmd) Run(args []string) int {
	if err := c.flags.Parse(args); err != nil {
		return ExitErr
	}

	version, err := parseTarget(c.to)
	if err != nil {
		c.printError(err)
		return ExitErr
	}

	return c.run(func(ctx context.Context, migrator henka.Henka) error {
		var opts []henka.RunOption
		if c.dryRun {
			opts = append(opts, henka.DryRun())
		}

		result, err := migrator.Upgrade(ctx, plan.To(version), opts...)
		if result != nil {
			c.printMigrations("applied", result)
		}
		return err
	})
}
