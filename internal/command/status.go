package command

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/mitchellh/cli"

	"github.com/root-talis/henka/v2"
	"github.com/root-talis/henka/v2/migration"
)

const timeFormat = "2006-01-02 15:04:05"

type StatusCmd struct {
	base
}

func NewStatusCmd(env Env) cli.CommandFactory {
	return func() (cli.Command, error) {
		cmd := &StatusCmd{base: base{env: env}}
		cmd.init("status")
		return cmd, nil
	}
}

var _ cli.Command = (*StatusCmd)(nil)

func (c *StatusCmd) Synopsis() string {
	return "Show the state of every migration"
}

func (c *StatusCmd) Help() string {
	return c.usage(strings.TrimSpace(`
Usage: henka status [options]

  Lists registered and applied migrations with their status: pending,
  applied, missing (applied but no longer registered) or skipped (never
  applied but older than the newest applied one).`))
}

func (c *StatusCmd) Run(args []string) int {
	if err := c.flags.Parse(args); err != nil {
		return ExitErr
	}

	return c.run(func(ctx context.Context, migrator henka.Henka) error {
		result, err := migrator.Validate(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(c.env.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "MIGRATION\tSTATUS\tAPPLIED AT\tNOTES")
		for _, state := range result.Migrations {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", state.ID(), state.Status, appliedAt(state), notes(state))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(c.env.Stdout,
			"\n%d applied, %d pending, %d missing, %d skipped, %d modified\n",
			result.AppliedCount,
			result.PendingCount,
			result.MissingCount,
			result.SkippedCount,
			result.ModifiedCount,
		)

		return nil
	})
}

func appliedAt(state migration.State) string {
	if state.AppliedAt.IsZero() {
		return "-"
	}
	return state.AppliedAt.UTC().Format(timeFormat)
}

func notes(state migration.State) string {
	var result []string
	if state.Modified {
		result = append(result, "modified")
	}
	if !state.CanUndo && state.Status != migration.Missing {
		result = append(result, "irreversible")
	}
	if len(result) == 0 {
		return "-"
	}
	return strings.Join(result, ", ")
}
