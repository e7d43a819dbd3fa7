package henka

import (
	"fmt"

	"github.com/root-talis/henka/v2/migration"
)

// ExecutionError reports the migration that stopped a run. Everything
// before it stays applied; its own changes were rolled back.
type ExecutionError struct {
	Migration migration.Migration
	Direction migration.Direction

	// Step is the 1-based index of the failed step, or 0 when the failure
	// happened outside of the steps (begin, history, commit, symmetry).
	Step int

	Err error
}

func (e *ExecutionError) Error() string {
	if e.Step == 0 {
		return fmt.Sprintf("migration %s (%s) failed: %s", e.Migration.ID(), e.Direction, e.Err)
	}
	return fmt.Sprintf("migration %s (%s) failed at step %d: %s", e.Migration.ID(), e.Direction, e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
