// Package plan computes which migrations to apply or revert. Planning is a
// pure function of the registered records, the applied set and a target:
// it never touches a database and never looks at the clock.
package plan

import (
	"fmt"
	"sort"

	"github.com/root-talis/henka/v2/migration"
)

// Target bounds a plan. A zero Version and zero Steps mean "no bound": all
// pending migrations for Up, every applied migration for Down.
type Target struct {
	// Version is inclusive for Up (apply up to and including it) and
	// exclusive for Down (revert everything above it).
	Version migration.Version

	// Steps caps the number of records in the plan.
	Steps uint
}

func Latest() Target {
	return Target{}
}

func To(version migration.Version) Target {
	return Target{Version: version}
}

func Last(steps uint) Target {
	return Target{Steps: steps}
}

// ---

type Plan struct {
	Direction migration.Direction
	Records   []migration.Record
}

func (p *Plan) Empty() bool {
	return len(p.Records) == 0
}

func (p *Plan) Migrations() []migration.Migration {
	result := make([]migration.Migration, len(p.Records))
	for i, rec := range p.Records {
		result[i] = rec.Migration
	}
	return result
}

// ---

// Up returns the records newer than the newest applied one, ascending,
// up to and including target.Version.
func Up(records []migration.Record, applied []migration.Migration, target Target) (*Plan, error) {
	sorted, err := prepare(records, applied, target)
	if err != nil {
		return nil, err
	}

	var newest migration.Version
	for _, m := range applied {
		if m.Version > newest {
			newest = m.Version
		}
	}

	result := &Plan{Direction: migration.Up}
	for _, rec := range sorted {
		if rec.Version <= newest {
			continue
		}
		if target.Version != 0 && rec.Version > target.Version {
			break
		}
		if target.Steps != 0 && uint(len(result.Records)) == target.Steps {
			break
		}
		result.Records = append(result.Records, rec)
	}

	return result, nil
}

// Down returns the applied records newest first, stopping above
// target.Version.
func Down(records []migration.Record, applied []migration.Migration, target Target) (*Plan, error) {
	sorted, err := prepare(records, applied, target)
	if err != nil {
		return nil, err
	}

	isApplied := make(map[migration.Version]struct{}, len(applied))
	for _, m := range applied {
		isApplied[m.Version] = struct{}{}
	}

	result := &Plan{Direction: migration.Down}
	for i := len(sorted) - 1; i >= 0; i-- {
		rec := sorted[i]
		if _, ok := isApplied[rec.Version]; !ok {
			continue
		}
		if rec.Version <= target.Version {
			break
		}
		if target.Steps != 0 && uint(len(result.Records)) == target.Steps {
			break
		}
		if !rec.CanUndo() {
			return nil, fmt.Errorf("%w: %s has no down steps", migration.ErrIrreversible, rec.ID())
		}
		result.Records = append(result.Records, rec)
	}

	return result, nil
}

// prepare sorts a copy of records and checks the applied set and the target
// against it.
func prepare(records []migration.Record, applied []migration.Migration, target Target) ([]migration.Record, error) {
	sorted := append([]migration.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	known := make(map[migration.Version]string, len(sorted))
	for _, rec := range sorted {
		known[rec.Version] = rec.Name
	}

	if err := checkDrift(known, applied); err != nil {
		return nil, err
	}

	if target.Version != 0 {
		if _, ok := known[target.Version]; !ok {
			return nil, fmt.Errorf("%w: target %s is not registered", migration.ErrUnknownMigration, target.Version)
		}
	}

	return sorted, nil
}

func checkDrift(known map[migration.Version]string, applied []migration.Migration) error {
	ordered := append([]migration.Migration(nil), applied...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Version < ordered[j].Version
	})

	for _, m := range ordered {
		name, ok := known[m.Version]
		if !ok {
			return fmt.Errorf("%w: %s is applied but not registered", migration.ErrHistoryDrift, m.ID())
		}
		if name != m.Name {
			return fmt.Errorf(
				"%w: %s is applied but version %s is registered as %q",
				migration.ErrHistoryDrift,
				m.ID(),
				m.Version,
				name,
			)
		}
	}

	return nil
}
