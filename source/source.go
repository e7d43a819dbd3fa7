// Package source loads migration records from where they are stored.
package source

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/schema"
)

type Source interface {
	GetAvailableMigrations() ([]migration.Description, error)
	ReadMigration(migration migration.Migration, direction migration.Direction) (io.ReadCloser, error)
}

var (
	ErrMigrationDuplicated = errors.New("migration version already exists with different name")
)

// Load reads the steps of every migration available in src and builds a
// registry out of them.
func Load(src Source) (*migration.Registry, error) {
	descriptions, err := src.GetAvailableMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of available migrations: %w", err)
	}

	registry, err := migration.NewRegistry()
	if err != nil {
		return nil, err
	}

	for _, descr := range descriptions {
		rec := migration.Record{Migration: descr.Migration}

		if rec.Up, err = readSteps(src, descr.Migration, migration.Up); err != nil {
			return nil, err
		}
		if descr.CanUndo {
			if rec.Down, err = readSteps(src, descr.Migration, migration.Down); err != nil {
				return nil, err
			}
		}

		if err := registry.Register(rec); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func readSteps(src Source, mig migration.Migration, direction migration.Direction) (ops []schema.Operation, err error) {
	r, err := src.ReadMigration(mig, direction)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s steps of %s: %w", direction, mig.ID(), err)
	}
	defer func() {
		err = multierr.Append(err, r.Close())
	}()

	ops, err = DecodeSteps(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s steps of %s: %w", direction, mig.ID(), err)
	}

	return ops, nil
}
