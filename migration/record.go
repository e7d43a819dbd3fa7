package migration

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/root-talis/henka/v2/schema"
)

// Record is a migration together with the steps that apply (Up) and revert
// (Down) it. Down steps run in their declared order, so they are written as
// the inverse of Up in reverse order.
type Record struct {
	Migration
	Up   []schema.Operation
	Down []schema.Operation
}

func (r Record) Description() Description {
	return Description{
		Migration: r.Migration,
		CanUndo:   r.CanUndo(),
	}
}

func (r Record) CanUndo() bool {
	return len(r.Down) > 0
}

// Steps returns the operations to run in direction dir.
func (r Record) Steps(dir Direction) []schema.Operation {
	if dir == Down {
		return r.Down
	}
	return r.Up
}

// Checksum identifies the content of the record. It changes whenever any
// attribute of any step changes.
func (r Record) Checksum() string {
	var b strings.Builder
	b.WriteString(r.ID())
	writeSteps(&b, "up", r.Up)
	writeSteps(&b, "down", r.Down)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(b.String())))
}

func writeSteps(b *strings.Builder, section string, ops []schema.Operation) {
	b.WriteString("\n-- ")
	b.WriteString(section)
	for _, op := range ops {
		b.WriteByte('\n')
		b.WriteString(op.String())
	}
}

// Validate checks the record's identity and every step. It does not check
// that the steps fit any particular schema.
func (r Record) Validate() error {
	if r.Version == 0 {
		return fmt.Errorf("%w: version is zero (%q)", ErrInvalidRecord, r.Name)
	}
	if r.Version > MaxVersion {
		return fmt.Errorf("%w: version %d is longer than %d digits", ErrInvalidRecord, r.Version, VersionLength)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: migration %s has no name", ErrInvalidRecord, r.Version)
	}
	if len(r.Up) == 0 {
		return fmt.Errorf("%w: migration %s has no up steps", ErrInvalidRecord, r.ID())
	}

	for i, op := range r.Up {
		if err := schema.Validate(op); err != nil {
			return fmt.Errorf("%w: migration %s up step %d: %s", ErrInvalidRecord, r.ID(), i+1, err.Error())
		}
	}
	for i, op := range r.Down {
		if err := schema.Validate(op); err != nil {
			return fmt.Errorf("%w: migration %s down step %d: %s", ErrInvalidRecord, r.ID(), i+1, err.Error())
		}
	}

	return nil
}

// CheckSymmetry applies Up and then Down to a copy of base and verifies the
// result equals base. base itself is not changed.
func (r Record) CheckSymmetry(base *schema.Snapshot) error {
	work := base.Clone()

	if err := work.ApplyAll(r.Up); err != nil {
		return fmt.Errorf("migration %s up: %w", r.ID(), err)
	}
	if err := work.ApplyAll(r.Down); err != nil {
		return fmt.Errorf("migration %s down: %w", r.ID(), err)
	}
	if !work.Equal(base) {
		return fmt.Errorf("%w: %s", ErrAsymmetric, r.ID())
	}

	return nil
}
