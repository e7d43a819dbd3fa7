package migration

import (
	"fmt"
	"strconv"
	"time"
)

type Direction rune

const (
	Down Direction = 'd'
	Up   Direction = 'u'
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return fmt.Sprintf("direction(%q)", rune(d))
	}
}

// ---

const (
	VersionBits = 64

	// VersionLength is the number of digits in a version: YYYYMMDDhhmmss.
	VersionLength = 14
)

type Version uint64

// MaxVersion is the largest version that fits in VersionLength digits.
const MaxVersion Version = 99999999999999

func (v Version) String() string {
	return fmt.Sprintf("%0*d", VersionLength, uint64(v))
}

// ParseVersion reads a version from its decimal form. Both a bare version
// and a full migration id ("<version>_<name>") are accepted.
func ParseVersion(s string) (Version, error) {
	if len(s) > VersionLength && s[VersionLength] == '_' {
		s = s[:VersionLength]
	}

	v, err := strconv.ParseUint(s, 10, VersionBits)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%q is not a valid migration version", s)
	}

	return Version(v), nil
}

// Migration identifies a migration. Versions are unique within a registry;
// ordering between migrations is the ordering of their versions.
type Migration struct {
	Version Version
	Name    string
}

// ID returns the sortable identifier "<version>_<name>".
func (m Migration) ID() string {
	return m.Version.String() + "_" + m.Name
}

func (m Migration) String() string {
	return m.ID()
}

// ---

type Status uint

const (
	Pending Status = iota
	Applied
	Missing
	Skipped
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Applied:
		return "applied"
	case Missing:
		return "missing"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ---

// Log is one row of the migrations log. The log is append-only: applying a
// migration adds an Up row, reverting it adds a Down row.
type Log struct {
	Migration
	Direction
	AppliedAt time.Time
	Checksum  string
}

// ---

type Description struct {
	Migration
	CanUndo bool
}

type State struct {
	Description
	Status    Status
	AppliedAt time.Time
	Checksum  string
	Modified  bool
}
