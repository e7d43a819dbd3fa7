// Package files reads migrations from a directory of step files named
// V<version>_<name>.up.hmf and V<version>_<name>.down.hmf.
package files

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/source"
)

const (
	prefix     = "V"
	upSuffix   = ".up.hmf"
	downSuffix = ".down.hmf"
)

var (
	ErrMigrationsDirectoryIsNotADirectory = errors.New("migrations directory is not a directory")
)

type filesSource struct {
	fsys          fs.FS
	migrationsDir string
}

func NewFilesSource(fsys fs.FS, migrationsDirectory string) (source.Source, error) {
	stat, err := fs.Stat(fsys, migrationsDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to stat migrations directory: %w", err)
	}

	if !stat.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrMigrationsDirectoryIsNotADirectory, migrationsDirectory)
	}

	return &filesSource{
		fsys:          fsys,
		migrationsDir: migrationsDirectory,
	}, nil
}

// FileName returns the name of the file holding the steps of mig in
// direction.
func FileName(mig migration.Migration, direction migration.Direction) string {
	suffix := upSuffix
	if direction == migration.Down {
		suffix = downSuffix
	}
	return prefix + mig.ID() + suffix
}

func (src *filesSource) GetAvailableMigrations() ([]migration.Description, error) {
	dirEntries, err := fs.ReadDir(src.fsys, src.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read contents of migrations directory: %w", err)
	}

	// find all suitable migrations and build a collection of descriptions
	migrations := make(versionMap)
	for _, entry := range dirEntries {
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}

		fileName := entry.Name()

		var direction migration.Direction
		switch {
		case strings.HasSuffix(fileName, upSuffix):
			direction = migration.Up
		case strings.HasSuffix(fileName, downSuffix):
			direction = migration.Down
		default:
			continue
		}

		mig, err := getValidMigrationFromFileName(fileName)
		if err != nil {
			continue
		}

		if err := migrations.updateDescription(mig, direction); err != nil {
			return nil, fmt.Errorf("failed to parse directory entries: %w", err)
		}
	}

	return migrations.sorted(), nil
}

func (src *filesSource) ReadMigration(mig migration.Migration, direction migration.Direction) (io.ReadCloser, error) {
	file, err := src.fsys.Open(path.Join(src.migrationsDir, FileName(mig, direction)))
	if err != nil {
		return nil, fmt.Errorf("failed to open migration file: %w", err)
	}
	return file, nil
}

// ---

type versionMap map[migration.Version]migration.Description

func (m versionMap) updateDescription(mig migration.Migration, direction migration.Direction) error {
	descr, exists := m[mig.Version]

	switch {
	case !exists:
		m[mig.Version] = migration.Description{
			Migration: mig,
			CanUndo:   direction == migration.Down,
		}

	case descr.Name != mig.Name:
		return fmt.Errorf(
			"%w: %d is used by \"%s\" (new name \"%s\" is encountered)",
			source.ErrMigrationDuplicated,
			mig.Version,
			descr.Name,
			mig.Name,
		)

	case direction == migration.Down:
		descr.CanUndo = true
		m[mig.Version] = descr
	}

	return nil
}

func (m versionMap) sorted() []migration.Description {
	result := make([]migration.Description, 0, len(m))
	for _, descr := range m {
		result = append(result, descr)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})

	return result
}

func getValidMigrationFromFileName(fileName string) (migration.Migration, error) {
	if !strings.HasPrefix(fileName, prefix) {
		return migration.Migration{}, fmt.Errorf("migration file name is invalid: %s", fileName)
	}

	migrationFullName := strings.TrimPrefix(fileName, prefix)
	migrationFullName = strings.TrimSuffix(migrationFullName, upSuffix)
	migrationFullName = strings.TrimSuffix(migrationFullName, downSuffix)

	asRunes := []rune(migrationFullName)

	if len(asRunes) < migration.VersionLength+1 {
		return migration.Migration{}, fmt.Errorf("migration file name is too short to be valid: %s", fileName)
	}

	version := asRunes[:migration.VersionLength]

	for _, c := range version {
		if !unicode.IsDigit(c) {
			return migration.Migration{}, fmt.Errorf(
				"migration file name does not contain a valid version (symbol \"%c\" is not allowed): %s",
				c,
				fileName,
			)
		}
	}

	versionAsInt, err := strconv.ParseUint(string(version), 10, migration.VersionBits)
	if err != nil || versionAsInt == 0 {
		return migration.Migration{}, fmt.Errorf("migration file name does not contain a valid version: %s", fileName)
	}

	nameAsRunes := asRunes[migration.VersionLength:]
	if nameAsRunes[0] != '_' {
		return migration.Migration{}, fmt.Errorf(
			"migration file is missing an underscore after version (%c given): %s", nameAsRunes[0], fileName,
		)
	}

	name := string(nameAsRunes[1:])
	if name == "" {
		return migration.Migration{}, fmt.Errorf("migration file name has no migration name: %s", fileName)
	}

	return migration.Migration{
		Version: migration.Version(versionAsInt),
		Name:    name,
	}, nil
}
