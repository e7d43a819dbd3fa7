package migration

import "sort"

// Replay folds a migrations log, oldest row first, into the set of migrations
// that are applied now. The last row of each version decides: Up means
// applied, Down means reverted.
func Replay(log []Log) map[Version]Log {
	result := make(map[Version]Log, len(log))

	for _, entry := range log {
		switch entry.Direction {
		case Up:
			result[entry.Version] = entry
		case Down:
			delete(result, entry.Version)
		}
	}

	return result
}

// SortedApplied returns the applied rows ordered by version ascending.
func SortedApplied(applied map[Version]Log) []Log {
	result := make([]Log, 0, len(applied))
	for _, entry := range applied {
		result = append(result, entry)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})

	return result
}
