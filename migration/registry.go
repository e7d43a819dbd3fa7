package migration

import (
	"fmt"
	"sort"
)

// Registry holds every known migration record ordered by version. It is
// built once at startup and handed to the planner and the executor.
type Registry struct {
	records []Record
	index   map[Version]int
}

func NewRegistry(records ...Record) (*Registry, error) {
	r := &Registry{
		records: make([]Record, 0, len(records)),
		index:   make(map[Version]int, len(records)),
	}

	for _, rec := range records {
		if err := r.Register(rec); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds rec to the registry, keeping records ordered by version.
func (r *Registry) Register(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	if i, exists := r.index[rec.Version]; exists {
		return fmt.Errorf(
			"%w: %d is used by \"%s\" (new name \"%s\" is encountered)",
			ErrDuplicateID,
			rec.Version,
			r.records[i].Name,
			rec.Name,
		)
	}

	pos := sort.Search(len(r.records), func(i int) bool {
		return r.records[i].Version > rec.Version
	})

	r.records = append(r.records, Record{})
	copy(r.records[pos+1:], r.records[pos:])
	r.records[pos] = rec

	for i := pos; i < len(r.records); i++ {
		r.index[r.records[i].Version] = i
	}

	return nil
}

// All returns a copy of the records ordered by version ascending.
func (r *Registry) All() []Record {
	return append([]Record(nil), r.records...)
}

func (r *Registry) Get(version Version) (Record, bool) {
	i, ok := r.index[version]
	if !ok {
		return Record{}, false
	}
	return r.records[i], true
}

func (r *Registry) Len() int {
	return len(r.records)
}

func (r *Registry) Descriptions() []Description {
	result := make([]Description, len(r.records))
	for i, rec := range r.records {
		result[i] = rec.Description()
	}
	return result
}
