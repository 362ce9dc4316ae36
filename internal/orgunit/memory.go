package orgunit

import (
	"context"
	"sort"
)

// MemoryRepository serves a fixed set of units from memory. It backs tests and
// local tooling; the map is never written after construction.
type MemoryRepository struct {
	units map[int64]Unit
}

// NewMemoryRepository indexes the given units by id.
func NewMemoryRepository(units ...Unit) *MemoryRepository {
	index := make(map[int64]Unit, len(units))
	for _, u := range units {
		index[u.ID] = u
	}
	return &MemoryRepository{units: index}
}

// Unit returns the unit or ErrNotFound.
func (m *MemoryRepository) Unit(ctx context.Context, id int64) (Unit, error) {
	if err := ctx.Err(); err != nil {
		return Unit{}, err
	}
	unit, ok := m.units[id]
	if !ok {
		return Unit{}, ErrNotFound
	}
	return unit, nil
}

// Children lists units whose parent is parentID.
func (m *MemoryRepository) Children(ctx context.Context, parentID int64) ([]Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var children []Unit
	for _, u := range m.units {
		if u.ParentID != nil && *u.ParentID == parentID {
			children = append(children, u)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}

var _ Lister = (*MemoryRepository)(nil)
