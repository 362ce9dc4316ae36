package orgunit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is a read-only lookup of organizational units.
type Repository interface {
	Unit(ctx context.Context, id int64) (Unit, error)
}

// Lister extends Repository with child listing for browsing endpoints.
type Lister interface {
	Repository
	Children(ctx context.Context, parentID int64) ([]Unit, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectUnit = `SELECT id, name, level, parent_id FROM org_units`

// Unit fetches a unit by id.
func (r *PGRepository) Unit(ctx context.Context, id int64) (Unit, error) {
	row := r.pool.QueryRow(ctx, selectUnit+` WHERE id = $1`, id)
	unit, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, ErrNotFound
		}
		return Unit{}, fmt.Errorf("orgunit: get unit %d: %w", id, err)
	}
	return unit, nil
}

// Children lists direct children of a unit ordered by name.
func (r *PGRepository) Children(ctx context.Context, parentID int64) ([]Unit, error) {
	rows, err := r.pool.Query(ctx, selectUnit+` WHERE parent_id = $1 ORDER BY name`, parentID)
	if err != nil {
		return nil, fmt.Errorf("orgunit: list children: %w", err)
	}
	defer rows.Close()
	var units []Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

func scanUnit(row pgx.Row) (Unit, error) {
	var (
		unit  Unit
		level string
	)
	if err := row.Scan(&unit.ID, &unit.Name, &level, &unit.ParentID); err != nil {
		return Unit{}, err
	}
	parsed, err := ParseLevel(level)
	if err != nil {
		return Unit{}, err
	}
	unit.Level = parsed
	return unit, nil
}

var _ Lister = (*PGRepository)(nil)
