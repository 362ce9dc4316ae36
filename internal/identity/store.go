package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/orgunit"
	"github.com/bloodlink/bloodlink/internal/rbac"
)

// PGStore loads principals from PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a store over pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const (
	selectPrincipal = `SELECT u.id, u.is_active, u.org_unit_id, ou.level
FROM users u
JOIN org_units ou ON ou.id = u.org_unit_id
WHERE u.id = $1`

	selectRoleCodes = `SELECT r.code
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1
ORDER BY r.code`

	selectPermissionNames = `SELECT DISTINCT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY p.name`
)

// LoadPrincipal reads the user's current state, placement, roles and permissions.
func (s *PGStore) LoadPrincipal(ctx context.Context, userID int64) (rbac.Principal, error) {
	var (
		p     rbac.Principal
		level string
	)
	err := s.pool.QueryRow(ctx, selectPrincipal, userID).Scan(&p.UserID, &p.IsActive, &p.OrgUnitID, &level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Principal{}, ErrUnknownPrincipal
		}
		return rbac.Principal{}, fmt.Errorf("identity: load user %d: %w", userID, err)
	}
	p.Level, err = orgunit.ParseLevel(level)
	if err != nil {
		return rbac.Principal{}, fmt.Errorf("identity: user %d: %w", userID, err)
	}
	if p.Roles, err = s.names(ctx, selectRoleCodes, userID); err != nil {
		return rbac.Principal{}, fmt.Errorf("identity: load roles: %w", err)
	}
	if p.Permissions, err = s.names(ctx, selectPermissionNames, userID); err != nil {
		return rbac.Principal{}, fmt.Errorf("identity: load permissions: %w", err)
	}
	return p, nil
}

func (s *PGStore) names(ctx context.Context, query string, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
