package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/bloodlink/bloodlink/internal/orgunit"
)

// maxAncestorHops bounds the parent walk: Municipal > Provincial > Regional > National.
const maxAncestorHops = 3

// Scope refusals. Both surface to callers as ErrForbidden.
var (
	ErrUnitNotFound = errors.New("rbac: unit not found")
	ErrOutOfScope   = errors.New("rbac: unit outside principal scope")
)

// Scope decides whether a principal's unit dominates a target unit.
type Scope struct {
	units orgunit.Repository
}

// NewScope constructs a Scope over the unit repository.
func NewScope(units orgunit.Repository) *Scope {
	return &Scope{units: units}
}

// CanAccessUnit reports whether p may act on target.
func (s *Scope) CanAccessUnit(ctx context.Context, p Principal, target int64) bool {
	return s.Check(ctx, p, target) == nil
}

// Check returns nil when p may act on target and the refusal cause otherwise.
// Only equal units or strict ancestors grant access; National sees every unit.
func (s *Scope) Check(ctx context.Context, p Principal, target int64) error {
	if s == nil || s.units == nil {
		return errors.New("rbac: scope repository not configured")
	}
	unit, err := s.lookup(ctx, target)
	if err != nil {
		return err
	}
	if p.OrgUnitID == unit.ID {
		return nil
	}
	if p.Level == orgunit.LevelNational {
		return nil
	}
	if !p.Level.Valid() || p.Level == orgunit.LevelMunicipal {
		return ErrOutOfScope
	}
	if _, err := s.lookup(ctx, p.OrgUnitID); err != nil {
		return fmt.Errorf("principal unit: %w", err)
	}

	current := unit
	for hop := 0; hop < maxAncestorHops; hop++ {
		if current.ParentID == nil {
			return ErrOutOfScope
		}
		parentID := *current.ParentID
		if parentID == p.OrgUnitID {
			return nil
		}
		if hop == maxAncestorHops-1 {
			break
		}
		current, err = s.lookup(ctx, parentID)
		if err != nil {
			return fmt.Errorf("ancestor of %d: %w", target, err)
		}
	}
	return ErrOutOfScope
}

func (s *Scope) lookup(ctx context.Context, id int64) (orgunit.Unit, error) {
	unit, err := s.units.Unit(ctx, id)
	if err != nil {
		if errors.Is(err, orgunit.ErrNotFound) {
			return orgunit.Unit{}, fmt.Errorf("%w: %d", ErrUnitNotFound, id)
		}
		return orgunit.Unit{}, err
	}
	return unit, nil
}
