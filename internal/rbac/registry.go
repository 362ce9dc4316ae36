package rbac

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bloodlink/bloodlink/internal/orgunit"
)

// ErrInvalidRequirement wraps requirement validation failures.
var ErrInvalidRequirement = errors.New("rbac: invalid requirement")

// Registry is the closed set of permission names and role codes that
// requirements may reference. It is immutable after construction.
type Registry struct {
	permissions map[string]struct{}
	roles       map[string]struct{}
	validate    *validator.Validate
}

// NewRegistry builds a registry from the given names.
func NewRegistry(permissions, roles []string) *Registry {
	r := &Registry{
		permissions: nameSet(permissions),
		roles:       nameSet(roles),
		validate:    validator.New(),
	}
	_ = r.validate.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		return r.KnownPermission(fl.Field().String())
	})
	_ = r.validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return r.KnownRole(fl.Field().String())
	})
	_ = r.validate.RegisterValidation("orglevel", func(fl validator.FieldLevel) bool {
		return orgunit.Level(fl.Field().Int()).Valid()
	})
	return r
}

// DefaultRegistry returns a registry of every permission and role declared in this package.
func DefaultRegistry() *Registry {
	var perms []string
	perms = append(perms, DonationScopes()...)
	perms = append(perms, InventoryScopes()...)
	perms = append(perms, FinanceScopes()...)
	perms = append(perms, CoreScopes()...)
	return NewRegistry(perms, StaffRoles())
}

// KnownPermission reports whether name is registered.
func (r *Registry) KnownPermission(name string) bool {
	n := normalizeName(name)
	if n == "" {
		return false
	}
	_, ok := r.permissions[n]
	return ok
}

// KnownRole reports whether code is registered.
func (r *Registry) KnownRole(code string) bool {
	n := normalizeName(code)
	if n == "" {
		return false
	}
	_, ok := r.roles[n]
	return ok
}

// Validate rejects blank or unregistered names and unknown levels.
func (r *Registry) Validate(req Requirement) error {
	err := r.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequirement, err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s=%v", fe.Namespace(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequirement, strings.Join(problems, ", "))
}

// Normalize validates req and returns a copy with deduplicated, case-folded names.
func (r *Registry) Normalize(req Requirement) (Requirement, error) {
	if err := r.Validate(req); err != nil {
		return Requirement{}, err
	}
	out := Requirement{
		Roles:       normalizeNames(req.Roles),
		Permissions: normalizeNames(req.Permissions),
		TargetParam: strings.TrimSpace(req.TargetParam),
	}
	if len(req.Levels) > 0 {
		out.Levels = append([]orgunit.Level(nil), req.Levels...)
	}
	return out, nil
}

// MustNormalize is like Normalize but panics on an invalid requirement.
// Use it while building routes.
func (r *Registry) MustNormalize(req Requirement) Requirement {
	out, err := r.Normalize(req)
	if err != nil {
		panic(err)
	}
	return out
}
