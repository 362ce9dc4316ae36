package rbac

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/bloodlink/bloodlink/internal/orgunit"
)

// HasAnyRole reports whether p holds at least one of roles. An empty list passes.
func HasAnyRole(p Principal, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	return intersects(p.Roles, roles)
}

// HasAnyPermission reports whether p holds at least one of perms or the
// system administrator permission. An empty list passes.
func HasAnyPermission(p Principal, perms []string) bool {
	if len(perms) == 0 {
		return true
	}
	granted := nameSet(p.Permissions)
	if _, ok := granted[PermSystemAdmin]; ok {
		return true
	}
	for _, want := range perms {
		if _, ok := granted[normalizeName(want)]; ok {
			return true
		}
	}
	return false
}

// HasOrgLevel reports whether p sits at one of levels. An empty list passes.
func HasOrgLevel(p Principal, levels []orgunit.Level) bool {
	if len(levels) == 0 {
		return true
	}
	for _, l := range levels {
		if p.Level == l {
			return true
		}
	}
	return false
}

func intersects(granted, required []string) bool {
	set := nameSet(granted)
	for _, r := range required {
		if _, ok := set[normalizeName(r)]; ok {
			return true
		}
	}
	return false
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = normalizeName(n)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// normalizeName trims and case-folds role codes and permission names.
func normalizeName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func normalizeNames(names []string) []string {
	unique := make(map[string]struct{}, len(names))
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		n = normalizeName(n)
		if n == "" {
			continue
		}
		if _, seen := unique[n]; seen {
			continue
		}
		unique[n] = struct{}{}
		normalized = append(normalized, n)
	}
	return normalized
}
