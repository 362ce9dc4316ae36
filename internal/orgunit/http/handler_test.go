package orgunithttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodlink/bloodlink/internal/orgunit"
	"github.com/bloodlink/bloodlink/internal/rbac"
)

type tokenResolver map[string]rbac.Principal

func (t tokenResolver) Resolve(ctx context.Context, credential string) (rbac.Principal, error) {
	p, ok := t[credential]
	if !ok {
		return rbac.Principal{}, errors.New("unknown token")
	}
	return p, nil
}

func ptr(id int64) *int64 { return &id }

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	units := orgunit.NewMemoryRepository(
		orgunit.Unit{ID: 1, Name: "National HQ", Level: orgunit.LevelNational},
		orgunit.Unit{ID: 10, Name: "North", Level: orgunit.LevelRegional, ParentID: ptr(1)},
		orgunit.Unit{ID: 11, Name: "South", Level: orgunit.LevelRegional, ParentID: ptr(1)},
		orgunit.Unit{ID: 100, Name: "Lakeside", Level: orgunit.LevelProvincial, ParentID: ptr(10)},
		orgunit.Unit{ID: 1000, Name: "Harbor Town", Level: orgunit.LevelMunicipal, ParentID: ptr(100)},
	)
	view := []string{rbac.PermCentersView}
	resolver := tokenResolver{
		"national":  {UserID: 1, IsActive: true, OrgUnitID: 1, Level: orgunit.LevelNational, Roles: []string{"president"}, Permissions: view},
		"regional":  {UserID: 2, IsActive: true, OrgUnitID: 10, Level: orgunit.LevelRegional, Permissions: view},
		"municipal": {UserID: 3, IsActive: true, OrgUnitID: 1000, Level: orgunit.LevelMunicipal, Permissions: view},
		"noperm":    {UserID: 4, IsActive: true, OrgUnitID: 1, Level: orgunit.LevelNational},
	}
	gate := rbac.NewGate(rbac.GateConfig{Identity: resolver, Scope: rbac.NewScope(units)})
	r := chi.NewRouter()
	r.Route("/api", NewHandler(units, rbac.Middleware{Gate: gate}, nil).MountRoutes)
	return r
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMe(t *testing.T) {
	rec := get(t, newRouter(t), "/api/me", "regional")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		UserID int64    `json:"user_id"`
		Level  string   `json:"level"`
		Roles  []string `json:"roles"`
		Unit   struct {
			Name string `json:"name"`
		} `json:"unit"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(2), body.UserID)
	assert.Equal(t, "REGIONAL", body.Level)
	assert.Equal(t, "North", body.Unit.Name)
	assert.NotNil(t, body.Roles)
}

func TestRoutesEnforceAuthorization(t *testing.T) {
	router := newRouter(t)
	cases := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"anonymous me", "/api/me", "", http.StatusUnauthorized},
		{"regional own subtree", "/api/org-units/1000", "regional", http.StatusOK},
		{"regional sibling region", "/api/org-units/11", "regional", http.StatusForbidden},
		{"regional upward", "/api/org-units/1", "regional", http.StatusForbidden},
		{"municipal own unit", "/api/org-units/1000", "municipal", http.StatusOK},
		{"municipal children", "/api/org-units/1000/children", "municipal", http.StatusForbidden},
		{"national unknown unit", "/api/org-units/555", "national", http.StatusForbidden},
		{"missing permission", "/api/org-units/1", "noperm", http.StatusForbidden},
		{"national children", "/api/org-units/1/children", "national", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, get(t, router, tc.path, tc.token).Code)
		})
	}
}

func TestChildrenSortedByName(t *testing.T) {
	rec := get(t, newRouter(t), "/api/org-units/1/children", "national")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ParentID int64 `json:"parent_id"`
		Units    []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"units"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(1), body.ParentID)
	require.Len(t, body.Units, 2)
	assert.Equal(t, "North", body.Units[0].Name)
	assert.Equal(t, "South", body.Units[1].Name)
}

func TestShowReturnsUnit(t *testing.T) {
	rec := get(t, newRouter(t), "/api/org-units/100", "regional")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Lakeside", body["name"])
	assert.Equal(t, "PROVINCIAL", body["level"])
	assert.EqualValues(t, 10, body["parent_id"])
}
