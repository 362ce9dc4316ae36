package orgunithttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bloodlink/bloodlink/internal/orgunit"
	"github.com/bloodlink/bloodlink/internal/platform/httpx"
	"github.com/bloodlink/bloodlink/internal/rbac"
)

// Handler serves the organizational unit browsing API.
type Handler struct {
	units  orgunit.Lister
	rbac   rbac.Middleware
	logger *slog.Logger
}

// NewHandler constructs the handler. Every route is guarded by mw.
func NewHandler(units orgunit.Lister, mw rbac.Middleware, logger *slog.Logger) *Handler {
	return &Handler{units: units, rbac: mw, logger: logger}
}

// MountRoutes attaches org-unit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAuthenticated()).Get("/me", h.me)
	r.Route("/org-units/{unitID}", func(r chi.Router) {
		r.With(h.rbac.Require(rbac.Requirement{
			Permissions: []string{rbac.PermCentersView},
			TargetParam: "unitID",
		})).Get("/", h.show)
		r.With(h.rbac.Require(rbac.Requirement{
			Permissions: []string{rbac.PermCentersView},
			Levels:      []orgunit.Level{orgunit.LevelNational, orgunit.LevelRegional, orgunit.LevelProvincial},
			TargetParam: "unitID",
		})).Get("/children", h.children)
	})
}

type unitView struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Level    string `json:"level"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

func toView(u orgunit.Unit) unitView {
	return unitView{ID: u.ID, Name: u.Name, Level: u.Level.String(), ParentID: u.ParentID}
}

type meView struct {
	UserID      int64     `json:"user_id"`
	Unit        *unitView `json:"unit,omitempty"`
	Level       string    `json:"level"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	out := meView{
		UserID:      p.UserID,
		Level:       p.Level.String(),
		Roles:       nonNil(p.Roles),
		Permissions: nonNil(p.Permissions),
	}
	unit, err := h.units.Unit(r.Context(), p.OrgUnitID)
	switch {
	case err == nil:
		v := toView(unit)
		out.Unit = &v
	case errors.Is(err, orgunit.ErrNotFound):
	default:
		h.logError("orgunit me", err)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := unitIDParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	unit, err := h.units.Unit(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(unit))
}

func (h *Handler) children(w http.ResponseWriter, r *http.Request) {
	id, ok := unitIDParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	units, err := h.units.Children(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	out := make([]unitView, 0, len(units))
	for _, u := range units {
		out = append(out, toView(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"parent_id": id, "units": out})
}

func (h *Handler) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, orgunit.ErrNotFound) {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	h.logError("orgunit lookup", err)
	httpx.RespondError(w, httpx.ErrUnavailable)
}

func (h *Handler) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, slog.Any("error", err))
	}
}

func unitIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "unitID"), 10, 64)
	return id, err == nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
