package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bloodlink/bloodlink/internal/platform/httpx"
)

// DenialLister lists persisted denials.
type DenialLister interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Handler exposes recent denials to auditors.
type Handler struct {
	denials DenialLister
	logger  *slog.Logger
}

// NewHandler constructs the audit HTTP handler.
func NewHandler(denials DenialLister, logger *slog.Logger) *Handler {
	return &Handler{denials: denials, logger: logger}
}

// MountRoutes attaches audit routes. Callers protect them with the audit:view permission.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/denials", h.listDenials)
}

type denialView struct {
	ID       int64           `json:"id"`
	ActorID  *int64          `json:"actor_id,omitempty"`
	Entity   string          `json:"entity"`
	EntityID string          `json:"entity_id"`
	At       time.Time       `json:"at"`
	Detail   json.RawMessage `json:"detail,omitempty"`
}

func (h *Handler) listDenials(w http.ResponseWriter, r *http.Request) {
	limit := DefaultDenialLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		limit = ClampDenialLimit(n)
	}
	entries, err := h.denials.Recent(r.Context(), limit)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("audit list denials", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	out := make([]denialView, 0, len(entries))
	for _, e := range entries {
		out = append(out, denialView{
			ID:       e.ID,
			ActorID:  e.ActorID,
			Entity:   e.Entity,
			EntityID: e.EntityID,
			At:       e.At.UTC(),
			Detail:   e.Meta,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"denials": out})
}
