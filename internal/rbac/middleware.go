package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bloodlink/bloodlink/internal/platform/httpx"
)

// Middleware wires Gate decisions into HTTP handlers.
type Middleware struct {
	Gate     *Gate
	Registry *Registry
	Logger   *slog.Logger
}

// Require protects a handler with req. The requirement is validated against
// the registry when the route is built and panics if it is malformed.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	registry := m.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	normalized := registry.MustNormalize(req)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			in := Input{
				Credential: bearerToken(r),
				Meta:       requestMeta(r),
			}
			if normalized.TargetParam != "" {
				in.TargetUnitID = m.targetUnitID(r, normalized.TargetParam)
			}
			verdict := m.Gate.Authorize(r.Context(), normalized, in)
			if !verdict.Allowed {
				respondDenied(w, verdict)
				return
			}
			ctx := ContextWithPrincipal(r.Context(), *verdict.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAny ensures the caller holds at least one of perms.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.Require(Requirement{Permissions: perms})
}

// RequireAuthenticated only resolves the caller and checks that the account is active.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return m.Require(Requirement{})
}

func (m Middleware) targetUnitID(r *http.Request, param string) *int64 {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("rbac parse target unit", slog.String("param", param), slog.String("value", raw))
		}
		return nil
	}
	return &id
}

func respondDenied(w http.ResponseWriter, v Verdict) {
	err := v.Err()
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrAccountInactive):
		w.Header().Set("WWW-Authenticate", `Bearer realm="bloodlink"`)
		httpx.RespondError(w, httpx.ErrUnauthorized)
	default:
		httpx.RespondError(w, httpx.ErrForbidden)
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func requestMeta(r *http.Request) RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return RequestMeta{
		IP:        ip,
		UserAgent: r.UserAgent(),
		RequestID: chimw.GetReqID(r.Context()),
		Method:    r.Method,
		Path:      r.URL.Path,
	}
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal placed by Require.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
