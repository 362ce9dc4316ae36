package app

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/bloodlink/bloodlink/internal/audit"
	"github.com/bloodlink/bloodlink/internal/identity"
	"github.com/bloodlink/bloodlink/internal/observability"
	"github.com/bloodlink/bloodlink/internal/orgunit"
	"github.com/bloodlink/bloodlink/internal/rbac"
)

// AuthzParams lists the collaborators of the authorization stack.
type AuthzParams struct {
	Config     *Config
	Logger     *slog.Logger
	Units      orgunit.Lister
	Principals identity.PrincipalStore
	Redis      redis.Cmdable
	// Queue receives denial events. When nil, Fallback records them synchronously.
	Queue    audit.Enqueuer
	Fallback rbac.AuditSink
	Metrics  *observability.Metrics
}

// Authz is the assembled authorization stack.
type Authz struct {
	Gate        *rbac.Gate
	Middleware  rbac.Middleware
	Units       *orgunit.CachedRepository
	Verifier    *identity.JWTVerifier
	Revocations *identity.RedisRevocations
}

// NewAuthz wires identity, scope, audit and metrics into a Gate.
func NewAuthz(p AuthzParams) (*Authz, error) {
	if p.Config == nil {
		return nil, errors.New("app: authz config missing")
	}
	if p.Units == nil || p.Principals == nil {
		return nil, errors.New("app: authz repositories missing")
	}
	verifier, err := identity.NewJWTVerifier(identity.VerifierConfig{
		Secret:   p.Config.JWTSecret,
		Issuer:   p.Config.JWTIssuer,
		Audience: p.Config.JWTAudience,
		Leeway:   p.Config.JWTLeeway,
	})
	if err != nil {
		return nil, err
	}

	var revocations *identity.RedisRevocations
	var revoked identity.RevocationChecker
	if p.Redis != nil {
		revocations = identity.NewRedisRevocations(p.Redis)
		revoked = revocations
	}
	resolver := identity.NewResolver(verifier, p.Principals, revoked, p.Logger)

	units := orgunit.NewCachedRepository(p.Units, p.Config.OrgUnitCacheSize, p.Config.OrgUnitCacheTTL)

	sinks := audit.MultiSink{audit.NewLogSink(p.Logger)}
	switch {
	case p.Queue != nil:
		sinks = append(sinks, audit.NewQueueSink(p.Queue, p.Config.AuditEnqueueTimeout))
	case p.Fallback != nil:
		sinks = append(sinks, p.Fallback)
	}

	var observer rbac.DecisionObserver
	if p.Metrics != nil {
		observer = p.Metrics
	}
	gate := rbac.NewGate(rbac.GateConfig{
		Identity: resolver,
		Scope:    rbac.NewScope(units),
		Sink:     sinks,
		Observer: observer,
		Logger:   p.Logger,
	})
	return &Authz{
		Gate:        gate,
		Middleware:  rbac.Middleware{Gate: gate, Registry: rbac.DefaultRegistry(), Logger: p.Logger},
		Units:       units,
		Verifier:    verifier,
		Revocations: revocations,
	}, nil
}
