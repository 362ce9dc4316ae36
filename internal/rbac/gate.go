package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Gate runs the ordered authorization checks for one request.
type Gate struct {
	identity IdentityResolver
	scope    *Scope
	sink     AuditSink
	observer DecisionObserver
	logger   *slog.Logger
	now      func() time.Time
}

// GateConfig groups Gate collaborators. Sink, Observer and Logger are optional.
type GateConfig struct {
	Identity IdentityResolver
	Scope    *Scope
	Sink     AuditSink
	Observer DecisionObserver
	Logger   *slog.Logger
}

// NewGate constructs a Gate.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{
		identity: cfg.Identity,
		scope:    cfg.Scope,
		sink:     cfg.Sink,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Authorize resolves the caller and evaluates exactly the checks configured in
// req, stopping at the first failure. Every denial is audited once.
func (g *Gate) Authorize(ctx context.Context, req Requirement, in Input) Verdict {
	if g == nil || g.identity == nil {
		return g.deny(ctx, nil, CheckIdentity, ReasonUnauthenticated, req, in, "identity resolver not configured")
	}

	principal, err := g.identity.Resolve(ctx, in.Credential)
	if err != nil {
		return g.deny(ctx, nil, CheckIdentity, ReasonUnauthenticated, req, in, err.Error())
	}
	if !principal.IsActive {
		return g.deny(ctx, &principal, CheckActive, ReasonAccountInactive, req, in, "")
	}
	if len(req.Roles) > 0 && !HasAnyRole(principal, req.Roles) {
		return g.deny(ctx, &principal, CheckRoles, ReasonForbidden, req, in, "")
	}
	if len(req.Permissions) > 0 && !HasAnyPermission(principal, req.Permissions) {
		return g.deny(ctx, &principal, CheckPermissions, ReasonForbidden, req, in, "")
	}
	if len(req.Levels) > 0 && !HasOrgLevel(principal, req.Levels) {
		return g.deny(ctx, &principal, CheckLevels, ReasonForbidden, req, in, "")
	}
	if req.TargetParam != "" {
		if in.TargetUnitID == nil {
			return g.deny(ctx, &principal, CheckScope, ReasonForbidden, req, in, "target unit id missing")
		}
		if err := g.scope.Check(ctx, principal, *in.TargetUnitID); err != nil {
			return g.deny(ctx, &principal, CheckScope, ReasonForbidden, req, in, err.Error())
		}
	}

	g.observe(true, "", "")
	return Allow(principal)
}

func (g *Gate) deny(ctx context.Context, p *Principal, check Check, reason Reason, req Requirement, in Input, detail string) Verdict {
	event := DenialEvent{
		ID:           uuid.NewString(),
		Reason:       reason,
		Check:        check,
		Requirement:  logRequirement(req),
		TargetUnitID: in.TargetUnitID,
		Detail:       detail,
		IP:           in.Meta.IP,
		UserAgent:    in.Meta.UserAgent,
		RequestID:    in.Meta.RequestID,
		Method:       in.Meta.Method,
		Path:         in.Meta.Path,
	}
	if g != nil && g.now != nil {
		event.At = g.now().UTC()
	} else {
		event.At = time.Now().UTC()
	}
	if p != nil {
		id := p.UserID
		event.UserID = &id
	}

	if g != nil {
		g.record(ctx, event)
		g.observe(false, string(reason), string(check))
	}
	return Deny(reason)
}

// record hands the event to the sink. Sink failures never alter the verdict.
func (g *Gate) record(ctx context.Context, event DenialEvent) {
	if g.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && g.logger != nil {
			g.logger.Warn("rbac audit sink panic", slog.String("event_id", event.ID), slog.Any("panic", fmt.Sprint(r)))
		}
	}()
	if err := g.sink.Record(ctx, event); err != nil && g.logger != nil {
		g.logger.Warn("rbac audit sink", slog.String("event_id", event.ID), slog.Any("error", err))
	}
}

func (g *Gate) observe(allowed bool, reason, check string) {
	if g.observer == nil {
		return
	}
	g.observer.ObserveDecision(allowed, reason, check)
}
