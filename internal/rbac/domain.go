package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/bloodlink/bloodlink/internal/orgunit"
)

// Denial categories exposed to callers. Nothing finer grained leaves the core.
var (
	ErrUnauthenticated = errors.New("rbac: unauthenticated")
	ErrAccountInactive = errors.New("rbac: account inactive")
	ErrForbidden       = errors.New("rbac: forbidden")
)

// Principal describes the authenticated actor of one request.
type Principal struct {
	UserID      int64
	IsActive    bool
	OrgUnitID   int64
	Level       orgunit.Level
	Roles       []string
	Permissions []string
}

// Requirement is the static, per-route authorization configuration.
// Empty lists impose nothing; TargetParam names the path parameter holding
// the target unit id and enables the scope check when set.
type Requirement struct {
	Roles       []string        `validate:"dive,role"`
	Permissions []string        `validate:"dive,permission"`
	Levels      []orgunit.Level `validate:"dive,orglevel"`
	TargetParam string
}

// Reason is the coarse outcome category of a denial.
type Reason string

const (
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonAccountInactive Reason = "account_inactive"
	ReasonForbidden       Reason = "forbidden"
)

// Err maps the reason to its sentinel error.
func (r Reason) Err() error {
	switch r {
	case ReasonUnauthenticated:
		return ErrUnauthenticated
	case ReasonAccountInactive:
		return ErrAccountInactive
	case ReasonForbidden:
		return ErrForbidden
	default:
		return nil
	}
}

// Check identifies which gate step produced a denial.
type Check string

const (
	CheckIdentity    Check = "identity"
	CheckActive      Check = "active"
	CheckRoles       Check = "roles"
	CheckPermissions Check = "permissions"
	CheckLevels      Check = "levels"
	CheckScope       Check = "scope"
)

// Verdict is the outcome of one authorization decision.
type Verdict struct {
	Allowed   bool
	Principal *Principal
	Reason    Reason
}

// Allow builds an allowing verdict.
func Allow(p Principal) Verdict {
	return Verdict{Allowed: true, Principal: &p}
}

// Deny builds a denying verdict.
func Deny(reason Reason) Verdict {
	return Verdict{Reason: reason}
}

// Err returns nil for allowed verdicts and the reason sentinel otherwise.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	if err := v.Reason.Err(); err != nil {
		return err
	}
	return ErrForbidden
}

// RequestMeta carries caller supplied request details for auditing.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
	Method    string
	Path      string
}

// Input is the per-request data of a decision.
type Input struct {
	Credential   string
	TargetUnitID *int64
	Meta         RequestMeta
}

// DenialEvent is handed to the audit sink once per denial.
type DenialEvent struct {
	ID           string         `json:"id"`
	At           time.Time      `json:"at"`
	UserID       *int64         `json:"user_id,omitempty"`
	Reason       Reason         `json:"reason"`
	Check        Check          `json:"check"`
	Requirement  RequirementLog `json:"requirement"`
	TargetUnitID *int64         `json:"target_unit_id,omitempty"`
	Detail       string         `json:"detail,omitempty"`
	IP           string         `json:"ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Method       string         `json:"method,omitempty"`
	Path         string         `json:"path,omitempty"`
}

// RequirementLog is the serializable form of a Requirement.
type RequirementLog struct {
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Levels      []string `json:"levels,omitempty"`
	TargetParam string   `json:"target_param,omitempty"`
}

func logRequirement(req Requirement) RequirementLog {
	out := RequirementLog{
		Roles:       req.Roles,
		Permissions: req.Permissions,
		TargetParam: req.TargetParam,
	}
	for _, l := range req.Levels {
		out.Levels = append(out.Levels, l.String())
	}
	return out
}

// IdentityResolver verifies a credential and returns the caller's current principal.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (Principal, error)
}

// AuditSink receives denial events. Implementations should return quickly.
type AuditSink interface {
	Record(ctx context.Context, event DenialEvent) error
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, event DenialEvent) error

// Record calls f.
func (f AuditSinkFunc) Record(ctx context.Context, event DenialEvent) error {
	return f(ctx, event)
}

// DecisionObserver receives one notification per decision.
type DecisionObserver interface {
	ObserveDecision(allowed bool, reason string, check string)
}
