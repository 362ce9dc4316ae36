package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bloodlink/bloodlink/internal/rbac"
)

// TokenVerifier validates a raw credential.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// RevocationChecker reports revoked credentials.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// PrincipalStore returns the live principal for a user id.
type PrincipalStore interface {
	LoadPrincipal(ctx context.Context, userID int64) (rbac.Principal, error)
}

// Resolver implements rbac.IdentityResolver.
type Resolver struct {
	verifier TokenVerifier
	revoked  RevocationChecker
	store    PrincipalStore
	logger   *slog.Logger
}

// NewResolver constructs a resolver. revoked may be nil to skip the revocation list.
func NewResolver(verifier TokenVerifier, store PrincipalStore, revoked RevocationChecker, logger *slog.Logger) *Resolver {
	return &Resolver{verifier: verifier, revoked: revoked, store: store, logger: logger}
}

// Resolve verifies credential and loads the principal it names.
func (r *Resolver) Resolve(ctx context.Context, credential string) (rbac.Principal, error) {
	claims, err := r.verifier.Verify(credential)
	if err != nil {
		return rbac.Principal{}, err
	}
	if r.revoked != nil {
		revoked, err := r.revoked.IsRevoked(ctx, credential)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("identity revocation lookup", slog.Any("error", err))
			}
			return rbac.Principal{}, fmt.Errorf("%w: %v", ErrRevokedCredential, err)
		}
		if revoked {
			return rbac.Principal{}, ErrRevokedCredential
		}
	}
	p, err := r.store.LoadPrincipal(ctx, claims.UserID)
	if err != nil {
		return rbac.Principal{}, err
	}
	return p, nil
}

var _ rbac.IdentityResolver = (*Resolver)(nil)
