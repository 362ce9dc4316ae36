package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bloodlink/bloodlink/internal/identity"
)

// Verifier checks access tokens.
type Verifier interface {
	Verify(token string) (identity.Claims, error)
}

// Revoker blocks tokens before they expire.
type Revoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

// TokenCLI implements the token subcommands used by operators.
type TokenCLI struct {
	verifier Verifier
	revoker  Revoker
	now      func() time.Time
}

// NewTokenCLI constructs the token helpers.
func NewTokenCLI(verifier Verifier, revoker Revoker) (*TokenCLI, error) {
	if verifier == nil {
		return nil, errors.New("token cli: verifier required")
	}
	return &TokenCLI{verifier: verifier, revoker: revoker, now: time.Now}, nil
}

// RevokeOptions defines flags for token revoke.
type RevokeOptions struct {
	Token      string
	TTL        time.Duration
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RevokeSummary is the JSON output of token revoke.
type RevokeSummary struct {
	OK        bool      `json:"ok"`
	UserID    int64     `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RevokeCommand adds the token to the revocation list until it would expire.
// Tokens that no longer verify are revoked for opts.TTL.
func (c *TokenCLI) RevokeCommand(ctx context.Context, opts RevokeOptions) int {
	stdout, stderr := streams(opts.Stdout, opts.Stderr)
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		_, _ = fmt.Fprintln(stderr, "token revoke: --token is required")
		return 1
	}
	if c.revoker == nil {
		_, _ = fmt.Fprintln(stderr, "token revoke: revocation list not configured")
		return 1
	}
	summary := RevokeSummary{OK: true}
	ttl := opts.TTL
	claims, err := c.verifier.Verify(token)
	switch {
	case err == nil && claims.ExpiresAt != nil:
		summary.UserID = claims.UserID
		ttl = claims.ExpiresAt.Sub(c.now())
	case errors.Is(err, identity.ErrExpiredCredential):
		_, _ = fmt.Fprintln(stderr, "token revoke: token already expired, nothing to do")
		return 0
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := c.revoker.Revoke(ctx, token, ttl); err != nil {
		_, _ = fmt.Fprintf(stderr, "token revoke: %v\n", err)
		return 1
	}
	summary.ExpiresAt = c.now().Add(ttl).UTC().Truncate(time.Second)
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "token revoke: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "revoked until %s\n", summary.ExpiresAt.Format(time.RFC3339))
	return 0
}

func streams(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
