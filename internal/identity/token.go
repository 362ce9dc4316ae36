// Package identity turns bearer credentials into rbac principals.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

// Credential failures. All of them are reported as unauthenticated by the gate.
var (
	ErrMissingCredential = errors.New("identity: missing credential")
	ErrInvalidCredential = errors.New("identity: invalid credential")
	ErrExpiredCredential = errors.New("identity: credential expired")
	ErrRevokedCredential = errors.New("identity: credential revoked")
	ErrUnknownPrincipal  = errors.New("identity: unknown principal")
)

// Claims carried by access tokens. Only the user id is trusted; everything
// else about the principal is loaded from the store on each request.
type Claims struct {
	UserID int64 `json:"uid" validate:"required,gt=0"`
	jwt.RegisteredClaims
}

// VerifierConfig configures token verification.
type VerifierConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// JWTVerifier validates HMAC signed access tokens.
type JWTVerifier struct {
	secret   []byte
	parser   *jwt.Parser
	validate *validator.Validate
}

// NewJWTVerifier constructs a verifier. An empty secret is rejected.
func NewJWTVerifier(cfg VerifierConfig) (*JWTVerifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("identity: jwt secret must be provided")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &JWTVerifier{
		secret:   []byte(cfg.Secret),
		parser:   jwt.NewParser(opts...),
		validate: validator.New(),
	}, nil
}

// Verify checks signature, expiry, issuer and audience and returns the claims.
func (v *JWTVerifier) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMissingCredential
	}
	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredCredential
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if err := v.validate.Struct(claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return claims, nil
}
