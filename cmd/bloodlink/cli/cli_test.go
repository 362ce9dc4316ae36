package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodlink/bloodlink/internal/identity"
	_ "github.com/bloodlink/bloodlink/testing"
)

const cliSecret = "cli-secret-0123456789abcdef0123456789"

func newVerifier(t *testing.T) *identity.JWTVerifier {
	t.Helper()
	v, err := identity.NewJWTVerifier(identity.VerifierConfig{
		Secret:   cliSecret,
		Issuer:   "bloodlink",
		Audience: "bloodlink-api",
	})
	require.NoError(t, err)
	return v
}

func newRevocations(t *testing.T) *identity.RedisRevocations {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return identity.NewRedisRevocations(client)
}

func signToken(t *testing.T, userID int64, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	claims := identity.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "bloodlink",
			Audience:  jwt.ClaimStrings{"bloodlink-api"},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cliSecret))
	require.NoError(t, err)
	return token
}

func TestRevokeCommandUsesTokenExpiry(t *testing.T) {
	v := newVerifier(t)
	revocations := newRevocations(t)
	tokens, err := NewTokenCLI(v, revocations)
	require.NoError(t, err)
	token := signToken(t, 9, time.Now(), time.Hour)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := tokens.RevokeCommand(context.Background(), RevokeOptions{Token: token, JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, 0, exitCode, stderr.String())

	var summary RevokeSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.True(t, summary.OK)
	assert.Equal(t, int64(9), summary.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), summary.ExpiresAt, 5*time.Second)

	revoked, err := revocations.IsRevoked(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevokeCommandUnverifiableTokenUsesTTL(t *testing.T) {
	revocations := newRevocations(t)
	tokens, err := NewTokenCLI(newVerifier(t), revocations)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	exitCode := tokens.RevokeCommand(context.Background(), RevokeOptions{Token: "not-a-jwt", TTL: 2 * time.Hour, Stdout: stdout, Stderr: new(bytes.Buffer)})

	require.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "revoked until")
	revoked, err := revocations.IsRevoked(context.Background(), "not-a-jwt")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevokeCommandSkipsExpiredToken(t *testing.T) {
	v := newVerifier(t)
	revocations := newRevocations(t)
	tokens, err := NewTokenCLI(v, revocations)
	require.NoError(t, err)
	token := signToken(t, 3, time.Now().Add(-2*time.Hour), time.Hour)

	stderr := new(bytes.Buffer)
	exitCode := tokens.RevokeCommand(context.Background(), RevokeOptions{Token: token, Stdout: new(bytes.Buffer), Stderr: stderr})

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stderr.String(), "already expired")
	revoked, err := revocations.IsRevoked(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokeCommandValidation(t *testing.T) {
	withoutList, err := NewTokenCLI(newVerifier(t), nil)
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	assert.Equal(t, 1, withoutList.RevokeCommand(context.Background(), RevokeOptions{Token: " ", Stdout: new(bytes.Buffer), Stderr: stderr}))
	assert.Contains(t, stderr.String(), "--token")

	stderr.Reset()
	assert.Equal(t, 1, withoutList.RevokeCommand(context.Background(), RevokeOptions{Token: "abc", Stdout: new(bytes.Buffer), Stderr: stderr}))
	assert.Contains(t, stderr.String(), "not configured")

	_, err = NewTokenCLI(nil, nil)
	assert.Error(t, err)
}

func TestJobsCLIGuards(t *testing.T) {
	var nilCLI *JobsCLI
	_, err := nilCLI.TriggerPurge(context.Background(), time.Hour)
	assert.Error(t, err)
	_, err = nilCLI.InspectQueue(context.Background())
	assert.Error(t, err)

	jobsCLI, err := NewJobsCLI(asynq.RedisClientOpt{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = jobsCLI.Close() })

	_, err = jobsCLI.TriggerPurge(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention must be positive")
}
