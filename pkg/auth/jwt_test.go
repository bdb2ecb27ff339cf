package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-engine/internal/model"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("s3cret", "booking-engine", time.Hour)
	actor := model.Actor{Role: model.RolePractitioner, ID: 7}

	token, err := svc.GenerateAccessToken(actor)
	require.NoError(t, err)

	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewJWTService("s3cret", "booking-engine", time.Hour)
	good, err := svc.GenerateAccessToken(model.Actor{Role: model.RoleAdmin, ID: 1})
	require.NoError(t, err)

	expired := NewJWTService("s3cret", "booking-engine", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, err := expired.GenerateAccessToken(model.Actor{Role: model.RoleAdmin, ID: 1})
	require.NoError(t, err)

	otherIssuer, err := NewJWTService("s3cret", "someone-else", time.Hour).GenerateAccessToken(model.Actor{Role: model.RoleAdmin, ID: 1})
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "ROOT", ActorID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "booking-engine",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := map[string]string{
		"wrong secret": mustSign(t, NewJWTService("other", "booking-engine", time.Hour)),
		"expired":      stale,
		"wrong issuer": otherIssuer,
		"unknown role": badRole,
		"garbage":      "not.a.token",
		"tampered":     good + "x",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.Error(t, err)
		})
	}
}

func mustSign(t *testing.T, svc *JWTService) string {
	t.Helper()
	token, err := svc.GenerateAccessToken(model.Actor{Role: model.RoleRequester, ID: 2})
	require.NoError(t, err)
	return token
}
