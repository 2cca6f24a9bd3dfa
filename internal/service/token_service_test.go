package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/custody-api/internal/models"
	"github.com/fleetdesk/custody-api/pkg/config"
	appErrors "github.com/fleetdesk/custody-api/pkg/errors"
)

const tokenTestSecret = "unit-test-secret"

func mintToken(t *testing.T, secret string, method jwt.SigningMethod, claims models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestTokenServiceValidateToken(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: tokenTestSecret})
	signed := mintToken(t, tokenTestSecret, jwt.SigningMethodHS256, models.JWTClaims{
		UserID: "op-1",
		Role:   models.RoleSupervisor,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.UserID)
	assert.Equal(t, models.RoleSupervisor, claims.Role)
}

func TestTokenServiceRejectsWrongSecret(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: tokenTestSecret})
	signed := mintToken(t, "another-secret", jwt.SigningMethodHS256, models.JWTClaims{UserID: "op-1"})

	_, err := svc.ValidateToken(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestTokenServiceRejectsExpired(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: tokenTestSecret})
	signed := mintToken(t, tokenTestSecret, jwt.SigningMethodHS256, models.JWTClaims{
		UserID: "op-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	_, err := svc.ValidateToken(signed)
	require.Error(t, err)
}

func TestTokenServiceRejectsMissingSubject(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: tokenTestSecret})
	signed := mintToken(t, tokenTestSecret, jwt.SigningMethodHS256, models.JWTClaims{})

	_, err := svc.ValidateToken(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestTokenServiceRejectsUnexpectedMethod(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: tokenTestSecret})
	signed := mintToken(t, tokenTestSecret, jwt.SigningMethodHS512, models.JWTClaims{UserID: "op-1"})

	_, err := svc.ValidateToken(signed)
	require.Error(t, err)
}
