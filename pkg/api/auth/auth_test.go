package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eecworkbench/eec/pkg/models"
)

const testSecret = "test-secret-key-must-be-32-chars!"

func newService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{Secret: testSecret})
	require.NoError(t, err)
	return svc
}

func testUser() *models.User {
	return &models.User{ID: "u-1", Username: "ada", Scopes: models.Scopes{models.ScopeEditor}}
}

func TestNewJWTService(t *testing.T) {
	_, err := NewJWTService(JWTConfig{Secret: "short"})
	assert.ErrorIs(t, err, ErrInvalidSecretLength)

	svc := newService(t)
	assert.Equal(t, DefaultTokenDuration, svc.TokenDuration())
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newService(t)

	tok, err := svc.GenerateToken(testUser())
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, int64(1800), tok.ExpiresIn)

	claims, err := svc.ValidateToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ada", claims.Subject)
	assert.Equal(t, DefaultIssuer, claims.Issuer)

	p := claims.Principal()
	assert.Equal(t, "u-1", p.UserID)
	assert.True(t, p.Can(models.ScopeEditor))
	assert.False(t, p.Can(models.ScopeExport))
	assert.False(t, p.IsAdmin())
}

func TestValidateToken_Rejections(t *testing.T) {
	svc := newService(t)

	t.Run("expired", func(t *testing.T) {
		old := newService(t)
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		tok, err := old.GenerateToken(testUser())
		require.NoError(t, err)

		_, err = svc.ValidateToken(tok.AccessToken)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := NewJWTService(JWTConfig{Secret: "another-secret-that-is-long-enough!!"})
		require.NoError(t, err)
		tok, err := other.GenerateToken(testUser())
		require.NoError(t, err)

		_, err = svc.ValidateToken(tok.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		other, err := NewJWTService(JWTConfig{Secret: testSecret, Issuer: "someone-else"})
		require.NoError(t, err)
		tok, err := other.GenerateToken(testUser())
		require.NoError(t, err)

		_, err = svc.ValidateToken(tok.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no expiry", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer, Subject: "ada"},
			Username:         "ada",
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = svc.ValidateToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestLocalVerifier(t *testing.T) {
	svc := newService(t)
	tok, err := svc.GenerateToken(testUser())
	require.NoError(t, err)

	p, err := NewLocalVerifier(svc).Verify(t.Context(), tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ada", p.Username)
}

func TestRemoteVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_ = json.NewEncoder(w).Encode(Principal{UserID: "u-1", Username: "ada", Scopes: models.Scopes{"admin"}})
		case "Bearer broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	v := NewRemoteVerifier(srv.URL+"/", time.Second)

	p, err := v.Verify(t.Context(), "good")
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())

	_, err = v.Verify(t.Context(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(t.Context(), "broken")
	assert.ErrorIs(t, err, ErrVerifierUnavailable)
}

func TestRemoteVerifier_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRemoteVerifier(url, time.Second).Verify(t.Context(), "good")
	assert.ErrorIs(t, err, ErrVerifierUnavailable)
}

func TestPrincipalContext(t *testing.T) {
	assert.Nil(t, PrincipalFromContext(t.Context()))
	ctx := WithPrincipal(t.Context(), &Principal{Username: "ada"})
	assert.Equal(t, "ada", PrincipalFromContext(ctx).Username)
}
