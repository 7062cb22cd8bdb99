package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/eecworkbench/eec/pkg/models"
)

// ErrVerifierUnavailable is returned when the remote auth service could not
// be asked.
var ErrVerifierUnavailable = errors.New("auth service unavailable")

// Principal is the identity behind a verified token.
type Principal struct {
	UserID   string        `json:"user_id"`
	Username string        `json:"username"`
	Scopes   models.Scopes `json:"scopes"`
}

// IsAdmin reports whether the principal holds the admin scope.
func (p *Principal) IsAdmin() bool {
	return p.Scopes.Has(models.ScopeAdmin)
}

// Can applies the scope rule to the principal.
func (p *Principal) Can(required ...string) bool {
	return p.Scopes.Satisfies(required...)
}

// Verifier turns a bearer token into a Principal.
type Verifier interface {
	// Verify returns the principal, ErrInvalidToken or ErrExpiredToken for a
	// rejected token, or ErrVerifierUnavailable.
	Verify(ctx context.Context, token string) (*Principal, error)
}

// LocalVerifier checks tokens with the shared signing secret.
type LocalVerifier struct {
	jwt *JWTService
}

var _ Verifier = (*LocalVerifier)(nil)

// NewLocalVerifier returns a verifier backed by svc.
func NewLocalVerifier(svc *JWTService) *LocalVerifier {
	return &LocalVerifier{jwt: svc}
}

// Verify implements Verifier.
func (v *LocalVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	claims, err := v.jwt.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return claims.Principal(), nil
}

// RemoteVerifier asks the auth service: GET {baseURL}/verify with the token
// as bearer.
type RemoteVerifier struct {
	baseURL string
	client  *http.Client
}

var _ Verifier = (*RemoteVerifier)(nil)

// NewRemoteVerifier returns a verifier for the auth service at baseURL
// (e.g. "http://auth:8001/api/v1/auth").
func NewRemoteVerifier(baseURL string, timeout time.Duration) *RemoteVerifier {
	return &RemoteVerifier{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Verify implements Verifier.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/verify", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidToken
	default:
		return nil, fmt.Errorf("%w: verify returned %d", ErrVerifierUnavailable, resp.StatusCode)
	}

	var p Principal
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode principal: %v", ErrVerifierUnavailable, err)
	}
	if p.Username == "" {
		return nil, ErrInvalidToken
	}
	return &p, nil
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the authentication
// middleware, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
