// Package auth issues and verifies the bearer tokens of the eec services.
package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/eecworkbench/eec/pkg/models"
)

// Claims are the JWT claims of an eec access token. The subject is the
// username.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the id of the user the token was issued to.
	UserID string `json:"uid"`

	// Username is the username at issue time.
	Username string `json:"username"`

	// Scopes are the user's scopes at issue time.
	Scopes models.Scopes `json:"scopes"`
}

// Principal returns the authenticated identity carried by the claims.
func (c *Claims) Principal() *Principal {
	return &Principal{
		UserID:   c.UserID,
		Username: c.Username,
		Scopes:   append(models.Scopes{}, c.Scopes...),
	}
}
