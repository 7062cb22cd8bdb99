package models

import (
	"fmt"
	"slices"
)

// Authorization scopes carried by users and tokens.
const (
	ScopeAdmin  = "admin"
	ScopeEditor = "editor"
	ScopeExport = "export"
)

// AllScopes lists every scope a user may hold.
var AllScopes = []string{ScopeAdmin, ScopeEditor, ScopeExport}

// DefaultAdminUsername is the account created when the user store is empty.
const DefaultAdminUsername = "admin"

// User is a workbench account.
type User struct {
	ID             string `gorm:"primaryKey;size:36" json:"user_id"`
	Username       string `gorm:"uniqueIndex;not null;size:255" json:"username"`
	HashedPassword string `gorm:"not null" json:"hashed_password"`
	Scopes         Scopes `gorm:"serializer:json" json:"scopes"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user holds the admin scope.
func (u *User) IsAdmin() bool {
	return u.Scopes.Has(ScopeAdmin)
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	c.Scopes = append(Scopes{}, u.Scopes...)
	return &c
}

// Scopes is a set of authorization scopes.
type Scopes []string

// Has reports whether scope is held.
func (s Scopes) Has(scope string) bool {
	return slices.Contains(s, scope)
}

// Satisfies applies the authorization rule: admin passes every check,
// otherwise each required scope must be held.
func (s Scopes) Satisfies(required ...string) bool {
	if s.Has(ScopeAdmin) {
		return true
	}
	for _, r := range required {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// Normalize removes duplicates and returns the scopes in canonical order.
// Unknown scopes are rejected.
func (s Scopes) Normalize() (Scopes, error) {
	out := Scopes{}
	for _, known := range AllScopes {
		if s.Has(known) {
			out = append(out, known)
		}
	}
	for _, scope := range s {
		if !slices.Contains(AllScopes, scope) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
		}
	}
	return out, nil
}
