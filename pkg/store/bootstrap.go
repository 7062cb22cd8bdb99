package store

import (
	"context"
	"fmt"

	"github.com/eecworkbench/eec/pkg/models"
)

// BootstrapAction describes what Bootstrap changed.
type BootstrapAction string

const (
	BootstrapNone     BootstrapAction = "none"
	BootstrapPromoted BootstrapAction = "promoted"
	BootstrapCreated  BootstrapAction = "created"
)

// BootstrapResult is the outcome of Bootstrap.
type BootstrapResult struct {
	Action BootstrapAction
	User   *models.User

	// Password is set when a default admin was created with a generated
	// password. It is not stored anywhere else.
	Password string
}

// Bootstrap guarantees an administrator for small user stores:
//   - no users: a default admin account is created, using adminPassword or
//     a generated one
//   - exactly one user: that user is promoted to admin
//   - otherwise nothing changes
//
// It runs once at process start, inside the guard for the user snapshot.
func Bootstrap(ctx context.Context, users UserRepository, adminPassword string) (*BootstrapResult, error) {
	all, err := users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	switch len(all) {
	case 0:
		password := adminPassword
		generated := ""
		if password == "" {
			if password, err = models.GenerateRandomPassword(); err != nil {
				return nil, fmt.Errorf("generate admin password: %w", err)
			}
			generated = password
		}
		hash, err := models.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		u, err := users.AddUser(ctx, models.DefaultAdminUsername, hash, models.Scopes{models.ScopeAdmin})
		if err != nil {
			return nil, err
		}
		return &BootstrapResult{Action: BootstrapCreated, User: u, Password: generated}, nil

	case 1:
		only := all[0]
		if only.IsAdmin() {
			return &BootstrapResult{Action: BootstrapNone, User: only}, nil
		}
		u, err := users.ChangeScopes(ctx, only.ID, append(models.Scopes{models.ScopeAdmin}, only.Scopes...))
		if err != nil {
			return nil, err
		}
		return &BootstrapResult{Action: BootstrapPromoted, User: u}, nil
	}

	return &BootstrapResult{Action: BootstrapNone}, nil
}
