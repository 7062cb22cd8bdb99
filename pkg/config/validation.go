package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/eecworkbench/eec/pkg/api"
)

// MinJWTSecretLength matches the floor enforced by the token service.
const MinJWTSecretLength = 32

var validate = validator.New()

// Validate checks struct tags first, then the rules that span sections.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if err := cfg.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if cfg.NeedsJWTSecret() && len(cfg.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d characters (set it in the config file or EEC_AUTH_JWT_SECRET)", MinJWTSecretLength)
	}
	if len(cfg.Server.Enabled()) == 0 {
		return fmt.Errorf("server.services: no known service enabled")
	}
	return nil
}

// NeedsJWTSecret reports whether this process signs or locally verifies
// tokens. A process running only non-auth services in remote verifier
// mode never touches the secret.
func (c *Config) NeedsJWTSecret() bool {
	for _, s := range c.Server.Enabled() {
		if s == api.ServiceAuth {
			return true
		}
	}
	return c.Server.Verifier.Mode != api.VerifierRemote
}
