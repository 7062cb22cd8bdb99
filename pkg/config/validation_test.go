package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Auth.JWTSecret = testSecret
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Ports.Cluster = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_UnknownService(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Services = []string{"entity", "search"}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for an unknown service")
	}
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = "short"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for a short JWT secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("Expected error about jwt_secret, got: %v", err)
	}
}

func TestValidate_RemoteVerifierWithoutURL(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Services = []string{"entity"}
	cfg.Server.Verifier.Mode = "remote"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for remote mode without auth_url")
	}

	cfg.Server.Verifier.AuthURL = "http://auth:8001/api/v1/auth"
	cfg.Auth.JWTSecret = ""
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected remote-only entity process to need no secret, got: %v", err)
	}
}

func TestValidate_Storage(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Type = "redis"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for an unknown storage type")
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.SampleRate = 1.5

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	for _, level := range []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"} {
		cfg := validConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
