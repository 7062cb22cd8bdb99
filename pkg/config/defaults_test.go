package config

import (
	"testing"
	"time"

	"github.com/eecworkbench/eec/pkg/workspace"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.Ports.Auth != 8001 || cfg.Server.Ports.Mention != 8005 {
		t.Errorf("Expected ports 8001..8005, got %+v", cfg.Server.Ports)
	}
	if cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("Expected default write timeout 60s, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Server.Verifier.Mode != "local" {
		t.Errorf("Expected local verifier, got %q", cfg.Server.Verifier.Mode)
	}
}

func TestApplyDefaults_AuthAndStorage(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/var/lib/test")
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Auth.Issuer != "eec" {
		t.Errorf("Expected issuer 'eec', got %q", cfg.Auth.Issuer)
	}
	if cfg.Auth.TokenDuration != 30*time.Minute {
		t.Errorf("Expected token duration 30m, got %v", cfg.Auth.TokenDuration)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Error("Expected no default JWT secret")
	}
	if cfg.Storage.Type != workspace.BackendFile {
		t.Errorf("Expected file backend, got %q", cfg.Storage.Type)
	}
	if cfg.Storage.DataPath != "/var/lib/test/eec/data" {
		t.Errorf("Expected XDG data path, got %q", cfg.Storage.DataPath)
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 0 {
		t.Errorf("Expected no metrics port while disabled, got %d", cfg.Metrics.Port)
	}

	cfg = &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/eec.log",
		},
		ShutdownTimeout: 60 * time.Second,
		Auth:            AuthConfig{Issuer: "workbench", TokenDuration: time.Hour},
		Clustering:      ClusteringConfig{TopN: 3},
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "/var/log/eec.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit timeout 60s to be preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Auth.Issuer != "workbench" || cfg.Auth.TokenDuration != time.Hour {
		t.Errorf("Expected explicit auth settings to be preserved, got %+v", cfg.Auth)
	}
	if cfg.Clustering.TopN != 3 {
		t.Errorf("Expected explicit top_n to be preserved, got %d", cfg.Clustering.TopN)
	}
}
