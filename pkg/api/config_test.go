package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServerConfigDefaults(t *testing.T) {
	var cfg ServerConfig
	cfg.ApplyDefaults()

	assert.Equal(t, AllServices, cfg.Enabled())
	assert.Equal(t, ":8001", cfg.Addr(ServiceAuth))
	assert.Equal(t, ":8005", cfg.Addr(ServiceMention))
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, VerifierLocal, cfg.Verifier.Mode)
}

func TestEnabledKeepsStartOrder(t *testing.T) {
	cfg := ServerConfig{Services: []string{"mention", "auth", "bogus"}, Host: "127.0.0.1"}
	cfg.ApplyDefaults()

	assert.Equal(t, []Service{ServiceAuth, ServiceMention}, cfg.Enabled())
	assert.Equal(t, "127.0.0.1:8005", cfg.Addr(ServiceMention))
}

func TestBasePath(t *testing.T) {
	assert.Equal(t, "/api/v1/auth", ServiceAuth.BasePath())
	assert.Equal(t, "/api/v1/entity", ServiceEntity.BasePath())
	assert.Equal(t, "/api/v1/clusters", ServiceCluster.BasePath())
	assert.Equal(t, "/api/v1/users", ServiceUser.BasePath())
	assert.Equal(t, "/api/v1/mention", ServiceMention.BasePath())
}
