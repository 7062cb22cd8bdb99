package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

const configTemplate = `# eec Configuration File
#
# Every key can be overridden with an EEC_ environment variable, e.g.
# EEC_LOGGING_LEVEL=DEBUG or EEC_STORAGE_DATA_PATH=/srv/eec.

logging:
  level: INFO
  format: text
  output: stdout

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: http://localhost:4040

shutdown_timeout: 30s

metrics:
  enabled: false
  port: 9090

server:
  # services run by this process: auth, entity, cluster, user, mention
  services: [auth, entity, cluster, user, mention]
  host: ""
  ports:
    auth: 8001
    entity: 8002
    cluster: 8003
    user: 8004
    mention: 8005
  read_timeout: 10s
  write_timeout: 60s
  idle_timeout: 60s
  request_timeout: 30s
  verifier:
    # local verifies tokens with auth.jwt_secret; remote asks auth_url/verify
    mode: local
    auth_url: ""
    timeout: 5s

auth:
  jwt_secret: %q
  issuer: eec
  token_duration: 30m

storage:
  # file, sqlite or postgres
  type: file
  data_path: %q
  # 0 waits for snapshot locks until the request times out
  lock_timeout: 10s
  watch: false

embedding:
  # word2vec text file; empty disables mention vectors
  path: ""

clustering:
  top_n: 10
`

// InitConfig writes a fresh configuration to the default location and
// returns its path. An existing file is kept unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a fresh configuration with a generated JWT secret
// to path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	secret, err := GenerateSecret()
	if err != nil {
		return err
	}

	defaults := GetDefaultConfig()
	content := fmt.Sprintf(configTemplate, secret, defaults.Storage.DataPath)
	return writeConfigFile(path, []byte(content))
}

// GenerateSecret returns a random hex string suitable for auth.jwt_secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, MinJWTSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
