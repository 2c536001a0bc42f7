package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tesseract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeTemp(t, `
schema_path: ./schema.json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "standard", cfg.Server.LogFormat)
	assert.Equal(t, "INFO", cfg.Server.LogLevel)
}

func TestLoadOverridesAndSources(t *testing.T) {
	path := writeTemp(t, `
server:
  address: 0.0.0.0
  port: 9000
  log_format: json
  log_level: DEBUG
schema_path: ./schema.json
default_source: warehouse
sources:
  warehouse:
    kind: clickhouse
    host: ch.internal
    port: 9440
    database: analytics
    user: reader
    password: secret
    secure: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Server.LogFormat)
	assert.Equal(t, "warehouse", cfg.DefaultSource)

	backends, err := cfg.BackendConfigs()
	require.NoError(t, err)
	require.Contains(t, backends, "warehouse")
	assert.Equal(t, "clickhouse", backends["warehouse"].Kind())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBackendConfigsUnknownKind(t *testing.T) {
	path := writeTemp(t, `
schema_path: ./schema.json
sources:
  weird:
    kind: oracle
    host: localhost
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = cfg.BackendConfigs()
	assert.Error(t, err)
}
