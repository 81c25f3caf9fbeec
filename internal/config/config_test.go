package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 18790, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "token", cfg.Gateway.Auth.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 900, cfg.Cache.TTLSeconds)
	assert.Equal(t, "store", cfg.Permissions.Source)
	assert.Equal(t, "en", cfg.I18n.DefaultLanguage)
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 18790, cfg.Gateway.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
gateway:
  port: 9999
  bind: lan
  auth:
    mode: password
    password: secret123
logging:
  level: debug
  consoleStyle: json
store:
  driver: mongo
  mongoUri: mongodb://localhost:27017
  mongoDatabase: sophie
cache:
  backend: badger
  path: /var/lib/chatconn/cache
  ttlSeconds: 300
permissions:
  source: telegram
  cacheSeconds: 30
telegram:
  token: "123:abc"
i18n:
  defaultLanguage: ru
metrics:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, "password", cfg.Gateway.Auth.Mode)
	assert.Equal(t, "secret123", cfg.Gateway.Auth.Password)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.MongoURI)
	assert.Equal(t, "sophie", cfg.Store.MongoDatabase)
	assert.Equal(t, "badger", cfg.Cache.Backend)
	assert.Equal(t, "/var/lib/chatconn/cache", cfg.Cache.Path)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
	assert.Equal(t, 10000, cfg.Cache.MaxEntries, "unset fields get defaults")
	assert.Equal(t, "telegram", cfg.Permissions.Source)
	assert.Equal(t, 30, cfg.Permissions.CacheSeconds)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "ru", cfg.I18n.DefaultLanguage)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHATCONN_GATEWAY_PORT", "12345")
	t.Setenv("CHATCONN_LOG_LEVEL", "TRACE")
	t.Setenv("CHATCONN_CACHE_BACKEND", "BADGER")
	t.Setenv("CHATCONN_TELEGRAM_TOKEN", "42:xyz")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Gateway.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "badger", cfg.Cache.Backend)
	assert.Equal(t, "42:xyz", cfg.Telegram.Token)
}

func TestLoadExpandsSecrets(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "999:secret")
	t.Setenv("TEST_MONGO_URI", "mongodb://db:27017")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
telegram:
  token: ${TEST_BOT_TOKEN}
store:
  mongoUri: ${TEST_MONGO_URI}
gateway:
  auth:
    token: ${UNSET_VARIABLE_FOR_TEST}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "999:secret", cfg.Telegram.Token)
	assert.Equal(t, "mongodb://db:27017", cfg.Store.MongoURI)
	assert.Equal(t, "${UNSET_VARIABLE_FOR_TEST}", cfg.Gateway.Auth.Token)
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := map[string]any{
		"cache": map[string]any{
			"ttlSeconds": 600,
		},
	}

	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	val, ok := GetValueAtPath(loaded, []string{"cache", "ttlSeconds"})
	assert.True(t, ok)
	assert.Equal(t, 600, val)
}

func TestLoadRawMissingFile(t *testing.T) {
	raw, err := LoadRaw(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, raw)
}
