package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	paths := make([]string, 0, len(issues))
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"negative port", func(c *Config) { c.Gateway.Port = -1 }, "gateway.port"},
		{"port too large", func(c *Config) { c.Gateway.Port = 70000 }, "gateway.port"},
		{"unknown bind", func(c *Config) { c.Gateway.Bind = "tailnet" }, "gateway.bind"},
		{"unknown auth mode", func(c *Config) { c.Gateway.Auth.Mode = "oauth" }, "gateway.auth.mode"},
		{"tls without cert", func(c *Config) { c.Gateway.TLS.Enabled = true }, "gateway.tls"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"unknown console style", func(c *Config) { c.Logging.ConsoleStyle = "compact" }, "logging.consoleStyle"},
		{"unknown store driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"mongo without uri", func(c *Config) { c.Store.Driver = "mongo" }, "store.mongoUri"},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "redis" }, "cache.backend"},
		{"ttl above limit", func(c *Config) { c.Cache.TTLSeconds = 3600 }, "cache.ttlSeconds"},
		{"negative max entries", func(c *Config) { c.Cache.MaxEntries = -5 }, "cache.maxEntries"},
		{"unknown permission source", func(c *Config) { c.Permissions.Source = "ldap" }, "permissions.source"},
		{"telegram without token", func(c *Config) { c.Permissions.Source = "telegram" }, "telegram.token"},
		{"negative admin memo", func(c *Config) { c.Permissions.CacheSeconds = -1 }, "permissions.cacheSeconds"},
		{"sample rate above one", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "tracing.sampleRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			require.NotEmpty(t, issues)
			assert.Contains(t, issuePaths(issues), tt.path)
		})
	}
}

func TestValidate_ValidVariants(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Bind = "custom"
	cfg.Gateway.Auth.Mode = "password"
	cfg.Store.Driver = "mongo"
	cfg.Store.MongoURI = "mongodb://localhost"
	cfg.Cache.Backend = "badger"
	cfg.Cache.TTLSeconds = 60
	cfg.Permissions.Source = "telegram"
	cfg.Telegram.Token = "1:a"
	cfg.Tracing.SampleRate = 0.25

	assert.Empty(t, Validate(&cfg))
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "cache.backend", Message: "bad"}
	assert.Equal(t, "cache.backend: bad", issue.String())
}
