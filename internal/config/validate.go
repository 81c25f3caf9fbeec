package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}

	validAuthModes := []string{"token", "password"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.auth.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode),
		})
	}

	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// Store validation
	validDrivers := []string{"sqlite", "mongo"}
	if cfg.Store.Driver != "" && !slices.Contains(validDrivers, cfg.Store.Driver) {
		issues = append(issues, ValidationIssue{
			Path:    "store.driver",
			Message: fmt.Sprintf("must be one of %v, got %q", validDrivers, cfg.Store.Driver),
		})
	}
	if cfg.Store.Driver == "mongo" && cfg.Store.MongoURI == "" {
		issues = append(issues, ValidationIssue{
			Path:    "store.mongoUri",
			Message: "required when driver is mongo",
		})
	}

	// Cache validation
	validBackends := []string{"memory", "badger"}
	if cfg.Cache.Backend != "" && !slices.Contains(validBackends, cfg.Cache.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "cache.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.Cache.Backend),
		})
	}
	if cfg.Cache.TTLSeconds < 0 || cfg.Cache.TTLSeconds > DefaultCacheTTLSeconds {
		issues = append(issues, ValidationIssue{
			Path:    "cache.ttlSeconds",
			Message: fmt.Sprintf("must be 0-%d, got %d", DefaultCacheTTLSeconds, cfg.Cache.TTLSeconds),
		})
	}
	if cfg.Cache.MaxEntries < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "cache.maxEntries",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Cache.MaxEntries),
		})
	}

	// Permissions validation
	validSources := []string{"store", "telegram"}
	if cfg.Permissions.Source != "" && !slices.Contains(validSources, cfg.Permissions.Source) {
		issues = append(issues, ValidationIssue{
			Path:    "permissions.source",
			Message: fmt.Sprintf("must be one of %v, got %q", validSources, cfg.Permissions.Source),
		})
	}
	if cfg.Permissions.Source == "telegram" && cfg.Telegram.Token == "" {
		issues = append(issues, ValidationIssue{
			Path:    "telegram.token",
			Message: "required when permissions.source is telegram",
		})
	}
	if cfg.Permissions.CacheSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "permissions.cacheSeconds",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Permissions.CacheSeconds),
		})
	}

	// Tracing validation
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		issues = append(issues, ValidationIssue{
			Path:    "tracing.sampleRate",
			Message: fmt.Sprintf("must be 0.0-1.0, got %v", cfg.Tracing.SampleRate),
		})
	}

	return issues
}
