package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so tokens and passwords can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.Telegram.Token = expandEnvVars(cfg.Telegram.Token)
	cfg.Store.MongoURI = expandEnvVars(cfg.Store.MongoURI)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = def.Gateway.Bind
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = def.Gateway.Auth.Mode
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = def.Logging.ConsoleStyle
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = def.Store.Driver
	}
	if cfg.Store.MongoDatabase == "" {
		cfg.Store.MongoDatabase = def.Store.MongoDatabase
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = def.Cache.Backend
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = def.Cache.TTLSeconds
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = def.Cache.MaxEntries
	}
	if cfg.Permissions.Source == "" {
		cfg.Permissions.Source = def.Permissions.Source
	}
	if cfg.Permissions.CacheSize == 0 {
		cfg.Permissions.CacheSize = def.Permissions.CacheSize
	}
	if cfg.I18n.DefaultLanguage == "" {
		cfg.I18n.DefaultLanguage = def.I18n.DefaultLanguage
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = def.Tracing.SampleRate
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = def.Tracing.ServiceName
	}
}

// applyEnvOverrides reads CHATCONN_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHATCONN_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("CHATCONN_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("CHATCONN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CHATCONN_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("CHATCONN_MONGO_URI"); v != "" {
		cfg.Store.MongoURI = v
	}
	if v := os.Getenv("CHATCONN_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("CHATCONN_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
}
