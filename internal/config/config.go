package config

import "fmt"

// DefaultCacheTTLSeconds is how long a validated connection stays cached.
const DefaultCacheTTLSeconds = 900

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 18790,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		Store: StoreConfig{
			Driver:        "sqlite",
			MongoDatabase: "chatconn",
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTLSeconds: DefaultCacheTTLSeconds,
			MaxEntries: 10000,
		},
		Permissions: PermissionsConfig{
			Source:       "store",
			CacheSeconds: 60,
			CacheSize:    4096,
		},
		I18n: I18nConfig{
			DefaultLanguage: "en",
		},
		Tracing: TracingConfig{
			SampleRate:  1.0,
			ServiceName: "chatconn",
		},
	}
}
