package config

// Config is the root configuration for chatconn.
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Store       StoreConfig       `yaml:"store,omitempty"`
	Cache       CacheConfig       `yaml:"cache,omitempty"`
	Permissions PermissionsConfig `yaml:"permissions,omitempty"`
	Telegram    TelegramConfig    `yaml:"telegram,omitempty"`
	I18n        I18nConfig        `yaml:"i18n,omitempty"`
	Metrics     MetricsConfig     `yaml:"metrics,omitempty"`
	Tracing     TracingConfig     `yaml:"tracing,omitempty"`
}

// GatewayConfig controls the admin gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// StoreConfig selects the document store holding connections, chats and policies.
type StoreConfig struct {
	Driver        string `yaml:"driver,omitempty"` // "sqlite" | "mongo"
	Path          string `yaml:"path,omitempty"`   // sqlite file; default <data>/chatconn.db
	MongoURI      string `yaml:"mongoUri,omitempty"`
	MongoDatabase string `yaml:"mongoDatabase,omitempty"`
}

// CacheConfig selects the resolution cache backend.
type CacheConfig struct {
	Backend    string `yaml:"backend,omitempty"` // "memory" | "badger"
	Path       string `yaml:"path,omitempty"`    // badger directory; default <data>/cache
	TTLSeconds int    `yaml:"ttlSeconds,omitempty"`
	MaxEntries int    `yaml:"maxEntries,omitempty"` // memory backend only
}

// PermissionsConfig selects where admin rights come from.
type PermissionsConfig struct {
	Source       string `yaml:"source,omitempty"` // "store" | "telegram"
	CacheSeconds int    `yaml:"cacheSeconds,omitempty"` // 0 disables the admin memo
	CacheSize    int    `yaml:"cacheSize,omitempty"`
}

// TelegramConfig holds Bot API credentials.
type TelegramConfig struct {
	Token string `yaml:"token,omitempty"`
}

// I18nConfig controls refusal message localization.
type I18nConfig struct {
	DefaultLanguage string `yaml:"defaultLanguage,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint on the gateway.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled,omitempty"`
	Endpoint    string  `yaml:"endpoint,omitempty"` // OTLP/HTTP host:port
	SampleRate  float64 `yaml:"sampleRate,omitempty"`
	ServiceName string  `yaml:"serviceName,omitempty"`
}
