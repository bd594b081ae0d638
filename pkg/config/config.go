// Package config provides unified configuration for the ainb server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (AINB_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the ainb server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Settings      SettingsConfig      `yaml:"settings"`
	Providers     []ProviderConfig    `yaml:"providers"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`             // default: ""
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 120s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
}

// SandboxConfig holds isolated execution context settings.
type SandboxConfig struct {
	Mode          string        `yaml:"mode"`           // "subprocess" or "kubernetes", default: "subprocess"
	RunnerPath    string        `yaml:"runner_path"`    // default: "ainb-sandbox-runner" (looked up in PATH)
	DebounceDelay time.Duration `yaml:"debounce_delay"` // default: 500ms
	// RunTimeout bounds a single dispatched run. Zero disables the
	// watchdog; runs then stay pending until a reply or explicit stop.
	RunTimeout time.Duration           `yaml:"run_timeout"` // default: 0 (disabled)
	Kubernetes KubernetesSandboxConfig `yaml:"kubernetes"`
}

// KubernetesSandboxConfig holds settings for claim-based sandbox
// acquisition on a cluster.
type KubernetesSandboxConfig struct {
	Namespace    string        `yaml:"namespace"`     // default: "default"
	TemplateName string        `yaml:"template_name"` // default: "ainb-sandbox"
	RunnerPort   int           `yaml:"runner_port"`   // default: 8211
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // default: 60s
}

// SettingsConfig holds persisted-settings store selection.
type SettingsConfig struct {
	Store    string         `yaml:"store"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// ProviderConfig bootstraps one inference provider. Providers added at
// runtime are persisted through the settings store instead.
type ProviderConfig struct {
	ID             string `yaml:"id"`
	Kind           string `yaml:"kind"` // "standard-a", "standard-b", "aggregator", "custom"
	Label          string `yaml:"label"`
	Endpoint       string `yaml:"endpoint"`
	Credential     string `yaml:"credential"`
	CredentialFile string `yaml:"credential_file"` // _file variant for credential
}

// AuthConfig holds authentication settings for the HTTP surface.
type AuthConfig struct {
	Type      string          `yaml:"type"`       // "none", "apikey", or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"`   // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`        // settings for type=jwt
	RateLimit RateLimitConfig `yaml:"rate_limit"` // per-tier request budgets
}

// APIKeyConfig describes a single API key entry. Workspace scopes the
// caller's persisted settings; tier selects its rate-limit budget.
type APIKeyConfig struct {
	Key       string `yaml:"key"`
	KeyFile   string `yaml:"key_file"` // _file variant for key
	Subject   string `yaml:"subject"`
	Workspace string `yaml:"workspace"`
	Tier      string `yaml:"tier"` // default: "default"
}

// JWTConfig holds JWT verification settings. Tokens are verified
// against the JWKS endpoint; RSA and ECDSA signatures are accepted.
type JWTConfig struct {
	JWKSURL        string `yaml:"jwks_url"`
	Issuer         string `yaml:"issuer"`
	Audience       string `yaml:"audience"`
	WorkspaceClaim string `yaml:"workspace_claim"` // default: "workspace"
}

// RateLimitConfig holds per-minute request budgets keyed by service
// tier. Tiers not listed fall back to DefaultRPM; a zero or negative
// budget disables limiting.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"`
}

// LoggingConfig holds log level and debug category settings.
// Environment variables AINB_LOG_LEVEL and AINB_DEBUG take precedence.
type LoggingConfig struct {
	Level string `yaml:"level"` // default: "INFO"
	Debug string `yaml:"debug"` // comma-separated debug categories
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Sandbox: SandboxConfig{
			Mode:          "subprocess",
			RunnerPath:    "ainb-sandbox-runner",
			DebounceDelay: 500 * time.Millisecond,
			Kubernetes: KubernetesSandboxConfig{
				Namespace:    "default",
				TemplateName: "ainb-sandbox",
				RunnerPort:   8211,
				ReadyTimeout: 60 * time.Second,
			},
		},
		Settings: SettingsConfig{
			Store: "memory",
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
