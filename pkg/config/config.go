// Package config provides unified configuration for the modelrelay gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (MODELRELAY_ prefix, plus the
//     conventional provider key variables such as ANTHROPIC_API_KEY)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the modelrelay gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     []ProviderConfig    `yaml:"providers"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `yaml:"port"`         // default: 8080
	ReadTimeout time.Duration `yaml:"read_timeout"` // default: 30s

	// WriteTimeout applies to the whole response. Zero disables it, which
	// long-lived streaming responses require. Default: 0.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxBodyBytes bounds ingress request bodies. Default: 10 MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// ProviderConfig describes one upstream provider entry. Name is the routing
// prefix callers use in model identifiers; Type selects the adapter family.
type ProviderConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"` // "anthropic", "openai", or "google"
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key

	// EffortStyle applies to openai-type providers: "body", "suffix", or
	// "ignore". Empty means the adapter default.
	EffortStyle string `yaml:"effort_style"`

	// ReasoningSuffix is the model name suffix used when EffortStyle is
	// "suffix". Empty means the adapter default.
	ReasoningSuffix string `yaml:"reasoning_suffix"`
}

// AuthConfig holds caller authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey", or "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`      // JWT settings for type=jwt
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string   `yaml:"key"`
	KeyFile     string   `yaml:"key_file"` // _file variant for key
	Subject     string   `yaml:"subject"`
	TenantID    string   `yaml:"tenant_id"`
	ServiceTier string   `yaml:"service_tier"`
	Providers   []string `yaml:"providers"` // provider routes this key may use; empty = all
}

// JWTConfig holds JWT/OIDC validation settings.
type JWTConfig struct {
	Issuer         string `yaml:"issuer"`
	Audience       string `yaml:"audience"`
	JWKSURL        string `yaml:"jwks_url"`
	SubjectClaim   string `yaml:"subject_claim"`   // default: "sub"
	TenantClaim    string `yaml:"tenant_claim"`    // default: "tenant_id"
	TierClaim      string `yaml:"tier_claim"`      // default: "tier"
	ProvidersClaim string `yaml:"providers_claim"` // default: "providers"
}

// RateLimitConfig holds per-tier request rate settings. Zero disables
// limiting for that tier.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"` // tier name -> requests per minute
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error", default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"
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
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
