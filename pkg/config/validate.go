package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// At least one provider must be configured or injected via env.
	if len(c.Providers) == 0 {
		errs = append(errs, fmt.Errorf("at least one provider is required (providers list or a provider key env var)"))
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers[%d].name is required", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("providers[%d].name %q is duplicated", i, p.Name))
		}
		seen[p.Name] = true

		switch p.Type {
		case "anthropic", "openai", "google":
			// valid
		default:
			errs = append(errs, fmt.Errorf("providers[%d].type must be \"anthropic\", \"openai\", or \"google\", got %q", i, p.Type))
		}

		if p.APIKey == "" && p.APIKeyFile == "" {
			errs = append(errs, fmt.Errorf("providers[%d].api_key or api_key_file is required", i))
		}

		switch p.EffortStyle {
		case "", "body", "suffix", "ignore":
			// valid
		default:
			errs = append(errs, fmt.Errorf("providers[%d].effort_style must be \"body\", \"suffix\", or \"ignore\", got %q", i, p.EffortStyle))
		}
		if p.EffortStyle != "" && p.Type != "openai" {
			errs = append(errs, fmt.Errorf("providers[%d].effort_style only applies to openai-type providers", i))
		}
	}

	// auth.type must be a known value.
	switch c.Auth.Type {
	case "none", "apikey", "jwt":
		// valid
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	// JWT validation requires a key source.
	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}

	// logging.level must be a known value.
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, fmt.Errorf("logging.level must be \"debug\", \"info\", \"warn\", or \"error\", got %q", c.Logging.Level))
	}

	// logging.format must be a known value.
	switch c.Logging.Format {
	case "text", "json":
		// valid
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
