package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, MODELRELAY_CONFIG env, ./config.yaml,
//     /etc/modelrelay/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. MODELRELAY_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/modelrelay/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check MODELRELAY_CONFIG env var.
	if envPath := os.Getenv("MODELRELAY_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/modelrelay/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// providerKeyEnvs maps the conventional provider key environment variables
// onto provider entries. Each variable names the provider entry it feeds.
var providerKeyEnvs = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GEMINI_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// providerTypes gives the adapter family for each conventional provider name.
var providerTypes = map[string]string{
	"anthropic": "anthropic",
	"openai":    "openai",
	"google":    "google",
	"groq":      "openai",
}

// applyEnvOverrides maps environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MODELRELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MODELRELAY_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := os.Getenv("MODELRELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MODELRELAY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// MODELRELAY_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("MODELRELAY_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	applyProviderKeyEnvs(cfg)
}

// applyProviderKeyEnvs feeds the conventional provider key variables into
// matching provider entries. Entries without a configured key pick up the
// variable; providers absent from the config entirely are synthesized, so a
// bare environment with ANTHROPIC_API_KEY set yields a working gateway
// without a config file.
func applyProviderKeyEnvs(cfg *Config) {
	configured := make(map[string]*ProviderConfig, len(cfg.Providers))
	for i := range cfg.Providers {
		configured[cfg.Providers[i].Name] = &cfg.Providers[i]
	}

	// Deterministic order keeps the synthesized provider list stable.
	for _, name := range []string{"anthropic", "openai", "google", "groq"} {
		key := os.Getenv(providerKeyEnvs[name])
		if key == "" {
			continue
		}
		if p, ok := configured[name]; ok {
			if p.APIKey == "" && p.APIKeyFile == "" {
				p.APIKey = key
			}
			continue
		}
		cfg.Providers = append(cfg.Providers, ProviderConfig{
			Name:   name,
			Type:   providerTypes[name],
			APIKey: key,
		})
	}
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. For each field ending in _file, if the value field is empty
// and the file field is set, the file is read, whitespace is trimmed, and the
// value field is populated.
func resolveFileReferences(cfg *Config) error {
	// providers[*].api_key_file -> providers[*].api_key
	for i := range cfg.Providers {
		if cfg.Providers[i].APIKeyFile != "" && cfg.Providers[i].APIKey == "" {
			val, err := readSecretFile(cfg.Providers[i].APIKeyFile)
			if err != nil {
				return fmt.Errorf("providers[%d].api_key_file: %w", i, err)
			}
			cfg.Providers[i].APIKey = val
		}
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
