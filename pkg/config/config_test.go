package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// clearProviderEnv blanks the conventional provider key variables so host
// environment leakage cannot steer a test.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, env := range providerKeyEnvs {
		t.Setenv(env, "")
	}
	t.Setenv("MODELRELAY_CONFIG", "")
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("default server.read_timeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 0 {
		t.Errorf("default server.write_timeout = %v, want 0 (streaming)", cfg.Server.WriteTimeout)
	}
	if cfg.Server.MaxBodyBytes != 10<<20 {
		t.Errorf("default server.max_body_bytes = %d, want %d", cfg.Server.MaxBodyBytes, 10<<20)
	}
	if cfg.Auth.Type != "none" {
		t.Errorf("default auth.type = %q, want \"none\"", cfg.Auth.Type)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default logging.level = %q, want \"info\"", cfg.Logging.Level)
	}
	if !cfg.Observability.Metrics.Enabled {
		t.Error("default observability.metrics.enabled = false, want true")
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearProviderEnv(t)

	yamlContent := `
server:
  port: 9090
  read_timeout: 60s
  write_timeout: 180s
providers:
  - name: anthropic
    type: anthropic
    api_key: sk-ant-test
  - name: groq
    type: openai
    base_url: https://api.groq.com/openai
    api_key: gsk-test
    effort_style: ignore
auth:
  type: apikey
  api_keys:
    - key: mr-key-1
      subject: alice
      tenant_id: org-1
      service_tier: premium
    - key: mr-key-2
      subject: bob
rate_limit:
  default_rpm: 600
  tiers:
    premium: 6000
logging:
  level: debug
  format: json
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout != 180*time.Second {
		t.Errorf("server.write_timeout = %v, want 180s", cfg.Server.WriteTimeout)
	}

	if len(cfg.Providers) != 2 {
		t.Fatalf("providers length = %d, want 2", len(cfg.Providers))
	}
	if cfg.Providers[0].Name != "anthropic" || cfg.Providers[0].Type != "anthropic" {
		t.Errorf("providers[0] = %+v, want anthropic entry", cfg.Providers[0])
	}
	if cfg.Providers[1].BaseURL != "https://api.groq.com/openai" {
		t.Errorf("providers[1].base_url = %q, want groq URL", cfg.Providers[1].BaseURL)
	}
	if cfg.Providers[1].EffortStyle != "ignore" {
		t.Errorf("providers[1].effort_style = %q, want \"ignore\"", cfg.Providers[1].EffortStyle)
	}

	if cfg.Auth.Type != "apikey" {
		t.Errorf("auth.type = %q, want \"apikey\"", cfg.Auth.Type)
	}
	if len(cfg.Auth.APIKeys) != 2 {
		t.Fatalf("auth.api_keys length = %d, want 2", len(cfg.Auth.APIKeys))
	}
	if cfg.Auth.APIKeys[0].Subject != "alice" || cfg.Auth.APIKeys[0].TenantID != "org-1" {
		t.Errorf("auth.api_keys[0] = %+v, want alice/org-1", cfg.Auth.APIKeys[0])
	}

	if cfg.RateLimit.DefaultRPM != 600 {
		t.Errorf("rate_limit.default_rpm = %d, want 600", cfg.RateLimit.DefaultRPM)
	}
	if cfg.RateLimit.Tiers["premium"] != 6000 {
		t.Errorf("rate_limit.tiers[premium] = %d, want 6000", cfg.RateLimit.Tiers["premium"])
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestProviderKeyEnvSynthesizesEntries(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env")
	t.Setenv("GROQ_API_KEY", "gsk-from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.Providers) != 2 {
		t.Fatalf("providers length = %d, want 2", len(cfg.Providers))
	}
	if cfg.Providers[0].Name != "anthropic" || cfg.Providers[0].APIKey != "sk-ant-from-env" {
		t.Errorf("providers[0] = %+v, want synthesized anthropic entry", cfg.Providers[0])
	}
	if cfg.Providers[1].Name != "groq" || cfg.Providers[1].Type != "openai" {
		t.Errorf("providers[1] = %+v, want synthesized groq entry with openai type", cfg.Providers[1])
	}
}

func TestProviderKeyEnvFillsConfiguredEntry(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	yamlContent := `
providers:
  - name: openai
    type: openai
    base_url: https://api.openai.com
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.Providers) != 1 {
		t.Fatalf("providers length = %d, want 1", len(cfg.Providers))
	}
	if cfg.Providers[0].APIKey != "sk-from-env" {
		t.Errorf("providers[0].api_key = %q, want env value", cfg.Providers[0].APIKey)
	}
	if cfg.Providers[0].BaseURL != "https://api.openai.com" {
		t.Errorf("providers[0].base_url = %q, want configured URL kept", cfg.Providers[0].BaseURL)
	}
}

func TestProviderKeyEnvDoesNotOverrideExplicitKey(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")

	yamlContent := `
providers:
  - name: anthropic
    type: anthropic
    api_key: sk-ant-explicit
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Providers[0].APIKey != "sk-ant-explicit" {
		t.Errorf("providers[0].api_key = %q, want explicit value to win", cfg.Providers[0].APIKey)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("MODELRELAY_PORT", "7070")
	t.Setenv("MODELRELAY_AUTH_TYPE", "apikey")
	t.Setenv("MODELRELAY_API_KEYS", `[{"key":"mr-env-key","subject":"env-user","service_tier":"standard"}]`)
	t.Setenv("MODELRELAY_LOG_LEVEL", "warn")
	t.Setenv("MODELRELAY_LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Auth.Type != "apikey" {
		t.Errorf("auth.type = %q, want \"apikey\"", cfg.Auth.Type)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].Subject != "env-user" {
		t.Errorf("auth.api_keys = %+v, want env-user entry", cfg.Auth.APIKeys)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v, want warn/json", cfg.Logging)
	}
}

func TestFileReference(t *testing.T) {
	clearProviderEnv(t)
	secretFile := writeTemp(t, "secret-*.txt", "  sk-ant-from-file  \n")

	yamlContent := `
providers:
  - name: anthropic
    type: anthropic
    api_key_file: ` + secretFile + `
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Providers[0].APIKey != "sk-ant-from-file" {
		t.Errorf("providers[0].api_key = %q, want \"sk-ant-from-file\" (from file, trimmed)", cfg.Providers[0].APIKey)
	}
}

func TestFileReferenceForAPIKeys(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	keyFile := writeTemp(t, "apikey-*.txt", "  mr-key-from-file  \n")

	yamlContent := `
auth:
  type: apikey
  api_keys:
    - key_file: ` + keyFile + `
      subject: file-user
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.Auth.APIKeys) != 1 {
		t.Fatalf("auth.api_keys length = %d, want 1", len(cfg.Auth.APIKeys))
	}
	if cfg.Auth.APIKeys[0].Key != "mr-key-from-file" {
		t.Errorf("auth.api_keys[0].key = %q, want \"mr-key-from-file\"", cfg.Auth.APIKeys[0].Key)
	}
}

func TestFileDiscoveryEnvVar(t *testing.T) {
	clearProviderEnv(t)
	envFile := writeTemp(t, "envconfig-*.yaml", `
providers:
  - name: anthropic
    type: anthropic
    api_key: sk-ant-discovered
`)
	t.Setenv("MODELRELAY_CONFIG", envFile)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(MODELRELAY_CONFIG) error: %v", err)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].APIKey != "sk-ant-discovered" {
		t.Errorf("providers = %+v, want entry from discovered file", cfg.Providers)
	}
}

func TestValidation(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.Providers = []ProviderConfig{{Name: "anthropic", Type: "anthropic", APIKey: "sk-ant"}}
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:    "no providers",
			modify:  func(c *Config) { c.Providers = nil },
			wantErr: "at least one provider",
		},
		{
			name:    "invalid port",
			modify:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port must be > 0",
		},
		{
			name:    "missing provider name",
			modify:  func(c *Config) { c.Providers[0].Name = "" },
			wantErr: "providers[0].name is required",
		},
		{
			name: "duplicate provider name",
			modify: func(c *Config) {
				c.Providers = append(c.Providers, ProviderConfig{Name: "anthropic", Type: "anthropic", APIKey: "sk-2"})
			},
			wantErr: "is duplicated",
		},
		{
			name:    "invalid provider type",
			modify:  func(c *Config) { c.Providers[0].Type = "bedrock" },
			wantErr: "providers[0].type must be",
		},
		{
			name:    "missing provider key",
			modify:  func(c *Config) { c.Providers[0].APIKey = "" },
			wantErr: "providers[0].api_key",
		},
		{
			name:    "invalid effort style",
			modify:  func(c *Config) { c.Providers[0].Type = "openai"; c.Providers[0].EffortStyle = "header" },
			wantErr: "effort_style must be",
		},
		{
			name:    "effort style on non-openai provider",
			modify:  func(c *Config) { c.Providers[0].EffortStyle = "suffix" },
			wantErr: "only applies to openai-type providers",
		},
		{
			name:    "invalid auth type",
			modify:  func(c *Config) { c.Auth.Type = "oauth2" },
			wantErr: "auth.type must be",
		},
		{
			name:    "jwt without jwks_url",
			modify:  func(c *Config) { c.Auth.Type = "jwt" },
			wantErr: "auth.jwt.jwks_url is required",
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: "logging.level must be",
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Logging.Format = "logfmt" },
			wantErr: "logging.format must be",
		},
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestYAMLDefaultsMerge(t *testing.T) {
	clearProviderEnv(t)

	// A minimal YAML that only sets a provider.
	// All other fields should retain defaults.
	yamlContent := `
providers:
  - name: anthropic
    type: anthropic
    api_key: sk-ant
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Auth.Type != "none" {
		t.Errorf("auth.type = %q, want default \"none\"", cfg.Auth.Type)
	}
	if cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("observability.metrics.path = %q, want default \"/metrics\"", cfg.Observability.Metrics.Path)
	}
}

// writeTemp creates a temporary file with the given content and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		t.Fatalf("writing temp file: %v", err)
	}
	f.Close()
	return f.Name()
}
