// Command server runs the modelrelay gateway.
//
// Configuration is layered: a YAML config file (explicit -config flag,
// MODELRELAY_CONFIG, ./config.yaml, /etc/modelrelay/config.yaml), then
// MODELRELAY_* environment variables, then the conventional provider key
// variables (ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY,
// GROQ_API_KEY). A .env file in the working directory is loaded first.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modelrelay/modelrelay/pkg/auth"
	"github.com/modelrelay/modelrelay/pkg/auth/apikey"
	authjwt "github.com/modelrelay/modelrelay/pkg/auth/jwt"
	"github.com/modelrelay/modelrelay/pkg/catalog"
	"github.com/modelrelay/modelrelay/pkg/config"
	"github.com/modelrelay/modelrelay/pkg/credentials"
	"github.com/modelrelay/modelrelay/pkg/gateway"
	"github.com/modelrelay/modelrelay/pkg/observability"
	"github.com/modelrelay/modelrelay/pkg/provider"
	"github.com/modelrelay/modelrelay/pkg/provider/anthropic"
	"github.com/modelrelay/modelrelay/pkg/provider/google"
	"github.com/modelrelay/modelrelay/pkg/provider/openai"
	"github.com/modelrelay/modelrelay/pkg/transport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env before config so env overrides see its values.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	registry, err := buildProviders(cfg.Providers)
	if err != nil {
		return err
	}

	cat := catalog.New(registry.Names())
	gw := gateway.New(registry, cat,
		gateway.WithLogger(logger),
		gateway.WithMaxBodySize(cfg.Server.MaxBodyBytes),
	)

	chain, limiter, err := buildAuth(cfg)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", gw.Handler())
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	handler := transport.Chain(
		transport.Recovery(logger),
		transport.RequestID(),
		transport.Logging(logger),
		observability.MetricsMiddleware,
		auth.Middleware(chain, limiter, auth.SkipPaths),
	)(mux)

	srv := transport.NewServer(handler,
		transport.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transport.WithReadTimeout(cfg.Server.ReadTimeout),
		transport.WithWriteTimeout(cfg.Server.WriteTimeout),
		transport.WithLogger(logger),
	)

	logger.Info("gateway configured",
		"providers", registry.Names(),
		"auth", cfg.Auth.Type,
		"port", cfg.Server.Port,
	)
	return srv.ListenAndServe()
}

// newLogger builds the process logger from the logging config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// knownBaseURLs fills in endpoints for OpenAI-compatible vendors configured
// without an explicit base_url.
var knownBaseURLs = map[string]string{
	"groq": "https://api.groq.com/openai",
}

// buildProviders constructs one adapter per provider entry and registers it
// under the entry's routing name.
func buildProviders(entries []config.ProviderConfig) (*provider.Registry, error) {
	// Anthropic and Google adapters resolve credentials under their fixed
	// provider names; openai-family adapters resolve under the entry name.
	tokens := make(map[string]string, len(entries))
	for _, p := range entries {
		switch p.Type {
		case "anthropic", "google":
			tokens[p.Type] = p.APIKey
		default:
			tokens[p.Name] = p.APIKey
		}
	}
	creds := credentials.NewStaticSource(tokens)

	registry := provider.NewRegistry()
	for _, p := range entries {
		var (
			adapter provider.Adapter
			err     error
		)
		switch p.Type {
		case "anthropic":
			adapter, err = anthropic.New(anthropic.Config{BaseURL: p.BaseURL}, creds)
		case "google":
			adapter, err = google.New(google.Config{BaseURL: p.BaseURL}, creds)
		case "openai":
			ocfg := openai.DefaultConfig()
			ocfg.Name = p.Name
			if p.BaseURL != "" {
				ocfg.BaseURL = p.BaseURL
			} else if url, ok := knownBaseURLs[p.Name]; ok {
				ocfg.BaseURL = url
			}
			if p.EffortStyle != "" {
				ocfg.EffortStyle = openai.EffortStyle(p.EffortStyle)
			}
			if p.ReasoningSuffix != "" {
				ocfg.ReasoningSuffix = p.ReasoningSuffix
			}
			adapter, err = openai.New(ocfg, creds)
		default:
			err = fmt.Errorf("unknown provider type %q", p.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name, err)
		}
		registry.Register(p.Name, adapter)
	}
	return registry, nil
}

// buildAuth assembles the caller verifier chain and optional rate limiter.
func buildAuth(cfg *config.Config) (*auth.Chain, auth.Limiter, error) {
	chain := &auth.Chain{Fallback: auth.Deny}

	switch cfg.Auth.Type {
	case "none":
		chain.Verifiers = append(chain.Verifiers, auth.AllowAll())
	case "apikey":
		entries := make([]apikey.Entry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.Entry{
				Secret: k.Key,
				Caller: auth.Caller{
					ID:        k.Subject,
					Tenant:    k.TenantID,
					Tier:      k.ServiceTier,
					Providers: k.Providers,
				},
			})
		}
		chain.Verifiers = append(chain.Verifiers, apikey.New(entries))
	case "jwt":
		chain.Verifiers = append(chain.Verifiers, authjwt.New(authjwt.Config{
			Issuer:         cfg.Auth.JWT.Issuer,
			Audience:       cfg.Auth.JWT.Audience,
			JWKSURL:        cfg.Auth.JWT.JWKSURL,
			SubjectClaim:   cfg.Auth.JWT.SubjectClaim,
			TenantClaim:    cfg.Auth.JWT.TenantClaim,
			TierClaim:      cfg.Auth.JWT.TierClaim,
			ProvidersClaim: cfg.Auth.JWT.ProvidersClaim,
		}))
	default:
		return nil, nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	var limiter auth.Limiter
	if cfg.RateLimit.DefaultRPM > 0 || len(cfg.RateLimit.Tiers) > 0 {
		tiers := make(map[string]auth.TierLimit, len(cfg.RateLimit.Tiers))
		for tier, rpm := range cfg.RateLimit.Tiers {
			tiers[tier] = auth.TierLimit{RequestsPerMinute: rpm}
		}
		limiter = auth.NewMemoryLimiter(tiers, cfg.RateLimit.DefaultRPM)
	}

	return chain, limiter, nil
}
