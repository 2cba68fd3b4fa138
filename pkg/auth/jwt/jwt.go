// Package jwt verifies bearer tokens issued by an external identity
// provider. Signatures are checked against the issuer's published JWKS;
// caller identity, tenant, tier, and the provider allowlist come from
// configurable claims.
package jwt

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/modelrelay/modelrelay/pkg/auth"
)

// Config holds the token verifier settings.
type Config struct {
	// Issuer, when set, must match the token's iss claim.
	Issuer string

	// Audience, when set, must match the token's aud claim.
	Audience string

	// JWKSURL is the key-set endpoint used to verify signatures.
	JWKSURL string

	// SubjectClaim names the claim carrying the caller ID. Default "sub".
	SubjectClaim string

	// TenantClaim names the claim carrying the tenant. Default "tenant_id".
	TenantClaim string

	// TierClaim names the claim carrying the service tier. Default "tier".
	TierClaim string

	// ProvidersClaim names the claim restricting provider routes. The value
	// may be a space-separated string or an array of strings; absent means
	// unrestricted. Default "providers".
	ProvidersClaim string

	// KeyTTL bounds how long fetched keys are reused. Default one hour.
	KeyTTL time.Duration

	// HTTPClient fetches the JWKS. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ProvidersClaim == "" {
		c.ProvidersClaim = "providers"
	}
	if c.KeyTTL == 0 {
		c.KeyTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Verifier validates bearer JWTs and maps their claims onto gateway callers.
type Verifier struct {
	cfg  Config
	keys *keySet
}

// New creates a verifier for the given issuer configuration.
func New(cfg Config) *Verifier {
	cfg.applyDefaults()
	return &Verifier{
		cfg:  cfg,
		keys: newKeySet(cfg.JWKSURL, cfg.KeyTTL, cfg.HTTPClient),
	}
}

// Verify checks the presented token. Requests without a credential are
// skipped so another verifier can look; a presented but unverifiable token
// denies. Only RSA signatures are accepted, keyed by the token's kid header.
func (v *Verifier) Verify(ctx context.Context, r *http.Request) auth.Result {
	tokenStr, found := auth.Token(r)
	if !found {
		return auth.Result{Verdict: auth.Skip}
	}
	if tokenStr == "" {
		return auth.Result{Verdict: auth.Deny, Err: auth.ErrNoCredentials}
	}

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (any, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return v.keys.lookup(ctx, kid)
	}, v.parserOptions()...)
	if err != nil {
		return auth.Result{Verdict: auth.Deny, Err: fmt.Errorf("token rejected: %w", err)}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return auth.Result{Verdict: auth.Deny, Err: auth.ErrBadCredentials}
	}

	subject := stringClaim(claims, v.cfg.SubjectClaim)
	if subject == "" {
		return auth.Result{
			Verdict: auth.Deny,
			Err:     fmt.Errorf("token has no %q claim", v.cfg.SubjectClaim),
		}
	}

	return auth.Result{
		Verdict: auth.Allow,
		Caller: &auth.Caller{
			ID:        subject,
			Tenant:    stringClaim(claims, v.cfg.TenantClaim),
			Tier:      stringClaim(claims, v.cfg.TierClaim),
			Providers: listClaim(claims, v.cfg.ProvidersClaim),
		},
	}
}

func (v *Verifier) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(v.cfg.Audience))
	}
	return opts
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// listClaim reads a claim that identity providers emit either as a
// space-separated string or as an array of strings.
func listClaim(claims jwtlib.MapClaims, name string) []string {
	switch val := claims[name].(type) {
	case string:
		return strings.Fields(val)
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
