package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/modelrelay/modelrelay/pkg/auth"
)

// testIssuer signs tokens and serves the matching JWKS over httptest.
type testIssuer struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	key     *rsa.PrivateKey
	kid     string
	fetches int
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	iss := &testIssuer{t: t, kid: "key-1"}
	iss.rotate("key-1")

	iss.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		iss.mu.Lock()
		defer iss.mu.Unlock()
		iss.fetches++
		pub := &iss.key.PublicKey
		doc := map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": iss.kid,
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		}
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			t.Errorf("writing JWKS: %v", err)
		}
	}))
	t.Cleanup(iss.srv.Close)
	return iss
}

// rotate replaces the signing key under a new kid.
func (i *testIssuer) rotate(kid string) {
	i.t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		i.t.Fatalf("generating key: %v", err)
	}
	i.mu.Lock()
	i.key = key
	i.kid = kid
	i.mu.Unlock()
}

// mint signs a token with the issuer's current key.
func (i *testIssuer) mint(claims jwtlib.MapClaims) string {
	i.t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	i.mu.Lock()
	token.Header["kid"] = i.kid
	signed, err := token.SignedString(i.key)
	i.mu.Unlock()
	if err != nil {
		i.t.Fatalf("signing token: %v", err)
	}
	return signed
}

func (i *testIssuer) fetchCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fetches
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestVerifyMapsClaimsToCaller(t *testing.T) {
	iss := newTestIssuer(t)
	v := New(Config{JWKSURL: iss.srv.URL})

	token := iss.mint(jwtlib.MapClaims{
		"sub":       "alice",
		"tenant_id": "org-1",
		"tier":      "premium",
		"providers": []string{"anthropic", "groq"},
	})

	res := v.Verify(context.Background(), bearerRequest(token))
	if res.Verdict != auth.Allow {
		t.Fatalf("result = %+v, want allow", res)
	}
	c := res.Caller
	if c.ID != "alice" || c.Tenant != "org-1" || c.Tier != "premium" {
		t.Errorf("caller = %+v, want alice/org-1/premium", c)
	}
	if !c.CanUse("groq") || c.CanUse("openai") {
		t.Errorf("providers = %v, want anthropic+groq only", c.Providers)
	}
}

func TestVerifyProvidersAsSpaceSeparatedString(t *testing.T) {
	iss := newTestIssuer(t)
	v := New(Config{JWKSURL: iss.srv.URL})

	token := iss.mint(jwtlib.MapClaims{"sub": "alice", "providers": "anthropic groq"})
	res := v.Verify(context.Background(), bearerRequest(token))
	if res.Verdict != auth.Allow {
		t.Fatalf("result = %+v, want allow", res)
	}
	if len(res.Caller.Providers) != 2 || !res.Caller.CanUse("anthropic") {
		t.Errorf("providers = %v, want split on spaces", res.Caller.Providers)
	}
}

func TestVerifyCustomClaimNames(t *testing.T) {
	iss := newTestIssuer(t)
	v := New(Config{
		JWKSURL:      iss.srv.URL,
		SubjectClaim: "email",
		TenantClaim:  "org",
	})

	token := iss.mint(jwtlib.MapClaims{"email": "alice@example.com", "org": "org-2"})
	res := v.Verify(context.Background(), bearerRequest(token))
	if res.Verdict != auth.Allow || res.Caller.ID != "alice@example.com" || res.Caller.Tenant != "org-2" {
		t.Errorf("result = %+v, want caller from custom claims", res)
	}
}

func TestVerifyExpiredTokenDenies(t *testing.T) {
	iss := newTestIssuer(t)
	v := New(Config{JWKSURL: iss.srv.URL})

	token := iss.mint(jwtlib.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	res := v.Verify(context.Background(), bearerRequest(token))
	if res.Verdict != auth.Deny {
		t.Errorf("result = %+v, want deny for expired token", res)
	}
}

func TestVerifyIssuerMismatchDenies(t *testing.T) {
	iss := newTestIssuer(t)
	v := New(Config{JWKSURL: iss.srv.URL, Issuer: "https://issuer.example.com"})

	token := iss.mint(jwtlib.MapClaims{"sub": "alice", "iss": "https://rogue.example.com"})
	res := v.Verify(context.Background(), bearerRequest(token))
	if res.Verdict != auth.Deny {
		t.Errorf("result = %+v, want deny for issuer mismatch", res)
	}
}

func TestVerifyMissingSubjectDenies(t *testing.T) {
	iss := newTestIssuer(t)
	v := New(Config{JWKSURL: iss.srv.URL})

	token := iss.mint(jwtlib.MapClaims{"tenant_id": "org-1"})
	res := v.Verify(context.Background(), bearerRequest(token))
	if res.Verdict != auth.Deny {
		t.Errorf("result = %+v, want deny without subject claim", res)
	}
}

func TestVerifyRejectsSymmetricSignature(t *testing.T) {
	iss := newTestIssuer(t)
	v := New(Config{JWKSURL: iss.srv.URL})

	// A token signed with the JWKS URL as an HMAC secret must never verify,
	// whatever its claims say.
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "key-1"
	signed, err := token.SignedString([]byte(iss.srv.URL))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	res := v.Verify(context.Background(), bearerRequest(signed))
	if res.Verdict != auth.Deny {
		t.Errorf("result = %+v, want deny for HMAC token", res)
	}
}

func TestVerifyNoCredentialSkips(t *testing.T) {
	iss := newTestIssuer(t)
	v := New(Config{JWKSURL: iss.srv.URL})

	res := v.Verify(context.Background(), bearerRequest(""))
	if res.Verdict != auth.Skip {
		t.Errorf("result = %+v, want skip without credentials", res)
	}

	r := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	r.Header.Set("Authorization", "Basic dXNlcg==")
	res = v.Verify(context.Background(), r)
	if res.Verdict != auth.Skip {
		t.Errorf("result = %+v, want skip for non-bearer scheme", res)
	}
}

func TestVerifyCachesKeySet(t *testing.T) {
	iss := newTestIssuer(t)
	v := New(Config{JWKSURL: iss.srv.URL})

	for i := 0; i < 3; i++ {
		token := iss.mint(jwtlib.MapClaims{"sub": "alice"})
		if res := v.Verify(context.Background(), bearerRequest(token)); res.Verdict != auth.Allow {
			t.Fatalf("verify %d: %+v", i+1, res)
		}
	}
	if got := iss.fetchCount(); got != 1 {
		t.Errorf("JWKS fetches = %d, want 1 across repeated verifications", got)
	}
}

func TestVerifyRefetchesOnUnknownKid(t *testing.T) {
	iss := newTestIssuer(t)
	v := New(Config{JWKSURL: iss.srv.URL})

	token := iss.mint(jwtlib.MapClaims{"sub": "alice"})
	if res := v.Verify(context.Background(), bearerRequest(token)); res.Verdict != auth.Allow {
		t.Fatalf("first verify: %+v", res)
	}

	// Rotation: tokens signed with the new key carry a kid the cache has
	// never seen, which forces a refetch inside the TTL.
	iss.rotate("key-2")
	token = iss.mint(jwtlib.MapClaims{"sub": "alice"})
	if res := v.Verify(context.Background(), bearerRequest(token)); res.Verdict != auth.Allow {
		t.Fatalf("post-rotation verify: %+v", res)
	}
	if got := iss.fetchCount(); got != 2 {
		t.Errorf("JWKS fetches = %d, want 2 after rotation", got)
	}
}
