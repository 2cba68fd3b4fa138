package apikey

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/modelrelay/modelrelay/pkg/auth"
)

func keyring() *Verifier {
	return New([]Entry{
		{Secret: "mr-alice-key", Caller: auth.Caller{ID: "alice", Tenant: "org-1", Tier: "premium"}},
		{Secret: "mr-bob-key", Caller: auth.Caller{ID: "bob", Providers: []string{"anthropic"}}},
	})
}

func verify(t *testing.T, headers map[string]string) auth.Result {
	t.Helper()
	r := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return keyring().Verify(context.Background(), r)
}

func TestVerifyBearerKey(t *testing.T) {
	res := verify(t, map[string]string{"Authorization": "Bearer mr-alice-key"})
	if res.Verdict != auth.Allow {
		t.Fatalf("result = %+v, want allow", res)
	}
	c := res.Caller
	if c.ID != "alice" || c.Tenant != "org-1" || c.Tier != "premium" {
		t.Errorf("caller = %+v, want alice/org-1/premium", c)
	}
}

func TestVerifyAPIKeyHeader(t *testing.T) {
	// Messages-dialect clients send the key in x-api-key.
	res := verify(t, map[string]string{"x-api-key": "mr-bob-key"})
	if res.Verdict != auth.Allow {
		t.Fatalf("result = %+v, want allow", res)
	}
	if res.Caller.ID != "bob" || !res.Caller.CanUse("anthropic") || res.Caller.CanUse("openai") {
		t.Errorf("caller = %+v, want bob limited to anthropic", res.Caller)
	}
}

func TestVerifyUnknownKeyDenies(t *testing.T) {
	res := verify(t, map[string]string{"Authorization": "Bearer mr-wrong"})
	if res.Verdict != auth.Deny || res.Err != auth.ErrBadCredentials {
		t.Errorf("result = %+v, want deny with ErrBadCredentials", res)
	}
}

func TestVerifyNoCredentialSkips(t *testing.T) {
	res := verify(t, nil)
	if res.Verdict != auth.Skip {
		t.Errorf("result = %+v, want skip so the chain can continue", res)
	}
}

func TestVerifyBlankBearerDenies(t *testing.T) {
	res := verify(t, map[string]string{"Authorization": "Bearer "})
	if res.Verdict != auth.Deny || res.Err != auth.ErrNoCredentials {
		t.Errorf("result = %+v, want deny with ErrNoCredentials", res)
	}
}

func TestVerifyReturnsCallerCopy(t *testing.T) {
	v := keyring()
	r := httptest.NewRequest("POST", "/v1/messages", nil)
	r.Header.Set("x-api-key", "mr-alice-key")

	first := v.Verify(context.Background(), r)
	first.Caller.Tenant = "mutated"

	second := v.Verify(context.Background(), r)
	if second.Caller.Tenant != "org-1" {
		t.Errorf("tenant = %q, keyring state leaked between requests", second.Caller.Tenant)
	}
}

var _ auth.Verifier = (*Verifier)(nil)
