package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fixedVerifier returns the same result for every request.
type fixedVerifier struct {
	result Result
	calls  int
}

func (v *fixedVerifier) Verify(context.Context, *http.Request) Result {
	v.calls++
	return v.result
}

func request(headers map[string]string) *http.Request {
	r := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestChainStopsAtFirstVerdict(t *testing.T) {
	allow := &fixedVerifier{result: Result{Verdict: Allow, Caller: &Caller{ID: "alice"}}}
	never := &fixedVerifier{result: Result{Verdict: Deny, Err: ErrBadCredentials}}
	chain := &Chain{Verifiers: []Verifier{allow, never}, Fallback: Deny}

	res := chain.Verify(context.Background(), request(nil))
	if res.Verdict != Allow || res.Caller.ID != "alice" {
		t.Fatalf("result = %+v, want allow for alice", res)
	}
	if never.calls != 0 {
		t.Error("chain kept running after a verdict")
	}
}

func TestChainSkipContinues(t *testing.T) {
	skip := &fixedVerifier{result: Result{Verdict: Skip}}
	deny := &fixedVerifier{result: Result{Verdict: Deny, Err: ErrBadCredentials}}
	chain := &Chain{Verifiers: []Verifier{skip, deny}, Fallback: Allow}

	res := chain.Verify(context.Background(), request(nil))
	if res.Verdict != Deny {
		t.Fatalf("result = %+v, want deny from second verifier", res)
	}
	if skip.calls != 1 || deny.calls != 1 {
		t.Errorf("calls = %d, %d, want both consulted", skip.calls, deny.calls)
	}
}

func TestChainFallback(t *testing.T) {
	skip := &fixedVerifier{result: Result{Verdict: Skip}}

	open := &Chain{Verifiers: []Verifier{skip}, Fallback: Allow}
	res := open.Verify(context.Background(), request(nil))
	if res.Verdict != Allow || res.Caller == nil || res.Caller.ID != "anonymous" {
		t.Errorf("open fallback = %+v, want anonymous caller", res)
	}

	closed := &Chain{Verifiers: []Verifier{skip}, Fallback: Deny}
	res = closed.Verify(context.Background(), request(nil))
	if res.Verdict != Deny || res.Err != ErrNoCredentials {
		t.Errorf("closed fallback = %+v, want deny", res)
	}
}

func TestAllowAll(t *testing.T) {
	res := AllowAll().Verify(context.Background(), request(nil))
	if res.Verdict != Allow || res.Caller.ID != "anonymous" {
		t.Errorf("result = %+v, want anonymous allow", res)
	}
}

func TestToken(t *testing.T) {
	tests := []struct {
		name      string
		headers   map[string]string
		wantToken string
		wantFound bool
	}{
		{"no headers", nil, "", false},
		{"api key header", map[string]string{"x-api-key": "mr-123"}, "mr-123", true},
		{"bearer", map[string]string{"Authorization": "Bearer mr-456"}, "mr-456", true},
		{"api key wins over bearer", map[string]string{"x-api-key": "mr-1", "Authorization": "Bearer mr-2"}, "mr-1", true},
		{"basic scheme ignored", map[string]string{"Authorization": "Basic dXNlcg=="}, "", false},
		{"blank bearer still found", map[string]string{"Authorization": "Bearer "}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, found := Token(request(tt.headers))
			if token != tt.wantToken || found != tt.wantFound {
				t.Errorf("Token() = %q, %v, want %q, %v", token, found, tt.wantToken, tt.wantFound)
			}
		})
	}
}

func TestCallerCanUse(t *testing.T) {
	tests := []struct {
		name     string
		caller   *Caller
		provider string
		want     bool
	}{
		{"nil caller unrestricted", nil, "openai", true},
		{"empty list unrestricted", &Caller{ID: "a"}, "anthropic", true},
		{"listed provider", &Caller{ID: "a", Providers: []string{"anthropic", "groq"}}, "groq", true},
		{"unlisted provider", &Caller{ID: "a", Providers: []string{"anthropic"}}, "openai", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.caller.CanUse(tt.provider); got != tt.want {
				t.Errorf("CanUse(%q) = %v, want %v", tt.provider, got, tt.want)
			}
		})
	}
}

func TestCallerContextRoundTrip(t *testing.T) {
	if CallerFrom(context.Background()) != nil {
		t.Error("empty context should carry no caller")
	}
	ctx := WithCaller(context.Background(), &Caller{ID: "alice", Tenant: "org-1"})
	c := CallerFrom(ctx)
	if c == nil || c.ID != "alice" || c.Tenant != "org-1" {
		t.Errorf("caller = %+v, want alice/org-1", c)
	}
}
