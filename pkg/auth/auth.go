package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Verdict is the outcome of one credential check.
type Verdict int

const (
	// Allow accepts the request; the verifier resolved a caller.
	Allow Verdict = iota

	// Deny rejects the request; credentials were presented but are invalid.
	Deny

	// Skip means the verifier does not handle this credential shape and the
	// next one in the chain should look.
	Skip
)

// Result carries a verdict together with the resolved caller (Allow) or the
// rejection cause (Deny).
type Result struct {
	Verdict Verdict
	Caller  *Caller
	Err     error
}

// Caller is the credential a request arrived with, resolved to an identity
// the gateway can act on.
type Caller struct {
	// ID uniquely names the credential holder.
	ID string

	// Tenant is the organization the caller belongs to, when the credential
	// carries one.
	Tenant string

	// Tier selects the caller's rate-limit budget.
	Tier string

	// Providers restricts which provider routes the caller may dispatch to.
	// Empty means every configured provider.
	Providers []string
}

// CanUse reports whether the caller may dispatch to the named provider
// route. A nil caller comes from handlers mounted without the middleware and
// is unrestricted.
func (c *Caller) CanUse(provider string) bool {
	if c == nil || len(c.Providers) == 0 {
		return true
	}
	for _, p := range c.Providers {
		if p == provider {
			return true
		}
	}
	return false
}

// Verifier inspects request credentials and votes.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request) Result
}

// Sentinel rejection causes.
var (
	ErrNoCredentials  = errors.New("no credentials presented")
	ErrBadCredentials = errors.New("credentials rejected")
	ErrRateLimited    = errors.New("request rate exceeded")
)

// Token extracts the caller credential from the request. Both dialects are
// honored: the messages surface sends x-api-key, the chat-completions
// surface sends Authorization: Bearer. found is false when neither header
// carries a credential; token may still be empty when the header is present
// but blank, which is a rejection rather than a skip.
func Token(r *http.Request) (token string, found bool) {
	if v := r.Header.Get("x-api-key"); v != "" {
		return v, true
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, found = strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", false
	}
	return token, true
}

// Chain runs verifiers in order and returns the first non-Skip result.
type Chain struct {
	Verifiers []Verifier

	// Fallback decides requests every verifier skipped: Allow admits them as
	// the anonymous caller, anything else denies.
	Fallback Verdict
}

// Verify implements Verifier over the whole chain.
func (c *Chain) Verify(ctx context.Context, r *http.Request) Result {
	for _, v := range c.Verifiers {
		res := v.Verify(ctx, r)
		if res.Verdict != Skip {
			return res
		}
	}
	if c.Fallback == Allow {
		return Result{Verdict: Allow, Caller: &Caller{ID: "anonymous"}}
	}
	return Result{Verdict: Deny, Err: ErrNoCredentials}
}

// AllowAll returns a verifier that admits every request as the anonymous
// caller. It backs auth type "none".
func AllowAll() Verifier { return allowAll{} }

type allowAll struct{}

func (allowAll) Verify(context.Context, *http.Request) Result {
	return Result{Verdict: Allow, Caller: &Caller{ID: "anonymous"}}
}
