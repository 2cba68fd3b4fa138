// Package apikey verifies gateway credentials against a static keyring
// loaded from configuration. Keys are stored as SHA-256 hashes and compared
// in constant time; plaintext never outlives construction.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/modelrelay/modelrelay/pkg/auth"
)

// Entry pairs a plaintext key with the caller it resolves to.
type Entry struct {
	Secret string
	Caller auth.Caller
}

// Verifier matches presented keys against the keyring.
type Verifier struct {
	ring []ringEntry
}

type ringEntry struct {
	hash   [sha256.Size]byte
	caller auth.Caller
}

// New builds a verifier from configured entries.
func New(entries []Entry) *Verifier {
	v := &Verifier{ring: make([]ringEntry, 0, len(entries))}
	for _, e := range entries {
		v.ring = append(v.ring, ringEntry{
			hash:   sha256.Sum256([]byte(e.Secret)),
			caller: e.Caller,
		})
	}
	return v
}

// Verify resolves the presented key to its caller. Requests without a
// credential header are skipped so another verifier can look; a presented
// but unknown key denies.
func (v *Verifier) Verify(_ context.Context, r *http.Request) auth.Result {
	token, found := auth.Token(r)
	if !found {
		return auth.Result{Verdict: auth.Skip}
	}
	if token == "" {
		return auth.Result{Verdict: auth.Deny, Err: auth.ErrNoCredentials}
	}

	hash := sha256.Sum256([]byte(token))
	for i := range v.ring {
		if subtle.ConstantTimeCompare(hash[:], v.ring[i].hash[:]) == 1 {
			caller := v.ring[i].caller
			return auth.Result{Verdict: auth.Allow, Caller: &caller}
		}
	}
	return auth.Result{Verdict: auth.Deny, Err: auth.ErrBadCredentials}
}
