// Package credentials defines the interface through which provider adapters
// obtain upstream credentials. Acquisition and refresh (API key management,
// OAuth device flows) live outside the gateway core; adapters only request a
// current credential per call and never retry credential failures.
package credentials

import (
	"context"
	"strings"
	"sync"

	"github.com/modelrelay/modelrelay/pkg/model"
)

// Kind classifies how a credential is presented to the provider.
type Kind string

const (
	// KindAPIKey is a plain provider API key (x-api-key or bearer,
	// depending on the provider's convention).
	KindAPIKey Kind = "api_key"

	// KindOAuth is an OAuth access token, always sent as a bearer value.
	// Some providers unlock capability headers only under this kind.
	KindOAuth Kind = "oauth"

	// KindSetupToken is a long-lived CLI setup token, treated like OAuth
	// for transport purposes.
	KindSetupToken Kind = "setup_token"
)

// Credential is what an adapter receives for one upstream call. ProjectID
// carries the auxiliary routing field some providers require alongside the
// token; it is empty for plain keys.
type Credential struct {
	Kind      Kind
	Token     string
	ProjectID string
}

// Source yields current credentials per provider. Implementations decide
// where credentials come from; the gateway core only reads.
type Source interface {
	// Credential returns a currently valid credential for the provider, or
	// a credential_error when none is configured.
	Credential(ctx context.Context, provider string) (Credential, error)
}

// SniffKind infers the credential kind for Anthropic-style tokens: OAuth
// session and setup tokens must be sent as Authorization bearer values,
// where a plain key header would be rejected upstream.
func SniffKind(token string) Kind {
	switch {
	case strings.HasPrefix(token, "sk-ant-oat01-"):
		return KindSetupToken
	case strings.Contains(token, "sk-ant-sid"):
		return KindOAuth
	default:
		return KindAPIKey
	}
}

// StaticSource serves credentials from an in-memory table. Safe for
// concurrent use; the table is read-only after construction aside from Set.
type StaticSource struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewStaticSource builds a source from provider name to token. Kinds are
// sniffed from the token shape.
func NewStaticSource(tokens map[string]string) *StaticSource {
	creds := make(map[string]Credential, len(tokens))
	for provider, token := range tokens {
		creds[provider] = Credential{Kind: SniffKind(token), Token: token}
	}
	return &StaticSource{creds: creds}
}

// Set installs or replaces the credential for a provider.
func (s *StaticSource) Set(provider string, cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		s.creds = make(map[string]Credential)
	}
	s.creds[provider] = cred
}

// Credential implements Source.
func (s *StaticSource) Credential(_ context.Context, provider string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[provider]
	if !ok || cred.Token == "" {
		return Credential{}, model.NewCredentialError(provider, "no credential configured")
	}
	return cred, nil
}
