package anthropic

import "time"

// DefaultBaseURL is the hosted Anthropic API endpoint.
const DefaultBaseURL = "https://api.anthropic.com"

const (
	// apiVersion is sent on every request.
	apiVersion = "2023-06-01"

	// oauthBeta unlocks OAuth and setup-token authentication. It is sent
	// only when the credential is not a plain API key; plain-key requests
	// must not carry it.
	oauthBeta = "oauth-2025-04-20"
)

// Config holds configuration for the Anthropic provider adapter.
type Config struct {
	// BaseURL of the API (e.g. "https://api.anthropic.com").
	BaseURL string

	// Timeout for non-streaming HTTP requests. Defaults to 120s. Streaming
	// requests are bounded by context cancellation instead.
	Timeout time.Duration

	// DefaultMaxTokens is used when the request does not set max_tokens;
	// the Messages API requires the field. Defaults to 4096.
	DefaultMaxTokens int

	// MaxBlockBytes caps a single streamed block's accumulation
	// (0 = reconstructor default).
	MaxBlockBytes int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		Timeout:          120 * time.Second,
		DefaultMaxTokens: 4096,
	}
}
