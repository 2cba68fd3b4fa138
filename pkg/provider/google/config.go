package google

import "time"

// DefaultBaseURL is the hosted Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Config holds configuration for the Google provider adapter.
type Config struct {
	// BaseURL of the API without the /v1beta/models path.
	BaseURL string

	// Timeout for non-streaming HTTP requests. Defaults to 120s.
	Timeout time.Duration

	// MaxBlockBytes caps a single streamed block's accumulation
	// (0 = reconstructor default).
	MaxBlockBytes int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 120 * time.Second,
	}
}
