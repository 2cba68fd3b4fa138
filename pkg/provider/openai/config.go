package openai

import "time"

// DefaultBaseURL is the hosted OpenAI API endpoint.
const DefaultBaseURL = "https://api.openai.com"

// EffortStyle selects how a reasoning request is expressed on the wire.
// Compatible vendors disagree here: some take a body field, some select a
// reasoning tier through a model-name suffix, some have no knob at all.
type EffortStyle string

const (
	// EffortBodyField sends reasoning_effort in the request body.
	EffortBodyField EffortStyle = "body"

	// EffortModelSuffix appends ReasoningSuffix to the model name.
	EffortModelSuffix EffortStyle = "suffix"

	// EffortIgnore drops the option; the backend reasons (or not) on its own.
	EffortIgnore EffortStyle = "ignore"
)

// Config holds configuration for one OpenAI-compatible endpoint.
type Config struct {
	// Name is the provider identifier used for routing and error labels
	// (e.g. "openai", "groq", "xai"). Required.
	Name string

	// BaseURL of the API without the /v1/chat/completions path.
	BaseURL string

	// Timeout for non-streaming HTTP requests. Defaults to 120s.
	Timeout time.Duration

	// EffortStyle selects the reasoning wire shape. Defaults to
	// EffortBodyField.
	EffortStyle EffortStyle

	// ReasoningSuffix is appended to the model name under EffortModelSuffix
	// (defaults to ":thinking").
	ReasoningSuffix string

	// SupportsVerbosity gates the verbosity body field, which most
	// compatible backends reject as an unknown parameter.
	SupportsVerbosity bool

	// MaxBlockBytes caps a single streamed block's accumulation
	// (0 = reconstructor default).
	MaxBlockBytes int
}

// DefaultConfig returns the configuration for the hosted OpenAI API.
func DefaultConfig() Config {
	return Config{
		Name:              "openai",
		BaseURL:           DefaultBaseURL,
		Timeout:           120 * time.Second,
		EffortStyle:       EffortBodyField,
		SupportsVerbosity: true,
	}
}
