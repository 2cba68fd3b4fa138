package provider

import (
	"context"

	"github.com/modelrelay/modelrelay/pkg/model"
)

// Adapter abstracts one upstream model provider. Implementations must be
// safe for concurrent use: per-request state lives in the streaming
// reconstructor each call creates, never on the adapter.
type Adapter interface {
	// Name returns the provider identifier used for routing
	// (e.g. "anthropic", "openai", "google").
	Name() string

	// Capabilities returns what this provider supports, used for
	// pre-dispatch request validation.
	Capabilities() Capabilities

	// Complete performs non-streaming inference and returns the assembled
	// assistant message.
	Complete(ctx context.Context, req *model.Request) (*model.Message, error)

	// Stream performs streaming inference. The returned channel carries
	// canonical events in provider emission order and is closed by the
	// adapter after the terminal done or error event. Cancelling ctx tears
	// down the upstream connection and discards partial block state.
	Stream(ctx context.Context, req *model.Request) (<-chan model.StreamEvent, error)
}
