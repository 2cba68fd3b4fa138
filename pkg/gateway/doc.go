// Package gateway is the HTTP front end. It speaks two caller protocols --
// OpenAI-style /v1/chat/completions and Anthropic-style /v1/messages -- over
// the same canonical core: ingress parses the caller's dialect into a
// canonical request, the provider registry dispatches it, and egress renders
// the canonical result back in the dialect the caller spoke.
//
// The caller's protocol and the upstream provider are independent: an
// OpenAI-shaped request can route to Anthropic and vice versa. Model
// identifiers follow the "<provider>/<model>" convention on both sides.
package gateway
