package model

import "fmt"

// ErrorKind categorizes gateway and provider failures.
type ErrorKind string

const (
	// ErrMalformedEvent marks an upstream payload that could not be decoded.
	// Recoverable within one block: the block is failed, the stream continues
	// unless the provider also aborts.
	ErrMalformedEvent ErrorKind = "malformed_event"

	// ErrProtocolViolation marks an upstream event sequence that breaks the
	// provider's own framing (kind mismatch, delta without an open block,
	// truncated stream). Fatal to the whole stream.
	ErrProtocolViolation ErrorKind = "protocol_violation"

	// ErrUnsupportedFeature marks a caller request for a capability the
	// selected provider or model cannot honor.
	ErrUnsupportedFeature ErrorKind = "unsupported_feature"

	// ErrCredential marks a missing or rejected upstream credential. Passed
	// through opaquely; the core never retries or refreshes.
	ErrCredential ErrorKind = "credential_error"

	// ErrTransport marks a connection drop or timeout talking to the
	// provider. Partial state is discarded, never silently resumed.
	ErrTransport ErrorKind = "transport_error"

	// ErrResourceExceeded marks an accumulator that outgrew the configured
	// maximum. Fatal to the stream.
	ErrResourceExceeded ErrorKind = "resource_exceeded"

	// ErrUpstream marks a non-2xx provider response that is not a credential
	// failure. Status carries the HTTP status code.
	ErrUpstream ErrorKind = "upstream_error"

	// ErrInvalidRequest and ErrNotFound classify ingress-side failures.
	ErrInvalidRequest ErrorKind = "invalid_request"
	ErrNotFound       ErrorKind = "not_found"
)

// Error is the structured error shared across the gateway. Provider names
// the adapter that produced it; Status is the upstream HTTP status when one
// exists.
type Error struct {
	Kind     ErrorKind `json:"kind"`
	Provider string    `json:"provider,omitempty"`
	Status   int       `json:"status,omitempty"`
	Message  string    `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HTTPStatus maps the error kind to the status code reported to the caller.
func (e *Error) HTTPStatus() int {
	if e.Status >= 400 {
		return e.Status
	}
	switch e.Kind {
	case ErrInvalidRequest, ErrUnsupportedFeature:
		return 400
	case ErrCredential:
		return 401
	case ErrNotFound:
		return 404
	default:
		return 502
	}
}

// NewMalformedEventError reports an undecodable upstream payload.
func NewMalformedEventError(provider, message string) *Error {
	return &Error{Kind: ErrMalformedEvent, Provider: provider, Message: message}
}

// NewProtocolViolationError reports broken upstream event framing.
func NewProtocolViolationError(message string) *Error {
	return &Error{Kind: ErrProtocolViolation, Message: message}
}

// NewUnsupportedFeatureError reports a request the selected provider cannot honor.
func NewUnsupportedFeatureError(message string) *Error {
	return &Error{Kind: ErrUnsupportedFeature, Message: message}
}

// NewCredentialError reports a missing or rejected upstream credential.
func NewCredentialError(provider, message string) *Error {
	return &Error{Kind: ErrCredential, Provider: provider, Message: message}
}

// NewTransportError reports a connection-level failure talking upstream.
func NewTransportError(provider, message string) *Error {
	return &Error{Kind: ErrTransport, Provider: provider, Message: message}
}

// NewResourceExceededError reports an accumulator that outgrew its cap.
func NewResourceExceededError(message string) *Error {
	return &Error{Kind: ErrResourceExceeded, Message: message}
}

// NewUpstreamError reports a non-2xx provider response.
func NewUpstreamError(provider string, status int, message string) *Error {
	return &Error{Kind: ErrUpstream, Provider: provider, Status: status, Message: message}
}

// NewInvalidRequestError reports a malformed ingress request.
func NewInvalidRequestError(message string) *Error {
	return &Error{Kind: ErrInvalidRequest, Message: message}
}

// NewNotFoundError reports an unknown model or route.
func NewNotFoundError(message string) *Error {
	return &Error{Kind: ErrNotFound, Message: message}
}

// AsError extracts a *Error from err, wrapping unknown errors as transport
// failures attributed to the given provider.
func AsError(err error, provider string) *Error {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*Error); ok {
		return ge
	}
	return NewTransportError(provider, err.Error())
}
