package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelrelay/modelrelay/pkg/credentials"
	"github.com/modelrelay/modelrelay/pkg/model"
)

// ClassifyStatus maps a non-2xx provider response onto the error taxonomy.
// Bodies are scrubbed of secret-like tokens and truncated before they are
// quoted anywhere.
func ClassifyStatus(providerName string, status int, body string) *model.Error {
	msg := credentials.SanitizeAPIError(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewCredentialError(providerName, msg)
	default:
		return model.NewUpstreamError(providerName, status, msg)
	}
}

// ClassifyNetworkError maps connection-level failures onto the taxonomy.
// Context cancellation surfaces as an aborted transport error so callers can
// distinguish their own disconnect from an upstream drop.
func ClassifyNetworkError(providerName string, err error) *model.Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return model.NewTransportError(providerName, fmt.Sprintf("request aborted: %s", err))
	}
	return model.NewTransportError(providerName, err.Error())
}
