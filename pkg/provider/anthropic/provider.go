package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelrelay/modelrelay/pkg/credentials"
	"github.com/modelrelay/modelrelay/pkg/model"
	"github.com/modelrelay/modelrelay/pkg/provider"
	"github.com/modelrelay/modelrelay/pkg/stream"
)

// Provider implements provider.Adapter for the Anthropic Messages API.
type Provider struct {
	cfg    Config
	creds  credentials.Source
	client *http.Client
}

var _ provider.Adapter = (*Provider)(nil)

// New creates a Provider. Credentials are resolved per call, never cached.
func New(cfg Config, creds credentials.Source) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 4096
	}
	if creds == nil {
		return nil, fmt.Errorf("anthropic: credential source is required")
	}
	return &Provider{
		cfg:    cfg,
		creds:  creds,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "anthropic"
}

// Capabilities returns what this provider supports.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Streaming:   true,
		ToolCalling: true,
		Vision:      true,
		Reasoning:   true,
	}
}

// Complete performs non-streaming inference against /v1/messages.
func (p *Provider) Complete(ctx context.Context, req *model.Request) (*model.Message, error) {
	httpReq, err := p.newRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.ClassifyNetworkError("anthropic", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	var resp messagesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, model.NewMalformedEventError("anthropic",
			fmt.Sprintf("unparseable response body: %s", err))
	}

	msg := parseResponse(&resp)
	msg.Provider = "anthropic"
	msg.Model = provider.JoinModelID("anthropic", req.Model)
	return msg, nil
}

// Stream performs streaming inference. The returned channel is closed after
// the terminal event; the HTTP client timeout is not applied, lifecycle
// control relies on context cancellation.
func (p *Provider) Stream(ctx context.Context, req *model.Request) (<-chan model.StreamEvent, error) {
	httpReq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	streamClient := &http.Client{Transport: p.client.Transport}
	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, provider.ClassifyNetworkError("anthropic", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, mapHTTPError(httpResp)
	}

	rec := stream.New(stream.Config{
		Provider:      "anthropic",
		Model:         provider.JoinModelID("anthropic", req.Model),
		MaxBlockBytes: p.cfg.MaxBlockBytes,
	})

	ch := make(chan model.StreamEvent, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		parseStream(ctx, httpResp.Body, rec, ch)
	}()
	return ch, nil
}

// newRequest builds an authenticated Messages API request.
func (p *Provider) newRequest(ctx context.Context, req *model.Request, streaming bool) (*http.Request, error) {
	cred, err := p.creds.Credential(ctx, "anthropic")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildRequest(req, p.cfg.DefaultMaxTokens, streaming))
	if err != nil {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("failed to marshal request: %s", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, model.NewTransportError("anthropic", err.Error())
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", apiVersion)
	applyAuth(httpReq, cred)
	return httpReq, nil
}

// applyAuth sets the authentication headers. Plain API keys go in x-api-key;
// OAuth and setup tokens must be sent as bearer values together with the
// beta capability header, or the API rejects them.
func applyAuth(req *http.Request, cred credentials.Credential) {
	switch cred.Kind {
	case credentials.KindOAuth, credentials.KindSetupToken:
		req.Header.Set("Authorization", "Bearer "+cred.Token)
		req.Header.Set("anthropic-beta", oauthBeta)
	default:
		req.Header.Set("x-api-key", cred.Token)
	}
}
