package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/modelrelay/modelrelay/pkg/credentials"
	"github.com/modelrelay/modelrelay/pkg/model"
	"github.com/modelrelay/modelrelay/pkg/provider"
	"github.com/modelrelay/modelrelay/pkg/stream"
)

// Provider implements provider.Adapter for OpenAI-compatible Chat
// Completions backends.
type Provider struct {
	cfg    Config
	creds  credentials.Source
	client *http.Client
	caps   provider.Capabilities
}

var _ provider.Adapter = (*Provider)(nil)

// New creates a Provider with full default capabilities.
func New(cfg Config, creds credentials.Source) (*Provider, error) {
	return NewWithCapabilities(cfg, creds, provider.Capabilities{
		Streaming:   true,
		ToolCalling: true,
		Vision:      true,
		Reasoning:   true,
	})
}

// NewWithCapabilities creates a Provider with vendor-specific capabilities.
func NewWithCapabilities(cfg Config, creds credentials.Source, caps provider.Capabilities) (*Provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("openai: Name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: BaseURL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.EffortStyle == "" {
		cfg.EffortStyle = EffortBodyField
	}
	if creds == nil {
		return nil, fmt.Errorf("openai: credential source is required")
	}
	return &Provider{
		cfg:    cfg,
		creds:  creds,
		client: &http.Client{Timeout: cfg.Timeout},
		caps:   caps,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.cfg.Name
}

// Capabilities returns what this provider supports.
func (p *Provider) Capabilities() provider.Capabilities {
	return p.caps
}

// Complete performs non-streaming inference against /v1/chat/completions.
func (p *Provider) Complete(ctx context.Context, req *model.Request) (*model.Message, error) {
	httpReq, err := p.newRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.ClassifyNetworkError(p.cfg.Name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, p.mapHTTPError(httpResp)
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, model.NewMalformedEventError(p.cfg.Name,
			fmt.Sprintf("unparseable response body: %s", err))
	}

	msg, err := parseResponse(&resp, p.cfg.Name)
	if err != nil {
		return nil, err
	}
	msg.Provider = p.cfg.Name
	msg.Model = provider.JoinModelID(p.cfg.Name, req.Model)
	return msg, nil
}

// Stream performs streaming inference. The returned channel is closed after
// the terminal event. The HTTP client timeout is not applied for streaming;
// lifecycle control relies on context cancellation.
func (p *Provider) Stream(ctx context.Context, req *model.Request) (<-chan model.StreamEvent, error) {
	httpReq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	streamClient := &http.Client{Transport: p.client.Transport}
	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, provider.ClassifyNetworkError(p.cfg.Name, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, p.mapHTTPError(httpResp)
	}

	rec := stream.New(stream.Config{
		Provider:      p.cfg.Name,
		Model:         provider.JoinModelID(p.cfg.Name, req.Model),
		MaxBlockBytes: p.cfg.MaxBlockBytes,
	})

	ch := make(chan model.StreamEvent, 16)
	driver := newStreamDriver(ctx, rec, ch, p.cfg.Name, req.Options.NormalizeThinkTags)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		parseStream(ctx, httpResp.Body, driver)
	}()
	return ch, nil
}

func (p *Provider) newRequest(ctx context.Context, req *model.Request, streaming bool) (*http.Request, error) {
	cred, err := p.creds.Credential(ctx, p.cfg.Name)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildRequest(req, &p.cfg, streaming))
	if err != nil {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("failed to marshal request: %s", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, model.NewTransportError(p.cfg.Name, err.Error())
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)
	return httpReq, nil
}

const maxErrorBodyBytes = 64 * 1024

// mapHTTPError converts a non-2xx response into a taxonomy error, preferring
// the structured error envelope over the raw body.
func (p *Provider) mapHTTPError(resp *http.Response) *model.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return provider.ClassifyStatus(p.cfg.Name, resp.StatusCode, envelope.Error.Message)
	}
	return provider.ClassifyStatus(p.cfg.Name, resp.StatusCode, string(body))
}
