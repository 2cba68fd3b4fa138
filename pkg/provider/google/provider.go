package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/modelrelay/modelrelay/pkg/credentials"
	"github.com/modelrelay/modelrelay/pkg/model"
	"github.com/modelrelay/modelrelay/pkg/provider"
	"github.com/modelrelay/modelrelay/pkg/stream"
)

// Provider implements provider.Adapter for the Gemini generateContent API.
type Provider struct {
	cfg    Config
	creds  credentials.Source
	client *http.Client
}

var _ provider.Adapter = (*Provider)(nil)

// New creates a Provider.
func New(cfg Config, creds credentials.Source) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if creds == nil {
		return nil, fmt.Errorf("google: credential source is required")
	}
	return &Provider{
		cfg:    cfg,
		creds:  creds,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "google"
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

// Complete performs non-streaming inference against :generateContent.
func (p *Provider) Complete(ctx context.Context, req *model.Request) (*model.Message, error) {
	httpReq, err := p.newRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.ClassifyNetworkError("google", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	var resp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, model.NewMalformedEventError("google",
			fmt.Sprintf("unparseable response body: %s", err))
	}

	msg, err := parseResponse(&resp)
	if err != nil {
		return nil, err
	}
	msg.Provider = "google"
	msg.Model = provider.JoinModelID("google", req.Model)
	return msg, nil
}

// Stream performs streaming inference against :streamGenerateContent. The
// returned channel is closed after the terminal event; lifecycle control
// relies on context cancellation.
func (p *Provider) Stream(ctx context.Context, req *model.Request) (<-chan model.StreamEvent, error) {
	httpReq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	streamClient := &http.Client{Transport: p.client.Transport}
	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, provider.ClassifyNetworkError("google", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, mapHTTPError(httpResp)
	}

	rec := stream.New(stream.Config{
		Provider:      "google",
		Model:         provider.JoinModelID("google", req.Model),
		MaxBlockBytes: p.cfg.MaxBlockBytes,
	})

	ch := make(chan model.StreamEvent, 16)
	driver := newStreamDriver(ctx, rec, ch)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		parseStream(ctx, httpResp.Body, driver)
	}()
	return ch, nil
}

func (p *Provider) newRequest(ctx context.Context, req *model.Request, streaming bool) (*http.Request, error) {
	cred, err := p.creds.Credential(ctx, "google")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("failed to marshal request: %s", err))
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.cfg.BaseURL, url.PathEscape(req.Model))
	if streaming {
		endpoint = fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse",
			p.cfg.BaseURL, url.PathEscape(req.Model))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, model.NewTransportError("google", err.Error())
	}

	httpReq.Header.Set("Content-Type", "application/json")
	switch cred.Kind {
	case credentials.KindOAuth, credentials.KindSetupToken:
		httpReq.Header.Set("Authorization", "Bearer "+cred.Token)
	default:
		httpReq.Header.Set("x-goog-api-key", cred.Token)
	}
	return httpReq, nil
}

const maxErrorBodyBytes = 64 * 1024

// mapHTTPError converts a non-2xx response into a taxonomy error, preferring
// the structured error payload over the raw body.
func mapHTTPError(resp *http.Response) *model.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var envelope struct {
		Error *wireError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return provider.ClassifyStatus("google", resp.StatusCode,
			fmt.Sprintf("%s: %s", envelope.Error.Status, envelope.Error.Message))
	}
	return provider.ClassifyStatus("google", resp.StatusCode, string(body))
}
