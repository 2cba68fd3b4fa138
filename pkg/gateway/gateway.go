package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelrelay/modelrelay/pkg/auth"
	"github.com/modelrelay/modelrelay/pkg/catalog"
	"github.com/modelrelay/modelrelay/pkg/model"
	"github.com/modelrelay/modelrelay/pkg/provider"
)

// Gateway routes caller requests to provider adapters.
type Gateway struct {
	registry *provider.Registry
	catalog  *catalog.Catalog
	logger   *slog.Logger

	// maxBodySize bounds ingress request bodies.
	maxBodySize int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithMaxBodySize sets the maximum ingress body size in bytes.
func WithMaxBodySize(n int64) Option {
	return func(g *Gateway) { g.maxBodySize = n }
}

// New creates a Gateway over the given registry and catalog.
func New(registry *provider.Registry, cat *catalog.Catalog, opts ...Option) *Gateway {
	g := &Gateway{
		registry:    registry,
		catalog:     cat,
		logger:      slog.Default(),
		maxBodySize: 10 << 20,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns the route mux. Middleware (auth, metrics, recovery) is
// layered on top by the caller.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", g.handleChatCompletions)
	mux.HandleFunc("POST /v1/messages", g.handleMessages)
	mux.HandleFunc("GET /v1/models", g.handleListModels)
	mux.HandleFunc("GET /healthz", g.handleHealth)
	return mux
}

// resolve splits the model identifier, finds the adapter, checks the
// caller's provider allowlist, and validates the request against the
// adapter's and the catalog's capabilities.
func (g *Gateway) resolve(ctx context.Context, req *model.Request) (provider.Adapter, string, *model.Error) {
	providerName, modelID, err := provider.SplitModelID(req.Model)
	if err != nil {
		return nil, "", model.AsError(err, "")
	}

	if c := auth.CallerFrom(ctx); !c.CanUse(providerName) {
		return nil, "", &model.Error{
			Kind:    model.ErrCredential,
			Status:  http.StatusForbidden,
			Message: fmt.Sprintf("provider %q is not enabled for this credential", providerName),
		}
	}

	adapter, err := g.registry.Lookup(providerName)
	if err != nil {
		return nil, "", model.AsError(err, "")
	}

	caps := adapter.Capabilities()
	if def, ok := g.catalog.Lookup(req.Model); ok {
		// The catalog narrows per-model capability below the adapter's.
		caps.Reasoning = caps.Reasoning && def.Reasoning
		caps.Vision = caps.Vision && def.Vision
	}

	// Dispatch sees the provider-local model ID.
	stripped := *req
	stripped.Model = modelID
	if verr := provider.Validate(caps, &stripped); verr != nil {
		return nil, "", verr
	}
	return adapter, modelID, nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		g.logger.Error("failed to write health response", "error", err.Error())
	}
}

// modelEntry is one /v1/models list item (OpenAI list shape, enriched).
type modelEntry struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	OwnedBy       string `json:"owned_by"`
	DisplayName   string `json:"display_name,omitempty"`
	Reasoning     bool   `json:"reasoning,omitempty"`
	ContextWindow int    `json:"context_window,omitempty"`
}

func (g *Gateway) handleListModels(w http.ResponseWriter, _ *http.Request) {
	defs := g.catalog.List()
	entries := make([]modelEntry, 0, len(defs))
	for _, def := range defs {
		entries = append(entries, modelEntry{
			ID:            def.FullID(),
			Object:        "model",
			OwnedBy:       def.Provider,
			DisplayName:   def.Name,
			Reasoning:     def.Reasoning,
			ContextWindow: def.ContextWindow,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{"object": "list", "data": entries}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		g.logger.Error("failed to write model list", "error", err.Error())
	}
}

// decodeBody reads and unmarshals a bounded request body.
func (g *Gateway) decodeBody(w http.ResponseWriter, r *http.Request, dst any) *model.Error {
	r.Body = http.MaxBytesReader(w, r.Body, g.maxBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return model.NewInvalidRequestError("invalid JSON body: " + err.Error())
	}
	return nil
}
