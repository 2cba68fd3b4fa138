// Package catalog carries the static table of models the gateway advertises.
// The table is a routing aid, not an allowlist: requests for models outside
// it still dispatch as long as the provider prefix is registered.
package catalog

import (
	"sort"

	"github.com/modelrelay/modelrelay/pkg/provider"
)

// ModelDef describes one advertised model.
type ModelDef struct {
	// ID is the provider-local model identifier.
	ID string

	// Provider is the routing prefix.
	Provider string

	// Name is the human-readable display name.
	Name string

	// Reasoning and Vision flag per-model capability beyond what the
	// provider adapter declares.
	Reasoning bool
	Vision    bool

	// ContextWindow and MaxOutputTokens in tokens (0 = unknown).
	ContextWindow   int
	MaxOutputTokens int

	// InputCostPerMTok and OutputCostPerMTok in USD per million tokens,
	// advisory only.
	InputCostPerMTok  float64
	OutputCostPerMTok float64
}

// FullID returns the fully qualified "<provider>/<model>" identifier.
func (m ModelDef) FullID() string {
	return provider.JoinModelID(m.Provider, m.ID)
}

var builtin = []ModelDef{
	{
		ID: "claude-opus-4-1", Provider: "anthropic", Name: "Claude Opus 4.1",
		Reasoning: true, Vision: true,
		ContextWindow: 200_000, MaxOutputTokens: 32_000,
		InputCostPerMTok: 15, OutputCostPerMTok: 75,
	},
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", Name: "Claude Sonnet 4.5",
		Reasoning: true, Vision: true,
		ContextWindow: 200_000, MaxOutputTokens: 64_000,
		InputCostPerMTok: 3, OutputCostPerMTok: 15,
	},
	{
		ID: "claude-3-5-haiku-latest", Provider: "anthropic", Name: "Claude 3.5 Haiku",
		Vision:        true,
		ContextWindow: 200_000, MaxOutputTokens: 8_192,
		InputCostPerMTok: 0.8, OutputCostPerMTok: 4,
	},
	{
		ID: "gpt-5", Provider: "openai", Name: "GPT-5",
		Reasoning: true, Vision: true,
		ContextWindow: 400_000, MaxOutputTokens: 128_000,
		InputCostPerMTok: 1.25, OutputCostPerMTok: 10,
	},
	{
		ID: "gpt-5-mini", Provider: "openai", Name: "GPT-5 mini",
		Reasoning: true, Vision: true,
		ContextWindow: 400_000, MaxOutputTokens: 128_000,
		InputCostPerMTok: 0.25, OutputCostPerMTok: 2,
	},
	{
		ID: "gpt-4o", Provider: "openai", Name: "GPT-4o",
		Vision:        true,
		ContextWindow: 128_000, MaxOutputTokens: 16_384,
		InputCostPerMTok: 2.5, OutputCostPerMTok: 10,
	},
	{
		ID: "gemini-2.5-pro", Provider: "google", Name: "Gemini 2.5 Pro",
		Reasoning: true, Vision: true,
		ContextWindow: 1_048_576, MaxOutputTokens: 65_536,
		InputCostPerMTok: 1.25, OutputCostPerMTok: 10,
	},
	{
		ID: "gemini-2.5-flash", Provider: "google", Name: "Gemini 2.5 Flash",
		Reasoning: true, Vision: true,
		ContextWindow: 1_048_576, MaxOutputTokens: 65_536,
		InputCostPerMTok: 0.3, OutputCostPerMTok: 2.5,
	},
	{
		ID: "llama-3.3-70b-versatile", Provider: "groq", Name: "Llama 3.3 70B",
		ContextWindow: 131_072, MaxOutputTokens: 32_768,
		InputCostPerMTok: 0.59, OutputCostPerMTok: 0.79,
	},
}

// Catalog is the filtered, indexed model table.
type Catalog struct {
	defs []ModelDef
	byID map[string]ModelDef
}

// New builds a catalog restricted to the given registered providers, sorted
// by full identifier.
func New(providers []string) *Catalog {
	enabled := make(map[string]bool, len(providers))
	for _, name := range providers {
		enabled[name] = true
	}

	c := &Catalog{byID: make(map[string]ModelDef)}
	for _, def := range builtin {
		if !enabled[def.Provider] {
			continue
		}
		c.defs = append(c.defs, def)
		c.byID[def.FullID()] = def
	}
	sort.Slice(c.defs, func(i, j int) bool {
		return c.defs[i].FullID() < c.defs[j].FullID()
	})
	return c
}

// List returns the advertised models in identifier order.
func (c *Catalog) List() []ModelDef {
	return c.defs
}

// Lookup finds a model by its fully qualified identifier.
func (c *Catalog) Lookup(fullID string) (ModelDef, bool) {
	def, ok := c.byID[fullID]
	return def, ok
}
