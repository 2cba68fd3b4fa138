package model

// Effort is a qualitative reasoning effort level. Adapters translate it into
// provider-specific request shapes: a token budget, a body field, or a
// model-name suffix, depending on what the provider supports.
type Effort string

const (
	EffortNone    Effort = "none"
	EffortMinimal Effort = "minimal"
	EffortLow     Effort = "low"
	EffortMedium  Effort = "medium"
	EffortHigh    Effort = "high"
)

// ReasoningBudget maps a qualitative effort level to a thinking token budget
// for providers that take an explicit budget. Returns 0 for EffortNone and
// unrecognized levels, meaning reasoning stays at the provider default.
func (e Effort) ReasoningBudget() int {
	switch e {
	case EffortMinimal:
		return 1024
	case EffortLow:
		return 2048
	case EffortMedium:
		return 8192
	case EffortHigh:
		return 16384
	default:
		return 0
	}
}

// RequestOptions carries recognized per-request tuning. The zero value of
// every field means "provider default"; adapters omit fields the provider
// does not support rather than sending invalid payloads.
type RequestOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`

	// Effort selects a qualitative reasoning level. BudgetTokens, when
	// positive, overrides the level with an explicit thinking token budget
	// for providers that accept one.
	Effort       Effort `json:"effort,omitempty"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`

	// Verbosity hints at response length for providers with a verbosity
	// knob. Passed through verbatim; empty means default.
	Verbosity string `json:"verbosity,omitempty"`

	// CaptureReasoningSummary asks the egress layer to copy thinking text
	// into the caller protocol's separate reasoning field. The canonical
	// model always keeps thinking as an ordered content block regardless.
	CaptureReasoningSummary bool `json:"capture_reasoning_summary,omitempty"`

	// NormalizeThinkTags strips inline <think>...</think> markers that some
	// backends embed in plain text, rerouting the marked spans as thinking
	// deltas.
	NormalizeThinkTags bool `json:"normalize_think_tags,omitempty"`
}

// ThinkingBudget resolves the effective thinking token budget: an explicit
// budget wins, otherwise the effort level's mapping. Zero means disabled.
func (o RequestOptions) ThinkingBudget() int {
	if o.BudgetTokens > 0 {
		return o.BudgetTokens
	}
	return o.Effort.ReasoningBudget()
}

// WantsReasoning reports whether the caller asked for extended reasoning.
func (o RequestOptions) WantsReasoning() bool {
	return o.ThinkingBudget() > 0 || (o.Effort != "" && o.Effort != EffortNone)
}
