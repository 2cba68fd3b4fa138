package provider

import (
	"github.com/modelrelay/modelrelay/pkg/model"
)

// Capabilities declares what features an adapter's provider supports.
type Capabilities struct {
	Streaming   bool
	ToolCalling bool
	Vision      bool
	Reasoning   bool

	// MaxContextWindow is the largest supported context in tokens
	// (0 = unknown).
	MaxContextWindow int
}

// Validate checks a canonical request against declared capabilities before
// dispatch. Returns an unsupported_feature error naming the first
// incompatibility, or nil.
func Validate(caps Capabilities, req *model.Request) *model.Error {
	if len(req.Tools) > 0 && !caps.ToolCalling {
		return model.NewUnsupportedFeatureError("the selected provider does not support tool calling")
	}

	if req.Options.WantsReasoning() && !caps.Reasoning {
		return model.NewUnsupportedFeatureError("the selected model does not support extended reasoning")
	}

	if !caps.Vision {
		for _, msg := range req.Messages {
			for _, block := range msg.Content {
				if block.Type == model.BlockImage {
					return model.NewUnsupportedFeatureError("the selected provider does not support image inputs")
				}
			}
		}
	}

	return nil
}
