package openai

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelrelay/modelrelay/pkg/model"
)

// buildRequest translates a canonical request into the Chat Completions
// shape. The reasoning option is expressed per the configured EffortStyle.
func buildRequest(req *model.Request, cfg *Config, streaming bool) chatRequest {
	out := chatRequest{
		Model:       req.Model,
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
		Stream:      streaming,
	}
	if streaming {
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if cfg.SupportsVerbosity && req.Options.Verbosity != "" {
		out.Verbosity = req.Options.Verbosity
	}

	if effort := effortLevel(req.Options); effort != "" {
		switch cfg.EffortStyle {
		case EffortModelSuffix:
			suffix := cfg.ReasoningSuffix
			if suffix == "" {
				suffix = ":thinking"
			}
			out.Model = req.Model + suffix
		case EffortIgnore:
			// Backend has no reasoning knob; the option is dropped rather
			// than sent as an unknown parameter.
		default:
			out.ReasoningEffort = effort
		}
	}

	if req.System != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: req.System})
	}
	out.Messages = append(out.Messages, convertMessages(req.Messages)...)

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, chatTool{
			Type: "function",
			Function: chatToolDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}

// effortLevel resolves the wire effort string. An explicit token budget is
// mapped back onto the level whose budget covers it, since this protocol has
// no budget field.
func effortLevel(opts model.RequestOptions) string {
	if opts.Effort != "" && opts.Effort != model.EffortNone {
		return string(opts.Effort)
	}
	budget := opts.BudgetTokens
	switch {
	case budget <= 0:
		return ""
	case budget <= model.EffortMinimal.ReasoningBudget():
		return string(model.EffortMinimal)
	case budget <= model.EffortLow.ReasoningBudget():
		return string(model.EffortLow)
	case budget <= model.EffortMedium.ReasoningBudget():
		return string(model.EffortMedium)
	default:
		return string(model.EffortHigh)
	}
}

func convertMessages(msgs []model.Message) []chatMessage {
	var out []chatMessage
	for i := range msgs {
		msg := &msgs[i]
		switch msg.Role {
		case model.RoleUser:
			out = append(out, chatMessage{Role: "user", Content: userContent(msg.Content)})
		case model.RoleAssistant:
			out = append(out, assistantMessage(msg))
		case model.RoleToolResult:
			out = append(out, chatMessage{
				Role:       "tool",
				Content:    msg.TextContent(),
				ToolCallID: msg.ToolCallID,
				Name:       msg.ToolName,
			})
		default:
			slog.Warn("skipping message with unknown role", "role", msg.Role)
		}
	}
	return out
}

// userContent renders a user turn as a plain string when it is text-only,
// or as multimodal parts otherwise.
func userContent(blocks []model.ContentBlock) any {
	textOnly := true
	for _, b := range blocks {
		if b.Type != model.BlockText {
			textOnly = false
			break
		}
	}
	if textOnly {
		var text string
		for _, b := range blocks {
			text += b.Text
		}
		return text
	}

	var parts []contentPart
	for _, b := range blocks {
		switch b.Type {
		case model.BlockText:
			parts = append(parts, contentPart{Type: "text", Text: b.Text})
		case model.BlockImage:
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", b.MediaType, b.Data),
			}})
		default:
			slog.Warn("skipping user content block with unsupported type", "type", b.Type)
		}
	}
	return parts
}

// assistantMessage replays a prior assistant turn. Thinking blocks are not
// representable in this protocol and are dropped from replay; the text and
// tool calls carry the turn.
func assistantMessage(msg *model.Message) chatMessage {
	out := chatMessage{Role: "assistant"}
	if text := msg.TextContent(); text != "" {
		out.Content = text
	}
	for _, call := range msg.ToolCalls() {
		args := string(call.Arguments)
		if args == "" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, chatToolCall{
			ID:   call.ID,
			Type: "function",
			Function: chatFunction{
				Name:      call.Name,
				Arguments: args,
			},
		})
	}
	return out
}

// parseResponse translates a non-streaming response into the canonical
// message. A separate reasoning_content field becomes a thinking block
// placed before the visible text.
func parseResponse(resp *chatResponse, providerName string) (*model.Message, error) {
	if len(resp.Choices) == 0 {
		return nil, model.NewMalformedEventError(providerName, "response has no choices")
	}
	choice := resp.Choices[0]
	if choice.Message == nil {
		return nil, model.NewMalformedEventError(providerName, "response choice has no message")
	}

	msg := &model.Message{Role: model.RoleAssistant, StopReason: model.StopEnd}
	if choice.FinishReason != nil {
		msg.StopReason = mapFinishReason(*choice.FinishReason)
	}

	if rc := choice.Message.ReasoningContent; rc != nil && *rc != "" {
		msg.Content = append(msg.Content, model.ThinkingBlock(*rc, ""))
	}
	if c := choice.Message.Content; c != nil && *c != "" {
		msg.Content = append(msg.Content, model.TextBlock(*c))
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		msg.Content = append(msg.Content, model.ToolCallBlock(model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		}))
	}

	if resp.Usage != nil {
		msg.Usage = convertUsage(resp.Usage)
	}
	return msg, nil
}

// convertUsage maps wire usage onto the canonical counters. Cached prompt
// tokens are reported separately and subtracted from the fresh input count.
func convertUsage(u *chatUsage) *model.Usage {
	out := &model.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
	if d := u.PromptTokensDetails; d != nil && d.CachedTokens > 0 {
		out.CacheReadTokens = d.CachedTokens
		out.InputTokens -= d.CachedTokens
		if out.InputTokens < 0 {
			out.InputTokens = 0
		}
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return out
}

func mapFinishReason(reason string) model.StopReason {
	switch reason {
	case "stop", "":
		return model.StopEnd
	case "length", "content_filter":
		return model.StopLength
	case "tool_calls", "function_call":
		return model.StopToolUse
	default:
		slog.Warn("unknown finish_reason, treating as stop", "finish_reason", reason)
		return model.StopEnd
	}
}
