package anthropic

import (
	"log/slog"

	"github.com/modelrelay/modelrelay/pkg/model"
)

// buildRequest translates a canonical request into the Messages API shape.
func buildRequest(req *model.Request, defaultMaxTokens int, stream bool) messagesRequest {
	out := messagesRequest{
		Model:       req.Model,
		System:      req.System,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Options.Temperature,
		Stream:      stream,
	}
	if req.Options.MaxTokens != nil && *req.Options.MaxTokens > 0 {
		out.MaxTokens = *req.Options.MaxTokens
	}

	if budget := req.Options.ThinkingBudget(); budget > 0 {
		out.Thinking = &wireThinking{Type: "enabled", BudgetTokens: budget}
		// The API rejects thinking with max_tokens <= budget.
		if out.MaxTokens <= budget {
			out.MaxTokens = budget + defaultMaxTokens
		}
	}

	for _, tool := range req.Tools {
		schema := tool.Parameters
		if len(schema) == 0 {
			schema = []byte(`{"type":"object","properties":{}}`)
		}
		out.Tools = append(out.Tools, wireTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}

	out.Messages = convertMessages(req.Messages)
	return out
}

// convertMessages maps canonical turns onto the two-role wire model. Tool
// results become user-role tool_result blocks; consecutive turns that land
// on the same wire role are merged, which the API requires for alternation.
func convertMessages(msgs []model.Message) []wireMessage {
	var out []wireMessage

	appendBlocks := func(role string, blocks []wireBlock) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, wireMessage{Role: role, Content: blocks})
	}

	for i := range msgs {
		msg := &msgs[i]
		switch msg.Role {
		case model.RoleUser:
			appendBlocks("user", convertBlocks(msg.Content))
		case model.RoleAssistant:
			appendBlocks("assistant", convertBlocks(msg.Content))
		case model.RoleToolResult:
			appendBlocks("user", []wireBlock{{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.TextContent(),
				IsError:   msg.IsError,
			}})
		default:
			slog.Warn("skipping message with unknown role", "role", msg.Role)
		}
	}
	return out
}

func convertBlocks(blocks []model.ContentBlock) []wireBlock {
	out := make([]wireBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case model.BlockText:
			out = append(out, wireBlock{Type: "text", Text: b.Text})
		case model.BlockThinking:
			// Thinking is replayed with its signature so the provider can
			// verify continuity across tool-use round trips.
			out = append(out, wireBlock{Type: "thinking", Thinking: b.Text, Signature: b.Signature})
		case model.BlockImage:
			out = append(out, wireBlock{Type: "image", Source: &wireImageSource{
				Type:      "base64",
				MediaType: b.MediaType,
				Data:      b.Data,
			}})
		case model.BlockToolCall:
			if b.ToolCall == nil {
				continue
			}
			input := b.ToolCall.Arguments
			if len(input) == 0 {
				input = []byte("{}")
			}
			out = append(out, wireBlock{
				Type:  "tool_use",
				ID:    b.ToolCall.ID,
				Name:  b.ToolCall.Name,
				Input: input,
			})
		default:
			slog.Warn("skipping content block with unknown type", "type", b.Type)
		}
	}
	return out
}

// parseResponse translates a non-streaming response into the canonical
// message. Unknown block types are logged and skipped, never fatal.
func parseResponse(resp *messagesResponse) *model.Message {
	msg := &model.Message{
		Role:       model.RoleAssistant,
		StopReason: mapStopReason(resp.StopReason),
	}

	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			msg.Content = append(msg.Content, model.TextBlock(b.Text))
		case "thinking":
			msg.Content = append(msg.Content, model.ThinkingBlock(b.Thinking, b.Signature))
		case "redacted_thinking":
			// Redacted thinking carries only opaque data; keep the signature
			// so replay stays valid.
			msg.Content = append(msg.Content, model.ThinkingBlock("", b.Signature))
		case "tool_use":
			msg.Content = append(msg.Content, model.ToolCallBlock(model.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: b.Input,
			}))
		default:
			slog.Warn("skipping response block with unknown type", "type", b.Type)
		}
	}

	if resp.Usage != nil {
		msg.Usage = convertUsage(resp.Usage)
	}
	return msg
}

func convertUsage(u *wireUsage) *model.Usage {
	out := &model.Usage{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
	}
	out.TotalTokens = out.InputTokens + out.OutputTokens + out.CacheReadTokens + out.CacheWriteTokens
	return out
}

func mapStopReason(reason string) model.StopReason {
	switch reason {
	case "end_turn", "stop_sequence", "":
		return model.StopEnd
	case "max_tokens":
		return model.StopLength
	case "tool_use":
		return model.StopToolUse
	default:
		slog.Warn("unknown stop_reason, treating as stop", "stop_reason", reason)
		return model.StopEnd
	}
}
