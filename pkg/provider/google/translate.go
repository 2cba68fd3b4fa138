package google

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/modelrelay/modelrelay/pkg/model"
)

// newCallID synthesizes a tool call identifier; the wire protocol does not
// assign one, but the canonical model requires IDs to pair results with
// calls.
func newCallID(name string) string {
	return name + "-" + uuid.NewString()[:8]
}

// buildRequest translates a canonical request into the generateContent
// shape.
func buildRequest(req *model.Request) generateRequest {
	out := generateRequest{
		Contents: convertMessages(req.Messages),
	}

	if req.System != "" {
		out.SystemInstruction = &wireContent{Parts: []wirePart{{Text: req.System}}}
	}

	gc := &generationConfig{Temperature: req.Options.Temperature}
	if req.Options.MaxTokens != nil && *req.Options.MaxTokens > 0 {
		gc.MaxOutputTokens = *req.Options.MaxTokens
	}
	if budget := req.Options.ThinkingBudget(); budget > 0 {
		gc.ThinkingConfig = &thinkingConfig{IncludeThoughts: true, ThinkingBudget: budget}
	}
	if gc.Temperature != nil || gc.MaxOutputTokens > 0 || gc.ThinkingConfig != nil {
		out.GenerationConfig = gc
	}

	if len(req.Tools) > 0 {
		decls := make([]wireFunctionDecl, 0, len(req.Tools))
		for _, tool := range req.Tools {
			decls = append(decls, wireFunctionDecl{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			})
		}
		out.Tools = []wireToolGroup{{FunctionDeclarations: decls}}
	}
	return out
}

// convertMessages maps canonical turns onto the user/model wire roles. Tool
// results become user-role functionResponse parts.
func convertMessages(msgs []model.Message) []wireContent {
	var out []wireContent
	for i := range msgs {
		msg := &msgs[i]
		switch msg.Role {
		case model.RoleUser:
			out = append(out, wireContent{Role: "user", Parts: convertBlocks(msg.Content)})
		case model.RoleAssistant:
			out = append(out, wireContent{Role: "model", Parts: convertBlocks(msg.Content)})
		case model.RoleToolResult:
			out = append(out, wireContent{Role: "user", Parts: []wirePart{{
				FunctionResponse: &wireFunctionResp{
					Name:     msg.ToolName,
					Response: functionResponseBody(msg),
				},
			}}})
		default:
			slog.Warn("skipping message with unknown role", "role", msg.Role)
		}
	}
	return out
}

// functionResponseBody wraps the tool result text in the object shape the
// API requires.
func functionResponseBody(msg *model.Message) json.RawMessage {
	key := "result"
	if msg.IsError {
		key = "error"
	}
	body, err := json.Marshal(map[string]string{key: msg.TextContent()})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return body
}

func convertBlocks(blocks []model.ContentBlock) []wirePart {
	out := make([]wirePart, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case model.BlockText:
			out = append(out, wirePart{Text: b.Text})
		case model.BlockThinking:
			out = append(out, wirePart{Text: b.Text, Thought: true, ThoughtSignature: b.Signature})
		case model.BlockImage:
			out = append(out, wirePart{InlineData: &wireInlineData{
				MimeType: b.MediaType,
				Data:     b.Data,
			}})
		case model.BlockToolCall:
			if b.ToolCall == nil {
				continue
			}
			out = append(out, wirePart{FunctionCall: &wireFunctionCall{
				Name: b.ToolCall.Name,
				Args: b.ToolCall.Arguments,
			}})
		default:
			slog.Warn("skipping content block with unknown type", "type", b.Type)
		}
	}
	return out
}

// parseResponse translates a non-streaming response into the canonical
// message. Function calls have no wire ID; one is synthesized so a later
// tool result can reference the call.
func parseResponse(resp *generateResponse) (*model.Message, error) {
	if len(resp.Candidates) == 0 {
		return nil, model.NewMalformedEventError("google", "response has no candidates")
	}
	candidate := resp.Candidates[0]

	msg := &model.Message{
		Role:       model.RoleAssistant,
		StopReason: mapFinishReason(candidate.FinishReason),
	}

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				msg.Content = append(msg.Content, model.ToolCallBlock(model.ToolCall{
					ID:        newCallID(part.FunctionCall.Name),
					Name:      part.FunctionCall.Name,
					Arguments: callArgs(part.FunctionCall),
				}))
			case part.Thought:
				msg.Content = append(msg.Content, model.ThinkingBlock(part.Text, part.ThoughtSignature))
			case part.Text != "":
				msg.Content = append(msg.Content, model.TextBlock(part.Text))
			}
		}
	}

	// A function call forces the stop reason: the API still reports STOP.
	if msg.StopReason == model.StopEnd {
		for _, b := range msg.Content {
			if b.Type == model.BlockToolCall {
				msg.StopReason = model.StopToolUse
				break
			}
		}
	}

	if resp.UsageMetadata != nil {
		msg.Usage = convertUsage(resp.UsageMetadata)
	}
	return msg, nil
}

func callArgs(call *wireFunctionCall) json.RawMessage {
	if len(call.Args) == 0 {
		return json.RawMessage("{}")
	}
	return call.Args
}

// convertUsage maps usage metadata onto the canonical counters. Cached
// prompt tokens are reported inside promptTokenCount and subtracted from the
// fresh input count; thought tokens count as output.
func convertUsage(u *usageMetadata) *model.Usage {
	out := &model.Usage{
		InputTokens:     u.PromptTokenCount - u.CachedContentTokenCount,
		OutputTokens:    u.CandidatesTokenCount + u.ThoughtsTokenCount,
		CacheReadTokens: u.CachedContentTokenCount,
		TotalTokens:     u.TotalTokenCount,
	}
	if out.InputTokens < 0 {
		out.InputTokens = 0
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.InputTokens + out.OutputTokens + out.CacheReadTokens
	}
	return out
}

func mapFinishReason(reason string) model.StopReason {
	switch reason {
	case "STOP", "":
		return model.StopEnd
	case "MAX_TOKENS":
		return model.StopLength
	default:
		slog.Warn("unknown finishReason, treating as stop", "finishReason", reason)
		return model.StopEnd
	}
}
