package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelrelay/modelrelay/pkg/model"
)

// messagesIngressRequest is the Anthropic-dialect ingress body.
type messagesIngressRequest struct {
	Model       string               `json:"model"`
	System      json.RawMessage      `json:"system,omitempty"`
	Messages    []inAnthropicMessage `json:"messages"`
	MaxTokens   *int                 `json:"max_tokens,omitempty"`
	Temperature *float64             `json:"temperature,omitempty"`
	Stream      bool                 `json:"stream,omitempty"`
	Tools       []inAnthropicTool    `json:"tools,omitempty"`
	Thinking    *inThinking          `json:"thinking,omitempty"`

	// NormalizeThinkTags is a dialect extension shared with the OpenAI
	// ingress.
	NormalizeThinkTags bool `json:"normalize_think_tags,omitempty"`
}

type inAnthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type inAnthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type inThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// inAnthropicBlock is the flat ingress union of the dialect's content block
// shapes.
type inAnthropicBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	Source *struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"source,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	var wireReq messagesIngressRequest
	if e := g.decodeBody(w, r, &wireReq); e != nil {
		writeJSONError(w, e, anthropicError(e))
		return
	}

	req, e := parseMessagesRequest(&wireReq)
	if e != nil {
		writeJSONError(w, e, anthropicError(e))
		return
	}

	adapter, modelID, e := g.resolve(r.Context(), req)
	if e != nil {
		writeJSONError(w, e, anthropicError(e))
		return
	}

	fullID := req.Model
	req.Model = modelID

	if wireReq.Stream {
		g.streamMessages(w, r, adapter, req, fullID)
		return
	}
	g.completeMessages(w, r, adapter, req, fullID)
}

// parseMessagesRequest converts the dialect body into a canonical request.
// User-role tool_result blocks split off into canonical tool result turns.
func parseMessagesRequest(in *messagesIngressRequest) (*model.Request, *model.Error) {
	if in.Model == "" {
		return nil, model.NewInvalidRequestError("model is required")
	}
	if len(in.Messages) == 0 {
		return nil, model.NewInvalidRequestError("messages must not be empty")
	}

	req := &model.Request{
		Model: in.Model,
		Options: model.RequestOptions{
			Temperature:        in.Temperature,
			MaxTokens:          in.MaxTokens,
			NormalizeThinkTags: in.NormalizeThinkTags,
		},
	}
	if in.Thinking != nil && in.Thinking.Type == "enabled" {
		req.Options.BudgetTokens = in.Thinking.BudgetTokens
	}

	system, e := parseSystemField(in.System)
	if e != nil {
		return nil, e
	}
	req.System = system

	for i := range in.Messages {
		msg := &in.Messages[i]
		blocks, e := parseAnthropicContent(msg.Content)
		if e != nil {
			return nil, e
		}
		switch msg.Role {
		case "user":
			if e := appendUserTurn(req, blocks); e != nil {
				return nil, e
			}
		case "assistant":
			m, e := convertInBlocks(blocks)
			if e != nil {
				return nil, e
			}
			req.Messages = append(req.Messages, model.AssistantMessage(m...))
		default:
			return nil, model.NewInvalidRequestError(fmt.Sprintf("unknown message role %q", msg.Role))
		}
	}

	for _, tool := range in.Tools {
		req.Tools = append(req.Tools, model.ToolDef{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		})
	}
	return req, nil
}

// parseSystemField accepts the dialect's string-or-blocks system prompt.
func parseSystemField(raw json.RawMessage) (string, *model.Error) {
	if len(raw) == 0 {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	var blocks []inAnthropicBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", model.NewInvalidRequestError("system must be a string or an array of text blocks")
	}
	var out strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			out.WriteString(b.Text)
		}
	}
	return out.String(), nil
}

// parseAnthropicContent accepts the dialect's string-or-blocks content.
func parseAnthropicContent(raw json.RawMessage) ([]inAnthropicBlock, *model.Error) {
	if len(raw) == 0 {
		return nil, model.NewInvalidRequestError("message content is required")
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []inAnthropicBlock{{Type: "text", Text: text}}, nil
	}
	var blocks []inAnthropicBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, model.NewInvalidRequestError("message content must be a string or an array of blocks")
	}
	return blocks, nil
}

// appendUserTurn splits a user message into canonical turns: tool_result
// blocks become tool result turns in block order, everything else gathers
// into one user turn.
func appendUserTurn(req *model.Request, blocks []inAnthropicBlock) *model.Error {
	var userBlocks []model.ContentBlock
	flushUser := func() {
		if len(userBlocks) > 0 {
			req.Messages = append(req.Messages, model.UserMessage(userBlocks...))
			userBlocks = nil
		}
	}

	for _, b := range blocks {
		if b.Type == "tool_result" {
			flushUser()
			text, e := toolResultText(b.Content)
			if e != nil {
				return e
			}
			req.Messages = append(req.Messages,
				model.ToolResultMessage(b.ToolUseID, "", b.IsError, model.TextBlock(text)))
			continue
		}
		converted, e := convertInBlocks([]inAnthropicBlock{b})
		if e != nil {
			return e
		}
		userBlocks = append(userBlocks, converted...)
	}
	flushUser()
	return nil
}

// toolResultText flattens a tool_result's string-or-blocks content.
func toolResultText(raw json.RawMessage) (string, *model.Error) {
	if len(raw) == 0 {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	var blocks []inAnthropicBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", model.NewInvalidRequestError("tool_result content must be a string or an array of blocks")
	}
	var out strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			out.WriteString(b.Text)
		}
	}
	return out.String(), nil
}

// convertInBlocks maps dialect blocks onto canonical ones.
func convertInBlocks(blocks []inAnthropicBlock) ([]model.ContentBlock, *model.Error) {
	var out []model.ContentBlock
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, model.TextBlock(b.Text))
		case "thinking":
			out = append(out, model.ThinkingBlock(b.Thinking, b.Signature))
		case "image":
			if b.Source == nil || b.Source.Type != "base64" {
				return nil, model.NewInvalidRequestError("image blocks require a base64 source")
			}
			out = append(out, model.ImageBlock(b.Source.Data, b.Source.MediaType))
		case "tool_use":
			args := b.Input
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out = append(out, model.ToolCallBlock(model.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			}))
		default:
			return nil, model.NewInvalidRequestError(fmt.Sprintf("unknown content block type %q", b.Type))
		}
	}
	return out, nil
}
