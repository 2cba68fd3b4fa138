package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelrelay/modelrelay/pkg/model"
)

// chatCompletionsRequest is the OpenAI-dialect ingress body.
type chatCompletionsRequest struct {
	Model               string          `json:"model"`
	Messages            []inChatMessage `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	MaxTokens           *int            `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	Stream              bool            `json:"stream,omitempty"`
	Tools               []inChatTool    `json:"tools,omitempty"`
	ReasoningEffort     string          `json:"reasoning_effort,omitempty"`
	Verbosity           string          `json:"verbosity,omitempty"`

	// NormalizeThinkTags is a dialect extension: reroute inline
	// <think>...</think> spans from backends that embed them in plain text.
	NormalizeThinkTags bool `json:"normalize_think_tags,omitempty"`

	// IncludeReasoning is a dialect extension: copy thinking text into the
	// response's reasoning_content field. Defaults to true; clients whose
	// SDKs reject unknown response fields can pass false to suppress it.
	IncludeReasoning *bool `json:"include_reasoning,omitempty"`
}

// inChatMessage leaves content raw: the dialect allows both a plain string
// and an array of typed parts.
type inChatMessage struct {
	Role             string          `json:"role"`
	Content          json.RawMessage `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCalls        []inToolCall    `json:"tool_calls,omitempty"`
	ToolCallID       string          `json:"tool_call_id,omitempty"`
	Name             string          `json:"name,omitempty"`
}

type inToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function inToolFunction `json:"function"`
}

type inToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type inChatTool struct {
	Type     string        `json:"type"`
	Function inChatToolDef `json:"function"`
}

type inChatToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type inContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var wireReq chatCompletionsRequest
	if e := g.decodeBody(w, r, &wireReq); e != nil {
		writeJSONError(w, e, openaiError(e))
		return
	}

	req, e := parseChatCompletionsRequest(&wireReq)
	if e != nil {
		writeJSONError(w, e, openaiError(e))
		return
	}

	adapter, modelID, e := g.resolve(r.Context(), req)
	if e != nil {
		writeJSONError(w, e, openaiError(e))
		return
	}

	fullID := req.Model
	req.Model = modelID

	if wireReq.Stream {
		g.streamChatCompletions(w, r, adapter, req, fullID)
		return
	}
	g.completeChatCompletions(w, r, adapter, req, fullID)
}

// parseChatCompletionsRequest converts the dialect body into a canonical
// request. Leading system and developer turns collapse into the canonical
// system prompt.
func parseChatCompletionsRequest(in *chatCompletionsRequest) (*model.Request, *model.Error) {
	if in.Model == "" {
		return nil, model.NewInvalidRequestError("model is required")
	}
	if len(in.Messages) == 0 {
		return nil, model.NewInvalidRequestError("messages must not be empty")
	}

	req := &model.Request{
		Model: in.Model,
		Options: model.RequestOptions{
			Temperature:             in.Temperature,
			Effort:                  model.Effort(in.ReasoningEffort),
			Verbosity:               in.Verbosity,
			NormalizeThinkTags:      in.NormalizeThinkTags,
			CaptureReasoningSummary: in.IncludeReasoning == nil || *in.IncludeReasoning,
		},
	}
	if in.MaxCompletionTokens != nil {
		req.Options.MaxTokens = in.MaxCompletionTokens
	} else if in.MaxTokens != nil {
		req.Options.MaxTokens = in.MaxTokens
	}

	var system []string
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case "system", "developer":
			text, e := textOnlyContent(msg.Content)
			if e != nil {
				return nil, e
			}
			system = append(system, text)
		case "user":
			blocks, e := parseUserContent(msg.Content)
			if e != nil {
				return nil, e
			}
			req.Messages = append(req.Messages, model.UserMessage(blocks...))
		case "assistant":
			m, e := parseAssistantMessage(msg)
			if e != nil {
				return nil, e
			}
			req.Messages = append(req.Messages, m)
		case "tool":
			text, e := textOnlyContent(msg.Content)
			if e != nil {
				return nil, e
			}
			req.Messages = append(req.Messages,
				model.ToolResultMessage(msg.ToolCallID, msg.Name, false, model.TextBlock(text)))
		default:
			return nil, model.NewInvalidRequestError(fmt.Sprintf("unknown message role %q", msg.Role))
		}
	}
	req.System = strings.Join(system, "\n\n")

	for _, tool := range in.Tools {
		if tool.Type != "function" {
			return nil, model.NewInvalidRequestError(fmt.Sprintf("unsupported tool type %q", tool.Type))
		}
		req.Tools = append(req.Tools, model.ToolDef{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  tool.Function.Parameters,
		})
	}
	return req, nil
}

// textOnlyContent flattens string-or-parts content to plain text.
func textOnlyContent(raw json.RawMessage) (string, *model.Error) {
	if len(raw) == 0 {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	var parts []inContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", model.NewInvalidRequestError("message content must be a string or an array of parts")
	}
	var out strings.Builder
	for _, part := range parts {
		if part.Type == "text" {
			out.WriteString(part.Text)
		}
	}
	return out.String(), nil
}

// parseUserContent converts string-or-parts content into canonical blocks.
// Images must be data URLs; remote fetching is not the gateway's job.
func parseUserContent(raw json.RawMessage) ([]model.ContentBlock, *model.Error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []model.ContentBlock{model.TextBlock(text)}, nil
	}

	var parts []inContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, model.NewInvalidRequestError("message content must be a string or an array of parts")
	}

	var blocks []model.ContentBlock
	for _, part := range parts {
		switch part.Type {
		case "text":
			blocks = append(blocks, model.TextBlock(part.Text))
		case "image_url":
			if part.ImageURL == nil {
				return nil, model.NewInvalidRequestError("image_url part without image_url field")
			}
			data, mediaType, ok := parseDataURL(part.ImageURL.URL)
			if !ok {
				return nil, model.NewInvalidRequestError("image_url must be a base64 data URL")
			}
			blocks = append(blocks, model.ImageBlock(data, mediaType))
		default:
			slog.Warn("skipping content part with unknown type", "type", part.Type)
		}
	}
	return blocks, nil
}

// parseDataURL splits "data:<media>;base64,<payload>".
func parseDataURL(url string) (data, mediaType string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	mediaType, data, found = strings.Cut(rest, ";base64,")
	if !found || mediaType == "" || data == "" {
		return "", "", false
	}
	return data, mediaType, true
}

// parseAssistantMessage rebuilds a replayed assistant turn. A
// reasoning_content field round-trips as a thinking block ahead of the text.
func parseAssistantMessage(msg *inChatMessage) (model.Message, *model.Error) {
	var blocks []model.ContentBlock
	if msg.ReasoningContent != "" {
		blocks = append(blocks, model.ThinkingBlock(msg.ReasoningContent, ""))
	}
	text, e := textOnlyContent(msg.Content)
	if e != nil {
		return model.Message{}, e
	}
	if text != "" {
		blocks = append(blocks, model.TextBlock(text))
	}
	for _, tc := range msg.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		blocks = append(blocks, model.ToolCallBlock(model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		}))
	}
	return model.AssistantMessage(blocks...), nil
}
