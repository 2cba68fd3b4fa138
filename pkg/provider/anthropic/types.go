package anthropic

import "encoding/json"

// messagesRequest is the Messages API request body.
type messagesRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	System      string         `json:"system,omitempty"`
	Messages    []wireMessage  `json:"messages"`
	Tools       []wireTool     `json:"tools,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Thinking    *wireThinking  `json:"thinking,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
}

// wireMessage is one conversation turn. The Messages API knows only the
// user and assistant roles; tool results travel as user-role blocks.
type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

// wireBlock is a flat union of the Messages API content block shapes. The
// Type discriminator selects which fields are meaningful.
type wireBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "thinking"
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// type == "image"
	Source *wireImageSource `json:"source,omitempty"`

	// type == "tool_use"
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type wireImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// messagesResponse is the non-streaming Messages API response body.
type messagesResponse struct {
	ID         string      `json:"id"`
	Model      string      `json:"model"`
	Content    []wireBlock `json:"content"`
	StopReason string      `json:"stop_reason"`
	Usage      *wireUsage  `json:"usage"`
}

type wireUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// streamEvent is the data payload of one Messages SSE event. The Type field
// repeats the SSE event name, so dispatch never depends on the event: line.
type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	// message_start
	Message *messagesResponse `json:"message,omitempty"`

	// content_block_start
	ContentBlock *wireBlock `json:"content_block,omitempty"`

	// content_block_delta, message_delta
	Delta *streamDelta `json:"delta,omitempty"`

	// message_delta carries output usage at the top level.
	Usage *wireUsage `json:"usage,omitempty"`

	// error
	Error *wireError `json:"error,omitempty"`
}

type streamDelta struct {
	Type string `json:"type"`

	// text_delta
	Text string `json:"text,omitempty"`

	// thinking_delta / signature_delta
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// input_json_delta
	PartialJSON string `json:"partial_json,omitempty"`

	// message_delta
	StopReason string `json:"stop_reason,omitempty"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// errorEnvelope is the JSON body of a non-2xx response.
type errorEnvelope struct {
	Error *wireError `json:"error"`
}
