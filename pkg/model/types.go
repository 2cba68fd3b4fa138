package model

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Content blocks
// ---------------------------------------------------------------------------

// BlockType discriminates the kinds of content a message can carry.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockThinking BlockType = "thinking"
	BlockImage    BlockType = "image"
	BlockToolCall BlockType = "tool_call"
)

// ContentBlock is one discrete unit of message content. Exactly one of the
// kind-specific field groups is populated, selected by Type.
//
// Within an assistant message, blocks preserve the provider's emission order.
// Some providers require thinking blocks (and their signatures) to precede
// the tool call they justify when the turn is replayed in a later request,
// so order is never rearranged.
type ContentBlock struct {
	Type BlockType `json:"-"`

	// Text holds the content for text blocks and the deliberation text for
	// thinking blocks.
	Text string `json:"-"`

	// Signature is an opaque continuation token accompanying some thinking
	// blocks. It must be replayed unmodified and is never interpreted.
	Signature string `json:"-"`

	// Data and MediaType describe an image block (base64 payload).
	Data      string `json:"-"`
	MediaType string `json:"-"`

	// ToolCall is set for tool_call blocks.
	ToolCall *ToolCall `json:"-"`
}

// ToolCall is an assistant-initiated tool invocation. ID is opaque and
// provider-scoped; it must be echoed back unchanged in a later tool result.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ThinkingBlock builds a thinking content block. The signature may be empty.
func ThinkingBlock(text, signature string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Text: text, Signature: signature}
}

// ImageBlock builds an image content block from base64 data and a MIME type.
func ImageBlock(data, mediaType string) ContentBlock {
	return ContentBlock{Type: BlockImage, Data: data, MediaType: mediaType}
}

// ToolCallBlock builds a tool_call content block.
func ToolCallBlock(call ToolCall) ContentBlock {
	return ContentBlock{Type: BlockToolCall, ToolCall: &call}
}

// contentBlockWire is the flat JSON shape of a content block. Arguments are
// kept raw so round-tripping never reformats caller payloads.
type contentBlockWire struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Data      string          `json:"data,omitempty"`
	MediaType string          `json:"media_type,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MarshalJSON serializes a ContentBlock to its tagged wire form.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	w := contentBlockWire{Type: b.Type}
	switch b.Type {
	case BlockText:
		w.Text = b.Text
	case BlockThinking:
		w.Thinking = b.Text
		w.Signature = b.Signature
	case BlockImage:
		w.Data = b.Data
		w.MediaType = b.MediaType
	case BlockToolCall:
		if b.ToolCall == nil {
			return nil, fmt.Errorf("model: tool_call block without call data")
		}
		w.ID = b.ToolCall.ID
		w.Name = b.ToolCall.Name
		w.Arguments = b.ToolCall.Arguments
	default:
		return nil, fmt.Errorf("model: unknown content block type %q", b.Type)
	}
	return json.Marshal(w)
}

// UnmarshalJSON deserializes a ContentBlock from its tagged wire form.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var w contentBlockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.Type = w.Type
	switch w.Type {
	case BlockText:
		b.Text = w.Text
	case BlockThinking:
		b.Text = w.Thinking
		b.Signature = w.Signature
	case BlockImage:
		b.Data = w.Data
		b.MediaType = w.MediaType
	case BlockToolCall:
		b.ToolCall = &ToolCall{ID: w.ID, Name: w.Name, Arguments: w.Arguments}
	default:
		return fmt.Errorf("model: unknown content block type %q", w.Type)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// Role identifies the sender of a conversation turn.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Message is one turn in a conversation. Messages are immutable once
// constructed; a conversation is an ordered slice owned by the caller for
// the duration of one request.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`

	// Tool result fields (Role == RoleToolResult).
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	// Assistant metadata (Role == RoleAssistant). Model carries the fully
	// qualified "<provider>/<model>" identifier on responses.
	Model      string     `json:"model,omitempty"`
	Provider   string     `json:"provider,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
	StopReason StopReason `json:"stop_reason,omitempty"`
}

// UserMessage builds a user turn from content blocks.
func UserMessage(content ...ContentBlock) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant turn from content blocks.
func AssistantMessage(content ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage builds a tool result turn answering a prior tool call.
func ToolResultMessage(callID, toolName string, isError bool, content ...ContentBlock) Message {
	return Message{
		Role:       RoleToolResult,
		Content:    content,
		ToolCallID: callID,
		ToolName:   toolName,
		IsError:    isError,
	}
}

// TextContent concatenates the text of all text blocks in the message.
func (m *Message) TextContent() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolCalls returns the tool calls carried by the message, in block order.
func (m *Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Content {
		if b.Type == BlockToolCall && b.ToolCall != nil {
			calls = append(calls, *b.ToolCall)
		}
	}
	return calls
}

// ---------------------------------------------------------------------------
// Tool definitions
// ---------------------------------------------------------------------------

// ToolDef describes a tool the caller makes available to the model.
// Parameters is a JSON-Schema document passed through opaquely; adapters
// translate it into the provider's tool-declaration shape.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ---------------------------------------------------------------------------
// Usage and stop reasons
// ---------------------------------------------------------------------------

// Usage holds token accounting for one request.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens"`
}

// StopReason explains why the assistant turn ended.
type StopReason string

const (
	StopEnd     StopReason = "stop"
	StopLength  StopReason = "length"
	StopToolUse StopReason = "tool_use"
	StopError   StopReason = "error"
	StopAborted StopReason = "aborted"
)

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// Request is the canonical request handed to a provider adapter. Model is
// the provider-local model identifier (the "<provider>/" routing prefix is
// already stripped).
type Request struct {
	Model    string         `json:"model"`
	System   string         `json:"system,omitempty"`
	Messages []Message      `json:"messages"`
	Tools    []ToolDef      `json:"tools,omitempty"`
	Options  RequestOptions `json:"options,omitempty"`
}
