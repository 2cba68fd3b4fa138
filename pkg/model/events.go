package model

// StreamEventType classifies a canonical streaming event.
type StreamEventType string

const (
	EventTextDelta     StreamEventType = "text_delta"
	EventThinkingDelta StreamEventType = "thinking_delta"
	EventToolCallStart StreamEventType = "tool_call_start"
	EventToolCallDelta StreamEventType = "tool_call_delta"
	EventToolCallEnd   StreamEventType = "tool_call_end"
	EventDone          StreamEventType = "done"
	EventError         StreamEventType = "error"
)

// StreamEvent is a single canonical event emitted while streaming one
// response. Events for one request are strictly ordered as produced by the
// provider; done and error are terminal.
type StreamEvent struct {
	Type StreamEventType

	// Delta carries incremental text for text_delta and thinking_delta
	// events, and the raw argument fragment for tool_call_delta events.
	Delta string

	// Index identifies the content block a tool call event belongs to.
	Index int

	// ToolID and ToolName are populated on tool_call_start.
	ToolID   string
	ToolName string

	// ToolCall is the completed call, populated on tool_call_end.
	ToolCall *ToolCall

	// Message is the fully assembled assistant turn, populated on done.
	// Blocks appear in the order they were closed.
	Message *Message

	// Err is populated on error events.
	Err *Error
}

// Terminal reports whether no further events follow this one.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
