package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/modelrelay/modelrelay/pkg/model"
	"github.com/modelrelay/modelrelay/pkg/observability"
	"github.com/modelrelay/modelrelay/pkg/provider"
)

// outMessage is the Anthropic-dialect non-streaming egress body.
type outMessage struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	Role       string              `json:"role"`
	Model      string              `json:"model"`
	Content    []outAnthropicBlock `json:"content"`
	StopReason string              `json:"stop_reason,omitempty"`
	Usage      *outAnthropicUsage  `json:"usage,omitempty"`
}

type outAnthropicBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type outAnthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

// outStreamEvent is one Anthropic-dialect SSE payload.
type outStreamEvent struct {
	Type  string `json:"type"`
	Index *int   `json:"index,omitempty"`

	Message      *outMessage          `json:"message,omitempty"`
	ContentBlock *outAnthropicBlock   `json:"content_block,omitempty"`
	Delta        *outAnthropicDelta   `json:"delta,omitempty"`
	Usage        *outAnthropicUsage   `json:"usage,omitempty"`
	Error        *anthropicErrorDetail `json:"error,omitempty"`
}

type outAnthropicDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

func anthropicStopReason(reason model.StopReason) string {
	switch reason {
	case model.StopLength:
		return "max_tokens"
	case model.StopToolUse:
		return "tool_use"
	default:
		return "end_turn"
	}
}

func anthropicUsage(u *model.Usage) *outAnthropicUsage {
	if u == nil {
		return nil
	}
	return &outAnthropicUsage{
		InputTokens:              u.InputTokens,
		OutputTokens:             u.OutputTokens,
		CacheReadInputTokens:     u.CacheReadTokens,
		CacheCreationInputTokens: u.CacheWriteTokens,
	}
}

func outBlocks(content []model.ContentBlock) []outAnthropicBlock {
	blocks := make([]outAnthropicBlock, 0, len(content))
	for _, b := range content {
		switch b.Type {
		case model.BlockText:
			blocks = append(blocks, outAnthropicBlock{Type: "text", Text: b.Text})
		case model.BlockThinking:
			blocks = append(blocks, outAnthropicBlock{
				Type:      "thinking",
				Thinking:  b.Text,
				Signature: b.Signature,
			})
		case model.BlockToolCall:
			blocks = append(blocks, outAnthropicBlock{
				Type:  "tool_use",
				ID:    b.ToolCall.ID,
				Name:  b.ToolCall.Name,
				Input: b.ToolCall.Arguments,
			})
		}
	}
	return blocks
}

// completeMessages runs a non-streaming dispatch and renders the assembled
// message in the caller's dialect.
func (g *Gateway) completeMessages(w http.ResponseWriter, r *http.Request, adapter provider.Adapter, req *model.Request, fullID string) {
	start := time.Now()
	msg, err := adapter.Complete(r.Context(), req)
	g.recordDispatch(adapter.Name(), fullID, start, err)
	if err != nil {
		e := model.AsError(err, adapter.Name())
		writeJSONError(w, e, anthropicError(e))
		return
	}
	g.recordUsage(adapter.Name(), fullID, msg.Usage)

	out := outMessage{
		ID:         model.NewMessageID(),
		Type:       "message",
		Role:       "assistant",
		Model:      msg.Model,
		Content:    outBlocks(msg.Content),
		StopReason: anthropicStopReason(msg.StopReason),
		Usage:      anthropicUsage(msg.Usage),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		g.logger.Error("failed to write response", "error", err.Error())
	}
}

// streamMessages runs a streaming dispatch and renders canonical events with
// the dialect's explicit block framing. The canonical stream guarantees one
// open block at a time, so framing is a direct projection.
func (g *Gateway) streamMessages(w http.ResponseWriter, r *http.Request, adapter provider.Adapter, req *model.Request, fullID string) {
	start := time.Now()
	events, err := adapter.Stream(r.Context(), req)
	if err != nil {
		g.recordDispatch(adapter.Name(), fullID, start, err)
		e := model.AsError(err, adapter.Name())
		writeJSONError(w, e, anthropicError(e))
		return
	}

	sse := newSSEWriter(w)
	e := &anthropicEgress{sse: sse}

	if werr := sse.WriteEvent("message_start", outStreamEvent{
		Type: "message_start",
		Message: &outMessage{
			ID:      model.NewMessageID(),
			Type:    "message",
			Role:    "assistant",
			Model:   fullID,
			Content: []outAnthropicBlock{},
			Usage:   &outAnthropicUsage{},
		},
	}); werr != nil {
		return
	}

	var streamErr *model.Error
	for ev := range events {
		switch ev.Type {
		case model.EventTextDelta:
			if e.ensure("text", nil) || e.delta(outAnthropicDelta{Type: "text_delta", Text: ev.Delta}) {
				return
			}
		case model.EventThinkingDelta:
			if e.ensure("thinking", nil) || e.delta(outAnthropicDelta{Type: "thinking_delta", Thinking: ev.Delta}) {
				return
			}
		case model.EventToolCallStart:
			block := &outAnthropicBlock{
				Type:  "tool_use",
				ID:    ev.ToolID,
				Name:  ev.ToolName,
				Input: json.RawMessage("{}"),
			}
			if e.ensure("tool_use", block) {
				return
			}
		case model.EventToolCallDelta:
			if e.delta(outAnthropicDelta{Type: "input_json_delta", PartialJSON: ev.Delta}) {
				return
			}
		case model.EventToolCallEnd:
			if e.closeOpen() {
				return
			}
		case model.EventDone:
			if e.closeOpen() {
				return
			}
			if werr := sse.WriteEvent("message_delta", outStreamEvent{
				Type:  "message_delta",
				Delta: &outAnthropicDelta{StopReason: anthropicStopReason(ev.Message.StopReason)},
				Usage: anthropicUsage(ev.Message.Usage),
			}); werr != nil {
				return
			}
			g.recordUsage(adapter.Name(), fullID, ev.Message.Usage)
			if werr := sse.WriteEvent("message_stop", outStreamEvent{Type: "message_stop"}); werr != nil {
				return
			}
		case model.EventError:
			if ev.Err.Kind == model.ErrMalformedEvent {
				g.logger.Warn("malformed upstream event",
					"provider", adapter.Name(), "error", ev.Err.Message)
				continue
			}
			streamErr = ev.Err
			if !sse.Started() {
				writeJSONError(w, ev.Err, anthropicError(ev.Err))
				g.recordDispatch(adapter.Name(), fullID, start, ev.Err)
				return
			}
			observability.StreamErrorsTotal.WithLabelValues(adapter.Name(), string(ev.Err.Kind)).Inc()
			detail := anthropicError(ev.Err).Error
			if werr := sse.WriteEvent("error", outStreamEvent{Type: "error", Error: &detail}); werr != nil {
				return
			}
		}
	}
	g.recordDispatch(adapter.Name(), fullID, start, errOrNil(streamErr))
}

// anthropicEgress synthesizes the dialect's block framing around canonical
// deltas.
type anthropicEgress struct {
	sse *sseWriter

	nextIndex int
	hasOpen   bool
	openType  string
	openIndex int
}

// ensure opens a block of the given type, closing a different open block
// first. Returns true on a write failure (client gone).
func (e *anthropicEgress) ensure(blockType string, block *outAnthropicBlock) bool {
	if e.hasOpen && e.openType == blockType && blockType != "tool_use" {
		return false
	}
	if e.closeOpen() {
		return true
	}
	if block == nil {
		block = &outAnthropicBlock{Type: blockType}
	}
	idx := e.nextIndex
	e.nextIndex++
	if err := e.sse.WriteEvent("content_block_start", outStreamEvent{
		Type:         "content_block_start",
		Index:        &idx,
		ContentBlock: block,
	}); err != nil {
		return true
	}
	e.hasOpen = true
	e.openType = blockType
	e.openIndex = idx
	return false
}

func (e *anthropicEgress) delta(d outAnthropicDelta) bool {
	idx := e.openIndex
	return e.sse.WriteEvent("content_block_delta", outStreamEvent{
		Type:  "content_block_delta",
		Index: &idx,
		Delta: &d,
	}) != nil
}

func (e *anthropicEgress) closeOpen() bool {
	if !e.hasOpen {
		return false
	}
	idx := e.openIndex
	e.hasOpen = false
	return e.sse.WriteEvent("content_block_stop", outStreamEvent{
		Type:  "content_block_stop",
		Index: &idx,
	}) != nil
}
