package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/modelrelay/modelrelay/pkg/model"
	"github.com/modelrelay/modelrelay/pkg/observability"
	"github.com/modelrelay/modelrelay/pkg/provider"
)

// outChatResponse is the OpenAI-dialect non-streaming egress body.
type outChatResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []outChatChoice `json:"choices"`
	Usage   *outUsage       `json:"usage,omitempty"`
}

type outChatChoice struct {
	Index        int             `json:"index"`
	Message      *outChatMessage `json:"message,omitempty"`
	Delta        *outChatDelta   `json:"delta,omitempty"`
	FinishReason *string         `json:"finish_reason"`
}

type outChatMessage struct {
	Role             string        `json:"role"`
	Content          *string       `json:"content"`
	ReasoningContent string        `json:"reasoning_content,omitempty"`
	ToolCalls        []outToolCall `json:"tool_calls,omitempty"`
}

type outChatDelta struct {
	Role             string        `json:"role,omitempty"`
	Content          *string       `json:"content,omitempty"`
	ReasoningContent string        `json:"reasoning_content,omitempty"`
	ToolCalls        []outToolCall `json:"tool_calls,omitempty"`
}

type outToolCall struct {
	Index    *int            `json:"index,omitempty"`
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Function outToolFunction `json:"function"`
}

type outToolFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type outUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func newChatCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

func openaiFinishReason(reason model.StopReason) string {
	switch reason {
	case model.StopLength:
		return "length"
	case model.StopToolUse:
		return "tool_calls"
	default:
		return "stop"
	}
}

func openaiUsage(u *model.Usage) *outUsage {
	if u == nil {
		return nil
	}
	return &outUsage{
		PromptTokens:     u.InputTokens + u.CacheReadTokens + u.CacheWriteTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// completeChatCompletions runs a non-streaming dispatch and renders the
// assembled message in the caller's dialect.
func (g *Gateway) completeChatCompletions(w http.ResponseWriter, r *http.Request, adapter provider.Adapter, req *model.Request, fullID string) {
	start := time.Now()
	msg, err := adapter.Complete(r.Context(), req)
	g.recordDispatch(adapter.Name(), fullID, start, err)
	if err != nil {
		e := model.AsError(err, adapter.Name())
		writeJSONError(w, e, openaiError(e))
		return
	}
	g.recordUsage(adapter.Name(), fullID, msg.Usage)

	out := outChatResponse{
		ID:      newChatCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   msg.Model,
		Usage:   openaiUsage(msg.Usage),
	}

	outMsg := &outChatMessage{Role: "assistant"}
	if req.Options.CaptureReasoningSummary {
		var thinking string
		for _, b := range msg.Content {
			if b.Type == model.BlockThinking {
				thinking += b.Text
			}
		}
		outMsg.ReasoningContent = thinking
	}
	if text := msg.TextContent(); text != "" {
		outMsg.Content = &text
	}
	for _, call := range msg.ToolCalls() {
		outMsg.ToolCalls = append(outMsg.ToolCalls, outToolCall{
			ID:   call.ID,
			Type: "function",
			Function: outToolFunction{
				Name:      call.Name,
				Arguments: string(call.Arguments),
			},
		})
	}

	finish := openaiFinishReason(msg.StopReason)
	out.Choices = []outChatChoice{{Index: 0, Message: outMsg, FinishReason: &finish}}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		g.logger.Error("failed to write response", "error", err.Error())
	}
}

// streamChatCompletions runs a streaming dispatch and renders canonical
// events as chat.completion.chunk frames. Once streaming starts, errors are
// delivered in-band; forwarded content is never retracted.
func (g *Gateway) streamChatCompletions(w http.ResponseWriter, r *http.Request, adapter provider.Adapter, req *model.Request, fullID string) {
	start := time.Now()
	events, err := adapter.Stream(r.Context(), req)
	if err != nil {
		g.recordDispatch(adapter.Name(), fullID, start, err)
		e := model.AsError(err, adapter.Name())
		writeJSONError(w, e, openaiError(e))
		return
	}

	sse := newSSEWriter(w)
	chunkID := newChatCompletionID()
	created := time.Now().Unix()
	roleSent := false
	toolIndex := -1

	chunk := func(delta outChatDelta, finish *string) outChatResponse {
		if !roleSent {
			delta.Role = "assistant"
			roleSent = true
		}
		return outChatResponse{
			ID:      chunkID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   fullID,
			Choices: []outChatChoice{{Index: 0, Delta: &delta, FinishReason: finish}},
		}
	}

	var streamErr *model.Error
	for ev := range events {
		switch ev.Type {
		case model.EventTextDelta:
			content := ev.Delta
			if werr := sse.WriteData(chunk(outChatDelta{Content: &content}, nil)); werr != nil {
				return
			}
		case model.EventThinkingDelta:
			if !req.Options.CaptureReasoningSummary {
				// Thinking stays in the canonical message; this dialect only
				// surfaces it through the reasoning field when asked.
				continue
			}
			if werr := sse.WriteData(chunk(outChatDelta{ReasoningContent: ev.Delta}, nil)); werr != nil {
				return
			}
		case model.EventToolCallStart:
			toolIndex++
			idx := toolIndex
			delta := outChatDelta{ToolCalls: []outToolCall{{
				Index:    &idx,
				ID:       ev.ToolID,
				Type:     "function",
				Function: outToolFunction{Name: ev.ToolName},
			}}}
			if werr := sse.WriteData(chunk(delta, nil)); werr != nil {
				return
			}
		case model.EventToolCallDelta:
			idx := toolIndex
			delta := outChatDelta{ToolCalls: []outToolCall{{
				Index:    &idx,
				Function: outToolFunction{Arguments: ev.Delta},
			}}}
			if werr := sse.WriteData(chunk(delta, nil)); werr != nil {
				return
			}
		case model.EventToolCallEnd:
			// Block boundaries have no chunk representation.
		case model.EventDone:
			finish := openaiFinishReason(ev.Message.StopReason)
			if werr := sse.WriteData(chunk(outChatDelta{}, &finish)); werr != nil {
				return
			}
			if usage := openaiUsage(ev.Message.Usage); usage != nil {
				usageChunk := outChatResponse{
					ID:      chunkID,
					Object:  "chat.completion.chunk",
					Created: created,
					Model:   ev.Message.Model,
					Choices: []outChatChoice{},
					Usage:   usage,
				}
				if werr := sse.WriteData(usageChunk); werr != nil {
					return
				}
			}
			g.recordUsage(adapter.Name(), fullID, ev.Message.Usage)
			if werr := sse.WriteDone(); werr != nil {
				return
			}
		case model.EventError:
			if ev.Err.Kind == model.ErrMalformedEvent {
				// Block-level failure; the stream continues.
				g.logger.Warn("malformed upstream event",
					"provider", adapter.Name(), "error", ev.Err.Message)
				continue
			}
			streamErr = ev.Err
			if !sse.Started() {
				writeJSONError(w, ev.Err, openaiError(ev.Err))
				g.recordDispatch(adapter.Name(), fullID, start, ev.Err)
				return
			}
			observability.StreamErrorsTotal.WithLabelValues(adapter.Name(), string(ev.Err.Kind)).Inc()
			if werr := sse.WriteData(openaiError(ev.Err)); werr != nil {
				return
			}
		}
	}
	g.recordDispatch(adapter.Name(), fullID, start, errOrNil(streamErr))
}

func errOrNil(e *model.Error) error {
	if e == nil {
		return nil
	}
	return e
}

// recordDispatch updates per-provider request metrics.
func (g *Gateway) recordDispatch(providerName, fullID string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = string(model.AsError(err, providerName).Kind)
	}
	observability.ProviderRequestsTotal.WithLabelValues(providerName, fullID, status).Inc()
	observability.ProviderLatency.WithLabelValues(providerName, fullID).Observe(time.Since(start).Seconds())
}

func (g *Gateway) recordUsage(providerName, fullID string, usage *model.Usage) {
	if usage == nil {
		return
	}
	observability.RecordUsage(providerName, fullID, usage.InputTokens, usage.OutputTokens, usage.CacheReadTokens)
}
