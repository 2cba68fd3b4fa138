package anthropic

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelrelay/modelrelay/pkg/model"
	"github.com/modelrelay/modelrelay/pkg/stream"
)

// collectStream runs parseStream over an SSE transcript and collects the
// canonical events.
func collectStream(t *testing.T, transcript string) []model.StreamEvent {
	t.Helper()
	rec := stream.New(stream.Config{Provider: "anthropic", Model: "anthropic/claude-sonnet-4"})
	ch := make(chan model.StreamEvent, 64)
	go func() {
		defer close(ch)
		parseStream(context.Background(), strings.NewReader(transcript), rec, ch)
	}()
	var events []model.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func sse(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestParseStreamThinkingAndToolCall(t *testing.T) {
	transcript := sse(
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_01","usage":{"input_tokens":12}}}`,
		``,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"thinking"}}`,
		``,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"user wants weather"}}`,
		``,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig-xyz"}}`,
		``,
		`data: {"type":"content_block_stop","index":0}`,
		``,
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_01","name":"get_weather"}}`,
		``,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
		``,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"oslo\"}"}}`,
		``,
		`data: {"type":"content_block_stop","index":1}`,
		``,
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":30}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	)

	events := collectStream(t, transcript)

	wantTypes := []model.StreamEventType{
		model.EventThinkingDelta,
		model.EventToolCallStart,
		model.EventToolCallDelta,
		model.EventToolCallDelta,
		model.EventToolCallEnd,
		model.EventDone,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(wantTypes), events)
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event[%d].Type = %q, want %q", i, events[i].Type, want)
		}
	}

	end := events[4]
	if end.ToolCall == nil || end.ToolCall.ID != "toolu_01" {
		t.Fatalf("tool_call_end = %+v", end.ToolCall)
	}
	if string(end.ToolCall.Arguments) != `{"city":"oslo"}` {
		t.Errorf("arguments = %s", end.ToolCall.Arguments)
	}

	msg := events[5].Message
	if msg == nil {
		t.Fatal("done event without message")
	}
	if len(msg.Content) != 2 {
		t.Fatalf("assembled block count = %d, want 2", len(msg.Content))
	}
	if msg.Content[0].Type != model.BlockThinking ||
		msg.Content[0].Text != "user wants weather" ||
		msg.Content[0].Signature != "sig-xyz" {
		t.Errorf("block[0] = %+v", msg.Content[0])
	}
	if msg.Content[1].Type != model.BlockToolCall {
		t.Errorf("block[1] = %+v", msg.Content[1])
	}
	if msg.StopReason != model.StopToolUse {
		t.Errorf("StopReason = %q, want tool_use", msg.StopReason)
	}
	if msg.Usage == nil || msg.Usage.InputTokens != 12 || msg.Usage.OutputTokens != 30 || msg.Usage.TotalTokens != 42 {
		t.Errorf("Usage = %+v", msg.Usage)
	}
	if msg.Model != "anthropic/claude-sonnet-4" {
		t.Errorf("Model = %q", msg.Model)
	}
}

func TestParseStreamTextOnly(t *testing.T) {
	transcript := sse(
		`data: {"type":"message_start","message":{"usage":{"input_tokens":5}}}`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`,
		`data: {"type":"message_stop"}`,
	)

	events := collectStream(t, transcript)
	if len(events) != 3 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].Delta != "Hel" || events[1].Delta != "lo" {
		t.Errorf("deltas = %q, %q", events[0].Delta, events[1].Delta)
	}
	msg := events[2].Message
	if msg.TextContent() != "Hello" {
		t.Errorf("TextContent = %q, want Hello", msg.TextContent())
	}
	if msg.StopReason != model.StopEnd {
		t.Errorf("StopReason = %q", msg.StopReason)
	}
}

func TestParseStreamUnknownBlockKindSkipped(t *testing.T) {
	transcript := sse(
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"web_search_result"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"ignored"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"text"}}`,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"kept"}}`,
		`data: {"type":"content_block_stop","index":1}`,
		`data: {"type":"message_stop"}`,
	)

	events := collectStream(t, transcript)
	if len(events) != 2 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].Delta != "kept" {
		t.Errorf("delta = %q, want kept", events[0].Delta)
	}
	if events[1].Type != model.EventDone {
		t.Errorf("terminal = %q, want done", events[1].Type)
	}
}

func TestParseStreamDeltaWithoutBlockIsFatal(t *testing.T) {
	transcript := sse(
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"orphan"}}`,
	)

	events := collectStream(t, transcript)
	if len(events) != 1 || events[0].Type != model.EventError {
		t.Fatalf("events = %+v, want single terminal error", events)
	}
	if events[0].Err.Kind != model.ErrProtocolViolation {
		t.Errorf("Kind = %q, want protocol_violation", events[0].Err.Kind)
	}
}

func TestParseStreamTruncatedWithoutMessageStop(t *testing.T) {
	transcript := sse(
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}`,
	)

	events := collectStream(t, transcript)
	if len(events) == 0 {
		t.Fatal("no events")
	}
	last := events[len(events)-1]
	if last.Type != model.EventError || last.Err.Kind != model.ErrProtocolViolation {
		t.Errorf("terminal = %+v, want protocol_violation error", last)
	}
	// The partial text delta was already forwarded; it is never retracted.
	if events[0].Type != model.EventTextDelta || events[0].Delta != "partial" {
		t.Errorf("event[0] = %+v", events[0])
	}
}

func TestParseStreamUpstreamErrorEvent(t *testing.T) {
	transcript := sse(
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
	)

	events := collectStream(t, transcript)
	if len(events) != 1 || events[0].Type != model.EventError {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Err.Kind != model.ErrUpstream {
		t.Errorf("Kind = %q, want upstream_error", events[0].Err.Kind)
	}
	if !strings.Contains(events[0].Err.Message, "overloaded_error") {
		t.Errorf("Message = %q", events[0].Err.Message)
	}
}

func TestParseStreamMalformedPayloadNonFatal(t *testing.T) {
	transcript := sse(
		`data: {not json`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"ok"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_stop"}`,
	)

	events := collectStream(t, transcript)
	if len(events) != 3 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].Type != model.EventError || events[0].Err.Kind != model.ErrMalformedEvent {
		t.Errorf("event[0] = %+v, want malformed_event error", events[0])
	}
	if events[2].Type != model.EventDone {
		t.Errorf("terminal = %q, want done", events[2].Type)
	}
}

func TestParseStreamCancelUnblocksStalledConsumer(t *testing.T) {
	lines := []string{
		`data: {"type":"message_start","message":{"usage":{"input_tokens":3}}}`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
	}
	for i := 0; i < 200; i++ {
		lines = append(lines, `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"x"}}`)
	}
	lines = append(lines,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_stop"}`,
	)

	ctx, cancel := context.WithCancel(context.Background())
	rec := stream.New(stream.Config{Provider: "anthropic", Model: "anthropic/claude-sonnet-4-5"})
	ch := make(chan model.StreamEvent) // unbuffered, like a consumer that stopped draining

	done := make(chan struct{})
	go func() {
		defer close(done)
		parseStream(ctx, strings.NewReader(sse(lines...)), rec, ch)
	}()

	<-ch // take one event, then abandon the channel
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked on channel send after cancellation")
	}
}
