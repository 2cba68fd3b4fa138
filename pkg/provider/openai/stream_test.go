package openai

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelrelay/modelrelay/pkg/model"
	"github.com/modelrelay/modelrelay/pkg/stream"
)

func collectStream(t *testing.T, transcript string, normalizeThink bool) []model.StreamEvent {
	t.Helper()
	rec := stream.New(stream.Config{Provider: "openai", Model: "openai/gpt-5"})
	ch := make(chan model.StreamEvent, 64)
	d := newStreamDriver(context.Background(), rec, ch, "openai", normalizeThink)
	go func() {
		defer close(ch)
		parseStream(context.Background(), strings.NewReader(transcript), d)
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

func TestParseStreamTextAndUsage(t *testing.T) {
	transcript := sse(
		`data: {"choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"Hel"},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`data: {"choices":[],"usage":{"prompt_tokens":9,"completion_tokens":2,"total_tokens":11}}`,
		`data: [DONE]`,
	)

	events := collectStream(t, transcript, false)
	if len(events) != 3 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].Delta != "Hel" || events[1].Delta != "lo" {
		t.Errorf("deltas = %q, %q", events[0].Delta, events[1].Delta)
	}
	msg := events[2].Message
	if msg == nil || msg.TextContent() != "Hello" {
		t.Fatalf("done message = %+v", msg)
	}
	if msg.StopReason != model.StopEnd {
		t.Errorf("StopReason = %q", msg.StopReason)
	}
	if msg.Usage == nil || msg.Usage.TotalTokens != 11 {
		t.Errorf("Usage = %+v", msg.Usage)
	}
}

func TestParseStreamMultiplexedToolCalls(t *testing.T) {
	transcript := sse(
		`data: {"choices":[{"index":0,"delta":{"content":"Checking."},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"get_weather","arguments":""}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":\"oslo\"}"}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"get_time","arguments":"{}"}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	)

	events := collectStream(t, transcript, false)

	wantTypes := []model.StreamEventType{
		model.EventTextDelta,
		model.EventToolCallStart,
		model.EventToolCallDelta,
		model.EventToolCallEnd, // call_a closed by the index switch
		model.EventToolCallStart,
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

	if events[3].ToolCall.ID != "call_a" || string(events[3].ToolCall.Arguments) != `{"city":"oslo"}` {
		t.Errorf("first call = %+v", events[3].ToolCall)
	}
	if events[6].ToolCall.ID != "call_b" {
		t.Errorf("second call = %+v", events[6].ToolCall)
	}

	msg := events[7].Message
	if len(msg.Content) != 3 {
		t.Fatalf("assembled blocks = %+v", msg.Content)
	}
	// Text closed before the first tool call; stop order is preserved.
	if msg.Content[0].Type != model.BlockText ||
		msg.Content[1].Type != model.BlockToolCall ||
		msg.Content[2].Type != model.BlockToolCall {
		t.Errorf("block order = %v, %v, %v", msg.Content[0].Type, msg.Content[1].Type, msg.Content[2].Type)
	}
	if msg.StopReason != model.StopToolUse {
		t.Errorf("StopReason = %q", msg.StopReason)
	}
}

func TestParseStreamReasoningContent(t *testing.T) {
	transcript := sse(
		`data: {"choices":[{"index":0,"delta":{"reasoning_content":"thinking hard"},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"Answer."},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	)

	events := collectStream(t, transcript, false)
	if len(events) != 3 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].Type != model.EventThinkingDelta || events[0].Delta != "thinking hard" {
		t.Errorf("event[0] = %+v", events[0])
	}
	msg := events[2].Message
	if len(msg.Content) != 2 || msg.Content[0].Type != model.BlockThinking || msg.Content[1].Type != model.BlockText {
		t.Errorf("blocks = %+v", msg.Content)
	}
}

func TestParseStreamThinkTagNormalization(t *testing.T) {
	// The open tag is split across two deltas.
	transcript := sse(
		`data: {"choices":[{"index":0,"delta":{"content":"<thi"},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"nk>pondering</think>Result"},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	)

	events := collectStream(t, transcript, true)

	var thinking, text string
	for _, ev := range events {
		switch ev.Type {
		case model.EventThinkingDelta:
			thinking += ev.Delta
		case model.EventTextDelta:
			text += ev.Delta
		}
	}
	if thinking != "pondering" {
		t.Errorf("thinking = %q, want pondering", thinking)
	}
	if text != "Result" {
		t.Errorf("text = %q, want Result", text)
	}

	msg := events[len(events)-1].Message
	if msg == nil || len(msg.Content) != 2 {
		t.Fatalf("assembled message = %+v", msg)
	}
	if msg.Content[0].Type != model.BlockThinking || msg.Content[0].Text != "pondering" {
		t.Errorf("block[0] = %+v", msg.Content[0])
	}
	if msg.Content[1].Type != model.BlockText || msg.Content[1].Text != "Result" {
		t.Errorf("block[1] = %+v", msg.Content[1])
	}
}

func TestParseStreamTruncatedWithoutDone(t *testing.T) {
	transcript := sse(
		`data: {"choices":[{"index":0,"delta":{"content":"partial"},"finish_reason":null}]}`,
	)

	events := collectStream(t, transcript, false)
	last := events[len(events)-1]
	if last.Type != model.EventError || last.Err.Kind != model.ErrProtocolViolation {
		t.Errorf("terminal = %+v, want protocol_violation", last)
	}
}

func TestParseStreamRepairsTruncatedToolArguments(t *testing.T) {
	transcript := sse(
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"get_weather","arguments":"{\"city\":\"oslo\""}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	)

	events := collectStream(t, transcript, false)

	var end *model.StreamEvent
	for i := range events {
		if events[i].Type == model.EventToolCallEnd {
			end = &events[i]
		}
	}
	if end == nil {
		t.Fatalf("no tool_call_end in %+v", events)
	}
	if string(end.ToolCall.Arguments) != `{"city":"oslo"}` {
		t.Errorf("repaired arguments = %s", end.ToolCall.Arguments)
	}
}

func TestParseStreamCancelUnblocksStalledConsumer(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, `data: {"choices":[{"index":0,"delta":{"content":"x"},"finish_reason":null}]}`)
	}
	lines = append(lines, `data: [DONE]`)

	ctx, cancel := context.WithCancel(context.Background())
	rec := stream.New(stream.Config{Provider: "openai", Model: "openai/gpt-5"})
	ch := make(chan model.StreamEvent) // unbuffered, like a consumer that stopped draining
	d := newStreamDriver(ctx, rec, ch, "openai", false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		parseStream(ctx, strings.NewReader(sse(lines...)), d)
	}()

	<-ch // take one event, then abandon the channel
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked on channel send after cancellation")
	}
}
