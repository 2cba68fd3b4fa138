package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/modelrelay/modelrelay/pkg/credentials"
	"github.com/modelrelay/modelrelay/pkg/model"
	"github.com/modelrelay/modelrelay/pkg/provider"
	"github.com/modelrelay/modelrelay/pkg/stream"
)

// maxScanTokenSize bounds a single SSE line. Thinking deltas stay small, but
// tool argument fragments can run long.
const maxScanTokenSize = 1 << 20

// parseStream reads Messages SSE events from body, projects them onto
// reconstructor signals, and sends the resulting canonical events on ch.
// The channel is NOT closed here; the caller closes it.
func parseStream(ctx context.Context, body io.Reader, rec *stream.Reconstructor, ch chan<- model.StreamEvent) {
	d := &streamDriver{ctx: ctx, rec: rec, ch: ch, skipped: make(map[int]bool)}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		// Dispatch relies on the type field inside the data payload, so
		// event: lines and comments are skipped.
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			slog.Warn("skipping malformed SSE event",
				"provider", "anthropic",
				"error", err.Error(),
				"data", credentials.SanitizeAPIError(payload),
			)
			d.send(model.StreamEvent{Type: model.EventError, Err: model.NewMalformedEventError(
				"anthropic", "unparseable SSE event payload")})
			continue
		}

		if done := d.handle(&ev); done {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.emit(rec.Fail(provider.ClassifyNetworkError("anthropic", err)))
	} else if !rec.Closed() {
		// EOF without message_stop.
		d.emit(rec.Fail(model.NewProtocolViolationError("stream ended without message_stop")))
	}
}

// streamDriver holds per-stream projection state. The Messages protocol
// already matches the one-open-block model, so projection is mostly a field
// mapping; the only extra state tracks blocks of unknown kind whose deltas
// must be ignored rather than tripping the state machine.
type streamDriver struct {
	ctx     context.Context
	rec     *stream.Reconstructor
	ch      chan<- model.StreamEvent
	skipped map[int]bool
}

// handle processes one decoded event. Returns true when the stream is done
// and reading should stop.
func (d *streamDriver) handle(ev *streamEvent) bool {
	switch ev.Type {
	case "message_start":
		if ev.Message != nil && ev.Message.Usage != nil {
			return d.push(stream.MessageInfo("", streamUsage(ev.Message.Usage)))
		}
		return false

	case "content_block_start":
		return d.handleBlockStart(ev)

	case "content_block_delta":
		return d.handleBlockDelta(ev)

	case "content_block_stop":
		if d.skipped[ev.Index] {
			delete(d.skipped, ev.Index)
			return false
		}
		return d.push(stream.BlockStop(ev.Index))

	case "message_delta":
		var reason model.StopReason
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			reason = mapStopReason(ev.Delta.StopReason)
		}
		return d.push(stream.MessageInfo(reason, streamUsage(ev.Usage)))

	case "message_stop":
		d.push(stream.StreamEnd())
		return true

	case "ping":
		return false

	case "error":
		msg := "upstream stream error"
		if ev.Error != nil {
			msg = fmt.Sprintf("%s: %s", ev.Error.Type, credentials.SanitizeAPIError(ev.Error.Message))
		}
		d.emit(d.rec.Fail(model.NewUpstreamError("anthropic", 0, msg)))
		return true

	default:
		slog.Warn("ignoring unknown stream event type", "provider", "anthropic", "type", ev.Type)
		return false
	}
}

func (d *streamDriver) handleBlockStart(ev *streamEvent) bool {
	if ev.ContentBlock == nil {
		return d.pushFatal(model.NewMalformedEventError("anthropic", "content_block_start without content_block"))
	}
	switch ev.ContentBlock.Type {
	case "text":
		return d.push(stream.BlockStart(stream.KindText, ev.Index))
	case "thinking", "redacted_thinking":
		return d.push(stream.BlockStart(stream.KindThinking, ev.Index))
	case "tool_use":
		return d.push(stream.ToolCallStart(ev.Index, ev.ContentBlock.ID, ev.ContentBlock.Name))
	default:
		slog.Warn("ignoring content block of unknown type",
			"provider", "anthropic",
			"type", ev.ContentBlock.Type,
			"index", ev.Index,
		)
		d.skipped[ev.Index] = true
		return false
	}
}

func (d *streamDriver) handleBlockDelta(ev *streamEvent) bool {
	if d.skipped[ev.Index] {
		return false
	}
	if ev.Delta == nil {
		return d.pushFatal(model.NewMalformedEventError("anthropic", "content_block_delta without delta"))
	}
	switch ev.Delta.Type {
	case "text_delta":
		return d.push(stream.TextDelta(ev.Index, ev.Delta.Text))
	case "thinking_delta":
		return d.push(stream.ThinkingDelta(ev.Index, ev.Delta.Thinking, ""))
	case "signature_delta":
		return d.push(stream.ThinkingDelta(ev.Index, "", ev.Delta.Signature))
	case "input_json_delta":
		return d.push(stream.ArgsDelta(ev.Index, ev.Delta.PartialJSON))
	default:
		slog.Warn("ignoring delta of unknown type", "provider", "anthropic", "type", ev.Delta.Type)
		return false
	}
}

// push feeds one signal and forwards its events. Returns true when the
// machine closed (fatal error or stream end).
func (d *streamDriver) push(sig stream.Signal) bool {
	events, err := d.rec.Push(sig)
	d.emit(events)
	return err != nil || d.rec.Closed()
}

func (d *streamDriver) pushFatal(e *model.Error) bool {
	d.emit(d.rec.Fail(e))
	return true
}

// emit forwards events to the consumer. A send blocks when the consumer
// stopped draining; selecting on the context lets cancellation release the
// producer goroutine and, through its deferred close, the response body.
func (d *streamDriver) emit(events []model.StreamEvent) {
	for _, ev := range events {
		select {
		case d.ch <- ev:
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *streamDriver) send(ev model.StreamEvent) {
	select {
	case d.ch <- ev:
	case <-d.ctx.Done():
	}
}

// streamUsage converts a streamed usage fragment. message_start carries the
// input side, message_delta the output side; the total is left unset so the
// reconstructor computes it from the merged counters.
func streamUsage(u *wireUsage) *model.Usage {
	if u == nil {
		return nil
	}
	return &model.Usage{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
	}
}
