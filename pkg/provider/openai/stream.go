package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/modelrelay/modelrelay/pkg/credentials"
	"github.com/modelrelay/modelrelay/pkg/model"
	"github.com/modelrelay/modelrelay/pkg/provider"
	"github.com/modelrelay/modelrelay/pkg/stream"
)

const maxScanTokenSize = 1 << 20

// parseStream reads Chat Completions SSE chunks from body, projects them
// onto reconstructor signals, and sends the canonical events on ch. The
// channel is NOT closed here; the caller closes it.
//
// The chunk protocol multiplexes block kinds on one delta object instead of
// framing blocks explicitly, so the driver synthesizes block boundaries: a
// delta of a different kind than the open block closes it and opens the
// next. Tool calls are keyed by their wire index.
func parseStream(ctx context.Context, body io.Reader, d *streamDriver) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		if payload == "[DONE]" {
			d.finish()
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk",
				"provider", d.name,
				"error", err.Error(),
				"data", credentials.SanitizeAPIError(payload),
			)
			d.send(model.StreamEvent{Type: model.EventError, Err: model.NewMalformedEventError(
				d.name, "unparseable SSE chunk payload")})
			continue
		}

		if done := d.handleChunk(&chunk); done {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.emit(d.rec.Fail(provider.ClassifyNetworkError(d.name, err)))
	} else if !d.rec.Closed() {
		d.emit(d.rec.Fail(model.NewProtocolViolationError("stream ended without [DONE]")))
	}
}

// streamDriver tracks which synthesized block is open across chunks.
type streamDriver struct {
	ctx  context.Context
	rec  *stream.Reconstructor
	ch   chan<- model.StreamEvent
	name string

	// norm is non-nil when inline <think> markers should be rerouted.
	norm *stream.ThinkNormalizer

	nextIndex int

	hasOpen     bool
	openKind    stream.BlockKind
	openIndex   int
	openToolIdx int
}

func newStreamDriver(ctx context.Context, rec *stream.Reconstructor, ch chan<- model.StreamEvent, name string, normalizeThink bool) *streamDriver {
	d := &streamDriver{ctx: ctx, rec: rec, ch: ch, name: name}
	if normalizeThink {
		d.norm = &stream.ThinkNormalizer{}
	}
	return d
}

// handleChunk processes one decoded chunk. Returns true when the machine
// closed on a fatal error.
func (d *streamDriver) handleChunk(chunk *chatChunk) bool {
	if len(chunk.Choices) == 0 {
		// Usage-only final chunk (stream_options.include_usage).
		if chunk.Usage != nil {
			return d.push(stream.MessageInfo("", convertUsage(chunk.Usage)))
		}
		return false
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	if rc := delta.ReasoningContent; rc != nil && *rc != "" {
		idx, done := d.ensureBlock(stream.KindThinking)
		if done {
			return true
		}
		if d.push(stream.ThinkingDelta(idx, *rc, "")) {
			return true
		}
	}

	if c := delta.Content; c != nil && *c != "" {
		if d.norm != nil {
			if d.feedSpans(d.norm.Feed(*c)) {
				return true
			}
		} else {
			idx, done := d.ensureBlock(stream.KindText)
			if done {
				return true
			}
			if d.push(stream.TextDelta(idx, *c)) {
				return true
			}
		}
	}

	for i := range delta.ToolCalls {
		if d.handleToolDelta(&delta.ToolCalls[i]) {
			return true
		}
	}

	if choice.FinishReason != nil {
		if d.norm != nil && d.feedSpans(d.norm.Flush()) {
			return true
		}
		if d.closeOpen() {
			return true
		}
		var usage *model.Usage
		if chunk.Usage != nil {
			usage = convertUsage(chunk.Usage)
		}
		return d.push(stream.MessageInfo(mapFinishReason(*choice.FinishReason), usage))
	}

	if chunk.Usage != nil {
		return d.push(stream.MessageInfo("", convertUsage(chunk.Usage)))
	}
	return false
}

// handleToolDelta routes one tool-call fragment. A fragment for a new wire
// index closes the open block and starts the next tool block; the protocol
// emits tool calls sequentially, so a closed index never resumes.
func (d *streamDriver) handleToolDelta(tc *chatToolCall) bool {
	wireIdx := 0
	if tc.Index != nil {
		wireIdx = *tc.Index
	}

	if !d.hasOpen || d.openKind != stream.KindToolCall || d.openToolIdx != wireIdx {
		if d.closeOpen() {
			return true
		}
		id := tc.ID
		if id == "" {
			id = model.NewToolCallID()
		}
		idx := d.nextIndex
		d.nextIndex++
		if d.push(stream.ToolCallStart(idx, id, tc.Function.Name)) {
			return true
		}
		d.hasOpen = true
		d.openKind = stream.KindToolCall
		d.openIndex = idx
		d.openToolIdx = wireIdx
	}

	if tc.Function.Arguments != "" {
		return d.push(stream.ArgsDelta(d.openIndex, tc.Function.Arguments))
	}
	return false
}

// feedSpans routes normalized spans to text or thinking blocks.
func (d *streamDriver) feedSpans(spans []stream.Span) bool {
	for _, span := range spans {
		kind := stream.KindText
		if span.Thinking {
			kind = stream.KindThinking
		}
		idx, done := d.ensureBlock(kind)
		if done {
			return true
		}
		var sig stream.Signal
		if span.Thinking {
			sig = stream.ThinkingDelta(idx, span.Text, "")
		} else {
			sig = stream.TextDelta(idx, span.Text)
		}
		if d.push(sig) {
			return true
		}
	}
	return false
}

// ensureBlock returns the index of an open block of the given kind, closing
// and opening blocks as needed. The second result is true when a push failed
// fatally.
func (d *streamDriver) ensureBlock(kind stream.BlockKind) (int, bool) {
	if d.hasOpen && d.openKind == kind {
		return d.openIndex, false
	}
	if d.closeOpen() {
		return 0, true
	}
	idx := d.nextIndex
	d.nextIndex++
	if d.push(stream.BlockStart(kind, idx)) {
		return 0, true
	}
	d.hasOpen = true
	d.openKind = kind
	d.openIndex = idx
	return idx, false
}

func (d *streamDriver) closeOpen() bool {
	if !d.hasOpen {
		return false
	}
	idx := d.openIndex
	d.hasOpen = false
	return d.push(stream.BlockStop(idx))
}

// finish handles the [DONE] sentinel.
func (d *streamDriver) finish() {
	if d.rec.Closed() {
		return
	}
	if d.norm != nil && d.feedSpans(d.norm.Flush()) {
		return
	}
	if d.closeOpen() {
		return
	}
	d.push(stream.StreamEnd())
}

func (d *streamDriver) push(sig stream.Signal) bool {
	events, err := d.rec.Push(sig)
	d.emit(events)
	return err != nil || d.rec.Closed()
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
