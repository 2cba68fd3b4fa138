package google

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

const maxScanTokenSize = 1 << 20

// parseStream reads streamGenerateContent SSE chunks from body, projects
// them onto reconstructor signals, and sends the canonical events on ch.
// The channel is NOT closed here; the caller closes it.
//
// The protocol has no terminal sentinel: the last chunk carries the
// finishReason and the connection closes. Function calls arrive as complete
// snapshots, so each is projected as a synthesized start/delta/stop triple.
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

		var chunk generateResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk",
				"provider", "google",
				"error", err.Error(),
				"data", credentials.SanitizeAPIError(payload),
			)
			d.send(model.StreamEvent{Type: model.EventError, Err: model.NewMalformedEventError(
				"google", "unparseable SSE chunk payload")})
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
		d.emit(d.rec.Fail(provider.ClassifyNetworkError("google", err)))
		return
	}
	d.finish()
}

// streamDriver tracks the synthesized open block across chunks.
type streamDriver struct {
	ctx context.Context
	rec *stream.Reconstructor
	ch  chan<- model.StreamEvent

	nextIndex int

	hasOpen   bool
	openKind  stream.BlockKind
	openIndex int

	// sawToolCall upgrades a STOP finish to tool_use; the API reports STOP
	// even when the turn ends on a function call.
	sawToolCall bool
}

func newStreamDriver(ctx context.Context, rec *stream.Reconstructor, ch chan<- model.StreamEvent) *streamDriver {
	return &streamDriver{ctx: ctx, rec: rec, ch: ch}
}

func (d *streamDriver) handleChunk(chunk *generateResponse) bool {
	if chunk.Error != nil {
		d.emit(d.rec.Fail(model.NewUpstreamError("google", chunk.Error.Code,
			fmt.Sprintf("%s: %s", chunk.Error.Status, credentials.SanitizeAPIError(chunk.Error.Message)))))
		return true
	}

	if len(chunk.Candidates) > 0 {
		candidate := chunk.Candidates[0]
		if candidate.Content != nil {
			for i := range candidate.Content.Parts {
				if d.handlePart(&candidate.Content.Parts[i]) {
					return true
				}
			}
		}
		if candidate.FinishReason != "" {
			if d.closeOpen() {
				return true
			}
			reason := mapFinishReason(candidate.FinishReason)
			if reason == model.StopEnd && d.sawToolCall {
				reason = model.StopToolUse
			}
			if d.push(stream.MessageInfo(reason, nil)) {
				return true
			}
		}
	}

	if chunk.UsageMetadata != nil {
		return d.push(stream.MessageInfo("", convertUsage(chunk.UsageMetadata)))
	}
	return false
}

func (d *streamDriver) handlePart(part *wirePart) bool {
	switch {
	case part.FunctionCall != nil:
		// Complete snapshot: synthesize the whole block.
		d.sawToolCall = true
		if d.closeOpen() {
			return true
		}
		idx := d.nextIndex
		d.nextIndex++
		call := part.FunctionCall
		if d.push(stream.ToolCallStart(idx, newCallID(call.Name), call.Name)) {
			return true
		}
		if d.push(stream.ArgsDelta(idx, string(callArgs(call)))) {
			return true
		}
		return d.push(stream.BlockStop(idx))

	case part.Thought:
		idx, done := d.ensureBlock(stream.KindThinking)
		if done {
			return true
		}
		return d.push(stream.ThinkingDelta(idx, part.Text, part.ThoughtSignature))

	case part.Text != "":
		idx, done := d.ensureBlock(stream.KindText)
		if done {
			return true
		}
		return d.push(stream.TextDelta(idx, part.Text))

	default:
		return false
	}
}

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

// finish handles clean connection close.
func (d *streamDriver) finish() {
	if d.rec.Closed() {
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
