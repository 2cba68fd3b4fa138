package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/modelrelay/modelrelay/pkg/model"
)

// DefaultMaxBlockBytes caps a single block's accumulated bytes. Tool-call
// arguments and thinking text have no provider-imposed limit, so the machine
// enforces one instead of growing without bound.
const DefaultMaxBlockBytes = 1 << 20

// Config tunes one Reconstructor instance.
type Config struct {
	// Provider and Model label the assembled message and error events.
	Provider string
	Model    string

	// MaxBlockBytes overrides DefaultMaxBlockBytes when positive.
	MaxBlockBytes int
}

type machineState int

const (
	stateIdle machineState = iota
	stateInBlock
	stateClosed
)

// Reconstructor converts an ordered sequence of provider signals into
// canonical stream events plus one fully assembled assistant message.
// Exactly one block is open at a time; blocks are appended to the message
// in the order they are closed.
//
// Not safe for concurrent use: one instance serves one request, driven by
// whatever delivers that request's provider events.
type Reconstructor struct {
	cfg   Config
	state machineState

	kind      BlockKind
	index     int
	toolID    string
	toolName  string
	text      strings.Builder
	signature strings.Builder
	args      strings.Builder

	content    []model.ContentBlock
	usage      model.Usage
	haveUsage  bool
	stopReason model.StopReason
}

// New creates a Reconstructor in the Idle state.
func New(cfg Config) *Reconstructor {
	if cfg.MaxBlockBytes <= 0 {
		cfg.MaxBlockBytes = DefaultMaxBlockBytes
	}
	return &Reconstructor{cfg: cfg}
}

// Push feeds one signal through the machine and returns the canonical events
// it produces. A non-nil error is fatal: the machine is Closed, partial
// state is discarded, and the returned events end with the terminal error
// event. Block-level failures (unparseable tool arguments) are not fatal;
// they surface as a non-terminal error event and the stream continues.
func (r *Reconstructor) Push(sig Signal) ([]model.StreamEvent, error) {
	if r.state == stateClosed {
		return nil, model.NewProtocolViolationError("signal received after stream close")
	}

	switch sig.Type {
	case SignalBlockStart:
		return r.pushStart(sig)
	case SignalBlockDelta:
		return r.pushDelta(sig)
	case SignalBlockStop:
		return r.pushStop(sig)
	case SignalMessageInfo:
		if sig.StopReason != "" {
			r.stopReason = sig.StopReason
		}
		if sig.Usage != nil {
			r.mergeUsage(sig.Usage)
		}
		return nil, nil
	case SignalStreamEnd:
		return r.pushEnd()
	default:
		return r.fail(model.NewProtocolViolationError(fmt.Sprintf("unknown signal type %d", sig.Type)))
	}
}

// Fail closes the machine on a driver-detected failure (transport drop,
// upstream error status). Partial block state is discarded; the returned
// events carry the terminal error.
func (r *Reconstructor) Fail(err *model.Error) []model.StreamEvent {
	r.state = stateClosed
	r.resetBlock()
	return []model.StreamEvent{{Type: model.EventError, Err: err}}
}

// Closed reports whether the machine accepts no further signals.
func (r *Reconstructor) Closed() bool {
	return r.state == stateClosed
}

func (r *Reconstructor) pushStart(sig Signal) ([]model.StreamEvent, error) {
	if r.state == stateInBlock {
		return r.fail(model.NewProtocolViolationError(fmt.Sprintf(
			"block start for index %d while block %d is open", sig.Index, r.index)))
	}
	r.state = stateInBlock
	r.kind = sig.Kind
	r.index = sig.Index
	r.toolID = sig.ToolID
	r.toolName = sig.ToolName
	r.text.Reset()
	r.signature.Reset()
	r.args.Reset()

	if sig.Kind == KindToolCall {
		return []model.StreamEvent{{
			Type:     model.EventToolCallStart,
			Index:    sig.Index,
			ToolID:   sig.ToolID,
			ToolName: sig.ToolName,
		}}, nil
	}
	return nil, nil
}

func (r *Reconstructor) pushDelta(sig Signal) ([]model.StreamEvent, error) {
	if r.state != stateInBlock {
		return r.fail(model.NewProtocolViolationError(fmt.Sprintf(
			"delta for index %d with no open block", sig.Index)))
	}
	if sig.Index != r.index {
		return r.fail(model.NewProtocolViolationError(fmt.Sprintf(
			"delta for index %d while block %d is open", sig.Index, r.index)))
	}
	if sig.Kind != r.kind {
		return r.fail(model.NewProtocolViolationError(fmt.Sprintf(
			"%s delta for open %s block at index %d", sig.Kind, r.kind, r.index)))
	}

	switch r.kind {
	case KindText:
		r.text.WriteString(sig.Text)
	case KindThinking:
		r.text.WriteString(sig.Text)
		r.signature.WriteString(sig.Signature)
	case KindToolCall:
		r.args.WriteString(sig.Args)
	}

	if r.blockBytes() > r.cfg.MaxBlockBytes {
		return r.fail(model.NewResourceExceededError(fmt.Sprintf(
			"%s block at index %d exceeded %d bytes", r.kind, r.index, r.cfg.MaxBlockBytes)))
	}

	switch r.kind {
	case KindText:
		if sig.Text == "" {
			return nil, nil
		}
		return []model.StreamEvent{{Type: model.EventTextDelta, Delta: sig.Text, Index: r.index}}, nil
	case KindThinking:
		// Signature-only deltas accumulate silently.
		if sig.Text == "" {
			return nil, nil
		}
		return []model.StreamEvent{{Type: model.EventThinkingDelta, Delta: sig.Text, Index: r.index}}, nil
	default:
		if sig.Args == "" {
			return nil, nil
		}
		return []model.StreamEvent{{Type: model.EventToolCallDelta, Delta: sig.Args, Index: r.index}}, nil
	}
}

func (r *Reconstructor) pushStop(sig Signal) ([]model.StreamEvent, error) {
	if r.state != stateInBlock {
		return r.fail(model.NewProtocolViolationError(fmt.Sprintf(
			"block stop for index %d with no open block", sig.Index)))
	}
	if sig.Index != r.index {
		return r.fail(model.NewProtocolViolationError(fmt.Sprintf(
			"block stop for index %d while block %d is open", sig.Index, r.index)))
	}

	defer func() {
		r.state = stateIdle
		r.resetBlock()
	}()

	switch r.kind {
	case KindText:
		if r.text.Len() > 0 {
			r.content = append(r.content, model.TextBlock(r.text.String()))
		}
		return nil, nil
	case KindThinking:
		if r.text.Len() > 0 || r.signature.Len() > 0 {
			r.content = append(r.content, model.ThinkingBlock(r.text.String(), r.signature.String()))
		}
		return nil, nil
	default:
		return r.finishToolCall(), nil
	}
}

// finishToolCall parses the accumulated argument fragments. A parse failure
// aborts the block, not the stream: the provider may still deliver further
// blocks after one broken call.
func (r *Reconstructor) finishToolCall() []model.StreamEvent {
	raw := r.args.String()
	if raw == "" {
		raw = "{}"
	}

	args, err := normalizeArgs(raw)
	if err != nil {
		slog.Warn("discarding tool call with unparseable arguments",
			"provider", r.cfg.Provider,
			"tool", r.toolName,
			"index", r.index,
			"error", err.Error(),
		)
		return []model.StreamEvent{{
			Type:  model.EventError,
			Index: r.index,
			Err: model.NewMalformedEventError(r.cfg.Provider, fmt.Sprintf(
				"tool call %q arguments are not valid JSON: %s", r.toolName, err)),
		}}
	}

	call := model.ToolCall{ID: r.toolID, Name: r.toolName, Arguments: args}
	r.content = append(r.content, model.ToolCallBlock(call))
	return []model.StreamEvent{{
		Type:     model.EventToolCallEnd,
		Index:    r.index,
		ToolCall: &call,
	}}
}

// normalizeArgs validates accumulated fragments as JSON, repairing common
// truncation damage before giving up.
func normalizeArgs(raw string) (json.RawMessage, error) {
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw), nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(repaired)) {
		return nil, fmt.Errorf("repair produced invalid JSON")
	}
	return json.RawMessage(repaired), nil
}

func (r *Reconstructor) pushEnd() ([]model.StreamEvent, error) {
	if r.state == stateInBlock {
		// Provider closed the transport with a block still open. The partial
		// accumulator is discarded, never surfaced as complete content.
		return r.fail(model.NewProtocolViolationError(fmt.Sprintf(
			"stream ended with %s block %d still open", r.kind, r.index)))
	}

	r.state = stateClosed

	reason := r.stopReason
	if reason == "" {
		reason = model.StopEnd
		for _, b := range r.content {
			if b.Type == model.BlockToolCall {
				reason = model.StopToolUse
				break
			}
		}
	}

	msg := &model.Message{
		Role:       model.RoleAssistant,
		Content:    r.content,
		Model:      r.cfg.Model,
		Provider:   r.cfg.Provider,
		StopReason: reason,
	}
	if r.haveUsage {
		u := r.usage
		msg.Usage = &u
	}
	return []model.StreamEvent{{Type: model.EventDone, Message: msg}}, nil
}

func (r *Reconstructor) fail(err *model.Error) ([]model.StreamEvent, error) {
	return r.Fail(err), err
}

func (r *Reconstructor) resetBlock() {
	r.text.Reset()
	r.signature.Reset()
	r.args.Reset()
	r.toolID = ""
	r.toolName = ""
}

func (r *Reconstructor) blockBytes() int {
	return r.text.Len() + r.signature.Len() + r.args.Len()
}

func (r *Reconstructor) mergeUsage(u *model.Usage) {
	r.haveUsage = true
	if u.InputTokens > 0 {
		r.usage.InputTokens = u.InputTokens
	}
	if u.OutputTokens > 0 {
		r.usage.OutputTokens = u.OutputTokens
	}
	if u.CacheReadTokens > 0 {
		r.usage.CacheReadTokens = u.CacheReadTokens
	}
	if u.CacheWriteTokens > 0 {
		r.usage.CacheWriteTokens = u.CacheWriteTokens
	}
	if u.TotalTokens > 0 {
		r.usage.TotalTokens = u.TotalTokens
	} else {
		r.usage.TotalTokens = r.usage.InputTokens + r.usage.OutputTokens +
			r.usage.CacheReadTokens + r.usage.CacheWriteTokens
	}
}
