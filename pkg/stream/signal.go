package stream

import "github.com/modelrelay/modelrelay/pkg/model"

// BlockKind identifies what kind of content block a signal belongs to.
type BlockKind int

const (
	KindText BlockKind = iota
	KindThinking
	KindToolCall
)

// String returns the kind name for diagnostics.
func (k BlockKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindThinking:
		return "thinking"
	case KindToolCall:
		return "tool_call"
	default:
		return "unknown"
	}
}

// SignalType classifies a provider-native signal after projection onto the
// start/delta/stop model.
type SignalType int

const (
	// SignalBlockStart opens a content block of the given kind and index.
	SignalBlockStart SignalType = iota

	// SignalBlockDelta appends to the open block's accumulator.
	SignalBlockDelta

	// SignalBlockStop closes the open block and finalizes its accumulator.
	SignalBlockStop

	// SignalMessageInfo merges stop reason and usage metadata without
	// changing block state. Providers deliver these at arbitrary points.
	SignalMessageInfo

	// SignalStreamEnd marks successful provider stream termination.
	SignalStreamEnd
)

// Signal is one provider event projected onto the reconstructor's model.
// Adapters populate only the fields relevant to the signal type.
type Signal struct {
	Type  SignalType
	Kind  BlockKind
	Index int

	// ToolID and ToolName accompany a tool-call block start.
	ToolID   string
	ToolName string

	// Text carries a text or thinking delta; Signature carries a thinking
	// continuation-signature fragment (a provider may interleave both in
	// one block, so they accumulate separately); Args carries a raw JSON
	// fragment of tool-call arguments, not guaranteed parseable on its own.
	Text      string
	Signature string
	Args      string

	// StopReason and Usage accompany SignalMessageInfo.
	StopReason model.StopReason
	Usage      *model.Usage
}

// BlockStart builds a start signal for a text or thinking block.
func BlockStart(kind BlockKind, index int) Signal {
	return Signal{Type: SignalBlockStart, Kind: kind, Index: index}
}

// ToolCallStart builds a start signal for a tool-call block.
func ToolCallStart(index int, id, name string) Signal {
	return Signal{Type: SignalBlockStart, Kind: KindToolCall, Index: index, ToolID: id, ToolName: name}
}

// TextDelta builds a delta signal for the open text block.
func TextDelta(index int, text string) Signal {
	return Signal{Type: SignalBlockDelta, Kind: KindText, Index: index, Text: text}
}

// ThinkingDelta builds a delta signal for the open thinking block.
func ThinkingDelta(index int, text, signature string) Signal {
	return Signal{Type: SignalBlockDelta, Kind: KindThinking, Index: index, Text: text, Signature: signature}
}

// ArgsDelta builds a delta signal carrying a tool-call argument fragment.
func ArgsDelta(index int, fragment string) Signal {
	return Signal{Type: SignalBlockDelta, Kind: KindToolCall, Index: index, Args: fragment}
}

// BlockStop builds a stop signal for the open block.
func BlockStop(index int) Signal {
	return Signal{Type: SignalBlockStop, Index: index}
}

// MessageInfo builds a metadata signal. Either field may be zero.
func MessageInfo(reason model.StopReason, usage *model.Usage) Signal {
	return Signal{Type: SignalMessageInfo, StopReason: reason, Usage: usage}
}

// StreamEnd builds the terminal success signal.
func StreamEnd() Signal {
	return Signal{Type: SignalStreamEnd}
}
