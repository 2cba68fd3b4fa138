package stream

import "strings"

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// Span is a run of normalized text routed to either the text or the
// thinking channel.
type Span struct {
	Thinking bool
	Text     string
}

// ThinkNormalizer splits a stream of plain-text deltas on inline
// <think>...</think> markers that some OpenAI-compatible backends embed
// instead of a dedicated reasoning field. It is incremental: a tag split
// across two deltas is held back until enough bytes arrive to classify it.
type ThinkNormalizer struct {
	inThink bool
	pending string
}

// Feed consumes one text delta and returns the spans it completes.
func (n *ThinkNormalizer) Feed(delta string) []Span {
	buf := n.pending + delta
	n.pending = ""

	var spans []Span
	for buf != "" {
		tag := thinkOpenTag
		if n.inThink {
			tag = thinkCloseTag
		}

		if i := strings.Index(buf, tag); i >= 0 {
			if i > 0 {
				spans = append(spans, Span{Thinking: n.inThink, Text: buf[:i]})
			}
			n.inThink = !n.inThink
			buf = buf[i+len(tag):]
			continue
		}

		hold := partialTagSuffix(buf, tag)
		if emit := buf[:len(buf)-hold]; emit != "" {
			spans = append(spans, Span{Thinking: n.inThink, Text: emit})
		}
		n.pending = buf[len(buf)-hold:]
		buf = ""
	}
	return spans
}

// Flush releases any held-back bytes. Called at stream end, where a partial
// tag can no longer complete and is emitted literally.
func (n *ThinkNormalizer) Flush() []Span {
	if n.pending == "" {
		return nil
	}
	span := Span{Thinking: n.inThink, Text: n.pending}
	n.pending = ""
	return []Span{span}
}

// partialTagSuffix returns the length of the longest suffix of s that is a
// proper prefix of tag.
func partialTagSuffix(s, tag string) int {
	max := len(tag) - 1
	if len(s) < max {
		max = len(s)
	}
	for l := max; l > 0; l-- {
		if strings.HasPrefix(tag, s[len(s)-l:]) {
			return l
		}
	}
	return 0
}
