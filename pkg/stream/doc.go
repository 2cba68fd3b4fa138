// Package stream implements the per-request state machine that assembles
// complete content blocks from provider-specific incremental signals.
//
// The Reconstructor is a pure state transformer: adapters project their wire
// events onto start/delta/stop signals and feed them in arrival order; the
// machine emits canonical stream events and, at stream end, the fully
// assembled assistant message. It performs no I/O, so any concurrency
// primitive can drive it.
package stream
