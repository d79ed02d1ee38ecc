// Package flush implements the FlushStrategy described in SPEC_FULL.md
// §4.6: a per-drain-cycle scalar selecting which of {ACK, NACK, payload}
// the cycle is allowed to emit, plus the counters that record what it
// actually flushed. The original carries this through a task-local
// extension context; this core passes it as an explicit parameter into
// OutgoingGuard's drain cycle instead.
package flush

import "github.com/ventosilenzioso/raknet-core/source/metrics"

// Strategy selects which sub-queues a single drain cycle may empty. The
// zero value permits no class, the same as Only(false, false, false);
// construct with Default() or Only(...).
type Strategy struct {
	flushAck  bool
	flushNack bool
	flushPack bool
}

// Default permits all three classes, the behavior a drain cycle uses
// unless a test or specialized scheduler overrides it.
func Default() Strategy {
	return Strategy{flushAck: true, flushNack: true, flushPack: true}
}

// Only builds a strategy permitting exactly the classes passed true, for
// tests that force a partial flush (e.g. "flush only ACKs right now").
func Only(ack, nack, pack bool) Strategy {
	return Strategy{flushAck: ack, flushNack: nack, flushPack: pack}
}

// FlushAck reports whether this cycle may emit a pending ACK.
func (s Strategy) FlushAck() bool { return s.flushAck }

// FlushNack reports whether this cycle may emit a pending NACK.
func (s Strategy) FlushNack() bool { return s.flushNack }

// FlushPack reports whether this cycle may pack and send one frame-set.
func (s Strategy) FlushPack() bool { return s.flushPack }

// emptyChecker is satisfied by the pieces of a connection's outgoing state
// CheckFlushed inspects: SharedLink's ack/nack staging and the outgoing
// buffer.
type emptyChecker interface {
	OutgoingAckEmpty() bool
	OutgoingNackEmpty() bool
	BufferEmpty() bool
}

// CheckFlushed decides whether the drain loop may terminate: every buffer
// this strategy was permitted to drain must now be empty. A class the
// strategy never selected does not block termination.
func (s Strategy) CheckFlushed(link emptyChecker) bool {
	if s.flushAck && !link.OutgoingAckEmpty() {
		return false
	}
	if s.flushNack && !link.OutgoingNackEmpty() {
		return false
	}
	if s.flushPack && !link.BufferEmpty() {
		return false
	}
	return true
}

// MarkFlushedAck records that this cycle emitted an ACK.
func (s Strategy) MarkFlushedAck() {
	metrics.FlushTotal.WithLabelValues("ack").Inc()
}

// MarkFlushedNack records that this cycle emitted a NACK.
func (s Strategy) MarkFlushedNack() {
	metrics.FlushTotal.WithLabelValues("nack").Inc()
}

// MarkFlushedPack records that this cycle packed and sent a frame-set.
func (s Strategy) MarkFlushedPack() {
	metrics.FlushTotal.WithLabelValues("pack").Inc()
}
