// Package guard implements OutgoingGuard, the write-side state machine
// described in SPEC_FULL.md §4.5: it drains ACK, NACK, and frame-set
// payload from a connection's SharedLink each cycle, enforces send-buffer
// capacity, assigns sequence numbers, and closes cleanly only once every
// reliable frame it ever sent has been acknowledged.
package guard

import (
	"context"

	"github.com/pkg/errors"

	raknetcore "github.com/ventosilenzioso/raknet-core"
	"github.com/ventosilenzioso/raknet-core/pkg/logger"
	"github.com/ventosilenzioso/raknet-core/pkg/raknet"
	"github.com/ventosilenzioso/raknet-core/source/flush"
	"github.com/ventosilenzioso/raknet-core/source/link"
	"github.com/ventosilenzioso/raknet-core/source/metrics"
	"github.com/ventosilenzioso/raknet-core/source/resend"
	"github.com/ventosilenzioso/raknet-core/source/timer"
)

// ErrBufferFull is returned by StartSend when the caller skipped the
// PollReady/StartSend contract and submitted while at capacity.
var ErrBufferFull = errors.New("raknet: outgoing buffer at capacity")

// OutgoingGuard is owned exclusively by one writer goroutine per
// connection; it is not safe for concurrent use from multiple goroutines
// (SPEC_FULL.md §5).
type OutgoingGuard struct {
	role raknetcore.Role
	peer raknetcore.Peer
	conn raknetcore.ConnID

	buf      *buffer
	resend   *resend.Map
	link     *link.SharedLink
	sink     Sink
	strategy flush.Strategy

	reactor *timer.Reactor[raknetcore.ConnID]

	seqWrite raknet.Uint24
}

// New builds an OutgoingGuard for one connection. capacity bounds how
// many freshly submitted (not retransmitted) frames may sit in the buffer
// at once. strategy is the FlushStrategy every drain cycle runs under;
// pass flush.Default() for the normal always-flush-everything behavior.
func New(role raknetcore.Role, peer raknetcore.Peer, conn raknetcore.ConnID, capacity int64, sharedLink *link.SharedLink, reactor *timer.Reactor[raknetcore.ConnID], sink Sink, strategy flush.Strategy) *OutgoingGuard {
	return &OutgoingGuard{
		role:     role,
		peer:     peer,
		conn:     conn,
		buf:      newBuffer(capacity),
		resend:   resend.NewMap(),
		link:     sharedLink,
		sink:     sink,
		strategy: strategy,
		reactor:  reactor,
	}
}

// PollReady runs the drain cycle and then reports whether the buffer has
// room for another StartSend (invariant I2).
func (g *OutgoingGuard) PollReady(ctx context.Context) (bool, error) {
	if err := g.drain(ctx); err != nil {
		return false, err
	}
	return g.buf.ready(), nil
}

// StartSend pushes frame onto the buffer's front. Batching takes frames
// from the back, so frames already buffered are packed before it. Callers
// must have observed PollReady return true first.
func (g *OutgoingGuard) StartSend(frame *raknet.Frame) error {
	if !g.buf.trySubmit(frame) {
		return ErrBufferFull
	}
	return nil
}

// PollFlush drives the drain cycle to completion and flushes the
// downstream sink.
func (g *OutgoingGuard) PollFlush(ctx context.Context) error {
	if err := g.drain(ctx); err != nil {
		return err
	}
	return g.sink.Flush()
}

// PollClose guarantees at-close delivery of every reliable frame this
// guard ever sent, or an externally imposed cancellation via ctx. It turns
// on ACK-driven waking so the moment the last outstanding ACK arrives, the
// close loop wakes instead of sleeping out the RTO.
func (g *OutgoingGuard) PollClose(ctx context.Context) error {
	g.link.TurnOnWaking()
	defer g.link.TurnOffWaking()

	for {
		if err := g.drain(ctx); err != nil {
			return err
		}
		if err := g.sink.Flush(); err != nil {
			return errors.Wrap(err, "raknet: flush during close")
		}
		if g.resend.IsEmpty() {
			return nil
		}

		deadline, ok := g.resend.EarliestDeadline()
		if !ok {
			continue
		}
		wake := g.reactor.Register(g.conn, deadline)
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OutgoingAckEmpty, OutgoingNackEmpty, and BufferEmpty together satisfy
// flush.Strategy's CheckFlushed predicate.
func (g *OutgoingGuard) OutgoingAckEmpty() bool  { return g.link.OutgoingAckEmpty() }
func (g *OutgoingGuard) OutgoingNackEmpty() bool { return g.link.OutgoingNackEmpty() }
func (g *OutgoingGuard) BufferEmpty() bool       { return g.buf.len() == 0 }

// drain is the try_empty drain cycle (SPEC_FULL.md §4.5 steps 1-6), run
// under this guard's configured flush.Strategy.
func (g *OutgoingGuard) drain(ctx context.Context) error {
	strategy := g.strategy
	// Step 1: absorb ACKs into the resend map; move NACK'd frames back to
	// the buffer front.
	for _, timedAck := range g.link.ProcessAck() {
		g.resend.OnAck(timedAck.Ack)
	}
	for _, nack := range g.link.ProcessNack() {
		g.resend.OnNackInto(nack, g.buf)
	}

	// Step 2: re-queue stale (timed-out) entries.
	g.resend.ProcessStales(g.buf)
	metrics.ResendInflight.WithLabelValues(g.conn.String()).Set(float64(g.resend.Len()))

	// Steps 3-4: flush selected classes at least once, then keep going
	// until the strategy reports every class it covers is empty. A pass
	// always runs even when CheckFlushed already holds, since the
	// unconnected mailbox isn't one of the classes a Strategy tracks but
	// still needs draining on every cycle.
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if strategy.FlushNack() {
			if nack := g.link.ProcessOutgoingNack(g.peer.MTU); nack != nil {
				if err := g.sendPacket(raknet.PackIDNack, nack); err != nil {
					return err
				}
				strategy.MarkFlushedNack()
			}
		}
		if strategy.FlushAck() {
			if ack := g.link.ProcessOutgoingAck(g.peer.MTU); ack != nil {
				if err := g.sendPacket(raknet.PackIDAck, ack); err != nil {
					return err
				}
				strategy.MarkFlushedAck()
			}
		}
		if strategy.FlushPack() {
			if packet, ok := g.link.ProcessUnconnected(); ok {
				if err := g.sink.Send(packet); err != nil {
					return errors.Wrap(err, "raknet: send unconnected packet")
				}
			}
			hadFrames := !g.BufferEmpty()
			if err := g.packAndSend(); err != nil {
				return err
			}
			if hadFrames {
				strategy.MarkFlushedPack()
			}
		}

		// The unconnected mailbox isn't one of the classes a Strategy
		// tracks, so CheckFlushed alone isn't sufficient to end the loop —
		// it's ANDed with an explicit check that nothing queued there is
		// left either.
		if strategy.CheckFlushed(g) && !g.hasUnconnected() {
			break
		}
	}
	return nil
}

func (g *OutgoingGuard) hasUnconnected() bool { return !g.link.UnconnectedEmpty() }

func (g *OutgoingGuard) sendPacket(id raknet.PackID, body *raknet.AckOrNack) error {
	buf := append([]byte{byte(id)}, body.Encode(nil)...)
	if err := g.sink.Send(buf); err != nil {
		return errors.Wrapf(err, "raknet: send %s", packetName(id))
	}
	return nil
}

func packetName(id raknet.PackID) string {
	switch id {
	case raknet.PackIDAck:
		return "ack"
	case raknet.PackIDNack:
		return "nack"
	default:
		return "frameset"
	}
}

// packAndSend packs at most one frame-set from the buffer's back and
// dispatches it (SPEC_FULL.md §4.5 step 5-6). A no-op if the buffer is
// empty.
func (g *OutgoingGuard) packAndSend() error {
	budget := int(g.peer.MTU) - raknet.FrameSetHeaderSize
	frames := g.buf.packUnder(budget)
	if len(frames) == 0 {
		return nil
	}

	fs := &raknet.FrameSet{SeqNum: g.seqWrite, Frames: frames}
	if err := g.sink.Send(fs.Encode(nil)); err != nil {
		return errors.Wrap(err, "raknet: send frame-set")
	}

	if anyReliable(frames) {
		g.resend.Record(g.seqWrite, frames)
	}

	logger.WithFields(logger.Fields{
		"conn":  g.conn.String(),
		"addr":  g.peer.Addr.String(),
		"mtu":   g.peer.MTU,
		"trace": g.conn.Trace.String(),
	}).Debugf("[%s] sent frame-set seq=%d frames=%d", g.role, uint32(g.seqWrite), len(frames))

	g.seqWrite = g.seqWrite.Next()
	return nil
}

func anyReliable(frames []*raknet.Frame) bool {
	for _, f := range frames {
		rel, err := f.Flags.Reliability()
		if err == nil && rel.IsReliable() {
			return true
		}
	}
	return false
}
