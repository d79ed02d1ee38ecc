package link

import (
	"sync/atomic"

	"github.com/ventosilenzioso/raknet-core/pkg/raknet"
)

// Packet is any of the three decoded connected packet kinds a Router
// dispatches on.
type Packet interface{ isConnectedPacket() }

// FrameSetPacket wraps a decoded FrameSet for Router.Deliver.
type FrameSetPacket struct{ FrameSet *raknet.FrameSet }

func (FrameSetPacket) isConnectedPacket() {}

// AckPacket wraps a decoded ACK for Router.Deliver. Reactor may be nil if
// the connection never turns waking on.
type AckPacket struct {
	Ack     *raknet.AckOrNack
	Reactor CancelReactor
}

func (AckPacket) isConnectedPacket() {}

// NackPacket wraps a decoded NACK for Router.Deliver.
type NackPacket struct{ Nack *raknet.AckOrNack }

func (NackPacket) isConnectedPacket() {}

// Router is the per-socket demultiplexer: it owns one SharedLink and the
// forwarding channel for a single peer, and drives ACK/NACK bookkeeping on
// every arriving connected packet (SPEC_FULL.md §4.4).
type Router struct {
	link     *SharedLink
	routerTx chan *raknet.FrameSet
	closed   atomic.Bool
	seqRead  raknet.Uint24
}

// NewRouter builds a Router over link, returning it along with the
// channel the per-peer frame decoder reads forwarded frame-sets from.
func NewRouter(link *SharedLink) (*Router, <-chan *raknet.FrameSet) {
	ch := make(chan *raknet.FrameSet, 256)
	return &Router{link: link, routerTx: ch}, ch
}

// Close marks the router's forwarding channel as dropped; subsequent
// Deliver calls for a FrameSet return false so the dispatcher can evict
// the peer.
func (r *Router) Close() {
	if r.closed.CompareAndSwap(false, true) {
		close(r.routerTx)
	}
}

// Deliver routes one decoded connected packet. Returns false if the
// forwarding channel has been closed (the caller should evict the peer);
// a full channel silently drops the frame-set, matching the bounded
// variant described in §4.4 (the peer will retransmit it).
func (r *Router) Deliver(pack Packet) bool {
	switch p := pack.(type) {
	case FrameSetPacket:
		return r.deliverFrameSet(p.FrameSet)
	case AckPacket:
		r.link.IncomingAck(p.Ack, p.Reactor)
	case NackPacket:
		r.link.IncomingNack(p.Nack)
	}
	return true
}

func (r *Router) deliverFrameSet(fs *raknet.FrameSet) bool {
	if r.closed.Load() {
		return false
	}

	// Step 1: ACK every seq_num we have seen, regardless of order.
	r.link.pushOutgoingAck(fs.SeqNum)

	// Steps 2-3: clear this seq_num from the NACK set (it just arrived),
	// then fill every gap between the last contiguous point and it.
	r.link.outMu.Lock()
	delete(r.link.outgoingNack, fs.SeqNum)
	preRead := r.seqRead
	if preRead <= fs.SeqNum {
		r.seqRead = fs.SeqNum.Next()
		for seq := preRead; seq != fs.SeqNum; seq = seq.Next() {
			r.link.outgoingNack[seq] = struct{}{}
		}
	}
	r.link.outMu.Unlock()

	// Step 4: forward on the per-peer channel; a full channel drops the
	// frame-set rather than blocking the router (it will be retransmitted
	// since it was never added to this seq_num's place in outgoing_nack).
	select {
	case r.routerTx <- fs:
	default:
	}
	return true
}
