// Package link implements the SharedLink and Router described in
// SPEC_FULL.md §4.3/§4.4: the rendezvous structure between a connection's
// read and write halves, and the per-socket demultiplexer that drives
// ACK/NACK bookkeeping on receive.
package link

import (
	"container/heap"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	raknetcore "github.com/ventosilenzioso/raknet-core"
	"github.com/ventosilenzioso/raknet-core/pkg/logger"
	"github.com/ventosilenzioso/raknet-core/pkg/raknet"
	"github.com/ventosilenzioso/raknet-core/source/metrics"
)

// maxAckBuffer bounds incoming_ack/incoming_nack: a malicious or bursty
// peer floods these, not memory, once this cap is hit (§4.3).
const maxAckBuffer = 1024

// TimedAck pairs an incoming ACK with the time it was received. The
// OutgoingGuard passes only Ack on to the resend map; RecvTime is not read
// anywhere in this core.
type TimedAck struct {
	Ack      *raknet.AckOrNack
	RecvTime time.Time
}

// SharedLink is the only legal path by which a connection's read half
// communicates with its write half. Safe for concurrent use.
type SharedLink struct {
	role raknetcore.Role
	peer raknetcore.Peer
	conn raknetcore.ConnID

	inMu         sync.Mutex
	incomingAck  []TimedAck
	incomingNack []*raknet.AckOrNack

	forwardWaking atomic.Bool

	outMu       sync.Mutex
	outgoingAck uint24Heap
	outgoingNack map[raknet.Uint24]struct{}

	unconnected chan []byte
	frameBody   chan raknetcore.FrameBody
}

// NewSharedLink builds a link for one connection.
func NewSharedLink(role raknetcore.Role, peer raknetcore.Peer, conn raknetcore.ConnID) *SharedLink {
	return &SharedLink{
		role:         role,
		peer:         peer,
		conn:         conn,
		outgoingNack: make(map[raknet.Uint24]struct{}),
		unconnected:  make(chan []byte, 64),
		frameBody:    make(chan raknetcore.FrameBody, 64),
	}
}

// TurnOnWaking enables ACK-driven cancellation of resend timers for this
// connection; the close path turns it on so the last outstanding ACK wakes
// the writer immediately instead of waiting out the RTO.
func (l *SharedLink) TurnOnWaking() { l.forwardWaking.Store(true) }

// TurnOffWaking disables ACK-driven timer cancellation.
func (l *SharedLink) TurnOffWaking() { l.forwardWaking.Store(false) }

func (l *SharedLink) shouldWake() bool { return l.forwardWaking.Load() }

// IncomingAck force-pushes an incoming ACK, displacing the oldest queued
// ACK if the bounded queue is full, and — if waking is on — cancels every
// resend timer parked for this connection.
func (l *SharedLink) IncomingAck(ack *raknet.AckOrNack, reactor CancelReactor) {
	item := TimedAck{Ack: ack, RecvTime: time.Now()}

	l.inMu.Lock()
	dropped := forcePush(&l.incomingAck, item, maxAckBuffer)
	l.inMu.Unlock()

	if dropped {
		metrics.IncomingDroppedTotal.WithLabelValues("ack").Inc()
		logger.WithFields(logger.Fields{
			"conn":  l.conn.String(),
			"addr":  l.peer.Addr.String(),
			"mtu":   l.peer.MTU,
			"trace": l.conn.Trace.String(),
		}).Warnf("[%s] discarded oldest queued ack from %s, incoming_ack full", l.role, l.peer)
	}
	if l.shouldWake() && reactor != nil {
		reactor.CancelAll(l.conn)
	}
}

// IncomingNack force-pushes an incoming NACK, displacing the oldest queued
// NACK if the bounded queue is full.
func (l *SharedLink) IncomingNack(nack *raknet.AckOrNack) {
	l.inMu.Lock()
	dropped := forcePush(&l.incomingNack, nack, maxAckBuffer)
	l.inMu.Unlock()

	if dropped {
		metrics.IncomingDroppedTotal.WithLabelValues("nack").Inc()
		logger.WithFields(logger.Fields{
			"conn":  l.conn.String(),
			"addr":  l.peer.Addr.String(),
			"mtu":   l.peer.MTU,
			"trace": l.conn.Trace.String(),
		}).Warnf("[%s] discarded oldest queued nack from %s, incoming_nack full", l.role, l.peer)
	}
}

// CancelReactor is the subset of *timer.Reactor[raknetcore.ConnID] the link
// needs; declared here rather than imported directly so source/link does
// not need to depend on the connID type parameter instantiation choice.
type CancelReactor interface {
	CancelAll(conn raknetcore.ConnID)
}

// forcePush appends item to *queue, dropping the oldest element first if
// the queue is already at cap. Callers hold the queue's mutex. Returns
// true iff an element was dropped.
func forcePush[T any](queue *[]T, item T, limit int) bool {
	dropped := false
	if len(*queue) >= limit {
		*queue = (*queue)[1:]
		dropped = true
	}
	*queue = append(*queue, item)
	return dropped
}

// SendUnconnected queues an unconnected control packet for the write half.
func (l *SharedLink) SendUnconnected(packet []byte) { l.unconnected <- packet }

// SendFrameBody queues a decoded application body for upward delivery.
func (l *SharedLink) SendFrameBody(body raknetcore.FrameBody) { l.frameBody <- body }

// ProcessAck drains every pending incoming ACK.
func (l *SharedLink) ProcessAck() []TimedAck {
	l.inMu.Lock()
	defer l.inMu.Unlock()
	out := l.incomingAck
	l.incomingAck = nil
	return out
}

// ProcessNack drains every pending incoming NACK.
func (l *SharedLink) ProcessNack() []*raknet.AckOrNack {
	l.inMu.Lock()
	defer l.inMu.Unlock()
	out := l.incomingNack
	l.incomingNack = nil
	return out
}

// ProcessUnconnected pops at most one queued unconnected packet.
func (l *SharedLink) ProcessUnconnected() ([]byte, bool) {
	select {
	case p := <-l.unconnected:
		return p, true
	default:
		return nil, false
	}
}

// ProcessFrameBody pops at most one queued decoded frame body.
func (l *SharedLink) ProcessFrameBody() (raknetcore.FrameBody, bool) {
	select {
	case b := <-l.frameBody:
		return b, true
	default:
		return nil, false
	}
}

// pushOutgoingAck records seqNum as needing to be acknowledged. Called by
// Router.Deliver on every arriving frame-set, including duplicates (they
// collapse at egress packing time).
func (l *SharedLink) pushOutgoingAck(seqNum raknet.Uint24) {
	l.outMu.Lock()
	heap.Push(&l.outgoingAck, seqNum)
	l.outMu.Unlock()
}

// ProcessOutgoingAck packs the outstanding outgoing ACKs into a wire-ready
// AckOrNack bounded by mtu, consuming only what fit.
func (l *SharedLink) ProcessOutgoingAck(mtu uint16) *raknet.AckOrNack {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	return raknet.ExtendFrom(&l.outgoingAck, mtu)
}

// ProcessOutgoingNack packs the outstanding gap sequence numbers into a
// wire-ready AckOrNack bounded by mtu, consuming only what fit and leaving
// the rest queued for the next drain cycle.
func (l *SharedLink) ProcessOutgoingNack(mtu uint16) *raknet.AckOrNack {
	l.outMu.Lock()
	defer l.outMu.Unlock()

	if len(l.outgoingNack) == 0 {
		return nil
	}
	sorted := make([]raknet.Uint24, 0, len(l.outgoingNack))
	for seq := range l.outgoingNack {
		sorted = append(sorted, seq)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	src := raknet.NewSliceSeqSource(sorted)
	result := raknet.ExtendFrom(src, mtu)
	if result == nil {
		return nil
	}
	remaining := make(map[raknet.Uint24]struct{}, len(src.Remaining()))
	for _, seq := range src.Remaining() {
		remaining[seq] = struct{}{}
	}
	l.outgoingNack = remaining
	return result
}

// OutgoingAckEmpty reports whether anything is still waiting to be ACKed.
func (l *SharedLink) OutgoingAckEmpty() bool {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	return len(l.outgoingAck) == 0
}

// OutgoingNackEmpty reports whether anything is still waiting to be NACKed.
func (l *SharedLink) OutgoingNackEmpty() bool {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	return len(l.outgoingNack) == 0
}

// UnconnectedEmpty reports whether the unconnected mailbox is empty.
func (l *SharedLink) UnconnectedEmpty() bool { return len(l.unconnected) == 0 }

// FrameBodyEmpty reports whether the frame-body mailbox is empty.
func (l *SharedLink) FrameBodyEmpty() bool { return len(l.frameBody) == 0 }

// uint24Heap is a min-heap of sequence numbers backing outgoing_ack;
// duplicates are permitted and collapse naturally at egress packing time.
type uint24Heap []raknet.Uint24

func (h uint24Heap) Len() int            { return len(h) }
func (h uint24Heap) Less(i, j int) bool  { return h[i] < h[j] }
func (h uint24Heap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *uint24Heap) Push(x interface{}) { *h = append(*h, x.(raknet.Uint24)) }
func (h *uint24Heap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Next implements raknet.SeqSource directly over the heap so ExtendFrom
// consumes only as many records as fit under mtu, leaving the rest heap-
// ordered for the next drain cycle.
func (h *uint24Heap) Next() (raknet.Uint24, bool) {
	if h.Len() == 0 {
		return 0, false
	}
	return heap.Pop(h).(raknet.Uint24), true
}
