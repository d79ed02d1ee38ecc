// Package dispatch implements the Server Incoming dispatcher described in
// SPEC_FULL.md §4.7: it maintains the peer_addr → router map, allocates a
// full per-peer pipeline (SharedLink, Router, OutgoingGuard) the first time
// a peer is seen, and evicts peers whose pipeline reports itself dead.
package dispatch

import (
	"context"
	"net"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	raknetcore "github.com/ventosilenzioso/raknet-core"
	"github.com/ventosilenzioso/raknet-core/pkg/logger"
	"github.com/ventosilenzioso/raknet-core/pkg/raknet"
	"github.com/ventosilenzioso/raknet-core/source/flush"
	"github.com/ventosilenzioso/raknet-core/source/guard"
	"github.com/ventosilenzioso/raknet-core/source/link"
	"github.com/ventosilenzioso/raknet-core/source/metrics"
	"github.com/ventosilenzioso/raknet-core/source/timer"
)

// peerEntry is one connected peer's full pipeline.
type peerEntry struct {
	conn   raknetcore.ConnID
	link   *link.SharedLink
	router *link.Router
	guard  *guard.OutgoingGuard
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Dispatcher is the peer_addr → pipeline router. One Dispatcher serves one
// bound UDP socket.
type Dispatcher struct {
	conn    *net.UDPConn
	role    raknetcore.Role
	cfg     raknetcore.Config
	offline raknetcore.OfflineHandler
	decoder raknetcore.FrameDecoder
	encoder raknetcore.FrameEncoder
	online  OnlineHandlerFactory
	reactor *timer.Reactor[raknetcore.ConnID]

	mu    sync.Mutex
	peers map[string]*peerEntry

	dropMu  sync.Mutex
	dropped []string
}

// OnlineHandlerFactory builds the online handler for one newly accepted
// peer, given the submit function it may use to push outgoing frame bodies
// through that peer's OutgoingGuard.
type OnlineHandlerFactory func(conn raknetcore.ConnID, peer raknetcore.Peer, submit SubmitFunc) raknetcore.OnlineHandler

// SubmitFunc encodes body via the configured FrameEncoder and pushes every
// resulting wire frame onto the peer's OutgoingGuard.
type SubmitFunc func(body raknetcore.FrameBody, reliability, orderChannel uint8) error

// New builds a Dispatcher bound to conn.
func New(conn *net.UDPConn, role raknetcore.Role, cfg raknetcore.Config, offline raknetcore.OfflineHandler, encoder raknetcore.FrameEncoder, decoder raknetcore.FrameDecoder, online OnlineHandlerFactory) *Dispatcher {
	return &Dispatcher{
		conn:    conn,
		role:    role,
		cfg:     cfg,
		offline: offline,
		encoder: encoder,
		decoder: decoder,
		online:  online,
		reactor: timer.NewReactor[raknetcore.ConnID](),
		peers:   make(map[string]*peerEntry),
	}
}

// notifyDrop is the on-drop notifier each peer's writer goroutine invokes
// when its pipeline has nothing left to do and should be forgotten.
func (d *Dispatcher) notifyDrop(addr string) {
	d.dropMu.Lock()
	d.dropped = append(d.dropped, addr)
	d.dropMu.Unlock()
}

// clearDroppedAddr evicts every peer queued for removal since the last
// call, forgetting it from both the router map and the offline handler so
// the handshake can re-occur from scratch.
func (d *Dispatcher) clearDroppedAddr() {
	d.dropMu.Lock()
	drained := d.dropped
	d.dropped = nil
	d.dropMu.Unlock()

	for _, addr := range drained {
		d.mu.Lock()
		delete(d.peers, addr)
		d.mu.Unlock()

		if udpAddr, err := net.ResolveUDPAddr("udp", addr); err == nil {
			d.offline.Disconnect(udpAddr)
		}
		metrics.RouterPeers.Set(float64(d.peerCount()))
	}
}

func (d *Dispatcher) peerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.peers)
}

// Close cancels every peer's writer goroutine (which drives poll_close
// before exiting) and waits for every peer's reader/writer pair to finish,
// combining whatever errors they returned into one.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	entries := make([]*peerEntry, 0, len(d.peers))
	for _, e := range d.peers {
		entries = append(entries, e)
	}
	d.mu.Unlock()

	var result *multierror.Error
	for _, e := range entries {
		e.cancel()
		if err := e.group.Wait(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// HandlePacket is the dispatcher's single entry point: called once per
// decoded connected packet the offline handler hands it, keyed by the
// originating peer. It evicts dropped peers first (§4.7's "before every
// poll, drain the drop channel"), then routes to an existing pipeline or
// allocates a new one.
func (d *Dispatcher) HandlePacket(raw []byte, peer raknetcore.Peer) error {
	d.clearDroppedAddr()

	if len(raw) == 0 {
		return raknet.ErrTruncated
	}
	addrKey := peer.Addr.String()

	d.mu.Lock()
	entry, ok := d.peers[addrKey]
	d.mu.Unlock()

	if !ok {
		var err error
		entry, err = d.allocate(peer)
		if err != nil {
			return err
		}
	}

	pack, err := decodeConnected(raw, entry.conn, d.reactor)
	if err != nil {
		return err
	}
	if !entry.router.Deliver(pack) {
		// The pipeline closed between the map lookup and delivery; forget
		// it and let the next packet from this peer re-allocate fresh.
		d.notifyDrop(addrKey)
		d.offline.Disconnect(peer.Addr)
	}
	return nil
}

// decodeConnected dispatches on the leading pack-id byte and builds the
// link.Packet Deliver expects.
func decodeConnected(raw []byte, conn raknetcore.ConnID, reactor *timer.Reactor[raknetcore.ConnID]) (link.Packet, error) {
	id := raknet.PackID(raw[0])
	body := raw[1:]

	switch id {
	case raknet.PackIDFrameSet:
		fs, err := raknet.DecodeFrameSet(body)
		if err != nil {
			return nil, err
		}
		return link.FrameSetPacket{FrameSet: fs}, nil
	case raknet.PackIDAck:
		ack, err := raknet.DecodeAckOrNack(body)
		if err != nil {
			return nil, err
		}
		return link.AckPacket{Ack: ack, Reactor: &connScopedReactor{conn: conn, reactor: reactor}}, nil
	case raknet.PackIDNack:
		nack, err := raknet.DecodeAckOrNack(body)
		if err != nil {
			return nil, err
		}
		return link.NackPacket{Nack: nack}, nil
	default:
		return nil, raknet.ErrInvalidPacketLength
	}
}

// connScopedReactor binds a *timer.Reactor[ConnID] to the one connection a
// link.CancelReactor call site is allowed to cancel timers for.
type connScopedReactor struct {
	conn    raknetcore.ConnID
	reactor *timer.Reactor[raknetcore.ConnID]
}

func (c *connScopedReactor) CancelAll(_ raknetcore.ConnID) {
	c.reactor.CancelAll(c.conn)
}

// allocate builds a fresh pipeline for a newly seen peer: a SharedLink, a
// Router plus its forwarding channel, an OutgoingGuard over a udpSink, and
// the supervised reader/writer goroutine pair for it.
func (d *Dispatcher) allocate(peer raknetcore.Peer) (*peerEntry, error) {
	conn := raknetcore.NewConnID(d.role, peer)
	addrKey := peer.Addr.String()

	sharedLink := link.NewSharedLink(d.role, peer, conn)
	router, frameSets := link.NewRouter(sharedLink)
	sink := &udpSink{conn: d.conn, addr: peer.Addr}
	og := guard.New(d.role, peer, conn, int64(d.cfg.SendBufCap), sharedLink, d.reactor, sink, flush.Default())

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	submit := func(body raknetcore.FrameBody, reliability, orderChannel uint8) error {
		var result *multierror.Error
		for _, wire := range d.encoder.Encode(body, reliability, orderChannel) {
			frame, _, err := raknet.ReadFrame(wire)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			if err := og.StartSend(frame); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	}
	handler := d.online(conn, peer, submit)

	entry := &peerEntry{conn: conn, link: sharedLink, router: router, guard: og, cancel: cancel, group: group}

	group.Go(func() error { return d.runReader(gctx, conn, peer, frameSets, handler) })
	group.Go(func() error { return d.runWriter(gctx, conn, peer, og, handler, addrKey) })

	d.mu.Lock()
	d.peers[addrKey] = entry
	d.mu.Unlock()
	metrics.RouterPeers.Set(float64(d.peerCount()))

	logger.WithFields(logger.Fields{
		"conn":  conn.String(),
		"addr":  peer.Addr.String(),
		"mtu":   peer.MTU,
		"trace": conn.Trace.String(),
	}).Infof("[%s] new incoming peer %s", d.role, peer)

	return entry, nil
}
