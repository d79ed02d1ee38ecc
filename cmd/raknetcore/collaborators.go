package main

import (
	"net"
	"sync"

	raknetcore "github.com/ventosilenzioso/raknet-core"
	"github.com/ventosilenzioso/raknet-core/pkg/logger"
	"github.com/ventosilenzioso/raknet-core/pkg/raknet"
	"github.com/ventosilenzioso/raknet-core/source/dispatch"
)

// demoOffline is a minimal OfflineHandler stand-in: the real
// OPEN_CONNECTION_REQUEST/REPLY handshake is out of scope for this core, so
// this demo simply forgets an address on disconnect and lets the next
// packet from it re-allocate a fresh pipeline.
type demoOffline struct {
	mu    sync.Mutex
	known map[string]struct{}
}

func newDemoOffline() *demoOffline {
	return &demoOffline{known: make(map[string]struct{})}
}

func (d *demoOffline) Disconnect(addr *net.UDPAddr) {
	d.mu.Lock()
	delete(d.known, addr.String())
	d.mu.Unlock()
	logger.Info("[demo] forgot handshake state for %s", addr)
}

// demoEncoder is a minimal FrameEncoder: it never fragments and always sends
// at the reliability the caller asks for. It leaves reliable_frame_index,
// ordered_frame_index and seq_frame_index at zero, and nothing further down
// the send path assigns them.
type demoEncoder struct{}

func (demoEncoder) Encode(body raknetcore.FrameBody, reliability uint8, orderChannel uint8) [][]byte {
	frame := &raknet.Frame{
		Flags:          raknet.NewFlags(raknet.Reliability(reliability), false),
		OrderedChannel: orderChannel,
		Body:           body,
	}
	return [][]byte{frame.Encode(nil)}
}

// demoDecoder is a minimal FrameDecoder: every frame is already a complete
// message (no reassembly), so Decode always reports ready.
type demoDecoder struct{}

func (demoDecoder) Decode(frame []byte) (raknetcore.FrameBody, bool, error) {
	return raknetcore.FrameBody(frame), true, nil
}

// demoOnline echoes every received frame body back to its sender, purely to
// exercise the submit path end to end.
type demoOnline struct {
	conn   raknetcore.ConnID
	peer   raknetcore.Peer
	submit dispatch.SubmitFunc
}

func newDemoOnlineFactory() dispatch.OnlineHandlerFactory {
	return func(conn raknetcore.ConnID, peer raknetcore.Peer, submit dispatch.SubmitFunc) raknetcore.OnlineHandler {
		logger.Success("[demo] peer online: %s", peer)
		return &demoOnline{conn: conn, peer: peer, submit: submit}
	}
}

func (o *demoOnline) HandleFrame(body raknetcore.FrameBody) {
	logger.Debug("[demo] %d bytes from %s, echoing back", len(body), o.peer.Addr)
	if err := o.submit(body, 2, 0); err != nil {
		logger.Warn("[demo] echo failed for %s: %v", o.peer.Addr, err)
	}
}

func (o *demoOnline) Closed() {
	logger.Info("[demo] peer offline: %s", o.peer.Addr)
}
