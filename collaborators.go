package raknetcore

import "net"

// OfflineHandler is the external collaborator that runs the unconnected
// handshake (OPEN_CONNECTION_REQUEST/REPLY, INCOMPATIBLE_PROTOCOL, ...) and
// hands fully-established peers to the dispatcher. Out of scope for this
// core (SPEC_FULL.md §1); defined here only as the interface the dispatcher
// calls against.
type OfflineHandler interface {
	// Disconnect forgets any in-progress or completed handshake for addr so
	// it can be renegotiated from scratch.
	Disconnect(addr *net.UDPAddr)
}

// FrameBody is one fully reassembled, ordered application message handed
// up to the online handler, or a message submitted by it for sending.
type FrameBody []byte

// FrameEncoder turns application-level frame bodies into wire Frames,
// splitting them across multiple Frames when they exceed the configured
// fragmentation threshold. Out of scope for this core.
type FrameEncoder interface {
	Encode(body FrameBody, reliability uint8, orderChannel uint8) [][]byte
}

// FrameDecoder reassembles decoded wire Frames (fragments, ordering,
// sequencing) into application-level frame bodies. Out of scope for this
// core.
type FrameDecoder interface {
	Decode(frame []byte) (body FrameBody, ready bool, err error)
}

// OnlineHandler consumes decoded frame bodies and produces frames to send
// once a connection is established; it also drives ping/pong over the
// SharedLink's unconnected/frame-body channels. Out of scope for this core.
type OnlineHandler interface {
	HandleFrame(body FrameBody)
	Closed()
}
