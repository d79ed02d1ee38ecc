package guard

// Sink is the downstream framed socket this guard dispatches encoded
// packets to; out of scope for this core (SPEC_FULL.md §1) but defined
// here at the boundary OutgoingGuard actually calls against.
type Sink interface {
	// Send writes one fully encoded packet (FrameSet, ACK, NACK, or
	// unconnected) to this guard's peer.
	Send(packet []byte) error
	// Flush drives any buffering the sink itself performs to completion.
	Flush() error
}
