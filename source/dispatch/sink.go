package dispatch

import "net"

// udpSink adapts one peer's *net.UDPConn + address pair to guard.Sink. It
// has no buffering of its own — UDP writes are already one-shot datagrams,
// so Flush is a no-op.
type udpSink struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

func (s *udpSink) Send(packet []byte) error {
	_, err := s.conn.WriteToUDP(packet, s.addr)
	return err
}

func (s *udpSink) Flush() error { return nil }
