package raknet

import "fmt"

// Sentinel error kinds surfaced by the wire codec, per SPEC_FULL.md §7.
// The codec returns them unwrapped; callers match them with errors.Is, and
// the two error types below with errors.As.
var (
	// ErrInvalidPacketLength is returned for a zero-length or truncated
	// FrameSet body.
	ErrInvalidPacketLength = fmt.Errorf("raknet: invalid packet length")

	// ErrAckCountExceed is returned when an incoming Ack/Nack covers more
	// than MaxAckCount sequence numbers.
	ErrAckCountExceed = fmt.Errorf("raknet: ack/nack covers more than %d sequence numbers", MaxAckCount)

	// ErrTruncated is returned when a read runs past the end of the buffer.
	ErrTruncated = fmt.Errorf("raknet: truncated packet")
)

// InvalidReliabilityError reports a reliability byte that decodes to a value
// higher than ReliableSequenced.
type InvalidReliabilityError struct {
	Value byte
}

func (e *InvalidReliabilityError) Error() string {
	return fmt.Sprintf("raknet: invalid reliability %d", e.Value)
}

// InvalidRecordTypeError reports an Ack/Nack record tag outside {0,1}.
type InvalidRecordTypeError struct {
	Value byte
}

func (e *InvalidRecordTypeError) Error() string {
	return fmt.Sprintf("raknet: invalid record type 0x%02x", e.Value)
}
