// Package resend implements the ResendMap described in SPEC_FULL.md §4.2:
// an ordered map from sequence number to the reliable frames sent under it,
// responsible for clearing entries on ACK, re-queueing them on NACK or
// timeout, and reporting the earliest deadline still outstanding so the
// OutgoingGuard can park on it between flush cycles.
package resend

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ventosilenzioso/raknet-core/pkg/raknet"
)

// Buffer is the write-side queue a NACK'd or stale entry's frames are
// pushed back onto; source/guard's outgoing buffer implements it.
type Buffer interface {
	PushFront(frames []*raknet.Frame)
}

// entry is one in-flight frame-set: the frames sent under it, and the
// backoff schedule governing when it is considered stale.
type entry struct {
	frames   []*raknet.Frame
	deadline time.Time
	backoff  backoff.BackOff
}

// Map is the resend map. It is owned exclusively by one OutgoingGuard and
// is not safe for concurrent use from multiple goroutines.
type Map struct {
	entries map[raknet.Uint24]*entry
}

// NewMap builds an empty resend map.
func NewMap() *Map {
	return &Map{entries: make(map[raknet.Uint24]*entry)}
}

// newBackOff builds the RTO schedule decided in SPEC_FULL.md §4.9: a
// monotone exponential backoff with a 100ms floor that never gives up.
// Record draws only its first interval; ProcessStales drops an expired
// entry instead of advancing its schedule, so every retransmission starts
// again at 100ms.
func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.RandomizationFactor = 0
	b.Multiplier = 1.5
	b.MaxInterval = 3 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Record inserts a reliable frame-set under seqNum, arming its first RTO
// deadline. Called whenever the guard's drain cycle packs a frame-set that
// contains at least one reliable frame (invariant I1).
func (m *Map) Record(seqNum raknet.Uint24, frames []*raknet.Frame) {
	b := newBackOff()
	m.entries[seqNum] = &entry{
		frames:   frames,
		deadline: time.Now().Add(b.NextBackOff()),
		backoff:  b,
	}
}

// OnAck removes every sequence number covered by ack's records. Duplicate
// ACKs for an already-removed seq_num are benign no-ops (spec invariant).
func (m *Map) OnAck(ack *raknet.AckOrNack) {
	if ack == nil {
		return
	}
	for _, rec := range ack.Records {
		forEachSeq(rec, func(seq raknet.Uint24) {
			delete(m.entries, seq)
		})
	}
}

// OnNackInto removes every sequence number covered by nack's records and
// pushes their frames back onto buf's front, so they are retransmitted
// before newer data (§4.2).
func (m *Map) OnNackInto(nack *raknet.AckOrNack, buf Buffer) {
	if nack == nil {
		return
	}
	for _, rec := range nack.Records {
		forEachSeq(rec, func(seq raknet.Uint24) {
			e, ok := m.entries[seq]
			if !ok {
				return
			}
			delete(m.entries, seq)
			buf.PushFront(e.frames)
		})
	}
}

// ProcessStales re-queues every entry whose RTO deadline has passed,
// removing it from the map and pushing its frames back onto buf's front —
// exactly as OnNackInto does for a NACK'd entry. The repacked frame-set
// gets a new sequence number and is Record'ed again once it is next sent,
// so the stale entry must not survive under its old seq_num or it would
// leak a second live entry for the same payload.
func (m *Map) ProcessStales(buf Buffer) {
	now := time.Now()
	for seq, e := range m.entries {
		if now.Before(e.deadline) {
			continue
		}
		delete(m.entries, seq)
		buf.PushFront(e.frames)
	}
}

// IsEmpty reports whether any reliable frame-set is still awaiting ACK,
// the condition poll_close blocks on (invariant I6).
func (m *Map) IsEmpty() bool {
	return len(m.entries) == 0
}

// EarliestDeadline returns the soonest deadline among all entries and
// true, or the zero time and false if the map is empty.
// OutgoingGuard.PollClose in source/guard registers this with the timer
// reactor.
func (m *Map) EarliestDeadline() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, e := range m.entries {
		if !found || e.deadline.Before(earliest) {
			earliest = e.deadline
			found = true
		}
	}
	return earliest, found
}

// Len reports how many reliable frame-sets are currently in flight, fed to
// the raknet_resend_inflight gauge.
func (m *Map) Len() int {
	return len(m.entries)
}

func forEachSeq(rec raknet.Record, fn func(raknet.Uint24)) {
	if rec.Kind != raknet.RecordRange {
		fn(rec.Start)
		return
	}
	for seq := rec.Start; ; seq = seq.Next() {
		fn(seq)
		if seq == rec.End {
			break
		}
	}
}
