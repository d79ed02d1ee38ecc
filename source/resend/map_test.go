package resend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventosilenzioso/raknet-core/pkg/raknet"
)

type fakeBuffer struct {
	pushed [][]*raknet.Frame
}

func (b *fakeBuffer) PushFront(frames []*raknet.Frame) {
	b.pushed = append(b.pushed, frames)
}

func someFrames() []*raknet.Frame {
	return []*raknet.Frame{{Flags: raknet.NewFlags(raknet.Reliable, false), Body: []byte("x")}}
}

func TestRecordThenAckClears(t *testing.T) {
	m := NewMap()
	m.Record(0, someFrames())
	require.False(t, m.IsEmpty())

	m.OnAck(&raknet.AckOrNack{Records: []raknet.Record{{Kind: raknet.RecordSingle, Start: 0}}})
	assert.True(t, m.IsEmpty())
}

func TestDuplicateAckIsNoop(t *testing.T) {
	m := NewMap()
	ack := &raknet.AckOrNack{Records: []raknet.Record{{Kind: raknet.RecordSingle, Start: 0}}}
	m.OnAck(ack)
	m.OnAck(ack)
	assert.True(t, m.IsEmpty())
}

func TestNackRequeuesFrontAndRemovesEntry(t *testing.T) {
	m := NewMap()
	frames := someFrames()
	m.Record(0, frames)

	buf := &fakeBuffer{}
	nack := &raknet.AckOrNack{Records: []raknet.Record{{Kind: raknet.RecordSingle, Start: 0}}}
	m.OnNackInto(nack, buf)

	assert.True(t, m.IsEmpty())
	require.Len(t, buf.pushed, 1)
	assert.Equal(t, frames, buf.pushed[0])
}

func TestAckClearsRange(t *testing.T) {
	m := NewMap()
	m.Record(0, someFrames())
	m.Record(1, someFrames())
	m.Record(2, someFrames())

	m.OnAck(&raknet.AckOrNack{Records: []raknet.Record{{Kind: raknet.RecordRange, Start: 0, End: 2}}})
	assert.True(t, m.IsEmpty())
}

func TestProcessStalesRequeuesPastDeadlineOnly(t *testing.T) {
	m := NewMap()
	frames := someFrames()
	m.Record(0, frames)
	m.Record(1, someFrames())

	// Force only entry 0's deadline into the past without waiting out the
	// real RTO floor; entry 1 stays live.
	m.entries[0].deadline = time.Now().Add(-time.Millisecond)
	m.entries[1].deadline = time.Now().Add(time.Hour)

	buf := &fakeBuffer{}
	m.ProcessStales(buf)
	require.Len(t, buf.pushed, 1)
	assert.Equal(t, frames, buf.pushed[0])

	// The stale entry is removed, same as OnNackInto: it gets a fresh
	// seq_num and backoff schedule once the guard repacks and re-records
	// it, instead of living on indefinitely under its old sequence number.
	_, stillPresent := m.entries[0]
	assert.False(t, stillPresent)
	assert.False(t, m.IsEmpty(), "the untouched entry is still outstanding")
}

func TestEarliestDeadlineEmptyMap(t *testing.T) {
	m := NewMap()
	_, ok := m.EarliestDeadline()
	assert.False(t, ok)
}

func TestEarliestDeadlinePicksSoonest(t *testing.T) {
	m := NewMap()
	m.Record(0, someFrames())
	m.Record(1, someFrames())
	m.entries[0].deadline = time.Now().Add(time.Hour)
	m.entries[1].deadline = time.Now().Add(time.Minute)

	earliest, ok := m.EarliestDeadline()
	require.True(t, ok)
	assert.Equal(t, m.entries[1].deadline, earliest)
}
