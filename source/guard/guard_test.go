package guard

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	raknetcore "github.com/ventosilenzioso/raknet-core"
	"github.com/ventosilenzioso/raknet-core/pkg/raknet"
	"github.com/ventosilenzioso/raknet-core/source/flush"
	"github.com/ventosilenzioso/raknet-core/source/link"
	"github.com/ventosilenzioso/raknet-core/source/timer"
)

type fakeSink struct {
	sent    [][]byte
	flushes int
}

func (s *fakeSink) Send(packet []byte) error {
	cp := append([]byte(nil), packet...)
	s.sent = append(s.sent, cp)
	return nil
}

func (s *fakeSink) Flush() error {
	s.flushes++
	return nil
}

func testGuard(t *testing.T) (*OutgoingGuard, *fakeSink) {
	t.Helper()
	return testGuardWithStrategy(t, flush.Default())
}

func testGuardWithStrategy(t *testing.T, strategy flush.Strategy) (*OutgoingGuard, *fakeSink) {
	t.Helper()
	role := raknetcore.ServerRole(1)
	peer := raknetcore.Peer{Addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19132}, GUID: 2, MTU: 64}
	conn := raknetcore.NewConnID(role, peer)
	sharedLink := link.NewSharedLink(role, peer, conn)
	reactor := timer.NewReactor[raknetcore.ConnID]()
	sink := &fakeSink{}
	return New(role, peer, conn, 16, sharedLink, reactor, sink, strategy), sink
}

func reliableFrame(body []byte) *raknet.Frame {
	return &raknet.Frame{Flags: raknet.NewFlags(raknet.Reliable, false), Body: body}
}

// Scenario S5: two reliable frames submitted, one frame-set emitted at
// seq_num 0; a NACK covering seq 0 re-queues its frames, which then go out
// again under seq_num 1, and resend_map no longer tracks seq 0.
func TestRetransmitOnNack(t *testing.T) {
	g, sink := testGuard(t)
	ctx := context.Background()

	require.NoError(t, g.StartSend(reliableFrame([]byte("hello"))))
	require.NoError(t, g.StartSend(reliableFrame([]byte("world"))))
	require.NoError(t, g.PollFlush(ctx))
	require.Len(t, sink.sent, 1, "one frame-set should have gone out at seq 0")
	assert.Equal(t, 1, g.resend.Len())

	nack := &raknet.AckOrNack{Records: []raknet.Record{{Kind: raknet.RecordSingle, Start: 0}}}
	g.link.IncomingNack(nack)

	require.NoError(t, g.PollFlush(ctx))
	require.Len(t, sink.sent, 2, "the nacked frame should have been resent as a new frame-set")
	assert.Equal(t, 1, g.resend.Len(), "seq 0 dropped out, the retransmit at seq 1 replaces it")
}

// Scenario S6: poll_close only returns once the resend map is drained by
// the matching ACK.
func TestPollCloseWaitsForOutstandingAck(t *testing.T) {
	g, sink := testGuard(t)
	ctx := context.Background()

	require.NoError(t, g.StartSend(reliableFrame([]byte("data"))))
	require.NoError(t, g.PollFlush(ctx))
	require.Len(t, sink.sent, 1)

	done := make(chan error, 1)
	go func() { done <- g.PollClose(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("poll_close returned early with resend map non-empty: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	ack := &raknet.AckOrNack{Records: []raknet.Record{{Kind: raknet.RecordSingle, Start: 0}}}
	g.link.IncomingAck(ack, nil)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poll_close did not return after the outstanding ack arrived")
	}
	assert.True(t, g.resend.IsEmpty())
}

func TestPollCloseReturnsImmediatelyWhenNothingOutstanding(t *testing.T) {
	g, _ := testGuard(t)
	err := g.PollClose(context.Background())
	assert.NoError(t, err)
}

func TestStartSendRejectsOverCapacity(t *testing.T) {
	g, _ := testGuard(t)
	for i := 0; i < 16; i++ {
		require.NoError(t, g.StartSend(reliableFrame([]byte{byte(i)})))
	}
	err := g.StartSend(reliableFrame([]byte("overflow")))
	assert.ErrorIs(t, err, ErrBufferFull)
}

func TestPollReadyReportsCapacity(t *testing.T) {
	g, _ := testGuard(t)
	ready, err := g.PollReady(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestPackAndSendPanicsOnOversizeFrame(t *testing.T) {
	g, _ := testGuard(t)
	oversized := reliableFrame(make([]byte, 4096))
	require.NoError(t, g.StartSend(oversized))

	assert.Panics(t, func() {
		_ = g.PollFlush(context.Background())
	})
}

// A guard built with flush.Only(false, false, false) still absorbs incoming
// ACKs/NACKs and stale entries in steps 1-2, but the strategy
// forbids it from ever emitting any of the three wire classes, so nothing
// reaches the sink even though a reliable frame was submitted.
func TestFlushStrategyRestrictsWireOutput(t *testing.T) {
	g, sink := testGuardWithStrategy(t, flush.Only(false, false, false))

	require.NoError(t, g.StartSend(reliableFrame([]byte("held back"))))
	require.NoError(t, g.PollFlush(context.Background()))

	assert.Empty(t, sink.sent, "a strategy that permits no class must not emit any packet")
	assert.Equal(t, 0, g.resend.Len(), "nothing was ever packed, so nothing should be recorded for resend")
}

func TestPollFlushSendsUnconnectedPackets(t *testing.T) {
	g, sink := testGuard(t)
	g.link.SendUnconnected([]byte("ping"))

	require.NoError(t, g.PollFlush(context.Background()))
	require.Len(t, sink.sent, 1)
	assert.Equal(t, []byte("ping"), sink.sent[0])
}
