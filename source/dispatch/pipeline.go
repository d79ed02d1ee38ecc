package dispatch

import (
	"context"
	"time"

	raknetcore "github.com/ventosilenzioso/raknet-core"
	"github.com/ventosilenzioso/raknet-core/pkg/logger"
	"github.com/ventosilenzioso/raknet-core/pkg/raknet"
	"github.com/ventosilenzioso/raknet-core/source/guard"
)

// flushInterval is how often a peer's writer goroutine drives the
// OutgoingGuard's drain cycle outside of ACK/NACK-triggered wakeups,
// mirroring the teacher's 50ms update ticker.
const flushInterval = 50 * time.Millisecond

// runReader is the incoming pipeline: filter_incoming_ack (already applied
// by Router before a frame-set ever reaches this channel) → frame_decoder →
// online_handler.
func (d *Dispatcher) runReader(ctx context.Context, conn raknetcore.ConnID, peer raknetcore.Peer, frameSets <-chan *raknet.FrameSet, handler raknetcore.OnlineHandler) error {
	for {
		select {
		case fs, ok := <-frameSets:
			if !ok {
				return nil
			}
			for _, frame := range fs.Frames {
				body, ready, err := d.decoder.Decode(frame.Encode(nil))
				if err != nil {
					logger.WithFields(logger.Fields{
						"conn":  conn.String(),
						"addr":  peer.Addr.String(),
						"mtu":   peer.MTU,
						"trace": conn.Trace.String(),
					}).Warnf("[%s] frame decode error: %v", d.role, err)
					continue
				}
				if ready {
					handler.HandleFrame(body)
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// runWriter is the outgoing pipeline's scheduler: it drives OutgoingGuard's
// drain/flush cycle on a fixed tick until ctx is canceled, then runs
// poll_close to guarantee every reliable frame already in flight either
// gets delivered or the caller gives up, and finally notifies the
// dispatcher this peer can be forgotten.
func (d *Dispatcher) runWriter(ctx context.Context, conn raknetcore.ConnID, peer raknetcore.Peer, og *guard.OutgoingGuard, handler raknetcore.OnlineHandler, addrKey string) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var flushErr error
loop:
	for {
		select {
		case <-ticker.C:
			if err := og.PollFlush(ctx); err != nil {
				flushErr = err
				break loop
			}
		case <-ctx.Done():
			break loop
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := og.PollClose(closeCtx); err != nil {
		logger.WithFields(logger.Fields{
			"conn":  conn.String(),
			"addr":  peer.Addr.String(),
			"mtu":   peer.MTU,
			"trace": conn.Trace.String(),
		}).Warnf("[%s] poll_close did not drain cleanly: %v", d.role, err)
	}

	handler.Closed()
	d.notifyDrop(addrKey)
	return flushErr
}
