package guard

import (
	"container/list"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ventosilenzioso/raknet-core/pkg/raknet"
)

// bufItem is one queued Frame plus whether it still holds a capacity
// permit. Frames submitted fresh via StartSend hold one; frames re-queued
// by the resend map (NACK or stale retransmit) do not, since invariant I2
// bounds only the backlog of newly submitted data, not internal retries.
type bufItem struct {
	frame   *raknet.Frame
	counted bool
}

// buffer is the deque of Frames described in SPEC_FULL.md §3: submit
// pushes the front (LIFO precedence for retransmits and new sends alike),
// packing pops from the back (FIFO with respect to submission order).
type buffer struct {
	mu   sync.Mutex
	list list.List
	sem  *semaphore.Weighted
}

func newBuffer(capacity int64) *buffer {
	return &buffer{sem: semaphore.NewWeighted(capacity)}
}

// ready probes whether a new StartSend would currently be admitted. Safe
// only because OutgoingGuard is owned by a single writer goroutine
// (SPEC_FULL.md §5) — nothing else can consume the capacity this probe
// just released before the caller's following trySubmit reserves it.
func (b *buffer) ready() bool {
	if !b.sem.TryAcquire(1) {
		return false
	}
	b.sem.Release(1)
	return true
}

// trySubmit pushes one freshly submitted frame to the buffer's front,
// consuming one capacity permit. Reports false (no-op) if the buffer was
// at capacity — callers must have checked ready() per the PollReady/
// StartSend contract, so this failing indicates a contract violation
// rather than ordinary backpressure.
func (b *buffer) trySubmit(frame *raknet.Frame) bool {
	if !b.sem.TryAcquire(1) {
		return false
	}
	b.mu.Lock()
	b.list.PushFront(&bufItem{frame: frame, counted: true})
	b.mu.Unlock()
	return true
}

// PushFront implements resend.Buffer: frames re-queued from the resend map
// (NACK or stale retransmit) go back onto the front in original order,
// bypassing the capacity permit they already consumed and released once.
func (b *buffer) PushFront(frames []*raknet.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(frames) - 1; i >= 0; i-- {
		b.list.PushFront(&bufItem{frame: frames[i], counted: false})
	}
}

// len reports how many frames are currently buffered.
func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.list.Len()
}

// packUnder greedily pops frames from the back, in original submission
// order, whose Size() fits within budget bytes total. It stops at (and
// does not remove) the first frame that would not fit. If the buffer is
// non-empty but the very first candidate frame alone exceeds budget, that
// is invariant I4's panic-worthy violation: callers must fragment upstream
// before submitting a frame larger than a frame-set can ever carry.
func (b *buffer) packUnder(budget int) []*raknet.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	var collected []*raknet.Frame
	used := 0
	for {
		back := b.list.Back()
		if back == nil {
			break
		}
		item := back.Value.(*bufItem)
		size := item.frame.Size()
		if used+size > budget {
			if len(collected) == 0 {
				panic("raknet: frame size exceeds peer MTU budget; senders must fragment upstream")
			}
			break
		}
		b.list.Remove(back)
		if item.counted {
			b.sem.Release(1)
		}
		collected = append(collected, item.frame)
		used += size
	}
	return collected
}
