package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFiresAtDeadline(t *testing.T) {
	r := NewReactor[string]()
	ch := r.Register("conn-a", time.Now().Add(10*time.Millisecond))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestCancelAllWakesBeforeDeadline(t *testing.T) {
	r := NewReactor[string]()
	ch := r.Register("conn-a", time.Now().Add(time.Hour))

	r.CancelAll("conn-a")

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("cancel did not wake the waiter")
	}
}

func TestCancelAllOnlyAffectsItsOwnConnection(t *testing.T) {
	r := NewReactor[string]()
	chA := r.Register("conn-a", time.Now().Add(time.Hour))
	chB := r.Register("conn-b", time.Now().Add(5*time.Millisecond))

	r.CancelAll("conn-b")

	select {
	case <-chA:
		t.Fatal("conn-a timer fired early")
	case <-chB:
	case <-time.After(time.Second):
		t.Fatal("conn-b timer never fired")
	}

	r.mu.Lock()
	_, stillWaiting := r.waiting["conn-a"]
	r.mu.Unlock()
	require.True(t, stillWaiting)
}
