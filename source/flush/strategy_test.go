package flush

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeEmptyChecker struct {
	ackEmpty, nackEmpty, bufEmpty bool
}

func (f fakeEmptyChecker) OutgoingAckEmpty() bool  { return f.ackEmpty }
func (f fakeEmptyChecker) OutgoingNackEmpty() bool { return f.nackEmpty }
func (f fakeEmptyChecker) BufferEmpty() bool       { return f.bufEmpty }

func TestCheckFlushedOnlyConsidersSelectedClasses(t *testing.T) {
	s := Only(true, false, false)
	// NACK and pack still pending, but this strategy never selected them.
	assert.True(t, s.CheckFlushed(fakeEmptyChecker{ackEmpty: true, nackEmpty: false, bufEmpty: false}))
	assert.False(t, s.CheckFlushed(fakeEmptyChecker{ackEmpty: false, nackEmpty: false, bufEmpty: false}))
}

func TestCheckFlushedDefaultRequiresAllEmpty(t *testing.T) {
	s := Default()
	assert.False(t, s.CheckFlushed(fakeEmptyChecker{ackEmpty: true, nackEmpty: true, bufEmpty: false}))
	assert.True(t, s.CheckFlushed(fakeEmptyChecker{ackEmpty: true, nackEmpty: true, bufEmpty: true}))
}
