package raknet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUint24RoundTrip(t *testing.T) {
	buf := AppendUint24LE(nil, Uint24(0x123456))
	assert.Equal(t, []byte{0x56, 0x34, 0x12}, buf)
	assert.Equal(t, Uint24(0x123456), ReadUint24LE(buf))
}

func TestUint24NextWraps(t *testing.T) {
	assert.Equal(t, Uint24(1), Uint24(0).Next())
	assert.Equal(t, Uint24(0), Uint24(maxUint24).Next())
}
