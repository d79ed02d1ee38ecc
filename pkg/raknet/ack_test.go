package raknet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqs(vals ...uint32) []Uint24 {
	out := make([]Uint24, len(vals))
	for i, v := range vals {
		out[i] = Uint24(v)
	}
	return out
}

// TestExtendFromPacksWithinMTU mirrors the packer's reference test table:
// every extend_from call below uses the same mtu, the packer must stop
// cleanly at the accounting boundary, and whatever it didn't consume must
// still be sitting in the source afterward.
func TestExtendFromPacksWithinMTU(t *testing.T) {
	const mtu = 21

	cases := []struct {
		name      string
		input     []uint32
		wantLen   int
		wantRemain int
	}{
		{"caseA", []uint32{0, 1, 2, 4, 5, 7, 8}, 21, 1},
		{"caseB", []uint32{0, 1, 3, 4, 6, 7, 9}, 21, 2},
		{"caseC", []uint32{0, 2, 4, 6, 8, 10, 12}, 19, 3},
		{"caseD", []uint32{0, 2, 5, 6, 8, 9, 12}, 18, 3},
		{"caseE", []uint32{0, 1}, 10, 0},
		{"caseF", []uint32{0, 2, 3}, 14, 0},
		{"caseG", []uint32{0, 2, 4}, 15, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := NewSliceSeqSource(seqs(tc.input...))
			ack := ExtendFrom(src, mtu)
			require.NotNil(t, ack)

			buf := ack.Encode([]byte{byte(PackIDAck)})
			assert.Equal(t, tc.wantLen, len(buf))
			assert.Equal(t, tc.wantRemain, len(src.Remaining()))
		})
	}
}

// TestExtendFromRangeAndSingle checks the two record shapes directly: a
// consecutive run collapses to one Range record, a lone value becomes a
// Single.
func TestExtendFromRangeAndSingle(t *testing.T) {
	src := NewSliceSeqSource(seqs(0, 1, 2, 4, 5, 7, 8))
	ack := ExtendFrom(src, 21)
	require.NotNil(t, ack)
	require.Len(t, ack.Records, 3)

	assert.Equal(t, Record{Kind: RecordRange, Start: 0, End: 2}, ack.Records[0])
	assert.Equal(t, Record{Kind: RecordRange, Start: 4, End: 5}, ack.Records[1])
	assert.Equal(t, Record{Kind: RecordSingle, Start: 7}, ack.Records[2])
	assert.Equal(t, []Uint24{8}, src.Remaining())
}

// TestExtendFromNilOnExhaustedSource matches the empty-queue case: nothing
// left to pack, nothing is returned.
func TestExtendFromNilOnExhaustedSource(t *testing.T) {
	src := NewSliceSeqSource(nil)
	assert.Nil(t, ExtendFrom(src, 21))
}

func TestAckOrNackEncodeDecodeRoundTrip(t *testing.T) {
	src := NewSliceSeqSource(seqs(0, 1, 2, 4, 5, 7, 8))
	ack := ExtendFrom(src, 21)
	require.NotNil(t, ack)

	body := ack.Encode(nil)
	decoded, err := DecodeAckOrNack(body)
	require.NoError(t, err)
	assert.Equal(t, ack.Records, decoded.Records)
}

func TestAckOrNackEncodeUsesBigEndianCount(t *testing.T) {
	src := NewSliceSeqSource(seqs(0, 1, 2))
	ack := ExtendFrom(src, 64)
	require.NotNil(t, ack)

	body := ack.Encode(nil)
	require.GreaterOrEqual(t, len(body), 2)
	count := uint16(body[0])<<8 | uint16(body[1])
	assert.Equal(t, uint16(len(ack.Records)), count)
}

func TestDecodeAckOrNackRejectsTruncatedRecords(t *testing.T) {
	buf := []byte{0xFF, 0xFF} // record_count = 65535, no record bytes follow
	_, err := DecodeAckOrNack(buf)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeAckOrNackRejectsUnknownRecordType(t *testing.T) {
	buf := []byte{0x00, 0x01, 0x02, 0, 0, 0}
	_, err := DecodeAckOrNack(buf)
	var typeErr *InvalidRecordTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, byte(0x02), typeErr.Value)
}
