package leb128

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmcore/bytereader"
)

func TestReadUint32(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want uint32
	}{
		{"zero", []byte{0x00}, 0},
		{"one byte", []byte{0x7f}, 127},
		{"three bytes", []byte{0xe5, 0x8e, 0x26}, 624485},
		{"max u32", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xffffffff},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ReadUint32(bytereader.New(c.in))
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestReadInt32_Negative(t *testing.T) {
	// -624485 encoded per the spec's worked example.
	got, err := ReadInt32(bytereader.New([]byte{0x9b, 0xf1, 0x59}))
	require.NoError(t, err)
	assert.Equal(t, int32(-624485), got)
}

func TestReadInt64_Negative(t *testing.T) {
	got, err := ReadInt64(bytereader.New([]byte{0x7f}))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got)
}

func TestRead_TooLong(t *testing.T) {
	// Five continuation bytes for a 32-bit value exceeds ceil(32/7)=5... use 6 to force overflow.
	in := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, err := ReadUint32(bytereader.New(in))
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "integer representation too long", de.Reason)
}

func TestRead_TooLarge(t *testing.T) {
	// Final byte sets high bits beyond the 32-bit range.
	in := []byte{0xff, 0xff, 0xff, 0xff, 0x1f}
	_, err := ReadUint32(bytereader.New(in))
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "integer too large", de.Reason)
}

func TestRead_UnexpectedEnd(t *testing.T) {
	_, err := ReadUint32(bytereader.New([]byte{0x80}))
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "unexpected end", de.Reason)
}

func TestWriteReadRoundTrip_Unsigned(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 624485, 0xffffffff, 0xffffffffffffffff}
	for _, v := range values {
		encoded := WriteUint64(v)
		got, err := ReadUint64(bytereader.New(encoded))
		require.NoError(t, err)
		assert.Equal(t, v, got, "round trip %d", v)
	}
}

func TestWriteReadRoundTrip_Signed(t *testing.T) {
	values := []int64{0, 1, -1, 63, -64, 624485, -624485, -9223372036854775808, 9223372036854775807}
	for _, v := range values {
		encoded := WriteInt64(v)
		got, err := ReadInt64(bytereader.New(encoded))
		require.NoError(t, err)
		assert.Equal(t, v, got, "round trip %d", v)
	}
}

func TestWriteInt64_ShortestEncoding(t *testing.T) {
	// -1 fits in a single byte (0x7f), not padded with redundant continuation bytes.
	assert.Equal(t, []byte{0x7f}, WriteInt64(-1))
	assert.Equal(t, []byte{0x00}, WriteInt64(0))
	assert.Equal(t, []byte{0x00}, WriteUint64(0))
}
