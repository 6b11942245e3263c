package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmcore/leb128"
)

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

func section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, leb128.WriteUint64(uint64(len(payload)))...)
	return append(out, payload...)
}

func TestDecodeModule_EmptyModule(t *testing.T) {
	m, err := DecodeModule(header())
	require.NoError(t, err)
	assert.Empty(t, m.Types)
	assert.Empty(t, m.Functions)
}

func TestDecodeModule_RejectsBadMagic(t *testing.T) {
	data := append([]byte{0xde, 0xad, 0xbe, 0xef}, header()[4:]...)
	_, err := DecodeModule(data)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestDecodeModule_RejectsUnsupportedVersion(t *testing.T) {
	data := append([]byte{}, header()...)
	data[4] = 0x02
	_, err := DecodeModule(data)
	require.Error(t, err)
}

func TestDecodeModule_TypeSectionRoundTrip(t *testing.T) {
	// One functype (i32, i32) -> i32.
	payload := []byte{
		0x01,       // vector count: 1 type
		funcTypeForm,
		0x02, byte(I32), byte(I32), // 2 params
		0x01, byte(I32), // 1 result
	}
	data := append(header(), section(1, payload)...)
	m, err := DecodeModule(data)
	require.NoError(t, err)
	require.Len(t, m.Types, 1)
	assert.Equal(t, []ValueType{I32, I32}, m.Types[0].Params)
	assert.Equal(t, []ValueType{I32}, m.Types[0].Results)
}

func TestDecodeModule_RejectsOversizedVectorCount(t *testing.T) {
	// A type-section count of 2^31, which can never be backed by the
	// few remaining bytes in this tiny payload.
	payload := leb128.WriteUint64(1 << 31)
	data := append(header(), section(1, payload)...)
	_, err := DecodeModule(data)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "vector count")
}

func TestDecodeModule_RejectsTruncatedSection(t *testing.T) {
	// Declares a 10-byte type section payload but supplies none.
	data := append(header(), 0x01, 0x0a)
	_, err := DecodeModule(data)
	require.Error(t, err)
}

func TestDecodeModule_RejectsOutOfOrderSections(t *testing.T) {
	data := append(header(), section(2, []byte{0x00})...) // import section, empty vector
	data = append(data, section(1, []byte{0x00})...)       // type section after import: out of order
	_, err := DecodeModule(data)
	require.Error(t, err)
}

func TestDecodeModule_FunctionAndCodeSections(t *testing.T) {
	typeSec := []byte{0x01, funcTypeForm, 0x00, 0x00} // () -> ()
	funcSec := []byte{0x01, 0x00}                     // one function, type index 0
	codeSec := []byte{
		0x01,             // one code entry
		0x02, 0x00, 0x0B, // body size 2: no locals, end
	}
	data := append(header(), section(1, typeSec)...)
	data = append(data, section(3, funcSec)...)
	data = append(data, section(10, codeSec)...)

	m, err := DecodeModule(data)
	require.NoError(t, err)
	require.Len(t, m.Functions, 1)
	assert.Empty(t, m.Functions[0].Body.Code)
}
