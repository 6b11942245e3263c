// Package leb128 implements the LEB128 variable-length integer codec
// used throughout the Wasm binary format: https://webassembly.github.io/spec/core/binary/values.html#binary-int
package leb128

import (
	"fmt"

	"github.com/wasmforge/wasmcore/bytereader"
)

// DecodeError reports a malformed LEB128 encoding together with the byte
// offset at which decoding started, per the engine's rule that every
// decode error should carry a position.
type DecodeError struct {
	Offset uint32
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("leb128: %s at byte offset %d", e.Reason, e.Offset)
}

// Read decodes an integer of at most n bits from br. hasSign selects the
// signed vs. unsigned encoding. Read rejects an encoding longer than
// ceil(n/7) bytes ("integer representation too long") and a terminal
// byte whose unused high bits are not uniform ("integer too large").
func Read(br *bytereader.Reader, n uint32, hasSign bool) (int64, error) {
	start := br.Pos()
	maxBytes := (n + 6) / 7
	var (
		shift   uint32
		result  int64
		bytecnt uint32
		cur     byte
	)
	for {
		b, err := br.ReadOne()
		if err != nil {
			return 0, &DecodeError{Offset: start, Reason: "unexpected end"}
		}
		cur = b
		bytecnt++
		if bytecnt > maxBytes {
			return 0, &DecodeError{Offset: start, Reason: "integer representation too long"}
		}
		result |= int64(cur&0x7f) << shift
		shift += 7
		if cur&0x80 == 0 {
			break
		}
	}

	// Validate the terminal byte's unused high bits, per the spec's
	// sign-extension rule (bit 6 of the final byte is the sign bit).
	remainingBits := int64(shift) - int64(n)
	if remainingBits > 0 {
		mask := byte(0xff << (7 - remainingBits))
		masked := cur & mask
		signed := hasSign && cur&0x40 != 0
		if signed {
			if masked != mask&0x7f {
				return 0, &DecodeError{Offset: start, Reason: "integer too large"}
			}
		} else {
			if masked != 0 {
				return 0, &DecodeError{Offset: start, Reason: "integer too large"}
			}
		}
	}

	if hasSign && shift < 64 && cur&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

// ReadUint32 decodes a LEB128 encoded u32.
func ReadUint32(br *bytereader.Reader) (uint32, error) {
	v, err := Read(br, 32, false)
	return uint32(v), err
}

// ReadInt32 decodes a LEB128 encoded s32.
func ReadInt32(br *bytereader.Reader) (int32, error) {
	v, err := Read(br, 32, true)
	return int32(v), err
}

// ReadUint64 decodes a LEB128 encoded u64.
func ReadUint64(br *bytereader.Reader) (uint64, error) {
	v, err := Read(br, 64, false)
	return uint64(v), err
}

// ReadInt64 decodes a LEB128 encoded s64.
func ReadInt64(br *bytereader.Reader) (int64, error) {
	return Read(br, 64, true)
}

// WriteUint64 encodes an unsigned integer as unsigned LEB128.
func WriteUint64(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

// WriteInt64 encodes a signed integer as signed LEB128, producing the
// shortest encoding without trailing redundant sign-extension bytes.
func WriteInt64(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
