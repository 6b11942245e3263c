// Package bytereader provides a small cursor over an in-memory byte slice,
// used by the binary decoder and the instruction executor to track a
// read position without re-slicing on every access.
package bytereader

import "io"

// Reader is a forward-only cursor over a byte slice with an explicit
// position, so callers can report byte offsets in decode errors.
type Reader struct {
	b      []byte
	curPos uint32
}

// New wraps b in a Reader starting at position 0.
func New(b []byte) *Reader {
	return &Reader{b: b}
}

// Pos returns the current read offset into the underlying slice.
func (r *Reader) Pos() uint32 {
	return r.curPos
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int {
	return len(r.b) - int(r.curPos)
}

// Read returns the next n bytes and advances the cursor by n.
func (r *Reader) Read(n uint32) ([]byte, error) {
	if uint64(r.curPos)+uint64(n) > uint64(len(r.b)) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.b[r.curPos : r.curPos+n]
	r.curPos += n
	return b, nil
}

// ReadOne returns the next byte and advances the cursor by one.
func (r *Reader) ReadOne() (byte, error) {
	if r.curPos >= uint32(len(r.b)) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.b[r.curPos]
	r.curPos++
	return b, nil
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	return r.ReadOne()
}

// Rest returns every remaining unread byte without consuming them.
func (r *Reader) Rest() []byte {
	return r.b[r.curPos:]
}

// Seek repositions the cursor to an absolute offset, used by the
// executor to implement branches (jumping to a label's continuation)
// without allocating a new Reader per jump.
func (r *Reader) Seek(pos uint32) {
	r.curPos = pos
}

// Bytes returns the entire underlying buffer, ignoring cursor
// position. Used to scan ahead from an arbitrary point (e.g. to find
// a block's matching end) with a throwaway Reader that does not
// disturb the caller's own cursor.
func (r *Reader) Bytes() []byte {
	return r.b
}

// Slice returns the bytes of the underlying buffer in [start, end),
// regardless of the current cursor position. Used to recover the raw
// encoding of a span already scanned past (e.g. a constant expression).
func (r *Reader) Slice(start, end uint32) []byte {
	return r.b[start:end]
}
