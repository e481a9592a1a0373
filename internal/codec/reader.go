package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
)

// Reader decodes fields from a buffer delivered at its exact length.
// The cursor only moves forward.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps b. The Reader never modifies b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Len returns the total size of the underlying buffer.
func (r *Reader) Len() int { return len(r.buf) }

// Offset returns the current cursor position.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, underrun(n, r.off, len(r.buf))
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadInt8 reads a signed byte.
func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.take(SizeInt8)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

// ReadInt16 reads a signed 16-bit big-endian integer.
func (r *Reader) ReadInt16() (int16, error) {
	b, err := r.take(SizeInt16)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

// ReadInt32 reads a signed 32-bit big-endian integer.
func (r *Reader) ReadInt32() (int32, error) {
	b, err := r.take(SizeInt32)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// ReadInt64 reads a signed 64-bit big-endian integer.
func (r *Reader) ReadInt64() (int64, error) {
	b, err := r.take(SizeInt64)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// ReadFloat32 reads an IEEE-754 single precision float, big-endian.
func (r *Reader) ReadFloat32() (float32, error) {
	b, err := r.take(SizeFloat32)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

// ReadString scans from the cursor up to the next NUL byte or the end of the
// buffer and decodes the span as UTF-8. The cursor moves past the terminator,
// or to the end of the buffer when the string is unterminated.
//
// Postcondition: never fails; invalid UTF-8 sequences decode as U+FFFD.
func (r *Reader) ReadString() string {
	rest := r.buf[r.off:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		r.off = len(r.buf)
		return strings.ToValidUTF8(string(rest), "\uFFFD")
	}
	r.off += end + 1
	return strings.ToValidUTF8(string(rest[:end]), "\uFFFD")
}

// ReadBytes reads exactly n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.take(n)
}

// Rest returns every unread byte and moves the cursor to the end.
func (r *Reader) Rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}
