package codec

import (
	"encoding/binary"
	"math"
)

// Writer encodes fields into a buffer pre-allocated to a fixed capacity.
// The cursor only moves forward.
type Writer struct {
	buf []byte
	off int
}

// NewWriter allocates a Writer with the given maximum capacity.
//
// Precondition: capacity must be >= 0.
// Postcondition: Returns a Writer with Len() == 0 and Cap() == capacity.
func NewWriter(capacity int) *Writer {
	if capacity < 0 {
		capacity = 0
	}
	return &Writer{buf: make([]byte, capacity)}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.off }

// Cap returns the current size of the backing buffer.
func (w *Writer) Cap() int { return len(w.buf) }

func (w *Writer) reserve(n int) ([]byte, error) {
	if w.off+n > len(w.buf) {
		return nil, overflow(n, w.off, len(w.buf))
	}
	b := w.buf[w.off : w.off+n]
	w.off += n
	return b, nil
}

// WriteInt8 writes a signed byte.
func (w *Writer) WriteInt8(v int8) error {
	b, err := w.reserve(SizeInt8)
	if err != nil {
		return err
	}
	b[0] = byte(v)
	return nil
}

// WriteInt16 writes a signed 16-bit big-endian integer.
func (w *Writer) WriteInt16(v int16) error {
	b, err := w.reserve(SizeInt16)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b, uint16(v))
	return nil
}

// WriteInt32 writes a signed 32-bit big-endian integer.
func (w *Writer) WriteInt32(v int32) error {
	b, err := w.reserve(SizeInt32)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, uint32(v))
	return nil
}

// WriteInt64 writes a signed 64-bit big-endian integer.
func (w *Writer) WriteInt64(v int64) error {
	b, err := w.reserve(SizeInt64)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, uint64(v))
	return nil
}

// WriteFloat32 writes an IEEE-754 single precision float, big-endian.
func (w *Writer) WriteFloat32(v float32) error {
	b, err := w.reserve(SizeFloat32)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
	return nil
}

// WriteString writes the UTF-8 bytes of s followed by a NUL terminator.
// Embedded NUL bytes are not rejected; a reader stops at the first one.
func (w *Writer) WriteString(s string) error {
	b, err := w.reserve(StringSize(s))
	if err != nil {
		return err
	}
	copy(b, s)
	b[len(s)] = 0
	return nil
}

// WriteBytes copies raw bytes without any length prefix or terminator.
func (w *Writer) WriteBytes(p []byte) error {
	b, err := w.reserve(len(p))
	if err != nil {
		return err
	}
	copy(b, p)
	return nil
}

// Bytes returns the written bytes. If the cursor is short of the backing
// buffer, the buffer is first replaced by an exact-length copy, so the
// result never carries unused capacity. Calling Bytes again returns the same
// slice without further copying.
//
// Postcondition: len(result) == Len() and Cap() == Len().
func (w *Writer) Bytes() []byte {
	if w.off != len(w.buf) {
		w.shrink()
	}
	return w.buf
}

// Reset rewinds the cursor to zero and clears the buffer so it can encode a
// new packet. The capacity is whatever the buffer had at the time of the call.
func (w *Writer) Reset() {
	clear(w.buf)
	w.off = 0
}

func (w *Writer) shrink() {
	trimmed := make([]byte, w.off)
	copy(trimmed, w.buf[:w.off])
	w.buf = trimmed
}
