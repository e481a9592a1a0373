// Package codec implements the big-endian binary field encoding shared by every
// wire packet: fixed-width integers, IEEE-754 floats and NUL-terminated UTF-8
// strings over a single forward-only cursor.
package codec

import (
	"errors"
	"fmt"
)

// ErrBufferOverflow is returned when a write would exceed the writer's capacity.
var ErrBufferOverflow = errors.New("buffer overflow")

// ErrBufferUnderrun is returned when a read would pass the end of the buffer.
var ErrBufferUnderrun = errors.New("buffer underrun")

// Field widths in bytes.
const (
	SizeInt8    = 1
	SizeInt16   = 2
	SizeInt32   = 4
	SizeInt64   = 8
	SizeFloat32 = 4
)

// StringSize returns the encoded width of s, including the NUL terminator.
func StringSize(s string) int {
	return len(s) + 1
}

func overflow(n, off, capacity int) error {
	return fmt.Errorf("%w: %d bytes at offset %d exceeds capacity %d", ErrBufferOverflow, n, off, capacity)
}

func underrun(n, off, length int) error {
	return fmt.Errorf("%w: %d bytes at offset %d exceeds length %d", ErrBufferUnderrun, n, off, length)
}
