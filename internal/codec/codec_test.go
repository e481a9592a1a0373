package codec

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWriter_BigEndianLayout(t *testing.T) {
	w := NewWriter(64)
	require.NoError(t, w.WriteInt8(-1))
	require.NoError(t, w.WriteInt16(0x0102))
	require.NoError(t, w.WriteInt32(0x01020304))
	require.NoError(t, w.WriteString("ab"))

	assert.Equal(t, []byte{0xFF, 0x01, 0x02, 0x01, 0x02, 0x03, 0x04, 'a', 'b', 0x00}, w.Bytes())
}

func TestWriter_BytesShrinksToWritten(t *testing.T) {
	w := NewWriter(1024)
	require.NoError(t, w.WriteInt32(7))
	require.NoError(t, w.WriteInt8(1))

	first := w.Bytes()
	assert.Len(t, first, SizeInt32+SizeInt8)
	assert.Equal(t, w.Len(), w.Cap())

	second := w.Bytes()
	assert.Equal(t, first, second)
	assert.Same(t, &first[0], &second[0], "second call must not copy again")
}

func TestWriter_BytesEmpty(t *testing.T) {
	w := NewWriter(16)
	assert.Empty(t, w.Bytes())
	assert.Equal(t, 0, w.Cap())
}

func TestWriter_Overflow(t *testing.T) {
	w := NewWriter(3)
	require.NoError(t, w.WriteInt16(1))
	err := w.WriteInt32(2)
	require.ErrorIs(t, err, ErrBufferOverflow)
	assert.Equal(t, SizeInt16, w.Len(), "failed write must not move the cursor")

	err = w.WriteString("xy")
	assert.ErrorIs(t, err, ErrBufferOverflow)
}

func TestWriter_Reset(t *testing.T) {
	w := NewWriter(8)
	require.NoError(t, w.WriteInt32(99))
	w.Reset()
	assert.Equal(t, 0, w.Len())
	require.NoError(t, w.WriteInt8(5))
	assert.Equal(t, []byte{5}, w.Bytes())
}

func TestReader_Underrun(t *testing.T) {
	r := NewReader([]byte{0x00, 0x01})
	_, err := r.ReadInt32()
	require.ErrorIs(t, err, ErrBufferUnderrun)
	assert.Equal(t, 0, r.Offset())

	v, err := r.ReadInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(1), v)

	_, err = r.ReadInt8()
	assert.ErrorIs(t, err, ErrBufferUnderrun)
	_, err = r.ReadInt64()
	assert.ErrorIs(t, err, ErrBufferUnderrun)
	_, err = r.ReadFloat32()
	assert.ErrorIs(t, err, ErrBufferUnderrun)
}

func TestReader_UnterminatedString(t *testing.T) {
	r := NewReader([]byte("hello"))
	assert.Equal(t, "hello", r.ReadString())
	assert.Equal(t, 0, r.Remaining())
	assert.Equal(t, "", r.ReadString(), "reading at the end must not fail")
}

func TestReader_StringStopsAtFirstNUL(t *testing.T) {
	r := NewReader([]byte{'a', 0, 'b', 0})
	assert.Equal(t, "a", r.ReadString())
	assert.Equal(t, "b", r.ReadString())
	assert.Equal(t, 4, r.Offset())
}

func TestReader_InvalidUTF8(t *testing.T) {
	r := NewReader([]byte{0xff, 'a', 0})
	assert.Equal(t, "\uFFFDa", r.ReadString())
}

func TestReader_Rest(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	_, err := r.ReadInt8()
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3}, r.Rest())
	assert.Equal(t, 0, r.Remaining())
}

// Property: every supported field type survives a write/read round trip and
// the reader consumes exactly what the writer produced.
func TestPropertyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		i8 := rapid.Int8().Draw(t, "i8")
		i16 := rapid.Int16().Draw(t, "i16")
		i32 := rapid.Int32().Draw(t, "i32")
		i64 := rapid.Int64().Draw(t, "i64")
		f32 := rapid.Float32().Draw(t, "f32")
		s := strings.ReplaceAll(rapid.String().Draw(t, "s"), "\x00", "")

		w := NewWriter(SizeInt8 + SizeInt16 + SizeInt32 + SizeInt64 + SizeFloat32 + StringSize(s) + 16)
		for _, err := range []error{
			w.WriteInt8(i8), w.WriteInt16(i16), w.WriteInt32(i32),
			w.WriteInt64(i64), w.WriteFloat32(f32), w.WriteString(s),
		} {
			if err != nil {
				t.Fatalf("write failed: %v", err)
			}
		}

		buf := w.Bytes()
		if len(buf) != SizeInt8+SizeInt16+SizeInt32+SizeInt64+SizeFloat32+StringSize(s) {
			t.Fatalf("materialized length %d does not match field widths", len(buf))
		}

		r := NewReader(buf)
		g8, _ := r.ReadInt8()
		g16, _ := r.ReadInt16()
		g32, _ := r.ReadInt32()
		g64, _ := r.ReadInt64()
		gf, _ := r.ReadFloat32()
		gs := r.ReadString()

		if g8 != i8 || g16 != i16 || g32 != i32 || g64 != i64 {
			t.Fatalf("integer mismatch: got %d %d %d %d", g8, g16, g32, g64)
		}
		if math.Float32bits(gf) != math.Float32bits(f32) {
			t.Fatalf("float mismatch: got %v want %v", gf, f32)
		}
		if gs != s {
			t.Fatalf("string mismatch: got %q want %q", gs, s)
		}
		if r.Remaining() != 0 {
			t.Fatalf("reader left %d bytes unread", r.Remaining())
		}
	})
}

// Property: the cursor never moves backwards across a sequence of writes,
// including failed ones.
func TestPropertyWriterCursorMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := NewWriter(rapid.IntRange(0, 32).Draw(t, "capacity"))
		ops := rapid.SliceOfN(rapid.IntRange(0, 3), 1, 20).Draw(t, "ops")
		last := 0
		for _, op := range ops {
			switch op {
			case 0:
				_ = w.WriteInt8(1)
			case 1:
				_ = w.WriteInt16(1)
			case 2:
				_ = w.WriteInt32(1)
			case 3:
				_ = w.WriteString("x")
			}
			if w.Len() < last {
				t.Fatalf("cursor moved backwards: %d -> %d", last, w.Len())
			}
			if w.Len() > w.Cap() {
				t.Fatalf("cursor %d beyond capacity %d", w.Len(), w.Cap())
			}
			last = w.Len()
		}
	})
}
