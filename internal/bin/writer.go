// Package bin implements the growable, cursor-addressed byte buffer shared
// by the arc and gsc assemblers. It is the one place that knows how to turn
// a typed value into bytes at a given offset; everything about engine
// variation (widths, endianness, alignment rules) is a parameter passed in
// by the caller, never hard-coded here.
package bin

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrOverflow is returned when a write would extend past a caller-imposed
// capacity limit.
var ErrOverflow = errors.New("bin: write exceeds buffer capacity")

// Writer is a growable byte buffer with an absolute cursor and
// endian-aware typed writes. The zero value is not usable; construct with
// New.
type Writer struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
	limit int // 0 means unbounded
	err   error
}

// New returns a Writer that encodes integers using order. If limit is
// greater than zero, any write that would grow the buffer past limit bytes
// fails with ErrOverflow instead of growing further.
func New(order binary.ByteOrder, limit int) *Writer {
	return &Writer{order: order, limit: limit}
}

// Reset clears the buffer and cursor so the Writer can be reused across
// successive assemble calls without reallocating.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.pos = 0
	w.err = nil
}

// Err returns the first error encountered by a write since the last Reset.
func (w *Writer) Err() error { return w.err }

// Pos returns the absolute cursor position.
func (w *Writer) Pos() int { return w.pos }

// SetPos moves the cursor to an absolute position without writing.
func (w *Writer) SetPos(n int) { w.pos = n }

// Len returns the length of the written prefix, i.e. the furthest byte
// written or sought past since the last Reset.
func (w *Writer) Len() int { return len(w.buf) }

// Data returns an immutable view of the written prefix.
func (w *Writer) Data() []byte { return w.buf }

func (w *Writer) grow(end int) bool {
	if w.err != nil {
		return false
	}
	if w.limit > 0 && end > w.limit {
		w.err = errors.Wrapf(ErrOverflow, "at offset %d, limit %d", end, w.limit)
		return false
	}
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	return true
}

// Seek advances the cursor by n bytes without writing, zero-filling the
// range if it grows the buffer.
func (w *Writer) Seek(n int) {
	w.grow(w.pos + n)
	w.pos += n
}

// Align advances the cursor to the next multiple of n, zero-filling the
// skipped bytes, and returns how many bytes were skipped.
func (w *Writer) Align(n int) int {
	if n <= 1 {
		return 0
	}
	pad := (n - (w.pos % n)) % n
	if pad > 0 {
		w.Seek(pad)
	}
	return pad
}

func (w *Writer) put(p []byte) {
	end := w.pos + len(p)
	if !w.grow(end) {
		return
	}
	copy(w.buf[w.pos:end], p)
	w.pos = end
}

// WriteU8 writes an unsigned byte at the cursor.
func (w *Writer) WriteU8(v uint8) { w.put([]byte{v}) }

// WriteI8 writes a signed byte at the cursor.
func (w *Writer) WriteI8(v int8) { w.WriteU8(uint8(v)) }

// WriteU16 writes an unsigned 16-bit value in the writer's endianness.
func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.put(b[:])
}

// WriteI16 writes a signed 16-bit value in the writer's endianness.
func (w *Writer) WriteI16(v int16) { w.WriteU16(uint16(v)) }

// WriteI24 writes the low 24 bits of v as a packed three-byte signed
// integer in the writer's endianness.
func (w *Writer) WriteI24(v int32) {
	u := uint32(v) & 0x00FFFFFF
	var b [3]byte
	if w.order == binary.BigEndian {
		b[0] = byte(u >> 16)
		b[1] = byte(u >> 8)
		b[2] = byte(u)
	} else {
		b[0] = byte(u)
		b[1] = byte(u >> 8)
		b[2] = byte(u >> 16)
	}
	w.put(b[:])
}

// WriteU32 writes an unsigned 32-bit value in the writer's endianness.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.put(b[:])
}

// WriteI32 writes a signed 32-bit value in the writer's endianness.
func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

// WriteU64 writes an unsigned 64-bit value in the writer's endianness.
func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	w.put(b[:])
}

// WriteI64 writes a signed 64-bit value in the writer's endianness.
func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

// WriteF32 writes an IEEE-754 single-precision float in the writer's
// endianness.
func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }

// WriteBytes writes p's bytes verbatim at the cursor.
func (w *Writer) WriteBytes(p []byte) { w.put(p) }

// WriteCString writes the bytes of s followed by a trailing NUL.
func (w *Writer) WriteCString(s string) {
	w.put([]byte(s))
	w.WriteU8(0)
}
