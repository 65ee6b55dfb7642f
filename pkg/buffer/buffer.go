package buffer

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
)

// ErrEndOfInput is returned (wrapped with position detail) when a read
// would run past the buffer's logical length. Higher layers treat this as
// a protocol error.
var ErrEndOfInput = errors.New("buffer: read past end of input")

// ResizableBuffer is an owned byte region with logical length <= capacity.
// The exposed byte span is always [0, Len()). Growth doubles capacity, or
// jumps straight to the required size if that is larger. Only a Pool
// should construct one via Acquire; a zero-value ResizableBuffer is not
// usable.
type ResizableBuffer struct {
	bb   *bytebufferpool.ByteBuffer
	pool *Pool

	// reader/writer are lazily attached scratch objects reused for the
	// lifetime of this checkout (see §4.1/§9 "per-buffer lazily attached
	// reader/writer objects"); Pool.Acquire builds a new wrapper each time.
	reader *Reader
	writer *Writer
}

// Len returns the buffer's logical length.
func (r *ResizableBuffer) Len() int { return len(r.bb.B) }

// Cap returns the buffer's current capacity.
func (r *ResizableBuffer) Cap() int { return cap(r.bb.B) }

// Bytes exposes the underlying contiguous [0, Len()) byte span so codecs
// can use platform integer/float encoders directly.
func (r *ResizableBuffer) Bytes() []byte { return r.bb.B }

// Clear resets the logical length to zero without releasing capacity.
func (r *ResizableBuffer) Clear() { r.bb.B = r.bb.B[:0] }

// EnsureExtraCapacity guarantees at least n further bytes can be written
// without reallocating, without changing Len().
func (r *ResizableBuffer) EnsureExtraCapacity(n int) {
	r.ensureCapacity(len(r.bb.B) + n)
}

func (r *ResizableBuffer) ensureCapacity(required int) {
	if cap(r.bb.B) >= required {
		return
	}
	newCap := 2 * cap(r.bb.B)
	if newCap < required {
		newCap = required
	}
	grown := make([]byte, len(r.bb.B), newCap)
	copy(grown, r.bb.B)
	r.bb.B = grown
}

// growLen extends the logical length to at least newLen, zero-filling any
// newly exposed gap, and returns the buffer's backing slice.
func (r *ResizableBuffer) growLen(newLen int) []byte {
	if newLen <= len(r.bb.B) {
		return r.bb.B
	}
	r.ensureCapacity(newLen)
	old := len(r.bb.B)
	r.bb.B = r.bb.B[:newLen]
	for i := old; i < newLen; i++ {
		r.bb.B[i] = 0
	}
	return r.bb.B
}

func (r *ResizableBuffer) checkRead(offset, width int) error {
	if offset < 0 || width < 0 || offset+width > len(r.bb.B) {
		return errors.Wrapf(ErrEndOfInput, "offset=%d width=%d length=%d", offset, width, len(r.bb.B))
	}
	return nil
}

// ReadUint8 reads one byte at offset.
func (r *ResizableBuffer) ReadUint8(offset int) (byte, error) {
	if err := r.checkRead(offset, 1); err != nil {
		return 0, err
	}
	return r.bb.B[offset], nil
}

// ReadInt8 reads one signed byte at offset.
func (r *ResizableBuffer) ReadInt8(offset int) (int8, error) {
	b, err := r.ReadUint8(offset)
	return int8(b), err
}

// ReadUint16BE reads a big-endian uint16 at offset.
func (r *ResizableBuffer) ReadUint16BE(offset int) (uint16, error) {
	if err := r.checkRead(offset, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r.bb.B[offset:]), nil
}

// ReadInt16BE reads a big-endian int16 at offset.
func (r *ResizableBuffer) ReadInt16BE(offset int) (int16, error) {
	v, err := r.ReadUint16BE(offset)
	return int16(v), err
}

// ReadUint32BE reads a big-endian uint32 at offset.
func (r *ResizableBuffer) ReadUint32BE(offset int) (uint32, error) {
	if err := r.checkRead(offset, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(r.bb.B[offset:]), nil
}

// ReadInt32BE reads a big-endian int32 at offset.
func (r *ResizableBuffer) ReadInt32BE(offset int) (int32, error) {
	v, err := r.ReadUint32BE(offset)
	return int32(v), err
}

// ReadUint64BE reads a big-endian uint64 at offset.
func (r *ResizableBuffer) ReadUint64BE(offset int) (uint64, error) {
	if err := r.checkRead(offset, 8); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(r.bb.B[offset:]), nil
}

// ReadInt64BE reads a big-endian int64 at offset.
func (r *ResizableBuffer) ReadInt64BE(offset int) (int64, error) {
	v, err := r.ReadUint64BE(offset)
	return int64(v), err
}

// ReadDoubleBE reads a big-endian IEEE-754 double at offset.
func (r *ResizableBuffer) ReadDoubleBE(offset int) (float64, error) {
	v, err := r.ReadUint64BE(offset)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// WriteUint8 writes one byte at offset, growing as needed, and returns
// the offset past the last byte written.
func (r *ResizableBuffer) WriteUint8(v byte, offset int) int {
	r.growLen(offset + 1)
	r.bb.B[offset] = v
	return offset + 1
}

// WriteInt8 writes one signed byte at offset.
func (r *ResizableBuffer) WriteInt8(v int8, offset int) int {
	return r.WriteUint8(byte(v), offset)
}

// WriteUint16BE writes a big-endian uint16 at offset.
func (r *ResizableBuffer) WriteUint16BE(v uint16, offset int) int {
	b := r.growLen(offset + 2)
	binary.BigEndian.PutUint16(b[offset:], v)
	return offset + 2
}

// WriteInt16BE writes a big-endian int16 at offset.
func (r *ResizableBuffer) WriteInt16BE(v int16, offset int) int {
	return r.WriteUint16BE(uint16(v), offset)
}

// WriteUint32BE writes a big-endian uint32 at offset.
func (r *ResizableBuffer) WriteUint32BE(v uint32, offset int) int {
	b := r.growLen(offset + 4)
	binary.BigEndian.PutUint32(b[offset:], v)
	return offset + 4
}

// WriteInt32BE writes a big-endian int32 at offset.
func (r *ResizableBuffer) WriteInt32BE(v int32, offset int) int {
	return r.WriteUint32BE(uint32(v), offset)
}

// WriteUint64BE writes a big-endian uint64 at offset.
func (r *ResizableBuffer) WriteUint64BE(v uint64, offset int) int {
	b := r.growLen(offset + 8)
	binary.BigEndian.PutUint64(b[offset:], v)
	return offset + 8
}

// WriteInt64BE writes a big-endian int64 at offset.
func (r *ResizableBuffer) WriteInt64BE(v int64, offset int) int {
	return r.WriteUint64BE(uint64(v), offset)
}

// WriteDoubleBE writes a big-endian IEEE-754 double at offset.
func (r *ResizableBuffer) WriteDoubleBE(v float64, offset int) int {
	return r.WriteUint64BE(math.Float64bits(v), offset)
}

// AppendBytes appends src at the current length and returns the offset
// past the last byte written.
func (r *ResizableBuffer) AppendBytes(src []byte) int {
	offset := len(r.bb.B)
	b := r.growLen(offset + len(src))
	copy(b[offset:], src)
	return offset + len(src)
}

// WriteBytesAt writes src starting at offset, growing as needed.
func (r *ResizableBuffer) WriteBytesAt(src []byte, offset int) int {
	b := r.growLen(offset + len(src))
	copy(b[offset:], src)
	return offset + len(src)
}

// Slice returns a copy of the bytes in [start, end). Both bounds are
// validated against the logical length.
func (r *ResizableBuffer) Slice(start, end int) ([]byte, error) {
	if start < 0 || end < start || end > len(r.bb.B) {
		return nil, errors.Wrapf(ErrEndOfInput, "slice [%d,%d) length=%d", start, end, len(r.bb.B))
	}
	out := make([]byte, end-start)
	copy(out, r.bb.B[start:end])
	return out, nil
}

// Reader returns this buffer's cached Reader, constructing it on first use
// and rebinding it to this buffer (and offset 0) on every call.
func (r *ResizableBuffer) Reader() *Reader {
	if r.reader == nil {
		r.reader = &Reader{}
	}
	r.reader.Reset(r)
	return r.reader
}

// Writer returns this buffer's cached Writer, constructing it on first use
// and rebinding it to this buffer (and the buffer's current length) on
// every call.
func (r *ResizableBuffer) Writer() *Writer {
	if r.writer == nil {
		r.writer = &Writer{}
	}
	r.writer.Reset(r)
	return r.writer
}
