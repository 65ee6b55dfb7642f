package buffer

// Reader is a sequential cursor over a ResizableBuffer. Codecs that read
// a request/response body hold one of these rather than threading raw
// offsets through every call. One Reader is cached per checked-out buffer
// (see ResizableBuffer.Reader).
type Reader struct {
	buf *ResizableBuffer
	off int
}

// Reset rebinds the reader to buf at offset 0.
func (r *Reader) Reset(buf *ResizableBuffer) {
	r.buf = buf
	r.off = 0
}

// Offset returns the current read cursor.
func (r *Reader) Offset() int { return r.off }

// Buf returns the underlying buffer, for codecs (e.g. packedint) that
// operate on explicit (buffer, offset) pairs rather than the cursor API.
func (r *Reader) Buf() *ResizableBuffer { return r.buf }

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(offset int) { r.off = offset }

// Remaining returns how many bytes are left before the buffer's logical
// length.
func (r *Reader) Remaining() int { return r.buf.Len() - r.off }

func (r *Reader) Uint8() (byte, error) {
	v, err := r.buf.ReadUint8(r.off)
	if err == nil {
		r.off++
	}
	return v, err
}

func (r *Reader) Int8() (int8, error) {
	v, err := r.Uint8()
	return int8(v), err
}

func (r *Reader) Uint16BE() (uint16, error) {
	v, err := r.buf.ReadUint16BE(r.off)
	if err == nil {
		r.off += 2
	}
	return v, err
}

func (r *Reader) Int32BE() (int32, error) {
	v, err := r.buf.ReadInt32BE(r.off)
	if err == nil {
		r.off += 4
	}
	return v, err
}

func (r *Reader) Uint32BE() (uint32, error) {
	v, err := r.buf.ReadUint32BE(r.off)
	if err == nil {
		r.off += 4
	}
	return v, err
}

func (r *Reader) Int64BE() (int64, error) {
	v, err := r.buf.ReadInt64BE(r.off)
	if err == nil {
		r.off += 8
	}
	return v, err
}

func (r *Reader) DoubleBE() (float64, error) {
	v, err := r.buf.ReadDoubleBE(r.off)
	if err == nil {
		r.off += 8
	}
	return v, err
}

// Bytes reads and advances past n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	out, err := r.buf.Slice(r.off, r.off+n)
	if err == nil {
		r.off += n
	}
	return out, err
}

// Writer is a sequential append-cursor over a ResizableBuffer.
type Writer struct {
	buf *ResizableBuffer
}

// Reset rebinds the writer to buf at its current logical length.
func (w *Writer) Reset(buf *ResizableBuffer) { w.buf = buf }

func (w *Writer) Offset() int { return w.buf.Len() }

func (w *Writer) Uint8(v byte)         { w.buf.WriteUint8(v, w.buf.Len()) }
func (w *Writer) Int8(v int8)          { w.buf.WriteInt8(v, w.buf.Len()) }
func (w *Writer) Uint16BE(v uint16)    { w.buf.WriteUint16BE(v, w.buf.Len()) }
func (w *Writer) Int32BE(v int32)      { w.buf.WriteInt32BE(v, w.buf.Len()) }
func (w *Writer) Uint32BE(v uint32)    { w.buf.WriteUint32BE(v, w.buf.Len()) }
func (w *Writer) Int64BE(v int64)      { w.buf.WriteInt64BE(v, w.buf.Len()) }
func (w *Writer) DoubleBE(v float64)   { w.buf.WriteDoubleBE(v, w.buf.Len()) }
func (w *Writer) Bytes(b []byte)       { w.buf.AppendBytes(b) }
