package wirebinary

import (
	"time"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/packedint"

	"github.com/cockroachdb/errors"
)

// WriteSerialVersion writes the 2-byte big-endian serial version that
// opens every request body.
func WriteSerialVersion(buf *buffer.ResizableBuffer, v SerialVersion) {
	buf.WriteUint16BE(uint16(v), buf.Len())
}

// ReadSerialVersion reads the 2-byte big-endian serial version that opens
// every response body (spec SUPPLEMENTED FEATURES: kept at 2 bytes even
// for V2/V3 so one helper serves both binary and NSON parsing).
func ReadSerialVersion(r *buffer.Reader) (SerialVersion, error) {
	v, err := r.Uint16BE()
	return SerialVersion(v), err
}

// WriteOpCode writes the 1-byte opcode.
func WriteOpCode(buf *buffer.ResizableBuffer, op OpCode) {
	buf.WriteUint8(byte(op), buf.Len())
}

// WriteInt writes a packed int32 at the buffer's current end.
func WriteInt(buf *buffer.ResizableBuffer, v int32) {
	packedint.WriteSortedInt32(buf, buf.Len(), v)
}

// WriteLong writes a packed int64 at the buffer's current end.
func WriteLong(buf *buffer.ResizableBuffer, v int64) {
	packedint.WriteSortedInt64(buf, buf.Len(), v)
}

// ReadInt reads a packed int32 via the cursor reader.
func ReadInt(r *buffer.Reader) (int32, error) {
	v, next, err := packedint.ReadSortedInt32(r.Buf(), r.Offset())
	if err != nil {
		return 0, err
	}
	r.Seek(next)
	return v, nil
}

// ReadLong reads a packed int64 via the cursor reader.
func ReadLong(r *buffer.Reader) (int64, error) {
	v, next, err := packedint.ReadSortedInt64(r.Buf(), r.Offset())
	if err != nil {
		return 0, err
	}
	r.Seek(next)
	return v, nil
}

// WriteString writes a packed length followed by UTF-8 bytes. s == nil
// means absent (length -1); a non-nil empty string means length 0 (spec
// §4.3: "Nullable distinction preserved on round trip").
func WriteString(buf *buffer.ResizableBuffer, s *string) {
	if s == nil {
		WriteInt(buf, -1)
		return
	}
	b := []byte(*s)
	WriteInt(buf, int32(len(b)))
	buf.AppendBytes(b)
}

// ReadString reads a packed-length string, returning nil for length -1.
func ReadString(r *buffer.Reader) (*string, error) {
	n, err := ReadInt(r)
	if err != nil {
		return nil, errors.Wrap(err, "wirebinary: read string length")
	}
	if n < 0 {
		return nil, nil
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return nil, errors.Wrap(err, "wirebinary: read string bytes")
	}
	s := string(b)
	return &s, nil
}

// WriteBinary writes a packed length followed by bytes. nil means absent.
func WriteBinary(buf *buffer.ResizableBuffer, b []byte) {
	if b == nil {
		WriteInt(buf, -1)
		return
	}
	WriteInt(buf, int32(len(b)))
	buf.AppendBytes(b)
}

// ReadBinary reads a packed-length byte string, nil for length -1.
func ReadBinary(r *buffer.Reader) ([]byte, error) {
	n, err := ReadInt(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	return r.Bytes(int(n))
}

// WriteBinary2 writes a 4-byte big-endian length followed by bytes, used
// for opaque prepared-statement blobs (spec §4.3).
func WriteBinary2(buf *buffer.ResizableBuffer, b []byte) {
	buf.WriteInt32BE(int32(len(b)), buf.Len())
	buf.AppendBytes(b)
}

// ReadBinary2 reads a 4-byte-length-prefixed byte string.
func ReadBinary2(r *buffer.Reader) ([]byte, error) {
	n, err := r.Int32BE()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// WriteTimeoutMillis writes the request timeout as a raw 4-byte
// big-endian int (spec §4.3: "Every request includes a 4-byte timeout",
// distinct from the packed-int encoding used elsewhere).
func WriteTimeoutMillis(buf *buffer.ResizableBuffer, d time.Duration) {
	buf.WriteInt32BE(int32(d/time.Millisecond), buf.Len())
}

// ReadTimeoutMillis reverses WriteTimeoutMillis.
func ReadTimeoutMillis(r *buffer.Reader) (time.Duration, error) {
	ms, err := r.Int32BE()
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// WriteBoolean writes one byte, 0 or 1.
func WriteBoolean(buf *buffer.ResizableBuffer, b bool) {
	if b {
		buf.WriteUint8(1, buf.Len())
	} else {
		buf.WriteUint8(0, buf.Len())
	}
}

// ReadBoolean reads one byte as a bool.
func ReadBoolean(r *buffer.Reader) (bool, error) {
	v, err := r.Uint8()
	return v != 0, err
}

// WriteDouble writes 8 bytes, big-endian IEEE-754.
func WriteDouble(buf *buffer.ResizableBuffer, v float64) {
	buf.WriteDoubleBE(v, buf.Len())
}

// ReadDouble reads a big-endian IEEE-754 double.
func ReadDouble(r *buffer.Reader) (float64, error) { return r.DoubleBE() }

const isoNoZ = "2006-01-02T15:04:05.999999999"

// WriteDate writes an ISO-8601 string without a trailing Z, length
// prefixed. nil means absent.
func WriteDate(buf *buffer.ResizableBuffer, t *time.Time) {
	if t == nil {
		WriteString(buf, nil)
		return
	}
	s := t.UTC().Format(isoNoZ)
	WriteString(buf, &s)
}

// ReadDate reverses WriteDate.
func ReadDate(r *buffer.Reader) (*time.Time, error) {
	s, err := ReadString(r)
	if err != nil || s == nil {
		return nil, err
	}
	t, err := time.Parse(isoNoZ, *s)
	if err != nil {
		return nil, errors.Wrap(err, "wirebinary: parse date")
	}
	t = t.UTC()
	return &t, nil
}

// WriteTTL writes {duration, unit}. nil encodes as duration -1.
func WriteTTL(buf *buffer.ResizableBuffer, ttl *TTL) {
	if ttl == nil {
		WriteLong(buf, -1)
		buf.WriteUint8(byte(TTLDays), buf.Len())
		return
	}
	WriteLong(buf, ttl.Duration)
	buf.WriteUint8(byte(ttl.Unit), buf.Len())
}

// ReadTTL reverses WriteTTL, returning nil for duration -1.
func ReadTTL(r *buffer.Reader) (*TTL, error) {
	dur, err := ReadLong(r)
	if err != nil {
		return nil, err
	}
	unit, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if dur < 0 {
		return nil, nil
	}
	return &TTL{Duration: dur, Unit: TTLUnit(unit)}, nil
}

// WriteDurability writes the packed byte (V3+ only). nil encodes as 0.
func WriteDurability(buf *buffer.ResizableBuffer, d *Durability) {
	if d == nil {
		buf.WriteUint8(0, buf.Len())
		return
	}
	buf.WriteUint8(d.Pack(), buf.Len())
}

// ReadDurability reverses WriteDurability.
func ReadDurability(r *buffer.Reader) (Durability, error) {
	b, err := r.Uint8()
	if err != nil {
		return Durability{}, err
	}
	return UnpackDurability(b), nil
}

// WriteFieldRange writes a present-flag, then (if set) the bounded field.
func WriteFieldRange(buf *buffer.ResizableBuffer, fr *FieldRange) {
	if fr == nil {
		WriteBoolean(buf, false)
		return
	}
	WriteBoolean(buf, true)
	name := fr.FieldName
	WriteString(buf, &name)
	writeRangeBound(buf, fr.Start)
	writeRangeBound(buf, fr.End)
}

func writeRangeBound(buf *buffer.ResizableBuffer, b *RangeBound) {
	if b == nil {
		WriteBoolean(buf, false)
		return
	}
	WriteBoolean(buf, true)
	WriteFieldValue(buf, b.Value, false)
	WriteBoolean(buf, b.Inclusive)
}

// ReadFieldRange reverses WriteFieldRange.
func ReadFieldRange(r *buffer.Reader) (*FieldRange, error) {
	present, err := ReadBoolean(r)
	if err != nil || !present {
		return nil, err
	}
	name, err := ReadString(r)
	if err != nil {
		return nil, err
	}
	start, err := readRangeBound(r)
	if err != nil {
		return nil, err
	}
	end, err := readRangeBound(r)
	if err != nil {
		return nil, err
	}
	fr := &FieldRange{Start: start, End: end}
	if name != nil {
		fr.FieldName = *name
	}
	return fr, nil
}

func readRangeBound(r *buffer.Reader) (*RangeBound, error) {
	present, err := ReadBoolean(r)
	if err != nil || !present {
		return nil, err
	}
	v, err := ReadFieldValue(r)
	if err != nil {
		return nil, err
	}
	inclusive, err := ReadBoolean(r)
	if err != nil {
		return nil, err
	}
	return &RangeBound{Value: v, Inclusive: inclusive}, nil
}

// ReadErrorCode reads the 1-byte (packed-int encoded as a plain int here,
// matching the wire's leading error-code field) response status: 0 means
// success (spec §4.3: "The first response byte is the error code").
func ReadErrorCode(r *buffer.Reader) (int32, error) { return ReadInt(r) }

// WriteRawErrorCodeByte writes a single unencoded byte carrying the
// legacy explicit error code a pre-V4 server answers with (spec §4.5:
// "at lower versions it is the explicit error code"). This is distinct
// from the packed-int field ReadErrorCode decodes for an ordinary V2/V3
// response body: it exists only so a protocol-downgrade signal (error
// code 17 or 24, spec §9 open question 2) lands on the exact raw byte
// protocol.IsUnsupportedProtocolSignal inspects.
func WriteRawErrorCodeByte(buf *buffer.ResizableBuffer, code byte) {
	buf.WriteUint8(code, buf.Len())
}

// ReadConsumedCapacity reads the {readUnits, readKB, writeKB} triple
// parsed after every data-path response.
func ReadConsumedCapacity(r *buffer.Reader) (ConsumedCapacity, error) {
	ru, err := ReadInt(r)
	if err != nil {
		return ConsumedCapacity{}, err
	}
	rkb, err := ReadInt(r)
	if err != nil {
		return ConsumedCapacity{}, err
	}
	wkb, err := ReadInt(r)
	if err != nil {
		return ConsumedCapacity{}, err
	}
	return ConsumedCapacity{ReadUnits: int(ru), ReadKB: int(rkb), WriteKB: int(wkb)}, nil
}
