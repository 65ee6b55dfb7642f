package wirenson

import (
	"time"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/packedint"
	"progressdb/nosqldb/pkg/wirebinary"

	"github.com/cockroachdb/errors"
)

// timestampLayout mirrors wirebinary's ISO-8601-without-Z format so NSON
// timestamps parse identically to the binary protocol's.
const timestampLayout = "2006-01-02T15:04:05.999999999"

// FrameKind distinguishes the two composite shapes a Reader can descend
// into.
type FrameKind int

const (
	FrameMap FrameKind = iota
	FrameArray
)

type readFrame struct {
	kind        FrameKind
	byteLen     int32
	bodyStart   int
	declared    int32
	consumed    int32
}

// Reader walks an NSON document token by token. Calling Next is the only
// way to advance: inside a map frame it first consumes the entry's key,
// then reads the next value's type tag. EnterMap/EnterArray descend into a
// composite just read; ExitMap/ExitArray pop back out and validate that
// exactly byteLen bytes of body were consumed (spec §4.4).
type Reader struct {
	r       *buffer.Reader
	stack   []readFrame
	curType fieldvalue.Type
	curKey  string
}

// NewReader wraps an existing buffer cursor. The Reader advances r in
// place; it does not own or reset it, so callers that have already
// consumed framing bytes (e.g. the serial version prefix) keep that
// progress.
func NewReader(r *buffer.Reader) *Reader { return &Reader{r: r} }

// Type returns the type tag most recently read by Next.
func (rd *Reader) Type() fieldvalue.Type { return rd.curType }

// Key returns the map entry key most recently consumed by Next. Only
// meaningful when the current frame is a map.
func (rd *Reader) Key() string { return rd.curKey }

// Depth reports how many composites are currently open.
func (rd *Reader) Depth() int { return len(rd.stack) }

// Next reads the next token: a key (if inside a map frame) followed by a
// 1-byte type tag. The caller inspects Type()/Key() and then either reads
// a scalar value, calls EnterMap/EnterArray, or calls SkipValue.
func (rd *Reader) Next() (fieldvalue.Type, error) {
	if n := len(rd.stack); n > 0 && rd.stack[n-1].kind == FrameMap {
		k, err := wirebinary.ReadString(rd.r)
		if err != nil {
			return 0, errors.Wrap(err, "wirenson: read map entry key")
		}
		if k != nil {
			rd.curKey = *k
		} else {
			rd.curKey = ""
		}
	}
	tb, err := rd.r.Uint8()
	if err != nil {
		return 0, err
	}
	rd.curType = fieldvalue.Type(tb)
	return rd.curType, nil
}

// EnterMap reads the 8-byte header of the MAP value just announced by
// Next and pushes a frame, returning the declared element count.
func (rd *Reader) EnterMap() (int32, error) { return rd.enter(FrameMap) }

// EnterArray is EnterMap's counterpart for ARRAY values.
func (rd *Reader) EnterArray() (int32, error) { return rd.enter(FrameArray) }

func (rd *Reader) enter(kind FrameKind) (int32, error) {
	byteLen, err := rd.r.Int32BE()
	if err != nil {
		return 0, err
	}
	count, err := rd.r.Int32BE()
	if err != nil {
		return 0, err
	}
	if count < 0 || count > MaxElementCount {
		return 0, errors.Newf("wirenson: element count %d out of bounds", count)
	}
	rd.stack = append(rd.stack, readFrame{
		kind:      kind,
		byteLen:   byteLen,
		bodyStart: rd.r.Offset(),
		declared:  count,
	})
	return count, nil
}

// ExitMap/ExitArray pop the current frame and validate that the bytes
// consumed since EnterMap/EnterArray match the declared byte-length
// exactly (spec §8 property 5).
func (rd *Reader) ExitMap() error   { return rd.exit(FrameMap) }
func (rd *Reader) ExitArray() error { return rd.exit(FrameArray) }

func (rd *Reader) exit(kind FrameKind) error {
	n := len(rd.stack)
	if n == 0 || rd.stack[n-1].kind != kind {
		return errors.New("wirenson: mismatched frame exit")
	}
	f := rd.stack[n-1]
	rd.stack = rd.stack[:n-1]
	if consumed := rd.r.Offset() - f.bodyStart; consumed != int(f.byteLen) {
		return errors.Newf("wirenson: byte-length mismatch: declared %d, consumed %d", f.byteLen, consumed)
	}
	return nil
}

// SkipValue discards the value whose type tag was just read by Next,
// without inspecting its contents. For MAP/ARRAY it jumps straight past
// the declared byte-length rather than descending (spec §4.4 "a reader
// can skip any subtree without understanding its contents").
func (rd *Reader) SkipValue() error {
	switch rd.curType {
	case fieldvalue.TypeJSONNull, fieldvalue.TypeNull, fieldvalue.TypeEmpty:
		return nil
	case fieldvalue.TypeBoolean:
		_, err := wirebinary.ReadBoolean(rd.r)
		return err
	case fieldvalue.TypeInteger:
		_, err := wirebinary.ReadInt(rd.r)
		return err
	case fieldvalue.TypeLong:
		_, next, err := packedint.ReadSortedBigInt(rd.r.Buf(), rd.r.Offset())
		if err != nil {
			return err
		}
		rd.r.Seek(next)
		return nil
	case fieldvalue.TypeDouble:
		_, err := wirebinary.ReadDouble(rd.r)
		return err
	case fieldvalue.TypeNumber, fieldvalue.TypeString, fieldvalue.TypeTimestamp:
		_, err := wirebinary.ReadString(rd.r)
		return err
	case fieldvalue.TypeBinary:
		_, err := wirebinary.ReadBinary(rd.r)
		return err
	case fieldvalue.TypeMap, fieldvalue.TypeArray:
		byteLen, err := rd.r.Int32BE()
		if err != nil {
			return err
		}
		if _, err := rd.r.Int32BE(); err != nil {
			return err
		}
		rd.r.Seek(rd.r.Offset() + int(byteLen))
		return nil
	default:
		return errors.Newf("wirenson: unknown type tag %d", byte(rd.curType))
	}
}

// ReadBool, ReadInt, etc. read the scalar value whose tag was just
// returned by Next. The caller is responsible for checking Type() first.
func (rd *Reader) ReadBool() (bool, error)       { return wirebinary.ReadBoolean(rd.r) }
func (rd *Reader) ReadInt() (int32, error)       { return wirebinary.ReadInt(rd.r) }
func (rd *Reader) ReadDouble() (float64, error)  { return wirebinary.ReadDouble(rd.r) }
func (rd *Reader) ReadBinary() ([]byte, error)   { return wirebinary.ReadBinary(rd.r) }

func (rd *Reader) ReadLong() (fieldvalue.Value, error) {
	big, next, err := packedint.ReadSortedBigInt(rd.r.Buf(), rd.r.Offset())
	if err != nil {
		return fieldvalue.Value{}, err
	}
	rd.r.Seek(next)
	if big.IsInt64() {
		return fieldvalue.Long(big.Int64()), nil
	}
	return fieldvalue.LongBig(big), nil
}

func (rd *Reader) ReadString() (string, error) {
	s, err := wirebinary.ReadString(rd.r)
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}

func (rd *Reader) ReadNumber() (fieldvalue.Number, error) {
	s, err := rd.ReadString()
	if err != nil {
		return fieldvalue.Number{}, err
	}
	return fieldvalue.NewNumberFromString(s)
}

// ReadValue reads a complete value (scalar or composite) using the
// progressive token API, reconstructing a fieldvalue.Value tree. This
// supports the FieldValue round-trip property (spec §8 property 4) at the
// NSON layer.
func (rd *Reader) ReadValue() (fieldvalue.Value, error) {
	switch rd.curType {
	case fieldvalue.TypeJSONNull:
		return fieldvalue.JSONNull(), nil
	case fieldvalue.TypeNull:
		return fieldvalue.Null(), nil
	case fieldvalue.TypeEmpty:
		return fieldvalue.Empty(), nil
	case fieldvalue.TypeBoolean:
		b, err := rd.ReadBool()
		return fieldvalue.Bool(b), err
	case fieldvalue.TypeInteger:
		i, err := rd.ReadInt()
		return fieldvalue.Int(i), err
	case fieldvalue.TypeLong:
		return rd.ReadLong()
	case fieldvalue.TypeDouble:
		d, err := rd.ReadDouble()
		return fieldvalue.Double(d), err
	case fieldvalue.TypeNumber:
		n, err := rd.ReadNumber()
		return fieldvalue.DecimalNumber(n), err
	case fieldvalue.TypeString:
		s, err := rd.ReadString()
		return fieldvalue.String(s), err
	case fieldvalue.TypeTimestamp:
		s, err := rd.ReadString()
		if err != nil {
			return fieldvalue.Value{}, err
		}
		t, err := time.Parse(timestampLayout, s)
		if err != nil {
			return fieldvalue.Value{}, errors.Wrap(err, "wirenson: parse timestamp")
		}
		return fieldvalue.Timestamp(t.UTC()), nil
	case fieldvalue.TypeBinary:
		b, err := rd.ReadBinary()
		return fieldvalue.Binary(b), err
	case fieldvalue.TypeArray:
		count, err := rd.EnterArray()
		if err != nil {
			return fieldvalue.Value{}, err
		}
		elems := make([]fieldvalue.Value, 0, count)
		for i := int32(0); i < count; i++ {
			if _, err := rd.Next(); err != nil {
				return fieldvalue.Value{}, err
			}
			v, err := rd.ReadValue()
			if err != nil {
				return fieldvalue.Value{}, err
			}
			elems = append(elems, v)
		}
		if err := rd.ExitArray(); err != nil {
			return fieldvalue.Value{}, err
		}
		return fieldvalue.Array(elems), nil
	case fieldvalue.TypeMap:
		count, err := rd.EnterMap()
		if err != nil {
			return fieldvalue.Value{}, err
		}
		m := fieldvalue.NewMap()
		for i := int32(0); i < count; i++ {
			if _, err := rd.Next(); err != nil {
				return fieldvalue.Value{}, err
			}
			v, err := rd.ReadValue()
			if err != nil {
				return fieldvalue.Value{}, err
			}
			m.Set(rd.Key(), v)
		}
		if err := rd.ExitMap(); err != nil {
			return fieldvalue.Value{}, err
		}
		return fieldvalue.Map(m), nil
	default:
		return fieldvalue.Value{}, errors.Newf("wirenson: unknown type tag %d", byte(rd.curType))
	}
}
