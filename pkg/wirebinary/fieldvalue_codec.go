package wirebinary

import (
	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/packedint"

	"github.com/cockroachdb/errors"
)

// WriteFieldValue writes a 1-byte type-code tag then the type-specific
// encoding (spec §4.3). For MAP/ARRAY: a 4-byte byte-length covering the
// entries that follow, then a 4-byte element count, then the elements.
// sortMapKeys forces key-sorted order for MAP values and is set only by
// the query engine for grouping columns (spec §4.3, §9 open question).
func WriteFieldValue(buf *buffer.ResizableBuffer, v fieldvalue.Value, sortMapKeys bool) {
	buf.WriteUint8(byte(v.Type()), buf.Len())
	switch v.Type() {
	case fieldvalue.TypeJSONNull, fieldvalue.TypeNull, fieldvalue.TypeEmpty:
		// no payload
	case fieldvalue.TypeBoolean:
		WriteBoolean(buf, v.AsBool())
	case fieldvalue.TypeInteger:
		WriteInt(buf, v.AsInt())
	case fieldvalue.TypeLong:
		if v.IsBigLong() {
			packedint.WriteSortedBigInt(buf, buf.Len(), v.AsBigInt())
		} else {
			WriteLong(buf, v.AsLong())
		}
	case fieldvalue.TypeDouble:
		WriteDouble(buf, v.AsDouble())
	case fieldvalue.TypeNumber:
		s := v.AsNumber().StringValue()
		WriteString(buf, &s)
	case fieldvalue.TypeString:
		s := v.AsString()
		WriteString(buf, &s)
	case fieldvalue.TypeTimestamp:
		t := v.AsTimestamp()
		WriteDate(buf, &t)
	case fieldvalue.TypeBinary:
		WriteBinary(buf, v.AsBinary())
	case fieldvalue.TypeArray:
		arr := v.AsArray()
		writeComposite(buf, len(arr), func() {
			for _, e := range arr {
				WriteFieldValue(buf, e, sortMapKeys)
			}
		})
	case fieldvalue.TypeMap:
		m := v.AsMap()
		keys := m.Keys()
		if sortMapKeys {
			keys = m.SortedKeys()
		}
		writeComposite(buf, len(keys), func() {
			for _, k := range keys {
				kk := k
				WriteString(buf, &kk)
				val, _ := m.Get(k)
				WriteFieldValue(buf, val, sortMapKeys)
			}
		})
	}
}

// writeComposite reserves the 8-byte MAP/ARRAY header, invokes body to
// write count entries, then back-patches the byte-length (entries only,
// not including the header itself).
func writeComposite(buf *buffer.ResizableBuffer, count int, body func()) {
	lenPos := buf.Len()
	buf.WriteInt32BE(0, lenPos)
	buf.WriteInt32BE(int32(count), buf.Len())
	start := buf.Len()
	body()
	total := buf.Len() - start
	buf.WriteInt32BE(int32(total), lenPos)
}

// ReadFieldValue reverses WriteFieldValue, validating that MAP/ARRAY
// entries consume exactly the declared byte-length.
func ReadFieldValue(r *buffer.Reader) (fieldvalue.Value, error) {
	tb, err := r.Uint8()
	if err != nil {
		return fieldvalue.Value{}, err
	}
	typ := fieldvalue.Type(tb)
	switch typ {
	case fieldvalue.TypeJSONNull:
		return fieldvalue.JSONNull(), nil
	case fieldvalue.TypeNull:
		return fieldvalue.Null(), nil
	case fieldvalue.TypeEmpty:
		return fieldvalue.Empty(), nil
	case fieldvalue.TypeBoolean:
		b, err := ReadBoolean(r)
		return fieldvalue.Bool(b), err
	case fieldvalue.TypeInteger:
		i, err := ReadInt(r)
		return fieldvalue.Int(i), err
	case fieldvalue.TypeLong:
		big, next, err := packedint.ReadSortedBigInt(r.Buf(), r.Offset())
		if err != nil {
			return fieldvalue.Value{}, err
		}
		r.Seek(next)
		if big.IsInt64() {
			return fieldvalue.Long(big.Int64()), nil
		}
		return fieldvalue.LongBig(big), nil
	case fieldvalue.TypeDouble:
		d, err := ReadDouble(r)
		return fieldvalue.Double(d), err
	case fieldvalue.TypeNumber:
		s, err := ReadString(r)
		if err != nil || s == nil {
			return fieldvalue.Value{}, err
		}
		n, err := fieldvalue.NewNumberFromString(*s)
		if err != nil {
			return fieldvalue.Value{}, errors.Wrap(err, "wirebinary: parse NUMBER")
		}
		return fieldvalue.DecimalNumber(n), nil
	case fieldvalue.TypeString:
		s, err := ReadString(r)
		if err != nil {
			return fieldvalue.Value{}, err
		}
		if s == nil {
			return fieldvalue.Value{}, errors.New("wirebinary: STRING field missing value")
		}
		return fieldvalue.String(*s), nil
	case fieldvalue.TypeTimestamp:
		t, err := ReadDate(r)
		if err != nil || t == nil {
			return fieldvalue.Value{}, err
		}
		return fieldvalue.Timestamp(*t), nil
	case fieldvalue.TypeBinary:
		b, err := ReadBinary(r)
		return fieldvalue.Binary(b), err
	case fieldvalue.TypeArray:
		elems, err := readComposite(r, func() (fieldvalue.Value, error) { return ReadFieldValue(r) })
		if err != nil {
			return fieldvalue.Value{}, err
		}
		return fieldvalue.Array(elems), nil
	case fieldvalue.TypeMap:
		m := fieldvalue.NewMap()
		_, err := readComposite(r, func() (fieldvalue.Value, error) {
			k, err := ReadString(r)
			if err != nil {
				return fieldvalue.Value{}, err
			}
			v, err := ReadFieldValue(r)
			if err != nil {
				return fieldvalue.Value{}, err
			}
			if k != nil {
				m.Set(*k, v)
			}
			return fieldvalue.Value{}, nil
		})
		if err != nil {
			return fieldvalue.Value{}, err
		}
		return fieldvalue.Map(m), nil
	default:
		return fieldvalue.Value{}, errors.Newf("wirebinary: unknown field value type %d", tb)
	}
}

// readComposite reads the 8-byte header, invokes readOne count times, and
// validates the declared byte-length was consumed exactly.
func readComposite(r *buffer.Reader, readOne func() (fieldvalue.Value, error)) ([]fieldvalue.Value, error) {
	byteLen, err := r.Int32BE()
	if err != nil {
		return nil, err
	}
	count, err := r.Int32BE()
	if err != nil {
		return nil, err
	}
	start := r.Offset()
	out := make([]fieldvalue.Value, 0, count)
	for i := int32(0); i < count; i++ {
		v, err := readOne()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if consumed := r.Offset() - start; consumed != int(byteLen) {
		return nil, errors.Newf("wirebinary: MAP/ARRAY byte-length mismatch: declared %d, consumed %d", byteLen, consumed)
	}
	return out, nil
}
