// Package wirenson implements the V4 NSON wire format (spec §4.4): a
// self-describing map/array format where every value is preceded by its
// 1-byte type code, and MAP/ARRAY values carry an 8-byte
// {byte-length, element-count} header so a reader can skip any subtree
// without understanding its contents.
package wirenson

import (
	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/packedint"
	"progressdb/nosqldb/pkg/wirebinary"

	"github.com/cockroachdb/errors"
)

// MaxElementCount bounds MAP/ARRAY element counts to prevent infinite
// loops on adversarial input (spec §4.4).
const MaxElementCount = 1_000_000_000

type writeFrame struct {
	lenPos int
	count  int32
}

// Writer builds an NSON document depth-first into a ResizableBuffer.
// StartMap/StartArray reserve the 8-byte header and push a stack frame;
// each nested value increments the parent frame's count; EndMap/EndArray
// back-patch the header.
type Writer struct {
	buf   *buffer.ResizableBuffer
	stack []writeFrame
}

// NewWriter returns a Writer appending into buf from its current length.
func NewWriter(buf *buffer.ResizableBuffer) *Writer { return &Writer{buf: buf} }

// afterValue records that one complete value was just written, bumping
// the enclosing frame's element count (if any).
func (w *Writer) afterValue() {
	if len(w.stack) > 0 {
		w.stack[len(w.stack)-1].count++
	}
}

// Key emits a map entry's key string. Must be called immediately before
// the matching value write, and only while the current frame is a map.
func (w *Writer) Key(name string) { wirebinary.WriteString(w.buf, &name) }

func (w *Writer) tag(t fieldvalue.Type) { w.buf.WriteUint8(byte(t), w.buf.Len()) }

func (w *Writer) WriteJSONNull() { w.tag(fieldvalue.TypeJSONNull); w.afterValue() }
func (w *Writer) WriteNull()     { w.tag(fieldvalue.TypeNull); w.afterValue() }
func (w *Writer) WriteEmpty()    { w.tag(fieldvalue.TypeEmpty); w.afterValue() }

func (w *Writer) WriteBool(v bool) {
	w.tag(fieldvalue.TypeBoolean)
	wirebinary.WriteBoolean(w.buf, v)
	w.afterValue()
}

func (w *Writer) WriteInt(v int32) {
	w.tag(fieldvalue.TypeInteger)
	wirebinary.WriteInt(w.buf, v)
	w.afterValue()
}

func (w *Writer) WriteLong(v int64) {
	w.tag(fieldvalue.TypeLong)
	wirebinary.WriteLong(w.buf, v)
	w.afterValue()
}

func (w *Writer) WriteDouble(v float64) {
	w.tag(fieldvalue.TypeDouble)
	wirebinary.WriteDouble(w.buf, v)
	w.afterValue()
}

func (w *Writer) WriteNumber(decimal string) {
	w.tag(fieldvalue.TypeNumber)
	wirebinary.WriteString(w.buf, &decimal)
	w.afterValue()
}

func (w *Writer) WriteString(v string) {
	w.tag(fieldvalue.TypeString)
	wirebinary.WriteString(w.buf, &v)
	w.afterValue()
}

func (w *Writer) WriteBinary(v []byte) {
	w.tag(fieldvalue.TypeBinary)
	wirebinary.WriteBinary(w.buf, v)
	w.afterValue()
}

func (w *Writer) WriteTimestampRaw(isoNoZ string) {
	w.tag(fieldvalue.TypeTimestamp)
	wirebinary.WriteString(w.buf, &isoNoZ)
	w.afterValue()
}

// StartMap reserves the type tag + 8-byte header and pushes a map frame.
func (w *Writer) StartMap() { w.tag(fieldvalue.TypeMap); w.startComposite() }

// StartArray reserves the type tag + 8-byte header and pushes an array
// frame.
func (w *Writer) StartArray() { w.tag(fieldvalue.TypeArray); w.startComposite() }

func (w *Writer) startComposite() {
	lenPos := w.buf.Len()
	w.buf.WriteInt32BE(0, lenPos)
	w.buf.WriteInt32BE(0, w.buf.Len())
	w.stack = append(w.stack, writeFrame{lenPos: lenPos})
}

// EndMap/EndArray pop the current frame, back-patch its header, and count
// the composite as one value of its new parent frame (if any).
func (w *Writer) EndMap()   { w.endComposite() }
func (w *Writer) EndArray() { w.endComposite() }

func (w *Writer) endComposite() {
	n := len(w.stack)
	f := w.stack[n-1]
	w.stack = w.stack[:n-1]
	bodyStart := f.lenPos + 8
	total := w.buf.Len() - bodyStart
	w.buf.WriteInt32BE(int32(total), f.lenPos)
	w.buf.WriteInt32BE(f.count, f.lenPos+4)
	w.afterValue()
}

// WriteIntField, WriteLongField, etc. are the field-typed helpers named
// in spec §4.4: they emit the key then the value.
func (w *Writer) WriteIntField(name string, v int32)       { w.Key(name); w.WriteInt(v) }
func (w *Writer) WriteLongField(name string, v int64)      { w.Key(name); w.WriteLong(v) }
func (w *Writer) WriteBoolField(name string, v bool)       { w.Key(name); w.WriteBool(v) }
func (w *Writer) WriteDoubleField(name string, v float64)  { w.Key(name); w.WriteDouble(v) }
func (w *Writer) WriteStringField(name, v string)          { w.Key(name); w.WriteString(v) }
func (w *Writer) WriteBinaryField(name string, v []byte)   { w.Key(name); w.WriteBinary(v) }
func (w *Writer) StartMapField(name string) {
	w.Key(name)
	w.StartMap()
}
func (w *Writer) StartArrayField(name string) {
	w.Key(name)
	w.StartArray()
}

// WriteValue writes an arbitrary fieldvalue.Value using the progressive
// builder, supporting the FieldValue round-trip property (spec §8
// property 4) at the NSON layer too. sortMapKeys forces key-sorted MAP
// entries (query grouping columns).
func (w *Writer) WriteValue(v fieldvalue.Value, sortMapKeys bool) {
	switch v.Type() {
	case fieldvalue.TypeJSONNull:
		w.WriteJSONNull()
	case fieldvalue.TypeNull:
		w.WriteNull()
	case fieldvalue.TypeEmpty:
		w.WriteEmpty()
	case fieldvalue.TypeBoolean:
		w.WriteBool(v.AsBool())
	case fieldvalue.TypeInteger:
		w.WriteInt(v.AsInt())
	case fieldvalue.TypeLong:
		if v.IsBigLong() {
			w.tag(fieldvalue.TypeLong)
			packedint.WriteSortedBigInt(w.buf, w.buf.Len(), v.AsBigInt())
			w.afterValue()
			return
		}
		w.WriteLong(v.AsLong())
	case fieldvalue.TypeDouble:
		w.WriteDouble(v.AsDouble())
	case fieldvalue.TypeNumber:
		w.WriteNumber(v.AsNumber().StringValue())
	case fieldvalue.TypeString:
		w.WriteString(v.AsString())
	case fieldvalue.TypeTimestamp:
		w.WriteTimestampRaw(v.AsTimestamp().UTC().Format("2006-01-02T15:04:05.999999999"))
	case fieldvalue.TypeBinary:
		w.WriteBinary(v.AsBinary())
	case fieldvalue.TypeArray:
		w.StartArray()
		for _, e := range v.AsArray() {
			w.WriteValue(e, sortMapKeys)
		}
		w.EndArray()
	case fieldvalue.TypeMap:
		m := v.AsMap()
		keys := m.Keys()
		if sortMapKeys {
			keys = m.SortedKeys()
		}
		w.StartMap()
		for _, k := range keys {
			val, _ := m.Get(k)
			w.Key(k)
			w.WriteValue(val, sortMapKeys)
		}
		w.EndMap()
	default:
		panic(errors.Newf("wirenson: unknown field value type %v", v.Type()))
	}
}
