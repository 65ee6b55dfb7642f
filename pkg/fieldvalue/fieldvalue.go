// Package fieldvalue implements the polymorphic row-cell type (spec §3
// FieldValue) plus Row, Key, Version and the arbitrary-precision Number
// adapter. It has no wire-format opinions of its own — pkg/wirebinary and
// pkg/wirenson both encode/decode through this package's types.
package fieldvalue

import (
	"math/big"
	"strings"
	"time"
)

// Type is the FieldValue wire type code (spec §3). Values are fixed by
// the wire protocol and must not be renumbered.
type Type byte

const (
	TypeArray     Type = 0
	TypeBinary    Type = 1
	TypeBoolean   Type = 2
	TypeDouble    Type = 3
	TypeInteger   Type = 4
	TypeLong      Type = 5
	TypeMap       Type = 6
	TypeString    Type = 7
	TypeTimestamp Type = 8
	TypeNumber    Type = 9
	TypeJSONNull  Type = 10
	TypeNull      Type = 11
	TypeEmpty     Type = 12
)

func (t Type) String() string {
	switch t {
	case TypeArray:
		return "ARRAY"
	case TypeBinary:
		return "BINARY"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDouble:
		return "DOUBLE"
	case TypeInteger:
		return "INTEGER"
	case TypeLong:
		return "LONG"
	case TypeMap:
		return "MAP"
	case TypeString:
		return "STRING"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeNumber:
		return "NUMBER"
	case TypeJSONNull:
		return "JSON_NULL"
	case TypeNull:
		return "NULL"
	case TypeEmpty:
		return "EMPTY"
	default:
		return "UNKNOWN"
	}
}

// Number is the arbitrary-precision decimal adapter (spec §3 NUMBER, §9
// "decimal adapter"). It stores an exact decimal via big.Rat so round
// values like money amounts never lose precision through float64.
type Number struct {
	r *big.Rat
}

// NewNumberFromString parses a decimal string into a Number.
func NewNumberFromString(s string) (Number, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Number{}, errInvalidNumber(s)
	}
	return Number{r: r}, nil
}

// NewNumberFromInt64 builds an exact Number from an int64.
func NewNumberFromInt64(v int64) Number { return Number{r: new(big.Rat).SetInt64(v)} }

// NewNumberFromBigInt builds an exact Number from a big.Int.
func NewNumberFromBigInt(v *big.Int) Number { return Number{r: new(big.Rat).SetInt(v)} }

// StringValue renders the number back out as a canonical decimal string.
func (n Number) StringValue() string {
	if n.r == nil {
		return "0"
	}
	if n.r.IsInt() {
		return n.r.Num().String()
	}
	s := strings.TrimRight(n.r.FloatString(n.precision()), "0")
	return strings.TrimSuffix(s, ".")
}

// precision returns enough fractional digits to round-trip exactly for
// denominators that are powers of ten; otherwise a generous default.
func (n Number) precision() int {
	const fallback = 34 // matches common DECIMAL128 precision
	denom := n.r.Denom()
	digits := len(denom.String())
	if digits > fallback {
		return digits
	}
	return fallback
}

// Rat exposes the underlying big.Rat for arithmetic callers.
func (n Number) Rat() *big.Rat { return n.r }

func (n Number) Equal(o Number) bool {
	if n.r == nil || o.r == nil {
		return n.r == o.r
	}
	return n.r.Cmp(o.r) == 0
}

type numberError string

func (e numberError) Error() string { return string(e) }

func errInvalidNumber(s string) error { return numberError("fieldvalue: invalid decimal " + s) }

// Value is the tagged-union FieldValue. The zero Value is JSON null. Use
// the New* constructors rather than constructing a Value directly.
type Value struct {
	typ Type
	b   bool
	i32 int32
	i64 int64
	big *big.Int // set when the LONG value needs arbitrary precision
	f64 float64
	num Number
	s   string
	ts  time.Time
	bin []byte
	arr []Value
	m   *MapValue
}

// MapValue is an ordered string->Value map: insertion order is preserved
// because that's what the wire format serializes (spec §4.3
// writeFieldValue: "Map serialization order is insertion order").
type MapValue struct {
	keys   []string
	values map[string]Value
}

// NewMap returns an empty ordered map.
func NewMap() *MapValue {
	return &MapValue{values: make(map[string]Value)}
}

// Set inserts or overwrites key, preserving first-insertion order.
func (m *MapValue) Set(key string, v Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value for key and whether it was present.
func (m *MapValue) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *MapValue) Keys() []string { return append([]string(nil), m.keys...) }

// Len returns the number of entries.
func (m *MapValue) Len() int { return len(m.keys) }

// SortedKeys returns the keys in ascending byte order, used when the
// caller requests grouping-column ordering (spec §4.3: "a flag ... forces
// key-sorted order"; open question in §9 resolved as plain ascending
// byte-wise sort — see DESIGN.md).
func (m *MapValue) SortedKeys() []string {
	keys := m.Keys()
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// Row and Key are maps of FieldValues (spec §3).
type Row = MapValue
type Key = MapValue

// Version is an opaque byte string identifying a row revision.
type Version []byte

// --- constructors ---

func JSONNull() Value  { return Value{typ: TypeJSONNull} }
func Null() Value       { return Value{typ: TypeNull} }
func Empty() Value      { return Value{typ: TypeEmpty} }
func Bool(b bool) Value { return Value{typ: TypeBoolean, b: b} }
func Int(v int32) Value { return Value{typ: TypeInteger, i32: v} }
func Long(v int64) Value { return Value{typ: TypeLong, i64: v} }

// LongBig builds a LONG FieldValue backed by an arbitrary-precision
// integer, for values outside native int64 range (spec §3: "64-bit
// integer (possibly arbitrary-precision)").
func LongBig(v *big.Int) Value { return Value{typ: TypeLong, big: v} }

func Double(v float64) Value          { return Value{typ: TypeDouble, f64: v} }
func DecimalNumber(n Number) Value    { return Value{typ: TypeNumber, num: n} }
func String(s string) Value           { return Value{typ: TypeString, s: s} }
func Timestamp(t time.Time) Value     { return Value{typ: TypeTimestamp, ts: t} }
func Binary(b []byte) Value           { return Value{typ: TypeBinary, bin: b} }
func Array(vs []Value) Value          { return Value{typ: TypeArray, arr: vs} }
func Map(m *MapValue) Value           { return Value{typ: TypeMap, m: m} }

func (v Value) Type() Type { return v.typ }

func (v Value) AsBool() bool       { return v.b }
func (v Value) AsInt() int32       { return v.i32 }
func (v Value) AsLong() int64 {
	if v.big != nil {
		return v.big.Int64()
	}
	return v.i64
}
func (v Value) AsBigInt() *big.Int {
	if v.big != nil {
		return v.big
	}
	return big.NewInt(v.i64)
}
func (v Value) IsBigLong() bool       { return v.big != nil }
func (v Value) AsDouble() float64     { return v.f64 }
func (v Value) AsNumber() Number      { return v.num }
func (v Value) AsString() string     { return v.s }
func (v Value) AsTimestamp() time.Time { return v.ts }
func (v Value) AsBinary() []byte      { return v.bin }
func (v Value) AsArray() []Value      { return v.arr }
func (v Value) AsMap() *MapValue      { return v.m }

// Equal performs a deep, type-aware comparison suitable for round-trip
// tests (spec §8 property 4). EMPTY and NaN-identity corner cases are
// explicitly excluded by the spec and are not given special handling
// here.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeJSONNull, TypeNull, TypeEmpty:
		return true
	case TypeBoolean:
		return v.b == o.b
	case TypeInteger:
		return v.i32 == o.i32
	case TypeLong:
		return v.AsBigInt().Cmp(o.AsBigInt()) == 0
	case TypeDouble:
		return v.f64 == o.f64
	case TypeNumber:
		return v.num.Equal(o.num)
	case TypeString:
		return v.s == o.s
	case TypeTimestamp:
		return v.ts.Equal(o.ts)
	case TypeBinary:
		return string(v.bin) == string(o.bin)
	case TypeArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case TypeMap:
		if v.m.Len() != o.m.Len() {
			return false
		}
		for _, k := range v.m.Keys() {
			a, _ := v.m.Get(k)
			b, ok := o.m.Get(k)
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
