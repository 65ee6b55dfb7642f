package wirenson_test

import (
	"math/big"
	"testing"
	"time"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/wirenson"

	"github.com/stretchr/testify/require"
)

func sampleValue() fieldvalue.Value {
	inner := fieldvalue.NewMap()
	inner.Set("name", fieldvalue.String("widget"))
	inner.Set("qty", fieldvalue.Int(7))
	inner.Set("tags", fieldvalue.Array([]fieldvalue.Value{
		fieldvalue.String("a"), fieldvalue.String("b"),
	}))

	m := fieldvalue.NewMap()
	m.Set("id", fieldvalue.Long(42))
	m.Set("huge", fieldvalue.LongBig(new(big.Int).Lsh(big.NewInt(1), 63)))
	m.Set("price", fieldvalue.Double(19.99))
	m.Set("active", fieldvalue.Bool(true))
	m.Set("nothing", fieldvalue.JSONNull())
	m.Set("absent", fieldvalue.Null())
	m.Set("blob", fieldvalue.Binary([]byte{0, 1, 2, 3, 255}))
	m.Set("when", fieldvalue.Timestamp(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	m.Set("detail", fieldvalue.Map(inner))
	return fieldvalue.Map(m)
}

// TestFieldValueRoundTrip is spec §8 property 4 at the NSON layer: writing
// then reading a value back reproduces it exactly (excluding EMPTY/NaN per
// spec).
func TestFieldValueRoundTrip(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	w := wirenson.NewWriter(buf)
	w.WriteValue(sampleValue(), false)

	rd := wirenson.NewReader(buf.Reader())
	typ, err := rd.Next()
	require.NoError(t, err)
	require.Equal(t, fieldvalue.TypeMap, typ)
	got, err := rd.ReadValue()
	require.NoError(t, err)
	require.True(t, sampleValue().Equal(got))
}

// TestSkipValueAdvancesExactlyToEnd is spec §8 property 5: skipValue
// applied at the root advances exactly to the end of the message and no
// further. The byte-length check on EnterMap/ExitMap is exercised by
// TestNestedMapByteLengthMatchesConsumed.
func TestSkipValueAdvancesExactlyToEnd(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	w := wirenson.NewWriter(buf)
	w.WriteValue(sampleValue(), false)
	// Append a sentinel byte after the message to prove skip doesn't
	// overrun into it.
	buf.AppendBytes([]byte{0xAA})

	r := buf.Reader()
	rd := wirenson.NewReader(r)
	_, err := rd.Next()
	require.NoError(t, err)
	require.NoError(t, rd.SkipValue())
	require.Equal(t, buf.Len()-1, r.Offset())

	sentinel, err := r.Uint8()
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), sentinel)
}

// TestNestedMapByteLengthMatchesConsumed walks a nested structure
// recursively via EnterMap/ExitMap/EnterArray/ExitArray (rather than
// ReadValue) to exercise the declared-length validation at every depth.
func TestNestedMapByteLengthMatchesConsumed(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.WriteIntField("a", 1)
	w.StartArrayField("list")
	w.WriteInt(1)
	w.WriteInt(2)
	w.WriteInt(3)
	w.EndArray()
	w.StartMapField("nested")
	w.WriteStringField("x", "y")
	w.EndMap()
	w.EndMap()

	rd := wirenson.NewReader(buf.Reader())
	typ, err := rd.Next()
	require.NoError(t, err)
	require.Equal(t, fieldvalue.TypeMap, typ)
	count, err := rd.EnterMap()
	require.NoError(t, err)
	require.Equal(t, int32(3), count)

	for i := int32(0); i < count; i++ {
		typ, err := rd.Next()
		require.NoError(t, err)
		switch rd.Key() {
		case "a":
			require.Equal(t, fieldvalue.TypeInteger, typ)
			v, err := rd.ReadInt()
			require.NoError(t, err)
			require.Equal(t, int32(1), v)
		case "list":
			require.Equal(t, fieldvalue.TypeArray, typ)
			n, err := rd.EnterArray()
			require.NoError(t, err)
			require.Equal(t, int32(3), n)
			for j := int32(0); j < n; j++ {
				_, err := rd.Next()
				require.NoError(t, err)
				v, err := rd.ReadInt()
				require.NoError(t, err)
				require.Equal(t, j+1, v)
			}
			require.NoError(t, rd.ExitArray())
		case "nested":
			require.Equal(t, fieldvalue.TypeMap, typ)
			n, err := rd.EnterMap()
			require.NoError(t, err)
			require.Equal(t, int32(1), n)
			_, err = rd.Next()
			require.NoError(t, err)
			s, err := rd.ReadString()
			require.NoError(t, err)
			require.Equal(t, "y", s)
			require.NoError(t, err)
			require.NoError(t, rd.ExitMap())
		}
	}
	require.NoError(t, rd.ExitMap())
}

// TestEmptyMapAndArray covers the zero-element edge case.
func TestEmptyMapAndArray(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.EndMap()

	rd := wirenson.NewReader(buf.Reader())
	_, err := rd.Next()
	require.NoError(t, err)
	count, err := rd.EnterMap()
	require.NoError(t, err)
	require.Equal(t, int32(0), count)
	require.NoError(t, rd.ExitMap())
}
