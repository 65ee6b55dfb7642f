package wirebinary_test

import (
	"math/big"
	"testing"
	"time"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/wirebinary"

	"github.com/stretchr/testify/require"
)

func newBuf(t *testing.T) (*buffer.Pool, *buffer.ResizableBuffer) {
	t.Helper()
	pool := buffer.NewPool()
	buf := pool.Acquire()
	t.Cleanup(func() { pool.Release(buf) })
	return pool, buf
}

// TestStringNullableRoundTrip exercises spec §4.3's three-way distinction:
// nil (absent), empty, and non-empty.
func TestStringNullableRoundTrip(t *testing.T) {
	_, buf := newBuf(t)
	var nilStr *string
	empty := ""
	full := "hello"
	wirebinary.WriteString(buf, nilStr)
	wirebinary.WriteString(buf, &empty)
	wirebinary.WriteString(buf, &full)

	r := buf.Reader()
	got, err := wirebinary.ReadString(r)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = wirebinary.ReadString(r)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "", *got)

	got, err = wirebinary.ReadString(r)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "hello", *got)
}

func TestBinaryRoundTrip(t *testing.T) {
	_, buf := newBuf(t)
	wirebinary.WriteBinary(buf, nil)
	wirebinary.WriteBinary(buf, []byte{})
	wirebinary.WriteBinary(buf, []byte{1, 2, 3})

	r := buf.Reader()
	got, err := wirebinary.ReadBinary(r)
	require.NoError(t, err)
	require.Nil(t, got)
	got, err = wirebinary.ReadBinary(r)
	require.NoError(t, err)
	require.Equal(t, []byte{}, got)
	got, err = wirebinary.ReadBinary(r)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)
}

func TestBinary2RoundTrip(t *testing.T) {
	_, buf := newBuf(t)
	payload := []byte("opaque-prepared-statement-blob")
	wirebinary.WriteBinary2(buf, payload)
	got, err := wirebinary.ReadBinary2(buf.Reader())
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDoubleRoundTrip(t *testing.T) {
	_, buf := newBuf(t)
	wirebinary.WriteDouble(buf, 2.71828)
	got, err := wirebinary.ReadDouble(buf.Reader())
	require.NoError(t, err)
	require.Equal(t, 2.71828, got)
}

// TestDateRoundTrip checks the ISO-8601-without-Z encoding (spec §4.3
// writeDate).
func TestDateRoundTrip(t *testing.T) {
	_, buf := newBuf(t)
	ts := time.Date(2026, 7, 31, 12, 30, 0, 0, time.UTC)
	wirebinary.WriteDate(buf, &ts)
	got, err := wirebinary.ReadDate(buf.Reader())
	require.NoError(t, err)
	require.True(t, ts.Equal(*got))

	_, buf2 := newBuf(t)
	wirebinary.WriteDate(buf2, nil)
	got2, err := wirebinary.ReadDate(buf2.Reader())
	require.NoError(t, err)
	require.Nil(t, got2)
}

// TestTTLEncoding covers the three TTL forms spec GLOSSARY names: unset
// (nil, encodes -1), do-not-expire (0, DAYS), and a normal duration.
func TestTTLEncoding(t *testing.T) {
	_, buf := newBuf(t)
	wirebinary.WriteTTL(buf, nil)
	wirebinary.WriteTTL(buf, &wirebinary.DoNotExpire)
	normal := &wirebinary.TTL{Duration: 5, Unit: wirebinary.TTLHours}
	wirebinary.WriteTTL(buf, normal)

	r := buf.Reader()
	got, err := wirebinary.ReadTTL(r)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = wirebinary.ReadTTL(r)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.Duration)
	require.Equal(t, wirebinary.TTLDays, got.Unit)

	got, err = wirebinary.ReadTTL(r)
	require.NoError(t, err)
	require.Equal(t, *normal, *got)
}

// TestDurabilityPacking exercises the 2-bit-field packing (spec §4.3
// "single byte packing three 2-bit enum fields").
func TestDurabilityPacking(t *testing.T) {
	d := wirebinary.Durability{MasterSync: wirebinary.SyncSync, ReplicaSync: wirebinary.SyncWriteNoSync, ReplicaAck: wirebinary.AckSimpleMajority}
	packed := d.Pack()
	require.Equal(t, d, wirebinary.UnpackDurability(packed))

	_, buf := newBuf(t)
	wirebinary.WriteDurability(buf, nil)
	wirebinary.WriteDurability(buf, &d)
	r := buf.Reader()
	got, err := wirebinary.ReadDurability(r)
	require.NoError(t, err)
	require.Equal(t, wirebinary.Durability{}, got)
	got, err = wirebinary.ReadDurability(r)
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func fieldValueSamples() []fieldvalue.Value {
	m := fieldvalue.NewMap()
	m.Set("id", fieldvalue.Int(1))
	m.Set("name", fieldvalue.String("row"))

	return []fieldvalue.Value{
		fieldvalue.JSONNull(),
		fieldvalue.Null(),
		fieldvalue.Bool(true),
		fieldvalue.Bool(false),
		fieldvalue.Int(-7),
		fieldvalue.Long(9223372036854775807),
		fieldvalue.LongBig(new(big.Int).Lsh(big.NewInt(3), 62)),
		fieldvalue.Double(-0.5),
		fieldvalue.String(""),
		fieldvalue.String("hello, world"),
		fieldvalue.Binary([]byte{0xDE, 0xAD, 0xBE, 0xEF}),
		fieldvalue.Array([]fieldvalue.Value{fieldvalue.Int(1), fieldvalue.String("two")}),
		fieldvalue.Map(m),
	}
}

// TestFieldValueRoundTrip is spec §8 property 4 at the binary-protocol
// layer (V2/V3 positional codec).
func TestFieldValueRoundTrip(t *testing.T) {
	for _, v := range fieldValueSamples() {
		pool := buffer.NewPool()
		buf := pool.Acquire()
		wirebinary.WriteFieldValue(buf, v, false)
		got, err := wirebinary.ReadFieldValue(buf.Reader())
		require.NoError(t, err)
		require.True(t, v.Equal(got), "round trip mismatch for type %v", v.Type())
		pool.Release(buf)
	}
}

// TestFieldValueMapByteLengthMatchesConsumed pins the MAP/ARRAY
// byte-length header to the bytes actually consumed, mirroring the NSON
// layer's equivalent invariant.
func TestFieldValueMapByteLengthMatchesConsumed(t *testing.T) {
	m := fieldvalue.NewMap()
	m.Set("a", fieldvalue.Int(1))
	m.Set("b", fieldvalue.String("two"))
	v := fieldvalue.Map(m)

	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)
	wirebinary.WriteFieldValue(buf, v, false)
	buf.AppendBytes([]byte{0xFF}) // sentinel past the encoded value

	r := buf.Reader()
	got, err := wirebinary.ReadFieldValue(r)
	require.NoError(t, err)
	require.True(t, v.Equal(got))
	require.Equal(t, buf.Len()-1, r.Offset())
}

// TestSortMapKeysOrdersAscending exercises the query-grouping-columns flag
// (spec §4.3, DESIGN.md Open Question decision #3).
func TestSortMapKeysOrdersAscending(t *testing.T) {
	m := fieldvalue.NewMap()
	m.Set("zeta", fieldvalue.Int(1))
	m.Set("alpha", fieldvalue.Int(2))
	m.Set("mid", fieldvalue.Int(3))

	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)
	wirebinary.WriteFieldValue(buf, fieldvalue.Map(m), true)

	r := buf.Reader()
	_, err := r.Uint8() // type tag
	require.NoError(t, err)
	_, err = r.Int32BE() // byte length
	require.NoError(t, err)
	_, err = r.Int32BE() // count
	require.NoError(t, err)
	first, err := wirebinary.ReadString(r)
	require.NoError(t, err)
	require.Equal(t, "alpha", *first)
}

// TestFieldRangeRoundTrip covers WriteFieldRange/ReadFieldRange (spec
// GLOSSARY "Field range").
func TestFieldRangeRoundTrip(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	fr := &wirebinary.FieldRange{
		FieldName: "shard_key",
		Start:     &wirebinary.RangeBound{Value: fieldvalue.Int(1), Inclusive: true},
		End:       &wirebinary.RangeBound{Value: fieldvalue.Int(100), Inclusive: false},
	}
	wirebinary.WriteFieldRange(buf, fr)
	wirebinary.WriteFieldRange(buf, nil)

	r := buf.Reader()
	got, err := wirebinary.ReadFieldRange(r)
	require.NoError(t, err)
	require.Equal(t, "shard_key", got.FieldName)
	require.True(t, got.Start.Inclusive)
	require.False(t, got.End.Inclusive)
	require.True(t, fr.Start.Value.Equal(got.Start.Value))

	got2, err := wirebinary.ReadFieldRange(r)
	require.NoError(t, err)
	require.Nil(t, got2)
}

// TestTopologyInfoSupersedes pins spec §3's rule: a response carrying a
// higher seqNum supersedes the cached value.
func TestTopologyInfoSupersedes(t *testing.T) {
	cur := wirebinary.TopologyInfo{SeqNum: -1}
	require.True(t, cur.Supersedes(wirebinary.TopologyInfo{SeqNum: 1, ShardIDs: []int{1, 2}}))
	cur = wirebinary.TopologyInfo{SeqNum: 5}
	require.False(t, cur.Supersedes(wirebinary.TopologyInfo{SeqNum: 5}))
	require.False(t, cur.Supersedes(wirebinary.TopologyInfo{SeqNum: 3}))
	require.True(t, cur.Supersedes(wirebinary.TopologyInfo{SeqNum: 6}))
}
