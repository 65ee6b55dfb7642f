package fieldvalue_test

import (
	"math/big"
	"testing"
	"time"

	"progressdb/nosqldb/pkg/fieldvalue"

	"github.com/stretchr/testify/require"
)

func TestMapPreservesInsertionOrderAndOverwrites(t *testing.T) {
	m := fieldvalue.NewMap()
	m.Set("b", fieldvalue.Int(2))
	m.Set("a", fieldvalue.Int(1))
	m.Set("b", fieldvalue.Int(20)) // overwrite must not move "b" to the end

	require.Equal(t, []string{"b", "a"}, m.Keys())
	v, ok := m.Get("b")
	require.True(t, ok)
	require.Equal(t, int32(20), v.AsInt())
	require.Equal(t, 2, m.Len())
}

func TestSortedKeysAscendingByteOrder(t *testing.T) {
	m := fieldvalue.NewMap()
	m.Set("zeta", fieldvalue.Int(1))
	m.Set("Alpha", fieldvalue.Int(2))
	m.Set("alpha", fieldvalue.Int(3))
	require.Equal(t, []string{"Alpha", "alpha", "zeta"}, m.SortedKeys())
	// Keys() must stay in insertion order regardless of SortedKeys calls.
	require.Equal(t, []string{"zeta", "Alpha", "alpha"}, m.Keys())
}

// TestLongBigFallsBackToInt64Range covers the dual int64/big.Int storage
// for TypeLong (spec §3 "64-bit integer (possibly arbitrary-precision)").
func TestLongBigFallsBackToInt64Range(t *testing.T) {
	small := fieldvalue.Long(42)
	require.False(t, small.IsBigLong())
	require.Equal(t, int64(42), small.AsLong())
	require.Equal(t, big.NewInt(42), small.AsBigInt())

	huge := new(big.Int).Lsh(big.NewInt(1), 100)
	big1 := fieldvalue.LongBig(huge)
	require.True(t, big1.IsBigLong())
	require.Equal(t, huge, big1.AsBigInt())
}

func TestNumberRoundTripsExactDecimal(t *testing.T) {
	n, err := fieldvalue.NewNumberFromString("12345.6789")
	require.NoError(t, err)
	require.Equal(t, "12345.6789", n.StringValue())

	intN := fieldvalue.NewNumberFromInt64(7)
	require.Equal(t, "7", intN.StringValue())

	_, err = fieldvalue.NewNumberFromString("not-a-number")
	require.Error(t, err)
}

func TestNumberEqual(t *testing.T) {
	a, _ := fieldvalue.NewNumberFromString("1.50")
	b, _ := fieldvalue.NewNumberFromString("1.5")
	require.True(t, a.Equal(b))
	c := fieldvalue.NewNumberFromInt64(2)
	require.False(t, a.Equal(c))
}

// TestValueEqualAcrossTypes exercises Equal's type-aware dispatch,
// including the "different types are never equal" rule and nested
// ARRAY/MAP structural comparison.
func TestValueEqualAcrossTypes(t *testing.T) {
	require.False(t, fieldvalue.Int(1).Equal(fieldvalue.Long(1)))
	require.True(t, fieldvalue.JSONNull().Equal(fieldvalue.JSONNull()))
	require.False(t, fieldvalue.JSONNull().Equal(fieldvalue.Null()))

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.True(t, fieldvalue.Timestamp(ts).Equal(fieldvalue.Timestamp(ts)))

	a1 := fieldvalue.Array([]fieldvalue.Value{fieldvalue.Int(1), fieldvalue.String("x")})
	a2 := fieldvalue.Array([]fieldvalue.Value{fieldvalue.Int(1), fieldvalue.String("x")})
	a3 := fieldvalue.Array([]fieldvalue.Value{fieldvalue.Int(1), fieldvalue.String("y")})
	require.True(t, a1.Equal(a2))
	require.False(t, a1.Equal(a3))

	m1 := fieldvalue.NewMap()
	m1.Set("k", fieldvalue.Int(1))
	m2 := fieldvalue.NewMap()
	m2.Set("k", fieldvalue.Int(1))
	require.True(t, fieldvalue.Map(m1).Equal(fieldvalue.Map(m2)))

	m3 := fieldvalue.NewMap()
	m3.Set("k", fieldvalue.Int(2))
	require.False(t, fieldvalue.Map(m1).Equal(fieldvalue.Map(m3)))
}

func TestTypeStringNames(t *testing.T) {
	require.Equal(t, "INTEGER", fieldvalue.TypeInteger.String())
	require.Equal(t, "MAP", fieldvalue.TypeMap.String())
	require.Equal(t, "UNKNOWN", fieldvalue.Type(99).String())
}
