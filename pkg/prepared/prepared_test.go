package prepared_test

import (
	"testing"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/prepared"
	"progressdb/nosqldb/pkg/wirebinary"

	"github.com/stretchr/testify/require"
)

// buildBlob hand-assembles a prefix matching parsePrefix's expected layout:
// {4-byte length, 32-byte hash, 1-byte table count, namespace, table, opcode}.
func buildBlob(t *testing.T, namespace, table string, op wirebinary.OpCode) []byte {
	t.Helper()
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	buf.WriteInt32BE(0, buf.Len()) // length placeholder, unread by parsePrefix
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}
	buf.AppendBytes(hash)
	buf.WriteUint8(1, buf.Len()) // table count
	ns := namespace
	wirebinary.WriteString(buf, &ns)
	tbl := table
	wirebinary.WriteString(buf, &tbl)
	wirebinary.WriteOpCode(buf, op)

	b, err := buf.Slice(0, buf.Len())
	require.NoError(t, err)
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func TestNewParsesPrefix(t *testing.T) {
	blob := buildBlob(t, "ns1", "orders", wirebinary.OpQuery)
	ps, err := prepared.New("select * from orders", blob)
	require.NoError(t, err)
	require.Equal(t, "ns1", ps.Namespace)
	require.Equal(t, "orders", ps.TableName)
	require.Equal(t, wirebinary.OpQuery, ps.OpCode)
	require.Equal(t, blob, ps.Blob)
	require.Equal(t, -1, ps.Topology().SeqNum)
}

// TestParsePrefixDoesNotDisturbCallerCursor is only indirectly testable from
// outside the package (parsePrefix is unexported); New operates on a copy
// of blob, so mutating the original slice afterward must not affect the
// already-parsed PreparedStatement.
func TestParsePrefixDoesNotDisturbCallerCursor(t *testing.T) {
	blob := buildBlob(t, "ns1", "orders", wirebinary.OpQuery)
	ps, err := prepared.New("q", blob)
	require.NoError(t, err)
	for i := range blob {
		blob[i] = 0xFF
	}
	require.Equal(t, "ns1", ps.Namespace)
	require.Equal(t, "orders", ps.TableName)
}

func TestUpdateTopologyOnlyAdvancesOnHigherSeqNum(t *testing.T) {
	blob := buildBlob(t, "ns1", "orders", wirebinary.OpQuery)
	ps, err := prepared.New("q", blob)
	require.NoError(t, err)

	ps.UpdateTopology(wirebinary.TopologyInfo{SeqNum: 5, ShardIDs: []int{1, 2, 3}})
	require.Equal(t, 5, ps.Topology().SeqNum)

	ps.UpdateTopology(wirebinary.TopologyInfo{SeqNum: 3, ShardIDs: []int{9}})
	require.Equal(t, 5, ps.Topology().SeqNum, "a stale topology must not overwrite a newer one")

	ps.UpdateTopology(wirebinary.TopologyInfo{SeqNum: 6, ShardIDs: []int{9}})
	require.Equal(t, 6, ps.Topology().SeqNum)
}

func TestBindVariablesRoundTrip(t *testing.T) {
	blob := buildBlob(t, "ns1", "orders", wirebinary.OpQuery)
	ps, err := prepared.New("q", blob)
	require.NoError(t, err)
	require.Nil(t, ps.BindVariables())

	ps.SetBindVariables(map[string]int{"id": 0, "name": 1})
	require.Equal(t, map[string]int{"id": 0, "name": 1}, ps.BindVariables())
}

// TestReadResultFullResponse builds a complete PrepareOp response body and
// verifies ReadResult reconstructs every field (spec §4.3).
func TestReadResultFullResponse(t *testing.T) {
	blob := buildBlob(t, "ns1", "orders", wirebinary.OpQuery)

	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	wirebinary.WriteBinary2(buf, blob)
	plan := "SFWPlan(orders)"
	wirebinary.WriteString(buf, &plan)
	wirebinary.WriteBinary(buf, []byte{1, 2, 3, 4})
	wirebinary.WriteInt(buf, 0) // unused counter 1
	wirebinary.WriteInt(buf, 0) // unused counter 2
	wirebinary.WriteInt(buf, 2) // varCount
	n1 := "id"
	wirebinary.WriteString(buf, &n1)
	wirebinary.WriteInt(buf, 0)
	n2 := "name"
	wirebinary.WriteString(buf, &n2)
	wirebinary.WriteInt(buf, 1)

	ps, err := prepared.ReadResult(buf.Reader(), "select * from orders where id = ?id and name = ?name")
	require.NoError(t, err)
	require.Equal(t, "ns1", ps.Namespace)
	require.Equal(t, "orders", ps.TableName)
	require.NotNil(t, ps.QueryPlan)
	require.Equal(t, "SFWPlan(orders)", *ps.QueryPlan)
	require.Equal(t, []byte{1, 2, 3, 4}, ps.DriverQueryPlan)
	require.Equal(t, map[string]int{"id": 0, "name": 1}, ps.BindVariables())
}

// TestReadResultNoVariables covers the simple-query path with varCount 0.
func TestReadResultNoVariables(t *testing.T) {
	blob := buildBlob(t, "ns1", "orders", wirebinary.OpQuery)

	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	wirebinary.WriteBinary2(buf, blob)
	wirebinary.WriteString(buf, nil) // no query plan
	wirebinary.WriteBinary(buf, nil) // no driver query plan
	wirebinary.WriteInt(buf, 0)
	wirebinary.WriteInt(buf, 0)
	wirebinary.WriteInt(buf, 0) // varCount

	ps, err := prepared.ReadResult(buf.Reader(), "select * from orders")
	require.NoError(t, err)
	require.Nil(t, ps.QueryPlan)
	require.Nil(t, ps.DriverQueryPlan)
	require.Nil(t, ps.BindVariables())
}
