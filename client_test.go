package nosqldb_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	nosqldb "progressdb/nosqldb"
	"progressdb/nosqldb/internal/testserver"
	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/nosqlerr"
	"progressdb/nosqldb/pkg/ops"
	"progressdb/nosqldb/pkg/wirebinary"

	"github.com/stretchr/testify/require"
)

// immediateRetry retries every retryable error with no backoff, up to a
// small fixed attempt count, so tests exercising retry don't pay real
// wall-clock delay.
type immediateRetry struct{ max int }

func (r immediateRetry) ShouldRetry(req *nosqldb.Request, err error, attempt int) bool {
	var nerr *nosqlerr.Error
	if !nosqlerr.As(err, &nerr) {
		return false
	}
	return nerr.Retryable && attempt < r.max
}
func (r immediateRetry) Delay(req *nosqldb.Request, err error, attempt int) time.Duration {
	return time.Millisecond
}

func newTestClient(t *testing.T, srv *testserver.Server) *nosqldb.Client {
	t.Helper()
	c := nosqldb.New(nosqldb.Config{
		Endpoint:    srv.URL,
		RetryPolicy: immediateRetry{max: 5},
	})
	t.Cleanup(c.Close)
	return c
}

func keyOf(id int32) *fieldvalue.MapValue {
	m := fieldvalue.NewMap()
	m.Set("id", fieldvalue.Int(id))
	return m
}

func rowOf(id int32, name string) *fieldvalue.MapValue {
	m := fieldvalue.NewMap()
	m.Set("id", fieldvalue.Int(id))
	m.Set("name", fieldvalue.String(name))
	return m
}

// TestPutThenGetRoundTrip is spec §8 scenario A: a Put followed by a Get
// on the same key returns the same row, with a version the server issued.
func TestPutThenGetRoundTrip(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"orders": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	putRes, err := c.Put(ctx, "orders", rowOf(1, "widget"), ops.Options{})
	require.NoError(t, err)
	require.True(t, putRes.Success)
	require.NotEmpty(t, putRes.Version)

	getRes, err := c.Get(ctx, "orders", keyOf(1), ops.Options{})
	require.NoError(t, err)
	require.True(t, getRes.Existed)
	require.Equal(t, putRes.Version, getRes.Version)
	name, ok := getRes.Row.Get("name")
	require.True(t, ok)
	require.Equal(t, "widget", name.AsString())
}

func TestGetMissingRowReportsNotExisted(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"orders": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)

	res, err := c.Get(context.Background(), "orders", keyOf(99), ops.Options{})
	require.NoError(t, err)
	require.False(t, res.Existed)
	require.Nil(t, res.Row)
}

// TestPutIfAbsentAndPutIfPresent covers the conditional-write opcodes.
func TestPutIfAbsentAndPutIfPresent(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"orders": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	res, err := c.PutIfAbsent(ctx, "orders", rowOf(2, "first"), ops.Options{})
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = c.PutIfAbsent(ctx, "orders", rowOf(2, "second"), ops.Options{})
	require.NoError(t, err)
	require.False(t, res.Success, "PutIfAbsent must fail once the key exists")

	res, err = c.PutIfPresent(ctx, "orders", rowOf(2, "second"), ops.Options{})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestDeleteRemovesRow(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"orders": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Put(ctx, "orders", rowOf(3, "x"), ops.Options{})
	require.NoError(t, err)

	delRes, err := c.Delete(ctx, "orders", keyOf(3), ops.Options{})
	require.NoError(t, err)
	require.True(t, delRes.Success)

	getRes, err := c.Get(ctx, "orders", keyOf(3), ops.Options{})
	require.NoError(t, err)
	require.False(t, getRes.Existed)
}

// TestCookiePersistsAcrossRequests is a smoke check of the cookie-jar
// plumbing on the request path: a Put then a Get against a server that
// issues no Set-Cookie must both succeed.
func TestCookiePersistsAcrossRequests(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"orders": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Put(ctx, "orders", rowOf(4, "x"), ops.Options{})
	require.NoError(t, err)
	_, err = c.Get(ctx, "orders", keyOf(4), ops.Options{})
	require.NoError(t, err)
	// No assertion beyond "no error": the test server doesn't set cookies
	// itself, so this only confirms the cookie-jar plumbing doesn't break
	// a cookie-less round trip. Scenario-specific cookie assertions belong
	// with a server that actually issues Set-Cookie.
}

// TestThrottledReadRetriesThenSucceeds is spec §8 scenario F: a
// read-limit-exceeded error twice, then success, with the retry policy
// driving the attempts rather than the caller.
func TestThrottledReadRetriesThenSucceeds(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"orders": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Put(ctx, "orders", rowOf(5, "x"), ops.Options{})
	require.NoError(t, err)

	srv.InjectFault(wirebinary.OpGet, nosqlerr.CodeReadLimitExceeded, "throttled", 2)

	res, err := c.Get(ctx, "orders", keyOf(5), ops.Options{})
	require.NoError(t, err)
	require.True(t, res.Existed)
}

// TestUnsupportedProtocolClassification injects a permanent
// CodeUnsupportedProtocol fault on GET and asserts that the caller
// receives an UnsupportedProtocol classification rather than a generic
// network error. The injected fault answers V4 requests; a request the
// client re-sends at a lower version reaches the test server's non-V4
// branch instead, which answers with the raw legacy error byte.
// Forcing StartProtocolVersion below V4 isn't wired (the protocol
// manager always starts at V4).
func TestUnsupportedProtocolClassification(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"orders": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)

	// InjectFault with CodeUnsupportedProtocol simulates the server
	// rejecting the active version outright, independent of serial-version
	// framing, so the client's error classification can be asserted without
	// needing a second test server that speaks V3.
	srv.InjectFault(wirebinary.OpGet, nosqlerr.CodeUnsupportedProtocol, "unsupported version", -1)
	_, err := c.Get(context.Background(), "orders", keyOf(6), ops.Options{})
	require.Error(t, err)
	var nerr *nosqlerr.Error
	require.True(t, nosqlerr.As(err, &nerr))
	require.Equal(t, nosqlerr.KindUnsupportedProtocol, nerr.Kind)
}

// TestUnsupportedProtocolSignalByteSniff exercises the actual downgrade
// signal-detection mechanism (protocol.IsUnsupportedProtocolSignal, wired
// from client.go's resp.Body[2] check) rather than InjectFault's NSON
// error path: a bespoke, non-V4-aware fake server writes only the raw
// serial-version-prefix + legacy-error-code-byte framing a genuinely
// older server would, with no NSON envelope at all. The proof the
// mechanism fired is mechanical: the protocol manager only decrements its
// active version when Downgrade sees the version it used match the
// signal, so the second request the server receives must carry V3 where
// the first carried V4.
func TestUnsupportedProtocolSignalByteSniff(t *testing.T) {
	pool := buffer.NewPool()
	var mu sync.Mutex
	var seenVersions []wirebinary.SerialVersion
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, 2)
		_, _ = io.ReadFull(r.Body, body)
		in := pool.Acquire()
		defer pool.Release(in)
		in.AppendBytes(body)
		reqVersion, _ := wirebinary.ReadSerialVersion(in.Reader())

		mu.Lock()
		seenVersions = append(seenVersions, reqVersion)
		mu.Unlock()

		out := pool.Acquire()
		defer pool.Release(out)
		wirebinary.WriteSerialVersion(out, reqVersion)
		wirebinary.WriteRawErrorCodeByte(out, 24)
		msg := "unsupported protocol version"
		wirebinary.WriteString(out, &msg)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out.Bytes())
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	c := nosqldb.New(nosqldb.Config{Endpoint: srv.URL, RetryPolicy: immediateRetry{max: 0}})
	defer c.Close()

	_, err := c.Get(context.Background(), "orders", keyOf(1), ops.Options{})
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seenVersions), 2, "downgrade must trigger a second attempt")
	require.Equal(t, wirebinary.V4, seenVersions[0])
	require.Equal(t, wirebinary.V3, seenVersions[1])
}

func TestGetTableReportsState(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"orders": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)

	res, err := c.GetTable(context.Background(), "orders", ops.Options{})
	require.NoError(t, err)
	require.Equal(t, wirebinary.TableActive, res.State)
	require.Equal(t, "orders", res.TableName)
}

// TestExecuteDDLThenWaitForTableState covers spec §8 scenario E: a CREATE
// TABLE starts CREATING, and WaitForTableState polls until the test
// advances it to ACTIVE.
func TestExecuteDDLThenWaitForTableState(t *testing.T) {
	srv := testserver.New(nil)
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	res, err := c.ExecuteDDL(ctx, "CREATE TABLE widgets (id INTEGER, PRIMARY KEY(id))", ops.Options{})
	require.NoError(t, err)
	require.Equal(t, wirebinary.TableCreating, res.State)

	go func() {
		time.Sleep(20 * time.Millisecond)
		srv.SetTableState("widgets", wirebinary.TableActive)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	final, err := c.WaitForTableState(waitCtx, "widgets", wirebinary.TableActive, 5*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, wirebinary.TableActive, final.State)
}

// TestRequestsAreRecordedWithTableName confirms the test server's
// bookkeeping the other scenarios rely on actually reflects what the
// client sent.
func TestRequestsAreRecordedWithTableName(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"orders": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.Put(context.Background(), "orders", rowOf(7, "x"), ops.Options{})
	require.NoError(t, err)

	reqs := srv.Requests()
	require.NotEmpty(t, reqs)
	last := reqs[len(reqs)-1]
	require.Equal(t, "orders", last.Table)
	require.Equal(t, wirebinary.OpPut, last.OpCode)
	require.Equal(t, wirebinary.V4, last.Version)
}

// TestPreparedQueryRebindsAcrossExecutions is spec §8 scenario B: a
// prepared statement's blob round-trips unchanged across two executions
// rebound to different bind variables, each returning the row for its own
// id.
func TestPreparedQueryRebindsAcrossExecutions(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"widgets": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Put(ctx, "widgets", rowOf(10, "ten"), ops.Options{})
	require.NoError(t, err)
	_, err = c.Put(ctx, "widgets", rowOf(11, "eleven"), ops.Options{})
	require.NoError(t, err)

	ps, err := c.Prepare(ctx, "SELECT * FROM widgets WHERE id = $id", ops.Options{})
	require.NoError(t, err)
	require.Equal(t, "widgets", ps.TableName)
	blobBefore := append([]byte(nil), ps.Blob...)

	res1, err := c.Query(ctx, &ops.QueryRequest{Prepared: ps, BindVars: map[string]fieldvalue.Value{"id": fieldvalue.Int(10)}})
	require.NoError(t, err)
	require.Len(t, res1.Results, 1)
	name1, _ := res1.Results[0].Get("name")
	require.Equal(t, "ten", name1.AsString())

	res2, err := c.Query(ctx, &ops.QueryRequest{Prepared: ps, BindVars: map[string]fieldvalue.Value{"id": fieldvalue.Int(11)}})
	require.NoError(t, err)
	require.Len(t, res2.Results, 1)
	name2, _ := res2.Results[0].Get("name")
	require.Equal(t, "eleven", name2.AsString())

	require.Equal(t, blobBefore, ps.Blob, "rebinding must not mutate the prepared statement's wire blob")
}

// TestPaginatedQueryDrainsAllRowsWithoutDuplicates is spec §8 scenario C:
// a full-table-scan query pages through 350 rows 100 at a time (4 pages,
// the last partial) via continuation key, with QueryAll draining every
// page and no row appearing twice.
func TestPaginatedQueryDrainsAllRowsWithoutDuplicates(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"bulk": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	const total = 350
	for i := int32(0); i < total; i++ {
		_, err := c.Put(ctx, "bulk", rowOf(i, "row"), ops.Options{})
		require.NoError(t, err)
	}

	rows, err := c.QueryAll(ctx, &ops.QueryRequest{Statement: "SELECT * FROM bulk"})
	require.NoError(t, err)
	require.Len(t, rows, total)

	seen := make(map[int32]bool, total)
	for _, row := range rows {
		idv, ok := row.Get("id")
		require.True(t, ok)
		id := idv.AsInt()
		require.False(t, seen[id], "row %d returned more than once", id)
		seen[id] = true
	}

	pages := 0
	for _, r := range srv.Requests() {
		if r.OpCode == wirebinary.OpQuery {
			pages++
		}
	}
	require.Equal(t, 4, pages, "350 rows at 100/page must take exactly 4 pages")
}

// TestWriteMultipleAbortsWithoutModifyingAnyRow is spec §8 scenario D: a
// WriteMultiple batch with AbortOnFail aborts on a failing sub-operation
// and leaves every row, including ones earlier in the batch, untouched.
func TestWriteMultipleAbortsWithoutModifyingAnyRow(t *testing.T) {
	srv := testserver.New(map[string]wirebinary.TableState{"accounts": wirebinary.TableActive})
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Put(ctx, "accounts", rowOf(1, "original"), ops.Options{})
	require.NoError(t, err)

	subOps := []ops.SubOp{
		{Put: &ops.PutRequest{Table: "accounts", Value: rowOf(2, "new"), Kind: ops.PutUnconditional}},
		{Put: &ops.PutRequest{Table: "accounts", Value: rowOf(1, "clobbered"), Kind: ops.PutIfAbsent}},
	}
	res, err := c.WriteMultiple(ctx, "accounts", subOps, true, ops.Options{})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 1, res.FailedIndex)
	require.Len(t, res.Results, 1)
	require.False(t, res.Results[0].Success)
	require.NotNil(t, res.Results[0].ExistingRow)
	existingName, _ := res.Results[0].ExistingRow.Get("name")
	require.Equal(t, "original", existingName.AsString())

	getRes, err := c.Get(ctx, "accounts", keyOf(1), ops.Options{})
	require.NoError(t, err)
	require.True(t, getRes.Existed)
	name, _ := getRes.Row.Get("name")
	require.Equal(t, "original", name.AsString())

	missing, err := c.Get(ctx, "accounts", keyOf(2), ops.Options{})
	require.NoError(t, err)
	require.False(t, missing.Existed, "the abort must prevent the earlier sub-operation's write too")
}
