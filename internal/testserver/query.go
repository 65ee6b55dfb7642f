package testserver

import (
	"sort"
	"strconv"
	"strings"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/nosqlerr"
	"progressdb/nosqldb/pkg/wirebinary"
	"progressdb/nosqldb/pkg/wirenson"
)

// queryPageSize is this fake server's fixed page size. The driver's
// QueryRequest (pkg/ops/query.go) has no row-count Limit field — paging
// is governed by MaxReadKB/MaxWriteKB on the wire — so this constant
// stands in for a server-side page-size decision, chosen to match spec
// §8 scenario C's 350-rows/4-pages arithmetic (350 = 3*100 + 50).
const queryPageSize = 100

// prefixHashLen mirrors pkg/prepared's unexported constant: the 32-byte
// opaque hash this fake server writes (but never checks) at the front of
// every prepared-statement blob, matching the fixed prefix layout spec
// §3/§4.3 describes.
const prefixHashLen = 32

// handlePrepare decodes a PREPARE payload ({statement}) and answers with
// the flat envelope deserializePrepareV4 (pkg/ops/prepare.go) expects: an
// opaque blob whose driver-visible prefix parsePrefix can recover the
// table name from, with the raw statement text appended after the fixed
// prefix so handleQuery can recover it again without this server having
// to keep a side table of prepared statements.
func (s *Server) handlePrepare(rd *wirenson.Reader, out *buffer.ResizableBuffer) error {
	if _, err := rd.Next(); err != nil { // "payload"
		return err
	}
	count, err := rd.EnterMap()
	if err != nil {
		return err
	}
	var statement string
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		var ierr error
		switch rd.Key() {
		case wirenson.KeyStatement:
			statement, ierr = rd.ReadString()
		default:
			ierr = rd.SkipValue()
		}
		if ierr != nil {
			return ierr
		}
	}
	if err := rd.ExitMap(); err != nil {
		return err
	}
	if err := rd.ExitMap(); err != nil { // outer envelope
		return err
	}

	tableName, _ := parseQueryStatement(statement)

	s.mu.Lock()
	_, ok := s.lookupTable(tableName)
	s.mu.Unlock()
	if !ok {
		writeNSONError(out, nosqlerr.CodeTableNotFound, "table not found: "+tableName)
		return nil
	}

	blob, err := buildPreparedBlob(tableName, statement)
	if err != nil {
		return err
	}

	w := wirenson.NewWriter(out)
	w.StartMap()
	w.WriteIntField(wirenson.KeyErrorCode, 0)
	writeConsumed(w, 1, 0)
	w.WriteBinaryField(wirenson.KeyPreparedQuery, blob)
	w.EndMap()
	return nil
}

// handleQuery decodes a QUERY payload ({consistency, max_read_kb,
// max_write_kb, continuation_key?, prepared_query?+bind_variables?,
// statement?}) and answers with the flat envelope deserializeQueryV4
// expects. This fake server has no query-plan interpreter (spec §1
// Non-goal): a "WHERE <col> = $var" single-equality predicate is
// answered by direct key lookup, and a bare "SELECT ... FROM table" scans
// the table in id order, queryPageSize rows at a time.
func (s *Server) handleQuery(rd *wirenson.Reader, out *buffer.ResizableBuffer) error {
	if _, err := rd.Next(); err != nil {
		return err
	}
	count, err := rd.EnterMap()
	if err != nil {
		return err
	}
	var continuation []byte
	var preparedBlob []byte
	var statement string
	bindVars := map[string]fieldvalue.Value{}
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		var ierr error
		switch rd.Key() {
		case wirenson.KeyContinuationKey:
			continuation, ierr = rd.ReadBinary()
		case wirenson.KeyPreparedQuery:
			preparedBlob, ierr = rd.ReadBinary()
		case wirenson.KeyBindVariables:
			ierr = readBindVariables(rd, bindVars)
		case wirenson.KeyStatement:
			statement, ierr = rd.ReadString()
		default:
			ierr = rd.SkipValue()
		}
		if ierr != nil {
			return ierr
		}
	}
	if err := rd.ExitMap(); err != nil {
		return err
	}
	if err := rd.ExitMap(); err != nil {
		return err
	}

	if preparedBlob != nil {
		stmt, err := statementFromPreparedBlob(preparedBlob)
		if err != nil {
			writeNSONError(out, nosqlerr.CodeIllegalArgument, err.Error())
			return nil
		}
		statement = stmt
	}

	tableName, bindVarName := parseQueryStatement(statement)

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookupTable(tableName)
	if !ok {
		writeNSONError(out, nosqlerr.CodeTableNotFound, "table not found: "+tableName)
		return nil
	}

	var results []*fieldvalue.MapValue
	var nextContinuation []byte

	if bindVarName != "" {
		if v, ok := bindVars[bindVarName]; ok {
			if r, exists := t.rows[valueKeyString(v)]; exists {
				results = append(results, r.value)
			}
		}
	} else {
		keys := sortedRowKeysByID(t)
		start := 0
		if len(continuation) > 0 {
			if n, err := strconv.Atoi(string(continuation)); err == nil {
				start = n
			}
		}
		end := start + queryPageSize
		if end > len(keys) {
			end = len(keys)
		}
		for _, k := range keys[start:end] {
			results = append(results, t.rows[k].value)
		}
		if end < len(keys) {
			nextContinuation = []byte(strconv.Itoa(end))
		}
	}

	w := wirenson.NewWriter(out)
	w.StartMap()
	w.WriteIntField(wirenson.KeyErrorCode, 0)
	writeConsumed(w, int32(len(results)), 0)
	w.WriteBoolField(wirenson.KeyIsSortPhase, false)
	w.StartArrayField(wirenson.KeyResults)
	for _, rv := range results {
		w.WriteValue(fieldvalue.Map(rv), false)
	}
	w.EndArray()
	if len(nextContinuation) > 0 {
		w.WriteBinaryField(wirenson.KeyContinuationKey, nextContinuation)
	}
	w.EndMap()
	return nil
}

// wmSubOp is one decoded WriteMultiple sub-operation.
type wmSubOp struct {
	opCode       wirebinary.OpCode
	value        *fieldvalue.MapValue // row for a put, key for a delete
	matchVersion []byte
}

// wmOutcome is the per-sub-operation result computed while applying a
// WriteMultiple batch.
type wmOutcome struct {
	success     bool
	newVersion  []byte
	existingRow *fieldvalue.MapValue
}

// handleWriteMultiple decodes a WRITE_MULTIPLE payload ({abort_on_fail,
// operations}) and answers with the flat envelope deserializeWriteMultipleV4
// (pkg/ops/writemultiple.go) expects. Sub-operations are applied against a
// private copy of the table's rows so an abort-on-fail batch commits
// nothing (spec §8 scenario D).
func (s *Server) handleWriteMultiple(rd *wirenson.Reader, tableName string, out *buffer.ResizableBuffer) error {
	if _, err := rd.Next(); err != nil {
		return err
	}
	count, err := rd.EnterMap()
	if err != nil {
		return err
	}
	var abortOnFail bool
	var subs []wmSubOp
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		var ierr error
		switch rd.Key() {
		case wirenson.KeyAbortOnFail:
			abortOnFail, ierr = rd.ReadBool()
		case wirenson.KeyOperations:
			subs, ierr = readWriteMultipleOps(rd)
		default:
			ierr = rd.SkipValue()
		}
		if ierr != nil {
			return ierr
		}
	}
	if err := rd.ExitMap(); err != nil {
		return err
	}
	if err := rd.ExitMap(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookupTable(tableName)
	if !ok {
		writeNSONError(out, nosqlerr.CodeTableNotFound, "table not found: "+tableName)
		return nil
	}

	working := make(map[string]*row, len(t.rows))
	for k, v := range t.rows {
		working[k] = v
	}

	results := make([]wmOutcome, 0, len(subs))
	overallSuccess := true
	failedIndex := -1

	for i, op := range subs {
		pk, err := primaryKeyOf(op.value)
		if err != nil {
			return err
		}
		existing, existed := working[pk]
		success := true
		isPut := op.opCode != wirebinary.OpDelete && op.opCode != wirebinary.OpDeleteIfVersion
		switch op.opCode {
		case wirebinary.OpPutIfAbsent:
			success = !existed
		case wirebinary.OpPutIfPresent:
			success = existed
		case wirebinary.OpPutIfVersion:
			success = existed && string(existing.version64Bytes()) == string(op.matchVersion)
		case wirebinary.OpDelete:
			success = existed
		case wirebinary.OpDeleteIfVersion:
			success = existed && string(existing.version64Bytes()) == string(op.matchVersion)
		}

		outcome := wmOutcome{success: success}
		if success {
			if isPut {
				s.nextVer++
				working[pk] = &row{value: op.value, version: s.nextVer}
				outcome.newVersion = versionBytes(s.nextVer)
			} else {
				delete(working, pk)
			}
		} else if existed {
			outcome.existingRow = existing.value
		}
		results = append(results, outcome)

		if !success && abortOnFail {
			failedIndex = i
			overallSuccess = false
			break
		}
	}

	w := wirenson.NewWriter(out)
	w.StartMap()
	w.WriteIntField(wirenson.KeyErrorCode, 0)
	writeConsumed(w, 0, int32(len(results)))
	w.WriteBoolField(wirenson.KeySuccess, overallSuccess)
	if !overallSuccess {
		w.WriteIntField(wirenson.KeySeqNum, int32(failedIndex))
		results = results[len(results)-1:] // just the op that tripped the abort
	}
	w.StartArrayField(wirenson.KeyResults)
	for _, r := range results {
		w.StartMap()
		w.WriteBoolField(wirenson.KeySuccess, r.success)
		if r.success {
			w.WriteBinaryField(wirenson.KeyRowVersion, r.newVersion)
		} else if r.existingRow != nil {
			w.Key(wirenson.KeyRow)
			w.WriteValue(fieldvalue.Map(r.existingRow), false)
		}
		w.EndMap()
	}
	w.EndArray()
	w.EndMap()

	if overallSuccess {
		t.rows = working
	}
	return nil
}

func readWriteMultipleOps(rd *wirenson.Reader) ([]wmSubOp, error) {
	count, err := rd.EnterArray()
	if err != nil {
		return nil, err
	}
	ops := make([]wmSubOp, 0, count)
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return nil, err
		}
		op, err := readWriteMultipleOp(rd)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rd.ExitArray()
}

func readWriteMultipleOp(rd *wirenson.Reader) (wmSubOp, error) {
	var op wmSubOp
	count, err := rd.EnterMap()
	if err != nil {
		return op, err
	}
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return op, err
		}
		var ierr error
		switch rd.Key() {
		case wirenson.KeyOpCode:
			var v int32
			v, ierr = rd.ReadInt()
			op.opCode = wirebinary.OpCode(v)
		case wirenson.KeyRow, wirenson.KeyKey:
			var v fieldvalue.Value
			v, ierr = rd.ReadValue()
			if ierr == nil {
				op.value = v.AsMap()
			}
		case wirenson.KeyMatchVersion:
			op.matchVersion, ierr = rd.ReadBinary()
		default:
			ierr = rd.SkipValue()
		}
		if ierr != nil {
			return op, ierr
		}
	}
	return op, rd.ExitMap()
}

func readBindVariables(rd *wirenson.Reader, out map[string]fieldvalue.Value) error {
	count, err := rd.EnterMap()
	if err != nil {
		return err
	}
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		name := rd.Key()
		v, err := rd.ReadValue()
		if err != nil {
			return err
		}
		out[name] = v
	}
	return rd.ExitMap()
}

// parseQueryStatement recovers just enough of a statement to drive this
// fake server: the table named after FROM, and (if present) the name of a
// single "$var" bind-variable token, stripped of its leading "$" to match
// the bind-variable map key convention. It is not a SQL parser.
func parseQueryStatement(statement string) (table, bindVar string) {
	fields := strings.Fields(statement)
	for i, f := range fields {
		if strings.EqualFold(f, "FROM") && i+1 < len(fields) {
			table = fields[i+1]
		}
		if strings.HasPrefix(f, "$") {
			bindVar = strings.TrimPrefix(f, "$")
		}
	}
	return table, bindVar
}

// sortedRowKeysByID returns a table's internal row keys ordered by the
// numeric "id" field when every row has one, falling back to a plain
// string sort otherwise, giving stable pagination across handleQuery
// calls (spec §8 scenario C).
func sortedRowKeysByID(t *table) []string {
	type entry struct {
		pk     string
		ord    int64
		hasOrd bool
	}
	entries := make([]entry, 0, len(t.rows))
	for pk, r := range t.rows {
		e := entry{pk: pk}
		if idv, ok := r.value.Get("id"); ok {
			switch idv.Type() {
			case fieldvalue.TypeInteger:
				e.ord, e.hasOrd = int64(idv.AsInt()), true
			case fieldvalue.TypeLong:
				if !idv.IsBigLong() {
					e.ord, e.hasOrd = idv.AsLong(), true
				}
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].hasOrd && entries[j].hasOrd {
			return entries[i].ord < entries[j].ord
		}
		return entries[i].pk < entries[j].pk
	})
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.pk
	}
	return keys
}

// buildPreparedBlob assembles a prepared-statement blob matching the fixed
// prefix parsePrefix (pkg/prepared/prepared.go) expects — {4-byte length,
// 32-byte hash, 1-byte table count, namespace, table, opcode} — with the
// raw statement text appended after it. The driver only ever reads the
// fixed prefix; everything after it is opaque to the client and round
// -trips byte-for-byte (spec §8 scenario B).
func buildPreparedBlob(tableName, statement string) ([]byte, error) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	buf.WriteInt32BE(0, buf.Len()) // length placeholder, unread by the client
	buf.AppendBytes(make([]byte, prefixHashLen))
	buf.WriteUint8(1, buf.Len()) // table count
	wirebinary.WriteString(buf, nil)
	tbl := tableName
	wirebinary.WriteString(buf, &tbl)
	wirebinary.WriteOpCode(buf, wirebinary.OpQuery)
	buf.AppendBytes([]byte(statement))

	raw, err := buf.Slice(0, buf.Len())
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// statementFromPreparedBlob is buildPreparedBlob's inverse: it skips the
// fixed prefix and returns the raw statement text appended after it.
func statementFromPreparedBlob(blob []byte) (string, error) {
	pool := buffer.NewPool()
	scratch := pool.Acquire()
	defer pool.Release(scratch)
	scratch.AppendBytes(blob)
	r := scratch.Reader()

	if _, err := r.Int32BE(); err != nil {
		return "", err
	}
	if _, err := r.Bytes(prefixHashLen); err != nil {
		return "", err
	}
	if _, err := r.Uint8(); err != nil {
		return "", err
	}
	if _, err := wirebinary.ReadString(r); err != nil { // namespace
		return "", err
	}
	if _, err := wirebinary.ReadString(r); err != nil { // table
		return "", err
	}
	if _, err := r.Uint8(); err != nil { // opcode
		return "", err
	}
	rest, err := r.Bytes(r.Remaining())
	if err != nil {
		return "", err
	}
	return string(rest), nil
}
