package testserver

import (
	"fmt"
	"strings"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/nosqlerr"
	"progressdb/nosqldb/pkg/wirebinary"
	"progressdb/nosqldb/pkg/wirenson"
)

// primaryKeyOf extracts this fake server's notion of a row identity: the
// "id" field, required on every row/key MapValue a test writes. A real
// service derives identity from the table's declared primary-key columns;
// this server has no schema, so it fixes the column name instead.
func primaryKeyOf(m *fieldvalue.MapValue) (string, error) {
	if m == nil {
		return "", nosqlerr.Argument("testserver: key/row missing")
	}
	v, ok := m.Get("id")
	if !ok {
		return "", nosqlerr.Argument("testserver: key/row missing required \"id\" field")
	}
	return valueKeyString(v), nil
}

func valueKeyString(v fieldvalue.Value) string {
	switch v.Type() {
	case fieldvalue.TypeString:
		return "s:" + v.AsString()
	case fieldvalue.TypeInteger:
		return fmt.Sprintf("i:%d", v.AsInt())
	case fieldvalue.TypeLong:
		if v.IsBigLong() {
			return "l:" + v.AsBigInt().String()
		}
		return fmt.Sprintf("l:%d", v.AsLong())
	case fieldvalue.TypeBinary:
		return "b:" + string(v.AsBinary())
	default:
		return fmt.Sprintf("v:%v", v)
	}
}

func versionBytes(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}

func (s *Server) lookupTable(name string) (*table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// handleGet decodes a GET payload ({consistency, key}) and answers with
// the flat error_code/consumed/existed/row/row_version envelope
// deserializeGetV4 (pkg/ops/get.go) expects.
func (s *Server) handleGet(rd *wirenson.Reader, tableName string, out *buffer.ResizableBuffer) error {
	if _, err := rd.Next(); err != nil { // "payload"
		return err
	}
	count, err := rd.EnterMap()
	if err != nil {
		return err
	}
	var key *fieldvalue.MapValue
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		var ierr error
		switch rd.Key() {
		case wirenson.KeyKey:
			var v fieldvalue.Value
			v, ierr = rd.ReadValue()
			if ierr == nil {
				key = v.AsMap()
			}
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

	pk, err := primaryKeyOf(key)
	if err != nil {
		writeNSONError(out, nosqlerr.CodeIllegalArgument, err.Error())
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookupTable(tableName)
	if !ok {
		writeNSONError(out, nosqlerr.CodeTableNotFound, "table not found: "+tableName)
		return nil
	}
	r, existed := t.rows[pk]

	w := wirenson.NewWriter(out)
	w.StartMap()
	w.WriteIntField(wirenson.KeyErrorCode, 0)
	writeConsumed(w, 1, 0)
	w.WriteBoolField(wirenson.KeyExisted, existed)
	if existed {
		w.Key(wirenson.KeyRow)
		w.WriteValue(fieldvalue.Map(r.value), false)
		w.WriteBinaryField(wirenson.KeyRowVersion, versionBytes(r.version))
	}
	w.EndMap()
	return nil
}

// handlePut decodes a PUT payload ({return_row, exact_match, row, ttl?,
// match_version?}) and answers with the flat envelope deserializePutV4
// expects, honoring the PutKind conditional-write semantics opCode
// selects.
func (s *Server) handlePut(opCode wirebinary.OpCode, rd *wirenson.Reader, tableName string, out *buffer.ResizableBuffer) error {
	if _, err := rd.Next(); err != nil {
		return err
	}
	count, err := rd.EnterMap()
	if err != nil {
		return err
	}
	var rowVal *fieldvalue.MapValue
	var matchVersion []byte
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		var ierr error
		switch rd.Key() {
		case wirenson.KeyRow:
			var v fieldvalue.Value
			v, ierr = rd.ReadValue()
			if ierr == nil {
				rowVal = v.AsMap()
			}
		case wirenson.KeyMatchVersion:
			matchVersion, ierr = rd.ReadBinary()
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

	pk, err := primaryKeyOf(rowVal)
	if err != nil {
		writeNSONError(out, nosqlerr.CodeIllegalArgument, err.Error())
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookupTable(tableName)
	if !ok {
		writeNSONError(out, nosqlerr.CodeTableNotFound, "table not found: "+tableName)
		return nil
	}

	existing, existed := t.rows[pk]
	success := true
	switch opCode {
	case wirebinary.OpPutIfAbsent:
		success = !existed
	case wirebinary.OpPutIfPresent:
		success = existed
	case wirebinary.OpPutIfVersion:
		success = existed && string(existing.version64Bytes()) == string(matchVersion)
	}

	w := wirenson.NewWriter(out)
	w.StartMap()
	w.WriteIntField(wirenson.KeyErrorCode, 0)
	writeConsumed(w, 0, 1)
	w.WriteBoolField(wirenson.KeySuccess, success)
	if success {
		s.nextVer++
		t.rows[pk] = &row{value: rowVal, version: s.nextVer}
		w.WriteBinaryField(wirenson.KeyRowVersion, versionBytes(s.nextVer))
	}
	w.EndMap()
	return nil
}

func (r *row) version64Bytes() []byte { return versionBytes(r.version) }

// handleDelete decodes a DELETE payload ({return_row, key,
// match_version?}) and answers with the flat envelope deserializeDeleteV4
// expects.
func (s *Server) handleDelete(opCode wirebinary.OpCode, rd *wirenson.Reader, tableName string, out *buffer.ResizableBuffer) error {
	if _, err := rd.Next(); err != nil {
		return err
	}
	count, err := rd.EnterMap()
	if err != nil {
		return err
	}
	var key *fieldvalue.MapValue
	var matchVersion []byte
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		var ierr error
		switch rd.Key() {
		case wirenson.KeyKey:
			var v fieldvalue.Value
			v, ierr = rd.ReadValue()
			if ierr == nil {
				key = v.AsMap()
			}
		case wirenson.KeyMatchVersion:
			matchVersion, ierr = rd.ReadBinary()
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

	pk, err := primaryKeyOf(key)
	if err != nil {
		writeNSONError(out, nosqlerr.CodeIllegalArgument, err.Error())
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookupTable(tableName)
	if !ok {
		writeNSONError(out, nosqlerr.CodeTableNotFound, "table not found: "+tableName)
		return nil
	}

	existing, existed := t.rows[pk]
	success := existed
	if opCode == wirebinary.OpDeleteIfVersion && existed {
		success = string(existing.version64Bytes()) == string(matchVersion)
	}
	if success {
		delete(t.rows, pk)
	}

	w := wirenson.NewWriter(out)
	w.StartMap()
	w.WriteIntField(wirenson.KeyErrorCode, 0)
	writeConsumed(w, 0, 1)
	w.WriteBoolField(wirenson.KeySuccess, success)
	w.EndMap()
	return nil
}

// handleGetTable decodes a GETTABLE payload ({operation_id}) and answers
// with the flat envelope readTableResultV4 (pkg/ops/table.go) expects.
func (s *Server) handleGetTable(rd *wirenson.Reader, tableName string, out *buffer.ResizableBuffer) error {
	if _, err := rd.Next(); err != nil {
		return err
	}
	count, err := rd.EnterMap()
	if err != nil {
		return err
	}
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		if err := rd.SkipValue(); err != nil {
			return err
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

	writeTableResult(out, tableName, t)
	return nil
}

// handleTableRequest decodes a TABLE_REQUEST payload ({statement,
// limits?}). DDL statements are parsed only enough to recover a CREATE
// TABLE name (spec §8 scenario E needs this much); tests drive completion
// of anything fancier via Server.SetTableState directly.
func (s *Server) handleTableRequest(rd *wirenson.Reader, out *buffer.ResizableBuffer) error {
	if _, err := rd.Next(); err != nil {
		return err
	}
	count, err := rd.EnterMap()
	if err != nil {
		return err
	}
	var statement string
	var limits *wirebinary.CapacityMode
	var readUnits, writeUnits int32
	hasLimits := false
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		var ierr error
		switch rd.Key() {
		case wirenson.KeyStatement:
			statement, ierr = rd.ReadString()
		case wirenson.KeyLimits:
			hasLimits = true
			ierr = readLimitsPayload(rd, &readUnits, &writeUnits, limits)
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

	name := ddlTableName(statement)
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[string]*row), readUnits: 100, writeUnits: 100}
		s.tables[name] = t
	}
	if hasLimits {
		t.readUnits, t.writeUnits = readUnits, writeUnits
	}
	switch {
	case statement != "" && ddlIsDrop(statement):
		t.state = wirebinary.TableDropping
	case statement != "":
		t.state = wirebinary.TableCreating
	default:
		t.state = wirebinary.TableActive
	}

	writeTableResult(out, name, t)
	return nil
}

func readLimitsPayload(rd *wirenson.Reader, readUnits, writeUnits *int32, _ *wirebinary.CapacityMode) error {
	count, err := rd.EnterMap()
	if err != nil {
		return err
	}
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		var ierr error
		switch rd.Key() {
		case wirenson.KeyReadLimit:
			*readUnits, ierr = rd.ReadInt()
		case wirenson.KeyWriteLimit:
			*writeUnits, ierr = rd.ReadInt()
		default:
			ierr = rd.SkipValue()
		}
		if ierr != nil {
			return ierr
		}
	}
	return rd.ExitMap()
}

// ddlTableName recovers the table name from a CREATE/DROP/ALTER TABLE
// statement well enough for scenario E's polling test; it does not
// attempt to parse real DDL grammar.
func ddlTableName(statement string) string {
	fields := strings.Fields(statement)
	for i, f := range fields {
		if strings.EqualFold(f, "TABLE") && i+1 < len(fields) {
			name := fields[i+1]
			if paren := strings.IndexByte(name, '('); paren >= 0 {
				name = name[:paren]
			}
			return name
		}
	}
	return ""
}

func ddlIsDrop(statement string) bool {
	fields := strings.Fields(statement)
	return len(fields) > 0 && strings.EqualFold(fields[0], "DROP")
}

func writeTableResult(out *buffer.ResizableBuffer, name string, t *table) {
	w := wirenson.NewWriter(out)
	w.StartMap()
	w.WriteIntField(wirenson.KeyErrorCode, 0)
	writeConsumed(w, 0, 0)
	w.WriteStringField(wirenson.KeyTableName, name)
	w.WriteIntField(wirenson.KeyTableState, int32(t.state))
	w.StartMapField(wirenson.KeyLimits)
	w.WriteIntField(wirenson.KeyReadLimit, t.readUnits)
	w.WriteIntField(wirenson.KeyWriteLimit, t.writeUnits)
	w.WriteIntField(wirenson.KeyStorageLimit, 1)
	w.WriteIntField(wirenson.KeyCapacityMode, 0)
	w.EndMap()
	w.EndMap()
}
