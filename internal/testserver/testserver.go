// Package testserver implements a minimal in-memory NoSQL service for
// exercising the driver pipeline without a real server (spec §8's
// lettered round-trip scenarios). It speaks the V4/NSON wire format for
// GET, PUT, DELETE, GETTABLE, TABLE_REQUEST, QUERY, PREPARE and
// WRITE_MULTIPLE — the opcodes exercised by client_test.go — and answers
// every other opcode with CodeUnknownOperation so a downgrade/
// unsupported-opcode path can be tested deliberately rather than by
// accident.
//
// Routing follows the teacher's pkg/api/handlers admin.go convention of
// registering routes on a *mux.Router, even though the driver's wire
// protocol itself is a single POST endpoint (spec §6 "one HTTP endpoint
// per Client"); that POST "/" endpoint is the only route. Fault injection
// and table-state changes are plain Go methods (InjectFault,
// SetTableState), not HTTP routes.
package testserver

import (
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/mux"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/nosqlerr"
	"progressdb/nosqldb/pkg/wirebinary"
	"progressdb/nosqldb/pkg/wirenson"
)

type row struct {
	value   *fieldvalue.MapValue
	version uint64
}

type table struct {
	rows       map[string]*row
	state      wirebinary.TableState
	readUnits  int32
	writeUnits int32
}

// Server is a standalone *httptest.Server fronting an in-memory table
// store. Zero value is not usable; construct with New.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	tables   map[string]*table
	nextVer  uint64
	fault    *fault // set by InjectFault, consumed by the next matching request
	requests []RecordedRequest
}

// RecordedRequest captures one decoded request for assertions in tests
// that care about what actually crossed the wire (spec §8 scenario F:
// "retry eventually succeeds").
type RecordedRequest struct {
	OpCode  wirebinary.OpCode
	Table   string
	Version wirebinary.SerialVersion
}

type fault struct {
	opCode   wirebinary.OpCode
	code     nosqlerr.Code
	message  string
	attempts int // how many times to fail before letting the request through; -1 means forever
}

// New starts a Server with the given tables pre-created, each in the
// lifecycle state given for it and provisioned with 100 read units and
// 100 write units. Callers Close() it like any httptest.Server.
func New(tables map[string]wirebinary.TableState) *Server {
	s := &Server{tables: make(map[string]*table)}
	for name, state := range tables {
		s.tables[name] = &table{rows: make(map[string]*row), state: state, readUnits: 100, writeUnits: 100}
	}
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRequest).Methods(http.MethodPost)
	s.Server = httptest.NewServer(r)
	return s
}

// InjectFault makes the next attempts-many requests against opCode fail
// with the given server error code before the Server starts answering
// normally again. attempts < 0 fails forever (used for scenarios that
// expect the retry budget itself to expire).
func (s *Server) InjectFault(opCode wirebinary.OpCode, code nosqlerr.Code, message string, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = &fault{opCode: opCode, code: code, message: message, attempts: attempts}
}

// Requests returns every request decoded so far, in arrival order.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// SetTableState forces a table's lifecycle state, letting tests simulate
// a DDL operation completing asynchronously (spec §8 scenario E: "DDL
// completion polling").
func (s *Server) SetTableState(name string, state wirebinary.TableState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[name]
	if t == nil {
		t = &table{rows: make(map[string]*row)}
		s.tables[name] = t
	}
	t.state = state
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	body := make([]byte, 0, r.ContentLength)
	buf := make([]byte, 4096)
	for {
		n, err := r.Body.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if err != nil {
			break
		}
	}

	pool := buffer.NewPool()
	in := pool.Acquire()
	defer pool.Release(in)
	in.AppendBytes(body)
	cursor := in.Reader()

	version, err := wirebinary.ReadSerialVersion(cursor)
	if err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	opCode, err := readOpCode(cursor)
	if err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	if version != wirebinary.V4 {
		// This server only speaks V4. A real pre-V4 server would answer
		// with the explicit binary error code (spec §4.5/§9 open question
		// 2: codes 17/24 never appear as NSON type tags, so they double as
		// the downgrade signal). That byte is raw, not packed-int encoded
		// (spec §4.3 "the first response byte is the error code"), and it
		// sits right after this driver's self-inserted 2-byte version
		// prefix, at offset 2 — exactly where
		// protocol.IsUnsupportedProtocolSignal looks for it.
		out := pool.Acquire()
		defer pool.Release(out)
		wirebinary.WriteSerialVersion(out, version)
		wirebinary.WriteRawErrorCodeByte(out, unsupportedProtocolSignalByte)
		msg := "server does not support protocol version"
		wirebinary.WriteString(out, &msg)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out.Bytes())
		return
	}

	tableName, err := peekTableName(cursor)
	if err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{OpCode: opCode, Table: tableName, Version: version})
	if f := s.fault; f != nil && f.opCode == opCode && (f.attempts < 0 || f.attempts > 0) {
		if f.attempts > 0 {
			f.attempts--
			if f.attempts == 0 {
				s.fault = nil
			}
		}
		s.mu.Unlock()
		out := pool.Acquire()
		defer pool.Release(out)
		wirebinary.WriteSerialVersion(out, wirebinary.V4)
		writeNSONError(out, f.code, f.message)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out.Bytes())
		return
	}
	s.mu.Unlock()

	out := pool.Acquire()
	defer pool.Release(out)
	wirebinary.WriteSerialVersion(out, wirebinary.V4)

	rd := wirenson.NewReader(cursor)
	table, err := readHeader(rd)
	var handlerErr error
	if err != nil {
		handlerErr = err
	} else {
		switch opCode {
		case wirebinary.OpGet:
			handlerErr = s.handleGet(rd, table, out)
		case wirebinary.OpPut, wirebinary.OpPutIfAbsent, wirebinary.OpPutIfPresent, wirebinary.OpPutIfVersion:
			handlerErr = s.handlePut(opCode, rd, table, out)
		case wirebinary.OpDelete, wirebinary.OpDeleteIfVersion:
			handlerErr = s.handleDelete(opCode, rd, table, out)
		case wirebinary.OpGetTable:
			handlerErr = s.handleGetTable(rd, table, out)
		case wirebinary.OpTableRequest:
			handlerErr = s.handleTableRequest(rd, out)
		case wirebinary.OpQuery:
			handlerErr = s.handleQuery(rd, out)
		case wirebinary.OpPrepare:
			handlerErr = s.handlePrepare(rd, out)
		case wirebinary.OpWriteMultiple:
			handlerErr = s.handleWriteMultiple(rd, table, out)
		default:
			out.Clear()
			wirebinary.WriteSerialVersion(out, wirebinary.V4)
			writeNSONError(out, nosqlerr.CodeUnknownOperation, "testserver: unsupported opcode")
		}
	}
	if handlerErr != nil {
		http.Error(w, "internal: "+handlerErr.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Bytes())
}

func readOpCode(r *buffer.Reader) (wirebinary.OpCode, error) {
	b, err := r.Uint8()
	return wirebinary.OpCode(b), err
}

// peekTableName decodes just enough of a V4 request envelope to recover
// the table name for RecordedRequest bookkeeping and rate-limit-style
// assertions, then rewinds the cursor so the real handler re-reads the
// envelope from the start.
func peekTableName(r *buffer.Reader) (string, error) {
	start := r.Offset()
	rd := wirenson.NewReader(r)
	name, err := readHeader(rd)
	r.Seek(start)
	return name, err
}

// readHeader reads the outer request map's opening and its "header"
// field, returning the table name (empty for opcodes that don't carry
// one). It leaves the outer map frame open and the cursor positioned to
// read the "payload" field next, so opcode handlers can continue reading
// from the same Reader.
func readHeader(rd *wirenson.Reader) (string, error) {
	if t, err := rd.Next(); err != nil || t != fieldvalue.TypeMap {
		if err != nil {
			return "", err
		}
		return "", errNotMap
	}
	if _, err := rd.EnterMap(); err != nil {
		return "", err
	}
	if _, err := rd.Next(); err != nil {
		return "", err
	}
	hCount, err := rd.EnterMap()
	if err != nil {
		return "", err
	}
	var table string
	for i := int32(0); i < hCount; i++ {
		if _, err := rd.Next(); err != nil {
			return "", err
		}
		if rd.Key() == wirenson.KeyTableName {
			table, err = rd.ReadString()
		} else {
			err = rd.SkipValue()
		}
		if err != nil {
			return "", err
		}
	}
	return table, rd.ExitMap()
}

var errNotMap = nosqlerr.Protocol(nil, "testserver: V4 request envelope is not a MAP")

// unsupportedProtocolSignalByte is the legacy explicit UNSUPPORTED_PROTOCOL
// wire code (spec §9 open question 2: "the specific error codes 17 or 24").
// It deliberately does not match nosqlerr.CodeUnsupportedProtocol's own
// numbering (26 in this driver's Code enum) — the signal byte the
// downgrade path watches for is the old server's wire value, not this
// driver's internal constant.
const unsupportedProtocolSignalByte byte = 24

func writeNSONError(buf *buffer.ResizableBuffer, code nosqlerr.Code, msg string) {
	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.WriteIntField(wirenson.KeyErrorCode, int32(code))
	w.WriteStringField(wirenson.KeyException, msg)
	w.EndMap()
}

func writeConsumed(w *wirenson.Writer, read, write int32) {
	w.StartMapField(wirenson.KeyConsumed)
	w.WriteIntField(wirenson.KeyReadUnits, read)
	w.WriteIntField(wirenson.KeyReadKB, read)
	w.WriteIntField(wirenson.KeyWriteKB, write)
	w.EndMap()
}
