package ops

import (
	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/nosqlerr"
	"progressdb/nosqldb/pkg/prepared"
	"progressdb/nosqldb/pkg/protocol"
	"progressdb/nosqldb/pkg/wirebinary"
	"progressdb/nosqldb/pkg/wirenson"

	"github.com/cockroachdb/errors"
)

// PrepareRequest compiles a query statement server-side and returns an
// opaque blob the caller can execute repeatedly (spec §3
// "PreparedStatement", opcode PREPARE). Query plan execution itself
// (advanced query plan interpreter, sort/group engine) is out of scope;
// this op only needs to move the opaque blob and its driver-visible
// prefix across the wire.
type PrepareRequest struct {
	Statement   string
	GetQueryPlan bool
	Options     Options
}

func (r *PrepareRequest) OpCode() wirebinary.OpCode  { return wirebinary.OpPrepare }
func (r *PrepareRequest) TableName() string          { return "" }
func (r *PrepareRequest) ShouldRetry() bool          { return false } // spec §4.8: prepare never retried
func (r *PrepareRequest) SupportsRateLimiting() bool { return false }
func (r *PrepareRequest) DoesReads() bool            { return false }
func (r *PrepareRequest) DoesWrites() bool           { return false }
func (r *PrepareRequest) GetOptions() Options        { return r.Options }
func (r *PrepareRequest) SetOptions(o Options)       { r.Options = o }

func (r *PrepareRequest) Validate() error {
	if r.Statement == "" {
		return nosqlerr.Argument("ops: Prepare requires a statement")
	}
	return nil
}

// PrepareResult wraps the returned PreparedStatement.
type PrepareResult struct {
	Statement *prepared.PreparedStatement
	Consumed  wirebinary.ConsumedCapacity
}

func serializePrepareV23(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*PrepareRequest)
	if !ok {
		return errors.New("ops: serializePrepareV23 given wrong request type")
	}
	wirebinary.WriteTimeoutMillis(buf, r.Options.TimeoutOrDefault())
	s := r.Statement
	wirebinary.WriteString(buf, &s)
	wirebinary.WriteBoolean(buf, r.GetQueryPlan)
	return nil
}

func deserializePrepareV23(r *buffer.Reader, req interface{}) (interface{}, error) {
	pr, _ := req.(*PrepareRequest)
	code, err := wirebinary.ReadErrorCode(r)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, readServerError(r, code)
	}
	consumed, err := wirebinary.ReadConsumedCapacity(r)
	if err != nil {
		return nil, err
	}
	stmt := ""
	if pr != nil {
		stmt = pr.Statement
	}
	ps, err := prepared.ReadResult(r, stmt)
	if err != nil {
		return nil, err
	}
	return &PrepareResult{Statement: ps, Consumed: consumed}, nil
}

func serializePrepareV4(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*PrepareRequest)
	if !ok {
		return errors.New("ops: serializePrepareV4 given wrong request type")
	}
	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.StartMapField(wirenson.KeyHeader)
	w.WriteIntField(wirenson.KeyVersion, int32(wirebinary.V4))
	w.WriteIntField(wirenson.KeyOpCode, int32(wirebinary.OpPrepare))
	w.WriteLongField(wirenson.KeyTimeout, r.Options.TimeoutOrDefault().Milliseconds())
	w.EndMap()
	w.StartMapField(wirenson.KeyPayload)
	w.WriteStringField(wirenson.KeyStatement, r.Statement)
	w.EndMap()
	w.EndMap()
	return nil
}

func deserializePrepareV4(r *buffer.Reader, req interface{}) (interface{}, error) {
	pr, _ := req.(*PrepareRequest)
	rd := wirenson.NewReader(r)
	if t, err := rd.Next(); err != nil || t != fieldvalue.TypeMap {
		if err != nil {
			return nil, err
		}
		return nil, errors.New("ops: V4 response envelope is not a MAP")
	}
	count, err := rd.EnterMap()
	if err != nil {
		return nil, err
	}
	var errCode int32
	var errMsg string
	var blob []byte
	var consumed wirebinary.ConsumedCapacity
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return nil, err
		}
		var ierr error
		switch rd.Key() {
		case wirenson.KeyErrorCode:
			errCode, ierr = rd.ReadInt()
		case wirenson.KeyException:
			errMsg, ierr = rd.ReadString()
		case wirenson.KeyConsumed:
			ierr = readConsumedNSON(rd, &consumed)
		case wirenson.KeyPreparedQuery:
			blob, ierr = rd.ReadBinary()
		default:
			ierr = rd.SkipValue()
		}
		if ierr != nil {
			return nil, ierr
		}
	}
	if err := rd.ExitMap(); err != nil {
		return nil, err
	}
	if errCode != 0 {
		c := nosqlerr.Code(errCode)
		if c == nosqlerr.CodeUnsupportedProtocol {
			return nil, nosqlerr.UnsupportedProtocol(errMsg)
		}
		return nil, nosqlerr.Server(c, errMsg)
	}
	stmt := ""
	if pr != nil {
		stmt = pr.Statement
	}
	ps, err := prepared.New(stmt, blob)
	if err != nil {
		return nil, err
	}
	return &PrepareResult{Statement: ps, Consumed: consumed}, nil
}

func init() {
	protocol.Register(wirebinary.V2, wirebinary.OpPrepare, serializePrepareV23, deserializePrepareV23)
	protocol.Register(wirebinary.V3, wirebinary.OpPrepare, serializePrepareV23, deserializePrepareV23)
	protocol.Register(wirebinary.V4, wirebinary.OpPrepare, serializePrepareV4, deserializePrepareV4)
}
