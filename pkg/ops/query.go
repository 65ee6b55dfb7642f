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

// QueryRequest drives one page of a (simple or advanced) query execution
// (spec §3 opcode QUERY). The query-plan interpreter — sort/group/
// aggregation over multiple shards — is a Non-goal; this op moves the
// statement or prepared-statement handle, bind variables, and
// continuation key across the wire and hands back whatever single-shard
// page the server computed.
type QueryRequest struct {
	Statement   string               // set for a never-before-prepared query; mutually exclusive with Prepared
	Prepared    *prepared.PreparedStatement
	BindVars    map[string]fieldvalue.Value
	Continuation []byte
	MaxReadKB   int32
	MaxWriteKB  int32
	Options     Options
}

func (r *QueryRequest) OpCode() wirebinary.OpCode { return wirebinary.OpQuery }
func (r *QueryRequest) TableName() string {
	if r.Prepared != nil {
		return r.Prepared.TableName
	}
	return ""
}
func (r *QueryRequest) ShouldRetry() bool          { return true }
func (r *QueryRequest) SupportsRateLimiting() bool { return true }
func (r *QueryRequest) DoesReads() bool            { return true }
func (r *QueryRequest) DoesWrites() bool           { return false }
func (r *QueryRequest) GetOptions() Options        { return r.Options }
func (r *QueryRequest) SetOptions(o Options)  { r.Options = o }

func (r *QueryRequest) Validate() error {
	if r.Statement == "" && r.Prepared == nil {
		return nosqlerr.Argument("ops: Query requires a statement or a prepared statement")
	}
	return nil
}

// QueryResult is one page of query output plus the continuation token
// needed to fetch the next (spec §3 "continuation key").
type QueryResult struct {
	Results      []*fieldvalue.MapValue
	Continuation []byte
	IsSortPhase  bool
	Consumed     wirebinary.ConsumedCapacity
}

func serializeQueryV23(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*QueryRequest)
	if !ok {
		return errors.New("ops: serializeQueryV23 given wrong request type")
	}
	wirebinary.WriteTimeoutMillis(buf, r.Options.TimeoutOrDefault())
	buf.WriteUint8(byte(r.Options.ConsistencyOrDefault()), buf.Len())
	wirebinary.WriteLong(buf, int64(r.MaxReadKB))
	wirebinary.WriteLong(buf, int64(r.MaxWriteKB))
	wirebinary.WriteBinary(buf, r.Continuation)
	isPrepared := r.Prepared != nil
	wirebinary.WriteBoolean(buf, isPrepared)
	if isPrepared {
		wirebinary.WriteBinary2(buf, r.Prepared.Blob)
		wirebinary.WriteInt(buf, int32(len(r.BindVars)))
		for name, v := range r.BindVars {
			n := name
			wirebinary.WriteString(buf, &n)
			wirebinary.WriteFieldValue(buf, v, false)
		}
	} else {
		s := r.Statement
		wirebinary.WriteString(buf, &s)
	}
	return nil
}

func deserializeQueryV23(r *buffer.Reader, req interface{}) (interface{}, error) {
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
	res := &QueryResult{Consumed: consumed}
	isSort, err := wirebinary.ReadBoolean(r)
	if err != nil {
		return nil, err
	}
	res.IsSortPhase = isSort
	n, err := wirebinary.ReadInt(r)
	if err != nil {
		return nil, err
	}
	res.Results = make([]*fieldvalue.MapValue, 0, n)
	for i := int32(0); i < n; i++ {
		v, err := wirebinary.ReadFieldValue(r)
		if err != nil {
			return nil, err
		}
		res.Results = append(res.Results, v.AsMap())
	}
	cont, err := wirebinary.ReadBinary(r)
	if err != nil {
		return nil, err
	}
	res.Continuation = cont
	return res, nil
}

func serializeQueryV4(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*QueryRequest)
	if !ok {
		return errors.New("ops: serializeQueryV4 given wrong request type")
	}
	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.StartMapField(wirenson.KeyHeader)
	w.WriteIntField(wirenson.KeyVersion, int32(wirebinary.V4))
	w.WriteIntField(wirenson.KeyOpCode, int32(wirebinary.OpQuery))
	w.WriteLongField(wirenson.KeyTimeout, r.Options.TimeoutOrDefault().Milliseconds())
	w.EndMap()
	w.StartMapField(wirenson.KeyPayload)
	w.WriteIntField(wirenson.KeyConsistency, int32(r.Options.ConsistencyOrDefault()))
	w.WriteIntField(wirenson.KeyMaxReadKB, r.MaxReadKB)
	w.WriteIntField(wirenson.KeyMaxWriteKB, r.MaxWriteKB)
	if len(r.Continuation) > 0 {
		w.WriteBinaryField(wirenson.KeyContinuationKey, r.Continuation)
	}
	if r.Prepared != nil {
		w.WriteBinaryField(wirenson.KeyPreparedQuery, r.Prepared.Blob)
		if len(r.BindVars) > 0 {
			w.StartMapField(wirenson.KeyBindVariables)
			for name, v := range r.BindVars {
				w.Key(name)
				w.WriteValue(v, false)
			}
			w.EndMap()
		}
	} else {
		w.WriteStringField(wirenson.KeyStatement, r.Statement)
	}
	w.EndMap()
	w.EndMap()
	return nil
}

func deserializeQueryV4(r *buffer.Reader, req interface{}) (interface{}, error) {
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
	res := &QueryResult{}
	var errCode int32
	var errMsg string
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
			ierr = readConsumedNSON(rd, &res.Consumed)
		case wirenson.KeyIsSortPhase:
			res.IsSortPhase, ierr = rd.ReadBool()
		case wirenson.KeyContinuationKey:
			res.Continuation, ierr = rd.ReadBinary()
		case wirenson.KeyResults:
			ierr = readResultsArray(rd, res)
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
	return res, nil
}

func readResultsArray(rd *wirenson.Reader, res *QueryResult) error {
	count, err := rd.EnterArray()
	if err != nil {
		return err
	}
	res.Results = make([]*fieldvalue.MapValue, 0, count)
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		v, err := rd.ReadValue()
		if err != nil {
			return err
		}
		res.Results = append(res.Results, v.AsMap())
	}
	return rd.ExitArray()
}

func init() {
	protocol.Register(wirebinary.V2, wirebinary.OpQuery, serializeQueryV23, deserializeQueryV23)
	protocol.Register(wirebinary.V3, wirebinary.OpQuery, serializeQueryV23, deserializeQueryV23)
	protocol.Register(wirebinary.V4, wirebinary.OpQuery, serializeQueryV4, deserializeQueryV4)
}
