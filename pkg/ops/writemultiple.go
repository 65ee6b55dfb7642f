package ops

import (
	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/nosqlerr"
	"progressdb/nosqldb/pkg/protocol"
	"progressdb/nosqldb/pkg/wirebinary"
	"progressdb/nosqldb/pkg/wirenson"

	"github.com/cockroachdb/errors"
)

// SubOp is one Put or Delete carried inside a WriteMultiple batch. Exactly
// one of Put/Delete is set.
type SubOp struct {
	Put    *PutRequest
	Delete *DeleteRequest
}

func (s SubOp) opCode() wirebinary.OpCode {
	if s.Put != nil {
		return s.Put.OpCode()
	}
	return s.Delete.OpCode()
}

func (s SubOp) table() string {
	if s.Put != nil {
		return s.Put.Table
	}
	return s.Delete.Table
}

// WriteMultipleRequest batches Put/Delete operations against a single
// table group into one round trip (spec §3 opcode WRITE_MULTIPLE,
// MaxBatchOps/MaxBatchRequestSize limits in §4.3).
type WriteMultipleRequest struct {
	Table       string
	Ops         []SubOp
	AbortOnFail bool
	Options     Options
}

func (r *WriteMultipleRequest) OpCode() wirebinary.OpCode  { return wirebinary.OpWriteMultiple }
func (r *WriteMultipleRequest) TableName() string          { return r.Table }
func (r *WriteMultipleRequest) ShouldRetry() bool          { return true }
func (r *WriteMultipleRequest) SupportsRateLimiting() bool { return true }
func (r *WriteMultipleRequest) DoesReads() bool            { return false }
func (r *WriteMultipleRequest) DoesWrites() bool           { return true }
func (r *WriteMultipleRequest) GetOptions() Options        { return r.Options }
func (r *WriteMultipleRequest) SetOptions(o Options)  { r.Options = o }

func (r *WriteMultipleRequest) Validate() error {
	if r.Table == "" {
		return nosqlerr.Argument("ops: WriteMultiple requires a table name")
	}
	if len(r.Ops) == 0 {
		return nosqlerr.Argument("ops: WriteMultiple requires at least one operation")
	}
	if len(r.Ops) > MaxBatchOps {
		return nosqlerr.Argument("ops: WriteMultiple exceeds the maximum batch operation count")
	}
	for _, op := range r.Ops {
		if op.Put == nil && op.Delete == nil {
			return nosqlerr.Argument("ops: WriteMultiple sub-operation has neither Put nor Delete set")
		}
		if op.table() != r.Table {
			return nosqlerr.Argument("ops: WriteMultiple sub-operation targets a different table")
		}
	}
	return nil
}

// WriteMultipleResult is either a success list (one OpResult per
// sub-operation, in order) or, when AbortOnFail tripped, the index and
// result of the operation that failed (spec §4.3).
type WriteMultipleResult struct {
	Success    bool
	Results    []OpResult
	FailedIndex int
}

// OpResult is one sub-operation's outcome inside a WriteMultiple response.
type OpResult struct {
	Success         bool
	ExistingRow     *fieldvalue.MapValue
	ExistingVersion fieldvalue.Version
	Version         fieldvalue.Version
	Generated       *fieldvalue.MapValue
}

func serializeWriteMultipleV23(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*WriteMultipleRequest)
	if !ok {
		return errors.New("ops: serializeWriteMultipleV23 given wrong request type")
	}
	wirebinary.WriteTimeoutMillis(buf, r.Options.TimeoutOrDefault())
	name := r.Table
	wirebinary.WriteString(buf, &name)
	wirebinary.WriteDurability(buf, durabilityPtr(r.Options))
	wirebinary.WriteInt(buf, int32(len(r.Ops)))
	for _, op := range r.Ops {
		wirebinary.WriteBoolean(buf, r.AbortOnFail)
		buf.WriteUint8(byte(op.opCode()), buf.Len())
		if op.Put != nil {
			p := op.Put
			wirebinary.WriteBoolean(buf, p.Options.ReturnRowOrDefault())
			wirebinary.WriteFieldValue(buf, fieldvalue.Map(p.Value), false)
			wirebinary.WriteBoolean(buf, p.ExactMatch)
			wirebinary.WriteTTL(buf, p.TTL)
			if p.Kind == PutIfVersion {
				wirebinary.WriteBinary(buf, p.MatchVersion)
			}
		} else {
			d := op.Delete
			wirebinary.WriteBoolean(buf, d.Options.ReturnRowOrDefault())
			wirebinary.WriteFieldValue(buf, fieldvalue.Map(d.Key), false)
			if d.MatchVersion != nil {
				wirebinary.WriteBinary(buf, d.MatchVersion)
			}
		}
	}
	return nil
}

func deserializeWriteMultipleV23(r *buffer.Reader, req interface{}) (interface{}, error) {
	code, err := wirebinary.ReadErrorCode(r)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, readServerError(r, code)
	}
	res := &WriteMultipleResult{}
	success, err := wirebinary.ReadBoolean(r)
	if err != nil {
		return nil, err
	}
	res.Success = success
	if !success {
		idx, err := wirebinary.ReadInt(r)
		if err != nil {
			return nil, err
		}
		res.FailedIndex = int(idx)
	}
	n, err := wirebinary.ReadInt(r)
	if err != nil {
		return nil, err
	}
	res.Results = make([]OpResult, 0, n)
	for i := int32(0); i < n; i++ {
		or, err := readOpResultV23(r)
		if err != nil {
			return nil, err
		}
		res.Results = append(res.Results, or)
	}
	return res, nil
}

func readOpResultV23(r *buffer.Reader) (OpResult, error) {
	var or OpResult
	success, err := wirebinary.ReadBoolean(r)
	if err != nil {
		return or, err
	}
	or.Success = success
	hasVersion, err := wirebinary.ReadBoolean(r)
	if err != nil {
		return or, err
	}
	if hasVersion {
		v, err := wirebinary.ReadBinary(r)
		if err != nil {
			return or, err
		}
		if success {
			or.Version = v
		} else {
			or.ExistingVersion = v
		}
	}
	hasRow, err := wirebinary.ReadBoolean(r)
	if err != nil {
		return or, err
	}
	if hasRow {
		row, err := wirebinary.ReadFieldValue(r)
		if err != nil {
			return or, err
		}
		if success {
			or.Generated = row.AsMap()
		} else {
			or.ExistingRow = row.AsMap()
		}
	}
	return or, nil
}

func serializeWriteMultipleV4(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*WriteMultipleRequest)
	if !ok {
		return errors.New("ops: serializeWriteMultipleV4 given wrong request type")
	}
	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.StartMapField(wirenson.KeyHeader)
	w.WriteIntField(wirenson.KeyVersion, int32(wirebinary.V4))
	w.WriteStringField(wirenson.KeyTableName, r.Table)
	w.WriteIntField(wirenson.KeyOpCode, int32(wirebinary.OpWriteMultiple))
	w.WriteLongField(wirenson.KeyTimeout, r.Options.TimeoutOrDefault().Milliseconds())
	w.EndMap()
	w.StartMapField(wirenson.KeyPayload)
	w.WriteBoolField(wirenson.KeyAbortOnFail, r.AbortOnFail)
	w.StartArrayField(wirenson.KeyOperations)
	for _, op := range r.Ops {
		w.StartMap()
		w.WriteIntField(wirenson.KeyOpCode, int32(op.opCode()))
		if op.Put != nil {
			p := op.Put
			w.WriteBoolField(wirenson.KeyReturnRow, p.Options.ReturnRowOrDefault())
			w.Key(wirenson.KeyRow)
			w.WriteValue(fieldvalue.Map(p.Value), false)
			w.WriteBoolField(wirenson.KeyExactMatch, p.ExactMatch)
			if p.TTL != nil {
				w.WriteLongField(wirenson.KeyTTL, p.TTL.Duration)
				w.WriteIntField(wirenson.KeyTTLUnit, int32(p.TTL.Unit))
			}
			if p.Kind == PutIfVersion {
				w.WriteBinaryField(wirenson.KeyMatchVersion, p.MatchVersion)
			}
		} else {
			d := op.Delete
			w.WriteBoolField(wirenson.KeyReturnRow, d.Options.ReturnRowOrDefault())
			w.Key(wirenson.KeyKey)
			w.WriteValue(fieldvalue.Map(d.Key), false)
			if d.MatchVersion != nil {
				w.WriteBinaryField(wirenson.KeyMatchVersion, d.MatchVersion)
			}
		}
		w.EndMap()
	}
	w.EndArray()
	w.EndMap()
	w.EndMap()
	return nil
}

func deserializeWriteMultipleV4(r *buffer.Reader, req interface{}) (interface{}, error) {
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
	res := &WriteMultipleResult{}
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
		case wirenson.KeySuccess:
			res.Success, ierr = rd.ReadBool()
		case wirenson.KeySeqNum:
			var v int32
			v, ierr = rd.ReadInt()
			res.FailedIndex = int(v)
		case wirenson.KeyResults:
			ierr = readOpResultsArrayNSON(rd, res)
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

func readOpResultsArrayNSON(rd *wirenson.Reader, res *WriteMultipleResult) error {
	count, err := rd.EnterArray()
	if err != nil {
		return err
	}
	res.Results = make([]OpResult, 0, count)
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return err
		}
		or, err := readOpResultNSON(rd)
		if err != nil {
			return err
		}
		res.Results = append(res.Results, or)
	}
	return rd.ExitArray()
}

func readOpResultNSON(rd *wirenson.Reader) (OpResult, error) {
	var or OpResult
	count, err := rd.EnterMap()
	if err != nil {
		return or, err
	}
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return or, err
		}
		var ierr error
		switch rd.Key() {
		case wirenson.KeySuccess:
			or.Success, ierr = rd.ReadBool()
		case wirenson.KeyRowVersion:
			or.Version, ierr = rd.ReadBinary()
		case wirenson.KeyRow:
			var v fieldvalue.Value
			v, ierr = rd.ReadValue()
			if ierr == nil {
				or.ExistingRow = v.AsMap()
			}
		case wirenson.KeyGenerated:
			var v fieldvalue.Value
			v, ierr = rd.ReadValue()
			if ierr == nil {
				or.Generated = v.AsMap()
			}
		default:
			ierr = rd.SkipValue()
		}
		if ierr != nil {
			return or, ierr
		}
	}
	return or, rd.ExitMap()
}

func init() {
	protocol.Register(wirebinary.V2, wirebinary.OpWriteMultiple, serializeWriteMultipleV23, deserializeWriteMultipleV23)
	protocol.Register(wirebinary.V3, wirebinary.OpWriteMultiple, serializeWriteMultipleV23, deserializeWriteMultipleV23)
	protocol.Register(wirebinary.V4, wirebinary.OpWriteMultiple, serializeWriteMultipleV4, deserializeWriteMultipleV4)
}
