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

// DeleteRequest removes a row by primary key, optionally conditioned on a
// version match (spec §3, opcodes DELETE/DELETE_IF_VERSION).
type DeleteRequest struct {
	Table        string
	Key          *fieldvalue.MapValue
	MatchVersion fieldvalue.Version // non-nil selects DELETE_IF_VERSION
	Options      Options
}

func (r *DeleteRequest) OpCode() wirebinary.OpCode {
	if r.MatchVersion != nil {
		return wirebinary.OpDeleteIfVersion
	}
	return wirebinary.OpDelete
}
func (r *DeleteRequest) TableName() string          { return r.Table }
func (r *DeleteRequest) ShouldRetry() bool          { return true }
func (r *DeleteRequest) SupportsRateLimiting() bool { return true }
func (r *DeleteRequest) DoesReads() bool            { return false }
func (r *DeleteRequest) DoesWrites() bool           { return true }
func (r *DeleteRequest) GetOptions() Options        { return r.Options }
func (r *DeleteRequest) SetOptions(o Options)  { r.Options = o }

func (r *DeleteRequest) Validate() error {
	if r.Table == "" {
		return nosqlerr.Argument("ops: Delete requires a table name")
	}
	if r.Key == nil || r.Key.Len() == 0 {
		return nosqlerr.Argument("ops: Delete requires a non-empty key")
	}
	return nil
}

// DeleteResult reports whether a row existed and was removed.
type DeleteResult struct {
	Success         bool
	ExistingRow     *fieldvalue.MapValue
	ExistingVersion fieldvalue.Version
	Consumed        wirebinary.ConsumedCapacity
}

func serializeDeleteV23(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*DeleteRequest)
	if !ok {
		return errors.New("ops: serializeDeleteV23 given wrong request type")
	}
	wirebinary.WriteTimeoutMillis(buf, r.Options.TimeoutOrDefault())
	name := r.Table
	wirebinary.WriteString(buf, &name)
	wirebinary.WriteBoolean(buf, r.Options.ReturnRowOrDefault())
	wirebinary.WriteDurability(buf, durabilityPtr(r.Options))
	wirebinary.WriteFieldValue(buf, fieldvalue.Map(r.Key), false)
	if r.MatchVersion != nil {
		wirebinary.WriteBinary(buf, r.MatchVersion)
	}
	return nil
}

func deserializeDeleteV23(r *buffer.Reader, req interface{}) (interface{}, error) {
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
	res := &DeleteResult{Consumed: consumed}
	success, err := wirebinary.ReadBoolean(r)
	if err != nil {
		return nil, err
	}
	res.Success = success
	hasRow, err := wirebinary.ReadBoolean(r)
	if err != nil {
		return nil, err
	}
	if hasRow {
		row, err := wirebinary.ReadFieldValue(r)
		if err != nil {
			return nil, err
		}
		res.ExistingRow = row.AsMap()
		version, err := wirebinary.ReadBinary(r)
		if err != nil {
			return nil, err
		}
		res.ExistingVersion = version
	}
	return res, nil
}

func serializeDeleteV4(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*DeleteRequest)
	if !ok {
		return errors.New("ops: serializeDeleteV4 given wrong request type")
	}
	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.StartMapField(wirenson.KeyHeader)
	w.WriteIntField(wirenson.KeyVersion, int32(wirebinary.V4))
	w.WriteStringField(wirenson.KeyTableName, r.Table)
	w.WriteIntField(wirenson.KeyOpCode, int32(r.OpCode()))
	w.WriteLongField(wirenson.KeyTimeout, r.Options.TimeoutOrDefault().Milliseconds())
	w.EndMap()
	w.StartMapField(wirenson.KeyPayload)
	w.WriteBoolField(wirenson.KeyReturnRow, r.Options.ReturnRowOrDefault())
	w.Key(wirenson.KeyKey)
	w.WriteValue(fieldvalue.Map(r.Key), false)
	if r.MatchVersion != nil {
		w.WriteBinaryField(wirenson.KeyMatchVersion, r.MatchVersion)
	}
	w.EndMap()
	w.EndMap()
	return nil
}

func deserializeDeleteV4(r *buffer.Reader, req interface{}) (interface{}, error) {
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
	res := &DeleteResult{}
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
		case wirenson.KeySuccess:
			res.Success, ierr = rd.ReadBool()
		case wirenson.KeyRow:
			var v fieldvalue.Value
			v, ierr = rd.ReadValue()
			if ierr == nil {
				res.ExistingRow = v.AsMap()
			}
		case wirenson.KeyRowVersion:
			res.ExistingVersion, ierr = rd.ReadBinary()
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

func init() {
	protocol.Register(wirebinary.V2, wirebinary.OpDelete, serializeDeleteV23, deserializeDeleteV23)
	protocol.Register(wirebinary.V3, wirebinary.OpDelete, serializeDeleteV23, deserializeDeleteV23)
	protocol.Register(wirebinary.V2, wirebinary.OpDeleteIfVersion, serializeDeleteV23, deserializeDeleteV23)
	protocol.Register(wirebinary.V3, wirebinary.OpDeleteIfVersion, serializeDeleteV23, deserializeDeleteV23)
	protocol.Register(wirebinary.V4, wirebinary.OpDelete, serializeDeleteV4, deserializeDeleteV4)
	protocol.Register(wirebinary.V4, wirebinary.OpDeleteIfVersion, serializeDeleteV4, deserializeDeleteV4)
}
