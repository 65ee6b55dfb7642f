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

// PutKind selects the conditional-write variant (spec §3 opcode table:
// PUT, PUT_IF_ABSENT, PUT_IF_PRESENT, PUT_IF_VERSION).
type PutKind int

const (
	PutUnconditional PutKind = iota
	PutIfAbsent
	PutIfPresent
	PutIfVersion
)

func (k PutKind) opcode() wirebinary.OpCode {
	switch k {
	case PutIfAbsent:
		return wirebinary.OpPutIfAbsent
	case PutIfPresent:
		return wirebinary.OpPutIfPresent
	case PutIfVersion:
		return wirebinary.OpPutIfVersion
	default:
		return wirebinary.OpPut
	}
}

// PutRequest writes a row (spec §3, opcodes PUT*).
type PutRequest struct {
	Table         string
	Value         *fieldvalue.MapValue
	Kind          PutKind
	MatchVersion  fieldvalue.Version // only for PutIfVersion
	TTL           *wirebinary.TTL
	ExactMatch    bool
	Options       Options
}

func (r *PutRequest) OpCode() wirebinary.OpCode  { return r.Kind.opcode() }
func (r *PutRequest) TableName() string          { return r.Table }
func (r *PutRequest) ShouldRetry() bool          { return true }
func (r *PutRequest) SupportsRateLimiting() bool { return true }
func (r *PutRequest) DoesReads() bool            { return false }
func (r *PutRequest) DoesWrites() bool           { return true }
func (r *PutRequest) GetOptions() Options        { return r.Options }
func (r *PutRequest) SetOptions(o Options)  { r.Options = o }

func (r *PutRequest) Validate() error {
	if r.Table == "" {
		return nosqlerr.Argument("ops: Put requires a table name")
	}
	if r.Value == nil || r.Value.Len() == 0 {
		return nosqlerr.Argument("ops: Put requires a non-empty row")
	}
	if r.Kind == PutIfVersion && len(r.MatchVersion) == 0 {
		return nosqlerr.Argument("ops: PutIfVersion requires MatchVersion")
	}
	return nil
}

// PutResult reports whether the write succeeded and, for conditional
// writes that lost the race, the existing row (spec §4.3 "Responses that
// carry a row include a boolean flag, then the row").
type PutResult struct {
	Success          bool
	Generated        *fieldvalue.MapValue // identity-column values the server generated
	ExistingRow      *fieldvalue.MapValue
	ExistingVersion  fieldvalue.Version
	Version          fieldvalue.Version
	Consumed         wirebinary.ConsumedCapacity
}

func serializePutV23(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*PutRequest)
	if !ok {
		return errors.New("ops: serializePutV23 given wrong request type")
	}
	wirebinary.WriteTimeoutMillis(buf, r.Options.TimeoutOrDefault())
	name := r.Table
	wirebinary.WriteString(buf, &name)
	wirebinary.WriteBoolean(buf, r.Options.ReturnRowOrDefault())
	wirebinary.WriteDurability(buf, durabilityPtr(r.Options))
	wirebinary.WriteFieldValue(buf, fieldvalue.Map(r.Value), false)
	wirebinary.WriteBoolean(buf, r.ExactMatch)
	wirebinary.WriteTTL(buf, r.TTL)
	if r.Kind == PutIfVersion {
		wirebinary.WriteBinary(buf, r.MatchVersion)
	}
	return nil
}

func durabilityPtr(o Options) *wirebinary.Durability {
	if o.Durability == nil {
		return nil
	}
	return o.Durability
}

func deserializePutV23(r *buffer.Reader, req interface{}) (interface{}, error) {
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
	res := &PutResult{Consumed: consumed}
	success, err := wirebinary.ReadBoolean(r)
	if err != nil {
		return nil, err
	}
	res.Success = success
	version, err := wirebinary.ReadBinary(r)
	if err != nil {
		return nil, err
	}
	if success {
		res.Version = version
	} else {
		res.ExistingVersion = version
	}
	hasRow, err := wirebinary.ReadBoolean(r)
	if err != nil {
		return nil, err
	}
	if hasRow {
		row, err := wirebinary.ReadFieldValue(r)
		if err != nil {
			return nil, err
		}
		if success {
			res.Generated = row.AsMap()
		} else {
			res.ExistingRow = row.AsMap()
		}
	}
	return res, nil
}

func serializePutV4(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*PutRequest)
	if !ok {
		return errors.New("ops: serializePutV4 given wrong request type")
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
	w.WriteBoolField(wirenson.KeyExactMatch, r.ExactMatch)
	w.Key(wirenson.KeyRow)
	w.WriteValue(fieldvalue.Map(r.Value), false)
	if r.TTL != nil {
		w.WriteLongField(wirenson.KeyTTL, r.TTL.Duration)
		w.WriteIntField(wirenson.KeyTTLUnit, int32(r.TTL.Unit))
	}
	if r.Kind == PutIfVersion {
		w.WriteBinaryField(wirenson.KeyMatchVersion, r.MatchVersion)
	}
	w.EndMap()
	w.EndMap()
	return nil
}

func deserializePutV4(r *buffer.Reader, req interface{}) (interface{}, error) {
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
	res := &PutResult{}
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
		case wirenson.KeyRowVersion:
			res.Version, ierr = rd.ReadBinary()
		case wirenson.KeyRow:
			var v fieldvalue.Value
			v, ierr = rd.ReadValue()
			if ierr == nil {
				res.ExistingRow = v.AsMap()
			}
		case wirenson.KeyGenerated:
			var v fieldvalue.Value
			v, ierr = rd.ReadValue()
			if ierr == nil {
				res.Generated = v.AsMap()
			}
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
	for _, v := range []wirebinary.SerialVersion{wirebinary.V2, wirebinary.V3} {
		protocol.Register(v, wirebinary.OpPut, serializePutV23, deserializePutV23)
		protocol.Register(v, wirebinary.OpPutIfAbsent, serializePutV23, deserializePutV23)
		protocol.Register(v, wirebinary.OpPutIfPresent, serializePutV23, deserializePutV23)
		protocol.Register(v, wirebinary.OpPutIfVersion, serializePutV23, deserializePutV23)
	}
	protocol.Register(wirebinary.V4, wirebinary.OpPut, serializePutV4, deserializePutV4)
	protocol.Register(wirebinary.V4, wirebinary.OpPutIfAbsent, serializePutV4, deserializePutV4)
	protocol.Register(wirebinary.V4, wirebinary.OpPutIfPresent, serializePutV4, deserializePutV4)
	protocol.Register(wirebinary.V4, wirebinary.OpPutIfVersion, serializePutV4, deserializePutV4)
}
