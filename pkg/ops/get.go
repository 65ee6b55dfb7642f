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

// GetRequest fetches a single row by primary key (spec §3, opcode GET).
type GetRequest struct {
	Table   string
	Key     *fieldvalue.MapValue
	Options Options
}

func (r *GetRequest) OpCode() wirebinary.OpCode  { return wirebinary.OpGet }
func (r *GetRequest) TableName() string          { return r.Table }
func (r *GetRequest) ShouldRetry() bool          { return true }
func (r *GetRequest) SupportsRateLimiting() bool { return true }
func (r *GetRequest) DoesReads() bool            { return true }
func (r *GetRequest) DoesWrites() bool           { return false }
func (r *GetRequest) GetOptions() Options        { return r.Options }
func (r *GetRequest) SetOptions(o Options)  { r.Options = o }

func (r *GetRequest) Validate() error {
	if r.Table == "" {
		return nosqlerr.Argument("ops: Get requires a table name")
	}
	if r.Key == nil || r.Key.Len() == 0 {
		return nosqlerr.Argument("ops: Get requires a non-empty key")
	}
	return nil
}

// GetResult is the row (or absence) returned by a Get.
type GetResult struct {
	Row              *fieldvalue.MapValue
	Existed          bool
	ExpirationMillis int64
	Version          fieldvalue.Version
	ModTimeMillis    int64
	Consumed         wirebinary.ConsumedCapacity
}

func serializeGetV23(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*GetRequest)
	if !ok {
		return errors.New("ops: serializeGetV23 given wrong request type")
	}
	wirebinary.WriteTimeoutMillis(buf, r.Options.TimeoutOrDefault())
	name := r.Table
	wirebinary.WriteString(buf, &name)
	buf.WriteUint8(byte(r.Options.ConsistencyOrDefault()), buf.Len())
	wirebinary.WriteFieldValue(buf, fieldvalue.Map(r.Key), false)
	return nil
}

func deserializeGetV23(r *buffer.Reader, req interface{}) (interface{}, error) {
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
	res := &GetResult{Consumed: consumed}
	existed, err := wirebinary.ReadBoolean(r)
	if err != nil {
		return nil, err
	}
	res.Existed = existed
	if !existed {
		return res, nil
	}
	row, err := wirebinary.ReadFieldValue(r)
	if err != nil {
		return nil, err
	}
	res.Row = row.AsMap()
	expMillis, err := wirebinary.ReadLong(r)
	if err != nil {
		return nil, err
	}
	res.ExpirationMillis = expMillis
	version, err := wirebinary.ReadBinary(r)
	if err != nil {
		return nil, err
	}
	res.Version = version
	return res, nil
}

// readServerError builds the typed error for a non-zero response code
// (spec §4.3: "non-zero code is followed by an error message string").
func readServerError(r *buffer.Reader, code int32) error {
	msg, err := wirebinary.ReadString(r)
	if err != nil {
		return errors.Wrap(err, "ops: read error message")
	}
	text := ""
	if msg != nil {
		text = *msg
	}
	c := nosqlerr.Code(code)
	if c == nosqlerr.CodeUnsupportedProtocol {
		return nosqlerr.UnsupportedProtocol(text)
	}
	return nosqlerr.Server(c, text)
}

func serializeGetV4(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*GetRequest)
	if !ok {
		return errors.New("ops: serializeGetV4 given wrong request type")
	}
	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.StartMapField(wirenson.KeyHeader)
	w.WriteIntField(wirenson.KeyVersion, int32(wirebinary.V4))
	w.WriteStringField(wirenson.KeyTableName, r.Table)
	w.WriteIntField(wirenson.KeyOpCode, int32(wirebinary.OpGet))
	w.WriteLongField(wirenson.KeyTimeout, r.Options.TimeoutOrDefault().Milliseconds())
	w.EndMap()
	w.StartMapField(wirenson.KeyPayload)
	w.WriteIntField(wirenson.KeyConsistency, int32(r.Options.ConsistencyOrDefault()))
	w.Key(wirenson.KeyKey)
	w.WriteValue(fieldvalue.Map(r.Key), false)
	w.EndMap()
	w.EndMap()
	return nil
}

func deserializeGetV4(r *buffer.Reader, req interface{}) (interface{}, error) {
	rd := wirenson.NewReader(r)
	t, err := rd.Next()
	if err != nil {
		return nil, err
	}
	if t != fieldvalue.TypeMap {
		return nil, errors.New("ops: V4 response envelope is not a MAP")
	}
	count, err := rd.EnterMap()
	if err != nil {
		return nil, err
	}
	res := &GetResult{}
	var errCode int32
	var errMsg string
	for i := int32(0); i < count; i++ {
		if _, err := rd.Next(); err != nil {
			return nil, err
		}
		switch rd.Key() {
		case wirenson.KeyErrorCode:
			errCode, err = rd.ReadInt()
		case wirenson.KeyException:
			errMsg, err = rd.ReadString()
		case wirenson.KeyConsumed:
			err = readConsumedNSON(rd, &res.Consumed)
		case wirenson.KeyExisted:
			res.Existed, err = rd.ReadBool()
		case wirenson.KeyRow:
			var v fieldvalue.Value
			v, err = rd.ReadValue()
			if err == nil {
				res.Row = v.AsMap()
			}
		case wirenson.KeyTTL:
			res.ExpirationMillis, err = readLongScalar(rd)
		case wirenson.KeyRowVersion:
			res.Version, err = rd.ReadBinary()
		default:
			err = rd.SkipValue()
		}
		if err != nil {
			return nil, err
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

// readLongScalar reads a LONG value already announced by Next, returning
// its int64 projection (losing arbitrary precision, acceptable for
// expiration/mod-time fields).
func readLongScalar(rd *wirenson.Reader) (int64, error) {
	v, err := rd.ReadLong()
	if err != nil {
		return 0, err
	}
	return v.AsLong(), nil
}

func readConsumedNSON(rd *wirenson.Reader, out *wirebinary.ConsumedCapacity) error {
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
		case wirenson.KeyReadUnits:
			var v int32
			v, ierr = rd.ReadInt()
			out.ReadUnits = int(v)
		case wirenson.KeyReadKB:
			var v int32
			v, ierr = rd.ReadInt()
			out.ReadKB = int(v)
		case wirenson.KeyWriteKB:
			var v int32
			v, ierr = rd.ReadInt()
			out.WriteKB = int(v)
		default:
			ierr = rd.SkipValue()
		}
		if ierr != nil {
			return ierr
		}
	}
	return rd.ExitMap()
}

func init() {
	protocol.Register(wirebinary.V2, wirebinary.OpGet, serializeGetV23, deserializeGetV23)
	protocol.Register(wirebinary.V3, wirebinary.OpGet, serializeGetV23, deserializeGetV23)
	protocol.Register(wirebinary.V4, wirebinary.OpGet, serializeGetV4, deserializeGetV4)
}
