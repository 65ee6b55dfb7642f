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

// TableLimits is the provisioned-throughput triple a CREATE/ALTER TABLE
// DDL statement (or a direct limits update) may set.
type TableLimits struct {
	ReadUnits    int32
	WriteUnits   int32
	StorageGB    int32
	CapacityMode wirebinary.CapacityMode
}

// TableRequest issues a DDL statement (CREATE/ALTER/DROP TABLE, index
// DDL) or a direct table-limits update (spec §4.7 "any successful ...
// TableRequest ... response that passes through the pipeline"). Every
// concrete DDL opcode (CreateTable, DropTable, AlterTable, CreateIndex,
// DropIndex) shares this envelope; only the statement text differs.
type TableRequest struct {
	Statement string
	Limits    *TableLimits
	Options   Options
}

func (r *TableRequest) OpCode() wirebinary.OpCode  { return wirebinary.OpTableRequest }
func (r *TableRequest) TableName() string          { return "" }
func (r *TableRequest) ShouldRetry() bool          { return false } // DDL never retried (spec §4.8)
func (r *TableRequest) SupportsRateLimiting() bool { return false }
func (r *TableRequest) DoesReads() bool            { return false }
func (r *TableRequest) DoesWrites() bool           { return false }
func (r *TableRequest) GetOptions() Options        { return r.Options }
func (r *TableRequest) SetOptions(o Options)       { r.Options = o }

func (r *TableRequest) Validate() error {
	if r.Statement == "" && r.Limits == nil {
		return nosqlerr.Argument("ops: TableRequest needs a statement or limits update")
	}
	return nil
}

// TableResult is the DDL/status response shared by TableRequest and
// GetTable (spec §4.7's "state" and "readUnits/writeUnits" fields).
type TableResult struct {
	TableName string
	State     wirebinary.TableState
	Limits    TableLimits
	SchemaDDL string
	Consumed  wirebinary.ConsumedCapacity
}

func serializeTableRequestV23(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*TableRequest)
	if !ok {
		return errors.New("ops: serializeTableRequestV23 given wrong request type")
	}
	wirebinary.WriteTimeoutMillis(buf, r.Options.TimeoutOrDefault())
	s := r.Statement
	wirebinary.WriteString(buf, &s)
	hasLimits := r.Limits != nil
	wirebinary.WriteBoolean(buf, hasLimits)
	if hasLimits {
		wirebinary.WriteLong(buf, int64(r.Limits.ReadUnits))
		wirebinary.WriteLong(buf, int64(r.Limits.WriteUnits))
		wirebinary.WriteLong(buf, int64(r.Limits.StorageGB))
		buf.WriteUint8(byte(r.Limits.CapacityMode), buf.Len())
	}
	return nil
}

func deserializeTableRequestV23(r *buffer.Reader, req interface{}) (interface{}, error) {
	code, err := wirebinary.ReadErrorCode(r)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, readServerError(r, code)
	}
	name, err := wirebinary.ReadString(r)
	if err != nil {
		return nil, err
	}
	stateByte, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	ru, err := wirebinary.ReadLong(r)
	if err != nil {
		return nil, err
	}
	wu, err := wirebinary.ReadLong(r)
	if err != nil {
		return nil, err
	}
	storage, err := wirebinary.ReadLong(r)
	if err != nil {
		return nil, err
	}
	ddl, err := wirebinary.ReadString(r)
	if err != nil {
		return nil, err
	}
	res := &TableResult{
		State: wirebinary.TableState(stateByte),
		Limits: TableLimits{
			ReadUnits:  int32(ru),
			WriteUnits: int32(wu),
			StorageGB:  int32(storage),
		},
	}
	if name != nil {
		res.TableName = *name
	}
	if ddl != nil {
		res.SchemaDDL = *ddl
	}
	return res, nil
}

func serializeTableRequestV4(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*TableRequest)
	if !ok {
		return errors.New("ops: serializeTableRequestV4 given wrong request type")
	}
	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.StartMapField(wirenson.KeyHeader)
	w.WriteIntField(wirenson.KeyVersion, int32(wirebinary.V4))
	w.WriteIntField(wirenson.KeyOpCode, int32(wirebinary.OpTableRequest))
	w.WriteLongField(wirenson.KeyTimeout, r.Options.TimeoutOrDefault().Milliseconds())
	w.EndMap()
	w.StartMapField(wirenson.KeyPayload)
	w.WriteStringField(wirenson.KeyStatement, r.Statement)
	if r.Limits != nil {
		w.StartMapField(wirenson.KeyLimits)
		w.WriteIntField(wirenson.KeyReadLimit, r.Limits.ReadUnits)
		w.WriteIntField(wirenson.KeyWriteLimit, r.Limits.WriteUnits)
		w.WriteIntField(wirenson.KeyStorageLimit, r.Limits.StorageGB)
		w.WriteIntField(wirenson.KeyCapacityMode, int32(r.Limits.CapacityMode))
		w.EndMap()
	}
	w.EndMap()
	w.EndMap()
	return nil
}

func deserializeTableRequestV4(r *buffer.Reader, req interface{}) (interface{}, error) {
	return readTableResultV4(r)
}

// readTableResultV4 is shared by TableRequest and GetTable, whose V4
// response envelopes carry the identical field set.
func readTableResultV4(r *buffer.Reader) (interface{}, error) {
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
	res := &TableResult{}
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
		case wirenson.KeyTableName:
			res.TableName, ierr = rd.ReadString()
		case wirenson.KeyTableState:
			var v int32
			v, ierr = rd.ReadInt()
			res.State = wirebinary.TableState(v)
		case wirenson.KeyLimits:
			ierr = readLimitsNSON(rd, &res.Limits)
		case wirenson.KeySystemStatement:
			res.SchemaDDL, ierr = rd.ReadString()
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

func readLimitsNSON(rd *wirenson.Reader, out *TableLimits) error {
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
			out.ReadUnits, ierr = rd.ReadInt()
		case wirenson.KeyWriteLimit:
			out.WriteUnits, ierr = rd.ReadInt()
		case wirenson.KeyStorageLimit:
			out.StorageGB, ierr = rd.ReadInt()
		case wirenson.KeyCapacityMode:
			var v int32
			v, ierr = rd.ReadInt()
			out.CapacityMode = wirebinary.CapacityMode(v)
		default:
			ierr = rd.SkipValue()
		}
		if ierr != nil {
			return ierr
		}
	}
	return rd.ExitMap()
}

// GetTableRequest polls a table's current state and limits (spec §4.7
// "initiate a background GetTable").
type GetTableRequest struct {
	Table       string
	OperationID string // set when polling the result of an async DDL
	Options     Options
}

func (r *GetTableRequest) OpCode() wirebinary.OpCode  { return wirebinary.OpGetTable }
func (r *GetTableRequest) TableName() string          { return r.Table }
func (r *GetTableRequest) ShouldRetry() bool          { return true }
func (r *GetTableRequest) SupportsRateLimiting() bool { return false }
func (r *GetTableRequest) DoesReads() bool            { return false }
func (r *GetTableRequest) DoesWrites() bool           { return false }
func (r *GetTableRequest) GetOptions() Options        { return r.Options }
func (r *GetTableRequest) SetOptions(o Options)       { r.Options = o }

func (r *GetTableRequest) Validate() error {
	if r.Table == "" {
		return nosqlerr.Argument("ops: GetTable requires a table name")
	}
	return nil
}

func serializeGetTableV23(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*GetTableRequest)
	if !ok {
		return errors.New("ops: serializeGetTableV23 given wrong request type")
	}
	wirebinary.WriteTimeoutMillis(buf, r.Options.TimeoutOrDefault())
	name := r.Table
	wirebinary.WriteString(buf, &name)
	opID := r.OperationID
	wirebinary.WriteString(buf, &opID)
	return nil
}

func serializeGetTableV4(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*GetTableRequest)
	if !ok {
		return errors.New("ops: serializeGetTableV4 given wrong request type")
	}
	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.StartMapField(wirenson.KeyHeader)
	w.WriteIntField(wirenson.KeyVersion, int32(wirebinary.V4))
	w.WriteStringField(wirenson.KeyTableName, r.Table)
	w.WriteIntField(wirenson.KeyOpCode, int32(wirebinary.OpGetTable))
	w.WriteLongField(wirenson.KeyTimeout, r.Options.TimeoutOrDefault().Milliseconds())
	w.EndMap()
	w.StartMapField(wirenson.KeyPayload)
	w.WriteStringField(wirenson.KeyOperationID, r.OperationID)
	w.EndMap()
	w.EndMap()
	return nil
}

func deserializeGetTableV4(r *buffer.Reader, req interface{}) (interface{}, error) {
	return readTableResultV4(r)
}

func init() {
	protocol.Register(wirebinary.V2, wirebinary.OpTableRequest, serializeTableRequestV23, deserializeTableRequestV23)
	protocol.Register(wirebinary.V3, wirebinary.OpTableRequest, serializeTableRequestV23, deserializeTableRequestV23)
	protocol.Register(wirebinary.V4, wirebinary.OpTableRequest, serializeTableRequestV4, deserializeTableRequestV4)

	protocol.Register(wirebinary.V2, wirebinary.OpGetTable, serializeGetTableV23, deserializeTableRequestV23)
	protocol.Register(wirebinary.V3, wirebinary.OpGetTable, serializeGetTableV23, deserializeTableRequestV23)
	protocol.Register(wirebinary.V4, wirebinary.OpGetTable, serializeGetTableV4, deserializeGetTableV4)
}
