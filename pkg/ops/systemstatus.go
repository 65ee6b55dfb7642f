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

// SystemRequest issues a tenant-wide administrative statement not bound to
// a single table (spec §3 opcode SYSTEM_REQUEST — namespace/user/role DDL).
// It runs asynchronously server-side; the caller polls SystemStatusRequest
// with the returned OperationID.
type SystemRequest struct {
	Statement string
	Options   Options
}

func (r *SystemRequest) OpCode() wirebinary.OpCode  { return wirebinary.OpSystemRequest }
func (r *SystemRequest) TableName() string          { return "" }
func (r *SystemRequest) ShouldRetry() bool          { return false }
func (r *SystemRequest) SupportsRateLimiting() bool { return false }
func (r *SystemRequest) DoesReads() bool            { return false }
func (r *SystemRequest) DoesWrites() bool           { return false }
func (r *SystemRequest) GetOptions() Options        { return r.Options }
func (r *SystemRequest) SetOptions(o Options)       { r.Options = o }

func (r *SystemRequest) Validate() error {
	if r.Statement == "" {
		return nosqlerr.Argument("ops: SystemRequest requires a statement")
	}
	return nil
}

// SystemStatusRequest polls the outcome of a previously issued SystemRequest
// (spec §3 opcode SYSTEM_STATUS_REQUEST).
type SystemStatusRequest struct {
	OperationID string
	Statement   string
	Options     Options
}

func (r *SystemStatusRequest) OpCode() wirebinary.OpCode  { return wirebinary.OpSystemStatusRequest }
func (r *SystemStatusRequest) TableName() string          { return "" }
func (r *SystemStatusRequest) ShouldRetry() bool          { return true }
func (r *SystemStatusRequest) SupportsRateLimiting() bool { return false }
func (r *SystemStatusRequest) DoesReads() bool            { return false }
func (r *SystemStatusRequest) DoesWrites() bool           { return false }
func (r *SystemStatusRequest) GetOptions() Options        { return r.Options }
func (r *SystemStatusRequest) SetOptions(o Options)       { r.Options = o }

func (r *SystemStatusRequest) Validate() error {
	if r.OperationID == "" {
		return nosqlerr.Argument("ops: SystemStatusRequest requires an operation id")
	}
	return nil
}

// SystemStatusResult reports the async administrative operation's current
// lifecycle state (spec §3's TableState enum is reused: system operations
// only ever occupy the CREATING/ACTIVE/DROPPED points in that state space).
type SystemStatusResult struct {
	OperationID string
	Statement   string
	State       wirebinary.TableState
	ResultText  string
}

func serializeSystemRequestV23(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*SystemRequest)
	if !ok {
		return errors.New("ops: serializeSystemRequestV23 given wrong request type")
	}
	wirebinary.WriteTimeoutMillis(buf, r.Options.TimeoutOrDefault())
	s := r.Statement
	wirebinary.WriteString(buf, &s)
	return nil
}

func serializeSystemStatusV23(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*SystemStatusRequest)
	if !ok {
		return errors.New("ops: serializeSystemStatusV23 given wrong request type")
	}
	wirebinary.WriteTimeoutMillis(buf, r.Options.TimeoutOrDefault())
	opID := r.OperationID
	wirebinary.WriteString(buf, &opID)
	stmt := r.Statement
	wirebinary.WriteString(buf, &stmt)
	return nil
}

func deserializeSystemStatusV23(r *buffer.Reader, req interface{}) (interface{}, error) {
	code, err := wirebinary.ReadErrorCode(r)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, readServerError(r, code)
	}
	opID, err := wirebinary.ReadString(r)
	if err != nil {
		return nil, err
	}
	stmt, err := wirebinary.ReadString(r)
	if err != nil {
		return nil, err
	}
	stateByte, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	result, err := wirebinary.ReadString(r)
	if err != nil {
		return nil, err
	}
	res := &SystemStatusResult{State: wirebinary.TableState(stateByte)}
	if opID != nil {
		res.OperationID = *opID
	}
	if stmt != nil {
		res.Statement = *stmt
	}
	if result != nil {
		res.ResultText = *result
	}
	return res, nil
}

func serializeSystemRequestV4(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*SystemRequest)
	if !ok {
		return errors.New("ops: serializeSystemRequestV4 given wrong request type")
	}
	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.StartMapField(wirenson.KeyHeader)
	w.WriteIntField(wirenson.KeyVersion, int32(wirebinary.V4))
	w.WriteIntField(wirenson.KeyOpCode, int32(wirebinary.OpSystemRequest))
	w.WriteLongField(wirenson.KeyTimeout, r.Options.TimeoutOrDefault().Milliseconds())
	w.EndMap()
	w.StartMapField(wirenson.KeyPayload)
	w.WriteStringField(wirenson.KeyStatement, r.Statement)
	w.EndMap()
	w.EndMap()
	return nil
}

func serializeSystemStatusV4(buf *buffer.ResizableBuffer, req interface{}) error {
	r, ok := req.(*SystemStatusRequest)
	if !ok {
		return errors.New("ops: serializeSystemStatusV4 given wrong request type")
	}
	w := wirenson.NewWriter(buf)
	w.StartMap()
	w.StartMapField(wirenson.KeyHeader)
	w.WriteIntField(wirenson.KeyVersion, int32(wirebinary.V4))
	w.WriteIntField(wirenson.KeyOpCode, int32(wirebinary.OpSystemStatusRequest))
	w.WriteLongField(wirenson.KeyTimeout, r.Options.TimeoutOrDefault().Milliseconds())
	w.EndMap()
	w.StartMapField(wirenson.KeyPayload)
	w.WriteStringField(wirenson.KeyOperationID, r.OperationID)
	w.WriteStringField(wirenson.KeyStatement, r.Statement)
	w.EndMap()
	w.EndMap()
	return nil
}

func deserializeSystemStatusV4(r *buffer.Reader, req interface{}) (interface{}, error) {
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
	res := &SystemStatusResult{}
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
		case wirenson.KeyOperationID:
			res.OperationID, ierr = rd.ReadString()
		case wirenson.KeyStatement:
			res.Statement, ierr = rd.ReadString()
		case wirenson.KeyStatus:
			var v int32
			v, ierr = rd.ReadInt()
			res.State = wirebinary.TableState(v)
		case wirenson.KeyTableState:
			var v int32
			v, ierr = rd.ReadInt()
			res.State = wirebinary.TableState(v)
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
	protocol.Register(wirebinary.V2, wirebinary.OpSystemRequest, serializeSystemRequestV23, deserializeSystemStatusV23)
	protocol.Register(wirebinary.V3, wirebinary.OpSystemRequest, serializeSystemRequestV23, deserializeSystemStatusV23)
	protocol.Register(wirebinary.V4, wirebinary.OpSystemRequest, serializeSystemRequestV4, deserializeSystemStatusV4)

	protocol.Register(wirebinary.V2, wirebinary.OpSystemStatusRequest, serializeSystemStatusV23, deserializeSystemStatusV23)
	protocol.Register(wirebinary.V3, wirebinary.OpSystemStatusRequest, serializeSystemStatusV23, deserializeSystemStatusV23)
	protocol.Register(wirebinary.V4, wirebinary.OpSystemStatusRequest, serializeSystemStatusV4, deserializeSystemStatusV4)
}
