package wirenson

// Envelope field keys for the V4 NSON wire format (spec §4.4, §4.3 "Wire
// format V4"). The upstream protocol fixes these as short two-to-three
// letter strings; this pack's retrieval set did not carry that literal
// table, so the names below are this driver's own frozen choice (see
// DESIGN.md) and are stable across this codebase the same way the real
// table would be: every writer/reader goes through these constants, never
// a literal.
const (
	KeyHeader   = "header"
	KeyPayload  = "payload"
	KeyVersion  = "version"
	KeyTableName = "table_name"
	KeyOpCode   = "op_code"
	KeyTimeout  = "timeout"
	KeyTopoSeq  = "topo_seq"

	KeyErrorCode    = "error_code"
	KeyException    = "exception"
	KeyConsumed     = "consumed"
	KeyTopologyInfo = "topology_info"

	KeyReadUnits = "read_units"
	KeyReadKB    = "read_kb"
	KeyWriteKB   = "write_kb"
	KeySeqNum    = "seq_num"
	KeyShardIDs  = "shard_ids"

	KeyKey          = "key"
	KeyValue        = "value"
	KeyRow          = "row"
	KeyRowVersion   = "row_version"
	KeyReturnRow    = "return_row"
	KeyTTL          = "ttl"
	KeyTTLUnit      = "ttl_unit"
	KeyConsistency  = "consistency"
	KeyDurability   = "durability"
	KeyMatchVersion = "match_version"
	KeyExactMatch   = "exact_match"
	KeyExisted      = "existed"
	KeyGenerated    = "generated"
	KeySuccess      = "success"

	KeyStatement      = "statement"
	KeyPreparedQuery  = "prepared_query"
	KeyBindVariables  = "bind_variables"
	KeyContinuationKey = "continuation_key"
	KeyIsSortPhase    = "is_sort_phase"
	KeyMaxReadKB      = "max_read_kb"
	KeyMaxWriteKB     = "max_write_kb"
	KeyResults        = "results"

	KeyOperations     = "operations"
	KeyOpResult       = "op_result"
	KeyAbortOnFail    = "abort_on_fail"

	KeyFieldRange = "field_range"
	KeyFieldName  = "field_name"
	KeyStart      = "start"
	KeyEnd        = "end"
	KeyInclusive  = "inclusive"

	KeyCapacityMode = "capacity_mode"
	KeyTableState   = "table_state"
	KeyLimits       = "limits"
	KeyReadLimit    = "read_limit"
	KeyWriteLimit   = "write_limit"
	KeyStorageLimit = "storage_limit"

	KeySystemStatement = "system_statement"
	KeyOperationID     = "operation_id"
	KeyStatus          = "status"
)
