// Package wirebinary implements the positional, length-prefixed V2/V3
// binary protocol codec (spec §4.3): the request begins with a 2-byte
// big-endian serial version followed by a 1-byte opcode, then per-opcode
// fixed-order fields.
package wirebinary

// OpCode is the 1-byte request opcode (spec §3's sibling opcode table).
type OpCode byte

const (
	OpDelete                 OpCode = 0
	OpDeleteIfVersion        OpCode = 1
	OpGet                    OpCode = 2
	OpPut                    OpCode = 3
	OpPutIfAbsent            OpCode = 4
	OpPutIfPresent           OpCode = 5
	OpPutIfVersion           OpCode = 6
	OpQuery                  OpCode = 7
	OpPrepare                OpCode = 8
	OpWriteMultiple          OpCode = 9
	OpMultiDelete            OpCode = 10
	OpGetTable               OpCode = 11
	OpGetIndexes             OpCode = 12
	OpGetTableUsage          OpCode = 13
	OpListTables             OpCode = 14
	OpTableRequest           OpCode = 15
	OpScan                   OpCode = 16
	OpIndexScan              OpCode = 17
	OpCreateTable            OpCode = 18
	OpAlterTable             OpCode = 19
	OpDropTable              OpCode = 20
	OpCreateIndex            OpCode = 21
	OpDropIndex              OpCode = 22
	OpSystemRequest          OpCode = 23
	OpSystemStatusRequest    OpCode = 24
)

// SerialVersion is the 2-byte big-endian version at the start of every
// request/response body (V2, V3; V4 uses the same framing through NSON).
type SerialVersion uint16

const (
	V2 SerialVersion = 2
	V3 SerialVersion = 3
	V4 SerialVersion = 4
)
