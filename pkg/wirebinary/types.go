package wirebinary

import (
	"time"

	"progressdb/nosqldb/pkg/fieldvalue"
)

// Consistency controls read staleness tolerance.
type Consistency int

const (
	ConsistencyAbsolute Consistency = iota
	ConsistencyEventual
)

// CapacityMode selects provisioned vs on-demand table throughput.
type CapacityMode int

const (
	CapacityProvisioned CapacityMode = iota
	CapacityOnDemand
)

// TableState is the server-reported lifecycle state of a table. UPDATING
// is carried even though spec.md's scenario E only names CREATING/ACTIVE,
// per SPEC_FULL.md's supplemented-features note.
type TableState int

const (
	TableCreating TableState = iota
	TableUpdating
	TableActive
	TableDropping
	TableDropped
)

// TTLUnit is the unit byte written after a TTL duration (spec §4.3).
type TTLUnit byte

const (
	TTLHours TTLUnit = 1
	TTLDays  TTLUnit = 2
)

// TTL is a row's time-to-live. A nil *TTL encodes as duration -1. The
// distinguished "do not expire" value is Days=0 with unit DAYS.
type TTL struct {
	Duration int64
	Unit     TTLUnit
}

// DoNotExpire is the sentinel TTL meaning "never expire" (spec GLOSSARY).
var DoNotExpire = TTL{Duration: 0, Unit: TTLDays}

// SyncPolicy and ReplicaAckPolicy are the 2-bit enum fields packed into a
// Durability byte (on-prem only, V3+).
type SyncPolicy byte

const (
	SyncNoSync SyncPolicy = iota
	SyncWriteNoSync
	SyncSync
)

type ReplicaAckPolicy byte

const (
	AckAll ReplicaAckPolicy = iota
	AckNone
	AckSimpleMajority
)

// Durability packs {masterSync, replicaSync, replicaAck} into one byte
// (spec §4.3: "single byte packing three 2-bit enum fields"). A nil
// *Durability encodes as 0.
type Durability struct {
	MasterSync  SyncPolicy
	ReplicaSync SyncPolicy
	ReplicaAck  ReplicaAckPolicy
}

// Pack encodes the three 2-bit fields into one byte.
func (d Durability) Pack() byte {
	return byte(d.MasterSync) | byte(d.ReplicaSync)<<2 | byte(d.ReplicaAck)<<4
}

// UnpackDurability reverses Pack.
func UnpackDurability(b byte) Durability {
	return Durability{
		MasterSync:  SyncPolicy(b & 0x3),
		ReplicaSync: SyncPolicy((b >> 2) & 0x3),
		ReplicaAck:  ReplicaAckPolicy((b >> 4) & 0x3),
	}
}

// FieldRange bounds one column of a composite primary key for multi-delete
// (spec §4.3, GLOSSARY "Field range").
type FieldRange struct {
	FieldName string
	Start     *RangeBound
	End       *RangeBound
}

// RangeBound is one inclusive/exclusive end of a FieldRange.
type RangeBound struct {
	Value     fieldvalue.Value
	Inclusive bool
}

// ConsumedCapacity is the per-response {readUnits, readKB, writeKB} triple
// (spec GLOSSARY: writeUnits == writeKB). ReadRateLimitDelay and
// WriteRateLimitDelay are populated by pkg/ratelimit, not the wire codec.
type ConsumedCapacity struct {
	ReadUnits           int
	ReadKB              int
	WriteKB             int
	ReadRateLimitDelay  time.Duration
	WriteRateLimitDelay time.Duration
}

// WriteUnits returns the write-units figure, which the wire protocol
// never sends separately from WriteKB.
func (c ConsumedCapacity) WriteUnits() int { return c.WriteKB }

// TopologyInfo is {seqNum, shardIds} (spec §3). SeqNum == -1 means absent.
type TopologyInfo struct {
	SeqNum   int
	ShardIDs []int
}

// Supersedes reports whether other carries a strictly higher sequence
// number and should replace this cached value (spec §3 "Topology info"
// invariant).
func (t TopologyInfo) Supersedes(other TopologyInfo) bool {
	return other.SeqNum > t.SeqNum
}
