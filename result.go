package nosqldb

import (
	"progressdb/nosqldb/pkg/ops"
	"progressdb/nosqldb/pkg/wirebinary"
)

// extractConsumed type-switches on the concrete result to surface its
// ConsumedCapacity without adding an onResult method to every op
// descriptor (spec §4.8 onResult's consumed-capacity event). SystemStatusResult
// carries no Consumed field (system/DDL status polling consumes no
// read/write units), so it reports ok=false.
func extractConsumed(res interface{}) (wirebinary.ConsumedCapacity, bool) {
	switch r := res.(type) {
	case *ops.GetResult:
		return r.Consumed, true
	case *ops.PutResult:
		return r.Consumed, true
	case *ops.DeleteResult:
		return r.Consumed, true
	case *ops.QueryResult:
		return r.Consumed, true
	case *ops.PrepareResult:
		return r.Consumed, true
	case *ops.TableResult:
		return r.Consumed, true
	default:
		return wirebinary.ConsumedCapacity{}, false
	}
}

// extractTableState surfaces a TableResult's table/state pair, the only
// result kind that carries one (spec §4.8 onResult's table-state event).
func extractTableState(res interface{}) (table string, state wirebinary.TableState, ok bool) {
	if r, isTable := res.(*ops.TableResult); isTable {
		return r.TableName, r.State, true
	}
	return "", 0, false
}
