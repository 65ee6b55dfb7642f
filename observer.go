package nosqldb

import (
	"time"

	"progressdb/nosqldb/pkg/wirebinary"
)

// Observer receives pipeline telemetry (spec §4.6/§4.7's "emits
// consumed-capacity/table-state events" requirement). All methods must
// return promptly; a Client calls them synchronously on the request
// goroutine. A nil Observer is valid and treated as noopObserver.
type Observer interface {
	OnError(req *Request, err error, attempt int)
	OnRetryable(req *Request, err error, attempt int, delay time.Duration)
	OnConsumedCapacity(req *Request, consumed wirebinary.ConsumedCapacity)
	OnTableState(table string, state wirebinary.TableState)
}

type noopObserver struct{}

func (noopObserver) OnError(*Request, error, int)                            {}
func (noopObserver) OnRetryable(*Request, error, int, time.Duration)         {}
func (noopObserver) OnConsumedCapacity(*Request, wirebinary.ConsumedCapacity) {}
func (noopObserver) OnTableState(string, wirebinary.TableState)              {}
