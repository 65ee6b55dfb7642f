// Package obs implements an optional Sentry-backed nosqldb.Observer
// (SPEC_FULL.md DOMAIN STACK "Error reporting"). The teacher only carries
// sentry-go as an indirect dependency (pulled in by another library, no
// direct call site); this package gives it the direct call site the
// driver needs, in the same fire-and-forget capture style Sentry's own
// examples use.
package obs

import (
	"time"

	"github.com/getsentry/sentry-go"

	"progressdb/nosqldb"
	"progressdb/nosqldb/pkg/nosqlerr"
	"progressdb/nosqldb/pkg/wirebinary"
)

// SentryObserver reports final (non-retried) errors to Sentry. It
// structurally satisfies nosqldb.Observer; the root package never
// imports this one, so there's no cycle. Consumed-capacity and
// table-state events are intentionally not forwarded to Sentry — they
// are routine telemetry, not failures.
type SentryObserver struct {
	// Environment and Release tag every captured event, matching the
	// teacher's convention of tagging server-side errors with deployment
	// metadata.
	Environment string
	Release     string
}

// NewSentryObserver initializes the global Sentry client with dsn and
// returns an Observer wired to it. Callers must call sentry.Flush (or
// rely on process exit) to drain pending events; this package doesn't
// do so itself since a long-lived Client may outlive any one flush.
func NewSentryObserver(dsn, environment, release string) (*SentryObserver, error) {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	}); err != nil {
		return nil, err
	}
	return &SentryObserver{Environment: environment, Release: release}, nil
}

func (o *SentryObserver) OnError(req *nosqldb.Request, err error, attempt int) {
	var nerr *nosqlerr.Error
	if !nosqlerr.As(err, &nerr) {
		sentry.CaptureException(err)
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("kind", nerr.Kind.String())
		scope.SetExtra("attempt", attempt)
		scope.SetExtra("request_id", req.ID)
		sentry.CaptureException(nerr)
	})
}

// OnRetryable deliberately doesn't report to Sentry: a retry that will
// succeed is not an operator-facing failure (spec §4.6's retry loop is
// expected, routine behavior).
func (o *SentryObserver) OnRetryable(req *nosqldb.Request, err error, attempt int, delay time.Duration) {}

func (o *SentryObserver) OnConsumedCapacity(req *nosqldb.Request, consumed wirebinary.ConsumedCapacity) {
}

func (o *SentryObserver) OnTableState(table string, state wirebinary.TableState) {}
