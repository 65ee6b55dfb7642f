package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"progressdb/nosqldb/pkg/ratelimit"

	"github.com/stretchr/testify/require"
)

// TestSimpleRateLimiterBurstThenDelay exercises spec §8 property 8: once a
// limiter's burst capacity is exhausted, reserving further units past the
// bucket's capacity incurs a delay proportional to the excess over the
// configured rate.
func TestSimpleRateLimiterBurstThenDelay(t *testing.T) {
	rl := ratelimit.NewSimpleRateLimiter(10, 1) // burst == 11 units
	ctx := context.Background()

	delay, err := rl.ConsumeUnits(ctx, 11, time.Second, true)
	require.NoError(t, err)
	require.Zero(t, delay)

	delay, err = rl.ConsumeUnits(ctx, 10, time.Second, true)
	require.NoError(t, err)
	require.InDelta(t, time.Second, delay, float64(200*time.Millisecond))
}

// TestSimpleRateLimiterZeroUnitsIsNoop covers the consumeUnits(0, ...)
// pre-flight poll (spec §4.7 step 2).
func TestSimpleRateLimiterZeroUnitsIsNoop(t *testing.T) {
	rl := ratelimit.NewSimpleRateLimiter(5, 1)
	delay, err := rl.ConsumeUnits(context.Background(), 0, time.Second, false)
	require.NoError(t, err)
	require.Zero(t, delay)
}

// TestSimpleRateLimiterSetLimitRaisesCapacity confirms SetLimit takes
// effect on subsequent reservations. SetLimit raises the rate and the
// bucket's capacity but adds no tokens, so the 2 tokens already held cover
// part of a 50-unit reservation and the remaining 48 are repaid at the new
// 100 units/second: 480ms, where the old 1 unit/second rate would need 48s.
func TestSimpleRateLimiterSetLimitRaisesCapacity(t *testing.T) {
	rl := ratelimit.NewSimpleRateLimiter(1, 1) // burst == 2 units
	rl.SetLimit(100)                           // burst now 101 units
	delay, err := rl.ConsumeUnits(context.Background(), 50, time.Second, true)
	require.NoError(t, err)
	require.InDelta(t, 480*time.Millisecond, delay, float64(100*time.Millisecond), "raised limit should repay a 50-unit reservation at 100 units/second")
}

// TestInstallCreatesRefreshesAndRemovesEntry covers Manager.Install's three
// outcomes: create on first sight, refresh in place on a units change, and
// delete on a DROPPED report (spec §4.7, §8 property 9).
func TestInstallCreatesRefreshesAndRemovesEntry(t *testing.T) {
	m := ratelimit.NewManager(ratelimit.Config{})
	defer m.Close()

	require.Nil(t, m.Lookup("orders"))

	m.Install("Orders", ratelimit.TableLimits{ReadUnits: 100, WriteUnits: 50})
	e := m.Lookup("orders")
	require.NotNil(t, e, "table names are matched case-insensitively")
	require.Equal(t, 100, e.ReadUnits)
	require.Equal(t, 50, e.WriteUnits)

	// Refresh: only the read side changes. The write limiter's own object
	// identity (and its recorded units) must stay untouched.
	writeRLBefore := e.WriteRL
	m.Install("orders", ratelimit.TableLimits{ReadUnits: 200, WriteUnits: 50})
	require.Equal(t, 200, e.ReadUnits)
	require.Equal(t, 50, e.WriteUnits)
	require.Same(t, writeRLBefore, e.WriteRL)

	m.Install("orders", ratelimit.TableLimits{Dropped: true})
	require.Nil(t, m.Lookup("orders"))
}

// TestEnsureEntryTriggersBackgroundFetch covers the first-request lazy-fetch
// path (spec §4.7 "On first request to a table whose limiter is unknown:
// initiate a background GetTable").
func TestEnsureEntryTriggersBackgroundFetch(t *testing.T) {
	fetched := make(chan struct{}, 1)
	m := ratelimit.NewManager(ratelimit.Config{
		GetTable: func(ctx context.Context, table string) (ratelimit.TableLimits, error) {
			fetched <- struct{}{}
			return ratelimit.TableLimits{ReadUnits: 10, WriteUnits: 10}, nil
		},
	})
	defer m.Close()

	require.Nil(t, m.EnsureEntry("widgets"), "first call returns nil while the fetch is in flight")

	select {
	case <-fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("background GetTable was never invoked")
	}

	require.Eventually(t, func() bool {
		return m.Lookup("widgets") != nil
	}, 2*time.Second, 10*time.Millisecond)
}

// TestOnErrorSetsDirectionHint covers the doesReads/doesWrites flip on a
// throttling error (spec §4.7 step 4).
func TestOnErrorSetsDirectionHint(t *testing.T) {
	m := ratelimit.NewManager(ratelimit.Config{})
	defer m.Close()
	m.Install("t", ratelimit.TableLimits{ReadUnits: 10, WriteUnits: 10})

	h := m.InitRequest("t", false, false)
	require.False(t, h.DoesReads)
	m.OnError(&h, 22) // CodeReadLimitExceeded
	require.True(t, h.DoesReads)
	require.False(t, h.DoesWrites)
}
