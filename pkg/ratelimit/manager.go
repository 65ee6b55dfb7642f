package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"progressdb/nosqldb/pkg/logger"
	"progressdb/nosqldb/pkg/nosqlerr"
)

// BackgroundRefreshInterval is the fixed cadence spec §4.7 mandates for
// the background table-limit refresh loop.
const BackgroundRefreshInterval = 10 * time.Minute

// backgroundRefreshCron is BackgroundRefreshInterval expressed as a cron
// expression so the scheduler can reuse gronx.NextTickAfter the same way
// the teacher's retention scheduler does, rather than a bare time.Ticker.
const backgroundRefreshCron = "*/10 * * * *"

// TableLimits is the subset of a GetTable response Manager needs: the
// provisioned read/write units and whether the table has been dropped.
// Request carries no dependency on pkg/ops to avoid an import cycle; the
// caller (the root client) adapts its own TableResult into this shape.
type TableLimits struct {
	ReadUnits  int
	WriteUnits int
	Dropped    bool
}

// GetTableFunc fetches current limits for table, used both for the
// first-request lazy fetch and the background refresh loop. Implementations
// must apply their own extended internal timeout and retries (spec §4.7:
// "that call has an extended (5-minute) internal timeout covering its own
// retries").
type GetTableFunc func(ctx context.Context, table string) (TableLimits, error)

// Entry is the per-table cached limiter pair plus the units that produced
// them (spec §3 "RateLimiterEntry").
type Entry struct {
	mu         sync.Mutex
	ReadUnits  int
	WriteUnits int
	ReadRL     Limiter
	WriteRL    Limiter
	NoLimits   bool
}

func newEntry(readUnits, writeUnits int, burstSeconds float64, pct float64) *Entry {
	ru := float64(readUnits) * pct
	wu := float64(writeUnits) * pct
	return &Entry{
		ReadUnits:  readUnits,
		WriteUnits: writeUnits,
		ReadRL:     NewSimpleRateLimiter(ru, burstSeconds),
		WriteRL:    NewSimpleRateLimiter(wu, burstSeconds),
	}
}

// refresh updates only the limiter sides whose units actually changed
// (spec §4.7 "refresh the entry in place, updating only the limiters
// whose units actually changed"; spec §8 property 9).
func (e *Entry) refresh(readUnits, writeUnits int, pct float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if readUnits != e.ReadUnits {
		e.ReadUnits = readUnits
		e.ReadRL.SetLimit(float64(readUnits) * pct)
	}
	if writeUnits != e.WriteUnits {
		e.WriteUnits = writeUnits
		e.WriteRL.SetLimit(float64(writeUnits) * pct)
	}
}

// Manager owns the lowercased-table-name -> Entry map and the background
// refresh scheduler (spec §4.7, §5 "Rate-limiter map").
type Manager struct {
	getTable GetTableFunc
	pct      float64 // ConfiguredPercentage / 100, default 1.0
	burstSec float64

	mu      sync.Mutex
	entries map[string]*Entry
	pending map[string]bool // tables with an in-flight background fetch

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config configures a Manager (spec §4.7 "Configuration").
type Config struct {
	GetTable     GetTableFunc
	Percentage   float64 // 0 or 100 means "use full table limits"
	BurstSeconds float64
}

// NewManager builds a Manager and starts its background refresh scheduler.
func NewManager(cfg Config) *Manager {
	pct := cfg.Percentage
	if pct <= 0 {
		pct = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		getTable: cfg.GetTable,
		pct:      pct / 100.0,
		burstSec: cfg.BurstSeconds,
		entries:  make(map[string]*Entry),
		pending:  make(map[string]bool),
		cancel:   cancel,
	}
	m.wg.Add(1)
	go m.runScheduler(ctx)
	return m
}

// Close stops the background scheduler (spec §5 "close() cancels every
// outstanding timer").
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func tableKey(table string) string { return strings.ToLower(table) }

// Lookup returns the cached entry for table, or nil if none exists yet.
func (m *Manager) Lookup(table string) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[tableKey(table)]
}

// EnsureEntry returns the cached entry for table, triggering a background
// fetch if none exists yet and none is already in flight (spec §4.7 "On
// first request to a table whose limiter is unknown: initiate a
// background GetTable").
func (m *Manager) EnsureEntry(table string) *Entry {
	if table == "" || m.getTable == nil {
		return nil
	}
	key := tableKey(table)
	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		m.mu.Unlock()
		return e
	}
	if m.pending[key] {
		m.mu.Unlock()
		return nil
	}
	m.pending[key] = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.fetchAndInstall(table, true)
	return nil
}

// fetchAndInstall runs one GetTable fetch (first-use or background
// refresh) under a 5-minute internal timeout and installs/refreshes the
// entry on success (spec §4.7).
func (m *Manager) fetchAndInstall(table string, firstUse bool) {
	defer m.wg.Done()
	key := tableKey(table)
	defer func() {
		m.mu.Lock()
		delete(m.pending, key)
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	limits, err := m.getTable(ctx, table)
	if err != nil {
		logger.Log().Warn("ratelimit: background GetTable failed", "table", table, "error", err)
		return
	}
	m.Install(table, limits)
}

// Install applies a freshly fetched TableLimits to the cached entry,
// creating it if absent, or removing it if the table was dropped (spec
// §4.7, §8 property 9 "a DROPPED state removes the entry").
func (m *Manager) Install(table string, limits TableLimits) {
	key := tableKey(table)
	m.mu.Lock()
	defer m.mu.Unlock()
	if limits.Dropped {
		delete(m.entries, key)
		return
	}
	if e, ok := m.entries[key]; ok {
		e.refresh(limits.ReadUnits, limits.WriteUnits, m.pct)
		return
	}
	m.entries[key] = newEntry(limits.ReadUnits, limits.WriteUnits, m.burstSec, m.pct)
}

// runScheduler wakes every BackgroundRefreshInterval (computed via gronx,
// mirroring the teacher's retention scheduler) and refreshes every table
// currently tracked, per spec §4.7 "Reschedule another background refresh
// in 10 minutes if percentage sharing is in effect or if the previous
// attempt failed." Since percentage sharing requires continual
// reconciliation with other clients and a failed fetch must be retried,
// refreshing unconditionally on this cadence satisfies both cases.
func (m *Manager) runScheduler(ctx context.Context) {
	defer m.wg.Done()
	for {
		next, err := gronx.NextTickAfter(backgroundRefreshCron, time.Now().UTC(), false)
		wait := BackgroundRefreshInterval
		if err == nil {
			if d := time.Until(next); d > 0 {
				wait = d
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			m.refreshAll()
		}
	}
}

func (m *Manager) refreshAll() {
	if m.getTable == nil {
		return
	}
	m.mu.Lock()
	tables := make([]string, 0, len(m.entries))
	for k := range m.entries {
		tables = append(tables, k)
	}
	m.mu.Unlock()
	for _, t := range tables {
		m.mu.Lock()
		if m.pending[t] {
			m.mu.Unlock()
			continue
		}
		m.pending[t] = true
		m.mu.Unlock()
		m.wg.Add(1)
		go m.fetchAndInstall(t, false)
	}
}

// RequestHooks is the per-request side of the control loop (spec §4.7
// "Per-request interaction"). The root client's Request type embeds the
// fields these hooks populate; they're passed here by reference via the
// Hooks struct rather than importing the root package (avoids an import
// cycle).
type Hooks struct {
	DoesReads  bool
	DoesWrites bool
	Entry      *Entry
}

// InitRequest caches doesReads/doesWrites and resolves (or triggers a
// background fetch for) the limiter entry (spec §4.7 step 1).
func (m *Manager) InitRequest(table string, doesReads, doesWrites bool) Hooks {
	h := Hooks{DoesReads: doesReads, DoesWrites: doesWrites}
	if table == "" {
		return h
	}
	h.Entry = m.EnsureEntry(table)
	return h
}

// StartRequest performs the pre-flight consumeUnits(0, ...) poll on each
// applicable side (spec §4.7 step 2).
func (m *Manager) StartRequest(ctx context.Context, h Hooks, remaining time.Duration) error {
	if h.Entry == nil {
		return nil
	}
	h.Entry.mu.Lock()
	noLimits := h.Entry.NoLimits
	readRL, writeRL := h.Entry.ReadRL, h.Entry.WriteRL
	h.Entry.mu.Unlock()
	if noLimits {
		return nil
	}
	if h.DoesReads {
		if _, err := readRL.ConsumeUnits(ctx, 0, remaining, false); err != nil {
			return err
		}
	}
	if h.DoesWrites {
		if _, err := writeRL.ConsumeUnits(ctx, 0, remaining, false); err != nil {
			return err
		}
	}
	return nil
}

// FinishRequest charges actual consumed units as a reservation (never
// blocks) and returns the read/write delay to attribute to
// consumedCapacity (spec §4.7 step 3).
func (m *Manager) FinishRequest(ctx context.Context, h Hooks, readUnits, writeUnits int, remaining time.Duration) (readDelay, writeDelay time.Duration, err error) {
	if h.Entry == nil {
		return 0, 0, nil
	}
	h.Entry.mu.Lock()
	noLimits := h.Entry.NoLimits
	readRL, writeRL := h.Entry.ReadRL, h.Entry.WriteRL
	h.Entry.mu.Unlock()
	if noLimits {
		return 0, 0, nil
	}
	if h.DoesReads && readUnits > 0 {
		readDelay, err = readRL.ConsumeUnits(ctx, float64(readUnits), remaining, true)
		if err != nil {
			return 0, 0, err
		}
	}
	if h.DoesWrites && writeUnits > 0 {
		writeDelay, err = writeRL.ConsumeUnits(ctx, float64(writeUnits), remaining, true)
		if err != nil {
			return readDelay, 0, err
		}
	}
	return readDelay, writeDelay, nil
}

// OnError flips the doesReads/doesWrites hint and notifies the limiter of
// the throttle, per spec §4.7 step 4.
func (m *Manager) OnError(h *Hooks, code nosqlerr.Code) {
	if h.Entry == nil {
		return
	}
	h.Entry.mu.Lock()
	readRL, writeRL := h.Entry.ReadRL, h.Entry.WriteRL
	h.Entry.mu.Unlock()
	switch code {
	case nosqlerr.CodeReadLimitExceeded:
		h.DoesReads = true
		readRL.OnThrottle()
	case nosqlerr.CodeWriteLimitExceeded:
		h.DoesWrites = true
		writeRL.OnThrottle()
	}
}
