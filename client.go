package nosqldb

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"progressdb/nosqldb/pkg/auth"
	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/logger"
	"progressdb/nosqldb/pkg/metrics"
	"progressdb/nosqldb/pkg/nosqlerr"
	"progressdb/nosqldb/pkg/ops"
	"progressdb/nosqldb/pkg/protocol"
	"progressdb/nosqldb/pkg/ratelimit"
	"progressdb/nosqldb/pkg/transport"
	"progressdb/nosqldb/pkg/wirebinary"
)

// userAgent identifies this driver on every request (SUPPLEMENTED
// FEATURES "User-Agent format"): "NoSQL-GoSDK/<version>(<goos>/<goarch>)",
// followed by Config.UserAgentSuffix when one is set.
const driverVersion = "1.0.0"

func userAgent(suffix string) string {
	ua := fmt.Sprintf("NoSQL-GoSDK/%s(%s/%s)", driverVersion, runtime.GOOS, runtime.GOARCH)
	if suffix != "" {
		ua += " " + suffix
	}
	return ua
}

// Client is the driver's single entry point: one HTTP endpoint, one
// protocol.Manager, one rate-limiter Manager, one buffer Pool, one cookie
// jar (spec §5 "Per-Client state"). Safe for concurrent use by multiple
// goroutines; every field either is itself concurrency-safe or is
// immutable after New.
type Client struct {
	cfg       Config
	transport transport.Transport
	pm        *protocol.Manager
	pool      *buffer.Pool
	cookies   *transport.CookieJar
	metrics   *metrics.Collectors
	observer  Observer
	retry     RetryHandler
	rl        *ratelimit.Manager
	reqID     atomic.Uint64
	userAgent string
}

// New builds a Client from cfg, starting the protocol session at V4 and,
// if cfg.RateLimiter.Enabled, launching the background rate-limiter
// refresh loop (spec §4.7).
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	logger.Init()

	var tr transport.Transport
	switch cfg.Transport {
	case TransportFastHTTP:
		tr = transport.NewFastHTTPTransport()
	default:
		tr = transport.NewNetHTTPTransport()
	}

	c := &Client{
		cfg:       cfg,
		transport: tr,
		pm:        protocol.NewManager(),
		pool:      buffer.NewPool(),
		cookies:   &transport.CookieJar{},
		metrics:   cfg.newMetrics(),
		observer:  cfg.Observer,
		retry:     cfg.RetryPolicy,
		userAgent: userAgent(cfg.UserAgentSuffix),
	}
	if c.observer == nil {
		c.observer = noopObserver{}
	}
	if cfg.RateLimiter.Enabled {
		c.rl = ratelimit.NewManager(ratelimit.Config{
			GetTable:     c.fetchTableLimits,
			Percentage:   cfg.RateLimiter.Percentage,
			BurstSeconds: cfg.RateLimiter.BurstSeconds,
		})
	}
	if init, ok := cfg.Auth.(auth.Initializer); ok {
		if err := init.OnInit(cfg.Endpoint); err != nil {
			logger.Log().Error("nosqldb: auth provider init failed", "error", err)
		}
	}
	return c
}

// Close releases the Client's background resources: the rate-limiter
// scheduler, the transport's idle connections, and the auth provider if
// it holds any (spec §5 "close() cancels every outstanding timer").
func (c *Client) Close() {
	if c.rl != nil {
		c.rl.Close()
	}
	c.transport.Close()
	if closer, ok := c.cfg.Auth.(auth.Closer); ok {
		_ = closer.Close()
	}
}

// fetchTableLimits adapts a direct GetTable call into ratelimit.TableLimits,
// used both for the rate limiter's lazy first-use fetch and its background
// refresh loop (spec §4.7 GetTableFunc).
func (c *Client) fetchTableLimits(ctx context.Context, table string) (ratelimit.TableLimits, error) {
	res, err := c.do(ctx, &ops.GetTableRequest{Table: table}, false)
	if err != nil {
		return ratelimit.TableLimits{}, err
	}
	tr, ok := res.(*ops.TableResult)
	if !ok {
		return ratelimit.TableLimits{}, nil
	}
	return ratelimit.TableLimits{
		ReadUnits:  int(tr.Limits.ReadUnits),
		WriteUnits: int(tr.Limits.WriteUnits),
		Dropped:    tr.State == wirebinary.TableDropped,
	}, nil
}

// Do executes op through the full pipeline: default inheritance,
// validation, rate limiting, serialize/send/deserialize, protocol
// downgrade handling, and retry (spec §2, §4.5, §4.6, §4.7, §4.8).
func (c *Client) Do(ctx context.Context, op ops.Op) (interface{}, error) {
	return c.do(ctx, op, true)
}

func (c *Client) do(ctx context.Context, op ops.Op, rateLimited bool) (interface{}, error) {
	if oh, ok := op.(ops.OptionsHolder); ok {
		oh.SetOptions(oh.GetOptions().Merge(c.defaultOptions()))
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}

	req := &Request{Op: op, ID: c.reqID.Add(1)}
	if oh, ok := op.(ops.OptionsHolder); ok {
		o := oh.GetOptions()
		if o.Compartment != nil {
			req.compartment = *o.Compartment
		} else {
			req.compartment = c.cfg.Compartment
		}
		if o.Namespace != nil {
			req.namespace = *o.Namespace
		} else {
			req.namespace = c.cfg.Namespace
		}
	}

	var hooks ratelimit.Hooks
	if rateLimited && c.rl != nil && op.SupportsRateLimiting() {
		hooks = c.rl.InitRequest(op.TableName(), op.DoesReads(), op.DoesWrites())
	}

	start := time.Now()
	timeout := c.effectiveTimeout(op)
	deadline := start.Add(timeout) // widened once on SECURITY_INFO_UNAVAILABLE (spec §4.6)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			err := nosqlerr.Timeout(req.attempt, nil).WithRequest(req)
			c.observer.OnError(req, err, req.attempt)
			return nil, err
		}

		if rateLimited && c.rl != nil {
			if err := c.rl.StartRequest(ctx, hooks, remaining); err != nil {
				return nil, err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cappedTimeout(remaining))
		res, err := c.attempt(attemptCtx, req, op)
		cancel()
		req.attempt++
		c.metrics.Attempts.WithLabelValues(opLabel(op)).Inc()

		if err == nil {
			if consumed, ok := extractConsumed(res); ok {
				if rateLimited && c.rl != nil {
					consumed.ReadRateLimitDelay, consumed.WriteRateLimitDelay = c.chargeUnits(ctx, &hooks, consumed, remaining)
				}
				c.observer.OnConsumedCapacity(req, consumed)
				c.metrics.ConsumedReadUnits.Add(float64(consumed.ReadUnits))
				c.metrics.ConsumedWriteKB.Add(float64(consumed.WriteKB))
			}
			if table, state, ok := extractTableState(res); ok {
				c.observer.OnTableState(table, state)
			}
			return res, nil
		}

		var nerr *nosqlerr.Error
		if nosqlerr.As(err, &nerr) {
			nerr = nerr.WithRequest(req)
			if nerr.Kind == nosqlerr.KindUnsupportedProtocol {
				if downgraded, _ := c.pm.Downgrade(req.usedVersion); downgraded {
					c.metrics.ProtocolVersion.Set(float64(c.pm.ActiveVersion()))
					logger.Log().Warn("nosqldb: downgrading protocol version", "from", req.usedVersion)
				}
				continue
			}
			if nerr.Code == nosqlerr.CodeSecurityInfoUnavailable {
				budget := c.cfg.SecurityInfoTimeout
				if timeout > budget {
					budget = timeout
				}
				if extended := start.Add(budget); extended.After(deadline) {
					deadline = extended
				}
			}
			if rateLimited && c.rl != nil {
				c.rl.OnError(&hooks, nerr.Code)
			}
			if ah, ok := c.cfg.Auth.(auth.ErrorHinter); ok {
				ah.OnAuthError(nerr)
			}
			if op.ShouldRetry() && c.retry.ShouldRetry(req, nerr, req.attempt) {
				delay := c.retry.Delay(req, nerr, req.attempt)
				c.metrics.Retries.WithLabelValues(opLabel(op)).Inc()
				c.observer.OnRetryable(req, nerr, req.attempt, delay)
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return nil, nosqlerr.Timeout(req.attempt, ctx.Err()).WithRequest(req)
				}
			}
			c.metrics.Errors.WithLabelValues(opLabel(op), nerr.Kind.String()).Inc()
			c.observer.OnError(req, nerr, req.attempt)
			return nil, nerr
		}
		c.observer.OnError(req, err, req.attempt)
		return nil, err
	}
}

// attempt runs exactly one send/receive cycle: serialize, POST, classify
// the HTTP status, and deserialize (spec §4.5 steps 1-5).
func (c *Client) attempt(ctx context.Context, req *Request, op ops.Op) (interface{}, error) {
	buf := c.pool.Acquire()
	defer c.pool.Release(buf)

	usedVersion, err := c.pm.Serialize(buf, op.OpCode(), op)
	if err != nil {
		return nil, nosqlerr.Protocol(err, "serialize failed")
	}
	req.usedVersion = usedVersion
	req.body = buf.Bytes()

	headers := http.Header{}
	headers.Set("User-Agent", c.userAgent)
	headers.Set("Content-Type", "application/octet-stream")
	headers.Set("X-Nosql-Request-Id", fmt.Sprintf("%d", req.ID))
	if req.compartment != "" {
		headers.Set("X-Nosql-Compartment-Id", req.compartment)
	}
	if req.namespace != "" {
		headers.Set("X-Nosql-Namespace", req.namespace)
	}
	c.cookies.Apply(headers)

	authz, err := c.cfg.Auth.GetAuthorization(ctx, req)
	if err != nil {
		return nil, nosqlerr.Network(err, "auth provider failed")
	}
	applyAuthorization(headers, authz)

	resp, err := c.transport.Send(ctx, c.cfg.Endpoint, headers, buf.Bytes())
	if err != nil {
		return nil, err
	}
	c.cookies.Observe(resp.Headers)

	switch {
	case resp.Status == http.StatusOK:
		// fall through to deserialize below
	case resp.Status == http.StatusBadRequest:
		return nil, nosqlerr.Service(resp.Status, string(resp.Body))
	default:
		return nil, nosqlerr.Service(resp.Status, fmt.Sprintf("unexpected HTTP status %d", resp.Status))
	}

	// Every response body opens with the same 2-byte serial-version prefix
	// a request does (SPEC_FULL.md "SUPPLEMENTED FEATURES"), so the
	// tag/error-code byte IsUnsupportedProtocolSignal inspects sits at
	// index 2, not index 0.
	if len(resp.Body) > 2 && protocol.IsUnsupportedProtocolSignal(usedVersion, resp.Body[2]) {
		return nil, nosqlerr.UnsupportedProtocol("server rejected protocol version")
	}

	rbuf := c.pool.Acquire()
	defer c.pool.Release(rbuf)
	rbuf.AppendBytes(resp.Body)
	cursor := rbuf.Reader()

	gotVersion, err := wirebinary.ReadSerialVersion(cursor)
	if err != nil {
		return nil, nosqlerr.Protocol(err, "read serial version")
	}
	res, err := protocol.Deserialize(gotVersion, cursor, op.OpCode(), op)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) defaultOptions() ops.Options {
	var o ops.Options
	if c.cfg.DefaultTimeout > 0 {
		o.Timeout = &c.cfg.DefaultTimeout
	}
	if c.cfg.Compartment != "" {
		o.Compartment = &c.cfg.Compartment
	}
	if c.cfg.Namespace != "" {
		o.Namespace = &c.cfg.Namespace
	}
	return o
}

func (c *Client) effectiveTimeout(op ops.Op) time.Duration {
	if oh, ok := op.(ops.OptionsHolder); ok {
		return oh.GetOptions().TimeoutOrDefault()
	}
	return c.cfg.DefaultTimeout
}

// cappedTimeout enforces spec §4.6's MAX_REQUEST_TIMEOUT regardless of
// how much of the caller's overall deadline remains.
func (c *Client) cappedTimeout(remaining time.Duration) time.Duration {
	if remaining > c.cfg.MaxRequestTimeout {
		return c.cfg.MaxRequestTimeout
	}
	return remaining
}

// chargeUnits charges the rate limiter for this attempt's actually
// consumed units and returns the read/write delay to attribute back onto
// the ConsumedCapacity the caller observes (spec §4.7 step 3).
func (c *Client) chargeUnits(ctx context.Context, hooks *ratelimit.Hooks, consumed wirebinary.ConsumedCapacity, remaining time.Duration) (readDelay, writeDelay time.Duration) {
	readDelay, writeDelay, err := c.rl.FinishRequest(ctx, *hooks, consumed.ReadUnits, consumed.WriteUnits(), remaining)
	if err != nil {
		return 0, 0
	}
	if readDelay > 0 {
		c.metrics.RateLimitDelay.WithLabelValues("read").Observe(readDelay.Seconds())
	}
	if writeDelay > 0 {
		c.metrics.RateLimitDelay.WithLabelValues("write").Observe(writeDelay.Seconds())
	}
	return readDelay, writeDelay
}

func applyAuthorization(headers http.Header, a auth.Authorization) {
	if a.Bearer != "" {
		headers.Set("Authorization", "Bearer "+a.Bearer)
	}
	for _, h := range a.Headers {
		headers.Set(h.Name, h.Value)
	}
}

func opLabel(op ops.Op) string {
	return fmt.Sprintf("%d", op.OpCode())
}
