package instrument

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultIdleTimeout is the default time after which a dormant
	// connection is closed transparently (spec §4.3).
	DefaultIdleTimeout = 5 * time.Minute
	// defaultCleanupInterval is how often the idle-eviction sweep runs.
	defaultCleanupInterval = 1 * time.Minute
	// defaultAcquireRPS bounds the rate of physical acquisitions per
	// instrument id, protecting real hardware from command floods — grounded
	// on the teacher's per-plugin token-bucket rate limiter.
	defaultAcquireRPS       = 20
	burstCapacityMultiplier = 2
)

// Sentinel errors for pool operations.
var (
	// ErrAcquireCancelled is returned when ctx is cancelled while waiting for a lease.
	ErrAcquireCancelled = errors.New("lease acquisition cancelled")
	// ErrNoDriver is returned by Pool.Driver when the instrument type has no
	// registered factory (e.g. a bare virtual connection used only for
	// command-exec drivers constructed another way).
	ErrNoDriver = errors.New("instrument has no constructed driver")
)

// Lease is a scoped, exclusive acquisition of an instrument connection
// (spec §3 InstrumentLease). The holder has exclusive use until Release;
// Release is safe to call multiple times and is guaranteed by the pool to
// run on every exit path the caller takes (success, failure, or context
// cancellation) as long as the caller defers it immediately after Acquire
// returns.
type Lease struct {
	InstrumentID string
	Conn         *Connection

	pool     *Pool
	released bool
	mu       sync.Mutex
}

// Release returns the connection to the pool, freeing the per-instrument
// slot for the next waiter. Idempotent.
func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return
	}

	l.released = true
	l.pool.release(l.InstrumentID)
}

// poolEntry holds one instrument id's connection and its single-holder lock.
// lock is a size-1 channel rather than sync.Mutex so Acquire can select on
// ctx.Done() while waiting — sync.Mutex has no cancellable Lock.
type poolEntry struct {
	lock     chan struct{}
	conn     *Connection
	driver   Driver
	lastUsed time.Time
}

// Pool is the process-wide Connection Pool (C3): it owns physical
// instrument connections and lends scoped, exclusive leases. Scheduling
// discipline is a single-holder lock per instrument id (not per type),
// queued in request-arrival order.
type Pool struct {
	registry *Registry
	logger   *slog.Logger

	idleTimeout time.Duration

	mu       sync.Mutex
	entries  map[string]*poolEntry
	limiters map[string]*rate.Limiter

	cleanup *time.Ticker
	done    chan struct{}
	closeOnce sync.Once
}

// NewPool constructs a Connection Pool backed by registry. idleTimeout of 0
// uses DefaultIdleTimeout.
func NewPool(registry *Registry, idleTimeout time.Duration) *Pool {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	p := &Pool{
		registry:    registry,
		logger:      slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		idleTimeout: idleTimeout,
		entries:     make(map[string]*poolEntry),
		limiters:    make(map[string]*rate.Limiter),
		cleanup:     time.NewTicker(defaultCleanupInterval),
		done:        make(chan struct{}),
	}

	go p.evictLoop()

	return p
}

// Acquire returns a Lease guaranteed exclusive for id. If ctx is cancelled
// while waiting, the wait is abandoned and no lease is created (spec §4.3).
// Connections are created lazily on first request; construction failure
// surfaces to the caller without poisoning the pool key — the next attempt
// retries (spec §4.3).
func (p *Pool) Acquire(ctx context.Context, id string) (*Lease, error) {
	entry, limiter := p.entryFor(id)

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAcquireCancelled, id, err)
	}

	select {
	case entry.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrAcquireCancelled, id, ctx.Err())
	}

	conn, err := p.ensureConnected(ctx, id, entry)
	if err != nil {
		<-entry.lock // give the slot back; no lease was created

		return nil, err
	}

	entry.lastUsed = time.Now()

	return &Lease{InstrumentID: id, Conn: conn, pool: p}, nil
}

// entryFor returns (creating if needed) the poolEntry and rate limiter for id.
func (p *Pool) entryFor(id string) (*poolEntry, *rate.Limiter) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[id]
	if !ok {
		entry = &poolEntry{lock: make(chan struct{}, 1), lastUsed: time.Now()}
		p.entries[id] = entry
	}

	limiter, ok := p.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(defaultAcquireRPS), defaultAcquireRPS*burstCapacityMultiplier)
		p.limiters[id] = limiter
	}

	return entry, limiter
}

// ensureConnected dials a fresh connection if entry has none (first use, or
// a prior idle-eviction closed it transparently).
func (p *Pool) ensureConnected(ctx context.Context, id string, entry *poolEntry) (*Connection, error) {
	if entry.conn != nil {
		return entry.conn, nil
	}

	cfg, err := p.registry.GetConfig(id)
	if err != nil {
		return nil, err
	}

	conn, err := Dial(ctx, id, cfg)
	if err != nil {
		return nil, err
	}

	factory, err := p.registry.GetDriverFactory(cfg.Type)
	if err == nil {
		driver := factory(conn)
		if initErr := driver.Initialize(ctx); initErr != nil {
			_ = conn.Close()

			return nil, initErr
		}

		entry.driver = driver
	}

	entry.conn = conn

	p.logger.Info("instrument connection established", slog.String("instrument_id", id))

	return conn, nil
}

// Driver returns the driver constructed for lease's instrument id. The
// driver is constructed once, at first connection, and cached alongside the
// connection for the lifetime of that connection (spec §4.2, §9: drivers
// never outlive the connection they wrap).
func (p *Pool) Driver(id string, _ *Lease) (Driver, error) {
	p.mu.Lock()
	entry, ok := p.entries[id]
	p.mu.Unlock()

	if !ok || entry.driver == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDriver, id)
	}

	return entry.driver, nil
}

// release returns the per-id slot to the pool for the next waiter.
func (p *Pool) release(id string) {
	p.mu.Lock()
	entry, ok := p.entries[id]
	p.mu.Unlock()

	if !ok {
		return
	}

	entry.lastUsed = time.Now()
	<-entry.lock
}

// evictLoop closes connections idle longer than idleTimeout. Closure is
// transparent: the next Acquire reconnects (spec §4.3).
func (p *Pool) evictLoop() {
	for {
		select {
		case <-p.cleanup.C:
			p.evictIdle()
		case <-p.done:
			return
		}
	}
}

func (p *Pool) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()

	for id, entry := range p.entries {
		if entry.conn == nil || now.Sub(entry.lastUsed) < p.idleTimeout {
			continue
		}

		select {
		case entry.lock <- struct{}{}:
			// Not currently leased — safe to evict.
			_ = entry.conn.Close()
			entry.conn = nil
			entry.driver = nil
			<-entry.lock

			p.logger.Info("idle instrument connection evicted", slog.String("instrument_id", id))
		default:
			// Currently leased; skip this round, try again next tick.
		}
	}
}

// Close stops the idle-eviction loop and closes all connections. Intended
// for process shutdown.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.cleanup.Stop()

		p.mu.Lock()
		defer p.mu.Unlock()

		for _, entry := range p.entries {
			if entry.conn != nil {
				_ = entry.conn.Close()
			}
		}
	})
}
