// Package admission bounds how many generation requests may run at once.
// Capacity is tracked as leases in the shared store so several gateway
// workers can share one logical limit and a crashed worker's slot is
// reclaimed when its lease expires.
package admission

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llmgate/internal/store"
)

const pollInterval = 25 * time.Millisecond

// Config tunes the controller.
type Config struct {
	// Capacity is the number of concurrent leases; <= 0 disables
	// admission control entirely.
	Capacity int
	// MaxWait bounds how long Acquire blocks before reporting busy.
	MaxWait time.Duration
	// LeaseTTL is the crash-safety backstop: an unreleased lease stops
	// counting against capacity once it expires. Set it above the longest
	// expected generation.
	LeaseTTL time.Duration
	// ReapInterval is how often Run scans for expired leases.
	ReapInterval time.Duration
	// Key is the store key holding the lease set.
	Key string
}

// Controller is a store-backed counting semaphore with a FIFO wait line.
type Controller struct {
	st  store.Store
	cfg Config
	log zerolog.Logger

	// line serializes waiters; blocked channel senders are woken in FIFO
	// order, which is what makes admission starvation-free.
	line chan struct{}
	// wake is pinged on release so the front waiter retries immediately
	// instead of sleeping out its poll interval.
	wake chan struct{}
}

// Lease is a held admission permit.
type Lease struct {
	id        string
	expiresAt time.Time
	c         *Controller
	released  atomic.Bool
}

// ID returns the lease id (for logs).
func (l *Lease) ID() string { return l.id }

// ExpiresAt returns the server-assigned expiry.
func (l *Lease) ExpiresAt() time.Time { return l.expiresAt }

// Release returns the permit. Releasing twice, or releasing an expired
// lease, is a no-op.
func (l *Lease) Release(ctx context.Context) {
	if l.c == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	removed, err := l.c.st.ReleaseLease(ctx, l.c.cfg.Key, l.id)
	if err != nil {
		l.c.log.Error().Err(err).Str("lease", l.id).Msg("lease release failed; reaper will reclaim at expiry")
		return
	}
	if removed {
		l.c.notify()
	}
}

// New constructs a Controller. Call Run to start the reaper.
func New(st store.Store, cfg Config, log zerolog.Logger) *Controller {
	return &Controller{
		st:   st,
		cfg:  cfg,
		log:  log.With().Str("component", "admission").Logger(),
		line: make(chan struct{}, 1),
		wake: make(chan struct{}, 1),
	}
}

// Capacity returns the configured capacity.
func (c *Controller) Capacity() int { return c.cfg.Capacity }

// Held reports the number of live leases.
func (c *Controller) Held(ctx context.Context) (int, error) {
	if c.cfg.Capacity <= 0 {
		return 0, nil
	}
	return c.st.CountLeases(ctx, c.cfg.Key)
}

// Acquire blocks until a lease is granted, the context is canceled, or
// MaxWait elapses (busy). Waiters are served in arrival order.
func (c *Controller) Acquire(ctx context.Context) (*Lease, error) {
	if c.cfg.Capacity <= 0 {
		return &Lease{}, nil // admission disabled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline := time.NewTimer(c.cfg.MaxWait)
	defer deadline.Stop()

	// Join the FIFO line.
	select {
	case c.line <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-deadline.C:
		return nil, busyError{waited: c.cfg.MaxWait}
	}
	defer func() { <-c.line }()

	id := uuid.NewString()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := c.st.AcquireLease(ctx, c.cfg.Key, id, c.cfg.Capacity, c.cfg.LeaseTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lease{id: id, expiresAt: time.Now().Add(c.cfg.LeaseTTL), c: c}, nil
		}
		select {
		case <-c.wake:
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, busyError{waited: c.cfg.MaxWait}
		}
	}
}

// Run reaps expired leases until ctx is canceled. A reclaimed lease means
// a worker crashed or hung past its TTL; capacity is restored and the
// front waiter is woken.
func (c *Controller) Run(ctx context.Context) {
	if c.cfg.Capacity <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.st.ReapExpired(ctx, c.cfg.Key)
			if err != nil {
				if ctx.Err() == nil {
					c.log.Error().Err(err).Msg("lease reap failed")
				}
				continue
			}
			if n > 0 {
				c.log.Warn().Int("reclaimed", n).Msg("reclaimed expired admission leases")
				c.notify()
			}
		}
	}
}

func (c *Controller) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
