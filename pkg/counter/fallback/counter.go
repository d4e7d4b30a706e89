package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"mercator-hq/gatekeeper/pkg/counter"
	"mercator-hq/gatekeeper/pkg/window"
)

// Store is the keyed TTL storage beneath the fallback counter.
// Implementations must be safe for concurrent use but are not required to
// provide atomic read-modify-write; the counter tolerates lost updates.
type Store interface {
	// Get returns the current count for key. The second return is false
	// when the key does not exist or has expired.
	Get(ctx context.Context, key string) (uint64, bool, error)

	// Set writes the count for key with the given time-to-live.
	Set(ctx context.Context, key string, value uint64, ttl time.Duration) error

	// Purge removes expired entries for stores without native TTL
	// expiry. TTL-native stores return 0.
	Purge(ctx context.Context, now time.Time) (int, error)

	// Close releases store resources.
	Close() error
}

// Config configures retry behavior for the optimistic write path.
type Config struct {
	// MaxRetries is the number of additional attempts after the first
	// failure. Default: 3
	MaxRetries int

	// BackoffBase is the first retry delay; each subsequent attempt
	// doubles it, plus up to half the base of jitter. Default: 50ms
	BackoffBase time.Duration
}

// Counter is the eventually consistent counter used when the primary tier
// is down.
type Counter struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// New creates a fallback counter over the given store.
func New(store Store, cfg Config, logger *slog.Logger) *Counter {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 50 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "counter.fallback"),
	}
}

// Increment performs an optimistic read-modify-write of the live window
// count. The write carries a TTL equal to the remaining window length. On
// failure it retries up to MaxRetries times with exponential backoff and
// jitter. This path is not race-free: concurrent increments may lose
// updates, by design.
func (c *Counter) Increment(ctx context.Context, identity string, kind window.Kind, consumer string, now time.Time) (counter.Record, error) {
	id, expiresAt, err := window.KeyFor(kind, now)
	if err != nil {
		return counter.Record{}, err
	}
	key := counter.Key{Identity: identity, Kind: kind, Consumer: consumer, WindowID: id}

	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		ttl = kind.Duration()
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt); err != nil {
				return counter.Record{}, err
			}
		}

		current, _, err := c.store.Get(ctx, key.String())
		if err != nil {
			lastErr = err
			continue
		}

		if err := c.store.Set(ctx, key.String(), current+1, ttl); err != nil {
			lastErr = err
			continue
		}

		return counter.Record{
			Count:           current + 1,
			Kind:            kind,
			Consumer:        consumer,
			WindowID:        id,
			ExpiresAt:       expiresAt,
			LastIncrementAt: now.UTC(),
		}, nil
	}

	return counter.Record{}, fmt.Errorf("fallback increment exhausted %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// Read returns the current count without mutating it. Missing keys read as
// zero.
func (c *Counter) Read(ctx context.Context, identity string, kind window.Kind, consumer string, now time.Time) (counter.Record, error) {
	id, expiresAt, err := window.KeyFor(kind, now)
	if err != nil {
		return counter.Record{}, err
	}
	key := counter.Key{Identity: identity, Kind: kind, Consumer: consumer, WindowID: id}

	current, _, err := c.store.Get(ctx, key.String())
	if err != nil {
		return counter.Record{}, err
	}
	return counter.Record{
		Count:     current,
		Kind:      kind,
		Consumer:  consumer,
		WindowID:  id,
		ExpiresAt: expiresAt,
	}, nil
}

// Sweep removes expired entries from stores without native TTL expiry.
func (c *Counter) Sweep(ctx context.Context, now time.Time) (int, error) {
	return c.store.Purge(ctx, now)
}

// Close releases the underlying store.
func (c *Counter) Close() error {
	return c.store.Close()
}

// sleep blocks for the backoff delay of the given attempt or until the
// context is canceled.
func (c *Counter) sleep(ctx context.Context, attempt int) error {
	delay := c.cfg.BackoffBase * (1 << (attempt - 1))
	delay += time.Duration(rand.Int63n(int64(c.cfg.BackoffBase)/2 + 1))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
