package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"booktrack/searchservice/internal/domain"
	"booktrack/searchservice/internal/metrics"
)

const (
	defaultFastTTL    = 6 * time.Hour
	defaultDurableTTL = 21 * 24 * time.Hour
	defaultLockTTL    = 30 * time.Second
	defaultLockWait   = 10 * time.Second
	defaultLockPoll   = 100 * time.Millisecond
)

// FastStore is the low-latency tier (Redis). Besides plain get/set it exposes
// the atomic conditional-set lock primitive used for stampede protection.
type FastStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// DurableStore is the slow-to-expire tier (Postgres); it keeps serving
// "good enough" results long after the fast tier has cycled.
type DurableStore interface {
	Get(ctx context.Context, key, provider string) ([]domain.BookResult, bool, error)
	GetStale(ctx context.Context, key, provider string) ([]domain.BookResult, bool, error)
	Set(ctx context.Context, key, provider string, results []domain.BookResult, ttl time.Duration) error
	Delete(ctx context.Context, key, provider string) error
	CleanExpired(ctx context.Context) (int, error)
}

// Manager is a read-through, write-through cache over both tiers. Tier
// connectivity failures are logged and swallowed: caching is a performance
// optimization, never a correctness dependency. Either store may be nil.
type Manager struct {
	fast       FastStore
	durable    DurableStore
	fastTTL    time.Duration
	durableTTL time.Duration
	lockTTL    time.Duration
	lockWait   time.Duration
	lockPoll   time.Duration
	logger     *slog.Logger
}

type ManagerOption func(*Manager)

func WithFastTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.fastTTL = ttl
		}
	}
}

func WithDurableTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.durableTTL = ttl
		}
	}
}

func WithLockTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

func WithLockWait(wait, poll time.Duration) ManagerOption {
	return func(m *Manager) {
		if wait > 0 {
			m.lockWait = wait
		}
		if poll > 0 {
			m.lockPoll = poll
		}
	}
}

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(fast FastStore, durable DurableStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		fast:       fast,
		durable:    durable,
		fastTTL:    defaultFastTTL,
		durableTTL: defaultDurableTTL,
		lockTTL:    defaultLockTTL,
		lockWait:   defaultLockWait,
		lockPoll:   defaultLockPoll,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Get looks the key up in the fast tier, then the durable tier. A durable
// hit backfills the fast tier best-effort before returning.
func (m *Manager) Get(ctx context.Context, query, provider string, filters map[string]string) ([]domain.BookResult, bool) {
	key := Key(query, provider, filters)

	if m.fast != nil {
		data, found, err := m.fast.Get(ctx, key)
		switch {
		case err != nil:
			m.logger.Warn("fast cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		case found:
			var results []domain.BookResult
			if err := json.Unmarshal(data, &results); err != nil {
				m.logger.Warn("fast cache entry corrupt", slog.String("key", key), slog.String("error", err.Error()))
			} else {
				metrics.CacheHitsTotal.WithLabelValues("fast").Inc()
				return results, true
			}
		}
	}

	if m.durable != nil {
		results, found, err := m.durable.Get(ctx, key, provider)
		switch {
		case err != nil:
			m.logger.Warn("durable cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		case found:
			metrics.CacheHitsTotal.WithLabelValues("durable").Inc()
			m.backfillFast(ctx, key, results)
			return results, true
		}
	}

	metrics.CacheMissesTotal.Inc()
	return nil, false
}

// GetStale reads the durable tier ignoring expiry. It is the degraded-mode
// path for serving something when the provider behind the key is down, so it
// does not count as a cache hit and never backfills the fast tier.
func (m *Manager) GetStale(ctx context.Context, query, provider string, filters map[string]string) ([]domain.BookResult, bool) {
	if m.durable == nil {
		return nil, false
	}
	key := Key(query, provider, filters)
	results, found, err := m.durable.GetStale(ctx, key, provider)
	if err != nil {
		m.logger.Warn("stale cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}
	if found {
		metrics.CacheHitsTotal.WithLabelValues("stale").Inc()
	}
	return results, found
}

// Set writes to both tiers independently; either write's failure is logged
// and does not block the other.
func (m *Manager) Set(ctx context.Context, query, provider string, results []domain.BookResult, filters map[string]string) {
	m.store(ctx, Key(query, provider, filters), provider, results)
}

// GetWithLock is the stampede-protection path: for a cold key under
// concurrent load, fetch runs at most once; contenders wait on the holder's
// published result. If the lock primitive is unavailable the fetch proceeds
// unguarded -- a deliberate availability-over-consistency trade-off.
// The second return reports whether the results came from cache.
func (m *Manager) GetWithLock(ctx context.Context, query, provider string, filters map[string]string, fetch func(context.Context) ([]domain.BookResult, error)) ([]domain.BookResult, bool, error) {
	if results, ok := m.Get(ctx, query, provider, filters); ok {
		return results, true, nil
	}

	key := Key(query, provider, filters)

	if m.fast == nil {
		return m.fetchAndStore(ctx, key, provider, fetch)
	}

	acquired, err := m.fast.AcquireLock(ctx, key, m.lockTTL)
	if err != nil {
		m.logger.Warn("stampede lock unavailable, fetching without protection",
			slog.String("key", key), slog.String("error", err.Error()))
		return m.fetchAndStore(ctx, key, provider, fetch)
	}
	if acquired {
		return m.fetchLocked(ctx, key, provider, fetch)
	}

	// Another caller holds the lock; poll for its published result.
	metrics.CacheLockWaitsTotal.Inc()
	deadline := time.Now().Add(m.lockWait)
	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(m.lockPoll):
		}

		if results, ok := m.Get(ctx, query, provider, filters); ok {
			return results, true, nil
		}
		if time.Now().After(deadline) {
			break
		}

		// The holder may have crashed or failed; its lock TTL will lapse.
		acquired, err := m.fast.AcquireLock(ctx, key, m.lockTTL)
		if err != nil {
			break
		}
		if acquired {
			return m.fetchLocked(ctx, key, provider, fetch)
		}
	}

	m.logger.Warn("stampede lock wait exhausted, fetching without protection", slog.String("key", key))
	return m.fetchAndStore(ctx, key, provider, fetch)
}

// Invalidate removes the key from both tiers.
func (m *Manager) Invalidate(ctx context.Context, query, provider string, filters map[string]string) {
	key := Key(query, provider, filters)
	if m.fast != nil {
		if err := m.fast.Delete(ctx, key); err != nil {
			m.logger.Warn("fast cache delete failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	if m.durable != nil {
		if err := m.durable.Delete(ctx, key, provider); err != nil {
			m.logger.Warn("durable cache delete failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

// CleanExpired sweeps expired entries out of the durable tier and returns
// the number removed. Meant to run on a periodic schedule.
func (m *Manager) CleanExpired(ctx context.Context) (int, error) {
	if m.durable == nil {
		return 0, nil
	}
	removed, err := m.durable.CleanExpired(ctx)
	if err != nil {
		return 0, err
	}
	metrics.CacheSweepRemovedTotal.Add(float64(removed))
	return removed, nil
}

func (m *Manager) fetchLocked(ctx context.Context, key, provider string, fetch func(context.Context) ([]domain.BookResult, error)) ([]domain.BookResult, bool, error) {
	// Re-check under the lock: a previous holder may have published between
	// our miss and our acquisition.
	if data, found, err := m.fast.Get(ctx, key); err == nil && found {
		var results []domain.BookResult
		if err := json.Unmarshal(data, &results); err == nil {
			if releaseErr := m.fast.ReleaseLock(ctx, key); releaseErr != nil {
				m.logger.Warn("stampede lock release failed", slog.String("key", key), slog.String("error", releaseErr.Error()))
			}
			metrics.CacheHitsTotal.WithLabelValues("fast").Inc()
			return results, true, nil
		}
	}

	results, err := fetch(ctx)
	if err != nil {
		if releaseErr := m.fast.ReleaseLock(ctx, key); releaseErr != nil {
			m.logger.Warn("stampede lock release failed", slog.String("key", key), slog.String("error", releaseErr.Error()))
		}
		return nil, false, err
	}
	m.store(ctx, key, provider, results)
	if releaseErr := m.fast.ReleaseLock(ctx, key); releaseErr != nil {
		m.logger.Warn("stampede lock release failed", slog.String("key", key), slog.String("error", releaseErr.Error()))
	}
	return results, false, nil
}

func (m *Manager) fetchAndStore(ctx context.Context, key, provider string, fetch func(context.Context) ([]domain.BookResult, error)) ([]domain.BookResult, bool, error) {
	results, err := fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	m.store(ctx, key, provider, results)
	return results, false, nil
}

func (m *Manager) store(ctx context.Context, key, provider string, results []domain.BookResult) {
	if m.fast != nil {
		data, err := json.Marshal(results)
		if err != nil {
			m.logger.Warn("cache marshal failed", slog.String("key", key), slog.String("error", err.Error()))
		} else if err := m.fast.Set(ctx, key, data, m.fastTTL); err != nil {
			m.logger.Warn("fast cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	if m.durable != nil {
		if err := m.durable.Set(ctx, key, provider, results, m.durableTTL); err != nil {
			m.logger.Warn("durable cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) backfillFast(ctx context.Context, key string, results []domain.BookResult) {
	if m.fast == nil {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := m.fast.Set(ctx, key, data, m.fastTTL); err != nil {
		m.logger.Warn("fast tier backfill failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}
