package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"booktrack/searchservice/internal/domain"
)

type memFastStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	locks   map[string]bool
	lockErr error
}

func newMemFastStore() *memFastStore {
	return &memFastStore{
		data:  make(map[string][]byte),
		locks: make(map[string]bool),
	}
}

func (m *memFastStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	return data, ok, nil
}

func (m *memFastStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memFastStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memFastStore) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return false, m.lockErr
	}
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *memFastStore) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

type memDurableEntry struct {
	results []domain.BookResult
	expired bool
}

type memDurableStore struct {
	mu      sync.Mutex
	entries map[string]memDurableEntry
}

func newMemDurableStore() *memDurableStore {
	return &memDurableStore{entries: make(map[string]memDurableEntry)}
}

func (m *memDurableStore) Get(_ context.Context, key, provider string) ([]domain.BookResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key+"|"+provider]
	if !ok || entry.expired {
		return nil, false, nil
	}
	return entry.results, true, nil
}

func (m *memDurableStore) GetStale(_ context.Context, key, provider string) ([]domain.BookResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key+"|"+provider]
	if !ok {
		return nil, false, nil
	}
	return entry.results, true, nil
}

func (m *memDurableStore) Set(_ context.Context, key, provider string, results []domain.BookResult, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key+"|"+provider] = memDurableEntry{results: results}
	return nil
}

func (m *memDurableStore) Delete(_ context.Context, key, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key+"|"+provider)
	return nil
}

func (m *memDurableStore) CleanExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, entry := range m.entries {
		if entry.expired {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (m *memDurableStore) expire(key, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.entries[key+"|"+provider]
	entry.expired = true
	m.entries[key+"|"+provider] = entry
}

func sampleResults() []domain.BookResult {
	return []domain.BookResult{{
		ProviderID: "vol-1",
		Provider:   "google_books",
		Title:      "Dune",
		Author:     "Frank Herbert",
		ISBN13:     "9780441172719",
	}}
}

func TestManagerRoundTrip(t *testing.T) {
	manager := NewManager(newMemFastStore(), newMemDurableStore())
	ctx := context.Background()

	if _, ok := manager.Get(ctx, "dune", "google_books", nil); ok {
		t.Fatal("expected miss on empty cache")
	}

	manager.Set(ctx, "dune", "google_books", sampleResults(), nil)

	results, ok := manager.Get(ctx, "dune", "google_books", nil)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if len(results) != 1 || results[0].Title != "Dune" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestManagerDurableHitBackfillsFast(t *testing.T) {
	fast := newMemFastStore()
	durable := newMemDurableStore()
	manager := NewManager(fast, durable)
	ctx := context.Background()

	key := Key("dune", "google_books", nil)
	if err := durable.Set(ctx, key, "google_books", sampleResults(), time.Hour); err != nil {
		t.Fatalf("seed durable tier: %v", err)
	}

	if _, ok := manager.Get(ctx, "dune", "google_books", nil); !ok {
		t.Fatal("expected durable hit")
	}

	fast.mu.Lock()
	_, backfilled := fast.data[key]
	fast.mu.Unlock()
	if !backfilled {
		t.Fatal("durable hit should backfill the fast tier")
	}
}

func TestGetWithLockFetchesOnceUnderConcurrency(t *testing.T) {
	manager := NewManager(newMemFastStore(), newMemDurableStore(),
		WithLockWait(2*time.Second, 5*time.Millisecond))
	ctx := context.Background()

	var fetches atomic.Int32
	fetch := func(context.Context) ([]domain.BookResult, error) {
		fetches.Add(1)
		time.Sleep(50 * time.Millisecond)
		return sampleResults(), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			results, _, err := manager.GetWithLock(ctx, "dune", "google_books", nil, fetch)
			if err == nil && len(results) != 1 {
				err = errors.New("empty results")
			}
			errs[index] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
	}
	if got := fetches.Load(); got != 1 {
		t.Fatalf("expected exactly one fetch, got %d", got)
	}
}

func TestGetWithLockDegradesWhenLockUnavailable(t *testing.T) {
	fast := newMemFastStore()
	fast.lockErr = errors.New("connection refused")
	manager := NewManager(fast, newMemDurableStore())

	var fetches atomic.Int32
	results, fromCache, err := manager.GetWithLock(context.Background(), "dune", "google_books", nil,
		func(context.Context) ([]domain.BookResult, error) {
			fetches.Add(1)
			return sampleResults(), nil
		})
	if err != nil {
		t.Fatalf("expected degraded fetch to succeed, got %v", err)
	}
	if fromCache {
		t.Fatal("degraded fetch must not report a cache hit")
	}
	if len(results) != 1 || fetches.Load() != 1 {
		t.Fatalf("unexpected fetch behavior: results=%d fetches=%d", len(results), fetches.Load())
	}
}

func TestGetWithLockPropagatesFetchError(t *testing.T) {
	manager := NewManager(newMemFastStore(), newMemDurableStore())
	wantErr := errors.New("upstream down")

	_, _, err := manager.GetWithLock(context.Background(), "dune", "google_books", nil,
		func(context.Context) ([]domain.BookResult, error) {
			return nil, wantErr
		})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}

	// The lock must be released so the next caller can fetch.
	results, _, err := manager.GetWithLock(context.Background(), "dune", "google_books", nil,
		func(context.Context) ([]domain.BookResult, error) {
			return sampleResults(), nil
		})
	if err != nil || len(results) != 1 {
		t.Fatalf("expected retry to succeed after failed fetch, got %v", err)
	}
}

func TestManagerGetStale(t *testing.T) {
	durable := newMemDurableStore()
	manager := NewManager(newMemFastStore(), durable)
	ctx := context.Background()

	manager.Set(ctx, "dune", "google_books", sampleResults(), nil)

	key := Key("dune", "google_books", nil)
	durable.expire(key, "google_books")

	// Fresh read on the durable tier misses, but the fast tier still holds
	// the entry, so drop it there too.
	if err := manager.fast.Delete(ctx, key); err != nil {
		t.Fatalf("clear fast tier: %v", err)
	}
	if _, ok := manager.Get(ctx, "dune", "google_books", nil); ok {
		t.Fatal("expected expired entry to miss")
	}

	stale, ok := manager.GetStale(ctx, "dune", "google_books", nil)
	if !ok || len(stale) != 1 {
		t.Fatal("expected stale read to return the expired entry")
	}
}

func TestManagerInvalidate(t *testing.T) {
	manager := NewManager(newMemFastStore(), newMemDurableStore())
	ctx := context.Background()

	manager.Set(ctx, "dune", "google_books", sampleResults(), nil)
	manager.Invalidate(ctx, "dune", "google_books", nil)

	if _, ok := manager.Get(ctx, "dune", "google_books", nil); ok {
		t.Fatal("expected miss after invalidation")
	}
	if _, ok := manager.GetStale(ctx, "dune", "google_books", nil); ok {
		t.Fatal("invalidation must clear the durable tier too")
	}
}

func TestManagerCleanExpired(t *testing.T) {
	durable := newMemDurableStore()
	manager := NewManager(nil, durable)
	ctx := context.Background()

	manager.Set(ctx, "dune", "google_books", sampleResults(), nil)
	manager.Set(ctx, "hobbit", "google_books", sampleResults(), nil)
	durable.expire(Key("dune", "google_books", nil), "google_books")

	removed, err := manager.CleanExpired(ctx)
	if err != nil {
		t.Fatalf("CleanExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed entry, got %d", removed)
	}
}

func TestManagerNilStores(t *testing.T) {
	manager := NewManager(nil, nil)
	ctx := context.Background()

	if _, ok := manager.Get(ctx, "dune", "google_books", nil); ok {
		t.Fatal("nil stores should always miss")
	}

	results, fromCache, err := manager.GetWithLock(ctx, "dune", "google_books", nil,
		func(context.Context) ([]domain.BookResult, error) {
			return sampleResults(), nil
		})
	if err != nil || fromCache || len(results) != 1 {
		t.Fatalf("expected direct fetch with nil stores, got results=%d fromCache=%v err=%v", len(results), fromCache, err)
	}
}
