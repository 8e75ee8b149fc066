package tle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSource counts fetches and returns canned responses.
type fakeSource struct {
	calls atomic.Int32
	body  atomic.Value // string
	err   atomic.Value // errBox
	gate  chan struct{}
}

type errBox struct{ err error }

func newFakeSource(body string) *fakeSource {
	s := &fakeSource{}
	s.body.Store(body)
	s.err.Store(errBox{})
	return s
}

func (s *fakeSource) Fetch(ctx context.Context) ([]byte, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if e := s.err.Load().(errBox); e.err != nil {
		return nil, e.err
	}
	return []byte(s.body.Load().(string)), nil
}

func (s *fakeSource) SourceURL() string { return "fake://catalog" }

type countingMetrics struct {
	ok, failed atomic.Int32
}

func (m *countingMetrics) CatalogFetched(int)   { m.ok.Add(1) }
func (m *countingMetrics) CatalogFetchFailed() { m.failed.Add(1) }

var t0 = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func TestCatalogCacheWithinIntervalFetchesOnce(t *testing.T) {
	src := newFakeSource(catalogText(issTriple))
	cache := NewCatalogCache(src, 0, nil, testLogger)

	first, err := cache.Get(context.Background(), t0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := cache.Get(context.Background(), t0.Add(11*time.Hour+59*time.Minute))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got := src.calls.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
	if !second.FetchedAt.Equal(first.FetchedAt) || len(second.Lines) != 3 {
		t.Errorf("second Get = %+v, want the cached catalog", second)
	}
	if !first.FetchedAt.Equal(t0) {
		t.Errorf("FetchedAt = %v, want the caller's now %v", first.FetchedAt, t0)
	}
}

func TestCatalogCacheRefetchesAfterInterval(t *testing.T) {
	src := newFakeSource(catalogText(issTriple))
	cache := NewCatalogCache(src, 0, nil, testLogger)

	if _, err := cache.Get(context.Background(), t0); err != nil {
		t.Fatalf("Get: %v", err)
	}

	src.body.Store(catalogText(issTriple, starlinkTriple))
	later := t0.Add(DefaultInterval)
	cat, err := cache.Get(context.Background(), later)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got := src.calls.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
	if len(cat.Lines) != 6 || !cat.FetchedAt.Equal(later) {
		t.Errorf("got %d lines fetched at %v, want 6 at %v", len(cat.Lines), cat.FetchedAt, later)
	}
	if peek, ok := cache.Peek(); !ok || len(peek.Lines) != 6 {
		t.Errorf("Peek = %d lines (ok=%v), want 6", len(peek.Lines), ok)
	}
}

func TestCatalogCacheFailureKeepsTimestamp(t *testing.T) {
	src := newFakeSource(catalogText(issTriple))
	m := &countingMetrics{}
	cache := NewCatalogCache(src, time.Hour, m, testLogger)

	if _, err := cache.Get(context.Background(), t0); err != nil {
		t.Fatalf("Get: %v", err)
	}

	boom := errors.New("connection reset")
	src.err.Store(errBox{err: boom})

	cat, err := cache.Get(context.Background(), t0.Add(2*time.Hour))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !cat.Empty() {
		t.Errorf("failed Get returned %d lines, want empty", len(cat.Lines))
	}

	peek, _ := cache.Peek()
	if !peek.FetchedAt.Equal(t0) || len(peek.Lines) != 3 {
		t.Errorf("cache after failure = %d lines at %v, want 3 at %v", len(peek.Lines), peek.FetchedAt, t0)
	}

	// Next call retries immediately rather than waiting another interval.
	src.err.Store(errBox{})
	if _, err := cache.Get(context.Background(), t0.Add(2*time.Hour+time.Second)); err != nil {
		t.Fatalf("retry Get: %v", err)
	}
	if got := src.calls.Load(); got != 3 {
		t.Errorf("fetches = %d, want 3", got)
	}
	if m.ok.Load() != 2 || m.failed.Load() != 1 {
		t.Errorf("metrics ok=%d failed=%d, want 2 and 1", m.ok.Load(), m.failed.Load())
	}
}

func TestCatalogCacheFailureOnColdCache(t *testing.T) {
	src := newFakeSource("")
	src.err.Store(errBox{err: errors.New("dns failure")})
	cache := NewCatalogCache(src, 0, nil, testLogger)

	cat, err := cache.Get(context.Background(), t0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !cat.Empty() {
		t.Errorf("got %d lines, want none", len(cat.Lines))
	}
	if _, ok := cache.Peek(); ok {
		t.Error("Peek reports a catalog after a failed cold fetch")
	}
}

func TestCatalogCacheEmptyBodyIsFailure(t *testing.T) {
	src := newFakeSource("\n\n")
	cache := NewCatalogCache(src, 0, nil, testLogger)

	if _, err := cache.Get(context.Background(), t0); !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("err = %v, want ErrEmptyCatalog", err)
	}
	if cache.Fresh(t0) {
		t.Error("empty fetch must not make the cache fresh")
	}
}

// TestCatalogCacheSingleFlight verifies concurrent callers during a pending
// fetch share one network request.
func TestCatalogCacheSingleFlight(t *testing.T) {
	src := newFakeSource(catalogText(issTriple))
	src.gate = make(chan struct{})
	cache := NewCatalogCache(src, 0, nil, testLogger)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Catalog, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Get(context.Background(), t0)
		}(i)
	}

	// Let every caller reach the in-flight fetch before releasing it.
	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if got := src.calls.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Errorf("caller %d: %v", i, errs[i])
		}
		if len(results[i].Lines) != 3 {
			t.Errorf("caller %d got %d lines, want 3", i, len(results[i].Lines))
		}
	}
}

func TestCatalogCacheInvalidate(t *testing.T) {
	src := newFakeSource(catalogText(issTriple))
	cache := NewCatalogCache(src, 0, nil, testLogger)

	if _, err := cache.Get(context.Background(), t0); err != nil {
		t.Fatalf("Get: %v", err)
	}
	cache.Invalidate()
	if cache.Fresh(t0) {
		t.Error("cache still fresh after Invalidate")
	}
	if _, ok := cache.Peek(); !ok {
		t.Error("Invalidate dropped the cached catalog")
	}
	if _, err := cache.Get(context.Background(), t0); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
}
