package web

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// countingSearcher records upstream calls.
type countingSearcher struct {
	calls  atomic.Int32
	result SearchResult
	err    error
}

func (s *countingSearcher) Search(ctx context.Context, query string) (SearchResult, error) {
	s.calls.Add(1)
	return s.result, s.err
}

func TestCachedSearcherSingleUpstreamCall(t *testing.T) {
	inner := &countingSearcher{result: SearchResult{Success: true, Result: "answer", Source: "test"}}
	cached := NewCachedSearcher(inner, 5*time.Minute)
	ctx := context.Background()

	first, err := cached.Search(ctx, "precio del oro hoy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cached.Search(ctx, "precio del oro hoy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inner.calls.Load() != 1 {
		t.Errorf("expected exactly 1 upstream call, got %d", inner.calls.Load())
	}
	if first != second {
		t.Error("cached result must match the first result")
	}
}

func TestCachedSearcherNormalizesQuery(t *testing.T) {
	inner := &countingSearcher{result: SearchResult{Success: true}}
	cached := NewCachedSearcher(inner, 5*time.Minute)
	ctx := context.Background()

	cached.Search(ctx, "Precio del ORO   hoy")
	cached.Search(ctx, "  precio del oro hoy ")

	if inner.calls.Load() != 1 {
		t.Errorf("normalized queries must share a cache entry, got %d calls", inner.calls.Load())
	}
}

func TestCachedSearcherExpiry(t *testing.T) {
	inner := &countingSearcher{result: SearchResult{Success: true}}
	cached := NewCachedSearcher(inner, time.Minute)

	current := time.Now()
	cached.now = func() time.Time { return current }
	ctx := context.Background()

	cached.Search(ctx, "noticias")
	current = current.Add(2 * time.Minute)
	cached.Search(ctx, "noticias")

	if inner.calls.Load() != 2 {
		t.Errorf("expected expired entry to trigger a new upstream call, got %d", inner.calls.Load())
	}
}

func TestCachedSearcherDoesNotCacheFailures(t *testing.T) {
	inner := &countingSearcher{err: context.DeadlineExceeded}
	cached := NewCachedSearcher(inner, time.Minute)
	ctx := context.Background()

	cached.Search(ctx, "clima")
	cached.Search(ctx, "clima")

	if inner.calls.Load() != 2 {
		t.Errorf("failures must not be cached, got %d calls", inner.calls.Load())
	}
}
