package pricing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// staleGraceFactor bounds how long past its TTL a quote may still serve as a
// fallback when the upstream source is unreachable.
const staleGraceFactor = 4

type quote struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

type fetch struct {
	done  chan struct{}
	price decimal.Decimal
	err   error
}

// CachedSource wraps a price Source with in-memory caching. Quotes are keyed
// by normalized symbol and considered fresh for the TTL. Concurrent lookups
// for the same symbol share a single upstream call.
type CachedSource struct {
	inner Source
	ttl   time.Duration

	mu      sync.Mutex
	quotes  map[string]quote
	pending map[string]*fetch
}

// NewCachedSource returns a price source that caches quotes in memory.
func NewCachedSource(inner Source, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedSource{
		inner:   inner,
		ttl:     ttl,
		quotes:  make(map[string]quote),
		pending: make(map[string]*fetch),
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// GetLivePrice returns the symbol's price, serving a cached quote while it is
// fresh. When a refresh fails, a quote still inside the stale grace window is
// returned instead of the error.
func (s *CachedSource) GetLivePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if s.inner == nil {
		return decimal.Zero, errors.New("inner price source is required")
	}

	key := normalizeSymbol(symbol)

	s.mu.Lock()
	if q, ok := s.quotes[key]; ok && time.Since(q.fetchedAt) < s.ttl {
		s.mu.Unlock()
		return q.price, nil
	}
	f, inFlight := s.pending[key]
	if !inFlight {
		f = &fetch{done: make(chan struct{})}
		s.pending[key] = f
		// Detach the refresh from any single caller's deadline so one
		// short-lived caller cannot fail all concurrent waiters.
		go s.refresh(context.WithoutCancel(ctx), key, f)
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case <-f.done:
	}

	if f.err != nil {
		if p, ok := s.staleQuote(key); ok {
			return p, nil
		}
		return decimal.Zero, f.err
	}
	return f.price, nil
}

func (s *CachedSource) refresh(ctx context.Context, key string, f *fetch) {
	price, err := s.inner.GetLivePrice(ctx, key)
	if err == nil && !price.IsPositive() {
		err = &PriceUnavailableError{Symbol: key, Err: errors.New("quote price must be positive")}
	}

	s.mu.Lock()
	if err == nil {
		now := time.Now()
		s.quotes[key] = quote{price: price, fetchedAt: now}
		s.evictDeadLocked(now)
	}
	f.price, f.err = price, err
	delete(s.pending, key)
	s.mu.Unlock()
	close(f.done)
}

// staleQuote returns an expired quote that is still inside the grace window.
func (s *CachedSource) staleQuote(key string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[key]
	if !ok || time.Since(q.fetchedAt) > staleGraceFactor*s.ttl {
		return decimal.Zero, false
	}
	return q.price, true
}

func (s *CachedSource) evictDeadLocked(now time.Time) {
	for sym, q := range s.quotes {
		if now.Sub(q.fetchedAt) > staleGraceFactor*s.ttl {
			delete(s.quotes, sym)
		}
	}
}
