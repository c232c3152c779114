// Package market implements the in-memory market state store: the latest
// quote per venue for every tracked pair, with staleness tracking.
//
// The store is logically partitioned by pair. Each pair owns its own lock,
// so updates to different pairs never contend, while updates to the same
// pair are serialized. Detection runs inside the same critical section as
// the update that triggered it, so it always observes the just-applied
// quote and never a torn view.
package market

import (
	"sort"
	"sync"
	"time"

	"github.com/avask/arbot/internal/domain"
)

// Store holds the latest quote per (pair, venue).
type Store struct {
	staleness time.Duration

	mu    sync.RWMutex
	pairs map[string]*pairState
}

type pairState struct {
	mu     sync.Mutex
	quotes map[string]domain.PriceQuote // venue -> latest quote
}

// NewStore creates a Store whose active-quote view excludes quotes older
// than the given staleness window.
func NewStore(staleness time.Duration) *Store {
	return &Store{
		staleness: staleness,
		pairs:     make(map[string]*pairState),
	}
}

// Update replaces the venue's entry for the quote's pair and, while still
// holding that pair's lock, invokes detect with the pair's active quotes.
// detect may be nil. The callback must not re-enter the store for the same
// pair.
func (s *Store) Update(quote domain.PriceQuote, detect func(active []domain.PriceQuote)) {
	ps := s.pair(quote.Pair)

	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.quotes[quote.Venue] = quote
	if detect != nil {
		detect(s.activeLocked(ps, time.Now()))
	}
}

// Snapshot returns a copy of every quote for the pair, including stale ones.
// Stale quotes stay visible for display even though detection ignores them.
func (s *Store) Snapshot(pair string) []domain.PriceQuote {
	s.mu.RLock()
	ps, ok := s.pairs[pair]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	out := make([]domain.PriceQuote, 0, len(ps.quotes))
	for _, q := range ps.quotes {
		out = append(out, q)
	}
	sortQuotes(out)
	return out
}

// ActiveQuotes returns the pair's quotes that are within the staleness
// window.
func (s *Store) ActiveQuotes(pair string) []domain.PriceQuote {
	s.mu.RLock()
	ps, ok := s.pairs[pair]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	return s.activeLocked(ps, time.Now())
}

// Pairs returns the sorted list of pairs that have received at least one
// quote.
func (s *Store) Pairs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.pairs))
	for p := range s.pairs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// SnapshotAll returns a display snapshot of every tracked pair.
func (s *Store) SnapshotAll() map[string][]domain.PriceQuote {
	out := make(map[string][]domain.PriceQuote)
	for _, pair := range s.Pairs() {
		out[pair] = s.Snapshot(pair)
	}
	return out
}

// pair returns the state for a pair, creating it on first use.
func (s *Store) pair(pair string) *pairState {
	s.mu.RLock()
	ps, ok := s.pairs[pair]
	s.mu.RUnlock()
	if ok {
		return ps
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ps, ok = s.pairs[pair]; ok {
		return ps
	}
	ps = &pairState{quotes: make(map[string]domain.PriceQuote)}
	s.pairs[pair] = ps
	return ps
}

// activeLocked collects the pair's non-stale quotes. Caller holds ps.mu.
func (s *Store) activeLocked(ps *pairState, now time.Time) []domain.PriceQuote {
	cutoff := now.Add(-s.staleness)
	out := make([]domain.PriceQuote, 0, len(ps.quotes))
	for _, q := range ps.quotes {
		if q.ObservedAt.Before(cutoff) {
			continue
		}
		out = append(out, q)
	}
	sortQuotes(out)
	return out
}

func sortQuotes(quotes []domain.PriceQuote) {
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Venue < quotes[j].Venue
	})
}
