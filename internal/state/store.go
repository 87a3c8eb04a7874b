// Package state owns the Symbol State Store (C5): per-symbol mutable state,
// mutated only through Store so the stream path and the REST pull path
// never interleave writes to the same symbol (§5).
package state

import (
	"sync"
	"time"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/domain"
)

// entry pairs a SymbolState with the mutex that serializes its mutation.
type entry struct {
	mu    sync.Mutex
	state *domain.SymbolState
}

// Store is the process-wide (per-Scanner-instance, per §4.10/§5) map of
// live SymbolStates. The map itself is guarded by mapMu; each entry's own
// mutex guards the SymbolState it wraps, so concurrent symbols never
// contend with each other.
type Store struct {
	cfgStore *config.Store

	mapMu   sync.RWMutex
	symbols map[string]*entry
}

// New builds an empty Store.
func New(cfgStore *config.Store) *Store {
	return &Store{cfgStore: cfgStore, symbols: make(map[string]*entry)}
}

// Get returns a read-only clone of the symbol's state, or (nil, false) if
// the symbol isn't tracked.
func (s *Store) Get(symbol string) (*domain.SymbolState, bool) {
	s.mapMu.RLock()
	e, ok := s.symbols[symbol]
	s.mapMu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), true
}

// Upsert installs or replaces a symbol's state wholesale — used when a
// symbol enters the watchlist and is backfilled.
func (s *Store) Upsert(state *domain.SymbolState) {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	s.symbols[state.Symbol] = &entry{state: state}
}

// Remove tears down a symbol's state — used when it drops off the
// watchlist or the scanner stops.
func (s *Store) Remove(symbol string) {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	delete(s.symbols, symbol)
}

// Snapshot returns a clone of every tracked symbol's state.
func (s *Store) Snapshot() map[string]*domain.SymbolState {
	s.mapMu.RLock()
	entries := make([]*entry, 0, len(s.symbols))
	symbols := make([]string, 0, len(s.symbols))
	for sym, e := range s.symbols {
		entries = append(entries, e)
		symbols = append(symbols, sym)
	}
	s.mapMu.RUnlock()

	out := make(map[string]*domain.SymbolState, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		out[symbols[i]] = e.state.Clone()
		e.mu.Unlock()
	}
	return out
}

// Symbols returns the currently tracked symbol names.
func (s *Store) Symbols() []string {
	s.mapMu.RLock()
	defer s.mapMu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// AppendResult reports what AppendMinute observed, so the ingestion engine
// knows whether to synthesize and evaluate a 5-minute candle.
type AppendResult struct {
	Accepted          bool
	PeriodJustClosed  bool
	ClosedPeriodStart int64
}

// AppendMinute implements §4.5's mutator contract: maintains I1 (strict
// monotonic ring order, duplicates/out-of-order bars discarded), I2 (HOD
// non-decreasing), increments cumulative volume when the bar's ET start is
// within the session window, trims the ring to domain.MinuteRingCapacity,
// and reports whether this bar just completed a 5-minute period.
func (s *Store) AppendMinute(symbol string, bar domain.Candle) AppendResult {
	s.mapMu.RLock()
	e, ok := s.symbols[symbol]
	s.mapMu.RUnlock()
	if !ok {
		return AppendResult{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state

	if n := len(st.MinuteRing); n > 0 && bar.StartTS <= st.MinuteRing[n-1].StartTS {
		return AppendResult{} // duplicate or out-of-order: discard (§5)
	}

	st.MinuteRing = append(st.MinuteRing, bar)
	if len(st.MinuteRing) > domain.MinuteRingCapacity {
		st.MinuteRing = st.MinuteRing[len(st.MinuteRing)-domain.MinuteRingCapacity:]
	}

	if bar.High > st.HOD {
		st.HOD = bar.High
	}

	win, _ := s.cfgStore.Get().SessionWindow()
	barMinutes := clock.ET(time.UnixMilli(bar.StartTS)).MinutesSinceMidnight()
	inSession := clock.IsWithinSessionMinutes(barMinutes, win)
	if inSession {
		st.CumulativeVolume += bar.Volume
	}

	result := AppendResult{Accepted: true}
	if clock.MinuteOfPeriod(bar.StartTS) == 4 {
		periodStart := clock.FiveMinPeriodStart(bar.StartTS)
		if periodStart > st.LastProcessed5MinStart {
			result.PeriodJustClosed = true
			result.ClosedPeriodStart = periodStart
		}
	}
	return result
}

// MarkProcessed advances lastProcessed5MinStart (I4: monotonically
// non-decreasing), guarding "period processed at most once" (§4.6, P5).
func (s *Store) MarkProcessed(symbol string, periodStart int64) bool {
	s.mapMu.RLock()
	e, ok := s.symbols[symbol]
	s.mapMu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if periodStart <= e.state.LastProcessed5MinStart {
		return false
	}
	e.state.LastProcessed5MinStart = periodStart
	return true
}

// AppendFiveMin folds a completed 5-min candle into the rolling history,
// deduped by StartTS, keeping the last 20 as §4.6 specifies.
func (s *Store) AppendFiveMin(symbol string, bar domain.Candle) {
	s.mapMu.RLock()
	e, ok := s.symbols[symbol]
	s.mapMu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ring := e.state.FiveMinRing
	for i, existing := range ring {
		if existing.StartTS == bar.StartTS {
			ring[i] = bar // a later write for the same StartTS replaces the earlier one
			return
		}
	}
	ring = append(ring, bar)
	sortByStartTS(ring)
	if len(ring) > 20 {
		ring = ring[len(ring)-20:]
	}
	e.state.FiveMinRing = ring
}

func sortByStartTS(bars []domain.Candle) {
	for i := 1; i < len(bars); i++ {
		for j := i; j > 0 && bars[j].StartTS < bars[j-1].StartTS; j-- {
			bars[j], bars[j-1] = bars[j-1], bars[j]
		}
	}
}
