package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	cfg := config.Default()
	return New(config.NewStore(cfg))
}

func minuteAt(hour, minute int, o, h, l, c float64, v int64) domain.Candle {
	ts := time.Date(2024, 9, 25, hour, minute, 0, 0, clock.Location).UnixMilli()
	return domain.Candle{StartTS: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

// TestAppendMinute_DiscardsOutOfOrder is P1: strictly increasing ring order,
// duplicates/out-of-order bars are discarded rather than breaking the ring.
func TestAppendMinute_DiscardsOutOfOrder(t *testing.T) {
	s := newTestStore(t)
	s.Upsert(&domain.SymbolState{Symbol: "SYM"})

	r1 := s.AppendMinute("SYM", minuteAt(7, 0, 5, 5.1, 4.9, 5.0, 1000))
	assert.True(t, r1.Accepted)

	r2 := s.AppendMinute("SYM", minuteAt(7, 0, 5, 5.1, 4.9, 5.0, 1000)) // duplicate ts
	assert.False(t, r2.Accepted)

	st, _ := s.Get("SYM")
	assert.Len(t, st.MinuteRing, 1)
}

// TestAppendMinute_HODMonotonic is P2: HOD only ever increases.
func TestAppendMinute_HODMonotonic(t *testing.T) {
	s := newTestStore(t)
	s.Upsert(&domain.SymbolState{Symbol: "SYM"})

	s.AppendMinute("SYM", minuteAt(7, 0, 5.0, 5.20, 4.9, 5.1, 1000))
	s.AppendMinute("SYM", minuteAt(7, 1, 5.1, 5.05, 5.0, 5.02, 1000)) // lower high

	st, _ := s.Get("SYM")
	assert.InDelta(t, 5.20, st.HOD, 1e-9)
}

// TestAppendMinute_CumulativeVolumeSessionGate is P3: cumulative volume only
// accrues for bars within the configured session window.
func TestAppendMinute_CumulativeVolumeSessionGate(t *testing.T) {
	s := newTestStore(t)
	s.Upsert(&domain.SymbolState{Symbol: "SYM"})

	s.AppendMinute("SYM", minuteAt(7, 0, 5, 5.1, 4.9, 5.0, 1000))  // inside 07:00-11:30
	s.AppendMinute("SYM", minuteAt(12, 0, 5, 5.1, 4.9, 5.0, 5000)) // outside session

	st, _ := s.Get("SYM")
	assert.Equal(t, int64(1000), st.CumulativeVolume)
}

// TestAppendMinute_RingCapacity confirms the minute ring is trimmed to
// domain.MinuteRingCapacity, keeping only the most recent bars.
func TestAppendMinute_RingCapacity(t *testing.T) {
	s := newTestStore(t)
	s.Upsert(&domain.SymbolState{Symbol: "SYM"})

	base := time.Date(2024, 9, 25, 7, 0, 0, 0, clock.Location)
	for i := 0; i < domain.MinuteRingCapacity+10; i++ {
		ts := base.Add(time.Duration(i) * time.Minute).UnixMilli()
		s.AppendMinute("SYM", domain.Candle{StartTS: ts, Open: 5, High: 5, Low: 5, Close: 5, Volume: 1})
	}

	st, _ := s.Get("SYM")
	assert.Len(t, st.MinuteRing, domain.MinuteRingCapacity)
	assert.Equal(t, base.Add(10*time.Minute).UnixMilli(), st.MinuteRing[0].StartTS)
}

// TestMarkProcessed_OnceGuarantee is P5: a 5-min period is marked processed
// at most once; a repeat or stale periodStart is rejected.
func TestMarkProcessed_OnceGuarantee(t *testing.T) {
	s := newTestStore(t)
	s.Upsert(&domain.SymbolState{Symbol: "SYM"})

	p1 := time.Date(2024, 9, 25, 7, 0, 0, 0, clock.Location).UnixMilli()
	p2 := time.Date(2024, 9, 25, 7, 5, 0, 0, clock.Location).UnixMilli()

	assert.True(t, s.MarkProcessed("SYM", p1))
	assert.False(t, s.MarkProcessed("SYM", p1), "re-marking the same period must be rejected")
	assert.True(t, s.MarkProcessed("SYM", p2))
	assert.False(t, s.MarkProcessed("SYM", p1), "marking an earlier period after a later one must be rejected")
}

// TestAppendFiveMin_MergeAndCap is P4: the 5-min ring dedupes by StartTS
// (fresher write wins) and is capped at the last 20, sorted chronologically.
func TestAppendFiveMin_MergeAndCap(t *testing.T) {
	s := newTestStore(t)
	s.Upsert(&domain.SymbolState{Symbol: "SYM"})

	base := time.Date(2024, 9, 25, 7, 0, 0, 0, clock.Location)
	for i := 0; i < 25; i++ {
		ts := base.Add(time.Duration(i*5) * time.Minute).UnixMilli()
		s.AppendFiveMin("SYM", domain.Candle{StartTS: ts, Open: 5, High: 5, Low: 5, Close: 5, Volume: int64(i)})
	}

	// Re-push an existing StartTS with a fresher value; it must override, not duplicate.
	overrideTS := base.Add(24 * 5 * time.Minute).UnixMilli()
	s.AppendFiveMin("SYM", domain.Candle{StartTS: overrideTS, Open: 5, High: 5, Low: 5, Close: 5, Volume: 999})

	st, _ := s.Get("SYM")
	assert.Len(t, st.FiveMinRing, 20)
	for i := 1; i < len(st.FiveMinRing); i++ {
		assert.Less(t, st.FiveMinRing[i-1].StartTS, st.FiveMinRing[i].StartTS)
	}
	last := st.FiveMinRing[len(st.FiveMinRing)-1]
	assert.Equal(t, overrideTS, last.StartTS)
	assert.Equal(t, int64(999), last.Volume)
}

// TestGet_ReturnsClone confirms mutating a snapshot returned by Get never
// corrupts the Store's internal state.
func TestGet_ReturnsClone(t *testing.T) {
	s := newTestStore(t)
	s.Upsert(&domain.SymbolState{Symbol: "SYM", HOD: 5.0})

	st, _ := s.Get("SYM")
	st.HOD = 999

	again, _ := s.Get("SYM")
	assert.InDelta(t, 5.0, again.HOD, 1e-9)
}
