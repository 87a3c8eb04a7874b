package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/marketdata"
)

func selectorAt(hour, minute int) *Selector {
	ts := time.Date(2024, 9, 25, hour, minute, 0, 0, clock.Location)
	clk := clock.New(&ts)
	return New(clk, &marketdata.Client{})
}

// TestResolveMode_PreMarket confirms pre-market ET hours resolve to mode P.
func TestResolveMode_PreMarket(t *testing.T) {
	s := selectorAt(8, 0) // 08:00 ET, before the 09:30 regular open
	assert.Equal(t, ModeLivePreMarket, s.ResolveMode(config.Default()))
}

// TestResolveMode_Regular confirms regular-session ET hours resolve to mode L.
func TestResolveMode_Regular(t *testing.T) {
	s := selectorAt(10, 0) // 10:00 ET, after the 09:30 open, within the 07:00-11:30 default session
	assert.Equal(t, ModeLiveRegular, s.ResolveMode(config.Default()))
}

// TestResolveMode_OutsideSession confirms hours outside the configured
// window (before the 07:00 session start, after the 11:30 session end)
// resolve to mode H.
func TestResolveMode_OutsideSession(t *testing.T) {
	before := selectorAt(5, 0)
	assert.Equal(t, ModeHistorical, before.ResolveMode(config.Default()))

	after := selectorAt(12, 0)
	assert.Equal(t, ModeHistorical, after.ResolveMode(config.Default()))
}

// TestResolveMode_Deterministic is part of P9: resolving the mode twice for
// the same overridden clock must agree.
func TestResolveMode_Deterministic(t *testing.T) {
	s := selectorAt(10, 0)
	cfg := config.Default()
	assert.Equal(t, s.ResolveMode(cfg), s.ResolveMode(cfg))
}

// TestQualifies_PriceAndVolumeAndGapGates exercises the live-mode filter in
// isolation from any network access.
func TestQualifies_PriceAndVolumeAndGapGates(t *testing.T) {
	gap := config.Default().Gap

	qualifying := marketdata.GainerTicker{LastPrice: 5, CumulativeAvgVolume: 600_000, TodaysChangePct: 15}
	assert.True(t, qualifies(qualifying, gap))

	tooCheap := marketdata.GainerTicker{LastPrice: 0.5, CumulativeAvgVolume: 600_000, TodaysChangePct: 15}
	assert.False(t, qualifies(tooCheap, gap))

	tooExpensive := marketdata.GainerTicker{LastPrice: 25, CumulativeAvgVolume: 600_000, TodaysChangePct: 15}
	assert.False(t, qualifies(tooExpensive, gap))

	thinVolume := marketdata.GainerTicker{LastPrice: 5, CumulativeAvgVolume: 100_000, TodaysChangePct: 15}
	assert.False(t, qualifies(thinVolume, gap))

	smallGap := marketdata.GainerTicker{LastPrice: 5, CumulativeAvgVolume: 600_000, TodaysChangePct: 2}
	assert.False(t, qualifies(smallGap, gap))
}
