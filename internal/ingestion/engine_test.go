package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/dispatch"
	"setbull_trader/internal/domain"
	"setbull_trader/internal/marketdata"
	"setbull_trader/internal/state"
)

func newTestEngine(t *testing.T) (*Engine, *dispatch.Dispatcher, *state.Store) {
	cfgStore := config.NewStore(config.Default())
	store := state.New(cfgStore)
	dispatcher := dispatch.New()
	clk := clock.New(nil)
	return New(store, cfgStore, &marketdata.Client{}, dispatcher, clk), dispatcher, store
}

func minuteEvent(symbol string, hour, minute int, o, h, l, c float64, v int64) marketdata.BarEvent {
	start := time.Date(2024, 9, 25, hour, minute, 0, 0, clock.Location)
	return marketdata.BarEvent{
		Symbol: symbol, StartTS: start.UnixMilli(), EndTS: start.Add(time.Minute).UnixMilli(),
		Open: o, High: h, Low: l, Close: c, Volume: v,
	}
}

// TestOnBar_FiresToppingTailOnPeriodClose feeds five 5-minute periods (25
// one-minute bars) where only the final bar carries a topping-tail shape at
// a new HOD, and asserts the alert fires exactly on period close.
func TestOnBar_FiresToppingTailOnPeriodClose(t *testing.T) {
	engine, dispatcher, store := newTestEngine(t)
	symbol := "TEST"
	store.Upsert(&domain.SymbolState{Symbol: symbol, GapPercent: 25, PreviousClose: 2.00})

	var fired []domain.Alert
	dispatcher.Subscribe(func(a domain.Alert) error {
		fired = append(fired, a)
		return nil
	})

	hour, minute := 7, 0
	// Four benign periods: small flat green bars, no shadow, building volume.
	for period := 0; period < 4; period++ {
		for i := 0; i < 5; i++ {
			engine.OnBar(minuteEvent(symbol, hour, minute, 4.50, 4.55, 4.49, 4.52, 21_000))
			minute++
			if minute == 60 {
				minute = 0
				hour++
			}
		}
	}
	assert.Empty(t, fired, "no alert should fire before the target bar")

	// Fifth period: four flat bars opening the candle near 4.90, then one
	// bar breaking HOD with a long upper shadow.
	for i := 0; i < 4; i++ {
		engine.OnBar(minuteEvent(symbol, hour, minute, 4.90, 4.95, 4.88, 4.90, 21_000))
		minute++
		if minute == 60 {
			minute = 0
			hour++
		}
	}
	// The synthesized 5-min candle is o=4.90 h=5.25 l=4.88 c=4.92: range
	// 0.37, body 0.02, upper shadow 0.33 (ratio 16.5), close about 89% of
	// the range below the high, and its high sets the new HOD.
	engine.OnBar(minuteEvent(symbol, hour, minute, 4.90, 5.25, 4.88, 4.92, 5_000))

	assert.Len(t, fired, 1, "exactly one alert should fire on the closing bar")
	if len(fired) == 1 {
		assert.Equal(t, domain.AlertToppingTail5m, fired[0].Type)
		assert.Equal(t, symbol, fired[0].Symbol)
		assert.InDelta(t, 4.92, fired[0].Price, 0.0001)
	}
}

// TestOnBar_DropsNonOneMinuteSpan exercises §4.6's span guard: a stream bar
// whose [start,end) isn't exactly one minute wide is discarded, never
// reaching the state store.
func TestOnBar_DropsNonOneMinuteSpan(t *testing.T) {
	engine, _, store := newTestEngine(t)
	symbol := "TEST"
	store.Upsert(&domain.SymbolState{Symbol: symbol})

	ev := minuteEvent(symbol, 7, 0, 4.5, 4.6, 4.4, 4.55, 1000)
	ev.EndTS = ev.StartTS + 2*60_000 // two minutes, not one

	engine.OnBar(ev)

	st, _ := store.Get(symbol)
	assert.Empty(t, st.MinuteRing, "malformed-span bar must never be appended")
}

// TestOnBar_DropsInvalidOHLC exercises the candle validity gate: a bar
// whose OHLC invariant is violated (high below open/close) never reaches
// the store.
func TestOnBar_DropsInvalidOHLC(t *testing.T) {
	engine, _, store := newTestEngine(t)
	symbol := "TEST"
	store.Upsert(&domain.SymbolState{Symbol: symbol})

	ev := minuteEvent(symbol, 7, 0, 4.5, 4.0, 4.4, 4.55, 1000) // high < open
	engine.OnBar(ev)

	st, _ := store.Get(symbol)
	assert.Empty(t, st.MinuteRing)
}

// TestOnBar_IgnoresUnknownSymbol mirrors state.Store.AppendMinute's
// contract: a bar for a symbol never Upsert-ed (e.g. dropped from the
// watchlist mid-flight) is silently ignored rather than panicking.
func TestOnBar_IgnoresUnknownSymbol(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	assert.NotPanics(t, func() {
		engine.OnBar(minuteEvent("GHOST", 7, 0, 4.5, 4.6, 4.4, 4.55, 1000))
	})
}

// TestProcessPeriod_AtMostOnceGuard feeds the same period-closing bar twice
// through OnBar (simulating a duplicate stream delivery) and asserts the
// detector only evaluates it once.
func TestProcessPeriod_AtMostOnceGuard(t *testing.T) {
	engine, dispatcher, store := newTestEngine(t)
	symbol := "TEST"
	store.Upsert(&domain.SymbolState{Symbol: symbol, GapPercent: 25, PreviousClose: 2.00})

	var fireCount int
	dispatcher.Subscribe(func(a domain.Alert) error {
		fireCount++
		return nil
	})

	hour, minute := 7, 0
	for period := 0; period < 5; period++ {
		for i := 0; i < 5; i++ {
			if period == 4 && i == 4 {
				engine.OnBar(minuteEvent(symbol, hour, minute, 4.90, 5.25, 4.88, 4.92, 5_000))
			} else if period == 4 {
				engine.OnBar(minuteEvent(symbol, hour, minute, 4.90, 4.95, 4.88, 4.90, 21_000))
			} else {
				engine.OnBar(minuteEvent(symbol, hour, minute, 4.50, 4.55, 4.49, 4.52, 21_000))
			}
			minute++
			if minute == 60 {
				minute = 0
				hour++
			}
		}
	}
	assert.Equal(t, 1, fireCount, "first delivery should fire")

	// MarkProcessed should refuse a second processPeriod for the same
	// period start even if AppendMinute somehow saw it again; simulate by
	// calling processPeriod directly with the same candle.
	st, ok := store.Get(symbol)
	assert.True(t, ok)
	last := st.FiveMinRing[len(st.FiveMinRing)-1]
	engine.processPeriod(symbol, last)

	assert.Equal(t, 1, fireCount, "re-processing the same period must not re-fire")
}
