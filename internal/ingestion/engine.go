// Package ingestion implements the dual-mode ingestion engine (C6): a
// push stream of 1-minute aggregates merged with a periodic pull of
// 5-minute aggregates, producing one coherent per-symbol bar series and
// invoking the Pattern Engine on every newly-completed 5-minute period.
package ingestion

import (
	"context"
	"time"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/dispatch"
	"setbull_trader/internal/domain"
	"setbull_trader/internal/marketdata"
	"setbull_trader/internal/patterns"
	"setbull_trader/internal/state"
	"setbull_trader/pkg/log"
)

// Engine wires the stream and pull sources into the Symbol State Store and
// the Pattern Engine. It holds no per-symbol locks itself — all mutation
// goes through state.Store, which serializes per symbol (§5).
type Engine struct {
	store      *state.Store
	cfgStore   *config.Store
	client     *marketdata.Client
	dispatcher *dispatch.Dispatcher
	clk        *clock.Clock // overridable "now" for historical replay/tests, per dev.overrideNow
}

// New builds an Engine bound to the given collaborators.
func New(store *state.Store, cfgStore *config.Store, client *marketdata.Client, dispatcher *dispatch.Dispatcher, clk *clock.Clock) *Engine {
	return &Engine{store: store, cfgStore: cfgStore, client: client, dispatcher: dispatcher, clk: clk}
}

// OnBar is the stream callback (§4.6 "Stream source"): appends the
// incoming 1-minute bar, and if it just completed a 5-minute period,
// synthesizes the candle and evaluates it immediately rather than waiting
// for the next period's first bar.
func (e *Engine) OnBar(ev marketdata.BarEvent) {
	if ev.EndTS-ev.StartTS != 60_000 {
		log.Warn("ingestion: dropping stream bar for %s with non-1-minute span [%d,%d)", ev.Symbol, ev.StartTS, ev.EndTS)
		return
	}
	bar := domain.Candle{StartTS: ev.StartTS, Open: ev.Open, High: ev.High, Low: ev.Low, Close: ev.Close, Volume: ev.Volume}
	if !bar.Valid() {
		log.Warn("ingestion: dropping invalid candle for %s at %d: OHLC invariant violated", ev.Symbol, ev.StartTS)
		return
	}

	result := e.store.AppendMinute(ev.Symbol, bar)
	if !result.Accepted || !result.PeriodJustClosed {
		return
	}

	st, ok := e.store.Get(ev.Symbol)
	if !ok {
		return
	}
	candle, ok := buildFiveMinCandle(st.MinuteRing, result.ClosedPeriodStart)
	if !ok {
		log.Debug("ingestion: period %d for %s closed without 5 one-minute bars yet, skipping", result.ClosedPeriodStart, ev.Symbol)
		return
	}
	e.processPeriod(ev.Symbol, candle)
}

// PullValidate implements the scheduler's belt-and-braces REST path
// (§4.6 "Pull source"): fetches 5-min bars, folds the minute ring in
// parallel, merges by StartTS, and evaluates any newly-complete periods.
func (e *Engine) PullValidate(ctx context.Context, symbol string) {
	st, ok := e.store.Get(symbol)
	if !ok {
		return
	}

	today := clock.TradingDate(e.clk.Now())
	from := today
	to := today.AddDate(0, 0, 1)

	pulled, err := e.client.Get5MinAggs(ctx, symbol, from, to)
	if err != nil {
		log.Warn("ingestion: pull validation fetch failed for %s: %v", symbol, err)
		pulled = nil
	}

	folded := foldRingToFiveMin(st.MinuteRing)
	if len(folded) < 5 && len(pulled) < 5 {
		folded = foldRingRelaxed(st.MinuteRing)
	}

	merged := mergeFiveMin(pulled, folded)
	for _, bar := range merged {
		if clock.FiveMinPeriodStart(bar.StartTS) != bar.StartTS {
			continue // misaligned timestamp: skip evaluation, don't emit (§7)
		}
		e.store.AppendFiveMin(symbol, bar)
		if bar.StartTS <= st.LastProcessed5MinStart {
			continue
		}
		e.processPeriod(symbol, bar)
	}
}

// Backfill implements §4.6's "backfill on add": when a symbol newly enters
// the watchlist mid-session, seed its minuteRing and cumulativeVolume from
// today's 1-minute bars (session window only) and set HOD to the true HOD
// spanning yesterday's after-hours plus all of today's bars, pre-session
// included. This makes the symbol's pattern evaluation correct from the
// very next bar instead of only after 120 live minutes accrue.
func (e *Engine) Backfill(ctx context.Context, symbol string, gapPercent, previousClose float64) error {
	today := clock.TradingDate(e.clk.Now())

	bars, err := e.client.GetMinuteAggs(ctx, symbol, today)
	if err != nil {
		return err
	}

	win, err := e.cfgStore.Get().SessionWindow()
	if err != nil {
		return err
	}

	st := &domain.SymbolState{
		Symbol:        symbol,
		GapPercent:    gapPercent,
		PreviousClose: previousClose,
	}
	for _, bar := range bars {
		minutes := clock.ET(time.UnixMilli(bar.StartTS)).MinutesSinceMidnight()
		if clock.IsWithinSessionMinutes(minutes, win) {
			st.MinuteRing = append(st.MinuteRing, bar)
			st.CumulativeVolume += bar.Volume
		}
	}
	if len(st.MinuteRing) > domain.MinuteRingCapacity {
		st.MinuteRing = st.MinuteRing[len(st.MinuteRing)-domain.MinuteRingCapacity:]
	}

	hod, err := e.client.ComputeTrueHOD(ctx, symbol, today)
	if err != nil {
		return err
	}
	st.HOD = hod

	e.store.Upsert(st)

	for _, bar := range foldRingToFiveMin(st.MinuteRing) {
		e.store.AppendFiveMin(symbol, bar)
	}
	log.ScannerInfo("ingestion", "backfill", "seeded symbol state from historical bars", map[string]interface{}{
		"symbol":           symbol,
		"minuteBars":       len(st.MinuteRing),
		"hod":              st.HOD,
		"cumulativeVolume": st.CumulativeVolume,
	})
	return nil
}

// processPeriod is the common tail of both ingestion paths: mark the
// period processed (at-most-once guard), fold it into the rolling 5-min
// history, and run both detectors.
func (e *Engine) processPeriod(symbol string, candle domain.Candle) {
	if !e.store.MarkProcessed(symbol, candle.StartTS) {
		return
	}
	e.store.AppendFiveMin(symbol, candle)

	st, ok := e.store.Get(symbol)
	if !ok || len(st.FiveMinRing) < 5 {
		return // insufficient bars for pattern detection (§4.11)
	}

	cfg := e.cfgStore.Get()
	session, err := cfg.SessionWindow()
	if err != nil {
		return
	}

	index := len(st.FiveMinRing) - 1
	for i, b := range st.FiveMinRing {
		if b.StartTS == candle.StartTS {
			index = i
			break
		}
	}

	ttInput := patterns.ToppingTailInput{
		Bars:                st.FiveMinRing,
		Index:               index,
		HOD:                 st.HOD,
		CumulativeVolume:    st.CumulativeVolume,
		MinCumulativeVolume: cfg.Gap.MinCumulativeVolume,
		GapPercent:          st.GapPercent,
		Symbol:              symbol,
	}
	if alert := patterns.ToppingTail5m(cfg.ToppingTail5m, session, ttInput); alert != nil {
		e.dispatcher.Fire(*alert)
	}

	if cfg.GreenRun.Enabled {
		grInput := patterns.GreenRunInput{
			Bars:             st.FiveMinRing,
			Index:            index,
			HOD:              st.HOD,
			CumulativeVolume: st.CumulativeVolume,
			Symbol:           symbol,
		}
		if alert := patterns.GreenRunReject(cfg.GreenRun, grInput); alert != nil {
			e.dispatcher.Fire(*alert)
		}
	}
}
