// Package orchestrator implements the Orchestrator (C10): the scanner's
// single lifecycle state machine, wiring the Selector, Symbol State Store,
// Ingestion Engine, Stream, Scheduler, and Alert Dispatcher together.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/dispatch"
	"setbull_trader/internal/domain"
	"setbull_trader/internal/ingestion"
	"setbull_trader/internal/marketdata"
	"setbull_trader/internal/scheduler"
	"setbull_trader/internal/selector"
	"setbull_trader/internal/state"
	"setbull_trader/pkg/apperrors"
	"setbull_trader/pkg/log"
)

// Status is the Orchestrator's global lifecycle state (§4.10).
type Status string

const (
	StatusIdle     Status = "Idle"
	StatusStarting Status = "Starting"
	StatusRunning  Status = "Running"
	StatusStopping Status = "Stopping"
)

// Orchestrator owns the Idle -> Starting -> Running -> Stopping -> Idle
// state machine and every collaborator's wiring.
type Orchestrator struct {
	cfgStore   *config.Store
	store      *state.Store
	client     *marketdata.Client
	dispatcher *dispatch.Dispatcher
	sel        *selector.Selector
	engine     *ingestion.Engine
	sched      *scheduler.Scheduler
	stream     *marketdata.Stream
	clk        *clock.Clock

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc

	watchlist atomic.Pointer[[]domain.WatchlistEntry]
}

// New wires every collaborator from a config store, a clock, and a
// market-data client. The stream and scheduler are constructed lazily on
// Start so a fresh one is built per run.
func New(cfgStore *config.Store, clk *clock.Clock, client *marketdata.Client) *Orchestrator {
	store := state.New(cfgStore)
	dispatcher := dispatch.New()
	sel := selector.New(clk, client)
	engine := ingestion.New(store, cfgStore, client, dispatcher, clk)

	o := &Orchestrator{
		cfgStore:   cfgStore,
		store:      store,
		client:     client,
		dispatcher: dispatcher,
		sel:        sel,
		engine:     engine,
		clk:        clk,
		status:     StatusIdle,
	}
	empty := []domain.WatchlistEntry{}
	o.watchlist.Store(&empty)
	return o
}

// Start implements §4.10's start(): validate config, run the Selector
// once, backfill every resulting symbol, open the stream, and start the
// Scheduler.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.status != StatusIdle {
		o.mu.Unlock()
		return apperrors.NewConfigError("orchestrator already started", nil)
	}
	o.status = StatusStarting
	o.mu.Unlock()

	cfg := o.cfgStore.Get()
	if err := cfg.Validate(); err != nil {
		o.setStatus(StatusIdle)
		return apperrors.NewConfigError("invalid configuration at startup", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	if err := o.refreshWatchlist(runCtx); err != nil {
		log.ScannerError("orchestrator", "start", "initial watchlist build failed", err, nil)
	}

	symbols := o.store.Symbols()
	o.stream = marketdata.NewStream(cfg.MarketData.StreamURL, cfg.MarketData.APIKey)
	if err := o.stream.Open(runCtx, symbols, o.engine.OnBar, o.onStreamStatus); err != nil {
		cancel()
		o.setStatus(StatusIdle)
		return err
	}

	o.sched = scheduler.New(o.clk, o.cfgStore, o.store, o.engine, o.refreshWatchlist, o.onSessionEnd)
	o.sched.Start(runCtx)

	o.setStatus(StatusRunning)
	log.ScannerInfo("orchestrator", "start", "scanner started", map[string]interface{}{"symbols": len(symbols)})
	return nil
}

// Stop implements §4.10's stop(): cancel the refresh loop, close the
// stream, stop the Scheduler, and drop every SymbolState.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.status != StatusRunning {
		o.mu.Unlock()
		return
	}
	o.status = StatusStopping
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if o.sched != nil {
		o.sched.Stop()
	}
	if o.stream != nil {
		_ = o.stream.Close()
	}
	for _, sym := range o.store.Symbols() {
		o.store.Remove(sym)
	}

	o.setStatus(StatusIdle)
	log.ScannerInfo("orchestrator", "stop", "scanner stopped", nil)
}

// UpdateConfig implements §4.10's updateConfig(partial): merge, re-validate,
// and clear the Dispatcher's dedupe ids since new filters may reclassify
// prior bars. Cached provider responses are not cleared; they stay until
// their cache TTL expires.
func (o *Orchestrator) UpdateConfig(partial func(*config.Config)) error {
	current := o.cfgStore.Get()
	next := current.Merge(partial)
	if err := next.Validate(); err != nil {
		return apperrors.NewConfigError("rejected config update", err)
	}
	o.cfgStore.Replace(next)
	o.dispatcher.Clear()
	log.ScannerInfo("orchestrator", "updateConfig", "configuration replaced, dedupe set cleared", nil)
	return nil
}

// Watchlist returns the current watchlist snapshot (downstream subscriber
// API's watchlist()).
func (o *Orchestrator) Watchlist() []domain.WatchlistEntry {
	p := o.watchlist.Load()
	if p == nil {
		return nil
	}
	return append([]domain.WatchlistEntry(nil), (*p)...)
}

// SymbolData implements the downstream subscriber API's symbolData():
// lightweight per-symbol quotes with a synthesized bid/ask spread.
func (o *Orchestrator) SymbolData() []domain.SymbolMetrics {
	cfg := o.cfgStore.Get()
	spread := cfg.Scanning.BidAskSpread
	snapshot := o.store.Snapshot()

	out := make([]domain.SymbolMetrics, 0, len(snapshot))
	for symbol, st := range snapshot {
		var lastPrice float64
		if n := len(st.MinuteRing); n > 0 {
			lastPrice = st.MinuteRing[n-1].Close
		}
		out = append(out, domain.SymbolMetrics{
			Symbol:     symbol,
			LastPrice:  lastPrice,
			GapPercent: st.GapPercent,
			Volume:     st.CumulativeVolume,
			HOD:        st.HOD,
			Bid:        lastPrice - spread,
			Ask:        lastPrice + spread,
		})
	}
	return out
}

// SubscribeAlerts implements the downstream subscriber API's
// subscribeAlerts(cb).
func (o *Orchestrator) SubscribeAlerts(cb func(domain.Alert) error) (unsubscribe func()) {
	return o.dispatcher.Subscribe(cb)
}

// SetAuditSink installs the optional best-effort alert-audit persistence
// subscriber alongside real subscribers (§4.9's audit sink, never on the
// hot detection path).
func (o *Orchestrator) SetAuditSink(fn dispatch.Subscriber) {
	o.dispatcher.SetAuditSink(fn)
}

// Status reports the current lifecycle state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	o.status = s
	o.mu.Unlock()
}

// refreshWatchlist runs the Selector, diffs the result against the
// currently-tracked symbols, backfills newcomers, removes dropped symbols,
// and replaces the watchlist atomically as a whole (§5). On selector
// failure the previous watchlist is kept (§4.11).
func (o *Orchestrator) refreshWatchlist(ctx context.Context) error {
	cfg := o.cfgStore.Get()
	entries, mode, err := o.sel.Select(ctx, cfg)
	if err != nil {
		log.ScannerError("orchestrator", "refreshWatchlist", "selector failed, keeping previous watchlist", err, map[string]interface{}{"mode": string(mode)})
		return err
	}

	next := make(map[string]domain.WatchlistEntry, len(entries))
	for _, e := range entries {
		next[e.Symbol] = e
	}

	existing := o.store.Symbols()
	existingSet := make(map[string]bool, len(existing))
	for _, sym := range existing {
		existingSet[sym] = true
	}

	for symbol, entry := range next {
		if existingSet[symbol] {
			continue
		}
		if err := o.engine.Backfill(ctx, symbol, entry.GapPercent, entry.PreviousClose); err != nil {
			log.ScannerWarn("orchestrator", "refreshWatchlist", "backfill failed, skipping newly-discovered symbol", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			continue
		}
		if o.stream != nil {
			if err := o.stream.Subscribe([]string{symbol}); err != nil {
				log.ScannerWarn("orchestrator", "refreshWatchlist", "stream subscribe failed for new symbol", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			}
		}
	}
	for _, symbol := range existing {
		if _, ok := next[symbol]; ok {
			continue
		}
		o.store.Remove(symbol)
		if o.stream != nil {
			_ = o.stream.Unsubscribe([]string{symbol})
		}
	}

	snapshot := append([]domain.WatchlistEntry(nil), entries...)
	o.watchlist.Store(&snapshot)

	log.ScannerInfo("orchestrator", "refreshWatchlist", "watchlist refreshed", map[string]interface{}{"mode": string(mode), "count": len(entries)})
	return nil
}

// onSessionEnd is the Scheduler's self-stop callback (§4.8/§4.10): when the
// timer loop stops itself because the session window closed, the
// Orchestrator must still transition Running -> Stopping -> Idle, close the
// stream, and drop every SymbolState, exactly as an external Stop() would.
func (o *Orchestrator) onSessionEnd() {
	log.ScannerInfo("orchestrator", "onSessionEnd", "session ended, stopping scanner", nil)
	o.Stop()
}

func (o *Orchestrator) onStreamStatus(ev marketdata.StatusEvent) {
	log.WebSocketInfo("status", ev.Message, map[string]interface{}{"status": ev.Status})
}
