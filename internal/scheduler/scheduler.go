// Package scheduler implements the boundary-aligned Scheduler (C8): a
// single select-driven timer loop that fires exactly at 5-minute ET
// boundaries plus a configurable settle delay.
package scheduler

import (
	"context"
	"sync"
	"time"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/state"
	"setbull_trader/pkg/log"
)

// PullValidator is the subset of the Ingestion Engine the Scheduler drives
// on each boundary tick.
type PullValidator interface {
	PullValidate(ctx context.Context, symbol string)
}

// watchlistRefreshInterval is the minimum spacing between watchlist
// refreshes, per §4.8.
const watchlistRefreshInterval = 120 * time.Second

// Scheduler owns the single boundary-aligned timer loop described in §4.8.
// It holds no per-symbol state of its own; it only drives the Ingestion
// Engine and an Orchestrator-supplied refresh callback.
type Scheduler struct {
	clk        *clock.Clock
	cfgStore   *config.Store
	store      *state.Store
	engine     PullValidator
	refresh    func(ctx context.Context) error
	onSelfStop func()

	mu          sync.Mutex
	lastRefresh time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// New builds a Scheduler. refresh is invoked at most once per
// watchlistRefreshInterval to rebuild the watchlist via the Selector.
// onSelfStop, if non-nil, is invoked asynchronously when the loop stops
// itself because the session ended (§4.8) — it is never called when Stop
// is invoked externally.
func New(clk *clock.Clock, cfgStore *config.Store, store *state.Store, engine PullValidator, refresh func(ctx context.Context) error, onSelfStop func()) *Scheduler {
	return &Scheduler{clk: clk, cfgStore: cfgStore, store: store, engine: engine, refresh: refresh, onSelfStop: onSelfStop}
}

// Start launches the timer loop. It returns immediately; the loop runs
// until Stop is called, ctx is cancelled, or the session ends (§4.8's
// self-stop at now >= session.end).
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
}

// Stop halts the timer loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		delay := msUntilNextBoundary(s.clk.Now(), s.cfgStore.Get().Scanning.BackfillDelayAfterBoundaryMs)
		timer := time.NewTimer(time.Duration(delay) * time.Millisecond)

		select {
		case <-timer.C:
			if s.fire(ctx) {
				timer.Stop()
				s.mu.Lock()
				s.running = false
				cb := s.onSelfStop
				s.mu.Unlock()
				if cb != nil {
					go cb()
				}
				return
			}
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

// fire runs one boundary tick: conditional watchlist refresh, then
// pull-validation of every watched symbol. Returns true if the scheduler
// should self-stop (session ended).
func (s *Scheduler) fire(ctx context.Context) bool {
	now := s.clk.Now()
	cfg := s.cfgStore.Get()
	win, err := cfg.SessionWindow()
	if err != nil {
		log.ScannerError("scheduler", "fire", "invalid session window, rescheduling anyway", err, nil)
		return false
	}
	if clock.ET(now).MinutesSinceMidnight() >= win.EndMinute {
		log.ScannerInfo("scheduler", "fire", "session ended, self-stopping", nil)
		return true
	}

	s.mu.Lock()
	shouldRefresh := now.Sub(s.lastRefresh) >= watchlistRefreshInterval
	if shouldRefresh {
		s.lastRefresh = now
	}
	s.mu.Unlock()

	if shouldRefresh && s.refresh != nil {
		if err := s.refresh(ctx); err != nil {
			log.ScannerError("scheduler", "fire", "watchlist refresh failed, keeping previous watchlist", err, nil)
		}
	}

	for _, symbol := range s.store.Symbols() {
		s.engine.PullValidate(ctx, symbol)
	}
	return false
}

// msUntilNextBoundary implements §4.8's formula: time until the next
// 5-minute ET boundary plus delayAfterBoundaryMs, advancing by one full
// period if the raw result would fire too soon (<500ms) to be useful.
func msUntilNextBoundary(now time.Time, delayAfterBoundaryMs int) int64 {
	et := now.In(clock.Location)
	minute := et.Minute()
	second := et.Second()
	ms := et.Nanosecond() / 1_000_000

	delay := int64((5-minute%5)*60-second)*1000 - int64(ms) + int64(delayAfterBoundaryMs)
	if delay < 500 {
		delay += 5 * 60 * 1000
	}
	return delay
}
