// Package selector implements the Watchlist Selector (C4): three
// dispatchable modes (Live-Regular, Live-Pre-market, Historical) chosen
// deterministically from Clock+Config, producing the gap-stock universe
// the rest of the scanner watches (§4.4).
package selector

import (
	"context"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/domain"
	"setbull_trader/internal/marketdata"
)

// Mode identifies which of the three Selector strategies ran.
type Mode string

const (
	ModeLiveRegular   Mode = "L"
	ModeLivePreMarket Mode = "P"
	ModeHistorical    Mode = "H"
)

// Selector wires a Clock and market-data Client together; Select is
// idempotent for a fixed clock override and cached provider responses (P9).
type Selector struct {
	clk    *clock.Clock
	client *marketdata.Client
}

// New builds a Selector bound to the given clock and client.
func New(clk *clock.Clock, client *marketdata.Client) *Selector {
	return &Selector{clk: clk, client: client}
}

// ResolveMode picks the dispatchable mode from the current ET time, per
// §4.4: regular session hours run mode L, pre-market hours run mode P,
// anything outside the session (including explicit historical replay)
// runs mode H.
func (s *Selector) ResolveMode(cfg *config.Config) Mode {
	now := s.clk.Now()
	et := clock.ET(now)
	minutes := et.MinutesSinceMidnight()

	win, err := cfg.SessionWindow()
	if err != nil || minutes < win.StartMinute-2 || minutes >= win.EndMinute {
		return ModeHistorical
	}
	if minutes >= clock.RegularStartMinute {
		return ModeLiveRegular
	}
	return ModeLivePreMarket
}

// Select runs the resolved mode and returns the qualifying watchlist. On
// catastrophic failure the caller (Orchestrator) is expected to keep the
// previous watchlist (§4.11) — Select itself just reports the error.
func (s *Selector) Select(ctx context.Context, cfg *config.Config) ([]domain.WatchlistEntry, Mode, error) {
	mode := s.ResolveMode(cfg)
	switch mode {
	case ModeLiveRegular:
		entries, err := selectLive(ctx, cfg, s.clk, s.client)
		return entries, mode, err
	case ModeLivePreMarket:
		entries, err := selectPreMarket(ctx, cfg, s.clk, s.client)
		return entries, mode, err
	default:
		entries, err := selectHistorical(ctx, cfg, clock.TradingDate(s.clk.Now()), s.client)
		return entries, mode, err
	}
}
