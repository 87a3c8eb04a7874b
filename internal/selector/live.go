package selector

import (
	"context"
	"time"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/domain"
	"setbull_trader/internal/marketdata"
	"setbull_trader/pkg/log"
)

// selectLive implements §4.4 mode L (Live-Regular): one gainers snapshot,
// filtered by price/volume/gap, HOD from ComputeTrueHOD.
func selectLive(ctx context.Context, cfg *config.Config, clk *clock.Clock, client *marketdata.Client) ([]domain.WatchlistEntry, error) {
	tickers, err := client.GetGainersSnapshot(ctx)
	if err != nil {
		return fallbackToPreMarket(ctx, cfg, clk, client, err)
	}

	now := clk.Now()
	var out []domain.WatchlistEntry
	for _, t := range tickers {
		if !qualifies(t, cfg.Gap) {
			continue
		}
		hod, err := client.ComputeTrueHOD(ctx, t.Symbol, clock.TradingDate(now))
		if err != nil {
			log.ScannerWarn("selector", "live", "true HOD computation failed, skipping symbol", map[string]interface{}{"symbol": t.Symbol, "error": err.Error()})
			continue
		}
		out = append(out, domain.WatchlistEntry{
			Symbol:           t.Symbol,
			GapPercent:       t.TodaysChangePct,
			CurrentPrice:     t.LastPrice,
			PreviousClose:    t.PrevClose,
			CumulativeVolume: t.CumulativeAvgVolume,
			HOD:              hod,
			DiscoveredAt:     now,
		})
	}
	return out, nil
}

// fallbackToPreMarket runs mode P when the gainers snapshot fetch fails.
// An empty snapshot does not fall back; selectLive then returns no entries.
func fallbackToPreMarket(ctx context.Context, cfg *config.Config, clk *clock.Clock, client *marketdata.Client, cause error) ([]domain.WatchlistEntry, error) {
	log.ScannerWarn("selector", "live-fallback", "gainers snapshot unavailable, falling back to pre-market mode", map[string]interface{}{"error": cause.Error()})
	return selectPreMarket(ctx, cfg, clk, client)
}

// qualifies implements the live-mode filter: price window, minimum volume,
// minimum gap percent.
func qualifies(t marketdata.GainerTicker, gap config.GapConfig) bool {
	if t.LastPrice < gap.MinPrice || t.LastPrice > gap.MaxPrice {
		return false
	}
	if t.CumulativeAvgVolume < gap.MinCumulativeVolume {
		return false
	}
	if t.TodaysChangePct < gap.MinPct {
		return false
	}
	return true
}

// maxPreMarketCandidates bounds how many tickers the pre-market mode
// fetches minute bars for, per §4.4.
const maxPreMarketCandidates = 20

// selectPreMarket implements §4.4 mode P: price/gap-only prefilter on the
// snapshot, then a per-candidate minute-bar fetch to compute session-window
// cumulative volume and a pre-market-seeded HOD.
func selectPreMarket(ctx context.Context, cfg *config.Config, clk *clock.Clock, client *marketdata.Client) ([]domain.WatchlistEntry, error) {
	tickers, err := client.GetGainersSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []marketdata.GainerTicker
	for _, t := range tickers {
		if t.LastPrice < cfg.Gap.MinPrice || t.LastPrice > cfg.Gap.MaxPrice {
			continue
		}
		if t.TodaysChangePct < cfg.Gap.MinPct {
			continue
		}
		candidates = append(candidates, t)
		if len(candidates) >= maxPreMarketCandidates {
			break
		}
	}

	now := clk.Now()
	today := clock.TradingDate(now)
	win, err := cfg.SessionWindow()
	if err != nil {
		return nil, err
	}

	var out []domain.WatchlistEntry
	for _, t := range candidates {
		bars, err := client.GetMinuteAggs(ctx, t.Symbol, today)
		if err != nil {
			log.ScannerWarn("selector", "pre-market", "minute bar fetch failed, skipping symbol", map[string]interface{}{"symbol": t.Symbol, "error": err.Error()})
			continue
		}

		var volume int64
		var todayHigh float64
		for _, b := range bars {
			minutes := clock.ET(time.UnixMilli(b.StartTS)).MinutesSinceMidnight()
			if clock.IsWithinSessionMinutes(minutes, win) {
				volume += b.Volume
			}
			if b.High > todayHigh {
				todayHigh = b.High
			}
		}
		if volume < cfg.Gap.MinCumulativeVolume {
			continue
		}

		prevDay := marketdata.PreviousTradingDay(today)
		prevBars, err := client.GetMinuteAggs(ctx, t.Symbol, prevDay)
		var prevAfterHoursHigh float64
		if err == nil {
			for _, b := range prevBars {
				if clock.IsAfterHours(time.UnixMilli(b.StartTS)) && b.High > prevAfterHoursHigh {
					prevAfterHoursHigh = b.High
				}
			}
		}
		hod := prevAfterHoursHigh
		if todayHigh > hod {
			hod = todayHigh
		}

		out = append(out, domain.WatchlistEntry{
			Symbol:           t.Symbol,
			GapPercent:       t.TodaysChangePct,
			CurrentPrice:     t.LastPrice,
			PreviousClose:    t.PrevClose,
			CumulativeVolume: volume,
			HOD:              hod,
			DiscoveredAt:     now,
		})
	}
	return out, nil
}
