package ingestion

import (
	"sort"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/domain"
)

// buildFiveMinCandle synthesizes a 5-minute candle from the five 1-minute
// bars whose ET-minute falls in [periodStart, periodStart+5min), per §4.6.
// Returns false if fewer than 5 of those minute bars are present.
func buildFiveMinCandle(ring []domain.Candle, periodStart int64) (domain.Candle, bool) {
	periodEnd := periodStart + 5*60_000
	var bars []domain.Candle
	for _, b := range ring {
		if b.StartTS >= periodStart && b.StartTS < periodEnd {
			bars = append(bars, b)
		}
	}
	if len(bars) < 5 {
		return domain.Candle{}, false
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].StartTS < bars[j].StartTS })
	return foldCandles(bars, periodStart), true
}

// foldCandles combines chronologically-ordered 1-minute bars into a single
// OHLCV candle starting at startTS.
func foldCandles(bars []domain.Candle, startTS int64) domain.Candle {
	out := domain.Candle{
		StartTS: startTS,
		Open:    bars[0].Open,
		High:    bars[0].High,
		Low:     bars[0].Low,
		Close:   bars[len(bars)-1].Close,
	}
	for _, b := range bars {
		if b.High > out.High {
			out.High = b.High
		}
		if b.Low < out.Low {
			out.Low = b.Low
		}
		out.Volume += b.Volume
	}
	return out
}

// foldRingToFiveMin groups an entire minute ring into 5-minute candles,
// used as the pull path's "parallel set built by folding the minuteRing"
// (§4.6). Only fully-covered (5 bars present) periods are emitted.
func foldRingToFiveMin(ring []domain.Candle) []domain.Candle {
	byPeriod := make(map[int64][]domain.Candle)
	for _, b := range ring {
		p := clock.FiveMinPeriodStart(b.StartTS)
		byPeriod[p] = append(byPeriod[p], b)
	}
	out := make([]domain.Candle, 0, len(byPeriod))
	for period, bars := range byPeriod {
		if len(bars) < 5 {
			continue
		}
		sort.Slice(bars, func(i, j int) bool { return bars[i].StartTS < bars[j].StartTS })
		out = append(out, foldCandles(bars, period))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTS < out[j].StartTS })
	return out
}

// foldRingRelaxed is the §4.6 fallback: when aligned grouping can't
// produce enough 5-min bars, group 1-minute bars that lie within 10
// minutes of each other regardless of exact 5-minute alignment.
func foldRingRelaxed(ring []domain.Candle) []domain.Candle {
	if len(ring) == 0 {
		return nil
	}
	sorted := append([]domain.Candle(nil), ring...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTS < sorted[j].StartTS })

	var out []domain.Candle
	group := []domain.Candle{sorted[0]}
	for _, b := range sorted[1:] {
		if b.StartTS-group[len(group)-1].StartTS <= 10*60_000 {
			group = append(group, b)
		} else {
			out = append(out, foldCandles(group, group[0].StartTS))
			group = []domain.Candle{b}
		}
	}
	out = append(out, foldCandles(group, group[0].StartTS))
	return out
}

// mergeFiveMin merges pull-fetched bars with ring-folded bars by StartTS:
// pull fills in where the ring has no coverage, the ring wins where both
// have it because the ring is fresher (§4.6). The result is sorted
// chronologically and truncated to the last 20 bars.
func mergeFiveMin(pulled, foldedFromRing []domain.Candle) []domain.Candle {
	byTS := make(map[int64]domain.Candle, len(pulled)+len(foldedFromRing))
	for _, b := range pulled {
		byTS[b.StartTS] = b
	}
	for _, b := range foldedFromRing {
		byTS[b.StartTS] = b // ring overrides pull
	}
	out := make([]domain.Candle, 0, len(byTS))
	for _, b := range byTS {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTS < out[j].StartTS })
	if len(out) > 20 {
		out = out[len(out)-20:]
	}
	return out
}
