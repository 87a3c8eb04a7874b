// Package patterns implements the stateless pattern detectors of §4.7.
// Every detector here is pure: no mutation of its inputs, no I/O, and no
// suspension — the ingestion engine and scheduler own all state and I/O.
package patterns

import (
	"math"
	"time"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/domain"
)

// ToppingTailInput bundles everything the detector needs to evaluate one
// target bar, per §4.7.1.
type ToppingTailInput struct {
	Bars                []domain.Candle // last <=20 completed 5-min candles, chronological
	Index               int             // target bar within Bars
	HOD                 float64         // true HOD as of the target bar's close (inclusive of its own high)
	CumulativeVolume    int64
	MinCumulativeVolume int64 // gap.minCumulativeVolume — the volume gate threshold
	GapPercent          float64
	Symbol              string
}

// ToppingTail5m evaluates the ordered checks of §4.7.1 and returns an
// Alert on a full pass, or nil on the first failing gate.
func ToppingTail5m(cfg config.ToppingTail5mConfig, session clock.SessionWindow, in ToppingTailInput) *domain.Alert {
	if in.Index < 0 || in.Index >= len(in.Bars) {
		return nil
	}
	bar := in.Bars[in.Index]

	// 1. Session gate.
	et := clock.ET(time.UnixMilli(bar.StartTS))
	if !clock.IsWithinSessionMinutes(et.MinutesSinceMidnight(), session) {
		return nil
	}

	// 2. Volume gate.
	if in.CumulativeVolume < in.MinCumulativeVolume {
		return nil
	}

	// 3. HOD proximity.
	if cfg.RequireStrictHODBreak {
		if bar.High < in.HOD {
			return nil
		}
	} else {
		if in.HOD == 0 {
			return nil
		}
		highDist := math.Abs(in.HOD-bar.High) / in.HOD * 100
		closeDist := (in.HOD - bar.Close) / in.HOD * 100
		if highDist > cfg.MaxHighDistancePct || closeDist > cfg.MaxCloseDistancePct {
			return nil
		}
	}

	// 4. Color.
	if cfg.MustCloseRed && !bar.IsRed() {
		return nil
	}

	// 5. Upper-shadow test.
	rng := bar.Range()
	if rng <= 0 {
		return nil
	}
	body := bar.Body()
	upperShadow := bar.UpperShadow()
	var ratio float64
	if body == 0 {
		ratio = math.Inf(1)
	} else {
		ratio = upperShadow / body
	}
	if ratio < cfg.MinShadowToBodyRatio {
		return nil
	}

	// 6. Close-position.
	closePct := (bar.High - bar.Close) / rng * 100
	if closePct < cfg.MinClosePercent {
		return nil
	}

	// 7. Per-bar volume / sanity guard.
	if bar.Volume < cfg.MinBarVolume {
		return nil
	}
	if in.CumulativeVolume > cfg.MaxBarVolume {
		return nil
	}

	hod := in.HOD
	gap := in.GapPercent
	return &domain.Alert{
		ID:         domain.NewAlertID(in.Symbol, bar.StartTS, in.Index, domain.AlertToppingTail5m),
		TS:         bar.StartTS,
		Symbol:     in.Symbol,
		Type:       domain.AlertToppingTail5m,
		Detail:     "topping tail at true HOD",
		Price:      bar.Close,
		Volume:     in.CumulativeVolume,
		GapPercent: &gap,
		HOD:        &hod,
	}
}
