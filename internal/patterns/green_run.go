package patterns

import (
	"time"

	"setbull_trader/internal/config"
	"setbull_trader/internal/domain"
)

// maxGreenRunSanityVolume is the hard cumulative-volume sanity ceiling from
// §4.7.2 step 7 — unlike the topping-tail detector's configurable
// maxBarVolume, this one is a fixed constant.
const maxGreenRunSanityVolume = 50_000_000

// GreenRunInput bundles the inputs for the optional Green-Run-Reject
// detector (§4.7.2).
type GreenRunInput struct {
	Bars             []domain.Candle // last <=20 completed 5-min candles, chronological, target last
	Index            int
	HOD              float64
	CumulativeVolume int64
	Symbol           string
}

// GreenRunReject evaluates the ordered checks of §4.7.2.
func GreenRunReject(cfg config.GreenRunConfig, in GreenRunInput) *domain.Alert {
	if in.Index < 0 || in.Index >= len(in.Bars) {
		return nil
	}
	bar := in.Bars[in.Index]

	// 1. Bar is 5-min aligned.
	t := time.UnixMilli(bar.StartTS)
	if t.Minute()%5 != 0 || t.Second() != 0 {
		return nil
	}

	// 2. Target bar is red.
	if !bar.IsRed() {
		return nil
	}

	// 3. Look back up to 20 prior bars, counting consecutive green.
	count := 0
	var runStart, runHigh float64
	for i := in.Index - 1; i >= 0 && in.Index-i <= 20; i-- {
		prior := in.Bars[i]
		if !prior.IsGreen() {
			break
		}
		count++
		runStart = prior.Open
		if prior.High > runHigh {
			runHigh = prior.High
		}
	}
	// runStart above is set to the earliest green bar's open because the
	// loop walks backwards and keeps overwriting it until the run breaks.

	// 4. Run-length bounds.
	if count < cfg.MinConsecutiveGreen || count > cfg.MaxConsecutiveGreen {
		return nil
	}

	// 5. Run gain.
	if runStart == 0 {
		return nil
	}
	gain := (runHigh - runStart) / runStart * 100
	if gain < cfg.MinRunGainPct {
		return nil
	}

	// 6. Near HOD.
	if in.HOD == 0 {
		return nil
	}
	distance := (in.HOD - runHigh) / in.HOD * 100
	if distance > cfg.MaxDistanceFromHODPct {
		return nil
	}

	// 7. Volume sanity.
	if in.CumulativeVolume > maxGreenRunSanityVolume {
		return nil
	}

	return &domain.Alert{
		ID:     domain.NewAlertID(in.Symbol, bar.StartTS, in.Index, domain.AlertGreenRunReject),
		TS:     bar.StartTS,
		Symbol: in.Symbol,
		Type:   domain.AlertGreenRunReject,
		Detail: "green run rejected at HOD",
		Price:  bar.Close,
		Volume: in.CumulativeVolume,
	}
}
