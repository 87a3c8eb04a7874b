package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"setbull_trader/internal/config"
	"setbull_trader/internal/domain"
)

// TestGreenRunReject_S5 is spec scenario S5: four consecutive green 5-min
// bars running up near the HOD, rejected by a red bar.
func TestGreenRunReject_S5(t *testing.T) {
	cfg := config.Default().GreenRun

	bars := []domain.Candle{
		{StartTS: etBarAt(7, 0).StartTS, Open: 4.80, High: 4.85, Low: 4.80, Close: 4.85, Volume: 5000},
		{StartTS: etBarAt(7, 5).StartTS, Open: 4.85, High: 4.90, Low: 4.85, Close: 4.90, Volume: 5000},
		{StartTS: etBarAt(7, 10).StartTS, Open: 4.90, High: 4.95, Low: 4.90, Close: 4.95, Volume: 5000},
		{StartTS: etBarAt(7, 15).StartTS, Open: 4.95, High: 5.00, Low: 4.95, Close: 5.00, Volume: 5000},
		{StartTS: etBarAt(7, 20).StartTS, Open: 5.00, High: 5.00, Low: 4.90, Close: 4.92, Volume: 5000},
	}

	in := GreenRunInput{
		Bars: bars, Index: len(bars) - 1,
		HOD: 5.00, CumulativeVolume: 700000, Symbol: "SYM",
	}

	alert := GreenRunReject(cfg, in)
	if assert.NotNil(t, alert) {
		assert.Equal(t, domain.AlertGreenRunReject, alert.Type)
		assert.InDelta(t, 4.92, alert.Price, 1e-9)
	}
}

// TestGreenRunReject_RunTooShort confirms a run shorter than
// MinConsecutiveGreen never alerts.
func TestGreenRunReject_RunTooShort(t *testing.T) {
	cfg := config.Default().GreenRun

	bars := []domain.Candle{
		{StartTS: etBarAt(7, 10).StartTS, Open: 4.90, High: 4.95, Low: 4.90, Close: 4.95, Volume: 5000},
		{StartTS: etBarAt(7, 15).StartTS, Open: 4.95, High: 5.00, Low: 4.95, Close: 5.00, Volume: 5000},
		{StartTS: etBarAt(7, 20).StartTS, Open: 5.00, High: 5.00, Low: 4.90, Close: 4.92, Volume: 5000},
	}

	in := GreenRunInput{Bars: bars, Index: 2, HOD: 5.00, CumulativeVolume: 700000, Symbol: "SYM"}
	assert.Nil(t, GreenRunReject(cfg, in))
}

// TestGreenRunReject_TargetNotRed confirms a non-red target bar never alerts.
func TestGreenRunReject_TargetNotRed(t *testing.T) {
	cfg := config.Default().GreenRun

	bars := []domain.Candle{
		{StartTS: etBarAt(7, 0).StartTS, Open: 4.80, High: 4.85, Low: 4.80, Close: 4.85, Volume: 5000},
		{StartTS: etBarAt(7, 5).StartTS, Open: 4.85, High: 4.90, Low: 4.85, Close: 4.90, Volume: 5000},
		{StartTS: etBarAt(7, 10).StartTS, Open: 4.90, High: 4.95, Low: 4.90, Close: 4.95, Volume: 5000},
		{StartTS: etBarAt(7, 15).StartTS, Open: 4.95, High: 5.00, Low: 4.95, Close: 5.00, Volume: 5000},
	}

	in := GreenRunInput{Bars: bars, Index: 3, HOD: 5.00, CumulativeVolume: 700000, Symbol: "SYM"}
	assert.Nil(t, GreenRunReject(cfg, in))
}

// TestGreenRunReject_FarFromHOD confirms a run that fades well clear of the
// HOD never alerts, even with a qualifying run length and gain.
func TestGreenRunReject_FarFromHOD(t *testing.T) {
	cfg := config.Default().GreenRun

	bars := []domain.Candle{
		{StartTS: etBarAt(7, 0).StartTS, Open: 4.00, High: 4.05, Low: 4.00, Close: 4.05, Volume: 5000},
		{StartTS: etBarAt(7, 5).StartTS, Open: 4.05, High: 4.10, Low: 4.05, Close: 4.10, Volume: 5000},
		{StartTS: etBarAt(7, 10).StartTS, Open: 4.10, High: 4.15, Low: 4.10, Close: 4.15, Volume: 5000},
		{StartTS: etBarAt(7, 15).StartTS, Open: 4.15, High: 4.20, Low: 4.15, Close: 4.20, Volume: 5000},
		{StartTS: etBarAt(7, 20).StartTS, Open: 4.20, High: 4.20, Low: 4.10, Close: 4.12, Volume: 5000},
	}

	in := GreenRunInput{Bars: bars, Index: len(bars) - 1, HOD: 5.00, CumulativeVolume: 700000, Symbol: "SYM"}
	assert.Nil(t, GreenRunReject(cfg, in))
}

// TestGreenRunReject_VolumeSanityCeiling confirms the fixed cumulative-volume
// sanity ceiling rejects an otherwise-qualifying setup.
func TestGreenRunReject_VolumeSanityCeiling(t *testing.T) {
	cfg := config.Default().GreenRun

	bars := []domain.Candle{
		{StartTS: etBarAt(7, 0).StartTS, Open: 4.80, High: 4.85, Low: 4.80, Close: 4.85, Volume: 5000},
		{StartTS: etBarAt(7, 5).StartTS, Open: 4.85, High: 4.90, Low: 4.85, Close: 4.90, Volume: 5000},
		{StartTS: etBarAt(7, 10).StartTS, Open: 4.90, High: 4.95, Low: 4.90, Close: 4.95, Volume: 5000},
		{StartTS: etBarAt(7, 15).StartTS, Open: 4.95, High: 5.00, Low: 4.95, Close: 5.00, Volume: 5000},
		{StartTS: etBarAt(7, 20).StartTS, Open: 5.00, High: 5.00, Low: 4.90, Close: 4.92, Volume: 5000},
	}

	in := GreenRunInput{Bars: bars, Index: len(bars) - 1, HOD: 5.00, CumulativeVolume: 60_000_000, Symbol: "SYM"}
	assert.Nil(t, GreenRunReject(cfg, in))
}
