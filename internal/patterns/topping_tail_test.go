package patterns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/domain"
)

func etBarAt(hour, minute int) domain.Candle {
	t := time.Date(2024, 9, 25, hour, minute, 0, 0, clock.Location)
	return domain.Candle{StartTS: t.UnixMilli()}
}

func defaultSession(t *testing.T) clock.SessionWindow {
	cfg := config.Default()
	win, err := cfg.SessionWindow()
	assert.NoError(t, err)
	return win
}

// TestToppingTail5m_S1 is spec scenario S1: HOD break + topping tail detected.
func TestToppingTail5m_S1(t *testing.T) {
	cfg := config.Default().ToppingTail5m
	session := defaultSession(t)

	bar := etBarAt(7, 15)
	bar.Open, bar.High, bar.Low, bar.Close, bar.Volume = 4.90, 5.20, 4.85, 4.92, 40000

	in := ToppingTailInput{
		Bars:                []domain.Candle{bar},
		Index:               0,
		HOD:                 5.20,
		CumulativeVolume:    700000,
		MinCumulativeVolume: 500000,
		GapPercent:          12.5,
		Symbol:              "SYM",
	}

	alert := ToppingTail5m(cfg, session, in)
	if assert.NotNil(t, alert) {
		assert.Equal(t, domain.AlertToppingTail5m, alert.Type)
		assert.InDelta(t, 4.92, alert.Price, 1e-9)
		assert.InDelta(t, 5.20, *alert.HOD, 1e-9)
		assert.Equal(t, domain.NewAlertID("SYM", bar.StartTS, 0, domain.AlertToppingTail5m), alert.ID)
	}
}

// TestToppingTail5m_S2 is spec scenario S2: HOD not broken -> no alert
// (strict mode rejects bar.high < hod).
func TestToppingTail5m_S2(t *testing.T) {
	cfg := config.Default().ToppingTail5m
	session := defaultSession(t)

	bar := etBarAt(7, 15)
	bar.Open, bar.High, bar.Low, bar.Close, bar.Volume = 4.90, 5.20, 4.85, 4.92, 40000

	in := ToppingTailInput{
		Bars: []domain.Candle{bar}, Index: 0,
		HOD: 5.50, CumulativeVolume: 700000, MinCumulativeVolume: 500000, Symbol: "SYM",
	}

	assert.Nil(t, ToppingTail5m(cfg, session, in))
}

// TestToppingTail5m_S3 is spec scenario S3: shallow close (low shadow/body
// ratio) -> no alert.
func TestToppingTail5m_S3(t *testing.T) {
	cfg := config.Default().ToppingTail5m
	session := defaultSession(t)

	bar := etBarAt(7, 15)
	bar.Open, bar.High, bar.Low, bar.Close, bar.Volume = 4.90, 5.20, 4.85, 5.10, 40000

	in := ToppingTailInput{
		Bars: []domain.Candle{bar}, Index: 0,
		HOD: 5.00, CumulativeVolume: 700000, MinCumulativeVolume: 500000, Symbol: "SYM",
	}

	assert.Nil(t, ToppingTail5m(cfg, session, in))
}

// TestToppingTail5m_S4 is spec scenario S4: volume gate rejects an
// otherwise-qualifying bar.
func TestToppingTail5m_S4(t *testing.T) {
	cfg := config.Default().ToppingTail5m
	session := defaultSession(t)

	bar := etBarAt(7, 15)
	bar.Open, bar.High, bar.Low, bar.Close, bar.Volume = 4.90, 5.20, 4.85, 4.92, 40000

	in := ToppingTailInput{
		Bars: []domain.Candle{bar}, Index: 0,
		HOD: 5.20, CumulativeVolume: 300000, MinCumulativeVolume: 500000, Symbol: "SYM",
	}

	assert.Nil(t, ToppingTail5m(cfg, session, in))
}

// TestToppingTail5m_SessionGate confirms a bar outside the configured
// session window never alerts, regardless of how well it otherwise qualifies.
func TestToppingTail5m_SessionGate(t *testing.T) {
	cfg := config.Default().ToppingTail5m
	session := defaultSession(t)

	bar := etBarAt(12, 0) // after 11:30 default session end
	bar.Open, bar.High, bar.Low, bar.Close, bar.Volume = 4.90, 5.20, 4.85, 4.92, 40000

	in := ToppingTailInput{
		Bars: []domain.Candle{bar}, Index: 0,
		HOD: 5.20, CumulativeVolume: 700000, MinCumulativeVolume: 500000, Symbol: "SYM",
	}

	assert.Nil(t, ToppingTail5m(cfg, session, in))
}

// TestToppingTail5m_Purity is P7: identical inputs yield identical outputs
// and the detector never mutates its input slice.
func TestToppingTail5m_Purity(t *testing.T) {
	cfg := config.Default().ToppingTail5m
	session := defaultSession(t)

	bar := etBarAt(7, 15)
	bar.Open, bar.High, bar.Low, bar.Close, bar.Volume = 4.90, 5.20, 4.85, 4.92, 40000
	bars := []domain.Candle{bar}

	in := ToppingTailInput{
		Bars: bars, Index: 0,
		HOD: 5.20, CumulativeVolume: 700000, MinCumulativeVolume: 500000, Symbol: "SYM",
	}

	a1 := ToppingTail5m(cfg, session, in)
	a2 := ToppingTail5m(cfg, session, in)
	assert.Equal(t, a1, a2)
	assert.Equal(t, bar, bars[0], "detector must not mutate its input bars")
}
