package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandleValid(t *testing.T) {
	tests := []struct {
		name  string
		c     Candle
		valid bool
	}{
		{"ordinary green bar", Candle{Open: 4.90, High: 5.20, Low: 4.85, Close: 4.92, Volume: 1000}, true},
		{"ordinary red bar", Candle{Open: 5.20, High: 5.25, Low: 4.90, Close: 4.95, Volume: 1000}, true},
		{"high below open", Candle{Open: 5.0, High: 4.9, Low: 4.8, Close: 4.85, Volume: 100}, false},
		{"low above close", Candle{Open: 5.0, High: 5.2, Low: 5.1, Close: 5.05, Volume: 100}, false},
		{"negative volume", Candle{Open: 5.0, High: 5.1, Low: 4.9, Close: 5.0, Volume: -1}, false},
		{"flat candle", Candle{Open: 5.0, High: 5.0, Low: 5.0, Close: 5.0, Volume: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.c.Valid())
		})
	}
}

func TestCandleColor(t *testing.T) {
	green := Candle{Open: 4.90, Close: 4.95}
	red := Candle{Open: 4.95, Close: 4.90}
	flat := Candle{Open: 5.00, Close: 5.0005}

	assert.True(t, green.IsGreen())
	assert.False(t, green.IsRed())
	assert.True(t, red.IsRed())
	assert.False(t, red.IsGreen())
	assert.False(t, flat.IsGreen(), "difference under the 0.001 tolerance must not count as green")
	assert.False(t, flat.IsRed())
}

func TestCandleShadowMetrics(t *testing.T) {
	c := Candle{Open: 4.90, High: 5.20, Low: 4.85, Close: 4.92}
	assert.InDelta(t, 0.35, c.Range(), 1e-9)
	assert.InDelta(t, 0.02, c.Body(), 1e-9)
	assert.InDelta(t, 0.28, c.UpperShadow(), 1e-9)
}
