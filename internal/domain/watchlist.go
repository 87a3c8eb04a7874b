package domain

import "time"

// WatchlistEntry is one qualifying gap stock, as produced by the Selector
// and consumed by the Orchestrator. Replaced atomically as a whole set on
// each refresh; never mutated in place.
type WatchlistEntry struct {
	Symbol           string    `json:"symbol"`
	GapPercent       float64   `json:"gapPercent"`
	CurrentPrice     float64   `json:"currentPrice"`
	PreviousClose    float64   `json:"previousClose"`
	CumulativeVolume int64     `json:"cumulativeVolume"`
	HOD              float64   `json:"hod"`
	EMA200           *float64  `json:"ema200,omitempty"`
	DiscoveredAt     time.Time `json:"discoveredAt"`
}

// SymbolMetrics is the read-only projection returned by symbolData(), the
// downstream subscriber API's lightweight quote surface.
type SymbolMetrics struct {
	Symbol     string  `json:"symbol"`
	LastPrice  float64 `json:"lastPrice"`
	GapPercent float64 `json:"gapPercent"`
	Volume     int64   `json:"volume"`
	HOD        float64 `json:"hod"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
}
