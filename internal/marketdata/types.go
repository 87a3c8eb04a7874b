// Package marketdata is the typed wrapper over the upstream provider's
// REST endpoints and WebSocket stream (§6). It is the only package that
// knows the wire shapes; everything downstream talks in domain.Candle /
// domain.WatchlistEntry terms.
package marketdata

// gainerTickerResponse is one entry of
// /v2/snapshot/locale/us/markets/stocks/gainers.
type gainerTickerResponse struct {
	Ticker           string  `json:"ticker"`
	TodaysChangePerc float64 `json:"todaysChangePerc"`
	LastTrade        struct {
		Price float64 `json:"p"`
	} `json:"lastTrade"`
	PrevDay struct {
		Close float64 `json:"c"`
	} `json:"prevDay"`
	Min struct {
		AccumulatedVolume int64 `json:"av"`
	} `json:"min"`
	Day struct {
		High float64 `json:"h"`
	} `json:"day"`
}

type gainersSnapshotResponse struct {
	Tickers []gainerTickerResponse `json:"tickers"`
}

// GainerTicker is the parsed per-symbol projection Selector modes L/P
// operate on.
type GainerTicker struct {
	Symbol               string
	LastPrice            float64
	PrevClose            float64
	TodaysChangePct      float64
	CumulativeAvgVolume  int64
	DayHigh              float64
}

// groupedBarResponse is one entry of
// /v2/aggs/grouped/locale/us/market/stocks/{date}.
type groupedBarResponse struct {
	Symbol string  `json:"T"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume int64   `json:"v"`
}

type groupedResponse struct {
	Results []groupedBarResponse `json:"results"`
}

// GroupedBar is the parsed daily bar used by historical Selector Stage 1.
type GroupedBar struct {
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// aggBarResponse is one entry of the n-minute aggregates "results" array.
type aggBarResponse struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V int64   `json:"v"`
}

type aggsResponse struct {
	Results []aggBarResponse `json:"results"`
}

type tickerRefResponse struct {
	Results struct {
		Type string `json:"type"`
	} `json:"results"`
}

type emaResponse struct {
	Results struct {
		Values []struct {
			Value float64 `json:"value"`
		} `json:"values"`
	} `json:"results"`
}

type openCloseResponse struct {
	Open float64 `json:"open"`
}

// StatusEvent is a stream status frame ({ev:"status", status, message?}).
type StatusEvent struct {
	Status  string
	Message string
}

// BarEvent is a stream minute-aggregate frame ({ev:"AM", sym, s, e, o, h, l, c, v, ...}).
type BarEvent struct {
	Symbol  string  `json:"sym"`
	StartTS int64   `json:"s"`
	EndTS   int64   `json:"e"`
	Open    float64 `json:"o"`
	High    float64 `json:"h"`
	Low     float64 `json:"l"`
	Close   float64 `json:"c"`
	Volume  int64   `json:"v"`
}

// wireEvent is the discriminated union used to decode the provider's batch
// JSON arrays: status events and "AM" bar events share one envelope shape.
type wireEvent struct {
	Ev      string  `json:"ev"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Sym     string  `json:"sym"`
	S       int64   `json:"s"`
	E       int64   `json:"e"`
	O       float64 `json:"o"`
	H       float64 `json:"h"`
	L       float64 `json:"l"`
	C       float64 `json:"c"`
	V       int64   `json:"v"`
}
