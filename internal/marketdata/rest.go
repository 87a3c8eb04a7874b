package marketdata

import (
	"context"
	"fmt"
	"time"

	"setbull_trader/internal/domain"
)

// GetGainersSnapshot wraps /v2/snapshot/locale/us/markets/stocks/gainers.
func (c *Client) GetGainersSnapshot(ctx context.Context) ([]GainerTicker, error) {
	body, err := c.get(ctx, "/v2/snapshot/locale/us/markets/stocks/gainers")
	if err != nil {
		return nil, err
	}
	raw, err := decode[gainersSnapshotResponse](body)
	if err != nil {
		return nil, err
	}
	out := make([]GainerTicker, 0, len(raw.Tickers))
	for _, t := range raw.Tickers {
		out = append(out, GainerTicker{
			Symbol:              t.Ticker,
			LastPrice:           t.LastTrade.Price,
			PrevClose:           t.PrevDay.Close,
			TodaysChangePct:     t.TodaysChangePerc,
			CumulativeAvgVolume: t.Min.AccumulatedVolume,
			DayHigh:             t.Day.High,
		})
	}
	return out, nil
}

// GetGrouped wraps /v2/aggs/grouped/locale/us/market/stocks/{date}.
func (c *Client) GetGrouped(ctx context.Context, date time.Time) ([]GroupedBar, error) {
	path := fmt.Sprintf("/v2/aggs/grouped/locale/us/market/stocks/%s", date.Format("2006-01-02"))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, err := decode[groupedResponse](body)
	if err != nil {
		return nil, err
	}
	out := make([]GroupedBar, 0, len(raw.Results))
	for _, r := range raw.Results {
		out = append(out, GroupedBar{Symbol: r.Symbol, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
	}
	return out, nil
}

func (c *Client) getAggs(ctx context.Context, symbol string, n int, unit string, from, to time.Time, extendedHours bool) ([]domain.Candle, error) {
	limit := c.cfgStore.Get().API.AggregatesLimit
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s?adjusted=true&sort=asc&limit=%d&include_extended_hours=%v",
		symbol, n, unit, from.Format("2006-01-02"), to.Format("2006-01-02"), limit, extendedHours)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, err := decode[aggsResponse](body)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candle, 0, len(raw.Results))
	for _, r := range raw.Results {
		out = append(out, domain.Candle{StartTS: r.T, Open: r.O, High: r.H, Low: r.L, Close: r.C, Volume: r.V})
	}
	return out, nil
}

// GetMinuteAggs fetches the 1-minute bars of date for symbol with extended
// hours on, used by backfill, ComputeTrueHOD and the pre-market selector.
func (c *Client) GetMinuteAggs(ctx context.Context, symbol string, date time.Time) ([]domain.Candle, error) {
	return c.getAggs(ctx, symbol, 1, "minute", date, date, true)
}

// Get5MinAggs fetches 5-minute bars for symbol in [from,to], used by the
// scheduler's pull-validation path and by historical peak-gap scans.
func (c *Client) Get5MinAggs(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error) {
	return c.getAggs(ctx, symbol, 5, "minute", from, to, true)
}

// GetTickerType wraps /v3/reference/tickers/{sym}?date={d}.
func (c *Client) GetTickerType(ctx context.Context, symbol string, date time.Time) (string, error) {
	path := fmt.Sprintf("/v3/reference/tickers/%s?date=%s", symbol, date.Format("2006-01-02"))
	body, err := c.get(ctx, path)
	if err != nil {
		return "", err
	}
	raw, err := decode[tickerRefResponse](body)
	if err != nil {
		return "", err
	}
	return raw.Results.Type, nil
}

// GetEMA wraps /v1/indicators/ema/{sym}?...window=200&timespan=day.
func (c *Client) GetEMA(ctx context.Context, symbol string, date time.Time, window int) (float64, error) {
	path := fmt.Sprintf("/v1/indicators/ema/%s?timestamp=%s&window=%d&timespan=day&adjusted=true&order=desc&limit=1",
		symbol, date.Format("2006-01-02"), window)
	body, err := c.get(ctx, path)
	if err != nil {
		return 0, err
	}
	raw, err := decode[emaResponse](body)
	if err != nil {
		return 0, err
	}
	if len(raw.Results.Values) == 0 {
		return 0, fmt.Errorf("no EMA values returned for %s", symbol)
	}
	return raw.Results.Values[0].Value, nil
}

// GetDayOpenClose wraps /v1/open-close/{sym}/{date}.
func (c *Client) GetDayOpenClose(ctx context.Context, symbol string, date time.Time) (float64, error) {
	path := fmt.Sprintf("/v1/open-close/%s/%s", symbol, date.Format("2006-01-02"))
	body, err := c.get(ctx, path)
	if err != nil {
		return 0, err
	}
	raw, err := decode[openCloseResponse](body)
	if err != nil {
		return 0, err
	}
	return raw.Open, nil
}
