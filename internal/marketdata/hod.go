package marketdata

import (
	"context"
	"time"

	"setbull_trader/internal/clock"
)

// PreviousTradingDay steps back one calendar day at a time, skipping
// Saturday/Sunday. It does not know about market holidays (no holiday
// calendar is part of this spec's scope).
func PreviousTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// ComputeTrueHOD implements §3's "True HOD semantics": the maximum of the
// previous trading day's after-hours high (16:00-20:00 ET) and the current
// day's high across all bars with extended hours included. Pattern
// evaluation must use this value, never the provider's daily `h`.
func (c *Client) ComputeTrueHOD(ctx context.Context, symbol string, today time.Time) (float64, error) {
	prevDay := PreviousTradingDay(today)

	prevBars, err := c.GetMinuteAggs(ctx, symbol, prevDay)
	if err != nil {
		return 0, err
	}
	var prevAfterHoursHigh float64
	for _, b := range prevBars {
		if clock.IsAfterHours(time.UnixMilli(b.StartTS)) && b.High > prevAfterHoursHigh {
			prevAfterHoursHigh = b.High
		}
	}

	todayBars, err := c.GetMinuteAggs(ctx, symbol, today)
	if err != nil {
		return 0, err
	}
	var todayHigh float64
	for _, b := range todayBars {
		if b.High > todayHigh {
			todayHigh = b.High
		}
	}

	hod := prevAfterHoursHigh
	if todayHigh > hod {
		hod = todayHigh
	}
	return hod, nil
}
