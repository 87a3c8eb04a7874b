// Package clock supplies "now" (overridable for tests and historical
// replay) and the America/New_York wall-clock decomposition every session
// predicate in the scanner is built on. Never compare against UTC hours
// directly — DST shifts the ET offset twice a year.
package clock

import (
	"time"

	"setbull_trader/pkg/log"
)

// Location is the IANA zone every session computation in the scanner uses.
var Location = mustLoadNewYork()

func mustLoadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		log.Warn("clock: falling back to fixed -5h offset, failed to load America/New_York: %v", err)
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}

// Clock supplies the scanner's notion of "now". The zero value is the live
// clock; set Override for deterministic tests and historical replay
// (dev.overrideNow in Config).
type Clock struct {
	Override func() time.Time
}

// New returns a live clock, or one pinned to overrideNow if non-nil.
func New(overrideNow *time.Time) *Clock {
	if overrideNow == nil {
		return &Clock{}
	}
	fixed := *overrideNow
	return &Clock{Override: func() time.Time { return fixed }}
}

// Now returns the current instant, honoring the override.
func (c *Clock) Now() time.Time {
	if c != nil && c.Override != nil {
		return c.Override()
	}
	return time.Now()
}

// ETComponents is the decomposed wall-clock reading in America/New_York.
type ETComponents struct {
	Year, Month, Day     int
	Hour, Minute, Second int
}

// MinutesSinceMidnight is the common projection session predicates use.
func (c ETComponents) MinutesSinceMidnight() int {
	return c.Hour*60 + c.Minute
}

// ET decomposes a UTC instant into its America/New_York wall-clock parts.
func ET(t time.Time) ETComponents {
	lt := t.In(Location)
	return ETComponents{
		Year:   lt.Year(),
		Month:  int(lt.Month()),
		Day:    lt.Day(),
		Hour:   lt.Hour(),
		Minute: lt.Minute(),
		Second: lt.Second(),
	}
}

// NowET is a convenience combining Now and ET.
func (c *Clock) NowET() ETComponents {
	return ET(c.Now())
}

// TradingDate returns the ET calendar date (midnight ET) for t — the key
// used to scope a symbol's "today" across HOD/volume accounting.
func TradingDate(t time.Time) time.Time {
	e := ET(t)
	return time.Date(e.Year, time.Month(e.Month), e.Day, 0, 0, 0, 0, Location)
}

// SessionWindow is session.start/session.end expressed as ET
// minutes-since-midnight.
type SessionWindow struct {
	StartMinute int
	EndMinute   int
}

// ParseHHMM parses an "HH:MM" string into minutes-since-midnight.
func ParseHHMM(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsWithinSession implements §4.1: true when ET-minutes-since-midnight is
// in [start-2min, end) — the 2-minute grace captures bars publishing just
// before the configured start.
func IsWithinSession(now time.Time, win SessionWindow) bool {
	m := ET(now).MinutesSinceMidnight()
	return m >= win.StartMinute-2 && m < win.EndMinute
}

// IsWithinSessionMinutes is IsWithinSession for a bar's own ET minute,
// rather than "now" — used when classifying a historical/past bar.
func IsWithinSessionMinutes(minutesSinceMidnight int, win SessionWindow) bool {
	return minutesSinceMidnight >= win.StartMinute-2 && minutesSinceMidnight < win.EndMinute
}

// Session boundary constants from the GLOSSARY (ET).
const (
	PreMarketStartMinute = 4 * 60    // 04:00
	RegularStartMinute   = 9*60 + 30 // 09:30
	RegularEndMinute     = 16 * 60   // 16:00
	AfterHoursEndMinute  = 20 * 60   // 20:00
)

// IsRegularHours reports whether t falls in 09:30-16:00 ET.
func IsRegularHours(t time.Time) bool {
	m := ET(t).MinutesSinceMidnight()
	return m >= RegularStartMinute && m < RegularEndMinute
}

// IsPreMarket reports whether t falls in 04:00-09:30 ET.
func IsPreMarket(t time.Time) bool {
	m := ET(t).MinutesSinceMidnight()
	return m >= PreMarketStartMinute && m < RegularStartMinute
}

// IsAfterHours reports whether t falls in 16:00-20:00 ET.
func IsAfterHours(t time.Time) bool {
	m := ET(t).MinutesSinceMidnight()
	return m >= RegularEndMinute && m < AfterHoursEndMinute
}

// FiveMinPeriodStart floors an epoch-ms timestamp to its containing 5-min
// period start, computed in ET per the GLOSSARY definition.
func FiveMinPeriodStart(epochMs int64) int64 {
	t := time.UnixMilli(epochMs).In(Location)
	minute := (t.Minute() / 5) * 5
	aligned := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, Location)
	return aligned.UnixMilli()
}

// MinuteOfPeriod returns minute mod 5 for ET(epochMs) — used to detect
// period-close boundaries (minute ≡ 4 mod 5 marks the last bar of a period).
func MinuteOfPeriod(epochMs int64) int {
	t := time.UnixMilli(epochMs).In(Location)
	return t.Minute() % 5
}
