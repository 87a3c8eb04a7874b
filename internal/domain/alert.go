package domain

import "fmt"

// AlertType enumerates the pattern detectors that can produce an alert.
type AlertType string

const (
	AlertToppingTail5m  AlertType = "ToppingTail5m"
	AlertGreenRunReject AlertType = "GreenRunReject"
)

// Alert is the unit of output of the Pattern Engine, deduplicated and
// fanned out by the Dispatcher (C9). Id is stable and derived from
// (symbol, ts, index-in-series, type) per §6.
type Alert struct {
	ID         string    `json:"id"`
	TS         int64     `json:"ts"`
	Symbol     string    `json:"symbol"`
	Type       AlertType `json:"type"`
	Detail     string    `json:"detail"`
	Price      float64   `json:"price"`
	Volume     int64     `json:"volume"`
	GapPercent *float64  `json:"gapPercent,omitempty"`
	HOD        *float64  `json:"hod,omitempty"`
	Historical bool      `json:"historical"`
}

// NewAlertID builds the stable dedupe key described in §6.
func NewAlertID(symbol string, ts int64, index int, typ AlertType) string {
	return fmt.Sprintf("%s-%d-%d-%s", symbol, ts, index, typ)
}
