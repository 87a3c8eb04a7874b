package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"setbull_trader/internal/clock"
)

// TestMsUntilNextBoundary_BasicAlignment is P8: the scheduler fires exactly
// at 5-minute ET boundaries plus the configured settle delay.
func TestMsUntilNextBoundary_BasicAlignment(t *testing.T) {
	now := time.Date(2024, 9, 25, 7, 1, 0, 0, clock.Location) // 4 minutes to 07:05
	delay := msUntilNextBoundary(now, 15_000)
	assert.Equal(t, int64(4*60*1000+15_000), delay)
}

// TestMsUntilNextBoundary_OnBoundary confirms firing right at a boundary
// rolls forward a full period rather than firing immediately, since an
// immediate fire would race the boundary's own closing bar.
func TestMsUntilNextBoundary_OnBoundary(t *testing.T) {
	now := time.Date(2024, 9, 25, 7, 5, 0, 0, clock.Location)
	delay := msUntilNextBoundary(now, 0)
	assert.Equal(t, int64(5*60*1000), delay)
}

// TestMsUntilNextBoundary_WithSubSecondPrecision confirms seconds and
// milliseconds within the current minute are subtracted correctly.
func TestMsUntilNextBoundary_WithSubSecondPrecision(t *testing.T) {
	now := time.Date(2024, 9, 25, 7, 3, 30, 500_000_000, clock.Location) // 1m29.5s to 07:05
	delay := msUntilNextBoundary(now, 1_000)
	expected := int64(89_500) + 1_000
	assert.Equal(t, expected, delay)
}

// TestMsUntilNextBoundary_NeverBelowMinimum confirms the result never dips
// under 500ms; it rolls forward a full period instead.
func TestMsUntilNextBoundary_NeverBelowMinimum(t *testing.T) {
	now := time.Date(2024, 9, 25, 7, 4, 59, 800_000_000, clock.Location) // 200ms to boundary
	delay := msUntilNextBoundary(now, 0)
	assert.GreaterOrEqual(t, delay, int64(500))
	assert.Equal(t, int64(200)+5*60*1000, delay)
}
