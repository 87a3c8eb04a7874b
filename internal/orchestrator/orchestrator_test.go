package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/domain"
	"setbull_trader/internal/marketdata"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	cfgStore := config.NewStore(config.Default())
	clk := clock.New(nil)
	client := marketdata.NewClient(cfgStore, nil)
	return New(cfgStore, clk, client)
}

func TestNew_InitialState(t *testing.T) {
	o := newTestOrchestrator(t)
	assert.Equal(t, StatusIdle, o.Status())
	assert.Empty(t, o.Watchlist())
	assert.NotNil(t, o.Watchlist(), "watchlist must start as an empty slice, not nil")
}

func TestStop_NoopWhenNotRunning(t *testing.T) {
	o := newTestOrchestrator(t)
	assert.NotPanics(t, func() { o.Stop() })
	assert.Equal(t, StatusIdle, o.Status())
}

func TestUpdateConfig_AppliesValidPartial(t *testing.T) {
	o := newTestOrchestrator(t)
	err := o.UpdateConfig(func(c *config.Config) {
		c.Gap.MinPct = 15
	})
	assert.NoError(t, err)
	assert.Equal(t, 15.0, o.cfgStore.Get().Gap.MinPct)
}

func TestUpdateConfig_RejectsInvalidPartial(t *testing.T) {
	o := newTestOrchestrator(t)
	before := o.cfgStore.Get()

	err := o.UpdateConfig(func(c *config.Config) {
		c.Session.Start = "11:30"
		c.Session.End = "07:00" // start >= end: invalid
	})

	assert.Error(t, err)
	assert.Same(t, before, o.cfgStore.Get(), "rejected update must leave the active config untouched")
}

func TestUpdateConfig_ClearsDispatcherDedupeSet(t *testing.T) {
	o := newTestOrchestrator(t)

	alert := domain.Alert{ID: "dup-1", Symbol: "SYM", Type: domain.AlertToppingTail5m}
	assert.True(t, o.dispatcher.Fire(alert), "first fire of a fresh id must succeed")
	assert.False(t, o.dispatcher.Fire(alert), "second fire of the same id must be deduped")

	err := o.UpdateConfig(func(c *config.Config) { c.Gap.MinPct = 12 })
	assert.NoError(t, err)

	assert.True(t, o.dispatcher.Fire(alert), "updateConfig must clear the dedupe set so old ids can refire")
}

func TestSubscribeAlerts_ReceivesFiredAlerts(t *testing.T) {
	o := newTestOrchestrator(t)

	var received []domain.Alert
	unsubscribe := o.SubscribeAlerts(func(a domain.Alert) error {
		received = append(received, a)
		return nil
	})

	alert := domain.Alert{ID: "a-1", Symbol: "SYM", Type: domain.AlertGreenRunReject}
	o.dispatcher.Fire(alert)
	assert.Len(t, received, 1)
	assert.Equal(t, alert.ID, received[0].ID)

	unsubscribe()
	o.dispatcher.Fire(domain.Alert{ID: "a-2", Symbol: "SYM", Type: domain.AlertGreenRunReject})
	assert.Len(t, received, 1, "no further alerts should arrive after unsubscribe")
}

func TestSetAuditSink_RunsAlongsideRealSubscribers(t *testing.T) {
	o := newTestOrchestrator(t)

	var subscriberSaw, auditSaw []string
	o.SubscribeAlerts(func(a domain.Alert) error {
		subscriberSaw = append(subscriberSaw, a.ID)
		return nil
	})
	o.SetAuditSink(func(a domain.Alert) error {
		auditSaw = append(auditSaw, a.ID)
		return nil
	})

	o.dispatcher.Fire(domain.Alert{ID: "audit-1", Symbol: "SYM", Type: domain.AlertToppingTail5m})

	assert.Equal(t, []string{"audit-1"}, subscriberSaw)
	assert.Equal(t, []string{"audit-1"}, auditSaw)
}

func TestSymbolData_ReflectsStoreSnapshot(t *testing.T) {
	o := newTestOrchestrator(t)
	o.store.Upsert(&domain.SymbolState{
		Symbol:           "SYM",
		GapPercent:       25,
		CumulativeVolume: 600_000,
		HOD:              5.5,
		MinuteRing: []domain.Candle{
			{StartTS: 1, Open: 4, High: 4.1, Low: 3.9, Close: 4.05},
		},
	})

	data := o.SymbolData()
	assert.Len(t, data, 1)
	assert.Equal(t, "SYM", data[0].Symbol)
	assert.InDelta(t, 4.05, data[0].LastPrice, 0.0001)
	assert.InDelta(t, 25.0, data[0].GapPercent, 0.0001)
	assert.Equal(t, int64(600_000), data[0].Volume)
	assert.InDelta(t, 5.5, data[0].HOD, 0.0001)

	spread := o.cfgStore.Get().Scanning.BidAskSpread
	assert.InDelta(t, data[0].LastPrice-spread, data[0].Bid, 0.0001)
	assert.InDelta(t, data[0].LastPrice+spread, data[0].Ask, 0.0001)
}
