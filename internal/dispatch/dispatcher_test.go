package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"setbull_trader/internal/domain"
)

// TestFire_DedupesByID is P6: firing the same alert id twice only reaches
// subscribers once.
func TestFire_DedupesByID(t *testing.T) {
	d := New()
	var received []string
	d.Subscribe(func(a domain.Alert) error {
		received = append(received, a.ID)
		return nil
	})

	alert := domain.Alert{ID: "a1", Symbol: "SYM"}
	assert.True(t, d.Fire(alert))
	assert.False(t, d.Fire(alert), "a repeat id must be rejected")
	assert.Equal(t, []string{"a1"}, received)
}

// TestFire_PanicIsolation confirms a panicking subscriber never prevents
// other subscribers, or the audit sink, from receiving the alert.
func TestFire_PanicIsolation(t *testing.T) {
	d := New()
	d.Subscribe(func(a domain.Alert) error { panic("boom") })

	var gotSecond bool
	d.Subscribe(func(a domain.Alert) error {
		gotSecond = true
		return nil
	})

	var auditedID string
	d.SetAuditSink(func(a domain.Alert) error {
		auditedID = a.ID
		return nil
	})

	assert.NotPanics(t, func() {
		d.Fire(domain.Alert{ID: "a2", Symbol: "SYM"})
	})
	assert.True(t, gotSecond)
	assert.Equal(t, "a2", auditedID)
}

// TestFire_ErrorIsolation confirms a subscriber returning an error never
// blocks subsequent subscribers.
func TestFire_ErrorIsolation(t *testing.T) {
	d := New()
	d.Subscribe(func(a domain.Alert) error { return errors.New("nope") })

	var gotSecond bool
	d.Subscribe(func(a domain.Alert) error {
		gotSecond = true
		return nil
	})

	d.Fire(domain.Alert{ID: "a3", Symbol: "SYM"})
	assert.True(t, gotSecond)
}

// TestUnsubscribe confirms an unsubscribed handler no longer receives fires.
func TestUnsubscribe(t *testing.T) {
	d := New()
	var count int
	unsub := d.Subscribe(func(a domain.Alert) error {
		count++
		return nil
	})

	d.Fire(domain.Alert{ID: "a4", Symbol: "SYM"})
	unsub()
	d.Fire(domain.Alert{ID: "a5", Symbol: "SYM"})

	assert.Equal(t, 1, count)
}

// TestFire_EvictionAllowsReuse confirms that once the dedupe set evicts an
// id (FIFO, past evictThreshold), that id can be fired again.
func TestFire_EvictionAllowsReuse(t *testing.T) {
	d := New()
	d.Subscribe(func(a domain.Alert) error { return nil })

	firstID := "id-0"
	d.Fire(domain.Alert{ID: firstID, Symbol: "SYM"})
	for i := 1; i <= evictThreshold; i++ {
		d.Fire(domain.Alert{ID: domain.NewAlertID("SYM", int64(i), i, domain.AlertToppingTail5m), Symbol: "SYM"})
	}

	assert.True(t, d.Fire(domain.Alert{ID: firstID, Symbol: "SYM"}), "an evicted id must be fireable again")
}

// TestClear_ResetsDedupeSet confirms Clear allows a previously-fired id to
// fire again.
func TestClear_ResetsDedupeSet(t *testing.T) {
	d := New()
	alert := domain.Alert{ID: "a6", Symbol: "SYM"}
	assert.True(t, d.Fire(alert))
	d.Clear()
	assert.True(t, d.Fire(alert))
}
