// Package repository defines the scanner's persistence-boundary
// interfaces.
package repository

import (
	"context"

	"setbull_trader/internal/domain"
)

// AlertAuditRepository persists fired alerts for later review. It is the
// optional best-effort sink the Dispatcher calls alongside real
// subscribers (§4.9) — never on the hot detection path.
type AlertAuditRepository interface {
	// Store writes a single alert. Callers treat a returned error as
	// best-effort fire-and-forget: it is logged, never propagated.
	Store(ctx context.Context, alert domain.Alert) error
}
