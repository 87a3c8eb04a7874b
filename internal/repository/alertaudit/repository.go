// Package alertaudit implements repository.AlertAuditRepository: a
// best-effort gorm sink for fired alerts (single-row insert against a
// dedicated table, no upsert needed since the Dispatcher already
// guarantees each alert id is fired at most once per process lifetime).
package alertaudit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"setbull_trader/internal/domain"
	"setbull_trader/internal/repository"
)

// record is the gorm row shape for a fired alert.
type record struct {
	ID         string `gorm:"column:id;primaryKey"`
	Symbol     string `gorm:"column:symbol;index"`
	Type       string `gorm:"column:type"`
	Detail     string `gorm:"column:detail"`
	Price      float64 `gorm:"column:price"`
	Volume     int64  `gorm:"column:volume"`
	GapPercent *float64 `gorm:"column:gap_percent"`
	HOD        *float64 `gorm:"column:hod"`
	Historical bool   `gorm:"column:historical"`
	FiredAt    time.Time `gorm:"column:fired_at;index"`
}

func (record) TableName() string { return "scanner_alert_audit" }

// Repository implements repository.AlertAuditRepository against MySQL/
// Postgres via gorm.
type Repository struct {
	db *gorm.DB
}

// New builds a Repository bound to an already-opened gorm connection.
func New(db *gorm.DB) repository.AlertAuditRepository {
	return &Repository{db: db}
}

// Store inserts one alert row. The alert's own ID (symbol+period+type
// keyed, per domain.NewAlertID) is the primary key, so a duplicate insert
// fails loudly rather than silently double-counting — callers only reach
// here once per id, via the Dispatcher's dedupe set.
func (r *Repository) Store(ctx context.Context, alert domain.Alert) error {
	rec := record{
		ID:         alert.ID,
		Symbol:     alert.Symbol,
		Type:       string(alert.Type),
		Detail:     alert.Detail,
		Price:      alert.Price,
		Volume:     alert.Volume,
		GapPercent: alert.GapPercent,
		HOD:        alert.HOD,
		Historical: alert.Historical,
		FiredAt:    time.UnixMilli(alert.TS),
	}
	if result := r.db.WithContext(ctx).Create(&rec); result.Error != nil {
		return fmt.Errorf("failed to store alert audit record: %w", result.Error)
	}
	return nil
}
