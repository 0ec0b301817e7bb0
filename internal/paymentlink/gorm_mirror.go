package paymentlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/paytrack/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMirror keeps one payment_links row per client scope.
type GormMirror struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormMirror returns a mirror bound to the provided database.
func NewGormMirror(db *gorm.DB) (*GormMirror, error) {
	if db == nil {
		return nil, errors.New("db required")
	}
	return &GormMirror{db: db, now: time.Now}, nil
}

func (m *GormMirror) load(ctx context.Context, scope string) (models.PaymentLink, bool, error) {
	var row models.PaymentLink
	err := m.db.WithContext(ctx).Where("scope = ?", scope).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PaymentLink{}, false, nil
		}
		return models.PaymentLink{}, false, err
	}
	return row, true, nil
}

func (m *GormMirror) upsert(ctx context.Context, row models.PaymentLink, columns ...string) error {
	row.UpdatedAt = m.now().UTC()
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns(append(columns, "updated_at")),
	}).Create(&row).Error
}

func (m *GormMirror) LoadLink(ctx context.Context, scope string) (Record, bool, error) {
	row, ok, err := m.load(ctx, scope)
	if err != nil {
		return Record{}, false, fmt.Errorf("read payment link: %w", err)
	}
	if !ok || row.URL == "" {
		return Record{}, false, nil
	}
	return Record{URL: row.URL, ExpiresAtMs: row.ExpiresAtMs}, true, nil
}

func (m *GormMirror) SaveLink(ctx context.Context, scope string, record Record) error {
	row := models.PaymentLink{Scope: scope, URL: record.URL, ExpiresAtMs: record.ExpiresAtMs}
	if err := m.upsert(ctx, row, "url", "expires_at_ms"); err != nil {
		return fmt.Errorf("write payment link: %w", err)
	}
	return nil
}

func (m *GormMirror) LoadOrderID(ctx context.Context, scope string) (string, bool, error) {
	row, ok, err := m.load(ctx, scope)
	if err != nil {
		return "", false, fmt.Errorf("read current order: %w", err)
	}
	if !ok || row.CurrentOrderID == "" {
		return "", false, nil
	}
	return row.CurrentOrderID, true, nil
}

func (m *GormMirror) SaveOrderID(ctx context.Context, scope, orderID string) error {
	row := models.PaymentLink{Scope: scope, CurrentOrderID: orderID}
	if err := m.upsert(ctx, row, "current_order_id"); err != nil {
		return fmt.Errorf("write current order: %w", err)
	}
	return nil
}

func (m *GormMirror) ClearOrderID(ctx context.Context, scope string) error {
	return m.SaveOrderID(ctx, scope, "")
}

func (m *GormMirror) Clear(ctx context.Context, scope string) error {
	if err := m.db.WithContext(ctx).Where("scope = ?", scope).Delete(&models.PaymentLink{}).Error; err != nil {
		return fmt.Errorf("delete payment link: %w", err)
	}
	return nil
}

// PruneBefore deletes rows whose link expired before cutoff and that track no order.
// A nil tx runs on the mirror's own connection.
func (m *GormMirror) PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = m.db
	}
	res := tx.WithContext(ctx).
		Where("updated_at < ? AND expires_at_ms < ? AND current_order_id = ''", cutoff.UTC(), cutoff.UnixMilli()).
		Delete(&models.PaymentLink{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune payment links: %w", res.Error)
	}
	return res.RowsAffected, nil
}
