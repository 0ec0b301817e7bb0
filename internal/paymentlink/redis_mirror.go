package paymentlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/paytrack/pkg/redis"
)

// DefaultRetention bounds how long a mirrored link outlives its expiry in Redis.
const DefaultRetention = 24 * time.Hour

// RedisMirror stores the link as a JSON blob and the order id as a plain string.
type RedisMirror struct {
	client    redis.KeyValue
	retention time.Duration
	now       func() time.Time
}

// NewRedisMirror builds a Redis-backed mirror.
func NewRedisMirror(client redis.KeyValue, retention time.Duration) (*RedisMirror, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisMirror{client: client, retention: retention, now: time.Now}, nil
}

func (m *RedisMirror) LoadLink(ctx context.Context, scope string) (Record, bool, error) {
	raw, err := m.client.Get(ctx, m.client.PaymentLinkKey(scope))
	if err != nil {
		if redis.IsNil(err) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("read payment link: %w", err)
	}
	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return Record{}, false, fmt.Errorf("decode payment link: %w", err)
	}
	if record.IsZero() {
		return Record{}, false, nil
	}
	return record, true, nil
}

func (m *RedisMirror) SaveLink(ctx context.Context, scope string, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode payment link: %w", err)
	}
	if err := m.client.Set(ctx, m.client.PaymentLinkKey(scope), string(payload), m.linkTTL(record)); err != nil {
		return fmt.Errorf("write payment link: %w", err)
	}
	return nil
}

// linkTTL keeps the key for the link's remaining lifetime plus retention,
// and never less than retention.
func (m *RedisMirror) linkTTL(record Record) time.Duration {
	remaining := time.UnixMilli(record.ExpiresAtMs).Sub(m.now())
	if remaining <= 0 {
		return m.retention
	}
	return remaining + m.retention
}

func (m *RedisMirror) LoadOrderID(ctx context.Context, scope string) (string, bool, error) {
	orderID, err := m.client.Get(ctx, m.client.CurrentOrderKey(scope))
	if err != nil {
		if redis.IsNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read current order: %w", err)
	}
	return orderID, orderID != "", nil
}

func (m *RedisMirror) SaveOrderID(ctx context.Context, scope, orderID string) error {
	if orderID == "" {
		return m.ClearOrderID(ctx, scope)
	}
	if err := m.client.Set(ctx, m.client.CurrentOrderKey(scope), orderID, 0); err != nil {
		return fmt.Errorf("write current order: %w", err)
	}
	return nil
}

func (m *RedisMirror) ClearOrderID(ctx context.Context, scope string) error {
	if err := m.client.Del(ctx, m.client.CurrentOrderKey(scope)); err != nil {
		return fmt.Errorf("delete current order: %w", err)
	}
	return nil
}

func (m *RedisMirror) Clear(ctx context.Context, scope string) error {
	if err := m.client.Del(ctx, m.client.PaymentLinkKey(scope), m.client.CurrentOrderKey(scope)); err != nil {
		return fmt.Errorf("delete payment link: %w", err)
	}
	return nil
}
