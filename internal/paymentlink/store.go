package paymentlink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/paytrack/pkg/logger"
)

// DefaultTTL is how long a payment link stays resumable when no TTL is given.
const DefaultTTL = 30 * time.Minute

// Record is a payment link and its absolute expiry in epoch milliseconds.
type Record struct {
	URL         string `json:"url"`
	ExpiresAtMs int64  `json:"expiry"`
}

// IsZero reports whether no link has been recorded.
func (r Record) IsZero() bool {
	return r.URL == "" && r.ExpiresAtMs == 0
}

// StoreParams configures a Store for one client scope.
type StoreParams struct {
	Scope      string
	Mirror     Mirror
	Logger     *logger.Logger
	Now        func() time.Time
	DefaultTTL time.Duration
}

// Store keeps the latest payment link and the tracked order id for one client scope.
// Memory is authoritative; every write is copied to the Mirror so a fresh
// process can hydrate from it. Writes are serialized through writeMu so the
// mirror sees them in the same order as memory.
type Store struct {
	scope      string
	mirror     Mirror
	logg       *logger.Logger
	now        func() time.Time
	defaultTTL time.Duration

	writeMu sync.Mutex
	mu      sync.RWMutex
	link    Record
	orderID string
}

// NewStore builds a Store and hydrates it from the mirror. Mirror read failures
// are logged and leave the store empty.
func NewStore(ctx context.Context, params StoreParams) (*Store, error) {
	scope := strings.TrimSpace(params.Scope)
	if scope == "" {
		return nil, fmt.Errorf("scope required")
	}
	mirror := params.Mirror
	if mirror == nil {
		mirror = NopMirror{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	ttl := params.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s := &Store{
		scope:      scope,
		mirror:     mirror,
		logg:       logg,
		now:        now,
		defaultTTL: ttl,
	}
	s.hydrate(ctx)
	return s, nil
}

func (s *Store) hydrate(ctx context.Context) {
	ctx = s.logg.WithClientScope(ctx, s.scope)

	link, ok, err := s.mirror.LoadLink(ctx, s.scope)
	if err != nil {
		s.logg.Error(ctx, "paymentlink.hydrate_link_failed", err)
	} else if ok {
		s.link = link
	}

	orderID, ok, err := s.mirror.LoadOrderID(ctx, s.scope)
	if err != nil {
		s.logg.Error(ctx, "paymentlink.hydrate_order_failed", err)
	} else if ok {
		s.orderID = orderID
	}
}

// Scope returns the client scope the store belongs to.
func (s *Store) Scope() string {
	return s.scope
}

// SetPaymentURL records url with an absolute expiry of now+ttl, replacing any prior link.
// A non-positive ttl falls back to the store default.
func (s *Store) SetPaymentURL(ctx context.Context, url string, ttl time.Duration) Record {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	record := Record{
		URL:         url,
		ExpiresAtMs: s.nowMs() + ttl.Milliseconds(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.link = record
	s.mu.Unlock()

	if err := s.mirror.SaveLink(ctx, s.scope, record); err != nil {
		s.logg.Error(s.logg.WithClientScope(ctx, s.scope), "paymentlink.mirror_write_failed", err)
	}
	return record
}

// PaymentURL returns the link while now <= expiry. It never mutates state.
func (s *Store) PaymentURL() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.link.URL == "" || s.nowMs() > s.link.ExpiresAtMs {
		return "", false
	}
	return s.link.URL, true
}

// IsExpired reports whether there is no usable link.
func (s *Store) IsExpired() bool {
	_, ok := s.PaymentURL()
	return !ok
}

// RemainingSeconds is max(0, floor((expiry-now)/1000)); 0 when absent.
func (s *Store) RemainingSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.link.URL == "" {
		return 0
	}
	remaining := (s.link.ExpiresAtMs - s.nowMs()) / 1000
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExpiresAt returns the absolute expiry of the current link, zero when absent.
func (s *Store) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.link.URL == "" {
		return time.Time{}
	}
	return time.UnixMilli(s.link.ExpiresAtMs)
}

// SetCurrentOrderID records the order id being tracked. The slot has no expiry.
func (s *Store) SetCurrentOrderID(ctx context.Context, orderID string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.orderID = orderID
	s.mu.Unlock()

	if err := s.mirror.SaveOrderID(ctx, s.scope, orderID); err != nil {
		s.logg.Error(s.logg.WithClientScope(ctx, s.scope), "paymentlink.mirror_write_failed", err)
	}
}

// CurrentOrderID returns the tracked order id, if any.
func (s *Store) CurrentOrderID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderID, s.orderID != ""
}

// ClearCurrentOrderID drops the order slot and keeps the link.
func (s *Store) ClearCurrentOrderID(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.orderID = ""
	s.mu.Unlock()
	s.clearOrderMirror(ctx)
}

// ReleaseOrderID clears the order slot only while it still holds orderID and
// reports whether it did.
func (s *Store) ReleaseOrderID(ctx context.Context, orderID string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if orderID == "" || s.orderID != orderID {
		s.mu.Unlock()
		return false
	}
	s.orderID = ""
	s.mu.Unlock()
	s.clearOrderMirror(ctx)
	return true
}

func (s *Store) clearOrderMirror(ctx context.Context) {
	if err := s.mirror.ClearOrderID(ctx, s.scope); err != nil {
		s.logg.Error(s.logg.WithClientScope(ctx, s.scope), "paymentlink.mirror_clear_failed", err)
	}
}

// Clear resets the link and order id and removes the mirrored copies.
func (s *Store) Clear(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.link = Record{}
	s.orderID = ""
	s.mu.Unlock()

	if err := s.mirror.Clear(ctx, s.scope); err != nil {
		s.logg.Error(s.logg.WithClientScope(ctx, s.scope), "paymentlink.mirror_clear_failed", err)
	}
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}
