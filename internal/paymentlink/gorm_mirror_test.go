package paymentlink

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/paytrack/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupMirrorDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:paymentlink_mirror?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrator().DropTable(&models.PaymentLink{}))
	require.NoError(t, db.AutoMigrate(&models.PaymentLink{}))
	return db
}

func TestGormMirrorRoundTrip(t *testing.T) {
	ctx := context.Background()
	mirror, err := NewGormMirror(setupMirrorDB(t))
	require.NoError(t, err)

	_, ok, err := mirror.LoadLink(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mirror.SaveOrderID(ctx, "client-a", "ORD-1"))
	require.NoError(t, mirror.SaveLink(ctx, "client-a", Record{URL: "https://pay.example/x", ExpiresAtMs: 42}))

	record, ok, err := mirror.LoadLink(ctx, "client-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Record{URL: "https://pay.example/x", ExpiresAtMs: 42}, record)

	orderID, ok, err := mirror.LoadOrderID(ctx, "client-a")
	require.NoError(t, err)
	require.True(t, ok, "saving the link keeps the order id")
	assert.Equal(t, "ORD-1", orderID)

	require.NoError(t, mirror.SaveLink(ctx, "client-a", Record{URL: "https://pay.example/y", ExpiresAtMs: 99}))
	record, _, _ = mirror.LoadLink(ctx, "client-a")
	assert.Equal(t, "https://pay.example/y", record.URL)

	require.NoError(t, mirror.ClearOrderID(ctx, "client-a"))
	_, ok, err = mirror.LoadOrderID(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mirror.Clear(ctx, "client-a"))
	_, ok, err = mirror.LoadLink(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGormMirrorBacksStoreAcrossRestarts(t *testing.T) {
	db := setupMirrorDB(t)
	mirror, err := NewGormMirror(db)
	require.NoError(t, err)
	clock := newFakeClock()

	first, err := NewStore(context.Background(), StoreParams{Scope: "cli", Mirror: mirror, Now: clock.Now})
	require.NoError(t, err)
	first.SetPaymentURL(context.Background(), "https://pay.example/z", 10*time.Minute)
	first.SetCurrentOrderID(context.Background(), "ORD-9")

	second, err := NewStore(context.Background(), StoreParams{Scope: "cli", Mirror: mirror, Now: clock.Now})
	require.NoError(t, err)
	url, ok := second.PaymentURL()
	require.True(t, ok)
	assert.Equal(t, "https://pay.example/z", url)
	id, _ := second.CurrentOrderID()
	assert.Equal(t, "ORD-9", id)
}

func TestGormMirrorPruneBefore(t *testing.T) {
	ctx := context.Background()
	mirror, err := NewGormMirror(setupMirrorDB(t))
	require.NoError(t, err)

	now := time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)

	mirror.now = func() time.Time { return old }
	require.NoError(t, mirror.SaveLink(ctx, "stale", Record{URL: "https://pay.example/a", ExpiresAtMs: old.UnixMilli()}))
	require.NoError(t, mirror.SaveLink(ctx, "tracking", Record{URL: "https://pay.example/b", ExpiresAtMs: old.UnixMilli()}))
	require.NoError(t, mirror.SaveOrderID(ctx, "tracking", "ORD-5"))

	mirror.now = func() time.Time { return now }
	require.NoError(t, mirror.SaveLink(ctx, "fresh", Record{URL: "https://pay.example/c", ExpiresAtMs: now.Add(30 * time.Minute).UnixMilli()}))

	deleted, err := mirror.PruneBefore(ctx, nil, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, ok, err := mirror.LoadLink(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, _ = mirror.LoadLink(ctx, "tracking")
	assert.True(t, ok, "rows that still track an order are kept")
	_, ok, _ = mirror.LoadLink(ctx, "fresh")
	assert.True(t, ok)
}
