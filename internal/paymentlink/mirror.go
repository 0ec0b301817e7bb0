package paymentlink

import "context"

// Mirror is the durable copy behind a Store. Implementations key everything by client scope.
type Mirror interface {
	LoadLink(ctx context.Context, scope string) (Record, bool, error)
	SaveLink(ctx context.Context, scope string, record Record) error
	LoadOrderID(ctx context.Context, scope string) (string, bool, error)
	SaveOrderID(ctx context.Context, scope, orderID string) error
	ClearOrderID(ctx context.Context, scope string) error
	Clear(ctx context.Context, scope string) error
}

// NopMirror keeps nothing; stores backed by it live only in memory.
type NopMirror struct{}

func (NopMirror) LoadLink(context.Context, string) (Record, bool, error)    { return Record{}, false, nil }
func (NopMirror) SaveLink(context.Context, string, Record) error            { return nil }
func (NopMirror) LoadOrderID(context.Context, string) (string, bool, error) { return "", false, nil }
func (NopMirror) SaveOrderID(context.Context, string, string) error         { return nil }
func (NopMirror) ClearOrderID(context.Context, string) error                { return nil }
func (NopMirror) Clear(context.Context, string) error                       { return nil }
