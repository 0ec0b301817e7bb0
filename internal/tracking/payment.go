package tracking

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/paytrack/internal/orderstatus"
	pkgerrors "github.com/angelmondragon/paytrack/pkg/errors"
	"github.com/shopspring/decimal"
)

// CheckoutRequest is one product purchase.
type CheckoutRequest struct {
	ProductName string
	Price       decimal.Decimal
}

// CheckoutResult is the new payment link and how long it can be resumed.
type CheckoutResult struct {
	OrderID          string    `json:"merchantOrderId"`
	PaymentURL       string    `json:"paymentUrl"`
	ExpiresAt        time.Time `json:"expiresAt"`
	MinutesRemaining int64     `json:"minutesRemaining"`
}

// ResumeResult is a still-valid payment link.
type ResumeResult struct {
	PaymentURL       string    `json:"paymentUrl"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RemainingSeconds int64     `json:"remainingSeconds"`
	CurrentOrderID   string    `json:"currentOrderId,omitempty"`
}

// Checkout creates a payment on the backend and remembers its link and order id.
func (s *service) Checkout(ctx context.Context, scope string, req CheckoutRequest) (*CheckoutResult, error) {
	name := strings.TrimSpace(req.ProductName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name is required")
	}
	if !req.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	if !req.Price.IsInteger() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be a whole amount")
	}

	st, err := s.scope(ctx, scope)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithClientScope(ctx, st.id)

	payment, err := s.backend.CreatePayment(ctx, orderstatus.PaymentRequest{
		ProductName: name,
		Price:       req.Price.IntPart(),
	})
	if err != nil {
		return nil, err
	}

	record := st.store.SetPaymentURL(ctx, payment.PaymentURL, s.linkTTL)
	if payment.MerchantOrderID != "" {
		st.store.SetCurrentOrderID(ctx, payment.MerchantOrderID)
	}

	s.logg.Info(s.logg.WithOrderID(ctx, payment.MerchantOrderID), "tracking.checkout_created")
	return &CheckoutResult{
		OrderID:          payment.MerchantOrderID,
		PaymentURL:       record.URL,
		ExpiresAt:        time.UnixMilli(record.ExpiresAtMs).UTC(),
		MinutesRemaining: st.store.RemainingSeconds() / 60,
	}, nil
}

// ResumePayment returns the stored link while it is valid. An absent or expired
// link clears the scope and reports CodeLinkExpired with a redirect hint.
func (s *service) ResumePayment(ctx context.Context, scope string) (*ResumeResult, error) {
	st, err := s.scope(ctx, scope)
	if err != nil {
		return nil, err
	}

	url, ok := st.store.PaymentURL()
	if !ok {
		st.store.Clear(ctx)
		s.logg.Info(s.logg.WithClientScope(ctx, st.id), "tracking.payment_link_expired")
		return nil, pkgerrors.New(pkgerrors.CodeLinkExpired, "payment link expired, please start a new purchase").
			WithDetails(map[string]any{"redirect": StoreRedirect})
	}

	orderID, _ := st.store.CurrentOrderID()
	return &ResumeResult{
		PaymentURL:       url,
		ExpiresAt:        st.store.ExpiresAt().UTC(),
		RemainingSeconds: st.store.RemainingSeconds(),
		CurrentOrderID:   orderID,
	}, nil
}

// ClearPaymentLink forgets the link and the tracked order id.
func (s *service) ClearPaymentLink(ctx context.Context, scope string) error {
	st, err := s.scope(ctx, scope)
	if err != nil {
		return err
	}
	st.store.Clear(ctx)
	return nil
}
