package enums

import (
	"fmt"
	"strings"
)

// PaymentStatus is the order status reported by the payment backend.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed:
		return true
	}
	return false
}

// IsSettled reports whether the backend will not change the status again.
func (p PaymentStatus) IsSettled() bool {
	return p == PaymentStatusSuccess || p == PaymentStatusFailed
}

// ParsePaymentStatus accepts any casing and surrounding whitespace.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payment status %q", value)
	}
	return status, nil
}

// NormalizePaymentStatus treats anything unrecognized as still pending, so an
// unexpected backend value never settles an order.
func NormalizePaymentStatus(value string) PaymentStatus {
	if status, err := ParsePaymentStatus(value); err == nil {
		return status
	}
	return PaymentStatusPending
}

// UnmarshalText normalizes decoded values the same way.
func (p *PaymentStatus) UnmarshalText(text []byte) error {
	*p = NormalizePaymentStatus(string(text))
	return nil
}
