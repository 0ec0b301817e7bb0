package enums

// ResultCode is the two-digit gateway result carried on legacy redirects and sandbox callbacks.
type ResultCode string

const (
	ResultCodeSuccess ResultCode = "00"
	ResultCodeFailed  ResultCode = "01"
	// ResultCodeDeclined is what the sandbox sends to simulate a failed payment.
	ResultCodeDeclined ResultCode = "02"
)

// String implements fmt.Stringer.
func (r ResultCode) String() string {
	return string(r)
}

// IsSimulatable reports whether the sandbox callback accepts the code.
func (r ResultCode) IsSimulatable() bool {
	return r == ResultCodeSuccess || r == ResultCodeDeclined
}

// LegacyPaymentStatus maps a redirect result code to the status shown without an order id.
// ok is false for codes that carry no verdict.
func (r ResultCode) LegacyPaymentStatus() (status PaymentStatus, ok bool) {
	switch r {
	case ResultCodeSuccess:
		return PaymentStatusSuccess, true
	case ResultCodeFailed:
		return PaymentStatusFailed, true
	default:
		return "", false
	}
}
