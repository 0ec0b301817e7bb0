package enums

import (
	"encoding/json"
	"testing"
)

func TestNormalizePaymentStatus(t *testing.T) {
	cases := map[string]PaymentStatus{
		"SUCCESS":    PaymentStatusSuccess,
		" failed ":   PaymentStatusFailed,
		"PENDING":    PaymentStatusPending,
		"PROCESSING": PaymentStatusPending,
		"":           PaymentStatusPending,
	}
	for in, want := range cases {
		if got := NormalizePaymentStatus(in); got != want {
			t.Fatalf("NormalizePaymentStatus(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParsePaymentStatus("REFUNDED"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestPollStateTerminal(t *testing.T) {
	for _, s := range []PollState{PollStateIdle, PollStatePolling} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	for _, s := range []PollState{PollStateSuccess, PollStateFailed, PollStatePending, PollStateTimeout, PollStateStopped} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if PollStateForStatus(PaymentStatusFailed) != PollStateFailed {
		t.Fatalf("failed status should map to failed state")
	}
	if PollStateForStatus(PaymentStatusPending) != PollStatePending {
		t.Fatalf("pending status should map to pending state")
	}
}

func TestResultCodes(t *testing.T) {
	if status, ok := ResultCodeSuccess.LegacyPaymentStatus(); !ok || status != PaymentStatusSuccess {
		t.Fatalf("00 should map to success")
	}
	if status, ok := ResultCodeFailed.LegacyPaymentStatus(); !ok || status != PaymentStatusFailed {
		t.Fatalf("01 should map to failed")
	}
	if _, ok := ResultCode("99").LegacyPaymentStatus(); ok {
		t.Fatalf("unknown code should carry no verdict")
	}
	if !ResultCodeDeclined.IsSimulatable() || ResultCodeFailed.IsSimulatable() {
		t.Fatalf("unexpected simulatable codes")
	}
}

func TestPaymentStatusUnmarshalNormalizes(t *testing.T) {
	var got struct {
		Status PaymentStatus `json:"status"`
	}
	if err := json.Unmarshal([]byte(`{"status":" success "}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != PaymentStatusSuccess {
		t.Fatalf("expected SUCCESS, got %q", got.Status)
	}
	if err := json.Unmarshal([]byte(`{"status":"REFUNDED"}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != PaymentStatusPending {
		t.Fatalf("unknown values should read as PENDING, got %q", got.Status)
	}
}
