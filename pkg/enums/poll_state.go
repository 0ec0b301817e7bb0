package enums

// PollState is the lifecycle state of a poll session.
type PollState string

const (
	PollStateIdle    PollState = "IDLE"
	PollStatePolling PollState = "POLLING"
	PollStateSuccess PollState = "SUCCESS"
	PollStateFailed  PollState = "FAILED"
	PollStatePending PollState = "PENDING"
	PollStateTimeout PollState = "TIMEOUT"
	PollStateStopped PollState = "STOPPED"
)

// String implements fmt.Stringer.
func (s PollState) String() string {
	return string(s)
}

// IsTerminal reports whether the state ends a session.
func (s PollState) IsTerminal() bool {
	switch s {
	case PollStateSuccess, PollStateFailed, PollStatePending, PollStateTimeout, PollStateStopped:
		return true
	}
	return false
}

// PollStateForStatus maps a definitive backend status to its terminal poll state.
func PollStateForStatus(status PaymentStatus) PollState {
	switch status {
	case PaymentStatusSuccess:
		return PollStateSuccess
	case PaymentStatusFailed:
		return PollStateFailed
	default:
		return PollStatePending
	}
}
