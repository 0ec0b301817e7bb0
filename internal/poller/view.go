package poller

import (
	"fmt"
	"time"

	"github.com/angelmondragon/paytrack/internal/orderstatus"
	"github.com/angelmondragon/paytrack/pkg/enums"
	"github.com/google/uuid"
)

// View is what a renderer shows for the current poll state.
type View struct {
	State       enums.PollState     `json:"state"`
	OrderID     string              `json:"orderId"`
	Attempt     int                 `json:"attempt"`
	MaxAttempts int                 `json:"maxAttempts"`
	Result      *orderstatus.Result `json:"result,omitempty"`
	Message     string              `json:"message"`
}

// Renderer receives every view. It is called with the poller lock held and must not call back into the Poller.
type Renderer func(View)

// Session is a snapshot of the active or most recent poll session.
type Session struct {
	ID           string          `json:"sessionId,omitempty"`
	OrderID      string          `json:"orderId"`
	AttemptCount int             `json:"attemptCount"`
	MaxAttempts  int             `json:"maxAttempts"`
	Interval     time.Duration   `json:"-"`
	IntervalMs   int64           `json:"intervalMs"`
	Active       bool            `json:"active"`
	State        enums.PollState `json:"state"`
	StartedAt    time.Time       `json:"startedAt,omitempty"`
}

// Outcome describes how a session ended. One is emitted per session that reaches a terminal state.
type Outcome struct {
	EventID     uuid.UUID           `json:"eventId"`
	ClientScope string              `json:"clientScope,omitempty"`
	OrderID     string              `json:"orderId"`
	State       enums.PollState     `json:"state"`
	Attempts    int                 `json:"attempts"`
	Result      *orderstatus.Result `json:"result,omitempty"`
	StartedAt   time.Time           `json:"startedAt"`
	OccurredAt  time.Time           `json:"occurredAt"`
}

// OutcomeFunc is called once per finished session, outside the poller lock.
type OutcomeFunc func(Outcome)

func checkingMessage(attempt, max int) string {
	return fmt.Sprintf("Checking payment status (attempt %d of %d)", attempt, max)
}

func terminalMessage(state enums.PollState, result *orderstatus.Result) string {
	statusMessage := ""
	if result != nil {
		statusMessage = result.StatusMessage
	}
	switch state {
	case enums.PollStateSuccess:
		return "Payment successful"
	case enums.PollStateFailed:
		if statusMessage != "" {
			return "Payment failed: " + statusMessage
		}
		return "Payment failed"
	case enums.PollStatePending:
		if statusMessage != "" {
			return statusMessage
		}
		return "Payment is being verified"
	case enums.PollStateTimeout:
		return "Could not verify the payment status yet. Try again later."
	case enums.PollStateStopped:
		return "Status check stopped"
	default:
		return ""
	}
}
