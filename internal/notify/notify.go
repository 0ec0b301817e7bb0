package notify

import (
	"context"

	"github.com/angelmondragon/paytrack/internal/poller"
	"go.uber.org/multierr"
)

// EventTypePollOutcome tags every published poll outcome.
const EventTypePollOutcome = "payment.poll.outcome"

// Notifier receives finished poll sessions.
type Notifier interface {
	Notify(ctx context.Context, outcome poller.Outcome) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, outcome poller.Outcome) error

func (f Func) Notify(ctx context.Context, outcome poller.Outcome) error {
	return f(ctx, outcome)
}

// Multi delivers an outcome to every notifier and combines their errors.
type Multi []Notifier

// Combine drops nil notifiers. It returns nil when nothing is left.
func Combine(notifiers ...Notifier) Multi {
	out := make(Multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (m Multi) Notify(ctx context.Context, outcome poller.Outcome) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.Notify(ctx, outcome))
	}
	return err
}
