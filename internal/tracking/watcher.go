package tracking

import (
	"context"
	"time"

	"github.com/angelmondragon/paytrack/internal/orderstatus"
	"github.com/angelmondragon/paytrack/internal/poller"
	"github.com/angelmondragon/paytrack/pkg/enums"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

func (s *service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *service) snapshotScopes() []*scopeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*scopeState, 0, len(s.scopes))
	for _, st := range s.scopes {
		out = append(out, st)
	}
	return out
}

// CheckPending runs one status check for every idle scope that still tracks an
// order. Settled orders emit an outcome and release the order slot. It returns
// how many orders settled.
func (s *service) CheckPending(ctx context.Context) (int, error) {
	var (
		settled int
		errs    error
	)
	for _, st := range s.snapshotScopes() {
		if err := ctx.Err(); err != nil {
			return settled, multierr.Append(errs, err)
		}
		if st.poller.Session().Active {
			continue
		}
		orderID, ok := st.store.CurrentOrderID()
		if !ok {
			continue
		}

		checkCtx := s.logg.WithOrderID(s.logg.WithClientScope(ctx, st.id), orderID)
		started := s.now()
		result, err := s.backend.GetOrderStatus(checkCtx, orderID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(checkCtx, "error", err.Error()), "tracking.pending_check_failed")
			errs = multierr.Append(errs, err)
			continue
		}
		if !result.Found || !result.Status.IsSettled() {
			continue
		}

		s.settle(checkCtx, st, orderID, result, started)
		settled++
	}
	return settled, errs
}

func (s *service) settle(ctx context.Context, st *scopeState, orderID string, result orderstatus.Result, started time.Time) {
	st.store.ClearCurrentOrderID(ctx)

	state := enums.PollStateForStatus(result.Status)
	view := poller.View{
		State:   state,
		OrderID: orderID,
		Result:  &result,
		Message: settledMessage(state),
	}
	st.setSettled(&view)
	st.hub.publish(view)
	s.metrics.ObserveOutcome(state.String(), s.now().Sub(started))
	s.logg.Info(s.logg.WithField(ctx, "state", state.String()), "tracking.pending_order_settled")

	s.dispatch(poller.Outcome{
		EventID:     uuid.New(),
		ClientScope: st.id,
		OrderID:     orderID,
		State:       state,
		Attempts:    1,
		Result:      &result,
		StartedAt:   started,
		OccurredAt:  s.now(),
	})
}

func settledMessage(state enums.PollState) string {
	if state == enums.PollStateSuccess {
		return "Payment successful"
	}
	return "Payment failed"
}

// EvictIdle drops scopes untouched for longer than olderThan that have no
// active poll and no subscribers. Mirrored data is kept.
func (s *service) EvictIdle(ctx context.Context, olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	var evicted []*scopeState
	for id, st := range s.scopes {
		if st.idleSince().After(cutoff) {
			continue
		}
		if st.poller.Session().Active || st.hub.subscribers() > 0 {
			continue
		}
		delete(s.scopes, id)
		evicted = append(evicted, st)
	}
	s.mu.Unlock()

	for _, st := range evicted {
		st.cancelRecheck()
		st.poller.Wait()
		st.hub.close()
	}
	if len(evicted) > 0 {
		s.logg.Info(s.logg.WithField(ctx, "evicted", len(evicted)), "tracking.idle_scopes_evicted")
	}
	return len(evicted)
}
