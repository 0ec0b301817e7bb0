package tracking

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/paytrack/internal/poller"
	"github.com/angelmondragon/paytrack/pkg/enums"
	pkgerrors "github.com/angelmondragon/paytrack/pkg/errors"
	"github.com/shopspring/decimal"
)

// Snapshot is everything the tracker knows about one scope.
type Snapshot struct {
	ClientScope    string         `json:"clientScope"`
	Session        poller.Session `json:"session"`
	View           poller.View    `json:"view"`
	PaymentLink    *LinkState     `json:"paymentLink,omitempty"`
	CurrentOrderID string         `json:"currentOrderId,omitempty"`
}

// LinkState describes the stored payment link, valid or not.
type LinkState struct {
	URL              string    `json:"url,omitempty"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RemainingSeconds int64     `json:"remainingSeconds"`
	Expired          bool      `json:"expired"`
}

// StatusQuery carries the parameters a payment return page is opened with.
type StatusQuery struct {
	MerchantOrderID string
	Reference       string
	ResultCode      string
	Amount          string
}

// StatusPage is either a started poll or the legacy result-code display.
type StatusPage struct {
	Mode    string          `json:"mode"`
	Session *poller.Session `json:"session,omitempty"`
	View    *poller.View    `json:"view,omitempty"`
	Legacy  *LegacyStatus   `json:"legacy,omitempty"`
}

const (
	StatusModePolling = "polling"
	StatusModeLegacy  = "legacy"
)

// LegacyStatus is derived from the redirect result code alone.
type LegacyStatus struct {
	Status    enums.PaymentStatus `json:"status,omitempty"`
	Known     bool                `json:"known"`
	Reference string              `json:"reference,omitempty"`
	Amount    *decimal.Decimal    `json:"amount,omitempty"`
	Message   string              `json:"message"`
	Redirect  string              `json:"redirect,omitempty"`
}

// StartPolling supersedes any running poll for the scope.
func (s *service) StartPolling(ctx context.Context, scope, orderID string) (poller.Session, error) {
	st, err := s.scope(ctx, scope)
	if err != nil {
		return poller.Session{}, err
	}
	st.cancelRecheck()
	st.setSettled(nil)
	if err := st.poller.Start(s.logg.WithClientScope(ctx, st.id), orderID); err != nil {
		return poller.Session{}, err
	}
	return st.poller.Session(), nil
}

// StopPolling cancels the running poll, if any, and returns the resulting session.
func (s *service) StopPolling(ctx context.Context, scope string) (poller.Session, error) {
	st, err := s.scope(ctx, scope)
	if err != nil {
		return poller.Session{}, err
	}
	st.cancelRecheck()
	st.poller.Stop()
	return st.poller.Session(), nil
}

func (s *service) Snapshot(ctx context.Context, scope string) (*Snapshot, error) {
	st, err := s.scope(ctx, scope)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		ClientScope: st.id,
		Session:     st.poller.Session(),
		View:        st.poller.LastView(),
	}
	if settled := st.settledView(); settled != nil && !snap.Session.Active {
		snap.View = *settled
		snap.Session.State = settled.State
		snap.Session.OrderID = settled.OrderID
	}
	if expiresAt := st.store.ExpiresAt(); !expiresAt.IsZero() {
		url, ok := st.store.PaymentURL()
		snap.PaymentLink = &LinkState{
			URL:              url,
			ExpiresAt:        expiresAt.UTC(),
			RemainingSeconds: st.store.RemainingSeconds(),
			Expired:          !ok,
		}
	}
	snap.CurrentOrderID, _ = st.store.CurrentOrderID()
	return snap, nil
}

// Subscribe streams views for the scope, starting with the latest one. The
// returned func unsubscribes; the channel is closed when the scope goes away.
func (s *service) Subscribe(ctx context.Context, scope string) (<-chan poller.View, func(), error) {
	st, err := s.scope(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := st.hub.subscribe()
	return ch, cancel, nil
}

// StatusPage starts polling when the query names an order and falls back to
// the legacy result-code display otherwise.
func (s *service) StatusPage(ctx context.Context, scope string, query StatusQuery) (*StatusPage, error) {
	orderID := strings.TrimSpace(query.MerchantOrderID)
	if orderID == "" {
		orderID = strings.TrimSpace(query.Reference)
	}

	if orderID != "" {
		session, err := s.StartPolling(ctx, scope, orderID)
		if err != nil {
			return nil, err
		}
		st, err := s.scope(ctx, scope)
		if err != nil {
			return nil, err
		}
		view := st.poller.LastView()
		return &StatusPage{Mode: StatusModePolling, Session: &session, View: &view}, nil
	}

	legacy, err := legacyStatus(query)
	if err != nil {
		return nil, err
	}
	return &StatusPage{Mode: StatusModeLegacy, Legacy: legacy}, nil
}

func legacyStatus(query StatusQuery) (*LegacyStatus, error) {
	out := &LegacyStatus{Reference: strings.TrimSpace(query.Reference)}
	if raw := strings.TrimSpace(query.Amount); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "amount must be numeric")
		}
		out.Amount = &amount
	}

	status, ok := enums.ResultCode(strings.TrimSpace(query.ResultCode)).LegacyPaymentStatus()
	out.Status = status
	out.Known = ok
	switch {
	case !ok:
		out.Message = "Payment status unknown"
	case status == enums.PaymentStatusSuccess:
		out.Message = "Payment successful"
	default:
		out.Message = "Payment failed"
		out.Redirect = StoreRedirect
	}
	return out, nil
}

// Simulate stops the current poll, asks the sandbox backend to fire a callback,
// and polls the order again after the recheck delay.
func (s *service) Simulate(ctx context.Context, scope, orderID string, code enums.ResultCode) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !code.IsSimulatable() {
		return pkgerrors.New(pkgerrors.CodeValidation, "result code must be 00 or 02")
	}

	st, err := s.scope(ctx, scope)
	if err != nil {
		return err
	}
	st.cancelRecheck()
	st.poller.Stop()

	logCtx := s.logg.WithOrderID(s.logg.WithClientScope(ctx, st.id), orderID)
	if err := s.backend.SimulateCallback(ctx, orderID, code); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(logCtx, "result_code", code.String()), "tracking.callback_simulated")

	recheckCtx := context.WithoutCancel(logCtx)
	st.scheduleRecheck(s.recheckDelay, func() {
		if s.isClosed() {
			return
		}
		st.setSettled(nil)
		if err := st.poller.Start(recheckCtx, orderID); err != nil {
			s.logg.Error(recheckCtx, "tracking.recheck_failed", err)
		}
	})
	return nil
}
