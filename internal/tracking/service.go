package tracking

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/paytrack/internal/notify"
	"github.com/angelmondragon/paytrack/internal/orderstatus"
	"github.com/angelmondragon/paytrack/internal/paymentlink"
	"github.com/angelmondragon/paytrack/internal/poller"
	"github.com/angelmondragon/paytrack/pkg/enums"
	pkgerrors "github.com/angelmondragon/paytrack/pkg/errors"
	"github.com/angelmondragon/paytrack/pkg/logger"
	"github.com/angelmondragon/paytrack/pkg/metrics"
)

const (
	DefaultRecheckDelay = time.Second
	// StoreRedirect is where a client goes to start a new purchase.
	StoreRedirect = "/index.html#store"

	maxScopeLength       = 128
	defaultNotifyTimeout = 15 * time.Second
)

// Backend is the payment backend surface the tracker needs.
type Backend interface {
	GetOrderStatus(ctx context.Context, orderID string) (orderstatus.Result, error)
	CreatePayment(ctx context.Context, req orderstatus.PaymentRequest) (orderstatus.Payment, error)
	SimulateCallback(ctx context.Context, orderID string, code enums.ResultCode) error
}

// PollSettings are applied to every per-scope poller.
type PollSettings struct {
	Interval      time.Duration
	MaxAttempts   int
	ErrorBackoff  bool
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Service tracks payment links and order status polls per client scope.
type Service interface {
	Checkout(ctx context.Context, scope string, req CheckoutRequest) (*CheckoutResult, error)
	ResumePayment(ctx context.Context, scope string) (*ResumeResult, error)
	ClearPaymentLink(ctx context.Context, scope string) error
	StartPolling(ctx context.Context, scope, orderID string) (poller.Session, error)
	StopPolling(ctx context.Context, scope string) (poller.Session, error)
	Snapshot(ctx context.Context, scope string) (*Snapshot, error)
	Subscribe(ctx context.Context, scope string) (<-chan poller.View, func(), error)
	StatusPage(ctx context.Context, scope string, query StatusQuery) (*StatusPage, error)
	Simulate(ctx context.Context, scope, orderID string, code enums.ResultCode) error
	CheckPending(ctx context.Context) (int, error)
	EvictIdle(ctx context.Context, olderThan time.Duration) int
	Shutdown()
}

// ServiceParams wires the tracker.
type ServiceParams struct {
	Backend      Backend
	Mirror       paymentlink.Mirror
	Notifier     notify.Notifier
	Logger       *logger.Logger
	Metrics      *metrics.PollMetrics
	Now          func() time.Time
	Poll         PollSettings
	LinkTTL      time.Duration
	RecheckDelay time.Duration
}

type service struct {
	backend      Backend
	mirror       paymentlink.Mirror
	notifier     notify.Notifier
	logg         *logger.Logger
	metrics      *metrics.PollMetrics
	now          func() time.Time
	poll         PollSettings
	linkTTL      time.Duration
	recheckDelay time.Duration

	mu      sync.Mutex
	scopes  map[string]*scopeState
	closed  bool
	pending sync.WaitGroup
}

type scopeState struct {
	id       string
	store    *paymentlink.Store
	poller   *poller.Poller
	hub      *broadcaster
	lastSeen atomic.Int64

	recheckMu sync.Mutex
	recheck   *time.Timer

	// settled is the view of an order settled by the background watcher
	// after the scope's last poll ended. StartPolling resets it.
	viewMu  sync.Mutex
	settled *poller.View
}

// NewService validates params and returns a ready tracker.
func NewService(params ServiceParams) (Service, error) {
	if params.Backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment backend required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	mirror := params.Mirror
	if mirror == nil {
		mirror = paymentlink.NopMirror{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	recheck := params.RecheckDelay
	if recheck <= 0 {
		recheck = DefaultRecheckDelay
	}
	linkTTL := params.LinkTTL
	if linkTTL <= 0 {
		linkTTL = paymentlink.DefaultTTL
	}
	return &service{
		backend:      params.Backend,
		mirror:       mirror,
		notifier:     params.Notifier,
		logg:         logg,
		metrics:      params.Metrics,
		now:          now,
		poll:         params.Poll,
		linkTTL:      linkTTL,
		recheckDelay: recheck,
		scopes:       map[string]*scopeState{},
	}, nil
}

func normalizeScope(scope string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "client scope required")
	}
	if len(scope) > maxScopeLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "client scope too long")
	}
	return scope, nil
}

// scope returns the state for id, creating and hydrating it on first use.
func (s *service) scope(ctx context.Context, id string) (*scopeState, error) {
	id, err := normalizeScope(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tracker is shutting down")
	}
	if st, ok := s.scopes[id]; ok {
		s.mu.Unlock()
		st.touch(s.now())
		return st, nil
	}
	s.mu.Unlock()

	st, err := s.newScope(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tracker is shutting down")
	}
	if existing, ok := s.scopes[id]; ok {
		existing.touch(s.now())
		return existing, nil
	}
	s.scopes[id] = st
	s.logg.Debug(s.logg.WithClientScope(ctx, id), "tracking.scope_created")
	return st, nil
}

func (s *service) newScope(ctx context.Context, id string) (*scopeState, error) {
	store, err := paymentlink.NewStore(ctx, paymentlink.StoreParams{
		Scope:      id,
		Mirror:     s.mirror,
		Logger:     s.logg,
		Now:        s.now,
		DefaultTTL: s.linkTTL,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment link store")
	}

	st := &scopeState{id: id, store: store}
	var hub *broadcaster
	p, err := poller.New(poller.Params{
		Querier: s.backend,
		Logger:  s.logg,
		Metrics: s.metrics,
		Renderer: func(v poller.View) {
			hub.publish(v)
		},
		OnOutcome: func(o poller.Outcome) {
			s.sessionEnded(st, o)
		},
		Scope:         id,
		Now:           s.now,
		Interval:      s.poll.Interval,
		MaxAttempts:   s.poll.MaxAttempts,
		ErrorBackoff:  s.poll.ErrorBackoff,
		RetryDelay:    s.poll.RetryDelay,
		MaxRetryDelay: s.poll.MaxRetryDelay,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create poller")
	}
	hub = newBroadcaster(p.LastView())
	st.poller = p
	st.hub = hub
	st.touch(s.now())
	return st, nil
}

func (st *scopeState) touch(now time.Time) {
	st.lastSeen.Store(now.UnixMilli())
}

func (st *scopeState) idleSince() time.Time {
	return time.UnixMilli(st.lastSeen.Load())
}

// scheduleRecheck replaces any pending recheck with fn after delay.
func (st *scopeState) scheduleRecheck(delay time.Duration, fn func()) {
	st.recheckMu.Lock()
	defer st.recheckMu.Unlock()
	if st.recheck != nil {
		st.recheck.Stop()
	}
	st.recheck = time.AfterFunc(delay, fn)
}

func (st *scopeState) cancelRecheck() {
	st.recheckMu.Lock()
	defer st.recheckMu.Unlock()
	if st.recheck != nil {
		st.recheck.Stop()
		st.recheck = nil
	}
}

func (st *scopeState) setSettled(view *poller.View) {
	st.viewMu.Lock()
	st.settled = view
	st.viewMu.Unlock()
}

func (st *scopeState) settledView() *poller.View {
	st.viewMu.Lock()
	defer st.viewMu.Unlock()
	return st.settled
}

// sessionEnded releases the order slot once a poll has settled the tracked
// order, so the background watcher does not report it again.
func (s *service) sessionEnded(st *scopeState, outcome poller.Outcome) {
	if outcome.State == enums.PollStateSuccess || outcome.State == enums.PollStateFailed {
		ctx := s.logg.WithOrderID(s.logg.WithClientScope(context.Background(), st.id), outcome.OrderID)
		if st.store.ReleaseOrderID(ctx, outcome.OrderID) {
			s.logg.Debug(ctx, "tracking.order_slot_released")
		}
	}
	s.dispatch(outcome)
}

// dispatch forwards an outcome to the notifiers without holding up the poller.
func (s *service) dispatch(outcome poller.Outcome) {
	if s.notifier == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), defaultNotifyTimeout)
		defer cancel()
		ctx = s.logg.WithFields(ctx, map[string]any{
			"event_id":     outcome.EventID.String(),
			"order_id":     outcome.OrderID,
			"client_scope": outcome.ClientScope,
			"state":        outcome.State.String(),
		})
		if err := s.notifier.Notify(ctx, outcome); err != nil {
			s.logg.Error(ctx, "tracking.notify_failed", err)
			return
		}
		s.logg.Debug(ctx, "tracking.outcome_notified")
	}()
}

// Shutdown stops every poll, waits for their goroutines and flushes notifications.
func (s *service) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	scopes := make([]*scopeState, 0, len(s.scopes))
	for _, st := range s.scopes {
		scopes = append(scopes, st)
	}
	s.scopes = map[string]*scopeState{}
	s.mu.Unlock()

	for _, st := range scopes {
		st.cancelRecheck()
		st.poller.Stop()
	}
	for _, st := range scopes {
		st.poller.Wait()
		st.hub.close()
	}
	s.pending.Wait()
	s.logg.Info(context.Background(), "tracking.shutdown_complete")
}
