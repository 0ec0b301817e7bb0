package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/paytrack/internal/orderstatus"
	"github.com/angelmondragon/paytrack/pkg/enums"
	pkgerrors "github.com/angelmondragon/paytrack/pkg/errors"
	"github.com/angelmondragon/paytrack/pkg/logger"
	"github.com/angelmondragon/paytrack/pkg/metrics"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultInterval      = 3 * time.Second
	DefaultMaxAttempts   = 20
	DefaultRetryDelay    = 5 * time.Second
	DefaultMaxRetryDelay = 30 * time.Second
)

var (
	errNotFound   = errors.New("order status not found yet")
	errSuperseded = errors.New("poll session superseded")
)

// Querier fetches one order status.
type Querier interface {
	GetOrderStatus(ctx context.Context, orderID string) (orderstatus.Result, error)
}

// Params configures a Poller.
type Params struct {
	Querier   Querier
	Logger    *logger.Logger
	Metrics   *metrics.PollMetrics
	Renderer  Renderer
	OnOutcome OutcomeFunc
	Scope     string
	Now       func() time.Time

	Interval    time.Duration
	MaxAttempts int
	// ErrorBackoff makes failed queries wait an exponential delay from RetryDelay
	// up to MaxRetryDelay. Not-found answers always wait Interval.
	ErrorBackoff  bool
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Poller drives bounded status polling for one order at a time.
type Poller struct {
	querier   Querier
	logg      *logger.Logger
	metrics   *metrics.PollMetrics
	render    Renderer
	onOutcome OutcomeFunc
	scope     string
	now       func() time.Time

	interval      time.Duration
	maxAttempts   int
	errorBackoff  bool
	retryDelay    time.Duration
	maxRetryDelay time.Duration

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	session Session
	result  *orderstatus.Result
	wg      sync.WaitGroup
}

// New builds a Poller, applying defaults for unset timings.
func New(params Params) (*Poller, error) {
	if params.Querier == nil {
		return nil, errors.New("querier required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	interval := params.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	retryDelay := params.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	maxRetryDelay := params.MaxRetryDelay
	if maxRetryDelay < retryDelay {
		maxRetryDelay = DefaultMaxRetryDelay
		if maxRetryDelay < retryDelay {
			maxRetryDelay = retryDelay
		}
	}

	return &Poller{
		querier:       params.Querier,
		logg:          logg,
		metrics:       params.Metrics,
		render:        params.Renderer,
		onOutcome:     params.OnOutcome,
		scope:         params.Scope,
		now:           now,
		interval:      interval,
		maxAttempts:   maxAttempts,
		errorBackoff:  params.ErrorBackoff,
		retryDelay:    retryDelay,
		maxRetryDelay: maxRetryDelay,
		session:       Session{State: enums.PollStateIdle, MaxAttempts: maxAttempts, Interval: interval, IntervalMs: interval.Milliseconds()},
	}, nil
}

// Start begins polling orderID, superseding any running session. The first
// query is issued immediately. The session outlives ctx's cancellation; use Stop.
func (p *Poller) Start(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	if p.session.Active {
		p.cancel()
		p.logg.Info(p.logg.WithOrderID(ctx, p.session.OrderID), "poll.superseded")
	}
	p.gen++
	gen := p.gen
	sessionID := uuid.NewString()

	logCtx := p.logg.WithFields(ctx, map[string]any{
		"order_id":     orderID,
		"session_id":   sessionID,
		"client_scope": p.scope,
	})
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(logCtx))
	p.cancel = cancel
	p.result = nil
	p.session = Session{
		ID:          sessionID,
		OrderID:     orderID,
		MaxAttempts: p.maxAttempts,
		Interval:    p.interval,
		IntervalMs:  p.interval.Milliseconds(),
		Active:      true,
		State:       enums.PollStatePolling,
		StartedAt:   p.now(),
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.logg.Info(logCtx, "poll.start")
	go p.run(sessionCtx, gen, orderID)
	return nil
}

// Stop cancels the running session and renders the stopped view. It is a no-op when idle or already finished.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.session.Active {
		p.mu.Unlock()
		return
	}
	p.gen++
	outcome := p.finishLocked(enums.PollStateStopped, nil)
	p.mu.Unlock()

	p.emit(outcome)
}

// State returns the current lifecycle state.
func (p *Poller) State() enums.PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.State
}

// Session returns a snapshot of the current or last session.
func (p *Poller) Session() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// LastView rebuilds the view for the current state, so late subscribers can catch up.
func (p *Poller) LastView() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

// Wait blocks until every session goroutine has returned.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, gen uint64, orderID string) {
	defer p.wg.Done()

	lastFailed := false
	backoff := retry.WithMaxRetries(uint64(p.maxAttempts-1), p.schedule(&lastFailed))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		found, err := p.attempt(ctx, gen, orderID)
		switch {
		case errors.Is(err, errSuperseded):
			return err
		case err != nil:
			lastFailed = true
			return retry.RetryableError(err)
		case !found:
			lastFailed = false
			return retry.RetryableError(errNotFound)
		default:
			return nil
		}
	})
	if err == nil || errors.Is(err, errSuperseded) || ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	if gen != p.gen || !p.session.Active {
		p.mu.Unlock()
		return
	}
	outcome := p.finishLocked(enums.PollStateTimeout, nil)
	p.mu.Unlock()

	p.emit(outcome)
}

// schedule returns the wait before the next attempt: Interval after not-found answers,
// and Interval or a capped exponential delay after failures.
func (p *Poller) schedule(lastFailed *bool) retry.Backoff {
	newErrBackoff := func() retry.Backoff {
		return retry.WithCappedDuration(p.maxRetryDelay, retry.NewExponential(p.retryDelay))
	}
	errBackoff := newErrBackoff()

	return retry.BackoffFunc(func() (time.Duration, bool) {
		if !p.errorBackoff || !*lastFailed {
			errBackoff = newErrBackoff()
			return p.interval, false
		}
		return errBackoff.Next()
	})
}

// attempt runs one query. It returns errSuperseded when the session is no longer current.
func (p *Poller) attempt(ctx context.Context, gen uint64, orderID string) (bool, error) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return false, errSuperseded
	}
	p.session.AttemptCount++
	attempt := p.session.AttemptCount
	p.renderLocked(p.viewLocked())
	p.mu.Unlock()

	result, err := p.querier.GetOrderStatus(ctx, orderID)

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		p.logg.Debug(ctx, "poll.stale_response_discarded")
		return false, errSuperseded
	}

	if err != nil {
		p.mu.Unlock()
		p.metrics.ObserveAttempt("error")
		p.metrics.IncBackendError(string(orderstatus.KindOf(err)))
		attemptCtx := p.logg.WithField(ctx, "attempt", attempt)
		p.logg.Warn(p.logg.WithField(attemptCtx, "error", err.Error()), "poll.attempt_failed")
		return false, err
	}
	if !result.Found {
		p.mu.Unlock()
		p.metrics.ObserveAttempt("not_found")
		p.logg.Debug(p.logg.WithField(ctx, "attempt", attempt), "poll.not_found")
		return false, nil
	}

	p.metrics.ObserveAttempt("found")
	outcome := p.finishLocked(enums.PollStateForStatus(result.Status), &result)
	p.mu.Unlock()

	p.emit(outcome)
	return true, nil
}

// finishLocked moves the session to a terminal state and renders it. p.mu must be held.
func (p *Poller) finishLocked(state enums.PollState, result *orderstatus.Result) Outcome {
	if p.cancel != nil {
		p.cancel()
	}
	p.session.Active = false
	p.session.State = state
	p.result = result
	p.renderLocked(p.viewLocked())

	now := p.now()
	p.metrics.ObserveOutcome(state.String(), now.Sub(p.session.StartedAt))
	return Outcome{
		EventID:     uuid.New(),
		ClientScope: p.scope,
		OrderID:     p.session.OrderID,
		State:       state,
		Attempts:    p.session.AttemptCount,
		Result:      result,
		StartedAt:   p.session.StartedAt,
		OccurredAt:  now,
	}
}

func (p *Poller) viewLocked() View {
	view := View{
		State:       p.session.State,
		OrderID:     p.session.OrderID,
		Attempt:     p.session.AttemptCount,
		MaxAttempts: p.session.MaxAttempts,
		Result:      p.result,
	}
	if view.State == enums.PollStatePolling {
		view.Message = checkingMessage(view.Attempt, view.MaxAttempts)
	} else {
		view.Message = terminalMessage(view.State, p.result)
	}
	return view
}

func (p *Poller) renderLocked(view View) {
	if p.render != nil {
		p.render(view)
	}
}

func (p *Poller) emit(outcome Outcome) {
	ctx := p.logg.WithFields(context.Background(), map[string]any{
		"order_id":     outcome.OrderID,
		"client_scope": outcome.ClientScope,
		"state":        outcome.State.String(),
		"attempts":     outcome.Attempts,
	})
	p.logg.Info(ctx, "poll.finished")
	if p.onOutcome != nil {
		p.onOutcome(outcome)
	}
}
