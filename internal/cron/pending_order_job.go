package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/paytrack/pkg/logger"
)

type pendingChecker interface {
	CheckPending(ctx context.Context) (int, error)
}

type PendingOrderJobParams struct {
	Logger  *logger.Logger
	Tracker pendingChecker
}

// NewPendingOrderJob checks tracked orders that no poll is watching.
func NewPendingOrderJob(params PendingOrderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tracker == nil {
		return nil, fmt.Errorf("tracker required")
	}
	return &pendingOrderJob{logg: params.Logger, tracker: params.Tracker}, nil
}

type pendingOrderJob struct {
	logg    *logger.Logger
	tracker pendingChecker
}

func (j *pendingOrderJob) Name() string { return "pending-order-check" }

func (j *pendingOrderJob) Run(ctx context.Context) error {
	settled, err := j.tracker.CheckPending(ctx)
	if settled > 0 {
		j.logg.Info(j.logg.WithField(ctx, "orders_settled", settled), "pending orders settled")
	}
	if err != nil {
		return fmt.Errorf("pending order check: %w", err)
	}
	return nil
}
