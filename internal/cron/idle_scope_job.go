package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/paytrack/pkg/logger"
)

const defaultIdleTTL = 2 * time.Hour

type idleEvictor interface {
	EvictIdle(ctx context.Context, olderThan time.Duration) int
}

type IdleScopeJobParams struct {
	Logger  *logger.Logger
	Tracker idleEvictor
	IdleTTL time.Duration
}

// NewIdleScopeJob releases in-memory client scopes nobody has touched for IdleTTL.
func NewIdleScopeJob(params IdleScopeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tracker == nil {
		return nil, fmt.Errorf("tracker required")
	}
	ttl := params.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	return &idleScopeJob{logg: params.Logger, tracker: params.Tracker, idleTTL: ttl}, nil
}

type idleScopeJob struct {
	logg    *logger.Logger
	tracker idleEvictor
	idleTTL time.Duration
}

func (j *idleScopeJob) Name() string { return "idle-scope-eviction" }

func (j *idleScopeJob) Run(ctx context.Context) error {
	j.tracker.EvictIdle(ctx, j.idleTTL)
	return nil
}
