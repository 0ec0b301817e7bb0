package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/paytrack/pkg/logger"
	"gorm.io/gorm"
)

const defaultLinkRetention = 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type linkPruner interface {
	PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type LinkRetentionJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Pruner    linkPruner
	Retention time.Duration
}

// NewLinkRetentionJob deletes mirrored payment link rows not updated within Retention.
func NewLinkRetentionJob(params LinkRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Pruner == nil {
		return nil, fmt.Errorf("link pruner required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultLinkRetention
	}
	return &linkRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		pruner:    params.Pruner,
		retention: retention,
		now:       time.Now,
	}, nil
}

type linkRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	pruner    linkPruner
	retention time.Duration
	now       func() time.Time
}

func (j *linkRetentionJob) Name() string { return "payment-link-retention" }

func (j *linkRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.pruner.PruneBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("payment link retention: %w", err)
	}
	if deleted > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		})
		j.logg.Info(logCtx, "payment link retention complete")
	}
	return nil
}
