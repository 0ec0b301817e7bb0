package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/paytrack/api/controllers"
	"github.com/angelmondragon/paytrack/api/routes"
	"github.com/angelmondragon/paytrack/internal/cron"
	"github.com/angelmondragon/paytrack/internal/notify"
	"github.com/angelmondragon/paytrack/internal/orderstatus"
	"github.com/angelmondragon/paytrack/internal/paymentlink"
	"github.com/angelmondragon/paytrack/internal/tracking"
	"github.com/angelmondragon/paytrack/pkg/bigquery"
	"github.com/angelmondragon/paytrack/pkg/config"
	"github.com/angelmondragon/paytrack/pkg/db"
	"github.com/angelmondragon/paytrack/pkg/instance"
	"github.com/angelmondragon/paytrack/pkg/logger"
	"github.com/angelmondragon/paytrack/pkg/metrics"
	"github.com/angelmondragon/paytrack/pkg/migrate"
	"github.com/angelmondragon/paytrack/pkg/pubsub"
	"github.com/angelmondragon/paytrack/pkg/redis"
)

const (
	shutdownTimeout     = 15 * time.Second
	idleSweepEvery      = 5 * time.Minute
	retentionSweepEvery = time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Instance:    instance.GetID(),
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pingers := map[string]controllers.Pinger{}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		pingers["redis"] = redisClient.Ping
	}

	var (
		dbClient *db.Client
		mirror   paymentlink.Mirror = paymentlink.NopMirror{}
		jobs     []cron.Job
	)
	switch strings.ToLower(strings.TrimSpace(cfg.PaymentLink.Mirror)) {
	case config.MirrorRedis:
		redisMirror, err := paymentlink.NewRedisMirror(redisClient, cfg.PaymentLink.Retention)
		if err != nil {
			logg.Error(ctx, "failed to create redis mirror", err)
			os.Exit(1)
		}
		mirror = redisMirror
	case config.MirrorDB:
		dbClient, err = db.New(ctx, cfg.DB, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap database", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing database", err)
			}
		}()
		if err := migrate.AutoApply(ctx, cfg, logg, dbClient); err != nil {
			logg.Error(ctx, "failed to run dev migrations", err)
			os.Exit(1)
		}
		gormMirror, err := paymentlink.NewGormMirror(dbClient.DB())
		if err != nil {
			logg.Error(ctx, "failed to create db mirror", err)
			os.Exit(1)
		}
		mirror = gormMirror
		pingers["db"] = dbClient.Ping

		retentionJob, err := cron.NewLinkRetentionJob(cron.LinkRetentionJobParams{
			Logger:    logg,
			DB:        dbClient,
			Pruner:    gormMirror,
			Retention: cfg.PaymentLink.Retention,
		})
		if err != nil {
			logg.Error(ctx, "failed to create link retention job", err)
			os.Exit(1)
		}
		jobs = append(jobs, retentionJob)
	}

	notifier, closeNotifiers := buildNotifiers(ctx, cfg, logg.Component("notify"), pingers)
	defer closeNotifiers()

	backend, err := orderstatus.NewClient(cfg.Backend.BaseURL, orderstatus.WithTimeout(cfg.Backend.Timeout))
	if err != nil {
		logg.Error(ctx, "failed to create order status client", err)
		os.Exit(1)
	}

	tracker, err := tracking.NewService(tracking.ServiceParams{
		Backend:  backend,
		Mirror:   mirror,
		Notifier: notifier,
		Logger:   logg.Component("tracking"),
		Metrics:  metrics.NewPollMetrics(registry),
		Poll: tracking.PollSettings{
			Interval:      cfg.Poller.Interval,
			MaxAttempts:   cfg.Poller.MaxAttempts,
			ErrorBackoff:  cfg.Poller.ErrorBackoff,
			RetryDelay:    cfg.Poller.RetryDelay,
			MaxRetryDelay: cfg.Poller.MaxRetryDelay,
		},
		LinkTTL:      cfg.PaymentLink.TTL,
		RecheckDelay: cfg.Poller.RecheckDelay,
	})
	if err != nil {
		logg.Error(ctx, "failed to create tracking service", err)
		os.Exit(1)
	}
	defer tracker.Shutdown()

	if cfg.Cron.Enabled {
		cronService, err := buildCron(cfg, logg, redisClient, tracker, registry, jobs)
		if err != nil {
			logg.Error(ctx, "failed to create cron service", err)
			os.Exit(1)
		}
		go func() {
			if err := cronService.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "cron loop stopped unexpectedly", err)
			}
		}()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"addr":   addr,
		"mirror": cfg.PaymentLink.Mirror,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			Tracking: tracker,
			Redis:    redisClient,
			Pingers:  pingers,
			Gatherer: registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
	}
}

func buildNotifiers(ctx context.Context, cfg *config.Config, logg *logger.Logger, pingers map[string]controllers.Pinger) (notify.Notifier, func()) {
	var (
		notifiers []notify.Notifier
		closers   []func() error
	)

	if strings.TrimSpace(cfg.PubSub.OutcomeTopic) != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "pubsub disabled: client bootstrap failed", err)
		} else {
			publisher := psClient.OutcomePublisher()
			notifier, err := notify.NewPubSubNotifier(publisher)
			if err != nil {
				logg.Error(ctx, "pubsub disabled: publisher unavailable", err)
				_ = psClient.Close()
			} else {
				notifiers = append(notifiers, notifier)
				closers = append(closers, func() error {
					publisher.Stop()
					return psClient.Close()
				})
				pingers["pubsub"] = psClient.Ping
			}
		}
	}

	if strings.TrimSpace(cfg.BigQuery.OutcomeTable) != "" {
		bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(ctx, "bigquery disabled: client bootstrap failed", err)
		} else {
			notifier, err := notify.NewBigQueryNotifier(bqClient, bqClient.OutcomeTable())
			if err == nil {
				err = bqClient.EnsureOutcomeTable(ctx, notify.OutcomeSchema, cfg.BigQuery.CreateTable)
			}
			if err != nil {
				logg.Error(ctx, "bigquery disabled: outcome table unavailable", err)
				_ = bqClient.Close()
			} else {
				notifiers = append(notifiers, notifier)
				closers = append(closers, bqClient.Close)
				pingers["bigquery"] = bqClient.Ping
			}
		}
	}

	closeAll := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logg.Error(context.Background(), "error closing notifier client", err)
			}
		}
	}
	if len(notifiers) == 0 {
		return nil, closeAll
	}
	return notify.Combine(notifiers...), closeAll
}

func buildCron(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, tracker tracking.Service, registry prometheus.Registerer, extra []cron.Job) (*cron.Service, error) {
	logg = logg.Component("cron")
	var lock cron.Lock = &cron.LocalLock{}
	if redisClient != nil {
		redisLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), 0)
		if err != nil {
			return nil, err
		}
		lock = redisLock
	}

	pendingJob, err := cron.NewPendingOrderJob(cron.PendingOrderJobParams{Logger: logg, Tracker: tracker})
	if err != nil {
		return nil, err
	}
	idleJob, err := cron.NewIdleScopeJob(cron.IdleScopeJobParams{Logger: logg, Tracker: tracker, IdleTTL: cfg.Cron.IdleTTL})
	if err != nil {
		return nil, err
	}

	jobs := cron.NewRegistry(pendingJob)
	if err := jobs.RegisterEvery(idleJob, idleSweepEvery); err != nil {
		return nil, err
	}
	for _, job := range extra {
		if err := jobs.RegisterEvery(job, retentionSweepEvery); err != nil {
			return nil, err
		}
	}
	return cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(registry),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
}
