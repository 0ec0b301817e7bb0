package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/paytrack/internal/orderstatus"
	"github.com/angelmondragon/paytrack/internal/paymentlink"
	"github.com/angelmondragon/paytrack/internal/tracking"
	"github.com/angelmondragon/paytrack/pkg/config"
	"github.com/angelmondragon/paytrack/pkg/db"
	"github.com/angelmondragon/paytrack/pkg/logger"
	"github.com/angelmondragon/paytrack/pkg/migrate"
)

type cliConfig struct {
	BackendURL     string        `envconfig:"PAYTRACK_BACKEND_URL" default:"http://localhost:3000"`
	BackendTimeout time.Duration `envconfig:"PAYTRACK_BACKEND_TIMEOUT" default:"10s"`
	DBPath         string        `envconfig:"PAYTRACK_CLI_DB" default:"paytrack.db"`
	Scope          string        `envconfig:"PAYTRACK_CLI_SCOPE" default:"cli"`
	PollInterval   time.Duration `envconfig:"PAYTRACK_POLL_INTERVAL" default:"3s"`
	MaxAttempts    int           `envconfig:"PAYTRACK_POLL_MAX_ATTEMPTS" default:"20"`
	LinkTTL        time.Duration `envconfig:"PAYTRACK_PAYMENT_LINK_TTL" default:"30m"`
	LogLevel       string        `envconfig:"PAYTRACK_LOG_LEVEL" default:"warn"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	_ = godotenv.Load()

	var cfg cliConfig
	if err := envconfig.Process(config.EnvPrefix, &cfg); err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 2
	}

	logg := logger.New(logger.Options{
		ServiceName: "paytrack-cli",
		Level:       cfg.LogLevel,
		Format:      "console",
		Output:      stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := bootstrap(ctx, cfg, logg)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer cleanup()

	cli := &app{svc: svc, scope: cfg.Scope, out: stdout}
	if err := cli.dispatch(ctx, args); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(stderr, usage)
			return 2
		}
		fmt.Fprintf(stderr, "error: %v\n", describe(err))
		return 1
	}
	return 0
}

func bootstrap(ctx context.Context, cfg cliConfig, logg *logger.Logger) (tracking.Service, func(), error) {
	dbCfg := config.DBConfig{
		Driver:       config.DBDriverSQLite,
		DSN:          cfg.DBPath,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	dbClient, err := db.New(ctx, dbCfg, logg)
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.AutoApply(ctx, &config.Config{DB: dbCfg}, logg, dbClient); err != nil {
		_ = dbClient.Close()
		return nil, nil, err
	}
	mirror, err := paymentlink.NewGormMirror(dbClient.DB())
	if err != nil {
		_ = dbClient.Close()
		return nil, nil, err
	}

	backend, err := orderstatus.NewClient(cfg.BackendURL, orderstatus.WithTimeout(cfg.BackendTimeout))
	if err != nil {
		_ = dbClient.Close()
		return nil, nil, err
	}

	svc, err := tracking.NewService(tracking.ServiceParams{
		Backend: backend,
		Mirror:  mirror,
		Logger:  logg,
		Poll: tracking.PollSettings{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.MaxAttempts,
		},
		LinkTTL: cfg.LinkTTL,
	})
	if err != nil {
		_ = dbClient.Close()
		return nil, nil, err
	}

	cleanup := func() {
		svc.Shutdown()
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}
	return svc, cleanup, nil
}
