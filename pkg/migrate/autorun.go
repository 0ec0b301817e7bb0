package migrate

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/paytrack/pkg/config"
	"github.com/angelmondragon/paytrack/pkg/db"
	"github.com/angelmondragon/paytrack/pkg/logger"
)

// ShouldAutoApply reports whether opening the database should also migrate it.
// SQLite state files always are; Postgres only in dev with auto-migrate on.
func ShouldAutoApply(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.DB.IsSQLite() || (cfg.App.IsDev() && cfg.App.AutoMigrate)
}

// AutoApply brings the database up to the embedded migrations when
// ShouldAutoApply allows it, logging the resulting schema version.
func AutoApply(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !ShouldAutoApply(cfg) {
		return nil
	}
	if client == nil {
		return fmt.Errorf("database client is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	dialect := db.Dialect(cfg.DB)
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dialect": dialect})
	if err := Run(ctx, sqlDB, dialect, EmbeddedDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	logg.Info(logg.WithField(ctx, "schema_version", version), "migrations applied")
	return nil
}
