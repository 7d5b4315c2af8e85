package migrate

import (
	"context"
	"fmt"

	"github.com/partsdepot/cart-service/pkg/config"
	"github.com/partsdepot/cart-service/pkg/db"
	"github.com/partsdepot/cart-service/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot, only in dev and only
// with PARTSDEPOT_AUTO_MIGRATE set. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	migrator, err := New(sqlDB, nil)
	if err != nil {
		return err
	}
	applied, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range applied {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":  r.Version,
			"file":     r.Path,
			"duration": r.Duration,
		}), "migration applied")
	}
	logg.Info(logg.WithField(ctx, "applied", len(applied)), "dev auto-migrate complete")
	return nil
}
