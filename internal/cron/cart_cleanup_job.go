package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/partsdepot/cart-service/pkg/logger"
)

const cartCleanupDays = 7

type CartCleanupJobParams struct {
	Logger  *logger.Logger
	Carts   staleCartDeactivator
	MaxIdle int
}

type staleCartDeactivator interface {
	DeactivateStaleGuestCarts(ctx context.Context, olderThan time.Time) (int64, error)
}

// NewCartCleanupJob deactivates guest carts idle for more than MaxIdle days.
func NewCartCleanupJob(params CartCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	return &cartCleanupJob{
		logg:  params.Logger,
		carts: params.Carts,
		days:  positiveOr(params.MaxIdle, cartCleanupDays),
		now:   time.Now,
	}, nil
}

type cartCleanupJob struct {
	logg  *logger.Logger
	carts staleCartDeactivator
	days  int
	now   func() time.Time
}

func (j *cartCleanupJob) Name() string { return "cart-cleanup" }

func (j *cartCleanupJob) Run(ctx context.Context) error {
	cutoff := retentionCutoff(j.now(), j.days)
	deactivated, err := j.carts.DeactivateStaleGuestCarts(ctx, cutoff)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"max_idle_days":    j.days,
		"rows_deactivated": deactivated,
	})
	if err != nil {
		return fmt.Errorf("cart cleanup: %w", err)
	}
	j.logg.Info(logCtx, "stale guest carts deactivated")
	return nil
}
