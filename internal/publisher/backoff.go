package publisher

import (
	"context"
	"math/rand/v2"
	"time"
)

// backoff doubles from base up to ceiling between failed batches.
type backoff struct {
	base, ceiling, cur time.Duration
}

func newBackoff(base, ceiling time.Duration) *backoff {
	return &backoff{base: base, ceiling: ceiling}
}

func (b *backoff) next() time.Duration {
	switch {
	case b.cur == 0:
		b.cur = b.base
	case b.cur < b.ceiling:
		b.cur = min(b.cur*2, b.ceiling)
	}
	return jitter(b.cur)
}

func (b *backoff) reset() { b.cur = 0 }

// jitter adds up to a quarter of d so several publishers drift apart.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := d / 4
	if spread <= 0 {
		return d
	}
	return d + rand.N(spread)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
