package database

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// backoff retries an operation with exponentially growing, jittered delays.
type backoff struct {
	retries int
	base    time.Duration
	max     time.Duration
	factor  float64
	jitter  float64 // fraction of each delay added at random
}

func defaultBackoff() backoff {
	return backoff{
		retries: 5,
		base:    100 * time.Millisecond,
		max:     30 * time.Second,
		factor:  2,
		jitter:  0.25,
	}
}

func (b backoff) delay(attempt int) time.Duration {
	d := math.Min(float64(b.base)*math.Pow(b.factor, float64(attempt)), float64(b.max))
	if b.jitter > 0 {
		d += rand.Float64() * d * b.jitter
	}
	return time.Duration(d)
}

// retry calls fn until it succeeds, the retries are spent or ctx is done.
func (b backoff) retry(ctx context.Context, log *slog.Logger, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= b.retries {
			return fmt.Errorf("gave up after %d attempts: %w", attempt+1, err)
		}

		wait := b.delay(attempt)
		log.LogAttrs(ctx, slog.LevelDebug, "Database attempt failed, backing off",
			slog.String("event", "db_retry"),
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
