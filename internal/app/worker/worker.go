package worker

import (
	"context"
	"log/slog"
	"time"

	"meshup/internal/core/contracts"
)

// RingingSweeper moves calls that rang longer than the ring timeout to missed.
// It runs under the supervisor; Serve returns when ctx is cancelled.
type RingingSweeper struct {
	log      *slog.Logger
	calls    contracts.RingingExpirer
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewRingingSweeper(
	log *slog.Logger,
	calls contracts.RingingExpirer,
	timeout, interval time.Duration,
) *RingingSweeper {
	return &RingingSweeper{
		log:      log,
		calls:    calls,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
	}
}

func (w *RingingSweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.log.InfoContext(ctx, "worker - ringing sweeper - started", "timeout", w.timeout, "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Failures are logged; the next tick retries.
func (w *RingingSweeper) Sweep(ctx context.Context) int {
	n, err := w.calls.ExpireRinging(ctx, w.now().Add(-w.timeout))
	if err != nil {
		w.log.ErrorContext(ctx, "worker - ringing sweeper - expire failed", "expired", n, "err", err)
	}
	if n > 0 {
		w.log.InfoContext(ctx, "worker - ringing sweeper - expired calls", "expired", n)
	}
	return n
}

func (w *RingingSweeper) String() string { return "ringing-sweeper" }
