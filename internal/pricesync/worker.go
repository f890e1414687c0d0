package pricesync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ledgerd/ledgerd/internal/marketdata"
)

// Worker is the continuous price synchronisation loop. Each cycle it selects
// the stalest eligible securities and advances their watermarks through the
// same planner and client as the backfill job, pacing calls to stay under the
// configured requests-per-minute ceiling.
type Worker struct {
	store    SecurityStore
	provider PriceProvider
	keys     marketdata.KeyResolver
	cooldown *marketdata.Cooldown

	interval time.Duration
	batch    int
	rpm      int
	now      func() time.Time
}

type WorkerOption func(*Worker)

// WithInterval sets the pause between sync cycles.
func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.interval = d }
}

// WithBatch sets how many securities one cycle may touch.
func WithBatch(n int) WorkerOption {
	return func(w *Worker) { w.batch = n }
}

// WithRequestsPerMinute caps the provider call rate within a cycle.
func WithRequestsPerMinute(n int) WorkerOption {
	return func(w *Worker) { w.rpm = n }
}

func NewWorker(store SecurityStore, provider PriceProvider, keys marketdata.KeyResolver, cooldown *marketdata.Cooldown, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:    store,
		provider: provider,
		keys:     keys,
		cooldown: cooldown,
		interval: 15 * time.Minute,
		batch:    20,
		rpm:      5,
		now:      time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run loops until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.syncOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) syncOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if w.cooldown.Active(w.now()) {
		slog.Debug("price sync skipped, cooldown active", "until", w.cooldown.Until().Format(time.RFC3339))
		return
	}

	securities, err := w.store.StalestSecurities(ctx, w.batch)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("select stale securities", "error", err)
		}
		return
	}
	if len(securities) == 0 {
		return
	}

	pace := time.Minute / time.Duration(max(w.rpm, 1))
	synced := 0
	for i, sec := range securities {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pace):
			}
		}

		// Flags may have changed since the batch was selected.
		current, err := w.store.Security(ctx, sec.ID, sec.UserID)
		if err != nil || current == nil || !current.Active || current.PriceError {
			continue
		}

		apiKey, err := w.keys.APIKey(ctx, sec.UserID)
		if err != nil {
			slog.Warn("price sync skipped, no api key", "security", sec.ID, "user", sec.UserID)
			continue
		}

		saved, err := syncSecurity(ctx, w.store, w.provider, apiKey, *current, nil, nil, w.now())
		switch {
		case err == nil:
			if saved > 0 {
				synced++
			}
		case errors.Is(err, marketdata.ErrRateLimited):
			// The cooldown is set; the rest of the batch would fail the same way.
			slog.Warn("price sync cycle aborted, rate limited")
			return
		default:
			var invalid *marketdata.InvalidSymbolError
			if errors.As(err, &invalid) {
				if flagErr := w.store.FlagPriceError(ctx, sec.ID); flagErr != nil {
					slog.Error("flag price error", "security", sec.ID, "error", flagErr)
				}
				slog.Warn("security flagged after invalid symbol", "security", sec.ID, "symbol", sec.Symbol)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			slog.Error("price sync failed for security", "security", sec.ID, "symbol", sec.Symbol, "error", err)
		}
	}

	if synced > 0 {
		slog.Info("price sync cycle finished", "advanced", synced, "selected", len(securities))
	}
}
