package pricesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerd/ledgerd/internal/marketdata"
	"github.com/ledgerd/ledgerd/internal/task"
)

// BackfillOptions is the payload accepted by the price-backfill job.
// SecurityID=0 means every eligible security of the user.
type BackfillOptions struct {
	SecurityID int64      `json:"securityId,omitempty"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
}

// BackfillExecutor fetches missing daily prices for one or all of a user's
// securities. A rate-limit signal aborts the whole run; an invalid symbol
// flags that security and the run continues; any other per-security fault is
// logged and skipped.
type BackfillExecutor struct {
	store    SecurityStore
	provider PriceProvider
	keys     marketdata.KeyResolver
	now      func() time.Time
}

func NewBackfillExecutor(store SecurityStore, provider PriceProvider, keys marketdata.KeyResolver) *BackfillExecutor {
	return &BackfillExecutor{store: store, provider: provider, keys: keys, now: time.Now}
}

func (e *BackfillExecutor) Type() task.Type { return task.TypePriceBackfill }

func (e *BackfillExecutor) Execute(ctx context.Context, run task.RunContext) error {
	opts, _ := run.Payload.(BackfillOptions)

	apiKey, err := e.keys.APIKey(ctx, run.UserID)
	if err != nil {
		run.Report(task.Progress{Message: fmt.Sprintf("error: %v", err)})
		return err
	}

	var securities []Security
	if opts.SecurityID != 0 {
		sec, err := e.store.Security(ctx, opts.SecurityID, run.UserID)
		if err != nil {
			run.Report(task.Progress{Message: fmt.Sprintf("error: %v", err)})
			return fmt.Errorf("load security %d: %w", opts.SecurityID, err)
		}
		if sec != nil {
			securities = []Security{*sec}
		}
	} else {
		securities, err = e.store.EligibleSecurities(ctx, run.UserID)
		if err != nil {
			run.Report(task.Progress{Message: fmt.Sprintf("error: %v", err)})
			return fmt.Errorf("load eligible securities: %w", err)
		}
	}

	run.Report(task.Progress{Total: len(securities), Message: "starting price backfill"})

	warnings, errs := 0, 0
	for i, sec := range securities {
		if err := ctx.Err(); err != nil {
			run.Report(task.Progress{Processed: i, Total: len(securities), Message: "canceled", Warnings: warnings, Errors: errs})
			return err
		}

		saved, err := syncSecurity(ctx, e.store, e.provider, apiKey, sec, opts.From, opts.To, e.now())
		msg := fmt.Sprintf("%s: %d prices stored", sec.Symbol, saved)
		switch {
		case err == nil:
		case errors.Is(err, marketdata.ErrRateLimited):
			run.Report(task.Progress{Processed: i, Total: len(securities), Message: "rate limited, run aborted", Warnings: warnings, Errors: errs + 1})
			return err
		default:
			var invalid *marketdata.InvalidSymbolError
			if errors.As(err, &invalid) {
				if flagErr := e.store.FlagPriceError(ctx, sec.ID); flagErr != nil {
					slog.Error("flag price error", "security", sec.ID, "error", flagErr)
				}
				slog.Warn("security flagged after invalid symbol", "security", sec.ID, "symbol", sec.Symbol)
				msg = fmt.Sprintf("%s: invalid symbol, security flagged", sec.Symbol)
			} else {
				if ctx.Err() != nil {
					run.Report(task.Progress{Processed: i, Total: len(securities), Message: "canceled", Warnings: warnings, Errors: errs})
					return ctx.Err()
				}
				slog.Error("price backfill failed for security", "security", sec.ID, "symbol", sec.Symbol, "error", err)
				msg = fmt.Sprintf("%s: error: %v", sec.Symbol, err)
			}
			errs++
		}

		run.Report(task.Progress{
			Processed: i + 1,
			Total:     len(securities),
			Message:   msg,
			Warnings:  warnings,
			Errors:    errs,
		})
	}

	run.Report(task.Progress{Processed: len(securities), Total: len(securities), Message: "completed", Warnings: warnings, Errors: errs})
	return nil
}

// syncSecurity advances one security's watermark: plan the window, fetch,
// store. Returns the number of newly stored prices; 0 with nil error when the
// watermark is already current.
func syncSecurity(ctx context.Context, store SecurityStore, provider PriceProvider, apiKey string, sec Security, from, to *time.Time, now time.Time) (int64, error) {
	watermark, err := store.LatestPriceDate(ctx, sec.ID)
	if err != nil {
		return 0, fmt.Errorf("load watermark: %w", err)
	}

	window, ok := marketdata.PlanWindow(from, to, watermark, now)
	if !ok {
		return 0, nil
	}

	start, end := window.Request()
	prices, err := provider.DailyPrices(ctx, apiKey, sec.Symbol, start, end)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, nil
	}

	saved, err := store.SavePrices(ctx, sec.ID, prices)
	if err != nil {
		return 0, fmt.Errorf("save prices: %w", err)
	}
	return saved, nil
}
