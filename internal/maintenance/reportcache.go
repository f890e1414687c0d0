package maintenance

import (
	"context"
	"fmt"

	"github.com/ledgerd/ledgerd/internal/task"
)

// ReportCacheRefreshExecutor pulls stale cache keys one at a time and
// recomputes them until none remain. The total is unknown up front.
type ReportCacheRefreshExecutor struct {
	cache ReportCache
}

func NewReportCacheRefreshExecutor(cache ReportCache) *ReportCacheRefreshExecutor {
	return &ReportCacheRefreshExecutor{cache: cache}
}

func (e *ReportCacheRefreshExecutor) Type() task.Type { return task.TypeReportCacheRefresh }

func (e *ReportCacheRefreshExecutor) Execute(ctx context.Context, run task.RunContext) error {
	run.Report(task.Progress{Message: "refreshing report caches"})

	refreshed := 0
	for {
		if err := ctx.Err(); err != nil {
			run.Report(task.Progress{Processed: refreshed, Message: "canceled"})
			return err
		}

		key, err := e.cache.NextStaleKey(ctx, run.UserID)
		if err != nil {
			run.Report(task.Progress{Processed: refreshed, Message: fmt.Sprintf("error: %v", err), Errors: 1})
			return fmt.Errorf("next stale cache key: %w", err)
		}
		if key == "" {
			break
		}

		// A recompute failure would hand back the same key forever; surface it
		// instead of looping.
		if err := e.cache.Recompute(ctx, run.UserID, key); err != nil {
			if ctx.Err() != nil {
				run.Report(task.Progress{Processed: refreshed, Message: "canceled"})
				return ctx.Err()
			}
			run.Report(task.Progress{Processed: refreshed, Message: fmt.Sprintf("error: %v", err), Errors: 1})
			return fmt.Errorf("recompute cache %s: %w", key, err)
		}

		refreshed++
		run.Report(task.Progress{Processed: refreshed, Message: fmt.Sprintf("refreshed %s", key)})
	}

	run.Report(task.Progress{Processed: refreshed, Message: "completed"})
	return nil
}
