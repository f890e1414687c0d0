package maintenance

import (
	"context"
	"fmt"

	"github.com/ledgerd/ledgerd/internal/task"
)

// AggregatesRebuildExecutor wraps the aggregates rebuild with progress
// forwarding.
type AggregatesRebuildExecutor struct {
	aggregates AggregatesService
}

func NewAggregatesRebuildExecutor(aggregates AggregatesService) *AggregatesRebuildExecutor {
	return &AggregatesRebuildExecutor{aggregates: aggregates}
}

func (e *AggregatesRebuildExecutor) Type() task.Type { return task.TypeAggregatesRebuild }

func (e *AggregatesRebuildExecutor) Execute(ctx context.Context, run task.RunContext) error {
	run.Report(task.Progress{Message: "rebuilding aggregates"})

	var last task.Progress
	err := e.aggregates.Rebuild(ctx, run.UserID, func(done, total int, label string) {
		last = task.Progress{Processed: done, Total: total, Message: label}
		run.Report(last)
	})
	if err != nil {
		if ctx.Err() != nil {
			last.Message = "canceled"
			run.Report(last)
			return ctx.Err()
		}
		last.Message = fmt.Sprintf("error: %v", err)
		last.Errors++
		run.Report(last)
		return fmt.Errorf("rebuild aggregates: %w", err)
	}

	last.Message = "completed"
	run.Report(last)
	return nil
}
