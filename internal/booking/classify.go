package booking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ledgerd/ledgerd/internal/task"
)

// ClassificationExecutor classifies every open draft of a user independently.
// A failing draft is logged and tallied; the run never aborts because of one.
type ClassificationExecutor struct {
	drafts DraftService
}

func NewClassificationExecutor(drafts DraftService) *ClassificationExecutor {
	return &ClassificationExecutor{drafts: drafts}
}

func (e *ClassificationExecutor) Type() task.Type { return task.TypeClassification }

func (e *ClassificationExecutor) Execute(ctx context.Context, run task.RunContext) error {
	total, err := e.drafts.OpenDraftsCount(ctx, run.UserID)
	if err != nil {
		run.Report(task.Progress{Message: fmt.Sprintf("error: %v", err)})
		return fmt.Errorf("count open drafts: %w", err)
	}

	drafts, err := e.drafts.OpenDrafts(ctx, run.UserID, 0, total)
	if err != nil {
		run.Report(task.Progress{Message: fmt.Sprintf("error: %v", err)})
		return fmt.Errorf("load open drafts: %w", err)
	}

	warnings, errs := 0, 0
	run.Report(task.Progress{Total: len(drafts), Message: "starting classification"})

	for i, d := range drafts {
		if err := ctx.Err(); err != nil {
			run.Report(task.Progress{Processed: i, Total: len(drafts), Message: "canceled", Warnings: warnings, Errors: errs})
			return err
		}

		if err := e.drafts.Classify(ctx, d.ID, 0, run.UserID); err != nil {
			if ctx.Err() != nil {
				run.Report(task.Progress{Processed: i, Total: len(drafts), Message: "canceled", Warnings: warnings, Errors: errs})
				return ctx.Err()
			}
			slog.Error("classification failed for draft", "draft", d.ID, "user", run.UserID, "error", err)
			warnings++
			errs++
		}

		run.Report(task.Progress{
			Processed: i + 1,
			Total:     len(drafts),
			Message:   fmt.Sprintf("classified draft %d", d.ID),
			Warnings:  warnings,
			Errors:    errs,
		})
	}

	run.Report(task.Progress{Processed: len(drafts), Total: len(drafts), Message: "completed", Warnings: warnings, Errors: errs})
	return nil
}
