package maintenance

import (
	"context"
	"fmt"

	"github.com/ledgerd/ledgerd/internal/task"
)

// BackupRestoreOptions is the payload accepted by the backup-restore job.
type BackupRestoreOptions struct {
	BackupID string `json:"backupId"`
}

// BackupRestoreExecutor forwards the restore's two-level sub-progress verbatim
// into the job's primary and secondary progress fields.
type BackupRestoreExecutor struct {
	backups BackupService
}

func NewBackupRestoreExecutor(backups BackupService) *BackupRestoreExecutor {
	return &BackupRestoreExecutor{backups: backups}
}

func (e *BackupRestoreExecutor) Type() task.Type { return task.TypeBackupRestore }

func (e *BackupRestoreExecutor) Execute(ctx context.Context, run task.RunContext) error {
	opts, _ := run.Payload.(BackupRestoreOptions)
	if opts.BackupID == "" {
		run.Report(task.Progress{Message: "error: no backup id given"})
		return fmt.Errorf("backup restore: no backup id given")
	}

	run.Report(task.Progress{Message: fmt.Sprintf("restoring backup %s", opts.BackupID)})

	var last task.Progress
	ok, err := e.backups.Apply(ctx, run.UserID, opts.BackupID, func(step, stepTotal, subStep, subTotal int) {
		last = task.Progress{
			Processed:  step,
			Total:      stepTotal,
			Message:    fmt.Sprintf("restoring backup %s", opts.BackupID),
			Processed2: subStep,
			Total2:     subTotal,
		}
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
		return fmt.Errorf("apply backup %s: %w", opts.BackupID, err)
	}
	if !ok {
		last.Message = "restore rejected"
		last.Errors++
		run.Report(last)
		return fmt.Errorf("backup %s was not applied", opts.BackupID)
	}

	last.Message = "completed"
	run.Report(last)
	return nil
}
