// Package maintenance holds the thin progress-forwarding executors: backup
// restore, aggregates rebuild, and report cache refresh.
package maintenance

import "context"

// SubProgress reports two-level progress from a backup restore: outer step and
// inner sub-step, each with its own total.
type SubProgress func(step, stepTotal, subStep, subTotal int)

// BackupService applies a stored backup to the user's data.
type BackupService interface {
	Apply(ctx context.Context, userID, backupID string, progress SubProgress) (bool, error)
}

// AggregatesService rebuilds derived aggregate rows from the raw entries.
type AggregatesService interface {
	Rebuild(ctx context.Context, userID string, progress func(done, total int, label string)) error
}

// ReportCache hands out stale cache keys one at a time until none remain.
type ReportCache interface {
	// NextStaleKey returns "" when no stale key is left.
	NextStaleKey(ctx context.Context, userID string) (string, error)
	Recompute(ctx context.Context, userID, key string) error
}
