// Package notification persists reminders with (user, kind, dedupe key)
// uniqueness.
package notification

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgerd/ledgerd/internal/reminder"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Exists(ctx context.Context, userID, kind, dedupeKey string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND kind = ? AND dedupe_key = ?`,
		userID, kind, dedupeKey,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) Create(ctx context.Context, n reminder.Notification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, kind, title, message, target, dedupe_key, scheduled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, kind, dedupe_key) DO NOTHING`,
		n.UserID, n.Kind, n.Title, n.Message, n.Target, n.DedupeKey, n.ScheduledAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}
