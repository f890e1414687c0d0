// Package report maintains derived data: per-month category aggregates
// rebuilt from the raw draft entries, and the report cache rows the refresh
// job recomputes.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Rebuild drops and recreates the user's aggregate rows month by month,
// reporting progress per month. Each rebuilt month's summary cache is marked
// stale so the refresh job recomputes it from the new rows.
func (r *Repository) Rebuild(ctx context.Context, userID string, progress func(done, total int, label string)) error {
	months, err := r.months(ctx, userID)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM aggregates WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear aggregates: %w", err)
	}

	for i, month := range months {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO aggregates (user_id, month, category, total)
			 SELECT d.user_id, strftime('%Y-%m', e.booking_date), e.category, SUM(e.amount)
			 FROM draft_entries e JOIN drafts d ON d.id = e.draft_id
			 WHERE d.user_id = ? AND strftime('%Y-%m', e.booking_date) = ?
			 GROUP BY e.category`, userID, month)
		if err != nil {
			return fmt.Errorf("rebuild aggregates for %s: %w", month, err)
		}
		if err := r.MarkStale(ctx, userID, "summary:"+month); err != nil {
			return err
		}
		if progress != nil {
			progress(i+1, len(months), month)
		}
	}
	return nil
}

func (r *Repository) months(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT strftime('%Y-%m', e.booking_date)
		 FROM draft_entries e JOIN drafts d ON d.id = e.draft_id
		 WHERE d.user_id = ? ORDER BY 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list entry months: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var months []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan month: %w", err)
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

// NextStaleKey hands out one stale cache key, "" when none remain.
func (r *Repository) NextStaleKey(ctx context.Context, userID string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx,
		`SELECT cache_key FROM report_caches WHERE user_id = ? AND stale = 1 ORDER BY cache_key ASC LIMIT 1`,
		userID,
	).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("next stale cache key: %w", err)
	}
	return key, nil
}

// Recompute refreshes the cache payload from the aggregate rows of the month
// the key names (keys have the form "summary:YYYY-MM") and clears the stale
// flag.
func (r *Repository) Recompute(ctx context.Context, userID, key string) error {
	month := key
	if i := len("summary:"); len(key) > i && key[:i] == "summary:" {
		month = key[i:]
	}

	var total sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(total) FROM aggregates WHERE user_id = ? AND month = ?`, userID, month,
	).Scan(&total)
	if err != nil {
		return fmt.Errorf("compute cache %s: %w", key, err)
	}

	payload := fmt.Sprintf(`{"month":%q,"total":%.2f}`, month, total.Float64)
	res, err := r.db.ExecContext(ctx,
		`UPDATE report_caches SET stale = 0, payload = ?, computed_at = ? WHERE user_id = ? AND cache_key = ?`,
		payload, time.Now().UTC().Format(time.RFC3339), userID, key)
	if err != nil {
		return fmt.Errorf("store cache %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cache key %s not found", key)
	}
	return nil
}

// MarkStale flags a cache key for the refresh job, creating the row if needed.
func (r *Repository) MarkStale(ctx context.Context, userID, key string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO report_caches (user_id, cache_key, stale) VALUES (?, ?, 1)
		 ON CONFLICT (user_id, cache_key) DO UPDATE SET stale = 1`, userID, key)
	if err != nil {
		return fmt.Errorf("mark cache stale: %w", err)
	}
	return nil
}
