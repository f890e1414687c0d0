// Package user persists per-user settings and doubles as the provider API key
// resolver, falling back to the admin-shared key from configuration.
package user

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ledgerd/ledgerd/internal/marketdata"
	"github.com/ledgerd/ledgerd/internal/reminder"
)

type Repository struct {
	db        *sql.DB
	sharedKey string
}

func NewRepository(db *sql.DB, sharedKey string) *Repository {
	return &Repository{db: db, sharedKey: sharedKey}
}

func (r *Repository) ReminderUsers(ctx context.Context) ([]reminder.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, time_zone, country, subdivision, locale, reminder_time
		 FROM users WHERE active = 1 AND reminder_enabled = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reminder users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []reminder.User
	for rows.Next() {
		var u reminder.User
		if err := rows.Scan(&u.ID, &u.TimeZone, &u.Country, &u.Subdivision, &u.Locale, &u.TriggerTime); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// APIKey returns the user's own provider key, falling back to the shared key.
// Absence of both is a hard stop for price jobs.
func (r *Repository) APIKey(ctx context.Context, userID string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx,
		`SELECT price_api_key FROM users WHERE id = ?`, userID,
	).Scan(&key)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("load user api key: %w", err)
	}
	if key != "" {
		return key, nil
	}
	if r.sharedKey != "" {
		return r.sharedKey, nil
	}
	return "", marketdata.ErrNoAPIKey
}
