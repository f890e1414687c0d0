// Package backup restores a user's data from a JSON backup file, reporting
// two-level progress: sections as the outer steps, rows as the inner ones.
package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledgerd/ledgerd/internal/maintenance"
)

type backupFile struct {
	Drafts []struct {
		Status  string `json:"status"`
		Entries []struct {
			Status      string  `json:"status"`
			BookingDate string  `json:"bookingDate"`
			Account     string  `json:"account"`
			Payee       string  `json:"payee"`
			Category    string  `json:"category"`
			Amount      float64 `json:"amount"`
		} `json:"entries"`
	} `json:"drafts"`
	Securities []struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
		Active bool   `json:"active"`
	} `json:"securities"`
}

type Service struct {
	db  *sql.DB
	dir string
}

func NewService(db *sql.DB, dir string) *Service {
	return &Service{db: db, dir: dir}
}

// Apply restores the named backup into the user's data. The backup id is the
// file name (without directory components) under the configured backup
// directory.
func (s *Service) Apply(ctx context.Context, userID, backupID string, progress maintenance.SubProgress) (bool, error) {
	if strings.ContainsAny(backupID, `/\`) {
		return false, fmt.Errorf("invalid backup id %q", backupID)
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, backupID))
	if err != nil {
		return false, fmt.Errorf("read backup: %w", err)
	}

	var b backupFile
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, fmt.Errorf("parse backup: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("restore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const steps = 2

	for i, d := range b.Drafts {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO drafts (user_id, status) VALUES (?, ?)`, userID, orDefault(d.Status, "open"))
		if err != nil {
			return false, fmt.Errorf("restore draft: %w", err)
		}
		draftID, _ := res.LastInsertId()
		for _, e := range d.Entries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO draft_entries (draft_id, status, booking_date, account, payee, category, amount)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				draftID, orDefault(e.Status, "pending"), e.BookingDate, e.Account, e.Payee, e.Category, e.Amount)
			if err != nil {
				return false, fmt.Errorf("restore draft entry: %w", err)
			}
		}
		if progress != nil {
			progress(1, steps, i+1, len(b.Drafts))
		}
	}

	for i, sec := range b.Securities {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO securities (user_id, symbol, name, active) VALUES (?, ?, ?, ?)`,
			userID, sec.Symbol, sec.Name, boolInt(sec.Active))
		if err != nil {
			return false, fmt.Errorf("restore security: %w", err)
		}
		if progress != nil {
			progress(2, steps, i+1, len(b.Securities))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("restore: commit: %w", err)
	}
	return true, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
