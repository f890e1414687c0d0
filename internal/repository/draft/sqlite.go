// Package draft persists statement drafts and implements the booking
// collaborator: booking marks accounted entries booked and commits the draft
// once every entry is booked.
package draft

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgerd/ledgerd/internal/booking"
)

const dateFormat = "2006-01-02"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) OpenDraftsCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM drafts WHERE user_id = ? AND status = 'open'`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open drafts: %w", err)
	}
	return n, nil
}

func (r *Repository) OpenDrafts(ctx context.Context, userID string, skip, take int) ([]booking.Draft, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, status FROM drafts
		 WHERE user_id = ? AND status = 'open'
		 ORDER BY id ASC LIMIT ? OFFSET ?`, userID, take, skip)
	if err != nil {
		return nil, fmt.Errorf("list open drafts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var drafts []booking.Draft
	for rows.Next() {
		var d booking.Draft
		var status string
		if err := rows.Scan(&d.ID, &d.UserID, &status); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		d.Status = booking.DraftStatus(status)
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range drafts {
		entries, err := r.entries(ctx, drafts[i].ID)
		if err != nil {
			return nil, err
		}
		drafts[i].Entries = entries
	}
	return drafts, nil
}

func (r *Repository) GetDraft(ctx context.Context, draftID int64, userID string) (*booking.Draft, error) {
	d := &booking.Draft{}
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, status FROM drafts WHERE id = ? AND user_id = ?`, draftID, userID,
	).Scan(&d.ID, &d.UserID, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	d.Status = booking.DraftStatus(status)
	d.Entries, err = r.entries(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *Repository) entries(ctx context.Context, draftID int64) ([]booking.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, draft_id, status, booking_date, account, payee, category, amount
		 FROM draft_entries WHERE draft_id = ? ORDER BY booking_date ASC, id ASC`, draftID)
	if err != nil {
		return nil, fmt.Errorf("list draft entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []booking.Entry
	for rows.Next() {
		var e booking.Entry
		var status, date string
		if err := rows.Scan(&e.ID, &e.DraftID, &status, &date, &e.Account, &e.Payee, &e.Category, &e.Amount); err != nil {
			return nil, fmt.Errorf("scan draft entry: %w", err)
		}
		e.Status = booking.EntryStatus(status)
		e.BookingDate, _ = time.Parse(dateFormat, date)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Book validates and books a whole draft (entryID=0) or a single entry. An
// entry without an account is an error, one without a payee a warning.
// Warnings block the booking unless ignoreWarnings is set. Booked entries move
// to status booked; the draft commits once no unbooked entry remains.
func (r *Repository) Book(ctx context.Context, draftID, entryID int64, userID string, ignoreWarnings bool) (booking.Result, error) {
	d, err := r.GetDraft(ctx, draftID, userID)
	if err != nil {
		return booking.Result{}, err
	}
	if d == nil {
		return booking.Result{}, fmt.Errorf("draft %d not found", draftID)
	}
	if d.Status != booking.DraftOpen {
		return booking.Result{}, fmt.Errorf("draft %d is not open", draftID)
	}

	var targets []booking.Entry
	for _, e := range d.Entries {
		if entryID != 0 && e.ID != entryID {
			continue
		}
		if e.Status != booking.EntryBooked {
			targets = append(targets, e)
		}
	}
	if entryID != 0 && len(targets) == 0 {
		return booking.Result{}, fmt.Errorf("entry %d not found in draft %d", entryID, draftID)
	}

	var res booking.Result
	for _, e := range targets {
		if e.Account == "" {
			res.Messages = append(res.Messages, booking.Message{
				Severity: booking.SeverityError,
				Text:     fmt.Sprintf("entry %d has no account assigned", e.ID),
			})
		}
		if e.Payee == "" {
			res.Messages = append(res.Messages, booking.Message{
				Severity: booking.SeverityWarning,
				Text:     fmt.Sprintf("entry %d has no payee", e.ID),
			})
			res.HasWarnings = true
		}
	}

	errs, warns := res.Split()
	if len(errs) > 0 || (len(warns) > 0 && !ignoreWarnings) {
		return res, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return booking.Result{}, fmt.Errorf("book draft: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range targets {
		if _, err := tx.ExecContext(ctx,
			`UPDATE draft_entries SET status = 'booked' WHERE id = ?`, e.ID); err != nil {
			return booking.Result{}, fmt.Errorf("book entry %d: %w", e.ID, err)
		}
	}

	var remaining int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM draft_entries WHERE draft_id = ? AND status != 'booked'`, draftID,
	).Scan(&remaining)
	if err != nil {
		return booking.Result{}, fmt.Errorf("count remaining entries: %w", err)
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE drafts SET status = 'committed' WHERE id = ?`, draftID); err != nil {
			return booking.Result{}, fmt.Errorf("commit draft %d: %w", draftID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return booking.Result{}, fmt.Errorf("book draft: commit: %w", err)
	}

	res.Success = true
	return res, nil
}

// Classify assigns a category derived from the payee to every unclassified
// entry (or the one entry). An entry without a payee cannot be classified.
func (r *Repository) Classify(ctx context.Context, draftID, entryID int64, userID string) error {
	d, err := r.GetDraft(ctx, draftID, userID)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("draft %d not found", draftID)
	}

	for _, e := range d.Entries {
		if entryID != 0 && e.ID != entryID {
			continue
		}
		if e.Category != "" {
			continue
		}
		if e.Payee == "" {
			return fmt.Errorf("entry %d: cannot classify without payee", e.ID)
		}
		if _, err := r.db.ExecContext(ctx,
			`UPDATE draft_entries SET category = ? WHERE id = ?`, "auto:"+e.Payee, e.ID); err != nil {
			return fmt.Errorf("classify entry %d: %w", e.ID, err)
		}
	}
	return nil
}
