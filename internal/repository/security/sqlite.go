// Package security persists securities and their daily prices. The most
// recent stored price date per security is the watermark driving incremental
// fetches.
package security

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgerd/ledgerd/internal/marketdata"
	"github.com/ledgerd/ledgerd/internal/pricesync"
)

const dateFormat = "2006-01-02"

// Eligibility: active, has a symbol, not flagged price-error. Kept inside the
// queries so every selection sees the current flags.
const eligible = `active = 1 AND price_error = 0 AND symbol != ''`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, s *pricesync.Security) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO securities (user_id, symbol, name, active, price_error) VALUES (?, ?, ?, ?, ?)`,
		s.UserID, s.Symbol, s.Name, boolInt(s.Active), boolInt(s.PriceError))
	if err != nil {
		return fmt.Errorf("create security: %w", err)
	}
	s.ID, _ = res.LastInsertId()
	return nil
}

func (r *Repository) Security(ctx context.Context, id int64, userID string) (*pricesync.Security, error) {
	s := &pricesync.Security{}
	var active, priceError int
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, symbol, name, active, price_error FROM securities WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&s.ID, &s.UserID, &s.Symbol, &s.Name, &active, &priceError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get security: %w", err)
	}
	s.Active = active == 1
	s.PriceError = priceError == 1
	return s, nil
}

func (r *Repository) EligibleSecurities(ctx context.Context, userID string) ([]pricesync.Security, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, symbol, name, active, price_error FROM securities
		 WHERE user_id = ? AND `+eligible+` ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list eligible securities: %w", err)
	}
	return scanSecurities(rows)
}

// StalestSecurities orders by oldest watermark with never-priced securities
// first, across all users.
func (r *Repository) StalestSecurities(ctx context.Context, limit int) ([]pricesync.Security, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.symbol, s.name, s.active, s.price_error
		 FROM securities s
		 LEFT JOIN (SELECT security_id, MAX(date) AS last_date FROM security_prices GROUP BY security_id) p
		   ON p.security_id = s.id
		 WHERE `+eligible+`
		 ORDER BY p.last_date IS NOT NULL, p.last_date ASC, s.id ASC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale securities: %w", err)
	}
	return scanSecurities(rows)
}

func (r *Repository) LatestPriceDate(ctx context.Context, securityID int64) (*time.Time, error) {
	var dateStr sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM security_prices WHERE security_id = ?`, securityID,
	).Scan(&dateStr)
	if err != nil {
		return nil, fmt.Errorf("latest price date: %w", err)
	}
	if !dateStr.Valid || dateStr.String == "" {
		return nil, nil
	}
	d, err := time.Parse(dateFormat, dateStr.String)
	if err != nil {
		return nil, fmt.Errorf("parse watermark %q: %w", dateStr.String, err)
	}
	return &d, nil
}

func (r *Repository) SavePrices(ctx context.Context, securityID int64, prices []marketdata.PricePoint) (int64, error) {
	if len(prices) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save prices: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var saved int64
	for _, p := range prices {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO security_prices (security_id, date, close) VALUES (?, ?, ?)
			 ON CONFLICT (security_id, date) DO NOTHING`,
			securityID, p.Date.Format(dateFormat), p.Close)
		if err != nil {
			return 0, fmt.Errorf("save price: %w", err)
		}
		n, _ := res.RowsAffected()
		saved += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save prices: commit: %w", err)
	}
	return saved, nil
}

func (r *Repository) FlagPriceError(ctx context.Context, securityID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE securities SET price_error = 1 WHERE id = ?`, securityID)
	if err != nil {
		return fmt.Errorf("flag price error: %w", err)
	}
	return nil
}

func scanSecurities(rows *sql.Rows) ([]pricesync.Security, error) {
	defer func() { _ = rows.Close() }()

	var securities []pricesync.Security
	for rows.Next() {
		var s pricesync.Security
		var active, priceError int
		if err := rows.Scan(&s.ID, &s.UserID, &s.Symbol, &s.Name, &active, &priceError); err != nil {
			return nil, fmt.Errorf("scan security: %w", err)
		}
		s.Active = active == 1
		s.PriceError = priceError == 1
		securities = append(securities, s)
	}
	return securities, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
