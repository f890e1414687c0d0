// Package pricesync keeps stored security prices current: on demand through
// the price-backfill job and continuously through a paced background worker.
package pricesync

import (
	"context"
	"time"

	"github.com/ledgerd/ledgerd/internal/marketdata"
)

type Security struct {
	ID         int64  `json:"id"`
	UserID     string `json:"userId"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
	PriceError bool   `json:"priceError"`
}

// SecurityStore is the persistence collaborator. Eligibility (active, has a
// symbol, not flagged price-error) is evaluated inside the queries so every
// selection sees the current flags.
type SecurityStore interface {
	EligibleSecurities(ctx context.Context, userID string) ([]Security, error)
	Security(ctx context.Context, id int64, userID string) (*Security, error)
	// StalestSecurities returns eligible securities across all users ordered
	// by oldest watermark, never-priced first.
	StalestSecurities(ctx context.Context, limit int) ([]Security, error)
	LatestPriceDate(ctx context.Context, securityID int64) (*time.Time, error)
	SavePrices(ctx context.Context, securityID int64, prices []marketdata.PricePoint) (int64, error)
	// FlagPriceError marks the security permanently ineligible in one step.
	FlagPriceError(ctx context.Context, securityID int64) error
}

// PriceProvider is the resilient client surface the executors consume.
type PriceProvider interface {
	DailyPrices(ctx context.Context, apiKey, symbol string, startExclusive, endInclusive time.Time) ([]marketdata.PricePoint, error)
}
