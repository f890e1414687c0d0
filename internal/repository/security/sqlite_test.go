package security

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerd/ledgerd/internal/marketdata"
	"github.com/ledgerd/ledgerd/internal/platform/sqlite"
	"github.com/ledgerd/ledgerd/internal/pricesync"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.DB)
}

func create(t *testing.T, r *Repository, s pricesync.Security) int64 {
	t.Helper()
	if err := r.Create(context.Background(), &s); err != nil {
		t.Fatalf("create security: %v", err)
	}
	return s.ID
}

func point(y int, m time.Month, d int, close float64) marketdata.PricePoint {
	return marketdata.PricePoint{Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Close: close}
}

func TestWatermark(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	id := create(t, r, pricesync.Security{UserID: "u1", Symbol: "ACME", Active: true})

	wm, err := r.LatestPriceDate(ctx, id)
	if err != nil {
		t.Fatalf("latest price date: %v", err)
	}
	if wm != nil {
		t.Fatalf("watermark without prices = %v, want nil", wm)
	}

	saved, err := r.SavePrices(ctx, id, []marketdata.PricePoint{
		point(2026, time.March, 5, 100.25),
		point(2026, time.March, 6, 101.50),
	})
	if err != nil {
		t.Fatalf("save prices: %v", err)
	}
	if saved != 2 {
		t.Fatalf("saved = %d, want 2", saved)
	}

	wm, err = r.LatestPriceDate(ctx, id)
	if err != nil {
		t.Fatalf("latest price date: %v", err)
	}
	if wm == nil || wm.Format(dateFormat) != "2026-03-06" {
		t.Errorf("watermark = %v, want 2026-03-06", wm)
	}
}

func TestSavePrices_DuplicateDatesIgnored(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	id := create(t, r, pricesync.Security{UserID: "u1", Symbol: "ACME", Active: true})

	if _, err := r.SavePrices(ctx, id, []marketdata.PricePoint{point(2026, time.March, 5, 100)}); err != nil {
		t.Fatalf("save prices: %v", err)
	}

	saved, err := r.SavePrices(ctx, id, []marketdata.PricePoint{
		point(2026, time.March, 5, 100), // already stored
		point(2026, time.March, 6, 101),
	})
	if err != nil {
		t.Fatalf("save prices again: %v", err)
	}
	if saved != 1 {
		t.Errorf("saved = %d, want only the new date", saved)
	}
}

func TestEligibleSecurities(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	ok := create(t, r, pricesync.Security{UserID: "u1", Symbol: "ACME", Active: true})
	create(t, r, pricesync.Security{UserID: "u1", Symbol: "", Active: true})     // no symbol
	create(t, r, pricesync.Security{UserID: "u1", Symbol: "OFF", Active: false}) // inactive
	create(t, r, pricesync.Security{UserID: "u1", Symbol: "BAD", Active: true, PriceError: true})
	create(t, r, pricesync.Security{UserID: "u2", Symbol: "OTHER", Active: true})

	secs, err := r.EligibleSecurities(ctx, "u1")
	if err != nil {
		t.Fatalf("eligible securities: %v", err)
	}
	if len(secs) != 1 || secs[0].ID != ok {
		t.Errorf("eligible = %+v, want only ACME", secs)
	}
}

func TestStalestSecurities_NeverPricedFirst(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	fresh := create(t, r, pricesync.Security{UserID: "u1", Symbol: "FRESH", Active: true})
	stale := create(t, r, pricesync.Security{UserID: "u2", Symbol: "STALE", Active: true})
	never := create(t, r, pricesync.Security{UserID: "u1", Symbol: "NEVER", Active: true})

	if _, err := r.SavePrices(ctx, fresh, []marketdata.PricePoint{point(2026, time.March, 6, 100)}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.SavePrices(ctx, stale, []marketdata.PricePoint{point(2026, time.January, 2, 90)}); err != nil {
		t.Fatal(err)
	}

	secs, err := r.StalestSecurities(ctx, 10)
	if err != nil {
		t.Fatalf("stalest securities: %v", err)
	}
	if len(secs) != 3 {
		t.Fatalf("selected %d securities, want 3 across users", len(secs))
	}
	if secs[0].ID != never || secs[1].ID != stale || secs[2].ID != fresh {
		t.Errorf("order = %v %v %v, want never, stale, fresh", secs[0].Symbol, secs[1].Symbol, secs[2].Symbol)
	}

	secs, _ = r.StalestSecurities(ctx, 1)
	if len(secs) != 1 || secs[0].ID != never {
		t.Errorf("limit 1 = %+v, want the never-priced security", secs)
	}
}

func TestFlagPriceError(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	id := create(t, r, pricesync.Security{UserID: "u1", Symbol: "ACME", Active: true})

	if err := r.FlagPriceError(ctx, id); err != nil {
		t.Fatalf("flag price error: %v", err)
	}

	s, err := r.Security(ctx, id, "u1")
	if err != nil {
		t.Fatalf("get security: %v", err)
	}
	if !s.PriceError {
		t.Error("price error flag not set")
	}

	secs, _ := r.EligibleSecurities(ctx, "u1")
	if len(secs) != 0 {
		t.Errorf("flagged security still eligible: %+v", secs)
	}
}

func TestSecurity_UnknownReturnsNil(t *testing.T) {
	r := newTestRepo(t)
	s, err := r.Security(context.Background(), 42, "u1")
	if err != nil || s != nil {
		t.Errorf("unknown security = (%v, %v), want (nil, nil)", s, err)
	}
}
