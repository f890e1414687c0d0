// Package marketdata talks to the daily price provider and decides which date
// windows are worth fetching. All calls share one process-wide rate-limit
// cooldown: once the provider signals throttling, every caller fails fast
// until the next UTC day without touching the network.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = 400 * time.Millisecond
	maxJitter         = 150 * time.Millisecond
	dateFormat        = "2006-01-02"
)

// PricePoint is one daily closing price.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// MetricsSink records fetch outcomes. Optional, nil = disabled.
type MetricsSink interface {
	PriceFetch(outcome string)
}

// Fetch outcome labels.
const (
	OutcomeSuccess       = "success"
	OutcomeRateLimited   = "rate_limited"
	OutcomeInvalidSymbol = "invalid_symbol"
	OutcomeError         = "error"
)

// Client fetches daily price series with bounded retries and the shared
// sticky cooldown.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cooldown   *Cooldown
	metrics    MetricsSink
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
}

type Option func(*Client)

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(sink MetricsSink) Option {
	return func(c *Client) { c.metrics = sink }
}

// WithBackoff overrides the initial retry backoff.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

func withNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(baseURL string, cooldown *Cooldown, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		cooldown:   cooldown,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// seriesResponse is the provider envelope. Exactly one of the three top-level
// fields is populated: an explicit error, a throttling note, or the series.
type seriesResponse struct {
	ErrorMessage string                       `json:"Error Message"`
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
	Series       map[string]map[string]string `json:"Time Series (Daily)"`
}

// DailyPrices returns ascending (date, close) pairs for the window, weekends
// excluded. Transient faults are retried with doubling backoff; a throttling
// signal sets the shared cooldown and fails immediately, as does every later
// call until the cooldown elapses.
func (c *Client) DailyPrices(ctx context.Context, apiKey, symbol string, startExclusive, endInclusive time.Time) ([]PricePoint, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if c.cooldown.Active(c.now()) {
		c.record(OutcomeRateLimited)
		return nil, fmt.Errorf("cooldown until %s: %w", c.cooldown.Until().Format(time.RFC3339), ErrRateLimited)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff<<(attempt-1) + rand.N(maxJitter)
			slog.Warn("retrying price fetch", "symbol", symbol, "attempt", attempt, "delay", delay.String(), "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		prices, retryable, err := c.fetch(ctx, apiKey, symbol, startExclusive, endInclusive)
		if err == nil {
			c.record(OutcomeSuccess)
			return prices, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	c.record(OutcomeError)
	return nil, fmt.Errorf("price fetch for %s failed after %d retries: %w", symbol, c.maxRetries, lastErr)
}

// fetch performs one provider call. retryable is true only for transient
// network faults and 5xx responses; 429 and throttling envelopes go through
// the cooldown path instead.
func (c *Client) fetch(ctx context.Context, apiKey, symbol string, startExclusive, endInclusive time.Time) (_ []PricePoint, retryable bool, _ error) {
	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", symbol)
	q.Set("outputsize", "full")
	q.Set("apikey", apiKey)
	reqURL := fmt.Sprintf("%s/query?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build price request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("price request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusTooManyRequests {
		return nil, false, c.throttled(symbol, "HTTP 429")
	}
	if res.StatusCode >= 500 {
		return nil, true, fmt.Errorf("provider returned HTTP %d for %s", res.StatusCode, symbol)
	}
	if res.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("provider returned HTTP %d for %s", res.StatusCode, symbol)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read provider response: %w", err)
	}

	var resp seriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, fmt.Errorf("parse provider response: %w", err)
	}

	if resp.ErrorMessage != "" {
		c.record(OutcomeInvalidSymbol)
		return nil, false, &InvalidSymbolError{Symbol: symbol, Reason: resp.ErrorMessage}
	}
	if note := resp.Note + resp.Information; note != "" {
		return nil, false, c.throttled(symbol, note)
	}

	prices := make([]PricePoint, 0, len(resp.Series))
	for dateStr, fields := range resp.Series {
		date, err := time.Parse(dateFormat, dateStr)
		if err != nil {
			continue
		}
		date = date.UTC()
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			continue
		}
		if !date.After(startExclusive) || date.After(endInclusive) {
			continue
		}
		closeVal, err := strconv.ParseFloat(fields["4. close"], 64)
		if err != nil {
			continue
		}
		prices = append(prices, PricePoint{Date: date, Close: closeVal})
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].Date.Before(prices[j].Date) })

	slog.Info("retrieved daily prices", "symbol", symbol,
		"from", startExclusive.Format(dateFormat), "to", endInclusive.Format(dateFormat), "count", len(prices))
	return prices, false, nil
}

// throttled persists the sticky cooldown until the start of the next UTC day
// and surfaces ErrRateLimited.
func (c *Client) throttled(symbol, detail string) error {
	until := dateOnly(c.now()).AddDate(0, 0, 1)
	c.cooldown.Block(until)
	c.record(OutcomeRateLimited)
	slog.Warn("provider throttled, cooling down", "symbol", symbol, "until", until.Format(time.RFC3339), "detail", detail)
	return fmt.Errorf("provider throttled (%s): %w", detail, ErrRateLimited)
}

func (c *Client) record(outcome string) {
	if c.metrics != nil {
		c.metrics.PriceFetch(outcome)
	}
}
