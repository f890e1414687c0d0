// Package holiday implements a public-holiday lookup against a Nager.Date
// compatible API, cached per country and year.
package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://date.nager.at"

type publicHoliday struct {
	Date     string   `json:"date"` // "2006-01-02"
	Name     string   `json:"name"`
	Global   bool     `json:"global"`
	Counties []string `json:"counties"` // subdivision codes like "DE-BY"
}

// Client looks up public holidays. One upstream call per (country, year);
// results are cached for the process lifetime.
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.Mutex
	cache map[string][]publicHoliday
}

type Option func(*Client)

// WithHTTPClient sets the HTTP client used for lookups.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the holiday API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		cache:      make(map[string][]publicHoliday),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// IsPublicHoliday reports whether the date is a public holiday in the country.
// A holiday restricted to subdivisions applies only when the user's
// subdivision is among them.
func (c *Client) IsPublicHoliday(ctx context.Context, date time.Time, country, subdivision string) (bool, error) {
	if country == "" {
		return false, nil
	}

	holidays, err := c.holidays(ctx, date.Year(), country)
	if err != nil {
		return false, err
	}

	day := date.Format(time.DateOnly)
	for _, h := range holidays {
		if h.Date != day {
			continue
		}
		if h.Global || len(h.Counties) == 0 {
			return true, nil
		}
		if subdivision == "" {
			continue
		}
		code := subdivision
		if !strings.Contains(code, "-") {
			code = country + "-" + subdivision
		}
		if slices.Contains(h.Counties, code) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) holidays(ctx context.Context, year int, country string) ([]publicHoliday, error) {
	key := fmt.Sprintf("%s-%d", country, year)

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	reqURL := fmt.Sprintf("%s/api/v3/PublicHolidays/%d/%s", c.baseURL, year, country)
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build holiday request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch holidays: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	var holidays []publicHoliday
	switch res.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, fmt.Errorf("read holiday response: %w", err)
		}
		if err := json.Unmarshal(body, &holidays); err != nil {
			return nil, fmt.Errorf("parse holiday response: %w", err)
		}
	case http.StatusNotFound:
		// Unknown country code: cache the empty answer.
	default:
		return nil, fmt.Errorf("holiday API returned HTTP %d for %s/%d", res.StatusCode, country, year)
	}

	c.mu.Lock()
	c.cache[key] = holidays
	c.mu.Unlock()
	return holidays, nil
}
