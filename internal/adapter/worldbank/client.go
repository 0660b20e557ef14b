// Package worldbank fetches indicator series from the World Bank API v2 and
// caches them on disk for offline dataset refreshes.
package worldbank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.worldbank.org/v2"
	perPage        = 1000
	userAgent      = "region-compare-datactl/1.0"

	// fallbackMRV is the number of most recent values requested when the
	// date-range query fails.
	fallbackMRV = 5
)

// Observation is one country's value for an indicator and the year it was
// observed in.
type Observation struct {
	Value float64 `json:"value"`
	Year  int     `json:"year"`
}

// IndicatorData maps an ISO3 country code to its observation closest to the
// target year.
type IndicatorData map[string]Observation

// Dataset maps an indicator key to the data fetched for it.
type Dataset map[string]IndicatorData

// Client fetches World Bank indicator series. Requests are paced by a shared
// rate limiter.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a World Bank API client limited to four requests per second.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
		logger:  logger,
	}
}

// statusError is returned for non-200 responses.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("world bank API error: status %d: %s", e.code, e.body)
}

// FetchIndicator returns, for every country, the observation of code closest
// to year within year±fallbackRange. When the first page of the date-range
// query fails at the HTTP level, the most recent values are fetched instead
// and filtered to the same range. A failure on a later page keeps the pages
// already read.
func (c *Client) FetchIndicator(ctx context.Context, code string, year, fallbackRange int) (IndicatorData, error) {
	params := url.Values{
		"date":     {fmt.Sprintf("%d:%d", year-fallbackRange, year+fallbackRange)},
		"format":   {"json"},
		"per_page": {strconv.Itoa(perPage)},
	}
	results := make(IndicatorData)

	for page, pages := 1, 1; page <= pages; page++ {
		meta, entries, err := c.fetchPage(ctx, code, params, page)
		if err != nil {
			var se *statusError
			httpFailure := errors.As(err, &se) || isTransportError(err)
			if ctx.Err() != nil || !httpFailure {
				return nil, err
			}
			if page == 1 {
				c.logger.Warn("indicator range query failed, using most recent values",
					"code", code, "error", err)
				return c.fetchMostRecent(ctx, code, year, fallbackRange)
			}
			c.logger.Warn("indicator page failed, keeping partial data",
				"code", code, "page", page, "error", err)
			break
		}
		if entries == nil {
			break
		}
		pages = meta.Pages
		collect(results, entries, year, -1)
	}
	return results, nil
}

// fetchMostRecent requests the last fallbackMRV values per country and keeps
// those within year±fallbackRange.
func (c *Client) fetchMostRecent(ctx context.Context, code string, year, fallbackRange int) (IndicatorData, error) {
	params := url.Values{
		"mrv":      {strconv.Itoa(fallbackMRV)},
		"format":   {"json"},
		"per_page": {strconv.Itoa(perPage)},
	}
	results := make(IndicatorData)

	for page, pages := 1, 1; page <= pages; page++ {
		meta, entries, err := c.fetchPage(ctx, code, params, page)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("fetch %s most recent values: %w", code, err)
			}
			c.logger.Warn("indicator fallback page failed, keeping partial data",
				"code", code, "page", page, "error", err)
			break
		}
		if entries == nil {
			break
		}
		pages = meta.Pages
		collect(results, entries, year, fallbackRange)
	}
	return results, nil
}

// collect merges entries into results, keeping per country the observation
// closest to year. Earlier entries win ties. A non-negative maxDistance drops
// observations further than that from year.
func collect(results IndicatorData, entries []entry, year, maxDistance int) {
	for _, e := range entries {
		if e.CountryISO3 == "" || e.Value == nil {
			continue
		}
		y, err := strconv.Atoi(e.Date)
		if err != nil {
			continue
		}
		dist := absInt(y - year)
		if maxDistance >= 0 && dist > maxDistance {
			continue
		}
		if prev, ok := results[e.CountryISO3]; ok && dist >= absInt(prev.Year-year) {
			continue
		}
		if math.IsNaN(*e.Value) || math.IsInf(*e.Value, 0) {
			continue
		}
		results[e.CountryISO3] = Observation{Value: *e.Value, Year: y}
	}
}

func (c *Client) fetchPage(ctx context.Context, code string, params url.Values, page int) (pageMeta, []entry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return pageMeta{}, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := make(url.Values, len(params)+1)
	for k, v := range params {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(page))
	u := fmt.Sprintf("%s/country/all/indicator/%s?%s", c.baseURL, url.PathEscape(code), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return pageMeta{}, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pageMeta{}, nil, &transportError{err: fmt.Errorf("indicator %s page %d request: %w", code, page, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pageMeta{}, nil, &statusError{code: resp.StatusCode, body: string(body)}
	}

	var parts []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&parts); err != nil {
		return pageMeta{}, nil, fmt.Errorf("decode indicator %s page %d: %w", code, page, err)
	}
	if len(parts) < 2 {
		return pageMeta{}, nil, nil
	}

	var meta pageMeta
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return pageMeta{}, nil, fmt.Errorf("decode indicator %s page %d metadata: %w", code, page, err)
	}
	var entries []entry
	if err := json.Unmarshal(parts[1], &entries); err != nil {
		return pageMeta{}, nil, fmt.Errorf("decode indicator %s page %d entries: %w", code, page, err)
	}
	if len(entries) == 0 {
		return meta, nil, nil
	}
	if meta.Pages < 1 {
		meta.Pages = 1
	}
	return meta, entries, nil
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransportError(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// World Bank API response types.

type pageMeta struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
}

type entry struct {
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
}
