package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wuchris/glci/internal/model"
)

const maxRetries = 4

// SeriesEndpoint builds the request URL and query parameters for one
// series fetch against a macro data provider's HTTP API. Each concrete
// data source (FRED, BIS, NY Fed, World Bank) supplies its own.
type SeriesEndpoint func(source, seriesID string, start, end time.Time) (path string, params url.Values)

// RawParser decodes a provider's raw JSON response body into a RawTable.
type RawParser func(source, seriesID string, body []byte) (model.RawTable, error)

// HTTP is a generic rate-limited, retrying HTTP Fetcher for a single macro
// data provider. The retry/backoff/rate-limit shape is carried over
// directly from the teacher's FRED client: exponential backoff on 429/5xx,
// context-aware waits, debug logging with credentials redacted.
type HTTP struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	debug      bool
	endpoint   SeriesEndpoint
	parse      RawParser
}

// NewHTTP constructs an HTTP fetcher for one provider. ratePerSec bounds
// outbound request rate and doubles as the token bucket burst size, same as
// the teacher's NewClient.
func NewHTTP(baseURL, apiKey string, timeout time.Duration, ratePerSec float64, debug bool, endpoint SeriesEndpoint, parse RawParser) *HTTP {
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &HTTP{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		debug:      debug,
		endpoint:   endpoint,
		parse:      parse,
	}
}

// Fetch implements Fetcher.
func (h *HTTP) Fetch(ctx context.Context, source, seriesID string, start, end time.Time) (model.RawTable, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return model.RawTable{}, err
	}

	path, params := h.endpoint(source, seriesID, start, end)
	if params == nil {
		params = url.Values{}
	}
	if h.apiKey != "" {
		params.Set("api_key", h.apiKey)
	}
	reqURL := strings.TrimRight(h.baseURL, "/") + "/" + strings.TrimLeft(path, "/") + "?" + params.Encode()

	if h.debug {
		safe := reqURL
		if h.apiKey != "" {
			safe = strings.Replace(safe, h.apiKey, "REDACTED", 1)
		}
		slog.Debug("fetcher request", "source", source, "series_id", seriesID, "url", safe)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))*500) * time.Millisecond
			slog.Debug("fetcher retrying after backoff", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return model.RawTable{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return model.RawTable{}, fmt.Errorf("building request for %s/%s: %w", source, seriesID, err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "glci-fetcher/1.0")

		resp, err := h.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}

		if h.debug {
			slog.Debug("fetcher response", "status", resp.StatusCode, "bytes", len(body))
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			var apiErr struct {
				Error string `json:"error_message"`
			}
			_ = json.Unmarshal(body, &apiErr)
			if apiErr.Error != "" {
				return model.RawTable{}, fmt.Errorf("%s API error: %s", source, apiErr.Error)
			}
			return model.RawTable{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		table, err := h.parse(source, seriesID, body)
		if err != nil {
			return model.RawTable{}, fmt.Errorf("parsing %s/%s response: %w", source, seriesID, err)
		}
		return table, nil
	}
	return model.RawTable{}, fmt.Errorf("fetching %s/%s after %d attempts: %w", source, seriesID, maxRetries, lastErr)
}
