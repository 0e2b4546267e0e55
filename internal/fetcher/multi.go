package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/wuchris/glci/internal/model"
)

// Default base URLs for each provider, overridable via Keys.BaseURL overrides
// (used by tests to point at an httptest.Server instead).
const (
	fredBaseURL       = "https://api.stlouisfed.org/fred"
	worldBankBaseURL  = "https://api.worldbank.org/v2"
	bisBaseURL        = "https://stats.bis.org/api/v1"
	nyFedBaseURL      = "https://markets.newyorkfed.org/api"
	yFinanceBaseURL   = "https://query1.finance.yahoo.com"
)

// Keys holds the credentials and tuning knobs needed to build a Multi. Only
// FRED requires an API key; the other four providers are public endpoints.
type Keys struct {
	FredAPIKey  string
	Timeout     time.Duration
	RatePerSec  float64
	Debug       bool

	// BaseURLOverrides lets callers (tests) redirect one or more providers at
	// a local server instead of the real internet host.
	BaseURLOverrides map[string]string
}

// Multi dispatches Fetch calls to the right provider's HTTP client by the
// series' registry "source" field, mirroring the original pipeline's
// DataFetcher._get_client dispatch over one client per data source.
type Multi struct {
	bySource map[string]Fetcher
}

// NewMulti builds the five provider clients (FRED, World Bank, BIS, NY Fed,
// Yahoo Finance) behind a single Fetcher, so callers never need to know
// which wire format backs a given series.
func NewMulti(keys Keys) *Multi {
	base := func(name, def string) string {
		if keys.BaseURLOverrides != nil {
			if v, ok := keys.BaseURLOverrides[name]; ok {
				return v
			}
		}
		return def
	}
	return &Multi{
		bySource: map[string]Fetcher{
			"fred":      NewHTTP(base("fred", fredBaseURL), keys.FredAPIKey, keys.Timeout, keys.RatePerSec, keys.Debug, FredEndpoint, FredParser),
			"worldbank": NewHTTP(base("worldbank", worldBankBaseURL), "", keys.Timeout, keys.RatePerSec, keys.Debug, WorldBankEndpoint, WorldBankParser),
			"bis":       NewHTTP(base("bis", bisBaseURL), "", keys.Timeout, keys.RatePerSec, keys.Debug, BISEndpoint, BISParser),
			"nyfed":     NewHTTP(base("nyfed", nyFedBaseURL), "", keys.Timeout, keys.RatePerSec, keys.Debug, NYFedEndpoint, NYFedParser),
			"yfinance":  NewHTTP(base("yfinance", yFinanceBaseURL), "", keys.Timeout, keys.RatePerSec, keys.Debug, YFinanceEndpoint, YFinanceParser),
		},
	}
}

// Fetch implements Fetcher, routing to the provider client named by source.
func (m *Multi) Fetch(ctx context.Context, source, seriesID string, start, end time.Time) (model.RawTable, error) {
	f, ok := m.bySource[source]
	if !ok {
		return model.RawTable{}, fmt.Errorf("fetcher: unknown source %q for series %q", source, seriesID)
	}
	return f.Fetch(ctx, source, seriesID, start, end)
}
