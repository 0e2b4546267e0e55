package fetcher

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wuchris/glci/internal/model"
)

// ─── FRED (Federal Reserve Bank of St. Louis) ──────────────────────────────

// FredEndpoint builds the series/observations request for one FRED series.
// source_id is the registry's plain FRED series id (e.g. "WALCL").
func FredEndpoint(source, seriesID string, start, end time.Time) (string, url.Values) {
	params := url.Values{}
	params.Set("series_id", strings.ToUpper(seriesID))
	params.Set("file_type", "json")
	if !start.IsZero() {
		params.Set("observation_start", start.Format("2006-01-02"))
	}
	if !end.IsZero() {
		params.Set("observation_end", end.Format("2006-01-02"))
	}
	return "series/observations", params
}

// FredParser decodes a FRED observations response into a RawTable, treating
// the "." missing-value sentinel as a dropped row (§3 raw tables carry no
// NaN placeholders — gaps are simply absent dates).
func FredParser(source, seriesID string, body []byte) (model.RawTable, error) {
	var raw struct {
		Observations []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.RawTable{}, fmt.Errorf("decoding FRED response: %w", err)
	}
	now := time.Now()
	rows := make([]model.RawRow, 0, len(raw.Observations))
	for _, o := range raw.Observations {
		if o.Value == "." || o.Value == "" {
			continue
		}
		date, err := time.Parse("2006-01-02", o.Date)
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			continue
		}
		rows = append(rows, model.RawRow{Date: date, Value: v, FetchedAt: now})
	}
	return model.RawTable{Source: source, SeriesID: seriesID, Rows: rows}, nil
}

// ─── World Bank Indicators API ─────────────────────────────────────────────

// worldBankCountryCodes maps the registry's two-letter country codes to the
// World Bank's three-letter ISO codes, ported from the original client's
// COUNTRY_CODES table.
var worldBankCountryCodes = map[string]string{
	"US": "USA", "EU": "EMU", "CN": "CHN", "JP": "JPN", "GB": "GBR",
	"DE": "DEU", "FR": "FRA", "IN": "IND", "BR": "BRA", "CA": "CAN",
	"AU": "AUS", "KR": "KOR",
}

// WorldBankEndpoint builds the country/indicator request. seriesID is
// encoded as "<country>:<indicator code>" (e.g. "US:FS.AST.PRVT.GD.ZS") —
// the World Bank API is the one provider in this set whose series identity
// is inherently two-dimensional, so the registry's source_id carries both.
func WorldBankEndpoint(source, seriesID string, start, end time.Time) (string, url.Values) {
	country, indicator := splitCompositeID(seriesID)
	wbCountry := worldBankCountryCodes[country]
	if wbCountry == "" {
		wbCountry = country
	}
	params := url.Values{}
	params.Set("format", "json")
	params.Set("per_page", "1000")
	if !start.IsZero() || !end.IsZero() {
		fromYear := "1960"
		toYear := strconv.Itoa(time.Now().Year())
		if !start.IsZero() {
			fromYear = strconv.Itoa(start.Year())
		}
		if !end.IsZero() {
			toYear = strconv.Itoa(end.Year())
		}
		params.Set("date", fromYear+":"+toYear)
	}
	return fmt.Sprintf("country/%s/indicator/%s", wbCountry, indicator), params
}

// WorldBankParser decodes a World Bank response: a two-element array where
// the second element is the list of {date, value} annual observations.
func WorldBankParser(source, seriesID string, body []byte) (model.RawTable, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.RawTable{}, fmt.Errorf("decoding World Bank response: %w", err)
	}
	if len(raw) < 2 {
		return model.RawTable{Source: source, SeriesID: seriesID}, nil
	}
	var entries []struct {
		Date  string   `json:"date"`
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(raw[1], &entries); err != nil {
		return model.RawTable{}, fmt.Errorf("decoding World Bank observations: %w", err)
	}
	now := time.Now()
	rows := make([]model.RawRow, 0, len(entries))
	for _, e := range entries {
		if e.Value == nil {
			continue
		}
		date, err := time.Parse("2006", e.Date)
		if err != nil {
			continue
		}
		rows = append(rows, model.RawRow{Date: date, Value: *e.Value, FetchedAt: now})
	}
	return model.RawTable{Source: source, SeriesID: seriesID, Rows: rows}, nil
}

// ─── BIS (Bank for International Settlements) SDMX ─────────────────────────

// bisDataflows maps the registry's short dataflow name to BIS's SDMX
// dataflow id, ported from the original client's DATAFLOWS table.
var bisDataflows = map[string]string{
	"credit":   "WS_TC",
	"debt":     "WS_DEBT_SEC2_PUB",
	"property": "WS_SPP",
}

// BISEndpoint builds the SDMX data request. seriesID is encoded as
// "<dataflow>:<series key>" (e.g. "credit:Q:US:P:A:M:XDC:A").
func BISEndpoint(source, seriesID string, start, end time.Time) (string, url.Values) {
	flowName, key := splitCompositeID(seriesID)
	dataflow := bisDataflows[flowName]
	if dataflow == "" {
		dataflow = bisDataflows["credit"]
		key = seriesID
	}
	params := url.Values{}
	if !start.IsZero() {
		params.Set("startPeriod", start.Format("2006-01"))
	}
	if !end.IsZero() {
		params.Set("endPeriod", end.Format("2006-01"))
	}
	return fmt.Sprintf("data/%s/%s", dataflow, key), params
}

// BISParser decodes a BIS SDMX-JSON response: a sparse dataSets[0].series
// map keyed by series ordinal, each holding observations keyed by a time
// dimension ordinal resolved against structure.dimensions.observation.
func BISParser(source, seriesID string, body []byte) (model.RawTable, error) {
	var raw struct {
		DataSets []struct {
			Series map[string]struct {
				Observations map[string][]float64 `json:"observations"`
			} `json:"series"`
		} `json:"dataSets"`
		Structure struct {
			Dimensions struct {
				Observation []struct {
					ID     string `json:"id"`
					Values []struct {
						ID string `json:"id"`
					} `json:"values"`
				} `json:"observation"`
			} `json:"dimensions"`
		} `json:"structure"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.RawTable{}, fmt.Errorf("decoding BIS response: %w", err)
	}
	if len(raw.DataSets) == 0 {
		return model.RawTable{Source: source, SeriesID: seriesID}, nil
	}

	var timeValues []string
	for _, dim := range raw.Structure.Dimensions.Observation {
		if dim.ID == "TIME_PERIOD" {
			for _, v := range dim.Values {
				timeValues = append(timeValues, v.ID)
			}
			break
		}
	}

	now := time.Now()
	var rows []model.RawRow
	for _, series := range raw.DataSets[0].Series {
		for idxStr, values := range series.Observations {
			idx, err := strconv.Atoi(idxStr)
			if err != nil || idx >= len(timeValues) || len(values) == 0 {
				continue
			}
			date, ok := parseBISPeriod(timeValues[idx])
			if !ok {
				continue
			}
			rows = append(rows, model.RawRow{Date: date, Value: values[0], FetchedAt: now})
		}
	}
	return model.RawTable{Source: source, SeriesID: seriesID, Rows: rows}, nil
}

// parseBISPeriod parses BIS's quarterly ("2023-Q1") and plain annual/monthly
// period strings into a date at the period's start.
func parseBISPeriod(period string) (time.Time, bool) {
	if idx := strings.Index(period, "-Q"); idx >= 0 {
		year, err1 := strconv.Atoi(period[:idx])
		quarter, err2 := strconv.Atoi(period[idx+2:])
		if err1 != nil || err2 != nil {
			return time.Time{}, false
		}
		month := (quarter-1)*3 + 1
		return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), true
	}
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, period); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ─── NY Fed Markets Data ────────────────────────────────────────────────────

// nyFedPaths maps the registry's series id to its fixed NY Fed endpoint
// path, ported from the original client's series_map dispatch.
var nyFedPaths = map[string]string{
	"sofr": "rates/secured/sofr/last/2500.json",
	"rrp":  "rates/repo/reverserepo/results/last/2500.json",
}

// NYFedEndpoint resolves the fixed per-series-kind path; NY Fed's market
// data endpoints take no date range parameters, only a lookback count.
func NYFedEndpoint(source, seriesID string, start, end time.Time) (string, url.Values) {
	path, ok := nyFedPaths[strings.ToLower(seriesID)]
	if !ok {
		path = nyFedPaths["sofr"]
	}
	return path, url.Values{}
}

// NYFedParser decodes whichever of the two known NY Fed response shapes
// this series resolved to: the "refRates" SOFR feed, or the reverse-repo
// "repo.operations" feed.
func NYFedParser(source, seriesID string, body []byte) (model.RawTable, error) {
	now := time.Now()
	switch strings.ToLower(seriesID) {
	case "rrp":
		var raw struct {
			Repo struct {
				Operations []struct {
					OperationDate string  `json:"operationDate"`
					TotalAmtAccepted float64 `json:"totalAmtAccepted"`
				} `json:"operations"`
			} `json:"repo"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return model.RawTable{}, fmt.Errorf("decoding NY Fed repo response: %w", err)
		}
		rows := make([]model.RawRow, 0, len(raw.Repo.Operations))
		for _, op := range raw.Repo.Operations {
			date, err := time.Parse("2006-01-02", op.OperationDate)
			if err != nil {
				continue
			}
			rows = append(rows, model.RawRow{Date: date, Value: op.TotalAmtAccepted, FetchedAt: now})
		}
		return model.RawTable{Source: source, SeriesID: seriesID, Rows: rows}, nil
	default:
		var raw struct {
			RefRates []struct {
				EffectiveDate string  `json:"effectiveDate"`
				PercentRate   float64 `json:"percentRate"`
			} `json:"refRates"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return model.RawTable{}, fmt.Errorf("decoding NY Fed rates response: %w", err)
		}
		rows := make([]model.RawRow, 0, len(raw.RefRates))
		for _, r := range raw.RefRates {
			date, err := time.Parse("2006-01-02", r.EffectiveDate)
			if err != nil {
				continue
			}
			rows = append(rows, model.RawRow{Date: date, Value: r.PercentRate, FetchedAt: now})
		}
		return model.RawTable{Source: source, SeriesID: seriesID, Rows: rows}, nil
	}
}

// ─── Yahoo Finance (asset prices) ───────────────────────────────────────────

// YFinanceEndpoint builds a request against Yahoo's public chart endpoint —
// the same unauthenticated JSON API the `yfinance` Python package itself
// wraps, used here directly since no Go client ships in this corpus.
func YFinanceEndpoint(source, seriesID string, start, end time.Time) (string, url.Values) {
	params := url.Values{}
	params.Set("interval", "1d")
	if !start.IsZero() {
		params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	} else {
		params.Set("period1", "0")
	}
	if !end.IsZero() {
		params.Set("period2", strconv.FormatInt(end.Unix(), 10))
	} else {
		params.Set("period2", strconv.FormatInt(time.Now().Unix(), 10))
	}
	return "v8/finance/chart/" + strings.ToUpper(seriesID), params
}

// YFinanceParser decodes Yahoo's chart-API response: parallel arrays of
// Unix timestamps and adjusted-close prices.
func YFinanceParser(source, seriesID string, body []byte) (model.RawTable, error) {
	var raw struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Adjclose []struct {
						Adjclose []*float64 `json:"adjclose"`
					} `json:"adjclose"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.RawTable{}, fmt.Errorf("decoding Yahoo Finance response: %w", err)
	}
	if len(raw.Chart.Result) == 0 || len(raw.Chart.Result[0].Indicators.Adjclose) == 0 {
		return model.RawTable{Source: source, SeriesID: seriesID}, nil
	}
	result := raw.Chart.Result[0]
	closes := result.Indicators.Adjclose[0].Adjclose
	now := time.Now()
	rows := make([]model.RawRow, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		rows = append(rows, model.RawRow{
			Date:      time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Value:     *closes[i],
			FetchedAt: now,
		})
	}
	return model.RawTable{Source: source, SeriesID: seriesID, Rows: rows}, nil
}

// splitCompositeID splits a "prefix:rest" source_id into its two halves; if
// there is no colon, prefix is empty and rest is the whole string.
func splitCompositeID(seriesID string) (prefix, rest string) {
	if idx := strings.Index(seriesID, ":"); idx >= 0 {
		return seriesID[:idx], seriesID[idx+1:]
	}
	return "", seriesID
}
