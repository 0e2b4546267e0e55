package fetcher_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuchris/glci/internal/fetcher"
)

func TestFredEndpointAndParser(t *testing.T) {
	path, params := fetcher.FredEndpoint("fred", "walcl", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	assert.Equal(t, "series/observations", path)
	assert.Equal(t, "WALCL", params.Get("series_id"))
	assert.Equal(t, "2020-01-01", params.Get("observation_start"))

	body := []byte(`{"observations":[{"date":"2020-01-01","value":"4000.5"},{"date":"2020-02-01","value":"."}]}`)
	table, err := fetcher.FredParser("fred", "WALCL", body)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 4000.5, table.Rows[0].Value)
}

func TestWorldBankEndpointAndParser(t *testing.T) {
	path, _ := fetcher.WorldBankEndpoint("worldbank", "US:FS.AST.PRVT.GD.ZS", time.Time{}, time.Time{})
	assert.Equal(t, "country/USA/indicator/FS.AST.PRVT.GD.ZS", path)

	body := []byte(`[{"page":1},[{"date":"2020","value":55.5},{"date":"2019","value":null}]]`)
	table, err := fetcher.WorldBankParser("worldbank", "US:FS.AST.PRVT.GD.ZS", body)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 55.5, table.Rows[0].Value)
}

func TestBISEndpointAndParser(t *testing.T) {
	path, _ := fetcher.BISEndpoint("bis", "credit:Q:US:P:A:M:XDC:A", time.Time{}, time.Time{})
	assert.Equal(t, "data/WS_TC/Q:US:P:A:M:XDC:A", path)

	body := []byte(`{
		"dataSets":[{"series":{"0:0:0:0:0:0:0:0":{"observations":{"0":[120.5],"1":[121.0]}}}}],
		"structure":{"dimensions":{"observation":[{"id":"TIME_PERIOD","values":[{"id":"2023-Q1"},{"id":"2023-Q2"}]}]}}
	}`)
	table, err := fetcher.BISParser("bis", "credit:series", body)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}

func TestNYFedEndpointAndParser(t *testing.T) {
	path, _ := fetcher.NYFedEndpoint("nyfed", "sofr", time.Time{}, time.Time{})
	assert.Equal(t, "rates/secured/sofr/last/2500.json", path)

	body := []byte(`{"refRates":[{"effectiveDate":"2024-01-02","percentRate":5.31}]}`)
	table, err := fetcher.NYFedParser("nyfed", "sofr", body)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 5.31, table.Rows[0].Value)
}

func TestYFinanceEndpointAndParser(t *testing.T) {
	path, _ := fetcher.YFinanceEndpoint("yfinance", "spy", time.Time{}, time.Time{})
	assert.Equal(t, "v8/finance/chart/SPY", path)

	body := []byte(`{"chart":{"result":[{"timestamp":[1700000000,1700086400],"indicators":{"adjclose":[{"adjclose":[410.5,null]}]}}]}}`)
	table, err := fetcher.YFinanceParser("yfinance", "SPY", body)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 410.5, table.Rows[0].Value)
}
