// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/wuchris/glci/internal/glci"
	"github.com/wuchris/glci/internal/model"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// jsonlRow is a canonical JSONL record for time series observations.
type jsonlRow struct {
	SeriesID string      `json:"series_id"`
	Date     string      `json:"date"`
	Value    interface{} `json:"value"` // float64 or null
}

func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch result.Kind {
	case model.KindSeriesData, model.KindIndexData:
		sd, ok := result.Data.(model.SeriesData)
		if !ok {
			return renderJSON(w, result)
		}
		for _, obs := range sd.Obs {
			row := jsonlRow{SeriesID: sd.SeriesID, Date: obs.Date.Format("2006-01-02")}
			if math.IsNaN(obs.Value) {
				row.Value = nil
			} else {
				row.Value = obs.Value
			}
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(result.Data)
	}
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	switch result.Kind {
	case model.KindSeriesData, model.KindIndexData:
		sd, ok := result.Data.(model.SeriesData)
		if !ok {
			return fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		return renderObsTable(w, sd)
	case model.KindSeriesList:
		metas, ok := result.Data.([]model.SeriesMeta)
		if !ok {
			return fmt.Errorf("unexpected data type for series_list")
		}
		return renderSeriesListTable(w, metas)
	case model.KindIndexList:
		metas, ok := result.Data.([]model.IndexMeta)
		if !ok {
			return fmt.Errorf("unexpected data type for index_list")
		}
		return renderIndexListTable(w, metas)
	case model.KindGLCI:
		snap, ok := result.Data.(glci.LatestSnapshot)
		if !ok {
			return renderJSON(w, result)
		}
		return renderGLCISnapshotTable(w, snap)
	case model.KindPillarBreakdown:
		breakdown, ok := result.Data.(map[string]glci.PillarValue)
		if !ok {
			return fmt.Errorf("unexpected data type for pillar_breakdown")
		}
		return renderPillarBreakdownTable(w, breakdown)
	case model.KindRegimeHistory:
		intervals, ok := result.Data.([]model.RegimeInterval)
		if !ok {
			return fmt.Errorf("unexpected data type for regime_history")
		}
		return renderRegimeHistoryTable(w, intervals)
	case model.KindFreshness:
		entries, ok := result.Data.([]model.FreshnessEntry)
		if !ok {
			return fmt.Errorf("unexpected data type for freshness")
		}
		return renderFreshnessTable(w, entries)
	case model.KindRiskDashboard:
		dash, ok := result.Data.(model.RiskDashboard)
		if !ok {
			return fmt.Errorf("unexpected data type for risk_dashboard")
		}
		return renderRiskDashboardTable(w, dash)
	case model.KindRiskMetrics:
		rm, ok := result.Data.(model.RiskMetrics)
		if !ok {
			return fmt.Errorf("unexpected data type for risk_metrics")
		}
		return renderRiskMetricsTable(w, rm)
	case model.KindStoredList:
		ids, ok := result.Data.([]string)
		if !ok {
			return fmt.Errorf("unexpected data type for stored_list")
		}
		return renderStringListTable(w, ids)
	default:
		// Fallback: JSON
		return renderJSON(w, result)
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	return tw
}

func renderObsTable(w io.Writer, sd model.SeriesData) error {
	tw := newTable(w, []string{"SERIES", "DATE", "VALUE"})
	tw.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, obs := range sd.Obs {
		tw.Append([]string{sd.SeriesID, obs.Date.Format("2006-01-02"), formatValue(obs.Value)})
	}
	tw.Render()
	return nil
}

func renderSeriesListTable(w io.Writer, metas []model.SeriesMeta) error {
	tw := newTable(w, []string{"SERIES", "SOURCE", "COUNTRY", "FREQ", "UNIT", "PILLARS"})
	for _, m := range metas {
		tw.Append([]string{
			m.SeriesID, m.Source, m.Country, m.Frequency, m.Unit,
			strings.Join(m.Pillars, ","),
		})
	}
	tw.Render()
	return nil
}

func renderIndexListTable(w io.Writer, metas []model.IndexMeta) error {
	tw := newTable(w, []string{"INDEX", "METHOD"})
	for _, m := range metas {
		tw.Append([]string{m.IndexID, m.Method})
	}
	tw.Render()
	return nil
}

func renderGLCISnapshotTable(w io.Writer, snap glci.LatestSnapshot) error {
	tw := newTable(w, []string{"FIELD", "VALUE"})
	tw.Append([]string{"Date", time.Unix(snap.Date, 0).UTC().Format("2006-01-02")})
	tw.Append([]string{"Value", formatValue(snap.Value)})
	tw.Append([]string{"Z-Score", formatValue(snap.ZScore)})
	tw.Append([]string{"Regime", snap.RegimeLabel})
	tw.Append([]string{"Momentum", formatValue(snap.Momentum)})
	tw.Render()
	return nil
}

func renderPillarBreakdownTable(w io.Writer, breakdown map[string]glci.PillarValue) error {
	names := make([]string, 0, len(breakdown))
	for name := range breakdown {
		names = append(names, name)
	}
	sort.Strings(names)
	tw := newTable(w, []string{"PILLAR", "VALUE", "WEIGHT"})
	for _, name := range names {
		pv := breakdown[name]
		tw.Append([]string{name, formatValue(pv.Value), fmt.Sprintf("%.2f", pv.Weight)})
	}
	tw.Render()
	return nil
}

func renderRegimeHistoryTable(w io.Writer, intervals []model.RegimeInterval) error {
	tw := newTable(w, []string{"REGIME", "START", "END", "COUNT"})
	for _, iv := range intervals {
		tw.Append([]string{
			iv.Regime.Label(),
			time.Unix(iv.Start, 0).UTC().Format("2006-01-02"),
			time.Unix(iv.End, 0).UTC().Format("2006-01-02"),
			fmt.Sprintf("%d", iv.Count),
		})
	}
	tw.Render()
	return nil
}

func renderFreshnessTable(w io.Writer, entries []model.FreshnessEntry) error {
	tw := newTable(w, []string{"SERIES", "PILLAR", "LAST DATE", "DAYS OLD", "STALE"})
	for _, e := range entries {
		stale := ""
		if e.IsStale {
			stale = "⚠ stale"
		}
		tw.Append([]string{e.SeriesID, e.Pillar, e.LastDate, fmt.Sprintf("%d", e.DaysOld), stale})
	}
	tw.Render()
	return nil
}

func renderRiskDashboardTable(w io.Writer, dash model.RiskDashboard) error {
	fmt.Fprintf(w, "Regime: %s   Risk-free: %.4f%%\n\n", dash.CurrentRegime, dash.RiskFreeRate*100)
	tw := newTable(w, []string{"ASSET", "CATEGORY", "SHARPE", "ANN. RETURN", "ANN. VOL", "MAX DD"})
	for _, a := range dash.Assets {
		tw.Append([]string{
			a.AssetID, a.Category,
			formatValue(a.CurrentSharpe), formatValue(a.AnnualizedReturn),
			formatValue(a.AnnualizedVolatility), formatValue(a.MaxDrawdown),
		})
	}
	tw.Render()
	return nil
}

func renderRiskMetricsTable(w io.Writer, rm model.RiskMetrics) error {
	tw := newTable(w, []string{"FIELD", "VALUE"})
	tw.Append([]string{"Asset", rm.AssetID})
	tw.Append([]string{"Category", rm.Category})
	tw.Append([]string{"Sharpe", formatValue(rm.CurrentSharpe)})
	tw.Append([]string{"Annualized Return", formatValue(rm.AnnualizedReturn)})
	tw.Append([]string{"Annualized Volatility", formatValue(rm.AnnualizedVolatility)})
	tw.Append([]string{"Max Drawdown", formatValue(rm.MaxDrawdown)})
	tw.Append([]string{"GLCI Correlation", formatValue(rm.CorrelationWithGLCI)})
	for _, label := range []string{"tight", "neutral", "loose"} {
		if v := rm.SharpeByRegime[label]; v != nil {
			tw.Append([]string{"Sharpe (" + label + ")", formatValue(*v)})
		}
	}
	tw.Render()
	return nil
}

func renderStringListTable(w io.Writer, ids []string) error {
	tw := newTable(w, []string{"ID"})
	for _, id := range ids {
		tw.Append([]string{id})
	}
	tw.Render()
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	switch result.Kind {
	case model.KindSeriesData, model.KindIndexData:
		sd, ok := result.Data.(model.SeriesData)
		if !ok {
			return fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		_ = cw.Write([]string{"series_id", "date", "value"})
		for _, obs := range sd.Obs {
			_ = cw.Write([]string{sd.SeriesID, obs.Date.Format("2006-01-02"), formatValue(obs.Value)})
		}
	case model.KindSeriesList:
		metas, ok := result.Data.([]model.SeriesMeta)
		if !ok {
			return fmt.Errorf("unexpected data type for series_list")
		}
		_ = cw.Write([]string{"series_id", "source", "country", "frequency", "unit", "sign"})
		for _, m := range metas {
			_ = cw.Write([]string{m.SeriesID, m.Source, m.Country, m.Frequency, m.Unit, fmt.Sprintf("%d", m.Sign)})
		}
	case model.KindRiskDashboard:
		dash, ok := result.Data.(model.RiskDashboard)
		if !ok {
			return fmt.Errorf("unexpected data type for risk_dashboard")
		}
		_ = cw.Write([]string{"asset_id", "category", "sharpe", "annualized_return", "annualized_volatility", "max_drawdown"})
		for _, a := range dash.Assets {
			_ = cw.Write([]string{
				a.AssetID, a.Category,
				formatValue(a.CurrentSharpe), formatValue(a.AnnualizedReturn),
				formatValue(a.AnnualizedVolatility), formatValue(a.MaxDrawdown),
			})
		}
	default:
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	switch result.Kind {
	case model.KindSeriesData, model.KindIndexData:
		sd, ok := result.Data.(model.SeriesData)
		if !ok {
			return renderJSON(w, result)
		}
		fmt.Fprintf(w, "| SERIES | DATE | VALUE |\n|--------|------|-------|\n")
		for _, obs := range sd.Obs {
			fmt.Fprintf(w, "| %s | %s | %s |\n", sd.SeriesID, obs.Date.Format("2006-01-02"), formatValue(obs.Value))
		}
		return nil
	case model.KindSeriesList:
		metas, ok := result.Data.([]model.SeriesMeta)
		if !ok {
			return renderJSON(w, result)
		}
		fmt.Fprintf(w, "| SERIES | SOURCE | FREQ | UNIT |\n|--------|--------|------|------|\n")
		for _, m := range metas {
			fmt.Fprintf(w, "| %s | %s | %s | %s |\n", m.SeriesID, m.Source, m.Frequency, mdEscape(m.Unit))
		}
		return nil
	default:
		return renderJSON(w, result)
	}
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "\n[%s • %d observations • %d series • %dms]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.NObservations,
			result.Stats.NSeries,
			result.Stats.DurationMS,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatValue formats an observation value for display.
// Always shows at least one decimal place (e.g. 4.0, not 4).
// Trims unnecessary trailing zeros beyond the first (e.g. 3.400000 → 3.4).
// Missing values (NaN) render as ".".
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	// Trim trailing zeros but keep at least one digit after the decimal point.
	s := strings.TrimRight(fmt.Sprintf("%.6f", v), "0")
	if strings.HasSuffix(s, ".") {
		s += "0" // "4." → "4.0"
	}
	return s
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
