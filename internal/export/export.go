// Package export renders the analytics store into a static JSON tree
// (§4.7): one file per documented path, written atomically, readable by
// any dashboard without touching the columnar store directly.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wuchris/glci/internal/config"
	"github.com/wuchris/glci/internal/glci"
	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/riskmetrics"
	"github.com/wuchris/glci/internal/store"
)

// Exporter renders the registry + store's current state into the
// `api/...` JSON tree.
type Exporter struct {
	Registry *config.Registry
	Store    *store.Store
	GLCI     *glci.Computer
	Risk     *riskmetrics.Computer
	IndexID  string // defaults to glci.DefaultIndexID
}

// NewExporter constructs an Exporter targeting the default composite index.
func NewExporter(reg *config.Registry, st *store.Store, g *glci.Computer, r *riskmetrics.Computer) *Exporter {
	return &Exporter{Registry: reg, Store: st, GLCI: g, Risk: r, IndexID: glci.DefaultIndexID}
}

// Summary reports what Export wrote, returned as the api/export_summary
// payload and to the caller for logging.
type Summary struct {
	Root          string   `json:"root"`
	FilesWritten  int      `json:"files_written"`
	Warnings      []string `json:"warnings,omitempty"`
	SnapshotPath  string   `json:"snapshot_path,omitempty"`
}

// Export writes the full tree under root. When snapshotDate is non-empty
// (format YYYY-MM-DD), the tree is additionally copied to
// root/snapshots/<snapshotDate>, removing any prior snapshot at that date
// first.
func (e *Exporter) Export(ctx context.Context, root, snapshotDate string) (Summary, error) {
	indexID := e.IndexID
	if indexID == "" {
		indexID = glci.DefaultIndexID
	}
	apiRoot := filepath.Join(root, "api")
	sum := Summary{Root: root}

	write := func(relPath string, kind model.Kind, command string, data interface{}) {
		result := model.Result{
			Kind:        kind,
			GeneratedAt: time.Now().UTC(),
			Command:     command,
			Data:        data,
		}
		path := filepath.Join(apiRoot, relPath)
		if err := writeAtomicJSON(path, result); err != nil {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s: %v", relPath, err))
			return
		}
		sum.FilesWritten++
	}

	e.exportSeries(write)
	e.exportIndices(write, indexID)
	e.exportGLCI(ctx, write, indexID)
	e.exportRisk(write)

	if snapshotDate != "" {
		snapPath := filepath.Join(root, "snapshots", snapshotDate)
		if err := os.RemoveAll(snapPath); err != nil {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("removing prior snapshot: %v", err))
		} else if err := copyTree(apiRoot, filepath.Join(snapPath, "api")); err != nil {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("copying snapshot: %v", err))
		} else {
			sum.SnapshotPath = snapPath
		}
	}

	write("export_summary", model.KindExportSummary, "export", sum)
	return sum, nil
}

type writeFn func(relPath string, kind model.Kind, command string, data interface{})

func (e *Exporter) exportSeries(write writeFn) {
	ids := e.Registry.AllSeries()
	metas := make([]model.SeriesMeta, 0, len(ids))
	for _, id := range ids {
		se, _ := e.Registry.Series(id)
		metas = append(metas, model.SeriesMeta{
			SeriesID:  id,
			Source:    se.Source,
			Country:   se.Country,
			Frequency: string(se.Frequency),
			Unit:      se.Unit,
			Pillars:   e.pillarsContaining(id),
			Sign:      se.ExpectedSign,
		})
	}
	write("series", model.KindSeriesList, "list series", metas)

	for _, id := range ids {
		se, _ := e.Registry.Series(id)
		table, ok, err := e.Store.LoadRaw(se.Source, se.SourceID)
		if err != nil || !ok || len(table.Rows) == 0 {
			continue
		}
		obs := make([]model.Observation, len(table.Rows))
		for i, r := range table.Rows {
			obs[i] = model.Observation{Date: r.Date, Value: r.Value}
		}
		write(filepath.Join("series", id), model.KindSeriesData, "show "+id, model.SeriesData{
			SeriesID: id, Source: se.Source, Obs: obs,
		})

		last := obs[len(obs)-1]
		pctChange7d := 0.0
		for i := len(obs) - 1; i >= 0; i-- {
			if last.Date.Sub(obs[i].Date).Hours() >= 7*24 {
				if obs[i].Value != 0 {
					pctChange7d = (last.Value - obs[i].Value) / obs[i].Value * 100
				}
				break
			}
		}
		write(filepath.Join("series", id, "latest"), model.KindSeriesMeta, "show "+id+" --latest", latestSeriesPoint{
			Date: last.Date.Format("2006-01-02"), Value: last.Value, PctChange7D: pctChange7d,
		})
	}
}

type latestSeriesPoint struct {
	Date        string  `json:"date"`
	Value       float64 `json:"value"`
	PctChange7D float64 `json:"pct_change_7d"`
}

// pillarsContaining returns the sorted, deduplicated names of every pillar
// (across every pillarized index) whose components reference seriesID.
func (e *Exporter) pillarsContaining(seriesID string) []string {
	seen := make(map[string]bool)
	for _, indexID := range e.Registry.AllIndices() {
		entry, ok := e.Registry.Index(indexID)
		if !ok || !entry.IsPillarized() {
			continue
		}
		for name, pillar := range entry.Pillars {
			for _, comp := range pillar.Components {
				if comp.Series == seriesID {
					seen[name] = true
				}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (e *Exporter) exportIndices(write writeFn, glciIndexID string) {
	ids := e.Registry.AllIndices()
	metas := make([]model.IndexMeta, 0, len(ids))
	for _, id := range ids {
		entry, _ := e.Registry.Index(id)
		metas = append(metas, model.IndexMeta{
			IndexID: id,
			Name:    id,
			Method:  indexMethodLabel(entry),
		})
	}
	write("indices", model.KindIndexList, "list indices", metas)

	for _, id := range ids {
		entry, _ := e.Registry.Index(id)
		if entry.IsPillarized() {
			// The pillarized composite is exported in full under api/glci;
			// only the flagship index id gets an api/indices/<id> alias so
			// generic index-browsing UIs don't need to special-case it.
			if id != glciIndexID {
				continue
			}
			records, ok, err := e.Store.LoadGLCI()
			if err != nil || !ok {
				continue
			}
			obs := make([]model.Observation, len(records))
			for i, r := range records {
				obs[i] = model.Observation{Date: time.Unix(r.Date, 0).UTC(), Value: r.Value}
			}
			write(filepath.Join("indices", id), model.KindIndexData, "show index "+id, model.SeriesData{SeriesID: id, Obs: obs})
			continue
		}
		rows, ok, err := e.Store.LoadCuratedValues("indices", id)
		if err != nil || !ok {
			continue
		}
		obs := make([]model.Observation, len(rows))
		for i, r := range rows {
			obs[i] = model.Observation{Date: time.Unix(r.Date, 0).UTC(), Value: r.Value}
		}
		write(filepath.Join("indices", id), model.KindIndexData, "show index "+id, model.SeriesData{SeriesID: id, Obs: obs})
	}
}

func indexMethodLabel(entry config.IndexEntry) string {
	if entry.IsPillarized() {
		return "pillarized"
	}
	return entry.Method
}

func (e *Exporter) exportGLCI(ctx context.Context, write writeFn, indexID string) {
	records, ok, err := e.Store.LoadGLCI()
	if err != nil || !ok || len(records) == 0 {
		return
	}

	dates := make([]int64, len(records))
	regimes := make([]model.Regime, len(records))
	for i, r := range records {
		dates[i] = r.Date
		regimes[i] = model.Regime(r.Regime)
	}

	latest, _, _ := e.GLCI.GetLatest()
	write(filepath.Join("glci", "latest"), model.KindGLCI, "glci --latest", latest)

	write("glci", model.KindGLCI, "glci", struct {
		Latest  glci.LatestSnapshot `json:"latest"`
		Records []model.GLCIRecord `json:"records"`
	}{Latest: latest, Records: records})

	if _, breakdown, err := e.GLCI.PillarBreakdown(indexID); err == nil {
		write(filepath.Join("glci", "pillars"), model.KindPillarBreakdown, "glci pillars", breakdown)
	}

	intervals := model.CompressRegimeTimeline(dates, regimes)
	write(filepath.Join("glci", "regime-history"), model.KindRegimeHistory, "glci regime-history", intervals)

	if entries, err := e.GLCI.Freshness(ctx, indexID); err == nil {
		write(filepath.Join("glci", "freshness"), model.KindFreshness, "glci freshness", entries)
	}
}

func (e *Exporter) exportRisk(write writeFn) {
	var dashboard model.RiskDashboard
	ok, err := e.Store.LoadCuratedJSON("risk", "risk_metrics", &dashboard)
	if err != nil || !ok {
		return
	}
	write("risk", model.KindRiskDashboard, "risk", dashboard)
	for _, a := range dashboard.Assets {
		write(filepath.Join("risk", a.AssetID), model.KindRiskMetrics, "risk "+a.AssetID, a)
	}
}

// writeAtomicJSON marshals v and writes it to path via a temp file in the
// same directory, fsync, then rename — mirroring store's own writeAtomic
// so the exported tree gets the same never-partial guarantee the curated
// store gives its own artifacts.
func writeAtomicJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsyncing temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file %s: %w", tmpPath, err)
	}
	return os.Rename(tmpPath, path)
}

// copyTree recursively copies every regular file from src to dst,
// preserving relative paths, for snapshot mode.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}
