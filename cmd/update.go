package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wuchris/glci/internal/glci"
	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/riskmetrics"
)

var updateNoExportFlag bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run the full scheduled refresh: fetch, compute, and (optionally) export",
	Long: `Update is the one command a cron job or scheduled workflow needs: it
fetches every registered series, recomputes every registered index and the
risk dashboard, persists all of it, and — unless --no-export is given — writes
the static JSON export tree.

Per-series and per-index failures are recorded as warnings and do not abort
the run; the command fails only if every unit of work failed.`,
	Example: `  glci update
  glci update --no-export`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		t0 := time.Now()
		ctx := cmd.Context()
		var warnings []string

		seriesIDs := deps.Registry.AllSeries()
		tables, fetchWarnings := fetchAll(ctx, deps, seriesIDs, time.Time{}, time.Time{})
		warnings = append(warnings, fetchWarnings...)
		for _, t := range tables {
			if err := deps.Store.SaveRaw(t); err != nil {
				warnings = append(warnings, fmt.Sprintf("saving %s/%s: %v", t.Source, t.SeriesID, err))
			}
		}

		indexIDs := deps.Registry.AllIndices()
		computed := 0
		for _, id := range indexIDs {
			entry, _ := deps.Registry.Index(id)
			if entry.IsPillarized() {
				if _, err := deps.GLCI.Compute(ctx, id, time.Time{}, time.Time{}, glci.Options{Save: true}); err != nil {
					warnings = append(warnings, fmt.Sprintf("compute %s: %v", id, err))
					continue
				}
			} else if _, err := computeArithmeticCore(ctx, deps, id, time.Time{}, time.Time{}, true); err != nil {
				warnings = append(warnings, fmt.Sprintf("compute %s: %v", id, err))
				continue
			}
			computed++
		}

		if _, err := deps.Risk.Compute(ctx, time.Time{}, time.Time{}, riskmetrics.Options{Save: true}); err != nil {
			warnings = append(warnings, fmt.Sprintf("risk dashboard: %v", err))
		}

		exported := false
		if !updateNoExportFlag {
			root := filepath.Join(deps.Config.DataPath, "export")
			if _, err := deps.Exporter.Export(ctx, root, ""); err != nil {
				warnings = append(warnings, fmt.Sprintf("export: %v", err))
			} else {
				exported = true
			}
		}

		result := &model.Result{
			Kind:        model.KindExportSummary,
			GeneratedAt: time.Now(),
			Command:     "update",
			Data: updateSummary{
				SeriesFetched:   len(tables),
				SeriesTotal:     len(seriesIDs),
				IndicesComputed: computed,
				IndicesTotal:    len(indexIDs),
				Exported:        exported,
			},
			Warnings: warnings,
			Stats: model.Stats{
				NSeries:    len(tables),
				DurationMS: time.Since(t0).Milliseconds(),
			},
		}
		format := resolveFormat(deps.Config.Format)
		if err := emit(result, format); err != nil {
			return err
		}
		if len(tables) == 0 && computed == 0 {
			return fmt.Errorf("update produced no usable output")
		}
		return nil
	},
}

type updateSummary struct {
	SeriesFetched   int  `json:"series_fetched"`
	SeriesTotal     int  `json:"series_total"`
	IndicesComputed int  `json:"indices_computed"`
	IndicesTotal    int  `json:"indices_total"`
	Exported        bool `json:"exported"`
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().BoolVar(&updateNoExportFlag, "no-export", false, "skip the export step")
}
