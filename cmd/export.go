package cmd

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wuchris/glci/internal/model"
)

var (
	exportOutputFlag   string
	exportSnapshotFlag bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the static JSON API tree for the configured series/indices",
	Long: `Export walks every registered series and index, plus whatever GLCI and
risk-dashboard state is stored, and writes a tree of JSON files under
<output>/api/... — the same wire format served by the static site. There is
no "latest" directory level; the tree sits directly under <output>.

--snapshot additionally copies that tree to
<output>/snapshots/<YYYY-MM-DD>/api/..., replacing any prior snapshot for the
same date.`,
	Example: `  glci export --output ./site
  glci export --output ./site --snapshot`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		root := exportOutputFlag
		if root == "" {
			root = filepath.Join(deps.Config.DataPath, "export")
		}

		t0 := time.Now()
		snapshotDate := ""
		if exportSnapshotFlag {
			snapshotDate = time.Now().UTC().Format("2006-01-02")
		}

		summary, err := deps.Exporter.Export(cmd.Context(), root, snapshotDate)
		if err != nil {
			return err
		}

		result := &model.Result{
			Kind:        model.KindExportSummary,
			GeneratedAt: time.Now(),
			Command:     "export",
			Data:        summary,
			Warnings:    summary.Warnings,
			Stats: model.Stats{
				DurationMS: time.Since(t0).Milliseconds(),
			},
		}
		format := resolveFormat(deps.Config.Format)
		return emit(result, format)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportOutputFlag, "output", "", "export root directory (default <data-path>/export)")
	exportCmd.Flags().BoolVar(&exportSnapshotFlag, "snapshot", false, "also copy the export tree to snapshots/<today>/")
}
