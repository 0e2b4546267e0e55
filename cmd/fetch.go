package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/wuchris/glci/internal/app"
	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/util"
)

var (
	fetchSeriesFlag []string
	fetchSourceFlag string
	fetchAllFlag    bool
	fetchStartFlag  string
	fetchEndFlag    string
	fetchSaveFlag   bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch configured series from their data sources",
	Long: `Fetch pulls raw observations for one or more registered series and,
with --save, appends them to the raw store under <data-path>/raw/<source>/.

Select series with --series (repeatable / comma-separated), --source (every
series whose registry entry names this source), or --all (every registered
series). Exactly one selector is required.`,
	Example: `  glci fetch --series walcl,rrp --save
  glci fetch --source fred --start 2015-01-01 --save
  glci fetch --all --save`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		ids, err := resolveFetchTargets(deps, fetchSeriesFlag, fetchSourceFlag, fetchAllFlag)
		if err != nil {
			return err
		}

		start, end, err := parseWindow(fetchStartFlag, fetchEndFlag)
		if err != nil {
			return err
		}

		t0 := time.Now()
		tables, warnings := fetchAll(cmd.Context(), deps, ids, start, end)

		if fetchSaveFlag {
			for _, t := range tables {
				if err := deps.Store.SaveRaw(t); err != nil {
					warnings = append(warnings, fmt.Sprintf("saving %s/%s: %v", t.Source, t.SeriesID, err))
				}
			}
		}

		nObs := 0
		for _, t := range tables {
			nObs += len(t.Rows)
		}
		result := &model.Result{
			Kind:        model.KindStoredList,
			GeneratedAt: time.Now(),
			Command:     "fetch",
			Data:        fetchSummaryLines(tables),
			Warnings:    warnings,
			Stats: model.Stats{
				NSeries:       len(tables),
				NObservations: nObs,
				DurationMS:    time.Since(t0).Milliseconds(),
			},
		}

		format := resolveFormat(deps.Config.Format)
		if err := emit(result, format); err != nil {
			return err
		}
		if len(tables) == 0 && len(ids) > 0 {
			return fmt.Errorf("all %d series failed to fetch: %w", len(ids), errFetchExhausted)
		}
		return nil
	},
}

func fetchSummaryLines(tables []model.RawTable) []string {
	sort.Slice(tables, func(i, j int) bool { return tables[i].SeriesID < tables[j].SeriesID })
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		out = append(out, fmt.Sprintf("%s (%s): %d rows", t.SeriesID, t.Source, len(t.Rows)))
	}
	return out
}

// resolveFetchTargets applies the --series/--source/--all selector, requiring
// exactly one to be set (§6 CLI surface).
func resolveFetchTargets(deps *app.Deps, series []string, source string, all bool) ([]string, error) {
	selected := 0
	if len(series) > 0 {
		selected++
	}
	if source != "" {
		selected++
	}
	if all {
		selected++
	}
	if selected == 0 {
		return nil, wrapUserInput("exactly one of --series, --source, or --all is required")
	}
	if selected > 1 {
		return nil, wrapUserInput("--series, --source, and --all are mutually exclusive")
	}

	if all {
		return deps.Registry.AllSeries(), nil
	}
	if source != "" {
		var ids []string
		for _, id := range deps.Registry.AllSeries() {
			entry, _ := deps.Registry.Series(id)
			if entry.Source == source {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return nil, wrapUserInput("no registered series has source %q", source)
		}
		return ids, nil
	}

	var ids []string
	for _, raw := range series {
		for _, id := range strings.Split(raw, ",") {
			ids = append(ids, id)
		}
	}
	return normaliseIDs(ids), nil
}

// fetchAll fetches every id concurrently, bounded by deps.Config.Concurrency,
// collecting per-series failures as warnings rather than aborting the run
// (§7 "errors local to one series ... are caught and recorded").
func fetchAll(ctx context.Context, deps *app.Deps, ids []string, start, end time.Time) ([]model.RawTable, []string) {
	concurrency := deps.Config.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	type result struct {
		table model.RawTable
		err   error
	}
	results := make([]result, len(ids))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, id := range ids {
		entry, ok := deps.Registry.Series(id)
		if !ok {
			results[i] = result{err: fmt.Errorf("%s: not found in registry", id)}
			continue
		}
		i, id, entry := i, id, entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			table, err := deps.Fetcher.Fetch(ctx, entry.Source, entry.SourceID, start, end)
			table.SeriesID = entry.SourceID
			results[i] = result{table: table, err: err}
		}()
	}
	wg.Wait()

	var tables []model.RawTable
	var warnings []string
	for i, r := range results {
		if r.err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", ids[i], r.err))
			continue
		}
		tables = append(tables, r.table)
	}
	return tables, warnings
}

// parseWindow parses --start/--end into an inclusive [start,end] pair; empty
// strings leave the zero value, meaning "no bound" to the fetcher.
func parseWindow(startS, endS string) (start, end time.Time, err error) {
	if startS != "" {
		start, err = util.ParseDate(startS)
		if err != nil {
			return start, end, wrapUserInput("invalid --start: %v", err)
		}
	}
	if endS != "" {
		end, err = util.ParseDate(endS)
		if err != nil {
			return start, end, wrapUserInput("invalid --end: %v", err)
		}
	}
	return start, end, nil
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringSliceVar(&fetchSeriesFlag, "series", nil, "series ids to fetch (repeatable or comma-separated)")
	fetchCmd.Flags().StringVar(&fetchSourceFlag, "source", "", "fetch every registered series from this source")
	fetchCmd.Flags().BoolVar(&fetchAllFlag, "all", false, "fetch every registered series")
	fetchCmd.Flags().StringVar(&fetchStartFlag, "start", "", "window start date YYYY-MM-DD")
	fetchCmd.Flags().StringVar(&fetchEndFlag, "end", "", "window end date YYYY-MM-DD")
	fetchCmd.Flags().BoolVar(&fetchSaveFlag, "save", false, "persist fetched rows to the raw store")
}
