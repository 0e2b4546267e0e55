package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/store"
)

var (
	showStartFlag string
	showEndFlag   string
	showTailFlag  int
)

var showCmd = &cobra.Command{
	Use:   "show <series_id|index_id>",
	Short: "Show a registered series or index's stored observations",
	Long: `Show reads previously fetched/computed data out of the local store — it
never calls a data source itself. Run "fetch" or "compute --save" first.`,
	Example: `  glci show walcl --tail 12
  glci show global_liquidity_credit_index --start 2020-01-01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		id := normaliseIDs(args)[0]
		format := resolveFormat(deps.Config.Format)
		t0 := time.Now()

		var obs []model.Observation
		var source string

		if entry, ok := deps.Registry.Series(id); ok {
			table, found, err := deps.Store.LoadRaw(entry.Source, entry.SourceID)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s: no stored data; run 'glci fetch --series %s --save' first", id, id)
			}
			source = entry.Source
			obs = observationsFromRaw(table)
		} else if idxEntry, ok := deps.Registry.Index(id); ok {
			if idxEntry.IsPillarized() {
				records, found, err := deps.Store.LoadGLCI()
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%s: no stored data; run 'glci compute --index %s --save' first", id, id)
				}
				obs = observationsFromGLCI(records)
			} else {
				rows, found, err := deps.Store.LoadCuratedValues("indices", id)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%s: no stored data; run 'glci compute --index %s --save' first", id, id)
				}
				obs = observationsFromValueRows(rows)
			}
			source = "computed"
		} else {
			return wrapUserInput("%q is not a registered series or index", id)
		}

		obs = filterWindow(obs, showStartFlag, showEndFlag)
		if showTailFlag > 0 && len(obs) > showTailFlag {
			obs = obs[len(obs)-showTailFlag:]
		}

		result := &model.Result{
			Kind:        model.KindSeriesData,
			GeneratedAt: time.Now(),
			Command:     fmt.Sprintf("show %s", id),
			Data:        model.SeriesData{SeriesID: id, Source: source, Obs: obs},
			Stats: model.Stats{
				NObservations: len(obs),
				DurationMS:    time.Since(t0).Milliseconds(),
			},
		}
		return emit(result, format)
	},
}

func observationsFromRaw(table model.RawTable) []model.Observation {
	out := make([]model.Observation, len(table.Rows))
	for i, r := range table.Rows {
		out[i] = model.Observation{Date: r.Date, Value: r.Value}
	}
	return out
}

func observationsFromValueRows(rows []store.ValueRow) []model.Observation {
	out := make([]model.Observation, len(rows))
	for i, r := range rows {
		out[i] = model.Observation{Date: time.Unix(r.Date, 0).UTC(), Value: r.Value}
	}
	return out
}

func observationsFromGLCI(records []model.GLCIRecord) []model.Observation {
	out := make([]model.Observation, len(records))
	for i, r := range records {
		out[i] = model.Observation{Date: time.Unix(r.Date, 0).UTC(), Value: r.Value}
	}
	return out
}

func filterWindow(obs []model.Observation, startS, endS string) []model.Observation {
	start, end, err := parseWindow(startS, endS)
	if err != nil || (start.IsZero() && end.IsZero()) {
		return obs
	}
	out := obs[:0:0]
	for _, o := range obs {
		if !start.IsZero() && o.Date.Before(start) {
			continue
		}
		if !end.IsZero() && o.Date.After(end) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringVar(&showStartFlag, "start", "", "window start date YYYY-MM-DD")
	showCmd.Flags().StringVar(&showEndFlag, "end", "", "window end date YYYY-MM-DD")
	showCmd.Flags().IntVar(&showTailFlag, "tail", 0, "show only the last N observations")
}
