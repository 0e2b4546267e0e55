package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wuchris/glci/internal/app"
	"github.com/wuchris/glci/internal/glci"
	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/store"
)

var (
	computeIndexFlag    []string
	computeAllFlag      bool
	computeStartFlag    string
	computeEndFlag      string
	computeSaveFlag     bool
	computePillarsFlag  bool
	computeRegimeFlag   bool
	computeFactorMethod string
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Fit pillar factors and compute composite indices",
	Long: `Compute fits each index's configured method over [start,end]: arithmetic
indices are a weighted combination of their component series; pillarized
indices (the GLCI) fit a latent factor per pillar (DFM, falling back to
PCA-shrunk then plain PCA on non-convergence), weight-combine the pillars,
rescale to the configured mean/stdev, and classify the liquidity regime.

--pillars additionally prints the per-pillar breakdown; --regime additionally
prints the compressed regime timeline. --save persists the result to the
curated store.`,
	Example: `  glci compute --index global_liquidity_credit_index --save --pillars
  glci compute --all --start 2015-01-01 --save`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		ids, err := resolveComputeTargets(deps, computeIndexFlag, computeAllFlag)
		if err != nil {
			return err
		}
		start, end, err := parseWindow(computeStartFlag, computeEndFlag)
		if err != nil {
			return err
		}

		t0 := time.Now()
		format := resolveFormat(deps.Config.Format)
		var warnings []string

		for _, id := range ids {
			entry, _ := deps.Registry.Index(id)
			if entry.IsPillarized() {
				if err := computePillarized(cmd.Context(), deps, id, start, end, format, &warnings); err != nil {
					warnings = append(warnings, fmt.Sprintf("%s: %v", id, err))
				}
			} else {
				if err := computeArithmetic(cmd.Context(), deps, id, start, end, format); err != nil {
					warnings = append(warnings, fmt.Sprintf("%s: %v", id, err))
				}
			}
		}

		if !globalFlags.Quiet && len(warnings) > 0 {
			render := &model.Result{Warnings: warnings, Stats: model.Stats{DurationMS: time.Since(t0).Milliseconds()}}
			return emit(render, format)
		}
		if len(warnings) == len(ids) && len(ids) > 0 {
			return fmt.Errorf("compute failed for all %d indices", len(ids))
		}
		return nil
	},
}

func resolveComputeTargets(deps *app.Deps, indices []string, all bool) ([]string, error) {
	if len(indices) > 0 && all {
		return nil, wrapUserInput("--index and --all are mutually exclusive")
	}
	if all {
		return deps.Registry.AllIndices(), nil
	}
	if len(indices) == 0 {
		return nil, wrapUserInput("one of --index or --all is required")
	}
	return normaliseIDs(indices), nil
}

func computePillarized(ctx context.Context, deps *app.Deps, id string, start, end time.Time, format string, warnings *[]string) error {
	t0 := time.Now()
	res, err := deps.GLCI.Compute(ctx, id, start, end, glci.Options{
		FactorMethod: computeFactorMethod,
		Save:         computeSaveFlag,
	})
	if err != nil {
		return err
	}

	*warnings = append(*warnings, indexWarnings(res.MissingPillars)...)

	result := &model.Result{
		Kind:        model.KindGLCI,
		GeneratedAt: time.Now(),
		Command:     fmt.Sprintf("compute %s", id),
		Data:        latestFromRecords(res.Records),
		Warnings:    *warnings,
		Stats: model.Stats{
			NObservations: len(res.Records),
			DurationMS:    time.Since(t0).Milliseconds(),
		},
	}
	if err := emit(result, format); err != nil {
		return err
	}

	if computePillarsFlag {
		_, breakdown, err := deps.GLCI.PillarBreakdown(id)
		if err == nil {
			pr := &model.Result{
				Kind:        model.KindPillarBreakdown,
				GeneratedAt: time.Now(),
				Command:     fmt.Sprintf("compute %s --pillars", id),
				Data:        breakdown,
			}
			_ = emit(pr, format)
		}
	}
	if computeRegimeFlag {
		intervals := regimeIntervals(res.Records)
		rr := &model.Result{
			Kind:        model.KindRegimeHistory,
			GeneratedAt: time.Now(),
			Command:     fmt.Sprintf("compute %s --regime", id),
			Data:        intervals,
		}
		_ = emit(rr, format)
	}
	return nil
}

// computeArithmeticCore runs one arithmetic index's weighted combination and,
// if save is true, persists it to the curated store. Shared by "compute" and
// "update", which differ only in whether they render the result.
func computeArithmeticCore(ctx context.Context, deps *app.Deps, id string, start, end time.Time, save bool) (model.SeriesData, error) {
	series, err := deps.IndexComputer.Compute(ctx, id, start, end)
	if err != nil {
		return model.SeriesData{}, err
	}

	if save {
		rows := make([]store.ValueRow, 0, len(series))
		for _, p := range series {
			rows = append(rows, store.ValueRow{Date: p.Date.Unix(), Value: p.Value})
		}
		if err := deps.Store.SaveCuratedValues("indices", id, rows, nil); err != nil {
			return model.SeriesData{}, fmt.Errorf("saving %s: %w", id, err)
		}
	}

	obs := make([]model.Observation, 0, len(series))
	for _, p := range series {
		obs = append(obs, model.Observation{Date: p.Date, Value: p.Value})
	}
	return model.SeriesData{SeriesID: id, Obs: obs}, nil
}

func computeArithmetic(ctx context.Context, deps *app.Deps, id string, start, end time.Time, format string) error {
	t0 := time.Now()
	sd, err := computeArithmeticCore(ctx, deps, id, start, end, computeSaveFlag)
	if err != nil {
		return err
	}
	result := &model.Result{
		Kind:        model.KindIndexData,
		GeneratedAt: time.Now(),
		Command:     fmt.Sprintf("compute %s", id),
		Data:        sd,
		Stats: model.Stats{
			NObservations: len(sd.Obs),
			DurationMS:    time.Since(t0).Milliseconds(),
		},
	}
	return emit(result, format)
}

func indexWarnings(missing []string) []string {
	out := make([]string, 0, len(missing))
	for _, p := range missing {
		out = append(out, fmt.Sprintf("pillar %q dropped: insufficient data or non-convergent factor fit", p))
	}
	return out
}

// latestFromRecords extracts the most recent point's snapshot view, the
// same shape "glci.GetLatest" returns.
func latestFromRecords(records []model.GLCIRecord) glci.LatestSnapshot {
	if len(records) == 0 {
		return glci.LatestSnapshot{}
	}
	last := records[len(records)-1]
	regime := model.Regime(last.Regime)
	return glci.LatestSnapshot{
		Date:        last.Date,
		Value:       last.Value,
		ZScore:      last.ZScore,
		Regime:      regime,
		RegimeLabel: regime.Label(),
		Momentum:    last.Momentum,
	}
}

func regimeIntervals(records []model.GLCIRecord) []model.RegimeInterval {
	dates := make([]int64, len(records))
	regimes := make([]model.Regime, len(records))
	for i, r := range records {
		dates[i] = r.Date
		regimes[i] = model.Regime(r.Regime)
	}
	return model.CompressRegimeTimeline(dates, regimes)
}

func init() {
	rootCmd.AddCommand(computeCmd)
	computeCmd.Flags().StringSliceVar(&computeIndexFlag, "index", nil, "index ids to compute (repeatable or comma-separated)")
	computeCmd.Flags().BoolVar(&computeAllFlag, "all", false, "compute every registered index")
	computeCmd.Flags().StringVar(&computeStartFlag, "start", "", "window start date YYYY-MM-DD")
	computeCmd.Flags().StringVar(&computeEndFlag, "end", "", "window end date YYYY-MM-DD")
	computeCmd.Flags().BoolVar(&computeSaveFlag, "save", false, "persist the computed index to the curated store")
	computeCmd.Flags().BoolVar(&computePillarsFlag, "pillars", false, "also print the per-pillar breakdown (pillarized indices only)")
	computeCmd.Flags().BoolVar(&computeRegimeFlag, "regime", false, "also print the compressed regime timeline (pillarized indices only)")
	computeCmd.Flags().StringVar(&computeFactorMethod, "factor-method", "", "force a factor method: auto|dfm|pca_shrunk|pca (default auto)")
}
