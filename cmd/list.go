package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wuchris/glci/internal/app"
	"github.com/wuchris/glci/internal/config"
	"github.com/wuchris/glci/internal/model"
)

var listCmd = &cobra.Command{
	Use:       "list {series|indices|stored}",
	Short:     "List registered series, registered indices, or stored artifacts",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"series", "indices", "stored"},
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		format := resolveFormat(deps.Config.Format)
		t0 := time.Now()

		var result *model.Result
		switch args[0] {
		case "series":
			result = listSeries(deps)
		case "indices":
			result = listIndices(deps)
		case "stored":
			result, err = listStored(deps)
			if err != nil {
				return err
			}
		}
		result.GeneratedAt = time.Now()
		result.Stats.DurationMS = time.Since(t0).Milliseconds()
		return emit(result, format)
	},
}

func listSeries(deps *app.Deps) *model.Result {
	ids := deps.Registry.AllSeries()
	metas := make([]model.SeriesMeta, 0, len(ids))
	for _, id := range ids {
		e, _ := deps.Registry.Series(id)
		metas = append(metas, model.SeriesMeta{
			SeriesID:  id,
			Source:    e.Source,
			Country:   e.Country,
			Frequency: string(e.Frequency),
			Unit:      e.Unit,
			Pillars:   pillarsContaining(deps, id),
			Sign:      e.ExpectedSign,
		})
	}
	return &model.Result{
		Kind:    model.KindSeriesList,
		Command: "list series",
		Data:    metas,
		Stats:   model.Stats{NSeries: len(metas)},
	}
}

// pillarsContaining mirrors the exporter's own lookup: every pillarized
// index whose pillar definitions reference this series id.
func pillarsContaining(deps *app.Deps, seriesID string) []string {
	seen := map[string]bool{}
	var out []string
	for _, idxID := range deps.Registry.AllIndices() {
		entry, _ := deps.Registry.Index(idxID)
		for pillarName, pillar := range entry.Pillars {
			for _, comp := range pillar.Components {
				if comp.Series == seriesID && !seen[pillarName] {
					seen[pillarName] = true
					out = append(out, pillarName)
				}
			}
		}
	}
	return out
}

func listIndices(deps *app.Deps) *model.Result {
	ids := deps.Registry.AllIndices()
	metas := make([]model.IndexMeta, 0, len(ids))
	for _, id := range ids {
		e, _ := deps.Registry.Index(id)
		var comps []model.IndexComponent
		for _, c := range e.Components {
			comps = append(comps, model.IndexComponent{SeriesID: c.Series, Weight: c.Weight})
		}
		metas = append(metas, model.IndexMeta{
			IndexID:    id,
			Name:       id,
			Method:     indexMethodLabel(e),
			Components: comps,
		})
	}
	return &model.Result{
		Kind:    model.KindIndexList,
		Command: "list indices",
		Data:    metas,
	}
}

func indexMethodLabel(e config.IndexEntry) string {
	if e.IsPillarized() {
		return "pillarized"
	}
	if e.Method != "" {
		return e.Method
	}
	return "arithmetic"
}

func listStored(deps *app.Deps) (*model.Result, error) {
	var lines []string
	for _, source := range []string{"fred", "worldbank", "bis", "nyfed", "yfinance"} {
		ids, err := deps.Store.ListRawSeries(source)
		if err != nil {
			continue
		}
		for _, id := range ids {
			lines = append(lines, fmt.Sprintf("raw/%s/%s", source, id))
		}
	}
	for _, category := range []string{"indices", "risk"} {
		names, err := deps.Store.ListCurated(category)
		if err != nil {
			continue
		}
		for _, name := range names {
			lines = append(lines, fmt.Sprintf("curated/%s/%s", category, name))
		}
	}
	return &model.Result{
		Kind:    model.KindStoredList,
		Command: "list stored",
		Data:    lines,
		Stats:   model.Stats{NSeries: len(lines)},
	}, nil
}

func init() {
	rootCmd.AddCommand(listCmd)
}
