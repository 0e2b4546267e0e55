package featurematrix

import (
	"fmt"
	"sort"

	"github.com/wuchris/glci/internal/config"
)

// GetPillarSeriesIDs returns the sorted, deduplicated series ids referenced
// by every component of a pillarized index's pillars (the original's
// `get_pillar_series_ids`).
func GetPillarSeriesIDs(reg *config.Registry, indexID string) ([]string, error) {
	entry, ok := reg.Index(indexID)
	if !ok {
		return nil, fmt.Errorf("index %q not found in configuration", indexID)
	}
	seen := make(map[string]bool)
	for _, pillar := range entry.Pillars {
		for _, comp := range pillar.Components {
			seen[comp.Series] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// GetPillarWeights returns each pillar's configured weight, normalized to
// sum to 1 (the original's `get_pillar_weights`).
func GetPillarWeights(reg *config.Registry, indexID string) (map[string]float64, error) {
	entry, ok := reg.Index(indexID)
	if !ok {
		return nil, fmt.Errorf("index %q not found in configuration", indexID)
	}
	weights := make(map[string]float64, len(entry.Pillars))
	var total float64
	for name, pillar := range entry.Pillars {
		w := pillar.Weight
		if w == 0 {
			w = 1.0 / float64(len(entry.Pillars))
		}
		weights[name] = w
		total += w
	}
	if total == 0 {
		return weights, nil
	}
	for name := range weights {
		weights[name] /= total
	}
	return weights, nil
}

// GetPillarSigns returns each pillar's configured sign (default +1), the
// original's `get_pillar_signs`.
func GetPillarSigns(reg *config.Registry, indexID string) (map[string]int, error) {
	entry, ok := reg.Index(indexID)
	if !ok {
		return nil, fmt.Errorf("index %q not found in configuration", indexID)
	}
	signs := make(map[string]int, len(entry.Pillars))
	for name, pillar := range entry.Pillars {
		sign := pillar.Sign
		if sign == 0 {
			sign = 1
		}
		signs[name] = sign
	}
	return signs, nil
}

// GetComponentSigns returns every component's effective sign (component
// sign combined with its pillar's sign, default +1 each), keyed by series
// id, for one pillar (the original's `get_component_signs`).
func GetComponentSigns(reg *config.Registry, indexID, pillarName string) (map[string]int, error) {
	entry, ok := reg.Index(indexID)
	if !ok {
		return nil, fmt.Errorf("index %q not found in configuration", indexID)
	}
	pillar, ok := entry.Pillars[pillarName]
	if !ok {
		return nil, fmt.Errorf("pillar %q not found in index %q", pillarName, indexID)
	}
	pillarSign := pillar.Sign
	if pillarSign == 0 {
		pillarSign = 1
	}
	out := make(map[string]int, len(pillar.Components))
	for _, comp := range pillar.Components {
		compSign := comp.Sign
		if compSign == 0 {
			compSign = 1
		}
		out[comp.Series] = compSign * pillarSign
	}
	return out, nil
}
