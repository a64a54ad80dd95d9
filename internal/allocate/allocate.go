// Package allocate splits a target card count across strategies and documents.
package allocate

import (
	"math"
	"sort"
	"strings"

	"github.com/TobiSchelling/ankiforge/internal/model"
)

// StrategyCounts turns targetTotal and a ratio list into per-strategy counts
// that sum exactly to targetTotal. Items with an empty strategy or a
// non-positive, NaN or infinite ratio are ignored; repeated strategies are
// merged. An empty allocation means nothing valid was requested.
func StrategyCounts(targetTotal int, items []model.StrategyRatio) model.Allocation {
	if targetTotal <= 0 {
		return nil
	}

	var names []string
	ratios := make(map[string]float64)
	for _, it := range items {
		name := strings.TrimSpace(it.Strategy)
		if name == "" || math.IsNaN(it.Ratio) || math.IsInf(it.Ratio, 0) || it.Ratio <= 0 {
			continue
		}
		if _, seen := ratios[name]; !seen {
			names = append(names, name)
		}
		ratios[name] += it.Ratio
	}
	if len(names) == 0 {
		return nil
	}

	var sum float64
	for _, name := range names {
		sum += ratios[name]
	}

	type share struct {
		idx  int
		frac float64
	}
	out := make(model.Allocation, len(names))
	shares := make([]share, len(names))
	assigned := 0
	for i, name := range names {
		raw := float64(targetTotal) * ratios[name] / sum
		floor := int(math.Floor(raw))
		out[i] = model.StrategyCount{Strategy: name, Count: floor}
		shares[i] = share{idx: i, frac: raw - float64(floor)}
		assigned += floor
	}

	sort.SliceStable(shares, func(a, b int) bool { return shares[a].frac > shares[b].frac })
	for remainder, k := targetTotal-assigned, 0; remainder > 0; remainder, k = remainder-1, k+1 {
		out[shares[k%len(shares)].idx].Count++
	}

	return out
}

// PerDocument spreads each strategy's total over totalDocs documents. The
// first T%totalDocs documents receive one extra card; zero counts are omitted.
func PerDocument(totalDocs int, counts model.Allocation) []model.Allocation {
	if totalDocs <= 0 {
		return nil
	}

	docs := make([]model.Allocation, totalDocs)
	for _, sc := range counts {
		if sc.Count <= 0 {
			continue
		}
		base := sc.Count / totalDocs
		extra := sc.Count % totalDocs
		for i := 0; i < totalDocs; i++ {
			n := base
			if i < extra {
				n++
			}
			if n > 0 {
				docs[i] = append(docs[i], model.StrategyCount{Strategy: sc.Strategy, Count: n})
			}
		}
	}
	return docs
}
