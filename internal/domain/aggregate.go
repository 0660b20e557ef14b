package domain

import (
	"math"
	"sort"
	"strings"
)

// AggregateFlag is the display glyph of every synthesized region.
const AggregateFlag = "🔷"

// populationWeighted lists the indicators averaged by population when regions
// are combined.
var populationWeighted = []string{
	KeyUrbanization,
	KeyGini,
	KeyHDI,
	KeyInternetPenetration,
	KeyLifeExpectancy,
	KeyCO2PerCapita,
}

// AggregateID returns the deterministic identity of a custom region built from
// the given component ids. Order and duplicates do not matter.
func AggregateID(ids []string) string {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)
	return "custom-" + strings.Join(uniq, "-")
}

// Aggregate synthesizes a transient custom region from components.
//
// Population, gdp, and area are summed with absent values counting as zero.
// gdpPerCapita is derived from the sums (gdp is stored in millions) when the
// total population is positive. The indicators in populationWeighted are
// population-weighted averages over the components that carry the value and
// have a positive population, rounded to two decimals; they stay absent when no
// component qualifies. The second result is false when components is empty.
func Aggregate(components []Region, name string) (Region, bool) {
	if len(components) == 0 {
		return Region{}, false
	}

	ids := make([]string, len(components))
	var totalPop, totalGDP, totalArea float64
	for i, c := range components {
		ids[i] = c.ID
		totalPop += valueOrZero(c, KeyPopulation)
		totalGDP += valueOrZero(c, KeyGDP)
		totalArea += valueOrZero(c, KeyArea)
	}

	values := Values{
		KeyPopulation: totalPop,
		KeyGDP:        totalGDP,
		KeyArea:       totalArea,
	}
	if totalPop > 0 {
		values[KeyGDPPerCapita] = math.Floor(totalGDP*1_000_000/totalPop + 0.5)
	}

	for _, key := range populationWeighted {
		var weightSum, acc float64
		for _, c := range components {
			v, ok := c.Value(key)
			if !ok {
				continue
			}
			pop, ok := c.Value(KeyPopulation)
			if !ok || pop <= 0 {
				continue
			}
			acc += v * pop
			weightSum += pop
		}
		if weightSum > 0 {
			values[key] = roundTo(acc/weightSum, 2)
		}
	}

	return Region{
		ID:         AggregateID(ids),
		Name:       name,
		Type:       RegionCustom,
		Flag:       AggregateFlag,
		Indicators: values,
	}, true
}

func valueOrZero(r Region, key string) float64 {
	v, _ := r.Value(key)
	return v
}
