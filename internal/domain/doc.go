// Package domain models regions, socioeconomic indicators, and the weighted
// similarity score used to compare them.
//
// # Regions and Indicators
//
// A [Region] is a country, province, or state record from the static catalog,
// or a transient custom aggregate built by [Aggregate]. Its indicator values
// live in a [Values] map keyed by indicator key. A key missing from the map is
// absent; absent values are skipped by every computation and never read as 0.
//
// Units convention:
//
//	population    raw headcount
//	gdp           millions of current USD
//	area          km²
//	gdpPerCapita  USD
//
// The million scale of gdp is why aggregation derives per-capita output as
// gdp * 1_000_000 / population. Datasets that change units must change both.
//
// # Scoring
//
// [BuildNormIndex] records the catalog-wide {min, max} of every indicator key
// once. [Similarity] normalizes both regions' values into [0,1] with
// [Normalize], and averages weight*(1-|a-b|) over the indicators both regions
// carry, renormalized by the weight actually used:
//
//	score = round1(sum(w * (1 - |a - b|)) / sum(w) * 100)
//
// A constant indicator normalizes to 0.5 for every region, so it contributes
// full similarity. A pair with no usable indicator scores exactly 0.
//
// # Weights
//
// [ResolveWeights] applies a fixed precedence: explicit custom weights, then a
// named [Preset], then [DefaultPreset]. Unknown preset names fall back silently.
package domain
