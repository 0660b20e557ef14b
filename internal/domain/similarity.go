package domain

import "math"

// Range is the catalog-wide extent of one indicator.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NormIndex holds the min/max normalization parameters for every indicator
// key. It is built once from the catalog and never modified, so it can be
// shared across goroutines.
type NormIndex struct {
	keys   []string
	ranges map[string]Range
}

// BuildNormIndex scans every region for each key, ignoring absent and
// non-finite values. A key no region carries gets the range {0, 1}.
func BuildNormIndex(keys []string, regions []Region) *NormIndex {
	ix := &NormIndex{
		keys:   append([]string(nil), keys...),
		ranges: make(map[string]Range, len(keys)),
	}
	for _, key := range keys {
		r := Range{Min: math.Inf(1), Max: math.Inf(-1)}
		found := false
		for _, region := range regions {
			v, ok := region.Value(key)
			if !ok {
				continue
			}
			found = true
			r.Min = math.Min(r.Min, v)
			r.Max = math.Max(r.Max, v)
		}
		if !found {
			r = Range{Min: 0, Max: 1}
		}
		ix.ranges[key] = r
	}
	return ix
}

// Keys returns the indexed indicator keys in catalog order.
func (ix *NormIndex) Keys() []string {
	return append([]string(nil), ix.keys...)
}

// Range returns the normalization range for key.
func (ix *NormIndex) Range(key string) (Range, bool) {
	r, ok := ix.ranges[key]
	return r, ok
}

// Normalize min-max scales value into [0,1]. A constant indicator
// (max == min) maps every value to exactly 0.5.
func Normalize(value, lo, hi float64) float64 {
	if hi == lo {
		return 0.5
	}
	return (value - lo) / (hi - lo)
}

// Similarity scores target against source in [0,100], rounded to one
// decimal. Each indicator with a positive weight that both regions carry
// contributes weight*(1-distance) where distance is the absolute difference of
// the normalized values. The result is 0 when no indicator was usable.
func Similarity(source, target Region, weights Weights, ix *NormIndex) float64 {
	var totalWeight, totalScore float64

	for _, key := range ix.keys {
		w := weights[key]
		if !(w > 0) {
			continue
		}
		sv, ok := source.Value(key)
		if !ok {
			continue
		}
		tv, ok := target.Value(key)
		if !ok {
			continue
		}

		r := ix.ranges[key]
		// Aggregates can sum past the catalog range; keep each term in [0, w].
		distance := min(math.Abs(Normalize(sv, r.Min, r.Max)-Normalize(tv, r.Min, r.Max)), 1)
		totalScore += w * (1 - distance)
		totalWeight += w
	}

	if totalWeight == 0 {
		return 0
	}
	return math.Floor(totalScore/totalWeight*1000+0.5) / 10
}

// roundTo rounds half-up to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Floor(v*p+0.5) / p
}
