package domain

import (
	"encoding/json"
	"math"
)

// RegionType classifies a region record.
type RegionType string

const (
	RegionCountry  RegionType = "country"
	RegionProvince RegionType = "province"
	RegionState    RegionType = "state"
	RegionCustom   RegionType = "custom"
)

// Valid reports whether t is one of the known region types.
func (t RegionType) Valid() bool {
	switch t {
	case RegionCountry, RegionProvince, RegionState, RegionCustom:
		return true
	default:
		return false
	}
}

// Values maps an indicator key to its value. A key missing from the map is
// absent; absent values are never read as zero.
type Values map[string]float64

// UnmarshalJSON decodes an indicator object, dropping null entries so they
// stay absent instead of decoding to 0.
func (v *Values) UnmarshalJSON(data []byte) error {
	var raw map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Values, len(raw))
	for k, p := range raw {
		if p != nil {
			out[k] = *p
		}
	}
	*v = out
	return nil
}

// Region is an immutable catalog record for a country, province, state, or a
// transient custom aggregate.
type Region struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       RegionType `json:"type"`
	Parent     string     `json:"parent,omitempty"` // id of the containing region, back-reference only
	Flag       string     `json:"flag"`
	ISO3       string     `json:"iso3,omitempty"`
	Indicators Values     `json:"indicators"`
}

// Value returns the region's value for key. The second result is false when
// the value is absent or not a finite number.
func (r Region) Value(key string) (float64, bool) {
	v, ok := r.Indicators[key]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Match is a shallow copy of a region annotated with its similarity score.
type Match struct {
	Region
	Score float64 `json:"score"`
}
