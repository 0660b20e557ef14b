// Package ingest maps World Bank series onto catalog indicators and applies
// fetched data to the region dataset.
package ingest

import (
	"context"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/couchcryptid/region-compare-service/internal/adapter/worldbank"
	"github.com/couchcryptid/region-compare-service/internal/domain"
)

// DefaultFallbackRange is how many years either side of the target year an
// observation may come from.
const DefaultFallbackRange = 2

// sanityRatio rejects replacements that grow or shrink a value by more than
// this factor, which almost always means a unit mismatch.
const sanityRatio = 100

// Series binds a catalog indicator to a World Bank series code. Raw values are
// divided by Divisor (when non-zero) and rounded to Places decimals.
type Series struct {
	Key     string
	Code    string
	Divisor float64
	Places  int
}

// Transform converts a raw World Bank value into catalog units.
func (s Series) Transform(raw float64) float64 {
	v := raw
	if s.Divisor != 0 {
		v /= s.Divisor
	}
	p := math.Pow(10, float64(s.Places))
	return math.Round(v*p) / p
}

// FieldMap lists the indicators whose World Bank definition matches the
// catalog definition. hdi is published by UNDP and is never refreshed.
var FieldMap = []Series{
	{Key: domain.KeyPopulation, Code: "SP.POP.TOTL"},
	{Key: domain.KeyGDP, Code: "NY.GDP.MKTP.CD", Divisor: 1e6},
	{Key: domain.KeyGDPPerCapita, Code: "NY.GDP.PCAP.CD"},
	{Key: domain.KeyArea, Code: "AG.LND.TOTL.K2"},
	{Key: "populationDensity", Code: "EN.POP.DNST"},
	{Key: domain.KeyUrbanization, Code: "SP.URB.TOTL.IN.ZS", Places: 1},
	{Key: domain.KeyGini, Code: "SI.POV.GINI", Places: 1},
	{Key: domain.KeyInternetPenetration, Code: "IT.NET.USER.ZS", Places: 1},
	{Key: domain.KeyLifeExpectancy, Code: "SP.DYN.LE00.IN", Places: 1},
	{Key: domain.KeyCO2PerCapita, Code: "EN.ATM.CO2E.PC", Places: 1},
	{Key: "literacy", Code: "SE.ADT.LITR.ZS", Places: 1},
	{Key: "doctors", Code: "SH.MED.PHYS.ZS", Places: 1},
	{Key: "manufacturingPct", Code: "NV.IND.MANF.ZS", Places: 1},
	{Key: "forestCover", Code: "AG.LND.FRST.ZS", Places: 1},
	{Key: "pm25", Code: "EN.ATM.PM25.MC.M3", Places: 1},
	{Key: "renewableEnergy", Code: "EG.FEC.RNEW.ZS", Places: 1},
	{Key: "unemployment", Code: "SL.UEM.TOTL.ZS", Places: 1},
	{Key: "inflation", Code: "FP.CPI.TOTL.ZG", Places: 1},
	{Key: "rdExpenditure", Code: "GB.XPD.RSDV.GD.ZS", Places: 1},
}

// Fetcher retrieves one World Bank series.
type Fetcher interface {
	FetchIndicator(ctx context.Context, code string, year, fallbackRange int) (worldbank.IndicatorData, error)
}

// FetchAll fetches every series in order. A series that fails is logged and
// stored empty so one bad code does not abort the refresh; only context
// cancellation is returned as an error.
func FetchAll(ctx context.Context, f Fetcher, series []Series, year, fallbackRange int, logger *slog.Logger) (worldbank.Dataset, error) {
	out := make(worldbank.Dataset, len(series))
	for i, s := range series {
		data, err := f.FetchIndicator(ctx, s.Code, year, fallbackRange)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("fetch indicator failed", "key", s.Key, "code", s.Code, "error", err)
			data = worldbank.IndicatorData{}
		}
		out[s.Key] = data
		logger.Info("indicator fetched", "progress", i+1, "total", len(series),
			"key", s.Key, "code", s.Code, "countries", len(data))
	}
	return out, nil
}

// Change records one indicator value replaced (or rejected) for a region.
// Old is nil when the value was previously absent.
type Change struct {
	RegionID string   `json:"region"`
	Key      string   `json:"field"`
	Old      *float64 `json:"old"`
	New      float64  `json:"new"`
	Year     int      `json:"year"`
}

// Report summarizes an Apply run.
type Report struct {
	TargetYear     int      `json:"targetYear"`
	RegionsUpdated int      `json:"updated"`
	Changes        []Change `json:"changes"`
	Skipped        []Change `json:"skipped"`
}

// Apply returns a copy of regions with World Bank values written into every
// country that carries an ISO3 code. Values equal to the current one are not
// reported. A replacement more than sanityRatio times larger or smaller than
// the current value is skipped and reported in Skipped. The input slice is not modified.
func Apply(regions []domain.Region, data worldbank.Dataset, series []Series, year int) ([]domain.Region, Report) {
	out := slices.Clone(regions)
	report := Report{TargetYear: year, Changes: []Change{}, Skipped: []Change{}}

	for i := range out {
		r := &out[i]
		if r.Type != domain.RegionCountry || r.ISO3 == "" {
			continue
		}

		values := maps.Clone(r.Indicators)
		if values == nil {
			values = domain.Values{}
		}
		changed := false

		for _, s := range series {
			obs, ok := data[s.Key][r.ISO3]
			if !ok {
				continue
			}
			next := s.Transform(obs.Value)
			old, had := values[s.Key]
			if had && old == next {
				continue
			}

			ch := Change{RegionID: r.ID, Key: s.Key, New: next, Year: obs.Year}
			if had {
				prev := old
				ch.Old = &prev
				if suspicious(old, next) {
					report.Skipped = append(report.Skipped, ch)
					continue
				}
			}
			values[s.Key] = next
			report.Changes = append(report.Changes, ch)
			changed = true
		}

		if changed {
			r.Indicators = values
			report.RegionsUpdated++
		}
	}
	return out, report
}

func suspicious(old, next float64) bool {
	if old == 0 || next == 0 {
		return false
	}
	ratio := math.Abs(next / old)
	return ratio > sanityRatio || ratio < 1/float64(sanityRatio)
}

// Coverage describes how much of one series landed on the target year.
type Coverage struct {
	Key       string      `json:"key"`
	Countries int         `json:"countries"`
	OnTarget  int         `json:"onTarget"`
	Years     map[int]int `json:"years"`
}

// SummarizeCoverage reports per-series coverage in series order. Series with
// no fetched data appear with zero counts.
func SummarizeCoverage(data worldbank.Dataset, series []Series, year int) []Coverage {
	out := make([]Coverage, 0, len(series))
	for _, s := range series {
		c := Coverage{Key: s.Key, Years: map[int]int{}}
		for _, obs := range data[s.Key] {
			c.Countries++
			c.Years[obs.Year]++
			if obs.Year == year {
				c.OnTarget++
			}
		}
		out = append(out, c)
	}
	return out
}

// PrimaryYear returns the most common observation year, preferring the later
// year on ties. It returns 0 for empty coverage.
func (c Coverage) PrimaryYear() int {
	years := slices.Collect(maps.Keys(c.Years))
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	best, bestCount := 0, 0
	for _, y := range years {
		if c.Years[y] > bestCount {
			best, bestCount = y, c.Years[y]
		}
	}
	return best
}

// StampYears returns a copy of indicators with Year set to the primary
// observation year of each covered series. Indicators without fetched data
// keep their year. The keys whose year changed are returned in catalog order.
func StampYears(indicators []domain.Indicator, coverage []Coverage) ([]domain.Indicator, []string) {
	years := make(map[string]int, len(coverage))
	for _, c := range coverage {
		if y := c.PrimaryYear(); y != 0 {
			years[c.Key] = y
		}
	}

	out := slices.Clone(indicators)
	var changed []string
	for i := range out {
		y, ok := years[out[i].Key]
		if !ok {
			continue
		}
		if year := strconv.Itoa(y); out[i].Year != year {
			out[i].Year = year
			changed = append(changed, out[i].Key)
		}
	}
	return out, changed
}
