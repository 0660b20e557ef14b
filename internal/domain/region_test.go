package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegion_UnmarshalNullIsAbsent(t *testing.T) {
	data := []byte(`{"id":"tw","name":"Taiwan","type":"province","parent":"cn","flag":"x","indicators":{"population":23400000,"gini":null}}`)

	var r Region
	require.NoError(t, json.Unmarshal(data, &r))

	assert.Equal(t, RegionProvince, r.Type)
	assert.Equal(t, "cn", r.Parent)

	v, ok := r.Value(KeyPopulation)
	assert.True(t, ok)
	assert.Equal(t, 23400000.0, v)

	_, ok = r.Value(KeyGini)
	assert.False(t, ok)
	assert.NotContains(t, r.Indicators, KeyGini)
}

func TestRegion_ValueRejectsNonFinite(t *testing.T) {
	r := Region{Indicators: Values{KeyGDP: math.NaN(), KeyArea: math.Inf(-1)}}

	_, ok := r.Value(KeyGDP)
	assert.False(t, ok)
	_, ok = r.Value(KeyArea)
	assert.False(t, ok)
	_, ok = r.Value("missing")
	assert.False(t, ok)
}

func TestMatch_MarshalFlattensRegion(t *testing.T) {
	m := Match{Region: Region{ID: "fr", Name: "France", Type: RegionCountry, Flag: "f"}, Score: 87.5}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "fr", got["id"])
	assert.Equal(t, 87.5, got["score"])
	assert.NotContains(t, got, "parent")
}

func TestRegionType_Valid(t *testing.T) {
	assert.True(t, RegionState.Valid())
	assert.True(t, RegionCustom.Valid())
	assert.False(t, RegionType("city").Valid())
}

func TestIndicator_FormatValue(t *testing.T) {
	tests := []struct {
		name string
		ind  Indicator
		v    float64
		want string
	}{
		{"currency in millions", Indicator{Format: FormatCurrency, Scale: 1e6}, 27_360_935, "$27.36T"},
		{"currency per capita", Indicator{Format: FormatCurrency}, 12_614, "$12,614"},
		{"percent", Indicator{Format: FormatPercent}, 64.62, "64.6%"},
		{"population", Indicator{Format: FormatNumber}, 1_410_710_000, "1.41B"},
		{"area with unit", Indicator{Format: FormatNumber, Unit: "km²"}, 377_975, "377,975 km²"},
		{"index", Indicator{Format: FormatIndex}, 0.9204, "0.920"},
		{"decimal", Indicator{Format: FormatDecimal, Unit: "t"}, 8.2, "8.20 t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ind.FormatValue(tt.v))
		})
	}
}

func TestNewMatchEvent(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { SetClock(nil) })

	matches := []Match{
		{Region: Region{ID: "de"}, Score: 91.2},
		{Region: Region{ID: "fr"}, Score: 88},
	}
	ev := NewMatchEvent("at", "economy", nil, matches)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, QueryMatch, ev.Kind)
	assert.Equal(t, "at", ev.SourceID)
	assert.Equal(t, "economy", ev.Preset)
	assert.Equal(t, 2, ev.ResultCount)
	assert.Equal(t, "de", ev.TopMatchID)
	assert.Equal(t, 91.2, ev.TopScore)
	assert.Equal(t, fixed, ev.OccurredAt)

	empty := NewMatchEvent("zz", DefaultPreset, nil, nil)
	assert.Zero(t, empty.ResultCount)
	assert.Empty(t, empty.TopMatchID)
	assert.NotEqual(t, ev.ID, empty.ID)
}

func TestNewAggregateEvent(t *testing.T) {
	ids := []string{"us", "ca"}
	ev := NewAggregateEvent("custom-ca-us", ids, true)
	ids[0] = "mutated"

	assert.Equal(t, QueryAggregate, ev.Kind)
	assert.Equal(t, "custom-ca-us", ev.SourceID)
	assert.Equal(t, []string{"us", "ca"}, ev.ComponentIDs)
	assert.Equal(t, 1, ev.ResultCount)

	missing := NewAggregateEvent("", []string{"nope"}, false)
	assert.Empty(t, missing.SourceID)
	assert.Zero(t, missing.ResultCount)
}
