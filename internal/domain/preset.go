package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultPreset is used when no custom weights are given and the
	// requested preset is unknown.
	DefaultPreset = "comprehensive"

	// PresetCustom labels a selection made from caller-supplied weights.
	PresetCustom = "custom"
)

// Weights maps indicator keys to non-negative weights. They need not sum to
// 1; scoring renormalizes by the weight actually used. A zero or missing
// weight excludes the indicator.
type Weights map[string]float64

// Validate rejects negative and non-finite weights.
func (w Weights) Validate() error {
	for k, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight %q is not a finite number", k)
		}
		if v < 0 {
			return fmt.Errorf("weight %q is negative", k)
		}
	}
	return nil
}

// Canonical returns a stable string form of the weights, sorted by key.
func (w Weights) Canonical() string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(w[k], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// Preset is a named weight mapping.
type Preset struct {
	Name    string  `json:"name" yaml:"name"`
	Label   string  `json:"label" yaml:"label"`
	Weights Weights `json:"weights" yaml:"weights"`
}

// PresetTable is the small, ordered, read-only set of named presets.
type PresetTable struct {
	order  []string
	byName map[string]Preset
}

// NewPresetTable indexes presets by name, keeping their declaration order.
// A later duplicate name replaces the earlier definition.
func NewPresetTable(presets []Preset) PresetTable {
	t := PresetTable{byName: make(map[string]Preset, len(presets))}
	for _, p := range presets {
		if _, exists := t.byName[p.Name]; !exists {
			t.order = append(t.order, p.Name)
		}
		t.byName[p.Name] = p
	}
	return t
}

// Lookup returns the preset with the given name.
func (t PresetTable) Lookup(name string) (Preset, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// List returns presets in declaration order.
func (t PresetTable) List() []Preset {
	out := make([]Preset, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.byName[name])
	}
	return out
}

// ResolveWeights applies the weight precedence chain: explicit custom weights
// win, then the named preset, then DefaultPreset. An unknown preset name falls
// back silently. The second result names the selection: PresetCustom or the
// preset actually used. Both results are empty when the table has no default.
func ResolveWeights(custom Weights, preset string, table PresetTable) (Weights, string) {
	if custom != nil {
		return custom, PresetCustom
	}
	if p, ok := table.Lookup(preset); ok {
		return p.Weights, p.Name
	}
	if p, ok := table.Lookup(DefaultPreset); ok {
		return p.Weights, p.Name
	}
	return nil, ""
}
