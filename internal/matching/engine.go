// Package matching serves similarity, lookup, search, filter, and aggregate
// queries over an immutable region catalog.
package matching

import (
	"slices"
	"strings"

	"github.com/couchcryptid/region-compare-service/internal/domain"
)

const (
	// DefaultMatchLimit is the number of matches returned when no positive
	// limit is requested.
	DefaultMatchLimit = 20

	// SearchLimit caps SearchRegions results.
	SearchLimit = 15
)

// MatchQuery selects the weights and result size of a match query. A non-nil
// Custom map takes precedence over Preset.
type MatchQuery struct {
	Preset string
	Custom domain.Weights
	Limit  int
}

func (q MatchQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultMatchLimit
	}
	return q.Limit
}

// Filter constrains FilterRegions. Zero-valued fields do not constrain.
type Filter struct {
	Type   domain.RegionType
	Parent string
	Query  string
}

// Stats summarizes the loaded catalog.
type Stats struct {
	Regions    int                       `json:"regions"`
	ByType     map[domain.RegionType]int `json:"by_type"`
	Indicators int                       `json:"indicators"`
	Presets    int                       `json:"presets"`
}

// Engine answers queries over a read-only catalog. All methods are safe for
// concurrent use; nothing mutates the engine after NewEngine returns.
type Engine struct {
	regions    []domain.Region
	byID       map[string]int
	indicators []domain.Indicator
	categories []domain.Category
	presets    domain.PresetTable
	index      *domain.NormIndex
}

// NewEngine indexes the catalog and builds its normalization index. The
// catalog is assumed to be validated by the loader.
func NewEngine(cat domain.Catalog) *Engine {
	e := &Engine{
		regions:    slices.Clone(cat.Regions),
		byID:       make(map[string]int, len(cat.Regions)),
		indicators: slices.Clone(cat.Indicators),
		categories: slices.Clone(cat.Categories),
		presets:    domain.NewPresetTable(cat.Presets),
	}
	for i, r := range e.regions {
		if _, dup := e.byID[r.ID]; !dup {
			e.byID[r.ID] = i
		}
	}
	e.index = domain.BuildNormIndex(cat.IndicatorKeys(), e.regions)
	return e
}

// ResolveWeights returns the weights q selects and the name of the selection.
func (e *Engine) ResolveWeights(q MatchQuery) (domain.Weights, string) {
	return domain.ResolveWeights(q.Custom, q.Preset, e.presets)
}

// FindMatches ranks every other catalog region by similarity to the source.
// An unknown source id yields an empty list.
func (e *Engine) FindMatches(sourceID string, q MatchQuery) []domain.Match {
	source, ok := e.GetRegion(sourceID)
	if !ok {
		return []domain.Match{}
	}
	return e.MatchRegion(source, q)
}

// MatchRegion ranks the catalog by similarity to an arbitrary region, which
// may be synthesized. Any catalog entry sharing the region's id is skipped.
// Ties keep catalog order.
func (e *Engine) MatchRegion(source domain.Region, q MatchQuery) []domain.Match {
	weights, _ := e.ResolveWeights(q)

	results := make([]domain.Match, 0, len(e.regions))
	for _, r := range e.regions {
		if r.ID == source.ID {
			continue
		}
		results = append(results, domain.Match{
			Region: r,
			Score:  domain.Similarity(source, r, weights, e.index),
		})
	}

	slices.SortStableFunc(results, func(a, b domain.Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if n := q.limit(); len(results) > n {
		results = results[:n]
	}
	return results
}

// GetRegion looks up a catalog region by id.
func (e *Engine) GetRegion(id string) (domain.Region, bool) {
	i, ok := e.byID[id]
	if !ok {
		return domain.Region{}, false
	}
	return e.regions[i], true
}

// SearchRegions returns up to SearchLimit regions whose name contains query,
// case-insensitively, in catalog order. A blank query returns the first
// SearchLimit regions.
func (e *Engine) SearchRegions(query string) []domain.Region {
	if strings.TrimSpace(query) == "" {
		n := min(SearchLimit, len(e.regions))
		return append(make([]domain.Region, 0, n), e.regions[:n]...)
	}

	q := strings.ToLower(query)
	out := make([]domain.Region, 0, SearchLimit)
	for _, r := range e.regions {
		if strings.Contains(strings.ToLower(r.Name), q) {
			out = append(out, r)
			if len(out) == SearchLimit {
				break
			}
		}
	}
	return out
}

// FilterRegions returns every region satisfying all set fields of f, in
// catalog order.
func (e *Engine) FilterRegions(f Filter) []domain.Region {
	q := strings.ToLower(f.Query)
	out := make([]domain.Region, 0)
	for _, r := range e.regions {
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.Parent != "" && r.Parent != f.Parent {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(r.Name), q) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// AggregateRegions combines the catalog regions named by componentIDs into a
// transient custom region. Unknown ids are ignored; the second result is false
// when none resolve. The aggregate is never added to the catalog.
func (e *Engine) AggregateRegions(componentIDs []string, name string) (domain.Region, bool) {
	wanted := make(map[string]struct{}, len(componentIDs))
	for _, id := range componentIDs {
		wanted[id] = struct{}{}
	}

	var components []domain.Region
	for _, r := range e.regions {
		if _, ok := wanted[r.ID]; ok {
			components = append(components, r)
			delete(wanted, r.ID)
		}
	}
	return domain.Aggregate(components, name)
}

// Stats counts regions by type, indicators, and presets.
func (e *Engine) Stats() Stats {
	s := Stats{
		Regions:    len(e.regions),
		ByType:     make(map[domain.RegionType]int),
		Indicators: len(e.indicators),
		Presets:    len(e.presets.List()),
	}
	for _, r := range e.regions {
		s.ByType[r.Type]++
	}
	return s
}

// Indicators returns the indicator catalog and its categories.
func (e *Engine) Indicators() ([]domain.Indicator, []domain.Category) {
	return slices.Clone(e.indicators), slices.Clone(e.categories)
}

// Presets returns the match presets in declaration order.
func (e *Engine) Presets() []domain.Preset {
	return e.presets.List()
}

// Ranges returns the normalization range of every indicator key.
func (e *Engine) Ranges() map[string]domain.Range {
	out := make(map[string]domain.Range)
	for _, key := range e.index.Keys() {
		r, _ := e.index.Range(key)
		out[key] = r
	}
	return out
}
