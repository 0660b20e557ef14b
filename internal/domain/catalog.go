package domain

// Catalog is the static dataset the engine serves: regions in catalog order
// plus the indicator metadata and match presets that describe them.
type Catalog struct {
	Regions    []Region
	Indicators []Indicator
	Categories []Category
	Presets    []Preset
}

// IndicatorKeys returns the indicator keys in catalog order.
func (c Catalog) IndicatorKeys() []string {
	keys := make([]string, len(c.Indicators))
	for i, ind := range c.Indicators {
		keys[i] = ind.Key
	}
	return keys
}
