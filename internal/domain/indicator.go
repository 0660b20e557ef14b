package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Indicator keys the engine reads directly. The rest of the catalog is data.
const (
	KeyPopulation          = "population"
	KeyGDP                 = "gdp"
	KeyGDPPerCapita        = "gdpPerCapita"
	KeyArea                = "area"
	KeyUrbanization        = "urbanization"
	KeyGini                = "gini"
	KeyHDI                 = "hdi"
	KeyInternetPenetration = "internetPenetration"
	KeyLifeExpectancy      = "lifeExpectancy"
	KeyCO2PerCapita        = "co2PerCapita"
)

// Format is the display rule for an indicator's values.
type Format string

const (
	FormatCurrency Format = "currency"
	FormatPercent  Format = "percent"
	FormatNumber   Format = "number"
	FormatDecimal  Format = "decimal"
	FormatIndex    Format = "index"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatCurrency, FormatPercent, FormatNumber, FormatDecimal, FormatIndex:
		return true
	default:
		return false
	}
}

// Indicator is the static metadata for one indicator key.
type Indicator struct {
	Key      string  `json:"key" yaml:"key"`
	Label    string  `json:"label" yaml:"label"`
	Format   Format  `json:"format" yaml:"format"`
	Scale    float64 `json:"scale,omitempty" yaml:"scale,omitempty"` // multiplier to base units, e.g. 1e6 for gdp stored in millions
	Unit     string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Year     string  `json:"year,omitempty" yaml:"year,omitempty"`
	Category string  `json:"category" yaml:"category"`
}

// Category groups indicator keys for presentation.
type Category struct {
	Key   string   `json:"key" yaml:"key"`
	Label string   `json:"label" yaml:"label"`
	Keys  []string `json:"keys" yaml:"keys"`
}

// FormatValue renders v according to the indicator's format rule.
func (i Indicator) FormatValue(v float64) string {
	if i.Scale > 0 {
		v *= i.Scale
	}
	var s string
	switch i.Format {
	case FormatCurrency:
		s = "$" + compact(v)
	case FormatPercent:
		s = strconv.FormatFloat(v, 'f', 1, 64) + "%"
	case FormatNumber:
		s = compact(v)
	case FormatIndex:
		s = strconv.FormatFloat(v, 'f', 3, 64)
	default:
		s = strconv.FormatFloat(v, 'f', 2, 64)
	}
	if i.Unit != "" {
		s += " " + i.Unit
	}
	return s
}

// compact abbreviates large magnitudes (12.35B) and groups thousands below a million.
func compact(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("%.2fT", v/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	default:
		return groupThousands(int64(math.Round(v)))
	}
}

func groupThousands(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String()
}
