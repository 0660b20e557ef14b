// Package dataset loads and validates the static region catalog.
//
// The catalog is two files: a JSON array of regions and a YAML document of
// indicator metadata, categories, and match presets. Both ship embedded in
// the binary; either can be overridden from disk.
package dataset

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/region-compare-service/internal/domain"
)

//go:embed data/regions.json data/catalog.yaml
var embedded embed.FS

const (
	embeddedRegions = "data/regions.json"
	embeddedCatalog = "data/catalog.yaml"
)

// catalogFile is the YAML layout of the indicator catalog.
type catalogFile struct {
	Indicators []domain.Indicator `yaml:"indicators"`
	Categories []domain.Category  `yaml:"categories"`
	Presets    []domain.Preset    `yaml:"presets"`
}

// LoadDefault loads and validates the embedded dataset.
func LoadDefault() (domain.Catalog, error) {
	return LoadFiles("", "")
}

// LoadFiles loads the regions and catalog files at the given paths. An empty
// path selects the embedded copy of that file.
func LoadFiles(regionsPath, catalogPath string) (domain.Catalog, error) {
	regionsData, err := readSource(regionsPath, embeddedRegions)
	if err != nil {
		return domain.Catalog{}, err
	}
	catalogData, err := readSource(catalogPath, embeddedCatalog)
	if err != nil {
		return domain.Catalog{}, err
	}
	return Parse(regionsData, catalogData)
}

// Parse decodes and validates a dataset from raw file contents.
func Parse(regionsData, catalogData []byte) (domain.Catalog, error) {
	regions, err := ParseRegions(regionsData)
	if err != nil {
		return domain.Catalog{}, err
	}

	var cf catalogFile
	if err := yaml.Unmarshal(catalogData, &cf); err != nil {
		return domain.Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}

	cat := domain.Catalog{
		Regions:    regions,
		Indicators: cf.Indicators,
		Categories: cf.Categories,
		Presets:    cf.Presets,
	}
	if err := Validate(cat); err != nil {
		return domain.Catalog{}, err
	}
	return cat, nil
}

// ParseRegions decodes a regions file. JSON null indicator values decode as absent.
func ParseRegions(data []byte) ([]domain.Region, error) {
	var regions []domain.Region
	if err := json.Unmarshal(data, &regions); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}
	return regions, nil
}

// ReadRegions reads a regions file from disk, or the embedded copy when path is empty.
func ReadRegions(path string) ([]domain.Region, error) {
	data, err := readSource(path, embeddedRegions)
	if err != nil {
		return nil, err
	}
	return ParseRegions(data)
}

// WriteRegions writes regions as an indented JSON array, replacing path
// atomically via a temporary file in the same directory.
func WriteRegions(path string, regions []domain.Region) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(regions); err != nil {
		return fmt.Errorf("encode regions: %w", err)
	}
	return writeAtomic(path, ".regions-*.json", buf.Bytes())
}

// catalogHeader is written above the YAML body so rewritten catalogs keep
// their units note.
const catalogHeader = `# Indicator metadata, presentation categories, and match presets.
# Units: population is a headcount, gdp is millions of current USD, area is km².

`

// WriteCatalog writes the indicator metadata, categories, and presets of cat
// as YAML, replacing path atomically. Regions are not written.
func WriteCatalog(path string, cat domain.Catalog) error {
	var buf bytes.Buffer
	buf.WriteString(catalogHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(catalogFile{
		Indicators: cat.Indicators,
		Categories: cat.Categories,
		Presets:    cat.Presets,
	}); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return writeAtomic(path, ".catalog-*.yaml", buf.Bytes())
}

func writeAtomic(path, pattern string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), pattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Validate checks the catalog's internal consistency. Every problem found is
// reported, joined into one error.
func Validate(cat domain.Catalog) error {
	var errs []error

	keys := make(map[string]struct{}, len(cat.Indicators))
	for i, ind := range cat.Indicators {
		switch {
		case ind.Key == "":
			errs = append(errs, fmt.Errorf("indicator %d: empty key", i))
			continue
		case !ind.Format.Valid():
			errs = append(errs, fmt.Errorf("indicator %q: unknown format %q", ind.Key, ind.Format))
		}
		if _, dup := keys[ind.Key]; dup {
			errs = append(errs, fmt.Errorf("indicator %q: duplicate key", ind.Key))
		}
		keys[ind.Key] = struct{}{}
	}

	for _, c := range cat.Categories {
		for _, k := range c.Keys {
			if _, ok := keys[k]; !ok {
				errs = append(errs, fmt.Errorf("category %q: unknown indicator %q", c.Key, k))
			}
		}
	}

	ids := make(map[string]struct{}, len(cat.Regions))
	for i, r := range cat.Regions {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("region %d: empty id", i))
			continue
		}
		if _, dup := ids[r.ID]; dup {
			errs = append(errs, fmt.Errorf("region %q: duplicate id", r.ID))
		}
		ids[r.ID] = struct{}{}
	}

	for _, r := range cat.Regions {
		if r.ID == "" {
			continue
		}
		if !r.Type.Valid() || r.Type == domain.RegionCustom {
			errs = append(errs, fmt.Errorf("region %q: invalid type %q", r.ID, r.Type))
		}
		if r.Parent != "" {
			if _, ok := ids[r.Parent]; !ok {
				errs = append(errs, fmt.Errorf("region %q: unknown parent %q", r.ID, r.Parent))
			}
		}
		for k, v := range r.Indicators {
			if _, ok := keys[k]; !ok {
				errs = append(errs, fmt.Errorf("region %q: unknown indicator %q", r.ID, k))
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				errs = append(errs, fmt.Errorf("region %q: indicator %q is not finite", r.ID, k))
			}
		}
	}

	hasDefault := false
	for _, p := range cat.Presets {
		if p.Name == domain.DefaultPreset {
			hasDefault = true
		}
		if err := p.Weights.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("preset %q: %w", p.Name, err))
		}
		for k := range p.Weights {
			if _, ok := keys[k]; !ok {
				errs = append(errs, fmt.Errorf("preset %q: unknown indicator %q", p.Name, k))
			}
		}
	}
	if !hasDefault {
		errs = append(errs, fmt.Errorf("preset %q is required", domain.DefaultPreset))
	}

	return errors.Join(errs...)
}

func readSource(path, embeddedName string) ([]byte, error) {
	if path == "" {
		data, err := embedded.ReadFile(embeddedName)
		if err != nil {
			return nil, fmt.Errorf("read embedded %s: %w", embeddedName, err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
