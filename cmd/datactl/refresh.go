package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/region-compare-service/internal/adapter/worldbank"
	"github.com/couchcryptid/region-compare-service/internal/config"
	"github.com/couchcryptid/region-compare-service/internal/dataset"
	"github.com/couchcryptid/region-compare-service/internal/ingest"
)

type refreshOptions struct {
	year          int
	fallbackRange int
	cacheOnly     bool
	forceFetch    bool
	dryRun        bool
	outPath       string
	cacheDir      string
	changelogPath string
	stampYears    bool
	catalogOut    string
}

type refreshOutput struct {
	Coverage []ingest.Coverage `json:"coverage"`
	Report   ingest.Report     `json:"report"`
	Written  string            `json:"written,omitempty"`

	YearsStamped   []string `json:"yearsStamped,omitempty"`
	CatalogWritten string   `json:"catalogWritten,omitempty"`
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	ro := &refreshOptions{}
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh country indicators from the World Bank API",
		Long: `Fetches every mapped World Bank series for the target year, caches the raw
observations, and writes the updated values into the regions file.
Provinces, states, and indicators without a World Bank source are left as they are.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefresh(cmd, opts, ro)
		},
	}

	f := cmd.Flags()
	f.IntVar(&ro.year, "year", 2022, "target data year")
	f.IntVar(&ro.fallbackRange, "fallback", ingest.DefaultFallbackRange, "years either side of --year an observation may come from")
	f.BoolVar(&ro.cacheOnly, "cache", false, "use cached data only and never call the API")
	f.BoolVar(&ro.forceFetch, "refresh", false, "ignore the cache and fetch fresh data")
	f.BoolVar(&ro.dryRun, "dry-run", false, "report changes without writing the regions file")
	f.StringVar(&ro.outPath, "out", "", "write updated regions here instead of --regions")
	f.StringVar(&ro.cacheDir, "cache-dir", "cache", "directory for raw World Bank responses")
	f.StringVar(&ro.changelogPath, "changelog", "", "also write the change report as JSON to this file")
	f.BoolVar(&ro.stampYears, "stamp-years", false, "set each refreshed indicator's year to its primary observation year")
	f.StringVar(&ro.catalogOut, "catalog-out", "", "write the stamped catalog here instead of --catalog")
	cmd.MarkFlagsMutuallyExclusive("cache", "refresh")
	return cmd
}

func runRefresh(cmd *cobra.Command, opts *rootOptions, ro *refreshOptions) error {
	logger := opts.logger(cmd)
	out := cmd.OutOrStdout()

	if ro.year < 1960 {
		return fmt.Errorf("invalid --year %d", ro.year)
	}
	if ro.fallbackRange < 0 {
		return fmt.Errorf("invalid --fallback %d: must not be negative", ro.fallbackRange)
	}

	// Load the current dataset first so a broken input fails before any fetch.
	cat, err := dataset.LoadFiles(opts.regionsPath, opts.catalogPath)
	if err != nil {
		return err
	}

	cache := worldbank.NewFileCache(ro.cacheDir, nil)
	var data worldbank.Dataset
	if !ro.forceFetch {
		cf, ok, err := cache.Load(ro.year)
		if err != nil {
			return err
		}
		if ok {
			logger.Info("using cached world bank data", "path", cache.Path(ro.year), "fetched_at", cf.FetchedAt)
			data = cf.Data
		}
	}

	if data == nil {
		if ro.cacheOnly {
			return fmt.Errorf("no cached data at %s", cache.Path(ro.year))
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client := worldbank.NewClient(cfg.WorldBankTimeout, logger)
		data, err = ingest.FetchAll(cmd.Context(), client, ingest.FieldMap, ro.year, ro.fallbackRange, logger)
		if err != nil {
			return err
		}
		path, err := cache.Save(ro.year, data)
		if err != nil {
			return err
		}
		logger.Info("cached world bank data", "path", path)
	}

	coverage := ingest.SummarizeCoverage(data, ingest.FieldMap, ro.year)
	updated, report := ingest.Apply(cat.Regions, data, ingest.FieldMap, ro.year)
	result := refreshOutput{Coverage: coverage, Report: report}

	next := cat
	next.Regions = updated
	if ro.stampYears {
		next.Indicators, result.YearsStamped = ingest.StampYears(cat.Indicators, coverage)
	}

	if ro.changelogPath != "" {
		f, err := os.Create(ro.changelogPath)
		if err != nil {
			return fmt.Errorf("create changelog: %w", err)
		}
		err = writeJSON(f, report)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write changelog: %w", err)
		}
	}

	if !ro.dryRun {
		dest := ro.outPath
		if dest == "" {
			dest = opts.regionsPath
		}
		if dest == "" {
			return errors.New("no output file: pass --out or --regions, or use --dry-run")
		}

		catalogDest := ro.catalogOut
		if catalogDest == "" {
			catalogDest = opts.catalogPath
		}
		if ro.stampYears && catalogDest == "" {
			return errors.New("no catalog output file: pass --catalog-out or --catalog, or use --dry-run")
		}

		if err := dataset.Validate(next); err != nil {
			return fmt.Errorf("refreshed dataset is invalid: %w", err)
		}
		if err := dataset.WriteRegions(dest, updated); err != nil {
			return err
		}
		result.Written = dest
		logger.Info("wrote regions", "path", dest, "regions_updated", report.RegionsUpdated)

		if ro.stampYears {
			if err := dataset.WriteCatalog(catalogDest, next); err != nil {
				return err
			}
			result.CatalogWritten = catalogDest
			logger.Info("wrote catalog", "path", catalogDest, "years_stamped", len(result.YearsStamped))
		}
	}

	if opts.jsonOut {
		return writeJSON(out, result)
	}
	return printRefresh(out, result)
}

func printRefresh(w io.Writer, r refreshOutput) error {
	fmt.Fprintf(w, "Coverage for %d\n", r.Report.TargetYear)
	rows := make([][]string, len(r.Coverage))
	for i, c := range r.Coverage {
		primary := "-"
		if y := c.PrimaryYear(); y != 0 {
			primary = strconv.Itoa(y)
		}
		rows[i] = []string{c.Key, strconv.Itoa(c.Countries), strconv.Itoa(c.OnTarget), primary}
	}
	if err := renderTable(w, []string{"Indicator", "Countries", "On Target", "Primary Year"}, rows); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d changes across %d regions\n", len(r.Report.Changes), r.Report.RegionsUpdated)
	if len(r.Report.Changes) > 0 {
		if err := renderTable(w, []string{"Region", "Indicator", "Old", "New", "Year"}, changeRows(r.Report.Changes)); err != nil {
			return err
		}
	}
	if len(r.Report.Skipped) > 0 {
		fmt.Fprintf(w, "\n%d suspicious values skipped\n", len(r.Report.Skipped))
		if err := renderTable(w, []string{"Region", "Indicator", "Old", "New", "Year"}, changeRows(r.Report.Skipped)); err != nil {
			return err
		}
	}
	if len(r.YearsStamped) > 0 {
		fmt.Fprintf(w, "\nindicator years updated: %s\n", strings.Join(r.YearsStamped, ", "))
	}
	if r.Written != "" {
		fmt.Fprintf(w, "\nwrote %s\n", r.Written)
	}
	if r.CatalogWritten != "" {
		fmt.Fprintf(w, "wrote %s\n", r.CatalogWritten)
	}
	return nil
}

func changeRows(changes []ingest.Change) [][]string {
	sorted := append([]ingest.Change(nil), changes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RegionID < sorted[j].RegionID })

	rows := make([][]string, len(sorted))
	for i, c := range sorted {
		old := "-"
		if c.Old != nil {
			old = formatNumber(*c.Old)
		}
		rows[i] = []string{c.RegionID, c.Key, old, formatNumber(c.New), strconv.Itoa(c.Year)}
	}
	return rows
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

