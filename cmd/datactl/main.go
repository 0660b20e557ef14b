// Command datactl is the operator CLI for the region dataset: it validates
// the catalog, runs engine queries offline, and refreshes country indicators
// from the World Bank API.
//
// Usage:
//
//	datactl validate --regions data/regions.json
//	datactl match de --preset economy --limit 5
//	datactl search land
//	datactl aggregate us-ca us-tx --name "CA+TX" --matches 5
//	datactl refresh --year 2022 --dry-run
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/region-compare-service/internal/dataset"
	"github.com/couchcryptid/region-compare-service/internal/domain"
	"github.com/couchcryptid/region-compare-service/internal/matching"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds the global flags shared by every subcommand.
type rootOptions struct {
	regionsPath string
	catalogPath string
	jsonOut     bool
	logLevel    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "datactl",
		Short:         "Validate, query, and refresh the region comparison dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.regionsPath, "regions", os.Getenv("DATASET_REGIONS_PATH"), "regions JSON file (default: embedded dataset)")
	pf.StringVar(&opts.catalogPath, "catalog", os.Getenv("DATASET_CATALOG_PATH"), "indicator catalog YAML file (default: embedded catalog)")
	pf.BoolVar(&opts.jsonOut, "json", false, "print results as JSON")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newValidateCmd(opts),
		newMatchCmd(opts),
		newSearchCmd(opts),
		newAggregateCmd(opts),
		newRefreshCmd(opts),
	)
	return cmd
}

// logger writes text logs to stderr so stdout carries only command output.
func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) loadEngine() (*matching.Engine, error) {
	cat, err := dataset.LoadFiles(o.regionsPath, o.catalogPath)
	if err != nil {
		return nil, err
	}
	return matching.NewEngine(cat), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(header)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func regionRows(regions []domain.Region) [][]string {
	rows := make([][]string, len(regions))
	for i, r := range regions {
		rows[i] = []string{r.ID, strings.TrimSpace(r.Flag + " " + r.Name), string(r.Type), r.Parent}
	}
	return rows
}
