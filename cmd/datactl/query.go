package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/region-compare-service/internal/dataset"
	"github.com/couchcryptid/region-compare-service/internal/domain"
	"github.com/couchcryptid/region-compare-service/internal/matching"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the regions file and indicator catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := dataset.LoadFiles(opts.regionsPath, opts.catalogPath)
			if err != nil {
				return err
			}
			stats := matching.NewEngine(cat).Stats()
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dataset OK: %d regions, %d indicators, %d presets\n",
				stats.Regions, stats.Indicators, stats.Presets)
			for _, t := range []domain.RegionType{domain.RegionCountry, domain.RegionProvince, domain.RegionState} {
				fmt.Fprintf(out, "  %-9s %d\n", t, stats.ByType[t])
			}
			return nil
		},
	}
}

// matchFlags are shared by match and aggregate.
type matchFlags struct {
	preset  string
	weights []string
}

func (f *matchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.preset, "preset", "", "weight preset name (default: comprehensive)")
	cmd.Flags().StringArrayVar(&f.weights, "weight", nil, "custom weight as key=value (repeatable, overrides --preset)")
}

func (f *matchFlags) query(limit int) (matching.MatchQuery, error) {
	q := matching.MatchQuery{Preset: f.preset, Limit: limit}
	if len(f.weights) == 0 {
		return q, nil
	}
	q.Custom = make(domain.Weights, len(f.weights))
	for _, kv := range f.weights {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return q, fmt.Errorf("invalid weight %q: want key=value", kv)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return q, fmt.Errorf("invalid weight %q: %w", kv, err)
		}
		q.Custom[key] = v
	}
	return q, q.Custom.Validate()
}

type matchOutput struct {
	Source  domain.Region  `json:"source"`
	Preset  string         `json:"preset"`
	Weights domain.Weights `json:"weights"`
	Matches []domain.Match `json:"matches"`
}

func newMatchCmd(opts *rootOptions) *cobra.Command {
	var (
		flags matchFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "match <region-id>",
		Short: "Rank the regions most similar to a region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query(limit)
			if err != nil {
				return err
			}
			engine, err := opts.loadEngine()
			if err != nil {
				return err
			}
			source, ok := engine.GetRegion(args[0])
			if !ok {
				return fmt.Errorf("region %q not found", args[0])
			}

			weights, name := engine.ResolveWeights(q)
			matches := engine.FindMatches(source.ID, q)
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), matchOutput{Source: source, Preset: name, Weights: weights, Matches: matches})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s weights)\n", source.Flag, source.Name, name)
			return printMatches(cmd.OutOrStdout(), matches)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", matching.DefaultMatchLimit, "maximum number of matches")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search regions by name or id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.loadEngine()
			if err != nil {
				return err
			}
			results := engine.SearchRegions(args[0])
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no regions found")
				return nil
			}
			return renderTable(cmd.OutOrStdout(), []string{"ID", "Name", "Type", "Parent"}, regionRows(results))
		},
	}
}

type aggregateOutput struct {
	Region  domain.Region  `json:"region"`
	Matches []domain.Match `json:"matches,omitempty"`
}

func newAggregateCmd(opts *rootOptions) *cobra.Command {
	var (
		flags   matchFlags
		name    string
		matches int
	)
	cmd := &cobra.Command{
		Use:   "aggregate <region-id>...",
		Short: "Combine regions into a custom region and optionally rank its matches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query(matches)
			if err != nil {
				return err
			}
			engine, err := opts.loadEngine()
			if err != nil {
				return err
			}
			agg, ok := engine.AggregateRegions(args, name)
			if !ok {
				return fmt.Errorf("none of %s are known regions", strings.Join(args, ", "))
			}

			var ranked []domain.Match
			if matches > 0 {
				ranked = engine.MatchRegion(agg, q)
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), aggregateOutput{Region: agg, Matches: ranked})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s [%s]\n", agg.Flag, agg.Name, agg.ID)
			if err := printIndicators(out, engine, agg); err != nil {
				return err
			}
			if len(ranked) > 0 {
				fmt.Fprintln(out)
				return printMatches(out, ranked)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&name, "name", "Custom Region", "display name of the aggregate")
	cmd.Flags().IntVar(&matches, "matches", 0, "also rank this many matches for the aggregate")
	return cmd
}

func printMatches(w io.Writer, matches []domain.Match) error {
	rows := make([][]string, len(matches))
	for i, m := range matches {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			m.ID,
			strings.TrimSpace(m.Flag + " " + m.Name),
			string(m.Type),
			strconv.FormatFloat(m.Score, 'f', 1, 64),
		}
	}
	return renderTable(w, []string{"#", "ID", "Name", "Type", "Score"}, rows)
}

func printIndicators(w io.Writer, engine *matching.Engine, r domain.Region) error {
	indicators, _ := engine.Indicators()
	rows := make([][]string, 0, len(indicators))
	for _, ind := range indicators {
		v, ok := r.Value(ind.Key)
		value := "-"
		if ok {
			value = ind.FormatValue(v)
		}
		rows = append(rows, []string{ind.Label, value})
	}
	return renderTable(w, []string{"Indicator", "Value"}, rows)
}
