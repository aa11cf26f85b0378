package main

import (
	"github.com/spf13/cobra"

	"github.com/incidentlens/incidentlens/internal/aggregate"
	"github.com/incidentlens/incidentlens/internal/config"
	"github.com/incidentlens/incidentlens/internal/pipeline"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "incidentlens",
	Short: "Detect frequency spikes in a record-level incident log",
	Long: `incidentlens cleans a raw incident log, buckets events per grouping
key and time unit, fits a linear trend over cumulative counts, and ranks
time buckets by how far they deviate from their own recent history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
}

// pipelineOptions maps the analysis config onto pipeline options.
func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		DateField: cfg.Dataset.DateField,
		Specs:     cfg.Analysis.FieldSpecs,
		GroupBy:   cfg.Analysis.GroupBy,
		Unit:      aggregate.Unit(cfg.Analysis.TimeUnit),
		Window:    cfg.Analysis.Window,
	}
}
