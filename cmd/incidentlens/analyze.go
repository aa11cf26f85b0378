package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/incidentlens/incidentlens/internal/config"
	"github.com/incidentlens/incidentlens/internal/history"
	"github.com/incidentlens/incidentlens/internal/pipeline"
	"github.com/incidentlens/incidentlens/internal/source"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the pipeline once and print the report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runAnalyze(cmd.Context(), cfg)
	},
}

func runAnalyze(ctx context.Context, cfg *config.Config) error {
	src, err := source.New(cfg.Dataset)
	if err != nil {
		return err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.Dataset.Timeout)
	defer cancel()
	rows, err := src.Fetch(fetchCtx)
	if err != nil {
		return fmt.Errorf("fetch dataset: %w", err)
	}

	rep, err := pipeline.Run(ctx, rows, pipelineOptions(cfg))
	if err != nil {
		return err
	}

	if cfg.History.Path != "" {
		hist, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer hist.Close()
		if err := hist.Save(ctx, rep); err != nil {
			return err
		}
		if err := hist.Prune(ctx, cfg.History.Keep); err != nil {
			slog.Warn("history prune failed", "err", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
