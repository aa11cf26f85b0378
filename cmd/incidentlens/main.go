// Command incidentlens analyzes a record-level incident log for periods
// where event frequency deviates sharply from its recent trend, either
// as a one-shot report (analyze) or as a long-running service (serve).
package main

import (
	"log/slog"
	"os"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("incidentlens failed", "err", err)
		os.Exit(1)
	}
}
