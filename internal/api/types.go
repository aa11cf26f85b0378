package api

import (
	"time"

	"github.com/incidentlens/incidentlens/internal/aggregate"
	"github.com/incidentlens/incidentlens/internal/deviation"
	"github.com/incidentlens/incidentlens/internal/pipeline"
	"github.com/incidentlens/incidentlens/internal/trend"
)

// HealthResponse is the GET /api/v1/health body.
type HealthResponse struct {
	Status      string    `json:"status"` // "ok" | "stale" | "empty"
	LastRunID   string    `json:"last_run_id,omitempty"`
	LastRunAt   time.Time `json:"last_run_at,omitempty"`
	KeysTracked int       `json:"keys_tracked"`
}

// SummaryResponse is the GET /api/v1/summary body and the WebSocket
// broadcast payload.
type SummaryResponse struct {
	RunID         string                     `json:"run_id"`
	StartedAt     time.Time                  `json:"started_at"`
	FinishedAt    time.Time                  `json:"finished_at"`
	RowsIn        int                        `json:"rows_in"`
	RowsKept      int                        `json:"rows_kept"`
	RowsDropped   int                        `json:"rows_dropped"`
	DroppedPct    float64                    `json:"dropped_pct"`
	DropReasons   map[string]int             `json:"drop_reasons,omitempty"`
	KeyCount      int                        `json:"key_count"`
	FitFailures   int                        `json:"fit_failures"`
	TopDeviations []pipeline.RankedDeviation `json:"top_deviations"`
}

// KeySummary is one element of the GET /api/v1/keys body.
type KeySummary struct {
	Key          string    `json:"key"`
	Total        int       `json:"total"`
	Buckets      int       `json:"buckets"`
	Slope        *float64  `json:"slope,omitempty"`
	FitError     string    `json:"fit_error,omitempty"`
	MaxDeviation *float64  `json:"max_deviation,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// KeyResponse is the GET /api/v1/keys/{key} body.
type KeyResponse struct {
	Key        string             `json:"key"`
	Series     aggregate.Series   `json:"series"`
	Total      int                `json:"total"`
	Fit        *trend.Model       `json:"fit,omitempty"`
	FitError   string             `json:"fit_error,omitempty"`
	Deviations []deviation.Record `json:"deviations"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}
