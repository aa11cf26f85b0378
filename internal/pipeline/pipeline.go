package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/incidentlens/incidentlens/internal/aggregate"
	"github.com/incidentlens/incidentlens/internal/clean"
	"github.com/incidentlens/incidentlens/internal/deviation"
	"github.com/incidentlens/incidentlens/internal/trend"
)

// Options configures one pipeline run.
type Options struct {
	// DateField names the raw column holding the event date.
	DateField string

	// Specs govern categorical cleaning; empty means date-only filtering.
	Specs []clean.FieldSpec

	// GroupBy lists the fields whose value tuples define independent
	// series. Empty produces a single global series.
	GroupBy []string

	// Unit is the bucket granularity.
	Unit aggregate.Unit

	// Window is the lagging-average width in buckets.
	Window int
}

// Validate checks option constraints shared by every caller.
func (o Options) Validate() error {
	if o.DateField == "" {
		return fmt.Errorf("pipeline: date field must be set")
	}
	if o.Window <= 0 {
		return deviation.ErrInvalidWindow
	}
	if _, err := aggregate.ParseUnit(string(o.Unit)); err != nil {
		return err
	}
	return nil
}

// KeyResult holds everything derived for one grouping key.
type KeyResult struct {
	Key     aggregate.Key      `json:"-"`
	Display string             `json:"key"`
	Series  aggregate.Series   `json:"series"`
	Total   int                `json:"total"`
	Fit     *trend.Model       `json:"fit,omitempty"`
	FitErr  string             `json:"fit_error,omitempty"`
	Ranked  []deviation.Record `json:"deviations"`
}

// Report is the immutable result of one run.
type Report struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	RowsIn     int            `json:"rows_in"`
	Kept       int            `json:"rows_kept"`
	Dropped    int            `json:"rows_dropped"`
	Reasons    map[string]int `json:"drop_reasons,omitempty"`

	// Keys is sorted by key for deterministic output.
	Keys []*KeyResult `json:"keys"`

	// FitFailures counts keys whose trend fit had too little data.
	FitFailures int `json:"fit_failures"`
}

// DroppedPct returns the dropped-row percentage of the input, 0 for an
// empty input.
func (r *Report) DroppedPct() float64 {
	if r.RowsIn == 0 {
		return 0
	}
	return float64(r.Dropped) / float64(r.RowsIn) * 100
}

// Key returns the result for one grouping key, or nil.
func (r *Report) Key(k aggregate.Key) *KeyResult {
	for _, kr := range r.Keys {
		if kr.Key == k {
			return kr
		}
	}
	return nil
}

// RankedDeviation is one deviation record tagged with its grouping key,
// used for cross-key ranked views.
type RankedDeviation struct {
	GroupKey string `json:"group_key"`
	deviation.Record
}

// TopDeviations merges every key's ranked records into one global list,
// descending by relative deviation with ties kept in (key, chronological)
// order. limit <= 0 means no cap.
func (r *Report) TopDeviations(limit int) []RankedDeviation {
	var all []RankedDeviation
	for _, kr := range r.Keys {
		for _, rec := range kr.Ranked {
			all = append(all, RankedDeviation{GroupKey: kr.Display, Record: rec})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].RelativeDeviation > all[j].RelativeDeviation
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Run executes the pipeline over rows. The returned error covers option
// mistakes only; data conditions (dropped rows, keys too small to fit)
// land in the Report instead.
func Run(ctx context.Context, rows []clean.RawRecord, opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	started := time.Now().UTC()

	cleaned := clean.Clean(rows, opts.DateField, opts.Specs)
	series := aggregate.Aggregate(cleaned.Records, opts.GroupBy, opts.Unit)

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: started,
		RowsIn:    len(rows),
		Kept:      cleaned.Kept,
		Dropped:   cleaned.Dropped,
		Reasons:   cleaned.DropReasons,
		Keys:      make([]*KeyResult, 0, len(series)),
	}

	// Per-key fan-out. Each series is independent, so the only shared
	// state is the result slice behind a mutex.
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, k := range aggregate.Keys(series) {
		k, s := k, series[k]
		wg.Add(1)
		go func() {
			defer wg.Done()
			kr := analyzeKey(k, s, opts)
			mu.Lock()
			report.Keys = append(report.Keys, kr)
			if kr.FitErr != "" {
				report.FitFailures++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(report.Keys, func(i, j int) bool {
		return report.Keys[i].Key < report.Keys[j].Key
	})

	report.FinishedAt = time.Now().UTC()
	slog.Info("pipeline: run complete",
		"run_id", report.RunID,
		"rows_in", report.RowsIn,
		"kept", report.Kept,
		"dropped", report.Dropped,
		"keys", len(report.Keys),
		"fit_failures", report.FitFailures,
	)
	return report, nil
}

// analyzeKey derives the trend fit and deviation ranking for one series.
func analyzeKey(k aggregate.Key, s aggregate.Series, opts Options) *KeyResult {
	kr := &KeyResult{
		Key:     k,
		Display: k.Display(),
		Series:  s,
		Total:   s.Total(),
	}

	if fit, err := trend.Fit(s); err != nil {
		kr.FitErr = err.Error()
	} else {
		kr.Fit = &fit
	}

	points := make([]deviation.Point, len(s))
	for i, e := range s {
		points[i] = deviation.Point{Key: opts.Unit.Label(e.Bucket), Count: float64(e.Count)}
	}
	// Window validity is checked in Options.Validate, so the only Rank
	// error path is unreachable here.
	kr.Ranked, _ = deviation.Rank(points, opts.Window)
	return kr
}
