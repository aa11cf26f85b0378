package trend

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/incidentlens/incidentlens/internal/aggregate"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// synthetic builds a series whose cumulative counts lie exactly on
// y = slope*x + intercept at the given elapsed values.
func synthetic(slope, intercept float64, elapsed []float64) aggregate.Series {
	start := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	s := make(aggregate.Series, 0, len(elapsed))
	prev := 0
	for _, x := range elapsed {
		cum := int(slope*x + intercept)
		s = append(s, aggregate.Entry{
			Bucket:     start.AddDate(0, 0, int(x)),
			Count:      cum - prev,
			Cumulative: cum,
			Elapsed:    x,
		})
		prev = cum
	}
	return s
}

func TestFit_RecoversExactLine(t *testing.T) {
	series := synthetic(3, 5, []float64{0, 1, 2, 3, 4, 5})

	m, err := Fit(series)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !almostEqual(m.Slope, 3) {
		t.Errorf("Slope: got %v, want 3", m.Slope)
	}
	if !almostEqual(m.Intercept, 5) {
		t.Errorf("Intercept: got %v, want 5", m.Intercept)
	}
	if !almostEqual(m.R2, 1) {
		t.Errorf("R2: got %v, want 1", m.R2)
	}
	if !almostEqual(m.ResidualStdErr, 0) {
		t.Errorf("ResidualStdErr: got %v, want 0", m.ResidualStdErr)
	}
	if m.N != 6 {
		t.Errorf("N: got %d, want 6", m.N)
	}

	// Predict reproduces exact values at the training points.
	for _, e := range series {
		if got := m.Predict(e.Elapsed); !almostEqual(got, float64(e.Cumulative)) {
			t.Errorf("Predict(%v): got %v, want %d", e.Elapsed, got, e.Cumulative)
		}
	}
}

func TestFit_Extrapolation(t *testing.T) {
	m, err := Fit(synthetic(2, 1, []float64{0, 1, 2}))
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if got := m.Predict(100); !almostEqual(got, 201) {
		t.Errorf("Predict(100): got %v, want 201", got)
	}
	if got := m.Predict(-1); !almostEqual(got, -1) {
		t.Errorf("Predict(-1): got %v, want -1", got)
	}
}

func TestFit_InsufficientData(t *testing.T) {
	tests := []struct {
		name   string
		series aggregate.Series
	}{
		{"empty series", nil},
		{"single point", synthetic(1, 0, []float64{0})},
		{
			// Two entries sharing one elapsed value: no line is determined.
			"identical elapsed values",
			aggregate.Series{
				{Elapsed: 2, Cumulative: 4},
				{Elapsed: 2, Cumulative: 9},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.series)
			if !errors.Is(err, ErrInsufficientData) {
				t.Fatalf("Fit: got err %v, want ErrInsufficientData", err)
			}
		})
	}
}

func TestFit_NoisySeriesQuality(t *testing.T) {
	// y = 2x + 1 with a bump at x=2.
	series := aggregate.Series{
		{Elapsed: 0, Cumulative: 1},
		{Elapsed: 1, Cumulative: 3},
		{Elapsed: 2, Cumulative: 8},
		{Elapsed: 3, Cumulative: 7},
		{Elapsed: 4, Cumulative: 9},
	}
	m, err := Fit(series)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if m.R2 <= 0 || m.R2 >= 1 {
		t.Errorf("R2: got %v, want strictly inside (0, 1)", m.R2)
	}
	if m.ResidualStdErr <= 0 {
		t.Errorf("ResidualStdErr: got %v, want > 0", m.ResidualStdErr)
	}
}

func TestFit_FlatSeries(t *testing.T) {
	// Constant cumulative count: slope 0, zero residuals.
	series := aggregate.Series{
		{Elapsed: 0, Cumulative: 4},
		{Elapsed: 1, Cumulative: 4},
		{Elapsed: 2, Cumulative: 4},
	}
	m, err := Fit(series)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !almostEqual(m.Slope, 0) {
		t.Errorf("Slope: got %v, want 0", m.Slope)
	}
	if !almostEqual(m.R2, 1) {
		t.Errorf("R2 for zero-residual flat series: got %v, want 1", m.R2)
	}
}
