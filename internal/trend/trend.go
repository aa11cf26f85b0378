// Package trend fits a linear model of cumulative incident count against
// elapsed time for one bucket series.
package trend

import (
	"errors"
	"math"

	"github.com/incidentlens/incidentlens/internal/aggregate"
)

// ErrInsufficientData is returned by Fit when the series has fewer than
// two entries with distinct elapsed values, which is the minimum for a
// line to be determined.
var ErrInsufficientData = errors.New("trend: need at least 2 points with distinct elapsed values")

// Model is an ordinary-least-squares fit of cumulative count on elapsed
// days. Immutable once returned by Fit.
type Model struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`

	// R2 is the coefficient of determination. 1 means the line explains
	// the series exactly; a degenerate flat series with zero residuals
	// also reports 1.
	R2 float64 `json:"r2"`

	// ResidualStdErr is sqrt(SSres / (n-2)), or 0 when n <= 2.
	ResidualStdErr float64 `json:"residual_std_err"`

	// N is the number of points used.
	N int `json:"n"`
}

// Fit runs OLS over the series' (elapsed, cumulative) pairs. Fit quality
// fields are diagnostic only; downstream logic never branches on them.
func Fit(series aggregate.Series) (Model, error) {
	n := len(series)
	if n < 2 {
		return Model{}, ErrInsufficientData
	}

	var sumX, sumY float64
	for _, e := range series {
		sumX += e.Elapsed
		sumY += float64(e.Cumulative)
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy float64
	for _, e := range series {
		dx := e.Elapsed - meanX
		sxx += dx * dx
		sxy += dx * (float64(e.Cumulative) - meanY)
	}
	if sxx == 0 {
		// All elapsed values identical: the slope is undefined.
		return Model{}, ErrInsufficientData
	}

	slope := sxy / sxx
	intercept := meanY - slope*meanX

	var ssRes, ssTot float64
	for _, e := range series {
		y := float64(e.Cumulative)
		r := y - (slope*e.Elapsed + intercept)
		ssRes += r * r
		dy := y - meanY
		ssTot += dy * dy
	}

	r2 := 1.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	var stderr float64
	if n > 2 {
		stderr = math.Sqrt(ssRes / float64(n-2))
	}

	return Model{
		Slope:          slope,
		Intercept:      intercept,
		R2:             r2,
		ResidualStdErr: stderr,
		N:              n,
	}, nil
}

// Predict evaluates the fitted line at the given elapsed value. It is
// defined for any real input, including extrapolation beyond the
// observed range; interpreting extrapolation risk is the caller's job.
func (m Model) Predict(elapsed float64) float64 {
	return m.Slope*elapsed + m.Intercept
}
