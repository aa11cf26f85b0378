// Package deviation ranks time buckets by how far their count deviates
// from the trailing-window average of the buckets immediately before
// them.
//
// The ranker performs no aggregation and no ordering of its own: it
// trusts the caller to supply buckets in the chronological order over
// which "lagging" is meaningful, which makes it reusable across any
// grouping dimension or time granularity.
package deviation

import (
	"errors"
	"sort"
)

// ErrInvalidWindow reports a non-positive window, which is a caller bug
// rather than a data condition.
var ErrInvalidWindow = errors.New("deviation: window must be positive")

// Point is one already-bucketed count in caller-supplied chronological
// order. Key is an opaque bucket label (typically the bucket date).
type Point struct {
	Key   string
	Count float64
}

// Record is one ranked bucket.
type Record struct {
	// Key is the bucket label carried through from the input point.
	Key string `json:"key"`

	// Count is the bucket's own count.
	Count float64 `json:"count"`

	// LaggingAverage is the mean of the window counts immediately
	// preceding (and excluding) this bucket.
	LaggingAverage float64 `json:"lagging_average"`

	// RelativeDeviation is Count/LaggingAverage - 1. Positive values mean
	// the bucket exceeds its recent history.
	RelativeDeviation float64 `json:"relative_deviation"`

	// Position is the bucket's index in the caller's chronological input,
	// kept so consumers can recover the original order.
	Position int `json:"position"`
}

// Rank computes a lagging average and relative deviation for every
// bucket with enough trailing history and returns the qualifying buckets
// sorted by relative deviation, descending.
//
// Exclusion policy, fixed rather than library-defaulted:
//   - the first window buckets have no defined lagging average and are
//     excluded outright, never padded or zero-filled;
//   - a bucket whose lagging average is zero has an undefined relative
//     deviation and is likewise excluded — not a division error.
//
// Ties keep the caller's chronological order, earlier bucket first, so
// rankings are reproducible across runs.
func Rank(points []Point, window int) ([]Record, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	var out []Record
	var trailing float64 // running sum of the window counts before i

	for i, p := range points {
		if i >= window {
			if avg := trailing / float64(window); avg != 0 {
				out = append(out, Record{
					Key:               p.Key,
					Count:             p.Count,
					LaggingAverage:    avg,
					RelativeDeviation: p.Count/avg - 1,
					Position:          i,
				})
			}
			trailing -= points[i-window].Count
		}
		trailing += p.Count
	}

	// Stable sort: records were appended chronologically, so equal
	// deviations stay in original order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelativeDeviation > out[j].RelativeDeviation
	})
	return out, nil
}
