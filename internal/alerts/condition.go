package alerts

import (
	"strconv"
	"strings"

	"github.com/incidentlens/incidentlens/internal/pipeline"
)

// evalCondition evaluates a rule condition string against a report.
//
// Supported expressions (field operator value):
//
//	relative_deviation > 2      — highest ranked deviation in the run
//	dropped_pct > 20
//	rows_kept < 100
//	rows_dropped > 500
//	fit_failures > 0
//	keys < 5
//
// Returns (fires bool, triggering value, group key for per-key fields).
// Returns (false, 0, "") if the expression cannot be parsed or the
// field is unknown.
func evalCondition(cond string, rep *pipeline.Report) (bool, float64, string) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0, ""
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0, ""
	}

	if field == "relative_deviation" {
		// Per-key field: the first match wins, so the alert names the
		// grouping key that tripped it.
		for _, d := range rep.TopDeviations(0) {
			if compareFloat(d.RelativeDeviation, op, threshold) {
				return true, d.RelativeDeviation, d.GroupKey
			}
		}
		return false, 0, ""
	}

	v, known := numericField(field, rep)
	if !known {
		return false, 0, ""
	}
	return compareFloat(v, op, threshold), v, ""
}

// numericField maps a field name to its report-level value.
func numericField(field string, rep *pipeline.Report) (float64, bool) {
	switch field {
	case "dropped_pct":
		return rep.DroppedPct(), true
	case "rows_kept":
		return float64(rep.Kept), true
	case "rows_dropped":
		return float64(rep.Dropped), true
	case "rows_in":
		return float64(rep.RowsIn), true
	case "fit_failures":
		return float64(rep.FitFailures), true
	case "keys":
		return float64(len(rep.Keys)), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
