package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/incidentlens/incidentlens/internal/clean"
)

// Unit is the time granularity records are bucketed at.
type Unit string

const (
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
	UnitYear  Unit = "year"
)

// ParseUnit maps a config string to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		return Unit(s), nil
	default:
		return "", fmt.Errorf("aggregate: unknown time unit %q: want day|week|month|year", s)
	}
}

// Truncate projects t down to the unit's bucket start. Weeks start on
// Monday; all results are midnight UTC.
func (u Unit) Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	switch u {
	case UnitWeek:
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case UnitMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case UnitYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

// Label renders a bucket time at the unit's natural precision.
func (u Unit) Label(t time.Time) string {
	switch u {
	case UnitMonth:
		return t.Format("2006-01")
	case UnitYear:
		return t.Format("2006")
	default:
		return t.Format("2006-01-02")
	}
}

// keySep joins tuple values inside a Key. It cannot occur in CSV field
// values, which keeps encoded keys collision-free.
const keySep = "\x1f"

// displaySep joins tuple values in the human-readable form used by the
// API and logs.
const displaySep = "|"

// missingValue stands in for an empty grouping-dimension value, so a
// record lacking a group-by field never collides with the global series'
// empty key.
const missingValue = "(none)"

// Key identifies one grouping-key tuple. The empty Key is the single
// global series produced when no group-by fields are configured.
type Key string

// NewKey encodes a tuple of grouping-dimension values.
func NewKey(values ...string) Key {
	return Key(strings.Join(values, keySep))
}

// Values decodes the tuple back into its dimension values.
func (k Key) Values() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), keySep)
}

// Display renders the tuple for humans: values joined by "|", or "all"
// for the global series.
func (k Key) Display() string {
	if k == "" {
		return "all"
	}
	return strings.Join(k.Values(), displaySep)
}

// ParseDisplay inverts Display.
func ParseDisplay(s string) Key {
	if s == "" || s == "all" {
		return Key("")
	}
	return NewKey(strings.Split(s, displaySep)...)
}

// Entry is one bucket in a series.
type Entry struct {
	// Bucket is the truncated bucket start time.
	Bucket time.Time `json:"bucket"`

	// Count is the number of records in this bucket.
	Count int `json:"count"`

	// Cumulative is the running total of Count in chronological order.
	Cumulative int `json:"cumulative"`

	// Elapsed is fractional days since the series' first bucket.
	Elapsed float64 `json:"elapsed"`
}

// Series is a chronologically ascending bucket sequence for one Key.
type Series []Entry

// Total returns the sum of all bucket counts.
func (s Series) Total() int {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].Cumulative
}

// Aggregate buckets records by the values of groupBy fields and the
// truncated time unit. groupBy may be empty, yielding one global series.
// The result is deterministic regardless of input order: buckets are
// unique per key and emitted ascending.
func Aggregate(records []clean.Record, groupBy []string, unit Unit) map[Key]Series {
	counts := make(map[Key]map[time.Time]int)

	for _, rec := range records {
		vals := make([]string, len(groupBy))
		for i, f := range groupBy {
			if v := rec.Fields[f]; v != "" {
				vals[i] = v
			} else {
				vals[i] = missingValue
			}
		}
		k := NewKey(vals...)

		buckets, ok := counts[k]
		if !ok {
			buckets = make(map[time.Time]int)
			counts[k] = buckets
		}
		buckets[unit.Truncate(rec.Date)]++
	}

	out := make(map[Key]Series, len(counts))
	for k, buckets := range counts {
		times := make([]time.Time, 0, len(buckets))
		for t := range buckets {
			times = append(times, t)
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

		series := make(Series, 0, len(times))
		cumulative := 0
		start := times[0]
		for _, t := range times {
			cumulative += buckets[t]
			series = append(series, Entry{
				Bucket:     t,
				Count:      buckets[t],
				Cumulative: cumulative,
				Elapsed:    t.Sub(start).Hours() / 24,
			})
		}
		out[k] = series
	}
	return out
}

// Keys returns the map's keys sorted by display form, for stable
// iteration in reports and logs.
func Keys(m map[Key]Series) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
