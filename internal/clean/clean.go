package clean

import (
	"fmt"
	"time"
)

// dateLayouts are the calendar date formats accepted by Clean, tried in
// order. The US form is what the reference incident exports use.
var dateLayouts = []string{"2006-01-02", "01/02/2006"}

// Drop reason labels used as keys in Result.DropReasons.
const (
	ReasonBadDate  = "bad_date"
	ReasonMissing  = "missing_field"
	ReasonSentinel = "sentinel_value"
	ReasonOutOfSet = "out_of_domain"
)

// RawRecord is one untyped row from the record source. Keys are field
// names; an absent key and an empty value are both treated as missing.
type RawRecord map[string]string

// FieldSpec governs one categorical field during cleaning.
type FieldSpec struct {
	// Field is the raw column name.
	Field string `yaml:"field"`

	// Disallowed lists sentinel values that mark the field as
	// unknown or invalid ("UNKNOWN", "(null)", "U", ...). A row whose
	// field matches any of them is dropped.
	Disallowed []string `yaml:"disallowed"`

	// Allowed, when non-empty, closes the field's domain: any value
	// outside the set drops the row. Empty means the domain is open and
	// only Disallowed filtering applies.
	Allowed []string `yaml:"allowed"`
}

// Record is a cleaned row. Date holds the calendar date at midnight UTC;
// Fields holds every governed categorical value, validated against its
// domain at construction. Records are never mutated after Clean returns.
type Record struct {
	Date   time.Time
	Fields map[string]string
}

// Result is the outcome of one Clean pass.
type Result struct {
	Records []Record

	// Kept and Dropped count surviving and filtered rows. Kept always
	// equals len(Records).
	Kept    int
	Dropped int

	// DropReasons counts dropped rows per reason label.
	DropReasons map[string]int
}

// NewRecord builds a Record from an already-parsed date and field values,
// enforcing every spec. Unlike Clean, it returns an error instead of
// dropping, so callers constructing records directly cannot smuggle an
// out-of-domain value past the domain check.
func NewRecord(date time.Time, fields map[string]string, specs []FieldSpec) (Record, error) {
	for _, spec := range specs {
		v, ok := fields[spec.Field]
		if !ok || v == "" {
			return Record{}, fmt.Errorf("clean: field %q is missing", spec.Field)
		}
		for _, bad := range spec.Disallowed {
			if v == bad {
				return Record{}, fmt.Errorf("clean: field %q has sentinel value %q", spec.Field, v)
			}
		}
		if len(spec.Allowed) > 0 && !contains(spec.Allowed, v) {
			return Record{}, fmt.Errorf("clean: field %q value %q is outside its domain", spec.Field, v)
		}
	}

	kept := make(map[string]string, len(fields))
	for k, v := range fields {
		kept[k] = v
	}
	return Record{Date: midnightUTC(date), Fields: kept}, nil
}

// Clean filters rows into Records. dateField names the column holding the
// event date. A row is dropped, never an error, when its date fails to
// parse or any spec check fails; Result.DropReasons records why.
func Clean(rows []RawRecord, dateField string, specs []FieldSpec) Result {
	res := Result{DropReasons: make(map[string]int)}

	for _, row := range rows {
		date, ok := parseDate(row[dateField])
		if !ok {
			res.drop(ReasonBadDate)
			continue
		}

		if reason, ok := checkSpecs(row, specs); !ok {
			res.drop(reason)
			continue
		}

		rec, err := NewRecord(date, row, specs)
		if err != nil {
			// Unreachable when checkSpecs passed, but the constructor is
			// the enforcement point — trust it over the pre-check.
			res.drop(ReasonOutOfSet)
			continue
		}
		res.Records = append(res.Records, rec)
		res.Kept++
	}
	return res
}

func (r *Result) drop(reason string) {
	r.Dropped++
	r.DropReasons[reason]++
}

// checkSpecs classifies a failing row by reason so drops stay diagnosable.
func checkSpecs(row RawRecord, specs []FieldSpec) (string, bool) {
	for _, spec := range specs {
		v, ok := row[spec.Field]
		if !ok || v == "" {
			return ReasonMissing, false
		}
		for _, bad := range spec.Disallowed {
			if v == bad {
				return ReasonSentinel, false
			}
		}
		if len(spec.Allowed) > 0 && !contains(spec.Allowed, v) {
			return ReasonOutOfSet, false
		}
	}
	return "", true
}

// parseDate tries each accepted layout and strips any time component.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return midnightUTC(t), true
		}
	}
	return time.Time{}, false
}

// DateLayout is the canonical layout cleaned dates render back to.
const DateLayout = "2006-01-02"

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
