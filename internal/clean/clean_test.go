package clean

import (
	"testing"
	"time"
)

var boroSpec = []FieldSpec{
	{
		Field:      "boro",
		Disallowed: []string{"UNKNOWN", "(null)"},
		Allowed:    []string{"BRONX", "BROOKLYN", "MANHATTAN", "QUEENS", "STATEN ISLAND"},
	},
}

func TestClean_Table(t *testing.T) {
	tests := []struct {
		name        string
		rows        []RawRecord
		specs       []FieldSpec
		wantKept    int
		wantDropped int
		wantReason  string // non-empty: expect at least one drop with this reason
	}{
		{
			name:     "all rows valid",
			rows:     []RawRecord{{"date": "2020-04-15", "boro": "BROOKLYN"}, {"date": "2020-04-16", "boro": "QUEENS"}},
			specs:    boroSpec,
			wantKept: 2,
		},
		{
			name:        "bad date dropped",
			rows:        []RawRecord{{"date": "not-a-date", "boro": "BRONX"}},
			specs:       boroSpec,
			wantDropped: 1,
			wantReason:  ReasonBadDate,
		},
		{
			name:        "sentinel value dropped",
			rows:        []RawRecord{{"date": "2020-04-15", "boro": "UNKNOWN"}},
			specs:       boroSpec,
			wantDropped: 1,
			wantReason:  ReasonSentinel,
		},
		{
			name:        "missing governed field dropped",
			rows:        []RawRecord{{"date": "2020-04-15"}},
			specs:       boroSpec,
			wantDropped: 1,
			wantReason:  ReasonMissing,
		},
		{
			name:        "empty governed field dropped",
			rows:        []RawRecord{{"date": "2020-04-15", "boro": ""}},
			specs:       boroSpec,
			wantDropped: 1,
			wantReason:  ReasonMissing,
		},
		{
			name:        "out-of-domain value dropped",
			rows:        []RawRecord{{"date": "2020-04-15", "boro": "GOTHAM"}},
			specs:       boroSpec,
			wantDropped: 1,
			wantReason:  ReasonOutOfSet,
		},
		{
			name:     "empty spec list keeps everything with a date",
			rows:     []RawRecord{{"date": "2020-04-15", "boro": "UNKNOWN"}, {"date": "garbage"}},
			specs:    nil,
			wantKept: 1,
		},
		{
			name:     "US date layout accepted",
			rows:     []RawRecord{{"date": "04/15/2020", "boro": "BRONX"}},
			specs:    boroSpec,
			wantKept: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Clean(tt.rows, "date", tt.specs)
			if res.Kept != tt.wantKept {
				t.Errorf("Kept: got %d, want %d", res.Kept, tt.wantKept)
			}
			if len(res.Records) != res.Kept {
				t.Errorf("len(Records)=%d does not match Kept=%d", len(res.Records), res.Kept)
			}
			if tt.wantDropped > 0 && res.Dropped != tt.wantDropped {
				t.Errorf("Dropped: got %d, want %d", res.Dropped, tt.wantDropped)
			}
			if tt.wantReason != "" && res.DropReasons[tt.wantReason] == 0 {
				t.Errorf("DropReasons: expected reason %q, got %v", tt.wantReason, res.DropReasons)
			}
		})
	}
}

func TestClean_DateNormalizedToMidnightUTC(t *testing.T) {
	res := Clean([]RawRecord{{"date": "2020-04-15", "boro": "BRONX"}}, "date", boroSpec)
	if res.Kept != 1 {
		t.Fatalf("Kept: got %d, want 1", res.Kept)
	}
	want := time.Date(2020, 4, 15, 0, 0, 0, 0, time.UTC)
	if !res.Records[0].Date.Equal(want) {
		t.Errorf("Date: got %v, want %v", res.Records[0].Date, want)
	}
}

// Re-cleaning already-clean records must drop nothing further.
func TestClean_Idempotent(t *testing.T) {
	rows := []RawRecord{
		{"date": "2020-04-15", "boro": "BROOKLYN"},
		{"date": "2020-04-20", "boro": "BRONX"},
		{"date": "garbage", "boro": "QUEENS"},
		{"date": "2020-05-01", "boro": "UNKNOWN"},
	}
	first := Clean(rows, "date", boroSpec)

	// Re-express the survivors as raw rows.
	again := make([]RawRecord, 0, len(first.Records))
	for _, rec := range first.Records {
		raw := RawRecord{"date": rec.Date.Format(DateLayout)}
		for k, v := range rec.Fields {
			if k != "date" {
				raw[k] = v
			}
		}
		// Preserve the original raw date column value semantics.
		raw["date"] = rec.Date.Format(DateLayout)
		again = append(again, raw)
	}

	second := Clean(again, "date", boroSpec)
	if second.Dropped != 0 {
		t.Fatalf("re-clean dropped %d rows, want 0 (reasons: %v)", second.Dropped, second.DropReasons)
	}
	if second.Kept != first.Kept {
		t.Fatalf("re-clean kept %d rows, want %d", second.Kept, first.Kept)
	}
	for i := range second.Records {
		if !second.Records[i].Date.Equal(first.Records[i].Date) {
			t.Errorf("record %d: date changed across re-clean", i)
		}
		if second.Records[i].Fields["boro"] != first.Records[i].Fields["boro"] {
			t.Errorf("record %d: boro changed across re-clean", i)
		}
	}
}

func TestNewRecord_RejectsOutOfDomain(t *testing.T) {
	_, err := NewRecord(
		time.Date(2020, 4, 15, 0, 0, 0, 0, time.UTC),
		map[string]string{"boro": "GOTHAM"},
		boroSpec,
	)
	if err == nil {
		t.Fatal("NewRecord: expected error for out-of-domain value, got nil")
	}
}

func TestNewRecord_StripsTimeOfDay(t *testing.T) {
	loc := time.FixedZone("X", -5*3600)
	rec, err := NewRecord(
		time.Date(2020, 4, 15, 23, 45, 1, 0, loc),
		map[string]string{"boro": "BRONX"},
		boroSpec,
	)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	want := time.Date(2020, 4, 15, 0, 0, 0, 0, time.UTC)
	if !rec.Date.Equal(want) {
		t.Errorf("Date: got %v, want %v", rec.Date, want)
	}
}
