package deviation

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func pts(counts ...float64) []Point {
	out := make([]Point, len(counts))
	for i, c := range counts {
		out[i] = Point{Key: key(i), Count: c}
	}
	return out
}

func key(i int) string {
	return string(rune('a' + i))
}

func TestRank_WindowExclusion(t *testing.T) {
	// 8 points, window 6: only indices 6 and 7 have enough history.
	got, err := Rank(pts(1, 2, 3, 4, 5, 6, 7, 8), 6)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	positions := map[int]bool{got[0].Position: true, got[1].Position: true}
	if !positions[6] || !positions[7] {
		t.Errorf("positions: got %v, want {6, 7}", positions)
	}
}

func TestRank_LaggingAverageExcludesCurrent(t *testing.T) {
	// window 2, index 2: average of counts[0:2] = (2+4)/2 = 3, not
	// including the current count 9.
	got, err := Rank(pts(2, 4, 9), 2)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len: got %d, want 1", len(got))
	}
	if !almostEqual(got[0].LaggingAverage, 3) {
		t.Errorf("LaggingAverage: got %v, want 3", got[0].LaggingAverage)
	}
	if !almostEqual(got[0].RelativeDeviation, 2) {
		t.Errorf("RelativeDeviation: got %v, want 2", got[0].RelativeDeviation)
	}
}

func TestRank_ZeroAverageExcluded(t *testing.T) {
	// Index 2 has lagging average 0: excluded, not a crash and not +Inf.
	got, err := Rank(pts(0, 0, 5, 5), 2)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len: got %d, want 1", len(got))
	}
	if got[0].Position != 3 {
		t.Errorf("Position: got %d, want 3", got[0].Position)
	}
	// avg at index 3 is (0+5)/2 = 2.5 → deviation 5/2.5 - 1 = 1.
	if !almostEqual(got[0].RelativeDeviation, 1) {
		t.Errorf("RelativeDeviation: got %v, want 1", got[0].RelativeDeviation)
	}
}

func TestRank_DescendingOrder(t *testing.T) {
	got, err := Rank(pts(2, 2, 2, 8, 1, 6), 2)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].RelativeDeviation > got[i-1].RelativeDeviation {
			t.Fatalf("output not descending at %d: %v then %v",
				i, got[i-1].RelativeDeviation, got[i].RelativeDeviation)
		}
	}
}

// Two buckets with identical deviations must keep chronological order.
func TestRank_TieBreakChronological(t *testing.T) {
	// window 1: index 1 deviation = 4/2-1 = 1, index 2 deviation = 8/4-1 = 1.
	got, err := Rank(pts(2, 4, 8), 1)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	if !almostEqual(got[0].RelativeDeviation, got[1].RelativeDeviation) {
		t.Fatalf("expected tied deviations, got %v and %v",
			got[0].RelativeDeviation, got[1].RelativeDeviation)
	}
	if got[0].Position != 1 || got[1].Position != 2 {
		t.Errorf("tie order: got positions [%d %d], want [1 2]",
			got[0].Position, got[1].Position)
	}
}

func TestRank_NegativeDeviation(t *testing.T) {
	// A quiet bucket after a busy window ranks below zero.
	got, err := Rank(pts(10, 10, 1), 2)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len: got %d, want 1", len(got))
	}
	if !almostEqual(got[0].RelativeDeviation, 1.0/10-1) {
		t.Errorf("RelativeDeviation: got %v, want %v", got[0].RelativeDeviation, 1.0/10-1)
	}
}

func TestRank_ShortInputs(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		window int
	}{
		{"empty input", nil, 3},
		{"input shorter than window", pts(1, 2), 6},
		{"input exactly window length", pts(1, 2, 3), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rank(tt.points, tt.window)
			if err != nil {
				t.Fatalf("Rank: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("len: got %d, want 0", len(got))
			}
		})
	}
}

func TestRank_InvalidWindow(t *testing.T) {
	for _, w := range []int{0, -1} {
		if _, err := Rank(pts(1, 2, 3), w); !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("window %d: got err %v, want ErrInvalidWindow", w, err)
		}
	}
}
