package sm2

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/conorfennell/knolrep/internal/clock"
)

var t0 = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

const epsilon = 1e-9

func TestComputeScenarios(t *testing.T) {
	testCases := []struct {
		name    string
		quality Quality
		in      Memory
		want    Memory
	}{
		{
			name:    "Good on the third success keeps ease and multiplies the old interval",
			quality: Good,
			in:      Memory{EaseFactor: 2.5, Interval: 6, Repetitions: 2},
			want:    Memory{EaseFactor: 2.5, Interval: 15, Repetitions: 3},
		},
		{
			name:    "Hard on the third success lowers ease before multiplying",
			quality: Hard,
			in:      Memory{EaseFactor: 2.5, Interval: 6, Repetitions: 2},
			want:    Memory{EaseFactor: 2.36, Interval: 14, Repetitions: 3},
		},
		{
			name:    "Again on a new card",
			quality: Again,
			in:      Memory{EaseFactor: 2.5, Interval: 0, Repetitions: 0},
			want:    Memory{EaseFactor: 1.7, Interval: 1, Repetitions: 0},
		},
		{
			name:    "First success",
			quality: Easy,
			in:      Memory{EaseFactor: 2.5},
			want:    Memory{EaseFactor: 2.6, Interval: 1, Repetitions: 1},
		},
		{
			name:    "Second success",
			quality: Good,
			in:      Memory{EaseFactor: 2.5, Interval: 1, Repetitions: 1},
			want:    Memory{EaseFactor: 2.5, Interval: 6, Repetitions: 2},
		},
		{
			name:    "Failure on a mature card resets the streak",
			quality: Familiar,
			in:      Memory{EaseFactor: 2.2, Interval: 40, Repetitions: 6},
			want:    Memory{EaseFactor: 1.88, Interval: 1, Repetitions: 0},
		},
		{
			name:    "Ease is floored at 1.3",
			quality: Again,
			in:      Memory{EaseFactor: 1.4, Interval: 10, Repetitions: 4},
			want:    Memory{EaseFactor: 1.3, Interval: 1, Repetitions: 0},
		},
		{
			name:    "Rounding is half away from zero",
			quality: Good,
			in:      Memory{EaseFactor: 2.5, Interval: 7, Repetitions: 3},
			want:    Memory{EaseFactor: 2.5, Interval: 18, Repetitions: 4},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compute(tc.quality, tc.in, t0)
			if err != nil {
				t.Fatalf("Compute() returned an unexpected error: %v", err)
			}
			if math.Abs(got.EaseFactor-tc.want.EaseFactor) > epsilon {
				t.Errorf("Expected ease %.4f, but got %.4f", tc.want.EaseFactor, got.EaseFactor)
			}
			if got.Interval != tc.want.Interval {
				t.Errorf("Expected interval %d, but got %d", tc.want.Interval, got.Interval)
			}
			if got.Repetitions != tc.want.Repetitions {
				t.Errorf("Expected repetitions %d, but got %d", tc.want.Repetitions, got.Repetitions)
			}
			if want := t0.AddDate(0, 0, tc.want.Interval); !got.NextReviewAt.Equal(want) {
				t.Errorf("Expected next review at %v, but got %v", want, got.NextReviewAt)
			}
		})
	}
}

func TestComputeRejectsInvalidQuality(t *testing.T) {
	for _, q := range []Quality{-1, 6, 100} {
		_, err := Compute(q, Memory{EaseFactor: InitialEaseFactor}, t0)
		if !errors.Is(err, ErrInvalidQuality) {
			t.Errorf("Compute(%d): expected ErrInvalidQuality, got %v", q, err)
		}
	}
}

func TestComputeProperties(t *testing.T) {
	eases := []float64{1.3, 1.31, 1.5, 1.7, 2.0, 2.5, 3.1}
	intervals := []int{0, 1, 6, 15, 100}
	for q := Again; q <= Easy; q++ {
		for _, ease := range eases {
			for _, interval := range intervals {
				for reps := 0; reps < 5; reps++ {
					in := Memory{EaseFactor: ease, Interval: interval, Repetitions: reps}
					got, err := Compute(q, in, t0)
					if err != nil {
						t.Fatalf("Compute(%d, %+v): %v", q, in, err)
					}
					if got.EaseFactor < MinEaseFactor {
						t.Errorf("Compute(%d, %+v): ease %.4f below floor", q, in, got.EaseFactor)
					}
					if !q.Passed() && (got.Repetitions != 0 || got.Interval != 1) {
						t.Errorf("Compute(%d, %+v): failure gave %+v", q, in, got.Memory)
					}
					if q.Passed() && got.Interval < 1 {
						t.Errorf("Compute(%d, %+v): success gave interval %d", q, in, got.Interval)
					}
					again, _ := Compute(q, in, t0)
					if again != got {
						t.Errorf("Compute(%d, %+v) is not deterministic: %+v vs %+v", q, in, got, again)
					}
				}
			}
		}
	}
}

func TestComputeCapsHugeIntervals(t *testing.T) {
	testCases := []struct {
		interval int
		want     int
	}{
		{1 << 62, MaxInterval},
		{MaxInterval, MaxInterval},
		{20000, MaxInterval},
		{10000, 26000},
	}
	for _, tc := range testCases {
		in := Memory{EaseFactor: InitialEaseFactor, Interval: tc.interval, Repetitions: 5}
		got, err := Compute(Easy, in, t0)
		if err != nil {
			t.Fatalf("Compute(Easy, %+v): %v", in, err)
		}
		if got.Interval != tc.want {
			t.Errorf("Compute(Easy, %+v) interval = %d, want %d", in, got.Interval, tc.want)
		}
	}
}

func TestNextReviewKeepsTimeOfDay(t *testing.T) {
	// Crosses a DST change; calendar days, not 24h multiples.
	loc, err := time.LoadLocation("Europe/Dublin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2025, 3, 28, 9, 0, 0, 0, loc)
	got, err := Compute(Good, Memory{EaseFactor: 2.5, Interval: 1, Repetitions: 1}, now)
	if err != nil {
		t.Fatalf("Compute() returned an unexpected error: %v", err)
	}
	if h, m, _ := got.NextReviewAt.Clock(); h != 9 || m != 0 {
		t.Errorf("Expected next review at 09:00, but got %v", got.NextReviewAt)
	}
	if got.NextReviewAt.Day() != 3 || got.NextReviewAt.Month() != time.April {
		t.Errorf("Expected next review on April 3, but got %v", got.NextReviewAt)
	}
}

func TestApply(t *testing.T) {
	state := NewState(t0)
	if !state.IsDue(t0) {
		t.Fatal("Expected a new state to be due immediately")
	}
	if state.Reviewed() {
		t.Fatal("Expected a new state to be unreviewed")
	}

	first, err := Apply(state, Good, t0)
	if err != nil {
		t.Fatalf("Apply() returned an unexpected error: %v", err)
	}
	later := t0.AddDate(0, 0, 1)
	second, err := Apply(first, Again, later)
	if err != nil {
		t.Fatalf("Apply() returned an unexpected error: %v", err)
	}

	if !second.LastReviewedAt.Equal(later) || second.LastQuality != Again {
		t.Errorf("Expected last review (%v, Again), got (%v, %d)", later, second.LastReviewedAt, second.LastQuality)
	}
	if !second.NextReviewAt.Equal(AddDays(second.LastReviewedAt, second.Interval)) {
		t.Errorf("Expected next review = last review + interval days, got %v", second.NextReviewAt)
	}
	if second.History.Len() != 2 {
		t.Fatalf("Expected 2 history entries, got %d", second.History.Len())
	}
	if first.History.Len() != 1 || state.History.Len() != 0 {
		t.Errorf("Apply must not alter earlier histories: %d, %d", first.History.Len(), state.History.Len())
	}
	last, _ := second.History.Last()
	if last.Quality != Again || last.Interval != 1 {
		t.Errorf("Unexpected last history entry %+v", last)
	}

	if _, err := Apply(second, 7, later); !errors.Is(err, ErrInvalidQuality) {
		t.Errorf("Expected ErrInvalidQuality, got %v", err)
	}
}

func TestCalculatorUsesInjectedClock(t *testing.T) {
	calc := NewCalculator(clock.Fixed(t0))
	got, err := calc.Compute(Good, Memory{EaseFactor: 2.5})
	if err != nil {
		t.Fatalf("Compute() returned an unexpected error: %v", err)
	}
	if !got.NextReviewAt.Equal(t0.AddDate(0, 0, 1)) {
		t.Errorf("Expected next review one day after the injected now, got %v", got.NextReviewAt)
	}
}

func TestParseQuality(t *testing.T) {
	testCases := []struct {
		in      string
		want    Quality
		wantErr bool
	}{
		{"0", Again, false},
		{"5", Easy, false},
		{" Good ", Good, false},
		{"hard", Hard, false},
		{"6", 0, true},
		{"-1", 0, true},
		{"meh", 0, true},
	}
	for _, tc := range testCases {
		got, err := ParseQuality(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidQuality) {
				t.Errorf("ParseQuality(%q): expected ErrInvalidQuality, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseQuality(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
	}
}
