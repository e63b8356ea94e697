package streak

import (
	"testing"
	"time"

	"github.com/conorfennell/knolrep/internal/clock"
)

func day(d int) clock.Date {
	return clock.Date{Year: 2025, Month: time.June, Day: d}
}

func TestRecordStudy(t *testing.T) {
	testCases := []struct {
		name        string
		in          Record
		on          clock.Date
		wantCurrent int
		wantLongest int
		wantLast    clock.Date
	}{
		{
			name:        "first ever study",
			in:          Record{},
			on:          day(10),
			wantCurrent: 1,
			wantLongest: 1,
			wantLast:    day(10),
		},
		{
			name:        "next day extends the streak",
			in:          Record{Current: 3, Longest: 3, LastStudyDate: day(10)},
			on:          day(11),
			wantCurrent: 4,
			wantLongest: 4,
			wantLast:    day(11),
		},
		{
			name:        "same day is a no-op",
			in:          Record{Current: 3, Longest: 5, LastStudyDate: day(10)},
			on:          day(10),
			wantCurrent: 3,
			wantLongest: 5,
			wantLast:    day(10),
		},
		{
			name:        "a missed day resets to one",
			in:          Record{Current: 7, Longest: 7, LastStudyDate: day(10)},
			on:          day(12),
			wantCurrent: 1,
			wantLongest: 7,
			wantLast:    day(12),
		},
		{
			name:        "extending below the record keeps longest",
			in:          Record{Current: 1, Longest: 9, LastStudyDate: day(10)},
			on:          day(11),
			wantCurrent: 2,
			wantLongest: 9,
			wantLast:    day(11),
		},
		{
			name:        "earlier day leaves the streak alone",
			in:          Record{Current: 4, Longest: 4, LastStudyDate: day(10)},
			on:          day(2),
			wantCurrent: 4,
			wantLongest: 4,
			wantLast:    day(10),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := RecordStudy(tc.in, tc.on)
			if got.Current != tc.wantCurrent {
				t.Errorf("Expected current %d, but got %d", tc.wantCurrent, got.Current)
			}
			if got.Longest != tc.wantLongest {
				t.Errorf("Expected longest %d, but got %d", tc.wantLongest, got.Longest)
			}
			if got.LastStudyDate != tc.wantLast {
				t.Errorf("Expected last study date %v, but got %v", tc.wantLast, got.LastStudyDate)
			}
			if got.Longest < got.Current || got.Longest < tc.in.Longest {
				t.Errorf("Longest %d must cover current %d and never drop below %d", got.Longest, got.Current, tc.in.Longest)
			}
			if !got.StudyDates.Has(tc.on) && tc.in.LastStudyDate != tc.on {
				t.Errorf("Expected %v in the study dates", tc.on)
			}
		})
	}
}

func TestRecordStudyIdempotentAndPure(t *testing.T) {
	r := RecordStudy(Record{}, day(1))
	r = RecordStudy(r, day(2))

	again := RecordStudy(r, day(2))
	again = RecordStudy(again, day(2))
	if again.Current != 2 || len(again.StudyDates) != 2 {
		t.Errorf("Expected repeated same-day calls to change nothing, got %+v", again)
	}

	next := RecordStudy(r, day(3))
	if len(r.StudyDates) != 2 {
		t.Errorf("RecordStudy modified its input's study dates: %v", r.StudyDates)
	}
	if next.Current != 3 {
		t.Errorf("Expected a streak of 3, got %d", next.Current)
	}
	if got := next.StudyDates.Sorted(); len(got) != 3 || got[0] != day(1) || got[2] != day(3) {
		t.Errorf("Sorted() = %v", got)
	}
}

func TestCurrentAsOf(t *testing.T) {
	r := Record{Current: 5, Longest: 5, LastStudyDate: day(10)}
	if got := r.CurrentAsOf(day(10)); got != 5 {
		t.Errorf("same day: got %d", got)
	}
	if got := r.CurrentAsOf(day(11)); got != 5 {
		t.Errorf("next day, not yet studied: got %d", got)
	}
	if got := r.CurrentAsOf(day(12)); got != 0 {
		t.Errorf("after a missed day: got %d", got)
	}
	if got := (Record{}).CurrentAsOf(day(1)); got != 0 {
		t.Errorf("empty record: got %d", got)
	}
}

func TestTrackerUsesClockLocation(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*60*60)
	// 02:00 UTC on the 11th is still the 10th at UTC-8.
	c := clock.Fixed(time.Date(2025, 6, 11, 2, 0, 0, 0, time.UTC).In(loc))
	got := NewTracker(c).Record(Record{Current: 2, Longest: 2, LastStudyDate: day(9)})
	if got.LastStudyDate != day(10) || got.Current != 3 {
		t.Errorf("Expected the streak to extend on the 10th, got %+v", got)
	}
}
