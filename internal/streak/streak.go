package streak

import (
	"maps"
	"slices"

	"github.com/conorfennell/knolrep/internal/clock"
)

// Record is a learner's study streak.
type Record struct {
	Current       int
	Longest       int
	LastStudyDate clock.Date
	StudyDates    DateSet
}

// DateSet is an unordered set of calendar dates.
type DateSet map[clock.Date]struct{}

func (s DateSet) Has(d clock.Date) bool {
	_, ok := s[d]
	return ok
}

// Sorted returns the dates in ascending order.
func (s DateSet) Sorted() []clock.Date {
	return slices.SortedFunc(maps.Keys(s), clock.Date.Compare)
}

// RecordStudy returns r updated for a study session on day on. Repeating a
// day is a no-op. The input record is never modified.
func RecordStudy(r Record, on clock.Date) Record {
	if !r.LastStudyDate.IsZero() && on == r.LastStudyDate {
		return r
	}

	next := Record{
		Current:       r.Current,
		Longest:       r.Longest,
		LastStudyDate: r.LastStudyDate,
		StudyDates:    maps.Clone(r.StudyDates),
	}
	if next.StudyDates == nil {
		next.StudyDates = make(DateSet)
	}
	next.StudyDates[on] = struct{}{}

	switch {
	case !r.LastStudyDate.IsZero() && on.Before(r.LastStudyDate):
		// Earlier days are logged without touching the streak.
		return next
	case !r.LastStudyDate.IsZero() && on == r.LastStudyDate.AddDays(1):
		next.Current++
	default:
		next.Current = 1
	}
	next.LastStudyDate = on
	next.Longest = max(next.Longest, next.Current)
	return next
}

// CurrentAsOf is the streak as it stands on today: zero once a whole day
// has passed without study.
func (r Record) CurrentAsOf(today clock.Date) int {
	if r.LastStudyDate.IsZero() {
		return 0
	}
	if r.LastStudyDate == today || r.LastStudyDate.AddDays(1) == today {
		return r.Current
	}
	return 0
}

// Tracker records study days using the calendar date of an injected clock.
type Tracker struct {
	clock clock.Clock
}

func NewTracker(c clock.Clock) *Tracker {
	return &Tracker{clock: c}
}

func (t *Tracker) Record(r Record) Record {
	return RecordStudy(r, clock.Today(t.clock))
}

func (t *Tracker) Today() clock.Date {
	return clock.Today(t.clock)
}
