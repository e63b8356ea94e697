package sm2

import (
	"math"
	"time"

	"github.com/conorfennell/knolrep/internal/clock"
)

const (
	firstInterval  = 1
	secondInterval = 6
	failInterval   = 1
)

// MaxInterval caps the interval, in days, at roughly a century.
const MaxInterval = 36500

// Schedule is the calculator's output.
type Schedule struct {
	Memory
	NextReviewAt time.Time
}

// Compute applies one review of quality q to m at instant now.
func Compute(q Quality, m Memory, now time.Time) (Schedule, error) {
	if err := q.validate(); err != nil {
		return Schedule{}, err
	}

	next := Memory{EaseFactor: nextEase(m.EaseFactor, q)}

	if !q.Passed() {
		next.Repetitions = 0
		next.Interval = failInterval
	} else {
		next.Repetitions = m.Repetitions + 1
		switch next.Repetitions {
		case 1:
			next.Interval = firstInterval
		case 2:
			next.Interval = secondInterval
		default:
			// Growth uses the interval the card had before this review.
			grown := math.Round(float64(m.Interval) * next.EaseFactor)
			next.Interval = int(min(MaxInterval, max(1, grown)))
		}
	}

	return Schedule{
		Memory:       next,
		NextReviewAt: AddDays(now, next.Interval),
	}, nil
}

// nextEase is EF' = EF + (0.1 - (5-q)(0.08 + (5-q)0.02)), floored at 1.3.
func nextEase(ease float64, q Quality) float64 {
	d := float64(Easy - q)
	return math.Max(MinEaseFactor, ease+(0.1-d*(0.08+d*0.02)))
}

// AddDays moves t forward by whole calendar days, keeping its time of day.
func AddDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// Apply returns the state after a review of quality q at now: the new
// schedule, the review recorded as last, and one more history entry.
func Apply(s ReviewState, q Quality, now time.Time) (ReviewState, error) {
	sched, err := Compute(q, s.Memory, now)
	if err != nil {
		return ReviewState{}, err
	}
	return ReviewState{
		Memory:         sched.Memory,
		NextReviewAt:   sched.NextReviewAt,
		LastReviewedAt: now,
		LastQuality:    q,
		History: s.History.Append(LogEntry{
			At:       now,
			Quality:  q,
			Interval: sched.Interval,
		}),
	}, nil
}

// Calculator runs Compute and Apply against an injected clock.
type Calculator struct {
	clock clock.Clock
}

func NewCalculator(c clock.Clock) *Calculator {
	return &Calculator{clock: c}
}

func (c *Calculator) Compute(q Quality, m Memory) (Schedule, error) {
	return Compute(q, m, c.clock.Now())
}

func (c *Calculator) Apply(s ReviewState, q Quality) (ReviewState, error) {
	return Apply(s, q, c.clock.Now())
}
