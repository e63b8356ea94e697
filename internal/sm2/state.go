package sm2

import "time"

const (
	InitialEaseFactor = 2.5
	MinEaseFactor     = 1.3
)

// Memory is the part of a review state the calculator reads and writes.
type Memory struct {
	EaseFactor  float64
	Interval    int // days
	Repetitions int // consecutive successful reviews
}

// ReviewState is the scheduling state of one card for one learner.
type ReviewState struct {
	Memory
	NextReviewAt time.Time

	// LastReviewedAt and LastQuality are unset until the first review.
	LastReviewedAt time.Time
	LastQuality    Quality

	History History
}

// NewState returns the state of a card just introduced at now. It is due
// immediately.
func NewState(now time.Time) ReviewState {
	return ReviewState{
		Memory: Memory{
			EaseFactor: InitialEaseFactor,
		},
		NextReviewAt: now,
	}
}

// Reviewed reports whether the card has been reviewed at least once.
func (s ReviewState) Reviewed() bool { return !s.LastReviewedAt.IsZero() }

func (s ReviewState) IsMature() bool { return IsMature(s.Interval) }

// IsDue reports whether the card should be shown at asOf.
func (s ReviewState) IsDue(asOf time.Time) bool { return !s.NextReviewAt.After(asOf) }

// Card pairs a review state with the card it belongs to.
type Card struct {
	ID         string
	Collection string
	State      ReviewState
}
