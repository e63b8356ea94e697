package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/conorfennell/knolrep/internal/clock"
	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/sm2"
	"github.com/conorfennell/knolrep/internal/storage"
	"github.com/conorfennell/knolrep/internal/streak"
)

// ErrStateNotFound is returned when a learner has no review state for a
// card. Missing state is never replaced by a default.
var ErrStateNotFound = errors.New("review: state not found")

// Store holds review states and streaks. Implementations must run each
// Update* function as one atomic read-modify-write per key.
type Store interface {
	CreateState(ctx context.Context, key domain.StateKey, st sm2.ReviewState) error
	LoadState(ctx context.Context, key domain.StateKey) (sm2.ReviewState, error)
	UpdateState(ctx context.Context, key domain.StateKey, fn func(sm2.ReviewState) (sm2.ReviewState, error)) (sm2.ReviewState, error)
	ListStates(ctx context.Context, learnerID string) ([]sm2.Card, error)
	LoadStreak(ctx context.Context, learnerID string) (streak.Record, error)
	UpdateStreak(ctx context.Context, learnerID string, fn func(streak.Record) streak.Record) (streak.Record, error)
}

// Service applies reviews for learners and builds study batches.
type Service struct {
	store   Store
	clock   clock.Clock
	tracker *streak.Tracker
	log     *slog.Logger
}

func NewService(store Store, c clock.Clock, log *slog.Logger) *Service {
	return &Service{
		store:   store,
		clock:   c,
		tracker: streak.NewTracker(c),
		log:     log,
	}
}

// Introduce gives a learner a fresh review state for a card, due now.
// Introducing a card twice returns storage.ErrExists.
func (s *Service) Introduce(ctx context.Context, key domain.StateKey) (sm2.ReviewState, error) {
	st := sm2.NewState(s.clock.Now())
	if err := s.store.CreateState(ctx, key, st); err != nil {
		return sm2.ReviewState{}, err
	}
	s.log.Debug("introduced card", "learner", key.LearnerID, "card", key.CardHash)
	return st, nil
}

// Submit records a review of quality q and returns the new state. The
// learner's streak is extended for today's date.
func (s *Service) Submit(ctx context.Context, key domain.StateKey, q sm2.Quality) (sm2.ReviewState, error) {
	if !q.Valid() {
		return sm2.ReviewState{}, fmt.Errorf("%w: %d", sm2.ErrInvalidQuality, int(q))
	}

	// One instant dates both the review and the study day.
	now := s.clock.Now()
	st, err := s.store.UpdateState(ctx, key, func(current sm2.ReviewState) (sm2.ReviewState, error) {
		return sm2.Apply(current, q, now)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return sm2.ReviewState{}, fmt.Errorf("%w: learner %s, card %s", ErrStateNotFound, key.LearnerID, key.CardHash)
		}
		return sm2.ReviewState{}, err
	}

	day := clock.DateOf(now)
	if _, err := s.store.UpdateStreak(ctx, key.LearnerID, func(r streak.Record) streak.Record {
		return streak.RecordStudy(r, day)
	}); err != nil {
		return st, fmt.Errorf("review saved but streak update failed: %w", err)
	}

	s.log.Info("review recorded",
		"learner", key.LearnerID,
		"card", key.CardHash,
		"quality", int(q),
		"interval", st.Interval,
		"ease", st.EaseFactor,
		"next_review_at", st.NextReviewAt,
	)
	return st, nil
}

// State returns the learner's review state for a card.
func (s *Service) State(ctx context.Context, key domain.StateKey) (sm2.ReviewState, error) {
	st, err := s.store.LoadState(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return sm2.ReviewState{}, fmt.Errorf("%w: learner %s, card %s", ErrStateNotFound, key.LearnerID, key.CardHash)
	}
	return st, err
}

// Due returns the ids of the learner's due cards, most overdue first. An
// empty collection means every collection; limit <= 0 means no limit.
func (s *Service) Due(ctx context.Context, learnerID, collection string, limit int) ([]string, error) {
	cards, err := s.DueCards(ctx, learnerID, collection, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids, nil
}

// DueCards is Due with the review state of each card.
func (s *Service) DueCards(ctx context.Context, learnerID, collection string, limit int) ([]sm2.Card, error) {
	cards, err := s.store.ListStates(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	var scope sm2.Scope
	if collection != "" {
		scope = sm2.InCollection(collection)
	}

	byID := make(map[string]sm2.Card, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}
	var due []sm2.Card
	for id := range sm2.SelectDue(cards, s.clock.Now(), scope) {
		due = append(due, byID[id])
		if limit > 0 && len(due) == limit {
			break
		}
	}
	return due, nil
}

// Streak returns the learner's streak record together with the streak
// length as it stands today.
func (s *Service) Streak(ctx context.Context, learnerID string) (streak.Record, int, error) {
	r, err := s.store.LoadStreak(ctx, learnerID)
	if err != nil {
		return streak.Record{}, 0, err
	}
	return r, r.CurrentAsOf(s.tracker.Today()), nil
}

// Stats summarizes a learner's cards.
type Stats struct {
	Total    int
	New      int // never reviewed
	Learning int // reviewed, not yet mature
	Mature   int
	Due      int
}

// Stats counts the learner's cards by maturity. Mature is the estimate of
// how many cards the learner knows durably.
func (s *Service) Stats(ctx context.Context, learnerID, collection string) (Stats, error) {
	cards, err := s.store.ListStates(ctx, learnerID)
	if err != nil {
		return Stats{}, err
	}
	if collection != "" {
		cards = slices.DeleteFunc(cards, func(c sm2.Card) bool { return c.Collection != collection })
	}

	now := s.clock.Now()
	st := Stats{Total: len(cards)}
	for _, c := range cards {
		switch {
		case !c.State.Reviewed():
			st.New++
		case c.State.IsMature():
			st.Mature++
		default:
			st.Learning++
		}
		if c.State.IsDue(now) {
			st.Due++
		}
	}
	return st, nil
}
