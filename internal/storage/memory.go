package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/sm2"
	"github.com/conorfennell/knolrep/internal/streak"
)

// Memory is an in-process review state store. Every update runs under one
// lock, so read-modify-write on a key can never interleave with another.
type Memory struct {
	mu          sync.Mutex
	states      map[domain.StateKey]sm2.ReviewState
	collections map[string]string
	streaks     map[string]streak.Record
}

func NewMemory() *Memory {
	return &Memory{
		states:      make(map[domain.StateKey]sm2.ReviewState),
		collections: make(map[string]string),
		streaks:     make(map[string]streak.Record),
	}
}

// PutCard records which collection a card hash belongs to.
func (m *Memory) PutCard(card domain.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[card.Hash] = card.Collection
}

// DeleteCard drops a card and every review state attached to it.
func (m *Memory) DeleteCard(hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, hash)
	for key := range m.states {
		if key.CardHash == hash {
			delete(m.states, key)
		}
	}
}

func (m *Memory) CreateState(_ context.Context, key domain.StateKey, st sm2.ReviewState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[key]; ok {
		return fmt.Errorf("review state %s/%s: %w", key.LearnerID, key.CardHash, ErrExists)
	}
	m.states[key] = st
	return nil
}

func (m *Memory) LoadState(_ context.Context, key domain.StateKey) (sm2.ReviewState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[key]
	if !ok {
		return sm2.ReviewState{}, fmt.Errorf("review state %s/%s: %w", key.LearnerID, key.CardHash, ErrNotFound)
	}
	return st, nil
}

func (m *Memory) UpdateState(_ context.Context, key domain.StateKey, fn func(sm2.ReviewState) (sm2.ReviewState, error)) (sm2.ReviewState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.states[key]
	if !ok {
		return sm2.ReviewState{}, fmt.Errorf("review state %s/%s: %w", key.LearnerID, key.CardHash, ErrNotFound)
	}
	next, err := fn(current)
	if err != nil {
		return sm2.ReviewState{}, err
	}
	if !next.History.Extends(current.History) {
		return sm2.ReviewState{}, fmt.Errorf("review state %s/%s: %w", key.LearnerID, key.CardHash, ErrHistoryRewritten)
	}
	m.states[key] = next
	return next, nil
}

func (m *Memory) ListStates(_ context.Context, learnerID string) ([]sm2.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cards []sm2.Card
	for key, st := range m.states {
		if key.LearnerID != learnerID {
			continue
		}
		cards = append(cards, sm2.Card{ID: key.CardHash, Collection: m.collections[key.CardHash], State: st})
	}
	return cards, nil
}

func (m *Memory) LoadStreak(_ context.Context, learnerID string) (streak.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaks[learnerID], nil
}

func (m *Memory) UpdateStreak(_ context.Context, learnerID string, fn func(streak.Record) streak.Record) (streak.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := fn(m.streaks[learnerID])
	m.streaks[learnerID] = next
	return next, nil
}
