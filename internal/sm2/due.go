package sm2

import (
	"cmp"
	"iter"
	"slices"
	"time"
)

// Scope restricts due selection. A nil Scope accepts every card.
type Scope func(Card) bool

// InCollection scopes selection to one collection.
func InCollection(name string) Scope {
	return func(c Card) bool { return c.Collection == name }
}

// SelectDue yields the ids of cards due at asOf, earliest first with ties
// broken by id. Nothing is evaluated until the sequence is ranged over, and
// every range works on its own copy, so the sequence can be replayed and
// cards is never modified.
func SelectDue(cards []Card, asOf time.Time, scope Scope) iter.Seq[string] {
	return func(yield func(string) bool) {
		due := make([]Card, 0, len(cards))
		for _, c := range cards {
			if !c.State.IsDue(asOf) {
				continue
			}
			if scope != nil && !scope(c) {
				continue
			}
			due = append(due, c)
		}

		slices.SortFunc(due, func(a, b Card) int {
			if n := a.State.NextReviewAt.Compare(b.State.NextReviewAt); n != 0 {
				return n
			}
			return cmp.Compare(a.ID, b.ID)
		})

		for _, c := range due {
			if !yield(c.ID) {
				return
			}
		}
	}
}
