package domain

// Card represents a single question-answer-context entry.
type Card struct {
	Question string
	Answer   string
	Context  string
	Hash     string
	// Collection is the name of the source the card was read from.
	Collection string
}

// StateKey identifies one review state: a card as seen by one learner.
type StateKey struct {
	LearnerID string
	CardHash  string
}

// Learner is an opaque study identity.
type Learner struct {
	ID   string
	Name string
}
