package sm2

import (
	"iter"
	"slices"
	"time"
)

// LogEntry is one submitted review.
type LogEntry struct {
	At       time.Time
	Quality  Quality
	Interval int
}

// History is an append-only review log. A History value is never modified
// after construction: Append returns a new log and leaves the receiver as is.
type History struct {
	entries []LogEntry
}

// NewHistory builds a log from entries in chronological order.
func NewHistory(entries ...LogEntry) History {
	return History{entries: slices.Clone(entries)}
}

func (h History) Len() int { return len(h.entries) }

func (h History) At(i int) LogEntry { return h.entries[i] }

// Last returns the most recent entry.
func (h History) Last() (LogEntry, bool) {
	if len(h.entries) == 0 {
		return LogEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Append returns a log with e added at the end.
func (h History) Append(e LogEntry) History {
	return History{entries: append(slices.Clip(h.entries), e)}
}

// All yields entries oldest first.
func (h History) All() iter.Seq2[int, LogEntry] {
	return func(yield func(int, LogEntry) bool) {
		for i, e := range h.entries {
			if !yield(i, e) {
				return
			}
		}
	}
}

// Since yields the entries from index n on. Stores use it to persist only
// the part of a log they have not written yet.
func (h History) Since(n int) []LogEntry {
	if n >= len(h.entries) {
		return nil
	}
	return slices.Clone(h.entries[n:])
}

// Extends reports whether h starts with every entry of prev, in order.
func (h History) Extends(prev History) bool {
	if len(prev.entries) > len(h.entries) {
		return false
	}
	for i, e := range prev.entries {
		o := h.entries[i]
		if !o.At.Equal(e.At) || o.Quality != e.Quality || o.Interval != e.Interval {
			return false
		}
	}
	return true
}
