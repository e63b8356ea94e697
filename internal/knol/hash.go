package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conorfennell/knolrep/internal/domain"
)

// Normalize concatenates the card's content after cleaning each part.
// Each field is lowercased, trimmed and given unix line endings, and the
// fields are joined with newlines so adjacent words never merge.
// Collection is excluded so a card keeps its id, and its review history,
// when its file moves to another source.
func Normalize(card domain.Card) string {
	parts := []string{card.Question, card.Answer, card.Context}
	for i, p := range parts {
		p = strings.ReplaceAll(p, "\r\n", "\n")
		parts[i] = strings.TrimSpace(strings.ToLower(p))
	}
	return strings.Join(parts, "\n")
}

// Hash returns the hex SHA-256 of the normalized card. It is the card id
// used by the scheduler.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:])
}

// ShortHash is the prefix shown to people; Resolve in storage accepts it.
func ShortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
