package sm2

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidQuality is returned for any rating outside [0,5].
var ErrInvalidQuality = errors.New("sm2: invalid quality")

// Quality is the learner's self-reported recall grade.
type Quality int

const (
	Again     Quality = 0 // complete blackout
	Incorrect Quality = 1 // wrong, but the answer felt familiar once shown
	Familiar  Quality = 2 // wrong, but the answer seemed easy to recall
	Hard      Quality = 3 // correct with serious difficulty
	Good      Quality = 4 // correct after hesitation
	Easy      Quality = 5 // perfect, effortless recall
)

// PassingQuality is the lowest rating that counts as a successful recall.
const PassingQuality = Hard

var qualityNames = map[string]Quality{
	"again":     Again,
	"incorrect": Incorrect,
	"familiar":  Familiar,
	"hard":      Hard,
	"good":      Good,
	"easy":      Easy,
}

func (q Quality) Valid() bool { return q >= Again && q <= Easy }

func (q Quality) Passed() bool { return q >= PassingQuality }

func (q Quality) validate() error {
	if !q.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}
	return nil
}

// ParseQuality accepts either a digit 0-5 or one of the rating names.
func ParseQuality(s string) (Quality, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if q, ok := qualityNames[s]; ok {
		return q, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuality, s)
	}
	q := Quality(n)
	return q, q.validate()
}
