package sm2

// MaturityThreshold is the interval, in days, at which a card counts as
// durably learned.
const MaturityThreshold = 21

func IsMature(interval int) bool {
	return interval >= MaturityThreshold
}
