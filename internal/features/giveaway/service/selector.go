package service

import (
	"giveaway-bot-backend/internal/utils/random"
)

// SelectWinners draws up to min(count, len(participants)) distinct winners
// uniformly without replacement. The participant slice is never modified.
// A comparator-based "random sort" is deliberately not used here: it is
// statistically biased.
func SelectWinners(participants []string, count int) ([]string, error) {
	return random.Sample(participants, count)
}
