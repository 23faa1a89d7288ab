// Package rating holds the Elo computation shared by global and per-theme ratings.
package rating

import "math"

const (
	// ProvisionalGames is the number of games played below which a rating converges fast.
	ProvisionalGames = 30
	// MasterThreshold is the rating from which established ratings move slowly.
	MasterThreshold = 2000

	Win  = 1.0
	Loss = 0.0
)

// ExpectedScore is the probability that self beats opponent.
func ExpectedScore(self, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-self)/400))
}

// KFactor returns the update step for a rating.
func KFactor(gamesPlayed, value int) int {
	if gamesPlayed < ProvisionalGames {
		return 40
	}
	if value < MasterThreshold {
		return 20
	}
	return 10
}

// Apply returns the rating value and games played after one outcome against opponent.
// score must be Win or Loss.
func Apply(value, gamesPlayed, opponent int, score float64) (newValue, newGames int) {
	k := KFactor(gamesPlayed, value)
	delta := float64(k) * (score - ExpectedScore(value, opponent))
	return int(math.Round(float64(value) + delta)), gamesPlayed + 1
}

// Score converts a solved flag to an outcome.
func Score(solved bool) float64 {
	if solved {
		return Win
	}
	return Loss
}
