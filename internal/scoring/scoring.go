// Package scoring holds the pure point formulas of the price-guessing game.
package scoring

import (
	"math"
	"strconv"
	"strings"
)

const (
	// AccuracyBase is the floor awarded for any correct guess.
	AccuracyBase = 80
	// AccuracyRange is the extra awarded for an exact guess.
	AccuracyRange = 20
	// AccuracyCap is the deviation (in percent) at which the extra reaches zero.
	AccuracyCap = 5.0
	// TurnBonusPerTurn is paid per turn played in the round, including the winning one.
	TurnBonusPerTurn = 5
	// StealBonusPerCredit converts each unused steal at game end.
	StealBonusPerCredit = 5
)

// RoundPoints is the breakdown awarded to the player who wins a round.
type RoundPoints struct {
	Accuracy  int `json:"accuracy"`
	TurnBonus int `json:"turnBonus"`
	Total     int `json:"total"`
}

// AccuracyPoints maps a deviation percentage to [80, 100]. Deviations at or
// beyond AccuracyCap all earn the base.
func AccuracyPoints(deviation float64) int {
	d := math.Max(0, math.Min(deviation, AccuracyCap))
	return int(math.Round(AccuracyBase + AccuracyRange*(1-d/AccuracyCap)))
}

// TurnBonus is 5 points per turn played this round.
func TurnBonus(turns int) int {
	if turns < 0 {
		return 0
	}
	return turns * TurnBonusPerTurn
}

// Score returns the breakdown for a correct guess with the given deviation made
// after turns turns of the current round.
func Score(deviation float64, turns int) RoundPoints {
	p := RoundPoints{
		Accuracy:  AccuracyPoints(deviation),
		TurnBonus: TurnBonus(turns),
	}
	p.Total = p.Accuracy + p.TurnBonus
	return p
}

// EndGameBonus converts unused steal credits into points.
func EndGameBonus(unusedSteals int) int {
	if unusedSteals < 0 {
		return 0
	}
	return unusedSteals * StealBonusPerCredit
}

// Deviation returns |guess-actual| as a percentage of the actual price, which
// is parsed from its display string. An actual price of 0 yields 0.
func Deviation(guess float64, actual string) float64 {
	a := ParsePrice(actual)
	if a == 0 {
		return 0
	}
	return math.Abs(guess-a) * 100 / a
}

// ParsePrice extracts the first number embedded in s, so "100 USD",
// "$12,500" and "EUR 7.5k" (as 7.5) all parse. Unparseable input yields 0.
func ParsePrice(s string) float64 {
	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return 0
	}
	var b strings.Builder
	for _, r := range s[start:] {
		if r == ',' {
			continue // thousands separator
		}
		if !isDigit(r) && r != '.' {
			break
		}
		b.WriteRune(r)
	}
	v, err := strconv.ParseFloat(strings.TrimRight(b.String(), "."), 64)
	if err != nil {
		return 0
	}
	return v
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
