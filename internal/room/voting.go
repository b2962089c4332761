package room

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/pricecheck/internal/models"
)

// Randomizer is the source of randomness for queue shuffles and vote
// tie-breaks. *math/rand.Rand satisfies it.
type Randomizer interface {
	Shuffler
	Intn(n int) int
}

// VoteSession tallies one vote per player over a fixed candidate list.
type VoteSession struct {
	candidates []models.Item
	votes      map[uuid.UUID]int
}

// NewVoteSession opens a tally over items.
func NewVoteSession(items []models.Item) *VoteSession {
	return &VoteSession{
		candidates: items,
		votes:      make(map[uuid.UUID]int),
	}
}

// Cast records a vote. A second vote from the same player replaces the first.
func (v *VoteSession) Cast(playerID uuid.UUID, idx int) error {
	if idx < 0 || idx >= len(v.candidates) {
		return ErrInvalidVote
	}
	v.votes[playerID] = idx
	return nil
}

// Remove discards the vote of a departed player.
func (v *VoteSession) Remove(playerID uuid.UUID) {
	delete(v.votes, playerID)
}

// Voted is the number of players who have voted.
func (v *VoteSession) Voted() int { return len(v.votes) }

// Tally returns the vote count per candidate index.
func (v *VoteSession) Tally() []int {
	tally := make([]int, len(v.candidates))
	for _, idx := range v.votes {
		tally[idx]++
	}
	return tally
}

// Candidates returns the price-free views of the candidates.
func (v *VoteSession) Candidates() []models.Candidate {
	out := make([]models.Candidate, len(v.candidates))
	for i, it := range v.candidates {
		out[i] = it.Candidate(i)
	}
	return out
}

// Item returns the candidate at idx.
func (v *VoteSession) Item(idx int) models.Item { return v.candidates[idx] }

// Winner picks the most voted candidate, uniformly at random among ties
// (including the case where nobody voted). ok is false when there are no
// candidates.
func (v *VoteSession) Winner(rng Randomizer) (idx int, tie bool, ok bool) {
	return PickWinner(v.Tally(), rng)
}

// PickWinner returns the index of the maximum count in tally, breaking ties
// uniformly at random.
func PickWinner(tally []int, rng Randomizer) (idx int, tie bool, ok bool) {
	if len(tally) == 0 {
		return 0, false, false
	}
	best := -1
	var leaders []int
	for i, n := range tally {
		switch {
		case n > best:
			best = n
			leaders = append(leaders[:0], i)
		case n == best:
			leaders = append(leaders, i)
		}
	}
	if len(leaders) == 1 {
		return leaders[0], false, true
	}
	return leaders[rng.Intn(len(leaders))], true, true
}
