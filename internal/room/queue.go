package room

import "github.com/google/uuid"

// Shuffler is satisfied by *math/rand.Rand.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// TurnQueue is the rotating order in which players take turns. Initialize,
// RotateForNextRound, Advance and Steal (with its Resume) are the only
// operations that reorder it; Append, Remove and Replace only keep it in step
// with room membership.
type TurnQueue struct {
	order  []uuid.UUID
	cursor int

	// resume is the index to return to once a steal turn resolves.
	resume   int
	stealing bool
}

// Initialize replaces the queue with a Fisher-Yates shuffle of ids.
func (q *TurnQueue) Initialize(ids []uuid.UUID, rng Shuffler) {
	q.order = append([]uuid.UUID(nil), ids...)
	rng.Shuffle(len(q.order), func(i, j int) {
		q.order[i], q.order[j] = q.order[j], q.order[i]
	})
	q.cursor = 0
	q.resume = 0
	q.stealing = false
}

// RotateForNextRound moves the front player to the back and resets the cursor.
func (q *TurnQueue) RotateForNextRound() {
	if len(q.order) > 1 {
		first := q.order[0]
		copy(q.order, q.order[1:])
		q.order[len(q.order)-1] = first
	}
	q.cursor = 0
	q.resume = 0
	q.stealing = false
}

// Current returns the player the cursor points at.
func (q *TurnQueue) Current() (uuid.UUID, bool) {
	if len(q.order) == 0 {
		return uuid.Nil, false
	}
	if q.cursor >= len(q.order) {
		q.cursor = 0
	}
	return q.order[q.cursor], true
}

// Advance moves the cursor to the next player.
func (q *TurnQueue) Advance() {
	if len(q.order) == 0 {
		return
	}
	q.cursor = (q.cursor + 1) % len(q.order)
}

// Steal moves id to the back of the queue and makes it current. The player
// current before the first pending steal is remembered for Resume. The cursor
// player may steal: after a holder leaves mid-turn the cursor already points
// at the successor, whose turn has not started. Rejecting the active holder is
// the caller's job.
func (q *TurnQueue) Steal(id uuid.UUID) error {
	idx := q.indexOf(id)
	if idx < 0 {
		return ErrNotQueued
	}
	if !q.stealing {
		q.resume = q.cursor
		q.stealing = true
	}
	q.order = append(q.order[:idx], q.order[idx+1:]...)
	if idx < q.resume {
		q.resume--
	}
	q.order = append(q.order, id)
	q.cursor = len(q.order) - 1
	return nil
}

// Resume returns the cursor to the player interrupted by a steal. It is a
// no-op when no steal is pending.
func (q *TurnQueue) Resume() {
	if !q.stealing {
		return
	}
	q.stealing = false
	q.cursor = q.resume
	if q.cursor >= len(q.order) {
		q.cursor = 0
	}
}

// Stealing reports whether a steal turn is waiting to Resume.
func (q *TurnQueue) Stealing() bool { return q.stealing }

// Append adds a player who joined mid-game at the back.
func (q *TurnQueue) Append(id uuid.UUID) {
	if q.indexOf(id) >= 0 {
		return
	}
	q.order = append(q.order, id)
}

// Remove prunes a departed player. The cursor and the resume index keep
// pointing at the same players; if id held either slot it passes to its
// successor.
func (q *TurnQueue) Remove(id uuid.UUID) bool {
	idx := q.indexOf(id)
	if idx < 0 {
		return false
	}
	q.order = append(q.order[:idx], q.order[idx+1:]...)
	if len(q.order) == 0 {
		q.cursor, q.resume, q.stealing = 0, 0, false
		return true
	}
	if idx < q.cursor {
		q.cursor--
	}
	if q.cursor >= len(q.order) {
		q.cursor = 0
	}
	if q.stealing {
		if idx < q.resume {
			q.resume--
		}
		if q.resume >= len(q.order) {
			q.resume = 0
		}
	}
	return true
}

// Replace rebinds old to next in place.
func (q *TurnQueue) Replace(old, next uuid.UUID) {
	if idx := q.indexOf(old); idx >= 0 {
		q.order[idx] = next
	}
}

// Contains reports whether id is queued.
func (q *TurnQueue) Contains(id uuid.UUID) bool { return q.indexOf(id) >= 0 }

// Position returns the 1-based cursor position and the queue length.
func (q *TurnQueue) Position() (int, int) {
	if len(q.order) == 0 {
		return 0, 0
	}
	return q.cursor + 1, len(q.order)
}

// Len is the number of queued players.
func (q *TurnQueue) Len() int { return len(q.order) }

// IDs returns a copy of the queue order.
func (q *TurnQueue) IDs() []uuid.UUID {
	return append([]uuid.UUID(nil), q.order...)
}

// Reset empties the queue.
func (q *TurnQueue) Reset() {
	q.order = nil
	q.cursor, q.resume, q.stealing = 0, 0, false
}

func (q *TurnQueue) indexOf(id uuid.UUID) int {
	for i, qid := range q.order {
		if qid == id {
			return i
		}
	}
	return -1
}
