package room

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/jason-s-yu/pricecheck/internal/scoring"
	"github.com/sirupsen/logrus"
)

// startTurnUnsafe hands the turn to the player under the queue cursor and arms
// the answer timer, replacing any timer still pending.
func (c *Controller) startTurnUnsafe(r *Room) {
	r.turnTimer.cancel()

	var next *models.Player
	for next == nil {
		id, ok := r.queue.Current()
		if !ok {
			// queue lost everyone; rebuild it from the members in join order
			for _, p := range r.Players {
				r.queue.Append(p.ID)
			}
			if r.queue.Len() == 0 {
				return
			}
			continue
		}
		if next = r.player(id); next == nil {
			c.logger(r).WithField("player", id).Warn("pruning stale queue entry")
			r.queue.Remove(id)
		}
	}

	r.RoundTurns++
	r.holder = next.ID
	r.pending = nil
	answer := time.Duration(r.Settings.AnswerTime) * time.Second
	r.deadline = c.now().Add(answer)

	c.out.Publish(r.ID, Event{Type: EventTurnStarted, Payload: c.turnPayloadUnsafe(r)})
	r.turnTimer.arm(c.sched, answer, func(gen uint64) { c.onTurnTimeout(r, gen) })
}

func (c *Controller) turnPayloadUnsafe(r *Room) TurnPayload {
	pos, total := r.queue.Position()
	tp := TurnPayload{
		PlayerID:   r.holder,
		Deadline:   r.deadline,
		AnswerTime: r.Settings.AnswerTime,
		StealUsed:  r.StealUsed,
		StealTurn:  r.stealTurn,
		Position:   pos,
		Total:      total,
		Turn:       r.RoundTurns,
	}
	if left := r.deadline.Sub(c.now()); left > 0 {
		tp.SecondsLeft = int(math.Ceil(left.Seconds()))
	}
	if p := r.player(r.holder); p != nil {
		tp.Name = p.Name
	}
	return tp
}

func (c *Controller) onTurnTimeout(r *Room, gen uint64) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.closed || r.phase != PhaseActive || !r.turnTimer.claim(gen) {
		c.logger(r).Debug("stale turn timer fired")
		return
	}
	holder := r.holder
	price := 0.0
	if r.pending != nil && r.pending.PlayerID == holder {
		price = r.pending.Price
	}
	c.logger(r).WithFields(logrus.Fields{"player": holder, "price": price}).Debug("turn timed out")
	c.resolveGuessUnsafe(r, holder, price, true)
}

// ConfirmGuess submits the turn holder's final guess.
func (c *Controller) ConfirmGuess(roomID int, playerID uuid.UUID, price float64) error {
	return c.withPlayer(roomID, playerID, func(r *Room, p *models.Player) error {
		if r.phase != PhaseActive {
			return ErrWrongPhase
		}
		if r.holder != p.ID {
			return ErrNotYourTurn
		}
		if !validPrice(price) {
			return ErrInvalidGuess
		}
		c.resolveGuessUnsafe(r, p.ID, price, false)
		return nil
	})
}

// UpdatePendingGuess records the value the turn holder is typing. It is what
// a timeout submits.
func (c *Controller) UpdatePendingGuess(roomID int, playerID uuid.UUID, price float64) error {
	return c.withPlayer(roomID, playerID, func(r *Room, p *models.Player) error {
		if r.phase != PhaseActive {
			return ErrWrongPhase
		}
		if r.holder != p.ID {
			return ErrNotYourTurn
		}
		if !validPrice(price) {
			return ErrInvalidGuess
		}
		r.pending = &pendingGuess{PlayerID: p.ID, Price: price}
		c.out.Publish(r.ID, Event{Type: EventPendingGuess, Payload: PendingGuessPayload{PlayerID: p.ID, Price: price}})
		return nil
	})
}

// UseSteal lets a player interrupt the turn order and guess next. One steal
// is allowed per round.
func (c *Controller) UseSteal(roomID int, playerID uuid.UUID) error {
	return c.withPlayer(roomID, playerID, func(r *Room, p *models.Player) error {
		if r.phase != PhaseActive {
			return ErrWrongPhase
		}
		if p.StealsLeft <= 0 {
			return ErrNoStealsLeft
		}
		if r.StealUsed {
			return ErrStealAlreadyUsed
		}
		if r.holder == p.ID {
			return ErrAlreadyOnTurn
		}
		if err := r.queue.Steal(p.ID); err != nil {
			return err
		}

		interrupted := r.holder
		p.StealsLeft--
		r.StealUsed = true
		r.turnTimer.cancel()
		r.pending = nil
		// the interrupted turn does not count
		if r.RoundTurns > 0 {
			r.RoundTurns--
		}
		r.stealTurn = true

		c.logger(r).WithFields(logrus.Fields{"player": p.Name, "interrupted": interrupted}).Info("steal used")
		c.out.Publish(r.ID, Event{Type: EventStealUsed, Payload: StealPayload{
			StealerID:     p.ID,
			Name:          p.Name,
			StealsLeft:    p.StealsLeft,
			InterruptedID: interrupted,
		}})
		c.startTurnUnsafe(r)
		return nil
	})
}

// resolveGuessUnsafe scores a submitted guess. A guess below the threshold
// wins the round; otherwise the turn passes on, returning to the interrupted
// player after a steal turn.
func (c *Controller) resolveGuessUnsafe(r *Room, playerID uuid.UUID, price float64, timedOut bool) {
	r.turnTimer.cancel()
	r.pending = nil

	actual := ""
	if r.item != nil {
		actual = r.item.Price
	}
	dev := scoring.Deviation(price, actual)
	p := r.player(playerID)

	gp := GuessPayload{PlayerID: playerID, Price: price, Deviation: roundTo(dev, 2), TimedOut: timedOut}
	if p != nil {
		gp.Name = p.Name
	}
	c.out.Publish(r.ID, Event{Type: EventGuessConfirmed, Payload: gp})

	if p != nil && dev < r.Settings.Threshold {
		c.finishRoundUnsafe(r, p, price, dev)
		return
	}

	if r.stealTurn {
		r.stealTurn = false
		r.queue.Resume()
	} else if r.queue.Contains(playerID) {
		r.queue.Advance()
	}
	r.holder = uuid.Nil
	c.startTurnUnsafe(r)
}

func validPrice(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
