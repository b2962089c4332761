package room

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pricecheck/internal/listing"
	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/jason-s-yu/pricecheck/internal/scoring"
	"github.com/sirupsen/logrus"
)

// RequestRoundStart starts the next round on the host's request. Every player
// must be ready.
func (c *Controller) RequestRoundStart(ctx context.Context, roomID int, playerID uuid.UUID) error {
	return c.withPlayer(roomID, playerID, func(r *Room, p *models.Player) error {
		if !p.IsHost {
			return ErrNotHost
		}
		if r.phase == PhaseLobby && !r.allReady() {
			return ErrNotAllReady
		}
		return c.beginRoundUnsafe(ctx, r)
	})
}

// ClickNextRound records a player's vote to move on after a round. The next
// round starts once every current member has clicked.
func (c *Controller) ClickNextRound(ctx context.Context, roomID int, playerID uuid.UUID, clicked bool) error {
	return c.withPlayer(roomID, playerID, func(r *Room, p *models.Player) error {
		if r.phase != PhaseResolved {
			return ErrWrongPhase
		}
		if clicked {
			r.nextRound[p.ID] = true
		} else {
			delete(r.nextRound, p.ID)
		}
		c.publishProgressUnsafe(r)
		if r.nextRoundReady() < len(r.Players) {
			return nil
		}
		return c.beginRoundUnsafe(ctx, r)
	})
}

func (c *Controller) publishProgressUnsafe(r *Room) {
	c.out.Publish(r.ID, Event{Type: EventNextRoundProgress, Payload: NextRoundProgressPayload{
		Ready: r.nextRoundReady(),
		Total: len(r.Players),
	}})
}

// beginRoundUnsafe advances to the next round, or ends the game after the
// last one. The room lock is released while candidates are fetched; the phase
// is moved to PhaseStarting first so a second start signal is rejected.
func (c *Controller) beginRoundUnsafe(ctx context.Context, r *Room) error {
	switch r.phase {
	case PhaseLobby, PhaseResolved:
	case PhaseGameOver:
		return ErrGameOver
	default:
		return ErrRoundInProgress
	}
	if r.CurrentRound >= r.Settings.Rounds {
		c.finishGameUnsafe(r)
		return nil
	}

	prev := r.phase
	r.phase = PhaseStarting
	round := r.CurrentRound + 1
	log := c.logger(r).WithField("round", round)

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	r.Mu.Unlock()
	batch, err := c.listings.FetchCandidates(fetchCtx)
	cancel()
	r.Mu.Lock()

	if r.closed {
		return ErrRoomNotFound
	}
	if err == nil && len(batch.Items) == 0 {
		err = ErrNoCandidates
	}
	if err != nil {
		r.phase = prev
		log.WithError(err).Warn("candidate fetch failed")
		c.out.Publish(r.ID, Event{Type: EventRoundUnavailable, Payload: RoundUnavailablePayload{
			Round:  round,
			Reason: "no listings are available right now, try again shortly",
		}})
		return fmt.Errorf("%w: %v", ErrNoCandidates, err)
	}

	if r.CurrentRound == 0 {
		for _, p := range r.Players {
			p.Points = 0
		}
		r.queue.Initialize(r.memberIDs(), c.rng)
		r.GameStarted = true
		r.History = nil
	} else {
		r.queue.RotateForNextRound()
	}
	r.RoundTurns = 0
	r.StealUsed = false
	r.stealTurn = false
	r.CurrentRound = round
	r.nextRound = make(map[uuid.UUID]bool)

	log.WithField("candidates", len(batch.Items)).Info("round started")
	c.openVotingUnsafe(r, batch)
	return nil
}

func (c *Controller) openVotingUnsafe(r *Room, batch listing.Batch) {
	r.vote = NewVoteSession(batch.Items)
	r.phase = PhaseVoting
	deadline := c.now().Add(c.voteWindow)

	c.out.Publish(r.ID, Event{Type: EventVotingStarted, Payload: VotingStartedPayload{
		Round:      r.CurrentRound,
		Candidates: r.vote.Candidates(),
		Deadline:   deadline,
		Seconds:    int(c.voteWindow / time.Second),
		Estimated:  batch.EstimatedTotal,
	}})
	r.voteTimer.arm(c.sched, c.voteWindow, func(gen uint64) { c.onVoteTimeout(r, gen) })
}

func (c *Controller) onVoteTimeout(r *Room, gen uint64) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.closed || !r.voteTimer.claim(gen) {
		c.logger(r).Debug("stale vote timer fired")
		return
	}
	c.resolveVoteUnsafe(r)
}

// CastVote records a player's choice during voting and resolves early once
// every member has voted.
func (c *Controller) CastVote(roomID int, playerID uuid.UUID, idx int) error {
	return c.withPlayer(roomID, playerID, func(r *Room, p *models.Player) error {
		if r.phase != PhaseVoting || r.vote == nil {
			return ErrWrongPhase
		}
		if err := r.vote.Cast(p.ID, idx); err != nil {
			return err
		}
		c.publishTallyUnsafe(r)
		if r.vote.Voted() >= len(r.Players) {
			c.resolveVoteUnsafe(r)
		}
		return nil
	})
}

func (c *Controller) publishTallyUnsafe(r *Room) {
	if r.vote == nil {
		return
	}
	c.out.Publish(r.ID, Event{Type: EventVoteTally, Payload: VoteTallyPayload{
		Tally: r.vote.Tally(),
		Voted: r.vote.Voted(),
		Total: len(r.Players),
	}})
}

func (c *Controller) resolveVoteUnsafe(r *Room) {
	r.voteTimer.cancel()
	vote := r.vote
	r.vote = nil
	if vote == nil {
		return
	}

	idx, tie, ok := vote.Winner(c.rng)
	if !ok {
		// nothing to play; undo the round so it can be retried
		r.CurrentRound--
		if r.CurrentRound == 0 {
			r.phase = PhaseLobby
			r.GameStarted = false
		} else {
			r.phase = PhaseResolved
		}
		c.out.Publish(r.ID, Event{Type: EventRoundUnavailable, Payload: RoundUnavailablePayload{
			Round:  r.CurrentRound + 1,
			Reason: "no candidates to vote on",
		}})
		return
	}

	item := vote.Item(idx)
	r.item = &item
	r.History = append(r.History, models.RoundRecord{Round: r.CurrentRound, Item: item.Snapshot()})
	c.logger(r).WithFields(logrus.Fields{"round": r.CurrentRound, "item": item.ID, "tie": tie}).Info("vote resolved")

	c.out.Publish(r.ID, Event{Type: EventVotingResult, Payload: VotingResultPayload{
		WinningIndex: idx,
		Tally:        vote.Tally(),
		Candidate:    item.Candidate(idx),
		TieBroken:    tie,
	}})

	r.phase = PhaseActive
	c.startTurnUnsafe(r)
}

// finishRoundUnsafe awards the round to winner and waits for the next-round
// consensus.
func (c *Controller) finishRoundUnsafe(r *Room, winner *models.Player, guess, dev float64) {
	r.turnTimer.cancel()
	pts := scoring.Score(dev, r.RoundTurns)
	winner.Points += pts.Total

	item := models.Item{}
	if r.item != nil {
		item = *r.item
	}
	payload := RoundFinishedPayload{
		Round:       r.CurrentRound,
		WinnerID:    winner.ID,
		Name:        winner.Name,
		Guess:       guess,
		ActualPrice: item.Price,
		Actual:      scoring.ParsePrice(item.Price),
		Deviation:   roundTo(dev, 2),
		Points:      pts,
		TurnsPlayed: r.RoundTurns,
		Final:       r.CurrentRound >= r.Settings.Rounds,
		Item:        item.Snapshot(),
	}

	r.phase = PhaseResolved
	r.holder = uuid.Nil
	r.pending = nil
	r.stealTurn = false
	r.item = nil
	r.nextRound = make(map[uuid.UUID]bool)
	payload.Standings = r.standings()

	c.logger(r).WithFields(logrus.Fields{
		"round":  r.CurrentRound,
		"winner": winner.Name,
		"points": pts.Total,
		"turns":  r.RoundTurns,
	}).Info("round finished")

	c.out.Publish(r.ID, Event{Type: EventRoundFinished, Payload: payload})
	c.publishProgressUnsafe(r)
}

// finishGameUnsafe converts unused steals to points and ends the game.
func (c *Controller) finishGameUnsafe(r *Room) {
	r.voteTimer.cancel()
	r.turnTimer.cancel()
	r.vote = nil
	r.holder = uuid.Nil
	r.pending = nil

	bonus := make(map[uuid.UUID]int, len(r.Players))
	for _, p := range r.Players {
		b := scoring.EndGameBonus(p.StealsLeft)
		p.Points += b
		p.StealsLeft = 0
		bonus[p.ID] = b
	}
	r.phase = PhaseGameOver
	r.Chat = nil
	c.logger(r).WithField("rounds", r.CurrentRound).Info("game finished")

	c.out.Publish(r.ID, Event{Type: EventChatCleared})
	c.out.Publish(r.ID, Event{Type: EventGameFinished, Payload: GameFinishedPayload{
		Standings:  r.standings(),
		StealBonus: bonus,
		History:    append([]models.RoundRecord(nil), r.History...),
	}})
	c.out.Publish(r.ID, Event{Type: EventPlayerList, Payload: r.playerList()})
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
