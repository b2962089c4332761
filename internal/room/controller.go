package room

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pricecheck/internal/listing"
	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultVoteWindow   = 15 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Controller drives every room in a Store. It is safe for concurrent use; all
// state lives in the rooms themselves.
type Controller struct {
	store    Store
	out      Broadcaster
	listings listing.Source
	log      logrus.FieldLogger

	sched        Scheduler
	rng          Randomizer
	now          func() time.Time
	voteWindow   time.Duration
	fetchTimeout time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithScheduler replaces time.AfterFunc, mainly for tests.
func WithScheduler(s Scheduler) Option { return func(c *Controller) { c.sched = s } }

// WithRandomizer replaces the default math/rand source.
func WithRandomizer(r Randomizer) Option { return func(c *Controller) { c.rng = r } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithLogger sets the logger. The default discards output.
func WithLogger(l logrus.FieldLogger) Option { return func(c *Controller) { c.log = l } }

// WithVoteWindow sets how long voting stays open.
func WithVoteWindow(d time.Duration) Option { return func(c *Controller) { c.voteWindow = d } }

// WithFetchTimeout bounds a single candidate fetch.
func WithFetchTimeout(d time.Duration) Option { return func(c *Controller) { c.fetchTimeout = d } }

// NewController returns a controller over store that reports through out and
// draws candidates from listings.
func NewController(store Store, out Broadcaster, listings listing.Source, opts ...Option) *Controller {
	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)

	c := &Controller{
		store:        store,
		out:          out,
		listings:     listings,
		log:          quiet,
		sched:        realScheduler{},
		rng:          &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))},
		now:          time.Now,
		voteWindow:   DefaultVoteWindow,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the registry the controller works on.
func (c *Controller) Store() Store { return c.store }

func (c *Controller) logger(r *Room) logrus.FieldLogger {
	return c.log.WithFields(logrus.Fields{"room": r.ID, "code": r.Code})
}

// lockRoom returns the room locked. The caller must unlock it.
func (c *Controller) lockRoom(id int) (*Room, error) {
	r, ok := c.store.Get(id)
	if !ok {
		return nil, ErrRoomNotFound
	}
	r.Mu.Lock()
	if r.closed {
		r.Mu.Unlock()
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// withPlayer runs fn with the room locked and the caller resolved to a member.
func (c *Controller) withPlayer(roomID int, playerID uuid.UUID, fn func(*Room, *models.Player) error) error {
	r, err := c.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer r.Mu.Unlock()
	p := r.player(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	return fn(r, p)
}

// CreateRoom registers a new empty room.
func (c *Controller) CreateRoom(name string, vis models.Visibility, settings models.Settings) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Price Check"
	}
	if vis == "" {
		vis = models.VisibilityPublic
	}
	if !vis.Valid() {
		return nil, fmt.Errorf("%w: unknown visibility %q", ErrInvalidSettings, vis)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	r, err := c.store.Create(name, vis, settings)
	if err != nil {
		return nil, err
	}
	c.logger(r).Info("room created")
	return r, nil
}

// JoinRequest is a connection asking to enter a room. IsHost must only be set
// once the caller has proven it may claim host.
type JoinRequest struct {
	RoomID   int
	PlayerID uuid.UUID
	Name     string
	Color    string
	IsHost   bool
	Rejoin   bool
}

// JoinResult describes the membership a join produced.
type JoinResult struct {
	Player models.Player
	// PreviousID is the connection id a rejoin replaced, or uuid.Nil.
	PreviousID uuid.UUID
}

// Join adds a player, or rebinds an existing one by name when Rejoin is set.
func (c *Controller) Join(req JoinRequest) (JoinResult, error) {
	name := strings.TrimSpace(req.Name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLen {
		return JoinResult{}, ErrInvalidName
	}

	r, err := c.lockRoom(req.RoomID)
	if err != nil {
		return JoinResult{}, err
	}
	defer r.Mu.Unlock()

	if r.player(req.PlayerID) != nil {
		return JoinResult{}, ErrAlreadyJoined
	}

	var res JoinResult
	if existing := r.playerByName(name); existing != nil {
		if !req.Rejoin {
			return JoinResult{}, ErrNameTaken
		}
		res.PreviousID = existing.ID
		r.rebindUnsafe(existing, req.PlayerID)
		c.logger(r).WithField("player", name).Info("player rejoined")
	} else {
		if len(r.Players) >= r.Settings.MaxPlayers {
			return JoinResult{}, ErrRoomFull
		}
		p := &models.Player{
			ID:         req.PlayerID,
			Name:       name,
			StealsLeft: r.Settings.Steals,
			Color:      models.PickColor(req.Color, r.takenColors(uuid.Nil)),
		}
		r.Players = append(r.Players, p)
		if r.GameStarted && r.phase != PhaseGameOver {
			r.queue.Append(p.ID)
		}
		c.logger(r).WithField("player", name).Info("player joined")
	}

	p := r.player(req.PlayerID)
	switch current := r.host(); {
	case current == nil:
		p.IsHost = true
	case req.IsHost && current != p:
		current.IsHost = false
		p.IsHost = true
		c.out.Publish(r.ID, Event{Type: EventHostChanged, Payload: HostPayload{HostID: p.ID, Name: p.Name}})
	}

	c.out.Send(p.ID, Event{Type: EventSettings, Payload: SettingsPayload{Settings: r.Settings}})
	c.out.Send(p.ID, Event{Type: EventChatHistory, Payload: ChatHistoryPayload{Messages: append([]models.ChatMessage(nil), r.Chat...)}})
	c.out.Send(p.ID, Event{Type: EventRoomState, Payload: c.stateUnsafe(r, p.ID)})
	if res.PreviousID == uuid.Nil {
		c.systemChatUnsafe(r, fmt.Sprintf("%s joined the room", p.Name))
	}
	c.out.Publish(r.ID, Event{Type: EventPlayerList, Payload: r.playerList()})

	res.Player = *p
	return res, nil
}

// rebindUnsafe moves every reference to p from its old id to next.
func (r *Room) rebindUnsafe(p *models.Player, next uuid.UUID) {
	old := p.ID
	p.ID = next
	r.queue.Replace(old, next)
	if r.holder == old {
		r.holder = next
	}
	if r.pending != nil && r.pending.PlayerID == old {
		r.pending.PlayerID = next
	}
	if r.vote != nil {
		if idx, ok := r.vote.votes[old]; ok {
			delete(r.vote.votes, old)
			r.vote.votes[next] = idx
		}
	}
	if r.nextRound[old] {
		delete(r.nextRound, old)
		r.nextRound[next] = true
	}
}

// Leave removes a player. The last player out destroys the room.
func (c *Controller) Leave(roomID int, playerID uuid.UUID) error {
	r, err := c.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer r.Mu.Unlock()

	p := r.removePlayer(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	log := c.logger(r).WithField("player", p.Name)
	log.Info("player left")

	delete(r.nextRound, playerID)
	r.queue.Remove(playerID)
	if r.vote != nil {
		r.vote.Remove(playerID)
	}
	if r.holder == playerID {
		// the armed turn timer still resolves this turn, with the pending guess if any
		log.Debug("turn holder left mid-turn")
	}

	if len(r.Players) == 0 {
		c.destroyUnsafe(r)
		return nil
	}

	if p.IsHost {
		next := r.Players[0]
		next.IsHost = true
		c.out.Publish(r.ID, Event{Type: EventHostChanged, Payload: HostPayload{HostID: next.ID, Name: next.Name}})
	}
	c.systemChatUnsafe(r, fmt.Sprintf("%s left the room", p.Name))
	c.out.Publish(r.ID, Event{Type: EventPlayerList, Payload: r.playerList()})

	switch r.phase {
	case PhaseVoting:
		c.publishTallyUnsafe(r)
		if r.vote != nil && r.vote.Voted() >= len(r.Players) {
			c.resolveVoteUnsafe(r)
		}
	case PhaseResolved:
		c.publishProgressUnsafe(r)
	}
	return nil
}

// destroyUnsafe cancels all pending work and drops the room from the store.
func (c *Controller) destroyUnsafe(r *Room) {
	r.voteTimer.cancel()
	r.turnTimer.cancel()
	r.vote = nil
	r.pending = nil
	r.holder = uuid.Nil
	r.closed = true
	c.store.Delete(r.ID)
	c.logger(r).Info("room destroyed")
}

// SetReady toggles a player's lobby ready flag.
func (c *Controller) SetReady(roomID int, playerID uuid.UUID, ready bool) error {
	return c.withPlayer(roomID, playerID, func(r *Room, p *models.Player) error {
		if p.Ready == ready {
			return nil
		}
		p.Ready = ready
		c.out.Publish(r.ID, Event{Type: EventPlayerList, Payload: r.playerList()})
		return nil
	})
}

// UpdateSettings applies a host's partial settings change while in the lobby.
func (c *Controller) UpdateSettings(roomID int, playerID uuid.UUID, patch models.SettingsPatch) error {
	return c.withPlayer(roomID, playerID, func(r *Room, p *models.Player) error {
		if !p.IsHost {
			return ErrNotHost
		}
		if r.phase != PhaseLobby {
			return ErrGameInProgress
		}
		next := patch.Apply(r.Settings)
		if err := next.Validate(); err != nil {
			return &Error{Code: ErrInvalidSettings.Code, Message: err.Error()}
		}
		if next.MaxPlayers < len(r.Players) {
			return &Error{Code: ErrInvalidSettings.Code, Message: "maxPlayers is below the current player count"}
		}
		if next.Steals != r.Settings.Steals {
			for _, pl := range r.Players {
				pl.StealsLeft = next.Steals
			}
		}
		r.Settings = next
		c.out.Publish(r.ID, Event{Type: EventSettingsUpdated, Payload: SettingsPayload{Settings: next}})
		c.out.Publish(r.ID, Event{Type: EventPlayerList, Payload: r.playerList()})
		return nil
	})
}

// Chat appends a player's message to the room history and relays it.
func (c *Controller) Chat(roomID int, playerID uuid.UUID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxChatLen {
		text = string([]rune(text)[:maxChatLen])
	}
	return c.withPlayer(roomID, playerID, func(r *Room, p *models.Player) error {
		c.appendChatUnsafe(r, models.ChatMessage{
			ID:       uuid.New(),
			PlayerID: p.ID,
			Name:     p.Name,
			Color:    p.Color,
			Text:     text,
			SentAt:   c.now(),
		})
		return nil
	})
}

func (c *Controller) systemChatUnsafe(r *Room, text string) {
	c.appendChatUnsafe(r, models.ChatMessage{ID: uuid.New(), Text: text, System: true, SentAt: c.now()})
}

func (c *Controller) appendChatUnsafe(r *Room, msg models.ChatMessage) {
	r.Chat = append(r.Chat, msg)
	if over := len(r.Chat) - maxChatHistory; over > 0 {
		r.Chat = append([]models.ChatMessage(nil), r.Chat[over:]...)
	}
	c.out.Publish(r.ID, Event{Type: EventChatMessage, Payload: msg})
}

// ResetToLobby returns a finished game to the lobby, clearing scores.
func (c *Controller) ResetToLobby(roomID int, playerID uuid.UUID) error {
	return c.withPlayer(roomID, playerID, func(r *Room, p *models.Player) error {
		if !p.IsHost {
			return ErrNotHost
		}
		if r.phase != PhaseGameOver {
			return ErrWrongPhase
		}
		for _, pl := range r.Players {
			pl.Ready = false
			pl.Points = 0
			pl.StealsLeft = r.Settings.Steals
		}
		r.History = nil
		r.GameStarted = false
		r.CurrentRound = 0
		r.RoundTurns = 0
		r.StealUsed = false
		r.queue.Reset()
		r.nextRound = make(map[uuid.UUID]bool)
		r.phase = PhaseLobby
		c.logger(r).Info("room reset to lobby")

		c.out.Publish(r.ID, Event{Type: EventLobbyReset, Payload: SettingsPayload{Settings: r.Settings}})
		c.out.Publish(r.ID, Event{Type: EventPlayerList, Payload: r.playerList()})
		return nil
	})
}

// Reap destroys rooms that have been empty for longer than ttl and returns how
// many it removed. Rooms emptied by Leave are already gone; this catches rooms
// created over HTTP that nobody ever joined.
func (c *Controller) Reap(now time.Time, ttl time.Duration) int {
	n := 0
	for _, r := range c.store.List() {
		r.Mu.Lock()
		if !r.closed && len(r.Players) == 0 && now.Sub(r.CreatedAt) > ttl {
			c.destroyUnsafe(r)
			n++
		}
		r.Mu.Unlock()
	}
	return n
}

// State returns the snapshot a member would receive on join.
func (c *Controller) State(roomID int, playerID uuid.UUID) (RoomStatePayload, error) {
	var st RoomStatePayload
	err := c.withPlayer(roomID, playerID, func(r *Room, _ *models.Player) error {
		st = c.stateUnsafe(r, playerID)
		return nil
	})
	return st, err
}

func (c *Controller) stateUnsafe(r *Room, you uuid.UUID) RoomStatePayload {
	st := RoomStatePayload{
		RoomID:     r.ID,
		Code:       r.Code,
		Name:       r.Name,
		Visibility: r.Visibility,
		Phase:      r.phase,
		Round:      r.CurrentRound,
		Rounds:     r.Settings.Rounds,
		YouID:      you,
	}
	if r.phase == PhaseVoting && r.vote != nil {
		st.Candidates = r.vote.Candidates()
		st.Tally = r.vote.Tally()
	}
	if r.phase == PhaseActive && r.holder != uuid.Nil {
		turn := c.turnPayloadUnsafe(r)
		st.Turn = &turn
	}
	return st
}

// lockedRand makes a *rand.Rand safe to share between rooms.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}
