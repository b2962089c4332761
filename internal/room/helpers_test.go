package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pricecheck/internal/listing"
	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/stretchr/testify/require"
)

// manualScheduler records scheduled tasks; tests fire them explicitly.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTask) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{d: d, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// live counts tasks that are neither stopped nor fired.
func (s *manualScheduler) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fireLatest runs the most recently armed live task.
func (s *manualScheduler) fireLatest(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	var task *manualTask
	for i := len(s.tasks) - 1; i >= 0; i-- {
		if !s.tasks[i].stopped && !s.tasks[i].fired {
			task = s.tasks[i]
			break
		}
	}
	s.mu.Unlock()
	require.NotNil(t, task, "no live task to fire")
	task.fired = true
	task.f()
}

type published struct {
	RoomID int
	Event  Event
}

// mockBroadcaster records everything the controller emits.
type mockBroadcaster struct {
	mu   sync.Mutex
	pubs []published
	sent map[uuid.UUID][]Event
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{sent: make(map[uuid.UUID][]Event)}
}

func (m *mockBroadcaster) Publish(roomID int, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pubs = append(m.pubs, published{roomID, ev})
}

func (m *mockBroadcaster) Send(playerID uuid.UUID, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[playerID] = append(m.sent[playerID], ev)
}

func (m *mockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pubs)
}

// last returns the payload of the most recent published event of type typ.
func (m *mockBroadcaster) last(typ EventType) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.pubs) - 1; i >= 0; i-- {
		if m.pubs[i].Event.Type == typ {
			return m.pubs[i].Event.Payload, true
		}
	}
	return nil, false
}

func (m *mockBroadcaster) countType(typ EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.pubs {
		if p.Event.Type == typ {
			n++
		}
	}
	return n
}

func (m *mockBroadcaster) sentTypes(id uuid.UUID) []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EventType
	for _, ev := range m.sent[id] {
		out = append(out, ev.Type)
	}
	return out
}

// fixedRand keeps shuffles in input order and always picks the first tie.
type fixedRand struct{}

func (fixedRand) Shuffle(int, func(i, j int)) {}
func (fixedRand) Intn(int) int                { return 0 }

// blockingSource parks FetchCandidates until release is closed.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
	items   []models.Item
}

func (b *blockingSource) FetchCandidates(ctx context.Context) (listing.Batch, error) {
	b.entered <- struct{}{}
	<-b.release
	return listing.Batch{Items: b.items, EstimatedTotal: len(b.items)}, nil
}

// orderedSource always offers testItems in order.
type orderedSource struct{}

func (orderedSource) FetchCandidates(context.Context) (listing.Batch, error) {
	return listing.Batch{Items: testItems(), EstimatedTotal: 3}, nil
}

type emptySource struct{}

func (emptySource) FetchCandidates(context.Context) (listing.Batch, error) {
	return listing.Batch{}, listing.ErrEmpty
}

func testItems() []models.Item {
	return []models.Item{
		{ID: "bike", Title: "Road bike", Price: "100 USD", Images: []string{"bike.jpg"}, URL: "https://example.com/bike"},
		{ID: "lamp", Title: "Desk lamp", Price: "40", URL: "https://example.com/lamp"},
		{ID: "sofa", Title: "Sofa", Price: "$1,200", URL: "https://example.com/sofa"},
	}
}

type harness struct {
	ctrl  *Controller
	store *MemoryStore
	sched *manualScheduler
	out   *mockBroadcaster
	now   time.Time
}

func newHarness(t *testing.T, src listing.Source) *harness {
	t.Helper()
	h := &harness{
		store: NewMemoryStore(),
		sched: &manualScheduler{},
		out:   newMockBroadcaster(),
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if src == nil {
		src = orderedSource{}
	}
	h.ctrl = NewController(h.store, h.out, src,
		WithScheduler(h.sched),
		WithRandomizer(fixedRand{}),
		WithClock(func() time.Time { return h.now }),
	)
	return h
}

func (h *harness) newRoom(t *testing.T, mutate func(*models.Settings)) *Room {
	t.Helper()
	s := models.DefaultSettings()
	if mutate != nil {
		mutate(&s)
	}
	r, err := h.ctrl.CreateRoom("test", models.VisibilityPublic, s)
	require.NoError(t, err)
	return r
}

func (h *harness) join(t *testing.T, r *Room, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := h.ctrl.Join(JoinRequest{RoomID: r.ID, PlayerID: id, Name: name})
	require.NoError(t, err)
	return id
}

func (h *harness) readyAll(t *testing.T, r *Room, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, h.ctrl.SetReady(r.ID, id, true))
	}
}

func (h *harness) voteAll(t *testing.T, r *Room, idx int, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, h.ctrl.CastVote(r.ID, id, idx))
	}
}

// inspect runs fn with the room locked.
func inspect(r *Room, fn func(r *Room)) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	fn(r)
}
