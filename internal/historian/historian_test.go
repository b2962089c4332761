package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueue serves queued records, then redis.Nil until ctx is done.
type fakeQueue struct {
	mu    sync.Mutex
	items []string
}

func (q *fakeQueue) push(t *testing.T, ev models.RoomEvent) {
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	q.mu.Lock()
	q.items = append(q.items, string(data))
	q.mu.Unlock()
}

func (q *fakeQueue) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		select {
		case <-ctx.Done():
			return redis.NewStringSliceResult(nil, ctx.Err())
		case <-time.After(time.Millisecond):
		}
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
	v := q.items[0]
	q.items = q.items[1:]
	return redis.NewStringSliceResult([]string{keys[0], v}, nil)
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]models.RoomEvent
	fail    bool
}

func (s *fakeSink) WriteEvents(ctx context.Context, events []models.RoomEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db down")
	}
	s.batches = append(s.batches, append([]models.RoomEvent(nil), events...))
	return nil
}

func (s *fakeSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestHistorianBatchesBySize(t *testing.T) {
	q := &fakeQueue{}
	for i := 1; i <= 5; i++ {
		q.push(t, models.RoomEvent{RoomID: 1, Seq: int64(i), EventType: "turn_started"})
	}
	q.mu.Lock()
	q.items = append(q.items, "{broken")
	q.mu.Unlock()

	sink := &fakeSink{}
	logger, _ := test.NewNullLogger()
	svc := New(q, sink, Config{Queue: "q", BatchSize: 2, FlushEvery: time.Hour}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.total() >= 4 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 5, sink.total(), "shutdown flushes the remainder")
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.batches[0], 2)
	assert.Equal(t, int64(1), sink.batches[0][0].Seq)
}

func TestHistorianFlushesOnInterval(t *testing.T) {
	q := &fakeQueue{}
	q.push(t, models.RoomEvent{RoomID: 2, Seq: 1, EventType: "game_finished"})

	sink := &fakeSink{}
	logger, _ := test.NewNullLogger()
	svc := New(q, sink, Config{Queue: "q", BatchSize: 100, FlushEvery: 10 * time.Millisecond}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHistorianKeepsBatchOnFailure(t *testing.T) {
	sink := &fakeSink{fail: true}
	logger, hook := test.NewNullLogger()
	svc := New(&fakeQueue{}, sink, Config{Queue: "q", BatchSize: 1}, logger)

	for i := 0; i < 6; i++ {
		svc.batch = append(svc.batch, models.RoomEvent{Seq: int64(i)})
	}
	svc.flush(context.Background())
	assert.Len(t, svc.batch, 4, "backlog capped at four batches")
	assert.Equal(t, int64(2), svc.batch[0].Seq, "oldest records dropped first")
	assert.NotEmpty(t, hook.AllEntries())

	sink.fail = false
	svc.flush(context.Background())
	assert.Empty(t, svc.batch)
	assert.Equal(t, 4, sink.total())
}
