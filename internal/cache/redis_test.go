package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeList struct {
	mu     sync.Mutex
	key    string
	values [][]byte
}

func (f *fakeList) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.key = key
	for _, v := range values {
		f.values = append(f.values, v.([]byte))
	}
	return redis.NewIntResult(int64(len(f.values)), nil)
}

func (f *fakeList) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.values)
}

func TestEventLogPushesRecords(t *testing.T) {
	list := &fakeList{}
	logger, _ := test.NewNullLogger()
	el := NewEventLog(list, "", 8, logger)

	done := make(chan struct{})
	go func() {
		el.Run(context.Background())
		close(done)
	}()

	el.Record(4, "turn_started", map[string]int{"turn": 1})
	el.Record(4, "chat_cleared", nil)
	el.Close()
	<-done

	require.Equal(t, 2, list.len())
	assert.Equal(t, DefaultQueueName, list.key)

	var rec models.RoomEvent
	require.NoError(t, json.Unmarshal(list.values[0], &rec))
	assert.Equal(t, 4, rec.RoomID)
	first := rec.Seq
	assert.Equal(t, "turn_started", rec.EventType)
	assert.JSONEq(t, `{"turn":1}`, string(rec.Payload))

	require.NoError(t, json.Unmarshal(list.values[1], &rec))
	assert.Equal(t, first+1, rec.Seq)
	assert.Empty(t, rec.Payload)
}

func TestEventLogDropsWhenFull(t *testing.T) {
	logger, hook := test.NewNullLogger()
	el := NewEventLog(&fakeList{}, "q", 1, logger)

	el.Record(1, "a", nil)
	el.Record(1, "b", nil)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, 1, len(el.pending))
}

func TestEventLogStopsOnContext(t *testing.T) {
	list := &fakeList{}
	logger, _ := test.NewNullLogger()
	el := NewEventLog(list, "q", 4, logger)
	el.Record(1, "a", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	finished := make(chan struct{})
	go func() {
		el.Run(ctx)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, list.len())
}
