// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list (queue) name for room event logs.
const DefaultQueueName = "pricecheck_room_events"

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// pusher is the subset of redis.Cmdable the event log needs.
type pusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// EventLog pushes room events onto a Redis list for the historian. Record
// never blocks: records are buffered and written by Run, and dropped with a
// warning when the buffer is full.
type EventLog struct {
	client pusher
	queue  string
	log    logrus.FieldLogger

	seq     atomic.Int64
	pending chan models.RoomEvent
	now     func() time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewEventLog returns a log writing to queue through client.
func NewEventLog(client pusher, queue string, buffer int, logger logrus.FieldLogger) *EventLog {
	if queue == "" {
		queue = DefaultQueueName
	}
	if buffer <= 0 {
		buffer = 256
	}
	l := &EventLog{
		client:  client,
		queue:   queue,
		log:     logger,
		pending: make(chan models.RoomEvent, buffer),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	// room ids restart with the process, so sequence numbers must not
	l.seq.Store(time.Now().UnixMicro())
	return l
}

// Record serializes payload and queues the event.
func (l *EventLog) Record(roomID int, eventType string, payload any) {
	rec := models.RoomEvent{
		RoomID:    roomID,
		Seq:       l.seq.Add(1),
		EventType: eventType,
		Timestamp: l.now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			l.log.WithError(err).WithField("type", eventType).Warn("failed to marshal room event")
			return
		}
		rec.Payload = data
	}

	select {
	case l.pending <- rec:
	case <-l.done:
	default:
		l.log.WithFields(logrus.Fields{"room": roomID, "type": eventType}).Warn("event log full, dropping event")
	}
}

// Run drains the buffer until ctx is cancelled or Close is called, then
// flushes whatever is left.
func (l *EventLog) Run(ctx context.Context) {
	for {
		select {
		case rec := <-l.pending:
			l.push(ctx, rec)
		case <-ctx.Done():
			l.drain(context.WithoutCancel(ctx))
			return
		case <-l.done:
			l.drain(ctx)
			return
		}
	}
}

// Close stops Run after it flushes the buffer.
func (l *EventLog) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *EventLog) drain(ctx context.Context) {
	for {
		select {
		case rec := <-l.pending:
			l.push(ctx, rec)
		default:
			return
		}
	}
}

// push serializes the given record to JSON, then pushes it to the Redis queue.
func (l *EventLog) push(ctx context.Context, rec models.RoomEvent) {
	data, err := json.Marshal(rec)
	if err != nil {
		l.log.WithError(err).Warn("failed to marshal RoomEvent")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := l.client.RPush(ctx, l.queue, data).Err(); err != nil {
		l.log.WithError(err).WithField("queue", l.queue).Warn("failed to RPush room event")
	}
}
