// Package historian drains the room event queue from Redis and archives it in
// batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Popper is the subset of redis.Cmdable the service reads with.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Sink persists a batch of events.
type Sink interface {
	WriteEvents(ctx context.Context, events []models.RoomEvent) error
}

// Config tunes batching.
type Config struct {
	Queue      string
	BatchSize  int
	FlushEvery time.Duration
	// PopTimeout bounds each BLPOP so cancellation and flushes stay responsive.
	PopTimeout time.Duration
}

// Service moves events from the queue into a Sink. A batch is flushed when
// it reaches BatchSize or FlushEvery has passed since the last flush.
type Service struct {
	src  Popper
	sink Sink
	cfg  Config
	log  logrus.FieldLogger

	batch     []models.RoomEvent
	lastFlush time.Time
	now       func() time.Time
}

// New returns a service reading src and writing sink.
func New(src Popper, sink Sink, cfg Config, logger logrus.FieldLogger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 500 * time.Millisecond
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = time.Second
	}
	return &Service{
		src:   src,
		sink:  sink,
		cfg:   cfg,
		log:   logger,
		batch: make([]models.RoomEvent, 0, cfg.BatchSize),
		now:   time.Now,
	}
}

// Run blocks until ctx is cancelled, then flushes what it holds.
func (s *Service) Run(ctx context.Context) error {
	s.log.WithField("queue", s.cfg.Queue).Info("historian started")
	s.lastFlush = s.now()
	for {
		if ctx.Err() != nil {
			s.flush(context.WithoutCancel(ctx))
			s.log.Info("historian shutting down")
			return nil
		}

		res, err := s.src.BLPop(ctx, s.cfg.PopTimeout, s.cfg.Queue).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			if ctx.Err() == nil {
				s.log.WithError(err).Error("BLPop failed")
				sleep(ctx, s.cfg.PopTimeout)
			}
		case len(res) >= 2:
			// res[0] is the queue name and res[1] the payload
			var ev models.RoomEvent
			if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
				s.log.WithError(err).Warn("invalid room event record")
				break
			}
			s.batch = append(s.batch, ev)
		}

		if len(s.batch) >= s.cfg.BatchSize || s.now().Sub(s.lastFlush) >= s.cfg.FlushEvery {
			s.flush(ctx)
		}
	}
}

// flush writes the current batch. On failure the batch is kept and retried on
// the next flush, up to four batches' worth, after which the oldest records
// are dropped.
func (s *Service) flush(ctx context.Context) {
	s.lastFlush = s.now()
	if len(s.batch) == 0 {
		return
	}
	if err := s.sink.WriteEvents(ctx, s.batch); err != nil {
		s.log.WithError(err).WithField("pending", len(s.batch)).Error("flush failed")
		if limit := s.cfg.BatchSize * 4; len(s.batch) > limit {
			dropped := len(s.batch) - limit
			s.batch = append(s.batch[:0], s.batch[dropped:]...)
			s.log.WithField("dropped", dropped).Warn("archive backlog too large")
		}
		return
	}
	s.log.WithField("count", len(s.batch)).Debug("flushed room events")
	s.batch = s.batch[:0]
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
