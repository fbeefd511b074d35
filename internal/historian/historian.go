// internal/historian/historian.go pops launch records from a Redis queue and
// persists them in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink stores a batch of launch records.
type Sink interface {
	InsertLaunches(ctx context.Context, recs []models.LaunchRecord) error
}

// Options tunes a Service. Zero values use the defaults below.
type Options struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	PopTimeout time.Duration
	// MaxPending caps how many unflushed records survive repeated sink failures.
	MaxPending int
}

const (
	defaultBatchSize  = 20
	defaultFlushDelay = 500 * time.Millisecond
	defaultPopTimeout = 3 * time.Second
)

// Service drains the launch queue into a Sink.
type Service struct {
	rdb    *redis.Client
	sink   Sink
	logger logrus.FieldLogger

	queue      string
	batchSize  int
	flushDelay time.Duration
	popTimeout time.Duration
	maxPending int

	batch []models.LaunchRecord
}

func NewService(rdb *redis.Client, sink Sink, logger logrus.FieldLogger, opts Options) *Service {
	s := &Service{
		rdb:        rdb,
		sink:       sink,
		logger:     logger,
		queue:      opts.Queue,
		batchSize:  opts.BatchSize,
		flushDelay: opts.FlushDelay,
		popTimeout: opts.PopTimeout,
		maxPending: opts.MaxPending,
	}
	if s.queue == "" {
		s.queue = "pfb_launches"
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.flushDelay <= 0 {
		s.flushDelay = defaultFlushDelay
	}
	if s.popTimeout <= 0 {
		s.popTimeout = defaultPopTimeout
	}
	if s.maxPending <= 0 {
		s.maxPending = 50 * s.batchSize
	}
	s.batch = make([]models.LaunchRecord, 0, s.batchSize)
	return s
}

// Run reads from the queue until ctx is cancelled, then flushes what it holds.
func (s *Service) Run(ctx context.Context) {
	s.logger.WithField("queue", s.queue).Info("historian started")
	defer s.logger.Info("historian stopped")

	lastFlush := time.Now()
	for {
		if ctx.Err() != nil {
			s.flush(context.Background())
			return
		}

		// BLPop with a short timeout so cancellation and timed flushes are handled.
		res, err := s.rdb.BLPop(ctx, s.popTimeout, s.queue).Result()
		switch {
		case err == nil && len(res) == 2:
			// res[0] is the queue name and res[1] the payload.
			var rec models.LaunchRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				s.logger.WithError(err).Warn("invalid launch record")
			} else {
				s.batch = append(s.batch, rec)
			}
		case err != nil && !errors.Is(err, redis.Nil) && ctx.Err() == nil:
			s.logger.WithError(err).Error("BLPop failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}

		if len(s.batch) >= s.batchSize || (len(s.batch) > 0 && time.Since(lastFlush) >= s.flushDelay) {
			s.flush(ctx)
			lastFlush = time.Now()
		}
	}
}

// flush hands the current batch to the sink. A failed batch is kept for the
// next flush, oldest records dropped beyond maxPending.
func (s *Service) flush(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}
	pending := s.batch
	if err := s.sink.InsertLaunches(ctx, pending); err != nil {
		if len(pending) > s.maxPending {
			dropped := len(pending) - s.maxPending
			pending = pending[dropped:]
			s.logger.WithField("dropped", dropped).Error("launch history backlog full, dropping oldest records")
		}
		s.batch = pending
		s.logger.WithError(err).WithField("pending", len(pending)).Error("failed to flush launch records")
		return
	}
	s.logger.WithField("count", len(pending)).Debug("flushed launch records")
	s.batch = make([]models.LaunchRecord, 0, s.batchSize)
}
