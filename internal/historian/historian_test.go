// internal/historian/historian_test.go
package historian

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jason-s-yu/picofermibagel/internal/cache"
	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]models.LaunchRecord
	fail    int
}

func (s *recordingSink) InsertLaunches(_ context.Context, recs []models.LaunchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("db down")
	}
	s.batches = append(s.batches, append([]models.LaunchRecord{}, recs...))
	return nil
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func setup(t *testing.T, sink *recordingSink, opts Options) (*Service, *cache.LaunchQueue, context.CancelFunc, chan struct{}) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger, _ := test.NewNullLogger()

	opts.Queue = "test_launches"
	if opts.PopTimeout == 0 {
		opts.PopTimeout = time.Second
	}
	svc := NewService(rdb, sink, logger, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	return svc, cache.NewLaunchQueue(rdb, "test_launches"), cancel, done
}

func launchRecord(i int) models.LaunchRecord {
	return models.LaunchRecord{
		GameID:       fmt.Sprintf("g-%d", i),
		RoomClass:    "classic",
		GameSettings: models.DefaultSettings("classic"),
		RandomSeed:   int64(i),
		StartedAt:    time.Now().UnixMilli(),
	}
}

func TestHistorianBatchesLaunches(t *testing.T) {
	sink := &recordingSink{}
	_, queue, cancel, done := setup(t, sink, Options{BatchSize: 2, FlushDelay: 50 * time.Millisecond})
	defer func() {
		cancel()
		<-done
	}()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, queue.RecordLaunch(ctx, launchRecord(i)))
	}

	assert.Eventually(t, func() bool { return sink.total() == 3 }, 5*time.Second, 20*time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "g-0", sink.batches[0][0].GameID)
}

func TestHistorianRetriesFailedFlush(t *testing.T) {
	sink := &recordingSink{fail: 1}
	_, queue, cancel, done := setup(t, sink, Options{BatchSize: 1, FlushDelay: 10 * time.Millisecond, PopTimeout: time.Second})
	defer func() {
		cancel()
		<-done
	}()

	ctx := context.Background()
	require.NoError(t, queue.RecordLaunch(ctx, launchRecord(1)))
	require.NoError(t, queue.RecordLaunch(ctx, launchRecord(2)))

	assert.Eventually(t, func() bool { return sink.total() == 2 }, 5*time.Second, 20*time.Millisecond)
}

func TestHistorianFlushesOnShutdown(t *testing.T) {
	sink := &recordingSink{}
	_, queue, cancel, done := setup(t, sink, Options{BatchSize: 100, FlushDelay: time.Hour})

	require.NoError(t, queue.RecordLaunch(context.Background(), launchRecord(7)))
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 1, sink.total())
}

func TestHistorianSkipsMalformed(t *testing.T) {
	sink := &recordingSink{}
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	logger, hook := test.NewNullLogger()
	svc := NewService(rdb, sink, logger, Options{Queue: "q", BatchSize: 1, PopTimeout: time.Second})

	require.NoError(t, rdb.RPush(context.Background(), "q", "{oops").Err())
	require.NoError(t, cache.NewLaunchQueue(rdb, "q").RecordLaunch(context.Background(), launchRecord(1)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return sink.total() == 1 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "invalid launch record" {
			warned = true
		}
	}
	assert.True(t, warned)
}
