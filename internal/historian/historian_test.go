// internal/historian/historian_test.go
package historian

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardtable/uno-service/internal/config"
	"github.com/cardtable/uno-service/internal/uno"
)

type fakeSink struct {
	mu        sync.Mutex
	inserted  []uno.ActionRecord
	abandoned []uuid.UUID
}

func (f *fakeSink) InsertActions(ctx context.Context, recs []uno.ActionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, recs...)
	return nil
}

func (f *fakeSink) MarkAbandoned(ctx context.Context, gameID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, gameID)
	return nil
}

func testService(sink Sink, cfg config.Historian) *Service {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return New(cfg, nil, sink, logrus.NewEntry(l))
}

func TestFlushOnBatchSize(t *testing.T) {
	sink := &fakeSink{}
	s := testService(sink, config.Historian{BatchSize: 3})
	gameID := uuid.New()

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		s.append(ctx, uno.ActionRecord{GameID: gameID, ActionIndex: i, ActionType: "card_play"})
	}
	assert.Empty(t, sink.inserted, "below the batch threshold nothing flushes")

	s.append(ctx, uno.ActionRecord{GameID: gameID, ActionIndex: 3, ActionType: "card_play"})
	require.Len(t, sink.inserted, 3)
	assert.Equal(t, 1, sink.inserted[0].ActionIndex)
	assert.Equal(t, 3, sink.inserted[2].ActionIndex)
}

func TestExplicitFlushDrainsPartialBatch(t *testing.T) {
	sink := &fakeSink{}
	s := testService(sink, config.Historian{BatchSize: 100})

	ctx := context.Background()
	s.append(ctx, uno.ActionRecord{GameID: uuid.New(), ActionIndex: 1, ActionType: "game_start"})
	s.flush(ctx)
	assert.Len(t, sink.inserted, 1)

	// flushing an empty batch touches nothing
	s.flush(ctx)
	assert.Len(t, sink.inserted, 1)
}

func TestSweepMarksSilentGamesAbandoned(t *testing.T) {
	sink := &fakeSink{}
	s := testService(sink, config.Historian{Inactivity: time.Minute})

	stale := uuid.New()
	fresh := uuid.New()
	now := time.Now()
	s.lastActivity.Store(stale, now.Add(-2*time.Minute))
	s.lastActivity.Store(fresh, now.Add(-10*time.Second))

	s.sweep(context.Background(), now)
	require.Len(t, sink.abandoned, 1)
	assert.Equal(t, stale, sink.abandoned[0])

	// the stale game is forgotten, the fresh one still tracked
	_, ok := s.lastActivity.Load(stale)
	assert.False(t, ok)
	_, ok = s.lastActivity.Load(fresh)
	assert.True(t, ok)
}
