// internal/historian/historian.go is the action-history consumer: it drains
// the Redis action queue the game machines publish to and persists the stream
// to Postgres, batching writes and closing out games that went silent.
package historian

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cardtable/uno-service/internal/config"
	"github.com/cardtable/uno-service/internal/uno"
)

// Source is the queue side of the pipeline. Pop returns (record, true) when a
// record arrived within the timeout, (zero, false) when the wait elapsed.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (uno.ActionRecord, bool, error)
}

// Sink is the persistence side of the pipeline.
type Sink interface {
	InsertActions(ctx context.Context, recs []uno.ActionRecord) error
	MarkAbandoned(ctx context.Context, gameID uuid.UUID) error
}

// Service moves action records from a Source to a Sink. Records accumulate in
// an in-memory batch flushed either on size or on a timer; games with no
// activity past the inactivity threshold are marked abandoned.
type Service struct {
	log    *logrus.Entry
	source Source
	sink   Sink

	batchSize  int
	flushDelay time.Duration
	inactivity time.Duration

	// lastActivity maps game id -> time of the last record seen for it.
	lastActivity sync.Map

	batchMu sync.Mutex
	batch   []uno.ActionRecord
}

// New builds a historian from its two pipeline ends.
func New(cfg config.Historian, source Source, sink Sink, log *logrus.Entry) *Service {
	cfg.Normalize()
	return &Service{
		log:        log,
		source:     source,
		sink:       sink,
		batchSize:  cfg.BatchSize,
		flushDelay: cfg.FlushDelay,
		inactivity: cfg.Inactivity,
		batch:      make([]uno.ActionRecord, 0, cfg.BatchSize),
	}
}

// Run consumes until ctx is cancelled, then flushes whatever is buffered.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.inactivityLoop(ctx)
	}()
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.flush(flushCtx)
}

func (s *Service) readLoop(ctx context.Context) {
	ticker := time.NewTicker(s.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		default:
			rec, ok, err := s.source.Pop(ctx, 3*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.WithError(err).Error("failed to pop action record")
				continue
			}
			if !ok {
				continue
			}
			s.lastActivity.Store(rec.GameID, time.Now())
			s.append(ctx, rec)
		}
	}
}

func (s *Service) append(ctx context.Context, rec uno.ActionRecord) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()
	if full {
		s.flush(ctx)
	}
}

// flush drains the current batch into the sink. A failed write is logged and
// the batch dropped; the queue is a history, not a ledger.
func (s *Service) flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	batch := make([]uno.ActionRecord, len(s.batch))
	copy(batch, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.sink.InsertActions(ctx, batch); err != nil {
		s.log.WithError(err).WithField("count", len(batch)).Error("failed to flush action batch")
		return
	}
	s.log.WithField("count", len(batch)).Debug("flushed action batch")
}

// inactivityLoop periodically sweeps for games whose action stream stopped
// without a recorded end and closes their rows.
func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, time.Now())
		}
	}
}

func (s *Service) sweep(ctx context.Context, now time.Time) {
	s.lastActivity.Range(func(key, val any) bool {
		gameID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.inactivity {
			return true
		}
		if err := s.sink.MarkAbandoned(ctx, gameID); err != nil {
			s.log.WithError(err).WithField("game", gameID).Error("failed to mark game abandoned")
			return true
		}
		s.log.WithField("game", gameID).Info("marked inactive game abandoned")
		s.lastActivity.Delete(gameID)
		return true
	})
}
