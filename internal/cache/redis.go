// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cardtable/uno-service/internal/uno"
)

// DefaultQueueName is the Redis list used for the action history when none is
// configured.
const DefaultQueueName = "uno_actions"

// ActionQueue publishes the machine's applied-action stream to a Redis list,
// where a replay/audit consumer can drain it. It implements uno.ActionLog.
type ActionQueue struct {
	rdb   *redis.Client
	queue string
}

// Connect initializes the Redis client and verifies the connection.
func Connect(ctx context.Context, addr string, db int, queue string) (*ActionQueue, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &ActionQueue{rdb: rdb, queue: queue}, nil
}

// Publish serializes the record to JSON and pushes it onto the queue. It only
// blocks for the duration of one network send.
func (q *ActionQueue) Publish(ctx context.Context, rec uno.ActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list %q: %w", q.queue, err)
	}
	return nil
}

// Pop blocks up to timeout for the next record on the queue. The second
// return is false when the wait elapsed with nothing to pop.
func (q *ActionQueue) Pop(ctx context.Context, timeout time.Duration) (uno.ActionRecord, bool, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uno.ActionRecord{}, false, nil
		}
		return uno.ActionRecord{}, false, fmt.Errorf("failed to BLPop from Redis list %q: %w", q.queue, err)
	}
	if len(res) < 2 {
		return uno.ActionRecord{}, false, nil
	}

	var rec uno.ActionRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return uno.ActionRecord{}, false, fmt.Errorf("invalid action record: %w", err)
	}
	return rec, true, nil
}

func (q *ActionQueue) Close() error {
	return q.rdb.Close()
}
