package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

// DefaultJournalQueue is the Redis list holding lobby events for the historian.
const DefaultJournalQueue = "grooveguessr_events"

// Journal is a Redis list used as a queue of lobby events.
type Journal struct {
	rdb   redis.UniversalClient
	queue string
}

func NewJournal(rdb redis.UniversalClient, queue string) *Journal {
	if queue == "" {
		queue = DefaultJournalQueue
	}
	return &Journal{rdb: rdb, queue: queue}
}

// Publish serializes ev to JSON and pushes it onto the queue.
func (j *Journal) Publish(ctx context.Context, ev models.LobbyEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal LobbyEvent: %w", err)
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w: %w", j.queue, models.ErrCacheUnavailable, err)
	}
	return nil
}

// Pop blocks up to timeout for the next event. It returns nil, nil on timeout.
func (j *Journal) Pop(ctx context.Context, timeout time.Duration) (*models.LobbyEvent, error) {
	res, err := j.rdb.BLPop(ctx, timeout, j.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop: %w: %w", models.ErrCacheUnavailable, err)
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return nil, nil
	}
	var ev models.LobbyEvent
	if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
		return nil, fmt.Errorf("invalid lobby event: %w", err)
	}
	return &ev, nil
}

// Requeue puts events back at the head of the queue in their original order,
// so the next Pop returns events[0].
func (j *Journal) Requeue(ctx context.Context, events []models.LobbyEvent) error {
	if len(events) == 0 {
		return nil
	}
	values := make([]any, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		data, err := json.Marshal(events[i])
		if err != nil {
			return fmt.Errorf("failed to marshal LobbyEvent: %w", err)
		}
		values = append(values, data)
	}
	if err := j.rdb.LPush(ctx, j.queue, values...).Err(); err != nil {
		return fmt.Errorf("failed to LPush to Redis list '%s': %w: %w", j.queue, models.ErrCacheUnavailable, err)
	}
	return nil
}
