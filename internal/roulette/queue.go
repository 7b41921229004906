package roulette

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/freedomchat/backend/internal/metrics"
	"github.com/freedomchat/backend/internal/store"
)

// Queue maintains the two gender-partitioned FIFO queues. An id appears in at
// most one queue at a time; duplicate joins are declined after scanning both.
type Queue struct {
	store *store.Redis
}

func NewQueue(st *store.Redis) *Queue {
	return &Queue{store: st}
}

// Enqueue appends partyID to the queue for gender. Returns a non-empty
// Decline for expected rejections (invalid gender, already queued).
func (q *Queue) Enqueue(ctx context.Context, partyID, gender string) (Decline, error) {
	if gender != GenderMale && gender != GenderFemale {
		return DeclineGenderRequired, nil
	}

	males, err := q.store.Client.LRange(ctx, queueKey(GenderMale), 0, -1).Result()
	if err != nil {
		return DeclineNone, fmt.Errorf("scan male queue: %w", err)
	}
	females, err := q.store.Client.LRange(ctx, queueKey(GenderFemale), 0, -1).Result()
	if err != nil {
		return DeclineNone, fmt.Errorf("scan female queue: %w", err)
	}
	if contains(males, partyID) || contains(females, partyID) {
		return DeclineAlreadyQueued, nil
	}

	if err := q.store.Client.RPush(ctx, queueKey(gender), partyID).Err(); err != nil {
		return DeclineNone, fmt.Errorf("enqueue %s: %w", partyID, err)
	}
	q.trackDepth(ctx)
	return DeclineNone, nil
}

// Leave removes partyID from both queues. Idempotent; never errors on absence.
func (q *Queue) Leave(ctx context.Context, partyID string) error {
	if err := q.store.Client.LRem(ctx, queueKey(GenderMale), 0, partyID).Err(); err != nil {
		return fmt.Errorf("leave male queue: %w", err)
	}
	if err := q.store.Client.LRem(ctx, queueKey(GenderFemale), 0, partyID).Err(); err != nil {
		return fmt.Errorf("leave female queue: %w", err)
	}
	q.trackDepth(ctx)
	return nil
}

// Depth returns the combined depth of both queues. This is what a waiting
// party sees as its queue position.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	m, err := q.store.Client.LLen(ctx, queueKey(GenderMale)).Result()
	if err != nil {
		return 0, err
	}
	f, err := q.store.Client.LLen(ctx, queueKey(GenderFemale)).Result()
	if err != nil {
		return 0, err
	}
	return int(m + f), nil
}

// PopPair pops exactly one id from the front of each queue. ok=false means
// waiting: either queue was empty, or a concurrent leave drained one side
// mid-pop, in which case the id that was popped is pushed back to the front.
// No pair is ever returned with fewer than two confirmed ids.
func (q *Queue) PopPair(ctx context.Context) (male, female string, ok bool, err error) {
	male, err = q.pop(ctx, GenderMale)
	if err != nil {
		return "", "", false, err
	}
	female, err = q.pop(ctx, GenderFemale)
	if err != nil {
		return "", "", false, err
	}

	if male == "" || female == "" {
		if male != "" {
			if err := q.pushFront(ctx, GenderMale, male); err != nil {
				return "", "", false, err
			}
		}
		if female != "" {
			if err := q.pushFront(ctx, GenderFemale, female); err != nil {
				return "", "", false, err
			}
		}
		return "", "", false, nil
	}

	q.trackDepth(ctx)
	return male, female, true, nil
}

func (q *Queue) pop(ctx context.Context, gender string) (string, error) {
	id, err := q.store.Client.LPop(ctx, queueKey(gender)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("pop %s queue: %w", gender, err)
	}
	return id, nil
}

func (q *Queue) pushFront(ctx context.Context, gender, partyID string) error {
	if err := q.store.Client.LPush(ctx, queueKey(gender), partyID).Err(); err != nil {
		return fmt.Errorf("push back %s: %w", partyID, err)
	}
	return nil
}

func (q *Queue) trackDepth(ctx context.Context) {
	for _, g := range []string{GenderMale, GenderFemale} {
		if n, err := q.store.Client.LLen(ctx, queueKey(g)).Result(); err == nil {
			metrics.QueueDepth.WithLabelValues(g).Set(float64(n))
		}
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
