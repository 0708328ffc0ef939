package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-pushhub-service/pkg/delivery"
)

// DefaultScheduleKey is the sorted set holding deferred jobs.
const DefaultScheduleKey = "pushhub:schedule"

// SortedSetClient is the subset of Redis sorted-set commands the queue needs.
type SortedSetClient interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScoreMax(ctx context.Context, key string, max float64, count int64) ([]string, error)
	ZRem(ctx context.Context, key, member string) (bool, error)
}

// ScheduleQueue stores deferred delivery jobs in a Redis sorted set scored by
// their delivery time in unix seconds. A job is claimed by whichever caller
// removes it from the set, so several pollers can share one queue.
type ScheduleQueue struct {
	client SortedSetClient
	key    string
}

func NewScheduleQueue(client SortedSetClient, key string) *ScheduleQueue {
	if key == "" {
		key = DefaultScheduleKey
	}
	return &ScheduleQueue{client: client, key: key}
}

func (q *ScheduleQueue) Enqueue(ctx context.Context, job delivery.Job) error {
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	score := float64(job.DeliverAt.UTC().Unix())
	if err := q.client.ZAdd(ctx, q.key, score, string(member)); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// ClaimDue removes and returns up to limit jobs due at or before now.
// Members that no longer decode are dropped from the set.
func (q *ScheduleQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]delivery.Job, error) {
	members, err := q.client.ZRangeByScoreMax(ctx, q.key, float64(now.UTC().Unix()), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read due jobs: %w", err)
	}

	jobs := make([]delivery.Job, 0, len(members))
	for _, member := range members {
		claimed, err := q.client.ZRem(ctx, q.key, member)
		if err != nil {
			return jobs, fmt.Errorf("failed to claim job: %w", err)
		}
		if !claimed {
			// Another poller got there first.
			continue
		}
		var job delivery.Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
