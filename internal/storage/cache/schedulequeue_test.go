package cache_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-pushhub-service/internal/storage/cache"
	"github.com/tinywideclouds/go-pushhub-service/pkg/delivery"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// memorySortedSet is an in-memory stand-in for a Redis sorted set.
type memorySortedSet struct {
	mu      sync.Mutex
	members map[string]float64
	readErr error
}

func newMemorySortedSet() *memorySortedSet {
	return &memorySortedSet{members: make(map[string]float64)}
}

func (m *memorySortedSet) ZAdd(_ context.Context, _ string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[member] = score
	return nil
}

func (m *memorySortedSet) ZRangeByScoreMax(_ context.Context, _ string, max float64, count int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []string
	for member, score := range m.members {
		if score <= max {
			out = append(out, member)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.members[out[i]] < m.members[out[j]] })
	if count > 0 && int64(len(out)) > count {
		out = out[:count]
	}
	return out, nil
}

func (m *memorySortedSet) ZRem(_ context.Context, _ string, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[member]; !ok {
		return false, nil
	}
	delete(m.members, member)
	return true, nil
}

func newJob(at time.Time) delivery.Job {
	return delivery.Job{
		ID:        uuid.NewString(),
		Platform:  push.PlatformFCMV1,
		Payload:   []byte(`{"message":{"notification":{"body":"Hi"}}}`),
		Tags:      []string{"android"},
		DeliverAt: at,
	}
}

func TestScheduleQueue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Only due jobs are claimed, earliest first", func(t *testing.T) {
		set := newMemorySortedSet()
		q := cache.NewScheduleQueue(set, "")

		later := newJob(now.Add(time.Hour))
		due1 := newJob(now.Add(-2 * time.Minute))
		due2 := newJob(now)
		for _, j := range []delivery.Job{later, due1, due2} {
			require.NoError(t, q.Enqueue(ctx, j))
		}

		jobs, err := q.ClaimDue(ctx, now, 10)

		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, due1.ID, jobs[0].ID)
		assert.Equal(t, due2.ID, jobs[1].ID)
		assert.Equal(t, push.PlatformFCMV1, jobs[0].Platform)
		assert.JSONEq(t, string(due1.Payload), string(jobs[0].Payload))
		assert.Len(t, set.members, 1)
	})

	t.Run("A claimed job is never returned twice", func(t *testing.T) {
		set := newMemorySortedSet()
		q := cache.NewScheduleQueue(set, "")
		require.NoError(t, q.Enqueue(ctx, newJob(now)))

		var wg sync.WaitGroup
		results := make([]int, 4)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				jobs, err := q.ClaimDue(ctx, now, 10)
				if err == nil {
					results[i] = len(jobs)
				}
			}(i)
		}
		wg.Wait()

		total := 0
		for _, n := range results {
			total += n
		}
		assert.Equal(t, 1, total)
	})

	t.Run("Limit bounds a claim", func(t *testing.T) {
		set := newMemorySortedSet()
		q := cache.NewScheduleQueue(set, "")
		for i := 0; i < 5; i++ {
			require.NoError(t, q.Enqueue(ctx, newJob(now.Add(-time.Duration(i)*time.Second))))
		}

		jobs, err := q.ClaimDue(ctx, now, 3)

		require.NoError(t, err)
		assert.Len(t, jobs, 3)
		assert.Len(t, set.members, 2)
	})

	t.Run("Read failure is reported", func(t *testing.T) {
		set := newMemorySortedSet()
		set.readErr = errors.New("connection reset")
		q := cache.NewScheduleQueue(set, "")

		_, err := q.ClaimDue(ctx, now, 10)

		assert.ErrorContains(t, err, "connection reset")
	})
}
