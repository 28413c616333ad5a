package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type lockFake struct {
	keys map[string]bool
}

func (l *lockFake) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if l.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	l.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func (l *lockFake) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if l.keys[k] {
			delete(l.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type sponsorsFake []string

func (s sponsorsFake) UserIDs(ctx context.Context) ([]string, error) { return s, nil }

func TestNextRunTime(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		now, want time.Time
	}{
		{time.Date(2025, 3, 15, 10, 0, 0, 0, loc), time.Date(2025, 4, 1, 1, 0, 0, 0, loc)},
		{time.Date(2025, 4, 1, 0, 30, 0, 0, loc), time.Date(2025, 4, 1, 1, 0, 0, 0, loc)},
		{time.Date(2025, 4, 1, 1, 0, 0, 0, loc), time.Date(2025, 5, 1, 1, 0, 0, 0, loc)},
		{time.Date(2025, 12, 31, 23, 0, 0, 0, loc), time.Date(2026, 1, 1, 1, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, nextRunTime(tc.now, 1, 0), tc.now.String())
	}
}

func TestPreviousMonth(t *testing.T) {
	y, m := previousMonth(time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC))
	require.Equal(t, 2025, y)
	require.Equal(t, 12, m)

	y, m = previousMonth(time.Date(2025, 3, 31, 1, 0, 0, 0, time.UTC))
	require.Equal(t, 2025, y)
	require.Equal(t, 2, m)
}

func TestRunMonthlyEnqueuesOncePerMonth(t *testing.T) {
	queue := &queueFake{}
	s := &Scheduler{
		sponsors: sponsorsFake{"user-1", "user-2"},
		queue:    queue,
		lock:     &lockFake{keys: map[string]bool{}},
		loc:      time.UTC,
		now:      func() time.Time { return time.Date(2025, 4, 1, 1, 0, 0, 0, time.UTC) },
	}

	require.NoError(t, s.RunMonthly(context.Background()))
	require.Equal(t, []string{"report:generate:user-1:2025-03", "report:generate:user-2:2025-03"}, queue.ids)

	require.NoError(t, s.RunMonthly(context.Background()))
	require.Len(t, queue.tasks, 2)
}

func TestRunMonthlyReleasesMonthOnEnqueueFailure(t *testing.T) {
	queue := &queueFake{err: errors.New("redis unavailable")}
	lock := &lockFake{keys: map[string]bool{}}
	s := &Scheduler{
		sponsors: sponsorsFake{"user-1", "user-2"},
		queue:    queue,
		lock:     lock,
		loc:      time.UTC,
		now:      func() time.Time { return time.Date(2025, 4, 1, 1, 0, 0, 0, time.UTC) },
	}

	require.Error(t, s.RunMonthly(context.Background()))
	require.Empty(t, lock.keys)

	queue.err = nil
	require.NoError(t, s.RunMonthly(context.Background()))
	require.Equal(t, []string{"report:generate:user-1:2025-03", "report:generate:user-2:2025-03"}, queue.ids)
	require.Len(t, lock.keys, 1)
}
