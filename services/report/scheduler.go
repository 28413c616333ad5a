package report

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
	"sponsorportal/pkg/rediskey"
	"sponsorportal/pkg/task"
	"sponsorportal/services/sponsor"
)

const (
	scheduleMarkerTTL = 40 * 24 * time.Hour
	retryDelay        = 15 * time.Minute
)

type SponsorLister interface {
	UserIDs(ctx context.Context) ([]string, error)
}

type locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Scheduler enqueues last month's report for every sponsor on the first day of each
// month at 01:00 in the report timezone. A redis marker keeps several workers from
// fanning out the same month twice.
type Scheduler struct {
	sponsors SponsorLister
	queue    task.Enqueuer
	lock     locker
	loc      *time.Location
	now      func() time.Time
}

type SchedulerParams struct {
	fx.In
	Config   *config.Config
	Sponsors *sponsor.Service
	Queue    task.Enqueuer
	Redis    *redis.Client
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		sponsors: p.Sponsors,
		queue:    p.Queue,
		lock:     p.Redis,
		loc:      p.Config.ReportLocation(),
		now:      time.Now,
	}
}

func StartScheduler(lc fx.Lifecycle, cfg *config.Config, s *Scheduler) {
	if !cfg.Reports.MonthlySchedule {
		zap.L().Info("[Scheduler] monthly reports disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.run(ctx)
			}()
			return nil
		},
		OnStop: func(stop context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stop.Done():
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started monthly report scheduler", zap.String("timezone", s.loc.String()))

	var retry bool
	for {
		now := s.now().In(s.loc)
		next := nextRunTime(now, 1, 0)
		if retry {
			next = now.Add(retryDelay)
		}

		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", next.Sub(now)),
		)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-timer.C:
			err := s.RunMonthly(ctx)
			retry = err != nil
			if err != nil {
				zap.L().Error("[Scheduler] monthly run failed, retrying", zap.Duration("retry_in", retryDelay), zap.Error(err))
			}
		case <-ctx.Done():
			timer.Stop()
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

// RunMonthly enqueues the previous month's report for every sponsor. The month
// marker is released when any sponsor could not be enqueued, so a later run fans
// out again; task ids keep the sponsors already queued from being queued twice.
func (s *Scheduler) RunMonthly(ctx context.Context) error {
	start := s.now()
	year, month := previousMonth(start.In(s.loc))
	key := rediskey.BuildReportScheduleKey(year, month)

	ok, err := s.lock.SetNX(ctx, key, start.Unix(), scheduleMarkerTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		zap.L().Info("[Scheduler] month already scheduled", zap.Int("year", year), zap.Int("month", month))
		return nil
	}

	ids, err := s.sponsors.UserIDs(ctx)
	if err != nil {
		s.release(ctx, key)
		return err
	}

	var failed int
	for _, id := range ids {
		if _, err := Enqueue(ctx, s.queue, GenerateRequest{UserID: id, Month: month, Year: year}); err != nil {
			failed++
			zap.L().Error("[Scheduler] failed to enqueue report", zap.String("user_id", id), zap.Error(err))
		}
	}

	zap.L().Info("[Scheduler] finished monthly enqueue",
		zap.Int("sponsors", len(ids)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)
	if failed > 0 {
		s.release(ctx, key)
		return fmt.Errorf("%d of %d report tasks not enqueued", failed, len(ids))
	}
	return nil
}

func (s *Scheduler) release(ctx context.Context, key string) {
	if err := s.lock.Del(ctx, key).Err(); err != nil {
		zap.L().Error("[Scheduler] failed to release month marker", zap.String("key", key), zap.Error(err))
	}
}

// nextRunTime returns the first day of a month at hour:minute that is after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), 1, hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

func previousMonth(now time.Time) (int, int) {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}
