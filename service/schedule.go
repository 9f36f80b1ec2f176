package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"praxischat/model"
)

const (
	sweepSchedule     = "@every 5m"
	retentionSchedule = "0 3 * * *"
	limiterIdle       = 10 * time.Minute
)

// Sweeper 清理空闲的限流状态
type Sweeper interface {
	Sweep(idle time.Duration) int
}

// Scheduler 定时维护任务
type Scheduler struct {
	cron          *cron.Cron
	store         *model.Store
	sweeper       Sweeper
	retentionDays int
	logger        *logrus.Logger
	now           func() time.Time
}

func NewScheduler(store *model.Store, sweeper Sweeper, retentionDays int, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithLocation(time.UTC)),
		store:         store,
		sweeper:       sweeper,
		retentionDays: retentionDays,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Start 注册任务并启动，返回注册的任务数
func (s *Scheduler) Start() (int, error) {
	jobs := 0
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(sweepSchedule, s.SweepLimiter); err != nil {
			return 0, err
		}
		jobs++
	}
	if s.retentionDays > 0 {
		if _, err := s.cron.AddFunc(retentionSchedule, func() {
			// 错误已在 PurgeExpiredSessions 内记录
			s.PurgeExpiredSessions(context.Background())
		}); err != nil {
			return 0, err
		}
		jobs++
	}
	s.cron.Start()
	s.logger.Infof("[%s] Scheduler started with %d jobs", "scheduled task", jobs)
	return jobs, nil
}

// Stop 等待正在执行的任务结束
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) SweepLimiter() {
	if s.sweeper == nil {
		return
	}
	if removed := s.sweeper.Sweep(limiterIdle); removed > 0 {
		s.logger.Debugf("[%s] Swept %d idle rate limit buckets", "scheduled task", removed)
	}
}

// PurgeExpiredSessions 删除超过保留期的会话及消息
func (s *Scheduler) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}
	startTime := time.Now()
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.store.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warnf("[%s] Purge expired sessions error, %s", "scheduled task", err)
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Infof("[%s] Finished purge expired sessions cost %v", "scheduled task", time.Since(startTime))
	return deleted, nil
}
