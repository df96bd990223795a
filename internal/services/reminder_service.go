package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ussbot/internal/models"
	"ussbot/internal/repositories"
)

// ScheduleConfig is the cron-like digest rule: weekdays at a fixed
// wall-clock time in a named zone, fixed at process start.
type ScheduleConfig struct {
	Hour     int
	Minute   int
	Timezone string
}

// ReminderService sends each assignee a private digest of their open
// tasks on business days. Weekday and time are always evaluated in the
// configured zone, never in the host's local zone.
type ReminderService struct {
	repo   repositories.TaskRepository
	notify *NotifyService
	logger *zap.Logger
	loc    *time.Location
	spec   string
	cron   *cron.Cron

	// Now is injectable for tests.
	Now func() time.Time
}

func NewReminderService(repo repositories.TaskRepository, notify *NotifyService, logger *zap.Logger, cfg ScheduleConfig) (*ReminderService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, fmt.Errorf("invalid schedule time %02d:%02d", cfg.Hour, cfg.Minute)
	}
	return &ReminderService{
		repo:   repo,
		notify: notify,
		logger: logger,
		loc:    loc,
		spec:   fmt.Sprintf("%d %d * * 1-5", cfg.Minute, cfg.Hour),
		Now:    time.Now,
	}, nil
}

// Start registers the recurring trigger and launches the scheduler.
func (s *ReminderService) Start() error {
	s.cron = cron.New(cron.WithLocation(s.loc))
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.Run(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule digest job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("digest scheduler started", zap.String("spec", s.spec), zap.String("tz", s.loc.String()))
	return nil
}

// Stop prevents future runs. A run already in progress completes; sends
// already dispatched are not retracted.
func (s *ReminderService) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("digest scheduler stopped")
}

// Run executes one digest pass. The weekday gate is re-checked here so
// a manually triggered run on a weekend still sends nothing.
func (s *ReminderService) Run(ctx context.Context) {
	runID := uuid.NewString()
	log := s.logger.With(zap.String("run_id", runID))

	now := s.Now().In(s.loc)
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		log.Debug("digest skipped: weekend in configured zone", zap.String("weekday", wd.String()))
		return
	}

	assignees, err := s.repo.DistinctOpenAssignees(ctx)
	if err != nil {
		log.Error("digest aborted: distinct assignees query failed", zap.Error(err))
		return
	}
	if len(assignees) == 0 {
		return
	}

	var sent, skipped int
	for _, uid := range assignees {
		tasks, err := s.repo.ListOpen(ctx, uid)
		if err != nil {
			log.Error("digest list failed", zap.Int64("assignee_id", uid), zap.Error(err))
			continue
		}
		if len(tasks) == 0 {
			continue
		}
		outcome, err := s.notify.DeliverPrivate(ctx, uid, renderDigest(tasks))
		switch {
		case err != nil:
			log.Error("digest send failed", zap.Int64("assignee_id", uid), zap.Error(err))
		case outcome == models.Unreachable:
			// Не ретраим ни в этом прогоне, ни в следующем.
			skipped++
			log.Info("digest skipped: assignee unreachable", zap.Int64("assignee_id", uid))
		default:
			sent++
		}
	}
	log.Info("digest run finished", zap.Int("sent", sent), zap.Int("skipped", skipped), zap.Int("assignees", len(assignees)))
}
