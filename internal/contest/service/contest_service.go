package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"arbiter/internal/contest/model"
	"arbiter/internal/contest/repository"
	"arbiter/pkg/errors"
	"arbiter/pkg/utils/logger"
)

// Trigger is the scheduling surface the service uses to arm auto-freeze jobs.
type Trigger interface {
	Schedule(contestID int64, firesAt time.Time) error
	Cancel(contestID int64) error
}

// FrozenHook is called after the freeze state of a contest actually changed,
// so callers can rebuild and push the visible leaderboard.
type FrozenHook func(ctx context.Context, contestID int64, frozen bool)

// ContestService owns contest lifecycle state: freeze, unfreeze and the
// delayed auto-freeze job.
type ContestService struct {
	contests  repository.ContestStore
	snapshots repository.SnapshotStore
	trigger   Trigger
	onFrozen  FrozenHook
	now       func() time.Time
}

type Config struct {
	Contests  repository.ContestStore
	Snapshots repository.SnapshotStore
	Trigger   Trigger
	OnFrozen  FrozenHook
}

func NewContestService(cfg Config) (*ContestService, error) {
	if cfg.Contests == nil {
		return nil, errors.BadRequest("contest store is required")
	}
	return &ContestService{
		contests:  cfg.Contests,
		snapshots: cfg.Snapshots,
		trigger:   cfg.Trigger,
		onFrozen:  cfg.OnFrozen,
		now:       time.Now,
	}, nil
}

func (s *ContestService) Get(ctx context.Context, contestID int64) (*model.Contest, error) {
	return s.contests.GetByID(ctx, contestID)
}

// Freeze records the freeze instant for contestID. Freezing a contest that is
// already frozen keeps the original instant and reports changed=false.
func (s *ContestService) Freeze(ctx context.Context, contestID int64) (bool, error) {
	frozenAt := s.now()
	changed, err := s.contests.SetFrozen(ctx, contestID, true, &frozenAt)
	if err != nil {
		return false, err
	}
	if !changed {
		logger.Debug(ctx, "contest already frozen", zap.Int64("contest_id", contestID))
		return false, nil
	}
	logger.Info(ctx, "contest frozen",
		zap.Int64("contest_id", contestID),
		zap.Time("frozen_at", frozenAt))
	s.afterFreezeChange(ctx, contestID, true)
	return true, nil
}

// Unfreeze clears the freeze state so the public leaderboard reflects every
// submission again.
func (s *ContestService) Unfreeze(ctx context.Context, contestID int64) (bool, error) {
	changed, err := s.contests.SetFrozen(ctx, contestID, false, nil)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	logger.Info(ctx, "contest unfrozen", zap.Int64("contest_id", contestID))
	s.afterFreezeChange(ctx, contestID, false)
	return true, nil
}

func (s *ContestService) afterFreezeChange(ctx context.Context, contestID int64, frozen bool) {
	if s.snapshots != nil {
		if err := s.snapshots.Invalidate(ctx, contestID); err != nil {
			logger.Warn(ctx, "leaderboard snapshot invalidation failed",
				zap.Int64("contest_id", contestID), zap.Error(err))
		}
	}
	if s.onFrozen != nil {
		s.onFrozen(ctx, contestID, frozen)
	}
}

// ResumeAutoFreeze re-arms the trigger for every contest with a pending
// auto-freeze instant. The timing wheel is in-memory, so a restart loses its
// jobs; this runs once at startup.
func (s *ContestService) ResumeAutoFreeze(ctx context.Context) error {
	if s.trigger == nil {
		return nil
	}
	contests, err := s.contests.ListAutoFreezePending(ctx, s.now())
	if err != nil {
		return err
	}
	for _, contest := range contests {
		if err := s.trigger.Schedule(contest.ID, *contest.AutoFreezeAt); err != nil {
			logger.Warn(ctx, "re-arm auto freeze failed",
				zap.Int64("contest_id", contest.ID), zap.Error(err))
			continue
		}
		logger.Info(ctx, "auto freeze re-armed",
			zap.Int64("contest_id", contest.ID),
			zap.Time("fires_at", *contest.AutoFreezeAt))
	}
	return nil
}

// ArmAutoFreeze reconciles the pending auto-freeze job for contestID with the
// contest's configured instant. Calling it again after the instant moved
// replaces the job; a cleared instant or an already frozen contest cancels it.
func (s *ContestService) ArmAutoFreeze(ctx context.Context, contestID int64) error {
	if s.trigger == nil {
		return nil
	}
	contest, err := s.contests.GetByID(ctx, contestID)
	if err != nil {
		return err
	}
	if contest.AutoFreezeAt == nil || contest.IsFrozen {
		if err := s.trigger.Cancel(contestID); err != nil {
			logger.Warn(ctx, "auto freeze cancel failed",
				zap.Int64("contest_id", contestID), zap.Error(err))
		}
		return nil
	}
	if err := s.trigger.Schedule(contestID, *contest.AutoFreezeAt); err != nil {
		return errors.Wrapf(err, errors.InternalServerError, "schedule auto freeze: %v", err)
	}
	logger.Info(ctx, "auto freeze armed",
		zap.Int64("contest_id", contestID),
		zap.Time("fires_at", *contest.AutoFreezeAt))
	return nil
}
