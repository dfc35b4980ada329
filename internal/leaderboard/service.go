package leaderboard

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"arbiter/internal/contest/model"
	"arbiter/internal/contest/repository"
	"arbiter/pkg/utils/logger"
)

// Service rebuilds and serves leaderboard snapshots. Rebuilds run on every
// submission-updated event; reads hit the snapshot cache and fall back to a
// rebuild on miss.
type Service struct {
	contests    repository.ContestStore
	submissions repository.SubmissionStore
	snapshots   repository.SnapshotStore
}

// Config wires the service dependencies.
type Config struct {
	Contests    repository.ContestStore
	Submissions repository.SubmissionStore
	Snapshots   repository.SnapshotStore
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Contests == nil {
		return nil, errors.New("contest store is required")
	}
	if cfg.Submissions == nil {
		return nil, errors.New("submission store is required")
	}
	if cfg.Snapshots == nil {
		return nil, errors.New("snapshot store is required")
	}
	return &Service{
		contests:    cfg.Contests,
		submissions: cfg.Submissions,
		snapshots:   cfg.Snapshots,
	}, nil
}

// Rebuild recomputes both snapshot variants and caches them. Returns the
// public variant for fanout.
func (s *Service) Rebuild(ctx context.Context, contestID int64) (*model.LeaderboardSnapshot, error) {
	contest, members, problems, submissions, err := s.loadInputs(ctx, contestID)
	if err != nil {
		return nil, err
	}

	public := BuildSnapshot(contest, members, problems, submissions, BuildOptions{})
	staff := BuildSnapshot(contest, members, problems, submissions, BuildOptions{BypassFreeze: true})

	if err := s.snapshots.SavePublic(ctx, public); err != nil {
		logger.Warn(ctx, "cache public snapshot failed", zap.Int64("contest_id", contestID), zap.Error(err))
	}
	if err := s.snapshots.SaveStaff(ctx, staff); err != nil {
		logger.Warn(ctx, "cache staff snapshot failed", zap.Int64("contest_id", contestID), zap.Error(err))
	}
	return public, nil
}

// Get serves the requested snapshot variant, rebuilding on cache miss.
func (s *Service) Get(ctx context.Context, contestID int64, bypassFreeze bool) (*model.LeaderboardSnapshot, error) {
	var cached *model.LeaderboardSnapshot
	var err error
	if bypassFreeze {
		cached, err = s.snapshots.GetStaff(ctx, contestID)
	} else {
		cached, err = s.snapshots.GetPublic(ctx, contestID)
	}
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, repository.ErrSnapshotNotFound) {
		logger.Warn(ctx, "snapshot cache read failed", zap.Int64("contest_id", contestID), zap.Error(err))
	}

	contest, members, problems, submissions, loadErr := s.loadInputs(ctx, contestID)
	if loadErr != nil {
		return nil, loadErr
	}
	snapshot := BuildSnapshot(contest, members, problems, submissions, BuildOptions{BypassFreeze: bypassFreeze})
	if bypassFreeze {
		if err := s.snapshots.SaveStaff(ctx, snapshot); err != nil {
			logger.Warn(ctx, "cache staff snapshot failed", zap.Int64("contest_id", contestID), zap.Error(err))
		}
	} else {
		if err := s.snapshots.SavePublic(ctx, snapshot); err != nil {
			logger.Warn(ctx, "cache public snapshot failed", zap.Int64("contest_id", contestID), zap.Error(err))
		}
	}
	return snapshot, nil
}

func (s *Service) loadInputs(ctx context.Context, contestID int64) (*model.Contest, []*model.Member, []*model.Problem, []*model.Submission, error) {
	contest, err := s.contests.GetByID(ctx, contestID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	members, err := s.contests.ListMembers(ctx, contestID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	problems, err := s.contests.ListProblems(ctx, contestID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	submissions, err := s.submissions.ListByContest(ctx, contestID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return contest, members, problems, submissions, nil
}
