package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"arbiter/internal/common/mq"
	"arbiter/internal/contest/model"
	"arbiter/internal/contest/repository"
	"arbiter/internal/fanout"
	"arbiter/internal/leaderboard"
	appErr "arbiter/pkg/errors"
	"arbiter/pkg/utils/logger"
)

// ProjectionService turns durable submission updates into what spectators
// see: a rebuilt leaderboard snapshot and realtime room events.
type ProjectionService struct {
	contests    repository.ContestStore
	submissions repository.SubmissionStore
	leaderboard *leaderboard.Service
	dispatcher  *fanout.Dispatcher
}

func NewProjectionService(
	contests repository.ContestStore,
	submissions repository.SubmissionStore,
	board *leaderboard.Service,
	dispatcher *fanout.Dispatcher,
) (*ProjectionService, error) {
	if contests == nil {
		return nil, appErr.BadRequest("contest store is required")
	}
	if submissions == nil {
		return nil, appErr.BadRequest("submission store is required")
	}
	if board == nil {
		return nil, appErr.BadRequest("leaderboard service is required")
	}
	return &ProjectionService{
		contests:    contests,
		submissions: submissions,
		leaderboard: board,
		dispatcher:  dispatcher,
	}, nil
}

// HandleSubmissionUpdated consumes the submission-updated topic. Rebuilding
// from current state makes redeliveries harmless.
func (s *ProjectionService) HandleSubmissionUpdated(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var event model.SubmissionUpdatedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return appErr.Wrapf(err, appErr.DecodeFailed, "decode updated event failed")
	}
	if event.ContestID <= 0 || event.SubmissionID <= 0 {
		return appErr.New(appErr.InvalidParams).WithMessage("event missing required fields")
	}
	return s.Apply(ctx, event)
}

// Apply pushes the submission change to its rooms and refreshes the
// leaderboard when the change could move scores.
func (s *ProjectionService) Apply(ctx context.Context, event model.SubmissionUpdatedEvent) error {
	contest, err := s.contests.GetByID(ctx, event.ContestID)
	if err != nil {
		if errors.Is(err, repository.ErrContestNotFound) {
			logger.Warn(ctx, "update for unknown contest", zap.Int64("contest_id", event.ContestID))
			return nil
		}
		return err
	}
	submission, err := s.submissions.GetByID(ctx, event.SubmissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			logger.Warn(ctx, "update for unknown submission", zap.Int64("submission_id", event.SubmissionID))
			return nil
		}
		return err
	}

	if s.dispatcher != nil {
		s.dispatcher.SubmissionUpdated(ctx, contest, submission)
	}

	// Only settled verdicts move the standings.
	if submission.Status != model.StatusJudged {
		return nil
	}
	return s.RefreshLeaderboard(ctx, event.ContestID)
}

// RefreshLeaderboard rebuilds the snapshots and pushes the public one.
func (s *ProjectionService) RefreshLeaderboard(ctx context.Context, contestID int64) error {
	snapshot, err := s.leaderboard.Rebuild(ctx, contestID)
	if err != nil {
		return err
	}
	if s.dispatcher != nil {
		s.dispatcher.LeaderboardUpdated(ctx, snapshot)
	}
	return nil
}
