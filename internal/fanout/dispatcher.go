// Package fanout decides which realtime rooms receive which view of an
// update. It is a notification layer: delivery is best-effort and clients
// reconcile through the pull API on reconnect.
package fanout

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"arbiter/internal/common/realtime"
	"arbiter/internal/contest/model"
	"arbiter/pkg/utils/logger"
)

const (
	EventSubmissionUpdated  = "submission:updated"
	EventLeaderboardUpdated = "leaderboard:updated"
)

// PublicSubmissionDTO is what every contest watcher may see.
type PublicSubmissionDTO struct {
	SubmissionID int64                  `json:"submissionId"`
	ContestID    int64                  `json:"contestId"`
	ProblemID    int64                  `json:"problemId"`
	MemberID     int64                  `json:"memberId"`
	Status       model.SubmissionStatus `json:"status"`
	Answer       model.Answer           `json:"answer"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// FullSubmissionDTO additionally carries the attachment keys. Only the
// submitting member and staff rooms receive it.
type FullSubmissionDTO struct {
	PublicSubmissionDTO
	LanguageID string `json:"languageId"`
	SourceKey  string `json:"sourceKey"`
}

// Dispatcher routes domain updates to rooms over the realtime transport.
type Dispatcher struct {
	transport realtime.Transport
}

func NewDispatcher(transport realtime.Transport) (*Dispatcher, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	return &Dispatcher{transport: transport}, nil
}

// SubmissionUpdated emits the full DTO to the member's private room and the
// staff room, and the public DTO to the contest feed. The public emit is
// suppressed while the leaderboard is frozen so spectators learn nothing the
// frozen board would hide.
func (d *Dispatcher) SubmissionUpdated(ctx context.Context, contest *model.Contest, submission *model.Submission) {
	public := PublicSubmissionDTO{
		SubmissionID: submission.ID,
		ContestID:    submission.ContestID,
		ProblemID:    submission.ProblemID,
		MemberID:     submission.MemberID,
		Status:       submission.Status,
		Answer:       submission.Answer,
		UpdatedAt:    submission.UpdatedAt,
	}
	full := FullSubmissionDTO{
		PublicSubmissionDTO: public,
		LanguageID:          submission.LanguageID,
		SourceKey:           submission.SourceKey,
	}

	d.emit(ctx, realtime.MemberPrivateRoom(submission.MemberID), EventSubmissionUpdated, full)
	d.emit(ctx, realtime.ContestStaffRoom(contest.ID), EventSubmissionUpdated, full)

	if !contest.IsFrozen {
		d.emit(ctx, realtime.ContestSubmissionsRoom(contest.ID), EventSubmissionUpdated, public)
	}
}

// LeaderboardUpdated emits the public snapshot to the contest's leaderboard
// room after every recompute.
func (d *Dispatcher) LeaderboardUpdated(ctx context.Context, snapshot *model.LeaderboardSnapshot) {
	d.emit(ctx, realtime.ContestLeaderboardRoom(snapshot.ContestID), EventLeaderboardUpdated, snapshot)
}

func (d *Dispatcher) emit(ctx context.Context, room, event string, payload interface{}) {
	if err := d.transport.Emit(ctx, room, event, payload); err != nil {
		logger.Warn(ctx, "realtime emit failed",
			zap.String("room", room),
			zap.String("event", event),
			zap.Error(err))
	}
}
