package model

import "time"

// Topic names shared by producers and consumers.
const (
	TopicSubmissionQueued     = "arbiter.submission.queued"
	TopicSubmissionDeadLetter = "arbiter.submission.dead"
	TopicSubmissionUpdated    = "arbiter.submission.updated"
)

// SubmissionQueuedPayload is the queue payload for a submission awaiting
// judging. Handlers key idempotency on SubmissionID.
type SubmissionQueuedPayload struct {
	ContestID    int64 `json:"contestId"`
	SubmissionID int64 `json:"submissionId"`
}

// SubmissionUpdatedEvent is published after a submission mutation is durably
// committed. Consumed by the leaderboard recompute service and the fanout
// dispatcher.
type SubmissionUpdatedEvent struct {
	ContestID    int64            `json:"contestId"`
	SubmissionID int64            `json:"submissionId"`
	MemberID     int64            `json:"memberId"`
	ProblemID    int64            `json:"problemId"`
	Status       SubmissionStatus `json:"status"`
	Answer       Answer           `json:"answer"`
	Version      int64            `json:"version"`
	OccurredAt   time.Time        `json:"occurredAt"`
}
