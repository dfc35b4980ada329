package model

import "time"

// WrongSubmissionPenaltySeconds is the fixed penalty added per wrong
// submission on a problem the member eventually solves.
const WrongSubmissionPenaltySeconds = 1200

// LeaderboardSnapshot is a derived, immutable view of the standings at
// IssuedAt. It is never the source of truth; the submission history is.
type LeaderboardSnapshot struct {
	ContestID int64            `json:"contestId"`
	Slug      string           `json:"slug"`
	StartAt   time.Time        `json:"startAt"`
	IssuedAt  time.Time        `json:"issuedAt"`
	IsFrozen  bool             `json:"isFrozen"`
	Rows      []LeaderboardRow `json:"rows"`
}

// LeaderboardRow is one member's standing, ordered best-first in the snapshot.
type LeaderboardRow struct {
	MemberID   int64             `json:"memberId"`
	MemberName string            `json:"memberName"`
	Score      int               `json:"score"`
	Penalty    int64             `json:"penalty"`
	Cells      []LeaderboardCell `json:"cells"`
}

// LeaderboardCell is one (member, problem) pair. Once IsAccepted is set the
// cell never changes again, whatever later submissions do.
type LeaderboardCell struct {
	ProblemID        int64      `json:"problemId"`
	IsAccepted       bool       `json:"isAccepted"`
	AcceptedAt       *time.Time `json:"acceptedAt,omitempty"`
	WrongSubmissions int        `json:"wrongSubmissions"`
	Penalty          int64      `json:"penalty"`
}
